// Package cartstore owns the authoritative cart for the active session. All
// mutations flow through the Store: it tracks pending state per mutation,
// serializes concurrent edits to the same line, and records the metadata the
// retry coordinator needs to replay a failed action.
package cartstore

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/brewline/cartsync/internal/domain"
	"github.com/brewline/cartsync/internal/notify"
)

// API is the slice of the transport adapter the store consumes.
type API interface {
	FetchCart(ctx context.Context) (domain.Cart, error)
	AddItem(ctx context.Context, req domain.AddItemRequest) (domain.Cart, error)
	UpdateItem(ctx context.Context, itemID string, req domain.UpdateItemRequest) (domain.Cart, error)
	RemoveItem(ctx context.Context, itemID string) (domain.Cart, error)
	ClearCart(ctx context.Context) (domain.Cart, error)
	FetchTotal(ctx context.Context) (domain.CartTotal, error)
}

// MutationStatus is the settlement state of the most recent mutation.
type MutationStatus int

const (
	// StatusIdle means no mutation has been issued yet.
	StatusIdle MutationStatus = iota
	// StatusPending means a mutation is in flight.
	StatusPending
	// StatusFulfilled means the last mutation settled successfully.
	StatusFulfilled
	// StatusRejected means the last mutation failed and its error is recorded.
	StatusRejected
)

func (s MutationStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusFulfilled:
		return "fulfilled"
	case StatusRejected:
		return "rejected"
	default:
		return "idle"
	}
}

// ActionKind names a replayable store mutation.
type ActionKind string

const (
	// ActionLoad is the fetch-or-create load of the whole cart.
	ActionLoad ActionKind = "load"
	// ActionAddItem appends a product.
	ActionAddItem ActionKind = "add_item"
	// ActionUpdateItem edits an existing line.
	ActionUpdateItem ActionKind = "update_item"
	// ActionRemoveItem deletes a line.
	ActionRemoveItem ActionKind = "remove_item"
	// ActionClear empties the cart.
	ActionClear ActionKind = "clear"
)

// itemLevel reports whether replaying the action verbatim could double-apply
// a change that actually landed server-side.
func (k ActionKind) itemLevel() bool {
	switch k {
	case ActionAddItem, ActionUpdateItem, ActionRemoveItem:
		return true
	}
	return false
}

// Action captures the last attempted mutation for the retry coordinator.
type Action struct {
	Kind   ActionKind
	ItemID string
	Add    domain.AddItemRequest
	Update domain.UpdateItemRequest
}

// RetryState pairs the attempt counter with the last failed action. It is
// reset to the zero value on any successful mutation.
type RetryState struct {
	Count int
	Last  *Action
}

// Mutation describes the most recent mutation for rendering pending states.
type Mutation struct {
	Kind   ActionKind
	Status MutationStatus
	ItemID string
}

// Deps wires the store's collaborators.
type Deps struct {
	API      API
	Notifier notify.Notifier
	Logger   *zap.Logger
}

var errAPIRequired = errors.New("cartstore: transport API is required")

const notifyDuration = 4 * time.Second

// Store holds the single authoritative cart for a session.
type Store struct {
	api      API
	notifier notify.Notifier
	logger   *zap.Logger

	mu          sync.Mutex
	cart        *domain.Cart
	total       *domain.CartTotal
	initialized bool
	loading     bool
	pendingOps  int
	mutation    Mutation
	itemLoading map[string]bool
	gates       map[string]*sync.Mutex
	lastErr     error
	retry       RetryState
}

// New constructs a Store enforcing dependency validation.
func New(deps Deps) (*Store, error) {
	if deps.API == nil {
		return nil, errAPIRequired
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notify.Nop{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		api:         deps.API,
		notifier:    notifier,
		logger:      logger,
		itemLoading: make(map[string]bool),
		gates:       make(map[string]*sync.Mutex),
	}, nil
}

// EnsureLoaded triggers the initial load exactly once per session. Repeated
// calls while a load is in flight, or after initialization, are no-ops, so
// screen remounts never stampede the server.
func (s *Store) EnsureLoaded(ctx context.Context) error {
	s.mu.Lock()
	if s.initialized || s.loading {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	return s.Load(ctx)
}

// Load fetches (or lazily creates) the cart and replaces the authoritative
// state wholesale. The most recent successful load always wins.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	s.loading = true
	s.beginLocked(ActionLoad, "")
	s.mu.Unlock()

	cart, err := s.api.FetchCart(ctx)

	s.mu.Lock()
	s.loading = false
	if err != nil {
		s.rejectLocked(Action{Kind: ActionLoad}, err)
		s.mu.Unlock()
		return err
	}
	s.replaceLocked(cart)
	s.initialized = true
	s.fulfilLocked(ActionLoad, "")
	s.mu.Unlock()
	return nil
}

// AddItem issues an add through the adapter. The authoritative cart is not
// speculatively extended with a synthetic line; callers render the pending
// mutation state instead, which avoids duplicate-ID drift.
func (s *Store) AddItem(ctx context.Context, req domain.AddItemRequest) error {
	s.mu.Lock()
	s.beginLocked(ActionAddItem, "")
	s.mu.Unlock()

	cart, err := s.api.AddItem(ctx, req)

	s.mu.Lock()
	if err != nil {
		s.rejectLocked(Action{Kind: ActionAddItem, Add: req}, err)
		s.mu.Unlock()
		s.notifier.Notify(ctx, notify.KindError, "Cart", "Could not add item to cart", notifyDuration)
		return err
	}
	s.replaceLocked(cart)
	s.fulfilLocked(ActionAddItem, "")
	s.mu.Unlock()
	s.notifier.Notify(ctx, notify.KindSuccess, "Cart", "Item added to cart", notifyDuration)
	return nil
}

// UpdateItem edits a line. Edits to distinct lines run concurrently; a second
// edit to the same line blocks until the first settles, so out-of-order
// responses cannot drop an update.
func (s *Store) UpdateItem(ctx context.Context, itemID string, req domain.UpdateItemRequest) error {
	gate := s.itemGate(itemID)
	gate.Lock()
	defer gate.Unlock()

	s.mu.Lock()
	s.beginLocked(ActionUpdateItem, itemID)
	s.itemLoading[itemID] = true
	s.mu.Unlock()

	cart, err := s.api.UpdateItem(ctx, itemID, req)

	s.mu.Lock()
	delete(s.itemLoading, itemID)
	if err != nil {
		s.rejectLocked(Action{Kind: ActionUpdateItem, ItemID: itemID, Update: req}, err)
		s.mu.Unlock()
		s.notifier.Notify(ctx, notify.KindError, "Cart", "Could not update item", notifyDuration)
		return err
	}
	s.replaceLocked(cart)
	s.fulfilLocked(ActionUpdateItem, itemID)
	s.mu.Unlock()
	return nil
}

// RemoveItem deletes a line, serialized against other edits to the same line.
func (s *Store) RemoveItem(ctx context.Context, itemID string) error {
	gate := s.itemGate(itemID)
	gate.Lock()
	defer gate.Unlock()

	s.mu.Lock()
	s.beginLocked(ActionRemoveItem, itemID)
	s.itemLoading[itemID] = true
	s.mu.Unlock()

	cart, err := s.api.RemoveItem(ctx, itemID)

	s.mu.Lock()
	delete(s.itemLoading, itemID)
	if err != nil {
		s.rejectLocked(Action{Kind: ActionRemoveItem, ItemID: itemID}, err)
		s.mu.Unlock()
		s.notifier.Notify(ctx, notify.KindError, "Cart", "Could not remove item", notifyDuration)
		return err
	}
	s.replaceLocked(cart)
	s.fulfilLocked(ActionRemoveItem, itemID)
	s.mu.Unlock()
	s.notifier.Notify(ctx, notify.KindSuccess, "Cart", "Item removed", notifyDuration)
	return nil
}

// Clear empties the cart. The prior cart stays authoritative until the server
// confirms; a failed clear changes nothing visible.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.beginLocked(ActionClear, "")
	s.mu.Unlock()

	cart, err := s.api.ClearCart(ctx)

	s.mu.Lock()
	if err != nil {
		s.rejectLocked(Action{Kind: ActionClear}, err)
		s.mu.Unlock()
		s.notifier.Notify(ctx, notify.KindError, "Cart", "Could not clear cart", notifyDuration)
		return err
	}
	s.replaceLocked(cart)
	s.fulfilLocked(ActionClear, "")
	s.mu.Unlock()
	s.notifier.Notify(ctx, notify.KindSuccess, "Cart", "Cart cleared", notifyDuration)
	return nil
}

// RefreshTotal fetches the server-computed aggregate. Reads do not touch the
// retry state; only mutations are replayable.
func (s *Store) RefreshTotal(ctx context.Context) (domain.CartTotal, error) {
	total, err := s.api.FetchTotal(ctx)
	if err != nil {
		return domain.CartTotal{}, err
	}
	s.mu.Lock()
	copied := total
	s.total = &copied
	s.mu.Unlock()
	return total, nil
}

// Reset discards all session state (logout teardown).
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cart = nil
	s.total = nil
	s.initialized = false
	s.loading = false
	s.pendingOps = 0
	s.mutation = Mutation{}
	s.itemLoading = make(map[string]bool)
	s.gates = make(map[string]*sync.Mutex)
	s.lastErr = nil
	s.retry = RetryState{}
}

// Snapshot returns a deep copy of the authoritative cart. The second return
// is false until the first successful load.
func (s *Store) Snapshot() (domain.Cart, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cart == nil {
		return domain.Cart{}, false
	}
	return s.cart.Clone(), true
}

// Total returns the last fetched server aggregate, if any.
func (s *Store) Total() (domain.CartTotal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.total == nil {
		return domain.CartTotal{}, false
	}
	return *s.total, true
}

// Err returns the currently recorded mutation error, nil when the last
// mutation settled successfully.
func (s *Store) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// LastMutation reports the most recent mutation and its settlement status.
func (s *Store) LastMutation() Mutation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutation
}

// IsInitialized reports whether the first load has succeeded.
func (s *Store) IsInitialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// IsLoading reports whether a full cart load is in flight.
func (s *Store) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// ItemLoading reports whether an edit to the given line is in flight.
func (s *Store) ItemLoading(itemID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.itemLoading[itemID]
}

// RetrySnapshot exposes the retry metadata for the coordinator.
func (s *Store) RetrySnapshot() RetryState {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.retry
	if s.retry.Last != nil {
		action := *s.retry.Last
		state.Last = &action
	}
	return state
}

// ReadyForCheckout is true only when the displayed cart is a server
// acknowledged, non-empty, single-open-vendor cart with nothing in flight and
// no active error.
func (s *Store) ReadyForCheckout() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cart == nil || len(s.cart.Items) == 0 {
		return false
	}
	if s.cart.Partner == nil || !s.cart.Partner.IsOpen {
		return false
	}
	if s.loading || s.pendingOps > 0 || len(s.itemLoading) > 0 {
		return false
	}
	return s.lastErr == nil
}

func (s *Store) itemGate(itemID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	gate, ok := s.gates[itemID]
	if !ok {
		gate = &sync.Mutex{}
		s.gates[itemID] = gate
	}
	return gate
}

func (s *Store) beginLocked(kind ActionKind, itemID string) {
	s.pendingOps++
	s.mutation = Mutation{Kind: kind, Status: StatusPending, ItemID: itemID}
}

// replaceLocked swaps in the server response wholesale. The server cart is
// the only reconciliation source; local state is never merged into it.
func (s *Store) replaceLocked(cart domain.Cart) {
	copied := cart.Clone()
	s.cart = &copied
	s.total = nil
}

func (s *Store) fulfilLocked(kind ActionKind, itemID string) {
	s.pendingOps--
	s.mutation = Mutation{Kind: kind, Status: StatusFulfilled, ItemID: itemID}
	s.lastErr = nil
	s.retry = RetryState{}
}

func (s *Store) rejectLocked(action Action, err error) {
	s.pendingOps--
	s.mutation = Mutation{Kind: action.Kind, Status: StatusRejected, ItemID: action.ItemID}
	s.lastErr = err
	s.retry.Last = &action
	s.logger.Warn("cart mutation rejected",
		zap.String("action", string(action.Kind)),
		zap.String("item_id", action.ItemID),
		zap.Error(err))
}

// bumpRetry increments the attempt counter and returns the new count.
func (s *Store) bumpRetry() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retry.Count++
	return s.retry.Count
}
