package sticky

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/brewline/cartsync/internal/cartstore"
	"github.com/brewline/cartsync/internal/domain"
)

// MergeResult reports the outcome of committing the staging cart into the
// authoritative cart.
type MergeResult struct {
	// Success is true when at least one staged item landed.
	Success bool
	// ItemsCount is the number of items that landed.
	ItemsCount int
	// TotalItems is the number of add attempts issued.
	TotalItems int
	// FailedItems is the number of attempts that failed.
	FailedItems int
}

// Merger converts staged selections into add-item calls against the cart
// store. Staged quantities carry over; notes and customizations do not exist
// at staging time.
type Merger struct {
	store  *cartstore.Store
	cart   *Cart
	logger *zap.Logger
}

// MergerDeps wires the merge operation's collaborators.
type MergerDeps struct {
	Store  *cartstore.Store
	Cart   *Cart
	Logger *zap.Logger
}

var (
	errMergeStoreRequired = errors.New("sticky: cart store is required")
	errMergeCartRequired  = errors.New("sticky: staging cart is required")

	// ErrNothingStaged is returned when the staging cart holds no valid
	// selections to merge.
	ErrNothingStaged = errors.New("sticky: nothing staged to merge")
)

// NewMerger constructs a Merger enforcing dependency validation.
func NewMerger(deps MergerDeps) (*Merger, error) {
	if deps.Store == nil {
		return nil, errMergeStoreRequired
	}
	if deps.Cart == nil {
		return nil, errMergeCartRequired
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Merger{store: deps.Store, cart: deps.Cart, logger: logger}, nil
}

// Merge fans out one add-item call per staged selection and joins on all of
// them settling. Items succeed or fail independently; one failure never rolls
// back another's success. Any success clears the staging cart entirely: the
// batch is committed from the staging side, and failures are surfaced as a
// count rather than re-queued.
func (m *Merger) Merge(ctx context.Context) (MergeResult, error) {
	snap := m.cart.Snapshot()
	if len(snap.Selected) == 0 {
		return MergeResult{}, ErrNothingStaged
	}

	type attempt struct {
		productID string
		quantity  int
	}
	attempts := make([]attempt, 0, len(snap.Selected))
	for _, raw := range snap.Selected {
		productID := strings.TrimSpace(raw)
		if productID == "" {
			m.logger.Warn("dropping staged selection with blank product id")
			continue
		}
		attempts = append(attempts, attempt{productID: productID, quantity: snap.Quantities[raw]})
	}
	if len(attempts) == 0 {
		return MergeResult{}, ErrNothingStaged
	}

	results := make([]error, len(attempts))
	var wg sync.WaitGroup
	for i, a := range attempts {
		wg.Add(1)
		go func(i int, a attempt) {
			defer wg.Done()
			results[i] = m.store.AddItem(ctx, domain.AddItemRequest{
				ProductID: a.productID,
				Quantity:  a.quantity,
			})
		}(i, a)
	}
	wg.Wait()

	result := MergeResult{TotalItems: len(attempts)}
	for i, err := range results {
		if err != nil {
			result.FailedItems++
			m.logger.Warn("staged item failed to merge",
				zap.String("product_id", attempts[i].productID),
				zap.Int("quantity", attempts[i].quantity),
				zap.Error(err))
			continue
		}
		result.ItemsCount++
	}
	result.Success = result.ItemsCount > 0

	if result.Success {
		m.cart.Clear()
	}

	m.logger.Info("staging cart merged",
		zap.Int("attempted", result.TotalItems),
		zap.Int("succeeded", result.ItemsCount),
		zap.Int("failed", result.FailedItems))
	return result, nil
}
