package cartstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/brewline/cartsync/internal/transport"
)

// Coordinator replays the store's last failed mutation with exponential
// backoff. Retries are caller-driven: a failed retry records the new failure
// but never schedules itself again.
type Coordinator struct {
	store    *Store
	logger   *zap.Logger
	delay    func(attempt int) time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
	maxAuto  int
	inFlight atomic.Bool
	retries  metric.Int64Counter
}

// CoordinatorDeps wires the coordinator's collaborators. Delay and Sleep
// default to the transport backoff curve and a timer-based wait; tests inject
// instant variants.
type CoordinatorDeps struct {
	Store           *Store
	Logger          *zap.Logger
	Delay           func(attempt int) time.Duration
	Sleep           func(ctx context.Context, d time.Duration) error
	MaxAutoAttempts int
}

const defaultMaxAutoAttempts = 3

var errStoreRequired = errors.New("cartstore: store is required")

// NewCoordinator constructs a Coordinator enforcing dependency validation.
func NewCoordinator(deps CoordinatorDeps) (*Coordinator, error) {
	if deps.Store == nil {
		return nil, errStoreRequired
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	delay := deps.Delay
	if delay == nil {
		delay = transport.RetryDelay
	}
	sleep := deps.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	maxAuto := deps.MaxAutoAttempts
	if maxAuto <= 0 {
		maxAuto = defaultMaxAutoAttempts
	}

	meter := otel.Meter("cartsync/retry")
	retries, err := meter.Int64Counter("cart.retries",
		metric.WithDescription("Retry attempts replayed against the cart API"))
	if err != nil {
		return nil, fmt.Errorf("cartstore: init retry counter: %w", err)
	}

	return &Coordinator{
		store:   deps.Store,
		logger:  logger,
		delay:   delay,
		sleep:   sleep,
		maxAuto: maxAuto,
		retries: retries,
	}, nil
}

// Retry replays the last failed mutation once. It is a no-op when there is
// nothing recorded, the recorded error is not retryable, or another retry is
// already in flight. Item-level actions are not replayed verbatim: the store
// resynchronizes through a full load instead, because the original call may
// have landed server-side and a literal replay would double-apply it.
func (c *Coordinator) Retry(ctx context.Context) error {
	return c.retry(ctx, 0)
}

// AutoRetry behaves like Retry but self-limits to the configured cumulative
// attempt cap, stopping silently once the cap is reached.
func (c *Coordinator) AutoRetry(ctx context.Context) error {
	return c.retry(ctx, c.maxAuto)
}

func (c *Coordinator) retry(ctx context.Context, limit int) error {
	state := c.store.RetrySnapshot()
	if state.Last == nil {
		return nil
	}
	if !transport.IsRetryable(c.store.Err()) {
		return nil
	}
	if limit > 0 && state.Count >= limit {
		return nil
	}
	if !c.inFlight.CompareAndSwap(false, true) {
		return nil
	}
	defer c.inFlight.Store(false)

	attempt := c.store.bumpRetry()
	wait := c.delay(attempt)
	c.logger.Info("retrying cart mutation",
		zap.String("action", string(state.Last.Kind)),
		zap.Int("attempt", attempt),
		zap.Duration("backoff", wait))
	c.retries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", string(state.Last.Kind)),
		attribute.Int("attempt", attempt)))

	if err := c.sleep(ctx, wait); err != nil {
		return err
	}

	var err error
	switch {
	case state.Last.Kind == ActionClear:
		err = c.store.Clear(ctx)
	case state.Last.Kind.itemLevel(), state.Last.Kind == ActionLoad:
		// Replay means resynchronize: the latest authoritative read wins.
		err = c.store.Load(ctx)
	default:
		err = c.store.Load(ctx)
	}
	if err != nil {
		c.logger.Warn("retry failed",
			zap.String("action", string(state.Last.Kind)),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ErrorKind buckets an error for user-facing guidance text. It never affects
// retry eligibility; that is decided solely by transport.IsRetryable.
type ErrorKind string

const (
	// KindNetwork covers connectivity failures.
	KindNetwork ErrorKind = "network"
	// KindTimeout covers deadline failures.
	KindTimeout ErrorKind = "timeout"
	// KindServer covers 5xx-class failures.
	KindServer ErrorKind = "server"
	// KindValidation covers locally rejected input.
	KindValidation ErrorKind = "validation"
	// KindAuth covers 401/403 failures handled by the session layer.
	KindAuth ErrorKind = "auth"
	// KindUnknown covers everything else.
	KindUnknown ErrorKind = "unknown"
)

// Classify buckets an error by transport code first, message keywords second.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	if te, ok := transport.AsError(err); ok {
		switch te.Code {
		case transport.CodeNetwork:
			return KindNetwork
		case transport.CodeTimeout:
			return KindTimeout
		case transport.CodeServer, transport.CodeServiceUnavailable:
			return KindServer
		case transport.CodeValidation:
			return KindValidation
		case transport.CodeUnauthorized, transport.CodeForbidden:
			return KindAuth
		}
	}
	message := strings.ToLower(err.Error())
	switch {
	case strings.Contains(message, "timeout"), strings.Contains(message, "deadline"):
		return KindTimeout
	case strings.Contains(message, "network"), strings.Contains(message, "connection"):
		return KindNetwork
	case strings.Contains(message, "unauthorized"), strings.Contains(message, "forbidden"):
		return KindAuth
	}
	return KindUnknown
}

// Guidance returns the user-facing hint for an error bucket.
func Guidance(kind ErrorKind) string {
	switch kind {
	case KindNetwork:
		return "Check your connection and try again."
	case KindTimeout:
		return "The cafe is taking too long to respond. Try again in a moment."
	case KindServer:
		return "Something went wrong on our side. Try again shortly."
	case KindValidation:
		return "That change is not valid. Adjust the item and retry."
	case KindAuth:
		return "Your session has expired. Sign in again to continue."
	default:
		return "Something unexpected happened. Try again."
	}
}
