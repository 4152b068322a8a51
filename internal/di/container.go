// Package di assembles the cart engine for a session: transport, store,
// retry coordinator, staging cart, and merge operation, wired from runtime
// configuration.
package di

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/brewline/cartsync/internal/cartstore"
	"github.com/brewline/cartsync/internal/domain"
	"github.com/brewline/cartsync/internal/notify"
	"github.com/brewline/cartsync/internal/platform/config"
	"github.com/brewline/cartsync/internal/sticky"
	"github.com/brewline/cartsync/internal/transport"
)

// Container wires one session's cart engine. Create it on sign-in, discard
// it on logout.
type Container struct {
	Config    config.Config
	Transport *transport.Client
	Store     *cartstore.Store
	Retry     *cartstore.Coordinator
	Sticky    *sticky.Cart
	Merger    *sticky.Merger
	Formatter domain.Formatter
}

// Options carries the per-session collaborators the container cannot derive
// from configuration.
type Options struct {
	Tokens         transport.TokenSource
	Notifier       notify.Notifier
	Logger         *zap.Logger
	OnAuthRedirect transport.AuthRedirectFunc
}

// NewContainer constructs the runtime dependencies for one session.
func NewContainer(cfg config.Config, opts Options) (*Container, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tokens := opts.Tokens
	if tokens == nil {
		tokens = transport.NewStaticTokenSource(cfg.Client.BearerToken)
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.NewLog(logger.Named("notify"))
	}

	client, err := transport.NewClient(cfg.Client.BaseURL, tokens,
		transport.WithLogger(logger.Named("transport")),
		transport.WithRequestTimeout(cfg.Client.RequestTimeout),
		transport.WithAuthRedirect(opts.OnAuthRedirect),
	)
	if err != nil {
		return nil, fmt.Errorf("build transport client: %w", err)
	}

	store, err := cartstore.New(cartstore.Deps{
		API:      client,
		Notifier: notifier,
		Logger:   logger.Named("cartstore"),
	})
	if err != nil {
		return nil, fmt.Errorf("build cart store: %w", err)
	}

	coordinator, err := cartstore.NewCoordinator(cartstore.CoordinatorDeps{
		Store:           store,
		Logger:          logger.Named("retry"),
		MaxAutoAttempts: cfg.Retry.MaxAutoAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("build retry coordinator: %w", err)
	}

	staging := sticky.NewCart()
	merger, err := sticky.NewMerger(sticky.MergerDeps{
		Store:  store,
		Cart:   staging,
		Logger: logger.Named("sticky"),
	})
	if err != nil {
		return nil, fmt.Errorf("build merge operation: %w", err)
	}

	return &Container{
		Config:    cfg,
		Transport: client,
		Store:     store,
		Retry:     coordinator,
		Sticky:    staging,
		Merger:    merger,
		Formatter: domain.NewFormatter(cfg.Display.Locale, cfg.Display.CurrencySymbol),
	}, nil
}

// Close tears the session down, discarding all cart state.
func (c *Container) Close() {
	if c == nil || c.Store == nil {
		return
	}
	c.Store.Reset()
	c.Sticky.Clear()
}
