// Command cartsim runs a scripted order flow against a storefront API. When
// CART_API_BASE_URL is unset it starts the embedded in-memory storefront, so
// the whole engine can be exercised offline:
//
//	load -> quick-add staging -> merge -> edit -> injected failure -> retry -> clear
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/brewline/cartsync/internal/cartstore"
	"github.com/brewline/cartsync/internal/di"
	"github.com/brewline/cartsync/internal/domain"
	"github.com/brewline/cartsync/internal/platform/config"
	"github.com/brewline/cartsync/internal/platform/observability"
	"github.com/brewline/cartsync/internal/storefronttest"
	"github.com/brewline/cartsync/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	logger = logger.Named("cartsim")

	var fake *storefronttest.Server
	if os.Getenv("CART_API_BASE_URL") == "" {
		fake = storefronttest.New().WithLogger(logger.Named("storefront"))
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			logger.Fatal("failed to start embedded storefront", zap.Error(err))
		}
		server := &http.Server{Handler: fake.Handler()}
		go func() {
			if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
				logger.Error("embedded storefront stopped", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
		cfg.Client.BaseURL = "http://" + listener.Addr().String()
		cfg.Client.BearerToken = "cartsim-demo-token"
		logger.Info("embedded storefront listening", zap.String("base_url", cfg.Client.BaseURL))
	}

	container, err := di.NewContainer(cfg, di.Options{
		Logger: logger,
		OnAuthRedirect: func(ctx context.Context, status int) {
			logger.Warn("session requires re-authentication", zap.Int("status", status))
		},
	})
	if err != nil {
		logger.Fatal("failed to assemble cart engine", zap.Error(err))
	}
	defer container.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := run(ctx, logger, container, fake); err != nil {
		logger.Fatal("scripted flow failed", zap.Error(err))
	}
}

func run(ctx context.Context, logger *zap.Logger, c *di.Container, fake *storefronttest.Server) error {
	if err := c.Store.EnsureLoaded(ctx); err != nil {
		return fmt.Errorf("initial load: %w", err)
	}
	logSummary(logger, c, "cart loaded")

	// Quick-add flow: stage a few drinks, then commit them in one merge.
	c.Sticky.Increment("p-espresso", 350)
	c.Sticky.Increment("p-espresso", 350)
	c.Sticky.SetQuantity("p-latte", 1, 520)
	staged := c.Sticky.Snapshot()
	logger.Info("staged quick-add selections",
		zap.Strings("products", staged.Selected),
		zap.Int("total_items", staged.TotalItems),
		zap.Int64("total_amount", staged.TotalAmount))

	merged, err := c.Merger.Merge(ctx)
	if err != nil {
		return fmt.Errorf("merge staging cart: %w", err)
	}
	logger.Info("merge settled",
		zap.Bool("success", merged.Success),
		zap.Int("items", merged.ItemsCount),
		zap.Int("failed", merged.FailedItems))
	logSummary(logger, c, "after merge")

	cart, ok := c.Store.Snapshot()
	if !ok || len(cart.Items) == 0 {
		return fmt.Errorf("expected items after merge")
	}

	// Edit the first line, with an injected server failure and a retry.
	target := cart.Items[0]
	if fake != nil {
		fake.FailNext(http.StatusInternalServerError)
	}
	err = c.Store.UpdateItem(ctx, target.ID, domain.UpdateItemRequest{Quantity: 3})
	if err != nil {
		kind := cartstore.Classify(err)
		logger.Warn("update rejected",
			zap.String("kind", string(kind)),
			zap.String("guidance", cartstore.Guidance(kind)),
			zap.Bool("retryable", transport.IsRetryable(err)))
		if retryErr := c.Retry.Retry(ctx); retryErr != nil {
			return fmt.Errorf("retry after update failure: %w", retryErr)
		}
		logger.Info("retry resynchronized the cart")
	}
	logSummary(logger, c, "after edit")

	total, err := c.Store.RefreshTotal(ctx)
	if err != nil {
		return fmt.Errorf("refresh total: %w", err)
	}
	logger.Info("server total",
		zap.Int64("subtotal", total.Subtotal),
		zap.String("display", c.Formatter.Amount(total.Total)),
		zap.Int("item_count", total.ItemCount),
		zap.Bool("ready_for_checkout", c.Store.ReadyForCheckout()))

	if err := c.Store.Clear(ctx); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	logSummary(logger, c, "after clear")
	return nil
}

func logSummary(logger *zap.Logger, c *di.Container, stage string) {
	cart, ok := c.Store.Snapshot()
	if !ok {
		logger.Info(stage, zap.Bool("loaded", false))
		return
	}
	summary := c.Formatter.Summarize(cart)
	logger.Info(stage,
		zap.Int("items", summary.ItemCount),
		zap.String("subtotal", summary.Display),
		zap.String("partner", summary.PartnerName),
		zap.Bool("partner_open", summary.PartnerOpen))
}
