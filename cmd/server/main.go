package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marlonbarreto-git/warranty-checkout/internal/checkout"
	"github.com/marlonbarreto-git/warranty-checkout/internal/config"
	"github.com/marlonbarreto-git/warranty-checkout/internal/handler"
	"github.com/marlonbarreto-git/warranty-checkout/internal/health"
	"github.com/marlonbarreto-git/warranty-checkout/internal/notify"
	"github.com/marlonbarreto-git/warranty-checkout/internal/processor"
	"github.com/marlonbarreto-git/warranty-checkout/internal/store"
	"github.com/marlonbarreto-git/warranty-checkout/internal/vehicle"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server_exited", "error", err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	policy := processor.DefaultRetryPolicy()
	card, bnpl := providers(cfg)
	card = processor.WithRetry(card, policy)
	if bnpl != nil {
		bnpl = processor.WithRetry(bnpl, policy)
	}

	var attempts store.Attempts = store.NewMemoryAttempts()
	if cfg.BoltPath != "" {
		bdb, err := store.OpenBolt(cfg.BoltPath)
		if err != nil {
			slog.Warn("bolt_unavailable_using_memory", "path", cfg.BoltPath, "error", err.Error())
		} else {
			defer bdb.Close()
			attempts = bdb
		}
	}

	var orders store.Orders = store.NewMemoryOrders()
	if cfg.DatabaseURL != "" {
		pg, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pg.Close()
		orders = pg
	} else {
		slog.Warn("orders_in_memory", "reason", "DATABASE_URL not set")
	}

	var notifier checkout.Notifier = notify.LogDispatcher{}
	if cfg.ResendAPIKey != "" {
		notifier = notify.NewResendDispatcher(cfg.ResendAPIKey, cfg.EmailFrom)
	}

	router := checkout.New(checkout.Deps{
		Card:     card,
		BNPL:     bnpl,
		Monitor:  health.NewMonitor(),
		Attempts: attempts,
		Orders:   orders,
		Notifier: notifier,
	}, checkout.Options{
		BaseURL:             cfg.BaseURL,
		AllowAmountOverride: cfg.AllowAmountOverride,
	})

	opts := handler.Options{
		BNPLSecret:          cfg.BumperSecretKey,
		StripeWebhookSecret: cfg.StripeWebhookSecret,
		Demo:                cfg.DemoProviders,
	}
	if cfg.DVLAAPIKey != "" {
		opts.Vehicles = vehicle.NewClient(cfg.DVLAAPIURL, cfg.DVLAAPIKey)
	}

	mux := http.NewServeMux()
	handler.New(router, opts).RegisterRoutes(mux)

	limiter := handler.NewRateLimiter(config.RateLimitPerSecond, config.RateLimitBurst)
	go limiter.Run(ctx)

	srv := &http.Server{
		Addr:              cfg.Port,
		Handler:           limiter.Middleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      checkoutWriteTimeout(policy),
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server_starting",
			"port", cfg.Port,
			"card_provider", card.Name(),
			"bnpl_provider", providerName(bnpl),
			"demo", cfg.DemoProviders,
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("server_stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// checkoutWriteTimeout covers a BNPL attempt and its card fallback both
// running to the end of their retry budgets, plus time to write the response.
func checkoutWriteTimeout(policy processor.RetryPolicy) time.Duration {
	return 2*policy.WorstCase() + 10*time.Second
}

// providers picks real providers when credentials are present and simulated
// ones in demo mode. Outside demo mode a missing card key leaves Stripe
// unconfigured, so pay-in-full checkouts fail visibly. A missing BNPL provider
// makes every BNPL checkout fall back to pay-in-full.
func providers(cfg config.Config) (card, bnpl processor.Processor) {
	if cfg.DemoProviders {
		return processor.NewDemoCard(cfg.BaseURL), processor.NewDemoBNPL(cfg.BaseURL)
	}

	if cfg.StripeSecretKey != "" {
		card = processor.NewStripeCard(cfg.StripeSecretKey)
	} else {
		slog.Error("card_provider_unconfigured", "reason", "STRIPE_SECRET_KEY not set")
		card = processor.NewStripeCard("")
	}

	if cfg.BumperAPIKey != "" && cfg.BumperSecretKey != "" {
		bnpl = processor.NewBumper(processor.BumperConfig{
			BaseURL:   cfg.BumperAPIURL,
			APIKey:    cfg.BumperAPIKey,
			SecretKey: cfg.BumperSecretKey,
		})
	} else {
		slog.Warn("bnpl_provider_missing", "reason", "BUMPER_API_KEY or BUMPER_SECRET_KEY not set")
	}
	return card, bnpl
}

func providerName(p processor.Processor) string {
	if p == nil {
		return "none"
	}
	return p.Name()
}
