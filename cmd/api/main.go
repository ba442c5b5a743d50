package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/MrJamesThe3rd/donorledger/internal/checkout"
	"github.com/MrJamesThe3rd/donorledger/internal/config"
	"github.com/MrJamesThe3rd/donorledger/internal/database"
	"github.com/MrJamesThe3rd/donorledger/internal/events"
	ledgerHttp "github.com/MrJamesThe3rd/donorledger/internal/http"
	checkoutHandler "github.com/MrJamesThe3rd/donorledger/internal/http/checkout"
	eventsHandler "github.com/MrJamesThe3rd/donorledger/internal/http/events"
	ledgerHandler "github.com/MrJamesThe3rd/donorledger/internal/http/ledger"
	webhookHandler "github.com/MrJamesThe3rd/donorledger/internal/http/webhook"
	"github.com/MrJamesThe3rd/donorledger/internal/logging"
	"github.com/MrJamesThe3rd/donorledger/internal/pledge"
	"github.com/MrJamesThe3rd/donorledger/internal/processor"
	"github.com/MrJamesThe3rd/donorledger/internal/reconcile"
	"github.com/MrJamesThe3rd/donorledger/internal/store"
	"github.com/MrJamesThe3rd/donorledger/internal/store/memory"
	"github.com/MrJamesThe3rd/donorledger/internal/tracing"
	"github.com/MrJamesThe3rd/donorledger/internal/transaction"
)

// ledgerStore is satisfied by both the PostgreSQL and the in-memory store.
type ledgerStore interface {
	reconcile.Repository
	checkout.Repository
	events.Repository
	transaction.Repository
	pledge.Repository
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, logCloser := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	defer logCloser.Close()

	slog.SetDefault(logger.With("app", cfg.App.Name))

	if err := run(cfg); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, tracing.Options{
		Enabled:     cfg.Otel.Enabled,
		Endpoint:    cfg.Otel.Endpoint,
		ServiceName: cfg.App.Name,
	})
	if err != nil {
		return fmt.Errorf("initialising tracing: %w", err)
	}

	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			slog.Error("failed to flush traces", "error", err)
		}
	}()

	ledger, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	var lookup reconcile.Lookup
	if cfg.Stripe.SecretKey != "" {
		lookup = processor.New(cfg.Stripe.SecretKey, cfg.Stripe.LookupCacheTTL, nil)
	} else {
		slog.Warn("STRIPE_SECRET_KEY not set, payment intent lookups disabled")
	}

	var (
		dispatcher         = reconcile.NewDispatcher(ledger, lookup, slog.Default())
		eventService       = events.NewService(ledger, dispatcher)
		checkoutService    = checkout.NewService(ledger)
		transactionService = transaction.NewService(ledger)
		pledgeService      = pledge.NewService(ledger)
	)

	var (
		webhookH  = webhookHandler.NewHandler(eventService, cfg.Stripe.WebhookSecret)
		checkoutH = checkoutHandler.NewHandler(checkoutService)
		ledgerH   = ledgerHandler.NewHandler(transactionService, pledgeService)
		eventsH   = eventsHandler.NewHandler(eventService)
	)

	router := ledgerHttp.New(webhookH, checkoutH, ledgerH, eventsH, cfg.Server.CORSOrigins)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      http.TimeoutHandler(router, cfg.Server.Timeout, "request timed out"),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout + 5*time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		slog.Info("starting server", "addr", srv.Addr, "store", cfg.Store)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.Timeout)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg *config.Config) (ledgerStore, func(), error) {
	if cfg.Store == config.StoreMemory {
		slog.Warn("using in-memory ledger, data is lost on restart")
		return memory.New(), func() {}, nil
	}

	db, err := database.New(cfg.ConnectionString())
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to database: %w", err)
	}

	if cfg.DB.Migrate {
		if err := database.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
	}

	return store.New(db), func() { db.Close() }, nil
}
