// Command ledgerctl runs operator tasks against the PostgreSQL ledger:
// applying the schema and inspecting or replaying recorded processor events.
package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/MrJamesThe3rd/donorledger/internal/config"
	"github.com/MrJamesThe3rd/donorledger/internal/database"
	"github.com/MrJamesThe3rd/donorledger/internal/events"
	"github.com/MrJamesThe3rd/donorledger/internal/logging"
	"github.com/MrJamesThe3rd/donorledger/internal/processor"
	"github.com/MrJamesThe3rd/donorledger/internal/reconcile"
	"github.com/MrJamesThe3rd/donorledger/internal/store"
)

var Version = "dev"

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Operate the donation ledger",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(eventsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env is what every subcommand needs: configuration and an open database.
type env struct {
	cfg *config.Config
	db  *sql.DB
}

func openEnv() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if cfg.Store != config.StorePostgres {
		return nil, fmt.Errorf("ledgerctl needs LEDGER_STORE=%s, got %q", config.StorePostgres, cfg.Store)
	}

	logger, _ := logging.New(logging.Options{Level: cfg.Log.Level, Format: "text"})
	slog.SetDefault(logger)

	db, err := database.New(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &env{cfg: cfg, db: db}, nil
}

func (e *env) Close() error {
	return e.db.Close()
}

func (e *env) eventService() *events.Service {
	ledger := store.New(e.db)

	var lookup reconcile.Lookup
	if e.cfg.Stripe.SecretKey != "" {
		lookup = processor.New(e.cfg.Stripe.SecretKey, e.cfg.Stripe.LookupCacheTTL, nil)
	}

	return events.NewService(ledger, reconcile.NewDispatcher(ledger, lookup, slog.Default()))
}
