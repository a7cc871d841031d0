// Package appctx provides a shared bootstrap helper for CLI commands.
// It centralizes config loading, logger construction, and opening the graph
// store and ledger to reduce boilerplate across commands.
package appctx

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lherron/graphsync/internal/config"
	"github.com/lherron/graphsync/internal/graphstore"
	"github.com/lherron/graphsync/internal/graphstore/neo4jstore"
	"github.com/lherron/graphsync/internal/graphstore/sqlitestore"
	"github.com/lherron/graphsync/internal/ledger"
	"github.com/lherron/graphsync/internal/logger"
	"github.com/lherron/graphsync/internal/syncer"
)

// App holds the shared application context for commands.
type App struct {
	// Config is the loaded configuration with flag overrides applied
	Config *config.Config

	Log *logger.Logger

	// Store is the opened graph store (nil if NeedsStore is false)
	Store graphstore.Store

	// Ledger is the opened ledger (nil if NeedsLedger is false)
	Ledger ledger.Store
}

// Close releases resources held by the App.
// Safe to call multiple times.
func (a *App) Close() {
	if a.Ledger != nil {
		a.Ledger.Close()
		a.Ledger = nil
	}
	if a.Store != nil {
		a.Store.Close(context.Background())
		a.Store = nil
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}

// Engine returns a sync engine over the app's store and ledger, with backup
// and export directories taken from the config.
func (a *App) Engine(opts syncer.Options) *syncer.Engine {
	if opts.BackupDir == "" {
		opts.BackupDir = a.Config.BackupDir
	}
	if opts.ExportDir == "" {
		opts.ExportDir = a.Config.ExportDir
	}
	opts.CompressBackups = opts.CompressBackups || a.Config.CompressBackups
	return syncer.New(a.Store, a.Ledger, opts, a.Log)
}

// Options configures the bootstrap behavior.
type Options struct {
	// NeedsStore indicates whether to open the graph store.
	NeedsStore bool

	// NeedsLedger indicates whether to open the applied-fragment ledger.
	NeedsLedger bool
}

// DefaultOptions returns default options (store required, no ledger).
func DefaultOptions() Options {
	return Options{NeedsStore: true}
}

// WithLedger returns options that require both store and ledger.
func WithLedger() Options {
	return Options{NeedsStore: true, NeedsLedger: true}
}

// LedgerOnly returns options that open the ledger but not the store.
func LedgerOnly() Options {
	return Options{NeedsLedger: true}
}

// ConfigOnly returns options that only load configuration and the logger.
func ConfigOnly() Options {
	return Options{}
}

// RunFunc is the signature for command run functions.
type RunFunc func(app *App, cmd *cobra.Command, args []string) error

// WithApp wraps a command's run function with shared bootstrap logic.
// Store and ledger are closed automatically when the wrapped function returns.
func WithApp(opts Options, fn RunFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		app, err := Bootstrap(cmd, opts)
		if err != nil {
			return err
		}
		defer app.Close()

		return fn(app, cmd, args)
	}
}

// Bootstrap initializes the App according to the given options.
// Callers are responsible for calling App.Close() when done.
func Bootstrap(cmd *cobra.Command, opts Options) (*App, error) {
	cfg, err := config.Load(flagValue(cmd, "config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.LogMode, cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	app := &App{Config: cfg, Log: log}

	if opts.NeedsStore {
		store, err := OpenStore(cmd.Context(), cfg, log)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.Store = store
	}

	if opts.NeedsLedger {
		led, err := ledger.Open(cfg.LedgerBackend, cfg.LedgerPath)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to open ledger: %w", err)
		}
		app.Ledger = led
	}

	return app, nil
}

// OpenStore opens the configured graph backend.
func OpenStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (graphstore.Store, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	switch cfg.Backend {
	case config.BackendSQLite:
		store, err := sqlitestore.Open(ctx, cfg.SQLitePath, log)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store %s: %w", cfg.SQLitePath, err)
		}
		return store, nil
	case config.BackendNeo4j:
		store, err := neo4jstore.Open(ctx, cfg.Neo4j, log)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to neo4j: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("invalid backend %q", cfg.Backend)
	}
}

// applyFlags overrides config values with global flags that were set.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	if v := flagValue(cmd, "backend"); v != "" {
		cfg.Backend = strings.ToLower(v)
	}
	if v := flagValue(cmd, "db"); v != "" {
		cfg.SQLitePath = v
		if flagValue(cmd, "backend") == "" {
			cfg.Backend = config.BackendSQLite
		}
	}
	if v := flagValue(cmd, "ledger"); v != "" {
		cfg.LedgerPath = v
		if strings.HasSuffix(v, ".db") {
			cfg.LedgerBackend = config.LedgerBolt
		}
	}
	if v := flagValue(cmd, "log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v := flagValue(cmd, "log-mode"); v != "" {
		cfg.LogMode = v
	}
}

func flagValue(cmd *cobra.Command, name string) string {
	if f := cmd.Flag(name); f != nil {
		return f.Value.String()
	}
	return ""
}
