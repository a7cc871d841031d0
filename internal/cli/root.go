package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/lherron/graphsync/internal/graphstore"
	"github.com/lherron/graphsync/internal/syncer"
)

var rootCmd = &cobra.Command{
	Use:   "graphsync",
	Short: "Resolve entity fragments and sync them into a graph database",
	Long: `graphsync loads JSON fragment files describing entities and their
relationships, resolves duplicate entities to one canonical id, and writes
the result idempotently into Neo4j (or a local SQLite graph). Fragments that
were applied before are recorded in a ledger and skipped on later runs.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Exit codes.
const (
	ExitOK               = 0
	ExitError            = 1
	ExitStoreUnavailable = 2
)

// Execute runs the root command
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// ExitCode maps an Execute error to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, syncer.ErrStoreUnavailable), errors.Is(err, graphstore.ErrUnavailable):
		return ExitStoreUnavailable
	default:
		return ExitError
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to YAML config file (default ~/.config/graphsync/config.yaml)")
	flags.String("backend", "", "Graph backend: neo4j or sqlite (overrides GRAPHSYNC_BACKEND)")
	flags.String("db", "", "Path to SQLite graph database; implies --backend sqlite")
	flags.String("ledger", "", "Path to applied-fragment ledger (.db selects the bolt backend)")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.String("log-mode", "", "Log encoding: development or production")
}
