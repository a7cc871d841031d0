package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lherron/graphsync/internal/cli/appctx"
	"github.com/lherron/graphsync/internal/fragment"
	"github.com/lherron/graphsync/internal/render"
	"github.com/lherron/graphsync/internal/syncer"
)

var statusCmd = &cobra.Command{
	Use:   "status <fragment-dir>",
	Short: "Show which fragments the ledger has recorded",
	Long: `Compares the fragment files in the directory with the ledger: applied
files are recorded, pending files will be written by the next ingest, and
missing entries are recorded paths with no file on disk.

Examples:
  graphsync status data/increments
  graphsync status data/increments --output json
`,
	Args: cobra.ExactArgs(1),
	RunE: appctx.WithApp(appctx.LedgerOnly(), runStatus),
}

var (
	statusGlob   string
	statusOutput string
)

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVar(&statusGlob, "glob", "", "Fragment file pattern relative to the directory")
	statusCmd.Flags().StringVar(&statusOutput, "output", "table", "Output format: table, json or yaml")
}

func runStatus(app *appctx.App, cmd *cobra.Command, args []string) error {
	format, err := render.ParseFormat(statusOutput)
	if err != nil {
		return err
	}
	pattern := statusGlob
	if pattern == "" {
		pattern = app.Config.FragmentGlob
	}
	paths, err := fragment.NewStore(args[0], pattern, 1, app.Log).Discover()
	if err != nil {
		return err
	}
	st, err := syncer.LedgerStatus(cmd.Context(), app.Ledger, paths)
	if err != nil {
		return err
	}

	r := render.NewRenderer(cmd.OutOrStdout(), format)
	if r.Structured() {
		return r.Render(st)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Applied: %d\nPending: %d\n", len(st.Applied), len(st.Pending))
	for _, p := range st.Pending {
		fmt.Fprintf(w, "  pending: %s\n", p)
	}
	if len(st.Missing) > 0 {
		fmt.Fprintf(w, "Missing: %d\n", len(st.Missing))
		for _, p := range st.Missing {
			fmt.Fprintf(w, "  missing: %s\n", p)
		}
	}
	return nil
}
