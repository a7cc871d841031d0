package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/lherron/graphsync/internal/cli/appctx"
	"github.com/lherron/graphsync/internal/fragment"
	"github.com/lherron/graphsync/internal/snapshot"
)

var splitCmd = &cobra.Command{
	Use:   "split <snapshot-file>",
	Short: "Split an export or backup into per-post fragments",
	Long: `Reads a snapshot and writes one analysis_<post>.json fragment per post
(the post, its relationships and their endpoints) plus
analysis_base_structure.json with everything no post fragment covers.

Examples:
  graphsync split data/processed/graph_exports/graph_export_20250101T000000Z.json
  graphsync split backup.json.zst --out data/increments
`,
	Args: cobra.ExactArgs(1),
	RunE: appctx.WithApp(appctx.ConfigOnly(), runSplit),
}

var splitOut string

func init() {
	rootCmd.AddCommand(splitCmd)

	splitCmd.Flags().StringVarP(&splitOut, "out", "o", filepath.Join("data", "processed", "graph_increments"), "Directory for the fragment files")
}

func runSplit(app *appctx.App, cmd *cobra.Command, args []string) error {
	s, err := snapshot.Load(args[0])
	if err != nil {
		return err
	}
	frags := snapshot.Split(s, time.Now())
	store := fragment.NewStore(splitOut, "", 1, app.Log)
	for _, f := range frags {
		if err := store.Write(f); err != nil {
			return err
		}
	}
	app.Log.Info("split snapshot", "source", args[0], "fragments", len(frags), "out", splitOut)
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d fragments to %s\n", len(frags), splitOut)
	return nil
}
