package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lherron/graphsync/internal/cli/appctx"
	"github.com/lherron/graphsync/internal/graphstore"
	"github.com/lherron/graphsync/internal/render"
	"github.com/lherron/graphsync/internal/syncer"
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove orphaned unknown nodes",
	Long: `Lists nodes that have no relationships and no usable identity (a missing
or "unknown" entity_type, or a missing or "Unknown" name). With --apply they
are deleted.

Examples:
  graphsync prune
  graphsync prune --apply
`,
	Args: cobra.NoArgs,
	RunE: appctx.WithApp(appctx.DefaultOptions(), runPrune),
}

var (
	pruneApply  bool
	pruneOutput string
)

func init() {
	rootCmd.AddCommand(pruneCmd)

	pruneCmd.Flags().BoolVar(&pruneApply, "apply", false, "Delete the listed nodes")
	pruneCmd.Flags().StringVar(&pruneOutput, "output", "table", "Output format: table, json or yaml")
}

func runPrune(app *appctx.App, cmd *cobra.Command, args []string) error {
	format, err := render.ParseFormat(pruneOutput)
	if err != nil {
		return err
	}
	nodes, err := app.Engine(syncer.Options{}).Prune(cmd.Context(), pruneApply)
	if err != nil {
		return err
	}

	r := render.NewRenderer(cmd.OutOrStdout(), format)
	if r.Structured() {
		return r.Render(struct {
			Deleted bool              `json:"deleted"`
			Nodes   []graphstore.Node `json:"nodes"`
		}{pruneApply, nodes})
	}

	rows := make([][]string, 0, len(nodes))
	for _, n := range nodes {
		et, _ := n.Properties["entity_type"].(string)
		name, _ := n.Properties["name"].(string)
		rows = append(rows, []string{n.ID, string(n.Label), et, name})
	}
	if err := render.Table(cmd.OutOrStdout(), []string{"ID", "LABEL", "ENTITY_TYPE", "NAME"}, rows); err != nil {
		return err
	}
	if pruneApply {
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d orphaned unknown nodes\n", len(nodes))
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "%d orphaned unknown nodes (use --apply to delete)\n", len(nodes))
	}
	return nil
}
