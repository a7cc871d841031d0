package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lherron/graphsync/internal/canon"
	"github.com/lherron/graphsync/internal/cli/appctx"
	"github.com/lherron/graphsync/internal/fragment"
	"github.com/lherron/graphsync/internal/render"
)

var canonicalizeCmd = &cobra.Command{
	Use:   "canonicalize <fragment-dir>",
	Short: "Preview or rewrite fragments with canonical ids",
	Long: `Runs entity resolution over every fragment in the directory without
touching the graph. By default it lists the id remappings and the files
that would change. --diff prints a unified diff per changed file and
--write rewrites the files in place.

Rewritten files are new content: the ledger treats them by path, so files
that were already applied are not re-applied.

Examples:
  graphsync canonicalize data/increments
  graphsync canonicalize data/increments --diff | less
  graphsync canonicalize data/increments --write
`,
	Args: cobra.ExactArgs(1),
	RunE: appctx.WithApp(appctx.ConfigOnly(), runCanonicalize),
}

var (
	canonicalizeWrite bool
	canonicalizeDiff  bool
	canonicalizeGlob  string
	canonicalizeJSON  bool
)

func init() {
	rootCmd.AddCommand(canonicalizeCmd)

	canonicalizeCmd.Flags().BoolVar(&canonicalizeWrite, "write", false, "Rewrite changed fragment files in place")
	canonicalizeCmd.Flags().BoolVar(&canonicalizeDiff, "diff", false, "Print a unified diff for each changed file")
	canonicalizeCmd.Flags().StringVar(&canonicalizeGlob, "glob", "", "Fragment file pattern relative to the directory")
	canonicalizeCmd.Flags().BoolVar(&canonicalizeJSON, "json", false, "Output remappings, changed files and notices as JSON")
}

type canonicalizeResult struct {
	Remapped []canon.Remap   `json:"remapped"`
	Changed  []string        `json:"changed"`
	Written  bool            `json:"written"`
	Notices  []canon.Notice  `json:"notices,omitempty"`
	Failed   []failedSummary `json:"failed,omitempty"`
}

type failedSummary struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

func runCanonicalize(app *appctx.App, cmd *cobra.Command, args []string) error {
	pattern := canonicalizeGlob
	if pattern == "" {
		pattern = app.Config.FragmentGlob
	}
	store := fragment.NewStore(args[0], pattern, app.Config.Workers, app.Log)
	loaded, err := store.LoadAll(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to load fragments: %w", err)
	}

	res := canon.Canonicalize(loaded.Fragments, canon.Options{Log: app.Log})
	changed, err := canon.Changed(loaded.Fragments, res.Fragments)
	if err != nil {
		return err
	}

	out := canonicalizeResult{Remapped: res.Mapping.Changed(), Notices: res.Notices}
	for _, f := range loaded.Failures {
		out.Failed = append(out.Failed, failedSummary{Path: f.Path, Error: f.Err.Error()})
	}
	before := make(map[string]*fragment.Fragment, len(loaded.Fragments))
	for _, f := range loaded.Fragments {
		before[f.Path] = f
	}
	for _, f := range changed {
		out.Changed = append(out.Changed, f.Path)
		if canonicalizeDiff && !canonicalizeJSON {
			diff, err := canon.Diff(before[f.Path], f)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), diff)
		}
	}

	if canonicalizeWrite {
		for _, f := range changed {
			if err := store.Write(f); err != nil {
				return err
			}
		}
		out.Written = true
		app.Log.Info("rewrote fragments", "count", len(changed))
	}

	if canonicalizeJSON {
		return render.RenderJSON(cmd.OutOrStdout(), out)
	}
	if canonicalizeDiff {
		return nil
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Remapped ids: %d\n", len(out.Remapped))
	for _, r := range out.Remapped {
		fmt.Fprintf(w, "  %s -> %s\n", r.From, r.To)
	}
	verb := "would change"
	if out.Written {
		verb = "rewritten"
	}
	fmt.Fprintf(w, "Files %s: %d\n", verb, len(out.Changed))
	for _, p := range out.Changed {
		fmt.Fprintf(w, "  %s\n", p)
	}
	for _, f := range out.Failed {
		fmt.Fprintf(w, "  failed: %s: %s\n", f.Path, f.Error)
	}
	if n := res.CountNotices(canon.NoticeCollision); n > 0 {
		fmt.Fprintf(w, "Collisions: %d (see log)\n", n)
	}
	return nil
}
