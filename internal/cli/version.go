package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lherron/graphsync/internal/render"
)

var (
	// Version information (set by build flags)
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Displays version, commit, and build date information.`,
	RunE:  runVersion,
}

var versionJSON bool

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "Output as JSON")
}

func runVersion(cmd *cobra.Command, args []string) error {
	if versionJSON {
		var commands []string
		for _, c := range rootCmd.Commands() {
			commands = append(commands, c.Name())
		}
		return render.RenderJSON(cmd.OutOrStdout(), map[string]any{
			"version":            Version,
			"commit":             GitCommit,
			"build_date":         BuildDate,
			"supported_commands": commands,
			"backends":           []string{"neo4j", "sqlite"},
			"ledger_backends":    []string{"file", "bolt"},
		})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "graphsync version %s\n", Version)
	fmt.Fprintf(cmd.OutOrStdout(), "  commit: %s\n", GitCommit)
	fmt.Fprintf(cmd.OutOrStdout(), "  built:  %s\n", BuildDate)
	return nil
}
