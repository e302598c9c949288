package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fluxr/fluxr/internal/cli/appctx"
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
	Args:  cobra.NoArgs,
	RunE:  appctx.WithApp(appctx.ConfigOnly(), runVersion),
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

type versionInfo struct {
	Version   string   `json:"version" yaml:"version"`
	Commit    string   `json:"commit" yaml:"commit"`
	BuildDate string   `json:"build_date" yaml:"build_date"`
	Formats   []string `json:"supported_formats" yaml:"supported_formats"`
	Columns   []string `json:"columns" yaml:"columns"`
}

func runVersion(app *appctx.App, cmd *cobra.Command, args []string) error {
	if app.Renderer.Structured() {
		return app.Renderer.Render(versionInfo{
			Version:   Version,
			Commit:    GitCommit,
			BuildDate: BuildDate,
			Formats:   []string{"table", "json", "yaml", "tsv"},
			Columns:   []string{"not_started", "in_progress", "completed"},
		})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "fluxr version %s\n", Version)
	fmt.Fprintf(cmd.OutOrStdout(), "  commit: %s\n", GitCommit)
	fmt.Fprintf(cmd.OutOrStdout(), "  built:  %s\n", BuildDate)
	return nil
}
