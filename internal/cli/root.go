package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fluxr",
	Short: "Kanban boards for product features, bugs, tasks and pages",
	Long: `fluxr tracks the features, bugs, tasks and flow pages of each product
on a four column board backed by SQLite. Items move between columns with
'fluxr mv'; 'fluxr serve' exposes the same boards over HTTP.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Path to database file (overrides FLUXR_DB_PATH)")
	rootCmd.PersistentFlags().String("as", "", "Actor to attribute writes to (overrides FLUXR_ACTOR)")
	rootCmd.PersistentFlags().StringP("output", "o", "", "Output format: table, json, yaml or tsv")
}
