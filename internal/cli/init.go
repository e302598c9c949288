package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fluxr/fluxr/internal/cli/appctx"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create or migrate the database",
	Long: `Creates the database file if needed, applies pending migrations and
creates the image directory. Safe to run repeatedly.`,
	Args: cobra.NoArgs,
	RunE: appctx.WithApp(appctx.Options{NeedsDB: true, SkipMigrationCheck: true}, runInit),
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(app *appctx.App, cmd *cobra.Command, args []string) error {
	applied, err := app.DB.MigrateWithInfo()
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	if err := os.MkdirAll(app.Config.ImageDir, 0755); err != nil {
		return fmt.Errorf("failed to create image directory: %w", err)
	}

	out := cmd.OutOrStdout()
	for _, m := range applied {
		fmt.Fprintf(out, "applied %s\n", m)
	}
	fmt.Fprintf(out, "Database ready: %s\n", app.Config.DBPath)
	return nil
}
