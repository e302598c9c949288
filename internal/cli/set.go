package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fluxr/fluxr/internal/cli/appctx"
	"github.com/fluxr/fluxr/internal/parse"
)

var setCmd = &cobra.Command{
	Use:   "set <item> key=value...",
	Short: "Update item fields",
	Long: `Updates fields of an item. Supported keys: name, description, priority,
status, position. Changing status here does not reorder the target column;
use 'fluxr mv' for that.`,
	Args: cobra.MinimumNArgs(2),
	RunE: appctx.WithApp(appctx.DefaultOptions(), runSet),
}

var setIfMatch int64

func init() {
	rootCmd.AddCommand(setCmd)
	setCmd.Flags().Int64Var(&setIfMatch, "if-match", 0, "Only update if etag matches")
}

func runSet(app *appctx.App, cmd *cobra.Command, args []string) error {
	ref, err := resolveItem(app, args[0])
	if err != nil {
		return err
	}
	doc, err := parse.ParseAssignments(args[1:])
	if err != nil {
		return err
	}
	doc.IfMatch = setIfMatch

	item, err := app.Service.EditItem(cmd.Context(), app.Actor, ref, doc)
	if err != nil {
		return err
	}
	if app.Renderer.Structured() {
		return app.Renderer.Render(item)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Updated %s (etag %d)\n", item.ID, item.ETag)
	return nil
}
