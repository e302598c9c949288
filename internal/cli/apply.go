package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fluxr/fluxr/internal/cli/appctx"
	"github.com/fluxr/fluxr/internal/parse"
)

var applyCmd = &cobra.Command{
	Use:   "apply <item> <file|->",
	Short: "Apply a JSON, YAML or markdown document to an item",
	Long: `Reads a document from a file or stdin and applies its fields to an item.

Documents are JSON, YAML, or markdown with YAML front matter whose body
becomes the description. The format is detected unless --format is given.
An if_match field in the document is used unless --if-match is set.`,
	Args: cobra.ExactArgs(2),
	RunE: appctx.WithApp(appctx.DefaultOptions(), runApply),
}

var (
	applyFormat  string
	applyIfMatch int64
	applyDryRun  bool
)

func init() {
	rootCmd.AddCommand(applyCmd)
	applyCmd.Flags().StringVar(&applyFormat, "format", "", "Input format: json, yaml or md")
	applyCmd.Flags().Int64Var(&applyIfMatch, "if-match", 0, "Only update if etag matches")
	applyCmd.Flags().BoolVar(&applyDryRun, "dry-run", false, "Validate the document without writing")
}

func runApply(app *appctx.App, cmd *cobra.Command, args []string) error {
	ref, err := resolveItem(app, args[0])
	if err != nil {
		return err
	}
	data, err := readInput(cmd, args[1])
	if err != nil {
		return err
	}
	doc, err := parse.Parse(data, applyFormat)
	if err != nil {
		return err
	}
	if applyIfMatch != 0 {
		doc.IfMatch = applyIfMatch
	}

	if applyDryRun {
		if _, _, err := doc.Fields(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Document for %s is valid\n", ref.ID)
		return nil
	}

	item, err := app.Service.EditItem(cmd.Context(), app.Actor, ref, doc)
	if err != nil {
		return err
	}
	if app.Renderer.Structured() {
		return app.Renderer.Render(item)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Applied to %s (etag %d)\n", item.ID, item.ETag)
	return nil
}
