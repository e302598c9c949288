package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fluxr/fluxr/internal/cli/appctx"
)

var imageCmd = &cobra.Command{
	Use:   "image <item> <file>",
	Short: "Set the image of a feature or bug",
	Long: `Copies an image into the image directory and links it to a feature or
bug. A previous image of the item is removed.`,
	Args: cobra.ExactArgs(2),
	RunE: appctx.WithApp(appctx.DefaultOptions(), runImage),
}

func init() {
	rootCmd.AddCommand(imageCmd)
}

func runImage(app *appctx.App, cmd *cobra.Command, args []string) error {
	ref, err := resolveItem(app, args[0])
	if err != nil {
		return err
	}
	img, err := app.Service.SetImage(cmd.Context(), app.Actor, ref, args[1])
	if err != nil {
		return err
	}
	if app.Renderer.Structured() {
		return app.Renderer.Render(img)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Set image of %s: %s (%s, %d bytes)\n", ref.ID, img.RelativePath, img.MimeType, img.SizeBytes)
	return nil
}
