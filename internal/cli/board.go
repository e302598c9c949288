package cli

import (
	"github.com/spf13/cobra"

	"github.com/fluxr/fluxr/internal/board"
	"github.com/fluxr/fluxr/internal/cli/appctx"
	"github.com/fluxr/fluxr/internal/service"
)

var boardCmd = &cobra.Command{
	Use:   "board <product>",
	Short: "Show a product's board",
	Long: `Shows the board of a product column by column. Within a column items
are ordered by position. --type and --priority narrow the board; both take
comma separated values.`,
	Args: cobra.ExactArgs(1),
	RunE: appctx.WithApp(appctx.DefaultOptions(), runBoard),
}

var (
	boardType     string
	boardPriority string
)

func init() {
	rootCmd.AddCommand(boardCmd)
	boardCmd.Flags().StringVarP(&boardType, "type", "t", "", "Kinds to show (comma separated)")
	boardCmd.Flags().StringVarP(&boardPriority, "priority", "p", "", "Priorities to show (comma separated)")
}

func runBoard(app *appctx.App, cmd *cobra.Command, args []string) error {
	filter, err := board.ParseFilter(splitList(boardType), splitList(boardPriority))
	if err != nil {
		return err
	}
	productUUID, label, err := productLabel(app, cmd, args[0])
	if err != nil {
		return err
	}

	b, err := board.Load(cmd.Context(), app.Service.Cache, productUUID)
	if err != nil {
		return err
	}
	b.SetFilter(filter)
	return app.Renderer.RenderBoard(service.View(label, b))
}
