package cli

import (
	"github.com/spf13/cobra"

	"github.com/fluxr/fluxr/internal/board"
	"github.com/fluxr/fluxr/internal/cli/appctx"
	"github.com/fluxr/fluxr/internal/domain"
	"github.com/fluxr/fluxr/internal/paths"
	"github.com/fluxr/fluxr/internal/render"
	"github.com/fluxr/fluxr/internal/selectors"
)

var lsCmd = &cobra.Command{
	Use:   "ls <product>",
	Short: "List the items of a product",
	Long: `Lists items column by column in board order.

Filters:
  --type and --priority take comma separated values and combine with AND.
  --status limits the listing to columns.
  --route lists pages whose route matches a pattern; '*' matches one
  segment and '**' any number of segments.`,
	Args: cobra.ExactArgs(1),
	RunE: appctx.WithApp(appctx.DefaultOptions(), runLs),
}

var (
	lsType     string
	lsPriority string
	lsStatus   string
	lsRoute    string
)

func init() {
	rootCmd.AddCommand(lsCmd)
	lsCmd.Flags().StringVarP(&lsType, "type", "t", "", "Kinds to show (comma separated)")
	lsCmd.Flags().StringVarP(&lsPriority, "priority", "p", "", "Priorities to show (comma separated)")
	lsCmd.Flags().StringVarP(&lsStatus, "status", "s", "", "Columns to show (comma separated)")
	lsCmd.Flags().StringVar(&lsRoute, "route", "", "Route pattern for pages, e.g. /checkout/**")
}

func runLs(app *appctx.App, cmd *cobra.Command, args []string) error {
	filter, err := board.ParseFilter(splitList(lsType), splitList(lsPriority))
	if err != nil {
		return err
	}
	statuses := make(map[domain.Status]bool)
	for _, s := range splitList(lsStatus) {
		if err := domain.ValidateStatus(s); err != nil {
			return err
		}
		statuses[domain.Status(s)] = true
	}

	productUUID, _, err := selectors.ResolveProduct(app.DB, args[0])
	if err != nil {
		return err
	}
	records, err := app.Service.Cache.LoadRecords(cmd.Context(), productUUID)
	if err != nil {
		return err
	}

	var routes map[string]string
	if lsRoute != "" {
		routes = make(map[string]string, len(records.Pages))
		for _, p := range records.Pages {
			routes[p.UUID] = p.Route
		}
	}

	buckets := board.Partition(board.Normalize(records), filter)
	items := []domain.BoardItem{}
	for _, col := range domain.Columns() {
		if len(statuses) > 0 && !statuses[col.ID] {
			continue
		}
		for _, it := range buckets[col.ID] {
			if routes != nil {
				route, ok := routes[it.UUID]
				if !ok || !paths.MatchRoute(lsRoute, route) {
					continue
				}
			}
			items = append(items, it)
		}
	}

	if app.Renderer.Structured() {
		return app.Renderer.Render(items)
	}
	return app.Renderer.RenderTable(render.ItemHeaders, render.ItemRows(items))
}
