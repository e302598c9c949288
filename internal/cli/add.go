package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fluxr/fluxr/internal/cli/appctx"
	"github.com/fluxr/fluxr/internal/domain"
	"github.com/fluxr/fluxr/internal/selectors"
	"github.com/fluxr/fluxr/internal/store"
)

var addCmd = &cobra.Command{
	Use:   "add <kind> <product> <name>",
	Short: "Add a feature, bug, task or page to a product",
	Long: `Adds an item to the end of its column. Kind is one of feature, bug,
task or page. Pages take a route with --route.`,
	Args: cobra.ExactArgs(3),
	RunE: appctx.WithApp(appctx.DefaultOptions(), runAdd),
}

var (
	addPriority    string
	addStatus      string
	addDescription string
	addRoute       string
)

func init() {
	rootCmd.AddCommand(addCmd)
	addCmd.Flags().StringVar(&addPriority, "priority", "", "Priority: critical, high, medium, low or not_prioritized")
	addCmd.Flags().StringVar(&addStatus, "status", string(domain.StatusNotStarted), "Initial column")
	addCmd.Flags().StringVarP(&addDescription, "description", "d", "", "Description")
	addCmd.Flags().StringVar(&addRoute, "route", "", "Route of a flow page, e.g. /checkout/payment")
}

func runAdd(app *appctx.App, cmd *cobra.Command, args []string) error {
	kind := domain.Kind(args[0])
	if err := domain.ValidateKind(args[0]); err != nil {
		return err
	}
	if addRoute != "" && kind != domain.KindPage {
		return fmt.Errorf("--route only applies to pages")
	}
	if err := domain.ValidateStatus(addStatus); err != nil {
		return err
	}
	priority, err := priorityFlag(addPriority)
	if err != nil {
		return err
	}
	productUUID, _, err := selectors.ResolveProduct(app.DB, args[1])
	if err != nil {
		return err
	}

	item, err := app.Service.CreateItem(cmd.Context(), app.Actor, kind, store.CreateParams{
		ProductUUID: productUUID,
		Name:        args[2],
		Description: addDescription,
		Priority:    priority,
		Status:      domain.Status(addStatus),
		Route:       addRoute,
	})
	if err != nil {
		return err
	}

	if app.Renderer.Structured() {
		return app.Renderer.Render(item)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created %s %s in %s\n", item.Kind, item.ID, item.Status)
	return nil
}
