package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fluxr/fluxr/internal/cli/appctx"
	"github.com/fluxr/fluxr/internal/selectors"
	"github.com/fluxr/fluxr/internal/store"
	"github.com/fluxr/fluxr/internal/webhooks"
)

var productCmd = &cobra.Command{
	Use:   "product",
	Short: "Manage products",
}

var productAddCmd = &cobra.Command{
	Use:   "add <slug>",
	Short: "Create a product",
	Args:  cobra.ExactArgs(1),
	RunE:  appctx.WithApp(appctx.DefaultOptions(), runProductAdd),
}

var productLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List products",
	Args:  cobra.NoArgs,
	RunE:  appctx.WithApp(appctx.DefaultOptions(), runProductLs),
}

var productHooksCmd = &cobra.Command{
	Use:   "hooks <product> [url]...",
	Short: "Replace a product's webhook URLs",
	Long: `Replaces the webhook URLs notified when items of the product change.
Without URLs all webhooks are removed. URLs may contain {product_id}
and {item_id} placeholders.`,
	Args: cobra.MinimumNArgs(1),
	RunE: appctx.WithApp(appctx.DefaultOptions(), runProductHooks),
}

var (
	productName     string
	productOwned    bool
	productWebhooks string
	productIfMatch  int64
)

func init() {
	rootCmd.AddCommand(productCmd)
	productCmd.AddCommand(productAddCmd, productLsCmd, productHooksCmd)

	productAddCmd.Flags().StringVar(&productName, "name", "", "Display name (defaults to the slug)")
	productAddCmd.Flags().BoolVar(&productOwned, "owned", false, "Only the creating actor may change items")
	productAddCmd.Flags().StringVar(&productWebhooks, "webhooks", "", "Comma separated webhook URLs")
	productHooksCmd.Flags().Int64Var(&productIfMatch, "if-match", 0, "Only update if etag matches")
}

func runProductAdd(app *appctx.App, cmd *cobra.Command, args []string) error {
	hooks := splitList(productWebhooks)
	for _, u := range hooks {
		if !webhooks.IsValidWebhookURL(u) {
			return fmt.Errorf("invalid webhook url: %s", u)
		}
	}
	params := store.ProductCreateParams{
		Slug:        args[0],
		Name:        productName,
		WebhookURLs: hooks,
	}
	if productOwned {
		owner := app.Actor
		params.OwnerActor = &owner
	}

	res, err := app.Store.Products.Create(cmd.Context(), app.Actor, params)
	if err != nil {
		return err
	}
	if app.Renderer.Structured() {
		p, err := app.Store.Products.Get(cmd.Context(), res.UUID)
		if err != nil {
			return err
		}
		return app.Renderer.Render(p)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created product %s (%s)\n", res.ID, res.Slug)
	return nil
}

func runProductLs(app *appctx.App, cmd *cobra.Command, args []string) error {
	products, err := app.Store.Products.List(cmd.Context())
	if err != nil {
		return err
	}
	if app.Renderer.Structured() {
		return app.Renderer.Render(products)
	}

	rows := make([][]string, 0, len(products))
	for _, p := range products {
		owner := "-"
		if p.OwnerActor != nil {
			owner = *p.OwnerActor
		}
		urls, _ := p.GetWebhookURLs()
		rows = append(rows, []string{p.ID, p.Slug, p.Name, owner, fmt.Sprint(len(urls))})
	}
	return app.Renderer.RenderTable([]string{"ID", "SLUG", "NAME", "OWNER", "HOOKS"}, rows)
}

func runProductHooks(app *appctx.App, cmd *cobra.Command, args []string) error {
	productUUID, friendlyID, err := selectors.ResolveProduct(app.DB, args[0])
	if err != nil {
		return err
	}
	urls := args[1:]
	for _, u := range urls {
		if !webhooks.IsValidWebhookURL(u) {
			return fmt.Errorf("invalid webhook url: %s", u)
		}
	}
	etag, err := app.Store.Products.SetWebhooks(cmd.Context(), app.Actor, productUUID, urls, productIfMatch)
	if err != nil {
		return err
	}
	if len(urls) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "Removed webhooks from %s (etag %d)\n", friendlyID, etag)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Set %d webhook(s) on %s (etag %d): %s\n", len(urls), friendlyID, etag, strings.Join(urls, ", "))
	return nil
}
