package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fluxr/fluxr/internal/cli/appctx"
	"github.com/fluxr/fluxr/internal/domain"
	"github.com/fluxr/fluxr/internal/selectors"
)

var showCmd = &cobra.Command{
	Use:   "show <item>",
	Short: "Show one item",
	Args:  cobra.ExactArgs(1),
	RunE:  appctx.WithApp(appctx.DefaultOptions(), runShow),
}

func init() {
	rootCmd.AddCommand(showCmd)
}

type itemDetail struct {
	domain.BoardItem `yaml:",inline"`
	Route            string `json:"route,omitempty" yaml:"route,omitempty"`
	Image            string `json:"image,omitempty" yaml:"image,omitempty"`
	UpdatedBy        string `json:"updated_by" yaml:"updated_by"`
	UpdatedAt        string `json:"updated_at" yaml:"updated_at"`
}

func runShow(app *appctx.App, cmd *cobra.Command, args []string) error {
	ref, err := resolveItem(app, args[0])
	if err != nil {
		return err
	}
	detail, err := loadDetail(cmd.Context(), app, ref)
	if err != nil {
		return err
	}
	if app.Renderer.Structured() {
		return app.Renderer.Render(detail)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s  %s\n", detail.ID, detail.Name)
	fmt.Fprintf(w, "  kind:     %s\n", detail.EffectiveKind())
	fmt.Fprintf(w, "  status:   %s\n", detail.Status)
	fmt.Fprintf(w, "  position: %d\n", detail.Position)
	fmt.Fprintf(w, "  priority: %s\n", detail.EffectivePriority())
	if detail.Route != "" {
		fmt.Fprintf(w, "  route:    %s\n", detail.Route)
	}
	if detail.Image != "" {
		fmt.Fprintf(w, "  image:    %s\n", detail.Image)
	}
	fmt.Fprintf(w, "  etag:     %d\n", detail.ETag)
	fmt.Fprintf(w, "  updated:  %s by %s\n", detail.UpdatedAt, detail.UpdatedBy)
	if detail.Description != "" {
		fmt.Fprintf(w, "\n%s\n", detail.Description)
	}
	return nil
}

func loadDetail(ctx context.Context, app *appctx.App, ref selectors.Item) (*itemDetail, error) {
	item, err := app.Service.GetItem(ctx, ref.Kind, ref.UUID)
	if err != nil {
		return nil, err
	}
	detail := &itemDetail{BoardItem: item}

	var base domain.ItemBase
	switch ref.Kind {
	case domain.KindFeature:
		f, err := app.Store.Features.Get(ctx, ref.UUID)
		if err != nil {
			return nil, err
		}
		base = f.ItemBase
		if f.ImagePath != nil {
			detail.Image = *f.ImagePath
		}
	case domain.KindBug:
		b, err := app.Store.Bugs.Get(ctx, ref.UUID)
		if err != nil {
			return nil, err
		}
		base = b.ItemBase
		if b.ImagePath != nil {
			detail.Image = *b.ImagePath
		}
	case domain.KindTask:
		t, err := app.Store.Tasks.Get(ctx, ref.UUID)
		if err != nil {
			return nil, err
		}
		base = t.ItemBase
	case domain.KindPage:
		p, err := app.Store.Pages.Get(ctx, ref.UUID)
		if err != nil {
			return nil, err
		}
		base = p.ItemBase
		detail.Route = p.Route
	}
	detail.UpdatedBy = base.UpdatedBy
	detail.UpdatedAt = base.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z")
	return detail, nil
}
