package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fluxr/fluxr/internal/cli/appctx"
	"github.com/fluxr/fluxr/internal/domain"
	"github.com/fluxr/fluxr/internal/selectors"
)

// resolveItem resolves an item selector against the app database.
func resolveItem(app *appctx.App, selector string) (selectors.Item, error) {
	return selectors.ResolveItem(app.DB, selector)
}

// productLabel resolves a product selector to its UUID and the label shown
// in board headers.
func productLabel(app *appctx.App, cmd *cobra.Command, selector string) (string, string, error) {
	uuid, friendlyID, err := selectors.ResolveProduct(app.DB, selector)
	if err != nil {
		return "", "", err
	}
	p, err := app.Store.Products.Get(cmd.Context(), uuid)
	if err != nil {
		return "", "", err
	}
	return uuid, fmt.Sprintf("%s %s", friendlyID, p.Slug), nil
}

// readInput reads a file argument, or stdin for "-".
func readInput(cmd *cobra.Command, arg string) ([]byte, error) {
	if arg == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", arg, err)
	}
	return data, nil
}

// splitList splits a comma separated flag value.
func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func priorityFlag(v string) (*domain.Priority, error) {
	if v == "" {
		return nil, nil
	}
	if err := domain.ValidatePriority(v); err != nil {
		return nil, err
	}
	p := domain.Priority(v)
	return &p, nil
}
