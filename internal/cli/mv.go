package cli

import (
	"fmt"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"

	"github.com/fluxr/fluxr/internal/cli/appctx"
	"github.com/fluxr/fluxr/internal/domain"
	"github.com/fluxr/fluxr/internal/render"
	"github.com/fluxr/fluxr/internal/service"
)

var mvCmd = &cobra.Command{
	Use:   "mv <item> --to <status>",
	Short: "Move an item to another column",
	Long: `Moves an item to a column, as if it had been dragged there on the board.

--index is the slot in the target column, counted from 0; the item is
appended when it is omitted. The move is written once and the board is
re-read afterwards. With --dry-run nothing is written and a unified diff of
the board before and after the move is printed instead.`,
	Args: cobra.ExactArgs(1),
	RunE: appctx.WithApp(appctx.DefaultOptions(), runMv),
}

var (
	mvTo     string
	mvIndex  int
	mvDryRun bool
)

func init() {
	rootCmd.AddCommand(mvCmd)
	mvCmd.Flags().StringVar(&mvTo, "to", "", "Target column: not_started, in_progress or completed")
	mvCmd.Flags().IntVar(&mvIndex, "index", -1, "Slot in the target column (default: append)")
	mvCmd.Flags().BoolVar(&mvDryRun, "dry-run", false, "Show the board diff without writing")
	_ = mvCmd.MarkFlagRequired("to")
}

type mvResult struct {
	Moved   bool              `json:"moved" yaml:"moved"`
	DryRun  bool              `json:"dry_run" yaml:"dry_run"`
	Item    *domain.BoardItem `json:"item,omitempty" yaml:"item,omitempty"`
	Message string            `json:"message,omitempty" yaml:"message,omitempty"`
	Board   render.BoardView  `json:"board" yaml:"board"`
}

func runMv(app *appctx.App, cmd *cobra.Command, args []string) error {
	ref, err := resolveItem(app, args[0])
	if err != nil {
		return err
	}
	_, label, err := productLabel(app, cmd, ref.ProductUUID)
	if err != nil {
		return err
	}

	res, err := app.Service.Move(cmd.Context(), app.Actor, label, service.MoveRequest{
		Item:   ref,
		To:     domain.Status(mvTo),
		Index:  mvIndex,
		DryRun: mvDryRun,
	})
	if err != nil {
		return err
	}
	outcome := res.Outcome
	if outcome.Err != nil {
		if outcome.Message == "" {
			// vanished mid-move
			return nil
		}
		return fmt.Errorf("%s: %w", outcome.Message, outcome.Err)
	}

	if app.Renderer.Structured() {
		out := mvResult{Moved: outcome.Moved, DryRun: mvDryRun, Message: outcome.Message, Board: res.After}
		if outcome.Moved {
			out.Item = &outcome.Item
		}
		return app.Renderer.Render(out)
	}

	w := cmd.OutOrStdout()
	if mvDryRun {
		diff, err := boardDiff(res.Before, res.After)
		if err != nil {
			return err
		}
		if diff == "" {
			fmt.Fprintln(w, "No change")
			return nil
		}
		fmt.Fprint(w, diff)
		return nil
	}
	if !outcome.Moved {
		fmt.Fprintf(w, "No change for %s\n", ref.ID)
		return nil
	}
	fmt.Fprintf(w, "Moved %s to %s (position %d, etag %d)\n", outcome.Item.ID, outcome.Item.Status, outcome.Item.Position, outcome.Item.ETag)
	return nil
}

func boardDiff(before, after render.BoardView) (string, error) {
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(render.BoardText(before)),
		B:        difflib.SplitLines(render.BoardText(after)),
		FromFile: "before",
		ToFile:   "after",
		Context:  3,
	})
}
