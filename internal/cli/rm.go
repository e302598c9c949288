package cli

import (
	"context"
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/fluxr/fluxr/internal/bulk"
	"github.com/fluxr/fluxr/internal/cli/appctx"
	"github.com/fluxr/fluxr/internal/selectors"
)

var rmCmd = &cobra.Command{
	Use:   "rm <item>...",
	Short: "Delete items",
	Long: `Deletes items and their uploaded images. Deletion is permanent; the
event log keeps a record of the removed item.

All selectors are resolved before anything is deleted. By default the first
failure stops the run; --continue-on-error deletes what it can.`,
	Args: cobra.MinimumNArgs(1),
	RunE: appctx.WithApp(appctx.DefaultOptions(), runRm),
}

var (
	rmIfMatch         int64
	rmJobs            int
	rmContinueOnError bool
)

func init() {
	rootCmd.AddCommand(rmCmd)
	rmCmd.Flags().Int64Var(&rmIfMatch, "if-match", 0, "Only delete if etag matches (single item)")
	rmCmd.Flags().IntVarP(&rmJobs, "jobs", "j", 1, "Items deleted concurrently")
	rmCmd.Flags().BoolVar(&rmContinueOnError, "continue-on-error", false, "Keep going after a failed delete")
}

func runRm(app *appctx.App, cmd *cobra.Command, args []string) error {
	if rmIfMatch != 0 && len(args) > 1 {
		return fmt.Errorf("--if-match requires a single item")
	}

	refs := make(map[string]selectors.Item, len(args))
	ids := make([]string, 0, len(args))
	for _, arg := range args {
		ref, err := resolveItem(app, arg)
		if err != nil {
			return err
		}
		if _, dup := refs[ref.ID]; dup {
			continue
		}
		refs[ref.ID] = ref
		ids = append(ids, ref.ID)
	}

	var mu sync.Mutex
	out := cmd.OutOrStdout()
	op := &bulk.Operation{Jobs: rmJobs, ContinueOnError: rmContinueOnError}
	result := op.Execute(cmd.Context(), ids, func(ctx context.Context, id string) error {
		if err := app.Service.DeleteItem(ctx, app.Actor, refs[id], rmIfMatch); err != nil {
			return err
		}
		mu.Lock()
		fmt.Fprintf(out, "Removed %s\n", id)
		mu.Unlock()
		return nil
	})

	if len(ids) > 1 && result.Failed > 0 {
		result.PrintSummary(cmd.ErrOrStderr())
	}
	return result.Err()
}
