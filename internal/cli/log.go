package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fluxr/fluxr/internal/cli/appctx"
	"github.com/fluxr/fluxr/internal/domain"
	"github.com/fluxr/fluxr/internal/events"
)

var logCmd = &cobra.Command{
	Use:   "log [item]",
	Short: "Show the event log",
	Long:  `Shows recorded events, newest first. With an item only its events are shown.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  appctx.WithApp(appctx.DefaultOptions(), runLog),
}

var (
	logLimit  int
	logCursor string
)

func init() {
	rootCmd.AddCommand(logCmd)
	logCmd.Flags().IntVarP(&logLimit, "limit", "n", 20, "Maximum number of events")
	logCmd.Flags().StringVar(&logCursor, "cursor", "", "Continue from a previous page")
}

type eventPage struct {
	Events     []domain.Event `json:"events" yaml:"events"`
	NextCursor string         `json:"next_cursor,omitempty" yaml:"next_cursor,omitempty"`
}

func runLog(app *appctx.App, cmd *cobra.Command, args []string) error {
	var resource string
	if len(args) == 1 {
		ref, err := resolveItem(app, args[0])
		if err != nil {
			return err
		}
		resource = ref.UUID
	}

	evs, next, err := events.Page(app.DB, resource, logLimit, logCursor)
	if err != nil {
		return err
	}
	if evs == nil {
		evs = []domain.Event{}
	}
	if app.Renderer.Structured() {
		return app.Renderer.Render(eventPage{Events: evs, NextCursor: next})
	}
	if next != "" {
		defer fmt.Fprintf(cmd.ErrOrStderr(), "more: fluxr log --cursor %s\n", next)
	}

	rows := make([][]string, 0, len(evs))
	for _, ev := range evs {
		actor, etag, payload := "-", "-", ""
		if ev.Actor != nil {
			actor = *ev.Actor
		}
		if ev.ETag != nil {
			etag = fmt.Sprint(*ev.ETag)
		}
		if ev.Payload != nil {
			payload = *ev.Payload
		}
		rows = append(rows, []string{
			ev.Timestamp.UTC().Format("2006-01-02 15:04:05"),
			actor,
			ev.EventType,
			etag,
			payload,
		})
	}
	return app.Renderer.RenderTable([]string{"TIME", "ACTOR", "EVENT", "ETAG", "PAYLOAD"}, rows)
}
