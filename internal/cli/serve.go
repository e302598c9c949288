package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fluxr/fluxr/internal/cli/appctx"
	"github.com/fluxr/fluxr/internal/server"
)

// DaemonOptions configures the fluxrd daemon.
type DaemonOptions struct {
	Addr   string
	Token  string
	DBPath string
	Actor  string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP daemon",
	Long: `Serves boards over HTTP until interrupted. Requests authenticate with
'Authorization: Bearer <token>' when a token is configured and name their
actor in the X-Fluxr-Actor header.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveAddr  string
	serveToken string
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config)")
	serveCmd.Flags().StringVar(&serveToken, "token", "", "Bearer token (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	return ServeDaemon(cmd.Context(), DaemonOptions{
		Addr:   serveAddr,
		Token:  serveToken,
		DBPath: flagValue(cmd, "db"),
		Actor:  flagValue(cmd, "as"),
	})
}

// ServeDaemon runs the daemon until ctx is done or SIGINT/SIGTERM arrives.
func ServeDaemon(ctx context.Context, opts DaemonOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := appctx.Open(ctx, appctx.Overrides{DBPath: opts.DBPath, Actor: opts.Actor}, appctx.DefaultOptions(), os.Stdout, os.Stderr)
	if err != nil {
		return err
	}
	defer app.Close()

	addr := opts.Addr
	if addr == "" {
		addr = app.Config.ListenAddr
	}
	token := opts.Token
	if token == "" {
		token = app.Config.Token
	}
	if token == "" {
		app.Log.Warn("no token configured, authentication disabled")
	}

	srv := server.New(app.Service, token, app.Actor, app.Log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(addr); err != nil {
			return fmt.Errorf("listen on %s: %w", addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func flagValue(cmd *cobra.Command, name string) string {
	if f := cmd.Flag(name); f != nil {
		return f.Value.String()
	}
	return ""
}
