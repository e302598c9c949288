// Package appctx provides a shared bootstrap helper for CLI commands.
// It centralizes config loading, database opening, logging and actor
// resolution to reduce boilerplate across commands.
package appctx

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/fluxr/fluxr/internal/cache"
	"github.com/fluxr/fluxr/internal/config"
	"github.com/fluxr/fluxr/internal/db"
	"github.com/fluxr/fluxr/internal/render"
	"github.com/fluxr/fluxr/internal/service"
	"github.com/fluxr/fluxr/internal/store"
)

// App holds the shared application context for commands.
type App struct {
	// Config is the loaded configuration
	Config *config.Config

	// DB is the opened database connection (nil if NeedsDB is false)
	DB *db.DB

	// Store and Service are built on DB
	Store   *store.Store
	Service *service.Service

	// Actor is the name writes are attributed to
	Actor string

	Log      *logrus.Logger
	Renderer *render.Renderer

	redis *redis.Client
}

// Close releases resources held by the App.
// Safe to call multiple times.
func (a *App) Close() {
	if a.Service != nil {
		a.Service.Close()
		a.Service = nil
	}
	if a.redis != nil {
		_ = a.redis.Close()
		a.redis = nil
	}
	if a.DB != nil {
		a.DB.Close()
		a.DB = nil
	}
}

// Options configures the bootstrap behavior.
type Options struct {
	// NeedsDB indicates whether to open the database.
	NeedsDB bool

	// SkipMigrationCheck opens the database even with pending migrations.
	SkipMigrationCheck bool
}

// DefaultOptions returns default options (DB required).
func DefaultOptions() Options {
	return Options{NeedsDB: true}
}

// ConfigOnly returns options that load configuration without a database.
func ConfigOnly() Options {
	return Options{}
}

// Overrides are values taken from global flags.
type Overrides struct {
	DBPath string
	Actor  string
	Output string
}

// RunFunc is the signature for command run functions.
type RunFunc func(app *App, cmd *cobra.Command, args []string) error

// WithApp wraps a command's run function with shared bootstrap logic.
// The database is closed automatically when the wrapped function returns.
func WithApp(opts Options, fn RunFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		app, err := Bootstrap(cmd, opts)
		if err != nil {
			return err
		}
		defer app.Close()

		return fn(app, cmd, args)
	}
}

// Bootstrap initializes the App from the command's global flags.
// Callers are responsible for calling App.Close() when done.
func Bootstrap(cmd *cobra.Command, opts Options) (*App, error) {
	ov := Overrides{
		DBPath: flagValue(cmd, "db"),
		Actor:  flagValue(cmd, "as"),
		Output: flagValue(cmd, "output"),
	}
	return Open(cmd.Context(), ov, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// Open initializes the App outside of a cobra command.
func Open(ctx context.Context, ov Overrides, opts Options, stdout, stderr io.Writer) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	app := &App{}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if ov.DBPath != "" {
		cfg.DBPath = ov.DBPath
	}
	if ov.Output != "" {
		cfg.Output = ov.Output
	}
	app.Config = cfg

	app.Log, err = NewLogger(stderr, cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	format, err := render.ParseFormat(cfg.Output)
	if err != nil {
		return nil, err
	}
	app.Renderer = render.NewRenderer(stdout, render.Options{Format: format})

	app.Actor = ov.Actor
	if app.Actor == "" {
		app.Actor = cfg.GetActor()
	}

	if !opts.NeedsDB {
		return app, nil
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	app.DB = database

	if !opts.SkipMigrationCheck {
		if err := database.RequiresMigrationError(); err != nil {
			app.Close()
			return nil, err
		}
	}

	app.Store = store.New(database)
	svcOpts := []service.Option{service.WithLogger(app.Log)}
	if cfg.RedisURL != "" {
		client, err := cache.Dial(ctx, cfg.RedisURL)
		if err != nil {
			app.Log.WithError(err).Warn("board cache disabled")
		} else {
			app.redis = client
			svcOpts = append(svcOpts, service.WithRedis(client))
		}
	}
	app.Service = service.New(cfg, app.Store, svcOpts...)

	return app, nil
}

// NewLogger returns a text logger at the named level.
func NewLogger(out io.Writer, level string) (*logrus.Logger, error) {
	if out == nil {
		out = os.Stderr
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log_level %q: %w", level, err)
	}
	log := logrus.New()
	log.SetOutput(out)
	log.SetLevel(lvl)
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	return log, nil
}

func flagValue(cmd *cobra.Command, name string) string {
	if f := cmd.Flag(name); f != nil {
		return f.Value.String()
	}
	return ""
}
