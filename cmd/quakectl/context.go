package main

import (
	"context"
	"log/slog"
	"sync"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/quake-notifier/internal/app"
	"github.com/couchcryptid/quake-notifier/internal/config"
	"github.com/couchcryptid/quake-notifier/internal/observability"
)

type commandContext struct {
	verbose *bool
	jsonOut *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error

	app *app.App
}

func newCommandContext(verbose, jsonOut *bool) *commandContext {
	return &commandContext{
		verbose: verbose,
		jsonOut: jsonOut,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		c.config, c.configErr = config.Load()
	})
	return c.config, c.configErr
}

func (c *commandContext) wantJSON() bool {
	return c.jsonOut != nil && *c.jsonOut
}

// logger writes to stderr so table and JSON output stay clean.
func (c *commandContext) logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if c.verbose != nil && *c.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// ensureApp connects to Redis and wires the dispatcher on first use.
func (c *commandContext) ensureApp(ctx context.Context, cmd *cobra.Command) (*app.App, error) {
	if c.app != nil {
		return c.app, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	a, err := app.New(ctx, cfg, c.logger(cmd), observability.NewMetrics())
	if err != nil {
		return nil, err
	}
	c.app = a
	return a, nil
}

func (c *commandContext) close() error {
	if c.app == nil {
		return nil
	}
	err := c.app.Close()
	c.app = nil
	return err
}
