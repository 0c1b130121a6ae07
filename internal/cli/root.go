// Package cli holds the clover command tree.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/Gobusters/ectologger"
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/internal/app"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	LogLevel string
	Pretty   bool
}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "clover",
		Short:         "Consolidated purchase recommendations",
		Long:          "clover keeps a Redis view of the customer ledger and social graph, with per-friend product recommendations.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override LOG_LEVEL")
	cmd.PersistentFlags().BoolVar(&opts.Pretty, "pretty", false, "human readable logs")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewRebuildCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewConsolidatedCommand(opts))
	cmd.AddCommand(NewReportCommand(opts))
	cmd.AddCommand(NewResetCommand(opts))

	return cmd
}

// setup loads configuration and builds the logger shared by every command.
func setup(opts *RootOptions) (config.Config, ectologger.Logger, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, nil, nil, err
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}

	logger, sync, err := app.NewLogger(cfg.LogLevel, cfg.PrettyLogs || opts.Pretty)
	if err != nil {
		return cfg, nil, nil, err
	}
	return cfg, logger, sync, nil
}

// withApp connects every store, runs fn and shuts the stores down again.
func withApp(ctx context.Context, opts *RootOptions, fn func(ctx context.Context, a *app.App) error) error {
	cfg, logger, sync, err := setup(opts)
	if err != nil {
		return err
	}
	defer sync()

	a := app.New(cfg, logger)
	if err := a.Start(ctx, app.Options{}); err != nil {
		_ = a.Stop(context.WithoutCancel(ctx))
		return err
	}
	defer func() {
		if err := a.Stop(context.WithoutCancel(ctx)); err != nil {
			logger.WithError(err).Warn("Failed to stop dependencies cleanly")
		}
	}()

	return fn(ctx, a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
