package cli

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/datapipe/internal/config"
	"github.com/roach88/datapipe/internal/telemetry"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the datapipe CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "datapipe",
		Short: "datapipe - filter pipelines over hierarchical data",
		Long: `Build, preflight and execute pipelines of filters over a hierarchical
data structure, and read or write the results as container files.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config file")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewPreflightCommand(opts))
	cmd.AddCommand(NewInspectCommand(opts))
	cmd.AddCommand(NewFiltersCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// formatter returns a printer writing to the command's streams.
func (o *RootOptions) formatter(cmd *cobra.Command) *printer {
	return &printer{
		json:    o.Format == "json",
		out:     cmd.OutOrStdout(),
		diag:    cmd.ErrOrStderr(),
		verbose: o.Verbose,
	}
}

// setup loads configuration, installs the default logger and starts
// tracing. The returned shutdown flushes spans and must always be called.
func (o *RootOptions) setup(ctx context.Context, cmd *cobra.Command) (config.Config, func(), error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return config.Config{}, nil, withExit(ExitCommandError, "failed to load config", err)
	}

	level, _ := cfg.Level()
	if o.Verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))

	shutdown, err := telemetry.Setup(ctx, cfg.Tracing)
	if err != nil {
		return config.Config{}, nil, withExit(ExitCommandError, "failed to start tracing", err)
	}
	return cfg, func() {
		if err := shutdown(context.Background()); err != nil {
			slog.Error("error shutting down tracing", "error", err)
		}
	}, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

