package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/datapipe/internal/action"
	"github.com/roach88/datapipe/internal/config"
	"github.com/roach88/datapipe/internal/container"
	"github.com/roach88/datapipe/internal/data"
	"github.com/roach88/datapipe/internal/filter/builtin"
	"github.com/roach88/datapipe/internal/observer"
	"github.com/roach88/datapipe/internal/pipeline"
)

// RunOptions holds flags for the run and preflight commands.
type RunOptions struct {
	*RootOptions
	Output string // container file for the executed structure
	Save   string // pipeline file to write after preflight
}

// NodeWarning is a warning reported by one node.
type NodeWarning struct {
	Node    int    `json:"node"`
	Filter  string `json:"filter"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// PipelineReport is the result of a successful run or preflight.
type PipelineReport struct {
	Pipeline  string        `json:"pipeline"`
	Mode      string        `json:"mode"`
	Nodes     int           `json:"nodes"`
	Warnings  []NodeWarning `json:"warnings,omitempty"`
	Structure []data.Entry  `json:"structure"`
	Output    string        `json:"output,omitempty"`
}

func (r PipelineReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Pipeline %q: %s of %d nodes succeeded", r.Pipeline, r.Mode, r.Nodes)
	for _, w := range r.Warnings {
		fmt.Fprintf(&b, "\n  [%d %s] warning %d: %s", w.Node, w.Filter, w.Code, w.Message)
	}
	b.WriteString("\nStructure:")
	for _, e := range r.Structure {
		fmt.Fprintf(&b, "\n  %s", e)
	}
	if r.Output != "" {
		fmt.Fprintf(&b, "\nWrote %s", r.Output)
	}
	return b.String()
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <pipeline>",
		Short: "Execute a pipeline file",
		Long: `Execute every node of a pipeline file against an empty data structure.

The run stops at the first failing node. Ctrl-C cancels the running filter
at its next check; a cancelled run is reported but is not a fault.

Examples:
  datapipe run ./segment.dpp
  datapipe run ./segment.dpp --output result.dpc --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(opts, args[0], action.Execute, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the executed structure to this container file")

	return cmd
}

// NewPreflightCommand creates the preflight command.
func NewPreflightCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "preflight <pipeline>",
		Short: "Validate a pipeline file without computing data",
		Long: `Preflight every node of a pipeline file and print the predicted structure.

No array payload is allocated. With --save the pipeline is written back,
including any downstream arguments rewritten by rename detection.

Examples:
  datapipe preflight ./segment.dpp
  datapipe preflight ./segment.dpp --save ./segment.dpp`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(opts, args[0], action.Preflight, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Save, "save", "", "write the preflighted pipeline to this file")

	return cmd
}

func runPipeline(opts *RunOptions, path string, mode action.Mode, cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, shutdown, err := opts.setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer shutdown()

	out := opts.formatter(cmd)
	pl, err := loadPipeline(path, cfg)
	if err != nil {
		return err
	}
	defer pl.Close()

	sub := pl.Bus().Subscribe(observer.SubscriberFunc(func(m observer.Message) {
		switch m.Type {
		case observer.Progress, observer.Info, observer.OutputRenamed:
			out.logf("%s", m)
		}
	}))
	defer sub.Close()

	if mode == action.Execute {
		err = pl.Execute(ctx)
	} else {
		err = pl.Preflight(ctx)
	}
	if err != nil {
		return reportFailure(out, err)
	}

	report := PipelineReport{
		Pipeline: pl.Name(),
		Mode:     mode.String(),
		Nodes:    pl.Len(),
		Warnings: collectWarnings(pl),
	}
	var final *data.Structure
	if mode == action.Execute {
		final = pl.Output()
	} else {
		final = pl.PreflightOutput()
	}
	defer func() {
		if err := final.Discard(context.Background()); err != nil {
			slog.Warn("failed to delete out-of-core payloads", "error", err)
		}
	}()
	report.Structure = final.Describe()

	if opts.Output != "" {
		stats, err := container.Write(ctx, opts.Output, final)
		if err != nil {
			return withExit(ExitCommandError, "failed to write output container", err)
		}
		slog.Info("wrote container", "path", opts.Output, "objects", stats.Objects, "links", stats.Links, "bytes", stats.PayloadBytes)
		report.Output = opts.Output
	}
	if opts.Save != "" {
		if err := pl.SaveFile(opts.Save); err != nil {
			return withExit(ExitCommandError, "failed to save pipeline", err)
		}
		report.Output = opts.Save
	}

	return out.ok(report)
}

func loadPipeline(path string, cfg config.Config) (*pipeline.Pipeline, error) {
	slog.Debug("loading pipeline", "path", path)
	pl, err := pipeline.LoadFile(path, builtin.NewRegistry(), cfg.PipelineOptions()...)
	if err != nil {
		return nil, withExit(ExitCommandError, "failed to load pipeline", err)
	}
	return pl, nil
}

// reportFailure writes a fault or cancellation and maps it to an exit code.
func reportFailure(out *printer, err error) error {
	var fe *pipeline.FaultError
	switch {
	case errors.As(err, &fe):
		if werr := out.fail(CodeFault, fe.Error(), fe.Errors); werr != nil {
			return werr
		}
		return withExit(ExitFailure, "pipeline faulted", err)
	case pipeline.IsCancelled(err), errors.Is(err, context.Canceled):
		if werr := out.fail(CodeCancelled, "run cancelled", nil); werr != nil {
			return werr
		}
		return withExit(ExitFailure, "pipeline cancelled", err)
	default:
		return withExit(ExitCommandError, "pipeline run failed", err)
	}
}

func collectWarnings(pl *pipeline.Pipeline) []NodeWarning {
	var out []NodeWarning
	for _, n := range pl.Nodes() {
		for _, w := range n.Warnings() {
			out = append(out, NodeWarning{Node: n.Index(), Filter: n.Name(), Code: w.Code, Message: w.Message})
		}
	}
	return out
}
