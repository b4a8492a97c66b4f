package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/datapipe/internal/container"
	"github.com/roach88/datapipe/internal/data"
)

// InspectReport describes a container file without loading its payloads.
type InspectReport struct {
	File          string       `json:"file"`
	FormatVersion int          `json:"format_version"`
	NextID        data.ID      `json:"next_id"`
	Writer        string       `json:"writer,omitempty"`
	Fingerprint   string       `json:"fingerprint"`
	Entries       []data.Entry `json:"entries"`
}

func (r InspectReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (format %d, next id %d", r.File, r.FormatVersion, r.NextID)
	if r.Writer != "" {
		fmt.Fprintf(&b, ", written by %s", r.Writer)
	}
	fmt.Fprintf(&b, ")\nFingerprint: %s", r.Fingerprint)
	for _, e := range r.Entries {
		fmt.Fprintf(&b, "\n  %s", e)
	}
	return b.String()
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <container>",
		Short: "Print the structure stored in a container file",
		Long: `Print the metadata and every path stored in a container file.

Only structure and type/shape metadata are read; array payloads stay on disk.

Example:
  datapipe inspect result.dpc --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runInspect(opts *RootOptions, path string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	_, shutdown, err := opts.setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer shutdown()

	f, err := container.Open(path)
	if err != nil {
		return withExit(ExitCommandError, "failed to open container", err)
	}
	defer f.Close()

	meta, err := f.Meta(ctx)
	if err != nil {
		return withExit(ExitCommandError, "failed to read container metadata", err)
	}
	ds, err := f.Read(ctx, container.ReadPreflight)
	if err != nil {
		return withExit(ExitCommandError, "failed to read container", err)
	}
	fp, err := ds.Fingerprint()
	if err != nil {
		return withExit(ExitCommandError, "failed to fingerprint structure", err)
	}

	return opts.formatter(cmd).ok(InspectReport{
		File:          path,
		FormatVersion: meta.FormatVersion,
		NextID:        meta.NextID,
		Writer:        meta.Writer,
		Fingerprint:   fmt.Sprintf("%016x", fp),
		Entries:       ds.Describe(),
	})
}
