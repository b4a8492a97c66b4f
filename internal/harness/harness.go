package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/datapipe/internal/data"
	"github.com/roach88/datapipe/internal/filter"
	"github.com/roach88/datapipe/internal/filter/builtin"
	"github.com/roach88/datapipe/internal/observer"
	"github.com/roach88/datapipe/internal/pipeline"
	"github.com/roach88/datapipe/internal/testutil"
)

// WorkPlaceholder replaces the scratch directory in recorded messages so
// traces are identical across runs.
const WorkPlaceholder = "$WORK"

// traced lists the message types kept in a Result trace. Run and fault
// state changes are left out; assertions read them from the pipeline.
var traced = map[observer.Type]bool{
	observer.Info:          true,
	observer.Progress:      true,
	observer.Warning:       true,
	observer.Error:         true,
	observer.OutputRenamed: true,
}

// Harness runs one scenario against a filter registry inside a scratch
// directory.
type Harness struct {
	reg      *filter.Registry
	dir      string
	recorder *testutil.Recorder
}

// Run executes a scenario with the built-in filters.
func Run(scenario *Scenario) (*Result, error) {
	return RunWithRegistry(scenario, builtin.NewRegistry())
}

// RunWithRegistry executes a scenario with the filters in reg.
//
// Execution flow:
//  1. Build the pipeline from the steps in a fresh scratch directory
//  2. When edits are present, preflight once and apply them
//  3. Preflight or execute according to the scenario mode
//  4. Evaluate assertions against the final structure and the trace
func RunWithRegistry(scenario *Scenario, reg *filter.Registry) (*Result, error) {
	dir, err := os.MkdirTemp("", "datapipe-harness-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer os.RemoveAll(dir)

	h := &Harness{reg: reg, dir: dir, recorder: &testutil.Recorder{}}
	pl, err := h.build(scenario)
	if err != nil {
		return nil, err
	}
	sub := pl.Bus().Subscribe(h.recorder)
	defer sub.Close()

	ctx := context.Background()
	if len(scenario.Edits) > 0 {
		// A fault here is expected when the edits are the fix.
		if err := pl.Preflight(ctx); err != nil && !pipeline.IsFault(err) {
			return nil, fmt.Errorf("failed to preflight before edits: %w", err)
		}
		if err := h.applyEdits(pl, scenario.Edits); err != nil {
			return nil, err
		}
	}

	var runErr error
	if scenario.Mode == ModePreflight {
		runErr = pl.Preflight(ctx)
	} else {
		runErr = pl.Execute(ctx)
	}

	result := NewResult()
	var fe *pipeline.FaultError
	switch {
	case runErr == nil:
	case pipeline.IsCancelled(runErr):
		result.Cancelled = true
	case errors.As(runErr, &fe):
		result.Fault = &Fault{Node: fe.Index, Filter: fe.Filter, Errors: fe.Errors}
	default:
		return nil, fmt.Errorf("failed to run pipeline: %w", runErr)
	}

	ds := finalStructure(pl, scenario.Mode, result.Fault)
	if ds != nil {
		result.Structure = ds.DescribeText()
	}
	result.Trace = h.trace()

	actx := &AssertionContext{Pipeline: pl, Structure: ds}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	if result.Fault != nil && !expectsFault(scenario.Assertions) {
		result.AddError(fmt.Sprintf("unexpected fault at node %d (%s): %v",
			result.Fault.Node, result.Fault.Filter, result.Fault.Errors))
	}
	slog.Debug("scenario finished", "scenario", scenario.Name, "pass", result.Pass, "events", len(result.Trace))
	return result, nil
}

func (h *Harness) build(scenario *Scenario) (*pipeline.Pipeline, error) {
	pl := pipeline.New(scenario.Name)
	for i, step := range scenario.Steps {
		f, ok := h.reg.NewByName(step.Filter)
		if !ok {
			return nil, fmt.Errorf("steps[%d]: unknown filter %q", i, step.Filter)
		}
		args, err := h.decodeArgs(f, step.Args)
		if err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
		n := pl.Append(f, args)
		n.SetComment(step.Comment)
		if step.Disabled {
			if err := pl.SetDisabled(i, true); err != nil {
				return nil, err
			}
		}
	}
	return pl, nil
}

func (h *Harness) applyEdits(pl *pipeline.Pipeline, edits []Edit) error {
	for i, edit := range edits {
		n, err := pl.Node(edit.Node)
		if err != nil {
			return fmt.Errorf("edits[%d]: %w", i, err)
		}
		args, err := h.decodeArgs(n.Filter(), edit.Args)
		if err != nil {
			return fmt.Errorf("edits[%d]: %w", i, err)
		}
		if err := pl.SetArguments(edit.Node, args); err != nil {
			return fmt.Errorf("edits[%d]: %w", i, err)
		}
	}
	return nil
}

// decodeArgs runs YAML values through the filter's JSON decoding. Values
// that fail to decode are kept and fail preflight, as in a loaded pipeline.
func (h *Harness) decodeArgs(f filter.Filter, raw map[string]any) (filter.Arguments, error) {
	msgs := make(map[string]json.RawMessage, len(raw))
	for name, v := range raw {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", name, err)
		}
		msgs[name] = b
	}
	args, _ := f.Parameters().Decode(msgs)
	for _, p := range f.Parameters() {
		if p.Kind != filter.KindFile {
			continue
		}
		if s, ok := args[p.Name].(string); ok && s != "" && !filepath.IsAbs(s) {
			args[p.Name] = filepath.Join(h.dir, s)
		}
	}
	return args, nil
}

func (h *Harness) trace() []TraceEvent {
	var out []TraceEvent
	for _, m := range h.recorder.Messages() {
		if !traced[m.Type] || m.Node < 0 {
			continue
		}
		ev := TraceEvent{
			Node:    m.Node,
			Filter:  m.Filter,
			Type:    m.Type.String(),
			Code:    m.Code,
			Percent: m.Percent,
			Text:    strings.ReplaceAll(m.Text, h.dir, WorkPlaceholder),
		}
		if m.Type == observer.OutputRenamed {
			ev.OldPath = m.OldPath.String()
			ev.NewPath = m.NewPath.String()
		}
		out = append(out, ev)
	}
	if out == nil {
		out = []TraceEvent{}
	}
	return out
}

// finalStructure is the output of the last node that ran successfully.
func finalStructure(pl *pipeline.Pipeline, mode string, fault *Fault) *data.Structure {
	last := pl.Len() - 1
	if fault != nil {
		last = fault.Node - 1
	}
	if last < 0 {
		return data.NewStructure()
	}
	n, err := pl.Node(last)
	if err != nil {
		return nil
	}
	if mode == ModePreflight {
		return n.PreflightStructure()
	}
	return n.ExecuteStructure()
}

func expectsFault(assertions []Assertion) bool {
	for _, a := range assertions {
		if a.Type == AssertFault {
			return true
		}
	}
	return false
}
