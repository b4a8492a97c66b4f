package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/datapipe/internal/action"
	"github.com/roach88/datapipe/internal/data"
	"github.com/roach88/datapipe/internal/filter"
	"github.com/roach88/datapipe/internal/observer"
	"github.com/roach88/datapipe/internal/result"
)

var tracer = otel.Tracer("github.com/roach88/datapipe/internal/pipeline")

// Node is one slot of a pipeline: a configured filter plus the state of its
// last preflight and execute.
//
// A node starts dirty. A successful preflight or execute clears the flag and
// stores the resulting structure as the node's snapshot. A failed preflight
// keeps the preflight snapshot the node had; execute drops the old executed
// snapshot before it runs. Editing the node (or anything upstream of it)
// drops both snapshots.
type Node struct {
	filter   filter.Filter
	args     filter.Arguments
	disabled bool
	comment  string
	raw      json.RawMessage // serialized record of a placeholder

	index      int
	dirty      bool
	runState   observer.RunState
	faultState observer.FaultState
	warnings   []result.Warning
	errors     []result.Error

	created    []data.Path
	hasCreated bool

	preflightDS *data.Structure
	executeDS   *data.Structure

	bus *observer.Bus
}

// NewNode wraps f configured with args.
func NewNode(f filter.Filter, args filter.Arguments) *Node {
	if args == nil {
		args = filter.Arguments{}
	}
	return &Node{
		filter: f,
		args:   args.Clone(),
		dirty:  true,
		bus:    observer.NewBus(),
	}
}

func (n *Node) Filter() filter.Filter { return n.filter }
func (n *Node) Name() string          { return n.filter.Name() }
func (n *Node) Index() int            { return n.index }
func (n *Node) Disabled() bool        { return n.disabled }
func (n *Node) Comment() string       { return n.comment }
func (n *Node) Dirty() bool           { return n.dirty }

// SetComment changes the free-text comment. It does not dirty the node.
func (n *Node) SetComment(c string) { n.comment = c }

// Arguments returns a copy of the configured arguments.
func (n *Node) Arguments() filter.Arguments { return n.args.Clone() }

// IsPlaceholder reports whether the node holds an unresolved filter.
func (n *Node) IsPlaceholder() bool {
	_, ok := n.filter.(*placeholder)
	return ok
}

func (n *Node) RunState() observer.RunState     { return n.runState }
func (n *Node) FaultState() observer.FaultState { return n.faultState }
func (n *Node) Warnings() []result.Warning      { return slices.Clone(n.warnings) }
func (n *Node) Errors() []result.Error          { return slices.Clone(n.errors) }

// CreatedPaths returns the paths the node created on its last successful
// preflight.
func (n *Node) CreatedPaths() []data.Path { return slices.Clone(n.created) }

// Bus returns the node's message bus.
func (n *Node) Bus() *observer.Bus { return n.bus }

// PreflightStructure returns a copy of the post-preflight snapshot, or nil.
func (n *Node) PreflightStructure() *data.Structure {
	if n.preflightDS == nil {
		return nil
	}
	return n.preflightDS.Clone()
}

// ExecuteStructure returns a copy of the post-execute snapshot, or nil.
func (n *Node) ExecuteStructure() *data.Structure {
	if n.executeDS == nil {
		return nil
	}
	return n.executeDS.Clone()
}

func (n *Node) canPreflightAfter() bool { return !n.dirty && n.preflightDS != nil }
func (n *Node) canExecuteAfter() bool   { return !n.dirty && n.executeDS != nil }

// invalidate drops both snapshots. Created paths are kept so the next
// preflight can still detect renames.
func (n *Node) invalidate() {
	n.dirty = true
	n.preflightDS = nil
	n.dropExecuted()
}

// dropExecuted releases the executed snapshot and its out-of-core payloads.
func (n *Node) dropExecuted() {
	discard(n.executeDS)
	n.executeDS = nil
}

// discard deletes the out-of-core payloads of a structure nobody will read
// again.
func discard(ds *data.Structure) {
	if ds == nil {
		return
	}
	if err := ds.Discard(context.Background()); err != nil {
		slog.Warn("failed to delete out-of-core payloads", "error", err)
	}
}

// preflight runs the node on in, which the node takes ownership of.
func (n *Node) preflight(ctx context.Context, in *data.Structure, detect bool) ([]Rename, result.Result) {
	_, span := tracer.Start(ctx, "node.preflight", n.spanAttrs())
	defer span.End()
	n.setRunState(observer.Preflighting)
	defer n.setRunState(observer.Idle)

	if n.disabled {
		n.preflightDS = in
		n.succeed(result.OK())
		return nil, result.OK()
	}

	pr := n.plan(in, n.handler())
	if !pr.Valid() {
		n.fail(span, pr.Result)
		return nil, pr.Result
	}
	if err := applyActions(pr.Actions, in, action.Preflight); err != nil {
		res := pr.Result
		res.Errors = append(res.Errors, action.ToResult(err))
		n.fail(span, res)
		return nil, res
	}

	created := pr.Actions.CreatedPaths()
	var renames []Rename
	if detect && n.hasCreated {
		renames = DetectRenames(n.created, created)
	}
	n.created = created
	n.hasCreated = true
	n.preflightDS = in
	n.succeed(pr.Result)
	slog.Debug("node preflighted",
		"node", n.index,
		"filter", n.Name(),
		"actions", pr.Actions.Len(),
		"warnings", len(pr.Warnings))
	return renames, pr.Result
}

// execute runs the node on ds, which the node takes ownership of. The
// previous executed snapshot is dropped first; ds is discarded unless it
// becomes the new one.
func (n *Node) execute(ctx context.Context, ds *data.Structure, cancel *filter.CancelToken) result.Result {
	_, span := tracer.Start(ctx, "node.execute", n.spanAttrs())
	defer span.End()
	n.setRunState(observer.Executing)
	defer n.setRunState(observer.Idle)

	n.dropExecuted()
	defer func() {
		if n.executeDS != ds {
			discard(ds)
		}
	}()

	if n.disabled {
		n.executeDS = ds
		n.succeed(result.OK())
		return result.OK()
	}

	msgs := n.handler()
	pr := n.plan(ds, msgs)
	if !pr.Valid() {
		n.fail(span, pr.Result)
		return pr.Result
	}
	res := pr.Result
	if err := applyActions(pr.Actions, ds, action.Execute); err != nil {
		res.Errors = append(res.Errors, action.ToResult(err))
		n.fail(span, res)
		return res
	}
	if cancel.Cancelled() {
		res.Errors = append(res.Errors, result.NewCancelled())
		n.cancelled(res)
		return res
	}

	res.Merge(callExecute(n.filter, ds, pr.args, msgs, cancel))
	if res.IsCancelled() {
		n.cancelled(res)
		return res
	}
	if !res.Valid() {
		n.fail(span, res)
		return res
	}
	n.executeDS = ds
	n.succeed(res)
	slog.Debug("node executed",
		"node", n.index,
		"filter", n.Name(),
		"memory", ds.MemoryUsage())
	return res
}

type nodePlan struct {
	filter.PreflightResult
	args filter.Arguments
}

// plan resolves the arguments and asks the filter for its actions. The
// filter only ever sees a metadata copy of in.
func (n *Node) plan(in *data.Structure, msgs filter.MessageHandler) nodePlan {
	params := n.filter.Parameters()
	args, errs := params.Resolve(n.args)
	if len(errs) > 0 {
		return nodePlan{PreflightResult: filter.PreflightFail(errs...)}
	}
	if errs := params.CheckPaths(in, args); len(errs) > 0 {
		return nodePlan{PreflightResult: filter.PreflightFail(errs...)}
	}
	pr := callPreflight(n.filter, in.CloneMetadata(), args.Clone(), msgs)
	return nodePlan{PreflightResult: pr, args: args}
}

func callPreflight(f filter.Filter, ds *data.Structure, args filter.Arguments, msgs filter.MessageHandler) (pr filter.PreflightResult) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("filter panicked", "filter", f.Name(), "phase", "preflight", "panic", r)
			pr = filter.PreflightFail(result.NewRuntime(result.CodeFilterPanic, "%s preflight panicked: %v", f.Name(), r))
		}
	}()
	return f.Preflight(ds, args, msgs)
}

func callExecute(f filter.Filter, ds *data.Structure, args filter.Arguments, msgs filter.MessageHandler, cancel *filter.CancelToken) (res result.Result) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("filter panicked", "filter", f.Name(), "phase", "execute", "panic", r)
			res = result.Fail(result.NewRuntime(result.CodeFilterPanic, "%s execute panicked: %v", f.Name(), r))
		}
	}()
	return f.Execute(ds, args, msgs, cancel)
}

// applyActions applies actions, turning payload I/O panics from out-of-core
// stores into errors.
func applyActions(actions action.OutputActions, ds *data.Structure, mode action.Mode) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = result.NewRuntime(result.CodeIO, "applying actions: %v", r)
		}
	}()
	_, err = actions.Apply(ds, mode)
	return err
}

func (n *Node) succeed(res result.Result) {
	n.dirty = false
	n.errors = nil
	n.warnings = slices.Clone(res.Warnings)
	n.emitDiagnostics()
	if len(n.warnings) > 0 {
		n.setFaultState(observer.Warnings)
	} else {
		n.setFaultState(observer.NoFault)
	}
}

func (n *Node) fail(span trace.Span, res result.Result) {
	n.dirty = true
	n.errors = slices.Clone(res.Errors)
	n.warnings = slices.Clone(res.Warnings)
	span.SetStatus(codes.Error, res.Err().Error())
	slog.Error("node failed",
		"node", n.index,
		"filter", n.Name(),
		"error", res.Err())
	n.emitDiagnostics()
	n.setFaultState(observer.Errors)
}

func (n *Node) cancelled(res result.Result) {
	n.dirty = true
	n.errors = nil
	n.warnings = slices.Clone(res.Warnings)
	slog.Info("node cancelled", "node", n.index, "filter", n.Name())
	if len(n.warnings) > 0 {
		n.setFaultState(observer.Warnings)
	} else {
		n.setFaultState(observer.NoFault)
	}
}

func (n *Node) emitDiagnostics() {
	for _, w := range n.warnings {
		n.emit(observer.Message{Type: observer.Warning, Code: w.Code, Text: w.Message})
	}
	for _, e := range n.errors {
		n.emit(observer.Message{Type: observer.Error, Code: e.Code, Text: e.Message})
	}
}

func (n *Node) setRunState(s observer.RunState) {
	n.runState = s
	n.emit(observer.Message{Type: observer.RunStateChanged, RunState: s})
}

func (n *Node) setFaultState(s observer.FaultState) {
	if n.faultState == s {
		return
	}
	n.faultState = s
	n.emit(observer.Message{Type: observer.FaultStateChanged, FaultState: s})
}

func (n *Node) emit(m observer.Message) {
	m.Node = n.index
	m.Filter = n.Name()
	n.bus.Emit(m)
}

// handler routes filter messages onto the node's bus.
func (n *Node) handler() filter.MessageHandler {
	return func(m filter.Message) {
		msg := observer.Message{Type: observer.Info, Text: m.Text}
		switch m.Type {
		case filter.MessageProgress:
			msg.Type = observer.Progress
			msg.Percent = m.Progress
		case filter.MessageWarning:
			msg.Type = observer.Warning
		case filter.MessageError:
			msg.Type = observer.Error
		}
		n.emit(msg)
	}
}

func (n *Node) spanAttrs() trace.SpanStartOption {
	return trace.WithAttributes(
		attribute.Int("node.index", n.index),
		attribute.String("filter.name", n.Name()),
		attribute.String("filter.uuid", n.filter.UUID().String()),
		attribute.Bool("node.disabled", n.disabled),
	)
}
