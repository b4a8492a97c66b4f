package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/datapipe/internal/data"
	"github.com/roach88/datapipe/internal/filter"
	"github.com/roach88/datapipe/internal/observer"
	"github.com/roach88/datapipe/internal/result"
)

// Pipeline is an ordered list of nodes run against one threaded-through
// structure. It is not safe for concurrent use except for Cancel and the
// message bus.
type Pipeline struct {
	name          string
	nodes         []*Node
	forwards      []*observer.Subscription
	input         *data.Structure
	bus           *observer.Bus
	detectRenames bool
	spiller       *data.Spiller
	faultState    observer.FaultState

	mu     sync.Mutex
	cancel *filter.CancelToken
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRenameDetection toggles rename detection during preflight. It is on
// by default.
func WithRenameDetection(enabled bool) Option {
	return func(p *Pipeline) { p.detectRenames = enabled }
}

// WithSpiller moves large arrays of each executed snapshot out of core.
func WithSpiller(sp *data.Spiller) Option {
	return func(p *Pipeline) { p.spiller = sp }
}

// WithInput sets the structure the first node receives. The pipeline keeps
// its own copy.
func WithInput(ds *data.Structure) Option {
	return func(p *Pipeline) { p.input = ds.Clone() }
}

// New returns an empty pipeline.
func New(name string, opts ...Option) *Pipeline {
	p := &Pipeline{
		name:          name,
		input:         data.NewStructure(),
		bus:           observer.NewBus(),
		detectRenames: true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) Name() string        { return p.name }
func (p *Pipeline) SetName(name string) { p.name = name }
func (p *Pipeline) Len() int            { return len(p.nodes) }
func (p *Pipeline) Bus() *observer.Bus  { return p.bus }
func (p *Pipeline) Nodes() []*Node      { return append([]*Node(nil), p.nodes...) }

// FaultState is the outcome of the last completed or failed run.
func (p *Pipeline) FaultState() observer.FaultState { return p.faultState }

// Node returns the node at index i.
func (p *Pipeline) Node(i int) (*Node, error) {
	if i < 0 || i >= len(p.nodes) {
		return nil, fmt.Errorf("node %d: %w", i, ErrIndex)
	}
	return p.nodes[i], nil
}

// SetInput replaces the structure the first node receives and dirties every
// node.
func (p *Pipeline) SetInput(ds *data.Structure) {
	discard(p.input)
	p.input = ds.Clone()
	p.invalidateFrom(0)
}

// Append adds a node for f at the end.
func (p *Pipeline) Append(f filter.Filter, args filter.Arguments) *Node {
	n, _ := p.Insert(len(p.nodes), f, args)
	return n
}

// Insert adds a node for f at index i, shifting later nodes down.
func (p *Pipeline) Insert(i int, f filter.Filter, args filter.Arguments) (*Node, error) {
	n := NewNode(f, args)
	if err := p.insertNode(i, n); err != nil {
		return nil, err
	}
	return n, nil
}

func (p *Pipeline) insertNode(i int, n *Node) error {
	if i < 0 || i > len(p.nodes) {
		return fmt.Errorf("insert at %d: %w", i, ErrIndex)
	}
	p.nodes = append(p.nodes[:i], append([]*Node{n}, p.nodes[i:]...)...)
	p.forwards = append(p.forwards[:i], append([]*observer.Subscription{observer.Forward(n.bus, p.bus)}, p.forwards[i:]...)...)
	p.reindex()
	p.invalidateFrom(i)
	p.bus.Emit(observer.Message{Type: observer.NodeAdded, Node: i, Filter: n.Name()})
	return nil
}

// Remove deletes the node at index i.
func (p *Pipeline) Remove(i int) error {
	if i < 0 || i >= len(p.nodes) {
		return fmt.Errorf("remove %d: %w", i, ErrIndex)
	}
	n := p.nodes[i]
	n.invalidate()
	p.forwards[i].Close()
	p.nodes = append(p.nodes[:i], p.nodes[i+1:]...)
	p.forwards = append(p.forwards[:i], p.forwards[i+1:]...)
	p.reindex()
	p.invalidateFrom(i)
	p.bus.Emit(observer.Message{Type: observer.NodeRemoved, Node: i, Filter: n.Name()})
	return nil
}

// SetArguments replaces the arguments of node i and dirties it and every
// node after it.
func (p *Pipeline) SetArguments(i int, args filter.Arguments) error {
	n, err := p.Node(i)
	if err != nil {
		return err
	}
	n.args = args.Clone()
	p.invalidateFrom(i)
	return nil
}

// SetDisabled enables or disables node i. Disabled nodes pass their input
// through unchanged.
func (p *Pipeline) SetDisabled(i int, disabled bool) error {
	n, err := p.Node(i)
	if err != nil {
		return err
	}
	if n.disabled != disabled {
		n.disabled = disabled
		p.invalidateFrom(i)
	}
	return nil
}

func (p *Pipeline) reindex() {
	for i, n := range p.nodes {
		n.index = i
	}
}

func (p *Pipeline) invalidateFrom(i int) {
	for _, n := range p.nodes[i:] {
		n.invalidate()
	}
}

// CanPreflightFrom reports whether PreflightFrom(i) has a valid input.
func (p *Pipeline) CanPreflightFrom(i int) bool {
	if i < 0 || i > len(p.nodes) {
		return false
	}
	return i == 0 || p.nodes[i-1].canPreflightAfter()
}

// CanExecuteFrom reports whether ExecuteFrom(i) has a valid input.
func (p *Pipeline) CanExecuteFrom(i int) bool {
	if i < 0 || i > len(p.nodes) {
		return false
	}
	return i == 0 || p.nodes[i-1].canExecuteAfter()
}

// Preflight runs every node in preflight mode.
func (p *Pipeline) Preflight(ctx context.Context) error {
	return p.PreflightFrom(ctx, 0)
}

// PreflightFrom preflights nodes [i, end) starting from node i-1's
// preflight snapshot. It stops at the first failing node and returns a
// *FaultError for it.
func (p *Pipeline) PreflightFrom(ctx context.Context, i int) error {
	if !p.CanPreflightFrom(i) {
		return fmt.Errorf("preflight from %d: %w", i, ErrCannotResume)
	}
	ctx, span := tracer.Start(ctx, "pipeline.preflight")
	defer span.End()
	p.queue(i)
	defer p.unqueue()

	var cur *data.Structure
	if i == 0 {
		cur = p.input.CloneMetadata()
	} else {
		cur = p.nodes[i-1].preflightDS.Clone()
	}

	slog.Info("pipeline preflight starting", "pipeline", p.name, "from", i, "nodes", len(p.nodes))
	warned := false
	for j := i; j < len(p.nodes); j++ {
		n := p.nodes[j]
		renames, res := n.preflight(ctx, cur, p.detectRenames)
		if !res.Valid() {
			return p.fault(j, n, res)
		}
		warned = warned || len(res.Warnings) > 0
		if len(renames) > 0 {
			p.applyRenames(j, renames)
		}
		if j+1 < len(p.nodes) {
			cur = n.preflightDS.Clone()
		}
	}
	p.settle(warned)
	slog.Info("pipeline preflight complete", "pipeline", p.name)
	return nil
}

// Execute runs every node.
func (p *Pipeline) Execute(ctx context.Context) error {
	return p.ExecuteFrom(ctx, 0)
}

// ExecuteFrom executes nodes [i, end) starting from node i-1's executed
// snapshot. It stops at the first failing node and returns a *FaultError,
// or ErrCancelled when the run was cancelled through ctx or Cancel.
func (p *Pipeline) ExecuteFrom(ctx context.Context, i int) error {
	if !p.CanExecuteFrom(i) {
		return fmt.Errorf("execute from %d: %w", i, ErrCannotResume)
	}
	ctx, span := tracer.Start(ctx, "pipeline.execute")
	defer span.End()
	p.queue(i)
	defer p.unqueue()

	token := filter.NewCancelToken()
	stop := token.BindContext(ctx)
	defer stop()
	p.mu.Lock()
	p.cancel = token
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.cancel = nil
		p.mu.Unlock()
	}()

	var cur *data.Structure
	if i == 0 {
		cur = p.input.Clone()
	} else {
		cur = p.nodes[i-1].executeDS.Clone()
	}

	slog.Info("pipeline execute starting", "pipeline", p.name, "from", i, "nodes", len(p.nodes))
	warned := false
	for j := i; j < len(p.nodes); j++ {
		if token.Cancelled() {
			discard(cur)
			return p.cancelled(j)
		}
		n := p.nodes[j]
		res := n.execute(ctx, cur, token)
		if res.IsCancelled() {
			return p.cancelled(j)
		}
		if !res.Valid() {
			return p.fault(j, n, res)
		}
		warned = warned || len(res.Warnings) > 0
		if p.spiller != nil {
			moved, err := p.spiller.Spill(ctx, n.executeDS)
			if err != nil {
				res := result.Fail(result.FromError(result.Runtime, result.CodeIO, err))
				n.fail(span, res)
				n.dropExecuted()
				return p.fault(j, n, res)
			}
			if moved > 0 {
				slog.Debug("spilled arrays", "node", j, "arrays", moved)
			}
		}
		if j+1 < len(p.nodes) {
			cur = n.executeDS.Clone()
		}
	}
	p.settle(warned)
	slog.Info("pipeline execute complete", "pipeline", p.name)
	return nil
}

// Close drops every node's snapshots and deletes their out-of-core
// payloads. The pipeline can still be run afterwards.
func (p *Pipeline) Close() {
	p.invalidateFrom(0)
}

// Cancel asks the running Execute to stop at the next point the current
// filter checks. It is safe to call from another goroutine.
func (p *Pipeline) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancel.Cancel()
}

// Output returns a copy of the last node's executed structure, the input
// for an empty pipeline, or nil when the last node has not executed.
func (p *Pipeline) Output() *data.Structure {
	if len(p.nodes) == 0 {
		return p.input.Clone()
	}
	return p.nodes[len(p.nodes)-1].ExecuteStructure()
}

// PreflightOutput is Output for the preflight snapshots.
func (p *Pipeline) PreflightOutput() *data.Structure {
	if len(p.nodes) == 0 {
		return p.input.CloneMetadata()
	}
	return p.nodes[len(p.nodes)-1].PreflightStructure()
}

// applyRenames rewrites the path arguments of the nodes after index i.
// Earlier nodes run before node i and cannot refer to its output.
func (p *Pipeline) applyRenames(i int, renames []Rename) {
	src := p.nodes[i]
	for _, r := range renames {
		slog.Info("output renamed", "node", i, "filter", src.Name(), "old", r.Old.String(), "new", r.New.String())
		src.emit(observer.Message{Type: observer.OutputRenamed, OldPath: r.Old, NewPath: r.New})
		for _, n := range p.nodes[i+1:] {
			if changed := n.args.ReplacePathPrefix(r.Old, r.New); len(changed) > 0 {
				slog.Debug("arguments rewritten", "node", n.index, "args", changed)
				n.invalidate()
			}
		}
	}
}

func (p *Pipeline) fault(i int, n *Node, res result.Result) error {
	p.setFaultState(observer.Errors)
	return &FaultError{Index: i, Filter: n.Name(), Errors: res.Errors}
}

func (p *Pipeline) cancelled(i int) error {
	slog.Info("pipeline cancelled", "pipeline", p.name, "node", i)
	return fmt.Errorf("node %d: %w", i, ErrCancelled)
}

// queue marks nodes [i, end) as waiting for the run that is starting.
func (p *Pipeline) queue(i int) {
	for _, n := range p.nodes[i:] {
		n.setRunState(observer.Queued)
	}
}

// unqueue returns the nodes a stopped run never reached to idle.
func (p *Pipeline) unqueue() {
	for _, n := range p.nodes {
		if n.runState == observer.Queued {
			n.setRunState(observer.Idle)
		}
	}
}

func (p *Pipeline) settle(warned bool) {
	if !warned {
		for _, n := range p.nodes {
			if n.faultState == observer.Warnings {
				warned = true
				break
			}
		}
	}
	if warned {
		p.setFaultState(observer.Warnings)
	} else {
		p.setFaultState(observer.NoFault)
	}
}

func (p *Pipeline) setFaultState(s observer.FaultState) {
	if p.faultState == s {
		return
	}
	p.faultState = s
	p.bus.Emit(observer.Message{Type: observer.FaultStateChanged, Node: -1, Filter: p.name, FaultState: s})
}
