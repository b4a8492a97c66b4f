// Package action describes mutations of a data.Structure as values.
//
// A filter's preflight returns an OutputActions list instead of editing the
// store. The same list is applied twice: once in Preflight mode, producing
// shape-only placeholder payloads so later preflights can validate without
// allocating, and once in Execute mode, allocating real payloads.
package action

import (
	"errors"
	"fmt"

	"github.com/roach88/datapipe/internal/data"
	"github.com/roach88/datapipe/internal/result"
)

// Mode selects how payloads are materialized when applying an action.
type Mode int

const (
	// Preflight creates zero-footprint placeholder payloads.
	Preflight Mode = iota + 1
	// Execute allocates real payloads.
	Execute
)

func (m Mode) String() string {
	switch m {
	case Preflight:
		return "preflight"
	case Execute:
		return "execute"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Action is one immutable mutation of a Structure.
type Action interface {
	// Paths returns the paths the action targets.
	Paths() []data.Path
	// Apply performs the mutation. A failed Apply leaves ds unchanged.
	Apply(ds *data.Structure, mode Mode) error
	String() string
}

// CreationAction is implemented by actions that create objects. Rename
// detection only needs the created paths, not the payload details.
type CreationAction interface {
	Action
	CreatedPaths() []data.Path
}

// OutputActions is the ordered result of a preflight. Deferred actions run
// after every regular action, which lets a filter delete inputs it still
// reads while creating outputs.
type OutputActions struct {
	Actions  []Action
	Deferred []Action
}

// Append adds regular actions.
func (o *OutputActions) Append(actions ...Action) {
	o.Actions = append(o.Actions, actions...)
}

// Defer adds deferred actions.
func (o *OutputActions) Defer(actions ...Action) {
	o.Deferred = append(o.Deferred, actions...)
}

// Len returns the total number of actions.
func (o OutputActions) Len() int { return len(o.Actions) + len(o.Deferred) }

// All returns regular then deferred actions in application order.
func (o OutputActions) All() []Action {
	out := make([]Action, 0, o.Len())
	out = append(out, o.Actions...)
	return append(out, o.Deferred...)
}

// CreatedPaths returns the paths created by every CreationAction, in order.
func (o OutputActions) CreatedPaths() []data.Path {
	var out []data.Path
	for _, a := range o.All() {
		if c, ok := a.(CreationAction); ok {
			out = append(out, c.CreatedPaths()...)
		}
	}
	return out
}

// ApplyError reports the action at which application stopped.
type ApplyError struct {
	Index  int
	Action Action
	Err    error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("action %d (%s): %v", e.Index, e.Action, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }

// Apply applies every action in order and returns how many succeeded.
//
// Each action is all-or-nothing, but the list is not: application stops at
// the first failure and earlier actions remain applied. Callers must not
// retry a partially applied list; they re-preflight from a clean store.
func (o OutputActions) Apply(ds *data.Structure, mode Mode) (int, error) {
	for i, a := range o.All() {
		if err := a.Apply(ds, mode); err != nil {
			return i, &ApplyError{Index: i, Action: a, Err: err}
		}
	}
	return o.Len(), nil
}

// ToResult converts an Apply error into a coded structural error.
func ToResult(err error) result.Error {
	var coded result.Error
	if errors.As(err, &coded) {
		return coded
	}
	code := result.CodeActionFailed
	switch {
	case errors.Is(err, data.ErrNotFound):
		code = result.CodePathNotFound
	case errors.Is(err, data.ErrExists):
		code = result.CodePathExists
	case errors.Is(err, data.ErrTypeMismatch), errors.Is(err, data.ErrNotContainer):
		code = result.CodeTypeMismatch
	case errors.Is(err, data.ErrShapeMismatch):
		code = result.CodeShapeMismatch
	}
	return result.NewStructural(code, "%v", err)
}
