// Package filter defines the contract between the pipeline engine and the
// transformation steps it runs.
//
// The engine never inspects a filter beyond this contract: identity,
// parameter schema, Preflight, Execute and Clone. Preflight inspects a store
// and returns actions; it must not edit the store it is given. Execute runs
// after the engine has applied those actions in Execute mode and computes
// the real values.
package filter

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/roach88/datapipe/internal/action"
	"github.com/roach88/datapipe/internal/data"
	"github.com/roach88/datapipe/internal/result"
)

// Filter is one transformation step.
type Filter interface {
	// UUID is the stable identity used in pipeline files.
	UUID() uuid.UUID
	// Name is the machine name, e.g. "CreateDataArrayFilter".
	Name() string
	// HumanName is the display name.
	HumanName() string
	// Parameters declares the arguments the filter accepts.
	Parameters() Parameters
	// Preflight validates args against ds and describes the filter's
	// structural effect. The engine passes a metadata-only copy of its store.
	Preflight(ds *data.Structure, args Arguments, msgs MessageHandler) PreflightResult
	// Execute computes values in ds, which already holds the structure the
	// preflight actions describe. Execute must poll cancel and return a
	// Cancelled result when it is set.
	Execute(ds *data.Structure, args Arguments, msgs MessageHandler, cancel *CancelToken) result.Result
	// Clone returns an independent instance.
	Clone() Filter
}

// PreflightValue is a named value a filter reports for display, such as
// the size of a geometry it would create.
type PreflightValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// PreflightResult is the outcome of Filter.Preflight.
type PreflightResult struct {
	Actions action.OutputActions
	Values  []PreflightValue
	result.Result
}

// PreflightOK wraps actions in a successful result.
func PreflightOK(actions action.OutputActions) PreflightResult {
	return PreflightResult{Actions: actions}
}

// PreflightFail returns a failed preflight result.
func PreflightFail(errs ...result.Error) PreflightResult {
	return PreflightResult{Result: result.Fail(errs...)}
}

// CancelToken is a cooperative cancellation flag shared between the caller
// and a running filter. The engine never interrupts a filter; the filter
// checks the flag at points of its choosing.
type CancelToken struct {
	flag atomic.Bool
}

// NewCancelToken returns an unset token.
func NewCancelToken() *CancelToken {
	return &CancelToken{}
}

// Cancel sets the flag. Safe from any goroutine.
func (t *CancelToken) Cancel() {
	if t != nil {
		t.flag.Store(true)
	}
}

// Cancelled reports whether Cancel was called. A nil token is never cancelled.
func (t *CancelToken) Cancelled() bool {
	return t != nil && t.flag.Load()
}

// BindContext cancels the token when ctx is done. The returned function
// stops the binding.
func (t *CancelToken) BindContext(ctx context.Context) (stop func() bool) {
	return context.AfterFunc(ctx, t.Cancel)
}
