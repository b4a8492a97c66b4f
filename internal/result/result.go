// Package result defines the coded warnings and errors that flow across the
// filter boundary.
//
// Every filter call returns a value from this package instead of panicking.
// Errors carry a numeric code, a Kind used by the pipeline to decide how to
// react, and a human-readable message. Warnings never stop a pipeline.
package result

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error for the pipeline.
type Kind int

const (
	// Validation reports a bad or missing argument, found during preflight.
	Validation Kind = iota + 1
	// Structural reports a missing path or a type/shape mismatch.
	Structural
	// Runtime reports a failure while executing, e.g. an I/O error.
	Runtime
	// Cancelled reports cooperative cancellation. It is not a failure.
	Cancelled
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Structural:
		return "structural"
	case Runtime:
		return "runtime"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind as its lowercase name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *Kind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "validation":
		*k = Validation
	case "structural":
		*k = Structural
	case "runtime":
		*k = Runtime
	case "cancelled":
		*k = Cancelled
	default:
		return fmt.Errorf("unknown error kind %q", string(b))
	}
	return nil
}

// Well-known codes produced by the engine itself. Filters use their own
// codes; the engine only relies on the Kind.
const (
	CodeMissingArgument   = -100
	CodeInvalidArgument   = -101
	CodeConstraint        = -102
	CodePathNotFound      = -200
	CodePathExists        = -201
	CodeTypeMismatch      = -202
	CodeShapeMismatch     = -203
	CodeActionFailed      = -204
	CodeUnresolvedFilter  = -205
	CodeFilterPanic       = -300
	CodeIO                = -301
	CodeCancelled         = -400
	CodeWarningDeprecated = 100
)

// Error is a coded failure reported by a filter or by the engine.
type Error struct {
	Code    int    `json:"code"`
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e Error) Error() string {
	return fmt.Sprintf("%s error %d: %s", e.Kind, e.Code, e.Message)
}

// Warning is a coded, non-fatal diagnostic.
type Warning struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("warning %d: %s", w.Code, w.Message)
}

// NewValidation creates a Validation error.
func NewValidation(code int, format string, args ...any) Error {
	return Error{Code: code, Kind: Validation, Message: fmt.Sprintf(format, args...)}
}

// NewStructural creates a Structural error.
func NewStructural(code int, format string, args ...any) Error {
	return Error{Code: code, Kind: Structural, Message: fmt.Sprintf(format, args...)}
}

// NewRuntime creates a Runtime error.
func NewRuntime(code int, format string, args ...any) Error {
	return Error{Code: code, Kind: Runtime, Message: fmt.Sprintf(format, args...)}
}

// NewCancelled creates the Cancelled outcome.
func NewCancelled() Error {
	return Error{Code: CodeCancelled, Kind: Cancelled, Message: "operation was cancelled"}
}

// FromError converts an arbitrary error into a coded Error. Errors that
// already are (or wrap) an Error are returned unchanged.
func FromError(kind Kind, code int, err error) Error {
	var re Error
	if errors.As(err, &re) {
		return re
	}
	return Error{Code: code, Kind: kind, Message: err.Error()}
}

// Result aggregates the errors and warnings of a single filter call.
type Result struct {
	Errors   []Error   `json:"errors,omitempty"`
	Warnings []Warning `json:"warnings,omitempty"`
}

// OK returns an empty, successful result.
func OK() Result {
	return Result{}
}

// Fail returns a result holding the given errors.
func Fail(errs ...Error) Result {
	return Result{Errors: errs}
}

// Valid reports whether the result holds no errors.
func (r Result) Valid() bool {
	return len(r.Errors) == 0
}

// IsCancelled reports whether the only failure is cancellation.
func (r Result) IsCancelled() bool {
	if len(r.Errors) == 0 {
		return false
	}
	for _, e := range r.Errors {
		if e.Kind != Cancelled {
			return false
		}
	}
	return true
}

// Warn appends a warning.
func (r *Result) Warn(code int, format string, args ...any) {
	r.Warnings = append(r.Warnings, Warning{Code: code, Message: fmt.Sprintf(format, args...)})
}

// Merge appends other's errors and warnings to r.
func (r *Result) Merge(other Result) {
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// Err returns the result as a Go error, or nil when valid.
func (r Result) Err() error {
	if r.Valid() {
		return nil
	}
	if len(r.Errors) == 1 {
		return r.Errors[0]
	}
	return Errors(r.Errors)
}

// Errors is a list of coded errors usable as a single error value.
type Errors []Error

func (es Errors) Error() string {
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// Unwrap exposes each coded error to errors.Is/As.
func (es Errors) Unwrap() []error {
	out := make([]error, len(es))
	for i, e := range es {
		out[i] = e
	}
	return out
}
