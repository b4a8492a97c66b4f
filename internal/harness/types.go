package harness

import (
	"fmt"

	"github.com/roach88/datapipe/internal/observer"
	"github.com/roach88/datapipe/internal/result"
)

// TraceEvent is one node message recorded while a scenario ran.
type TraceEvent struct {
	Node    int    `json:"node"`
	Filter  string `json:"filter"`
	Type    string `json:"type"`
	Code    int    `json:"code,omitempty"`
	Percent int    `json:"percent,omitempty"`
	Text    string `json:"text,omitempty"`
	OldPath string `json:"old_path,omitempty"`
	NewPath string `json:"new_path,omitempty"`
}

func (e TraceEvent) String() string {
	switch e.Type {
	case observer.Progress.String():
		return fmt.Sprintf("[%d %s] %s %d%%: %s", e.Node, e.Filter, e.Type, e.Percent, e.Text)
	case observer.Warning.String(), observer.Error.String():
		return fmt.Sprintf("[%d %s] %s %d: %s", e.Node, e.Filter, e.Type, e.Code, e.Text)
	case observer.OutputRenamed.String():
		return fmt.Sprintf("[%d %s] %s: %s -> %s", e.Node, e.Filter, e.Type, e.OldPath, e.NewPath)
	default:
		return fmt.Sprintf("[%d %s] %s: %s", e.Node, e.Filter, e.Type, e.Text)
	}
}

// Fault is the node that stopped a scenario run.
type Fault struct {
	Node   int            `json:"node"`
	Filter string         `json:"filter"`
	Errors []result.Error `json:"errors"`
}

// HasCode reports whether any of the fault's errors carries code.
func (f *Fault) HasCode(code int) bool {
	for _, e := range f.Errors {
		if e.Code == code {
			return true
		}
	}
	return false
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Trace holds the node messages in emission order.
	Trace []TraceEvent `json:"trace"`

	// Errors lists the failed assertions.
	Errors []string `json:"errors,omitempty"`

	// Structure is the final data structure, one line per path.
	Structure string `json:"structure"`

	// Fault is set when the run stopped at a failing node.
	Fault *Fault `json:"fault,omitempty"`

	// Cancelled is set when the run was cancelled.
	Cancelled bool `json:"cancelled,omitempty"`
}

// NewResult returns a passing result with no events.
func NewResult() *Result {
	return &Result{Pass: true, Trace: []TraceEvent{}, Errors: []string{}}
}

// AddError records a failed assertion and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
