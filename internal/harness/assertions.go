package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/datapipe/internal/data"
	"github.com/roach88/datapipe/internal/observer"
	"github.com/roach88/datapipe/internal/pipeline"
)

// AssertionContext provides what assertions inspect besides the result.
type AssertionContext struct {
	Pipeline  *pipeline.Pipeline
	Structure *data.Structure
}

// AssertionError is returned when an assertion fails. It carries the trace
// so a failure can be read without re-running the scenario.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nTrace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  %s\n", ev)
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns one message per
// failure.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d (%s): %v", i, a.Type, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertFault:
		return assertFault(result, a)
	case AssertWarning:
		return assertWarning(result, a)
	case AssertArgument:
		return assertArgument(actx.Pipeline, a)
	}

	if actx.Structure == nil {
		return &AssertionError{Type: a.Type, Expected: "a final structure", Actual: "none", Trace: result.Trace}
	}
	ds := actx.Structure
	switch a.Type {
	case AssertExists:
		return assertExists(ds, a)
	case AssertAbsent:
		return assertAbsent(ds, a)
	case AssertKind:
		return assertKind(ds, a)
	case AssertValues:
		return assertValues(ds, a)
	case AssertShared:
		return assertShared(ds, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func parse(s string) (data.Path, error) {
	p, err := data.ParsePath(s)
	if err != nil {
		return data.Path{}, fmt.Errorf("bad path %q: %w", s, err)
	}
	return p, nil
}

func assertExists(ds *data.Structure, a Assertion) error {
	p, err := parse(a.Path)
	if err != nil {
		return err
	}
	if !ds.Contains(p) {
		return &AssertionError{Type: a.Type, Expected: "object at " + a.Path, Actual: "nothing"}
	}
	return nil
}

func assertAbsent(ds *data.Structure, a Assertion) error {
	p, err := parse(a.Path)
	if err != nil {
		return err
	}
	if obj, ok := ds.Get(p); ok {
		return &AssertionError{Type: a.Type, Expected: "nothing at " + a.Path, Actual: obj.Kind().String()}
	}
	return nil
}

func assertKind(ds *data.Structure, a Assertion) error {
	p, err := parse(a.Path)
	if err != nil {
		return err
	}
	obj, ok := ds.Get(p)
	if !ok {
		return &AssertionError{Type: a.Type, Expected: a.Kind + " at " + a.Path, Actual: "nothing"}
	}
	if got := obj.Kind().String(); got != a.Kind {
		return &AssertionError{Type: a.Type, Expected: a.Kind, Actual: got}
	}
	return nil
}

func assertValues(ds *data.Structure, a Assertion) error {
	p, err := parse(a.Path)
	if err != nil {
		return err
	}
	arr, err := ds.Array(p)
	if err != nil {
		return &AssertionError{Type: a.Type, Expected: "array at " + a.Path, Actual: err.Error()}
	}
	got := make([]float64, arr.Len())
	for i := range got {
		got[i] = arr.Value(i)
	}
	if !slices.Equal(got, a.Values) {
		return &AssertionError{Type: a.Type, Expected: fmt.Sprint(a.Values), Actual: fmt.Sprint(got)}
	}
	return nil
}

func assertShared(ds *data.Structure, a Assertion) error {
	var first data.ID
	for i, s := range a.Paths {
		p, err := parse(s)
		if err != nil {
			return err
		}
		obj, ok := ds.Get(p)
		if !ok {
			return &AssertionError{Type: a.Type, Expected: "object at " + s, Actual: "nothing"}
		}
		if i == 0 {
			first = obj.ID()
			continue
		}
		if obj.ID() != first {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%s to be object %d", s, first),
				Actual:   fmt.Sprintf("object %d", obj.ID()),
			}
		}
	}
	return nil
}

func assertFault(result *Result, a Assertion) error {
	if result.Fault == nil {
		return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("fault at node %d", *a.Node), Actual: "run succeeded", Trace: result.Trace}
	}
	if result.Fault.Node != *a.Node {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("fault at node %d", *a.Node),
			Actual:   fmt.Sprintf("fault at node %d", result.Fault.Node),
			Trace:    result.Trace,
		}
	}
	if a.Code != 0 && !result.Fault.HasCode(a.Code) {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("error code %d", a.Code),
			Actual:   fmt.Sprint(result.Fault.Errors),
		}
	}
	return nil
}

func assertWarning(result *Result, a Assertion) error {
	for _, ev := range result.Trace {
		if ev.Type == observer.Warning.String() && ev.Node == *a.Node && (a.Code == 0 || ev.Code == a.Code) {
			return nil
		}
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("warning %d from node %d", a.Code, *a.Node),
		Actual:   "not found in trace",
		Trace:    result.Trace,
	}
}

func assertArgument(pl *pipeline.Pipeline, a Assertion) error {
	n, err := pl.Node(*a.Node)
	if err != nil {
		return err
	}
	v, ok := n.Arguments()[a.Name]
	if !ok {
		return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("argument %q", a.Name), Actual: "missing"}
	}
	if got := fmt.Sprint(v); got != a.Value {
		return &AssertionError{Type: a.Type, Expected: a.Value, Actual: got}
	}
	return nil
}
