package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/datapipe/internal/data"
	"github.com/roach88/datapipe/internal/filter"
	"github.com/roach88/datapipe/internal/filter/builtin"
	"github.com/roach88/datapipe/internal/pipeline"
	"github.com/roach88/datapipe/internal/result"
)

func sharedStructure(t *testing.T) *data.Structure {
	t.Helper()
	ds := data.NewStructure()
	_, err := ds.Insert(data.NewGroup("A"), data.Path{})
	require.NoError(t, err)
	_, err = ds.Insert(data.NewGroup("B"), data.Path{})
	require.NoError(t, err)
	arr := data.NewArray("V", data.Float64, []int{2}, []int{1})
	arr.Fill(0.5)
	id, err := ds.Insert(arr, data.MustParsePath("A"))
	require.NoError(t, err)
	require.NoError(t, ds.AddParent(id, data.MustParsePath("B")))
	return ds
}

func TestEvaluateAssertions_Structure(t *testing.T) {
	actx := &AssertionContext{Structure: sharedStructure(t)}
	passing := []Assertion{
		{Type: AssertExists, Path: "A/V"},
		{Type: AssertAbsent, Path: "C"},
		{Type: AssertKind, Path: "B/V", Kind: "Array"},
		{Type: AssertValues, Path: "B/V", Values: []float64{0.5, 0.5}},
		{Type: AssertShared, Paths: []string{"A/V", "B/V"}},
	}
	assert.Empty(t, EvaluateAssertions(NewResult(), passing, actx))

	failing := []Assertion{
		{Type: AssertShared, Paths: []string{"A", "B"}},
		{Type: AssertValues, Path: "A", Values: []float64{1}},
		{Type: AssertExists, Path: "A//V"},
	}
	errs := EvaluateAssertions(NewResult(), failing, actx)
	require.Len(t, errs, 3)
	assert.Contains(t, errs[0], "B to be object 1")
	assert.Contains(t, errs[1], "array at A")
	assert.Contains(t, errs[2], "bad path")
}

func TestEvaluateAssertions_NoStructure(t *testing.T) {
	errs := EvaluateAssertions(NewResult(), []Assertion{{Type: AssertExists, Path: "A"}}, &AssertionContext{})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "a final structure")
}

func TestEvaluateAssertions_Fault(t *testing.T) {
	res := NewResult()
	res.Fault = &Fault{Node: 2, Filter: "F", Errors: []result.Error{result.NewStructural(result.CodePathNotFound, "gone")}}

	assert.Empty(t, EvaluateAssertions(res, []Assertion{{Type: AssertFault, Node: node(2), Code: result.CodePathNotFound}}, &AssertionContext{}))
	assert.Empty(t, EvaluateAssertions(res, []Assertion{{Type: AssertFault, Node: node(2)}}, &AssertionContext{}))

	errs := EvaluateAssertions(res, []Assertion{
		{Type: AssertFault, Node: node(1)},
		{Type: AssertFault, Node: node(2), Code: result.CodeShapeMismatch},
	}, &AssertionContext{})
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "fault at node 2")
	assert.Contains(t, errs[1], "error code -203")
}

func TestEvaluateAssertions_Argument(t *testing.T) {
	pl := pipeline.New("args")
	pl.Append(builtin.NewCreateDataGroup(), filter.Arguments{"output": data.MustParsePath("A/B")})
	_ = pl.Preflight(context.Background())

	actx := &AssertionContext{Pipeline: pl}
	assert.Empty(t, EvaluateAssertions(NewResult(), []Assertion{{Type: AssertArgument, Node: node(0), Name: "output", Value: "A/B"}}, actx))

	errs := EvaluateAssertions(NewResult(), []Assertion{
		{Type: AssertArgument, Node: node(0), Name: "output", Value: "A"},
		{Type: AssertArgument, Node: node(0), Name: "input", Value: "A"},
		{Type: AssertArgument, Node: node(5), Name: "output", Value: "A"},
	}, actx)
	require.Len(t, errs, 3)
	assert.Contains(t, errs[0], "Actual: A/B")
	assert.Contains(t, errs[1], "missing")
	assert.Contains(t, errs[2], "out of range")
}

func TestAssertionError_IncludesTrace(t *testing.T) {
	err := &AssertionError{
		Type:     AssertWarning,
		Expected: "warning 1 from node 0",
		Actual:   "not found in trace",
		Trace:    []TraceEvent{{Node: 0, Filter: "F", Type: "info", Text: "ran"}},
	}
	assert.Equal(t, "Assertion failed: warning\n"+
		"  Expected: warning 1 from node 0\n"+
		"  Actual: not found in trace\n"+
		"\nTrace:\n"+
		"  [0 F] info: ran\n", err.Error())
}
