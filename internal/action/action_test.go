package action

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/datapipe/internal/data"
	"github.com/roach88/datapipe/internal/result"
)

var p = data.MustParsePath

func imageActions() OutputActions {
	var out OutputActions
	out.Append(
		CreateGeometry{
			Path:         p("Image"),
			Type:         data.GeometryImage,
			Dimensions:   [3]int{4, 2, 1},
			Spacing:      [3]float64{1, 1, 1},
			CellDataName: "Cells",
		},
		CreateArray{
			Path:           p("Image/Cells/Phases"),
			Type:           data.Int32,
			TupleShape:     []int{8},
			ComponentShape: []int{1},
			Fill:           3,
		},
	)
	return out
}

func TestCreateArray_PreflightIsPlaceholder(t *testing.T) {
	ds := data.NewStructure()
	n, err := imageActions().Apply(ds, Preflight)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	arr, err := ds.Array(p("Image/Cells/Phases"))
	require.NoError(t, err)
	assert.True(t, arr.Placeholder())
	assert.Equal(t, 8, arr.Len())
	assert.Equal(t, uint64(0), ds.MemoryUsage())
}

func TestCreateArray_ExecuteAllocatesAndFills(t *testing.T) {
	ds := data.NewStructure()
	_, err := imageActions().Apply(ds, Execute)
	require.NoError(t, err)

	arr, err := ds.Array(p("Image/Cells/Phases"))
	require.NoError(t, err)
	assert.False(t, arr.Placeholder())
	assert.Equal(t, 3.0, arr.Value(7))
	assert.Equal(t, uint64(32), ds.MemoryUsage())
}

func TestPreflightAndExecute_SameMetadata(t *testing.T) {
	pre := data.NewStructure()
	exe := data.NewStructure()
	_, err := imageActions().Apply(pre, Preflight)
	require.NoError(t, err)
	_, err = imageActions().Apply(exe, Execute)
	require.NoError(t, err)
	assert.Equal(t, pre.DescribeText(), exe.DescribeText())
}

func TestApply_StopsAtFirstFailureAndKeepsEarlierActions(t *testing.T) {
	ds := data.NewStructure()
	var out OutputActions
	out.Append(
		CreateGroup{Path: p("A")},
		CreateGroup{Path: p("Missing/B")},
		CreateGroup{Path: p("C")},
	)

	n, err := out.Apply(ds, Execute)
	require.Error(t, err)
	assert.Equal(t, 1, n)

	var ae *ApplyError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, 1, ae.Index)
	assert.ErrorIs(t, err, data.ErrNotFound)

	assert.True(t, ds.Contains(p("A")))
	assert.False(t, ds.Contains(p("C")))
}

func TestApply_DeferredRunsLast(t *testing.T) {
	ds := data.NewStructure()
	_, err := ds.Insert(data.NewGroup("Old"), data.Path{})
	require.NoError(t, err)

	var out OutputActions
	out.Defer(DeleteObject{Path: p("Old")})
	out.Append(CreateGroup{Path: p("Old/Child")})

	_, err = out.Apply(ds, Execute)
	require.NoError(t, err)
	assert.False(t, ds.Contains(p("Old")))
	assert.Equal(t, 0, ds.Len())
}

func TestCreatedPaths(t *testing.T) {
	out := imageActions()
	newParent := p("Elsewhere")
	out.Append(
		DeleteObject{Path: p("X")},
		ModifyObject{Path: p("Y/Z"), NewName: "W"},
		ModifyObject{Path: p("Y/Q"), NewParent: &newParent},
		ModifyObject{Path: p("Y/R"), TupleShape: []int{2}},
		LinkObject{Target: p("Image/Cells/Phases"), Parent: p("Shared")},
	)

	var got []string
	for _, cp := range out.CreatedPaths() {
		got = append(got, cp.String())
	}
	assert.Equal(t, []string{
		"Image", "Image/Cells", "Image/Cells/Phases",
		"Y/W", "Elsewhere/Q", "Shared/Phases",
	}, got)
}

func TestModifyObject_RenameAndMove(t *testing.T) {
	ds := data.NewStructure()
	_, err := imageActions().Apply(ds, Execute)
	require.NoError(t, err)
	_, err = ds.Insert(data.NewGroup("Out"), data.Path{})
	require.NoError(t, err)

	dest := p("Out")
	err = ModifyObject{Path: p("Image/Cells/Phases"), NewName: "Grains", NewParent: &dest}.Apply(ds, Execute)
	require.NoError(t, err)
	arr, err := ds.Array(p("Out/Grains"))
	require.NoError(t, err)
	assert.Equal(t, 3.0, arr.Value(0))
	assert.NoError(t, ds.Validate())
}

func TestModifyObject_FailureIsAllOrNothing(t *testing.T) {
	ds := data.NewStructure()
	_, err := imageActions().Apply(ds, Execute)
	require.NoError(t, err)
	before := ds.DescribeText()

	missing := p("Nowhere")
	err = ModifyObject{Path: p("Image/Cells/Phases"), NewName: "Grains", NewParent: &missing}.Apply(ds, Execute)
	assert.ErrorIs(t, err, data.ErrNotFound)
	assert.Equal(t, before, ds.DescribeText())
}

func TestModifyObject_ResizeAttributeMatrix(t *testing.T) {
	ds := data.NewStructure()
	_, err := imageActions().Apply(ds, Execute)
	require.NoError(t, err)

	err = ModifyObject{Path: p("Image/Cells"), TupleShape: []int{2, 6}}.Apply(ds, Execute)
	require.NoError(t, err)

	arr, err := ds.Array(p("Image/Cells/Phases"))
	require.NoError(t, err)
	assert.Equal(t, 12, arr.NumTuples())
	assert.Equal(t, 3.0, arr.Value(7))
	assert.Equal(t, 0.0, arr.Value(11))
}

func TestModifyObject_ResizeArrayInsideMatrixRejected(t *testing.T) {
	ds := data.NewStructure()
	_, err := imageActions().Apply(ds, Execute)
	require.NoError(t, err)

	err = ModifyObject{Path: p("Image/Cells/Phases"), TupleShape: []int{3}}.Apply(ds, Execute)
	assert.ErrorIs(t, err, data.ErrShapeMismatch)
}

func sharedAcrossMatrices(t *testing.T) *data.Structure {
	t.Helper()
	ds := data.NewStructure()
	var out OutputActions
	out.Append(
		CreateAttributeMatrix{Path: p("AM1"), TupleShape: []int{4}},
		CreateAttributeMatrix{Path: p("AM2"), TupleShape: []int{4}},
		CreateArray{Path: p("AM1/X"), Type: data.Float32, TupleShape: []int{4}, ComponentShape: []int{1}},
		LinkObject{Target: p("AM1/X"), Parent: p("AM2")},
	)
	_, err := out.Apply(ds, Execute)
	require.NoError(t, err)
	return ds
}

func TestModifyObject_ResizeRejectsSharedArray(t *testing.T) {
	ds := sharedAcrossMatrices(t)
	before := ds.DescribeText()

	err := ModifyObject{Path: p("AM1"), TupleShape: []int{6}}.Apply(ds, Execute)
	assert.ErrorIs(t, err, data.ErrShapeMismatch)
	assert.Contains(t, err.Error(), `attribute matrix "AM2"`)

	err = ModifyObject{Path: p("AM2/X"), TupleShape: []int{6}}.Apply(ds, Execute)
	assert.ErrorIs(t, err, data.ErrShapeMismatch)

	assert.Equal(t, before, ds.DescribeText())
	assert.NoError(t, ds.Validate())
}

func TestModifyObject_ResizeMatrixWithStringArray(t *testing.T) {
	ds := data.NewStructure()
	var out OutputActions
	out.Append(
		CreateAttributeMatrix{Path: p("AM"), TupleShape: []int{2}},
		CreateStringArray{Path: p("AM/Names"), Values: []string{"a", "b"}},
	)
	_, err := out.Apply(ds, Execute)
	require.NoError(t, err)

	assert.NoError(t, ModifyObject{Path: p("AM"), TupleShape: []int{1, 2}}.Apply(ds, Execute))
	err = ModifyObject{Path: p("AM"), TupleShape: []int{3}}.Apply(ds, Execute)
	assert.ErrorIs(t, err, data.ErrShapeMismatch)
	assert.NoError(t, ds.Validate())
}

func TestLinkAndDelete(t *testing.T) {
	ds := data.NewStructure()
	_, err := imageActions().Apply(ds, Execute)
	require.NoError(t, err)

	var out OutputActions
	out.Append(
		CreateGroup{Path: p("Shared")},
		LinkObject{Target: p("Image/Cells/Phases"), Parent: p("Shared")},
		DeleteObject{Path: p("Image")},
	)
	_, err = out.Apply(ds, Execute)
	require.NoError(t, err)

	arr, err := ds.Array(p("Shared/Phases"))
	require.NoError(t, err)
	assert.Equal(t, 3.0, arr.Value(1))
	assert.False(t, ds.Contains(p("Image")))
	assert.NoError(t, ds.Validate())
}

func TestCreateGeometry_RejectsBadDimensions(t *testing.T) {
	ds := data.NewStructure()
	err := CreateGeometry{Path: p("G"), Type: data.GeometryImage, Dimensions: [3]int{0, 1, 1}}.Apply(ds, Preflight)
	require.Error(t, err)
	assert.Equal(t, 0, ds.Len())
}

func TestCreateStringArray(t *testing.T) {
	ds := data.NewStructure()
	a := CreateStringArray{Path: p("Names"), Values: []string{"a", "b"}}
	require.NoError(t, a.Apply(ds, Preflight))
	sa, err := ds.StringArray(p("Names"))
	require.NoError(t, err)
	assert.Equal(t, []string{"", ""}, sa.Values)

	ds = data.NewStructure()
	require.NoError(t, a.Apply(ds, Execute))
	sa, err = ds.StringArray(p("Names"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, sa.Values)
}

func TestToResult_MapsCodes(t *testing.T) {
	ds := data.NewStructure()
	err := DeleteObject{Path: p("Nope")}.Apply(ds, Execute)
	re := ToResult(err)
	assert.Equal(t, result.Structural, re.Kind)
	assert.Equal(t, result.CodePathNotFound, re.Code)

	_, err = ds.Insert(data.NewGroup("A"), data.Path{})
	require.NoError(t, err)
	err = CreateGroup{Path: p("A")}.Apply(ds, Execute)
	assert.Equal(t, result.CodePathExists, ToResult(err).Code)
}
