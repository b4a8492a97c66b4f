package builtin

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/datapipe/internal/action"
	"github.com/roach88/datapipe/internal/data"
	"github.com/roach88/datapipe/internal/filter"
	"github.com/roach88/datapipe/internal/result"
)

// CreateDataGroup creates an empty group.
type CreateDataGroup struct{ descriptor }

func NewCreateDataGroup() *CreateDataGroup {
	return &CreateDataGroup{descriptor{
		id:    uuid.MustParse("b8809bfe-5b65-46ae-8acf-968b872cd963"),
		name:  "CreateDataGroupFilter",
		human: "Create Data Group",
		params: filter.Parameters{
			{Name: "output", HumanName: "Data Group", Kind: filter.KindCreatePath},
		},
	}}
}

func (f *CreateDataGroup) Clone() filter.Filter {
	c := *f
	return &c
}

func (f *CreateDataGroup) Preflight(_ *data.Structure, args filter.Arguments, _ filter.MessageHandler) filter.PreflightResult {
	var out action.OutputActions
	out.Append(action.CreateGroup{Path: args.Path("output")})
	return filter.PreflightOK(out)
}

func (f *CreateDataGroup) Execute(_ *data.Structure, _ filter.Arguments, _ filter.MessageHandler, cancel *filter.CancelToken) result.Result {
	return noExecute(cancel)
}

// CreateDataArray creates a numeric array filled with a constant.
type CreateDataArray struct{ descriptor }

func NewCreateDataArray() *CreateDataArray {
	return &CreateDataArray{descriptor{
		id:    uuid.MustParse("8bdbcf5c-b2da-41cb-8350-84ef97a36346"),
		name:  "CreateDataArrayFilter",
		human: "Create Data Array",
		params: filter.Parameters{
			{Name: "output", HumanName: "Created Array", Kind: filter.KindCreatePath},
			{Name: "type", HumanName: "Numeric Type", Kind: filter.KindDataType, Default: data.Float32},
			{Name: "tuples", HumanName: "Tuple Dimensions", Kind: filter.KindInts, Default: []int{1}, Constraint: "[_, ...] & [...int & >=0]"},
			{Name: "components", HumanName: "Component Dimensions", Kind: filter.KindInts, Default: []int{1}, Constraint: "[_, ...] & [...int & >0]"},
			{Name: "fill", HumanName: "Initialization Value", Kind: filter.KindFloat, Default: 0.0},
		},
	}}
}

func (f *CreateDataArray) Clone() filter.Filter {
	c := *f
	return &c
}

func (f *CreateDataArray) Preflight(ds *data.Structure, args filter.Arguments, _ filter.MessageHandler) filter.PreflightResult {
	out := args.Path("output")
	tuples := args.Ints("tuples")

	// Inside an attribute matrix the matrix decides the tuple count.
	if am, err := ds.AttributeMatrix(out.Parent()); err == nil && product(tuples) != am.NumTuples() {
		return filter.PreflightFail(result.NewStructural(result.CodeShapeMismatch,
			"%s holds %d tuples but %v was requested", out.Parent(), am.NumTuples(), tuples))
	}

	var actions action.OutputActions
	actions.Append(action.CreateArray{
		Path:           out,
		Type:           args.DataType("type"),
		TupleShape:     tuples,
		ComponentShape: args.Ints("components"),
		Fill:           args.Float("fill"),
	})
	pr := filter.PreflightOK(actions)
	size := product(tuples) * product(args.Ints("components")) * args.DataType("type").Size()
	pr.Values = append(pr.Values, filter.PreflightValue{Name: "Memory", Value: fmt.Sprintf("%d bytes", size)})
	return pr
}

func (f *CreateDataArray) Execute(_ *data.Structure, _ filter.Arguments, _ filter.MessageHandler, cancel *filter.CancelToken) result.Result {
	return noExecute(cancel)
}

// CreateImageGeometry creates a regular grid and its cell attribute matrix.
type CreateImageGeometry struct{ descriptor }

func NewCreateImageGeometry() *CreateImageGeometry {
	return &CreateImageGeometry{descriptor{
		id:    uuid.MustParse("9133f941-adf2-4c41-afb7-baea2e08ef17"),
		name:  "CreateImageGeometryFilter",
		human: "Create Geometry (Image)",
		params: filter.Parameters{
			{Name: "output", HumanName: "Geometry Name", Kind: filter.KindCreatePath},
			{Name: "dimensions", HumanName: "Dimensions", Kind: filter.KindInts, Default: []int{1, 1, 1}, Constraint: "[>0, >0, >0]"},
			{Name: "spacing", HumanName: "Spacing", Kind: filter.KindFloats, Default: []float64{1, 1, 1}, Constraint: "[>0, >0, >0]"},
			{Name: "origin", HumanName: "Origin", Kind: filter.KindFloats, Default: []float64{0, 0, 0}, Constraint: "[number, number, number]"},
			{Name: "cell_data", HumanName: "Cell Data Name", Kind: filter.KindString, Default: "CellData"},
		},
	}}
}

func (f *CreateImageGeometry) Clone() filter.Filter {
	c := *f
	return &c
}

func (f *CreateImageGeometry) Preflight(_ *data.Structure, args filter.Arguments, _ filter.MessageHandler) filter.PreflightResult {
	dims := args.Ints("dimensions")
	spacing := args.Floats("spacing")
	origin := args.Floats("origin")

	var actions action.OutputActions
	actions.Append(action.CreateGeometry{
		Path:         args.Path("output"),
		Type:         data.GeometryImage,
		Dimensions:   [3]int{dims[0], dims[1], dims[2]},
		Spacing:      [3]float64{spacing[0], spacing[1], spacing[2]},
		Origin:       [3]float64{origin[0], origin[1], origin[2]},
		CellDataName: args.String("cell_data"),
	})
	pr := filter.PreflightOK(actions)
	pr.Values = append(pr.Values,
		filter.PreflightValue{Name: "Cells", Value: fmt.Sprintf("%d", dims[0]*dims[1]*dims[2])},
		filter.PreflightValue{Name: "Extent", Value: fmt.Sprintf("%g x %g x %g",
			float64(dims[0])*spacing[0], float64(dims[1])*spacing[1], float64(dims[2])*spacing[2])},
	)
	return pr
}

func (f *CreateImageGeometry) Execute(_ *data.Structure, _ filter.Arguments, _ filter.MessageHandler, cancel *filter.CancelToken) result.Result {
	return noExecute(cancel)
}

func product(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}
