package builtin

import (
	"github.com/google/uuid"

	"github.com/roach88/datapipe/internal/action"
	"github.com/roach88/datapipe/internal/data"
	"github.com/roach88/datapipe/internal/filter"
	"github.com/roach88/datapipe/internal/result"
)

// scaleChunks is how many progress steps a scale reports.
const scaleChunks = 10

// ScaleArray multiplies every value of a numeric array in place and adds an
// offset.
type ScaleArray struct{ descriptor }

func NewScaleArray() *ScaleArray {
	return &ScaleArray{descriptor{
		id:    uuid.MustParse("8d61ad35-eb0b-48d1-a5df-20fdf3b9ed02"),
		name:  "ScaleArrayFilter",
		human: "Scale Array",
		params: filter.Parameters{
			{Name: "input", HumanName: "Array to Scale", Kind: filter.KindPath},
			{Name: "factor", HumanName: "Scale Factor", Kind: filter.KindFloat, Default: 1.0},
			{Name: "offset", HumanName: "Offset", Kind: filter.KindFloat, Default: 0.0},
		},
	}}
}

func (f *ScaleArray) Clone() filter.Filter {
	c := *f
	return &c
}

func (f *ScaleArray) Preflight(ds *data.Structure, args filter.Arguments, _ filter.MessageHandler) filter.PreflightResult {
	in := args.Path("input")
	if _, err := ds.Array(in); err != nil {
		return filter.PreflightFail(result.NewStructural(CodeNotNumeric, "%s is not a numeric array: %v", in, err))
	}
	pr := filter.PreflightOK(action.OutputActions{})
	if args.Float("factor") == 1 && args.Float("offset") == 0 {
		pr.Warn(CodeNoOp, "factor 1 and offset 0 leave %s unchanged", in)
	}
	return pr
}

func (f *ScaleArray) Execute(ds *data.Structure, args filter.Arguments, msgs filter.MessageHandler, cancel *filter.CancelToken) result.Result {
	in := args.Path("input")
	arr, err := ds.Array(in)
	if err != nil {
		return result.Fail(result.NewRuntime(CodeNotNumeric, "%s is not a numeric array: %v", in, err))
	}
	factor, offset := args.Float("factor"), args.Float("offset")

	n := arr.Len()
	chunk := max(1, (n+scaleChunks-1)/scaleChunks)
	for start := 0; start < n; start += chunk {
		if cancel.Cancelled() {
			return result.Fail(result.NewCancelled())
		}
		end := min(n, start+chunk)
		for i := start; i < end; i++ {
			arr.SetValue(i, arr.Value(i)*factor+offset)
		}
		msgs.Progress(end*100/n, "Scaled %d of %d values of %s", end, n, in)
	}
	return result.OK()
}
