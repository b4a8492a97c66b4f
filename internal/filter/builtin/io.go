package builtin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/roach88/datapipe/internal/action"
	"github.com/roach88/datapipe/internal/container"
	"github.com/roach88/datapipe/internal/data"
	"github.com/roach88/datapipe/internal/filter"
	"github.com/roach88/datapipe/internal/result"
)

// WriteContainer persists the whole data structure to a container file.
// It changes nothing in the structure and is usually the last node.
type WriteContainer struct{ descriptor }

func NewWriteContainer() *WriteContainer {
	return &WriteContainer{descriptor{
		id:    uuid.MustParse("62b8dc1d-6186-4e87-872e-25cf8b20c2de"),
		name:  "WriteContainerFilter",
		human: "Write Container File",
		params: filter.Parameters{
			{Name: "file", HumanName: "Output File", Kind: filter.KindFile},
		},
	}}
}

func (f *WriteContainer) Clone() filter.Filter {
	c := *f
	return &c
}

func (f *WriteContainer) Preflight(_ *data.Structure, args filter.Arguments, _ filter.MessageHandler) filter.PreflightResult {
	file := args.String("file")
	if file == "" {
		return filter.PreflightFail(result.NewValidation(CodeEmptyFileName, "output file is not set"))
	}
	dir := filepath.Dir(file)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return filter.PreflightFail(result.NewValidation(CodeWriteFailed, "output directory %q does not exist", dir))
	}
	pr := filter.PreflightOK(action.OutputActions{})
	pr.Values = append(pr.Values,
		filter.PreflightValue{Name: "Container", Value: file},
		filter.PreflightValue{Name: "Description", Value: container.XDMFPath(file)},
	)
	return pr
}

func (f *WriteContainer) Execute(ds *data.Structure, args filter.Arguments, msgs filter.MessageHandler, cancel *filter.CancelToken) result.Result {
	if cancel.Cancelled() {
		return result.Fail(result.NewCancelled())
	}
	file := args.String("file")
	stats, err := container.Write(context.Background(), file, ds)
	if err != nil {
		return result.Fail(result.NewRuntime(result.CodeIO, "write %s: %v", file, err))
	}
	msgs.Info("Wrote %d objects, %d links and %d payload bytes to %s",
		stats.Objects, stats.Links, stats.PayloadBytes, file)
	return result.OK()
}

// ReadContainer imports a container file under a new group. Preflight reads
// only the structure of the file; Execute reads the payloads.
type ReadContainer struct{ descriptor }

func NewReadContainer() *ReadContainer {
	return &ReadContainer{descriptor{
		id:    uuid.MustParse("721090a4-a1e9-4d45-8d71-91456fb441be"),
		name:  "ReadContainerFilter",
		human: "Read Container File",
		params: filter.Parameters{
			{Name: "file", HumanName: "Input File", Kind: filter.KindFile},
			{Name: "output", HumanName: "Import Group", Kind: filter.KindCreatePath},
		},
	}}
}

func (f *ReadContainer) Clone() filter.Filter {
	c := *f
	return &c
}

func (f *ReadContainer) Preflight(_ *data.Structure, args filter.Arguments, _ filter.MessageHandler) filter.PreflightResult {
	file := args.String("file")
	if file == "" {
		return filter.PreflightFail(result.NewValidation(CodeEmptyFileName, "input file is not set"))
	}
	src, err := container.Read(context.Background(), file, container.ReadPreflight)
	if err != nil {
		return filter.PreflightFail(result.NewValidation(CodeReadFailed, "read %s: %v", file, err))
	}
	pr := filter.PreflightOK(importActions(src, args.Path("output")))
	pr.Values = append(pr.Values, filter.PreflightValue{Name: "Objects", Value: fmt.Sprintf("%d", src.Len())})
	return pr
}

func (f *ReadContainer) Execute(ds *data.Structure, args filter.Arguments, msgs filter.MessageHandler, cancel *filter.CancelToken) result.Result {
	file := args.String("file")
	src, err := container.Read(context.Background(), file, container.ReadFull)
	if err != nil {
		return result.Fail(result.NewRuntime(result.CodeIO, "read %s: %v", file, err))
	}
	root := args.Path("output")

	var res result.Result
	seen := map[data.ID]bool{}
	total, done := src.Len(), 0
	src.Walk(func(p data.Path, obj data.Object) bool {
		if !res.Valid() {
			return false
		}
		if seen[obj.ID()] {
			return false
		}
		seen[obj.ID()] = true
		if cancel.Cancelled() {
			res = result.Fail(result.NewCancelled())
			return false
		}
		if err := copyPayload(ds, under(root, p), obj); err != nil {
			res = result.Fail(result.NewRuntime(result.CodeIO, "import %s: %v", p, err))
			return false
		}
		done++
		msgs.Progress(done*100/total, "Imported %s", p)
		return true
	})
	return res
}

// importActions recreates the structure of src under root. Objects reached
// a second time become links to where they were first created.
func importActions(src *data.Structure, root data.Path) action.OutputActions {
	var out action.OutputActions
	out.Append(action.CreateGroup{Path: root})
	first := map[data.ID]data.Path{}
	src.Walk(func(p data.Path, obj data.Object) bool {
		dst := under(root, p)
		if prev, ok := first[obj.ID()]; ok {
			out.Append(action.LinkObject{Target: prev, Parent: dst.Parent()})
			return false
		}
		first[obj.ID()] = dst
		switch o := obj.(type) {
		case *data.Group:
			out.Append(action.CreateGroup{Path: dst})
		case *data.AttributeMatrix:
			out.Append(action.CreateAttributeMatrix{Path: dst, TupleShape: o.TupleShape})
		case *data.Geometry:
			out.Append(action.CreateGeometry{
				Path:       dst,
				Type:       o.Type,
				Dimensions: o.Dimensions,
				Spacing:    o.Spacing,
				Origin:     o.Origin,
			})
		case *data.Array:
			out.Append(action.CreateArray{
				Path:           dst,
				Type:           o.DataType(),
				TupleShape:     o.TupleShape,
				ComponentShape: o.ComponentShape,
			})
		case *data.StringArray:
			out.Append(action.CreateStringArray{Path: dst, NumTuples: o.NumTuples()})
		}
		return true
	})
	return out
}

// copyPayload moves the values of a freshly read object into the object the
// import actions created for it.
func copyPayload(ds *data.Structure, dst data.Path, obj data.Object) error {
	switch o := obj.(type) {
	case *data.Array:
		arr, err := ds.Array(dst)
		if err != nil {
			return err
		}
		if o.Placeholder() {
			return nil
		}
		return arr.SetStore(o.Store())
	case *data.StringArray:
		sa, err := ds.StringArray(dst)
		if err != nil {
			return err
		}
		copy(sa.Values, o.Values)
	}
	return nil
}

func under(root, p data.Path) data.Path {
	return data.NewPath(append(root.Segments(), p.Segments()...)...)
}
