// Package testutil provides scripted filters, recording subscribers and
// fixtures shared by package tests.
package testutil

import (
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/roach88/datapipe/internal/action"
	"github.com/roach88/datapipe/internal/data"
	"github.com/roach88/datapipe/internal/filter"
	"github.com/roach88/datapipe/internal/result"
)

// NameUUID derives a stable filter UUID from name so tests and golden files
// see the same identity on every run.
func NameUUID(name string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("datapipe:test:"+name))
}

// Calls counts filter invocations. Clones of a Scripted filter share it.
type Calls struct {
	Preflight atomic.Int64
	Execute   atomic.Int64
}

// Scripted is a filter whose behavior is supplied by the test.
type Scripted struct {
	ID          uuid.UUID
	FilterName  string
	Params      filter.Parameters
	OnPreflight func(ds *data.Structure, args filter.Arguments, msgs filter.MessageHandler) filter.PreflightResult
	OnExecute   func(ds *data.Structure, args filter.Arguments, msgs filter.MessageHandler, cancel *filter.CancelToken) result.Result
	Calls       *Calls
}

// NewScripted returns a filter that does nothing and succeeds.
func NewScripted(name string) *Scripted {
	return &Scripted{ID: NameUUID(name), FilterName: name, Calls: &Calls{}}
}

func (f *Scripted) UUID() uuid.UUID               { return f.ID }
func (f *Scripted) Name() string                  { return f.FilterName }
func (f *Scripted) HumanName() string             { return "Scripted " + f.FilterName }
func (f *Scripted) Parameters() filter.Parameters { return f.Params }

func (f *Scripted) Clone() filter.Filter {
	c := *f
	return &c
}

func (f *Scripted) Preflight(ds *data.Structure, args filter.Arguments, msgs filter.MessageHandler) filter.PreflightResult {
	if f.Calls != nil {
		f.Calls.Preflight.Add(1)
	}
	if f.OnPreflight == nil {
		return filter.PreflightOK(action.OutputActions{})
	}
	return f.OnPreflight(ds, args, msgs)
}

func (f *Scripted) Execute(ds *data.Structure, args filter.Arguments, msgs filter.MessageHandler, cancel *filter.CancelToken) result.Result {
	if f.Calls != nil {
		f.Calls.Execute.Add(1)
	}
	if f.OnExecute == nil {
		return result.OK()
	}
	return f.OnExecute(ds, args, msgs, cancel)
}

// ArrayCreator returns a filter that creates a float32 array at its
// "output" argument with "tuples" tuples, and on execute stores
// offset+i at index i.
func ArrayCreator(name string) *Scripted {
	f := NewScripted(name)
	f.Params = filter.Parameters{
		{Name: "output", HumanName: "Output Array", Kind: filter.KindCreatePath},
		{Name: "tuples", HumanName: "Tuples", Kind: filter.KindInt, Default: 4, Constraint: ">0"},
		{Name: "offset", HumanName: "Offset", Kind: filter.KindFloat, Default: 0.0},
	}
	f.OnPreflight = func(_ *data.Structure, args filter.Arguments, _ filter.MessageHandler) filter.PreflightResult {
		var out action.OutputActions
		out.Append(action.CreateArray{
			Path:           args.Path("output"),
			Type:           data.Float32,
			TupleShape:     []int{args.Int("tuples")},
			ComponentShape: []int{1},
		})
		return filter.PreflightOK(out)
	}
	f.OnExecute = func(ds *data.Structure, args filter.Arguments, _ filter.MessageHandler, _ *filter.CancelToken) result.Result {
		arr, err := ds.Array(args.Path("output"))
		if err != nil {
			return result.Fail(result.FromError(result.Runtime, result.CodePathNotFound, err))
		}
		for i := 0; i < arr.Len(); i++ {
			arr.SetValue(i, args.Float("offset")+float64(i))
		}
		return result.OK()
	}
	return f
}

// GroupCreator returns a filter that creates a group at its "output"
// argument.
func GroupCreator(name string) *Scripted {
	f := NewScripted(name)
	f.Params = filter.Parameters{
		{Name: "output", HumanName: "Output Group", Kind: filter.KindCreatePath},
	}
	f.OnPreflight = func(_ *data.Structure, args filter.Arguments, _ filter.MessageHandler) filter.PreflightResult {
		var out action.OutputActions
		out.Append(action.CreateGroup{Path: args.Path("output")})
		return filter.PreflightOK(out)
	}
	return f
}

// Reader returns a filter that requires an existing object at its "input"
// argument and adds one to every value of that array on execute.
func Reader(name string) *Scripted {
	f := NewScripted(name)
	f.Params = filter.Parameters{
		{Name: "input", HumanName: "Input Array", Kind: filter.KindPath},
	}
	f.OnExecute = func(ds *data.Structure, args filter.Arguments, _ filter.MessageHandler, _ *filter.CancelToken) result.Result {
		arr, err := ds.Array(args.Path("input"))
		if err != nil {
			return result.Fail(result.FromError(result.Runtime, result.CodeTypeMismatch, err))
		}
		for i := 0; i < arr.Len(); i++ {
			arr.SetValue(i, arr.Value(i)+1)
		}
		return result.OK()
	}
	return f
}

// Failing returns a filter whose preflight fails with e.
func Failing(name string, e result.Error) *Scripted {
	f := NewScripted(name)
	f.OnPreflight = func(*data.Structure, filter.Arguments, filter.MessageHandler) filter.PreflightResult {
		return filter.PreflightFail(e)
	}
	return f
}

// Warning returns a filter that succeeds with one warning.
func Warning(name string, code int, msg string) *Scripted {
	f := NewScripted(name)
	f.OnPreflight = func(*data.Structure, filter.Arguments, filter.MessageHandler) filter.PreflightResult {
		pr := filter.PreflightOK(action.OutputActions{})
		pr.Warn(code, "%s", msg)
		return pr
	}
	return f
}
