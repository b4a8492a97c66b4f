package builtin

import (
	"github.com/google/uuid"

	"github.com/roach88/datapipe/internal/action"
	"github.com/roach88/datapipe/internal/data"
	"github.com/roach88/datapipe/internal/filter"
	"github.com/roach88/datapipe/internal/result"
)

// RenameDataObject renames an object in every container that lists it.
type RenameDataObject struct{ descriptor }

func NewRenameDataObject() *RenameDataObject {
	return &RenameDataObject{descriptor{
		id:    uuid.MustParse("15f5f506-9b4a-423e-8326-f6bdf6c068b0"),
		name:  "RenameDataObjectFilter",
		human: "Rename Data Object",
		params: filter.Parameters{
			{Name: "input", HumanName: "Data Object to Rename", Kind: filter.KindPath},
			{Name: "new_name", HumanName: "New Name", Kind: filter.KindString, Constraint: `!=""`},
		},
	}}
}

func (f *RenameDataObject) Clone() filter.Filter {
	c := *f
	return &c
}

func (f *RenameDataObject) Preflight(_ *data.Structure, args filter.Arguments, _ filter.MessageHandler) filter.PreflightResult {
	in := args.Path("input")
	name := data.NormalizeName(args.String("new_name"))
	if err := data.ValidateName(name); err != nil {
		return filter.PreflightFail(result.NewValidation(result.CodeInvalidArgument, "new_name: %v", err))
	}
	if name == in.Name() {
		return filter.PreflightFail(result.NewValidation(CodeSameName, "%s is already named %q", in, name))
	}
	var actions action.OutputActions
	actions.Append(action.ModifyObject{Path: in, NewName: name})
	return filter.PreflightOK(actions)
}

func (f *RenameDataObject) Execute(_ *data.Structure, _ filter.Arguments, _ filter.MessageHandler, cancel *filter.CancelToken) result.Result {
	return noExecute(cancel)
}

// MoveData re-parents an object under another container.
type MoveData struct{ descriptor }

func NewMoveData() *MoveData {
	return &MoveData{descriptor{
		id:    uuid.MustParse("618769b3-91cd-4714-98f0-8a4e06e46d17"),
		name:  "MoveDataFilter",
		human: "Move Data",
		params: filter.Parameters{
			{Name: "input", HumanName: "Data to Move", Kind: filter.KindPath},
			{Name: "destination", HumanName: "New Parent", Kind: filter.KindPath},
		},
	}}
}

func (f *MoveData) Clone() filter.Filter {
	c := *f
	return &c
}

func (f *MoveData) Preflight(ds *data.Structure, args filter.Arguments, _ filter.MessageHandler) filter.PreflightResult {
	in := args.Path("input")
	dest := args.Path("destination")
	if _, err := ds.Container(dest); err != nil {
		return filter.PreflightFail(action.ToResult(err))
	}
	var actions action.OutputActions
	if dest.Equal(in.Parent()) {
		pr := filter.PreflightOK(actions)
		pr.Warn(CodeNoOp, "%s is already in %s", in, dest)
		return pr
	}
	actions.Append(action.ModifyObject{Path: in, NewParent: &dest})
	return filter.PreflightOK(actions)
}

func (f *MoveData) Execute(_ *data.Structure, _ filter.Arguments, _ filter.MessageHandler, cancel *filter.CancelToken) result.Result {
	return noExecute(cancel)
}

// LinkData lists an existing object under a second container. Both paths
// then address the same object.
type LinkData struct{ descriptor }

func NewLinkData() *LinkData {
	return &LinkData{descriptor{
		id:    uuid.MustParse("fa0ef81a-06f5-4380-b3ea-96696fb90999"),
		name:  "LinkDataFilter",
		human: "Link Data",
		params: filter.Parameters{
			{Name: "input", HumanName: "Data to Share", Kind: filter.KindPath},
			{Name: "destination", HumanName: "Additional Parent", Kind: filter.KindPath},
		},
	}}
}

func (f *LinkData) Clone() filter.Filter {
	c := *f
	return &c
}

func (f *LinkData) Preflight(ds *data.Structure, args filter.Arguments, _ filter.MessageHandler) filter.PreflightResult {
	dest := args.Path("destination")
	if _, err := ds.Container(dest); err != nil {
		return filter.PreflightFail(action.ToResult(err))
	}
	var actions action.OutputActions
	actions.Append(action.LinkObject{Target: args.Path("input"), Parent: dest})
	return filter.PreflightOK(actions)
}

func (f *LinkData) Execute(_ *data.Structure, _ filter.Arguments, _ filter.MessageHandler, cancel *filter.CancelToken) result.Result {
	return noExecute(cancel)
}

// DeleteData removes an object. A shared object loses only the edge at the
// given path and stays reachable through its other parents.
type DeleteData struct{ descriptor }

func NewDeleteData() *DeleteData {
	return &DeleteData{descriptor{
		id:    uuid.MustParse("b51e1fdc-6bba-4d1e-9ffa-81d920bfa6a2"),
		name:  "DeleteDataFilter",
		human: "Delete Data",
		params: filter.Parameters{
			{Name: "input", HumanName: "Data Object to Remove", Kind: filter.KindPath},
		},
	}}
}

func (f *DeleteData) Clone() filter.Filter {
	c := *f
	return &c
}

func (f *DeleteData) Preflight(ds *data.Structure, args filter.Arguments, _ filter.MessageHandler) filter.PreflightResult {
	in := args.Path("input")
	var actions action.OutputActions
	actions.Defer(action.DeleteObject{Path: in})
	pr := filter.PreflightOK(actions)
	if obj, ok := ds.Get(in); ok {
		if n := len(obj.Parents()); n > 1 {
			pr.Warn(CodeSharedObject, "%s is listed by %d containers; only this entry is removed", in, n)
		}
	}
	return pr
}

func (f *DeleteData) Execute(_ *data.Structure, _ filter.Arguments, _ filter.MessageHandler, cancel *filter.CancelToken) result.Result {
	return noExecute(cancel)
}
