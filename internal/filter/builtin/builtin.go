// Package builtin provides the structural filters shipped with datapipe and
// the container read/write steps that start and end most pipelines.
//
// Every filter here is stateless: Clone returns a copy of the descriptor and
// all run state lives in the arguments and the data structure.
package builtin

import (
	"github.com/google/uuid"

	"github.com/roach88/datapipe/internal/filter"
	"github.com/roach88/datapipe/internal/result"
)

// Codes reported by built-in filters.
const (
	CodeSameName      = -1001
	CodeNotNumeric    = -1002
	CodeReadFailed    = -1003
	CodeWriteFailed   = -1004
	CodeEmptyFileName = -1005
	CodeNoOp          = 1001
	CodeSharedObject  = 1002
)

// descriptor carries the identity and schema every filter reports.
type descriptor struct {
	id     uuid.UUID
	name   string
	human  string
	params filter.Parameters
}

func (d descriptor) UUID() uuid.UUID               { return d.id }
func (d descriptor) Name() string                  { return d.name }
func (d descriptor) HumanName() string             { return d.human }
func (d descriptor) Parameters() filter.Parameters { return d.params }

// All returns one instance of every built-in filter.
func All() []filter.Filter {
	return []filter.Filter{
		NewCreateDataGroup(),
		NewCreateDataArray(),
		NewCreateImageGeometry(),
		NewRenameDataObject(),
		NewMoveData(),
		NewLinkData(),
		NewDeleteData(),
		NewScaleArray(),
		NewWriteContainer(),
		NewReadContainer(),
	}
}

// Register adds every built-in filter to reg.
func Register(reg *filter.Registry) error {
	for _, f := range All() {
		if err := reg.Register(f); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a registry holding the built-in filters.
func NewRegistry() *filter.Registry {
	reg := filter.NewRegistry()
	reg.MustRegister(All()...)
	return reg
}

// noExecute is the Execute of filters whose actions do all the work.
func noExecute(cancel *filter.CancelToken) result.Result {
	if cancel.Cancelled() {
		return result.Fail(result.NewCancelled())
	}
	return result.OK()
}
