package pipeline

import (
	"github.com/google/uuid"

	"github.com/roach88/datapipe/internal/data"
	"github.com/roach88/datapipe/internal/filter"
	"github.com/roach88/datapipe/internal/result"
)

// placeholder stands in for a filter the registry could not resolve. It
// always fails preflight; the node keeps the raw record so saving the
// pipeline reproduces it.
type placeholder struct {
	id   uuid.UUID
	name string
}

func (f *placeholder) UUID() uuid.UUID               { return f.id }
func (f *placeholder) Name() string                  { return f.name }
func (f *placeholder) HumanName() string             { return "Unknown filter " + f.name }
func (f *placeholder) Parameters() filter.Parameters { return nil }
func (f *placeholder) Clone() filter.Filter          { c := *f; return &c }

func (f *placeholder) Preflight(*data.Structure, filter.Arguments, filter.MessageHandler) filter.PreflightResult {
	return filter.PreflightFail(result.NewStructural(result.CodeUnresolvedFilter,
		"filter %q (%s) is not available", f.name, f.id))
}

func (f *placeholder) Execute(*data.Structure, filter.Arguments, filter.MessageHandler, *filter.CancelToken) result.Result {
	return result.Fail(result.NewStructural(result.CodeUnresolvedFilter,
		"filter %q (%s) is not available", f.name, f.id))
}
