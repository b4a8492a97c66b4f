package filter

import (
	"encoding/json"
	"slices"

	"github.com/roach88/datapipe/internal/data"
)

// Arguments maps parameter names to typed values. The Go type of each value
// is fixed by its ParamKind; see Parameters.Decode.
type Arguments map[string]any

// Clone returns a copy that shares no slices with a.
func (a Arguments) Clone() Arguments {
	out := make(Arguments, len(a))
	for k, v := range a {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case []int:
		return slices.Clone(x)
	case []float64:
		return slices.Clone(x)
	case json.RawMessage:
		return slices.Clone(x)
	default:
		// data.Path is immutable; everything else is a scalar.
		return v
	}
}

func (a Arguments) Bool(name string) bool {
	v, _ := a[name].(bool)
	return v
}

func (a Arguments) Int(name string) int {
	v, _ := a[name].(int)
	return v
}

func (a Arguments) Float(name string) float64 {
	v, _ := a[name].(float64)
	return v
}

func (a Arguments) String(name string) string {
	v, _ := a[name].(string)
	return v
}

func (a Arguments) DataType(name string) data.DataType {
	v, _ := a[name].(data.DataType)
	return v
}

func (a Arguments) Ints(name string) []int {
	v, _ := a[name].([]int)
	return v
}

func (a Arguments) Floats(name string) []float64 {
	v, _ := a[name].([]float64)
	return v
}

func (a Arguments) Path(name string) data.Path {
	v, _ := a[name].(data.Path)
	return v
}

// ReplacePathPrefix rewrites every path argument equal to old or below it
// so that it starts with replacement. It returns the names it changed.
func (a Arguments) ReplacePathPrefix(old, replacement data.Path) []string {
	var changed []string
	for name, v := range a {
		path, ok := v.(data.Path)
		if !ok {
			continue
		}
		if next, ok := path.ReplacePrefix(old, replacement); ok {
			a[name] = next
			changed = append(changed, name)
		}
	}
	slices.Sort(changed)
	return changed
}
