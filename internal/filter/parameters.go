package filter

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"

	"github.com/roach88/datapipe/internal/data"
	"github.com/roach88/datapipe/internal/result"
)

// ParamKind selects how an argument is decoded and which Go type holds it.
type ParamKind int

const (
	KindBool       ParamKind = iota + 1 // bool
	KindInt                             // int
	KindFloat                           // float64
	KindString                          // string
	KindChoice                          // string, one of Parameter.Choices
	KindDataType                        // data.DataType
	KindInts                            // []int
	KindFloats                          // []float64
	KindPath                            // data.Path of an existing object
	KindCreatePath                      // data.Path the filter will create
	KindFile                            // string naming a file
)

var paramKindNames = map[ParamKind]string{
	KindBool:       "bool",
	KindInt:        "int",
	KindFloat:      "float",
	KindString:     "string",
	KindChoice:     "choice",
	KindDataType:   "datatype",
	KindInts:       "ints",
	KindFloats:     "floats",
	KindPath:       "path",
	KindCreatePath: "create-path",
	KindFile:       "file",
}

func (k ParamKind) String() string {
	if s, ok := paramKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("ParamKind(%d)", int(k))
}

// Parameter declares one filter argument.
type Parameter struct {
	Name      string
	HumanName string
	Kind      ParamKind
	// Default is used when the argument is absent. A nil Default makes the
	// argument required.
	Default any
	// Choices lists the accepted values of a KindChoice parameter.
	Choices []string
	// Constraint is a CUE expression the value must satisfy, e.g. ">0" or
	// "[...>=0]". Paths and data types are checked in their string form.
	Constraint string
}

// Parameters is the ordered argument schema of a filter.
type Parameters []Parameter

// Lookup returns the parameter with the given name.
func (ps Parameters) Lookup(name string) (Parameter, bool) {
	for _, p := range ps {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// Defaults returns the arguments every parameter with a default would take.
func (ps Parameters) Defaults() Arguments {
	args := Arguments{}
	for _, p := range ps {
		if p.Default != nil {
			args[p.Name] = cloneValue(p.Default)
		}
	}
	return args
}

// Decode converts serialized arguments to typed values. Keys with no
// matching parameter are kept as json.RawMessage so they survive a
// save/load round trip, as are values that fail to decode. Missing
// arguments are not filled in; see Resolve.
func (ps Parameters) Decode(raw map[string]json.RawMessage) (Arguments, []result.Error) {
	args := Arguments{}
	var errs []result.Error
	for name, msg := range raw {
		p, ok := ps.Lookup(name)
		if !ok {
			args[name] = append(json.RawMessage(nil), msg...)
			continue
		}
		v, err := p.decode(msg)
		if err != nil {
			// Kept raw so Resolve reports it and saving reproduces it.
			args[name] = append(json.RawMessage(nil), msg...)
			errs = append(errs, result.NewValidation(result.CodeInvalidArgument, "argument %q: %v", name, err))
			continue
		}
		args[name] = v
	}
	sortErrors(errs)
	return args, errs
}

func (p Parameter) decode(msg json.RawMessage) (any, error) {
	switch p.Kind {
	case KindBool:
		return decodeAs[bool](msg)
	case KindInt:
		return decodeAs[int](msg)
	case KindFloat:
		return decodeAs[float64](msg)
	case KindString, KindChoice, KindFile:
		return decodeAs[string](msg)
	case KindDataType:
		return decodeAs[data.DataType](msg)
	case KindInts:
		return decodeAs[[]int](msg)
	case KindFloats:
		return decodeAs[[]float64](msg)
	case KindPath, KindCreatePath:
		return decodeAs[data.Path](msg)
	default:
		return nil, fmt.Errorf("unsupported parameter kind %s", p.Kind)
	}
}

func decodeAs[T any](msg json.RawMessage) (T, error) {
	var v T
	err := json.Unmarshal(msg, &v)
	return v, err
}

// Encode serializes arguments. Typed values are marshaled by their JSON
// form; raw values are emitted unchanged.
func (ps Parameters) Encode(args Arguments) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(args))
	for name, v := range args {
		if raw, ok := v.(json.RawMessage); ok {
			out[name] = raw
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode argument %q: %w", name, err)
		}
		out[name] = b
	}
	return out, nil
}

// Resolve returns args completed with defaults and checked against the
// schema: presence, Go type and CUE constraint. The input is not modified.
func (ps Parameters) Resolve(args Arguments) (Arguments, []result.Error) {
	out := args.Clone()
	var errs []result.Error
	var cctx *cue.Context
	for _, p := range ps {
		v, ok := out[p.Name]
		if !ok {
			if p.Default == nil {
				errs = append(errs, result.NewValidation(result.CodeMissingArgument, "argument %q is required", p.Name))
				continue
			}
			v = cloneValue(p.Default)
			out[p.Name] = v
		}
		if !p.accepts(v) {
			errs = append(errs, result.NewValidation(result.CodeInvalidArgument,
				"argument %q: expected %s, got %T", p.Name, p.Kind, v))
			continue
		}
		expr := p.constraintExpr()
		if expr == "" {
			continue
		}
		if cctx == nil {
			cctx = cuecontext.New()
		}
		if err := checkConstraint(cctx, expr, v); err != nil {
			errs = append(errs, result.NewValidation(result.CodeConstraint, "argument %q: %v", p.Name, err))
		}
	}
	return out, errs
}

func (p Parameter) accepts(v any) bool {
	switch p.Kind {
	case KindBool:
		_, ok := v.(bool)
		return ok
	case KindInt:
		_, ok := v.(int)
		return ok
	case KindFloat:
		_, ok := v.(float64)
		return ok
	case KindString, KindChoice, KindFile:
		_, ok := v.(string)
		return ok
	case KindDataType:
		dt, ok := v.(data.DataType)
		return ok && dt.Valid()
	case KindInts:
		_, ok := v.([]int)
		return ok
	case KindFloats:
		_, ok := v.([]float64)
		return ok
	case KindPath, KindCreatePath:
		path, ok := v.(data.Path)
		return ok && path.Validate() == nil
	default:
		return false
	}
}

// constraintExpr combines the declared constraint with the choice list.
func (p Parameter) constraintExpr() string {
	var parts []string
	if p.Kind == KindChoice && len(p.Choices) > 0 {
		quoted := make([]string, len(p.Choices))
		for i, c := range p.Choices {
			quoted[i] = strconv.Quote(c)
		}
		parts = append(parts, "("+strings.Join(quoted, " | ")+")")
	}
	if p.Constraint != "" {
		parts = append(parts, "("+p.Constraint+")")
	}
	return strings.Join(parts, " & ")
}

// checkConstraint unifies the CUE constraint with the encoded value and
// requires a concrete, error-free result.
func checkConstraint(cctx *cue.Context, expr string, v any) error {
	schema := cctx.CompileString(expr)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("bad constraint %q: %s", expr, cueMessage(err))
	}
	val := cctx.Encode(cueValue(v))
	if err := val.Err(); err != nil {
		return fmt.Errorf("encode: %s", cueMessage(err))
	}
	if err := schema.Unify(val).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("violates %s: %s", expr, cueMessage(err))
	}
	return nil
}

// cueValue maps typed argument values to their plain encoded form.
func cueValue(v any) any {
	switch x := v.(type) {
	case data.Path:
		return x.String()
	case data.DataType:
		return x.String()
	default:
		return v
	}
}

func cueMessage(err error) string {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err.Error()
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		format, args := e.Msg()
		msgs = append(msgs, fmt.Sprintf(format, args...))
	}
	return strings.Join(msgs, "; ")
}

// CheckPaths verifies path arguments against ds: KindPath must name an
// existing object and KindCreatePath must not.
func (ps Parameters) CheckPaths(ds *data.Structure, args Arguments) []result.Error {
	var errs []result.Error
	for _, p := range ps {
		path, ok := args[p.Name].(data.Path)
		if !ok {
			continue
		}
		switch p.Kind {
		case KindPath:
			if !ds.Contains(path) {
				errs = append(errs, result.NewStructural(result.CodePathNotFound,
					"argument %q: no object at %q", p.Name, path))
			}
		case KindCreatePath:
			if ds.Contains(path) {
				errs = append(errs, result.NewStructural(result.CodePathExists,
					"argument %q: object already exists at %q", p.Name, path))
			}
		}
	}
	return errs
}

func sortErrors(errs []result.Error) {
	sort.SliceStable(errs, func(i, j int) bool { return errs[i].Message < errs[j].Message })
}
