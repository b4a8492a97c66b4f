package action

import (
	"fmt"
	"slices"

	"github.com/roach88/datapipe/internal/data"
)

// CreateArray creates a numeric array. In Execute mode the payload is
// allocated and filled with Fill.
type CreateArray struct {
	Path           data.Path
	Type           data.DataType
	TupleShape     []int
	ComponentShape []int
	Fill           float64
}

func (a CreateArray) Paths() []data.Path        { return []data.Path{a.Path} }
func (a CreateArray) CreatedPaths() []data.Path { return []data.Path{a.Path} }

func (a CreateArray) String() string {
	return fmt.Sprintf("CreateArray(%s %s tuples=%v components=%v)", a.Path, a.Type, a.TupleShape, a.ComponentShape)
}

func (a CreateArray) Apply(ds *data.Structure, mode Mode) error {
	if !a.Type.Valid() {
		return fmt.Errorf("create array %s: invalid data type %d", a.Path, int(a.Type))
	}
	if err := checkShape(a.TupleShape); err != nil {
		return fmt.Errorf("create array %s: tuple %w", a.Path, err)
	}
	if err := checkShape(a.ComponentShape); err != nil {
		return fmt.Errorf("create array %s: component %w", a.Path, err)
	}
	n := product(a.TupleShape) * product(a.ComponentShape)
	var store data.ArrayStore
	if mode == Preflight {
		store = data.NewEmptyStore(a.Type, n)
	} else {
		store = data.NewMemoryStore(a.Type, n)
	}
	arr := data.NewArrayWithStore(a.Path.Name(), a.TupleShape, a.ComponentShape, store)
	if mode == Execute && a.Fill != 0 {
		arr.Fill(a.Fill)
	}
	if _, err := ds.Insert(arr, a.Path.Parent()); err != nil {
		return fmt.Errorf("create array: %w", err)
	}
	return nil
}

// CreateStringArray creates a string table with Values, or NumTuples empty
// strings when Values is nil.
type CreateStringArray struct {
	Path      data.Path
	NumTuples int
	Values    []string
}

func (a CreateStringArray) Paths() []data.Path        { return []data.Path{a.Path} }
func (a CreateStringArray) CreatedPaths() []data.Path { return []data.Path{a.Path} }

func (a CreateStringArray) String() string {
	return fmt.Sprintf("CreateStringArray(%s tuples=%d)", a.Path, a.tuples())
}

func (a CreateStringArray) tuples() int {
	if a.Values != nil {
		return len(a.Values)
	}
	return a.NumTuples
}

func (a CreateStringArray) Apply(ds *data.Structure, mode Mode) error {
	values := make([]string, a.tuples())
	if mode == Execute {
		copy(values, a.Values)
	}
	if _, err := ds.Insert(data.NewStringArray(a.Path.Name(), values), a.Path.Parent()); err != nil {
		return fmt.Errorf("create string array: %w", err)
	}
	return nil
}

// CreateGroup creates an empty group.
type CreateGroup struct {
	Path data.Path
}

func (a CreateGroup) Paths() []data.Path        { return []data.Path{a.Path} }
func (a CreateGroup) CreatedPaths() []data.Path { return []data.Path{a.Path} }
func (a CreateGroup) String() string            { return fmt.Sprintf("CreateGroup(%s)", a.Path) }

func (a CreateGroup) Apply(ds *data.Structure, _ Mode) error {
	if _, err := ds.Insert(data.NewGroup(a.Path.Name()), a.Path.Parent()); err != nil {
		return fmt.Errorf("create group: %w", err)
	}
	return nil
}

// CreateAttributeMatrix creates an empty attribute matrix.
type CreateAttributeMatrix struct {
	Path       data.Path
	TupleShape []int
}

func (a CreateAttributeMatrix) Paths() []data.Path        { return []data.Path{a.Path} }
func (a CreateAttributeMatrix) CreatedPaths() []data.Path { return []data.Path{a.Path} }

func (a CreateAttributeMatrix) String() string {
	return fmt.Sprintf("CreateAttributeMatrix(%s tuples=%v)", a.Path, a.TupleShape)
}

func (a CreateAttributeMatrix) Apply(ds *data.Structure, _ Mode) error {
	if err := checkShape(a.TupleShape); err != nil {
		return fmt.Errorf("create attribute matrix %s: %w", a.Path, err)
	}
	if _, err := ds.Insert(data.NewAttributeMatrix(a.Path.Name(), a.TupleShape), a.Path.Parent()); err != nil {
		return fmt.Errorf("create attribute matrix: %w", err)
	}
	return nil
}

// CreateGeometry creates a geometry. Image geometries also get a cell
// attribute matrix named CellDataName sized to the grid when it is set.
type CreateGeometry struct {
	Path         data.Path
	Type         data.GeometryType
	Dimensions   [3]int
	Spacing      [3]float64
	Origin       [3]float64
	CellDataName string
}

func (a CreateGeometry) Paths() []data.Path { return []data.Path{a.Path} }

func (a CreateGeometry) CreatedPaths() []data.Path {
	out := []data.Path{a.Path}
	if a.cellData() {
		out = append(out, a.Path.Child(a.CellDataName))
	}
	return out
}

func (a CreateGeometry) String() string {
	return fmt.Sprintf("CreateGeometry(%s %s dims=%v)", a.Path, a.Type, a.Dimensions)
}

func (a CreateGeometry) cellData() bool {
	return a.Type == data.GeometryImage && a.CellDataName != ""
}

func (a CreateGeometry) Apply(ds *data.Structure, _ Mode) error {
	if !a.Type.Valid() {
		return fmt.Errorf("create geometry %s: unknown type %q", a.Path, a.Type)
	}
	if a.Type == data.GeometryImage {
		for i, d := range a.Dimensions {
			if d <= 0 {
				return fmt.Errorf("create geometry %s: dimension %d is %d", a.Path, i, d)
			}
		}
	}
	if a.cellData() {
		if err := data.ValidateName(data.NormalizeName(a.CellDataName)); err != nil {
			return fmt.Errorf("create geometry %s: cell data: %w", a.Path, err)
		}
	}
	geom := data.NewGeometry(a.Path.Name(), a.Type)
	geom.Dimensions = a.Dimensions
	geom.Spacing = a.Spacing
	geom.Origin = a.Origin
	if _, err := ds.Insert(geom, a.Path.Parent()); err != nil {
		return fmt.Errorf("create geometry: %w", err)
	}
	if a.cellData() {
		// Cannot collide: the geometry was just created empty.
		n := a.Dimensions[0] * a.Dimensions[1] * a.Dimensions[2]
		if _, err := ds.Insert(data.NewAttributeMatrix(a.CellDataName, []int{n}), a.Path); err != nil {
			_ = ds.Remove(a.Path)
			return fmt.Errorf("create geometry cell data: %w", err)
		}
	}
	return nil
}

func checkShape(shape []int) error {
	if len(shape) == 0 {
		return fmt.Errorf("shape is empty")
	}
	if slices.ContainsFunc(shape, func(d int) bool { return d < 0 }) {
		return fmt.Errorf("shape %v has a negative dimension", shape)
	}
	return nil
}

func product(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}
