package data

import (
	"fmt"
	"slices"
)

// ID identifies an object within a Structure and its clones.
type ID uint64

// RootID is the parent ID recorded for objects listed in the root DataMap.
const RootID ID = 0

// Kind distinguishes object variants.
type Kind int

const (
	KindGroup Kind = iota + 1
	KindAttributeMatrix
	KindGeometry
	KindArray
	KindStringArray
)

var kindNames = map[Kind]string{
	KindGroup:           "Group",
	KindAttributeMatrix: "AttributeMatrix",
	KindGeometry:        "Geometry",
	KindArray:           "Array",
	KindStringArray:     "StringArray",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind parses a kind name.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown object kind %q", s)
}

// Object is one node of the data graph.
type Object interface {
	ID() ID
	Name() string
	Kind() Kind
	// Parents returns the IDs of every container listing this object.
	// RootID stands for the root DataMap.
	Parents() []ID
	// MemoryUsage returns resident payload bytes.
	MemoryUsage() uint64

	base() *objectBase
	clone(payload bool) Object
}

// Container is an Object that holds children.
type Container interface {
	Object
	Children() *DataMap
}

type objectBase struct {
	id      ID
	name    string
	parents []ID
}

func (b *objectBase) ID() ID            { return b.id }
func (b *objectBase) Name() string      { return b.name }
func (b *objectBase) Parents() []ID     { return slices.Clone(b.parents) }
func (b *objectBase) base() *objectBase { return b }
func (b *objectBase) copyBase() objectBase {
	return objectBase{id: b.id, name: b.name, parents: slices.Clone(b.parents)}
}

// AssignID gives an unattached object a preset ID for Insert to keep.
// Readers use it to restore persisted identities.
func AssignID(obj Object, id ID) error {
	b := obj.base()
	if len(b.parents) > 0 {
		return fmt.Errorf("assign id %d to %q: object is already attached", id, b.name)
	}
	if id == RootID {
		return fmt.Errorf("assign id to %q: %w: %d is reserved", b.name, ErrIDInUse, id)
	}
	b.id = id
	return nil
}

// Group is a plain container.
type Group struct {
	objectBase
	children DataMap
}

// NewGroup creates an unattached group.
func NewGroup(name string) *Group {
	return &Group{objectBase: objectBase{name: NormalizeName(name)}}
}

func (g *Group) Kind() Kind          { return KindGroup }
func (g *Group) Children() *DataMap  { return &g.children }
func (g *Group) MemoryUsage() uint64 { return 0 }
func (g *Group) clone(bool) Object {
	return &Group{objectBase: g.copyBase(), children: g.children.clone()}
}

// AttributeMatrix is a container whose array children share a tuple shape.
type AttributeMatrix struct {
	objectBase
	children   DataMap
	TupleShape []int
}

// NewAttributeMatrix creates an unattached attribute matrix.
func NewAttributeMatrix(name string, tupleShape []int) *AttributeMatrix {
	return &AttributeMatrix{
		objectBase: objectBase{name: NormalizeName(name)},
		TupleShape: slices.Clone(tupleShape),
	}
}

func (m *AttributeMatrix) Kind() Kind          { return KindAttributeMatrix }
func (m *AttributeMatrix) Children() *DataMap  { return &m.children }
func (m *AttributeMatrix) MemoryUsage() uint64 { return 0 }

// NumTuples returns the product of the tuple shape.
func (m *AttributeMatrix) NumTuples() int { return product(m.TupleShape) }

func (m *AttributeMatrix) clone(bool) Object {
	return &AttributeMatrix{
		objectBase: m.copyBase(),
		children:   m.children.clone(),
		TupleShape: slices.Clone(m.TupleShape),
	}
}

// GeometryType names the kind of mesh or grid a Geometry describes.
type GeometryType string

const (
	GeometryImage    GeometryType = "Image"
	GeometryVertex   GeometryType = "Vertex"
	GeometryEdge     GeometryType = "Edge"
	GeometryTriangle GeometryType = "Triangle"
)

// Valid reports whether t is a known geometry type.
func (t GeometryType) Valid() bool {
	switch t {
	case GeometryImage, GeometryVertex, GeometryEdge, GeometryTriangle:
		return true
	}
	return false
}

// Geometry is a container describing a grid or mesh. Image geometries use
// Dimensions, Spacing and Origin; node-based geometries keep their vertex
// and element arrays as children.
type Geometry struct {
	objectBase
	children   DataMap
	Type       GeometryType
	Dimensions [3]int
	Spacing    [3]float64
	Origin     [3]float64
}

// NewGeometry creates an unattached geometry of the given type.
func NewGeometry(name string, typ GeometryType) *Geometry {
	return &Geometry{
		objectBase: objectBase{name: NormalizeName(name)},
		Type:       typ,
		Spacing:    [3]float64{1, 1, 1},
	}
}

// NewImageGeometry creates an unattached image geometry.
func NewImageGeometry(name string, dims [3]int, spacing, origin [3]float64) *Geometry {
	g := NewGeometry(name, GeometryImage)
	g.Dimensions = dims
	g.Spacing = spacing
	g.Origin = origin
	return g
}

func (g *Geometry) Kind() Kind          { return KindGeometry }
func (g *Geometry) Children() *DataMap  { return &g.children }
func (g *Geometry) MemoryUsage() uint64 { return 0 }

// NumCells returns the number of cells of an image geometry.
func (g *Geometry) NumCells() int {
	return g.Dimensions[0] * g.Dimensions[1] * g.Dimensions[2]
}

func (g *Geometry) clone(bool) Object {
	return &Geometry{
		objectBase: g.copyBase(),
		children:   g.children.clone(),
		Type:       g.Type,
		Dimensions: g.Dimensions,
		Spacing:    g.Spacing,
		Origin:     g.Origin,
	}
}

// Array is a typed numeric array of tuples, each of ComponentShape elements.
type Array struct {
	objectBase
	TupleShape     []int
	ComponentShape []int
	store          ArrayStore
}

// NewArray creates an unattached, zero-filled in-memory array.
func NewArray(name string, dtype DataType, tupleShape, componentShape []int) *Array {
	n := product(tupleShape) * product(componentShape)
	return NewArrayWithStore(name, tupleShape, componentShape, NewMemoryStore(dtype, n))
}

// NewArrayWithStore creates an unattached array over an existing store.
func NewArrayWithStore(name string, tupleShape, componentShape []int, store ArrayStore) *Array {
	return &Array{
		objectBase:     objectBase{name: NormalizeName(name)},
		TupleShape:     slices.Clone(tupleShape),
		ComponentShape: slices.Clone(componentShape),
		store:          store,
	}
}

func (a *Array) Kind() Kind          { return KindArray }
func (a *Array) MemoryUsage() uint64 { return a.store.Resident() }

// DataType returns the element type.
func (a *Array) DataType() DataType { return a.store.DataType() }

// NumTuples returns the product of the tuple shape.
func (a *Array) NumTuples() int { return product(a.TupleShape) }

// NumComponents returns the product of the component shape.
func (a *Array) NumComponents() int { return product(a.ComponentShape) }

// Len returns the total element count.
func (a *Array) Len() int { return a.store.Len() }

// Value returns element i.
func (a *Array) Value(i int) float64 { return a.store.Value(i) }

// SetValue stores element i.
func (a *Array) SetValue(i int, v float64) { a.store.SetValue(i, v) }

// Fill sets every element to v.
func (a *Array) Fill(v float64) {
	for i := 0; i < a.store.Len(); i++ {
		a.store.SetValue(i, v)
	}
}

// Store returns the backing store.
func (a *Array) Store() ArrayStore { return a.store }

// SetStore replaces the backing store. The new store must have the same
// type and length.
func (a *Array) SetStore(s ArrayStore) error {
	if s.DataType() != a.store.DataType() || s.Len() != a.store.Len() {
		return fmt.Errorf("%w: store %s[%d] cannot back %s[%d]",
			ErrShapeMismatch, s.DataType(), s.Len(), a.store.DataType(), a.store.Len())
	}
	a.store = s
	return nil
}

// ResizeTuples changes the tuple shape, keeping the component shape.
func (a *Array) ResizeTuples(tupleShape []int) {
	a.TupleShape = slices.Clone(tupleShape)
	a.store.Resize(product(tupleShape) * a.NumComponents())
}

// Placeholder reports whether the array carries shape only.
func (a *Array) Placeholder() bool { return a.store.Placeholder() }

func (a *Array) clone(payload bool) Object {
	var store ArrayStore
	if payload {
		store = a.store.Clone()
	} else {
		store = NewEmptyStore(a.store.DataType(), a.store.Len())
	}
	return &Array{
		objectBase:     a.copyBase(),
		TupleShape:     slices.Clone(a.TupleShape),
		ComponentShape: slices.Clone(a.ComponentShape),
		store:          store,
	}
}

// StringArray is a table of strings, one per tuple.
type StringArray struct {
	objectBase
	Values []string
}

// NewStringArray creates an unattached string array.
func NewStringArray(name string, values []string) *StringArray {
	return &StringArray{objectBase: objectBase{name: NormalizeName(name)}, Values: slices.Clone(values)}
}

func (s *StringArray) Kind() Kind { return KindStringArray }

// NumTuples returns the number of strings.
func (s *StringArray) NumTuples() int { return len(s.Values) }

func (s *StringArray) MemoryUsage() uint64 {
	var n uint64
	for _, v := range s.Values {
		n += uint64(len(v))
	}
	return n
}

func (s *StringArray) clone(payload bool) Object {
	out := &StringArray{objectBase: s.copyBase()}
	if payload {
		out.Values = slices.Clone(s.Values)
	} else {
		out.Values = make([]string, len(s.Values))
	}
	return out
}

// tupleCount returns the tuple count of array-like objects.
func tupleCount(obj Object) (int, bool) {
	switch o := obj.(type) {
	case *Array:
		return o.NumTuples(), true
	case *StringArray:
		return o.NumTuples(), true
	}
	return 0, false
}

func product(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}
