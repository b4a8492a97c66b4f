package action

import (
	"fmt"
	"strings"

	"github.com/roach88/datapipe/internal/data"
)

// ModifyObject edits an existing object. Any combination of NewName,
// NewParent and TupleShape may be set; they apply in that order and the
// action fails without partial edits if any step would fail.
type ModifyObject struct {
	Path      data.Path
	NewName   string
	NewParent *data.Path
	// TupleShape resizes an attribute matrix and every array it holds, or a
	// single array.
	TupleShape []int
}

func (a ModifyObject) Paths() []data.Path { return []data.Path{a.Path} }

// CreatedPaths returns the object's new path when it is renamed or moved.
func (a ModifyObject) CreatedPaths() []data.Path {
	if a.NewName == "" && a.NewParent == nil {
		return nil
	}
	return []data.Path{a.target()}
}

func (a ModifyObject) target() data.Path {
	parent := a.Path.Parent()
	if a.NewParent != nil {
		parent = *a.NewParent
	}
	name := a.Path.Name()
	if a.NewName != "" {
		name = a.NewName
	}
	return parent.Child(name)
}

func (a ModifyObject) String() string {
	var parts []string
	if a.NewName != "" {
		parts = append(parts, "name="+a.NewName)
	}
	if a.NewParent != nil {
		parts = append(parts, "parent="+a.NewParent.String())
	}
	if a.TupleShape != nil {
		parts = append(parts, fmt.Sprintf("tuples=%v", a.TupleShape))
	}
	return fmt.Sprintf("ModifyObject(%s %s)", a.Path, strings.Join(parts, " "))
}

func (a ModifyObject) Apply(ds *data.Structure, mode Mode) error {
	obj, ok := ds.Get(a.Path)
	if !ok {
		return fmt.Errorf("modify: %w: %s", data.ErrNotFound, a.Path)
	}
	if a.TupleShape != nil {
		if err := checkShape(a.TupleShape); err != nil {
			return fmt.Errorf("modify %s: %w", a.Path, err)
		}
		switch obj.(type) {
		case *data.AttributeMatrix, *data.Array:
		default:
			return fmt.Errorf("modify %s: %w: cannot resize a %s", a.Path, data.ErrTypeMismatch, obj.Kind())
		}
	}

	// Validate every step on a metadata copy first so the real edit is
	// all-or-nothing.
	probe := ds.CloneMetadata()
	if err := a.edit(probe); err != nil {
		return err
	}
	return a.edit(ds)
}

func (a ModifyObject) edit(ds *data.Structure) error {
	cur := a.Path
	if a.NewName != "" {
		if err := ds.Rename(cur, a.NewName); err != nil {
			return fmt.Errorf("modify: %w", err)
		}
		cur = cur.WithName(a.NewName)
	}
	if a.NewParent != nil {
		if err := ds.Move(cur, *a.NewParent); err != nil {
			return fmt.Errorf("modify: %w", err)
		}
		cur = a.NewParent.Child(cur.Name())
	}
	if a.TupleShape != nil {
		obj, _ := ds.Get(cur)
		switch o := obj.(type) {
		case *data.AttributeMatrix:
			n := product(a.TupleShape)
			for _, id := range o.Children().IDs() {
				child := mustGet(ds, id)
				switch c := child.(type) {
				case *data.Array:
					if err := checkParentTuples(ds, c, n, o.ID()); err != nil {
						return fmt.Errorf("modify %s: %w", cur, err)
					}
				case *data.StringArray:
					if c.NumTuples() != n {
						return fmt.Errorf("modify %s: %w: string array %q cannot be resized", cur, data.ErrShapeMismatch, c.Name())
					}
				}
			}
			o.TupleShape = append([]int(nil), a.TupleShape...)
			for _, id := range o.Children().IDs() {
				if arr, ok := mustGet(ds, id).(*data.Array); ok {
					arr.ResizeTuples(a.TupleShape)
				}
			}
		case *data.Array:
			if err := checkParentTuples(ds, o, product(a.TupleShape), 0); err != nil {
				return fmt.Errorf("modify %s: %w", cur, err)
			}
			o.ResizeTuples(a.TupleShape)
		}
	}
	return nil
}

// checkParentTuples fails when an attribute matrix listing obj, other than
// skip, does not hold n tuples.
func checkParentTuples(ds *data.Structure, obj data.Object, n int, skip data.ID) error {
	for _, pid := range obj.Parents() {
		if pid == skip {
			continue
		}
		am, ok := mustGet(ds, pid).(*data.AttributeMatrix)
		if ok && am.NumTuples() != n {
			return fmt.Errorf("%w: %q is also listed by attribute matrix %q with %d tuples", data.ErrShapeMismatch, obj.Name(), am.Name(), am.NumTuples())
		}
	}
	return nil
}

func mustGet(ds *data.Structure, id data.ID) data.Object {
	obj, _ := ds.GetByID(id)
	return obj
}

// LinkObject lists an existing object under a second parent, sharing it.
type LinkObject struct {
	Target data.Path
	Parent data.Path
}

func (a LinkObject) Paths() []data.Path { return []data.Path{a.Target, a.Parent} }

// CreatedPaths returns the new path through which the object is reachable.
func (a LinkObject) CreatedPaths() []data.Path {
	return []data.Path{a.Parent.Child(a.Target.Name())}
}

func (a LinkObject) String() string {
	return fmt.Sprintf("LinkObject(%s -> %s)", a.Target, a.Parent)
}

func (a LinkObject) Apply(ds *data.Structure, _ Mode) error {
	obj, ok := ds.Get(a.Target)
	if !ok {
		return fmt.Errorf("link: %w: %s", data.ErrNotFound, a.Target)
	}
	if err := ds.AddParent(obj.ID(), a.Parent); err != nil {
		return fmt.Errorf("link: %w", err)
	}
	return nil
}

// DeleteObject removes the edge to the object at Path; the object itself is
// dropped once no parent lists it.
type DeleteObject struct {
	Path data.Path
}

func (a DeleteObject) Paths() []data.Path { return []data.Path{a.Path} }
func (a DeleteObject) String() string     { return fmt.Sprintf("DeleteObject(%s)", a.Path) }

func (a DeleteObject) Apply(ds *data.Structure, _ Mode) error {
	if err := ds.Remove(a.Path); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}
