package data

import (
	"fmt"
	"slices"
)

// Structure is the root of the data graph: a root DataMap, the reverse
// index from ID to object, and the next-ID counter.
//
// A Structure has exactly one mutable owner at a time. It is not safe for
// concurrent use; pipelines hand clones between nodes instead of sharing.
type Structure struct {
	root    DataMap
	objects map[ID]Object
	nextID  ID
	// orphans are out-of-core payloads of removed arrays, deleted by Discard.
	orphans []*outOfCoreStore
}

// NewStructure returns an empty structure. The first assigned ID is 1.
func NewStructure() *Structure {
	return &Structure{objects: make(map[ID]Object), nextID: 1}
}

// NextID returns the ID the next inserted object will receive.
func (s *Structure) NextID() ID { return s.nextID }

// SetNextID moves the counter forward. It never moves it backwards past an
// ID already in use.
func (s *Structure) SetNextID(id ID) {
	if id > s.nextID {
		s.nextID = id
	}
}

// Len returns the number of objects in the index.
func (s *Structure) Len() int { return len(s.objects) }

// RootNames returns the names in the root DataMap, in order.
func (s *Structure) RootNames() []string { return s.root.Names() }

// RootMap returns the root DataMap. Callers must not retain it across edits.
func (s *Structure) RootMap() *DataMap { return &s.root }

// GetByID resolves an ID through the reverse index.
func (s *Structure) GetByID(id ID) (Object, bool) {
	obj, ok := s.objects[id]
	return obj, ok
}

// Get resolves a path by walking DataMaps from the root.
func (s *Structure) Get(p Path) (Object, bool) {
	if p.IsRoot() {
		return nil, false
	}
	m := &s.root
	var obj Object
	for i := 0; i < p.Len(); i++ {
		if m == nil {
			return nil, false
		}
		id, ok := m.Get(p.Segment(i))
		if !ok {
			return nil, false
		}
		obj = s.objects[id]
		if c, ok := obj.(Container); ok {
			m = c.Children()
		} else {
			m = nil
		}
	}
	return obj, true
}

// Contains reports whether p resolves.
func (s *Structure) Contains(p Path) bool {
	_, ok := s.Get(p)
	return ok
}

// Array returns the numeric array at p.
func (s *Structure) Array(p Path) (*Array, error) {
	return getAs[*Array](s, p)
}

// StringArray returns the string array at p.
func (s *Structure) StringArray(p Path) (*StringArray, error) {
	return getAs[*StringArray](s, p)
}

// Group returns the group at p.
func (s *Structure) Group(p Path) (*Group, error) {
	return getAs[*Group](s, p)
}

// AttributeMatrix returns the attribute matrix at p.
func (s *Structure) AttributeMatrix(p Path) (*AttributeMatrix, error) {
	return getAs[*AttributeMatrix](s, p)
}

// Geometry returns the geometry at p.
func (s *Structure) Geometry(p Path) (*Geometry, error) {
	return getAs[*Geometry](s, p)
}

// Container returns the container at p. The root path yields an error;
// use RootMap for the root.
func (s *Structure) Container(p Path) (Container, error) {
	return getAs[Container](s, p)
}

func getAs[T Object](s *Structure, p Path) (T, error) {
	var zero T
	obj, ok := s.Get(p)
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	t, ok := obj.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s is a %s", ErrTypeMismatch, p, obj.Kind())
	}
	return t, nil
}

// parentMap resolves the DataMap addressed by p and the ID recorded as
// parent for its children.
func (s *Structure) parentMap(p Path) (*DataMap, ID, error) {
	if p.IsRoot() {
		return &s.root, RootID, nil
	}
	obj, ok := s.Get(p)
	if !ok {
		return nil, 0, fmt.Errorf("%w: parent %s", ErrNotFound, p)
	}
	c, ok := obj.(Container)
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s", ErrNotContainer, p)
	}
	return c.Children(), c.ID(), nil
}

// Insert adds obj under the container at parent (the root when parent is
// the root path) and returns its ID.
//
// An object with ID 0 receives the next ID. An object with a preset ID keeps
// it, which is how readers restore persisted structures; the counter is
// advanced past it. Inserting an attached object fails; use AddParent.
func (s *Structure) Insert(obj Object, parent Path) (ID, error) {
	b := obj.base()
	if err := ValidateName(b.name); err != nil {
		return 0, fmt.Errorf("insert: %w", err)
	}
	if len(b.parents) > 0 {
		return 0, fmt.Errorf("insert %q: object is already attached", b.name)
	}
	m, parentID, err := s.parentMap(parent)
	if err != nil {
		return 0, fmt.Errorf("insert %q: %w", b.name, err)
	}
	if m.Contains(b.name) {
		return 0, fmt.Errorf("insert: %w: %s", ErrExists, parent.Child(b.name))
	}
	if err := s.checkTuples(parentID, obj); err != nil {
		return 0, fmt.Errorf("insert %s: %w", parent.Child(b.name), err)
	}
	if b.id != 0 {
		if _, taken := s.objects[b.id]; taken {
			return 0, fmt.Errorf("insert %q: %w: %d", b.name, ErrIDInUse, b.id)
		}
	}
	if c, ok := obj.(Container); ok && c.Children().Len() > 0 {
		return 0, fmt.Errorf("insert %q: container must be empty", b.name)
	}

	// Validation done; from here on the edit cannot fail.
	if b.id == 0 {
		b.id = s.nextID
	}
	if b.id >= s.nextID {
		s.nextID = b.id + 1
	}
	_ = m.insert(b.name, b.id)
	b.parents = append(b.parents, parentID)
	s.objects[b.id] = obj
	return b.id, nil
}

// checkTuples enforces that arrays inside an attribute matrix match its
// tuple count.
func (s *Structure) checkTuples(parentID ID, obj Object) error {
	if parentID == RootID {
		return nil
	}
	am, ok := s.objects[parentID].(*AttributeMatrix)
	if !ok {
		return nil
	}
	n, ok := tupleCount(obj)
	if !ok {
		return nil
	}
	if n != am.NumTuples() {
		return fmt.Errorf("%w: %d tuples, attribute matrix %q has %d", ErrShapeMismatch, n, am.Name(), am.NumTuples())
	}
	return nil
}

// AddParent lists an existing object under a second container, sharing it.
func (s *Structure) AddParent(id ID, parent Path) error {
	obj, ok := s.objects[id]
	if !ok {
		return fmt.Errorf("add parent: %w: id %d", ErrNotFound, id)
	}
	m, parentID, err := s.parentMap(parent)
	if err != nil {
		return fmt.Errorf("add parent: %w", err)
	}
	b := obj.base()
	if slices.Contains(b.parents, parentID) {
		return fmt.Errorf("add parent: %w: %s already lists %q", ErrExists, parent, b.name)
	}
	if m.Contains(b.name) {
		return fmt.Errorf("add parent: %w: %s", ErrExists, parent.Child(b.name))
	}
	if parentID != RootID && (parentID == id || s.isAncestor(id, parentID)) {
		return fmt.Errorf("add parent: %w: %q under %s", ErrCycle, b.name, parent)
	}
	if err := s.checkTuples(parentID, obj); err != nil {
		return fmt.Errorf("add parent: %w", err)
	}
	_ = m.insert(b.name, id)
	b.parents = append(b.parents, parentID)
	return nil
}

// isAncestor reports whether anc is reachable upward from id.
func (s *Structure) isAncestor(anc, id ID) bool {
	seen := map[ID]bool{}
	stack := []ID{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		obj, ok := s.objects[cur]
		if !ok {
			continue
		}
		for _, p := range obj.base().parents {
			if p == anc {
				return true
			}
			if p != RootID {
				stack = append(stack, p)
			}
		}
	}
	return false
}

// Remove deletes the edge from p's parent to the object at p. If that was
// the object's last parent, the object leaves the index and the removal
// cascades to children that become unreachable.
func (s *Structure) Remove(p Path) error {
	if p.IsRoot() {
		return fmt.Errorf("remove: %w: root", ErrNotFound)
	}
	obj, ok := s.Get(p)
	if !ok {
		return fmt.Errorf("remove: %w: %s", ErrNotFound, p)
	}
	m, parentID, err := s.parentMap(p.Parent())
	if err != nil {
		return fmt.Errorf("remove: %w", err)
	}
	m.remove(p.Name())
	s.detach(obj, parentID)
	return nil
}

// detach drops one parent edge and frees the object once unreferenced.
func (s *Structure) detach(obj Object, parentID ID) {
	b := obj.base()
	if i := slices.Index(b.parents, parentID); i >= 0 {
		b.parents = slices.Delete(b.parents, i, i+1)
	}
	if len(b.parents) > 0 {
		return
	}
	delete(s.objects, b.id)
	if a, ok := obj.(*Array); ok {
		if oc, ok := a.store.(*outOfCoreStore); ok {
			s.orphans = append(s.orphans, oc)
		}
	}
	c, ok := obj.(Container)
	if !ok {
		return
	}
	for _, childID := range c.Children().IDs() {
		if child, ok := s.objects[childID]; ok {
			s.detach(child, b.id)
		}
	}
	*c.Children() = DataMap{}
}

// Rename changes the name of the object at p in every container listing it.
func (s *Structure) Rename(p Path, name string) error {
	name = NormalizeName(name)
	if err := ValidateName(name); err != nil {
		return fmt.Errorf("rename %s: %w", p, err)
	}
	obj, ok := s.Get(p)
	if !ok {
		return fmt.Errorf("rename: %w: %s", ErrNotFound, p)
	}
	b := obj.base()
	if b.name == name {
		return nil
	}
	maps := make([]*DataMap, 0, len(b.parents))
	for _, pid := range b.parents {
		m := s.childMap(pid)
		if m.Contains(name) {
			return fmt.Errorf("rename %s: %w: %q", p, ErrExists, name)
		}
		maps = append(maps, m)
	}
	for _, m := range maps {
		m.rename(b.name, name)
	}
	b.name = name
	return nil
}

// Move re-parents the object at p from its current parent to newParent.
func (s *Structure) Move(p Path, newParent Path) error {
	obj, ok := s.Get(p)
	if !ok {
		return fmt.Errorf("move: %w: %s", ErrNotFound, p)
	}
	oldMap, oldID, err := s.parentMap(p.Parent())
	if err != nil {
		return fmt.Errorf("move: %w", err)
	}
	newMap, newID, err := s.parentMap(newParent)
	if err != nil {
		return fmt.Errorf("move: %w", err)
	}
	if oldID == newID {
		return nil
	}
	b := obj.base()
	if newMap.Contains(b.name) {
		return fmt.Errorf("move: %w: %s", ErrExists, newParent.Child(b.name))
	}
	if slices.Contains(b.parents, newID) {
		return fmt.Errorf("move: %w: %s already lists %q", ErrExists, newParent, b.name)
	}
	if newID != RootID && (newID == b.id || s.isAncestor(b.id, newID)) {
		return fmt.Errorf("move: %w: %s into %s", ErrCycle, p, newParent)
	}
	if err := s.checkTuples(newID, obj); err != nil {
		return fmt.Errorf("move: %w", err)
	}
	oldMap.remove(b.name)
	_ = newMap.insert(b.name, b.id)
	i := slices.Index(b.parents, oldID)
	b.parents[i] = newID
	return nil
}

// childMap returns the DataMap of container id, or the root map.
func (s *Structure) childMap(id ID) *DataMap {
	if id == RootID {
		return &s.root
	}
	return s.objects[id].(Container).Children()
}

// PathsTo returns every path that resolves to id, in DataMap order.
func (s *Structure) PathsTo(id ID) []Path {
	var out []Path
	s.Walk(func(p Path, obj Object) bool {
		if obj.ID() == id {
			out = append(out, p)
		}
		return true
	})
	return out
}

// Paths returns every reachable path in depth-first DataMap order. Shared
// objects appear once per parent.
func (s *Structure) Paths() []Path {
	var out []Path
	s.Walk(func(p Path, _ Object) bool {
		out = append(out, p)
		return true
	})
	return out
}

// Walk visits every reachable path depth-first in DataMap order. Returning
// false from fn skips the children of that object.
func (s *Structure) Walk(fn func(Path, Object) bool) {
	s.walkMap(&s.root, Path{}, fn)
}

func (s *Structure) walkMap(m *DataMap, prefix Path, fn func(Path, Object) bool) {
	for _, name := range m.names {
		obj := s.objects[m.ids[name]]
		p := prefix.Child(name)
		if !fn(p, obj) {
			continue
		}
		if c, ok := obj.(Container); ok {
			s.walkMap(c.Children(), p, fn)
		}
	}
}

// Clone returns a deep copy. IDs, names, order and the counter are preserved
// so paths and IDs resolve identically in both copies.
func (s *Structure) Clone() *Structure {
	return s.clone(true)
}

// CloneMetadata is Clone with every array payload replaced by an empty
// placeholder of the same type and shape.
func (s *Structure) CloneMetadata() *Structure {
	return s.clone(false)
}

func (s *Structure) clone(payload bool) *Structure {
	out := &Structure{
		root:    s.root.clone(),
		objects: make(map[ID]Object, len(s.objects)),
		nextID:  s.nextID,
	}
	for id, obj := range s.objects {
		out.objects[id] = obj.clone(payload)
	}
	return out
}

// MemoryUsage returns the resident payload bytes of every object, counting
// shared objects once.
func (s *Structure) MemoryUsage() uint64 {
	var n uint64
	for _, obj := range s.objects {
		n += obj.MemoryUsage()
	}
	return n
}

// Validate checks the index and DataMap invariants.
func (s *Structure) Validate() error {
	reached := make(map[ID]bool, len(s.objects))
	var check func(m *DataMap, owner ID) error
	check = func(m *DataMap, owner ID) error {
		for _, name := range m.names {
			id := m.ids[name]
			obj, ok := s.objects[id]
			if !ok {
				return fmt.Errorf("entry %q of %d: id %d not indexed", name, owner, id)
			}
			if obj.Name() != name {
				return fmt.Errorf("entry %q of %d: object is named %q", name, owner, obj.Name())
			}
			if !slices.Contains(obj.base().parents, owner) {
				return fmt.Errorf("object %d does not record parent %d", id, owner)
			}
			if reached[id] {
				continue
			}
			reached[id] = true
			if c, ok := obj.(Container); ok {
				if err := check(c.Children(), id); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := check(&s.root, RootID); err != nil {
		return err
	}
	for id, obj := range s.objects {
		if !reached[id] {
			return fmt.Errorf("object %d (%q) is indexed but unreachable", id, obj.Name())
		}
		if id >= s.nextID {
			return fmt.Errorf("object %d is not below next id %d", id, s.nextID)
		}
		for _, pid := range obj.base().parents {
			var m *DataMap
			if pid == RootID {
				m = &s.root
			} else if c, ok := s.objects[pid].(Container); ok {
				m = c.Children()
			} else {
				return fmt.Errorf("object %d records non-container parent %d", id, pid)
			}
			if got, ok := m.Get(obj.Name()); !ok || got != id {
				return fmt.Errorf("parent %d does not list object %d", pid, id)
			}
			if err := s.checkTuples(pid, obj); err != nil {
				return fmt.Errorf("object %d: %w", id, err)
			}
		}
	}
	return nil
}
