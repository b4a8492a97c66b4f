package data

import (
	"fmt"
	"slices"
)

// DataMap is an ordered, name-unique mapping from name to object ID.
// Iteration follows insertion order; renaming keeps an entry's position.
type DataMap struct {
	names []string
	ids   map[string]ID
}

// Len returns the number of entries.
func (m *DataMap) Len() int { return len(m.names) }

// Names returns the entry names in order.
func (m *DataMap) Names() []string { return slices.Clone(m.names) }

// IDs returns the entry IDs in order.
func (m *DataMap) IDs() []ID {
	out := make([]ID, len(m.names))
	for i, n := range m.names {
		out[i] = m.ids[n]
	}
	return out
}

// Get returns the ID stored under name.
func (m *DataMap) Get(name string) (ID, bool) {
	id, ok := m.ids[name]
	return id, ok
}

// Contains reports whether name is present.
func (m *DataMap) Contains(name string) bool {
	_, ok := m.ids[name]
	return ok
}

// NameOf returns the name under which id is stored.
func (m *DataMap) NameOf(id ID) (string, bool) {
	for _, n := range m.names {
		if m.ids[n] == id {
			return n, true
		}
	}
	return "", false
}

func (m *DataMap) insert(name string, id ID) error {
	if m.ids == nil {
		m.ids = make(map[string]ID)
	}
	if _, ok := m.ids[name]; ok {
		return fmt.Errorf("%w: %q", ErrExists, name)
	}
	m.names = append(m.names, name)
	m.ids[name] = id
	return nil
}

func (m *DataMap) remove(name string) bool {
	if _, ok := m.ids[name]; !ok {
		return false
	}
	delete(m.ids, name)
	m.names = slices.DeleteFunc(m.names, func(n string) bool { return n == name })
	return true
}

func (m *DataMap) rename(old, name string) {
	id := m.ids[old]
	delete(m.ids, old)
	m.ids[name] = id
	if i := slices.Index(m.names, old); i >= 0 {
		m.names[i] = name
	}
}

func (m *DataMap) clone() DataMap {
	out := DataMap{names: slices.Clone(m.names), ids: make(map[string]ID, len(m.ids))}
	for k, v := range m.ids {
		out.ids[k] = v
	}
	return out
}
