package data

import (
	"fmt"
	"slices"
)

// ArrayStore is the backing storage of an Array.
//
// Implementations may keep their payload in memory, keep no payload at all
// (preflight placeholders), or keep it out of core. Callers must not assume
// the payload stays resident.
type ArrayStore interface {
	DataType() DataType
	// Len returns the number of elements (tuples * components).
	Len() int
	// Value returns element i converted to float64.
	Value(i int) float64
	// SetValue stores v, converted to the element type, at index i.
	SetValue(i int, v float64)
	// Bytes returns the little-endian payload.
	Bytes() ([]byte, error)
	// Resident returns the number of payload bytes currently held in memory.
	Resident() uint64
	// Placeholder reports a shape-only store with no values.
	Placeholder() bool
	// Resize changes the element count, preserving the common prefix.
	Resize(n int)
	Clone() ArrayStore
}

// memoryStore keeps the payload as a little-endian byte slice.
type memoryStore struct {
	dtype DataType
	n     int
	buf   []byte
}

// NewMemoryStore allocates a zero-filled in-memory store of n elements.
func NewMemoryStore(dtype DataType, n int) ArrayStore {
	return &memoryStore{dtype: dtype, n: n, buf: make([]byte, n*dtype.Size())}
}

// NewMemoryStoreFromBytes wraps an existing little-endian payload.
func NewMemoryStoreFromBytes(dtype DataType, n int, payload []byte) (ArrayStore, error) {
	if want := n * dtype.Size(); len(payload) != want {
		return nil, fmt.Errorf("payload is %d bytes, %s[%d] needs %d", len(payload), dtype, n, want)
	}
	return &memoryStore{dtype: dtype, n: n, buf: payload}, nil
}

func (s *memoryStore) DataType() DataType        { return s.dtype }
func (s *memoryStore) Len() int                  { return s.n }
func (s *memoryStore) Value(i int) float64       { return s.dtype.decode(s.buf, i) }
func (s *memoryStore) SetValue(i int, v float64) { s.dtype.encode(s.buf, i, v) }
func (s *memoryStore) Bytes() ([]byte, error)    { return s.buf, nil }
func (s *memoryStore) Resident() uint64          { return uint64(len(s.buf)) }
func (s *memoryStore) Placeholder() bool         { return false }

func (s *memoryStore) Resize(n int) {
	buf := make([]byte, n*s.dtype.Size())
	copy(buf, s.buf)
	s.buf = buf
	s.n = n
}

func (s *memoryStore) Clone() ArrayStore {
	return &memoryStore{dtype: s.dtype, n: s.n, buf: slices.Clone(s.buf)}
}

// emptyStore records shape and type only. Reads return 0 and writes are dropped.
type emptyStore struct {
	dtype DataType
	n     int
}

// NewEmptyStore returns a placeholder store used during preflight.
func NewEmptyStore(dtype DataType, n int) ArrayStore {
	return &emptyStore{dtype: dtype, n: n}
}

func (s *emptyStore) DataType() DataType     { return s.dtype }
func (s *emptyStore) Len() int               { return s.n }
func (s *emptyStore) Value(int) float64      { return 0 }
func (s *emptyStore) SetValue(int, float64)  {}
func (s *emptyStore) Bytes() ([]byte, error) { return nil, nil }
func (s *emptyStore) Resident() uint64       { return 0 }
func (s *emptyStore) Placeholder() bool      { return true }
func (s *emptyStore) Resize(n int)           { s.n = n }
func (s *emptyStore) Clone() ArrayStore      { return &emptyStore{dtype: s.dtype, n: s.n} }
