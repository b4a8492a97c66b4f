package data

import (
	"fmt"
	"strings"

	"github.com/minio/highwayhash"
)

// fingerprintKey is fixed so fingerprints are comparable across processes.
var fingerprintKey = []byte("datapipe-structure-fingerprint-k")

// Entry is the metadata of one reachable path.
type Entry struct {
	Path           Path         `json:"path"`
	ID             ID           `json:"id"`
	Kind           Kind         `json:"-"`
	KindName       string       `json:"kind"`
	DataType       string       `json:"data_type,omitempty"`
	TupleShape     []int        `json:"tuple_shape,omitempty"`
	ComponentShape []int        `json:"component_shape,omitempty"`
	Geometry       GeometryType `json:"geometry,omitempty"`
	Dimensions     []int        `json:"dimensions,omitempty"`
	Placeholder    bool         `json:"placeholder,omitempty"`
}

// Describe returns the metadata of every reachable path in walk order.
// It never reads payload values.
func (s *Structure) Describe() []Entry {
	var out []Entry
	s.Walk(func(p Path, obj Object) bool {
		e := Entry{Path: p, ID: obj.ID(), Kind: obj.Kind(), KindName: obj.Kind().String()}
		switch o := obj.(type) {
		case *Array:
			e.DataType = o.DataType().String()
			e.TupleShape = o.TupleShape
			e.ComponentShape = o.ComponentShape
			e.Placeholder = o.Placeholder()
		case *StringArray:
			e.TupleShape = []int{o.NumTuples()}
		case *AttributeMatrix:
			e.TupleShape = o.TupleShape
		case *Geometry:
			e.Geometry = o.Type
			if o.Type == GeometryImage {
				e.Dimensions = o.Dimensions[:]
			}
		}
		out = append(out, e)
		return true
	})
	return out
}

// String renders the entry as a single stable line.
func (e Entry) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s id=%d kind=%s", e.Path, e.ID, e.KindName)
	if e.DataType != "" {
		fmt.Fprintf(&b, " type=%s", e.DataType)
	}
	if e.TupleShape != nil {
		fmt.Fprintf(&b, " tuples=%v", e.TupleShape)
	}
	if e.ComponentShape != nil {
		fmt.Fprintf(&b, " components=%v", e.ComponentShape)
	}
	if e.Geometry != "" {
		fmt.Fprintf(&b, " geometry=%s", e.Geometry)
	}
	if e.Dimensions != nil {
		fmt.Fprintf(&b, " dims=%v", e.Dimensions)
	}
	return b.String()
}

// DescribeText renders Describe as newline-terminated lines. Placeholder
// state is omitted so preflight and execute structures compare equal.
func (s *Structure) DescribeText() string {
	var b strings.Builder
	for _, e := range s.Describe() {
		b.WriteString(e.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// Fingerprint returns a 64-bit digest of DescribeText and the ID counter.
func (s *Structure) Fingerprint() (uint64, error) {
	h, err := highwayhash.New64(fingerprintKey)
	if err != nil {
		return 0, fmt.Errorf("fingerprint: %w", err)
	}
	fmt.Fprintf(h, "next=%d\n", s.nextID)
	if _, err := h.Write([]byte(s.DescribeText())); err != nil {
		return 0, fmt.Errorf("fingerprint: %w", err)
	}
	return h.Sum64(), nil
}
