package data

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Separator joins path segments in the textual form of a Path.
const Separator = "/"

// Path is an immutable sequence of names addressing an object from the root.
// The zero value is the root path.
type Path struct {
	segs []string
}

// NewPath builds a Path from segments. Segments are NFC-normalized.
// It does not validate them; use ParsePath or Validate for untrusted input.
func NewPath(segs ...string) Path {
	out := make([]string, len(segs))
	for i, s := range segs {
		out[i] = NormalizeName(s)
	}
	return Path{segs: out}
}

// ParsePath parses the textual form "A/B/C". Leading and trailing separators
// are ignored; the empty string is the root path.
func ParsePath(s string) (Path, error) {
	s = strings.Trim(s, Separator)
	if s == "" {
		return Path{}, nil
	}
	parts := strings.Split(s, Separator)
	p := NewPath(parts...)
	if err := p.Validate(); err != nil {
		return Path{}, err
	}
	return p, nil
}

// MustParsePath is ParsePath that panics on error. For tests and constants.
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Validate checks every segment is a valid object name.
func (p Path) Validate() error {
	for i, s := range p.segs {
		if err := ValidateName(s); err != nil {
			return fmt.Errorf("segment %d of %q: %w", i, p.String(), err)
		}
	}
	return nil
}

// Len returns the number of segments.
func (p Path) Len() int { return len(p.segs) }

// IsRoot reports whether p addresses the root.
func (p Path) IsRoot() bool { return len(p.segs) == 0 }

// Segment returns the i-th segment.
func (p Path) Segment(i int) string { return p.segs[i] }

// Segments returns a copy of the segments.
func (p Path) Segments() []string { return slices.Clone(p.segs) }

// Name returns the last segment, or "" for the root.
func (p Path) Name() string {
	if len(p.segs) == 0 {
		return ""
	}
	return p.segs[len(p.segs)-1]
}

// Parent returns the path without its last segment.
func (p Path) Parent() Path {
	if len(p.segs) <= 1 {
		return Path{}
	}
	return Path{segs: slices.Clone(p.segs[:len(p.segs)-1])}
}

// Child returns p extended by name.
func (p Path) Child(name string) Path {
	out := make([]string, len(p.segs), len(p.segs)+1)
	copy(out, p.segs)
	return Path{segs: append(out, NormalizeName(name))}
}

// WithName returns p with its last segment replaced.
func (p Path) WithName(name string) Path {
	if len(p.segs) == 0 {
		return p
	}
	out := slices.Clone(p.segs)
	out[len(out)-1] = NormalizeName(name)
	return Path{segs: out}
}

// Equal reports segment-wise equality.
func (p Path) Equal(o Path) bool {
	return slices.Equal(p.segs, o.segs)
}

// HasPrefix reports whether prefix addresses p or one of its ancestors.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix.segs) > len(p.segs) {
		return false
	}
	return slices.Equal(p.segs[:len(prefix.segs)], prefix.segs)
}

// ReplacePrefix rewrites p when it equals old or lies beneath it.
// It returns p unchanged and false otherwise.
func (p Path) ReplacePrefix(old, replacement Path) (Path, bool) {
	if old.IsRoot() || !p.HasPrefix(old) {
		return p, false
	}
	out := make([]string, 0, len(replacement.segs)+len(p.segs)-len(old.segs))
	out = append(out, replacement.segs...)
	out = append(out, p.segs[len(old.segs):]...)
	return Path{segs: out}, true
}

// DiffSegments returns the number of positions at which p and o differ.
// Paths of different length return -1.
func (p Path) DiffSegments(o Path) int {
	if len(p.segs) != len(o.segs) {
		return -1
	}
	n := 0
	for i := range p.segs {
		if p.segs[i] != o.segs[i] {
			n++
		}
	}
	return n
}

// String returns the textual form "A/B/C".
func (p Path) String() string {
	return strings.Join(p.segs, Separator)
}

// MarshalText implements encoding.TextMarshaler.
func (p Path) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Path) UnmarshalText(b []byte) error {
	parsed, err := ParsePath(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// NormalizeName returns the NFC form of a name.
func NormalizeName(name string) string {
	return norm.NFC.String(name)
}

// ValidateName rejects names that cannot appear as a path segment.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if strings.Contains(name, Separator) {
		return fmt.Errorf("%w: %q contains %q", ErrInvalidName, name, Separator)
	}
	if !norm.NFC.IsNormalString(name) {
		return fmt.Errorf("%w: %q is not NFC-normalized", ErrInvalidName, name)
	}
	return nil
}

// SortPaths sorts paths by their textual form.
func SortPaths(paths []Path) {
	slices.SortFunc(paths, func(a, b Path) int {
		return strings.Compare(a.String(), b.String())
	})
}
