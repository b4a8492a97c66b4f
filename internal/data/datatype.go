package data

import (
	"encoding/binary"
	"fmt"
	"math"
)

// DataType is the element type of a numeric Array.
type DataType int

const (
	Int8 DataType = iota + 1
	UInt8
	Int16
	UInt16
	Int32
	UInt32
	Int64
	UInt64
	Float32
	Float64
	Bool
)

var dataTypeNames = map[DataType]string{
	Int8:    "int8",
	UInt8:   "uint8",
	Int16:   "int16",
	UInt16:  "uint16",
	Int32:   "int32",
	UInt32:  "uint32",
	Int64:   "int64",
	UInt64:  "uint64",
	Float32: "float32",
	Float64: "float64",
	Bool:    "bool",
}

func (t DataType) String() string {
	if s, ok := dataTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("DataType(%d)", int(t))
}

// ParseDataType parses a type name such as "float32".
func ParseDataType(s string) (DataType, error) {
	for t, name := range dataTypeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown data type %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (t DataType) MarshalText() ([]byte, error) {
	if _, ok := dataTypeNames[t]; !ok {
		return nil, fmt.Errorf("invalid data type %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *DataType) UnmarshalText(b []byte) error {
	parsed, err := ParseDataType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Valid reports whether t is a known type.
func (t DataType) Valid() bool {
	_, ok := dataTypeNames[t]
	return ok
}

// Size returns the element width in bytes.
func (t DataType) Size() int {
	switch t {
	case Int8, UInt8, Bool:
		return 1
	case Int16, UInt16:
		return 2
	case Int32, UInt32, Float32:
		return 4
	case Int64, UInt64, Float64:
		return 8
	default:
		return 0
	}
}

// decode reads element i of a little-endian buffer.
func (t DataType) decode(b []byte, i int) float64 {
	off := i * t.Size()
	switch t {
	case Int8:
		return float64(int8(b[off]))
	case UInt8:
		return float64(b[off])
	case Bool:
		if b[off] != 0 {
			return 1
		}
		return 0
	case Int16:
		return float64(int16(binary.LittleEndian.Uint16(b[off:])))
	case UInt16:
		return float64(binary.LittleEndian.Uint16(b[off:]))
	case Int32:
		return float64(int32(binary.LittleEndian.Uint32(b[off:])))
	case UInt32:
		return float64(binary.LittleEndian.Uint32(b[off:]))
	case Int64:
		return float64(int64(binary.LittleEndian.Uint64(b[off:])))
	case UInt64:
		return float64(binary.LittleEndian.Uint64(b[off:]))
	case Float32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b[off:])))
	case Float64:
		return math.Float64frombits(binary.LittleEndian.Uint64(b[off:]))
	}
	return 0
}

// encode writes v as element i of a little-endian buffer.
func (t DataType) encode(b []byte, i int, v float64) {
	off := i * t.Size()
	switch t {
	case Int8:
		b[off] = byte(int8(v))
	case UInt8:
		b[off] = uint8(v)
	case Bool:
		if v != 0 {
			b[off] = 1
		} else {
			b[off] = 0
		}
	case Int16:
		binary.LittleEndian.PutUint16(b[off:], uint16(int16(v)))
	case UInt16:
		binary.LittleEndian.PutUint16(b[off:], uint16(v))
	case Int32:
		binary.LittleEndian.PutUint32(b[off:], uint32(int32(v)))
	case UInt32:
		binary.LittleEndian.PutUint32(b[off:], uint32(v))
	case Int64:
		binary.LittleEndian.PutUint64(b[off:], uint64(int64(v)))
	case UInt64:
		binary.LittleEndian.PutUint64(b[off:], uint64(v))
	case Float32:
		binary.LittleEndian.PutUint32(b[off:], math.Float32bits(float32(v)))
	case Float64:
		binary.LittleEndian.PutUint64(b[off:], math.Float64bits(v))
	}
}
