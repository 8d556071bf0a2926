package serialization

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// ByteOrder is the byte order of every multi-byte value and length prefix.
var ByteOrder = binary.LittleEndian

// LengthSize is the width of the signed count/length prefix written before
// strings and arrays.
const LengthSize = 4

// Kind identifies one supported scalar kind.
type Kind uint8

const (
	Invalid Kind = iota
	Int8
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Float32
	Float64
	Decimal
	Bool
	Char
	String
)

var kindNames = map[Kind]string{
	Int8:    "int8",
	Int16:   "int16",
	Int32:   "int32",
	Int64:   "int64",
	Uint8:   "uint8",
	Uint16:  "uint16",
	Uint32:  "uint32",
	Uint64:  "uint64",
	Float32: "float32",
	Float64: "float64",
	Decimal: "decimal",
	Bool:    "bool",
	Char:    "char",
	String:  "string",
}

// Size returns the fixed encoded width of the kind in bytes. String is the
// only variable-width kind and reports 0.
func (k Kind) Size() int {
	switch k {
	case Int8, Uint8, Bool, Char:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64:
		return 8
	case Decimal:
		return DecimalSize
	default:
		return 0
	}
}

// IsValid checks if the kind is one of the supported scalar kinds
func (k Kind) IsValid() bool {
	_, ok := kindNames[k]
	return ok
}

// IsFixed reports whether every value of the kind has the same width.
func (k Kind) IsFixed() bool {
	return k.Size() > 0
}

// String returns the string representation of the kind
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "invalid"
}

// ParseKind parses a kind name such as "int32" or "string".
func ParseKind(s string) (Kind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return Invalid, fmt.Errorf("invalid scalar kind '%s'", s)
}

// AllKinds returns all supported scalar kinds in declaration order.
func AllKinds() []Kind {
	return []Kind{Int8, Int16, Int32, Int64, Uint8, Uint16, Uint32, Uint64,
		Float32, Float64, Decimal, Bool, Char, String}
}
