package serialization

import (
	"fmt"
	"math"
)

// The Put* functions write the fixed-width little-endian encoding of a value
// into the head of b; the Get* functions read it back. Callers size b with
// Kind.Size; a short buffer panics like the encoding/binary helpers do.

func PutInt8(b []byte, v int8) { b[0] = byte(v) }

func GetInt8(b []byte) int8 { return int8(b[0]) }

func PutInt16(b []byte, v int16) { ByteOrder.PutUint16(b, uint16(v)) }

func GetInt16(b []byte) int16 { return int16(ByteOrder.Uint16(b)) }

func PutInt32(b []byte, v int32) { ByteOrder.PutUint32(b, uint32(v)) }

func GetInt32(b []byte) int32 { return int32(ByteOrder.Uint32(b)) }

func PutInt64(b []byte, v int64) { ByteOrder.PutUint64(b, uint64(v)) }

func GetInt64(b []byte) int64 { return int64(ByteOrder.Uint64(b)) }

func PutUint8(b []byte, v uint8) { b[0] = v }

func GetUint8(b []byte) uint8 { return b[0] }

func PutUint16(b []byte, v uint16) { ByteOrder.PutUint16(b, v) }

func GetUint16(b []byte) uint16 { return ByteOrder.Uint16(b) }

func PutUint32(b []byte, v uint32) { ByteOrder.PutUint32(b, v) }

func GetUint32(b []byte) uint32 { return ByteOrder.Uint32(b) }

func PutUint64(b []byte, v uint64) { ByteOrder.PutUint64(b, v) }

func GetUint64(b []byte) uint64 { return ByteOrder.Uint64(b) }

// PutFloat32 stores the IEEE-754 bit pattern, so NaN payloads survive.
func PutFloat32(b []byte, v float32) { ByteOrder.PutUint32(b, math.Float32bits(v)) }

func GetFloat32(b []byte) float32 { return math.Float32frombits(ByteOrder.Uint32(b)) }

func PutFloat64(b []byte, v float64) { ByteOrder.PutUint64(b, math.Float64bits(v)) }

func GetFloat64(b []byte) float64 { return math.Float64frombits(ByteOrder.Uint64(b)) }

// PutBool writes 0x01 for true and 0x00 for false.
func PutBool(b []byte, v bool) {
	if v {
		b[0] = 0x01
		return
	}
	b[0] = 0x00
}

// GetBool treats any non-zero byte as true.
func GetBool(b []byte) bool { return b[0] != 0x00 }

// PutLength writes a count or byte-length prefix.
func PutLength(b []byte, n int) error {
	if n < 0 || n > math.MaxInt32 {
		return fmt.Errorf("length %d does not fit a %d-byte signed prefix", n, LengthSize)
	}
	ByteOrder.PutUint32(b, uint32(n))
	return nil
}

// GetLength reads a count or byte-length prefix. Negative values are
// returned as-is; rejecting them is the caller's decision.
func GetLength(b []byte) int32 {
	return int32(ByteOrder.Uint32(b))
}

// AppendString appends the [4-byte length][UTF-8 bytes] encoding of s.
func AppendString(dst []byte, s string) ([]byte, error) {
	var prefix [LengthSize]byte
	if err := PutLength(prefix[:], len(s)); err != nil {
		return nil, err
	}
	dst = append(dst, prefix[:]...)
	return append(dst, s...), nil
}
