package savex

import (
	"github.com/shopspring/decimal"

	"github.com/hengadev/savex/internal/serialization"
)

// Array form of every scalar kind: a 4-byte element count followed by the
// elements back to back. Byte and Char arrays are written as one raw block.

func writeFixedArray[T any](w *Writer, vals []T, size int, put func([]byte, T)) error {
	if err := w.writeCount(len(vals)); err != nil {
		return err
	}
	if len(vals) == 0 {
		return nil
	}
	perChunk := max(1, chunkSize/size)
	buf := make([]byte, min(len(vals), perChunk)*size)
	for start := 0; start < len(vals); start += perChunk {
		end := min(start+perChunk, len(vals))
		b := buf[:(end-start)*size]
		for i, v := range vals[start:end] {
			put(b[i*size:], v)
		}
		if err := w.WriteRaw(b); err != nil {
			return err
		}
	}
	return nil
}

func readFixedArray[T any](r *Reader, what string, size int, get func([]byte) T) ([]T, error) {
	n, err := r.readCount(what)
	if err != nil {
		return nil, err
	}
	perChunk := max(1, chunkSize/size)
	out := make([]T, 0, min(n, perChunk))
	if n == 0 {
		return out, nil
	}
	buf := make([]byte, min(n, perChunk)*size)
	for remaining := n; remaining > 0; {
		k := min(remaining, perChunk)
		b := buf[:k*size]
		if err := r.readFull(b, what); err != nil {
			return nil, err
		}
		for i := 0; i < k; i++ {
			out = append(out, get(b[i*size:]))
		}
		remaining -= k
	}
	return out, nil
}

func (w *Writer) WriteInt8Array(v []int8) error {
	return writeFixedArray(w, v, 1, serialization.PutInt8)
}

func (w *Writer) WriteInt16Array(v []int16) error {
	return writeFixedArray(w, v, 2, serialization.PutInt16)
}

func (w *Writer) WriteInt32Array(v []int32) error {
	return writeFixedArray(w, v, 4, serialization.PutInt32)
}

func (w *Writer) WriteInt64Array(v []int64) error {
	return writeFixedArray(w, v, 8, serialization.PutInt64)
}

func (w *Writer) WriteIntArray(v []int) error {
	return writeFixedArray(w, v, 8, func(b []byte, x int) { serialization.PutInt64(b, int64(x)) })
}

func (w *Writer) WriteUint16Array(v []uint16) error {
	return writeFixedArray(w, v, 2, serialization.PutUint16)
}

func (w *Writer) WriteUint32Array(v []uint32) error {
	return writeFixedArray(w, v, 4, serialization.PutUint32)
}

func (w *Writer) WriteUint64Array(v []uint64) error {
	return writeFixedArray(w, v, 8, serialization.PutUint64)
}

func (w *Writer) WriteUintArray(v []uint) error {
	return writeFixedArray(w, v, 8, func(b []byte, x uint) { serialization.PutUint64(b, uint64(x)) })
}

func (w *Writer) WriteFloat32Array(v []float32) error {
	return writeFixedArray(w, v, 4, serialization.PutFloat32)
}

func (w *Writer) WriteFloat64Array(v []float64) error {
	return writeFixedArray(w, v, 8, serialization.PutFloat64)
}

func (w *Writer) WriteBoolArray(v []bool) error {
	return writeFixedArray(w, v, 1, serialization.PutBool)
}

func (w *Writer) WriteDecimalArray(v []decimal.Decimal) error {
	if err := w.writeCount(len(v)); err != nil {
		return err
	}
	for _, d := range v {
		if err := w.WriteDecimal(d); err != nil {
			return err
		}
	}
	return nil
}

// WriteBytes writes the count prefix and then v as a single raw block.
func (w *Writer) WriteBytes(v []byte) error {
	if err := w.writeCount(len(v)); err != nil {
		return err
	}
	return w.WriteRaw(v)
}

// WriteChars writes the count prefix and then one byte per Char.
func (w *Writer) WriteChars(v []Char) error {
	raw := make([]byte, len(v))
	for i, c := range v {
		raw[i] = byte(c)
	}
	return w.WriteBytes(raw)
}

func (w *Writer) WriteStringArray(v []string) error {
	if err := w.writeCount(len(v)); err != nil {
		return err
	}
	for _, s := range v {
		if err := w.WriteString(s); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reader) ReadInt8Array() ([]int8, error) {
	return readFixedArray(r, "int8 array", 1, serialization.GetInt8)
}

func (r *Reader) ReadInt16Array() ([]int16, error) {
	return readFixedArray(r, "int16 array", 2, serialization.GetInt16)
}

func (r *Reader) ReadInt32Array() ([]int32, error) {
	return readFixedArray(r, "int32 array", 4, serialization.GetInt32)
}

func (r *Reader) ReadInt64Array() ([]int64, error) {
	return readFixedArray(r, "int64 array", 8, serialization.GetInt64)
}

func (r *Reader) ReadIntArray() ([]int, error) {
	return readFixedArray(r, "int array", 8, func(b []byte) int { return int(serialization.GetInt64(b)) })
}

func (r *Reader) ReadUint16Array() ([]uint16, error) {
	return readFixedArray(r, "uint16 array", 2, serialization.GetUint16)
}

func (r *Reader) ReadUint32Array() ([]uint32, error) {
	return readFixedArray(r, "uint32 array", 4, serialization.GetUint32)
}

func (r *Reader) ReadUint64Array() ([]uint64, error) {
	return readFixedArray(r, "uint64 array", 8, serialization.GetUint64)
}

func (r *Reader) ReadUintArray() ([]uint, error) {
	return readFixedArray(r, "uint array", 8, func(b []byte) uint { return uint(serialization.GetUint64(b)) })
}

func (r *Reader) ReadFloat32Array() ([]float32, error) {
	return readFixedArray(r, "float32 array", 4, serialization.GetFloat32)
}

func (r *Reader) ReadFloat64Array() ([]float64, error) {
	return readFixedArray(r, "float64 array", 8, serialization.GetFloat64)
}

func (r *Reader) ReadBoolArray() ([]bool, error) {
	return readFixedArray(r, "bool array", 1, serialization.GetBool)
}

func (r *Reader) ReadDecimalArray() ([]decimal.Decimal, error) {
	n, err := r.readCount("decimal array")
	if err != nil {
		return nil, err
	}
	out := make([]decimal.Decimal, 0, min(n, chunkSize/serialization.DecimalSize))
	for i := 0; i < n; i++ {
		d, err := r.ReadDecimal()
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.readCount("byte array")
	if err != nil {
		return nil, err
	}
	return r.readRaw(n, "byte array")
}

// ReadChars reads the raw bytes of a Char array without UTF-8 decoding.
func (r *Reader) ReadChars() ([]Char, error) {
	raw, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	out := make([]Char, len(raw))
	for i, b := range raw {
		out[i] = Char(b)
	}
	return out, nil
}

func (r *Reader) ReadStringArray() ([]string, error) {
	n, err := r.readCount("string array")
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, min(n, chunkSize/serialization.LengthSize))
	for i := 0; i < n; i++ {
		s, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
