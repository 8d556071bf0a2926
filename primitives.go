package savex

import (
	"github.com/shopspring/decimal"

	"github.com/hengadev/savex/internal/serialization"
)

// Char is a single fixed-width (one byte) character. Char arrays travel as
// raw bytes and are never UTF-8 decoded, so multi-byte characters do not
// survive a Char round trip; use string for text.
type Char byte

// Scalar writers. Each one appends the fixed-width little-endian encoding
// of its value.

func (w *Writer) WriteInt8(v int8) error {
	b := w.scratch[:1]
	serialization.PutInt8(b, v)
	return w.WriteRaw(b)
}

func (w *Writer) WriteInt16(v int16) error {
	b := w.scratch[:2]
	serialization.PutInt16(b, v)
	return w.WriteRaw(b)
}

func (w *Writer) WriteInt32(v int32) error {
	b := w.scratch[:4]
	serialization.PutInt32(b, v)
	return w.WriteRaw(b)
}

func (w *Writer) WriteInt64(v int64) error {
	b := w.scratch[:8]
	serialization.PutInt64(b, v)
	return w.WriteRaw(b)
}

// WriteInt writes v as an int64.
func (w *Writer) WriteInt(v int) error { return w.WriteInt64(int64(v)) }

func (w *Writer) WriteUint8(v uint8) error {
	b := w.scratch[:1]
	serialization.PutUint8(b, v)
	return w.WriteRaw(b)
}

func (w *Writer) WriteUint16(v uint16) error {
	b := w.scratch[:2]
	serialization.PutUint16(b, v)
	return w.WriteRaw(b)
}

func (w *Writer) WriteUint32(v uint32) error {
	b := w.scratch[:4]
	serialization.PutUint32(b, v)
	return w.WriteRaw(b)
}

func (w *Writer) WriteUint64(v uint64) error {
	b := w.scratch[:8]
	serialization.PutUint64(b, v)
	return w.WriteRaw(b)
}

// WriteUint writes v as a uint64.
func (w *Writer) WriteUint(v uint) error { return w.WriteUint64(uint64(v)) }

func (w *Writer) WriteFloat32(v float32) error {
	b := w.scratch[:4]
	serialization.PutFloat32(b, v)
	return w.WriteRaw(b)
}

func (w *Writer) WriteFloat64(v float64) error {
	b := w.scratch[:8]
	serialization.PutFloat64(b, v)
	return w.WriteRaw(b)
}

func (w *Writer) WriteDecimal(v decimal.Decimal) error {
	b := w.scratch[:serialization.DecimalSize]
	if err := serialization.PutDecimal(b, v); err != nil {
		return NewValueOutOfRangeError("decimal", err.Error())
	}
	return w.WriteRaw(b)
}

func (w *Writer) WriteBool(v bool) error {
	b := w.scratch[:1]
	serialization.PutBool(b, v)
	return w.WriteRaw(b)
}

func (w *Writer) WriteChar(v Char) error {
	b := w.scratch[:1]
	b[0] = byte(v)
	return w.WriteRaw(b)
}

// WriteString writes a 4-byte byte-length prefix followed by the UTF-8 bytes.
func (w *Writer) WriteString(v string) error {
	if err := w.writeCount(len(v)); err != nil {
		return err
	}
	return w.WriteRaw([]byte(v))
}

// Scalar readers. Each one consumes exactly the bytes its writer produced.

func (r *Reader) ReadInt8() (int8, error) {
	b := r.scratch[:1]
	if err := r.readFull(b, "int8"); err != nil {
		return 0, err
	}
	return serialization.GetInt8(b), nil
}

func (r *Reader) ReadInt16() (int16, error) {
	b := r.scratch[:2]
	if err := r.readFull(b, "int16"); err != nil {
		return 0, err
	}
	return serialization.GetInt16(b), nil
}

func (r *Reader) ReadInt32() (int32, error) {
	b := r.scratch[:4]
	if err := r.readFull(b, "int32"); err != nil {
		return 0, err
	}
	return serialization.GetInt32(b), nil
}

func (r *Reader) ReadInt64() (int64, error) {
	b := r.scratch[:8]
	if err := r.readFull(b, "int64"); err != nil {
		return 0, err
	}
	return serialization.GetInt64(b), nil
}

func (r *Reader) ReadInt() (int, error) {
	v, err := r.ReadInt64()
	return int(v), err
}

func (r *Reader) ReadUint8() (uint8, error) {
	b := r.scratch[:1]
	if err := r.readFull(b, "uint8"); err != nil {
		return 0, err
	}
	return serialization.GetUint8(b), nil
}

func (r *Reader) ReadUint16() (uint16, error) {
	b := r.scratch[:2]
	if err := r.readFull(b, "uint16"); err != nil {
		return 0, err
	}
	return serialization.GetUint16(b), nil
}

func (r *Reader) ReadUint32() (uint32, error) {
	b := r.scratch[:4]
	if err := r.readFull(b, "uint32"); err != nil {
		return 0, err
	}
	return serialization.GetUint32(b), nil
}

func (r *Reader) ReadUint64() (uint64, error) {
	b := r.scratch[:8]
	if err := r.readFull(b, "uint64"); err != nil {
		return 0, err
	}
	return serialization.GetUint64(b), nil
}

func (r *Reader) ReadUint() (uint, error) {
	v, err := r.ReadUint64()
	return uint(v), err
}

func (r *Reader) ReadFloat32() (float32, error) {
	b := r.scratch[:4]
	if err := r.readFull(b, "float32"); err != nil {
		return 0, err
	}
	return serialization.GetFloat32(b), nil
}

func (r *Reader) ReadFloat64() (float64, error) {
	b := r.scratch[:8]
	if err := r.readFull(b, "float64"); err != nil {
		return 0, err
	}
	return serialization.GetFloat64(b), nil
}

func (r *Reader) ReadDecimal() (decimal.Decimal, error) {
	b := r.scratch[:serialization.DecimalSize]
	if err := r.readFull(b, "decimal"); err != nil {
		return decimal.Decimal{}, err
	}
	d, err := serialization.GetDecimal(b)
	if err != nil {
		return decimal.Decimal{}, NewMalformedStreamError("decimal", err.Error())
	}
	return d, nil
}

func (r *Reader) ReadBool() (bool, error) {
	b := r.scratch[:1]
	if err := r.readFull(b, "bool"); err != nil {
		return false, err
	}
	return serialization.GetBool(b), nil
}

func (r *Reader) ReadChar() (Char, error) {
	b := r.scratch[:1]
	if err := r.readFull(b, "char"); err != nil {
		return 0, err
	}
	return Char(b[0]), nil
}

func (r *Reader) ReadString() (string, error) {
	n, err := r.readCount("string")
	if err != nil {
		return "", err
	}
	raw, err := r.readRaw(n, "string")
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
