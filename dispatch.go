package savex

import (
	"reflect"

	"github.com/shopspring/decimal"

	"github.com/hengadev/savex/internal/serialization"
)

// WriteValue writes v using the codec chosen for its dynamic type: scalar,
// array, composite or a registered extension. Nothing is written when the
// type is rejected.
func (w *Writer) WriteValue(v any) error {
	if v == nil {
		return NewNilPointerError(nil, Encode)
	}
	return w.writeReflect(reflect.ValueOf(v))
}

// ReadValue reads a value of type t and returns it boxed.
func (r *Reader) ReadValue(t reflect.Type) (any, error) {
	if t == nil {
		return nil, NewUnsupportedTypeError(t, Decode)
	}
	v := reflect.New(t).Elem()
	if err := r.readInto(v); err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

// WriteAs writes v using the codec of the static type T.
func WriteAs[T any](w *Writer, v T) error {
	return w.writeReflect(reflect.ValueOf(&v).Elem())
}

// ReadAs reads a value of type T.
func ReadAs[T any](r *Reader) (T, error) {
	var out T
	err := r.readInto(reflect.ValueOf(&out).Elem())
	return out, err
}

func (w *Writer) writeReflect(v reflect.Value) error {
	p, err := planFor(v.Type(), Encode)
	if err != nil {
		return err
	}
	return w.writeWithPlan(v, p)
}

func (r *Reader) readInto(dst reflect.Value) error {
	p, err := planFor(dst.Type(), Decode)
	if err != nil {
		return err
	}
	return r.readWithPlan(dst, p)
}

func (w *Writer) writeWithPlan(v reflect.Value, p *plan) error {
	switch p.kind {
	case planScalar:
		return w.writeScalar(v, p.scalar)
	case planScalarArray:
		return w.writeScalarArray(v, p.scalar)
	case planComposite:
		return w.writeComposite(v, p.composite)
	case planCompositeArray:
		if err := p.composite.check(); err != nil {
			return err
		}
		if err := w.writeCount(v.Len()); err != nil {
			return err
		}
		for i := range v.Len() {
			if err := w.writeComposite(v.Index(i), p.composite); err != nil {
				return err
			}
		}
		return nil
	case planExtension:
		return p.ext.encode(w, v)
	case planExtensionArray:
		if err := w.writeCount(v.Len()); err != nil {
			return err
		}
		for i := range v.Len() {
			if err := p.ext.encode(w, v.Index(i)); err != nil {
				return err
			}
		}
		return nil
	default:
		return NewUnsupportedTypeError(p.typ, Encode)
	}
}

func (r *Reader) readWithPlan(dst reflect.Value, p *plan) error {
	switch p.kind {
	case planScalar:
		return r.readScalar(dst, p.scalar)
	case planScalarArray:
		return r.readScalarArray(dst, p)
	case planComposite:
		return r.readComposite(dst, p.composite)
	case planCompositeArray:
		n, err := r.readCount("composite array")
		if err != nil {
			return err
		}
		out := reflect.MakeSlice(p.typ, 0, min(n, chunkSize/serialization.LengthSize))
		for range n {
			elem := reflect.New(p.elem).Elem()
			if err := r.readComposite(elem, p.composite); err != nil {
				return err
			}
			out = reflect.Append(out, elem)
		}
		dst.Set(out)
		return nil
	case planExtension:
		v, err := p.ext.decode(r)
		if err != nil {
			return err
		}
		dst.Set(v)
		return nil
	case planExtensionArray:
		n, err := r.readCount(p.elem.String() + " array")
		if err != nil {
			return err
		}
		out := reflect.MakeSlice(p.typ, 0, min(n, chunkSize/serialization.LengthSize))
		for range n {
			v, err := p.ext.decode(r)
			if err != nil {
				return err
			}
			out = reflect.Append(out, v)
		}
		dst.Set(out)
		return nil
	default:
		return NewUnsupportedTypeError(p.typ, Decode)
	}
}

func (w *Writer) writeScalar(v reflect.Value, k serialization.Kind) error {
	switch k {
	case serialization.Int8:
		return w.WriteInt8(int8(v.Int()))
	case serialization.Int16:
		return w.WriteInt16(int16(v.Int()))
	case serialization.Int32:
		return w.WriteInt32(int32(v.Int()))
	case serialization.Int64:
		return w.WriteInt64(v.Int())
	case serialization.Uint8:
		return w.WriteUint8(uint8(v.Uint()))
	case serialization.Uint16:
		return w.WriteUint16(uint16(v.Uint()))
	case serialization.Uint32:
		return w.WriteUint32(uint32(v.Uint()))
	case serialization.Uint64:
		return w.WriteUint64(v.Uint())
	case serialization.Float32:
		return w.WriteFloat32(float32(v.Float()))
	case serialization.Float64:
		return w.WriteFloat64(v.Float())
	case serialization.Decimal:
		return w.WriteDecimal(v.Interface().(decimal.Decimal))
	case serialization.Bool:
		return w.WriteBool(v.Bool())
	case serialization.Char:
		return w.WriteChar(Char(v.Uint()))
	case serialization.String:
		return w.WriteString(v.String())
	default:
		return NewUnsupportedTypeError(v.Type(), Encode)
	}
}

func (r *Reader) readScalar(dst reflect.Value, k serialization.Kind) error {
	switch k {
	case serialization.Int8:
		x, err := r.ReadInt8()
		dst.SetInt(int64(x))
		return err
	case serialization.Int16:
		x, err := r.ReadInt16()
		dst.SetInt(int64(x))
		return err
	case serialization.Int32:
		x, err := r.ReadInt32()
		dst.SetInt(int64(x))
		return err
	case serialization.Int64:
		x, err := r.ReadInt64()
		dst.SetInt(x)
		return err
	case serialization.Uint8:
		x, err := r.ReadUint8()
		dst.SetUint(uint64(x))
		return err
	case serialization.Uint16:
		x, err := r.ReadUint16()
		dst.SetUint(uint64(x))
		return err
	case serialization.Uint32:
		x, err := r.ReadUint32()
		dst.SetUint(uint64(x))
		return err
	case serialization.Uint64:
		x, err := r.ReadUint64()
		dst.SetUint(x)
		return err
	case serialization.Float32:
		x, err := r.ReadFloat32()
		dst.SetFloat(float64(x))
		return err
	case serialization.Float64:
		x, err := r.ReadFloat64()
		dst.SetFloat(x)
		return err
	case serialization.Decimal:
		x, err := r.ReadDecimal()
		if err != nil {
			return err
		}
		dst.Set(reflect.ValueOf(x))
		return nil
	case serialization.Bool:
		x, err := r.ReadBool()
		dst.SetBool(x)
		return err
	case serialization.Char:
		x, err := r.ReadChar()
		dst.SetUint(uint64(x))
		return err
	case serialization.String:
		x, err := r.ReadString()
		dst.SetString(x)
		return err
	default:
		return NewUnsupportedTypeError(dst.Type(), Decode)
	}
}

func (w *Writer) writeScalarArray(v reflect.Value, k serialization.Kind) error {
	if k == serialization.Uint8 || k == serialization.Char {
		return w.WriteBytes(v.Bytes())
	}
	if v.CanInterface() {
		switch s := v.Interface().(type) {
		case []int8:
			return w.WriteInt8Array(s)
		case []int16:
			return w.WriteInt16Array(s)
		case []int32:
			return w.WriteInt32Array(s)
		case []int64:
			return w.WriteInt64Array(s)
		case []int:
			return w.WriteIntArray(s)
		case []uint16:
			return w.WriteUint16Array(s)
		case []uint32:
			return w.WriteUint32Array(s)
		case []uint64:
			return w.WriteUint64Array(s)
		case []uint:
			return w.WriteUintArray(s)
		case []float32:
			return w.WriteFloat32Array(s)
		case []float64:
			return w.WriteFloat64Array(s)
		case []bool:
			return w.WriteBoolArray(s)
		case []decimal.Decimal:
			return w.WriteDecimalArray(s)
		case []string:
			return w.WriteStringArray(s)
		}
	}

	// named element types, e.g. []Color
	if err := w.writeCount(v.Len()); err != nil {
		return err
	}
	for i := range v.Len() {
		if err := w.writeScalar(v.Index(i), k); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reader) readScalarArray(dst reflect.Value, p *plan) error {
	if p.scalar == serialization.Uint8 || p.scalar == serialization.Char {
		raw, err := r.ReadBytes()
		if err != nil {
			return err
		}
		out := reflect.MakeSlice(p.typ, len(raw), len(raw))
		copy(out.Bytes(), raw)
		dst.Set(out)
		return nil
	}

	if dst.CanAddr() {
		var err error
		switch s := dst.Addr().Interface().(type) {
		case *[]int8:
			*s, err = r.ReadInt8Array()
		case *[]int16:
			*s, err = r.ReadInt16Array()
		case *[]int32:
			*s, err = r.ReadInt32Array()
		case *[]int64:
			*s, err = r.ReadInt64Array()
		case *[]int:
			*s, err = r.ReadIntArray()
		case *[]uint16:
			*s, err = r.ReadUint16Array()
		case *[]uint32:
			*s, err = r.ReadUint32Array()
		case *[]uint64:
			*s, err = r.ReadUint64Array()
		case *[]uint:
			*s, err = r.ReadUintArray()
		case *[]float32:
			*s, err = r.ReadFloat32Array()
		case *[]float64:
			*s, err = r.ReadFloat64Array()
		case *[]bool:
			*s, err = r.ReadBoolArray()
		case *[]decimal.Decimal:
			*s, err = r.ReadDecimalArray()
		case *[]string:
			*s, err = r.ReadStringArray()
		default:
			return r.readScalarArraySlow(dst, p)
		}
		return err
	}
	return r.readScalarArraySlow(dst, p)
}

func (r *Reader) readScalarArraySlow(dst reflect.Value, p *plan) error {
	n, err := r.readCount(p.elem.String() + " array")
	if err != nil {
		return err
	}
	out := reflect.MakeSlice(p.typ, 0, min(n, chunkSize/serialization.LengthSize))
	for range n {
		elem := reflect.New(p.elem).Elem()
		if err := r.readScalar(elem, p.scalar); err != nil {
			return err
		}
		out = reflect.Append(out, elem)
	}
	dst.Set(out)
	return nil
}
