package savex

import (
	"reflect"
)

// Saveable records where a composite was last written to or read from.
// Embed it in a composite type to get the bookkeeping:
//
//	type Fruit struct {
//		savex.Saveable
//		Name string `savex:""`
//	}
//
// Position and length are only recorded when the sink supports random
// access; otherwise the previous values are left untouched.
type Saveable struct {
	position   int64
	length     int64
	positioned bool
}

// Position returns the sink offset of the first byte of the last transfer.
// The second result is false if no transfer has recorded a position yet.
func (s *Saveable) Position() (int64, bool) {
	return s.position, s.positioned
}

// Length returns the number of bytes spanned by the last transfer,
// including offset gaps.
func (s *Saveable) Length() int64 {
	return s.length
}

func (s *Saveable) recordExtent(start, end int64) {
	s.position = start
	s.length = end - start
	s.positioned = true
}

type extentRecorder interface {
	recordExtent(start, end int64)
}

// FieldCodec lets a composite replace the reflective field loop with its
// own. Position and length bookkeeping still wrap the call.
type FieldCodec interface {
	EncodeFields(w *Writer) error
	DecodeFields(r *Reader) error
}

// WriteComposite writes v, a struct or a pointer to one, as a composite.
// Extension codecs use it to delegate to the reflective field loop.
func (w *Writer) WriteComposite(v any) error {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return NewNilPointerError(nil, Encode)
	}
	p, err := planFor(rv.Type(), Encode)
	if err != nil {
		return err
	}
	if p.kind != planComposite {
		return NewUnsupportedTypeError(rv.Type(), Encode)
	}
	return w.writeComposite(rv, p.composite)
}

// ReadComposite reads a composite into v, which must be a non-nil pointer
// to a struct.
func (r *Reader) ReadComposite(v any) error {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.Pointer {
		return NewUnsupportedTypeError(reflect.TypeOf(v), Decode)
	}
	if rv.IsNil() {
		return NewNilPointerError(rv.Type(), Decode)
	}
	p, err := planFor(rv.Type(), Decode)
	if err != nil {
		return err
	}
	if p.kind != planComposite {
		return NewUnsupportedTypeError(rv.Type(), Decode)
	}
	return r.readComposite(rv.Elem(), p.composite)
}

func (w *Writer) writeComposite(v reflect.Value, info *compositeInfo) error {
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return NewNilPointerError(v.Type(), Encode)
		}
		v = v.Elem()
	}
	if err := info.check(); err != nil {
		return err
	}
	if !v.CanAddr() {
		tmp := reflect.New(v.Type()).Elem()
		tmp.Set(v)
		v = tmp
	}

	start, positioned := w.Position()
	if err := w.encodeFields(v, info); err != nil {
		return err
	}
	if positioned {
		recordExtent(v, start, w.Position)
	}
	return nil
}

func (w *Writer) encodeFields(v reflect.Value, info *compositeInfo) error {
	if info.custom {
		return v.Addr().Interface().(FieldCodec).EncodeFields(w)
	}
	fields, err := info.resolve()
	if err != nil {
		return err
	}
	for _, f := range fields {
		if !f.Participates {
			continue
		}
		if err := w.Skip(f.Offset); err != nil {
			return fieldError(info.typ, f.Name, err)
		}
		fv, err := v.FieldByIndexErr(f.Index)
		if err != nil {
			return fieldError(info.typ, f.Name, NewNilPointerError(f.Type, Encode))
		}
		if err := w.writeWithPlan(fv, f.plan); err != nil {
			return fieldError(info.typ, f.Name, err)
		}
	}
	return nil
}

// readComposite fills dst, an addressable struct or pointer to struct.
// A nil pointer is allocated first.
func (r *Reader) readComposite(dst reflect.Value, info *compositeInfo) error {
	v := dst
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			v.Set(reflect.New(info.typ))
		}
		v = v.Elem()
	}

	start, positioned := r.Position()
	if err := r.decodeFields(v, info); err != nil {
		return err
	}
	if positioned {
		recordExtent(v, start, r.Position)
	}
	return nil
}

func (r *Reader) decodeFields(v reflect.Value, info *compositeInfo) error {
	if info.custom {
		return v.Addr().Interface().(FieldCodec).DecodeFields(r)
	}
	fields, err := info.resolve()
	if err != nil {
		return err
	}
	for _, f := range fields {
		if !f.Participates {
			continue
		}
		if err := r.Skip(f.Offset); err != nil {
			return fieldError(info.typ, f.Name, err)
		}
		if err := r.readWithPlan(fieldByIndexAlloc(v, f.Index), f.plan); err != nil {
			return fieldError(info.typ, f.Name, err)
		}
	}
	return nil
}

// fieldByIndexAlloc is FieldByIndex that allocates nil embedded pointers on
// the way down.
func fieldByIndexAlloc(v reflect.Value, index []int) reflect.Value {
	for i, x := range index {
		if i > 0 && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(x)
	}
	return v
}

func recordExtent(v reflect.Value, start int64, position func() (int64, bool)) {
	rec, ok := v.Addr().Interface().(extentRecorder)
	if !ok {
		return
	}
	if end, ok := position(); ok {
		rec.recordExtent(start, end)
	}
}
