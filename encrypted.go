package savex

import (
	"bytes"
	"fmt"
	"reflect"

	"github.com/hengadev/savex/internal/stream"
)

// Encrypted wraps a composite whose encoding is sealed with the context's
// cipher (see WithCipher) and stored as a byte array. Position and Length
// describe the sealed bytes in the outer sink.
type Encrypted[T any] struct {
	Saveable
	Value *T
}

// Seal wraps v.
func Seal[T any](v *T) *Encrypted[T] {
	return &Encrypted[T]{Value: v}
}

func (e *Encrypted[T]) EncodeFields(w *Writer) error {
	c := w.Cipher()
	if c == nil {
		return NewConfigurationError(fmt.Sprintf("no cipher configured for %T", e), nil)
	}
	if e.Value == nil {
		return NewNilPointerError(reflect.TypeOf(e.Value), Encode)
	}

	buf := stream.NewBuffer(nil)
	inner := NewWriter(buf, WithCipher(c))
	if err := inner.writeReflect(reflect.ValueOf(e.Value).Elem()); err != nil {
		return err
	}
	buf.Truncate()
	sealed, err := c.Seal(buf.Bytes())
	if err != nil {
		return NewEncryptionError(reflect.TypeOf(e.Value).Elem().String(), err)
	}
	return w.WriteBytes(sealed)
}

func (e *Encrypted[T]) DecodeFields(r *Reader) error {
	c := r.Cipher()
	if c == nil {
		return NewConfigurationError(fmt.Sprintf("no cipher configured for %T", e), nil)
	}

	sealed, err := r.ReadBytes()
	if err != nil {
		return err
	}
	plain, err := c.Open(sealed)
	if err != nil {
		return NewDecryptionError(reflect.TypeOf(e.Value).Elem().String(), err)
	}

	v := new(T)
	inner := NewReader(bytes.NewReader(plain), WithCipher(c))
	if err := inner.readInto(reflect.ValueOf(v).Elem()); err != nil {
		return err
	}
	e.Value = v
	return nil
}
