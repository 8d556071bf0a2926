package savex

import (
	"bytes"
	"io"
	"reflect"

	"github.com/hengadev/savex/internal/stream"
)

// Save writes v to dst. v is typically a pointer to a composite or a slice
// of composites; any type WriteValue accepts works. dst is closed afterwards
// if it implements io.Closer, unless WithLeaveOpen is given.
func Save(dst io.Writer, v any, opts ...Option) (err error) {
	w := newOwnedWriter(dst, opts...)
	defer func() {
		if cerr := w.Close(); err == nil {
			err = cerr
		}
	}()
	return w.WriteValue(v)
}

// Load reads one T from src. src is closed afterwards if it implements
// io.Closer, unless WithLeaveOpen is given.
func Load[T any](src io.Reader, opts ...Option) (_ *T, err error) {
	r := newOwnedReader(src, opts...)
	defer func() {
		if cerr := r.Close(); err == nil {
			err = cerr
		}
	}()

	out := new(T)
	if err := r.readInto(reflect.ValueOf(out).Elem()); err != nil {
		return nil, err
	}
	return out, nil
}

// LoadArray reads a count-prefixed array of T from src.
func LoadArray[T any](src io.Reader, opts ...Option) (_ []T, err error) {
	r := newOwnedReader(src, opts...)
	defer func() {
		if cerr := r.Close(); err == nil {
			err = cerr
		}
	}()

	var out []T
	if err := r.readInto(reflect.ValueOf(&out).Elem()); err != nil {
		return nil, err
	}
	return out, nil
}

// Dump encodes v into a fresh byte slice. The buffer is seekable, so offsets
// and positions are honored.
func Dump(v any, opts ...Option) ([]byte, error) {
	buf := stream.NewBuffer(nil)
	if err := NewWriter(buf, opts...).WriteValue(v); err != nil {
		return nil, err
	}
	// an offset on the last field leaves the cursor past the written bytes
	buf.Truncate()
	return buf.Bytes(), nil
}

// Undump decodes one T from data.
func Undump[T any](data []byte, opts ...Option) (*T, error) {
	return Load[T](bytes.NewReader(data), opts...)
}

// UndumpArray decodes a count-prefixed array of T from data.
func UndumpArray[T any](data []byte, opts ...Option) ([]T, error) {
	return LoadArray[T](bytes.NewReader(data), opts...)
}

// SaveFile creates or truncates the file at path and saves v into it.
func SaveFile(path string, v any, opts ...Option) (err error) {
	f, err := stream.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if err := NewWriter(f, opts...).WriteValue(v); err != nil {
		return err
	}
	return stream.PadFile(f)
}

// LoadFile reads one T from the file at path.
func LoadFile[T any](path string, opts ...Option) (*T, error) {
	f, err := stream.Open(path)
	if err != nil {
		return nil, err
	}
	return Load[T](f, append(opts[:len(opts):len(opts)], withOwnership())...)
}

// LoadArrayFile reads a count-prefixed array of T from the file at path.
func LoadArrayFile[T any](path string, opts ...Option) ([]T, error) {
	f, err := stream.Open(path)
	if err != nil {
		return nil, err
	}
	return LoadArray[T](f, append(opts[:len(opts):len(opts)], withOwnership())...)
}

// withOwnership overrides WithLeaveOpen for files opened by this package.
func withOwnership() Option {
	return func(o *options) { o.leaveOpen = false }
}
