package savex

import (
	"reflect"
	"sync"
)

// extCodec is a user-supplied codec for a type the dispatcher does not know.
type extCodec struct {
	typ    reflect.Type
	encode func(w *Writer, v reflect.Value) error
	decode func(r *Reader) (reflect.Value, error)
}

var (
	codecsMu sync.RWMutex
	codecs   = map[reflect.Type]*extCodec{}
)

// RegisterCodec installs encode and decode as the codec for T. Registered
// codecs take precedence over every built-in rule, so they can also replace
// the encoding of a scalar or composite type. T may then appear as a
// composite field, as the element of a slice, or be passed to WriteValue
// directly. Registering T again replaces the previous codec.
func RegisterCodec[T any](encode func(w *Writer, v T) error, decode func(r *Reader) (T, error)) {
	t := reflect.TypeFor[T]()
	c := &extCodec{
		typ: t,
		encode: func(w *Writer, v reflect.Value) error {
			return encode(w, v.Interface().(T))
		},
		decode: func(r *Reader) (reflect.Value, error) {
			v, err := decode(r)
			if err != nil {
				return reflect.Value{}, err
			}
			return reflect.ValueOf(&v).Elem(), nil
		},
	}

	codecsMu.Lock()
	codecs[t] = c
	codecsMu.Unlock()
	resetCaches()
}

// HasCodec reports whether a codec was registered for t.
func HasCodec(t reflect.Type) bool {
	return lookupCodec(t) != nil
}

func lookupCodec(t reflect.Type) *extCodec {
	codecsMu.RLock()
	defer codecsMu.RUnlock()
	return codecs[t]
}
