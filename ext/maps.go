package ext

import (
	"cmp"
	"maps"
	"slices"

	"github.com/hengadev/savex"
)

// RegisterMap registers a codec for map[K]V: an entry count followed by
// key/value pairs in ascending key order, so equal maps encode to equal
// bytes. K and V may be any type savex can encode, including other
// registered types.
func RegisterMap[K cmp.Ordered, V any]() {
	savex.RegisterCodec(encodeMap[K, V], decodeMap[K, V])
}

func encodeMap[K cmp.Ordered, V any](w *savex.Writer, m map[K]V) error {
	if err := savex.WriteAs(w, int32(len(m))); err != nil {
		return err
	}
	for _, k := range slices.Sorted(maps.Keys(m)) {
		if err := savex.WriteAs(w, k); err != nil {
			return err
		}
		if err := savex.WriteAs(w, m[k]); err != nil {
			return err
		}
	}
	return nil
}

func decodeMap[K cmp.Ordered, V any](r *savex.Reader) (map[K]V, error) {
	n, err := r.ReadInt32()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, savex.NewNegativeCountError("map", n)
	}
	m := make(map[K]V, min(int(n), 1024))
	for range n {
		k, err := savex.ReadAs[K](r)
		if err != nil {
			return nil, err
		}
		v, err := savex.ReadAs[V](r)
		if err != nil {
			return nil, err
		}
		m[k] = v
	}
	return m, nil
}
