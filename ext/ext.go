// Package ext registers savex codecs for common types that have no native
// encoding: UUIDs, times, durations, maps and key/value pairs.
//
//	func init() {
//		ext.RegisterStandard()
//		ext.RegisterMap[string, int32]()
//	}
package ext

import (
	"time"

	"github.com/google/uuid"

	"github.com/hengadev/savex"
)

// RegisterStandard registers the UUID, time and duration codecs.
func RegisterStandard() {
	RegisterUUID()
	RegisterTime()
	RegisterDuration()
}

// RegisterUUID encodes uuid.UUID as its 16 raw bytes.
func RegisterUUID() {
	savex.RegisterCodec(
		func(w *savex.Writer, id uuid.UUID) error {
			return w.WriteRaw(id[:])
		},
		func(r *savex.Reader) (uuid.UUID, error) {
			raw, err := r.ReadRaw(16)
			if err != nil {
				return uuid.Nil, err
			}
			return uuid.FromBytes(raw)
		},
	)
}

// RegisterTime encodes time.Time as int64 Unix seconds followed by int32
// nanoseconds. The location is not kept; decoded times are in UTC.
func RegisterTime() {
	savex.RegisterCodec(
		func(w *savex.Writer, t time.Time) error {
			if err := w.WriteInt64(t.Unix()); err != nil {
				return err
			}
			return w.WriteInt32(int32(t.Nanosecond()))
		},
		func(r *savex.Reader) (time.Time, error) {
			sec, err := r.ReadInt64()
			if err != nil {
				return time.Time{}, err
			}
			nsec, err := r.ReadInt32()
			if err != nil {
				return time.Time{}, err
			}
			if nsec < 0 || nsec >= int32(time.Second) {
				return time.Time{}, savex.NewMalformedStreamError("time", "nanoseconds out of range")
			}
			return time.Unix(sec, int64(nsec)).UTC(), nil
		},
	)
}

// RegisterDuration encodes time.Duration as int64 nanoseconds.
func RegisterDuration() {
	savex.RegisterCodec(
		func(w *savex.Writer, d time.Duration) error {
			return w.WriteInt64(int64(d))
		},
		func(r *savex.Reader) (time.Duration, error) {
			n, err := r.ReadInt64()
			return time.Duration(n), err
		},
	)
}

// Pair is a key/value composite. It needs no registration.
type Pair[K, V any] struct {
	Key   K `savex:""`
	Value V `savex:""`
}
