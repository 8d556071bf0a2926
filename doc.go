// Package savex reads and writes Go values in a compact little-endian binary
// format, driven by struct tags or explicit registration.
//
// The format has no self-description: a reader must know the type it
// expects. Scalars are fixed width, strings and arrays carry a 4-byte signed
// length prefix, and composites are the concatenation of their participating
// fields.
//
// # Key Features
//
//   - Struct tags or explicit field tables, no code generation
//   - Fixed-width scalars, decimals, strings and one-dimensional arrays
//   - Nested composites and arrays of composites
//   - Byte offsets before fields on seekable sinks
//   - Position and length bookkeeping for every composite
//   - Codecs for user types (maps, UUIDs, times live in package ext)
//   - AES-256-GCM sealed sub-records with Encrypted
//
// # Quick Start
//
//	type Fruit struct {
//		savex.Saveable
//		Name  string `savex:""`
//		Score int32  `savex:"offset=4"`
//	}
//
//	data, err := savex.Dump(&Fruit{Name: "Apple", Score: 7})
//	fruit, err := savex.Undump[Fruit](data)
//
// Files and arbitrary streams work the same way:
//
//	err := savex.SaveFile("fruits.bin", fruits)
//	fruits, err := savex.LoadArrayFile[Fruit]("fruits.bin")
//
// # Struct Tags
//
// Only fields carrying the savex tag take part, in declaration order:
//   - savex:"" - the field is serialized
//   - savex:"offset=N" - N bytes are skipped before the field
//   - savex:"-" or no tag - the field is ignored
//
// Tagging an unexported field or using an unknown option is reported as
// ErrInvalidTag the first time the type is used. Register replaces tags with
// an explicit, ordered field list:
//
//	savex.MustRegister[Fruit](savex.Field("Name"), savex.Field("Score").Offset(4))
//
// # Wire Format
//
//	int8/uint8/bool/Char   1 byte
//	int16/uint16           2 bytes
//	int32/uint32/float32   4 bytes
//	int64/uint64/float64   8 bytes (int and uint travel as 64 bits)
//	decimal.Decimal        16 bytes: 96-bit magnitude, scale, sign
//	string                 int32 byte length, UTF-8 bytes
//	[]T                    int32 element count, elements
//	composite              participating fields back to back
//
// Slices of slices and Go fixed-size arrays are rejected with
// ErrUnsupportedShape and ErrUnsupportedType before anything is written.
//
// # Seekable Sinks
//
// When the sink implements io.Seeker and reports its position, field offsets
// are honored and every composite embedding Saveable records where it was
// written or read. On pipes, sockets and other forward-only sinks offsets
// are skipped silently and positions stay untouched, so a stream written to
// a seekable sink with non-zero offsets cannot be read back from a
// forward-only one.
//
// # Ownership
//
// Save, Load and LoadArray close their sink when it implements io.Closer
// unless WithLeaveOpen is given. Writers and Readers created with NewWriter
// and NewReader never close anything.
//
// # Error Handling
//
// Errors wrap package sentinels and can be tested with errors.Is or the
// classification helpers:
//
//	if savex.IsStreamError(err) {
//		// truncated input, negative count, bad decimal flags
//	}
//	if savex.IsTypeError(err) {
//		// unsupported type or shape, invalid tag
//	}
//
// Validate reports every problem of a type at once as an errsx.Map.
//
// # Concurrency
//
// Type descriptions are cached process-wide and safe for concurrent use. A
// Writer or Reader belongs to one goroutine.
package savex
