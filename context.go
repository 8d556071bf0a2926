package savex

import (
	"bytes"
	"errors"
	"io"

	"github.com/hengadev/savex/internal/serialization"
)

// chunkSize bounds how much is allocated ahead of the bytes actually read,
// so a forged count prefix cannot force a huge allocation.
const chunkSize = 64 << 10

// Option configures a Writer or Reader.
type Option func(*options)

type options struct {
	leaveOpen bool
	cipher    Cipher
}

// WithLeaveOpen keeps the underlying sink open when a context created by a
// top-level operation (Save, Load, ...) is released.
func WithLeaveOpen() Option {
	return func(o *options) { o.leaveOpen = true }
}

// WithCipher sets the cipher used by Encrypted composites.
func WithCipher(c Cipher) Option {
	return func(o *options) { o.cipher = c }
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// detectSeeker returns s as an io.Seeker only if it actually supports
// querying the current position. Pipes and terminals implement Seek but fail.
func detectSeeker(s any) io.Seeker {
	seeker, ok := s.(io.Seeker)
	if !ok {
		return nil
	}
	if _, err := seeker.Seek(0, io.SeekCurrent); err != nil {
		return nil
	}
	return seeker
}

// cursor holds what Writer and Reader share: the optional seeker, the
// ownership of the sink and the options.
type cursor struct {
	seeker io.Seeker
	closer io.Closer
	opts   options
	closed bool
}

// Seekable reports whether positions and offsets are honored.
func (c *cursor) Seekable() bool { return c.seeker != nil }

// Position returns the current offset in the sink. The second result is
// false when the sink does not support random access.
func (c *cursor) Position() (int64, bool) {
	if c.seeker == nil {
		return 0, false
	}
	pos, err := c.seeker.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, false
	}
	return pos, true
}

// Skip moves the cursor n bytes forward. It is a no-op when n <= 0 or when
// the sink is not seekable; seek errors are returned unchanged.
func (c *cursor) Skip(n int64) error {
	if n <= 0 || c.seeker == nil {
		return nil
	}
	_, err := c.seeker.Seek(n, io.SeekCurrent)
	return err
}

// Cipher returns the cipher configured with WithCipher, or nil.
func (c *cursor) Cipher() Cipher { return c.opts.cipher }

// Close releases the sink if this context owns it. Contexts created with
// NewWriter or NewReader never own their sink.
func (c *cursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

func (c *cursor) adopt(sink any) {
	if c.opts.leaveOpen {
		return
	}
	if closer, ok := sink.(io.Closer); ok {
		c.closer = closer
	}
}

// Writer is the serialization context for one write call tree. It is not
// safe for concurrent use.
type Writer struct {
	cursor
	w       io.Writer
	scratch [serialization.DecimalSize]byte
}

// NewWriter wraps w. The returned Writer never closes w.
func NewWriter(w io.Writer, opts ...Option) *Writer {
	return &Writer{
		cursor: cursor{seeker: detectSeeker(w), opts: buildOptions(opts)},
		w:      w,
	}
}

// newOwnedWriter is used by top-level operations: the context closes w on
// release unless WithLeaveOpen was given.
func newOwnedWriter(w io.Writer, opts ...Option) *Writer {
	wr := NewWriter(w, opts...)
	wr.adopt(w)
	return wr
}

// WriteRaw writes p as-is, without a length prefix.
func (w *Writer) WriteRaw(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	n, err := w.w.Write(p)
	if err != nil {
		return err
	}
	if n < len(p) {
		return io.ErrShortWrite
	}
	return nil
}

func (w *Writer) writeCount(n int) error {
	b := w.scratch[:serialization.LengthSize]
	if err := serialization.PutLength(b, n); err != nil {
		return NewValueOutOfRangeError("count prefix", err.Error())
	}
	return w.WriteRaw(b)
}

// Reader is the deserialization context for one read call tree. It is not
// safe for concurrent use.
type Reader struct {
	cursor
	r       io.Reader
	scratch [serialization.DecimalSize]byte
}

// NewReader wraps r. The returned Reader never closes r.
func NewReader(r io.Reader, opts ...Option) *Reader {
	return &Reader{
		cursor: cursor{seeker: detectSeeker(r), opts: buildOptions(opts)},
		r:      r,
	}
}

func newOwnedReader(r io.Reader, opts ...Option) *Reader {
	rd := NewReader(r, opts...)
	rd.adopt(r)
	return rd
}

func (r *Reader) readFull(p []byte, what string) error {
	if _, err := io.ReadFull(r.r, p); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return NewMalformedStreamError(what, "source exhausted")
		}
		return err
	}
	return nil
}

// ReadRaw reads exactly n bytes. It fails with ErrMalformedStream if the
// source holds fewer.
func (r *Reader) ReadRaw(n int) ([]byte, error) {
	return r.readRaw(n, "raw bytes")
}

func (r *Reader) readRaw(n int, what string) ([]byte, error) {
	if n < 0 {
		return nil, NewNegativeCountError(what, int32(n))
	}
	if n <= chunkSize {
		buf := make([]byte, n)
		if err := r.readFull(buf, what); err != nil {
			return nil, err
		}
		return buf, nil
	}

	var buf bytes.Buffer
	buf.Grow(chunkSize)
	copied, err := io.CopyN(&buf, r.r, int64(n))
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, NewMalformedStreamError(what, "source exhausted")
		}
		return nil, err
	}
	if copied != int64(n) {
		return nil, NewMalformedStreamError(what, "source exhausted")
	}
	return buf.Bytes(), nil
}

func (r *Reader) readCount(what string) (int, error) {
	b := r.scratch[:serialization.LengthSize]
	if err := r.readFull(b, what+" count"); err != nil {
		return 0, err
	}
	n := serialization.GetLength(b)
	if n < 0 {
		return 0, NewNegativeCountError(what, n)
	}
	return int(n), nil
}
