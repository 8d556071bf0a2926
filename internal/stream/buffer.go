// Package stream provides the byte sinks and sources the codec runs on: an
// in-memory seekable buffer and wrappers that hide seeking.
package stream

import (
	"errors"
	"fmt"
	"io"
)

var ErrNegativePosition = errors.New("stream: negative position")

// Buffer is an in-memory io.ReadWriteSeeker. Seeking past the end and then
// writing fills the gap with zero bytes, the way a sparse file reads back.
type Buffer struct {
	data []byte
	pos  int64
}

// NewBuffer returns a Buffer positioned at the start of data. The buffer
// takes ownership of data.
func NewBuffer(data []byte) *Buffer {
	return &Buffer{data: data}
}

// Bytes returns the buffer content. It aliases the buffer storage.
func (b *Buffer) Bytes() []byte { return b.data }

// Len returns the number of bytes stored.
func (b *Buffer) Len() int { return len(b.data) }

func (b *Buffer) Write(p []byte) (int, error) {
	end := b.pos + int64(len(p))
	if end > int64(len(b.data)) {
		if end > int64(cap(b.data)) {
			grown := make([]byte, end, growCap(cap(b.data), end))
			copy(grown, b.data)
			b.data = grown
		} else {
			// reslicing may expose stale bytes beyond the old length
			old := len(b.data)
			b.data = b.data[:end]
			clear(b.data[old:end])
		}
	}
	copy(b.data[b.pos:end], p)
	b.pos = end
	return len(p), nil
}

func (b *Buffer) Read(p []byte) (int, error) {
	if b.pos >= int64(len(b.data)) {
		return 0, io.EOF
	}
	n := copy(p, b.data[b.pos:])
	b.pos += int64(n)
	return n, nil
}

func (b *Buffer) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = b.pos + offset
	case io.SeekEnd:
		abs = int64(len(b.data)) + offset
	default:
		return 0, fmt.Errorf("stream: invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, ErrNegativePosition
	}
	b.pos = abs
	return abs, nil
}

// Truncate pads or cuts the content to the current position. Callers that
// skip past the end without writing afterwards use it to materialize the gap.
func (b *Buffer) Truncate() {
	if b.pos > int64(len(b.data)) {
		// an empty write at a position past the end zero-fills the gap
		_, _ = b.Write(nil)
		return
	}
	b.data = b.data[:b.pos]
}

func growCap(current int, need int64) int64 {
	next := int64(current) * 2
	if next < 64 {
		next = 64
	}
	if next < need {
		next = need
	}
	return next
}
