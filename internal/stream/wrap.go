package stream

import (
	"fmt"
	"io"
	"os"
)

// WriteOnly hides every capability of w except Write, so the codec treats it
// as a forward-only sink.
func WriteOnly(w io.Writer) io.Writer {
	return writeOnly{w}
}

// ReadOnly hides every capability of r except Read.
func ReadOnly(r io.Reader) io.Reader {
	return readOnly{r}
}

type writeOnly struct{ w io.Writer }

func (o writeOnly) Write(p []byte) (int, error) { return o.w.Write(p) }

type readOnly struct{ r io.Reader }

func (o readOnly) Read(p []byte) (int, error) { return o.r.Read(p) }

// Create opens path for writing, truncating any previous content.
func Create(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	return f, nil
}

// Open opens path for reading.
func Open(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return f, nil
}

// PadFile extends f with zero bytes up to its current offset. A seek past
// the end only becomes part of the file once something is written there.
func PadFile(f *os.File) error {
	pos, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() >= pos {
		return nil
	}
	return f.Truncate(pos)
}
