package main

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/hengadev/savex/internal/serialization"
)

func inspectCommand(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	limit := fs.Int("n", 256, "Number of bytes to dump, 0 for all")
	array := fs.Bool("array", false, "Read the leading count prefix of an array dump")

	fs.Parse(args)

	if fs.NArg() != 1 {
		return errors.New("expected one dump file, or - for stdin")
	}

	data, err := readInput(fs.Arg(0))
	if err != nil {
		return err
	}
	return inspect(out, fs.Arg(0), data, *limit, *array)
}

// inspect prints a summary and hex dump of data. Dumps carry no type
// information, so only the array count prefix can be interpreted.
func inspect(out io.Writer, name string, data []byte, limit int, array bool) error {
	fmt.Fprintf(out, "File: %s\n", name)
	fmt.Fprintf(out, "Size: %d bytes\n", len(data))

	if array {
		if len(data) < serialization.LengthSize {
			return fmt.Errorf("%d bytes is too short for an array count", len(data))
		}
		count := serialization.GetLength(data)
		if count < 0 {
			return fmt.Errorf("negative array count %d", count)
		}
		fmt.Fprintf(out, "Array count: %d\n", count)
		if count > 0 {
			fmt.Fprintf(out, "Bytes per element: %.1f\n", float64(len(data)-serialization.LengthSize)/float64(count))
		}
	}

	shown := data
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}
	fmt.Fprintln(out)
	fmt.Fprint(out, hex.Dump(shown))
	if len(shown) < len(data) {
		fmt.Fprintf(out, "... %d more bytes\n", len(data)-len(shown))
	}
	return nil
}
