package logger

import (
	"bytes"
	"io"
	"os"
	"time"

	"golang.org/x/term"
)

type destinationStderr struct {
	w          io.Writer
	useColor   bool
	structured bool
	buf        bytes.Buffer
}

func newDestinationStderr(w io.Writer, structured bool) destination {
	useColor := false
	if f, ok := w.(*os.File); ok {
		useColor = term.IsTerminal(int(f.Fd()))
	}

	return &destinationStderr{
		w:          w,
		useColor:   useColor && !structured,
		structured: structured,
	}
}

func (d *destinationStderr) log(t time.Time, level Level, format string, args ...interface{}) {
	d.buf.Reset()
	if d.structured {
		writeStructured(&d.buf, t, level, format, args)
	} else {
		writePlain(&d.buf, t, level, d.useColor, format, args)
	}
	d.w.Write(d.buf.Bytes()) //nolint:errcheck
}

func (d *destinationStderr) close() {
}
