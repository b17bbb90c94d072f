package logger

import (
	"bytes"
	"io"
	"time"
)

type destinationSysLog struct {
	syslog     io.WriteCloser
	structured bool
	buf        bytes.Buffer
}

func newDestinationSyslog(structured bool) (destination, error) {
	syslog, err := newSysLog("remuxer")
	if err != nil {
		return nil, err
	}

	return &destinationSysLog{
		syslog:     syslog,
		structured: structured,
	}, nil
}

func (d *destinationSysLog) log(t time.Time, level Level, format string, args ...interface{}) {
	d.buf.Reset()
	if d.structured {
		writeStructured(&d.buf, t, level, format, args)
	} else {
		writePlain(&d.buf, t, level, false, format, args)
	}
	d.syslog.Write(d.buf.Bytes()) //nolint:errcheck
}

func (d *destinationSysLog) close() {
	d.syslog.Close()
}
