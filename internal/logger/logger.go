// Package logger contains a logger implementation.
package logger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gookit/color"
)

// Level is a log level.
type Level int

// Log levels.
const (
	Debug Level = iota + 1
	Info
	Warn
	Error
)

// Destination is a log destination.
type Destination int

const (
	// DestinationStderr writes logs to the standard error.
	DestinationStderr Destination = iota

	// DestinationFile writes logs to a file.
	DestinationFile

	// DestinationSyslog writes logs to the system logger.
	DestinationSyslog
)

type destination interface {
	log(t time.Time, level Level, format string, args ...interface{})
	close()
}

// Logger is a log handler.
type Logger struct {
	Level        Level
	Destinations []Destination
	Structured   bool
	File         string

	// Stderr is the writer of DestinationStderr. It defaults to os.Stderr.
	Stderr io.Writer

	timeNow      func() time.Time
	destinations []destination
	mutex        sync.Mutex
}

// Initialize initializes Logger.
func (l *Logger) Initialize() error {
	if l.timeNow == nil {
		l.timeNow = time.Now
	}
	if l.Stderr == nil {
		l.Stderr = os.Stderr
	}

	for _, destType := range l.Destinations {
		switch destType {
		case DestinationStderr:
			l.destinations = append(l.destinations, newDestinationStderr(l.Stderr, l.Structured))

		case DestinationFile:
			dest, err := newDestinationFile(l.File, l.Structured)
			if err != nil {
				l.Close()
				return err
			}
			l.destinations = append(l.destinations, dest)

		case DestinationSyslog:
			dest, err := newDestinationSyslog(l.Structured)
			if err != nil {
				l.Close()
				return err
			}
			l.destinations = append(l.destinations, dest)
		}
	}

	return nil
}

// Close closes a log handler.
func (l *Logger) Close() {
	for _, dest := range l.destinations {
		dest.close()
	}
	l.destinations = nil
}

// https://golang.org/src/log/log.go#L78
func itoa(i int, wid int) []byte {
	// Assemble decimal in reverse order.
	var b [20]byte
	bp := len(b) - 1
	for i >= 10 || wid > 1 {
		wid--
		q := i / 10
		b[bp] = byte('0' + i - q*10)
		bp--
		i = q
	}
	// i < 10
	b[bp] = byte('0' + i)
	return b[bp:]
}

func writeTime(buf *bytes.Buffer, t time.Time, useColor bool) {
	var intbuf bytes.Buffer

	// date
	year, month, day := t.Date()
	intbuf.Write(itoa(year, 4))
	intbuf.WriteByte('/')
	intbuf.Write(itoa(int(month), 2))
	intbuf.WriteByte('/')
	intbuf.Write(itoa(day, 2))
	intbuf.WriteByte(' ')

	// time
	hour, minute, sec := t.Clock()
	intbuf.Write(itoa(hour, 2))
	intbuf.WriteByte(':')
	intbuf.Write(itoa(minute, 2))
	intbuf.WriteByte(':')
	intbuf.Write(itoa(sec, 2))
	intbuf.WriteByte(' ')

	if useColor {
		buf.WriteString(color.RenderString(color.Gray.Code(), intbuf.String()))
	} else {
		buf.WriteString(intbuf.String())
	}
}

func levelString(level Level) string {
	switch level {
	case Debug:
		return "DEB"
	case Info:
		return "INF"
	case Warn:
		return "WAR"
	}
	return "ERR"
}

func writeLevel(buf *bytes.Buffer, level Level, useColor bool) {
	str := levelString(level)

	if useColor {
		switch level {
		case Debug:
			str = color.RenderString(color.Debug.Code(), str)
		case Info:
			str = color.RenderString(color.Green.Code(), str)
		case Warn:
			str = color.RenderString(color.Warn.Code(), str)
		case Error:
			str = color.RenderString(color.Error.Code(), str)
		}
	}

	buf.WriteString(str)
	buf.WriteByte(' ')
}

func writeContent(buf *bytes.Buffer, format string, args []interface{}) {
	fmt.Fprintf(buf, format, args...)
	buf.WriteByte('\n')
}

func writePlain(buf *bytes.Buffer, t time.Time, level Level, useColor bool, format string, args []interface{}) {
	writeTime(buf, t, useColor)
	writeLevel(buf, level, useColor)
	writeContent(buf, format, args)
}

func writeStructured(buf *bytes.Buffer, t time.Time, level Level, format string, args []interface{}) {
	buf.WriteString(`{"timestamp":"`)
	buf.WriteString(t.Format(time.RFC3339Nano))
	buf.WriteString(`","level":"`)
	buf.WriteString(levelString(level))
	buf.WriteString(`","message":`)
	msg, _ := json.Marshal(fmt.Sprintf(format, args...))
	buf.Write(msg)
	buf.WriteString("}\n")
}

// Log writes a log entry.
func (l *Logger) Log(level Level, format string, args ...interface{}) {
	if level < l.Level {
		return
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()

	t := l.timeNow()

	for _, dest := range l.destinations {
		dest.log(t, level, format, args...)
	}
}

// String implements fmt.Stringer.
func (d Destination) String() string {
	switch d {
	case DestinationStderr:
		return "stderr"
	case DestinationFile:
		return "file"
	case DestinationSyslog:
		return "syslog"
	}
	return strconv.Itoa(int(d))
}
