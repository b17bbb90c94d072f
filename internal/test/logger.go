// Package test contains test utilities.
package test

import (
	"fmt"
	"sync"

	"github.com/bluenviron/remuxer/internal/logger"
)

type nilLogger struct{}

func (nilLogger) Log(_ logger.Level, _ string, _ ...interface{}) {
}

// NilLogger is a logger to /dev/null
var NilLogger logger.Writer = &nilLogger{}

// LogRecorder is a logger that stores entries in memory.
type LogRecorder struct {
	// MinLevel is the minimum level of stored entries.
	MinLevel logger.Level

	mutex   sync.Mutex
	entries []string
}

// Log implements logger.Writer.
func (r *LogRecorder) Log(level logger.Level, format string, args ...interface{}) {
	if level < r.MinLevel {
		return
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.entries = append(r.entries, fmt.Sprintf(format, args...))
}

// Entries returns stored entries.
func (r *LogRecorder) Entries() []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]string(nil), r.entries...)
}
