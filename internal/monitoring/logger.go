// Package monitoring holds the diagnostic logging used across the
// calibration packages.
//
// There are three streams: ops (actionable warnings and lifecycle
// events), diag (tuning context such as search sizes and solver
// progress) and trace (per-candidate and per-iteration detail). A nil
// writer disables a stream.
package monitoring

import (
	"io"
	"log"
	"sync"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// LogWriters holds the io.Writers for each logging stream.
type LogWriters struct {
	Ops   io.Writer
	Diag  io.Writer
	Trace io.Writer
}

const streamPrefix = "[calib] "

var (
	mu          sync.RWMutex
	opsLogger   *log.Logger
	diagLogger  *log.Logger
	traceLogger *log.Logger
)

// SetLogWriters configures all three logging streams at once.
// Pass nil for any writer to disable that stream.
func SetLogWriters(w LogWriters) {
	mu.Lock()
	defer mu.Unlock()
	opsLogger = newLogger(w.Ops)
	diagLogger = newLogger(w.Diag)
	traceLogger = newLogger(w.Trace)
}

func newLogger(w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, streamPrefix, log.LstdFlags|log.Lmicroseconds)
}

// Opsf logs to the ops stream.
func Opsf(format string, args ...interface{}) {
	printTo(func() *log.Logger { return opsLogger }, format, args...)
}

// Diagf logs to the diag stream.
func Diagf(format string, args ...interface{}) {
	printTo(func() *log.Logger { return diagLogger }, format, args...)
}

// Tracef logs to the trace stream.
func Tracef(format string, args ...interface{}) {
	printTo(func() *log.Logger { return traceLogger }, format, args...)
}

func printTo(pick func() *log.Logger, format string, args ...interface{}) {
	mu.RLock()
	l := pick()
	mu.RUnlock()
	if l != nil {
		l.Printf(format, args...)
	}
}
