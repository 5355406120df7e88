// Package monitoring holds the logging streams shared by every navigation
// package.
//
// Each package owns a Streams value with its own prefix and logs through
// three streams:
//   - ops: actionable warnings, errors, lifecycle events
//   - diag: day-to-day diagnostics and tuning context
//   - trace: high-frequency per-frame / per-line telemetry
//
// SetLogWriters routes all registered streams at once.
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

var (
	registryMu sync.Mutex
	registry   []*Streams
	current    LogWriters
)

// Streams is one package's set of ops/diag/trace loggers.
type Streams struct {
	prefix string

	mu    sync.RWMutex
	ops   *log.Logger
	diag  *log.Logger
	trace *log.Logger
}

// NewStreams registers a stream set for prefix (for example "[sensor] ").
// The new streams start with whatever writers were last configured.
func NewStreams(prefix string) *Streams {
	s := &Streams{prefix: prefix}
	registryMu.Lock()
	defer registryMu.Unlock()
	s.set(current)
	registry = append(registry, s)
	return s
}

// SetLogWriters configures every registered stream set.
// Pass nil for any writer to disable that stream.
func SetLogWriters(w LogWriters) {
	registryMu.Lock()
	defer registryMu.Unlock()
	current = w
	for _, s := range registry {
		s.set(w)
	}
}

func (s *Streams) set(w LogWriters) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = newLogger(s.prefix, w.Ops)
	s.diag = newLogger(s.prefix, w.Diag)
	s.trace = newLogger(s.prefix, w.Trace)
}

// newLogger creates a *log.Logger for a given writer, or returns nil if w is nil.
func newLogger(prefix string, w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, prefix, log.LstdFlags|log.Lmicroseconds)
}

// Opsf logs to the ops stream.
func (s *Streams) Opsf(format string, args ...interface{}) {
	s.mu.RLock()
	l := s.ops
	s.mu.RUnlock()
	if l != nil {
		l.Printf(format, args...)
	}
}

// Diagf logs to the diag stream.
func (s *Streams) Diagf(format string, args ...interface{}) {
	s.mu.RLock()
	l := s.diag
	s.mu.RUnlock()
	if l != nil {
		l.Printf(format, args...)
	}
}

// Tracef logs to the trace stream.
func (s *Streams) Tracef(format string, args ...interface{}) {
	s.mu.RLock()
	l := s.trace
	s.mu.RUnlock()
	if l != nil {
		l.Printf(format, args...)
	}
}
