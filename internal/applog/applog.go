// Package applog keeps a bounded in-memory history of structured
// application log records and mirrors them to the event bus and the
// process log.
package applog

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/madhouse/rconpanel/internal/bus"
	"github.com/madhouse/rconpanel/internal/domain"
)

const defaultHistory = 2000

// Logger records structured entries. Safe for concurrent use.
type Logger struct {
	bus *bus.Bus

	mu      sync.Mutex
	entries []domain.LogEntry
	max     int
}

// New creates a logger publishing to b. b may be nil in tests.
func New(b *bus.Bus) *Logger {
	return &Logger{bus: b, max: defaultHistory}
}

// Log records one entry and broadcasts it.
func (l *Logger) Log(level domain.LogLevel, target, format string, args ...interface{}) {
	entry := domain.LogEntry{
		ID:      uuid.NewString(),
		Time:    time.Now().UTC(),
		Level:   level,
		Target:  target,
		Message: fmt.Sprintf(format, args...),
	}

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	if len(l.entries) > l.max {
		l.entries = l.entries[len(l.entries)-l.max:]
	}
	l.mu.Unlock()

	log.Printf("[%s] %s: %s", entry.Level, entry.Target, entry.Message)
	if l.bus != nil {
		l.bus.Publish(domain.NewEvent(domain.EventTypeAppLog, "", entry))
	}
}

// Debugf records a DEBUG entry.
func (l *Logger) Debugf(target, format string, args ...interface{}) {
	l.Log(domain.LevelDebug, target, format, args...)
}

// Infof records an INFO entry.
func (l *Logger) Infof(target, format string, args ...interface{}) {
	l.Log(domain.LevelInfo, target, format, args...)
}

// Warnf records a WARNING entry.
func (l *Logger) Warnf(target, format string, args ...interface{}) {
	l.Log(domain.LevelWarning, target, format, args...)
}

// Errorf records an ERROR entry.
func (l *Logger) Errorf(target, format string, args ...interface{}) {
	l.Log(domain.LevelError, target, format, args...)
}

// Since returns entries at or after t, oldest first. A zero t returns
// the whole history.
func (l *Logger) Since(t time.Time) []domain.LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]domain.LogEntry, 0, len(l.entries))
	for _, e := range l.entries {
		if !e.Time.Before(t) {
			out = append(out, e)
		}
	}
	return out
}
