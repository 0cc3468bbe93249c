// Package testutil provides shared test helpers: a capturing logger and
// raw-page fixture builders.
package testutil

import (
	"strings"
	"sync"

	"github.com/aman-ankur/labextract/internal/infrastructure/monitoring/logging"
)

// MockLogger implements logging.Logger and records every entry so tests can
// assert on logging behavior. Safe for concurrent use.
type MockLogger struct {
	mu       sync.Mutex
	name     string
	entries  *[]LogEntry
	sharedMu *sync.Mutex
}

// LogEntry is one captured log call.
type LogEntry struct {
	Level   string
	Logger  string
	Message string
	Fields  []logging.Field
}

// NewMockLogger creates an empty MockLogger.
func NewMockLogger() *MockLogger {
	entries := make([]LogEntry, 0)
	var mu sync.Mutex
	return &MockLogger{entries: &entries, sharedMu: &mu}
}

func (m *MockLogger) log(level, msg string, fields []logging.Field) {
	m.sharedMu.Lock()
	defer m.sharedMu.Unlock()
	*m.entries = append(*m.entries, LogEntry{
		Level:   level,
		Logger:  m.name,
		Message: msg,
		Fields:  fields,
	})
}

func (m *MockLogger) Debug(msg string, fields ...logging.Field) { m.log("debug", msg, fields) }
func (m *MockLogger) Info(msg string, fields ...logging.Field)  { m.log("info", msg, fields) }
func (m *MockLogger) Warn(msg string, fields ...logging.Field)  { m.log("warn", msg, fields) }
func (m *MockLogger) Error(msg string, fields ...logging.Field) { m.log("error", msg, fields) }
func (m *MockLogger) Fatal(msg string, fields ...logging.Field) { m.log("fatal", msg, fields) }

// With returns the same recorder; per-entry fields are what tests assert on.
func (m *MockLogger) With(...logging.Field) logging.Logger { return m }

// Named returns a child recorder sharing the parent's entry slice, with name
// appended dot-separated the way the zap logger does it.
func (m *MockLogger) Named(name string) logging.Logger {
	child := MockLogger{name: m.name, entries: m.entries, sharedMu: m.sharedMu}
	if child.name == "" {
		child.name = name
	} else {
		child.name = child.name + "." + name
	}
	return &child
}

func (m *MockLogger) Sync() error { return nil }

// Entries returns a copy of everything logged so far, across all children.
func (m *MockLogger) Entries() []LogEntry {
	m.sharedMu.Lock()
	defer m.sharedMu.Unlock()
	out := make([]LogEntry, len(*m.entries))
	copy(out, *m.entries)
	return out
}

// Clear discards captured entries.
func (m *MockLogger) Clear() {
	m.sharedMu.Lock()
	defer m.sharedMu.Unlock()
	*m.entries = (*m.entries)[:0]
}

// HasEntry reports whether an entry with the level and exact message exists.
func (m *MockLogger) HasEntry(level, msg string) bool {
	for _, e := range m.Entries() {
		if e.Level == level && e.Message == msg {
			return true
		}
	}
	return false
}

// HasEntryContaining reports whether an entry at the level contains substr.
func (m *MockLogger) HasEntryContaining(level, substr string) bool {
	for _, e := range m.Entries() {
		if e.Level == level && strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

// CountLevel returns the number of entries at the level.
func (m *MockLogger) CountLevel(level string) int {
	n := 0
	for _, e := range m.Entries() {
		if e.Level == level {
			n++
		}
	}
	return n
}
