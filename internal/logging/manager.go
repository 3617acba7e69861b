package logging

import (
	"container/ring"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap/zapcore"
)

const (
	// MaxBufferSize is the maximum number of log entries to keep in memory
	MaxBufferSize = 10000

	defaultRecentLimit = 100
)

// LogEntry represents a single log entry
type LogEntry struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Source    string                 `json:"source"`
	Message   string                 `json:"message"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Manager keeps the most recent log entries in a ring buffer so operators can
// read them back over the API without a log pipeline.
type Manager struct {
	mu     sync.RWMutex
	buffer *ring.Ring
	seq    uint64
}

// NewManager creates a manager holding up to size entries.
func NewManager(size int) *Manager {
	if size <= 0 || size > MaxBufferSize {
		size = MaxBufferSize
	}
	return &Manager{buffer: ring.New(size)}
}

func (m *Manager) add(entry LogEntry) {
	m.mu.Lock()
	m.seq++
	entry.ID = fmt.Sprintf("log-%d", m.seq)
	m.buffer.Value = entry
	m.buffer = m.buffer.Next()
	m.mu.Unlock()
}

// GetRecent returns up to limit entries, newest first. Empty filters match
// everything; source matches by prefix so "lifecycle" covers "lifecycle.snooze".
func (m *Manager) GetRecent(limit int, levelFilter, sourceFilter string, since time.Time) []LogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > MaxBufferSize {
		limit = defaultRecentLimit
	}

	logs := make([]LogEntry, 0, limit)
	for r := m.buffer.Prev(); len(logs) < limit; r = r.Prev() {
		entry, ok := r.Value.(LogEntry)
		if ok && matches(entry, levelFilter, sourceFilter, since) {
			logs = append(logs, entry)
		}
		if r == m.buffer {
			break
		}
	}
	return logs
}

func matches(entry LogEntry, level, source string, since time.Time) bool {
	if level != "" && entry.Level != level {
		return false
	}
	if source != "" && !strings.HasPrefix(entry.Source, source) {
		return false
	}
	if !since.IsZero() && entry.Timestamp.Before(since) {
		return false
	}
	return true
}

// Core returns a zapcore.Core that records entries at or above level into
// the manager. It is meant to be teed with the primary output core.
func (m *Manager) Core(level zapcore.LevelEnabler) zapcore.Core {
	return &bufferCore{LevelEnabler: level, manager: m}
}

type bufferCore struct {
	zapcore.LevelEnabler
	manager *Manager
	fields  []zapcore.Field
}

func (c *bufferCore) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.fields = append(append([]zapcore.Field{}, c.fields...), fields...)
	return &clone
}

func (c *bufferCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *bufferCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}
	var meta map[string]interface{}
	if len(enc.Fields) > 0 {
		meta = enc.Fields
	}
	c.manager.add(LogEntry{
		Timestamp: ent.Time,
		Level:     ent.Level.String(),
		Source:    ent.LoggerName,
		Message:   ent.Message,
		Metadata:  meta,
	})
	return nil
}

func (c *bufferCore) Sync() error { return nil }
