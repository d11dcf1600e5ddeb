package logsink

import (
	"sync"

	"github.com/flowforge/enginecore/internal/execlog"
)

// HTTPTraceSink is a capped in-memory ring buffer of entries, exposed
// for a UI tool to poll (cmd/enginehost serves Snapshot at /logs/recent).
type HTTPTraceSink struct {
	mu  sync.Mutex
	cap int
	buf []execlog.LogEntry
}

// NewHTTPTraceSink creates a sink capped at capacity entries, oldest
// evicted first.
func NewHTTPTraceSink(capacity int) *HTTPTraceSink {
	if capacity <= 0 {
		capacity = 1000
	}
	return &HTTPTraceSink{cap: capacity}
}

func (s *HTTPTraceSink) Handle(entry execlog.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = append(s.buf, entry)
	if len(s.buf) > s.cap {
		s.buf = s.buf[len(s.buf)-s.cap:]
	}
	return nil
}

// Snapshot returns a copy of the currently buffered entries, oldest first.
func (s *HTTPTraceSink) Snapshot() []execlog.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]execlog.LogEntry, len(s.buf))
	copy(out, s.buf)
	return out
}
