// Package clockid provides the engine's time source and id generation (C1).
package clockid

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Clock abstracts wall-clock access so the engine and triggers can be
// driven deterministically in tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock, backed by time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock is a test double that returns a settable instant.
type FixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFixedClock(now time.Time) *FixedClock {
	return &FixedClock{now: now}
}

func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the fixed clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set pins the fixed clock to a specific instant.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// NewExecutionID returns a unique id for an Execution.
func NewExecutionID() string { return uuid.NewString() }

// NewLogEntryID returns a unique id for a LogEntry.
func NewLogEntryID() string { return uuid.NewString() }
