package execlog

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/enginecore/internal/clockid"
)

type recordingSink struct {
	entries []LogEntry
}

func (s *recordingSink) Handle(entry LogEntry) error {
	s.entries = append(s.entries, entry)
	return nil
}

func TestStartAndEndExecution_RecordsLifecycleEntries(t *testing.T) {
	l := New(clockid.NewFixedClock(time.Now()))
	l.StartExecution("exec-1", "wf-1", "My Workflow")
	l.EndExecution("exec-1", true, map[string]interface{}{"ok": true})

	entries := l.Entries("exec-1")
	require.Len(t, entries, 2)
	assert.Equal(t, CategoryExecutionStart, entries[0].Category)
	assert.Equal(t, CategoryExecutionEnd, entries[1].Category)
	assert.Equal(t, LevelInfo, entries[1].Level)

	summary := l.Summary("exec-1")
	assert.True(t, summary.Success)
}

func TestEndExecution_Failure_MarksSummaryUnsuccessful(t *testing.T) {
	l := New(clockid.NewFixedClock(time.Now()))
	l.StartExecution("exec-2", "wf-1", "My Workflow")
	l.EndExecution("exec-2", false, nil)

	summary := l.Summary("exec-2")
	assert.False(t, summary.Success)
}

func TestAddSink_ReceivesFanOutEntries(t *testing.T) {
	l := New(clockid.NewFixedClock(time.Now()))
	sink := &recordingSink{}
	l.AddSink(sink)

	l.StartExecution("exec-3", "wf-1", "wf")
	require.Len(t, sink.entries, 1)
	assert.Equal(t, "exec-3", sink.entries[0].ExecutionID)
}

func TestRemoveSink_StopsFutureDelivery(t *testing.T) {
	l := New(clockid.NewFixedClock(time.Now()))
	sink := &recordingSink{}
	l.AddSink(sink)
	l.RemoveSink(sink)

	l.StartExecution("exec-4", "wf-1", "wf")
	assert.Empty(t, sink.entries)
}

type wrappedErr struct{ cause error }

func (e *wrappedErr) Error() string { return fmt.Sprintf("wrapped: %v", e.cause) }
func (e *wrappedErr) Unwrap() error { return e.cause }

func triggerError(l *Logger) {
	err := &wrappedErr{cause: errors.New("boom")}
	l.ErrorWithContext("exec-5", "node-1", "My Node", map[string]interface{}{"x": 1}, err)
}

func TestErrorWithContext_CapturesRootCauseAndSourceFrame(t *testing.T) {
	l := New(clockid.NewFixedClock(time.Now()))
	triggerError(l)

	entries := l.Entries("exec-5")
	require.Len(t, entries, 1)

	entry := entries[0]
	assert.Equal(t, LevelError, entry.Level)
	assert.Equal(t, CategoryError, entry.Category)
	assert.Equal(t, "boom", entry.Context["rootCauseMessage"])
	assert.Contains(t, entry.Context["errorMessage"], "wrapped")

	assert.Equal(t, "github.com/flowforge/enginecore/internal/execlog", entry.Context["sourceClass"])
	assert.Equal(t, "triggerError", entry.Context["sourceMethod"])
	assert.NotZero(t, entry.Context["sourceLine"])
	assert.Contains(t, entry.Context["sourceLocation"], "logger_test.go")
	assert.Contains(t, entry.Context["stackTrace"], "triggerError")
}

func TestExport_ProducesJSON(t *testing.T) {
	l := New(clockid.NewFixedClock(time.Now()))
	l.StartExecution("exec-6", "wf-1", "wf")

	data, err := l.Export("exec-6")
	require.NoError(t, err)
	assert.Contains(t, string(data), "EXECUTION_START")
}

func TestClear_DropsBuffer(t *testing.T) {
	l := New(clockid.NewFixedClock(time.Now()))
	l.StartExecution("exec-7", "wf-1", "wf")
	l.Clear("exec-7")

	assert.Empty(t, l.Entries("exec-7"))
}
