package execlog

import (
	"encoding/json"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/flowforge/enginecore/internal/clockid"
)

// hostModulePrefix identifies "user code" for stack-frame capture:
// the first frame whose function lives in this module, skipping the
// execlog package's own call stack and any stdlib/vendor frames.
const hostModulePrefix = "github.com/flowforge/enginecore/"

type buffer struct {
	mu        sync.Mutex
	workflowID string
	workflowName string
	startedAt time.Time
	entries   []LogEntry
	nodeEnds  int
	errored   bool
}

// Logger is the Execution Logger (C3). One instance typically serves
// an entire engine; buffers are keyed by execution id.
type Logger struct {
	clock clockid.Clock

	mu      sync.RWMutex
	buffers map[string]*buffer
	sinks   []Sink
}

// New creates a Logger backed by clock for timestamps.
func New(clock clockid.Clock) *Logger {
	return &Logger{clock: clock, buffers: make(map[string]*buffer)}
}

// AddSink registers a sink to receive every future entry.
func (l *Logger) AddSink(s Sink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sinks = append(l.sinks, s)
}

// RemoveSink unregisters a previously added sink (identity comparison).
func (l *Logger) RemoveSink(s Sink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, existing := range l.sinks {
		if existing == s {
			l.sinks = append(l.sinks[:i], l.sinks[i+1:]...)
			return
		}
	}
}

func (l *Logger) fanOut(entry LogEntry) {
	l.mu.RLock()
	sinks := make([]Sink, len(l.sinks))
	copy(sinks, l.sinks)
	l.mu.RUnlock()

	for _, s := range sinks {
		func() {
			defer func() { recover() }() // sink failures never affect execution
			_ = s.Handle(entry)
		}()
	}
}

func (l *Logger) bufferFor(execID string) *buffer {
	l.mu.RLock()
	b, ok := l.buffers[execID]
	l.mu.RUnlock()
	if ok {
		return b
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok = l.buffers[execID]
	if !ok {
		b = &buffer{}
		l.buffers[execID] = b
	}
	return b
}

func (l *Logger) append(execID string, level Level, category Category, message string, ctx map[string]interface{}) {
	entry := LogEntry{
		ID:          clockid.NewLogEntryID(),
		ExecutionID: execID,
		Timestamp:   l.clock.Now(),
		Level:       level,
		Category:    category,
		Message:     message,
		Context:     ctx,
	}

	b := l.bufferFor(execID)
	b.mu.Lock()
	b.entries = append(b.entries, entry)
	if category == CategoryNodeEnd {
		b.nodeEnds++
	}
	if level == LevelError || level == LevelFatal {
		b.errored = true
	}
	b.mu.Unlock()

	l.fanOut(entry)
}

// StartExecution initializes a buffer and emits a start entry.
func (l *Logger) StartExecution(execID, workflowID, workflowName string) {
	b := l.bufferFor(execID)
	b.mu.Lock()
	b.workflowID = workflowID
	b.workflowName = workflowName
	b.startedAt = l.clock.Now()
	b.mu.Unlock()

	l.append(execID, LevelInfo, CategoryExecutionStart, "execution started", map[string]interface{}{
		"workflowId":   workflowID,
		"workflowName": workflowName,
	})
}

// EndExecution closes out the buffer with a terminal entry.
func (l *Logger) EndExecution(execID string, success bool, result map[string]interface{}) {
	level := LevelInfo
	msg := "execution completed"
	if !success {
		level = LevelError
		msg = "execution failed"
	}
	l.append(execID, level, CategoryExecutionEnd, msg, map[string]interface{}{
		"success": success,
		"result":  preview(result, 100),
	})
}

// NodeStart logs node entry.
func (l *Logger) NodeStart(execID, nodeID, nodeName string) {
	l.append(execID, LevelInfo, CategoryNodeStart, fmt.Sprintf("node %s started", nodeName), map[string]interface{}{
		"nodeId": nodeID, "nodeName": nodeName,
	})
}

// NodeEnd logs node completion.
func (l *Logger) NodeEnd(execID, nodeID, nodeName string, success bool, durationMs int64) {
	level := LevelInfo
	if !success {
		level = LevelError
	}
	l.append(execID, level, CategoryNodeEnd, fmt.Sprintf("node %s ended", nodeName), map[string]interface{}{
		"nodeId": nodeID, "nodeName": nodeName, "success": success, "durationMs": durationMs,
	})
}

// NodeSkip logs a disabled-node pass-through.
func (l *Logger) NodeSkip(execID, nodeID, nodeName string) {
	l.append(execID, LevelInfo, CategoryNodeSkip, fmt.Sprintf("node %s skipped (disabled)", nodeName), map[string]interface{}{
		"nodeId": nodeID, "nodeName": nodeName,
	})
}

// NodeInput carries both a truncated Preview and a deep-copied full map.
func (l *Logger) NodeInput(execID, nodeID, nodeName string, data map[string]interface{}) {
	l.append(execID, LevelDebug, CategoryNodeInput, fmt.Sprintf("node %s input", nodeName), map[string]interface{}{
		"nodeId": nodeID, "nodeName": nodeName,
		"inputPreview":  preview(data, 100),
		"inputDataFull": deepCopy(data),
	})
}

// NodeOutput carries both a truncated Preview and a deep-copied full map.
func (l *Logger) NodeOutput(execID, nodeID, nodeName string, data map[string]interface{}) {
	l.append(execID, LevelDebug, CategoryNodeOutput, fmt.Sprintf("node %s output", nodeName), map[string]interface{}{
		"nodeId": nodeID, "nodeName": nodeName,
		"outputPreview":  preview(data, 100),
		"outputDataFull": deepCopy(data),
	})
}

// ExpressionEval logs a template/expression evaluation.
func (l *Logger) ExpressionEval(execID, expression string, result interface{}, success bool) {
	l.append(execID, LevelTrace, CategoryExpressionEval, "expression evaluated", map[string]interface{}{
		"expression":    truncate(expression, 200),
		"resultPreview": truncate(fmt.Sprintf("%v", result), 100),
		"success":       success,
	})
}

// ErrorWithContext additionally captures an error's root cause and a
// truncated preview of the input at the time of failure.
func (l *Logger) ErrorWithContext(execID, nodeID, nodeName string, inputAtError map[string]interface{}, err error) {
	rootCause := err
	for {
		unwrapper, ok := rootCause.(interface{ Unwrap() error })
		if !ok {
			break
		}
		next := unwrapper.Unwrap()
		if next == nil {
			break
		}
		rootCause = next
	}

	ctx := map[string]interface{}{
		"nodeId":       nodeID,
		"nodeName":     nodeName,
		"errorType":    fmt.Sprintf("%T", err),
		"errorMessage": err.Error(),
		"inputPreview": preview(inputAtError, 100),
	}
	if rootCause != err {
		ctx["rootCauseType"] = fmt.Sprintf("%T", rootCause)
		ctx["rootCauseMessage"] = rootCause.Error()
	}

	if frame, ok := firstUserFrame(); ok {
		ctx["sourceClass"] = frame.pkg
		ctx["sourceMethod"] = frame.method
		ctx["sourceLine"] = frame.line
		ctx["sourceLocation"] = fmt.Sprintf("%s:%d", frame.file, frame.line)
		ctx["stackTrace"] = frame.stackTrace
	}

	l.append(execID, LevelError, CategoryError, fmt.Sprintf("error at node %s: %v", nodeName, err), ctx)
}

type sourceFrame struct {
	pkg        string
	method     string
	file       string
	line       int
	stackTrace string
}

// firstUserFrame walks the call stack above ErrorWithContext and
// returns the first frame inside this module, plus a short
// call-stack snippet starting there. Returns ok=false if the caller
// is itself outside the module (e.g. called directly from a test in
// another module, or the stack is otherwise exhausted).
func firstUserFrame() (sourceFrame, bool) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(2, pcs) // skip runtime.Callers + firstUserFrame
	if n == 0 {
		return sourceFrame{}, false
	}
	frames := runtime.CallersFrames(pcs[:n])

	var lines []string
	for {
		f, more := frames.Next()
		isLoggerInternals := strings.HasSuffix(f.Function, ".ErrorWithContext") || strings.HasSuffix(f.Function, ".firstUserFrame")
		if strings.Contains(f.Function, hostModulePrefix) && !isLoggerInternals {
			pkg, method := splitFunction(f.Function)
			lines = append(lines, fmt.Sprintf("%s (%s:%d)", f.Function, f.File, f.Line))
			for more && len(lines) < 8 {
				next, hasMore := frames.Next()
				lines = append(lines, fmt.Sprintf("%s (%s:%d)", next.Function, next.File, next.Line))
				more = hasMore
			}
			return sourceFrame{
				pkg:        pkg,
				method:     method,
				file:       f.File,
				line:       f.Line,
				stackTrace: strings.Join(lines, "\n"),
			}, true
		}
		if !more {
			return sourceFrame{}, false
		}
	}
}

// splitFunction splits a fully qualified function name like
// "github.com/flowforge/enginecore/internal/engine.(*Engine).executeNode"
// into package path and method/function name.
func splitFunction(fn string) (pkg, method string) {
	idx := strings.LastIndex(fn, "/")
	rest := fn
	prefix := ""
	if idx >= 0 {
		prefix = fn[:idx+1]
		rest = fn[idx+1:]
	}
	dot := strings.Index(rest, ".")
	if dot < 0 {
		return prefix + rest, ""
	}
	return prefix + rest[:dot], rest[dot+1:]
}

// Summary returns counts, node count, duration, and success for execID.
func (l *Logger) Summary(execID string) Summary {
	b := l.bufferFor(execID)
	b.mu.Lock()
	defer b.mu.Unlock()

	counts := make(map[Level]int)
	var last time.Time
	for _, e := range b.entries {
		counts[e.Level]++
		if e.Timestamp.After(last) {
			last = e.Timestamp
		}
	}
	var duration int64
	if !b.startedAt.IsZero() && !last.IsZero() {
		duration = last.Sub(b.startedAt).Milliseconds()
	}
	return Summary{
		ExecutionID: execID,
		Counts:      counts,
		NodeCount:   b.nodeEnds,
		DurationMs:  duration,
		Success:     !b.errored,
	}
}

// Export serializes an execution's full entry list as JSON.
func (l *Logger) Export(execID string) ([]byte, error) {
	b := l.bufferFor(execID)
	b.mu.Lock()
	entries := make([]LogEntry, len(b.entries))
	copy(entries, b.entries)
	b.mu.Unlock()
	return json.Marshal(entries)
}

// Entries returns a snapshot of all entries recorded for execID.
func (l *Logger) Entries(execID string) []LogEntry {
	b := l.bufferFor(execID)
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]LogEntry, len(b.entries))
	copy(out, b.entries)
	return out
}

// Clear drops the buffer for execID.
func (l *Logger) Clear(execID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buffers, execID)
}

// ClearAll drops every buffer.
func (l *Logger) ClearAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buffers = make(map[string]*buffer)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func preview(data map[string]interface{}, max int) string {
	raw, err := json.Marshal(data)
	if err != nil {
		return truncate(fmt.Sprintf("%v", data), max)
	}
	return truncate(string(raw), max)
}

func deepCopy(data map[string]interface{}) map[string]interface{} {
	if data == nil {
		return nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		out := make(map[string]interface{}, len(data))
		for k, v := range data {
			out[k] = v
		}
		return out
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return data
	}
	return out
}
