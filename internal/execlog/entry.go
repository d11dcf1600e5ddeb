// Package execlog implements the Execution Logger (C3): per-execution,
// category-tagged log buffers that fan out to pluggable sinks (C2).
package execlog

import "time"

// Level is a log entry's severity.
type Level string

const (
	LevelTrace Level = "TRACE"
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
	LevelFatal Level = "FATAL"
)

// Category is the closed set of log-entry categories.
type Category string

const (
	CategoryExecutionStart Category = "EXECUTION_START"
	CategoryExecutionEnd   Category = "EXECUTION_END"
	CategoryNodeStart      Category = "NODE_START"
	CategoryNodeEnd        Category = "NODE_END"
	CategoryNodeSkip       Category = "NODE_SKIP"
	CategoryNodeInput      Category = "NODE_INPUT"
	CategoryNodeOutput     Category = "NODE_OUTPUT"
	CategoryDataFlow       Category = "DATA_FLOW"
	CategoryVariable       Category = "VARIABLE"
	CategoryExpressionEval Category = "EXPRESSION_EVAL"
	CategoryError          Category = "ERROR"
	CategoryRetry          Category = "RETRY"
	CategoryRateLimit      Category = "RATE_LIMIT"
	CategoryPerformance    Category = "PERFORMANCE"
	CategoryCustom         Category = "CUSTOM"
)

// LogEntry is immutable once constructed.
type LogEntry struct {
	ID          string
	ExecutionID string
	Timestamp   time.Time
	Level       Level
	Category    Category
	Message     string
	Context     map[string]interface{}
}

// Sink is the single-method consumer of log entries (C2). Sink errors
// MUST be swallowed by callers — they never affect execution.
type Sink interface {
	Handle(entry LogEntry) error
}

// Summary is the aggregate view Summary(execId) returns.
type Summary struct {
	ExecutionID string
	Counts      map[Level]int
	NodeCount   int
	DurationMs  int64
	Success     bool
}
