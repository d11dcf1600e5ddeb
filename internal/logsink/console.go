// Package logsink provides Log Sink (C2) implementations beyond the
// Logger's own buffer: a console formatter, a capped HTTP-trace ring
// buffer, and broker-backed sinks (Kafka, Redis) that exercise the
// domain stack's messaging/cache dependencies.
package logsink

import (
	"github.com/flowforge/enginecore/internal/execlog"
	"github.com/flowforge/enginecore/internal/platform/logger"
)

// levelRank orders severities for filtering.
var levelRank = map[execlog.Level]int{
	execlog.LevelTrace: 0,
	execlog.LevelDebug: 1,
	execlog.LevelInfo:  2,
	execlog.LevelWarn:  3,
	execlog.LevelError: 4,
	execlog.LevelFatal: 5,
}

// ConsoleSink formats entries through the ambient structured logger,
// filtered by the minLevel passed to NewConsoleSink. No configuration
// key sets that level; cmd/enginehost passes INFO.
type ConsoleSink struct {
	log      logger.Logger
	minLevel execlog.Level
}

// NewConsoleSink creates a ConsoleSink that drops entries below minLevel.
func NewConsoleSink(log logger.Logger, minLevel execlog.Level) *ConsoleSink {
	return &ConsoleSink{log: log, minLevel: minLevel}
}

func (s *ConsoleSink) Handle(entry execlog.LogEntry) error {
	if levelRank[entry.Level] < levelRank[s.minLevel] {
		return nil
	}
	l := s.log.WithFields(map[string]interface{}{
		"executionId": entry.ExecutionID,
		"category":    string(entry.Category),
	})
	switch entry.Level {
	case execlog.LevelError, execlog.LevelFatal:
		l.Error(entry.Message, "context", entry.Context)
	case execlog.LevelWarn:
		l.Warn(entry.Message, "context", entry.Context)
	case execlog.LevelDebug, execlog.LevelTrace:
		l.Debug(entry.Message, "context", entry.Context)
	default:
		l.Info(entry.Message, "context", entry.Context)
	}
	return nil
}
