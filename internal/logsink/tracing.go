package logsink

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flowforge/enginecore/internal/execlog"
)

// TracingSink bridges NODE_START/NODE_END log entries into OpenTelemetry
// spans, one per (executionId, nodeId) pair, so an execution's node
// timeline is visible in a trace viewer alongside the structured log.
type TracingSink struct {
	tracer trace.Tracer

	mu    sync.Mutex
	spans map[string]spanState
}

type spanState struct {
	span trace.Span
}

// NewTracingSink creates a sink that starts/ends spans on tracer.
func NewTracingSink(tracer trace.Tracer) *TracingSink {
	return &TracingSink{tracer: tracer, spans: make(map[string]spanState)}
}

func spanKey(entry execlog.LogEntry) string {
	nodeID, _ := entry.Context["nodeId"].(string)
	return entry.ExecutionID + "/" + nodeID
}

func (s *TracingSink) Handle(entry execlog.LogEntry) error {
	switch entry.Category {
	case execlog.CategoryNodeStart:
		key := spanKey(entry)
		nodeName, _ := entry.Context["nodeName"].(string)
		_, span := s.tracer.Start(context.Background(), nodeName)
		s.mu.Lock()
		s.spans[key] = spanState{span: span}
		s.mu.Unlock()
	case execlog.CategoryNodeEnd:
		key := spanKey(entry)
		s.mu.Lock()
		st, ok := s.spans[key]
		delete(s.spans, key)
		s.mu.Unlock()
		if !ok {
			return nil
		}
		success, _ := entry.Context["success"].(bool)
		st.span.SetAttributes(attribute.Bool("success", success))
		if !success {
			st.span.SetStatus(codes.Error, entry.Message)
		}
		st.span.End()
	}
	return nil
}
