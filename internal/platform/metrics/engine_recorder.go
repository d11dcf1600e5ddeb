package metrics

import (
	"time"

	"github.com/flowforge/enginecore/internal/engine"
)

// EngineRecorder adapts Metrics to engine.MetricsRecorder, keeping the
// engine package itself free of a direct Prometheus dependency.
type EngineRecorder struct {
	m *Metrics
}

func NewEngineRecorder(m *Metrics) *EngineRecorder {
	return &EngineRecorder{m: m}
}

func (r *EngineRecorder) ExecutionStarted(workflowID string) {
	r.m.ExecutionsTotal.WithLabelValues(workflowID, "").Inc()
	r.m.ExecutionsInProgress.WithLabelValues(workflowID).Inc()
}

func (r *EngineRecorder) ExecutionFinished(workflowID string, status engine.Status, duration time.Duration) {
	r.m.ExecutionsInProgress.WithLabelValues(workflowID).Dec()
	r.m.ExecutionDuration.WithLabelValues(workflowID).Observe(duration.Seconds())
	switch status {
	case engine.StatusSuccess:
		r.m.ExecutionsCompleted.WithLabelValues(workflowID).Inc()
	case engine.StatusFailed:
		r.m.ExecutionsFailed.WithLabelValues(workflowID, "").Inc()
	}
}

func (r *EngineRecorder) NodeExecuted(nodeType string, status engine.Status, duration time.Duration) {
	r.m.NodeExecutionsTotal.WithLabelValues(nodeType, string(status)).Inc()
	r.m.NodeExecutionDuration.WithLabelValues(nodeType).Observe(duration.Seconds())
}

// CronFireRecorder adapts Metrics to cron.FireRecorder.
type CronFireRecorder struct{ m *Metrics }

func NewCronFireRecorder(m *Metrics) *CronFireRecorder { return &CronFireRecorder{m: m} }

func (r *CronFireRecorder) Fired(workflowID string) {
	r.m.CronFires.WithLabelValues(workflowID).Inc()
}

// FileEventFireRecorder adapts Metrics to fileevent.FireRecorder.
type FileEventFireRecorder struct{ m *Metrics }

func NewFileEventFireRecorder(m *Metrics) *FileEventFireRecorder { return &FileEventFireRecorder{m: m} }

func (r *FileEventFireRecorder) Fired(workflowID, eventType string) {
	r.m.FileEventFires.WithLabelValues(workflowID, eventType).Inc()
}
