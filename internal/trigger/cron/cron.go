// Package cron implements the Cron Trigger (C8): a single-shot
// re-arming scheduler built on robfig/cron/v3's expression parser,
// not its persistent scheduler loop — each workflow gets exactly one
// pending timer at a time, recomputed after every fire.
package cron

import (
	"sync"
	"time"

	robfigcron "github.com/robfig/cron/v3"

	"github.com/flowforge/enginecore/internal/clockid"
	"github.com/flowforge/enginecore/internal/engine"
	"github.com/flowforge/enginecore/internal/platform/logger"
)

// parseSchedule accepts the standard 5-field cron syntax (minute hour
// dom month dow), matching the expressions workflows are authored
// with; it has no seconds field.
var parseSchedule = robfigcron.ParseStandard

type pending struct {
	schedule robfigcron.Schedule
	timer    *time.Timer
}

// FireRecorder observes each cron fire, for operational metrics.
type FireRecorder interface {
	Fired(workflowID string)
}

type noopRecorder struct{}

func (noopRecorder) Fired(string) {}

// Trigger registers and unregisters cron schedules for workflows,
// keeping at most one pending timer per workflow id.
type Trigger struct {
	clock   clockid.Clock
	run     func(workflowID string, input map[string]interface{})
	metrics FireRecorder
	log     logger.Logger

	mu       sync.Mutex
	pendings map[string]*pending
}

// New creates a Trigger that submits fires via run.
func New(clock clockid.Clock, run func(workflowID string, input map[string]interface{})) *Trigger {
	if clock == nil {
		clock = clockid.SystemClock{}
	}
	return &Trigger{clock: clock, run: run, metrics: noopRecorder{}, log: logger.NewNoop(), pendings: make(map[string]*pending)}
}

// WithMetrics attaches a FireRecorder, returning the Trigger for chaining.
func (t *Trigger) WithMetrics(m FireRecorder) *Trigger {
	if m != nil {
		t.metrics = m
	}
	return t
}

// WithLogger attaches the ambient logger, returning the Trigger for
// chaining. Used for registration failures that the caller can't
// otherwise observe, since Register itself doesn't return an error.
func (t *Trigger) WithLogger(l logger.Logger) *Trigger {
	if l != nil {
		t.log = l
	}
	return t
}

// LoadActive registers every workflow workflows returns, per the
// startup lifecycle: enumerate active && SCHEDULE && cronExpression != "".
func (t *Trigger) LoadActive(workflows []*engine.Workflow) {
	for _, w := range workflows {
		t.Register(w)
	}
}

// Register parses w's cron expression and arms a single-shot timer
// for its next fire. A parse error is logged and the workflow is
// abandoned, not propagated.
func (t *Trigger) Register(w *engine.Workflow) {
	schedule, err := parseSchedule(w.CronExpression)
	if err != nil {
		t.log.Error("cron: invalid cron expression", "workflowId", w.ID, "cronExpression", w.CronExpression, "error", err)
		return
	}

	t.Unregister(w.ID)

	t.mu.Lock()
	defer t.mu.Unlock()
	p := &pending{schedule: schedule}
	p.timer = t.armTimer(w.ID, w.CronExpression, schedule)
	t.pendings[w.ID] = p
}

// armTimer schedules the next fire relative to clock.Now() and
// returns the timer. Caller holds t.mu.
func (t *Trigger) armTimer(workflowID, cronExpr string, schedule robfigcron.Schedule) *time.Timer {
	now := t.clock.Now()
	next := schedule.Next(now)
	delay := next.Sub(now)
	if delay < 0 {
		delay = 0
	}
	return time.AfterFunc(delay, func() {
		t.fire(workflowID, cronExpr, schedule)
	})
}

func (t *Trigger) fire(workflowID, cronExpr string, schedule robfigcron.Schedule) {
	input := map[string]interface{}{
		"triggeredAt":    t.clock.Now(),
		"triggerType":    "schedule",
		"cronExpression": cronExpr,
	}
	t.run(workflowID, input)
	t.metrics.Fired(workflowID)

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, stillRegistered := t.pendings[workflowID]; !stillRegistered {
		return
	}
	t.pendings[workflowID] = &pending{schedule: schedule, timer: t.armTimer(workflowID, cronExpr, schedule)}
}

// Unregister cancels workflowID's pending timer, if any. The handler
// for an already-fired timer still runs to completion, but it does
// not re-arm once the workflow is no longer registered.
func (t *Trigger) Unregister(workflowID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.pendings[workflowID]
	if !ok {
		return
	}
	p.timer.Stop()
	delete(t.pendings, workflowID)
}
