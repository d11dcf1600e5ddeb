// Package store provides reference WorkflowStore/ExecutionStore
// implementations: an in-memory pair for tests and single-process
// deployments, and Postgres-backed ones for durable deployments.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/flowforge/enginecore/internal/engine"
)

// InMemoryWorkflowStore is a WorkflowStore backed by a guarded map. It
// supports Subscribe so the cron trigger can react to edits without a
// restart.
type InMemoryWorkflowStore struct {
	mu        sync.RWMutex
	workflows map[string]*engine.Workflow
	listeners []func(engine.WorkflowChanged)
}

func NewInMemoryWorkflowStore() *InMemoryWorkflowStore {
	return &InMemoryWorkflowStore{workflows: make(map[string]*engine.Workflow)}
}

// Put inserts or replaces a workflow and notifies subscribers.
func (s *InMemoryWorkflowStore) Put(w *engine.Workflow) {
	s.mu.Lock()
	s.workflows[w.ID] = w
	listeners := append([]func(engine.WorkflowChanged){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		if fn != nil {
			fn(engine.WorkflowChanged{WorkflowID: w.ID, Workflow: w})
		}
	}
}

// Remove deletes a workflow and notifies subscribers with Workflow=nil.
func (s *InMemoryWorkflowStore) Remove(id string) {
	s.mu.Lock()
	delete(s.workflows, id)
	listeners := append([]func(engine.WorkflowChanged){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		if fn != nil {
			fn(engine.WorkflowChanged{WorkflowID: id, Workflow: nil})
		}
	}
}

func (s *InMemoryWorkflowStore) FindById(id string) (*engine.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workflows[id]
	if !ok {
		return nil, nil
	}
	return w, nil
}

func (s *InMemoryWorkflowStore) FindAll() ([]*engine.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*engine.Workflow, 0, len(s.workflows))
	for _, w := range s.workflows {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryWorkflowStore) FindByTriggerType(t engine.TriggerType) ([]*engine.Workflow, error) {
	all, _ := s.FindAll()
	var out []*engine.Workflow
	for _, w := range all {
		if w.TriggerType == t {
			out = append(out, w)
		}
	}
	return out, nil
}

func (s *InMemoryWorkflowStore) FindActiveScheduled() ([]*engine.Workflow, error) {
	all, _ := s.FindAll()
	var out []*engine.Workflow
	for _, w := range all {
		if w.Active && w.TriggerType == engine.TriggerSchedule && w.CronExpression != "" {
			out = append(out, w)
		}
	}
	return out, nil
}

func (s *InMemoryWorkflowStore) Subscribe(fn func(engine.WorkflowChanged)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
	idx := len(s.listeners) - 1
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if idx < len(s.listeners) {
			s.listeners[idx] = nil
		}
	}
}

// InMemoryExecutionStore is an ExecutionStore backed by a guarded map,
// grounded on the teacher's in-memory execution repository pattern.
type InMemoryExecutionStore struct {
	mu   sync.RWMutex
	byID map[string]*engine.Execution
}

func NewInMemoryExecutionStore() *InMemoryExecutionStore {
	return &InMemoryExecutionStore{byID: make(map[string]*engine.Execution)}
}

func (s *InMemoryExecutionStore) Save(exec *engine.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *exec
	s.byID[exec.ID] = &cp
	return nil
}

func (s *InMemoryExecutionStore) FindById(id string) (*engine.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	return e, nil
}

func (s *InMemoryExecutionStore) FindByWorkflowIdDesc(workflowID string, limit int) ([]*engine.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*engine.Execution
	for _, e := range s.byID {
		if e.WorkflowID == workflowID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryExecutionStore) FindRunning() ([]*engine.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*engine.Execution
	for _, e := range s.byID {
		if e.Status == engine.StatusRunning {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *InMemoryExecutionStore) FindByTimeRange(start, end time.Time) ([]*engine.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*engine.Execution
	for _, e := range s.byID {
		if !e.StartedAt.Before(start) && !e.StartedAt.After(end) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *InMemoryExecutionStore) DeleteAll(workflowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.byID {
		if e.WorkflowID == workflowID {
			delete(s.byID, id)
		}
	}
	return nil
}
