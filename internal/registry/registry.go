// Package registry implements the Executor Registry (C4): a
// bidirectional nodeType -> Executor map with no process-global state.
// A Registry is constructed explicitly and passed to whatever needs it
// (engine, plugin loader) — there is no package-level singleton.
package registry

import (
	"context"
	"sync"
)

// Executor is the pluggable implementation of a node type. A single
// instance services all executions concurrently and MUST be safe for
// concurrent invocation.
type Executor interface {
	// NodeType returns the stable identifier this executor serves.
	NodeType() string
	// Execute runs the node and returns its raw output map.
	Execute(ctx context.Context, node ExecRequest) (map[string]interface{}, error)
}

// Validator is an optional Executor capability: settings validation
// ahead of execution.
type Validator interface {
	Validate(settings map[string]interface{}) error
}

// Cancellable is an optional Executor capability: best-effort
// cooperative cancellation of in-flight work.
type Cancellable interface {
	Cancel()
}

// ExecRequest is everything an Executor needs to run a single node
// invocation.
type ExecRequest struct {
	NodeID      string
	NodeType    string
	Settings    map[string]interface{}
	Input       map[string]interface{}
	ExecutionID string
	WorkflowID  string
}

// Registry maintains the insertion-time nodeType -> Executor map.
type Registry struct {
	mu    sync.RWMutex
	execs map[string]Executor
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{execs: make(map[string]Executor)}
}

// DuplicateNodeTypeError mirrors engine.DuplicateNodeTypeError without
// creating an import cycle between registry and engine.
type DuplicateNodeTypeError struct{ NodeType string }

func (e *DuplicateNodeTypeError) Error() string {
	return "node type already registered: " + e.NodeType
}

// UnknownNodeTypeError mirrors engine.UnknownNodeTypeError.
type UnknownNodeTypeError struct{ NodeType string }

func (e *UnknownNodeTypeError) Error() string {
	return "node type not registered: " + e.NodeType
}

// Register adds an executor. Fails with DuplicateNodeTypeError if the
// type is already present.
func (r *Registry) Register(e Executor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := e.NodeType()
	if _, exists := r.execs[t]; exists {
		return &DuplicateNodeTypeError{NodeType: t}
	}
	r.execs[t] = e
	return nil
}

// Unregister removes an executor, returning true if one was present.
func (r *Registry) Unregister(nodeType string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.execs[nodeType]; !exists {
		return false
	}
	delete(r.execs, nodeType)
	return true
}

// Get returns the executor for nodeType, or UnknownNodeTypeError.
func (r *Registry) Get(nodeType string) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, exists := r.execs[nodeType]
	if !exists {
		return nil, &UnknownNodeTypeError{NodeType: nodeType}
	}
	return e, nil
}

// Has reports whether nodeType currently has a registered executor.
func (r *Registry) Has(nodeType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.execs[nodeType]
	return exists
}

// Types returns every currently registered node type.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.execs))
	for t := range r.execs {
		out = append(out, t)
	}
	return out
}
