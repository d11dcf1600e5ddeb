package engine

import (
	"context"
	"sync"

	"github.com/flowforge/enginecore/internal/execlog"
)

// CredentialStore resolves stored credentials for executors. Never
// handed to the engine's own control flow, only threaded through to
// executors via ExecutionContext.
type CredentialStore interface {
	DecryptedById(id string) (string, error)
	FindByName(name string) (id string, found bool)
}

// executionState is shared across every node invocation within one
// execution, including concurrent sibling fan-out tasks: identity,
// logger, credentials, cancellation, and the append-only node
// execution ledger.
type executionState struct {
	executionID string
	workflowID  string
	logger      *execlog.Logger
	credentials CredentialStore
	cancelled   func() bool

	mu    sync.Mutex
	execs []NodeExecution
}

func (s *executionState) recordNodeExecution(ne NodeExecution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.execs = append(s.execs, ne)
}

func (s *executionState) nodeExecutions() []NodeExecution {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]NodeExecution, len(s.execs))
	copy(out, s.execs)
	return out
}

// ExecutionContext is the view an Executor sees for the duration of
// one node invocation: shared execution identity/logger/credentials
// plus this node's own settings and upstream input.
type ExecutionContext struct {
	shared   *executionState
	settings map[string]interface{}
	input    map[string]interface{}
}

func newExecutionState(
	executionID, workflowID string,
	logger *execlog.Logger,
	credentials CredentialStore,
	cancelled func() bool,
) *executionState {
	return &executionState{
		executionID: executionID,
		workflowID:  workflowID,
		logger:      logger,
		credentials: credentials,
		cancelled:   cancelled,
	}
}

// forNode returns the view passed to one node's Execute call.
func (s *executionState) forNode(settings, input map[string]interface{}) *ExecutionContext {
	return &ExecutionContext{shared: s, settings: settings, input: input}
}

func (c *ExecutionContext) ExecutionId() string { return c.shared.executionID }
func (c *ExecutionContext) WorkflowId() string  { return c.shared.workflowID }

// NodeSettings returns the node's parameters, already expression-evaluated.
func (c *ExecutionContext) NodeSettings() map[string]interface{} { return c.settings }

// Input returns the map assembled from upstream node output.
func (c *ExecutionContext) Input() map[string]interface{} { return c.input }

func (c *ExecutionContext) IsCancelled() bool { return c.shared.cancelled() }

func (c *ExecutionContext) Logger() *execlog.Logger { return c.shared.logger }

func (c *ExecutionContext) DecryptedCredential(id string) (string, error) {
	if c.shared.credentials == nil {
		return "", &DataParsingError{Field: "credentialId"}
	}
	return c.shared.credentials.DecryptedById(id)
}

func (c *ExecutionContext) DecryptedCredentialByName(name string) (string, error) {
	if c.shared.credentials == nil {
		return "", &DataParsingError{Field: "credentialName"}
	}
	id, found := c.shared.credentials.FindByName(name)
	if !found {
		return "", &DataParsingError{Field: "credentialName"}
	}
	return c.shared.credentials.DecryptedById(id)
}

// RecordNodeExecution appends ne to the execution's running record.
// Safe for concurrent use by sibling fan-out tasks.
func (c *ExecutionContext) RecordNodeExecution(ne NodeExecution) {
	c.shared.recordNodeExecution(ne)
}

// NodeExecutions returns a snapshot copy of recorded node executions.
func (c *ExecutionContext) NodeExecutions() []NodeExecution {
	return c.shared.nodeExecutions()
}

type execContextKey struct{}

// withExecutionContext attaches ec to ctx so an Executor can recover
// it with FromContext without the registry package needing to know
// about ExecutionContext.
func withExecutionContext(ctx context.Context, ec *ExecutionContext) context.Context {
	return context.WithValue(ctx, execContextKey{}, ec)
}

// FromContext recovers the ExecutionContext an engine attached to ctx.
// Built-in and plugin executors call this to reach credentials, the
// logger, and cancellation state beyond what ExecRequest carries.
func FromContext(ctx context.Context) (*ExecutionContext, bool) {
	ec, ok := ctx.Value(execContextKey{}).(*ExecutionContext)
	return ec, ok
}
