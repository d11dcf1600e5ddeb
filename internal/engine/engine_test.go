package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/enginecore/internal/clockid"
	"github.com/flowforge/enginecore/internal/execlog"
	"github.com/flowforge/enginecore/internal/registry"
	"github.com/flowforge/enginecore/internal/stepdebug"
)

// --- fakes ---------------------------------------------------------

type memWorkflowStore struct {
	mu  sync.Mutex
	all map[string]*Workflow
}

func newMemWorkflowStore(workflows ...*Workflow) *memWorkflowStore {
	s := &memWorkflowStore{all: make(map[string]*Workflow)}
	for _, w := range workflows {
		s.all[w.ID] = w
	}
	return s
}

func (s *memWorkflowStore) FindById(id string) (*Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.all[id], nil
}
func (s *memWorkflowStore) FindAll() ([]*Workflow, error) { return nil, nil }
func (s *memWorkflowStore) FindByTriggerType(t TriggerType) ([]*Workflow, error) {
	return nil, nil
}
func (s *memWorkflowStore) FindActiveScheduled() ([]*Workflow, error) { return nil, nil }
func (s *memWorkflowStore) Subscribe(fn func(WorkflowChanged)) func() { return func() {} }

type memExecutionStore struct {
	mu   sync.Mutex
	byID map[string]*Execution
}

func newMemExecutionStore() *memExecutionStore {
	return &memExecutionStore{byID: make(map[string]*Execution)}
}

func (s *memExecutionStore) Save(exec *Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *exec
	s.byID[exec.ID] = &cp
	return nil
}
func (s *memExecutionStore) FindById(id string) (*Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byID[id], nil
}
func (s *memExecutionStore) FindByWorkflowIdDesc(workflowID string, limit int) ([]*Execution, error) {
	return nil, nil
}
func (s *memExecutionStore) FindRunning() ([]*Execution, error) { return nil, nil }
func (s *memExecutionStore) FindByTimeRange(start, end time.Time) ([]*Execution, error) {
	return nil, nil
}
func (s *memExecutionStore) DeleteAll(workflowID string) error { return nil }

// echoExec returns its input unchanged, plus any "set" fields from
// settings, optionally failing or branching on request.
type echoExec struct {
	nodeType string
	fail     error
	branch   func(input map[string]interface{}) string
	delay    time.Duration
}

func (e *echoExec) NodeType() string { return e.nodeType }

func (e *echoExec) Execute(ctx context.Context, req registry.ExecRequest) (map[string]interface{}, error) {
	if e.delay > 0 {
		time.Sleep(e.delay)
	}
	if e.fail != nil {
		return nil, e.fail
	}
	out := make(map[string]interface{}, len(req.Input)+2)
	for k, v := range req.Input {
		out[k] = v
	}
	if set, ok := req.Settings["set"].(map[string]interface{}); ok {
		for k, v := range set {
			out[k] = v
		}
	}
	if e.branch != nil {
		out["branch"] = e.branch(req.Input)
	}
	return out, nil
}

func newTestEngine(t *testing.T, workflows ...*Workflow) (*Engine, *registry.Registry, *memExecutionStore) {
	t.Helper()
	reg := registry.New()
	clock := clockid.NewFixedClock(time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC))
	eng := New(Config{
		Workflows:  newMemWorkflowStore(workflows...),
		Executions: newMemExecutionStore(),
		Registry:   reg,
		Logger:     execlog.New(clock),
		StepDebug:  stepdebug.New(),
		Clock:      clock,
	})
	return eng, reg, eng.executions.(*memExecutionStore)
}

func node(id, typ string) Node { return Node{ID: id, Type: typ, Name: id} }

func conn(from, to string) Connection {
	return Connection{SourceNodeID: from, TargetNodeID: to}
}

func connBranch(from, to, branch string) Connection {
	return Connection{SourceNodeID: from, TargetNodeID: to, SourceOutput: branch}
}

// --- scenario 1: linear two-node workflow ---------------------------

func TestExecute_LinearTwoNode_Succeeds(t *testing.T) {
	wf := &Workflow{
		ID:          "wf1",
		Name:        "linear",
		TriggerType: TriggerManual,
		Nodes:       []Node{node("a", "start"), node("b", "echo")},
		Connections: []Connection{conn("a", "b")},
	}
	eng, reg, _ := newTestEngine(t, wf)
	require.NoError(t, reg.Register(&echoExec{nodeType: "start"}))
	require.NoError(t, reg.Register(&echoExec{nodeType: "echo"}))

	exec, err := eng.Execute("wf1", map[string]interface{}{"x": 1})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, exec.Status)
	assert.Len(t, exec.NodeExecutions, 2)
}

// --- scenario 2: branch selection ------------------------------------

func TestExecute_BranchSelection_OnlyTrueBranchRuns(t *testing.T) {
	wf := &Workflow{
		ID:          "wf2",
		TriggerType: TriggerManual,
		Nodes:       []Node{node("a", "splitter"), node("t", "echo"), node("f", "echo")},
		Connections: []Connection{
			connBranch("a", "t", "true"),
			connBranch("a", "f", "false"),
		},
	}
	eng, reg, _ := newTestEngine(t, wf)
	require.NoError(t, reg.Register(&echoExec{nodeType: "splitter", branch: func(map[string]interface{}) string { return "true" }}))
	require.NoError(t, reg.Register(&echoExec{nodeType: "echo"}))

	exec, err := eng.Execute("wf2", map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, exec.Status)

	var ranNodes []string
	for _, ne := range exec.NodeExecutions {
		ranNodes = append(ranNodes, ne.NodeID)
	}
	assert.Contains(t, ranNodes, "t")
	assert.NotContains(t, ranNodes, "f")
}

// --- scenario 3: loop expansion ---------------------------------------

func TestExecute_LoopEdge_RunsOncePerResult(t *testing.T) {
	wf := &Workflow{
		ID:          "wf3",
		TriggerType: TriggerManual,
		Nodes:       []Node{node("src", "loop_gen"), node("body", "echo")},
		Connections: []Connection{
			{SourceNodeID: "src", TargetNodeID: "body", SourceOutput: "loop"},
		},
	}
	eng, reg, _ := newTestEngine(t, wf)
	require.NoError(t, reg.Register(&echoExec{nodeType: "echo"}))
	require.NoError(t, reg.Register(loopGenExec{}))

	exec, err := eng.Execute("wf3", map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, exec.Status)

	bodyRuns := 0
	for _, ne := range exec.NodeExecutions {
		if ne.NodeID == "body" {
			bodyRuns++
		}
	}
	assert.Equal(t, 3, bodyRuns)
}

type loopGenExec struct{}

func (loopGenExec) NodeType() string { return "loop_gen" }
func (loopGenExec) Execute(ctx context.Context, req registry.ExecRequest) (map[string]interface{}, error) {
	results := []interface{}{
		map[string]interface{}{"item": "a", "index": 0},
		map[string]interface{}{"item": "b", "index": 1},
		map[string]interface{}{"item": "c", "index": 2},
	}
	return map[string]interface{}{"results": results}, nil
}

// --- scenario 4: parallel fan-out with one failure ---------------------

func TestExecute_ParallelFanOut_OneFailurePropagates(t *testing.T) {
	wf := &Workflow{
		ID:          "wf4",
		TriggerType: TriggerManual,
		Nodes:       []Node{node("a", "splitter"), node("ok", "echo"), node("bad", "boom")},
		Connections: []Connection{conn("a", "ok"), conn("a", "bad")},
	}
	eng, reg, _ := newTestEngine(t, wf)
	require.NoError(t, reg.Register(&echoExec{nodeType: "splitter"}))
	require.NoError(t, reg.Register(&echoExec{nodeType: "echo", delay: 5 * time.Millisecond}))
	require.NoError(t, reg.Register(&echoExec{nodeType: "boom", fail: fmt.Errorf("kaboom")}))

	exec, err := eng.Execute("wf4", map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, exec.Status)
	assert.Contains(t, exec.ErrorMessage, "kaboom")
}

// --- scenario 5: cancellation mid-flight --------------------------------

func TestExecute_CancelMidFlight_MarksCancelled(t *testing.T) {
	wf := &Workflow{
		ID:          "wf5",
		TriggerType: TriggerManual,
		Nodes:       []Node{node("a", "slow"), node("b", "echo")},
		Connections: []Connection{conn("a", "b")},
	}
	eng, reg, _ := newTestEngine(t, wf)
	require.NoError(t, reg.Register(&cancelOnFirstRun{engine: eng}))
	require.NoError(t, reg.Register(&echoExec{nodeType: "echo"}))

	exec, err := eng.Execute("wf5", map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, exec.Status)
	assert.Equal(t, "Execution cancelled by user", exec.ErrorMessage)
}

// cancelOnFirstRun cancels its own execution from inside Execute,
// simulating an external Cancel() call racing the first node.
type cancelOnFirstRun struct{ engine *Engine }

func (c *cancelOnFirstRun) NodeType() string { return "slow" }
func (c *cancelOnFirstRun) Execute(ctx context.Context, req registry.ExecRequest) (map[string]interface{}, error) {
	c.engine.Cancel(req.ExecutionID)
	return req.Input, nil
}

// --- workflow/trigger errors --------------------------------------------

func TestExecute_UnknownWorkflow_ReturnsWorkflowNotFound(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	_, err := eng.Execute("missing", nil)
	var wnf *WorkflowNotFoundError
	require.ErrorAs(t, err, &wnf)
}

func TestExecute_NoTriggerNodes_ReturnsNoTriggerNodesError(t *testing.T) {
	wf := &Workflow{
		ID:          "wf6",
		TriggerType: TriggerManual,
		Nodes:       []Node{node("a", "echo"), node("b", "echo")},
		Connections: []Connection{conn("a", "b"), conn("b", "a")},
	}
	eng, _, _ := newTestEngine(t, wf)
	_, err := eng.Execute("wf6", nil)
	var nt *NoTriggerNodesError
	require.ErrorAs(t, err, &nt)
}

func TestExecute_NoExecutorForNodeType_Fails(t *testing.T) {
	wf := &Workflow{
		ID:          "wf7",
		TriggerType: TriggerManual,
		Nodes:       []Node{node("a", "mystery")},
	}
	eng, _, _ := newTestEngine(t, wf)
	exec, err := eng.Execute("wf7", nil)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, exec.Status)
	assert.Equal(t, (&NoExecutorError{NodeID: "a", NodeType: "mystery"}).Error(), exec.ErrorMessage)
}

func TestExecute_DisabledNode_SkipsAndPassesInputThrough(t *testing.T) {
	wf := &Workflow{
		ID:          "wf8",
		TriggerType: TriggerManual,
		Nodes:       []Node{{ID: "a", Type: "echo", Disabled: true}},
	}
	eng, reg, _ := newTestEngine(t, wf)
	require.NoError(t, reg.Register(&echoExec{nodeType: "echo"}))

	exec, err := eng.Execute("wf8", map[string]interface{}{"x": 1})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, exec.Status)
	assert.Empty(t, exec.NodeExecutions)
}

func TestExecute_StopExecutionSentinel_HaltsTraversal(t *testing.T) {
	wf := &Workflow{
		ID:          "wf9",
		TriggerType: TriggerManual,
		Nodes:       []Node{node("a", "merge"), node("b", "echo")},
		Connections: []Connection{conn("a", "b")},
	}
	eng, reg, _ := newTestEngine(t, wf)
	require.NoError(t, reg.Register(stopExec{}))
	require.NoError(t, reg.Register(&echoExec{nodeType: "echo"}))

	exec, err := eng.Execute("wf9", map[string]interface{}{})
	require.NoError(t, err)
	for _, ne := range exec.NodeExecutions {
		assert.NotEqual(t, "b", ne.NodeID)
	}
}

type stopExec struct{}

func (stopExec) NodeType() string { return "merge" }
func (stopExec) Execute(ctx context.Context, req registry.ExecRequest) (map[string]interface{}, error) {
	return map[string]interface{}{"_stopExecution": true}, nil
}
