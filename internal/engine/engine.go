package engine

import (
	"context"
	"sync"
	"time"

	"github.com/flowforge/enginecore/internal/clockid"
	"github.com/flowforge/enginecore/internal/execlog"
	"github.com/flowforge/enginecore/internal/registry"
	"github.com/flowforge/enginecore/internal/stepdebug"
	"github.com/flowforge/enginecore/pkg/expression"
)

// MetricsRecorder observes execution/node outcomes. Optional: a nil
// Metrics in Config yields a no-op recorder, so instrumentation never
// gates correctness.
type MetricsRecorder interface {
	ExecutionStarted(workflowID string)
	ExecutionFinished(workflowID string, status Status, duration time.Duration)
	NodeExecuted(nodeType string, status Status, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) ExecutionStarted(string)                          {}
func (noopMetrics) ExecutionFinished(string, Status, time.Duration)   {}
func (noopMetrics) NodeExecuted(string, Status, time.Duration)        {}

// Engine is the workflow execution engine (C7): graph traversal,
// branch/loop routing, parallel fan-out, and cooperative cancellation.
type Engine struct {
	workflows   WorkflowStore
	executions  ExecutionStore
	registry    *registry.Registry
	logger      *execlog.Logger
	stepDebug   *stepdebug.Controller
	credentials CredentialStore
	clock       clockid.Clock
	expr        *expression.Parser
	metrics     MetricsRecorder

	mu        sync.Mutex
	cancelled map[string]bool // execId -> cancellation requested
}

// Config bundles an Engine's collaborators.
type Config struct {
	Workflows   WorkflowStore
	Executions  ExecutionStore
	Registry    *registry.Registry
	Logger      *execlog.Logger
	StepDebug   *stepdebug.Controller
	Credentials CredentialStore
	Clock       clockid.Clock
	Metrics     MetricsRecorder
}

// New constructs an Engine from cfg. Clock defaults to SystemClock if nil.
func New(cfg Config) *Engine {
	clk := cfg.Clock
	if clk == nil {
		clk = clockid.SystemClock{}
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Engine{
		workflows:   cfg.Workflows,
		executions:  cfg.Executions,
		registry:    cfg.Registry,
		logger:      cfg.Logger,
		stepDebug:   cfg.StepDebug,
		credentials: cfg.Credentials,
		clock:       clk,
		expr:        expression.NewParser(),
		metrics:     metrics,
		cancelled:   make(map[string]bool),
	}
}

// Execute runs workflowId to a terminal state and returns its record.
func (e *Engine) Execute(workflowID string, input map[string]interface{}) (*Execution, error) {
	workflow, err := e.workflows.FindById(workflowID)
	if err != nil || workflow == nil {
		return nil, &WorkflowNotFoundError{WorkflowID: workflowID}
	}

	triggers := workflow.TriggerNodes()
	if len(triggers) == 0 {
		return nil, &NoTriggerNodesError{WorkflowID: workflowID}
	}

	execID := clockid.NewExecutionID()
	e.stepDebug.Reset(execID)

	exec := &Execution{
		ID:          execID,
		WorkflowID:  workflowID,
		TriggerType: workflow.TriggerType,
		Status:      StatusRunning,
		StartedAt:   e.clock.Now(),
		InputData:   input,
	}
	if err := e.executions.Save(exec); err != nil {
		return nil, err
	}

	e.setCancelled(execID, false)
	defer e.clearCancelled(execID)

	e.logger.StartExecution(execID, workflow.ID, workflow.Name)
	e.metrics.ExecutionStarted(workflowID)

	state := newExecutionState(execID, workflowID, e.logger, e.credentials, func() bool {
		return e.isCancelled(execID)
	})

	var output map[string]interface{}
	var runErr error
	for _, trigger := range triggers {
		output, runErr = e.executeNode(trigger, workflow, state, input)
		if runErr != nil {
			break
		}
	}

	exec.NodeExecutions = state.nodeExecutions()
	exec.FinishedAt = e.clock.Now()

	if runErr != nil {
		if e.isCancelled(execID) || isCancelled(runErr) {
			exec.Status = StatusCancelled
			exec.ErrorMessage = "Execution cancelled by user"
		} else {
			exec.Status = StatusFailed
			exec.ErrorMessage = runErr.Error()
		}
		e.logger.ErrorWithContext(execID, "", "", input, runErr)
	} else {
		if e.isCancelled(execID) {
			exec.Status = StatusCancelled
			exec.ErrorMessage = "Execution cancelled by user"
		} else {
			exec.Status = StatusSuccess
		}
		exec.OutputData = output
	}

	e.logger.EndExecution(execID, exec.Status == StatusSuccess, exec.OutputData)
	e.metrics.ExecutionFinished(workflowID, exec.Status, exec.FinishedAt.Sub(exec.StartedAt))

	if saveErr := e.executions.Save(exec); saveErr != nil {
		return exec, saveErr
	}
	return exec, nil
}

// ExecuteAsync runs workflowID in the background and returns a future
// channel receiving the terminal Execution (and any error Execute
// returns inside the goroutine, e.g. WorkflowNotFound).
func (e *Engine) ExecuteAsync(workflowID string, input map[string]interface{}) <-chan asyncResult {
	out := make(chan asyncResult, 1)
	go func() {
		exec, err := e.Execute(workflowID, input)
		out <- asyncResult{Execution: exec, Err: err}
	}()
	return out
}

type asyncResult struct {
	Execution *Execution
	Err       error
}

// Cancel requests cancellation of a RUNNING execution. Returns true if
// the execution was known and the flag was set.
func (e *Engine) Cancel(executionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, tracked := e.cancelled[executionID]; !tracked {
		return false
	}
	e.cancelled[executionID] = true
	return true
}

// CancelAllForWorkflow cancels every currently-tracked execution
// belonging to workflowID, returning the count signaled.
func (e *Engine) CancelAllForWorkflow(workflowID string) int {
	running, err := e.executions.FindRunning()
	if err != nil {
		return 0
	}
	n := 0
	for _, ex := range running {
		if ex.WorkflowID == workflowID && e.Cancel(ex.ID) {
			n++
		}
	}
	return n
}

func (e *Engine) FindById(executionID string) (*Execution, error) {
	return e.executions.FindById(executionID)
}

func (e *Engine) FindByWorkflowId(workflowID string, limit int) ([]*Execution, error) {
	return e.executions.FindByWorkflowIdDesc(workflowID, limit)
}

func (e *Engine) FindRunning() ([]*Execution, error) {
	return e.executions.FindRunning()
}

func (e *Engine) FindByTimeRange(start, end time.Time) ([]*Execution, error) {
	return e.executions.FindByTimeRange(start, end)
}

func (e *Engine) setCancelled(execID string, v bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelled[execID] = v
}

func (e *Engine) clearCancelled(execID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.cancelled, execID)
}

func (e *Engine) isCancelled(execID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelled[execID]
}

// executeNode runs node and recursively traverses its eligible
// outgoing connections per the branch/loop/fan-out rules, returning
// the node's own raw output.
func (e *Engine) executeNode(
	node Node,
	workflow *Workflow,
	state *executionState,
	input map[string]interface{},
) (map[string]interface{}, error) {
	execID := state.executionID

	if e.isCancelled(execID) {
		return nil, &CancelledError{NodeID: node.ID, NodeType: node.Type}
	}

	if node.Disabled {
		e.logger.NodeSkip(execID, node.ID, node.Name)
		return input, nil
	}

	startedAt := e.clock.Now()
	e.logger.NodeStart(execID, node.ID, node.Name)
	e.logger.NodeInput(execID, node.ID, node.Name, input)

	exec, err := e.registry.Get(node.Type)
	if err != nil {
		return nil, &NoExecutorError{NodeID: node.ID, NodeType: node.Type}
	}

	settings, err := e.evaluateSettings(node, workflow, state, input, startedAt)
	if err != nil {
		return nil, err
	}

	req := registry.ExecRequest{
		NodeID:      node.ID,
		NodeType:    node.Type,
		Settings:    settings,
		Input:       input,
		ExecutionID: execID,
		WorkflowID:  workflow.ID,
	}

	nodeCtx := state.forNode(settings, input)
	ctx := withExecutionContext(context.Background(), nodeCtx)
	output, execErr := exec.Execute(ctx, req)
	finishedAt := e.clock.Now()
	durationMs := finishedAt.Sub(startedAt).Milliseconds()

	if execErr != nil {
		e.logger.NodeEnd(execID, node.ID, node.Name, false, durationMs)
		e.logger.ErrorWithContext(execID, node.ID, node.Name, input, execErr)
		e.metrics.NodeExecuted(node.Type, StatusFailed, finishedAt.Sub(startedAt))
		state.recordNodeExecution(NodeExecution{
			NodeID: node.ID, Status: StatusFailed,
			StartedAt: startedAt, FinishedAt: finishedAt,
			Error: execErr.Error(),
		})
		return nil, &NodeExecutionFailedError{NodeID: node.ID, NodeType: node.Type, Cause: execErr}
	}

	e.logger.NodeOutput(execID, node.ID, node.Name, output)
	e.logger.NodeEnd(execID, node.ID, node.Name, true, durationMs)
	e.metrics.NodeExecuted(node.Type, StatusSuccess, finishedAt.Sub(startedAt))
	state.recordNodeExecution(NodeExecution{
		NodeID: node.ID, Status: StatusSuccess,
		StartedAt: startedAt, FinishedAt: finishedAt,
		Output: output,
	})

	if e.isCancelled(execID) {
		return nil, &CancelledError{NodeID: node.ID, NodeType: node.Type}
	}

	if stop, _ := output["_stopExecution"].(bool); stop {
		return output, nil
	}

	if !e.stepDebug.WaitForStep(execID, node.ID, node.Name) {
		return nil, &CancelledError{NodeID: node.ID, NodeType: node.Type}
	}

	connections := workflow.OutgoingConnections(node.ID)
	eligible := filterByBranch(connections, output)
	loopEdges, plainEdges := partitionLoopEdges(eligible)

	if len(loopEdges) > 0 {
		if err := e.runLoopEdges(loopEdges, workflow, state, output); err != nil {
			return nil, err
		}
	}

	if err := e.runFanOut(plainEdges, workflow, state, output); err != nil {
		return nil, err
	}

	return output, nil
}

// evaluateSettings resolves {{$json.field}}/{{$node.x.y}}/{{$func.x()}}
// style templates in a node's raw parameters against the execution's
// accumulated node outputs and metadata, before the node sees them.
func (e *Engine) evaluateSettings(
	node Node,
	workflow *Workflow,
	state *executionState,
	input map[string]interface{},
	now time.Time,
) (map[string]interface{}, error) {
	exprCtx := expression.NewContext()
	exprCtx.SetInput(input)
	exprCtx.Execution = expression.ExecutionContext{
		ID:        state.executionID,
		Mode:      string(workflow.TriggerType),
		Timestamp: now,
	}
	exprCtx.Workflow = expression.WorkflowContext{
		ID:     workflow.ID,
		Name:   workflow.Name,
		Active: workflow.Active,
	}
	exprCtx.Secrets = e.credentials
	for _, ne := range state.nodeExecutions() {
		exprCtx.SetNodeOutput(ne.NodeID, ne.Output)
	}

	evaluated, err := e.expr.EvaluateTemplate(node.Parameters, exprCtx)
	if err != nil {
		return nil, &DataParsingError{Field: node.ID + ".parameters", Cause: err}
	}
	return evaluated, nil
}

// filterByBranch applies the spec's branch-selection rule: a null
// branch makes every connection eligible; otherwise only connections
// whose sourceOutput is empty, "main", or equal to branch survive.
func filterByBranch(connections []Connection, output map[string]interface{}) []Connection {
	branch, hasBranch := output["branch"].(string)
	if !hasBranch {
		return connections
	}
	var out []Connection
	for _, c := range connections {
		if c.SourceOutput == "" || c.SourceOutput == "main" || c.SourceOutput == branch {
			out = append(out, c)
		}
	}
	return out
}

func partitionLoopEdges(connections []Connection) (loop, plain []Connection) {
	for _, c := range connections {
		if c.SourceOutput == "loop" {
			loop = append(loop, c)
		} else {
			plain = append(plain, c)
		}
	}
	return loop, plain
}

// runLoopEdges executes every loop-edge target once per element of
// output["results"], serialized per edge and across edges in
// declaration order.
func (e *Engine) runLoopEdges(
	loopEdges []Connection,
	workflow *Workflow,
	state *executionState,
	output map[string]interface{},
) error {
	results, ok := output["results"].([]interface{})
	if !ok {
		return nil
	}

	for _, edge := range loopEdges {
		target, found := workflow.NodeByID(edge.TargetNodeID)
		if !found {
			continue
		}
		for _, raw := range results {
			element, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			iterationInput := make(map[string]interface{}, len(output)+2)
			for k, v := range output {
				iterationInput[k] = v
			}
			iterationInput["item"] = element["item"]
			iterationInput["index"] = element["index"]
			if itemMap, ok := element["item"].(map[string]interface{}); ok {
				for k, v := range itemMap {
					iterationInput[k] = v
				}
			}
			if _, err := e.executeNode(target, workflow, state, iterationInput); err != nil {
				return err
			}
		}
	}
	return nil
}

// runFanOut executes plain edges: one sequentially, two-or-more
// concurrently with first-error-propagates semantics.
func (e *Engine) runFanOut(
	edges []Connection,
	workflow *Workflow,
	state *executionState,
	output map[string]interface{},
) error {
	if len(edges) == 0 {
		return nil
	}

	if len(edges) == 1 {
		target, found := workflow.NodeByID(edges[0].TargetNodeID)
		if !found {
			return nil
		}
		_, err := e.executeNode(target, workflow, state, output)
		return err
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(edges))
	for _, edge := range edges {
		target, found := workflow.NodeByID(edge.TargetNodeID)
		if !found {
			continue
		}
		wg.Add(1)
		go func(n Node) {
			defer wg.Done()
			if _, err := e.executeNode(n, workflow, state, output); err != nil {
				errs <- err
			}
		}(target)
	}
	wg.Wait()
	close(errs)

	if firstErr, ok := <-errs; ok {
		return &ParallelExecutionFailedError{Cause: firstErr}
	}
	return nil
}

