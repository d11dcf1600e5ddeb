// Package stepdebug implements the Step-Debug Controller (C5): a
// single-stepping primitive that blocks the engine after each node
// until an external continue/cancel signal arrives.
//
// The controller scopes its latch per execution id, not process-wide —
// the teacher's analogous shared latch is documented as likely a bug
// when two executions run concurrently; this implementation resolves
// that by keying every latch on the execution id.
package stepdebug

import "sync"

type signal int

const (
	signalContinue signal = iota
	signalCancel
)

type execState struct {
	mu           sync.Mutex
	pausedNodeID string
	pausedCh     chan signal
}

// Controller toggles step mode and gates node execution for a set of
// concurrently running executions.
type Controller struct {
	mu      sync.Mutex
	enabled bool
	states  map[string]*execState
}

// New creates a Controller with step mode disabled.
func New() *Controller {
	return &Controller{states: make(map[string]*execState)}
}

// SetEnabled toggles step mode for every execution this controller
// serves.
func (c *Controller) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = enabled
}

// Enabled reports the current mode.
func (c *Controller) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// Reset clears any paused state for execID. Called at the start of
// every execution.
func (c *Controller) Reset(execID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.states, execID)
}

func (c *Controller) stateFor(execID string) *execState {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.states[execID]
	if !ok {
		st = &execState{}
		c.states[execID] = st
	}
	return st
}

// WaitForStep blocks the calling goroutine until ContinueStep or
// CancelStepExecution releases it. If step mode is disabled it
// returns true immediately. Returns false if the execution's step was
// cancelled — the caller MUST treat that as cancellation.
func (c *Controller) WaitForStep(execID, nodeID, nodeName string) bool {
	if !c.Enabled() {
		return true
	}

	st := c.stateFor(execID)
	st.mu.Lock()
	st.pausedNodeID = nodeID
	ch := make(chan signal, 1)
	st.pausedCh = ch
	st.mu.Unlock()

	sig := <-ch

	st.mu.Lock()
	st.pausedNodeID = ""
	st.pausedCh = nil
	st.mu.Unlock()

	return sig == signalContinue
}

// ContinueStep releases the latch for execID with "continue". No-op if
// nothing is paused.
func (c *Controller) ContinueStep(execID string) {
	c.release(execID, signalContinue)
}

// CancelStepExecution releases the latch for execID with "cancel"; the
// corresponding WaitForStep call returns false.
func (c *Controller) CancelStepExecution(execID string) {
	c.release(execID, signalCancel)
}

func (c *Controller) release(execID string, sig signal) {
	c.mu.Lock()
	st, ok := c.states[execID]
	c.mu.Unlock()
	if !ok {
		return
	}
	st.mu.Lock()
	ch := st.pausedCh
	st.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- sig:
	default:
	}
}

// PausedNode returns the node id currently paused for execID, or ""
// if nothing is paused.
func (c *Controller) PausedNode(execID string) string {
	c.mu.Lock()
	st, ok := c.states[execID]
	c.mu.Unlock()
	if !ok {
		return ""
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.pausedNodeID
}
