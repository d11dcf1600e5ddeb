package engine

import "time"

// WorkflowChanged is published by WorkflowStore implementations that
// support change notification, so the cron trigger can react to a
// workflow's schedule being edited or disabled without a restart.
type WorkflowChanged struct {
	WorkflowID string
	Workflow   *Workflow // nil if deleted
}

// WorkflowStore is the engine's read-only view of workflow
// definitions. The engine never mutates a workflow; activation,
// editing and versioning happen upstream of this interface.
type WorkflowStore interface {
	FindById(id string) (*Workflow, error)
	FindAll() ([]*Workflow, error)
	FindByTriggerType(t TriggerType) ([]*Workflow, error)
	FindActiveScheduled() ([]*Workflow, error)

	// Subscribe registers fn to be called whenever a workflow changes.
	// Returns an unsubscribe function. Implementations that cannot
	// observe changes may make this a no-op returning a no-op func.
	Subscribe(fn func(WorkflowChanged)) (unsubscribe func())
}

// ExecutionStore persists execution records. The engine calls Save at
// creation, at terminal transition, and the trigger subsystem/query
// surface read back through the Find* methods.
type ExecutionStore interface {
	Save(exec *Execution) error
	FindById(id string) (*Execution, error)
	FindByWorkflowIdDesc(workflowID string, limit int) ([]*Execution, error)
	FindRunning() ([]*Execution, error)
	FindByTimeRange(start, end time.Time) ([]*Execution, error)
	DeleteAll(workflowID string) error
}
