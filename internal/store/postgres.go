package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/flowforge/enginecore/internal/engine"
)

// PostgresExecutionStore persists executions to a `executions` table
// via database/sql + lib/pq, for deployments that need executions to
// survive a process restart.
type PostgresExecutionStore struct {
	db *sql.DB
}

func NewPostgresExecutionStore(db *sql.DB) *PostgresExecutionStore {
	return &PostgresExecutionStore{db: db}
}

func (r *PostgresExecutionStore) Save(exec *engine.Execution) error {
	input, err := json.Marshal(exec.InputData)
	if err != nil {
		return fmt.Errorf("store: marshal input: %w", err)
	}
	output, err := json.Marshal(exec.OutputData)
	if err != nil {
		return fmt.Errorf("store: marshal output: %w", err)
	}
	nodeExecs, err := json.Marshal(exec.NodeExecutions)
	if err != nil {
		return fmt.Errorf("store: marshal node executions: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO executions (id, workflow_id, trigger_type, status, started_at, finished_at, input_data, output_data, error_message, node_executions)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			finished_at = EXCLUDED.finished_at,
			output_data = EXCLUDED.output_data,
			error_message = EXCLUDED.error_message,
			node_executions = EXCLUDED.node_executions
	`, exec.ID, exec.WorkflowID, exec.TriggerType, exec.Status, exec.StartedAt, nullableTime(exec.FinishedAt), input, output, exec.ErrorMessage, nodeExecs)
	if err != nil {
		return fmt.Errorf("store: save execution: %w", err)
	}
	return nil
}

func (r *PostgresExecutionStore) FindById(id string) (*engine.Execution, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		SELECT id, workflow_id, trigger_type, status, started_at, finished_at, input_data, output_data, error_message, node_executions
		FROM executions WHERE id = $1
	`, id)
	return scanExecution(row)
}

func (r *PostgresExecutionStore) FindByWorkflowIdDesc(workflowID string, limit int) ([]*engine.Execution, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, workflow_id, trigger_type, status, started_at, finished_at, input_data, output_data, error_message, node_executions
		FROM executions WHERE workflow_id = $1 ORDER BY started_at DESC LIMIT $2
	`, workflowID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: query by workflow: %w", err)
	}
	defer rows.Close()
	return scanExecutions(rows)
}

func (r *PostgresExecutionStore) FindRunning() ([]*engine.Execution, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, workflow_id, trigger_type, status, started_at, finished_at, input_data, output_data, error_message, node_executions
		FROM executions WHERE status = $1
	`, engine.StatusRunning)
	if err != nil {
		return nil, fmt.Errorf("store: query running: %w", err)
	}
	defer rows.Close()
	return scanExecutions(rows)
}

func (r *PostgresExecutionStore) FindByTimeRange(start, end time.Time) ([]*engine.Execution, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, workflow_id, trigger_type, status, started_at, finished_at, input_data, output_data, error_message, node_executions
		FROM executions WHERE started_at BETWEEN $1 AND $2
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("store: query by time range: %w", err)
	}
	defer rows.Close()
	return scanExecutions(rows)
}

func (r *PostgresExecutionStore) DeleteAll(workflowID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `DELETE FROM executions WHERE workflow_id = $1`, workflowID)
	if err != nil {
		return fmt.Errorf("store: delete all: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanExecution(row scanner) (*engine.Execution, error) {
	var e engine.Execution
	var finishedAt sql.NullTime
	var input, output, nodeExecs []byte

	err := row.Scan(&e.ID, &e.WorkflowID, &e.TriggerType, &e.Status, &e.StartedAt, &finishedAt, &input, &output, &e.ErrorMessage, &nodeExecs)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan execution: %w", err)
	}
	if finishedAt.Valid {
		e.FinishedAt = finishedAt.Time
	}
	if len(input) > 0 {
		if err := json.Unmarshal(input, &e.InputData); err != nil {
			return nil, &engine.DataParsingError{Field: "inputData", Cause: err}
		}
	}
	if len(output) > 0 {
		if err := json.Unmarshal(output, &e.OutputData); err != nil {
			return nil, &engine.DataParsingError{Field: "outputData", Cause: err}
		}
	}
	if len(nodeExecs) > 0 {
		if err := json.Unmarshal(nodeExecs, &e.NodeExecutions); err != nil {
			return nil, &engine.DataParsingError{Field: "nodeExecutions", Cause: err}
		}
	}
	return &e, nil
}

func scanExecutions(rows *sql.Rows) ([]*engine.Execution, error) {
	var out []*engine.Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
