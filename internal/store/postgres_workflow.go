package store

import (
	"encoding/json"
	"sync"

	"gorm.io/gorm"

	"github.com/flowforge/enginecore/internal/engine"
)

// workflowRow is the gorm-mapped row for the workflows table. Nodes
// and Connections are stored as JSON columns since their shape is
// graph data, not relational.
type workflowRow struct {
	ID             string `gorm:"primaryKey"`
	Name           string
	NodesJSON      []byte `gorm:"column:nodes"`
	ConnectionsJSON []byte `gorm:"column:connections"`
	SettingsJSON   []byte `gorm:"column:settings"`
	TriggerType    string
	CronExpression string
	Active         bool
	Version        int
}

func (workflowRow) TableName() string { return "workflows" }

// GormWorkflowStore is a WorkflowStore backed by gorm + the postgres
// driver, for deployments that keep workflow definitions in the same
// database as executions. Subscribe has no delivery mechanism over a
// plain table: it records the listener, never calls it, and returns a
// no-op unsubscribe. Triggers fed from this store see only the
// workflows loaded at startup.
type GormWorkflowStore struct {
	db *gorm.DB

	mu        sync.Mutex
	listeners []func(engine.WorkflowChanged)
}

func NewGormWorkflowStore(db *gorm.DB) *GormWorkflowStore {
	return &GormWorkflowStore{db: db}
}

func toRow(w *engine.Workflow) (*workflowRow, error) {
	nodes, err := json.Marshal(w.Nodes)
	if err != nil {
		return nil, err
	}
	conns, err := json.Marshal(w.Connections)
	if err != nil {
		return nil, err
	}
	settings, err := json.Marshal(w.Settings)
	if err != nil {
		return nil, err
	}
	return &workflowRow{
		ID: w.ID, Name: w.Name,
		NodesJSON: nodes, ConnectionsJSON: conns, SettingsJSON: settings,
		TriggerType: string(w.TriggerType), CronExpression: w.CronExpression,
		Active: w.Active, Version: w.Version,
	}, nil
}

func fromRow(row *workflowRow) (*engine.Workflow, error) {
	w := &engine.Workflow{
		ID: row.ID, Name: row.Name,
		TriggerType: engine.TriggerType(row.TriggerType), CronExpression: row.CronExpression,
		Active: row.Active, Version: row.Version,
	}
	if len(row.NodesJSON) > 0 {
		if err := json.Unmarshal(row.NodesJSON, &w.Nodes); err != nil {
			return nil, &engine.DataParsingError{Field: "nodes", Cause: err}
		}
	}
	if len(row.ConnectionsJSON) > 0 {
		if err := json.Unmarshal(row.ConnectionsJSON, &w.Connections); err != nil {
			return nil, &engine.DataParsingError{Field: "connections", Cause: err}
		}
	}
	if len(row.SettingsJSON) > 0 {
		if err := json.Unmarshal(row.SettingsJSON, &w.Settings); err != nil {
			return nil, &engine.DataParsingError{Field: "settings", Cause: err}
		}
	}
	return w, nil
}

// Put upserts a workflow row.
func (s *GormWorkflowStore) Put(w *engine.Workflow) error {
	row, err := toRow(w)
	if err != nil {
		return err
	}
	return s.db.Save(row).Error
}

func (s *GormWorkflowStore) FindById(id string) (*engine.Workflow, error) {
	var row workflowRow
	err := s.db.First(&row, "id = ?", id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return fromRow(&row)
}

func (s *GormWorkflowStore) FindAll() ([]*engine.Workflow, error) {
	var rows []workflowRow
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, err
	}
	return fromRows(rows)
}

func (s *GormWorkflowStore) FindByTriggerType(t engine.TriggerType) ([]*engine.Workflow, error) {
	var rows []workflowRow
	if err := s.db.Where("trigger_type = ?", string(t)).Find(&rows).Error; err != nil {
		return nil, err
	}
	return fromRows(rows)
}

func (s *GormWorkflowStore) FindActiveScheduled() ([]*engine.Workflow, error) {
	var rows []workflowRow
	err := s.db.Where("active = ? AND trigger_type = ? AND cron_expression <> ''", true, string(engine.TriggerSchedule)).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return fromRows(rows)
}

func (s *GormWorkflowStore) Subscribe(fn func(engine.WorkflowChanged)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
	return func() {}
}

func fromRows(rows []workflowRow) ([]*engine.Workflow, error) {
	out := make([]*engine.Workflow, 0, len(rows))
	for i := range rows {
		w, err := fromRow(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}
