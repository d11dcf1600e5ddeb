package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/enginecore/internal/engine"
)

func TestInMemoryWorkflowStore_PutFindRemove(t *testing.T) {
	s := NewInMemoryWorkflowStore()
	wf := &engine.Workflow{ID: "wf-1", Name: "test"}
	s.Put(wf)

	got, err := s.FindById("wf-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "test", got.Name)

	s.Remove("wf-1")
	got, err = s.FindById("wf-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestInMemoryWorkflowStore_FindAll_SortedById(t *testing.T) {
	s := NewInMemoryWorkflowStore()
	s.Put(&engine.Workflow{ID: "b"})
	s.Put(&engine.Workflow{ID: "a"})

	all, err := s.FindAll()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, "b", all[1].ID)
}

func TestInMemoryWorkflowStore_FindByTriggerType(t *testing.T) {
	s := NewInMemoryWorkflowStore()
	s.Put(&engine.Workflow{ID: "wf-cron", TriggerType: engine.TriggerSchedule})
	s.Put(&engine.Workflow{ID: "wf-manual", TriggerType: engine.TriggerManual})

	out, err := s.FindByTriggerType(engine.TriggerSchedule)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "wf-cron", out[0].ID)
}

func TestInMemoryWorkflowStore_FindActiveScheduled_RequiresAllThree(t *testing.T) {
	s := NewInMemoryWorkflowStore()
	s.Put(&engine.Workflow{ID: "active-cron", TriggerType: engine.TriggerSchedule, Active: true, CronExpression: "* * * * * *"})
	s.Put(&engine.Workflow{ID: "inactive-cron", TriggerType: engine.TriggerSchedule, Active: false, CronExpression: "* * * * * *"})
	s.Put(&engine.Workflow{ID: "no-expr", TriggerType: engine.TriggerSchedule, Active: true})
	s.Put(&engine.Workflow{ID: "manual", TriggerType: engine.TriggerManual, Active: true})

	out, err := s.FindActiveScheduled()
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "active-cron", out[0].ID)
}

func TestInMemoryWorkflowStore_Subscribe_NotifiesOnPutAndRemove(t *testing.T) {
	s := NewInMemoryWorkflowStore()
	var changes []engine.WorkflowChanged
	unsubscribe := s.Subscribe(func(c engine.WorkflowChanged) {
		changes = append(changes, c)
	})

	s.Put(&engine.Workflow{ID: "wf-1"})
	s.Remove("wf-1")

	require.Len(t, changes, 2)
	assert.NotNil(t, changes[0].Workflow)
	assert.Nil(t, changes[1].Workflow)

	unsubscribe()
	s.Put(&engine.Workflow{ID: "wf-2"})
	assert.Len(t, changes, 2, "no further notifications after unsubscribe")
}

func TestInMemoryExecutionStore_SaveFindDelete(t *testing.T) {
	s := NewInMemoryExecutionStore()
	exec := &engine.Execution{ID: "exec-1", WorkflowID: "wf-1", Status: engine.StatusRunning, StartedAt: time.Now()}
	require.NoError(t, s.Save(exec))

	got, err := s.FindById("exec-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "wf-1", got.WorkflowID)

	require.NoError(t, s.DeleteAll("wf-1"))
	got, err = s.FindById("exec-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestInMemoryExecutionStore_FindByWorkflowIdDesc_RespectsLimit(t *testing.T) {
	s := NewInMemoryExecutionStore()
	base := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Save(&engine.Execution{
			ID:         string(rune('a' + i)),
			WorkflowID: "wf-1",
			StartedAt:  base.Add(time.Duration(i) * time.Minute),
		}))
	}

	out, err := s.FindByWorkflowIdDesc("wf-1", 2)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.True(t, out[0].StartedAt.After(out[1].StartedAt))
}

func TestInMemoryExecutionStore_FindRunning(t *testing.T) {
	s := NewInMemoryExecutionStore()
	require.NoError(t, s.Save(&engine.Execution{ID: "e1", Status: engine.StatusRunning}))
	require.NoError(t, s.Save(&engine.Execution{ID: "e2", Status: engine.StatusSuccess}))

	out, err := s.FindRunning()
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "e1", out[0].ID)
}

func TestInMemoryExecutionStore_FindByTimeRange(t *testing.T) {
	s := NewInMemoryExecutionStore()
	now := time.Now()
	require.NoError(t, s.Save(&engine.Execution{ID: "old", StartedAt: now.Add(-time.Hour)}))
	require.NoError(t, s.Save(&engine.Execution{ID: "in-range", StartedAt: now}))

	out, err := s.FindByTimeRange(now.Add(-time.Minute), now.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "in-range", out[0].ID)
}
