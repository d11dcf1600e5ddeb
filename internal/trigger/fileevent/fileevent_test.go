package fileevent

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/enginecore/internal/clockid"
	"github.com/flowforge/enginecore/internal/engine"
)

type fireRecorder struct {
	mu     sync.Mutex
	events []string
}

func (f *fireRecorder) Fired(workflowID, eventType string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, workflowID+":"+eventType)
}

func (f *fireRecorder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.True(t, cond(), "condition not met within %s", timeout)
}

func triggerWorkflow(id, watchPath, pattern string) *engine.Workflow {
	return &engine.Workflow{
		ID:          id,
		TriggerType: engine.TriggerFileEvent,
		Nodes: []engine.Node{
			{
				ID:   "trigger",
				Type: "fileWatch",
				Parameters: map[string]interface{}{
					"watchPath":   watchPath,
					"filePattern": pattern,
					"eventTypes":  "CREATE,MODIFY",
				},
			},
		},
	}
}

func TestRegister_MatchingFileCreate_Fires(t *testing.T) {
	dir := t.TempDir()
	clock := clockid.NewFixedClock(time.Now())
	var mu sync.Mutex
	var runs []string
	trig, err := New(clock, func(workflowID string, input map[string]interface{}) {
		mu.Lock()
		runs = append(runs, workflowID)
		mu.Unlock()
	})
	require.NoError(t, err)
	rec := &fireRecorder{}
	trig.WithMetrics(rec)
	trig.Start()
	defer trig.Stop()

	wf := triggerWorkflow("wf-1", dir, "*.txt")
	require.NoError(t, trig.Register(wf))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hi"), 0o644))

	waitFor(t, 2*time.Second, func() bool { return rec.count() >= 1 })

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, runs, "wf-1")
}

func TestRegister_NonMatchingPattern_DoesNotFire(t *testing.T) {
	dir := t.TempDir()
	clock := clockid.NewFixedClock(time.Now())
	trig, err := New(clock, func(string, map[string]interface{}) {})
	require.NoError(t, err)
	rec := &fireRecorder{}
	trig.WithMetrics(rec)
	trig.Start()
	defer trig.Stop()

	wf := triggerWorkflow("wf-2", dir, "*.csv")
	require.NoError(t, trig.Register(wf))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hi"), 0o644))
	time.Sleep(300 * time.Millisecond)

	assert.Equal(t, 0, rec.count())
}

func TestUnregister_RemovesWatch(t *testing.T) {
	dir := t.TempDir()
	clock := clockid.NewFixedClock(time.Now())
	trig, err := New(clock, func(string, map[string]interface{}) {})
	require.NoError(t, err)

	wf := triggerWorkflow("wf-3", dir, "*")
	require.NoError(t, trig.Register(wf))

	trig.mu.Lock()
	_, ok := trig.contexts[dir]
	trig.mu.Unlock()
	require.True(t, ok)

	trig.Unregister("wf-3")

	trig.mu.Lock()
	_, ok = trig.contexts[dir]
	trig.mu.Unlock()
	assert.False(t, ok)
}

func TestGlobToRegex_TranslatesWildcardsAndLiteralDots(t *testing.T) {
	re, err := globToRegex("report.*.csv")
	require.NoError(t, err)
	assert.True(t, re.MatchString("report.2024.csv"))
	assert.False(t, re.MatchString("reportX2024Xcsv"))
}

func TestEventTypeMatches_IsCaseInsensitiveSubstring(t *testing.T) {
	assert.True(t, eventTypeMatches([]string{"create", "modify"}, "CREATE"))
	assert.False(t, eventTypeMatches([]string{"delete"}, "CREATE"))
}
