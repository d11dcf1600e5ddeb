// Package fileevent implements the File-Event Trigger (C9): an
// fsnotify-backed watcher that submits an execution whenever a file
// matching a workflow's watchPath/filePattern/eventTypes changes.
package fileevent

import (
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/flowforge/enginecore/internal/clockid"
	"github.com/flowforge/enginecore/internal/engine"
	"github.com/flowforge/enginecore/internal/platform/logger"
)

const pollTimeout = 500 * time.Millisecond

// WatcherContext is everything the event loop needs to decide whether
// a raw fsnotify event belongs to one registered workflow.
type WatcherContext struct {
	WorkflowID   string
	WorkflowName string
	WatchPath    string
	FilePattern  string
	EventTypes   []string

	pattern *regexp.Regexp
}

// FireRecorder observes each file-event fire, for operational metrics.
type FireRecorder interface {
	Fired(workflowID, eventType string)
}

type noopRecorder struct{}

func (noopRecorder) Fired(string, string) {}

// Trigger runs one fsnotify watcher serving every registered workflow.
type Trigger struct {
	clock   clockid.Clock
	run     func(workflowID string, input map[string]interface{})
	metrics FireRecorder
	log     logger.Logger

	watcher *fsnotify.Watcher

	mu       sync.Mutex
	contexts map[string]*WatcherContext // watchPath -> context
	stop     chan struct{}
}

// New opens the OS-level watch service. Call Start to begin the event loop.
func New(clock clockid.Clock, run func(workflowID string, input map[string]interface{})) (*Trigger, error) {
	if clock == nil {
		clock = clockid.SystemClock{}
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Trigger{
		clock:    clock,
		run:      run,
		metrics:  noopRecorder{},
		log:      logger.NewNoop(),
		watcher:  w,
		contexts: make(map[string]*WatcherContext),
		stop:     make(chan struct{}),
	}, nil
}

// WithMetrics attaches a FireRecorder, returning the Trigger for chaining.
func (t *Trigger) WithMetrics(m FireRecorder) *Trigger {
	if m != nil {
		t.metrics = m
	}
	return t
}

// WithLogger attaches the ambient logger, returning the Trigger for
// chaining. Register surfaces most failures by returning nil rather
// than an error (the workflow is simply not watched), so this is the
// only way an operator learns why.
func (t *Trigger) WithLogger(l logger.Logger) *Trigger {
	if l != nil {
		t.log = l
	}
	return t
}

// globToRegex translates a glob filePattern to the spec's rule:
// "." -> literal, "*" -> ".*", "?" -> ".".
func globToRegex(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '.':
			b.WriteString(`\.`)
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

// Register begins watching w's watchPath. Re-registering the same
// workflow cancels the prior watch first (idempotent).
func (t *Trigger) Register(w *engine.Workflow) error {
	if w.TriggerType != engine.TriggerFileEvent {
		return nil
	}

	var watchPath, filePattern string
	var eventTypes []string
	for _, n := range w.TriggerNodes() {
		if p, ok := n.Parameters["watchPath"].(string); ok {
			watchPath = p
		}
		if p, ok := n.Parameters["filePattern"].(string); ok {
			filePattern = p
		}
		if p, ok := n.Parameters["eventTypes"].(string); ok {
			for _, et := range strings.Split(p, ",") {
				eventTypes = append(eventTypes, strings.TrimSpace(et))
			}
		}
		break
	}
	if filePattern == "" {
		filePattern = "*"
	}
	if len(eventTypes) == 0 {
		eventTypes = []string{"CREATE", "MODIFY", "DELETE"}
	}
	if watchPath == "" {
		t.log.Error("fileevent: missing watchPath", "workflowId", w.ID)
		return nil
	}

	t.Unregister(w.ID)

	pattern, err := globToRegex(filePattern)
	if err != nil {
		t.log.Error("fileevent: invalid filePattern", "workflowId", w.ID, "filePattern", filePattern, "error", err)
		return nil
	}

	if err := t.watcher.Add(watchPath); err != nil {
		t.log.Error("fileevent: watch failed", "workflowId", w.ID, "watchPath", watchPath, "error", err)
		return nil
	}

	t.mu.Lock()
	t.contexts[watchPath] = &WatcherContext{
		WorkflowID: w.ID, WorkflowName: w.Name,
		WatchPath: watchPath, FilePattern: filePattern, EventTypes: eventTypes,
		pattern: pattern,
	}
	t.mu.Unlock()
	return nil
}

// Unregister removes any watch associated with workflowID.
func (t *Trigger) Unregister(workflowID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for path, ctx := range t.contexts {
		if ctx.WorkflowID == workflowID {
			t.watcher.Remove(path)
			delete(t.contexts, path)
		}
	}
}

// Start runs the event loop on its own goroutine until Stop is called.
func (t *Trigger) Start() {
	go t.loop()
}

func (t *Trigger) Stop() {
	close(t.stop)
	t.watcher.Close()
}

func (t *Trigger) loop() {
	for {
		select {
		case <-t.stop:
			return
		case event, ok := <-t.watcher.Events:
			if !ok {
				return
			}
			t.handle(event)
		case <-time.After(pollTimeout):
			// periodic wakeup; nothing to do beyond keeping the
			// select alive for the stop channel.
		case err, ok := <-t.watcher.Errors:
			if !ok {
				return
			}
			t.log.Error("fileevent: watcher error", "error", err)
		}
	}
}

func (t *Trigger) handle(event fsnotify.Event) {
	dir := filepath.Dir(event.Name)
	name := filepath.Base(event.Name)

	t.mu.Lock()
	ctx, ok := t.contexts[dir]
	t.mu.Unlock()
	if !ok {
		return
	}

	if !ctx.pattern.MatchString(name) {
		return
	}

	kind := eventKind(event.Op)
	if !eventTypeMatches(ctx.EventTypes, kind) {
		return
	}

	t.run(ctx.WorkflowID, map[string]interface{}{
		"triggeredAt": t.clock.Now(),
		"triggerType": "file_event",
		"eventType":   kind,
		"filePath":    event.Name,
		"fileName":    name,
		"directory":   dir,
	})
	t.metrics.Fired(ctx.WorkflowID, kind)
}

func eventKind(op fsnotify.Op) string {
	switch {
	case op&fsnotify.Create != 0:
		return "CREATE"
	case op&fsnotify.Write != 0:
		return "MODIFY"
	case op&fsnotify.Remove != 0, op&fsnotify.Rename != 0:
		return "DELETE"
	default:
		return strings.TrimPrefix(op.String(), "ENTRY_")
	}
}

func eventTypeMatches(eventTypes []string, kind string) bool {
	kind = strings.ToUpper(kind)
	for _, et := range eventTypes {
		if strings.Contains(kind, strings.ToUpper(et)) || strings.Contains(strings.ToUpper(et), kind) {
			return true
		}
	}
	return false
}
