package live

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskStatus is the lifecycle state of a background task.
type TaskStatus string

const (
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// TaskResult is either a downloadable artifact reference or an inline
// payload for direct display, never both. The tracker only stores it;
// rendering is the consumer's decision.
type TaskResult struct {
	DownloadRef string         `json:"download_ref,omitempty"`
	Inline      map[string]any `json:"inline,omitempty"`
}

// BackgroundTask tracks one long-running tool execution, decoupled
// from the session request/response cycle.
type BackgroundTask struct {
	ID        string      `json:"id"`
	Tool      string      `json:"tool"`
	Status    TaskStatus  `json:"status"`
	Progress  int         `json:"progress"`
	Message   string      `json:"message,omitempty"`
	Result    *TaskResult `json:"result,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// TaskTracker owns the background task list. Only a task's own
// execution goroutine calls Update/Complete/Fail for that task;
// everything else reads snapshots. Terminal tasks are retained until
// the user removes them.
type TaskTracker struct {
	mu    sync.Mutex
	order []string
	tasks map[string]*BackgroundTask
	now   func() time.Time

	// onChange, when set, is invoked after every mutation with a
	// copy of the affected task. Used for UI refresh hooks.
	onChange func(BackgroundTask)
}

func NewTaskTracker() *TaskTracker {
	return &TaskTracker{
		tasks: make(map[string]*BackgroundTask),
		now:   time.Now,
	}
}

// OnChange registers a mutation hook. Must be set before tasks are
// created; the hook runs outside the tracker lock.
func (t *TaskTracker) OnChange(fn func(BackgroundTask)) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.onChange = fn
	t.mu.Unlock()
}

// Create registers a new running task for the named tool.
func (t *TaskTracker) Create(tool string) string {
	id := uuid.NewString()
	now := t.now()
	task := &BackgroundTask{
		ID:        id,
		Tool:      tool,
		Status:    TaskRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}
	t.mu.Lock()
	t.tasks[id] = task
	t.order = append(t.order, id)
	hook, snapshot := t.onChange, *task
	t.mu.Unlock()
	if hook != nil {
		hook(snapshot)
	}
	return id
}

// Update reports progress on a running task. Progress is clamped to
// 0-100 and never decreases. Updates against terminal tasks are
// dropped.
func (t *TaskTracker) Update(id string, progress int, message string) {
	t.mutate(id, func(task *BackgroundTask) bool {
		if task.Status.Terminal() {
			return false
		}
		if progress > 100 {
			progress = 100
		}
		if progress > task.Progress {
			task.Progress = progress
		}
		if message != "" {
			task.Message = message
		}
		return true
	})
}

// Complete moves a task to completed with an optional result.
func (t *TaskTracker) Complete(id, message string, result *TaskResult) {
	t.mutate(id, func(task *BackgroundTask) bool {
		if task.Status.Terminal() {
			return false
		}
		task.Status = TaskCompleted
		task.Progress = 100
		task.Message = message
		task.Result = result
		return true
	})
}

// Fail moves a task to failed.
func (t *TaskTracker) Fail(id, message string) {
	t.mutate(id, func(task *BackgroundTask) bool {
		if task.Status.Terminal() {
			return false
		}
		task.Status = TaskFailed
		task.Message = message
		return true
	})
}

func (t *TaskTracker) mutate(id string, fn func(*BackgroundTask) bool) {
	if t == nil {
		return
	}
	t.mu.Lock()
	task, ok := t.tasks[id]
	if !ok || !fn(task) {
		t.mu.Unlock()
		return
	}
	task.UpdatedAt = t.now()
	hook, snapshot := t.onChange, *task
	t.mu.Unlock()
	if hook != nil {
		hook(snapshot)
	}
}

// Get returns a copy of one task.
func (t *TaskTracker) Get(id string) (BackgroundTask, bool) {
	if t == nil {
		return BackgroundTask{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	task, ok := t.tasks[id]
	if !ok {
		return BackgroundTask{}, false
	}
	return *task, true
}

// Tasks returns copies of all tasks in creation order.
func (t *TaskTracker) Tasks() []BackgroundTask {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]BackgroundTask, 0, len(t.order))
	for _, id := range t.order {
		if task, ok := t.tasks[id]; ok {
			out = append(out, *task)
		}
	}
	return out
}

// Remove dismisses one terminal task. Running tasks cannot be
// removed.
func (t *TaskTracker) Remove(id string) bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	task, ok := t.tasks[id]
	if !ok || !task.Status.Terminal() {
		return false
	}
	delete(t.tasks, id)
	t.removeFromOrderLocked(id)
	return true
}

// ClearCompleted removes every terminal task and reports how many
// were dropped.
func (t *TaskTracker) ClearCompleted() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for _, id := range append([]string(nil), t.order...) {
		task, ok := t.tasks[id]
		if !ok || !task.Status.Terminal() {
			continue
		}
		delete(t.tasks, id)
		t.removeFromOrderLocked(id)
		removed++
	}
	return removed
}

func (t *TaskTracker) removeFromOrderLocked(id string) {
	for i, existing := range t.order {
		if existing == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			return
		}
	}
}
