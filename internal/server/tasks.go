package server

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle status of a task.
type Status string

// Task status values.
const (
	StatusSubmitted Status = "submitted"
	StatusRunning   Status = "running"
	StatusStopped   Status = "stopped"
	StatusSuccess   Status = "success"
)

// Finished reports whether the task will produce no more progress.
func (s Status) Finished() bool {
	return s == StatusStopped || s == StatusSuccess
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusSubmitted, StatusRunning, StatusStopped, StatusSuccess:
		return true
	}
	return false
}

// ErrTaskNotFound is returned for operations on an unknown task ID.
var ErrTaskNotFound = errors.New("task not found")

// Task is a snapshot of one task.
type Task struct {
	ID        string    `json:"task_id"`
	Status    Status    `json:"status"`
	Progress  []string  `json:"progress"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProgressHTML renders the progress lines the way the legacy endpoint does:
// every line trimmed and followed by <br/>.
func (t Task) ProgressHTML() string {
	var sb strings.Builder
	for _, line := range t.Progress {
		sb.WriteString(strings.TrimSpace(line))
		sb.WriteString("<br/>")
	}
	return sb.String()
}

// TaskStore holds tasks in memory. It is safe for concurrent use.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*Task
	now   func() time.Time
}

// NewTaskStore creates an empty TaskStore.
func NewTaskStore() *TaskStore {
	return &TaskStore{
		tasks: make(map[string]*Task),
		now:   time.Now,
	}
}

// Create adds a submitted task with a fresh UUID.
func (s *TaskStore) Create() Task {
	task, _ := s.CreateWithID(uuid.NewString())
	return task
}

// CreateWithID adds a submitted task under id.
func (s *TaskStore) CreateWithID(id string) (Task, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Task{}, errors.New("task ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[id]; exists {
		return Task{}, fmt.Errorf("task %s already exists", id)
	}

	now := s.now()
	task := &Task{
		ID:        id,
		Status:    StatusSubmitted,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.tasks[id] = task
	return task.snapshot(), nil
}

// Get returns a snapshot of the task.
func (s *TaskStore) Get(id string) (Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		return Task{}, false
	}
	return task.snapshot(), true
}

// AppendProgress adds progress lines to the task.
func (s *TaskStore) AppendProgress(id string, lines ...string) error {
	return s.update(id, func(t *Task) {
		t.Progress = append(t.Progress, lines...)
	})
}

// SetStatus changes the task status.
func (s *TaskStore) SetStatus(id string, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("invalid status %q", status)
	}
	return s.update(id, func(t *Task) {
		t.Status = status
	})
}

// Reset clears the task progress and marks it submitted again.
func (s *TaskStore) Reset(id string) error {
	return s.update(id, func(t *Task) {
		t.Progress = nil
		t.Status = StatusSubmitted
	})
}

// List returns all tasks, oldest first.
func (s *TaskStore) List() []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		tasks = append(tasks, task.snapshot())
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID < tasks[j].ID
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	return tasks
}

func (s *TaskStore) update(id string, fn func(*Task)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	fn(task)
	task.UpdatedAt = s.now()
	return nil
}

func (t *Task) snapshot() Task {
	cp := *t
	cp.Progress = append([]string{}, t.Progress...)
	return cp
}
