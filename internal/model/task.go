package model

import (
	"fmt"
	"time"
)

// TaskStatus represents the state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task is waiting for an executor.
	TaskStatusPending TaskStatus = "PENDING"
	// TaskStatusRunning indicates an executor is working on the task.
	TaskStatusRunning TaskStatus = "RUNNING"
	// TaskStatusCompleted indicates the task finished successfully.
	TaskStatusCompleted TaskStatus = "COMPLETED"
	// TaskStatusFailed indicates the task failed.
	TaskStatusFailed TaskStatus = "FAILED"
	// TaskStatusCancelled indicates the task was cancelled by the user.
	TaskStatusCancelled TaskStatus = "CANCELLED"
)

// Terminal returns true when the status is final and no further execution
// callbacks are expected for the task.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	}
	return false
}

// Well-known task label keys.
const (
	// LabelType selects the delivery model, "local" tasks are handed to
	// polling local runners, anything else goes to container executors.
	LabelType = "type"
	// LabelLocalRunnerID pins a local task to a single registered runner.
	LabelLocalRunnerID = "localRunnerId"
	// LabelModelID carries an optional per-task model override.
	LabelModelID = "modelId"
	// LabelWorkspace names the runner workspace the task executes in.
	LabelWorkspace = "workspace"
)

// TaskTypeLocal is the LabelType value for local-runner tasks.
const TaskTypeLocal = "local"

// Task represents one user-visible unit of conversational work. It owns an
// ordered sequence of subtasks (USER/ASSISTANT turns).
type Task struct {
	ID           string
	UserID       int
	Title        string
	Status       TaskStatus
	Progress     int
	StatusPhase  string
	ErrorMessage string
	Result       string
	Labels       map[string]string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}

// Validate validates the task.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("id is required: %w", ErrNotValid)
	}
	if t.Title == "" {
		return fmt.Errorf("title is required: %w", ErrNotValid)
	}
	if t.Progress < 0 || t.Progress > 100 {
		return fmt.Errorf("progress must be in [0, 100]: %w", ErrNotValid)
	}
	if t.Status == TaskStatusPending && (t.Progress != 0 || t.CompletedAt != nil) {
		return fmt.Errorf("pending tasks must have zero progress and no completion time: %w", ErrNotValid)
	}
	return nil
}

// LocalRunnerID returns the runner the task is pinned to, if any.
func (t *Task) LocalRunnerID() string {
	return t.Labels[LabelLocalRunnerID]
}

// IsLocal returns true when the task is dispatched to local runners.
func (t *Task) IsLocal() bool {
	return t.Labels[LabelType] == TaskTypeLocal
}

// ModelOverride returns the per-task model override label, if any.
func (t *Task) ModelOverride() string {
	return t.Labels[LabelModelID]
}
