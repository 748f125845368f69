package storage

import (
	"context"

	"github.com/taskhive/taskhive/internal/model"
)

// TaskRepository is the interface for task persistence.
type TaskRepository interface {
	CreateTask(ctx context.Context, t model.Task) error
	GetTask(ctx context.Context, id string) (*model.Task, error)
	ListTasksByUser(ctx context.Context, userID int) ([]model.Task, error)
	// ListPendingTasks returns PENDING tasks across all users, the container
	// executor manager claims its work from this list.
	ListPendingTasks(ctx context.Context) ([]model.Task, error)
	UpdateTask(ctx context.Context, t model.Task) error
}

// SubtaskRepository is the interface for subtask persistence.
type SubtaskRepository interface {
	CreateSubtask(ctx context.Context, s model.Subtask) error
	GetSubtask(ctx context.Context, id string) (*model.Subtask, error)
	// GetSubtaskByMessageID resolves a subtask through the per-task message
	// sequence. Retry context lookups depend on this index because ParentID
	// stores message ids, not row ids.
	GetSubtaskByMessageID(ctx context.Context, taskID string, messageID int) (*model.Subtask, error)
	ListSubtasksByTask(ctx context.Context, taskID string) ([]model.Subtask, error)
	UpdateSubtask(ctx context.Context, s model.Subtask) error
}

// RunnerRepository is the interface for local runner persistence.
type RunnerRepository interface {
	// UpsertRunner registers the runner on first sight and refreshes it on
	// every later heartbeat.
	UpsertRunner(ctx context.Context, r model.Runner) error
	GetRunner(ctx context.Context, id string) (*model.Runner, error)
	ListRunnersByUser(ctx context.Context, userID int) ([]model.Runner, error)
}

// PRAuditRepository is the interface for PR action audit persistence. The
// (user id, idempotency key) pair is unique, concurrent inserts for the same
// pair must surface model.ErrAlreadyExists.
type PRAuditRepository interface {
	CreatePRActionAudit(ctx context.Context, a model.PRActionAudit) error
	GetPRActionAudit(ctx context.Context, userID int, idempotencyKey string) (*model.PRActionAudit, error)
	UpdatePRActionAudit(ctx context.Context, a model.PRActionAudit) error
}

// Repository aggregates everything the API server persists.
type Repository interface {
	TaskRepository
	SubtaskRepository
	RunnerRepository
	PRAuditRepository
}
