package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/taskhive/taskhive/internal/log"
	"github.com/taskhive/taskhive/internal/model"
)

// RepositoryConfig is the configuration for the memory repository.
type RepositoryConfig struct {
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.Memory"})
	return nil
}

// Repository is an in-memory implementation of storage.Repository.
type Repository struct {
	tasks    map[string]model.Task
	subtasks map[string]model.Subtask
	runners  map[string]model.Runner
	audits   map[string]model.PRActionAudit
	mu       sync.RWMutex
	logger   log.Logger
}

// NewRepository creates a new memory repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Repository{
		tasks:    make(map[string]model.Task),
		subtasks: make(map[string]model.Subtask),
		runners:  make(map[string]model.Runner),
		audits:   make(map[string]model.PRActionAudit),
		logger:   cfg.Logger,
	}, nil
}

// CreateTask creates a new task in the repository.
func (r *Repository) CreateTask(ctx context.Context, t model.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[t.ID]; ok {
		return fmt.Errorf("task with id %s: %w", t.ID, model.ErrAlreadyExists)
	}

	r.tasks[t.ID] = copyTask(t)
	r.logger.Debugf("Created task in repository: %s", t.ID)

	return nil
}

// GetTask retrieves a task by ID.
func (r *Repository) GetTask(ctx context.Context, id string) (*model.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	task, ok := r.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, model.ErrNotFound)
	}

	taskCopy := copyTask(task)
	return &taskCopy, nil
}

// ListTasksByUser returns the user's tasks, newest first.
func (r *Repository) ListTasksByUser(ctx context.Context, userID int) ([]model.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var tasks []model.Task
	for _, task := range r.tasks {
		if task.UserID == userID {
			tasks = append(tasks, copyTask(task))
		}
	}

	sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAt.After(tasks[j].CreatedAt) })

	return tasks, nil
}

// ListPendingTasks returns PENDING tasks across all users, oldest first.
func (r *Repository) ListPendingTasks(ctx context.Context) ([]model.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var tasks []model.Task
	for _, task := range r.tasks {
		if task.Status == model.TaskStatusPending {
			tasks = append(tasks, copyTask(task))
		}
	}

	sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAt.Before(tasks[j].CreatedAt) })

	return tasks, nil
}

// UpdateTask updates an existing task.
func (r *Repository) UpdateTask(ctx context.Context, t model.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[t.ID]; !ok {
		return fmt.Errorf("task %s: %w", t.ID, model.ErrNotFound)
	}

	r.tasks[t.ID] = copyTask(t)
	r.logger.Debugf("Updated task in repository: %s", t.ID)

	return nil
}

// CreateSubtask creates a new subtask in the repository.
func (r *Repository) CreateSubtask(ctx context.Context, s model.Subtask) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subtasks[s.ID]; ok {
		return fmt.Errorf("subtask with id %s: %w", s.ID, model.ErrAlreadyExists)
	}

	r.subtasks[s.ID] = copySubtask(s)
	r.logger.Debugf("Created subtask in repository: %s", s.ID)

	return nil
}

// GetSubtask retrieves a subtask by ID.
func (r *Repository) GetSubtask(ctx context.Context, id string) (*model.Subtask, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subtask, ok := r.subtasks[id]
	if !ok {
		return nil, fmt.Errorf("subtask %s: %w", id, model.ErrNotFound)
	}

	subtaskCopy := copySubtask(subtask)
	return &subtaskCopy, nil
}

// GetSubtaskByMessageID retrieves a subtask through the per-task message index.
func (r *Repository) GetSubtaskByMessageID(ctx context.Context, taskID string, messageID int) (*model.Subtask, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, subtask := range r.subtasks {
		if subtask.TaskID == taskID && subtask.MessageID == messageID {
			subtaskCopy := copySubtask(subtask)
			return &subtaskCopy, nil
		}
	}

	return nil, fmt.Errorf("subtask with message id %d in task %s: %w", messageID, taskID, model.ErrNotFound)
}

// ListSubtasksByTask returns the task's subtasks in message order.
func (r *Repository) ListSubtasksByTask(ctx context.Context, taskID string) ([]model.Subtask, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var subtasks []model.Subtask
	for _, subtask := range r.subtasks {
		if subtask.TaskID == taskID {
			subtasks = append(subtasks, copySubtask(subtask))
		}
	}

	sort.Slice(subtasks, func(i, j int) bool { return subtasks[i].MessageID < subtasks[j].MessageID })

	return subtasks, nil
}

// UpdateSubtask updates an existing subtask.
func (r *Repository) UpdateSubtask(ctx context.Context, s model.Subtask) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subtasks[s.ID]; !ok {
		return fmt.Errorf("subtask %s: %w", s.ID, model.ErrNotFound)
	}

	r.subtasks[s.ID] = copySubtask(s)
	r.logger.Debugf("Updated subtask in repository: %s", s.ID)

	return nil
}

// UpsertRunner creates or refreshes a runner.
func (r *Repository) UpsertRunner(ctx context.Context, runner model.Runner) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.runners[runner.ID] = copyRunner(runner)
	r.logger.Debugf("Upserted runner in repository: %s", runner.ID)

	return nil
}

// GetRunner retrieves a runner by ID.
func (r *Repository) GetRunner(ctx context.Context, id string) (*model.Runner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	runner, ok := r.runners[id]
	if !ok {
		return nil, fmt.Errorf("runner %s: %w", id, model.ErrNotFound)
	}

	runnerCopy := copyRunner(runner)
	return &runnerCopy, nil
}

// ListRunnersByUser returns the user's runners sorted by name.
func (r *Repository) ListRunnersByUser(ctx context.Context, userID int) ([]model.Runner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var runners []model.Runner
	for _, runner := range r.runners {
		if runner.UserID == userID {
			runners = append(runners, copyRunner(runner))
		}
	}

	sort.Slice(runners, func(i, j int) bool { return runners[i].Name < runners[j].Name })

	return runners, nil
}

// CreatePRActionAudit creates a new audit row, failing on a duplicate
// (user id, idempotency key) pair.
func (r *Repository) CreatePRActionAudit(ctx context.Context, a model.PRActionAudit) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := auditKey(a.UserID, a.IdempotencyKey)
	if _, ok := r.audits[key]; ok {
		return fmt.Errorf("audit for key %s: %w", a.IdempotencyKey, model.ErrAlreadyExists)
	}

	r.audits[key] = a
	r.logger.Debugf("Created PR action audit in repository: %s", a.ID)

	return nil
}

// GetPRActionAudit retrieves an audit row by its idempotency pair.
func (r *Repository) GetPRActionAudit(ctx context.Context, userID int, idempotencyKey string) (*model.PRActionAudit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	audit, ok := r.audits[auditKey(userID, idempotencyKey)]
	if !ok {
		return nil, fmt.Errorf("audit for key %s: %w", idempotencyKey, model.ErrNotFound)
	}

	auditCopy := audit
	return &auditCopy, nil
}

// UpdatePRActionAudit updates an existing audit row.
func (r *Repository) UpdatePRActionAudit(ctx context.Context, a model.PRActionAudit) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := auditKey(a.UserID, a.IdempotencyKey)
	if _, ok := r.audits[key]; !ok {
		return fmt.Errorf("audit for key %s: %w", a.IdempotencyKey, model.ErrNotFound)
	}

	r.audits[key] = a
	r.logger.Debugf("Updated PR action audit in repository: %s", a.ID)

	return nil
}

func auditKey(userID int, idempotencyKey string) string {
	return fmt.Sprintf("%d/%s", userID, idempotencyKey)
}

// The maps inside models are shared mutable state, copy them on the way in
// and out so callers cannot alias repository internals.

func copyTask(t model.Task) model.Task {
	if t.Labels != nil {
		labels := make(map[string]string, len(t.Labels))
		for k, v := range t.Labels {
			labels[k] = v
		}
		t.Labels = labels
	}
	return t
}

func copySubtask(s model.Subtask) model.Subtask {
	s.Result = s.Result.Clone()
	return s
}

func copyRunner(r model.Runner) model.Runner {
	if r.Capabilities != nil {
		caps := make(map[string]interface{}, len(r.Capabilities))
		for k, v := range r.Capabilities {
			caps[k] = v
		}
		r.Capabilities = caps
	}
	if r.Workspaces != nil {
		r.Workspaces = append([]interface{}{}, r.Workspaces...)
	}
	return r
}
