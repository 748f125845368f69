// Package dispatch hands pending work to executors and ingests their
// callbacks. It is the single writer of subtask results and the only place
// task progress and status are recomputed.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/taskhive/taskhive/internal/log"
	"github.com/taskhive/taskhive/internal/model"
	"github.com/taskhive/taskhive/internal/progress"
	"github.com/taskhive/taskhive/internal/resultmerge"
	"github.com/taskhive/taskhive/internal/storage"
)

// DefaultExecutorNamespace is recorded when a callback does not name one.
const DefaultExecutorNamespace = "default"

// ServiceConfig is the configuration for the dispatch service.
type ServiceConfig struct {
	Repository storage.Repository
	Logger     log.Logger

	NowFn func() time.Time
	// UUIDFn mints session ids for ClaudeCode cold starts.
	UUIDFn func() string
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Dispatch"})
	if c.NowFn == nil {
		c.NowFn = func() time.Time { return time.Now().UTC() }
	}
	if c.UUIDFn == nil {
		c.UUIDFn = uuid.NewString
	}
	return nil
}

// Service handles work dispatch and callback ingestion.
type Service struct {
	repo   storage.Repository
	logger log.Logger
	nowFn  func() time.Time
	uuidFn func() string
}

// NewService creates a new dispatch service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger,
		nowFn:  cfg.NowFn,
		uuidFn: cfg.UUIDFn,
	}, nil
}

// WorkItem is one dispatchable unit: the task plus the ASSISTANT subtask the
// executor must run.
type WorkItem struct {
	Task    model.Task
	Subtask model.Subtask
}

// PollOptions are the options for a local runner poll.
type PollOptions struct {
	RunnerID string
	UserID   int
	// Status filters the dispatched tasks, PENDING when empty.
	Status model.TaskStatus
	// Limit caps the number of returned items, zero means no cap.
	Limit int
}

// Poll returns the pending local work pinned to the runner. Dispatch does not
// mark anything RUNNING, only executor callbacks move state.
func (s *Service) Poll(ctx context.Context, opts PollOptions) ([]WorkItem, error) {
	runner, err := s.repo.GetRunner(ctx, opts.RunnerID)
	if err != nil {
		return nil, fmt.Errorf("could not get runner: %w", err)
	}
	if runner.UserID != opts.UserID {
		return nil, fmt.Errorf("runner %s does not belong to user %d: %w", opts.RunnerID, opts.UserID, model.ErrNotAuthorized)
	}
	if runner.Disabled {
		return nil, fmt.Errorf("runner %s is disabled: %w", opts.RunnerID, model.ErrNotAuthorized)
	}

	status := opts.Status
	if status == "" {
		status = model.TaskStatusPending
	}

	tasks, err := s.repo.ListTasksByUser(ctx, opts.UserID)
	if err != nil {
		return nil, fmt.Errorf("could not list tasks: %w", err)
	}

	var items []WorkItem
	for _, task := range tasks {
		if task.Status != status || !task.IsLocal() || task.LocalRunnerID() != runner.ID {
			continue
		}

		sub, err := s.pendingAssistant(ctx, task.ID)
		if err != nil {
			return nil, err
		}
		if sub == nil {
			continue
		}

		sub.Result = s.sanitizeResumeContext(sub.Result)
		if err := s.repo.UpdateSubtask(ctx, *sub); err != nil {
			return nil, fmt.Errorf("could not update subtask: %w", err)
		}

		items = append(items, WorkItem{Task: task, Subtask: *sub})
		if opts.Limit > 0 && len(items) >= opts.Limit {
			break
		}
	}

	s.logger.WithCtxValues(ctx).Debugf("Dispatched %d work items to runner %s", len(items), opts.RunnerID)

	return items, nil
}

// PollContainers returns pending container work across all users. Everything
// not labeled local is container work, the executor manager launches one
// container per item.
func (s *Service) PollContainers(ctx context.Context) ([]WorkItem, error) {
	tasks, err := s.repo.ListPendingTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not list pending tasks: %w", err)
	}

	var items []WorkItem
	for _, task := range tasks {
		if task.IsLocal() {
			continue
		}

		sub, err := s.pendingAssistant(ctx, task.ID)
		if err != nil {
			return nil, err
		}
		if sub == nil {
			continue
		}

		sub.Result = s.sanitizeResumeContext(sub.Result)
		if err := s.repo.UpdateSubtask(ctx, *sub); err != nil {
			return nil, fmt.Errorf("could not update subtask: %w", err)
		}

		items = append(items, WorkItem{Task: task, Subtask: *sub})
	}

	return items, nil
}

// pendingAssistant returns the newest PENDING assistant subtask of the task.
func (s *Service) pendingAssistant(ctx context.Context, taskID string) (*model.Subtask, error) {
	subtasks, err := s.repo.ListSubtasksByTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("could not list subtasks: %w", err)
	}

	for i := len(subtasks) - 1; i >= 0; i-- {
		sub := subtasks[i]
		if sub.Role == model.SubtaskRoleAssistant && sub.Status == model.SubtaskStatusPending {
			return &sub, nil
		}
	}
	return nil, nil
}

// sanitizeResumeContext makes the retry mode trustworthy before the work
// leaves the server: a resume without a session token cannot work, so it is
// downgraded to a cold start. ClaudeCode cold starts get their session id
// minted here because the CLI needs it up front.
func (s *Service) sanitizeResumeContext(result model.Result) model.Result {
	out := result.Clone()
	if out == nil {
		out = model.Result{}
	}

	mode := model.RetryMode(out.String(model.ResultKeyRetryMode))
	if mode == model.RetryModeResume && out.SessionToken() == "" {
		out[model.ResultKeyRetryMode] = string(model.RetryModeNewSession)
		mode = model.RetryModeNewSession
	}
	if mode == model.RetryModeNewSession && out.ShellType() == model.ShellTypeClaudeCode {
		out[model.ResultKeySessionID] = s.uuidFn()
	}

	return out
}

// ApplyUpdate ingests one executor callback. It merges the partial result,
// advances the subtask state machine, and recomputes the owning task.
// Callbacks may arrive duplicated or late, applying them is idempotent and a
// terminal subtask never regresses.
func (s *Service) ApplyUpdate(ctx context.Context, update model.SubtaskUpdate) (*model.Subtask, error) {
	sub, err := s.repo.GetSubtask(ctx, update.SubtaskID)
	if err != nil {
		return nil, fmt.Errorf("could not get subtask: %w", err)
	}

	if sub.Status.Terminal() && !update.Status.Terminal() {
		s.logger.WithCtxValues(ctx).Debugf("Ignoring late callback for terminal subtask %s", sub.ID)
		return sub, nil
	}

	now := s.nowFn()
	sub.Result = resultmerge.Merge(sub.Result, update.Result)
	if update.Status != "" {
		sub.Status = update.Status
	}
	if update.Progress > sub.Progress {
		sub.Progress = update.Progress
	}
	if update.ExecutorName != "" {
		sub.ExecutorName = update.ExecutorName
	}
	if sub.ExecutorNamespace == "" {
		sub.ExecutorNamespace = DefaultExecutorNamespace
	}
	if update.ExecutorNamespace != "" {
		sub.ExecutorNamespace = update.ExecutorNamespace
	}
	if errMsg := sub.Result.String(model.ResultKeyError); errMsg != "" {
		sub.ErrorMessage = errMsg
	}
	if sub.Status.Terminal() {
		sub.Progress = 100
		if sub.CompletedAt == nil {
			sub.CompletedAt = &now
		}
	}
	sub.UpdatedAt = now

	if err := s.repo.UpdateSubtask(ctx, *sub); err != nil {
		return nil, fmt.Errorf("could not update subtask: %w", err)
	}

	if err := s.recomputeTask(ctx, sub.TaskID, *sub, update); err != nil {
		return nil, err
	}

	return sub, nil
}

// recomputeTask folds the new subtask state into the owning task: aggregate
// status, monotonic progress, surfaced error and final value.
func (s *Service) recomputeTask(ctx context.Context, taskID string, changed model.Subtask, update model.SubtaskUpdate) error {
	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("could not get task: %w", err)
	}
	if task.Status.Terminal() {
		return nil
	}

	subtasks, err := s.repo.ListSubtasksByTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("could not list subtasks: %w", err)
	}

	var total, completed int
	var anyFailed, anyCancelled bool
	allTerminal := true
	for _, sub := range subtasks {
		if sub.Role != model.SubtaskRoleAssistant {
			continue
		}
		total++
		switch {
		case sub.Status.Terminal():
			completed++
			anyFailed = anyFailed || sub.Status == model.SubtaskStatusFailed
			anyCancelled = anyCancelled || sub.Status == model.SubtaskStatusCancelled
		default:
			allTerminal = false
		}
	}

	newStatus := model.TaskStatusRunning
	switch {
	case allTerminal && anyFailed:
		newStatus = model.TaskStatusFailed
	case allTerminal && anyCancelled:
		newStatus = model.TaskStatusCancelled
	case allTerminal:
		newStatus = model.TaskStatusCompleted
	}

	runningProgress := 0
	if !changed.Status.Terminal() {
		runningProgress = update.Progress
	}
	task.Progress = progress.Calculate(progress.Input{
		TotalSubtasks:     total,
		CompletedSubtasks: completed,
		RunningProgress:   runningProgress,
		PreviousProgress:  task.Progress,
		Status:            newStatus,
	})

	task.Status = newStatus
	if newStatus == model.TaskStatusFailed {
		task.ErrorMessage = changed.ErrorMessage
	}
	if newStatus == model.TaskStatusCompleted {
		task.Result = changed.Result.String(model.ResultKeyValue)
	}
	now := s.nowFn()
	task.UpdatedAt = now
	if newStatus.Terminal() && task.CompletedAt == nil {
		task.CompletedAt = &now
	}

	if err := s.repo.UpdateTask(ctx, *task); err != nil {
		return fmt.Errorf("could not update task: %w", err)
	}

	s.logger.WithCtxValues(ctx).Debugf("Recomputed task %s: status=%s progress=%d", task.ID, task.Status, task.Progress)

	return nil
}
