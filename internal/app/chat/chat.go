// Package chat owns the task conversation lifecycle: creating tasks, appending
// follow-up messages, cancelling, and reading state back for the API.
package chat

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"github.com/taskhive/taskhive/internal/log"
	"github.com/taskhive/taskhive/internal/model"
	"github.com/taskhive/taskhive/internal/storage"
)

// ServiceConfig is the configuration for the chat service.
type ServiceConfig struct {
	Repository storage.Repository
	Logger     log.Logger

	// IDFn and NowFn exist for deterministic tests.
	IDFn  func() string
	NowFn func() time.Time
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Chat"})
	if c.IDFn == nil {
		c.IDFn = func() string { return ulid.MustNew(ulid.Now(), rand.Reader).String() }
	}
	if c.NowFn == nil {
		c.NowFn = func() time.Time { return time.Now().UTC() }
	}
	return nil
}

// Service handles task conversation business logic.
type Service struct {
	repo   storage.Repository
	logger log.Logger
	idFn   func() string
	nowFn  func() time.Time
}

// NewService creates a new chat service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger,
		idFn:   cfg.IDFn,
		nowFn:  cfg.NowFn,
	}, nil
}

// CreateTaskOptions are the options for creating a task.
type CreateTaskOptions struct {
	UserID int
	Title  string
	Prompt string
	Labels map[string]string
}

// CreateTask creates a task with its first conversation turn: the USER message
// and the PENDING ASSISTANT subtask an executor will claim.
func (s *Service) CreateTask(ctx context.Context, opts CreateTaskOptions) (*model.Task, error) {
	if opts.Prompt == "" {
		return nil, fmt.Errorf("prompt is required: %w", model.ErrNotValid)
	}

	now := s.nowFn()
	task := model.Task{
		ID:        s.idFn(),
		UserID:    opts.UserID,
		Title:     opts.Title,
		Status:    model.TaskStatusPending,
		Labels:    opts.Labels,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if task.Title == "" {
		task.Title = truncateTitle(opts.Prompt)
	}
	if err := task.Validate(); err != nil {
		return nil, fmt.Errorf("invalid task: %w", err)
	}

	if err := s.repo.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("could not save task: %w", err)
	}

	if err := s.appendTurn(ctx, task, opts.Prompt, 1); err != nil {
		return nil, err
	}

	s.logger.WithCtxValues(ctx).Infof("Created task: %s", task.ID)

	return &task, nil
}

// AppendMessageOptions are the options for a follow-up message.
type AppendMessageOptions struct {
	TaskID string
	UserID int
	Prompt string
}

// AppendMessage adds a follow-up USER message plus a fresh ASSISTANT subtask
// and rewinds the task to PENDING so it gets dispatched again.
func (s *Service) AppendMessage(ctx context.Context, opts AppendMessageOptions) (*model.Task, error) {
	if opts.Prompt == "" {
		return nil, fmt.Errorf("prompt is required: %w", model.ErrNotValid)
	}

	task, err := s.ownedTask(ctx, opts.TaskID, opts.UserID)
	if err != nil {
		return nil, err
	}
	if task.Status == model.TaskStatusRunning {
		return nil, fmt.Errorf("task %s is still running: %w", task.ID, model.ErrConflict)
	}

	subtasks, err := s.repo.ListSubtasksByTask(ctx, task.ID)
	if err != nil {
		return nil, fmt.Errorf("could not list subtasks: %w", err)
	}
	nextMessageID := 1
	if n := len(subtasks); n > 0 {
		nextMessageID = subtasks[n-1].MessageID + 1
	}

	if err := s.appendTurn(ctx, *task, opts.Prompt, nextMessageID); err != nil {
		return nil, err
	}

	task.Status = model.TaskStatusPending
	task.Progress = 0
	task.ErrorMessage = ""
	task.Result = ""
	task.CompletedAt = nil
	task.UpdatedAt = s.nowFn()
	if err := s.repo.UpdateTask(ctx, *task); err != nil {
		return nil, fmt.Errorf("could not update task: %w", err)
	}

	s.logger.WithCtxValues(ctx).Infof("Appended message %d to task: %s", nextMessageID, task.ID)

	return task, nil
}

// appendTurn writes the USER message and its ASSISTANT sibling. Both share
// the user message id as parent.
func (s *Service) appendTurn(ctx context.Context, task model.Task, prompt string, userMessageID int) error {
	now := s.nowFn()

	user := model.Subtask{
		ID:        s.idFn(),
		TaskID:    task.ID,
		UserID:    task.UserID,
		Title:     task.Title,
		Role:      model.SubtaskRoleUser,
		Status:    model.SubtaskStatusCompleted,
		Progress:  100,
		MessageID: userMessageID,
		ParentID:  userMessageID,
		Prompt:    prompt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateSubtask(ctx, user); err != nil {
		return fmt.Errorf("could not save user message: %w", err)
	}

	assistant := model.Subtask{
		ID:        s.idFn(),
		TaskID:    task.ID,
		UserID:    task.UserID,
		Title:     task.Title,
		Role:      model.SubtaskRoleAssistant,
		Status:    model.SubtaskStatusPending,
		MessageID: userMessageID + 1,
		ParentID:  userMessageID,
		Prompt:    prompt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateSubtask(ctx, assistant); err != nil {
		return fmt.Errorf("could not save assistant subtask: %w", err)
	}

	return nil
}

// GetTask returns the user's task.
func (s *Service) GetTask(ctx context.Context, taskID string, userID int) (*model.Task, error) {
	return s.ownedTask(ctx, taskID, userID)
}

// ListTasks returns the user's tasks, newest first.
func (s *Service) ListTasks(ctx context.Context, userID int) ([]model.Task, error) {
	tasks, err := s.repo.ListTasksByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("could not list tasks: %w", err)
	}
	return tasks, nil
}

// ListMessages returns the task's conversation in message order.
func (s *Service) ListMessages(ctx context.Context, taskID string, userID int) ([]model.Subtask, error) {
	if _, err := s.ownedTask(ctx, taskID, userID); err != nil {
		return nil, err
	}

	subtasks, err := s.repo.ListSubtasksByTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("could not list subtasks: %w", err)
	}
	return subtasks, nil
}

// CancelTask cancels a live task and all its non-terminal subtasks. Polling
// executors observe the CANCELLED status and stop their agents.
func (s *Service) CancelTask(ctx context.Context, taskID string, userID int) (*model.Task, error) {
	task, err := s.ownedTask(ctx, taskID, userID)
	if err != nil {
		return nil, err
	}
	if task.Status.Terminal() {
		return nil, fmt.Errorf("task %s already finished: %w", task.ID, model.ErrConflict)
	}

	subtasks, err := s.repo.ListSubtasksByTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("could not list subtasks: %w", err)
	}

	now := s.nowFn()
	for _, sub := range subtasks {
		if sub.Status.Terminal() {
			continue
		}
		sub.Status = model.SubtaskStatusCancelled
		sub.Progress = 100
		sub.UpdatedAt = now
		sub.CompletedAt = &now
		if err := s.repo.UpdateSubtask(ctx, sub); err != nil {
			return nil, fmt.Errorf("could not cancel subtask %s: %w", sub.ID, err)
		}
	}

	task.Status = model.TaskStatusCancelled
	task.Progress = 100
	task.UpdatedAt = now
	task.CompletedAt = &now
	if err := s.repo.UpdateTask(ctx, *task); err != nil {
		return nil, fmt.Errorf("could not update task: %w", err)
	}

	s.logger.WithCtxValues(ctx).Infof("Cancelled task: %s", task.ID)

	return task, nil
}

func (s *Service) ownedTask(ctx context.Context, taskID string, userID int) (*model.Task, error) {
	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("could not get task: %w", err)
	}
	if task.UserID != userID {
		return nil, fmt.Errorf("task %s does not belong to user %d: %w", taskID, userID, model.ErrNotAuthorized)
	}
	return task, nil
}

const maxGeneratedTitle = 80

func truncateTitle(prompt string) string {
	title := prompt
	for i, r := range title {
		if r == '\n' {
			title = title[:i]
			break
		}
	}
	if len(title) > maxGeneratedTitle {
		cut := maxGeneratedTitle
		// Never split a multi-byte rune.
		for cut > 0 && !utf8.RuneStart(title[cut]) {
			cut--
		}
		title = title[:cut]
	}
	return title
}
