// Package retry rewinds a failed or finished conversation turn so it runs
// again, either resuming the previous agent session or starting cold.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/taskhive/taskhive/internal/log"
	"github.com/taskhive/taskhive/internal/model"
	"github.com/taskhive/taskhive/internal/storage"
)

// ServiceConfig is the configuration for the retry service.
type ServiceConfig struct {
	Repository storage.Repository
	Logger     log.Logger

	// DisableResume is the operator kill switch. When set every retry is
	// forced into a cold start no matter what the caller asked for.
	DisableResume bool

	NowFn  func() time.Time
	UUIDFn func() string
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Retry"})
	if c.NowFn == nil {
		c.NowFn = func() time.Time { return time.Now().UTC() }
	}
	if c.UUIDFn == nil {
		c.UUIDFn = uuid.NewString
	}
	return nil
}

// Service handles retry and resume business logic.
type Service struct {
	repo          storage.Repository
	logger        log.Logger
	resumeEnabled bool
	nowFn         func() time.Time
	uuidFn        func() string
}

// NewService creates a new retry service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:          cfg.Repository,
		logger:        cfg.Logger,
		resumeEnabled: !cfg.DisableResume,
		nowFn:         cfg.NowFn,
		uuidFn:        cfg.UUIDFn,
	}, nil
}

// RetryOptions are the options for retrying a turn.
type RetryOptions struct {
	TaskID string
	UserID int
	// MessageID names the ASSISTANT subtask to rerun.
	MessageID int
	Mode      model.RetryMode
}

// Retry resets the named ASSISTANT subtask and its task back to PENDING so
// dispatch picks them up again. The result document is rebuilt from scratch,
// carrying over only the shell type and, when resuming, the session token.
func (s *Service) Retry(ctx context.Context, opts RetryOptions) (*model.Subtask, error) {
	if opts.Mode != model.RetryModeResume && opts.Mode != model.RetryModeNewSession {
		return nil, fmt.Errorf("unknown retry mode %q: %w", opts.Mode, model.ErrNotValid)
	}

	task, err := s.repo.GetTask(ctx, opts.TaskID)
	if err != nil {
		return nil, fmt.Errorf("could not get task: %w", err)
	}
	if task.UserID != opts.UserID {
		return nil, fmt.Errorf("task %s does not belong to user %d: %w", opts.TaskID, opts.UserID, model.ErrNotAuthorized)
	}

	sub, err := s.repo.GetSubtaskByMessageID(ctx, opts.TaskID, opts.MessageID)
	if err != nil {
		return nil, fmt.Errorf("could not get subtask: %w", err)
	}
	if sub.Role != model.SubtaskRoleAssistant {
		return nil, fmt.Errorf("message %d is not an assistant turn: %w", opts.MessageID, model.ErrNotValid)
	}
	if !sub.Status.Terminal() {
		return nil, fmt.Errorf("subtask %s is still in flight: %w", sub.ID, model.ErrConflict)
	}

	// The triggering user message provides the prompt for the rerun. ParentID
	// is a message id, so it goes through the message index.
	trigger, err := s.repo.GetSubtaskByMessageID(ctx, opts.TaskID, sub.ParentID)
	if err != nil {
		return nil, fmt.Errorf("could not get trigger message: %w", err)
	}

	now := s.nowFn()
	sub.Result = s.resetResult(sub.Result, opts.Mode)
	sub.Status = model.SubtaskStatusPending
	sub.Progress = 0
	sub.ErrorMessage = ""
	sub.ExecutorName = ""
	sub.ExecutorNamespace = ""
	sub.Prompt = trigger.Prompt
	sub.UpdatedAt = now
	sub.CompletedAt = nil
	if err := s.repo.UpdateSubtask(ctx, *sub); err != nil {
		return nil, fmt.Errorf("could not update subtask: %w", err)
	}

	task.Status = model.TaskStatusPending
	task.Progress = 0
	task.ErrorMessage = ""
	task.Result = ""
	task.UpdatedAt = now
	task.CompletedAt = nil
	if err := s.repo.UpdateTask(ctx, *task); err != nil {
		return nil, fmt.Errorf("could not update task: %w", err)
	}

	s.logger.WithCtxValues(ctx).Infof("Retrying task %s message %d (mode=%s)", opts.TaskID, opts.MessageID, sub.Result.String(model.ResultKeyRetryMode))

	return sub, nil
}

// resetResult rebuilds the result document for a rerun. Stale output, errors
// and event logs never survive a retry; session tokens survive only a resume.
func (s *Service) resetResult(old model.Result, mode model.RetryMode) model.Result {
	if !s.resumeEnabled {
		mode = model.RetryModeNewSession
	}

	out := model.Result{}
	if shell := old.ShellType(); shell != "" {
		out[model.ResultKeyShellType] = shell
	}

	// A resume with no surviving token keeps its mode: dispatch downgrades
	// it to a cold start when the work actually leaves the server.
	if mode == model.RetryModeResume {
		if token := old.String(model.ResultKeyResumeSessionID); token != "" {
			out[model.ResultKeyResumeSessionID] = token
		}
		if token := old.String(model.ResultKeySessionID); token != "" {
			out[model.ResultKeySessionID] = token
		}
	}

	if mode == model.RetryModeNewSession && out.ShellType() == model.ShellTypeClaudeCode {
		// The Claude CLI wants its session id assigned by the caller.
		out[model.ResultKeySessionID] = s.uuidFn()
	}

	out[model.ResultKeyRetryMode] = string(mode)

	return out
}
