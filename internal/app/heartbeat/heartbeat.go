// Package heartbeat registers local runners and keeps their liveness fresh.
// Runners self-register on their first beat, there is no separate enrollment
// call.
package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/taskhive/taskhive/internal/log"
	"github.com/taskhive/taskhive/internal/model"
	"github.com/taskhive/taskhive/internal/storage"
)

// ServiceConfig is the configuration for the heartbeat service.
type ServiceConfig struct {
	Repository storage.Repository
	Logger     log.Logger

	NowFn func() time.Time
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Heartbeat"})
	if c.NowFn == nil {
		c.NowFn = func() time.Time { return time.Now().UTC() }
	}
	return nil
}

// Service handles runner registration and liveness.
type Service struct {
	repo   storage.Repository
	logger log.Logger
	nowFn  func() time.Time
}

// NewService creates a new heartbeat service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger,
		nowFn:  cfg.NowFn,
	}, nil
}

// BeatOptions are the options for one heartbeat.
type BeatOptions struct {
	RunnerID     string
	UserID       int
	Name         string
	Capabilities map[string]interface{}
	Workspaces   []interface{}
}

// Beat upserts the runner and refreshes its last-seen time. Machine-local
// filesystem details are stripped before anything touches storage. Disabled
// runners are left untouched so an operator kill switch cannot be undone by
// the runner itself.
func (s *Service) Beat(ctx context.Context, opts BeatOptions) (*model.Runner, error) {
	if opts.RunnerID == "" {
		return nil, fmt.Errorf("runner id is required: %w", model.ErrNotValid)
	}

	now := s.nowFn()
	runner := model.Runner{
		ID:           opts.RunnerID,
		UserID:       opts.UserID,
		Name:         opts.Name,
		Capabilities: stripMap(opts.Capabilities),
		Workspaces:   stripList(opts.Workspaces),
		LastSeenAt:   now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	existing, err := s.repo.GetRunner(ctx, opts.RunnerID)
	switch {
	case err == nil:
		if existing.UserID != opts.UserID {
			return nil, fmt.Errorf("runner %s does not belong to user %d: %w", opts.RunnerID, opts.UserID, model.ErrNotAuthorized)
		}
		if existing.Disabled {
			s.logger.WithCtxValues(ctx).Warningf("Ignoring heartbeat from disabled runner %s", opts.RunnerID)
			return existing, nil
		}
		runner.CreatedAt = existing.CreatedAt
		if runner.Name == "" {
			runner.Name = existing.Name
		}
	case !isNotFound(err):
		return nil, fmt.Errorf("could not get runner: %w", err)
	}

	if err := s.repo.UpsertRunner(ctx, runner); err != nil {
		return nil, fmt.Errorf("could not upsert runner: %w", err)
	}

	s.logger.WithCtxValues(ctx).Debugf("Heartbeat from runner %s", opts.RunnerID)

	return &runner, nil
}

// ListRunners returns the user's runners with the derived online flag
// injected into the capabilities map.
func (s *Service) ListRunners(ctx context.Context, userID int) ([]model.Runner, error) {
	runners, err := s.repo.ListRunnersByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("could not list runners: %w", err)
	}

	now := s.nowFn()
	for i := range runners {
		if runners[i].Capabilities == nil {
			runners[i].Capabilities = map[string]interface{}{}
		}
		runners[i].Capabilities["online"] = runners[i].Online(now) && !runners[i].Disabled
	}

	return runners, nil
}

// AuthorizeRunner checks fail-closed that the runner exists, belongs to the
// user, and is not disabled. Upload-style endpoints gate on it before
// touching any state.
func (s *Service) AuthorizeRunner(ctx context.Context, runnerID string, userID int) error {
	runner, err := s.repo.GetRunner(ctx, runnerID)
	if err != nil {
		return fmt.Errorf("could not get runner: %w", err)
	}
	if runner.UserID != userID {
		return fmt.Errorf("runner %s does not belong to user %d: %w", runnerID, userID, model.ErrNotAuthorized)
	}
	if runner.Disabled {
		return fmt.Errorf("runner %s is disabled: %w", runnerID, model.ErrNotAuthorized)
	}
	return nil
}

// Keys that leak the runner machine's filesystem layout. They are removed
// recursively from anything a runner reports.
var strippedKeys = map[string]bool{
	"path":           true,
	"cwd":            true,
	"workdir":        true,
	"workspace_path": true,
}

func stripMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		if strippedKeys[k] {
			continue
		}
		out[k] = stripValue(v)
	}
	return out
}

func stripList(l []interface{}) []interface{} {
	if l == nil {
		return nil
	}
	out := make([]interface{}, 0, len(l))
	for _, v := range l {
		out = append(out, stripValue(v))
	}
	return out
}

func stripValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return stripMap(val)
	case []interface{}:
		return stripList(val)
	default:
		return v
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, model.ErrNotFound)
}
