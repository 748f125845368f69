// Package worker is the local runner's main loop: heartbeat the server, poll
// for pinned work, and drive the coding agent for each dispatched subtask.
package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/taskhive/taskhive/internal/agent"
	"github.com/taskhive/taskhive/internal/log"
	"github.com/taskhive/taskhive/internal/model"
	"github.com/taskhive/taskhive/internal/runnerconfig"
	"github.com/taskhive/taskhive/internal/server/apiv1"
	"github.com/taskhive/taskhive/internal/utils/env"
)

// Server is the subset of the server API the worker needs.
type Server interface {
	Heartbeat(ctx context.Context, runnerID string, req apiv1.HeartbeatRequest) (*apiv1.Runner, error)
	Poll(ctx context.Context, runnerID string) ([]apiv1.WorkItem, error)
	UpdateSubtask(ctx context.Context, taskID, subtaskID string, req apiv1.SubtaskUpdateRequest) error
	Publisher(taskID, subtaskID string) func(ctx context.Context, partial model.Result) error
}

// AgentRunner runs one agent invocation to completion.
type AgentRunner interface {
	Run(ctx context.Context, in agent.RunInput, publish agent.PublishFunc) (*agent.RunResult, error)
}

// ServiceConfig is the configuration for the worker.
type ServiceConfig struct {
	Config *runnerconfig.Config
	Server Server
	Agent  AgentRunner
	Logger log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Config == nil {
		return fmt.Errorf("runner config is required")
	}
	if c.Server == nil {
		return fmt.Errorf("server client is required")
	}
	if c.Agent == nil {
		return fmt.Errorf("agent runner is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "worker.Service"})
	return nil
}

// Service is the runner loop.
type Service struct {
	cfg      *runnerconfig.Config
	server   Server
	agent    AgentRunner
	agentEnv []string
	logger   log.Logger
}

// NewService creates a new worker.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// Resolved once at startup so a missing passthrough variable fails fast.
	agentEnv, err := env.ParseSpecs(cfg.Config.AgentEnv)
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		cfg:      cfg.Config,
		server:   cfg.Server,
		agent:    cfg.Agent,
		agentEnv: env.Format(agentEnv),
		logger:   cfg.Logger,
	}, nil
}

// Run blocks polling and executing work until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.heartbeat(ctx)

	hbTicker := time.NewTicker(s.cfg.HeartbeatInterval.Std())
	defer hbTicker.Stop()
	pollTicker := time.NewTicker(s.cfg.PollInterval.Std())
	defer pollTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-hbTicker.C:
			s.heartbeat(ctx)
		case <-pollTicker.C:
			if err := s.PollOnce(ctx); err != nil {
				s.logger.Warningf("Poll cycle failed: %s", err)
			}
		}
	}
}

func (s *Service) heartbeat(ctx context.Context) {
	var workspaces []interface{}
	for _, ws := range s.cfg.Workspaces {
		workspaces = append(workspaces, map[string]interface{}{"name": ws.Name})
	}

	_, err := s.server.Heartbeat(ctx, s.cfg.RunnerID, apiv1.HeartbeatRequest{
		Name: s.cfg.RunnerName,
		Capabilities: map[string]interface{}{
			"agent": s.cfg.AgentBinary,
		},
		Workspaces: workspaces,
	})
	if err != nil {
		s.logger.Warningf("Heartbeat failed: %s", err)
	}
}

// PollOnce fetches pending work and executes the items one at a time. A
// single agent per runner keeps workspace checkouts free of concurrent edits.
func (s *Service) PollOnce(ctx context.Context) error {
	items, err := s.server.Poll(ctx, s.cfg.RunnerID)
	if err != nil {
		return err
	}

	for _, item := range items {
		if err := s.execute(ctx, item); err != nil {
			s.logger.Errorf("Execution of subtask %s failed: %s", item.Subtask.ID, err)
		}
	}

	return nil
}

func (s *Service) execute(ctx context.Context, item apiv1.WorkItem) error {
	logger := s.logger.WithValues(log.Kv{"task": item.Task.ID, "subtask": item.Subtask.ID})

	in, err := s.runInput(item)
	if err != nil {
		// Unrunnable work is failed right away so the task does not hang.
		ferr := s.server.UpdateSubtask(ctx, item.Task.ID, item.Subtask.ID, apiv1.SubtaskUpdateRequest{
			Status:       string(model.SubtaskStatusFailed),
			ExecutorName: s.cfg.RunnerID,
			Result:       model.Result{model.ResultKeyError: err.Error()},
		})
		if ferr != nil {
			return fmt.Errorf("could not report unrunnable work: %w", ferr)
		}
		return err
	}

	err = s.server.UpdateSubtask(ctx, item.Task.ID, item.Subtask.ID, apiv1.SubtaskUpdateRequest{
		Status:       string(model.SubtaskStatusRunning),
		ExecutorName: s.cfg.RunnerID,
	})
	if err != nil {
		return fmt.Errorf("could not claim subtask: %w", err)
	}
	logger.Infof("Running agent")

	res, err := s.agent.Run(ctx, *in, s.server.Publisher(item.Task.ID, item.Subtask.ID))
	if err != nil {
		_ = s.server.UpdateSubtask(ctx, item.Task.ID, item.Subtask.ID, apiv1.SubtaskUpdateRequest{
			Status: string(model.SubtaskStatusFailed),
			Result: model.Result{model.ResultKeyError: err.Error()},
		})
		return fmt.Errorf("agent run failed: %w", err)
	}

	update := apiv1.SubtaskUpdateRequest{Status: string(model.SubtaskStatusCompleted)}
	switch {
	// A cancel that beat all agent output is a no-op turn and completes.
	case res.Cancelled && res.SawOutput:
		update.Status = string(model.SubtaskStatusCancelled)
	case res.Failed:
		update.Status = string(model.SubtaskStatusFailed)
		update.Result = model.Result{model.ResultKeyError: res.ErrorMessage}
	default:
		update.Result = model.Result{model.ResultKeyValue: res.Value}
	}

	// Terminal callbacks use a fresh context, the run context may already be
	// cancelled and the server still needs to hear the outcome.
	reportCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.server.UpdateSubtask(reportCtx, item.Task.ID, item.Subtask.ID, update); err != nil {
		return fmt.Errorf("could not report outcome: %w", err)
	}
	logger.Infof("Agent finished: %s", update.Status)

	return nil
}

// runInput translates a dispatched work item into an agent invocation.
func (s *Service) runInput(item apiv1.WorkItem) (*agent.RunInput, error) {
	wsName := item.Task.Labels[model.LabelWorkspace]
	if wsName == "" && len(s.cfg.Workspaces) > 0 {
		wsName = s.cfg.Workspaces[0].Name
	}
	workDir, err := s.cfg.WorkspacePath(wsName)
	if err != nil {
		return nil, err
	}

	in := agent.RunInput{
		Prompt:  item.Subtask.Prompt,
		WorkDir: workDir,
		Model:   item.Task.Labels[model.LabelModelID],
		Env:     s.agentEnv,
	}

	result := item.Subtask.Result
	if model.RetryMode(result.String(model.ResultKeyRetryMode)) == model.RetryModeResume {
		in.ResumeSessionID = result.SessionToken()
	}

	if s.cfg.AgentHomeDir != "" {
		in.HomeDir = filepath.Join(s.cfg.AgentHomeDir, item.Subtask.ID)
		if err := os.MkdirAll(in.HomeDir, 0700); err != nil {
			return nil, fmt.Errorf("could not create agent home: %w", err)
		}
	}

	return &in, nil
}
