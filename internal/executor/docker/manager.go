package docker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/taskhive/taskhive/internal/app/dispatch"
	"github.com/taskhive/taskhive/internal/log"
	"github.com/taskhive/taskhive/internal/model"
	"github.com/taskhive/taskhive/internal/storage"
)

// WorkSource hands out pending container work.
type WorkSource interface {
	PollContainers(ctx context.Context) ([]dispatch.WorkItem, error)
}

// ContainerLauncher creates and tears down executor containers.
type ContainerLauncher interface {
	Launch(ctx context.Context, item dispatch.WorkItem) (string, error)
	Stop(ctx context.Context, containerName string) error
	Remove(ctx context.Context, containerName string) error
}

// ManagerConfig is the configuration for the manager.
type ManagerConfig struct {
	Source   WorkSource
	Launcher ContainerLauncher
	// SubtaskRepo is used to notice terminal subtasks whose container must go.
	SubtaskRepo storage.SubtaskRepository
	Interval    time.Duration
	Logger      log.Logger
}

func (c *ManagerConfig) defaults() error {
	if c.Source == nil {
		return fmt.Errorf("work source is required")
	}
	if c.Launcher == nil {
		return fmt.Errorf("launcher is required")
	}
	if c.SubtaskRepo == nil {
		return fmt.Errorf("subtask repository is required")
	}
	if c.Interval <= 0 {
		c.Interval = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "executor.Manager"})
	return nil
}

// Manager keeps one executor container per in-flight container subtask. A
// crash between launch and first callback leaves the subtask PENDING, the
// next cycle relaunches it, callbacks stay idempotent.
type Manager struct {
	source      WorkSource
	launcher    ContainerLauncher
	subtaskRepo storage.SubtaskRepository
	interval    time.Duration
	logger      log.Logger

	// running maps subtask id to container name. Only the manager loop
	// touches it.
	running map[string]string
}

// NewManager creates a new manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Manager{
		source:      cfg.Source,
		launcher:    cfg.Launcher,
		subtaskRepo: cfg.SubtaskRepo,
		interval:    cfg.Interval,
		logger:      cfg.Logger,
	}, nil
}

// Run blocks reconciling executors until the context is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := m.Reconcile(ctx); err != nil {
				m.logger.Warningf("Reconcile cycle failed: %s", err)
			}
		}
	}
}

// Reconcile runs one manager cycle: tear down executors of terminal subtasks,
// launch executors for newly pending work.
func (m *Manager) Reconcile(ctx context.Context) error {
	if m.running == nil {
		m.running = map[string]string{}
	}

	for subtaskID, containerName := range m.running {
		sub, err := m.subtaskRepo.GetSubtask(ctx, subtaskID)
		if err != nil && !errors.Is(err, model.ErrNotFound) {
			return fmt.Errorf("could not get subtask %s: %w", subtaskID, err)
		}
		if err == nil && !sub.Status.Terminal() {
			continue
		}

		if err := m.launcher.Stop(ctx, containerName); err != nil {
			m.logger.Errorf("Could not stop executor %s: %s", containerName, err)
			continue
		}
		if err := m.launcher.Remove(ctx, containerName); err != nil {
			m.logger.Errorf("Could not remove executor %s: %s", containerName, err)
			continue
		}
		delete(m.running, subtaskID)
		m.logger.Infof("Tore down executor %s", containerName)
	}

	items, err := m.source.PollContainers(ctx)
	if err != nil {
		return fmt.Errorf("could not poll container work: %w", err)
	}

	for _, item := range items {
		if _, ok := m.running[item.Subtask.ID]; ok {
			continue
		}

		containerName, err := m.launcher.Launch(ctx, item)
		if err != nil {
			m.logger.Errorf("Could not launch executor for subtask %s: %s", item.Subtask.ID, err)
			continue
		}
		m.running[item.Subtask.ID] = containerName
	}

	return nil
}
