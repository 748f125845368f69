// Package docker launches container executors: one container per dispatched
// work item, carrying its full execution context in the environment.
package docker

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/oklog/ulid/v2"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/taskhive/taskhive/internal/app/dispatch"
	"github.com/taskhive/taskhive/internal/log"
	"github.com/taskhive/taskhive/internal/model"
)

// DockerClient is the interface for the Docker operations that we use.
// This allows us to mock the Docker client for testing.
type DockerClient interface {
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
}

// LauncherConfig is the configuration for the launcher.
type LauncherConfig struct {
	Client DockerClient
	// Image is the executor image, it embeds the agent CLI and a small
	// entrypoint that reads its work item from the environment.
	Image string
	// ServerURL and Token are handed to the container so it can call back.
	ServerURL string
	Token     string
	// NanoCPUs and MemoryBytes cap each executor container.
	NanoCPUs    int64
	MemoryBytes int64
	Logger      log.Logger
}

func (c *LauncherConfig) defaults() error {
	if c.Client == nil {
		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			return fmt.Errorf("could not create Docker client: %w", err)
		}
		c.Client = cli
	}
	if c.Image == "" {
		return fmt.Errorf("executor image is required")
	}
	if c.ServerURL == "" {
		return fmt.Errorf("server url is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "executor.Docker"})
	return nil
}

// Launcher creates and tears down executor containers.
type Launcher struct {
	client      DockerClient
	image       string
	serverURL   string
	token       string
	nanoCPUs    int64
	memoryBytes int64
	logger      log.Logger
}

// NewLauncher creates a new launcher.
func NewLauncher(cfg LauncherConfig) (*Launcher, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Launcher{
		client:      cfg.Client,
		image:       cfg.Image,
		serverURL:   cfg.ServerURL,
		token:       cfg.Token,
		nanoCPUs:    cfg.NanoCPUs,
		memoryBytes: cfg.MemoryBytes,
		logger:      cfg.Logger,
	}, nil
}

// Launch pulls the executor image and starts one container for the work item.
// It returns the container name, which doubles as the executor name reported
// back through callbacks.
func (l *Launcher) Launch(ctx context.Context, item dispatch.WorkItem) (string, error) {
	id := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
	containerName := fmt.Sprintf("taskhive-%s", strings.ToLower(id))

	l.logger.Infof("Pulling image: %s", l.image)
	pullResp, err := l.client.ImagePull(ctx, l.image, image.PullOptions{})
	if err != nil {
		return "", fmt.Errorf("could not pull image %s: %w", l.image, err)
	}
	// Consume the pull response to ensure it completes.
	_, _ = io.Copy(io.Discard, pullResp)
	pullResp.Close()

	containerConfig := &container.Config{
		Image: l.image,
		Env:   l.containerEnv(item),
	}
	hostConfig := &container.HostConfig{
		Resources: container.Resources{
			NanoCPUs: l.nanoCPUs,
			Memory:   l.memoryBytes,
		},
	}

	l.logger.Infof("Creating container: %s", containerName)
	resp, err := l.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, containerName)
	if err != nil {
		return "", fmt.Errorf("could not create container: %w", err)
	}

	if err := l.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("could not start container: %w", err)
	}

	l.logger.Infof("Launched executor %s for subtask %s", containerName, item.Subtask.ID)

	return containerName, nil
}

// containerEnv materializes the work item for the container entrypoint.
func (l *Launcher) containerEnv(item dispatch.WorkItem) []string {
	env := []string{
		"TASKHIVE_SERVER_URL=" + l.serverURL,
		"TASKHIVE_TOKEN=" + l.token,
		"TASKHIVE_TASK_ID=" + item.Task.ID,
		"TASKHIVE_SUBTASK_ID=" + item.Subtask.ID,
		"TASKHIVE_PROMPT=" + item.Subtask.Prompt,
	}
	if m := item.Task.ModelOverride(); m != "" {
		env = append(env, "TASKHIVE_MODEL="+m)
	}
	result := item.Subtask.Result
	if mode := result.String(model.ResultKeyRetryMode); mode != "" {
		env = append(env, "TASKHIVE_RETRY_MODE="+mode)
	}
	if model.RetryMode(result.String(model.ResultKeyRetryMode)) == model.RetryModeResume {
		env = append(env, "TASKHIVE_RESUME_SESSION_ID="+result.SessionToken())
	}
	return env
}

// Stop stops a running executor container. Stopping an already stopped or
// missing container is not an error, teardown must be idempotent.
func (l *Launcher) Stop(ctx context.Context, containerName string) error {
	l.logger.Infof("Stopping container: %s", containerName)
	timeout := 10
	if err := l.client.ContainerStop(ctx, containerName, container.StopOptions{Timeout: &timeout}); err != nil {
		if strings.Contains(err.Error(), "is already stopped") || strings.Contains(err.Error(), "is not running") || strings.Contains(err.Error(), "No such container") {
			l.logger.Debugf("Container %s is already stopped", containerName)
			return nil
		}
		return fmt.Errorf("could not stop container %s: %w", containerName, err)
	}
	return nil
}

// Remove removes an executor container, forcing if it is still running.
func (l *Launcher) Remove(ctx context.Context, containerName string) error {
	l.logger.Infof("Removing container: %s", containerName)
	if err := l.client.ContainerRemove(ctx, containerName, container.RemoveOptions{Force: true}); err != nil {
		if strings.Contains(err.Error(), "No such container") {
			l.logger.Debugf("Container %s already removed", containerName)
			return nil
		}
		return fmt.Errorf("could not remove container %s: %w", containerName, err)
	}
	return nil
}

// Running reports whether the executor container is still running. A missing
// container maps to model.ErrNotFound.
func (l *Launcher) Running(ctx context.Context, containerName string) (bool, error) {
	info, err := l.client.ContainerInspect(ctx, containerName)
	if err != nil {
		if strings.Contains(err.Error(), "No such container") {
			return false, fmt.Errorf("container %s: %w", containerName, model.ErrNotFound)
		}
		return false, fmt.Errorf("could not inspect container %s: %w", containerName, err)
	}
	return info.State != nil && info.State.Status == "running", nil
}
