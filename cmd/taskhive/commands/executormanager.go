package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"github.com/taskhive/taskhive/internal/app/dispatch"
	"github.com/taskhive/taskhive/internal/executor/docker"
	"github.com/taskhive/taskhive/internal/storage/sqlite"
)

type ExecutorManagerCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	image     string
	serverURL string
	token     string
	interval  time.Duration
	cpus      float64
	memoryMB  int64
}

// NewExecutorManagerCommand returns the executor-manager command.
func NewExecutorManagerCommand(rootCmd *RootCommand, app *kingpin.Application) *ExecutorManagerCommand {
	c := &ExecutorManagerCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("executor-manager", "Run the container executor manager.")

	c.Cmd.Flag("image", "Executor container image.").Required().StringVar(&c.image)
	c.Cmd.Flag("server-url", "Server URL handed to executor containers.").Required().StringVar(&c.serverURL)
	c.Cmd.Flag("executor-token", "API key handed to executor containers.").Required().StringVar(&c.token)
	c.Cmd.Flag("interval", "Reconcile interval.").Default("5s").DurationVar(&c.interval)
	c.Cmd.Flag("cpu", "VCPUs per executor container (can be fractional).").Default("2").Float64Var(&c.cpus)
	c.Cmd.Flag("mem", "Memory in MB per executor container.").Default("2048").Int64Var(&c.memoryMB)

	return c
}

func (c ExecutorManagerCommand) Name() string { return c.Cmd.FullCommand() }

func (c ExecutorManagerCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{DBPath: c.rootCmd.DBPath, Logger: logger})
	if err != nil {
		return fmt.Errorf("could not open storage: %w", err)
	}
	defer repo.Close()

	dispatchSvc, err := dispatch.NewService(dispatch.ServiceConfig{Repository: repo, Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create dispatch service: %w", err)
	}

	launcher, err := docker.NewLauncher(docker.LauncherConfig{
		Image:       c.image,
		ServerURL:   c.serverURL,
		Token:       c.token,
		NanoCPUs:    int64(c.cpus * 1e9),
		MemoryBytes: c.memoryMB * 1024 * 1024,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("could not create launcher: %w", err)
	}

	manager, err := docker.NewManager(docker.ManagerConfig{
		Source:      dispatchSvc,
		Launcher:    launcher,
		SubtaskRepo: repo,
		Interval:    c.interval,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("could not create manager: %w", err)
	}

	logger.Infof("Executor manager reconciling every %s", c.interval)

	err = manager.Run(ctx)
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("manager loop failed: %w", err)
	}

	return nil
}
