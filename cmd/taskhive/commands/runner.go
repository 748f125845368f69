package commands

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/alecthomas/kingpin/v2"
	"k8s.io/client-go/util/homedir"

	"github.com/taskhive/taskhive/internal/agent"
	"github.com/taskhive/taskhive/internal/runnerclient"
	"github.com/taskhive/taskhive/internal/runnerconfig"
	"github.com/taskhive/taskhive/internal/worker"
)

type RunnerCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	configPath string
}

// NewRunnerCommand returns the runner command.
func NewRunnerCommand(rootCmd *RootCommand, app *kingpin.Application) *RunnerCommand {
	c := &RunnerCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("runner", "Run the local runner loop.")

	defaultConfig := filepath.Join(homedir.HomeDir(), ".taskhive", "runner.yaml")
	c.Cmd.Flag("config", "Path to the runner YAML configuration.").Default(defaultConfig).StringVar(&c.configPath)

	return c
}

func (c RunnerCommand) Name() string { return c.Cmd.FullCommand() }

func (c RunnerCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	cfg, err := runnerconfig.Load(c.configPath)
	if err != nil {
		return fmt.Errorf("could not load runner config: %w", err)
	}

	client, err := runnerclient.NewClient(runnerclient.ClientConfig{
		BaseURL:  cfg.ServerURL,
		Token:    cfg.Token,
		RunnerID: cfg.RunnerID,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("could not create server client: %w", err)
	}

	agentRunner, err := agent.NewRunner(agent.RunnerConfig{
		Binary: cfg.AgentBinary,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create agent runner: %w", err)
	}

	svc, err := worker.NewService(worker.ServiceConfig{
		Config: cfg,
		Server: client,
		Agent:  agentRunner,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create worker: %w", err)
	}

	logger.Infof("Runner %s polling %s", cfg.RunnerID, cfg.ServerURL)

	err = svc.Run(ctx)
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("runner loop failed: %w", err)
	}

	return nil
}
