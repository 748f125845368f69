// Package runnerconfig loads the local runner's YAML configuration file.
package runnerconfig

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration accepts "3s" style values, yaml.v3 has no native duration support.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}

	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(v)
	return nil
}

// Std returns the standard library representation.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Workspace maps a workspace name to a local repository checkout.
type Workspace struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// Config is the local runner configuration.
type Config struct {
	// ServerURL is the orchestration server base URL.
	ServerURL string `yaml:"serverUrl"`
	// Token authenticates the runner against the server.
	Token string `yaml:"token"`

	RunnerID   string `yaml:"runnerId"`
	RunnerName string `yaml:"runnerName"`

	// AgentBinary is the coding-agent CLI, "codex" by default.
	AgentBinary string `yaml:"agentBinary"`
	// AgentHomeDir is where per-run HOME directories are created.
	AgentHomeDir string `yaml:"agentHomeDir"`
	// AgentEnv is extra environment for the agent CLI, as KEY=VALUE specs or
	// bare KEY specs that pass through the runner host's value.
	AgentEnv []string `yaml:"agentEnv"`

	PollInterval      Duration `yaml:"pollInterval"`
	HeartbeatInterval Duration `yaml:"heartbeatInterval"`

	Workspaces []Workspace `yaml:"workspaces"`
}

// Load reads and validates the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("could not parse config file: %w", err)
	}

	if err := cfg.defaults(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) defaults() error {
	if c.ServerURL == "" {
		return fmt.Errorf("serverUrl is required")
	}
	if c.RunnerID == "" {
		return fmt.Errorf("runnerId is required")
	}
	if c.AgentBinary == "" {
		c.AgentBinary = "codex"
	}
	if c.PollInterval <= 0 {
		c.PollInterval = Duration(3 * time.Second)
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = Duration(30 * time.Second)
	}
	return nil
}

// WorkspacePath resolves a workspace name to its local path.
func (c *Config) WorkspacePath(name string) (string, error) {
	for _, ws := range c.Workspaces {
		if ws.Name == name {
			return ws.Path, nil
		}
	}
	return "", fmt.Errorf("unknown workspace %q", name)
}
