// Package agent runs a coding-agent CLI as a managed subprocess, translating
// its NDJSON event stream into result partials for the orchestration server.
package agent

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/taskhive/taskhive/internal/log"
	"github.com/taskhive/taskhive/internal/model"
)

// RunnerConfig is the configuration for the agent runner.
type RunnerConfig struct {
	// Binary is the agent CLI executable.
	Binary string
	Logger log.Logger

	// EventBatchSize and FlushInterval tune callback batching.
	EventBatchSize int
	FlushInterval  time.Duration
	// TermGrace is how long a cancelled agent gets to exit after SIGTERM
	// before the whole process group is killed.
	TermGrace time.Duration

	stderrRingSize int
	stderrTail     int
}

func (c *RunnerConfig) defaults() error {
	if c.Binary == "" {
		c.Binary = "codex"
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "agent.Runner"})
	if c.EventBatchSize <= 0 {
		c.EventBatchSize = 5
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 200 * time.Millisecond
	}
	if c.TermGrace <= 0 {
		c.TermGrace = 5 * time.Second
	}
	if c.stderrRingSize <= 0 {
		c.stderrRingSize = 200
	}
	if c.stderrTail <= 0 {
		c.stderrTail = 20
	}
	return nil
}

// Runner spawns and supervises agent CLI processes.
type Runner struct {
	cfg    RunnerConfig
	logger log.Logger
}

// NewRunner creates a new agent runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Runner{cfg: cfg, logger: cfg.Logger}, nil
}

// RunInput is one agent invocation.
type RunInput struct {
	Prompt string
	// WorkDir is the repository the agent operates on.
	WorkDir string
	// HomeDir scopes the CLI's state (auth, caches) to this run.
	HomeDir string
	// Model optionally overrides the CLI's default model.
	Model string
	// ResumeSessionID resumes a previous agent session when set.
	ResumeSessionID string
	// Env is the extra environment passed through to the CLI.
	Env []string
}

// RunResult is the terminal outcome of one invocation.
type RunResult struct {
	Value        string
	SessionToken string
	Cancelled    bool
	Failed       bool
	ErrorMessage string
	// SawOutput tells whether the CLI produced any event before the run
	// ended. A cancellation that beat all output is a no-op turn.
	SawOutput bool
}

// buildArgs assembles the CLI invocation. The prompt always travels via
// stdin ("-"), never argv, so it cannot leak through the process table.
func (r *Runner) buildArgs(in RunInput) []string {
	args := []string{
		"exec",
		"--json",
		"--dangerously-bypass-approvals-and-sandbox",
		"--skip-git-repo-check",
	}
	if in.WorkDir != "" {
		args = append(args, "-C", in.WorkDir)
	}
	if in.Model != "" {
		args = append(args, "--model", in.Model)
	}
	if in.ResumeSessionID != "" {
		args = append(args, "resume", in.ResumeSessionID)
	}
	return append(args, "-")
}

// Run executes the agent CLI to completion, publishing partial results as
// they stream out. Cancelling the context triggers graceful termination:
// SIGTERM to the process group, then SIGKILL after the grace period.
//
// A cancelled run that already produced output is not a failure, the caller
// decides whether the partial result is useful.
func (r *Runner) Run(ctx context.Context, in RunInput, publish PublishFunc) (*RunResult, error) {
	// The command deliberately does not use CommandContext: termination is
	// escalated manually so the CLI can flush its session state.
	cmd := exec.Command(r.cfg.Binary, r.buildArgs(in)...)
	cmd.Dir = in.WorkDir
	cmd.Env = append([]string{"HOME=" + in.HomeDir}, in.Env...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("could not create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("could not create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("could not create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("could not start agent: %w", err)
	}
	r.logger.Debugf("Started agent pid %d", cmd.Process.Pid)

	// The prompt goes in first thing, then stdin closes so the CLI knows
	// the turn is complete.
	go func() {
		_, _ = io.WriteString(stdin, in.Prompt)
		_ = stdin.Close()
	}()

	ring := newLineRing(r.cfg.stderrRingSize)
	var summary *streamSummary

	pumpCtx, stopPump := context.WithCancel(context.Background())
	defer stopPump()

	var g errgroup.Group
	g.Go(func() error {
		var pumpErr error
		summary, pumpErr = pumpStream(pumpCtx, stdout, r.cfg.EventBatchSize, r.cfg.FlushInterval, publish)
		return pumpErr
	})
	g.Go(func() error {
		drainLines(stderr, ring)
		return nil
	})

	// Watch for cancellation while the process runs.
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			r.terminate(cmd)
		case <-done:
		}
	}()

	pumpErr := g.Wait()
	waitErr := cmd.Wait()
	close(done)

	result := &RunResult{}
	if summary != nil {
		result.Value = summary.FinalMessage
		result.SessionToken = summary.SessionToken
		result.Failed = summary.Failed
		result.ErrorMessage = summary.ErrorMessage
		result.SawOutput = summary.SawOutput
	}

	if ctx.Err() != nil {
		result.Cancelled = true
		r.logger.Infof("Agent cancelled (pid %d)", cmd.Process.Pid)
		return result, nil
	}
	if pumpErr != nil {
		return nil, fmt.Errorf("could not read agent output: %w", pumpErr)
	}

	if waitErr != nil && !result.Failed {
		result.Failed = true
		result.ErrorMessage = fmt.Sprintf("agent exited: %s", waitErr)
		if tail := ring.Tail(r.cfg.stderrTail); tail != "" {
			result.ErrorMessage += "\nstderr:\n" + tail
		}
	}

	if result.Failed {
		r.logger.Warningf("Agent run failed: %s", result.ErrorMessage)
		_ = publish(ctx, model.Result{model.ResultKeyError: result.ErrorMessage})
	}

	return result, nil
}

// terminate escalates from SIGTERM to SIGKILL on the whole process group.
func (r *Runner) terminate(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	pgid := -cmd.Process.Pid

	_ = syscall.Kill(pgid, syscall.SIGTERM)

	timer := time.AfterFunc(r.cfg.TermGrace, func() {
		_ = syscall.Kill(pgid, syscall.SIGKILL)
	})
	// Leave the timer running; it is harmless after process exit and
	// guarantees the group dies even if Wait blocks.
	_ = timer
}
