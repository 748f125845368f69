package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"k8s.io/client-go/util/homedir"

	"github.com/taskhive/taskhive/internal/app/chat"
	"github.com/taskhive/taskhive/internal/app/dispatch"
	"github.com/taskhive/taskhive/internal/app/heartbeat"
	"github.com/taskhive/taskhive/internal/app/praction"
	"github.com/taskhive/taskhive/internal/app/retry"
	"github.com/taskhive/taskhive/internal/artifact"
	"github.com/taskhive/taskhive/internal/gitforge"
	"github.com/taskhive/taskhive/internal/prpolicy"
	"github.com/taskhive/taskhive/internal/server"
	"github.com/taskhive/taskhive/internal/storage/sqlite"
)

type ServerCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	listenAddr   string
	apiKeys      map[string]string
	artifactsDir string

	disableResume bool

	githubToken   string
	githubAPIURL  string
	prWriteOn     bool
	prRepos       string
	prBases       string
	prHeadPattern string
	prMaxFiles    int
	prMaxLines    int
	prForbidden   string
	prChecks      string
}

// NewServerCommand returns the server command.
func NewServerCommand(rootCmd *RootCommand, app *kingpin.Application) *ServerCommand {
	c := &ServerCommand{rootCmd: rootCmd, apiKeys: map[string]string{}}

	c.Cmd = app.Command("server", "Run the orchestration API server.")

	c.Cmd.Flag("listen-addr", "Address the HTTP server listens on.").Default(":8080").StringVar(&c.listenAddr)
	c.Cmd.Flag("api-key", "API key to user id mapping (token=userid), repeatable.").Required().StringMapVar(&c.apiKeys)
	c.Cmd.Flag("artifacts-dir", "Directory runner artifacts are stored under.").Default(filepath.Join(homedir.HomeDir(), ".taskhive", "artifacts")).StringVar(&c.artifactsDir)

	c.Cmd.Flag("disable-resume", "Force every retry into a fresh agent session.").BoolVar(&c.disableResume)

	c.Cmd.Flag("github-token", "GitHub token for the PR action gateway, gateway is disabled when empty.").StringVar(&c.githubToken)
	c.Cmd.Flag("github-api-url", "GitHub API base URL.").Default("https://api.github.com").StringVar(&c.githubAPIURL)
	c.Cmd.Flag("pr-write-enabled", "Allow the PR gateway to create pull requests.").BoolVar(&c.prWriteOn)
	c.Cmd.Flag("pr-repo-allowlist", "Comma-separated repos the gateway may write to.").StringVar(&c.prRepos)
	c.Cmd.Flag("pr-base-allowlist", "Comma-separated base branch patterns.").StringVar(&c.prBases)
	c.Cmd.Flag("pr-head-pattern", "Regexp head branches must match.").StringVar(&c.prHeadPattern)
	c.Cmd.Flag("pr-max-changed-files", "Maximum changed files per PR, 0 disables the check.").IntVar(&c.prMaxFiles)
	c.Cmd.Flag("pr-max-diff-lines", "Maximum added+deleted lines per PR, 0 disables the check.").IntVar(&c.prMaxLines)
	c.Cmd.Flag("pr-forbidden-paths", "Comma-separated glob patterns a PR must not touch.").StringVar(&c.prForbidden)
	c.Cmd.Flag("pr-required-checks", "Comma-separated checks that must pass on the head branch.").StringVar(&c.prChecks)

	return c
}

func (c ServerCommand) Name() string { return c.Cmd.FullCommand() }

func (c ServerCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	keys, err := parseAPIKeys(c.apiKeys)
	if err != nil {
		return err
	}

	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{DBPath: c.rootCmd.DBPath, Logger: logger})
	if err != nil {
		return fmt.Errorf("could not open storage: %w", err)
	}
	defer repo.Close()

	chatSvc, err := chat.NewService(chat.ServiceConfig{Repository: repo, Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create chat service: %w", err)
	}
	dispatchSvc, err := dispatch.NewService(dispatch.ServiceConfig{Repository: repo, Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create dispatch service: %w", err)
	}
	heartbeatSvc, err := heartbeat.NewService(heartbeat.ServiceConfig{Repository: repo, Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create heartbeat service: %w", err)
	}
	retrySvc, err := retry.NewService(retry.ServiceConfig{Repository: repo, Logger: logger, DisableResume: c.disableResume})
	if err != nil {
		return fmt.Errorf("could not create retry service: %w", err)
	}

	store, err := artifact.NewFSStore(artifact.FSStoreConfig{BaseDir: c.artifactsDir, Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create artifact store: %w", err)
	}

	var practionSvc *praction.Service
	if c.githubToken != "" {
		forge, err := gitforge.NewGitHubClient(gitforge.GitHubClientConfig{
			APIBaseURL: c.githubAPIURL,
			Token:      c.githubToken,
			Logger:     logger,
		})
		if err != nil {
			return fmt.Errorf("could not create github client: %w", err)
		}

		practionSvc, err = praction.NewService(praction.ServiceConfig{
			Repository: repo,
			Forge:      forge,
			Policy: prpolicy.Config{
				WriteEnabled:          c.prWriteOn,
				RepoAllowlist:         c.prRepos,
				BaseBranchAllowlist:   c.prBases,
				HeadBranchPattern:     c.prHeadPattern,
				MaxChangedFiles:       c.prMaxFiles,
				MaxDiffLines:          c.prMaxLines,
				ForbiddenPathPatterns: c.prForbidden,
				RequiredChecks:        c.prChecks,
			},
			Logger: logger,
		})
		if err != nil {
			return fmt.Errorf("could not create pr action service: %w", err)
		}
	}

	srv, err := server.New(server.Config{
		Chat:      chatSvc,
		Dispatch:  dispatchSvc,
		Heartbeat: heartbeatSvc,
		Retry:     retrySvc,
		PRAction:  practionSvc,
		Artifacts: store,
		APIKeys:   keys,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("could not create server: %w", err)
	}

	httpSrv := &http.Server{Addr: c.listenAddr, Handler: srv.Handler()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	logger.Infof("HTTP server listening on %s", c.listenAddr)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

func parseAPIKeys(raw map[string]string) (map[string]int, error) {
	keys := make(map[string]int, len(raw))
	for token, uid := range raw {
		id, err := strconv.Atoi(uid)
		if err != nil {
			return nil, fmt.Errorf("invalid api key user id %q: %w", uid, err)
		}
		keys[token] = id
	}
	return keys, nil
}
