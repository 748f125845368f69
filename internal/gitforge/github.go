package gitforge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/taskhive/taskhive/internal/log"
	"github.com/taskhive/taskhive/internal/model"
)

// GitHubClientConfig is the configuration for the GitHub provider.
type GitHubClientConfig struct {
	// APIBaseURL points at the REST API root, e.g. "https://api.github.com".
	APIBaseURL string
	Token      string
	Client     *http.Client
	Logger     log.Logger
}

func (c *GitHubClientConfig) defaults() error {
	if c.APIBaseURL == "" {
		c.APIBaseURL = "https://api.github.com"
	}
	if c.Token == "" {
		return fmt.Errorf("token is required")
	}
	if c.Client == nil {
		c.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "gitforge.GitHub"})
	return nil
}

// GitHubClient is a GitHub implementation of Provider on top of the REST API.
type GitHubClient struct {
	baseURL string
	token   string
	client  *http.Client
	logger  log.Logger
}

// NewGitHubClient creates a new GitHub provider.
func NewGitHubClient(cfg GitHubClientConfig) (*GitHubClient, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &GitHubClient{
		baseURL: cfg.APIBaseURL,
		token:   cfg.Token,
		client:  cfg.Client,
		logger:  cfg.Logger,
	}, nil
}

// CompareDiff returns the diff stats between base and head of the repo.
func (c *GitHubClient) CompareDiff(ctx context.Context, repoFullName, baseBranch, headBranch string) (*DiffStats, error) {
	var compare struct {
		Files []struct {
			Filename  string `json:"filename"`
			Additions int    `json:"additions"`
			Deletions int    `json:"deletions"`
		} `json:"files"`
	}

	url := fmt.Sprintf("%s/repos/%s/compare/%s...%s", c.baseURL, repoFullName, baseBranch, headBranch)
	if err := c.do(ctx, http.MethodGet, url, nil, &compare); err != nil {
		return nil, fmt.Errorf("could not compare branches: %w", err)
	}

	stats := &DiffStats{FilesChanged: len(compare.Files)}
	for _, f := range compare.Files {
		stats.ChangedFiles = append(stats.ChangedFiles, f.Filename)
		stats.Additions += f.Additions
		stats.Deletions += f.Deletions
	}

	checks, err := c.passedChecks(ctx, repoFullName, headBranch)
	if err != nil {
		return nil, err
	}
	stats.PassedChecks = checks

	return stats, nil
}

func (c *GitHubClient) passedChecks(ctx context.Context, repoFullName, ref string) ([]string, error) {
	var checkRuns struct {
		CheckRuns []struct {
			Name       string `json:"name"`
			Status     string `json:"status"`
			Conclusion string `json:"conclusion"`
		} `json:"check_runs"`
	}

	url := fmt.Sprintf("%s/repos/%s/commits/%s/check-runs", c.baseURL, repoFullName, ref)
	if err := c.do(ctx, http.MethodGet, url, nil, &checkRuns); err != nil {
		return nil, fmt.Errorf("could not list check runs: %w", err)
	}

	var passed []string
	for _, run := range checkRuns.CheckRuns {
		if run.Status == "completed" && run.Conclusion == "success" {
			passed = append(passed, run.Name)
		}
	}

	return passed, nil
}

// CreatePullRequest opens a pull request and returns it.
func (c *GitHubClient) CreatePullRequest(ctx context.Context, in PullRequestInput) (*PullRequest, error) {
	body := map[string]string{
		"title": in.Title,
		"body":  in.Body,
		"base":  in.BaseBranch,
		"head":  in.HeadBranch,
	}

	var pr struct {
		Number  int    `json:"number"`
		HTMLURL string `json:"html_url"`
	}

	url := fmt.Sprintf("%s/repos/%s/pulls", c.baseURL, in.RepoFullName)
	if err := c.do(ctx, http.MethodPost, url, body, &pr); err != nil {
		return nil, fmt.Errorf("could not create pull request: %w", err)
	}

	c.logger.Infof("Created pull request %s#%d", in.RepoFullName, pr.Number)

	return &PullRequest{Number: pr.Number, URL: pr.HTMLURL}, nil
}

func (c *GitHubClient) do(ctx context.Context, method, url string, body, dst any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("could not encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("github returned 404: %w", model.ErrNotFound)
	}
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("github returned %d: %s", resp.StatusCode, string(data))
	}

	if dst != nil {
		if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
			return fmt.Errorf("could not decode response: %w", err)
		}
	}

	return nil
}
