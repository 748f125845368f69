// Package gitforge talks to external git hosting providers. The PR action
// gateway is the only writer, and it always consults the write policy before
// calling CreatePullRequest.
package gitforge

import "context"

// DiffStats is the forge's view of the change between two branches.
type DiffStats struct {
	ChangedFiles []string
	FilesChanged int
	Additions    int
	Deletions    int
	// PassedChecks are the check names currently successful on the head.
	PassedChecks []string
}

// PullRequestInput is the request to open a pull request.
type PullRequestInput struct {
	RepoFullName string
	BaseBranch   string
	HeadBranch   string
	Title        string
	Body         string
}

// PullRequest is the created pull request.
type PullRequest struct {
	Number int
	URL    string
}

// Provider is the interface to a git hosting provider.
type Provider interface {
	// CompareDiff returns the diff stats between base and head of the repo.
	CompareDiff(ctx context.Context, repoFullName, baseBranch, headBranch string) (*DiffStats, error)
	// CreatePullRequest opens a pull request and returns it.
	CreatePullRequest(ctx context.Context, in PullRequestInput) (*PullRequest, error)
}
