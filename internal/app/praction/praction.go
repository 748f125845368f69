// Package praction is the idempotency-key gateway in front of pull-request
// writes. Every attempt leaves a durable audit row, concurrent attempts with
// the same key collapse into one external write, and replays of an allowed
// write return the stored outcome instead of writing again.
package praction

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/taskhive/taskhive/internal/gitforge"
	"github.com/taskhive/taskhive/internal/log"
	"github.com/taskhive/taskhive/internal/mask"
	"github.com/taskhive/taskhive/internal/model"
	"github.com/taskhive/taskhive/internal/prpolicy"
	"github.com/taskhive/taskhive/internal/storage"
)

// CodeReplayNotAvailable marks a replayed key whose first attempt never
// reached a terminal decision. The caller must mint a new key.
const CodeReplayNotAvailable = "IDEMPOTENCY_REPLAY_NOT_AVAILABLE"

// ServiceConfig is the configuration for the PR action service.
type ServiceConfig struct {
	Repository storage.Repository
	Forge      gitforge.Provider
	Policy     prpolicy.Config
	Logger     log.Logger

	IDFn  func() string
	NowFn func() time.Time
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Forge == nil {
		return fmt.Errorf("forge provider is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.PRAction"})
	if c.IDFn == nil {
		c.IDFn = func() string { return ulid.MustNew(ulid.Now(), rand.Reader).String() }
	}
	if c.NowFn == nil {
		c.NowFn = func() time.Time { return time.Now().UTC() }
	}
	return nil
}

// Service handles PR action business logic.
type Service struct {
	repo   storage.Repository
	forge  gitforge.Provider
	policy prpolicy.Config
	logger log.Logger
	idFn   func() string
	nowFn  func() time.Time
}

// NewService creates a new PR action service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:   cfg.Repository,
		forge:  cfg.Forge,
		policy: cfg.Policy,
		logger: cfg.Logger,
		idFn:   cfg.IDFn,
		nowFn:  cfg.NowFn,
	}, nil
}

// CreatePROptions are the options for a PR creation attempt.
type CreatePROptions struct {
	UserID         int
	IdempotencyKey string
	Provider       string
	GitDomain      string
	RepoFullName   string
	BaseBranch     string
	HeadBranch     string
	Title          string
	Body           string
}

// Result is the outcome of a PR action, fresh or replayed.
type Result struct {
	AuditID  string
	Decision model.PRDecision
	PRNumber int
	PRURL    string
	Replayed bool
}

// DeniedError carries the policy verdict to the transport layer. It unwraps
// to model.ErrNotAuthorized.
type DeniedError struct {
	Code    string
	Message string
	AuditID string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("pr action denied (%s): %s", e.Code, e.Message)
}

// Unwrap implements errors.Is support.
func (e *DeniedError) Unwrap() error { return model.ErrNotAuthorized }

// CreatePR runs one attempt through the gateway:
//
//  1. Insert the audit placeholder. Losing the unique-key race means the key
//     was already used, so the stored outcome is replayed instead.
//  2. Evaluate the write policy against the forge-fetched diff.
//  3. Denied: record the verdict, no external write ever happens.
//  4. Allowed: create the PR, then record number and URL on the audit row.
func (s *Service) CreatePR(ctx context.Context, opts CreatePROptions) (*Result, error) {
	if opts.IdempotencyKey == "" {
		return nil, fmt.Errorf("idempotency key is required: %w", model.ErrNotValid)
	}
	if opts.RepoFullName == "" || opts.BaseBranch == "" || opts.HeadBranch == "" {
		return nil, fmt.Errorf("repo, base and head are required: %w", model.ErrNotValid)
	}

	now := s.nowFn()
	audit := model.PRActionAudit{
		ID:             s.idFn(),
		UserID:         opts.UserID,
		IdempotencyKey: opts.IdempotencyKey,
		Action:         model.PRActionCreate,
		Provider:       opts.Provider,
		GitDomain:      opts.GitDomain,
		RepoFullName:   opts.RepoFullName,
		BaseBranch:     opts.BaseBranch,
		HeadBranch:     opts.HeadBranch,
		Decision:       model.PRDecisionError,
		RequestJSON:    s.maskedJSON(requestDoc(opts)),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := s.repo.CreatePRActionAudit(ctx, audit)
	if err != nil {
		if errors.Is(err, model.ErrAlreadyExists) {
			return s.replay(ctx, opts.UserID, opts.IdempotencyKey)
		}
		return nil, fmt.Errorf("could not record attempt: %w", err)
	}

	diff, err := s.forge.CompareDiff(ctx, opts.RepoFullName, opts.BaseBranch, opts.HeadBranch)
	if err != nil {
		return nil, fmt.Errorf("could not fetch diff: %w", err)
	}

	decision := prpolicy.EvaluateCreatePR(s.policy, opts.RepoFullName, opts.BaseBranch, opts.HeadBranch, prpolicy.DiffContext{
		ChangedFiles: diff.ChangedFiles,
		FilesChanged: diff.FilesChanged,
		Additions:    diff.Additions,
		Deletions:    diff.Deletions,
		PassedChecks: diff.PassedChecks,
	})

	if !decision.Allowed {
		audit.Decision = model.PRDecisionDenied
		audit.PolicyCode = decision.Code
		audit.PolicyMessage = decision.Message
		audit.UpdatedAt = s.nowFn()
		if err := s.repo.UpdatePRActionAudit(ctx, audit); err != nil {
			return nil, fmt.Errorf("could not record denial: %w", err)
		}

		s.logger.WithCtxValues(ctx).Warningf("Denied PR action on %s: %s", opts.RepoFullName, decision.Code)

		return nil, &DeniedError{Code: decision.Code, Message: decision.Message, AuditID: audit.ID}
	}

	pr, err := s.forge.CreatePullRequest(ctx, gitforge.PullRequestInput{
		RepoFullName: opts.RepoFullName,
		BaseBranch:   opts.BaseBranch,
		HeadBranch:   opts.HeadBranch,
		Title:        opts.Title,
		Body:         opts.Body,
	})
	if err != nil {
		// The row stays at decision=error; a later replay of this key
		// reports the attempt as unrecoverable.
		return nil, fmt.Errorf("could not create pull request: %w", err)
	}

	audit.Decision = model.PRDecisionAllowed
	audit.PolicyCode = decision.Code
	audit.PRNumber = pr.Number
	audit.PRURL = pr.URL
	audit.ResponseJSON = s.maskedJSON(map[string]interface{}{"number": pr.Number, "url": pr.URL})
	audit.UpdatedAt = s.nowFn()
	if err := s.repo.UpdatePRActionAudit(ctx, audit); err != nil {
		return nil, fmt.Errorf("could not record result: %w", err)
	}

	s.logger.WithCtxValues(ctx).Infof("Created PR %s#%d (audit %s)", opts.RepoFullName, pr.Number, audit.ID)

	return &Result{
		AuditID:  audit.ID,
		Decision: model.PRDecisionAllowed,
		PRNumber: pr.Number,
		PRURL:    pr.URL,
	}, nil
}

// replay resolves a key that already has an audit row.
func (s *Service) replay(ctx context.Context, userID int, idempotencyKey string) (*Result, error) {
	stored, err := s.repo.GetPRActionAudit(ctx, userID, idempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("could not load stored attempt: %w", err)
	}

	switch stored.Decision {
	case model.PRDecisionAllowed:
		s.logger.WithCtxValues(ctx).Infof("Replayed PR action for key %s", idempotencyKey)
		return &Result{
			AuditID:  stored.ID,
			Decision: model.PRDecisionAllowed,
			PRNumber: stored.PRNumber,
			PRURL:    stored.PRURL,
			Replayed: true,
		}, nil
	case model.PRDecisionDenied:
		return nil, &DeniedError{Code: stored.PolicyCode, Message: stored.PolicyMessage, AuditID: stored.ID}
	default:
		return nil, fmt.Errorf("previous attempt with this key did not finish (%s): %w", CodeReplayNotAvailable, model.ErrConflict)
	}
}

func requestDoc(opts CreatePROptions) map[string]interface{} {
	return map[string]interface{}{
		"action":    model.PRActionCreate,
		"provider":  opts.Provider,
		"gitDomain": opts.GitDomain,
		"repo":      opts.RepoFullName,
		"base":      opts.BaseBranch,
		"head":      opts.HeadBranch,
		"title":     opts.Title,
		"body":      opts.Body,
	}
}

func (s *Service) maskedJSON(doc map[string]interface{}) string {
	data, err := json.Marshal(mask.JSONValue(doc))
	if err != nil {
		s.logger.Errorf("could not encode audit document: %s", err)
		return ""
	}
	return string(data)
}
