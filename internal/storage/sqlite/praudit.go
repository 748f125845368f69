package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/taskhive/taskhive/internal/model"
)

const prAuditColumns = `
	id, user_id, idempotency_key, action, provider, git_domain,
	repo_full_name, base_branch, head_branch,
	decision, policy_code, policy_message,
	request_json, response_json, pr_number, pr_url,
	created_at, updated_at
`

// CreatePRActionAudit creates a new audit row. The UNIQUE index on
// (user_id, idempotency_key) makes concurrent inserts for the same key lose
// with model.ErrAlreadyExists, which is how replays are detected.
func (r *Repository) CreatePRActionAudit(ctx context.Context, a model.PRActionAudit) error {
	query := `
		INSERT INTO pr_action_audits (` + prAuditColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		a.ID,
		a.UserID,
		a.IdempotencyKey,
		a.Action,
		a.Provider,
		a.GitDomain,
		a.RepoFullName,
		a.BaseBranch,
		a.HeadBranch,
		a.Decision,
		a.PolicyCode,
		a.PolicyMessage,
		a.RequestJSON,
		a.ResponseJSON,
		a.PRNumber,
		a.PRURL,
		a.CreatedAt.Unix(),
		a.UpdatedAt.Unix(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: pr_action_audits.") {
			return fmt.Errorf("audit for key %s: %w", a.IdempotencyKey, model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not insert audit: %w", err)
	}

	r.logger.Debugf("Created PR action audit in repository: %s", a.ID)
	return nil
}

// GetPRActionAudit retrieves an audit row by its idempotency pair.
func (r *Repository) GetPRActionAudit(ctx context.Context, userID int, idempotencyKey string) (*model.PRActionAudit, error) {
	query := `SELECT ` + prAuditColumns + ` FROM pr_action_audits WHERE user_id = ? AND idempotency_key = ?`

	row := r.db.QueryRowContext(ctx, query, userID, idempotencyKey)
	audit, err := r.scanPRAudit(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("audit for key %s: %w", idempotencyKey, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query audit: %w", err)
	}

	return &audit, nil
}

// UpdatePRActionAudit updates an existing audit row.
func (r *Repository) UpdatePRActionAudit(ctx context.Context, a model.PRActionAudit) error {
	query := `
		UPDATE pr_action_audits
		SET
			decision = ?,
			policy_code = ?,
			policy_message = ?,
			response_json = ?,
			pr_number = ?,
			pr_url = ?,
			updated_at = ?
		WHERE user_id = ? AND idempotency_key = ?
	`

	result, err := r.db.ExecContext(
		ctx,
		query,
		a.Decision,
		a.PolicyCode,
		a.PolicyMessage,
		a.ResponseJSON,
		a.PRNumber,
		a.PRURL,
		a.UpdatedAt.Unix(),
		a.UserID,
		a.IdempotencyKey,
	)
	if err != nil {
		return fmt.Errorf("could not update audit: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("audit for key %s: %w", a.IdempotencyKey, model.ErrNotFound)
	}

	r.logger.Debugf("Updated PR action audit in repository: %s", a.ID)
	return nil
}

func (r *Repository) scanPRAudit(s scanner) (model.PRActionAudit, error) {
	var audit model.PRActionAudit
	var createdAt, updatedAt int64

	err := s.Scan(
		&audit.ID,
		&audit.UserID,
		&audit.IdempotencyKey,
		&audit.Action,
		&audit.Provider,
		&audit.GitDomain,
		&audit.RepoFullName,
		&audit.BaseBranch,
		&audit.HeadBranch,
		&audit.Decision,
		&audit.PolicyCode,
		&audit.PolicyMessage,
		&audit.RequestJSON,
		&audit.ResponseJSON,
		&audit.PRNumber,
		&audit.PRURL,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return model.PRActionAudit{}, err
	}

	audit.CreatedAt = timeFromUnix(createdAt)
	audit.UpdatedAt = timeFromUnix(updatedAt)

	return audit, nil
}
