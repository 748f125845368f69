package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/taskhive/taskhive/internal/model"
)

const runnerColumns = `
	id, user_id, name, disabled, capabilities, workspaces,
	last_seen_at, created_at, updated_at
`

// UpsertRunner creates or refreshes a runner. The created_at of an existing
// row is preserved.
func (r *Repository) UpsertRunner(ctx context.Context, runner model.Runner) error {
	capabilities, err := encodeJSON(runner.Capabilities)
	if err != nil {
		return err
	}
	workspaces, err := encodeJSON(runner.Workspaces)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO runners (` + runnerColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			user_id = excluded.user_id,
			name = excluded.name,
			disabled = excluded.disabled,
			capabilities = excluded.capabilities,
			workspaces = excluded.workspaces,
			last_seen_at = excluded.last_seen_at,
			updated_at = excluded.updated_at
	`

	_, err = r.db.ExecContext(
		ctx,
		query,
		runner.ID,
		runner.UserID,
		runner.Name,
		runner.Disabled,
		capabilities,
		workspaces,
		runner.LastSeenAt.Unix(),
		runner.CreatedAt.Unix(),
		runner.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("could not upsert runner: %w", err)
	}

	r.logger.Debugf("Upserted runner in repository: %s", runner.ID)
	return nil
}

// GetRunner retrieves a runner by ID.
func (r *Repository) GetRunner(ctx context.Context, id string) (*model.Runner, error) {
	query := `SELECT ` + runnerColumns + ` FROM runners WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	runner, err := r.scanRunner(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("runner %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query runner: %w", err)
	}

	return &runner, nil
}

// ListRunnersByUser returns the user's runners sorted by name.
func (r *Repository) ListRunnersByUser(ctx context.Context, userID int) ([]model.Runner, error) {
	query := `SELECT ` + runnerColumns + ` FROM runners WHERE user_id = ? ORDER BY name ASC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("could not query runners: %w", err)
	}
	defer rows.Close()

	var runners []model.Runner
	for rows.Next() {
		runner, err := r.scanRunner(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}
		runners = append(runners, runner)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return runners, nil
}

func (r *Repository) scanRunner(s scanner) (model.Runner, error) {
	var runner model.Runner
	var capabilities, workspaces string
	var lastSeenAt, createdAt, updatedAt int64

	err := s.Scan(
		&runner.ID,
		&runner.UserID,
		&runner.Name,
		&runner.Disabled,
		&capabilities,
		&workspaces,
		&lastSeenAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return model.Runner{}, err
	}

	if err := decodeJSON(capabilities, &runner.Capabilities); err != nil {
		return model.Runner{}, err
	}
	if err := decodeJSON(workspaces, &runner.Workspaces); err != nil {
		return model.Runner{}, err
	}
	runner.LastSeenAt = timeFromUnix(lastSeenAt)
	runner.CreatedAt = timeFromUnix(createdAt)
	runner.UpdatedAt = timeFromUnix(updatedAt)

	return runner, nil
}
