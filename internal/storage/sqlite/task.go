package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/taskhive/taskhive/internal/model"
)

const taskColumns = `
	id, user_id, title, status, progress, status_phase,
	error_message, result, labels,
	created_at, updated_at, completed_at
`

// CreateTask creates a new task in the repository.
func (r *Repository) CreateTask(ctx context.Context, t model.Task) error {
	labels, err := encodeJSON(t.Labels)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(
		ctx,
		query,
		t.ID,
		t.UserID,
		t.Title,
		t.Status,
		t.Progress,
		t.StatusPhase,
		t.ErrorMessage,
		t.Result,
		labels,
		t.CreatedAt.Unix(),
		t.UpdatedAt.Unix(),
		optionalUnix(t.CompletedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: tasks.") {
			return fmt.Errorf("task already exists: %w", model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not insert task: %w", err)
	}

	r.logger.Debugf("Created task in repository: %s", t.ID)
	return nil
}

// GetTask retrieves a task by ID.
func (r *Repository) GetTask(ctx context.Context, id string) (*model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	task, err := r.scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("task %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query task: %w", err)
	}

	return &task, nil
}

// ListTasksByUser returns the user's tasks, newest first.
func (r *Repository) ListTasksByUser(ctx context.Context, userID int) ([]model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = ? ORDER BY created_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("could not query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		task, err := r.scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return tasks, nil
}

// ListPendingTasks returns PENDING tasks across all users, oldest first.
func (r *Repository) ListPendingTasks(ctx context.Context) ([]model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE status = ? ORDER BY created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, string(model.TaskStatusPending))
	if err != nil {
		return nil, fmt.Errorf("could not query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		task, err := r.scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return tasks, nil
}

// UpdateTask updates an existing task.
func (r *Repository) UpdateTask(ctx context.Context, t model.Task) error {
	labels, err := encodeJSON(t.Labels)
	if err != nil {
		return err
	}

	query := `
		UPDATE tasks
		SET
			title = ?,
			status = ?,
			progress = ?,
			status_phase = ?,
			error_message = ?,
			result = ?,
			labels = ?,
			updated_at = ?,
			completed_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(
		ctx,
		query,
		t.Title,
		t.Status,
		t.Progress,
		t.StatusPhase,
		t.ErrorMessage,
		t.Result,
		labels,
		t.UpdatedAt.Unix(),
		optionalUnix(t.CompletedAt),
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("could not update task: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("task %s: %w", t.ID, model.ErrNotFound)
	}

	r.logger.Debugf("Updated task in repository: %s", t.ID)
	return nil
}

func (r *Repository) scanTask(s scanner) (model.Task, error) {
	var task model.Task
	var labels string
	var createdAt, updatedAt int64
	var completedAt sql.NullInt64

	err := s.Scan(
		&task.ID,
		&task.UserID,
		&task.Title,
		&task.Status,
		&task.Progress,
		&task.StatusPhase,
		&task.ErrorMessage,
		&task.Result,
		&labels,
		&createdAt,
		&updatedAt,
		&completedAt,
	)
	if err != nil {
		return model.Task{}, err
	}

	if err := decodeJSON(labels, &task.Labels); err != nil {
		return model.Task{}, err
	}
	task.CreatedAt = timeFromUnix(createdAt)
	task.UpdatedAt = timeFromUnix(updatedAt)
	task.CompletedAt = optionalTime(completedAt)

	return task, nil
}
