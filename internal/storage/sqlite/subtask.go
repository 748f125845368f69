package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/taskhive/taskhive/internal/model"
)

const subtaskColumns = `
	id, task_id, user_id, title, role, status, progress,
	message_id, parent_id, prompt, error_message,
	executor_name, executor_namespace, result,
	created_at, updated_at, completed_at
`

// CreateSubtask creates a new subtask in the repository.
func (r *Repository) CreateSubtask(ctx context.Context, s model.Subtask) error {
	result, err := encodeJSON(s.Result)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO subtasks (` + subtaskColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(
		ctx,
		query,
		s.ID,
		s.TaskID,
		s.UserID,
		s.Title,
		s.Role,
		s.Status,
		s.Progress,
		s.MessageID,
		s.ParentID,
		s.Prompt,
		s.ErrorMessage,
		s.ExecutorName,
		s.ExecutorNamespace,
		result,
		s.CreatedAt.Unix(),
		s.UpdatedAt.Unix(),
		optionalUnix(s.CompletedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: subtasks.") {
			return fmt.Errorf("subtask already exists: %w", model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not insert subtask: %w", err)
	}

	r.logger.Debugf("Created subtask in repository: %s", s.ID)
	return nil
}

// GetSubtask retrieves a subtask by ID.
func (r *Repository) GetSubtask(ctx context.Context, id string) (*model.Subtask, error) {
	query := `SELECT ` + subtaskColumns + ` FROM subtasks WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	subtask, err := r.scanSubtask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("subtask %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query subtask: %w", err)
	}

	return &subtask, nil
}

// GetSubtaskByMessageID retrieves a subtask through the per-task message index.
func (r *Repository) GetSubtaskByMessageID(ctx context.Context, taskID string, messageID int) (*model.Subtask, error) {
	query := `SELECT ` + subtaskColumns + ` FROM subtasks WHERE task_id = ? AND message_id = ?`

	row := r.db.QueryRowContext(ctx, query, taskID, messageID)
	subtask, err := r.scanSubtask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("subtask with message id %d in task %s: %w", messageID, taskID, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query subtask: %w", err)
	}

	return &subtask, nil
}

// ListSubtasksByTask returns the task's subtasks in message order.
func (r *Repository) ListSubtasksByTask(ctx context.Context, taskID string) ([]model.Subtask, error) {
	query := `SELECT ` + subtaskColumns + ` FROM subtasks WHERE task_id = ? ORDER BY message_id ASC`

	rows, err := r.db.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("could not query subtasks: %w", err)
	}
	defer rows.Close()

	var subtasks []model.Subtask
	for rows.Next() {
		subtask, err := r.scanSubtask(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}
		subtasks = append(subtasks, subtask)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return subtasks, nil
}

// UpdateSubtask updates an existing subtask.
func (r *Repository) UpdateSubtask(ctx context.Context, s model.Subtask) error {
	result, err := encodeJSON(s.Result)
	if err != nil {
		return err
	}

	query := `
		UPDATE subtasks
		SET
			title = ?,
			status = ?,
			progress = ?,
			prompt = ?,
			error_message = ?,
			executor_name = ?,
			executor_namespace = ?,
			result = ?,
			updated_at = ?,
			completed_at = ?
		WHERE id = ?
	`

	res, err := r.db.ExecContext(
		ctx,
		query,
		s.Title,
		s.Status,
		s.Progress,
		s.Prompt,
		s.ErrorMessage,
		s.ExecutorName,
		s.ExecutorNamespace,
		result,
		s.UpdatedAt.Unix(),
		optionalUnix(s.CompletedAt),
		s.ID,
	)
	if err != nil {
		return fmt.Errorf("could not update subtask: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("subtask %s: %w", s.ID, model.ErrNotFound)
	}

	r.logger.Debugf("Updated subtask in repository: %s", s.ID)
	return nil
}

func (r *Repository) scanSubtask(s scanner) (model.Subtask, error) {
	var subtask model.Subtask
	var result string
	var createdAt, updatedAt int64
	var completedAt sql.NullInt64

	err := s.Scan(
		&subtask.ID,
		&subtask.TaskID,
		&subtask.UserID,
		&subtask.Title,
		&subtask.Role,
		&subtask.Status,
		&subtask.Progress,
		&subtask.MessageID,
		&subtask.ParentID,
		&subtask.Prompt,
		&subtask.ErrorMessage,
		&subtask.ExecutorName,
		&subtask.ExecutorNamespace,
		&result,
		&createdAt,
		&updatedAt,
		&completedAt,
	)
	if err != nil {
		return model.Subtask{}, err
	}

	if err := decodeJSON(result, &subtask.Result); err != nil {
		return model.Subtask{}, err
	}
	subtask.CreatedAt = timeFromUnix(createdAt)
	subtask.UpdatedAt = timeFromUnix(updatedAt)
	subtask.CompletedAt = optionalTime(completedAt)

	return subtask, nil
}
