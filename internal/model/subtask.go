package model

import (
	"fmt"
	"time"
)

// SubtaskRole represents who authored a conversation turn.
type SubtaskRole string

const (
	// SubtaskRoleUser is the user message that triggers execution.
	SubtaskRoleUser SubtaskRole = "USER"
	// SubtaskRoleAssistant is the agent reply produced by an executor.
	SubtaskRoleAssistant SubtaskRole = "ASSISTANT"
)

// SubtaskStatus represents the state of a subtask.
type SubtaskStatus string

const (
	SubtaskStatusPending   SubtaskStatus = "PENDING"
	SubtaskStatusRunning   SubtaskStatus = "RUNNING"
	SubtaskStatusCompleted SubtaskStatus = "COMPLETED"
	SubtaskStatusFailed    SubtaskStatus = "FAILED"
	SubtaskStatusCancelled SubtaskStatus = "CANCELLED"
)

// Terminal returns true when the status is final.
func (s SubtaskStatus) Terminal() bool {
	switch s {
	case SubtaskStatusCompleted, SubtaskStatusFailed, SubtaskStatusCancelled:
		return true
	}
	return false
}

// Subtask is one USER or ASSISTANT turn inside a task conversation. It is the
// unit of work an executor actually claims and runs.
//
// MessageID is assigned monotonically per task. ParentID stores the
// triggering message's MessageID, not its row ID: sibling USER/ASSISTANT rows
// of one conversation turn share the same ParentID, so the triggering USER
// row must be resolved through the (task, message id) index. This is a
// deliberate denormalization carried over from the wire protocol.
type Subtask struct {
	ID                string
	TaskID            string
	UserID            int
	Title             string
	Role              SubtaskRole
	Status            SubtaskStatus
	Progress          int
	MessageID         int
	ParentID          int
	Prompt            string
	ErrorMessage      string
	ExecutorName      string
	ExecutorNamespace string
	Result            Result
	CreatedAt         time.Time
	UpdatedAt         time.Time
	CompletedAt       *time.Time
}

// Validate validates the subtask.
func (s *Subtask) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("id is required: %w", ErrNotValid)
	}
	if s.TaskID == "" {
		return fmt.Errorf("task id is required: %w", ErrNotValid)
	}
	if s.Role != SubtaskRoleUser && s.Role != SubtaskRoleAssistant {
		return fmt.Errorf("unknown role %q: %w", s.Role, ErrNotValid)
	}
	if s.MessageID <= 0 {
		return fmt.Errorf("message id must be positive: %w", ErrNotValid)
	}
	return nil
}

// SubtaskUpdate is a partial update reported by an executor callback.
type SubtaskUpdate struct {
	SubtaskID         string
	Status            SubtaskStatus
	Progress          int
	ExecutorName      string
	ExecutorNamespace string
	Result            Result
}
