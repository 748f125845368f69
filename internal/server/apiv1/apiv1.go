// Package apiv1 holds the JSON wire types of the v1 HTTP API. The server and
// the runner client share them so both ends stay in sync.
package apiv1

import (
	"time"

	"github.com/taskhive/taskhive/internal/model"
)

// Task is the wire representation of a task.
type Task struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	Status       string            `json:"status"`
	Progress     int               `json:"progress"`
	ErrorMessage string            `json:"error_message,omitempty"`
	Result       string            `json:"result,omitempty"`
	Labels       map[string]string `json:"labels,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
}

// NewTask maps a model task to its wire form.
func NewTask(t model.Task) Task {
	return Task{
		ID:           t.ID,
		Title:        t.Title,
		Status:       string(t.Status),
		Progress:     t.Progress,
		ErrorMessage: t.ErrorMessage,
		Result:       t.Result,
		Labels:       t.Labels,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
		CompletedAt:  t.CompletedAt,
	}
}

// Subtask is the wire representation of a subtask.
type Subtask struct {
	ID           string       `json:"id"`
	TaskID       string       `json:"task_id"`
	Title        string       `json:"title,omitempty"`
	Role         string       `json:"role"`
	Status       string       `json:"status"`
	Progress     int          `json:"progress"`
	MessageID    int          `json:"message_id"`
	ParentID     int          `json:"parent_id"`
	Prompt       string       `json:"prompt,omitempty"`
	ErrorMessage string       `json:"error_message,omitempty"`
	Result       model.Result `json:"result,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty"`
}

// NewSubtask maps a model subtask to its wire form.
func NewSubtask(s model.Subtask) Subtask {
	return Subtask{
		ID:           s.ID,
		TaskID:       s.TaskID,
		Title:        s.Title,
		Role:         string(s.Role),
		Status:       string(s.Status),
		Progress:     s.Progress,
		MessageID:    s.MessageID,
		ParentID:     s.ParentID,
		Prompt:       s.Prompt,
		ErrorMessage: s.ErrorMessage,
		Result:       s.Result,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
		CompletedAt:  s.CompletedAt,
	}
}

// Runner is the wire representation of a runner.
type Runner struct {
	ID           string                 `json:"id"`
	Name         string                 `json:"name"`
	Disabled     bool                   `json:"disabled"`
	Capabilities map[string]interface{} `json:"capabilities,omitempty"`
	Workspaces   []interface{}          `json:"workspaces,omitempty"`
	LastSeenAt   time.Time              `json:"last_seen_at"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// NewRunner maps a model runner to its wire form.
func NewRunner(r model.Runner) Runner {
	return Runner{
		ID:           r.ID,
		Name:         r.Name,
		Disabled:     r.Disabled,
		Capabilities: r.Capabilities,
		Workspaces:   r.Workspaces,
		LastSeenAt:   r.LastSeenAt,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// WorkItem is one dispatched unit of work.
type WorkItem struct {
	Task    Task    `json:"task"`
	Subtask Subtask `json:"subtask"`
}

// PollResponse is the body of a runner poll.
type PollResponse struct {
	Items []WorkItem `json:"items"`
}

// CreateTaskRequest creates a task from an initial prompt.
type CreateTaskRequest struct {
	Title  string            `json:"title,omitempty"`
	Prompt string            `json:"prompt"`
	Labels map[string]string `json:"labels,omitempty"`
}

// AppendMessageRequest appends a follow-up turn to a task.
type AppendMessageRequest struct {
	Prompt string `json:"prompt"`
}

// RetryRequest retries a terminal subtask.
type RetryRequest struct {
	// MessageID names the ASSISTANT turn to rerun.
	MessageID int    `json:"message_id"`
	Mode      string `json:"mode"`
}

// SubtaskUpdateRequest is an executor callback body.
type SubtaskUpdateRequest struct {
	Status            string       `json:"status,omitempty"`
	Progress          int          `json:"progress,omitempty"`
	ExecutorName      string       `json:"executor_name,omitempty"`
	ExecutorNamespace string       `json:"executor_namespace,omitempty"`
	Result            model.Result `json:"result,omitempty"`
}

// ToModel maps the callback body onto a model update for the subtask.
func (r SubtaskUpdateRequest) ToModel(subtaskID string) model.SubtaskUpdate {
	return model.SubtaskUpdate{
		SubtaskID:         subtaskID,
		Status:            model.SubtaskStatus(r.Status),
		Progress:          r.Progress,
		ExecutorName:      r.ExecutorName,
		ExecutorNamespace: r.ExecutorNamespace,
		Result:            r.Result,
	}
}

// HeartbeatRequest registers or refreshes a runner.
type HeartbeatRequest struct {
	Name         string                 `json:"name,omitempty"`
	Capabilities map[string]interface{} `json:"capabilities,omitempty"`
	Workspaces   []interface{}          `json:"workspaces,omitempty"`
}

// CreatePRRequest asks the gateway to open a pull request.
type CreatePRRequest struct {
	Provider     string `json:"provider,omitempty"`
	GitDomain    string `json:"git_domain,omitempty"`
	RepoFullName string `json:"repo_full_name"`
	BaseBranch   string `json:"base_branch"`
	HeadBranch   string `json:"head_branch"`
	Title        string `json:"title"`
	Body         string `json:"body,omitempty"`
}

// CreatePRResponse is the outcome of an allowed pull request action.
type CreatePRResponse struct {
	Number int    `json:"number"`
	URL    string `json:"url"`
	Replay bool   `json:"replay,omitempty"`
}

// Error is the error body returned by the API.
type Error struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	AuditID string `json:"audit_id,omitempty"`
}
