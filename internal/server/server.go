// Package server exposes the orchestration API over HTTP. Plain net/http
// with pattern routing, one handler per operation, and a single error-to-
// status mapping for the whole surface.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/taskhive/taskhive/internal/app/chat"
	"github.com/taskhive/taskhive/internal/app/dispatch"
	"github.com/taskhive/taskhive/internal/app/heartbeat"
	"github.com/taskhive/taskhive/internal/app/praction"
	"github.com/taskhive/taskhive/internal/app/retry"
	"github.com/taskhive/taskhive/internal/artifact"
	"github.com/taskhive/taskhive/internal/log"
	"github.com/taskhive/taskhive/internal/model"
	"github.com/taskhive/taskhive/internal/server/apiv1"
)

// Config is the configuration for the server.
type Config struct {
	Chat      *chat.Service
	Dispatch  *dispatch.Service
	Heartbeat *heartbeat.Service
	Retry     *retry.Service
	PRAction  *praction.Service
	Artifacts artifact.Store

	// APIKeys maps bearer tokens to user ids. A static map stands in for
	// real user management.
	APIKeys map[string]int
	Logger  log.Logger
}

func (c *Config) defaults() error {
	if c.Chat == nil || c.Dispatch == nil || c.Heartbeat == nil || c.Retry == nil {
		return fmt.Errorf("chat, dispatch, heartbeat and retry services are required")
	}
	if len(c.APIKeys) == 0 {
		return fmt.Errorf("at least one api key is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "server.Server"})
	return nil
}

// Server is the HTTP API server.
type Server struct {
	chat      *chat.Service
	dispatch  *dispatch.Service
	heartbeat *heartbeat.Service
	retry     *retry.Service
	praction  *praction.Service
	artifacts artifact.Store
	apiKeys   map[string]int
	logger    log.Logger
}

// New creates a new server.
func New(cfg Config) (*Server, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Server{
		chat:      cfg.Chat,
		dispatch:  cfg.Dispatch,
		heartbeat: cfg.Heartbeat,
		retry:     cfg.Retry,
		praction:  cfg.PRAction,
		artifacts: cfg.Artifacts,
		apiKeys:   cfg.APIKeys,
		logger:    cfg.Logger,
	}, nil
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/tasks", s.auth(s.handleCreateTask))
	mux.HandleFunc("GET /api/v1/tasks", s.auth(s.handleListTasks))
	mux.HandleFunc("GET /api/v1/tasks/{taskID}", s.auth(s.handleGetTask))
	mux.HandleFunc("GET /api/v1/tasks/{taskID}/messages", s.auth(s.handleListMessages))
	mux.HandleFunc("POST /api/v1/tasks/{taskID}/messages", s.auth(s.handleAppendMessage))
	mux.HandleFunc("POST /api/v1/tasks/{taskID}/cancel", s.auth(s.handleCancelTask))
	mux.HandleFunc("POST /api/v1/tasks/{taskID}/retry", s.auth(s.handleRetry))
	mux.HandleFunc("PATCH /api/v1/tasks/{taskID}/subtasks/{subtaskID}", s.auth(s.handleSubtaskUpdate))

	mux.HandleFunc("GET /api/v1/runners", s.auth(s.handleListRunners))
	mux.HandleFunc("POST /api/v1/runners/{runnerID}/heartbeat", s.auth(s.handleHeartbeat))
	mux.HandleFunc("POST /api/v1/runners/{runnerID}/poll", s.auth(s.handlePoll))
	mux.HandleFunc("POST /api/v1/runners/{runnerID}/artifacts", s.auth(s.handleArtifactUpload))

	mux.HandleFunc("POST /api/v1/pr/actions/create-pr", s.auth(s.handleCreatePR))

	return mux
}

type authedHandler func(w http.ResponseWriter, r *http.Request, userID int)

// auth resolves the bearer token to a user id. Everything behind the API
// requires a known key.
func (s *Server) auth(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		userID, ok := s.apiKeys[token]
		if token == "" || !ok {
			s.writeJSON(w, http.StatusUnauthorized, apiv1.Error{Message: "invalid or missing api key"})
			return
		}
		next(w, r, userID)
	}
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request, userID int) {
	var req apiv1.CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, apiv1.Error{Message: "invalid body"})
		return
	}

	task, err := s.chat.CreateTask(r.Context(), chat.CreateTaskOptions{
		UserID: userID,
		Title:  req.Title,
		Prompt: req.Prompt,
		Labels: req.Labels,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, apiv1.NewTask(*task))
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request, userID int) {
	tasks, err := s.chat.ListTasks(r.Context(), userID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	out := make([]apiv1.Task, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, apiv1.NewTask(t))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request, userID int) {
	task, err := s.chat.GetTask(r.Context(), r.PathValue("taskID"), userID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, apiv1.NewTask(*task))
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request, userID int) {
	subtasks, err := s.chat.ListMessages(r.Context(), r.PathValue("taskID"), userID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	out := make([]apiv1.Subtask, 0, len(subtasks))
	for _, sub := range subtasks {
		out = append(out, apiv1.NewSubtask(sub))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAppendMessage(w http.ResponseWriter, r *http.Request, userID int) {
	var req apiv1.AppendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, apiv1.Error{Message: "invalid body"})
		return
	}

	task, err := s.chat.AppendMessage(r.Context(), chat.AppendMessageOptions{
		TaskID: r.PathValue("taskID"),
		UserID: userID,
		Prompt: req.Prompt,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, apiv1.NewTask(*task))
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request, userID int) {
	task, err := s.chat.CancelTask(r.Context(), r.PathValue("taskID"), userID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, apiv1.NewTask(*task))
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request, userID int) {
	var req apiv1.RetryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, apiv1.Error{Message: "invalid body"})
		return
	}

	sub, err := s.retry.Retry(r.Context(), retry.RetryOptions{
		TaskID:    r.PathValue("taskID"),
		UserID:    userID,
		MessageID: req.MessageID,
		Mode:      model.RetryMode(req.Mode),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, apiv1.NewSubtask(*sub))
}

// handleSubtaskUpdate ingests one executor callback. Ownership is checked
// through the task, and local tasks additionally require the calling runner
// to identify itself, be assigned, and not be disabled. The registry gate
// keeps the operator kill switch effective against in-flight runners.
func (s *Server) handleSubtaskUpdate(w http.ResponseWriter, r *http.Request, userID int) {
	taskID := r.PathValue("taskID")
	task, err := s.chat.GetTask(r.Context(), taskID, userID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if task.IsLocal() {
		runnerID := r.URL.Query().Get("runner_id")
		if runnerID == "" || runnerID != task.LocalRunnerID() {
			s.writeError(w, fmt.Errorf("task %s is not assigned to the calling runner: %w", taskID, model.ErrNotAuthorized))
			return
		}
		if err := s.heartbeat.AuthorizeRunner(r.Context(), runnerID, userID); err != nil {
			s.writeError(w, err)
			return
		}
	}

	var req apiv1.SubtaskUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, apiv1.Error{Message: "invalid body"})
		return
	}

	sub, err := s.dispatch.ApplyUpdate(r.Context(), req.ToModel(r.PathValue("subtaskID")))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, apiv1.NewSubtask(*sub))
}

func (s *Server) handleListRunners(w http.ResponseWriter, r *http.Request, userID int) {
	runners, err := s.heartbeat.ListRunners(r.Context(), userID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	out := make([]apiv1.Runner, 0, len(runners))
	for _, runner := range runners {
		out = append(out, apiv1.NewRunner(runner))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request, userID int) {
	var req apiv1.HeartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, apiv1.Error{Message: "invalid body"})
		return
	}

	runner, err := s.heartbeat.Beat(r.Context(), heartbeat.BeatOptions{
		RunnerID:     r.PathValue("runnerID"),
		UserID:       userID,
		Name:         req.Name,
		Capabilities: req.Capabilities,
		Workspaces:   req.Workspaces,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, apiv1.NewRunner(*runner))
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request, userID int) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := s.dispatch.Poll(r.Context(), dispatch.PollOptions{
		RunnerID: r.PathValue("runnerID"),
		UserID:   userID,
		Status:   model.TaskStatus(r.URL.Query().Get("status")),
		Limit:    limit,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := apiv1.PollResponse{Items: make([]apiv1.WorkItem, 0, len(items))}
	for _, item := range items {
		resp.Items = append(resp.Items, apiv1.WorkItem{
			Task:    apiv1.NewTask(item.Task),
			Subtask: apiv1.NewSubtask(item.Subtask),
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleArtifactUpload stores a runner-uploaded file. The body is the raw
// artifact, the name travels as a query parameter.
func (s *Server) handleArtifactUpload(w http.ResponseWriter, r *http.Request, userID int) {
	if s.artifacts == nil {
		s.writeJSON(w, http.StatusNotImplemented, apiv1.Error{Message: "artifact storage is not configured"})
		return
	}

	runnerID := r.PathValue("runnerID")
	if err := s.heartbeat.AuthorizeRunner(r.Context(), runnerID, userID); err != nil {
		s.writeError(w, err)
		return
	}

	name := r.URL.Query().Get("name")
	path, err := s.artifacts.Save(r.Context(), userID, runnerID, name, r.Body)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]string{"path": path})
}

func (s *Server) handleCreatePR(w http.ResponseWriter, r *http.Request, userID int) {
	if s.praction == nil {
		s.writeJSON(w, http.StatusNotImplemented, apiv1.Error{Message: "pr actions are not configured"})
		return
	}

	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		s.writeJSON(w, http.StatusBadRequest, apiv1.Error{Message: "Idempotency-Key header is required"})
		return
	}

	var req apiv1.CreatePRRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, apiv1.Error{Message: "invalid body"})
		return
	}

	result, err := s.praction.CreatePR(r.Context(), praction.CreatePROptions{
		UserID:         userID,
		IdempotencyKey: key,
		Provider:       req.Provider,
		GitDomain:      req.GitDomain,
		RepoFullName:   req.RepoFullName,
		BaseBranch:     req.BaseBranch,
		HeadBranch:     req.HeadBranch,
		Title:          req.Title,
		Body:           req.Body,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	s.writeJSON(w, status, apiv1.CreatePRResponse{
		Number: result.PRNumber,
		URL:    result.PRURL,
		Replay: result.Replayed,
	})
}

// writeError maps domain errors onto HTTP statuses. Policy denials carry
// their stable code and audit id in the body.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var denied *praction.DeniedError
	if errors.As(err, &denied) {
		s.writeJSON(w, http.StatusForbidden, apiv1.Error{
			Code:    denied.Code,
			Message: denied.Message,
			AuditID: denied.AuditID,
		})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrNotValid):
		status = http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrNotAuthorized):
		status = http.StatusForbidden
	case errors.Is(err, model.ErrConflict), errors.Is(err, model.ErrAlreadyExists):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		s.logger.Errorf("Unhandled error: %s", err)
	}

	s.writeJSON(w, status, apiv1.Error{Message: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Errorf("Could not encode response: %s", err)
	}
}
