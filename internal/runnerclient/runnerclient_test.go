package runnerclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhive/taskhive/internal/model"
	"github.com/taskhive/taskhive/internal/runnerclient"
	"github.com/taskhive/taskhive/internal/server/apiv1"
)

func newClient(t *testing.T, handler http.Handler) *runnerclient.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := runnerclient.NewClient(runnerclient.ClientConfig{
		BaseURL: srv.URL,
		Token:   "tok-1",
	})
	require.NoError(t, err)
	return client
}

func TestPoll(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(http.MethodPost, r.Method)
		assert.Equal("/api/v1/runners/runner-1/poll", r.URL.Path)
		assert.Equal("Bearer tok-1", r.Header.Get("Authorization"))

		_ = json.NewEncoder(w).Encode(apiv1.PollResponse{Items: []apiv1.WorkItem{
			{Task: apiv1.Task{ID: "task-1"}, Subtask: apiv1.Subtask{ID: "sub-1", Prompt: "do it"}},
		}})
	}))

	items, err := client.Poll(context.Background(), "runner-1")
	require.NoError(err)

	require.Len(items, 1)
	assert.Equal("task-1", items[0].Task.ID)
	assert.Equal("do it", items[0].Subtask.Prompt)
}

func TestHeartbeat(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal("/api/v1/runners/runner-1/heartbeat", r.URL.Path)

		var req apiv1.HeartbeatRequest
		require.NoError(json.NewDecoder(r.Body).Decode(&req))
		assert.Equal("laptop", req.Name)

		_ = json.NewEncoder(w).Encode(apiv1.Runner{ID: "runner-1", Name: "laptop"})
	}))

	runner, err := client.Heartbeat(context.Background(), "runner-1", apiv1.HeartbeatRequest{Name: "laptop"})
	require.NoError(err)
	assert.Equal("runner-1", runner.ID)
}

func TestListTasks(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(http.MethodGet, r.Method)
		assert.Equal("/api/v1/tasks", r.URL.Path)

		_ = json.NewEncoder(w).Encode([]apiv1.Task{{ID: "task-1", Title: "Fix"}})
	}))

	tasks, err := client.ListTasks(context.Background())
	require.NoError(err)
	require.Len(tasks, 1)
	assert.Equal("Fix", tasks[0].Title)
}

func TestListRunners(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(http.MethodGet, r.Method)
		assert.Equal("/api/v1/runners", r.URL.Path)

		_ = json.NewEncoder(w).Encode([]apiv1.Runner{{ID: "runner-1", Name: "laptop"}})
	}))

	runners, err := client.ListRunners(context.Background())
	require.NoError(err)
	require.Len(runners, 1)
	assert.Equal("laptop", runners[0].Name)
}

func TestUpdateSubtask(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	var got apiv1.SubtaskUpdateRequest
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(http.MethodPatch, r.Method)
		assert.Equal("/api/v1/tasks/task-1/subtasks/sub-1", r.URL.Path)
		require.NoError(json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))

	err := client.UpdateSubtask(context.Background(), "task-1", "sub-1", apiv1.SubtaskUpdateRequest{
		Status:   "RUNNING",
		Progress: 42,
	})
	require.NoError(err)
	assert.Equal("RUNNING", got.Status)
	assert.Equal(42, got.Progress)
}

func TestUpdateSubtaskRunnerIdentity(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal("/api/v1/tasks/task-1/subtasks/sub-1", r.URL.Path)
		// The callback carries the runner identity so the server can check
		// the task assignment.
		assert.Equal("runner-1", r.URL.Query().Get("runner_id"))
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	client, err := runnerclient.NewClient(runnerclient.ClientConfig{
		BaseURL:  srv.URL,
		Token:    "tok-1",
		RunnerID: "runner-1",
	})
	require.NoError(err)

	err = client.UpdateSubtask(context.Background(), "task-1", "sub-1", apiv1.SubtaskUpdateRequest{
		Status: "RUNNING",
	})
	require.NoError(err)
}

func TestPublisher(t *testing.T) {
	require := require.New(t)

	var got apiv1.SubtaskUpdateRequest
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))

	publish := client.Publisher("task-1", "sub-1")
	require.NoError(publish(context.Background(), model.Result{model.ResultKeyValue: "partial answer"}))

	assert.Equal(t, "partial answer", got.Result.String(model.ResultKeyValue))
}

func TestErrorMapping(t *testing.T) {
	tests := map[string]struct {
		status int
		expErr error
	}{
		"A 404 maps to not found.":      {status: http.StatusNotFound, expErr: model.ErrNotFound},
		"A 403 maps to not authorized.": {status: http.StatusForbidden, expErr: model.ErrNotAuthorized},
		"A 409 maps to conflict.":       {status: http.StatusConflict, expErr: model.ErrConflict},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(test.status)
			}))

			_, err := client.Poll(context.Background(), "runner-1")
			assert.ErrorIs(t, err, test.expErr)
		})
	}
}
