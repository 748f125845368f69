package dispatch_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/taskhive/taskhive/internal/app/dispatch"
	"github.com/taskhive/taskhive/internal/model"
	"github.com/taskhive/taskhive/internal/storage/storagemock"
)

var (
	t0      = time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	fixedID = "00000000-0000-4000-8000-000000000001"
)

func newService(t *testing.T, mRepo *storagemock.MockRepository) *dispatch.Service {
	t.Helper()
	svc, err := dispatch.NewService(dispatch.ServiceConfig{
		Repository: mRepo,
		NowFn:      func() time.Time { return t0 },
		UUIDFn:     func() string { return fixedID },
	})
	require.NoError(t, err)
	return svc
}

func enabledRunner() *model.Runner {
	return &model.Runner{ID: "runner-1", UserID: 7, Name: "laptop"}
}

func localTask(id string, status model.TaskStatus) model.Task {
	return model.Task{
		ID:     id,
		UserID: 7,
		Title:  "t",
		Status: status,
		Labels: map[string]string{"type": "local", "localRunnerId": "runner-1"},
	}
}

func pendingAssistant(id, taskID string, result model.Result) model.Subtask {
	return model.Subtask{
		ID:        id,
		TaskID:    taskID,
		UserID:    7,
		Role:      model.SubtaskRoleAssistant,
		Status:    model.SubtaskStatusPending,
		MessageID: 2,
		ParentID:  1,
		Prompt:    "fix the bug",
		Result:    result,
	}
}

func TestPoll(t *testing.T) {
	tests := map[string]struct {
		opts     dispatch.PollOptions
		mock     func(mRepo *storagemock.MockRepository)
		expErr   bool
		expItems int
		check    func(assert *assert.Assertions, items []dispatch.WorkItem)
	}{
		"An unknown runner cannot poll.": {
			opts: dispatch.PollOptions{RunnerID: "ghost", UserID: 7},
			mock: func(mRepo *storagemock.MockRepository) {
				mRepo.On("GetRunner", mock.Anything, "ghost").Once().Return(nil, model.ErrNotFound)
			},
			expErr: true,
		},

		"Another user's runner cannot poll.": {
			opts: dispatch.PollOptions{RunnerID: "runner-1", UserID: 99},
			mock: func(mRepo *storagemock.MockRepository) {
				mRepo.On("GetRunner", mock.Anything, "runner-1").Once().Return(enabledRunner(), nil)
			},
			expErr: true,
		},

		"A disabled runner cannot poll.": {
			opts: dispatch.PollOptions{RunnerID: "runner-1", UserID: 7},
			mock: func(mRepo *storagemock.MockRepository) {
				r := enabledRunner()
				r.Disabled = true
				mRepo.On("GetRunner", mock.Anything, "runner-1").Once().Return(r, nil)
			},
			expErr: true,
		},

		"Only pending local tasks pinned to the runner are dispatched.": {
			opts: dispatch.PollOptions{RunnerID: "runner-1", UserID: 7},
			mock: func(mRepo *storagemock.MockRepository) {
				mRepo.On("GetRunner", mock.Anything, "runner-1").Once().Return(enabledRunner(), nil)

				otherRunner := localTask("task-other-runner", model.TaskStatusPending)
				otherRunner.Labels["localRunnerId"] = "runner-2"
				container := localTask("task-container", model.TaskStatusPending)
				container.Labels = map[string]string{}

				mRepo.On("ListTasksByUser", mock.Anything, 7).Once().Return([]model.Task{
					localTask("task-1", model.TaskStatusPending),
					localTask("task-running", model.TaskStatusRunning),
					otherRunner,
					container,
				}, nil)
				mRepo.On("ListSubtasksByTask", mock.Anything, "task-1").Once().Return([]model.Subtask{
					pendingAssistant("sub-2", "task-1", nil),
				}, nil)
				mRepo.On("UpdateSubtask", mock.Anything, mock.Anything).Once().Return(nil)
			},
			expItems: 1,
			check: func(assert *assert.Assertions, items []dispatch.WorkItem) {
				assert.Equal("task-1", items[0].Task.ID)
				assert.Equal("sub-2", items[0].Subtask.ID)
			},
		},

		"A poll limit caps the dispatched items.": {
			opts: dispatch.PollOptions{RunnerID: "runner-1", UserID: 7, Limit: 1},
			mock: func(mRepo *storagemock.MockRepository) {
				mRepo.On("GetRunner", mock.Anything, "runner-1").Once().Return(enabledRunner(), nil)
				mRepo.On("ListTasksByUser", mock.Anything, 7).Once().Return([]model.Task{
					localTask("task-1", model.TaskStatusPending),
					localTask("task-2", model.TaskStatusPending),
				}, nil)
				// The second task is never even inspected.
				mRepo.On("ListSubtasksByTask", mock.Anything, "task-1").Once().Return([]model.Subtask{
					pendingAssistant("sub-2", "task-1", nil),
				}, nil)
				mRepo.On("UpdateSubtask", mock.Anything, mock.Anything).Once().Return(nil)
			},
			expItems: 1,
			check: func(assert *assert.Assertions, items []dispatch.WorkItem) {
				assert.Equal("task-1", items[0].Task.ID)
			},
		},

		"A status filter selects matching tasks only.": {
			opts: dispatch.PollOptions{RunnerID: "runner-1", UserID: 7, Status: model.TaskStatusRunning},
			mock: func(mRepo *storagemock.MockRepository) {
				mRepo.On("GetRunner", mock.Anything, "runner-1").Once().Return(enabledRunner(), nil)
				mRepo.On("ListTasksByUser", mock.Anything, 7).Once().Return([]model.Task{
					localTask("task-1", model.TaskStatusPending),
					localTask("task-2", model.TaskStatusRunning),
				}, nil)
				mRepo.On("ListSubtasksByTask", mock.Anything, "task-2").Once().Return([]model.Subtask{
					pendingAssistant("sub-2", "task-2", nil),
				}, nil)
				mRepo.On("UpdateSubtask", mock.Anything, mock.Anything).Once().Return(nil)
			},
			expItems: 1,
			check: func(assert *assert.Assertions, items []dispatch.WorkItem) {
				assert.Equal("task-2", items[0].Task.ID)
			},
		},

		"A pending task with no pending assistant yields nothing.": {
			opts: dispatch.PollOptions{RunnerID: "runner-1", UserID: 7},
			mock: func(mRepo *storagemock.MockRepository) {
				mRepo.On("GetRunner", mock.Anything, "runner-1").Once().Return(enabledRunner(), nil)
				mRepo.On("ListTasksByUser", mock.Anything, 7).Once().Return([]model.Task{
					localTask("task-1", model.TaskStatusPending),
				}, nil)
				done := pendingAssistant("sub-2", "task-1", nil)
				done.Status = model.SubtaskStatusCompleted
				mRepo.On("ListSubtasksByTask", mock.Anything, "task-1").Once().Return([]model.Subtask{done}, nil)
			},
			expItems: 0,
		},

		"A broken resume context is downgraded before leaving the server.": {
			opts: dispatch.PollOptions{RunnerID: "runner-1", UserID: 7},
			mock: func(mRepo *storagemock.MockRepository) {
				mRepo.On("GetRunner", mock.Anything, "runner-1").Once().Return(enabledRunner(), nil)
				mRepo.On("ListTasksByUser", mock.Anything, 7).Once().Return([]model.Task{
					localTask("task-1", model.TaskStatusPending),
				}, nil)
				mRepo.On("ListSubtasksByTask", mock.Anything, "task-1").Once().Return([]model.Subtask{
					pendingAssistant("sub-2", "task-1", model.Result{
						"shell_type": "ClaudeCode",
						"retry_mode": "resume",
					}),
				}, nil)
				mRepo.On("UpdateSubtask", mock.Anything, mock.Anything).Once().Return(nil)
			},
			expItems: 1,
			check: func(assert *assert.Assertions, items []dispatch.WorkItem) {
				result := items[0].Subtask.Result
				assert.Equal("new_session", result.String(model.ResultKeyRetryMode))
				assert.Equal(fixedID, result.String(model.ResultKeySessionID))
			},
		},

		"A valid resume context is left alone.": {
			opts: dispatch.PollOptions{RunnerID: "runner-1", UserID: 7},
			mock: func(mRepo *storagemock.MockRepository) {
				mRepo.On("GetRunner", mock.Anything, "runner-1").Once().Return(enabledRunner(), nil)
				mRepo.On("ListTasksByUser", mock.Anything, 7).Once().Return([]model.Task{
					localTask("task-1", model.TaskStatusPending),
				}, nil)
				mRepo.On("ListSubtasksByTask", mock.Anything, "task-1").Once().Return([]model.Subtask{
					pendingAssistant("sub-2", "task-1", model.Result{
						"shell_type":        "Codex",
						"retry_mode":        "resume",
						"resume_session_id": "th-9",
					}),
				}, nil)
				mRepo.On("UpdateSubtask", mock.Anything, mock.Anything).Once().Return(nil)
			},
			expItems: 1,
			check: func(assert *assert.Assertions, items []dispatch.WorkItem) {
				result := items[0].Subtask.Result
				assert.Equal("resume", result.String(model.ResultKeyRetryMode))
				assert.Equal("th-9", result.SessionToken())
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			mRepo := &storagemock.MockRepository{}
			test.mock(mRepo)
			svc := newService(t, mRepo)

			items, err := svc.Poll(context.TODO(), test.opts)

			if test.expErr {
				assert.Error(err)
			} else {
				require.NoError(t, err)
				assert.Len(items, test.expItems)
				if test.check != nil {
					test.check(assert, items)
				}
			}
			mRepo.AssertExpectations(t)
		})
	}
}

func TestApplyUpdate(t *testing.T) {
	runningTask := func() *model.Task {
		t := localTask("task-1", model.TaskStatusRunning)
		t.Progress = 10
		return &t
	}
	runningAssistant := func() *model.Subtask {
		s := pendingAssistant("sub-2", "task-1", model.Result{"shell_type": "Codex"})
		s.Status = model.SubtaskStatusRunning
		s.Progress = 30
		return &s
	}

	tests := map[string]struct {
		update model.SubtaskUpdate
		mock   func(mRepo *storagemock.MockRepository)
		expErr bool
		check  func(assert *assert.Assertions, sub *model.Subtask)
	}{
		"A progress tick merges the result and advances progress.": {
			update: model.SubtaskUpdate{
				SubtaskID: "sub-2",
				Status:    model.SubtaskStatusRunning,
				Progress:  55,
				Result:    model.Result{"codex_event": "e1"},
			},
			mock: func(mRepo *storagemock.MockRepository) {
				mRepo.On("GetSubtask", mock.Anything, "sub-2").Once().Return(runningAssistant(), nil)
				mRepo.On("UpdateSubtask", mock.Anything, mock.Anything).Once().Return(nil)
				mRepo.On("GetTask", mock.Anything, "task-1").Once().Return(runningTask(), nil)
				sub := runningAssistant()
				sub.Progress = 55
				mRepo.On("ListSubtasksByTask", mock.Anything, "task-1").Once().Return([]model.Subtask{
					{ID: "sub-1", TaskID: "task-1", Role: model.SubtaskRoleUser, Status: model.SubtaskStatusCompleted, MessageID: 1},
					*sub,
				}, nil)
				mRepo.On("UpdateTask", mock.Anything, mock.Anything).Once().Return(nil)
			},
			check: func(assert *assert.Assertions, sub *model.Subtask) {
				assert.Equal(model.SubtaskStatusRunning, sub.Status)
				assert.Equal(55, sub.Progress)
				assert.Len(sub.Result.Events(), 1)
			},
		},

		"Progress never moves backwards on the subtask.": {
			update: model.SubtaskUpdate{
				SubtaskID: "sub-2",
				Status:    model.SubtaskStatusRunning,
				Progress:  10,
			},
			mock: func(mRepo *storagemock.MockRepository) {
				mRepo.On("GetSubtask", mock.Anything, "sub-2").Once().Return(runningAssistant(), nil)
				mRepo.On("UpdateSubtask", mock.Anything, mock.Anything).Once().Return(nil)
				mRepo.On("GetTask", mock.Anything, "task-1").Once().Return(runningTask(), nil)
				mRepo.On("ListSubtasksByTask", mock.Anything, "task-1").Once().Return([]model.Subtask{*runningAssistant()}, nil)
				mRepo.On("UpdateTask", mock.Anything, mock.Anything).Once().Return(nil)
			},
			check: func(assert *assert.Assertions, sub *model.Subtask) {
				assert.Equal(30, sub.Progress)
			},
		},

		"A terminal callback forces progress 100 and completion time.": {
			update: model.SubtaskUpdate{
				SubtaskID: "sub-2",
				Status:    model.SubtaskStatusCompleted,
				Progress:  80,
				Result:    model.Result{"value": "all done"},
			},
			mock: func(mRepo *storagemock.MockRepository) {
				mRepo.On("GetSubtask", mock.Anything, "sub-2").Once().Return(runningAssistant(), nil)
				mRepo.On("UpdateSubtask", mock.Anything, mock.MatchedBy(func(s model.Subtask) bool {
					return s.Status == model.SubtaskStatusCompleted && s.Progress == 100 && s.CompletedAt != nil
				})).Once().Return(nil)
				mRepo.On("GetTask", mock.Anything, "task-1").Once().Return(runningTask(), nil)
				done := runningAssistant()
				done.Status = model.SubtaskStatusCompleted
				done.Result = model.Result{"shell_type": "Codex", "value": "all done"}
				mRepo.On("ListSubtasksByTask", mock.Anything, "task-1").Once().Return([]model.Subtask{*done}, nil)
				mRepo.On("UpdateTask", mock.Anything, mock.MatchedBy(func(task model.Task) bool {
					return task.Status == model.TaskStatusCompleted && task.Progress == 100 &&
						task.Result == "all done" && task.CompletedAt != nil
				})).Once().Return(nil)
			},
			check: func(assert *assert.Assertions, sub *model.Subtask) {
				assert.Equal("all done", sub.Result.String(model.ResultKeyValue))
			},
		},

		"A failed callback surfaces the error on the task.": {
			update: model.SubtaskUpdate{
				SubtaskID: "sub-2",
				Status:    model.SubtaskStatusFailed,
				Result:    model.Result{"error": "agent exited with code 1"},
			},
			mock: func(mRepo *storagemock.MockRepository) {
				mRepo.On("GetSubtask", mock.Anything, "sub-2").Once().Return(runningAssistant(), nil)
				mRepo.On("UpdateSubtask", mock.Anything, mock.Anything).Once().Return(nil)
				mRepo.On("GetTask", mock.Anything, "task-1").Once().Return(runningTask(), nil)
				failed := runningAssistant()
				failed.Status = model.SubtaskStatusFailed
				mRepo.On("ListSubtasksByTask", mock.Anything, "task-1").Once().Return([]model.Subtask{*failed}, nil)
				mRepo.On("UpdateTask", mock.Anything, mock.MatchedBy(func(task model.Task) bool {
					return task.Status == model.TaskStatusFailed && task.ErrorMessage == "agent exited with code 1"
				})).Once().Return(nil)
			},
			check: func(assert *assert.Assertions, sub *model.Subtask) {
				assert.Equal("agent exited with code 1", sub.ErrorMessage)
			},
		},

		"A late non-terminal callback after completion is ignored.": {
			update: model.SubtaskUpdate{
				SubtaskID: "sub-2",
				Status:    model.SubtaskStatusRunning,
				Progress:  50,
			},
			mock: func(mRepo *storagemock.MockRepository) {
				done := runningAssistant()
				done.Status = model.SubtaskStatusCompleted
				done.Progress = 100
				mRepo.On("GetSubtask", mock.Anything, "sub-2").Once().Return(done, nil)
			},
			check: func(assert *assert.Assertions, sub *model.Subtask) {
				assert.Equal(model.SubtaskStatusCompleted, sub.Status)
				assert.Equal(100, sub.Progress)
			},
		},

		"An unknown subtask fails the callback.": {
			update: model.SubtaskUpdate{SubtaskID: "ghost", Status: model.SubtaskStatusRunning},
			mock: func(mRepo *storagemock.MockRepository) {
				mRepo.On("GetSubtask", mock.Anything, "ghost").Once().Return(nil, model.ErrNotFound)
			},
			expErr: true,
		},

		"The executor namespace defaults when the callback omits it.": {
			update: model.SubtaskUpdate{
				SubtaskID:    "sub-2",
				Status:       model.SubtaskStatusRunning,
				ExecutorName: "local-runner",
			},
			mock: func(mRepo *storagemock.MockRepository) {
				mRepo.On("GetSubtask", mock.Anything, "sub-2").Once().Return(runningAssistant(), nil)
				mRepo.On("UpdateSubtask", mock.Anything, mock.MatchedBy(func(s model.Subtask) bool {
					return s.ExecutorName == "local-runner" && s.ExecutorNamespace == "default"
				})).Once().Return(nil)
				mRepo.On("GetTask", mock.Anything, "task-1").Once().Return(runningTask(), nil)
				mRepo.On("ListSubtasksByTask", mock.Anything, "task-1").Once().Return([]model.Subtask{*runningAssistant()}, nil)
				mRepo.On("UpdateTask", mock.Anything, mock.Anything).Once().Return(nil)
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			mRepo := &storagemock.MockRepository{}
			test.mock(mRepo)
			svc := newService(t, mRepo)

			sub, err := svc.ApplyUpdate(context.TODO(), test.update)

			if test.expErr {
				assert.Error(err)
			} else {
				require.NoError(t, err)
				if test.check != nil {
					test.check(assert, sub)
				}
			}
			mRepo.AssertExpectations(t)
		})
	}
}
