package chat_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/taskhive/taskhive/internal/app/chat"
	"github.com/taskhive/taskhive/internal/model"
	"github.com/taskhive/taskhive/internal/storage/storagemock"
)

var t0 = time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

func newService(t *testing.T, mRepo *storagemock.MockRepository) *chat.Service {
	t.Helper()
	ids := 0
	svc, err := chat.NewService(chat.ServiceConfig{
		Repository: mRepo,
		NowFn:      func() time.Time { return t0 },
		IDFn: func() string {
			ids++
			return fmt.Sprintf("id-%d", ids)
		},
	})
	require.NoError(t, err)
	return svc
}

func TestCreateTask(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	mRepo := &storagemock.MockRepository{}
	mRepo.On("CreateTask", mock.Anything, mock.MatchedBy(func(task model.Task) bool {
		return task.Status == model.TaskStatusPending && task.Progress == 0 && task.UserID == 7
	})).Once().Return(nil)
	mRepo.On("CreateSubtask", mock.Anything, mock.MatchedBy(func(s model.Subtask) bool {
		return s.Role == model.SubtaskRoleUser && s.MessageID == 1 && s.ParentID == 1 &&
			s.Status == model.SubtaskStatusCompleted
	})).Once().Return(nil)
	mRepo.On("CreateSubtask", mock.Anything, mock.MatchedBy(func(s model.Subtask) bool {
		return s.Role == model.SubtaskRoleAssistant && s.MessageID == 2 && s.ParentID == 1 &&
			s.Status == model.SubtaskStatusPending
	})).Once().Return(nil)

	svc := newService(t, mRepo)
	task, err := svc.CreateTask(context.TODO(), chat.CreateTaskOptions{
		UserID: 7,
		Prompt: "fix the bug\nwith details",
		Labels: map[string]string{"type": "local"},
	})
	require.NoError(err)

	// The title falls back to the prompt's first line.
	assert.Equal("fix the bug", task.Title)
	mRepo.AssertExpectations(t)
}

func TestCreateTaskGeneratedTitle(t *testing.T) {
	tests := map[string]struct {
		prompt   string
		expTitle string
	}{
		"The first prompt line becomes the title.": {
			prompt:   "fix the bug\nwith details",
			expTitle: "fix the bug",
		},
		"A long prompt is cut to the title limit.": {
			prompt:   strings.Repeat("a", 200),
			expTitle: strings.Repeat("a", 80),
		},
		"Truncation never splits a multi-byte rune.": {
			// Three bytes per rune, the 80-byte limit lands mid-rune.
			prompt:   strings.Repeat("€", 100),
			expTitle: strings.Repeat("€", 26),
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			mRepo := &storagemock.MockRepository{}
			mRepo.On("CreateTask", mock.Anything, mock.Anything).Once().Return(nil)
			mRepo.On("CreateSubtask", mock.Anything, mock.Anything).Twice().Return(nil)

			svc := newService(t, mRepo)
			task, err := svc.CreateTask(context.TODO(), chat.CreateTaskOptions{UserID: 7, Prompt: test.prompt})
			require.NoError(t, err)
			assert.Equal(t, test.expTitle, task.Title)
		})
	}
}

func TestCreateTaskEmptyPrompt(t *testing.T) {
	svc := newService(t, &storagemock.MockRepository{})
	_, err := svc.CreateTask(context.TODO(), chat.CreateTaskOptions{UserID: 7})
	assert.ErrorIs(t, err, model.ErrNotValid)
}

func TestAppendMessage(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	done := t0.Add(-time.Hour)
	mRepo := &storagemock.MockRepository{}
	mRepo.On("GetTask", mock.Anything, "task-1").Once().Return(&model.Task{
		ID: "task-1", UserID: 7, Title: "t", Status: model.TaskStatusCompleted,
		Progress: 100, Result: "done", CompletedAt: &done,
	}, nil)
	mRepo.On("ListSubtasksByTask", mock.Anything, "task-1").Once().Return([]model.Subtask{
		{ID: "s1", MessageID: 1, Role: model.SubtaskRoleUser, Status: model.SubtaskStatusCompleted},
		{ID: "s2", MessageID: 2, Role: model.SubtaskRoleAssistant, Status: model.SubtaskStatusCompleted},
	}, nil)
	mRepo.On("CreateSubtask", mock.Anything, mock.MatchedBy(func(s model.Subtask) bool {
		return s.Role == model.SubtaskRoleUser && s.MessageID == 3 && s.ParentID == 3
	})).Once().Return(nil)
	mRepo.On("CreateSubtask", mock.Anything, mock.MatchedBy(func(s model.Subtask) bool {
		return s.Role == model.SubtaskRoleAssistant && s.MessageID == 4 && s.ParentID == 3
	})).Once().Return(nil)
	mRepo.On("UpdateTask", mock.Anything, mock.MatchedBy(func(task model.Task) bool {
		return task.Status == model.TaskStatusPending && task.Progress == 0 &&
			task.ErrorMessage == "" && task.Result == "" && task.CompletedAt == nil
	})).Once().Return(nil)

	svc := newService(t, mRepo)
	task, err := svc.AppendMessage(context.TODO(), chat.AppendMessageOptions{
		TaskID: "task-1", UserID: 7, Prompt: "now add tests",
	})
	require.NoError(err)
	assert.Equal(model.TaskStatusPending, task.Status)
	mRepo.AssertExpectations(t)
}

func TestAppendMessageWhileRunning(t *testing.T) {
	mRepo := &storagemock.MockRepository{}
	mRepo.On("GetTask", mock.Anything, "task-1").Once().Return(&model.Task{
		ID: "task-1", UserID: 7, Title: "t", Status: model.TaskStatusRunning,
	}, nil)

	svc := newService(t, mRepo)
	_, err := svc.AppendMessage(context.TODO(), chat.AppendMessageOptions{
		TaskID: "task-1", UserID: 7, Prompt: "more",
	})
	assert.ErrorIs(t, err, model.ErrConflict)
	mRepo.AssertExpectations(t)
}

func TestCancelTask(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	mRepo := &storagemock.MockRepository{}
	mRepo.On("GetTask", mock.Anything, "task-1").Once().Return(&model.Task{
		ID: "task-1", UserID: 7, Title: "t", Status: model.TaskStatusRunning, Progress: 40,
	}, nil)
	mRepo.On("ListSubtasksByTask", mock.Anything, "task-1").Once().Return([]model.Subtask{
		{ID: "s1", TaskID: "task-1", MessageID: 1, Role: model.SubtaskRoleUser, Status: model.SubtaskStatusCompleted},
		{ID: "s2", TaskID: "task-1", MessageID: 2, Role: model.SubtaskRoleAssistant, Status: model.SubtaskStatusRunning},
	}, nil)
	// Only the live subtask is touched.
	mRepo.On("UpdateSubtask", mock.Anything, mock.MatchedBy(func(s model.Subtask) bool {
		return s.ID == "s2" && s.Status == model.SubtaskStatusCancelled && s.Progress == 100 && s.CompletedAt != nil
	})).Once().Return(nil)
	mRepo.On("UpdateTask", mock.Anything, mock.MatchedBy(func(task model.Task) bool {
		return task.Status == model.TaskStatusCancelled && task.Progress == 100 && task.CompletedAt != nil
	})).Once().Return(nil)

	svc := newService(t, mRepo)
	task, err := svc.CancelTask(context.TODO(), "task-1", 7)
	require.NoError(err)
	assert.Equal(model.TaskStatusCancelled, task.Status)
	mRepo.AssertExpectations(t)
}

func TestCancelFinishedTask(t *testing.T) {
	mRepo := &storagemock.MockRepository{}
	mRepo.On("GetTask", mock.Anything, "task-1").Once().Return(&model.Task{
		ID: "task-1", UserID: 7, Title: "t", Status: model.TaskStatusCompleted,
	}, nil)

	svc := newService(t, mRepo)
	_, err := svc.CancelTask(context.TODO(), "task-1", 7)
	assert.ErrorIs(t, err, model.ErrConflict)
	mRepo.AssertExpectations(t)
}

func TestOwnershipChecks(t *testing.T) {
	mRepo := &storagemock.MockRepository{}
	mRepo.On("GetTask", mock.Anything, "task-1").Times(3).Return(&model.Task{
		ID: "task-1", UserID: 7, Title: "t", Status: model.TaskStatusRunning,
	}, nil)

	svc := newService(t, mRepo)

	_, err := svc.GetTask(context.TODO(), "task-1", 99)
	assert.ErrorIs(t, err, model.ErrNotAuthorized)

	_, err = svc.ListMessages(context.TODO(), "task-1", 99)
	assert.ErrorIs(t, err, model.ErrNotAuthorized)

	_, err = svc.CancelTask(context.TODO(), "task-1", 99)
	assert.ErrorIs(t, err, model.ErrNotAuthorized)
	mRepo.AssertExpectations(t)
}
