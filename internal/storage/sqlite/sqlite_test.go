package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhive/taskhive/internal/log"
	"github.com/taskhive/taskhive/internal/model"
	"github.com/taskhive/taskhive/internal/storage/sqlite"
)

func newRepo(t *testing.T) *sqlite.Repository {
	t.Helper()
	repo, err := sqlite.NewRepository(context.Background(), sqlite.RepositoryConfig{
		DBPath: filepath.Join(t.TempDir(), "test.db"),
		Logger: log.Noop,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func taskFixture(id string) model.Task {
	now := time.Now().UTC().Truncate(time.Second)
	return model.Task{
		ID:        id,
		UserID:    7,
		Title:     "refactor the retry loop",
		Status:    model.TaskStatusPending,
		Labels:    map[string]string{"type": "local", "localRunnerId": "runner-1"},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func subtaskFixture(id, taskID string, messageID int) model.Subtask {
	now := time.Now().UTC().Truncate(time.Second)
	return model.Subtask{
		ID:        id,
		TaskID:    taskID,
		UserID:    7,
		Role:      model.SubtaskRoleAssistant,
		Status:    model.SubtaskStatusPending,
		MessageID: messageID,
		ParentID:  messageID - 1,
		Prompt:    "do the thing",
		Result:    model.Result{"shell_type": "Codex"},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestTaskRoundTrip(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	repo := newRepo(t)

	task := taskFixture("task-1")
	require.NoError(repo.CreateTask(ctx, task))

	err := repo.CreateTask(ctx, task)
	assert.ErrorIs(err, model.ErrAlreadyExists)

	got, err := repo.GetTask(ctx, "task-1")
	require.NoError(err)
	assert.Equal(task, *got)

	completed := time.Now().UTC().Truncate(time.Second)
	task.Status = model.TaskStatusCompleted
	task.Progress = 100
	task.CompletedAt = &completed
	require.NoError(repo.UpdateTask(ctx, task))

	got, err = repo.GetTask(ctx, "task-1")
	require.NoError(err)
	assert.Equal(model.TaskStatusCompleted, got.Status)
	require.NotNil(got.CompletedAt)
	assert.Equal(completed, *got.CompletedAt)

	_, err = repo.GetTask(ctx, "missing")
	assert.ErrorIs(err, model.ErrNotFound)

	err = repo.UpdateTask(ctx, taskFixture("missing"))
	assert.ErrorIs(err, model.ErrNotFound)
}

func TestListTasksByUserOrder(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	repo := newRepo(t)

	older := taskFixture("task-old")
	older.CreatedAt = older.CreatedAt.Add(-time.Hour)
	newer := taskFixture("task-new")
	other := taskFixture("task-other")
	other.UserID = 99

	require.NoError(repo.CreateTask(ctx, older))
	require.NoError(repo.CreateTask(ctx, newer))
	require.NoError(repo.CreateTask(ctx, other))

	tasks, err := repo.ListTasksByUser(ctx, 7)
	require.NoError(err)
	require.Len(tasks, 2)
	assert.Equal("task-new", tasks[0].ID)
	assert.Equal("task-old", tasks[1].ID)
}

func TestSubtaskRoundTrip(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	repo := newRepo(t)

	require.NoError(repo.CreateTask(ctx, taskFixture("task-1")))

	sub := subtaskFixture("sub-1", "task-1", 2)
	require.NoError(repo.CreateSubtask(ctx, sub))

	got, err := repo.GetSubtask(ctx, "sub-1")
	require.NoError(err)
	assert.Equal(sub, *got)

	// The result document survives the JSON column round trip.
	sub.Status = model.SubtaskStatusRunning
	sub.Result = model.Result{
		"shell_type":   "Codex",
		"codex_events": []interface{}{map[string]interface{}{"type": "thread.started"}},
	}
	require.NoError(repo.UpdateSubtask(ctx, sub))

	got, err = repo.GetSubtask(ctx, "sub-1")
	require.NoError(err)
	assert.Equal("Codex", got.Result.ShellType())
	assert.Len(got.Result.Events(), 1)

	// The (task, message id) pair is unique.
	dup := subtaskFixture("sub-2", "task-1", 2)
	err = repo.CreateSubtask(ctx, dup)
	assert.ErrorIs(err, model.ErrAlreadyExists)
}

func TestSubtaskMessageIndex(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	repo := newRepo(t)

	require.NoError(repo.CreateTask(ctx, taskFixture("task-1")))
	require.NoError(repo.CreateSubtask(ctx, subtaskFixture("sub-1", "task-1", 1)))
	require.NoError(repo.CreateSubtask(ctx, subtaskFixture("sub-2", "task-1", 2)))

	got, err := repo.GetSubtaskByMessageID(ctx, "task-1", 2)
	require.NoError(err)
	assert.Equal("sub-2", got.ID)

	_, err = repo.GetSubtaskByMessageID(ctx, "task-1", 9)
	assert.ErrorIs(err, model.ErrNotFound)

	subtasks, err := repo.ListSubtasksByTask(ctx, "task-1")
	require.NoError(err)
	require.Len(subtasks, 2)
	assert.Equal("sub-1", subtasks[0].ID)
	assert.Equal("sub-2", subtasks[1].ID)
}

func TestRunnerUpsert(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	repo := newRepo(t)

	now := time.Now().UTC().Truncate(time.Second)
	runner := model.Runner{
		ID:           "runner-1",
		UserID:       7,
		Name:         "laptop",
		Capabilities: map[string]interface{}{"os": "linux"},
		Workspaces:   []interface{}{map[string]interface{}{"name": "api"}},
		LastSeenAt:   now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(repo.UpsertRunner(ctx, runner))

	runner.Name = "laptop-2"
	runner.LastSeenAt = now.Add(time.Minute)
	require.NoError(repo.UpsertRunner(ctx, runner))

	got, err := repo.GetRunner(ctx, "runner-1")
	require.NoError(err)
	assert.Equal("laptop-2", got.Name)
	assert.Equal(now.Add(time.Minute), got.LastSeenAt)
	assert.Equal(map[string]interface{}{"os": "linux"}, got.Capabilities)

	runners, err := repo.ListRunnersByUser(ctx, 7)
	require.NoError(err)
	assert.Len(runners, 1)

	_, err = repo.GetRunner(ctx, "missing")
	assert.ErrorIs(err, model.ErrNotFound)
}

func TestPRActionAuditIdempotencyPair(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	repo := newRepo(t)

	now := time.Now().UTC().Truncate(time.Second)
	audit := model.PRActionAudit{
		ID:             "audit-1",
		UserID:         7,
		IdempotencyKey: "idem-1",
		Action:         model.PRActionCreate,
		Provider:       "github",
		RepoFullName:   "acme/api",
		BaseBranch:     "main",
		HeadBranch:     "wegent/task-1",
		Decision:       model.PRDecisionError,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(repo.CreatePRActionAudit(ctx, audit))

	dup := audit
	dup.ID = "audit-2"
	err := repo.CreatePRActionAudit(ctx, dup)
	assert.ErrorIs(err, model.ErrAlreadyExists)

	other := audit
	other.ID = "audit-3"
	other.UserID = 99
	require.NoError(repo.CreatePRActionAudit(ctx, other))

	audit.Decision = model.PRDecisionAllowed
	audit.PRNumber = 41
	audit.PRURL = "https://github.com/acme/api/pull/41"
	require.NoError(repo.UpdatePRActionAudit(ctx, audit))

	got, err := repo.GetPRActionAudit(ctx, 7, "idem-1")
	require.NoError(err)
	assert.Equal(model.PRDecisionAllowed, got.Decision)
	assert.Equal(41, got.PRNumber)

	_, err = repo.GetPRActionAudit(ctx, 7, "missing")
	assert.ErrorIs(err, model.ErrNotFound)
}
