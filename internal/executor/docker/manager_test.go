package docker_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/taskhive/taskhive/internal/app/dispatch"
	"github.com/taskhive/taskhive/internal/executor/docker"
	"github.com/taskhive/taskhive/internal/model"
	"github.com/taskhive/taskhive/internal/storage/storagemock"
)

type fakeSource struct {
	items []dispatch.WorkItem
	err   error
}

func (f *fakeSource) PollContainers(ctx context.Context) ([]dispatch.WorkItem, error) {
	return f.items, f.err
}

type fakeLauncher struct {
	launched []string
	stopped  []string
	removed  []string
	next     int
}

func (f *fakeLauncher) Launch(ctx context.Context, item dispatch.WorkItem) (string, error) {
	f.next++
	name := fmt.Sprintf("taskhive-%d", f.next)
	f.launched = append(f.launched, item.Subtask.ID)
	return name, nil
}

func (f *fakeLauncher) Stop(ctx context.Context, containerName string) error {
	f.stopped = append(f.stopped, containerName)
	return nil
}

func (f *fakeLauncher) Remove(ctx context.Context, containerName string) error {
	f.removed = append(f.removed, containerName)
	return nil
}

func newManager(t *testing.T, source *fakeSource, launcher *fakeLauncher, repo *storagemock.MockRepository) *docker.Manager {
	t.Helper()
	m, err := docker.NewManager(docker.ManagerConfig{
		Source:      source,
		Launcher:    launcher,
		SubtaskRepo: repo,
	})
	require.NoError(t, err)
	return m
}

func item(subID string) dispatch.WorkItem {
	return dispatch.WorkItem{
		Task:    model.Task{ID: "task-1"},
		Subtask: model.Subtask{ID: subID, TaskID: "task-1"},
	}
}

func TestReconcileLaunchesOnce(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	source := &fakeSource{items: []dispatch.WorkItem{item("sub-1")}}
	launcher := &fakeLauncher{}
	repo := &storagemock.MockRepository{}
	repo.On("GetSubtask", mock.Anything, "sub-1").
		Return(&model.Subtask{ID: "sub-1", Status: model.SubtaskStatusRunning}, nil)

	m := newManager(t, source, launcher, repo)

	require.NoError(m.Reconcile(context.Background()))
	// Same work shows up again while the executor runs, nothing new launches.
	require.NoError(m.Reconcile(context.Background()))

	assert.Equal([]string{"sub-1"}, launcher.launched)
	assert.Empty(launcher.stopped)
}

func TestReconcileTearsDownTerminal(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	source := &fakeSource{items: []dispatch.WorkItem{item("sub-1")}}
	launcher := &fakeLauncher{}
	repo := &storagemock.MockRepository{}
	repo.On("GetSubtask", mock.Anything, "sub-1").
		Return(&model.Subtask{ID: "sub-1", Status: model.SubtaskStatusCompleted}, nil)

	m := newManager(t, source, launcher, repo)
	require.NoError(m.Reconcile(context.Background()))

	// The executor is up, the subtask then completes.
	source.items = nil
	require.NoError(m.Reconcile(context.Background()))

	assert.Equal([]string{"taskhive-1"}, launcher.stopped)
	assert.Equal([]string{"taskhive-1"}, launcher.removed)

	// The container is gone from the running set, later cycles do nothing.
	require.NoError(m.Reconcile(context.Background()))
	assert.Len(launcher.stopped, 1)
}

func TestReconcilePollFailure(t *testing.T) {
	source := &fakeSource{err: fmt.Errorf("store down")}
	launcher := &fakeLauncher{}
	repo := &storagemock.MockRepository{}

	m := newManager(t, source, launcher, repo)
	assert.Error(t, m.Reconcile(context.Background()))
}
