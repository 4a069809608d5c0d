package runner

import (
	"context"
	"errors"
	"testing"

	"github.com/specialistvlad/repotaskrun/internal/localexecutor"
	"github.com/specialistvlad/repotaskrun/internal/model"
	"github.com/specialistvlad/repotaskrun/internal/statestore"
	"github.com/specialistvlad/repotaskrun/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExecutor records executed paths and fails the paths listed in fail.
type fakeExecutor struct {
	ran  []string
	fail map[string]bool
}

func (f *fakeExecutor) Execute(_ context.Context, path string) localexecutor.Result {
	f.ran = append(f.ran, path)
	if f.fail[path] {
		return localexecutor.Result{ExitCode: 1, Stdout: "partial", Stderr: "boom"}
	}
	return localexecutor.Result{Succeeded: true, Stdout: "ok"}
}

type fakeRebooter struct {
	calls int
	// seen is the snapshot visible in the store when Reboot was called.
	seen  *statestore.Snapshot
	store statestore.Store
	err   error
}

func (f *fakeRebooter) Reboot(ctx context.Context) error {
	f.calls++
	if f.store != nil {
		f.seen, _ = f.store.Load(ctx)
	}
	return f.err
}

// failingStore fails every Save.
type failingStore struct{ statestore.Store }

func (failingStore) Save(context.Context, *statestore.Snapshot) error {
	return errors.New("disk full")
}

func oneshot(name, hash string) model.Task {
	return model.Task{Name: name, Type: model.TaskTypeOneShot, Context: model.AudienceSystem, Executable: "/repo/" + name + ".ps1", Hash: hash}
}

func onboot(name string) model.Task {
	return model.Task{Name: name, Type: model.TaskTypeOnBoot, Context: model.AudienceSystem, Executable: "/repo/" + name + ".ps1", Hash: "h-" + name}
}

func newRunner(store statestore.Store, exec *fakeExecutor, reb *fakeRebooter) *Runner {
	return New(model.AudienceSystem, store, exec, reb)
}

func TestRun_FreshCompletes(t *testing.T) {
	// --- Arrange ---
	ctx, _ := testutil.Context(t)
	store := statestore.NewMemoryStore(model.AudienceSystem)
	exec := &fakeExecutor{}
	r := newRunner(store, exec, &fakeRebooter{})
	r.Reconcile(ctx, []model.Task{oneshot("a", "h1"), onboot("b")}, "r1")

	// --- Act ---
	outcome, err := r.Run(ctx)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome)
	assert.Equal(t, []string{"/repo/a.ps1", "/repo/b.ps1"}, exec.ran)

	snap, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Cursor)
	assert.Equal(t, map[string]string{"a": "h1"}, snap.OneShot, "only OneShot tasks are registered")
}

func TestRun_OneShotIdempotence(t *testing.T) {
	ctx, _ := testutil.Context(t)
	store := statestore.NewMemoryStore(model.AudienceSystem)
	tasks := []model.Task{oneshot("a", "h1"), onboot("b")}

	first := &fakeExecutor{}
	r := newRunner(store, first, &fakeRebooter{})
	r.Reconcile(ctx, tasks, "r1")
	_, err := r.Run(ctx)
	require.NoError(t, err)

	t.Run("same hash is skipped, OnBoot runs again", func(t *testing.T) {
		second := &fakeExecutor{}
		r := newRunner(store, second, &fakeRebooter{})
		r.Reconcile(ctx, tasks, "r1")
		_, err := r.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"/repo/b.ps1"}, second.ran)
	})

	t.Run("unchanged content on a finished snapshot starts a new pass", func(t *testing.T) {
		third := &fakeExecutor{}
		r := newRunner(store, third, &fakeRebooter{})
		r.Reconcile(ctx, tasks, "r1")
		assert.Equal(t, 0, r.State().Cursor)
		_, err := r.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"/repo/b.ps1"}, third.ran)
	})

	t.Run("new hash runs again", func(t *testing.T) {
		fourth := &fakeExecutor{}
		r := newRunner(store, fourth, &fakeRebooter{})
		r.Reconcile(ctx, []model.Task{oneshot("a", "h2"), onboot("b")}, "r2")
		_, err := r.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"/repo/a.ps1", "/repo/b.ps1"}, fourth.ran)
		assert.Equal(t, "h2", r.State().OneShot["a"])
	})
}

func TestRun_FailureHalts(t *testing.T) {
	// --- Arrange ---
	ctx, logs := testutil.Context(t)
	store := statestore.NewMemoryStore(model.AudienceSystem)
	require.NoError(t, store.Save(ctx, &statestore.Snapshot{OneShot: map[string]string{"old": "x"}}))

	exec := &fakeExecutor{fail: map[string]bool{"/repo/b.ps1": true}}
	r := newRunner(store, exec, &fakeRebooter{})
	r.Reconcile(ctx, []model.Task{oneshot("a", "h1"), oneshot("b", "h2"), oneshot("c", "h3")}, "r1")

	// --- Act ---
	_, err := r.Run(ctx)

	// --- Assert ---
	var failed *TaskFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, "b", failed.Task.Name)
	assert.Equal(t, "boom", failed.Result.Stderr)
	assert.Equal(t, []string{"/repo/a.ps1", "/repo/b.ps1"}, exec.ran, "no task after the failed one runs")

	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, statestore.ErrNotFound, "a failure deletes the snapshot")

	_, err = r.Step(ctx)
	assert.ErrorIs(t, err, ErrHalted)
	assert.Len(t, exec.ran, 2)

	assert.Contains(t, logs.String(), "stderr=boom")
}

func TestRun_RebootCheckpoint(t *testing.T) {
	// --- Arrange ---
	ctx, _ := testutil.Context(t)
	store := statestore.NewMemoryStore(model.AudienceSystem)
	setup := oneshot("setup", "hs")
	setup.RebootRequired = true
	tasks := []model.Task{setup, onboot("cleanup")}

	exec := &fakeExecutor{}
	reb := &fakeRebooter{store: store}
	r := newRunner(store, exec, reb)
	r.Reconcile(ctx, tasks, "r1")

	// --- Act ---
	outcome, err := r.Run(ctx)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, OutcomeRebootRequested, outcome)
	assert.Equal(t, []string{"/repo/setup.ps1"}, exec.ran)
	assert.Equal(t, 1, reb.calls)
	require.NotNil(t, reb.seen, "state must be durable before the reboot is requested")
	assert.Equal(t, 1, reb.seen.Cursor)
	assert.Equal(t, "hs", reb.seen.OneShot["setup"])

	t.Run("resumed run continues after the reboot task", func(t *testing.T) {
		resumed := &fakeExecutor{}
		r := newRunner(store, resumed, &fakeRebooter{})
		r.Reconcile(ctx, tasks, "r1")
		assert.Equal(t, 1, r.State().Cursor)

		outcome, err := r.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, OutcomeCompleted, outcome)
		assert.Equal(t, []string{"/repo/cleanup.ps1"}, resumed.ran)
	})

	t.Run("changed content after the reboot still skips setup", func(t *testing.T) {
		again := &fakeExecutor{}
		r := newRunner(store, again, &fakeRebooter{})
		r.Reconcile(ctx, tasks, "r2")
		_, err := r.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"/repo/cleanup.ps1"}, again.ran)
	})
}

func TestRun_RebootRequestFails(t *testing.T) {
	ctx, _ := testutil.Context(t)
	store := statestore.NewMemoryStore(model.AudienceSystem)
	task := onboot("patch")
	task.RebootRequired = true

	r := newRunner(store, &fakeExecutor{}, &fakeRebooter{err: errors.New("not permitted")})
	r.Reconcile(ctx, []model.Task{task}, "r1")

	_, err := r.Run(ctx)
	require.ErrorContains(t, err, "not permitted")

	snap, loadErr := store.Load(ctx)
	require.NoError(t, loadErr)
	assert.Equal(t, 1, snap.Cursor, "the checkpoint written before the request stays")
}

func TestRun_SaveFailureIsFatal(t *testing.T) {
	ctx, _ := testutil.Context(t)
	store := failingStore{statestore.NewMemoryStore(model.AudienceSystem)}

	t.Run("terminal checkpoint", func(t *testing.T) {
		r := newRunner(store, &fakeExecutor{}, &fakeRebooter{})
		r.Reconcile(ctx, []model.Task{onboot("a")}, "r1")
		_, err := r.Run(ctx)
		require.ErrorContains(t, err, "disk full")
	})

	t.Run("reboot checkpoint never requests the reboot", func(t *testing.T) {
		task := onboot("a")
		task.RebootRequired = true
		reb := &fakeRebooter{}
		r := newRunner(store, &fakeExecutor{}, reb)
		r.Reconcile(ctx, []model.Task{task}, "r1")
		_, err := r.Run(ctx)
		require.ErrorContains(t, err, "disk full")
		assert.Zero(t, reb.calls)
	})
}

func TestReconcile(t *testing.T) {
	ctx, _ := testutil.Context(t)

	t.Run("changed content resets cursor and prunes registry", func(t *testing.T) {
		store := statestore.NewMemoryStore(model.AudienceSystem)
		require.NoError(t, store.Save(ctx, &statestore.Snapshot{
			Revision: "r0",
			Tasks:    []model.Task{oneshot("gone", "g"), oneshot("kept", "k"), onboot("x")},
			Cursor:   2,
			OneShot:  map[string]string{"gone": "g", "kept": "k"},
		}))

		r := newRunner(store, &fakeExecutor{}, &fakeRebooter{})
		fresh := []model.Task{oneshot("kept", "k"), oneshot("new", "n")}
		r.Reconcile(ctx, fresh, "r1")

		st := r.State()
		assert.Equal(t, 0, st.Cursor)
		assert.Equal(t, fresh, st.Tasks)
		assert.Equal(t, map[string]string{"kept": "k"}, st.OneShot)
		assert.Equal(t, "r1", st.Revision)
	})

	t.Run("same revision resumes an unfinished pass", func(t *testing.T) {
		store := statestore.NewMemoryStore(model.AudienceSystem)
		recorded := []model.Task{onboot("a"), onboot("b")}
		require.NoError(t, store.Save(ctx, &statestore.Snapshot{Revision: "r1", Tasks: recorded, Cursor: 1}))

		r := newRunner(store, &fakeExecutor{}, &fakeRebooter{})
		r.Reconcile(ctx, []model.Task{onboot("b"), onboot("a")}, "r1")

		st := r.State()
		assert.Equal(t, 1, st.Cursor)
		assert.Equal(t, recorded, st.Tasks)
	})

	t.Run("new revision synced before an interruption is still new", func(t *testing.T) {
		// --- Arrange ---
		store := statestore.NewMemoryStore(model.AudienceSystem)
		a := onboot("a")
		a.RebootRequired = true
		b := onboot("b")
		b.DependsOn = model.NewSet("a")
		r := newRunner(store, &fakeExecutor{}, &fakeRebooter{})
		r.Reconcile(ctx, []model.Task{a, b}, "rev-a")
		outcome, err := r.Run(ctx)
		require.NoError(t, err)
		require.Equal(t, OutcomeRebootRequested, outcome)

		x := onboot("x")
		x.RebootRequired = true
		b2 := onboot("b")
		b2.DependsOn = model.NewSet("x")
		next := []model.Task{x, b2}

		// The first invocation on rev-b stops before any checkpoint.
		interrupted := newRunner(store, &fakeExecutor{}, &fakeRebooter{})
		interrupted.Reconcile(ctx, next, "rev-b")

		// --- Act ---
		exec := &fakeExecutor{}
		resumed := newRunner(store, exec, &fakeRebooter{})
		resumed.Reconcile(ctx, next, "rev-b")

		// --- Assert ---
		st := resumed.State()
		assert.Equal(t, 0, st.Cursor)
		assert.Equal(t, next, st.Tasks)
		_, err = resumed.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"/repo/x.ps1"}, exec.ran)

		snap, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, "rev-b", snap.Revision)
	})

	t.Run("unreadable snapshot starts empty", func(t *testing.T) {
		store := statestore.NewMemoryStore(model.AudienceSystem)
		store.SetRaw([]byte("garbage"))

		r := newRunner(store, &fakeExecutor{}, &fakeRebooter{})
		r.Reconcile(ctx, []model.Task{onboot("a")}, "r1")

		st := r.State()
		assert.Equal(t, 0, st.Cursor)
		assert.Len(t, st.Tasks, 1)
		assert.Empty(t, st.OneShot)
	})

	t.Run("snapshot of another audience is ignored", func(t *testing.T) {
		userStore := statestore.NewMemoryStore(model.AudienceUser)
		require.NoError(t, userStore.Save(ctx, &statestore.Snapshot{Tasks: []model.Task{onboot("u")}, OneShot: map[string]string{"u": "1"}}))

		r := New(model.AudienceSystem, systemView{userStore}, &fakeExecutor{}, &fakeRebooter{})
		r.Reconcile(ctx, nil, "r1")
		assert.Empty(t, r.State().OneShot)
	})

	t.Run("empty list completes immediately", func(t *testing.T) {
		store := statestore.NewMemoryStore(model.AudienceSystem)
		exec := &fakeExecutor{}
		r := newRunner(store, exec, &fakeRebooter{})
		r.Reconcile(ctx, nil, "r1")

		outcome, err := r.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, OutcomeCompleted, outcome)
		assert.Empty(t, exec.ran)
	})
}

// systemView loads a snapshot and re-validates it as a system snapshot, the
// way a store bound to the wrong location would see it.
type systemView struct{ statestore.Store }

func (v systemView) Load(ctx context.Context) (*statestore.Snapshot, error) {
	snap, err := v.Store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if err := snap.Validate(model.AudienceSystem); err != nil {
		return nil, err
	}
	return snap, nil
}

func TestRun_CancelledBetweenTasks(t *testing.T) {
	ctx, _ := testutil.Context(t)
	ctx, cancel := context.WithCancel(ctx)
	cancel()

	exec := &fakeExecutor{}
	r := newRunner(statestore.NewMemoryStore(model.AudienceSystem), exec, &fakeRebooter{})
	r.Reconcile(ctx, []model.Task{onboot("a")}, "r1")

	_, err := r.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, exec.ran)
}

// cancellingExecutor cancels the run while the script is "running", the way a
// shutdown signal kills the child process.
type cancellingExecutor struct {
	cancel context.CancelFunc
	ran    []string
}

func (c *cancellingExecutor) Execute(_ context.Context, path string) localexecutor.Result {
	c.ran = append(c.ran, path)
	c.cancel()
	return localexecutor.Result{ExitCode: -1, Stderr: "signal: killed"}
}

func TestRun_CancelledDuringTask(t *testing.T) {
	// --- Arrange ---
	ctx, logs := testutil.Context(t)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	store := statestore.NewMemoryStore(model.AudienceSystem)
	checkpoint := &statestore.Snapshot{
		Revision: "r1",
		Tasks:    []model.Task{onboot("a"), onboot("b")},
		Cursor:   1,
		OneShot:  map[string]string{},
	}
	require.NoError(t, store.Save(ctx, checkpoint))

	exec := &cancellingExecutor{cancel: cancel}
	r := New(model.AudienceSystem, store, exec, &fakeRebooter{})
	r.Reconcile(runCtx, checkpoint.Tasks, "r1")

	// --- Act ---
	_, err := r.Run(runCtx)

	// --- Assert ---
	require.ErrorIs(t, err, context.Canceled)
	var failed *TaskFailedError
	assert.False(t, errors.As(err, &failed), "an interrupted task is not a failed task")
	assert.Equal(t, []string{"/repo/b.ps1"}, exec.ran)
	assert.Equal(t, 1, r.State().Cursor)

	snap, loadErr := store.Load(ctx)
	require.NoError(t, loadErr, "the snapshot must survive an interrupted task")
	assert.Equal(t, 1, snap.Cursor)
	assert.Contains(t, logs.String(), "Task interrupted by shutdown.")
	assert.NotContains(t, logs.String(), "Task failed, halting run.")

	t.Run("next invocation reruns the interrupted task", func(t *testing.T) {
		again := &fakeExecutor{}
		r := newRunner(store, again, &fakeRebooter{})
		r.Reconcile(ctx, checkpoint.Tasks, "r1")
		outcome, err := r.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, OutcomeCompleted, outcome)
		assert.Equal(t, []string{"/repo/b.ps1"}, again.ran)
	})
}

func TestRunner_OnProgress(t *testing.T) {
	// --- Arrange ---
	ctx, _ := testutil.Context(t)
	store := statestore.NewMemoryStore(model.AudienceSystem)
	require.NoError(t, store.Save(ctx, &statestore.Snapshot{
		Revision: "r0",
		Tasks:    []model.Task{oneshot("a", "h1")},
		Cursor:   1,
		OneShot:  map[string]string{"a": "h1"},
	}))

	type report struct{ cursor, total int }
	var got []report
	r := newRunner(store, &fakeExecutor{}, &fakeRebooter{})
	r.OnProgress(func(cursor, total int) { got = append(got, report{cursor, total}) })

	// --- Act ---
	r.Reconcile(ctx, []model.Task{oneshot("a", "h1"), onboot("b"), onboot("c")}, "r1")
	_, err := r.Run(ctx)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, []report{{0, 3}, {1, 3}, {2, 3}, {3, 3}}, got)
}
