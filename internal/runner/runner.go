package runner

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/specialistvlad/repotaskrun/internal/ctxlog"
	"github.com/specialistvlad/repotaskrun/internal/localexecutor"
	"github.com/specialistvlad/repotaskrun/internal/model"
	"github.com/specialistvlad/repotaskrun/internal/statestore"
)

// ScriptExecutor runs one task script to completion.
type ScriptExecutor interface {
	Execute(ctx context.Context, path string) localexecutor.Result
}

// Rebooter requests an OS restart.
type Rebooter interface {
	Reboot(ctx context.Context) error
}

// Transition names what a single Step did.
type Transition int

const (
	// TransitionSkipped means a OneShot task was already satisfied.
	TransitionSkipped Transition = iota
	// TransitionExecuted means a task ran and succeeded.
	TransitionExecuted
	// TransitionRebootRequested means a task succeeded, the state was
	// checkpointed and a restart was requested.
	TransitionRebootRequested
	// TransitionCompleted means the list is exhausted and the final state
	// was checkpointed.
	TransitionCompleted
	// TransitionFailed means a task failed and the snapshot was deleted.
	TransitionFailed
	// TransitionInterrupted means ctx was cancelled while a task ran. The
	// snapshot is left as it was so the task runs again next time.
	TransitionInterrupted
)

func (t Transition) String() string {
	switch t {
	case TransitionSkipped:
		return "skipped"
	case TransitionExecuted:
		return "executed"
	case TransitionRebootRequested:
		return "reboot_requested"
	case TransitionCompleted:
		return "completed"
	case TransitionFailed:
		return "failed"
	case TransitionInterrupted:
		return "interrupted"
	default:
		return fmt.Sprintf("transition(%d)", int(t))
	}
}

// Outcome is how a Run ended without error.
type Outcome int

const (
	// OutcomeCompleted means every task was run or skipped.
	OutcomeCompleted Outcome = iota
	// OutcomeRebootRequested means the run stopped for an OS restart and
	// resumes after it.
	OutcomeRebootRequested
)

func (o Outcome) String() string {
	if o == OutcomeRebootRequested {
		return "reboot_requested"
	}
	return "completed"
}

// State is the runner's in-memory state.
type State struct {
	Audience model.Audience
	// Revision identifies the repository content Tasks was built from.
	Revision string
	Tasks    []model.Task
	Cursor   int
	OneShot  map[string]string
}

// Runner drives the task list of one audience.
type Runner struct {
	store    statestore.Store
	executor ScriptExecutor
	rebooter Rebooter
	state    State
	halted   bool
	progress func(cursor, total int)
}

// New creates a runner with an empty state. Call Reconcile before Step.
func New(audience model.Audience, store statestore.Store, executor ScriptExecutor, rebooter Rebooter) *Runner {
	return &Runner{
		store:    store,
		executor: executor,
		rebooter: rebooter,
		state:    State{Audience: audience, OneShot: make(map[string]string)},
	}
}

// OnProgress registers fn to be called whenever the cursor or the task list
// changes. fn runs on the caller's goroutine and must not block.
func (r *Runner) OnProgress(fn func(cursor, total int)) {
	r.progress = fn
}

func (r *Runner) reportProgress() {
	if r.progress != nil {
		r.progress(r.state.Cursor, len(r.state.Tasks))
	}
}

// State returns a copy of the current state.
func (r *Runner) State() State {
	return State{
		Audience: r.state.Audience,
		Revision: r.state.Revision,
		Tasks:    slices.Clone(r.state.Tasks),
		Cursor:   r.state.Cursor,
		OneShot:  maps.Clone(r.state.OneShot),
	}
}

// Reconcile loads the durable snapshot and merges tasks into it.
//
// revision identifies the repository content tasks was built from. Without a
// usable snapshot the runner starts at the beginning of tasks with an empty
// registry. When revision differs from the one recorded in the snapshot, or
// when the snapshot recorded a finished pass, tasks replace the recorded list,
// the cursor restarts at 0 and registry entries for tasks that no longer exist
// are dropped. Otherwise the recorded list and cursor are kept so an
// interrupted pass resumes.
func (r *Runner) Reconcile(ctx context.Context, tasks []model.Task, revision string) {
	logger := ctxlog.FromContext(ctx).With("component", "runner")
	r.halted = false
	defer r.reportProgress()

	snap, err := r.store.Load(ctx)
	switch {
	case err == nil:
	case errors.Is(err, statestore.ErrNotFound):
		logger.Info("No previous state, starting fresh.")
	default:
		logger.Warn("Previous state is unusable, starting fresh.", "error", err)
	}

	if snap == nil {
		r.state.Revision = revision
		r.state.Tasks = slices.Clone(tasks)
		r.state.Cursor = 0
		r.state.OneShot = make(map[string]string)
		return
	}

	r.state.Tasks = snap.Tasks
	r.state.Cursor = snap.Cursor
	r.state.OneShot = snap.OneShot
	if r.state.OneShot == nil {
		r.state.OneShot = make(map[string]string)
	}

	changed := snap.Revision != revision
	finished := snap.Cursor >= len(snap.Tasks)
	r.state.Revision = snap.Revision
	if !changed && !finished {
		logger.Info("Resuming interrupted run.", "cursor", r.state.Cursor, "tasks", len(r.state.Tasks))
		return
	}

	r.state.Revision = revision
	r.state.Tasks = slices.Clone(tasks)
	r.state.Cursor = 0
	r.pruneRegistry(ctx)
	logger.Info("Starting new pass.", "content_changed", changed, "revision", revision, "tasks", len(tasks), "oneshot_entries", len(r.state.OneShot))
}

func (r *Runner) pruneRegistry(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	present := make(map[string]struct{}, len(r.state.Tasks))
	for _, t := range r.state.Tasks {
		present[t.Name] = struct{}{}
	}
	for name := range r.state.OneShot {
		if _, ok := present[name]; !ok {
			logger.Info("Forgetting OneShot task that no longer exists.", "task", name)
			delete(r.state.OneShot, name)
		}
	}
}

// Step performs one transition.
func (r *Runner) Step(ctx context.Context) (Transition, error) {
	if r.halted {
		return TransitionFailed, ErrHalted
	}
	logger := ctxlog.FromContext(ctx).With("component", "runner")

	if r.state.Cursor >= len(r.state.Tasks) {
		if err := r.persist(ctx); err != nil {
			return TransitionCompleted, fmt.Errorf("failed to save final state: %w", err)
		}
		logger.Info("All tasks done.", "tasks", len(r.state.Tasks))
		return TransitionCompleted, nil
	}

	t := r.state.Tasks[r.state.Cursor]
	logger = logger.With("task", t.Name, "position", r.state.Cursor+1, "total", len(r.state.Tasks))

	if t.Type == model.TaskTypeOneShot {
		if hash, ok := r.state.OneShot[t.Name]; ok && hash == t.Hash {
			logger.Info("Skipping OneShot task, content unchanged.")
			r.state.Cursor++
			r.reportProgress()
			return TransitionSkipped, nil
		}
	}

	logger.Info("Running task.", "type", t.Type, "path", t.Executable)
	res := r.executor.Execute(ctx, t.Executable)
	if err := ctx.Err(); err != nil {
		// A script killed by shutdown has not failed; the snapshot stays so
		// the next invocation runs it again.
		logger.Warn("Task interrupted by shutdown.", "path", t.Executable, "exit_code", res.ExitCode)
		return TransitionInterrupted, fmt.Errorf("task %q interrupted: %w", t.Name, err)
	}
	if !res.Succeeded {
		r.halted = true
		logger.Error("Task failed, halting run.",
			"path", t.Executable,
			"exit_code", res.ExitCode,
			"stdout", res.Stdout,
			"stderr", res.Stderr,
		)
		if err := r.store.Delete(ctx); err != nil {
			logger.Error("Failed to delete state after task failure.", "error", err)
		}
		return TransitionFailed, &TaskFailedError{Task: t, Result: res}
	}
	logger.Info("Task succeeded.")
	logger.Debug("Task output.", "stdout", res.Stdout, "stderr", res.Stderr)

	if t.Type == model.TaskTypeOneShot {
		r.state.OneShot[t.Name] = t.Hash
	}
	r.state.Cursor++
	r.reportProgress()

	if !t.RebootRequired {
		return TransitionExecuted, nil
	}

	// The advanced state must be durable before the restart is requested,
	// otherwise the task runs again after every boot.
	if err := r.persist(ctx); err != nil {
		return TransitionExecuted, fmt.Errorf("failed to save state before reboot: %w", err)
	}
	if err := r.rebooter.Reboot(ctx); err != nil {
		return TransitionExecuted, fmt.Errorf("failed to request reboot after task %q: %w", t.Name, err)
	}
	logger.Info("Reboot requested, stopping run.")
	return TransitionRebootRequested, nil
}

// Run steps until the list is exhausted, a task fails, or a reboot is
// requested. Cancelling ctx stops the run without a checkpoint, either between
// tasks or by interrupting the running one.
func (r *Runner) Run(ctx context.Context) (Outcome, error) {
	for {
		if err := ctx.Err(); err != nil {
			return OutcomeCompleted, err
		}
		tr, err := r.Step(ctx)
		if err != nil {
			return OutcomeCompleted, err
		}
		switch tr {
		case TransitionCompleted:
			return OutcomeCompleted, nil
		case TransitionRebootRequested:
			return OutcomeRebootRequested, nil
		}
	}
}

func (r *Runner) persist(ctx context.Context) error {
	return r.store.Save(ctx, &statestore.Snapshot{
		Audience: r.state.Audience,
		Revision: r.state.Revision,
		Tasks:    r.state.Tasks,
		Cursor:   r.state.Cursor,
		OneShot:  r.state.OneShot,
	})
}
