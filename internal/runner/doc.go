// Package runner executes an ordered task list as a resumable state machine.
//
// The state is the task list, a cursor into it, a registry of the content
// hash each OneShot task last succeeded with, and the audience. Reconcile
// restores the state from the durable snapshot and merges in a freshly built
// task list. Step advances the cursor by exactly one task. Run calls Step until
// the list is exhausted, a task fails, or a task asks for a reboot.
//
// The snapshot is written only at checkpoints: after a reboot-requiring task
// succeeds (before the restart is requested) and when the list is exhausted.
// A failed task deletes the snapshot so the next invocation starts over. A task
// interrupted by cancellation is not a failure: the snapshot is left alone.
package runner
