package runner

import (
	"errors"
	"fmt"

	"github.com/specialistvlad/repotaskrun/internal/localexecutor"
	"github.com/specialistvlad/repotaskrun/internal/model"
)

// ErrHalted is returned by Step after a task has failed.
var ErrHalted = errors.New("runner halted after a task failure")

// TaskFailedError reports a task whose script did not succeed.
type TaskFailedError struct {
	Task   model.Task
	Result localexecutor.Result
}

func (e *TaskFailedError) Error() string {
	return fmt.Sprintf("task %q (%s) failed with exit code %d", e.Task.Name, e.Task.Executable, e.Result.ExitCode)
}
