// Package localexecutor runs task scripts and reboot commands as local
// processes.
package localexecutor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/specialistvlad/repotaskrun/internal/ctxlog"
	"github.com/specialistvlad/repotaskrun/internal/fsutil"
)

// Result is the outcome of one script execution.
type Result struct {
	Succeeded bool
	ExitCode  int
	Stdout    string
	Stderr    string
}

// DefaultWaitDelay bounds how long Execute waits for output pipes to close
// after a cancelled script has been killed.
const DefaultWaitDelay = 2 * time.Second

// Executor runs a script with the interpreter registered for its extension.
type Executor struct {
	// Interpreters maps a file extension (".ps1") to the command that runs
	// it. The script path is appended as the last argument.
	Interpreters map[string][]string
	// WaitDelay is applied to every command. Processes started by the script
	// can hold its stdout and stderr open after the script itself is killed.
	WaitDelay    time.Duration
}

// New creates an executor for the given extension to command mapping.
func New(interpreters map[string][]string) *Executor {
	return &Executor{Interpreters: interpreters, WaitDelay: DefaultWaitDelay}
}

// Extensions returns the registered extensions.
func (e *Executor) Extensions() []string {
	exts := make([]string, 0, len(e.Interpreters))
	for ext := range e.Interpreters {
		exts = append(exts, ext)
	}
	return exts
}

// Execute runs the script at path and waits for it to exit. The working
// directory is the script's directory. Any failure, including a missing
// interpreter, is reported as an unsuccessful Result.
func (e *Executor) Execute(ctx context.Context, path string) Result {
	logger := ctxlog.FromContext(ctx).With("component", "localexecutor", "script", path)

	ext, ok := fsutil.MatchExtension(path, e.Extensions())
	if !ok {
		logger.Error("No interpreter registered for script.")
		return Result{ExitCode: -1, Stderr: fmt.Sprintf("no interpreter registered for %q", filepath.Ext(path))}
	}
	argv := append(append([]string{}, e.Interpreters[ext]...), path)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = filepath.Dir(path)
	cmd.WaitDelay = e.WaitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Debug("Starting script.", "argv", strings.Join(argv, " "))
	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		res.Succeeded = true
		logger.Debug("Script finished.", "exit_code", 0)
		return res
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
	} else {
		// The process never started.
		res.ExitCode = -1
		if res.Stderr != "" {
			res.Stderr += "\n"
		}
		res.Stderr += err.Error()
	}
	logger.Debug("Script failed.", "exit_code", res.ExitCode, "error", err)
	return res
}
