package builder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/specialistvlad/repotaskrun/internal/ctxlog"
	"github.com/specialistvlad/repotaskrun/internal/dag"
	"github.com/specialistvlad/repotaskrun/internal/fsutil"
	"github.com/specialistvlad/repotaskrun/internal/model"
)

// DefaultExtensions is used when Options.Extensions is empty.
var DefaultExtensions = []string{".ps1"}

// ErrDuplicateTask is returned when two scripts in one build share a name.
var ErrDuplicateTask = errors.New("duplicate task name")

// Options selects which tasks a build materializes.
type Options struct {
	// Audience is the context of the current run.
	Audience model.Audience
	// Membership is the caller's group membership. It is only consulted when
	// HasMembership is true; otherwise membership is unknown.
	Membership    model.Set
	HasMembership bool
	// Extensions lists the script extensions that identify task files.
	Extensions []string
}

type frame struct {
	path string
	acc  accumulator
}

// Build walks root and returns the tasks for opts.Audience in dependency
// order. It returns an error wrapping dag.ErrCircularDependency, and no
// tasks, if the tasks cannot be ordered.
func Build(ctx context.Context, root string, opts Options) ([]model.Task, error) {
	logger := ctxlog.FromContext(ctx).With("component", "builder")
	logger.Debug("Building task list.", "root", root, "audience", opts.Audience, "membership_known", opts.HasMembership)

	if !opts.Audience.Valid() {
		return nil, fmt.Errorf("invalid audience %q", opts.Audience)
	}
	exts := opts.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read task root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("task root %s is not a directory", root)
	}

	var tasks []model.Task
	seen := make(map[string]string)
	stack := []frame{{path: root}}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		info, err := os.Lstat(f.path)
		if err != nil {
			logger.Warn("Skipping unreadable entry.", "path", f.path, "error", err)
			continue
		}
		if info.Mode()&os.ModeSymlink != 0 {
			target, err := os.Stat(f.path)
			if err != nil {
				logger.Warn("Skipping dangling symlink.", "path", f.path, "error", err)
				continue
			}
			if target.IsDir() {
				logger.Debug("Skipping symlinked directory.", "path", f.path)
				continue
			}
			info = target
		}

		if info.IsDir() {
			acc, applied := f.acc.apply(filepath.Base(f.path))
			if applied {
				logger.Debug("Directive applied.", "path", f.path)
			}
			entries, err := os.ReadDir(f.path)
			if err != nil {
				logger.Warn("Skipping unreadable directory.", "path", f.path, "error", err)
				continue
			}
			// ReadDir sorts by name; push in reverse so the first entry is
			// visited first.
			for i := len(entries) - 1; i >= 0; i-- {
				name := entries[i].Name()
				if strings.HasPrefix(name, ".") {
					continue
				}
				stack = append(stack, frame{path: filepath.Join(f.path, name), acc: acc})
			}
			continue
		}

		if !info.Mode().IsRegular() {
			continue
		}

		task, skipped, err := materialize(f, exts, opts)
		if err != nil {
			return nil, err
		}
		if skipped != "" {
			logger.Debug("File skipped.", "path", f.path, "reason", skipped)
			continue
		}
		if prev, dup := seen[task.Name]; dup {
			return nil, fmt.Errorf("%w: %q defined by %s and %s", ErrDuplicateTask, task.Name, prev, task.Executable)
		}
		seen[task.Name] = task.Executable
		logger.Debug("Task discovered.", "task", task.Name, "type", task.Type, "path", task.Executable)
		tasks = append(tasks, task)
	}

	ordered, err := dag.Order(tasks)
	if err != nil {
		logger.Error("Tasks cannot be ordered.", "error", err)
		return nil, fmt.Errorf("failed to order tasks: %w", err)
	}

	logger.Info("Task list built.", "tasks", len(ordered))
	return ordered, nil
}

// materialize turns a file into a Task if it passes every selection rule.
// For files that are not selected it returns the reason and a nil error.
func materialize(f frame, exts []string, opts Options) (model.Task, string, error) {
	acc := f.acc
	if acc.context == "" {
		return model.Task{}, "no context directive", nil
	}
	if acc.context != opts.Audience {
		return model.Task{}, "context is " + string(acc.context), nil
	}
	if acc.taskType == "" {
		return model.Task{}, "no type directive", nil
	}
	ext, ok := fsutil.MatchExtension(f.path, exts)
	if !ok {
		return model.Task{}, "not a script", nil
	}
	// Group filters restrict user tasks only; system tasks ignore them.
	if acc.context == model.AudienceUser && len(acc.groupFilter) > 0 {
		if !opts.HasMembership {
			return model.Task{}, "group membership unknown", nil
		}
		if !opts.Membership.Intersects(acc.groupFilter) {
			return model.Task{}, "not in any required group", nil
		}
	}

	digest, err := fsutil.HashFile(f.path)
	if err != nil {
		return model.Task{}, "", fmt.Errorf("failed to hash task script: %w", err)
	}

	base := filepath.Base(f.path)
	return model.Task{
		Name:           base[:len(base)-len(ext)],
		Type:           acc.taskType,
		Context:        acc.context,
		DependsOn:      acc.dependsOn.Clone(),
		UserFilter:     acc.userFilter.Clone(),
		GroupFilter:    acc.groupFilter.Clone(),
		RebootRequired: acc.rebootRequired,
		Executable:     f.path,
		Hash:           digest,
	}, "", nil
}
