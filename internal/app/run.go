package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/specialistvlad/repotaskrun/internal/builder"
	"github.com/specialistvlad/repotaskrun/internal/ctxlog"
	"github.com/specialistvlad/repotaskrun/internal/model"
	"github.com/specialistvlad/repotaskrun/internal/reposync"
	"github.com/specialistvlad/repotaskrun/internal/runner"
)

// Run performs one full cycle for the App's audience. A reboot request ends
// the cycle early with OutcomeRebootRequested and a nil error.
func (a *App) Run(ctx context.Context) (runner.Outcome, error) {
	aud := a.identity.Audience
	runID := uuid.NewString()
	ctx = ctxlog.With(ctxlog.WithLogger(ctx, a.logger), "run_id", runID, "audience", aud)
	logger := ctxlog.FromContext(ctx)
	logger.Debug("App.Run method started.")

	a.status = newStatus(runID, aud)
	if a.config.HealthcheckPort > 0 {
		stop := a.startHealthcheckServer(ctx, a.config.HealthcheckPort)
		defer stop()
	}

	outcome, err := a.cycle(ctx, aud)
	a.status.finish(outcome, err)
	if err != nil {
		logger.Error("Run failed.", "error", err)
		return outcome, err
	}
	logger.Info("Run finished.", "outcome", outcome)
	return outcome, nil
}

func (a *App) cycle(ctx context.Context, aud model.Audience) (runner.Outcome, error) {
	logger := ctxlog.FromContext(ctx)

	base := a.agent.Paths.BaseDir(aud)
	if err := os.MkdirAll(base, 0o700); err != nil {
		return runner.OutcomeCompleted, fmt.Errorf("failed to create %s: %w", base, err)
	}
	repoDir := a.agent.Paths.RepositoryDir(aud)

	revision, err := a.syncRepository(ctx, repoDir)
	if err != nil {
		return runner.OutcomeCompleted, fmt.Errorf("failed to synchronize repository: %w", err)
	}
	logger.Info("Repository synchronized.", "path", repoDir, "revision", revision)

	a.status.setPhase(phaseBuild)
	groups, known := a.lookupMembership(ctx, aud)
	tasks, err := builder.Build(ctx, repoDir, builder.Options{
		Audience:      aud,
		Membership:    groups,
		HasMembership: known,
		Extensions:    a.agent.Extensions(),
	})
	if err != nil {
		return runner.OutcomeCompleted, fmt.Errorf("failed to build task list: %w", err)
	}
	logger.Info("Task list built.", "tasks", len(tasks))

	a.status.setPhase(phaseRun)
	r := runner.New(aud, a.store, a.executor, a.rebooter)
	r.OnProgress(a.status.setProgress)
	r.Reconcile(ctx, tasks, revision)
	return r.Run(ctx)
}

// syncRepository retries at the configured interval while the remote is
// unreachable. Any other failure is returned immediately. The returned
// revision identifies the synchronized content.
func (a *App) syncRepository(ctx context.Context, dir string) (string, error) {
	logger := ctxlog.FromContext(ctx)
	interval := a.agent.Repository.PollInterval

	for attempt := 1; ; attempt++ {
		a.status.setPhase(phaseSync)
		revision, err := a.sync.Sync(ctx, dir)
		if err == nil {
			return revision, nil
		}
		if !errors.Is(err, reposync.ErrNetwork) {
			return "", err
		}
		logger.Warn("Repository host unreachable, waiting.", "attempt", attempt, "retry_in", interval, "error", err)
		a.status.setWaiting(attempt)
		if err := a.sleep(ctx, interval); err != nil {
			return "", err
		}
	}
}

// lookupMembership resolves the user's groups. Failures, and the system
// audience, yield unknown membership.
func (a *App) lookupMembership(ctx context.Context, aud model.Audience) (model.Set, bool) {
	logger := ctxlog.FromContext(ctx)
	if aud != model.AudienceUser || a.membership == nil {
		return nil, false
	}
	groups, err := a.membership.Groups(ctx, a.identity.Principal)
	if err != nil {
		logger.Warn("Group membership lookup failed, group-filtered tasks will be skipped.",
			"principal", a.identity.Principal, "error", err)
		return nil, false
	}
	logger.Info("Group membership resolved.", "groups", len(groups))
	return groups, true
}
