package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/specialistvlad/repotaskrun/internal/config"
	"github.com/specialistvlad/repotaskrun/internal/credentials"
	"github.com/specialistvlad/repotaskrun/internal/ctxlog"
	"github.com/specialistvlad/repotaskrun/internal/identity"
	"github.com/specialistvlad/repotaskrun/internal/localexecutor"
	"github.com/specialistvlad/repotaskrun/internal/membership"
	"github.com/specialistvlad/repotaskrun/internal/model"
	"github.com/specialistvlad/repotaskrun/internal/reposync"
	"github.com/specialistvlad/repotaskrun/internal/runner"
	"github.com/specialistvlad/repotaskrun/internal/statestore"
)

// Synchronizer replaces a directory with the current repository content and
// returns the revision it checked out.
type Synchronizer interface {
	Sync(ctx context.Context, destination string) (string, error)
}

// App encapsulates the agent's dependencies for one invocation.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	closeLog func() error

	config   *Config
	agent    *config.Config
	identity identity.Identity

	sync       Synchronizer
	executor   runner.ScriptExecutor
	rebooter   runner.Rebooter
	membership membership.Resolver
	store      statestore.Store

	status *status
	sleep  func(ctx context.Context, d time.Duration) error
}

// Option replaces one of the App's collaborators.
type Option func(*App)

// WithSynchronizer replaces the repository synchronizer.
func WithSynchronizer(s Synchronizer) Option { return func(a *App) { a.sync = s } }

// WithExecutor replaces the script executor.
func WithExecutor(e runner.ScriptExecutor) Option { return func(a *App) { a.executor = e } }

// WithRebooter replaces the reboot command.
func WithRebooter(r runner.Rebooter) Option { return func(a *App) { a.rebooter = r } }

// WithMembership replaces the group membership lookup.
func WithMembership(m membership.Resolver) Option { return func(a *App) { a.membership = m } }

// WithStore replaces the durable snapshot store.
func WithStore(s statestore.Store) Option { return func(a *App) { a.store = s } }

// WithIdentity replaces identity detection.
func WithIdentity(id identity.Identity) Option { return func(a *App) { a.identity = id } }

// NewApp loads the agent configuration and credentials and assembles the
// collaborators for the selected audience.
func NewApp(outW io.Writer, appConfig *Config, opts ...Option) (*App, error) {
	logW, closeLog, err := logSink(outW, appConfig.LogFile)
	if err != nil {
		return nil, err
	}
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, logW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	a := &App{
		outW:     outW,
		logger:   logger,
		closeLog: closeLog,
		config:   appConfig,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(a)
	}

	if err := a.init(ctx); err != nil {
		_ = closeLog()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	if a.config.EnvFile != "" {
		if err := config.LoadEnv(ctx, a.config.EnvFileOptional, a.config.EnvFile); err != nil {
			return err
		}
	}

	agent, err := config.Load(ctx, a.config.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	a.agent = agent

	if err := a.resolveIdentity(ctx); err != nil {
		return err
	}
	aud := a.identity.Audience
	a.logger.Debug("Audience selected.", "audience", aud, "principal", a.identity.Principal)

	if a.store == nil {
		fileStore := statestore.NewFileStore(agent.Paths.StateFile(aud), aud)
		a.logger.Debug("Using state file.", "path", fileStore.Path())
		a.store = fileStore
	}
	// Inspecting or resetting state needs neither the repository nor secrets.
	if a.config.Action != ActionRun {
		return nil
	}
	if a.executor == nil {
		a.executor = localexecutor.New(agent.Scripts)
	}
	if a.rebooter == nil {
		a.rebooter = &localexecutor.CommandRebooter{Command: agent.Reboot.Command}
	}
	needsSecrets := a.sync == nil || (a.membership == nil && agent.Membership != nil)
	if !needsSecrets {
		return nil
	}

	creds, err := credentials.Load(agent.CredentialsFile)
	if err != nil {
		return fmt.Errorf("failed to load credentials: %w", err)
	}
	if a.sync == nil {
		a.sync, err = reposync.New(reposync.Options{
			URL:        agent.Repository.URL,
			Branch:     agent.Repository.Branch,
			Address:    agent.Repository.Address,
			SSHUser:    agent.Repository.SSHUser,
			PrivateKey: creds.PrivateKey,
			Passphrase: creds.Passphrase,
			HostKey:    agent.Repository.HostKey,
			Shallow:    agent.Repository.Shallow,
			WorkDir:    agent.Paths.WorkDir,
		})
		if err != nil {
			return fmt.Errorf("invalid repository configuration: %w", err)
		}
	}
	if a.membership == nil && agent.Membership != nil {
		a.membership = newMembership(ctx, agent.Membership, creds.ClientSecret)
	}
	return nil
}

func (a *App) resolveIdentity(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	if !a.identity.Audience.Valid() {
		if a.config.Audience == AudienceAuto || a.config.Audience == "" {
			id, err := identity.Detect()
			if err != nil {
				logger.Warn("Could not determine the user principal.", "error", err)
			}
			a.identity = id
		} else {
			aud, ok := model.ParseAudience(a.config.Audience)
			if !ok {
				return fmt.Errorf("invalid audience %q", a.config.Audience)
			}
			id, _ := identity.Detect()
			a.identity = identity.Identity{Audience: aud, Principal: id.Principal}
		}
	}
	if m := a.agent.Membership; m != nil && m.Principal != "" {
		a.identity.Principal = m.Principal
	}
	return nil
}

// newMembership returns the configured resolver, or nil when the directory
// client cannot be built. Group lookups then report unknown membership.
func newMembership(ctx context.Context, m *config.Membership, secret string) membership.Resolver {
	if len(m.Groups) > 0 {
		return membership.Static{Names: m.Groups}
	}
	client, err := membership.NewGraphClient(ctx, membership.GraphConfig{
		TenantID:     m.TenantID,
		ClientID:     m.ClientID,
		ClientSecret: secret,
		TokenURL:     m.TokenURL,
		Endpoint:     m.Endpoint,
	})
	if err != nil {
		ctxlog.FromContext(ctx).Warn("Group membership lookups disabled.", "error", err)
		return nil
	}
	return client
}

// Audience returns the audience this App serves.
func (a *App) Audience() model.Audience {
	return a.identity.Audience
}

// Close releases the log file, if any.
func (a *App) Close() error {
	return a.closeLog()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
