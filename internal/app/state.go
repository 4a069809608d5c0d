package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/specialistvlad/repotaskrun/internal/ctxlog"
	"github.com/specialistvlad/repotaskrun/internal/statestore"
	"gopkg.in/yaml.v3"
)

// ShowState writes the audience's durable snapshot to the App's output as
// YAML.
func (a *App) ShowState(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	snap, err := a.store.Load(ctx)
	if errors.Is(err, statestore.ErrNotFound) {
		fmt.Fprintf(a.outW, "# no saved state for audience %s\n", a.identity.Audience)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	enc := yaml.NewEncoder(a.outW)
	enc.SetIndent(2)
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("failed to render state: %w", err)
	}
	return enc.Close()
}

// ResetState deletes the audience's durable snapshot so the next run starts
// from an empty registry.
func (a *App) ResetState(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	if err := a.store.Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete state: %w", err)
	}
	a.logger.Info("State reset.", "audience", a.identity.Audience)
	return nil
}
