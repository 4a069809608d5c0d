// Package statestore defines the durable snapshot of a runner and the stores
// that keep it across process restarts and OS reboots.
//
// # Why a Snapshot Exists
//
// A run may end half-way through its task list because a task asked for a
// reboot. The next invocation has to know where to continue and which OneShot
// tasks already ran with their current content. The snapshot records exactly
// that:
//   - **Tasks:** the ordered list the cursor indexes into
//   - **Cursor:** the index of the next task to run (0..len(Tasks))
//   - **OneShot:** task name to the content hash it last succeeded with
//   - **Audience:** the context the snapshot belongs to
//   - **Revision:** the repository commit Tasks was built from
//
// # Durability
//
// The snapshot is only written at checkpoints: right before a reboot is
// requested and when a run completes. FileStore replaces the file atomically,
// so a crash mid-write leaves the previous snapshot intact.
//
// # One Snapshot per Audience
//
// System and user runs keep separate snapshots at separate locations. A store
// is bound to one audience and rejects snapshots recorded for the other.
package statestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/specialistvlad/repotaskrun/internal/model"
)

// SnapshotVersion is the current encoding version. Snapshots carrying another
// version are treated as unreadable.
const SnapshotVersion = 1

var (
	// ErrNotFound is returned by Load when no snapshot has been saved.
	ErrNotFound = errors.New("snapshot not found")
	// ErrInvalid is returned by Load when a snapshot exists but cannot be used.
	ErrInvalid = errors.New("invalid snapshot")
)

// Snapshot is the persisted runner state.
type Snapshot struct {
	Version  int               `msgpack:"version" yaml:"version"`
	Audience model.Audience    `msgpack:"audience" yaml:"audience"`
	Revision string            `msgpack:"revision" yaml:"revision"`
	Tasks    []model.Task      `msgpack:"tasks" yaml:"tasks"`
	Cursor   int               `msgpack:"cursor" yaml:"cursor"`
	OneShot  map[string]string `msgpack:"oneshot" yaml:"oneshot"`
	SavedAt  time.Time         `msgpack:"saved_at" yaml:"saved_at"`
}

// Validate checks that s is usable by a runner for audience.
func (s *Snapshot) Validate(audience model.Audience) error {
	if s.Version != SnapshotVersion {
		return fmt.Errorf("%w: version %d, want %d", ErrInvalid, s.Version, SnapshotVersion)
	}
	if s.Audience != audience {
		return fmt.Errorf("%w: recorded for audience %q, want %q", ErrInvalid, s.Audience, audience)
	}
	if s.Cursor < 0 || s.Cursor > len(s.Tasks) {
		return fmt.Errorf("%w: cursor %d out of range for %d tasks", ErrInvalid, s.Cursor, len(s.Tasks))
	}
	return nil
}

// Store loads, saves and deletes the snapshot of one audience.
type Store interface {
	// Load returns the saved snapshot. It returns ErrNotFound if there is none
	// and an error wrapping ErrInvalid if it cannot be decoded or validated.
	Load(ctx context.Context) (*Snapshot, error)
	// Save durably replaces the snapshot.
	Save(ctx context.Context, s *Snapshot) error
	// Delete removes the snapshot. Deleting a missing snapshot is not an error.
	Delete(ctx context.Context) error
}
