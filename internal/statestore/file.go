package statestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/specialistvlad/repotaskrun/internal/ctxlog"
	"github.com/specialistvlad/repotaskrun/internal/fsutil"
	"github.com/specialistvlad/repotaskrun/internal/model"
	"github.com/vmihailenco/msgpack/v5"
)

// FileName is the snapshot file name inside an audience's state directory.
const FileName = "state.bin"

// FileStore keeps the snapshot as a MessagePack file.
type FileStore struct {
	path     string
	audience model.Audience
	now      func() time.Time
}

// NewFileStore returns a store for audience backed by the file at path.
func NewFileStore(path string, audience model.Audience) *FileStore {
	return &FileStore{path: path, audience: audience, now: time.Now}
}

// Path returns the snapshot file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load implements Store.
func (s *FileStore) Load(ctx context.Context) (*Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", s.path, err)
	}

	snap, err := decode(data)
	if err != nil {
		return nil, err
	}
	if err := snap.Validate(s.audience); err != nil {
		return nil, err
	}

	ctxlog.FromContext(ctx).Debug("Snapshot loaded.", "path", s.path, "tasks", len(snap.Tasks), "cursor", snap.Cursor)
	return snap, nil
}

// Save implements Store.
func (s *FileStore) Save(ctx context.Context, snap *Snapshot) error {
	snap.Version = SnapshotVersion
	snap.Audience = s.audience
	snap.SavedAt = s.now().UTC()

	data, err := msgpack.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := fsutil.WriteFileAtomic(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write snapshot %s: %w", s.path, err)
	}

	ctxlog.FromContext(ctx).Debug("Snapshot saved.", "path", s.path, "cursor", snap.Cursor, "oneshot_entries", len(snap.OneShot))
	return nil
}

// Delete implements Store.
func (s *FileStore) Delete(ctx context.Context) error {
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete snapshot %s: %w", s.path, err)
	}
	ctxlog.FromContext(ctx).Debug("Snapshot deleted.", "path", s.path)
	return nil
}

func decode(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if snap.OneShot == nil {
		snap.OneShot = make(map[string]string)
	}
	return &snap, nil
}
