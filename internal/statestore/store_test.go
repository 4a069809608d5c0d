package statestore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/specialistvlad/repotaskrun/internal/model"
	"github.com/specialistvlad/repotaskrun/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSnapshot() *Snapshot {
	return &Snapshot{
		Tasks: []model.Task{
			{Name: "setup", Type: model.TaskTypeOneShot, Context: model.AudienceSystem, RebootRequired: true, Executable: "/repo/setup.ps1", Hash: "aa"},
			{Name: "cleanup", Type: model.TaskTypeOnBoot, Context: model.AudienceSystem, DependsOn: model.NewSet("setup"), Executable: "/repo/cleanup.ps1", Hash: "bb"},
		},
		Cursor:  1,
		OneShot: map[string]string{"setup": "aa"},
	}
}

func TestFileStore_SaveLoad(t *testing.T) {
	// --- Arrange ---
	ctx, _ := testutil.Context(t)
	path := filepath.Join(t.TempDir(), "system", FileName)
	store := NewFileStore(path, model.AudienceSystem)
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	// --- Act ---
	require.NoError(t, store.Save(ctx, sampleSnapshot()))
	loaded, err := store.Load(ctx)

	// --- Assert ---
	require.NoError(t, err)
	want := sampleSnapshot()
	assert.Equal(t, SnapshotVersion, loaded.Version)
	assert.Equal(t, model.AudienceSystem, loaded.Audience)
	assert.Equal(t, want.Tasks, loaded.Tasks)
	assert.Equal(t, want.Cursor, loaded.Cursor)
	assert.Equal(t, want.OneShot, loaded.OneShot)
	assert.True(t, fixed.Equal(loaded.SavedAt))

	info, err := os.Stat(path)
	require.NoError(t, err)
	if os.PathSeparator == '/' {
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}
}

func TestFileStore_Load(t *testing.T) {
	ctx, _ := testutil.Context(t)

	t.Run("missing file", func(t *testing.T) {
		store := NewFileStore(filepath.Join(t.TempDir(), FileName), model.AudienceUser)
		_, err := store.Load(ctx)
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("garbage bytes", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), FileName)
		require.NoError(t, os.WriteFile(path, []byte("not msgpack at all"), 0o600))
		_, err := NewFileStore(path, model.AudienceUser).Load(ctx)
		require.ErrorIs(t, err, ErrInvalid)
	})

	t.Run("other audience", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), FileName)
		require.NoError(t, NewFileStore(path, model.AudienceSystem).Save(ctx, sampleSnapshot()))
		_, err := NewFileStore(path, model.AudienceUser).Load(ctx)
		require.ErrorIs(t, err, ErrInvalid)
		assert.Contains(t, err.Error(), "audience")
	})
}

func TestFileStore_Delete(t *testing.T) {
	ctx, _ := testutil.Context(t)
	path := filepath.Join(t.TempDir(), FileName)
	store := NewFileStore(path, model.AudienceSystem)

	require.NoError(t, store.Delete(ctx), "deleting a missing snapshot is fine")
	require.NoError(t, store.Save(ctx, sampleSnapshot()))
	require.NoError(t, store.Delete(ctx))

	_, err := store.Load(ctx)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSnapshotValidate(t *testing.T) {
	snap := sampleSnapshot()
	snap.Version = SnapshotVersion
	snap.Audience = model.AudienceSystem
	require.NoError(t, snap.Validate(model.AudienceSystem))

	snap.Cursor = 3
	assert.ErrorIs(t, snap.Validate(model.AudienceSystem), ErrInvalid)

	snap.Cursor = 2
	assert.NoError(t, snap.Validate(model.AudienceSystem), "a cursor equal to the list length is terminal, not invalid")

	snap.Version = 99
	assert.ErrorIs(t, snap.Validate(model.AudienceSystem), ErrInvalid)
}

func TestMemoryStore(t *testing.T) {
	ctx, _ := testutil.Context(t)
	store := NewMemoryStore(model.AudienceSystem)

	_, err := store.Load(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	saved := sampleSnapshot()
	require.NoError(t, store.Save(ctx, saved))
	saved.OneShot["setup"] = "mutated after save"

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "aa", loaded.OneShot["setup"])

	store.SetRaw([]byte{0xc1})
	_, err = store.Load(ctx)
	require.ErrorIs(t, err, ErrInvalid)

	require.NoError(t, store.Delete(ctx))
	_, err = store.Load(ctx)
	require.ErrorIs(t, err, ErrNotFound)
}
