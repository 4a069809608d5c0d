package statestore

import (
	"context"
	"fmt"
	"sync"

	"github.com/specialistvlad/repotaskrun/internal/model"
	"github.com/vmihailenco/msgpack/v5"
)

// MemoryStore keeps the encoded snapshot in memory. It goes through the same
// encoding as FileStore, so a loaded snapshot never aliases a saved one.
type MemoryStore struct {
	mu       sync.Mutex
	audience model.Audience
	data     []byte
}

// NewMemoryStore returns an empty in-memory store for audience.
func NewMemoryStore(audience model.Audience) *MemoryStore {
	return &MemoryStore{audience: audience}
}

// Load implements Store.
func (s *MemoryStore) Load(ctx context.Context) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data == nil {
		return nil, ErrNotFound
	}
	snap, err := decode(s.data)
	if err != nil {
		return nil, err
	}
	if err := snap.Validate(s.audience); err != nil {
		return nil, err
	}
	return snap, nil
}

// Save implements Store.
func (s *MemoryStore) Save(ctx context.Context, snap *Snapshot) error {
	snap.Version = SnapshotVersion
	snap.Audience = s.audience

	data, err := msgpack.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = nil
	return nil
}

// SetRaw replaces the stored bytes, bypassing encoding.
func (s *MemoryStore) SetRaw(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
}
