package snapshot

import (
	"context"
	"slices"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore keeps snapshots in process memory with native expiry.
type MemoryStore struct {
	cache *gocache.Cache
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns a MemoryStore whose entries expire ttl after their
// last save. Expired entries are purged every ttl/2.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{cache: gocache.New(ttl, ttl/2)}
}

// Save implements [Store].
func (s *MemoryStore) Save(_ context.Context, snap Snapshot) error {
	snap.Messages = slices.Clone(snap.Messages)
	s.cache.Set(snap.SessionID, snap, gocache.DefaultExpiration)
	return nil
}

// Load implements [Store].
func (s *MemoryStore) Load(_ context.Context, sessionID string) (*Snapshot, error) {
	v, ok := s.cache.Get(sessionID)
	if !ok {
		return nil, nil
	}
	snap := v.(Snapshot)
	snap.Messages = slices.Clone(snap.Messages)
	return &snap, nil
}

// Delete implements [Store].
func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.cache.Delete(sessionID)
	return nil
}

// Len returns the number of unexpired snapshots.
func (s *MemoryStore) Len() int {
	return s.cache.ItemCount()
}
