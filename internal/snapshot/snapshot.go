// Package snapshot keeps a short-lived copy of each running interview's
// transcript so that a candidate who reloads the page or loses the connection
// can pick up where they left off.
//
// Two backends implement [Store]: [MemoryStore] for single-instance
// deployments and [RedisStore] when several server instances share sessions.
// Both expire entries on their own; [Valid] is the authoritative freshness
// check.
package snapshot

import (
	"context"
	"time"

	"github.com/MrWong99/rehearse/pkg/types"
)

// DefaultTTL is how long a snapshot stays usable after its last update.
const DefaultTTL = 2 * time.Hour

// Snapshot is the recoverable part of an interview.
type Snapshot struct {
	SessionID   string                      `json:"session_id"`
	Messages    []types.ConversationMessage `json:"messages"`
	LastUpdated time.Time                   `json:"last_updated"`
}

// Store persists snapshots keyed by session id.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Save writes snap, replacing any previous snapshot of the same session.
	Save(ctx context.Context, snap Snapshot) error

	// Load returns the snapshot of sessionID, or (nil, nil) if there is none.
	Load(ctx context.Context, sessionID string) (*Snapshot, error)

	// Delete removes the snapshot of sessionID. Deleting a missing snapshot is
	// not an error.
	Delete(ctx context.Context, sessionID string) error
}

// Valid reports whether snap may be used to resume sessionID at now. A
// snapshot is invalid when it belongs to another session or is older than
// ttl.
func Valid(snap *Snapshot, sessionID string, now time.Time, ttl time.Duration) bool {
	if snap == nil || snap.SessionID != sessionID {
		return false
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return now.Sub(snap.LastUpdated) <= ttl
}
