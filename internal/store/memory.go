package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/rehearse/pkg/types"
)

// MemoryStore is an in-process [Store]. Data is lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session), now: time.Now}
}

// CreateSession implements [Store].
func (m *MemoryStore) CreateSession(_ context.Context, s Session) error {
	if s.ID == "" {
		return fmt.Errorf("store: create session: empty id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; ok {
		return fmt.Errorf("store: create session %q: %w", s.ID, ErrAlreadyExists)
	}
	now := m.now()
	s.Status = StatusActive
	s.Messages = slices.Clone(s.Messages)
	s.Metrics = nil
	s.EndedAt = time.Time{}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	m.sessions[s.ID] = &s
	return nil
}

// GetSession implements [Store].
func (m *MemoryStore) GetSession(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("store: get session %q: %w", id, ErrNotFound)
	}
	cp := *s
	cp.Messages = slices.Clone(s.Messages)
	cp.Role.FocusAreas = slices.Clone(s.Role.FocusAreas)
	cp.Role.SeedQuestions = slices.Clone(s.Role.SeedQuestions)
	if s.Metrics != nil {
		mt := *s.Metrics
		cp.Metrics = &mt
	}
	return &cp, nil
}

// AppendMessages implements [Store].
func (m *MemoryStore) AppendMessages(_ context.Context, id string, msgs []types.ConversationMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("store: append messages %q: %w", id, ErrNotFound)
	}
	m.appendLocked(s, msgs)
	return nil
}

// MarkComplete implements [Store].
func (m *MemoryStore) MarkComplete(_ context.Context, id string, msgs []types.ConversationMessage, mt Metrics) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("store: mark complete %q: %w", id, ErrNotFound)
	}
	switch s.Status {
	case StatusCompleted:
		return nil
	case StatusAbandoned:
		return fmt.Errorf("store: mark complete %q: %w", id, ErrSessionClosed)
	}
	m.appendLocked(s, msgs)
	s.Status = StatusCompleted
	s.Metrics = &mt
	s.EndedAt = m.now()
	s.UpdatedAt = s.EndedAt
	return nil
}

// MarkAbandoned implements [Store].
func (m *MemoryStore) MarkAbandoned(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("store: mark abandoned %q: %w", id, ErrNotFound)
	}
	switch s.Status {
	case StatusAbandoned:
		return nil
	case StatusCompleted:
		return fmt.Errorf("store: mark abandoned %q: %w", id, ErrSessionClosed)
	}
	s.Status = StatusAbandoned
	s.EndedAt = m.now()
	s.UpdatedAt = s.EndedAt
	return nil
}

// Ping always succeeds. It satisfies the readiness check signature.
func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) appendLocked(s *Session, msgs []types.ConversationMessage) {
	if len(msgs) <= len(s.Messages) {
		return
	}
	s.Messages = append(s.Messages, msgs[len(s.Messages):]...)
	s.UpdatedAt = m.now()
}
