package store

import (
	"context"
	"sync"
	"time"

	"github.com/askdokita/askdokita/server/ai"
)

// MemorySessionStore is an in-process SessionStore used by tests and by
// dev setups without Redis. It honors the same TTL semantics: every save
// resets the expiry.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]memorySession
	now      func() time.Time
}

type memorySession struct {
	history   []ai.Turn
	expiresAt time.Time
}

// NewMemorySessionStore creates an empty in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]memorySession),
		now:      time.Now,
	}
}

// Load implements SessionStore.
func (s *MemorySessionStore) Load(_ context.Context, sessionID string) ([]ai.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok || s.now().After(session.expiresAt) {
		return []ai.Turn{}, nil
	}
	history := make([]ai.Turn, len(session.history))
	copy(history, session.history)
	return history, nil
}

// Save implements SessionStore.
func (s *MemorySessionStore) Save(_ context.Context, sessionID string, history []ai.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]ai.Turn, len(history))
	copy(stored, history)
	s.sessions[sessionID] = memorySession{
		history:   stored,
		expiresAt: s.now().Add(SessionTTL),
	}
	return nil
}

// Close implements SessionStore.
func (s *MemorySessionStore) Close() error {
	return nil
}
