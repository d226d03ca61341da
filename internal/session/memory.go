package session

import (
	"context"
	"sync"
	"time"

	"github.com/haventools/premises-manage/core/internal/autherr"
)

// MemoryStore is an in-memory Store with the same compare-and-swap semantics
// as the pgx-backed store. Used in tests and single-process setups.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]Session
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Session)}
}

// Create implements Store.
func (s *MemoryStore) Create(_ context.Context, sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[sess.ID]; exists {
		return autherr.New(autherr.CodeDuplicateData, "session already exists")
	}
	s.sessions[sess.ID] = sess
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, autherr.New(autherr.CodeNotFound, "session not found")
	}
	return sess, nil
}

// Swap implements Store. The write succeeds only when the stored version
// still equals expectedVersion.
func (s *MemoryStore) Swap(_ context.Context, sess Session, expectedVersion int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.sessions[sess.ID]
	if !ok {
		return autherr.New(autherr.CodeNotFound, "session not found")
	}
	if current.Version != expectedVersion || current.State != StateActive {
		return autherr.New(autherr.CodeConflict, "session was modified concurrently")
	}
	s.sessions[sess.ID] = sess
	return nil
}

// Revoke implements Store.
func (s *MemoryStore) Revoke(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return autherr.New(autherr.CodeNotFound, "session not found")
	}
	sess.State = StateRevoked
	s.sessions[id] = sess
	return nil
}

// DeleteExpired implements Store.
func (s *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}
