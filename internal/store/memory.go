// Package store provides the in-memory session store. Sessions for
// different users are independent; a session is a single-writer resource
// and every mutation goes through Update.
package store

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/futenglish/coach/domain/entities"
	"github.com/futenglish/coach/domain/repositories"
)

// MemoryStore keeps all sessions in a map keyed by user id. The map
// mutex is held only for in-memory reads and writes, never across
// external calls, so units of work for distinct users do not block each
// other.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*entities.UserSession
	logger   *zap.Logger
}

var _ repositories.SessionStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty session store
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*entities.UserSession),
		logger:   logger,
	}
}

// Get returns a copy of the user's session, creating a fresh one with
// defaults when absent. Idempotent, never fails.
func (s *MemoryStore) Get(userID string) *entities.UserSession {
	s.mu.RLock()
	sess, ok := s.sessions[userID]
	s.mu.RUnlock()
	if ok {
		return sess.Clone()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok = s.sessions[userID]; !ok {
		sess = entities.NewUserSession(userID)
		s.sessions[userID] = sess
		s.logger.Info("Session created", zap.String("userID", userID))
	}
	return sess.Clone()
}

// Update applies a pure mutation to the user's session and persists it,
// creating the session first when absent. Returns a copy of the updated
// session.
func (s *MemoryStore) Update(userID string, mutate func(*entities.UserSession)) *entities.UserSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		sess = entities.NewUserSession(userID)
		s.sessions[userID] = sess
	}
	mutate(sess)
	return sess.Clone()
}

// Delete removes the user's session, reporting whether it existed
func (s *MemoryStore) Delete(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[userID]; !ok {
		return false
	}
	delete(s.sessions, userID)
	return true
}

// EvictIdle removes sessions inactive for longer than ttl and returns
// how many were evicted.
func (s *MemoryStore) EvictIdle(ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, sess := range s.sessions {
		if sess.Idle(ttl) {
			delete(s.sessions, id)
			evicted++
		}
	}
	if evicted > 0 {
		s.logger.Info("Idle sessions evicted", zap.Int("count", evicted))
	}
	return evicted
}

// Count returns the number of live sessions
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
