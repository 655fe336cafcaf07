package server

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionStore is an explicit, injectable token store for dashboard logins.
// It is constructed at startup and passed into the server, so tests can build
// independent instances with their own clocks.
type SessionStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]time.Time
	now      func() time.Time
}

// NewSessionStore creates a session store with the given token lifetime.
func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{
		ttl:      ttl,
		sessions: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Create issues a new opaque session token.
func (s *SessionStore) Create() string {
	token := uuid.New().String()
	s.mu.Lock()
	s.sessions[token] = s.now().Add(s.ttl)
	s.mu.Unlock()
	return token
}

// Valid reports whether the token exists and has not expired. Expired tokens
// are pruned on the way through.
func (s *SessionStore) Valid(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	expiry, ok := s.sessions[token]
	if !ok {
		return false
	}
	if s.now().After(expiry) {
		delete(s.sessions, token)
		return false
	}
	return true
}

// Destroy removes a token.
func (s *SessionStore) Destroy(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}
