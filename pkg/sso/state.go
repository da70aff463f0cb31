package sso

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"
)

// StateWindow is how long an issued CSRF state stays valid.
const StateWindow = 10 * time.Minute

// StateStore issues and single-use-validates the opaque tokens that bind a
// login attempt to its OAuth callback.
type StateStore struct {
	window time.Duration

	mu     sync.Mutex
	states map[string]time.Time // token -> issuance time

	now func() time.Time
}

// NewStateStore creates a state store with the standard ten-minute window.
func NewStateStore() *StateStore {
	return &StateStore{
		window: StateWindow,
		states: make(map[string]time.Time),
		now:    time.Now,
	}
}

// Issue generates a random state token and records its issuance time.
func (s *StateStore) Issue() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)

	s.mu.Lock()
	s.states[token] = s.now()
	s.mu.Unlock()
	return token, nil
}

// ValidateAndConsume checks a state token and removes it. It returns true at
// most once per token: unknown, expired, and already-consumed states all
// return false, and the removal happens inside a single critical section so
// concurrent duplicate callbacks cannot both succeed.
func (s *StateStore) ValidateAndConsume(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	issued, ok := s.states[token]
	if !ok {
		return false
	}
	delete(s.states, token)
	return s.now().Sub(issued) <= s.window
}

// SweepExpired removes every state older than the window and returns the
// number removed.
func (s *StateStore) SweepExpired() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for token, issued := range s.states {
		if now.Sub(issued) > s.window {
			delete(s.states, token)
			removed++
		}
	}
	return removed
}

// PendingCount returns the number of outstanding states.
func (s *StateStore) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}
