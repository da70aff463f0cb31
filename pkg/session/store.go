package session

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/flowdeck/flowdeck/pkg/auth"
)

// DefaultIdleTimeout is used when no timeout is configured.
const DefaultIdleTimeout = 24 * time.Hour

type entry struct {
	user         *auth.User
	createdAt    time.Time
	lastAccessed time.Time
}

// Info describes a live session for introspection endpoints.
type Info struct {
	User         *auth.User `json:"user"`
	CreatedAt    time.Time  `json:"created_at"`
	LastAccessed time.Time  `json:"last_accessed"`
	ExpiresAt    time.Time  `json:"expires_at"`
}

// Store manages server-side sessions keyed by opaque identifiers.
type Store struct {
	idleTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*entry

	// now is swappable for expiry tests.
	now func() time.Time
}

// NewStore creates a session store with the given idle timeout.
func NewStore(idleTimeout time.Duration) *Store {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &Store{
		idleTimeout: idleTimeout,
		sessions:    make(map[string]*entry),
		now:         time.Now,
	}
}

// IdleTimeout returns the configured idle timeout.
func (s *Store) IdleTimeout() time.Duration {
	return s.idleTimeout
}

// Create issues a new session for the user and returns its identifier.
func (s *Store) Create(user *auth.User) (string, error) {
	id, err := randomToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}

	now := s.now()
	s.mu.Lock()
	s.sessions[id] = &entry{
		user:         user.Clone(),
		createdAt:    now,
		lastAccessed: now,
	}
	s.mu.Unlock()
	return id, nil
}

// Resolve returns the user bound to the session, refreshing its
// last-accessed time, or nil if the session is unknown or has been idle
// longer than the timeout. An expired session is removed on the spot.
func (s *Store) Resolve(id string) *auth.User {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return nil
	}
	if now.Sub(e.lastAccessed) > s.idleTimeout {
		delete(s.sessions, id)
		return nil
	}
	e.lastAccessed = now
	return e.user.Clone()
}

// Invalidate removes a session. Returns false if it was already absent.
func (s *Store) Invalidate(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	return true
}

// InvalidateAll removes every session bound to the username and returns the
// number removed. Used when an account is deactivated or deleted.
func (s *Store) InvalidateAll(username string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.sessions {
		if e.user.Username == username {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// SweepExpired removes every expired session and returns the number removed.
func (s *Store) SweepExpired() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.sessions {
		if now.Sub(e.lastAccessed) > s.idleTimeout {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// ActiveCount returns the number of live sessions, sweeping expired entries
// first so the count reflects only valid sessions.
func (s *Store) ActiveCount() int {
	s.SweepExpired()
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// CountForUser returns the number of live sessions for a username.
func (s *Store) CountForUser(username string) int {
	s.SweepExpired()
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, e := range s.sessions {
		if e.user.Username == username {
			count++
		}
	}
	return count
}

// GetInfo returns metadata for a live session without refreshing its
// last-accessed time, or nil if unknown or expired.
func (s *Store) GetInfo(id string) *Info {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return nil
	}
	if now.Sub(e.lastAccessed) > s.idleTimeout {
		delete(s.sessions, id)
		return nil
	}
	return &Info{
		User:         e.user.Clone(),
		CreatedAt:    e.createdAt,
		LastAccessed: e.lastAccessed,
		ExpiresAt:    e.lastAccessed.Add(s.idleTimeout),
	}
}

// randomToken returns 32 bytes of crypto randomness as URL-safe base64.
func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
