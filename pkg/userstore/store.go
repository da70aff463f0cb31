package userstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/flowdeck/flowdeck/pkg/auth"
	"github.com/flowdeck/flowdeck/pkg/observability"
)

// StorageError reports a failure writing the backing file. The in-memory
// registry may be ahead of the durable copy when one is returned.
type StorageError struct {
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("user store write to %s failed: %v", e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Store is the durable registry of known users.
type Store struct {
	path   string
	logger *observability.Logger

	mu        sync.Mutex
	users     map[string]*auth.User
	overrides map[string]string // username or email -> role name
}

// NewStore loads the registry from path. A missing or corrupt file starts an
// empty registry; only directory creation can fail.
func NewStore(path string, overrides map[string]string, logger *observability.Logger) (*Store, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create user store directory: %w", err)
	}

	s := &Store{
		path:      path,
		logger:    logger,
		users:     make(map[string]*auth.User),
		overrides: make(map[string]string),
	}
	for k, v := range overrides {
		s.overrides[k] = v
	}
	s.load()
	return s, nil
}

// load reads the backing file. Corruption falls back to an empty registry.
func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.WithError(err).Warn("failed to read users file, starting empty")
		}
		return
	}

	var records map[string]*auth.User
	if err := json.Unmarshal(data, &records); err != nil {
		s.logger.WithError(err).WithField("path", s.path).
			Warn("users file is corrupt, starting empty")
		return
	}
	s.users = records
	s.logger.WithField("count", len(records)).Info("loaded user registry")
}

// persist writes the full registry. Caller holds the lock.
func (s *Store) persist() error {
	data, err := json.MarshalIndent(s.users, "", "  ")
	if err != nil {
		return &StorageError{Path: s.path, Err: err}
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return &StorageError{Path: s.path, Err: err}
	}
	return nil
}

// Get returns the user with the given username, or nil.
func (s *Store) Get(username string) *auth.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[username].Clone()
}

// GetByEmail returns the first user with the given email, or nil.
func (s *Store) GetByEmail(email string) *auth.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return u.Clone()
		}
	}
	return nil
}

// GetByProviderID returns the user matching the (provider, providerID) pair,
// or nil. The pair is unique across the registry.
func (s *Store) GetByProviderID(provider, providerID string) *auth.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Provider == provider && u.ProviderID == providerID {
			return u.Clone()
		}
	}
	return nil
}

// Upsert stores the user, applying any configured role override (username
// takes precedence over email) before persisting. The stored user is
// returned. Persistence failure returns a *StorageError; the in-memory view
// keeps the update.
func (s *Store) Upsert(user *auth.User) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := user.Clone()
	if role, ok := s.assignedRole(stored.Username, stored.Email); ok {
		stored.Role = role
	}
	s.users[stored.Username] = stored

	if err := s.persist(); err != nil {
		return stored.Clone(), err
	}
	return stored.Clone(), nil
}

// SetRole updates a user's role and persists. Returns false for an unknown
// username.
func (s *Store) SetRole(username string, role auth.Role) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[username]
	if !ok {
		return false, nil
	}
	user.Role = role
	return true, s.persist()
}

// SetActive flips a user's active flag and persists. Returns false for an
// unknown username.
func (s *Store) SetActive(username string, active bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[username]
	if !ok {
		return false, nil
	}
	user.IsActive = active
	return true, s.persist()
}

// Delete removes a user and persists. Returns false for an unknown username.
func (s *Store) Delete(username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[username]; !ok {
		return false, nil
	}
	delete(s.users, username)
	return true, s.persist()
}

// List returns all users.
func (s *Store) List() []*auth.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := make([]*auth.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u.Clone())
	}
	return users
}

// UsersWithRole returns all users holding exactly the given role.
func (s *Store) UsersWithRole(role auth.Role) []*auth.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	var users []*auth.User
	for _, u := range s.users {
		if u.Role == role {
			users = append(users, u.Clone())
		}
	}
	return users
}

// CountByRole returns a count per role, including zero counts for roles with
// no users.
func (s *Store) CountByRole() map[auth.Role]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[auth.Role]int, len(auth.AllRoles()))
	for _, role := range auth.AllRoles() {
		counts[role] = 0
	}
	for _, u := range s.users {
		counts[u.Role]++
	}
	return counts
}

// UpdateRoleAssignments replaces the override table, re-applies it to every
// stored user, and persists.
func (s *Store) UpdateRoleAssignments(assignments map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.overrides = make(map[string]string, len(assignments))
	for k, v := range assignments {
		s.overrides[k] = v
	}

	for _, u := range s.users {
		if role, ok := s.assignedRole(u.Username, u.Email); ok {
			u.Role = role
		}
	}
	return s.persist()
}

// assignedRole resolves a configured override, username before email.
// Caller holds the lock. Unparseable role names are skipped.
func (s *Store) assignedRole(username, email string) (auth.Role, bool) {
	for _, key := range []string{username, email} {
		if name, ok := s.overrides[key]; ok {
			if role, err := auth.ParseRole(name); err == nil {
				return role, true
			}
			s.logger.WithField("assignment", name).Warn("ignoring invalid role assignment")
		}
	}
	return "", false
}
