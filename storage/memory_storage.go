package storage

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/whisperwall/whisperwall/storage/model"
)

// MemoryUsersStorage is an in-memory UsersStore. It backs tests and local
// experimentation; production deployments use the GORM warehouse.
type MemoryUsersStorage struct {
	mu     sync.Mutex
	nextID uint
	byID   map[uint]*model.User
	params Argon2idParams
}

// NewMemoryUsersStorage returns an empty in-memory store. Hashing uses
// reduced argon2id parameters to keep test suites fast.
func NewMemoryUsersStorage() *MemoryUsersStorage {
	return &MemoryUsersStorage{
		nextID: 1,
		byID:   make(map[uint]*model.User),
		params: Argon2idParams{Time: 1, MemoryKiB: 8 * 1024, Parallelism: 1, KeyLen: 32, SaltLen: 16},
	}
}

// Count returns the number of users present in the store
func (s *MemoryUsersStorage) Count() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.byID)), nil
}

// ListAll returns all users (without password hashes)
func (s *MemoryUsersStorage) ListAll() ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]model.User, 0, len(s.byID))
	for _, u := range s.byID {
		c := *u
		c.PasswordHash = ""
		users = append(users, c)
	}
	return users, nil
}

// FindByID returns the user with the given id
func (s *MemoryUsersStorage) FindByID(id uint) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, model.NotFoundErrorFmt("user not found: %d", id)
	}
	c := *u
	c.PasswordHash = ""
	return &c, nil
}

// FindByUsername returns the user with the given username
func (s *MemoryUsersStorage) FindByUsername(username string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.lookupByUsername(username)
	if u == nil {
		return nil, model.NotFoundErrorFmt("user not found: %s", username)
	}
	c := *u
	c.PasswordHash = ""
	return &c, nil
}

// FindByExternalID returns the user with the given external identity id
func (s *MemoryUsersStorage) FindByExternalID(externalID string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.byID {
		if u.ExternalID != nil && *u.ExternalID == externalID {
			c := *u
			c.PasswordHash = ""
			return &c, nil
		}
	}
	return nil, model.NotFoundErrorFmt("no user for external id: %s", externalID)
}

// CreateLocal creates a local account with an Argon2id-hashed password
func (s *MemoryUsersStorage) CreateLocal(username, password string) (*model.User, error) {
	if len(username) == 0 || len(password) == 0 {
		return nil, errors.Errorf("username and password are required")
	}
	hash, err := hashPasswordArgon2id(password, s.params)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lookupByUsername(username) != nil {
		return nil, model.AlreadyExistsErrorFmt("user already exists: %s", username)
	}
	u := &model.User{ID: s.nextID, Username: username, PasswordHash: hash}
	s.nextID++
	s.byID[u.ID] = u
	c := *u
	c.PasswordHash = ""
	return &c, nil
}

// GetOrCreateExternal returns the user bound to the given external identity,
// creating it if absent. The store mutex plays the role of the unique index.
func (s *MemoryUsersStorage) GetOrCreateExternal(provider, externalID string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.byID {
		if u.ExternalID != nil && *u.ExternalID == externalID {
			c := *u
			c.PasswordHash = ""
			return &c, nil
		}
	}
	extID := externalID
	u := &model.User{
		ID:         s.nextID,
		Username:   fmt.Sprintf("%s-%s", provider, externalID),
		Provider:   provider,
		ExternalID: &extID,
	}
	s.nextID++
	s.byID[u.ID] = u
	c := *u
	return &c, nil
}

// SetSecret overwrites the stored secret of the given user
func (s *MemoryUsersStorage) SetSecret(id uint, stored string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return model.NotFoundErrorFmt("user not found: %d", id)
	}
	u.Secret = stored
	return nil
}

// Authenticate checks a username/password combo and returns the user
func (s *MemoryUsersStorage) Authenticate(username, password string) (*model.User, error) {
	s.mu.Lock()
	u := s.lookupByUsername(username)
	var hash string
	if u != nil {
		hash = u.PasswordHash
	}
	s.mu.Unlock()

	if hash == "" {
		_, _ = verifyPasswordArgon2id(dummyHash, password)
		return nil, errors.Errorf("invalid credentials")
	}
	ok, err := verifyPasswordArgon2id(hash, password)
	if err != nil || !ok {
		return nil, errors.Errorf("invalid credentials")
	}
	c := *u
	c.PasswordHash = ""
	return &c, nil
}

// lookupByUsername must be called with the mutex held.
func (s *MemoryUsersStorage) lookupByUsername(username string) *model.User {
	for _, u := range s.byID {
		if u.Username == username {
			return u
		}
	}
	return nil
}

var _ model.UsersStore = (*MemoryUsersStorage)(nil)
