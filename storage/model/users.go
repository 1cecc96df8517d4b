package model

import (
	"time"
)

// User is the single persisted entity: an account that can sign in with a
// local password, a Google identity, or both, and that may hold one secret.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Username is the unique login identifier. For local accounts this is
	// the registered email address; for external-identity accounts it is
	// synthesized as "<provider>-<external id>".
	Username string `gorm:"uniqueIndex" json:"username"`
	// PasswordHash stores a PHC-formatted argon2id hash of the user's
	// password. Empty for accounts that only have an external identity.
	PasswordHash string `json:"-"`
	// Provider names the external identity provider, e.g. "google".
	// Empty for local-only accounts.
	Provider string `json:"provider,omitempty"`
	// ExternalID is the provider-issued stable identifier. The unique index
	// is what makes concurrent find-or-create safe.
	ExternalID *string `gorm:"uniqueIndex" json:"-"`
	// Secret holds the user's stored secret in its at-rest form: either
	// cleartext or an encrypted bundle, depending on deployment config.
	// Callers above the storage layer never interpret this field directly.
	Secret string `json:"-"`
}

// HasSecret reports whether the user has submitted a secret.
func (u User) HasSecret() bool {
	return u.Secret != ""
}

// UsersStore abstracts lookup, creation and authentication of users.
type UsersStore interface {
	// FindByID returns the user with the given id
	FindByID(id uint) (*User, error)
	// FindByUsername returns the user with the given username
	FindByUsername(username string) (*User, error)
	// FindByExternalID returns the user with the given external identity id
	FindByExternalID(externalID string) (*User, error)
	// CreateLocal creates a local account; the implementation must hash the password
	CreateLocal(username, password string) (*User, error)
	// GetOrCreateExternal returns the user for the given external identity,
	// creating it if it does not exist yet. Safe under concurrent calls for
	// the same external id.
	GetOrCreateExternal(provider, externalID string) (*User, error)
	// SetSecret overwrites the stored secret of the given user
	SetSecret(id uint, stored string) error
	// ListAll returns all users (without password hashes)
	ListAll() ([]User, error)
	// Authenticate checks a username/password combo and returns the user
	Authenticate(username, password string) (*User, error)
	// Count returns the number of users present in the store
	Count() (int64, error)
}
