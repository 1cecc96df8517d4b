package auth

import (
	"net/mail"

	"github.com/whisperwall/whisperwall/storage/model"
)

const minPasswordLength = 8

// LocalAuthenticator verifies and creates username/password accounts against
// a UsersStore. It owns input validation; password hashing lives in the store.
type LocalAuthenticator struct {
	Users model.UsersStore
}

// Register validates the input, then creates a local account. All violated
// validation rules are reported together in one *ValidationError.
func (a LocalAuthenticator) Register(username, rawPassword string) (*model.User, error) {
	var violations []FieldError
	if !validEmail(username) {
		violations = append(violations, FieldError{Field: "username", Message: "Please enter a valid email address."})
	}
	if len(rawPassword) < minPasswordLength {
		violations = append(violations, FieldError{Field: "password", Message: "Password must be at least 8 characters."})
	}
	if len(violations) > 0 {
		return nil, &ValidationError{Errors: violations}
	}

	if _, err := a.Users.FindByUsername(username); err == nil {
		return nil, ErrUsernameTaken
	} else if !model.IsNotFound(err) {
		return nil, err
	}

	u, err := a.Users.CreateLocal(username, rawPassword)
	if err != nil {
		// Two registrations racing on the same username: the unique index
		// turns the loser into the same outcome as the pre-check.
		if model.IsAlreadyExists(err) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}
	return u, nil
}

// Authenticate validates the form input and checks the credentials. Every
// credential failure surfaces as ErrInvalidCredentials; only store outages
// are reported separately.
func (a LocalAuthenticator) Authenticate(username, rawPassword string) (*model.User, error) {
	var violations []FieldError
	if !validEmail(username) {
		violations = append(violations, FieldError{Field: "username", Message: "Please enter a valid email address."})
	}
	if rawPassword == "" {
		violations = append(violations, FieldError{Field: "password", Message: "Password cannot be empty."})
	}
	if len(violations) > 0 {
		return nil, &ValidationError{Errors: violations}
	}

	u, err := a.Users.Authenticate(username, rawPassword)
	if err != nil {
		if _, ok := err.(model.UnavailableError); ok {
			return nil, err
		}
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// validEmail accepts a bare RFC 5322 address without display name.
func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}
