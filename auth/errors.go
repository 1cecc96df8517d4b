package auth

import (
	"github.com/pkg/errors"
)

var (
	// ErrInvalidCredentials is the single error returned for every failed
	// login attempt. Unknown usernames and wrong passwords are deliberately
	// not distinguishable, so the login form cannot be used to enumerate
	// registered addresses.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUsernameTaken is returned when registering an already registered username
	ErrUsernameTaken = errors.New("username already taken")
	// ErrExternalAuthFailed is returned when the OAuth2 code exchange or the
	// profile fetch fails
	ErrExternalAuthFailed = errors.New("external authentication failed")
)

// FieldError describes one violated input rule on one form field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries all violated rules of a submitted form at once,
// not just the first one.
type ValidationError struct {
	Errors []FieldError `json:"errors"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "validation failed"
	}
	msg := "validation failed:"
	for _, fe := range e.Errors {
		msg += " " + fe.Field + ": " + fe.Message + ";"
	}
	return msg
}

// AsValidationError returns the *ValidationError inside err, or nil.
func AsValidationError(err error) *ValidationError {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve
	}
	return nil
}
