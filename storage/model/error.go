package model

import (
	"fmt"
)

// NotFoundError is an error signaling that something was not found in the
// database
type NotFoundError string

// Error implements the error interface
func (e NotFoundError) Error() string {
	return string(e)
}

// NotFoundErrorFmt returns a NotFoundError from the passed format string and parameters
func NotFoundErrorFmt(format string, params ...any) NotFoundError {
	return NotFoundError(fmt.Sprintf(format, params...))
}

// AlreadyExistsError is an error signaling that a record violating a
// uniqueness constraint (username or external id) already exists
type AlreadyExistsError string

// Error implements the error interface
func (e AlreadyExistsError) Error() string {
	return string(e)
}

// AlreadyExistsErrorFmt returns an AlreadyExistsError from the passed format string and parameters
func AlreadyExistsErrorFmt(format string, params ...any) AlreadyExistsError {
	return AlreadyExistsError(fmt.Sprintf(format, params...))
}

// UnavailableError is an error signaling that the backing store could not be
// reached or did not answer in time; distinct from NotFoundError so callers
// can tell an absent record from a broken store
type UnavailableError struct {
	err error
}

// Error implements the error interface
func (e UnavailableError) Error() string {
	return fmt.Sprintf("store unavailable: %v", e.err)
}

// Unwrap returns the underlying error
func (e UnavailableError) Unwrap() error {
	return e.err
}

// UnavailableErrorFrom wraps the passed error as an UnavailableError
func UnavailableErrorFrom(err error) UnavailableError {
	return UnavailableError{err: err}
}

// IsNotFound reports whether err is a NotFoundError
func IsNotFound(err error) bool {
	_, ok := err.(NotFoundError)
	return ok
}

// IsAlreadyExists reports whether err is an AlreadyExistsError
func IsAlreadyExists(err error) bool {
	_, ok := err.(AlreadyExistsError)
	return ok
}
