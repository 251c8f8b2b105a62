package errors

import (
	"errors"
	"fmt"
)

// Common error types for the Flavory API client
var (
	// Identity provider errors
	ErrAuthFailure    = errors.New("authentication failed")
	ErrLoginCancelled = fmt.Errorf("%w: login cancelled", ErrAuthFailure)
	ErrRefreshFailure = errors.New("token refresh failed")
	ErrNoRefreshToken = errors.New("no refresh token available")
	ErrLogoutRemote   = errors.New("remote logout failed")

	// API errors, classified by response status
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrValidation    = errors.New("validation failed")
	ErrTransient     = errors.New("transient failure")
	ErrRequestFailed = errors.New("request failed")

	// General errors
	ErrUnsupported = errors.New("unsupported operation")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Join returns an error that wraps the given errors, nil when all are nil
func Join(errs ...error) error {
	return errors.Join(errs...)
}
