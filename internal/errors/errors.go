package errors

import (
	"errors"
	"fmt"
)

// Common error types shared across the snapshot client
var (
	// Login errors
	ErrLoginInProgress = errors.New("login already in progress")
	ErrLoginRequired   = errors.New("login required")
	ErrStateMismatch   = errors.New("state parameter mismatch")
	ErrLoginCancelled  = errors.New("login cancelled")

	// Listener errors
	ErrListenerNotIdle   = errors.New("listener already started")
	ErrListenerCompleted = errors.New("login already completed")

	// Token errors
	ErrMissingAccessToken = errors.New("missing access token")
	ErrNoRefreshToken     = errors.New("no refresh token")

	// Remote store errors
	ErrUnauthorized = errors.New("unauthorized")

	// Archive errors
	ErrUnsafePath = errors.New("archive entry escapes destination")

	// General errors
	ErrNotFound = errors.New("not found")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
