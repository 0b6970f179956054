package drive

import (
	"fmt"

	snaperrors "github.com/jrsteele09/drive-snapshot/internal/errors"
)

// ErrUnauthorized matches every *AuthError via errors.Is.
var ErrUnauthorized = snaperrors.ErrUnauthorized

// APIError represents a non-2xx response from the store
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("drive API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// AuthError means the access token was missing, expired or rejected. Callers
// should refresh or re-authenticate rather than treat it as a network failure.
type AuthError struct {
	Endpoint string
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("drive authorization failed (endpoint: %s): %v", e.Endpoint, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

func (e *AuthError) Is(target error) bool {
	return target == ErrUnauthorized
}

// UploadError is returned by Upload. It is never retried automatically.
type UploadError struct {
	Name string
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s: %v", e.Name, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// DownloadError is returned by Download.
type DownloadError struct {
	ID   string
	Name string
	Err  error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s (%s): %v", e.Name, e.ID, e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}
