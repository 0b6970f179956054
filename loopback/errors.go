package loopback

import (
	"fmt"

	snaperrors "github.com/jrsteele09/drive-snapshot/internal/errors"
)

var (
	// ErrNotIdle is returned when Start is called on a listener that was already started or stopped.
	ErrNotIdle = snaperrors.ErrListenerNotIdle
	// ErrCompleted is answered to requests arriving after a code was claimed.
	ErrCompleted = snaperrors.ErrListenerCompleted
)

// BindError reports that the redirect port could not be bound, usually
// because a server from a crashed earlier run still holds it.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("cannot bind loopback listener on %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// DeniedError reports that the provider redirected with an error instead of a code.
type DeniedError struct {
	Code        string
	Description string
}

func (e *DeniedError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("authorization denied: %s", e.Code)
	}
	return fmt.Sprintf("authorization denied: %s - %s", e.Code, e.Description)
}
