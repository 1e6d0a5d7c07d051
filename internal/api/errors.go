package api

import (
	"errors"
	"fmt"
)

// ErrSessionExpired signals that the server reported the session's time as
// exhausted mid-exchange. The controller escalates it to the session state
// machine instead of showing a transient notice.
var ErrSessionExpired = errors.New("session time exhausted")

// Error wraps transport failures and non-2xx responses. Callers treat any
// *Error as transient: the session survives, only the current exchange fails.
type Error struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsNetwork reports whether err is a transient transport or server failure.
func IsNetwork(err error) bool {
	var ae *Error
	return errors.As(err, &ae)
}
