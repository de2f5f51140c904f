package chat

import (
	"errors"
	"fmt"
)

// Sentinel errors the rest of the system branches on.
var (
	// ErrMessageGone: the announcement was deleted out from under us. The
	// consumer clears the stored message id and moves on; it never recreates
	// the post.
	ErrMessageGone = errors.New("chat: message no longer exists")

	// ErrDMForbidden: the user disabled DMs. Treated as permanent success,
	// no retry queue.
	ErrDMForbidden = errors.New("chat: user refuses DMs")

	// ErrAlreadyAcked: a concurrent refresh rebuilt the control and the
	// platform saw our ack twice. Swallowed; the user's effect landed.
	ErrAlreadyAcked = errors.New("chat: interaction already acknowledged")
)

// TransientError marks failures worth retrying: timeouts, 429s, 5xx, open
// circuit breaker. Consumers NACK these to the DLQ; daemons roll back and
// retry next tick.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("chat: transient: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is marked retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
