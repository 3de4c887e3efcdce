package broker

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var ErrPositionNotFound = errors.New("position not found")

// Error is a classified brokerage failure.
type Error struct {
	Op        string
	Status    int
	Message   string
	Transient bool
	Err       error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("broker %s (%d): %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("broker %s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// IsTransient reports whether err is worth retrying on a later poll:
// timeouts, connection failures, rate limiting and 5xx responses.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var be *Error
	if errors.As(err, &be) {
		return be.Transient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return false
}

func statusTransient(status int) bool {
	return status == 429 || status >= 500
}
