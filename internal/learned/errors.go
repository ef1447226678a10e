package learned

import (
	"github.com/pkg/errors"
)

// ErrModelUnavailable reports that the model could not be acquired or run:
// no network on first use, a corrupted cache, no compatible runtime, or the
// tier being disabled. Callers are expected to fall back to another
// strategy.
var ErrModelUnavailable = errors.New("detection model unavailable")

// UnavailableError carries the reason the model is unavailable. It matches
// ErrModelUnavailable with errors.Is and unwraps to its cause.
type UnavailableError struct {
	Reason string
	Cause  error
}

func (e *UnavailableError) Error() string {
	msg := ErrModelUnavailable.Error() + ": " + e.Reason
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *UnavailableError) Unwrap() error { return e.Cause }

// Is makes every UnavailableError match ErrModelUnavailable.
func (e *UnavailableError) Is(target error) bool {
	return target == ErrModelUnavailable
}

func unavailable(cause error, reason string) error {
	return errors.WithStack(&UnavailableError{Reason: reason, Cause: cause})
}
