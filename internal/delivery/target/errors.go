package target

import (
	"errors"
	"fmt"

	"github.com/vietddude/relay/internal/core/domain"
)

// TransientError marks a delivery failure worth retrying: connectivity
// problems, throttling, 5xx responses, or the target not having indexed the
// object yet.
type TransientError struct {
	Class domain.ErrorClass
	Err   error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient (%s): %v", e.Class, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransient wraps err with a retry class.
func NewTransient(class domain.ErrorClass, err error) *TransientError {
	return &TransientError{Class: class, Err: err}
}

// PermanentError marks a failure no retry can fix: bad credentials,
// malformed input, an unresolvable match. The job goes straight to the dead
// letter store and the breaker is not touched.
type PermanentError struct {
	Reason string
	Err    error
}

func (e *PermanentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("permanent (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("permanent (%s)", e.Reason)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// NewPermanent wraps err as non-retryable.
func NewPermanent(reason string, err error) *PermanentError {
	return &PermanentError{Reason: reason, Err: err}
}

// AsTransient extracts the retry class from err, if it is transient.
func AsTransient(err error) (domain.ErrorClass, bool) {
	var te *TransientError
	if errors.As(err, &te) {
		return te.Class, true
	}
	return "", false
}

// IsPermanent reports whether err is non-retryable.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
