package core

import (
	"errors"
	"fmt"
)

var ErrStepTimeout = errors.New("step timed out")

// TransientActivityError is a failed attempt that the retry budget may absorb.
type TransientActivityError struct {
	Step    string
	Attempt int
	Err     error
}

func (e *TransientActivityError) Error() string {
	return fmt.Sprintf("transient failure in %s (attempt %d): %v", e.Step, e.Attempt, e.Err)
}

func (e *TransientActivityError) Unwrap() error {
	return e.Err
}

// UnrecoverableSagaError ends the run. It is raised for a permanent activity
// failure or once the retry budget of a step is spent.
type UnrecoverableSagaError struct {
	Step     string
	Attempts int
	Err      error
}

func (e *UnrecoverableSagaError) Error() string {
	return fmt.Sprintf("%s step failed after %d attempt(s): %v", e.Step, e.Attempts, e.Err)
}

func (e *UnrecoverableSagaError) Unwrap() error {
	return e.Err
}

// Reason is the failure reason recorded on the booking.
func (e *UnrecoverableSagaError) Reason() string {
	var transient *TransientActivityError
	cause := e.Err
	if errors.As(cause, &transient) {
		cause = transient.Err
	}
	return fmt.Sprintf("%s: %v", e.Step, cause)
}

func AsUnrecoverable(err error) (*UnrecoverableSagaError, bool) {
	var unrecoverable *UnrecoverableSagaError
	if errors.As(err, &unrecoverable) {
		return unrecoverable, true
	}
	return nil, false
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string {
	return e.err.Error()
}

func (e *permanentError) Unwrap() error {
	return e.err
}

// Permanent marks err as not worth retrying. Activities wrap business
// precondition failures with it; anything unmarked is retried.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	if IsPermanent(err) {
		return err
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

func IsTransient(err error) bool {
	return err != nil && !IsPermanent(err)
}
