package errors

import "errors"

var (
	ErrRunNotFound = errors.New("saga run not found")

	// ErrProgressConflict means the run log moved on without us, which only
	// happens when two workers execute the same run.
	ErrProgressConflict = errors.New("saga run progress changed concurrently")

	ErrLeaseNotHeld = errors.New("saga lease not held by this owner")
)
