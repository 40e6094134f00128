package errors

import "errors"

var (
	ErrNotFound = errors.New("join request not found")

	ErrInvalidID = errors.New("invalid join request ID format")

	ErrDuplicatePending = errors.New("user already has a pending request for this booking")
)
