package errors

import "errors"

var (
	ErrNotFound            = errors.New("booking not found")
	ErrInvalidID           = errors.New("invalid booking ID format")
	ErrInvalidTimeRange    = errors.New("end time must be after start time")
	ErrSlotHeld            = errors.New("ground slot is held by another booking")
	ErrReservationNotFound = errors.New("ground reservation not found")
)
