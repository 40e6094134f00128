package activities

import "errors"

var (
	ErrBookingMissing = errors.New("booking does not exist")

	ErrBookingNotPending = errors.New("booking is not pending")

	ErrInvalidWindow = errors.New("booking end time must be after start time")

	ErrSlotTaken = errors.New("ground slot already taken")

	ErrPaymentNotSettled = errors.New("payment not settled")
)
