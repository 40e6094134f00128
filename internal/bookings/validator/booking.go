package validator

import (
	"fmt"
	"letsplay/pkg/logger"
	"letsplay/pkg/model"
	"letsplay/pkg/validation"
	"time"

	"github.com/go-playground/validator/v10"
)

type BookingValidator struct {
	validate             *validator.Validate
	logger               *logger.Logger
	maxParticipantsLimit int
	now                  func() time.Time
}

func NewBookingValidator(log *logger.Logger, maxParticipantsLimit int) *BookingValidator {
	v := validation.New(log)

	log.Info("Booking validator initialized successfully")

	return &BookingValidator{
		validate:             v,
		logger:               log,
		maxParticipantsLimit: maxParticipantsLimit,
		now:                  time.Now,
	}
}

// Validate checks a booking about to be created.
func (v *BookingValidator) Validate(booking *model.Booking) error {
	if err := validation.Struct(v.validate, booking); err != nil {
		return err
	}

	if booking.MaxParticipants > v.maxParticipantsLimit {
		return validation.Single("MaxParticipants",
			fmt.Sprintf("max_participants (%d) exceeds limit (%d)", booking.MaxParticipants, v.maxParticipantsLimit))
	}

	if !booking.Public() && (booking.MaxParticipants != 1 || booking.JoinedParticipants != 1) {
		return validation.Single("MaxParticipants", "private bookings are limited to the owner")
	}

	if booking.StartTime.Before(v.now()) {
		return validation.Single("StartTime", "start_time cannot be in the past")
	}

	return nil
}
