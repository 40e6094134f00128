package model

import (
	"time"
)

const (
	BookingStatusPending   = "PENDING"
	BookingStatusConfirmed = "CONFIRMED"
	BookingStatusFailed    = "FAILED"
	BookingStatusCancelled = "CANCELLED"
)

type Booking struct {
	ID                 string    `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	UserID             string    `json:"user_id" bson:"user_id" validate:"required,ref_id,max=64"`
	GroundID           string    `json:"ground_id" bson:"ground_id" validate:"required,ref_id,max=64"`
	GroundName         string    `json:"ground_name,omitempty" bson:"ground_name,omitempty" validate:"omitempty,max=100"`
	StartTime          time.Time `json:"start_time" bson:"start_time" validate:"required"`
	EndTime            time.Time `json:"end_time" bson:"end_time" validate:"required,gtfield=StartTime"`
	Status             string    `json:"status" bson:"status" validate:"required,oneof=PENDING CONFIRMED FAILED CANCELLED"`
	SagaRunID          string    `json:"saga_run_id,omitempty" bson:"saga_run_id,omitempty"`
	IsPublic           *bool     `json:"is_public" bson:"is_public" validate:"required"`
	MaxParticipants    int       `json:"max_participants" bson:"max_participants" validate:"required,min=1,max=200"`
	JoinedParticipants int       `json:"joined_participants" bson:"joined_participants" validate:"required,min=1,ltefield=MaxParticipants"`
	TotalAmount        float64   `json:"total_amount" bson:"total_amount" validate:"gte=0"`
	PaymentSettled     bool      `json:"payment_settled" bson:"payment_settled"`
	FailureReason      string    `json:"failure_reason,omitempty" bson:"failure_reason,omitempty"`
	CreatedAt          time.Time `json:"created_at" bson:"created_at" validate:"omitempty"`
	UpdatedAt          time.Time `json:"updated_at" bson:"updated_at" validate:"omitempty"`
}

// Public reports the is_public flag, treating a missing value as private.
func (b *Booking) Public() bool {
	return b.IsPublic != nil && *b.IsPublic
}

// IsTerminal reports whether the saga has nothing left to do for this booking.
func (b *Booking) IsTerminal() bool {
	return IsTerminalBookingStatus(b.Status)
}

func IsTerminalBookingStatus(status string) bool {
	switch status {
	case BookingStatusConfirmed, BookingStatusFailed, BookingStatusCancelled:
		return true
	}
	return false
}

func (b *Booking) HasCapacity() bool {
	return b.JoinedParticipants < b.MaxParticipants
}

// BookingCreate is the payload accepted by the create endpoint.
type BookingCreate struct {
	UserID          string    `json:"user_id"`
	GroundID        string    `json:"ground_id"`
	GroundName      string    `json:"ground_name,omitempty"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	IsPublic        *bool     `json:"is_public,omitempty"`
	MaxParticipants int       `json:"max_participants,omitempty"`
	TotalAmount     float64   `json:"total_amount"`
}
