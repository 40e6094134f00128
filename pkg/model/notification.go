package model

import "time"

const (
	NotificationKindJoinRequest      = "JOIN_REQUEST"
	NotificationKindJoinAccepted     = "JOIN_ACCEPTED"
	NotificationKindJoinRejected     = "JOIN_REJECTED"
	NotificationKindBookingConfirmed = "BOOKING_CONFIRMED"
	NotificationKindBookingFailed    = "BOOKING_FAILED"
)

type Notification struct {
	ID        string    `json:"id,omitempty" bson:"_id,omitempty"`
	UserID    string    `json:"user_id" bson:"user_id"`
	Title     string    `json:"title" bson:"title"`
	Message   string    `json:"message" bson:"message"`
	Kind      string    `json:"kind,omitempty" bson:"kind,omitempty"`
	BookingID string    `json:"booking_id,omitempty" bson:"booking_id,omitempty"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}
