package model

import "time"

const (
	JoinRequestStatusPending  = "PENDING"
	JoinRequestStatusAccepted = "ACCEPTED"
	JoinRequestStatusRejected = "REJECTED"
)

type JoinRequest struct {
	ID          string     `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	BookingID   string     `json:"booking_id" bson:"booking_id" validate:"required,mongodb"`
	UserID      string     `json:"user_id" bson:"user_id" validate:"required,ref_id,max=64"`
	UserName    string     `json:"user_name,omitempty" bson:"user_name,omitempty" validate:"omitempty,max=100"`
	Message     string     `json:"message,omitempty" bson:"message,omitempty" validate:"omitempty,max=280"`
	Status      string     `json:"status" bson:"status" validate:"required,oneof=PENDING ACCEPTED REJECTED"`
	CreatedAt   time.Time  `json:"created_at" bson:"created_at"`
	RespondedAt *time.Time `json:"responded_at,omitempty" bson:"responded_at,omitempty"`
}

type JoinRequestCreate struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name,omitempty"`
	Message  string `json:"message,omitempty"`
}

type JoinRequestResponse struct {
	Status string `json:"status"`
}
