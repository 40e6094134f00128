package model

import (
	"fmt"
	"time"
)

// GroundReservation holds a ground slot for one booking. The _id is the slot
// key, so a second insert for the same slot fails with a duplicate key error.
type GroundReservation struct {
	ID        string    `bson:"_id" json:"id"`
	GroundID  string    `bson:"ground_id" json:"ground_id"`
	BookingID string    `bson:"booking_id" json:"booking_id"`
	StartTime time.Time `bson:"start_time" json:"start_time"`
	EndTime   time.Time `bson:"end_time" json:"end_time"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

func SlotKey(groundID string, start, end time.Time) string {
	return fmt.Sprintf("%s|%d|%d", groundID, start.Unix(), end.Unix())
}
