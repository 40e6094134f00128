package validators

import "go.mongodb.org/mongo-driver/bson"

// JoinRequestValidator keeps booking_id as the hex form of the booking's
// ObjectID.
var JoinRequestValidator = jsonSchema(
	[]string{"booking_id", "user_id", "status", "created_at"},
	bson.M{
		"_id":          objectID,
		"booking_id":   str(24, 24),
		"user_id":      str(1, 64),
		"user_name":    str(0, 100),
		"message":      str(0, 280),
		"status":       enum("PENDING", "ACCEPTED", "REJECTED"),
		"created_at":   date,
		"responded_at": date,
	},
)
