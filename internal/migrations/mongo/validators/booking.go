package validators

import "go.mongodb.org/mongo-driver/bson"

var BookingValidator = jsonSchema(
	[]string{
		"user_id", "ground_id", "start_time", "end_time", "status",
		"is_public", "max_participants", "joined_participants", "created_at",
	},
	bson.M{
		"_id":         objectID,
		"user_id":     str(1, 64),
		"ground_id":   str(1, 64),
		"ground_name": str(0, 100),
		"start_time":  date,
		"end_time":    date,
		"status":      enum("PENDING", "CONFIRMED", "FAILED", "CANCELLED"),
		"saga_run_id": str(0, 0),
		"is_public":   boolean,
		"max_participants": bson.M{
			"bsonType": []string{"int", "long"},
			"minimum":  1,
			"maximum":  200,
		},
		"joined_participants": integer(1),
		"total_amount": bson.M{
			"bsonType": []string{"double", "int", "long", "decimal"},
			"minimum":  0,
		},
		"payment_settled": boolean,
		"failure_reason":  str(0, 0),
		"created_at":      date,
		"updated_at":      date,
	},
)
