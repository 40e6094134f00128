package validators

import "go.mongodb.org/mongo-driver/bson"

var SagaRunValidator = jsonSchema(
	[]string{"_id", "booking_id", "state", "completed_steps", "created_at", "updated_at"},
	bson.M{
		"_id":             str(1, 0),
		"booking_id":      str(1, 0),
		"state":           enum("RUNNING", "COMPLETED", "FAILED", "COMPENSATION_FAILED"),
		"completed_steps": integer(0),
		"current_step":    str(0, 0),
		"attempts":        integer(0),
		"last_error":      str(0, 0),
		"failure_reason":  str(0, 0),
		"history":         bson.M{"bsonType": "array"},
		"created_at":      date,
		"updated_at":      date,
		"finished_at":     date,
	},
)
