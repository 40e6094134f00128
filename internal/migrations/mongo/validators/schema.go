package validators

import "go.mongodb.org/mongo-driver/bson"

func jsonSchema(required []string, props bson.M) bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType":             "object",
			"required":             required,
			"additionalProperties": true,
			"properties":           props,
		},
	}
}

// str bounds a string field. A zero max leaves the length open.
func str(minLen, maxLen int) bson.M {
	s := bson.M{"bsonType": "string"}
	if minLen > 0 {
		s["minLength"] = minLen
	}
	if maxLen > 0 {
		s["maxLength"] = maxLen
	}
	return s
}

func enum(values ...string) bson.M {
	return bson.M{"bsonType": "string", "enum": values}
}

func integer(minimum int) bson.M {
	return bson.M{"bsonType": []string{"int", "long"}, "minimum": minimum}
}

func typed(bsonType string) bson.M {
	return bson.M{"bsonType": bsonType}
}

var (
	objectID = typed("objectId")
	date     = typed("date")
	boolean  = typed("bool")
)
