package validators

import "go.mongodb.org/mongo-driver/bson"

var WorkspaceValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"name",
			"capacity",
			"active",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "objectId",
			},

			"name": bson.M{
				"bsonType":  "string",
				"minLength": 2,
				"maxLength": 100,
			},

			"description": bson.M{
				"bsonType":  "string",
				"maxLength": 2000,
			},

			"capacity": bson.M{
				"bsonType": "int",
				"minimum":  1,
				"maximum":  500,
			},

			"active": bson.M{
				"bsonType": "bool",
			},

			"created_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
