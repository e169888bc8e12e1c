package validators

import "go.mongodb.org/mongo-driver/bson"

var ReservationValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"owner_id",
			"workspace_id",
			"interval",
			"status",
			"created_at",
			"updated_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "objectId",
			},

			"owner_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 64,
			},

			"workspace_id": bson.M{
				"bsonType":  "string",
				"minLength": 24,
				"maxLength": 24,
			},

			"interval": bson.M{
				"bsonType": "object",
				"required": []string{"start", "end"},
				"properties": bson.M{
					"start": bson.M{
						"bsonType": "date",
					},
					"end": bson.M{
						"bsonType": "date",
					},
				},
			},

			"status": bson.M{
				"bsonType": "string",
				"enum": []string{
					"active",
					"cancelled",
					"completed",
				},
			},

			"created_at": bson.M{
				"bsonType": "date",
			},

			"updated_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}

var ReservationLockValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"expires_at",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "string",
			},

			"expires_at": bson.M{
				"bsonType": "date",
			},

			"created_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
