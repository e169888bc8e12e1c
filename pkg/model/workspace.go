package model

import (
	"time"
)

type Workspace struct {
	ID          string    `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	Name        string    `json:"name" bson:"name" validate:"required,min=2,max=100"`
	Description string    `json:"description,omitempty" bson:"description,omitempty" validate:"omitempty,max=2000"`
	Capacity    int       `json:"capacity" bson:"capacity" validate:"required,min=1,max=500"`
	Active      bool      `json:"active" bson:"active"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at" validate:"omitempty"`
}

type WorkspaceUpdate struct {
	Name        string  `json:"name,omitempty" validate:"omitempty,min=2,max=100"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=2000"`
	Capacity    *int    `json:"capacity,omitempty" validate:"omitempty,min=1,max=500"`
	Active      *bool   `json:"active,omitempty"`
}
