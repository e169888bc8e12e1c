package model

import (
	"time"
)

// Reservation lifecycle statuses. A reservation is created active, may be
// cancelled or rescheduled by its owner while active, and is marked completed
// by an external sweep once its interval has fully elapsed. Cancelled and
// completed are terminal.
const (
	StatusActive    = "active"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
)

type Reservation struct {
	ID          string    `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	OwnerID     string    `json:"owner_id" bson:"owner_id" validate:"required,min=1,max=64"`
	WorkspaceID string    `json:"workspace_id" bson:"workspace_id" validate:"required,mongodb"`
	Interval    Interval  `json:"interval" bson:"interval" validate:"required"`
	Status      string    `json:"status" bson:"status" validate:"required,oneof=active cancelled completed"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at" validate:"omitempty"`
	UpdatedAt   time.Time `json:"updated_at" bson:"updated_at" validate:"omitempty"`
}

func (r *Reservation) IsActive() bool {
	return r.Status == StatusActive
}

// IsTerminal reports whether the reservation can no longer be cancelled or
// rescheduled.
func (r *Reservation) IsTerminal() bool {
	return r.Status == StatusCancelled || r.Status == StatusCompleted
}
