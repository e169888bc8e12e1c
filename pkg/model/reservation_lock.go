package model

import "time"

// ReservationLock is an advisory lock serializing the conflict-check-and-write
// critical section of booking and rescheduling. One lock exists per workspace;
// the unique _id insert is the acquisition, and ExpiresAt backs a TTL index so
// crashed holders cannot wedge a workspace.
type ReservationLock struct {
	ID        string    `bson:"_id" json:"id"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
