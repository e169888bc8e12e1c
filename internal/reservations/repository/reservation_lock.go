package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"deskly/pkg/config"
	"deskly/pkg/model"
)

const LockCollectionName = "Reservation_locks"

// ReservationLockRepository holds the advisory locks that serialize the
// conflict-check-then-write critical section. One lock document per
// workspace; acquisition is a unique _id insert, so a duplicate key error
// means another request holds the lock. A TTL index on expires_at reaps
// locks orphaned by a crashed holder.
type ReservationLockRepository interface {
	Create(ctx context.Context, lock *model.ReservationLock) (*model.ReservationLock, error)
	Delete(ctx context.Context, lockID string) error
}

type mongoReservationLockRepository struct {
	collection *mongo.Collection
}

func NewReservationLockRepository(cfg *config.Config) ReservationLockRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoReservationLockRepository{
		collection: db.Collection(LockCollectionName),
	}
}

// Create inserts the lock document. Returns a duplicate key error when the
// lock is already held.
func (r *mongoReservationLockRepository) Create(ctx context.Context, lock *model.ReservationLock) (*model.ReservationLock, error) {
	lock.CreatedAt = time.Now().UTC()

	_, err := r.collection.InsertOne(ctx, lock)
	if err != nil {
		return nil, err
	}

	return lock, nil
}

func (r *mongoReservationLockRepository) Delete(ctx context.Context, lockID string) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": lockID})
	return err
}
