package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	reservationserrors "deskly/internal/reservations/errors"
	"deskly/pkg/config"
	mongotx "deskly/pkg/db/mongo"
	apperrors "deskly/pkg/errors"
	"deskly/pkg/model"
)

const (
	CollectionName = "Reservations"
)

type ReservationRepository interface {
	Create(ctx context.Context, reservation *model.Reservation) error
	FindByID(ctx context.Context, id string) (*model.Reservation, error)
	FindActiveOverlapping(ctx context.Context, workspaceID string, interval model.Interval, excludeID string) ([]*model.Reservation, error)
	FindBusyWorkspaceIDs(ctx context.Context, interval model.Interval) ([]string, error)
	FindByOwner(ctx context.Context, ownerID string, limit int, offset int64) ([]*model.Reservation, error)
	CountByOwner(ctx context.Context, ownerID string) (int64, error)
	FindActiveByOwner(ctx context.Context, ownerID string) ([]*model.Reservation, error)
	FindActiveByWorkspace(ctx context.Context, workspaceID string) ([]*model.Reservation, error)
	FindInRange(ctx context.Context, rng model.Interval, limit int, offset int64) ([]*model.Reservation, error)
	CountInRange(ctx context.Context, rng model.Interval) (int64, error)
	UpdateStatus(ctx context.Context, id string, status string, expectedStatus string) (*mongo.UpdateResult, error)
	UpdateInterval(ctx context.Context, id string, interval model.Interval, expectedStatus string) (*mongo.UpdateResult, error)
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

type mongoReservationRepository struct {
	cfg        *config.Config
	db         *mongo.Database
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

func NewMongoReservationRepository(cfg *config.Config) ReservationRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoReservationRepository{
		cfg:        cfg,
		db:         db,
		collection: db.Collection(CollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

// withTimeout wraps the context with a timeout unless it is already a
// SessionContext. Wrapping a SessionContext would detach the operation from
// its transaction, so inside a transaction the context passes through with a
// no-op cancel.
func (r *mongoReservationRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}

	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		return context.WithTimeout(ctx, timeout)
	}

	remaining := time.Until(deadline)
	if remaining < timeout {
		return context.WithTimeout(ctx, remaining)
	}

	return context.WithTimeout(ctx, timeout)
}

// classify maps driver failures onto the transport-facing error taxonomy.
// Deadline expiry becomes a Timeout, connectivity failures become
// Unavailable, everything else is wrapped for the service layer to handle.
func classify(err error, op string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Timeout(fmt.Sprintf("%s timed out", op))
	}
	if mongo.IsNetworkError(err) || errors.Is(err, mongo.ErrClientDisconnected) {
		return apperrors.Unavailable("reservation store")
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (r *mongoReservationRepository) Create(ctx context.Context, reservation *model.Reservation) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)
	reservation.CreatedAt = now
	reservation.UpdatedAt = now

	result, err := r.collection.InsertOne(ctx, reservation)
	if err != nil {
		return classify(err, "create reservation")
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		reservation.ID = oid.Hex()
	}
	return nil
}

func (r *mongoReservationRepository) FindByID(ctx context.Context, id string) (*model.Reservation, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", reservationserrors.ErrInvalidID, id)
	}

	var reservation model.Reservation
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&reservation)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, reservationserrors.ErrNotFound
		}
		return nil, classify(err, "find reservation")
	}

	return &reservation, nil
}

// FindActiveOverlapping returns active reservations on the workspace whose
// half-open intervals share at least one instant with the given interval.
// Abutting reservations are excluded by the strict $lt/$gt comparison. An
// empty excludeID means no exclusion.
func (r *mongoReservationRepository) FindActiveOverlapping(ctx context.Context, workspaceID string, interval model.Interval, excludeID string) ([]*model.Reservation, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"workspace_id":   workspaceID,
		"status":         model.StatusActive,
		"interval.start": bson.M{"$lt": interval.End},
		"interval.end":   bson.M{"$gt": interval.Start},
	}

	if excludeID != "" {
		objectID, err := primitive.ObjectIDFromHex(excludeID)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", reservationserrors.ErrInvalidID, excludeID)
		}
		filter["_id"] = bson.M{"$ne": objectID}
	}

	opts := options.Find().SetSort(bson.D{{Key: "interval.start", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, classify(err, "find overlapping reservations")
	}
	defer cursor.Close(ctx)

	var reservations []*model.Reservation
	if err = cursor.All(ctx, &reservations); err != nil {
		return nil, classify(err, "decode overlapping reservations")
	}

	return reservations, nil
}

// FindBusyWorkspaceIDs returns the distinct workspace IDs holding at least
// one active reservation overlapping the interval. The availability engine
// subtracts these from the active workspace set in a single round trip
// instead of probing workspaces one by one.
func (r *mongoReservationRepository) FindBusyWorkspaceIDs(ctx context.Context, interval model.Interval) ([]string, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"status":         model.StatusActive,
		"interval.start": bson.M{"$lt": interval.End},
		"interval.end":   bson.M{"$gt": interval.Start},
	}

	values, err := r.collection.Distinct(ctx, "workspace_id", filter)
	if err != nil {
		return nil, classify(err, "find busy workspaces")
	}

	ids := make([]string, 0, len(values))
	for _, v := range values {
		if id, ok := v.(string); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *mongoReservationRepository) FindByOwner(ctx context.Context, ownerID string, limit int, offset int64) ([]*model.Reservation, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "interval.start", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	cursor, err := r.collection.Find(ctx, bson.M{"owner_id": ownerID}, opts)
	if err != nil {
		return nil, classify(err, "find reservations by owner")
	}
	defer cursor.Close(ctx)

	var reservations []*model.Reservation
	if err = cursor.All(ctx, &reservations); err != nil {
		return nil, classify(err, "decode reservations by owner")
	}

	return reservations, nil
}

func (r *mongoReservationRepository) CountByOwner(ctx context.Context, ownerID string) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{"owner_id": ownerID})
	if err != nil {
		return 0, classify(err, "count reservations by owner")
	}
	return count, nil
}

func (r *mongoReservationRepository) FindActiveByOwner(ctx context.Context, ownerID string) ([]*model.Reservation, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"owner_id": ownerID,
		"status":   model.StatusActive,
	}
	opts := options.Find().SetSort(bson.D{{Key: "interval.start", Value: -1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, classify(err, "find active reservations by owner")
	}
	defer cursor.Close(ctx)

	var reservations []*model.Reservation
	if err = cursor.All(ctx, &reservations); err != nil {
		return nil, classify(err, "decode active reservations by owner")
	}

	return reservations, nil
}

func (r *mongoReservationRepository) FindActiveByWorkspace(ctx context.Context, workspaceID string) ([]*model.Reservation, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"workspace_id": workspaceID,
		"status":       model.StatusActive,
	}
	opts := options.Find().SetSort(bson.D{{Key: "interval.start", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, classify(err, "find reservations by workspace")
	}
	defer cursor.Close(ctx)

	var reservations []*model.Reservation
	if err = cursor.All(ctx, &reservations); err != nil {
		return nil, classify(err, "decode reservations by workspace")
	}

	return reservations, nil
}

// FindInRange returns reservations of any status whose interval lies entirely
// inside the range, sorted by start time.
func (r *mongoReservationRepository) FindInRange(ctx context.Context, rng model.Interval, limit int, offset int64) ([]*model.Reservation, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "interval.start", Value: 1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	cursor, err := r.collection.Find(ctx, rangeFilter(rng), opts)
	if err != nil {
		return nil, classify(err, "find reservations in range")
	}
	defer cursor.Close(ctx)

	var reservations []*model.Reservation
	if err = cursor.All(ctx, &reservations); err != nil {
		return nil, classify(err, "decode reservations in range")
	}

	return reservations, nil
}

func (r *mongoReservationRepository) CountInRange(ctx context.Context, rng model.Interval) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, rangeFilter(rng))
	if err != nil {
		return 0, classify(err, "count reservations in range")
	}
	return count, nil
}

func rangeFilter(rng model.Interval) bson.M {
	return bson.M{
		"interval.start": bson.M{"$gte": rng.Start},
		"interval.end":   bson.M{"$lte": rng.End},
	}
}

// UpdateStatus transitions a reservation to status only if it currently has
// expectedStatus. A zero MatchedCount after a successful read means the
// reservation changed state concurrently; the service maps that to the
// already-terminal case.
func (r *mongoReservationRepository) UpdateStatus(ctx context.Context, id string, status string, expectedStatus string) (*mongo.UpdateResult, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", reservationserrors.ErrInvalidID, id)
	}

	filter := bson.M{"_id": objectID, "status": expectedStatus}
	update := bson.M{
		"$set": bson.M{
			"status":     status,
			"updated_at": time.Now().UTC().Truncate(time.Millisecond),
		},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return nil, classify(err, "update reservation status")
	}

	return result, nil
}

// UpdateInterval replaces the interval of a reservation that still has
// expectedStatus. Same optimistic-concurrency contract as UpdateStatus.
func (r *mongoReservationRepository) UpdateInterval(ctx context.Context, id string, interval model.Interval, expectedStatus string) (*mongo.UpdateResult, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", reservationserrors.ErrInvalidID, id)
	}

	filter := bson.M{"_id": objectID, "status": expectedStatus}
	update := bson.M{
		"$set": bson.M{
			"interval":   interval,
			"updated_at": time.Now().UTC().Truncate(time.Millisecond),
		},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return nil, classify(err, "update reservation interval")
	}

	return result, nil
}

func (r *mongoReservationRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
