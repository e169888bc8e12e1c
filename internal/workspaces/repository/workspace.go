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

	workspaceserrors "deskly/internal/workspaces/errors"
	"deskly/pkg/config"
	apperrors "deskly/pkg/errors"
	"deskly/pkg/model"
)

const (
	CollectionName = "Workspaces"
)

type WorkspaceRepository interface {
	Create(ctx context.Context, workspace *model.Workspace) error
	FindByID(ctx context.Context, id string) (*model.Workspace, error)
	FindAll(ctx context.Context, limit int, offset int64) ([]*model.Workspace, error)
	FindAllActive(ctx context.Context) ([]*model.Workspace, error)
	FindActiveWithCapacity(ctx context.Context, minCapacity int) ([]*model.Workspace, error)
	Update(ctx context.Context, id string, workspace *model.Workspace) (*mongo.UpdateResult, error)
	Deactivate(ctx context.Context, id string) error
	Count(ctx context.Context) (int64, error)
}

type mongoWorkspaceRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoWorkspaceRepository(cfg *config.Config) WorkspaceRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoWorkspaceRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
	}
}

func (r *mongoWorkspaceRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
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

func classify(err error, op string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Timeout(fmt.Sprintf("%s timed out", op))
	}
	if mongo.IsNetworkError(err) || errors.Is(err, mongo.ErrClientDisconnected) {
		return apperrors.Unavailable("workspace store")
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (r *mongoWorkspaceRepository) Create(ctx context.Context, workspace *model.Workspace) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	workspace.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	result, err := r.collection.InsertOne(ctx, workspace)
	if err != nil {
		return classify(err, "create workspace")
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		workspace.ID = oid.Hex()
	}
	return nil
}

func (r *mongoWorkspaceRepository) FindByID(ctx context.Context, id string) (*model.Workspace, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", workspaceserrors.ErrInvalidID, id)
	}

	var workspace model.Workspace
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&workspace)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, workspaceserrors.ErrNotFound
		}
		return nil, classify(err, "find workspace")
	}

	return &workspace, nil
}

func (r *mongoWorkspaceRepository) FindAll(ctx context.Context, limit int, offset int64) ([]*model.Workspace, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "name", Value: 1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, classify(err, "find workspaces")
	}
	defer cursor.Close(ctx)

	var workspaces []*model.Workspace
	if err = cursor.All(ctx, &workspaces); err != nil {
		return nil, classify(err, "decode workspaces")
	}

	return workspaces, nil
}

// FindAllActive returns every active workspace sorted by name. The
// availability engine subtracts busy workspaces from this set, so the sort
// here is the final response order.
func (r *mongoWorkspaceRepository) FindAllActive(ctx context.Context) ([]*model.Workspace, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})

	cursor, err := r.collection.Find(ctx, bson.M{"active": true}, opts)
	if err != nil {
		return nil, classify(err, "find active workspaces")
	}
	defer cursor.Close(ctx)

	var workspaces []*model.Workspace
	if err = cursor.All(ctx, &workspaces); err != nil {
		return nil, classify(err, "decode active workspaces")
	}

	return workspaces, nil
}

// FindActiveWithCapacity returns active workspaces seating at least
// minCapacity, largest first and by name within equal capacities.
func (r *mongoWorkspaceRepository) FindActiveWithCapacity(ctx context.Context, minCapacity int) ([]*model.Workspace, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"active":   true,
		"capacity": bson.M{"$gte": minCapacity},
	}
	opts := options.Find().SetSort(bson.D{
		{Key: "capacity", Value: -1},
		{Key: "name", Value: 1},
	})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, classify(err, "find workspaces with capacity")
	}
	defer cursor.Close(ctx)

	var workspaces []*model.Workspace
	if err = cursor.All(ctx, &workspaces); err != nil {
		return nil, classify(err, "decode workspaces with capacity")
	}

	return workspaces, nil
}

func (r *mongoWorkspaceRepository) Update(ctx context.Context, id string, workspace *model.Workspace) (*mongo.UpdateResult, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", workspaceserrors.ErrInvalidID, id)
	}

	filter := bson.M{"_id": objectID}
	update := bson.M{
		"$set": bson.M{
			"name":        workspace.Name,
			"description": workspace.Description,
			"capacity":    workspace.Capacity,
			"active":      workspace.Active,
		},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return nil, classify(err, "update workspace")
	}

	if result.MatchedCount == 0 {
		return nil, workspaceserrors.ErrNotFound
	}

	return result, nil
}

// Deactivate clears the active flag. Deactivating an already inactive
// workspace matches the document and succeeds, which makes the operation
// idempotent.
func (r *mongoWorkspaceRepository) Deactivate(ctx context.Context, id string) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", workspaceserrors.ErrInvalidID, id)
	}

	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": objectID},
		bson.M{"$set": bson.M{"active": false}},
	)
	if err != nil {
		return classify(err, "deactivate workspace")
	}

	if result.MatchedCount == 0 {
		return workspaceserrors.ErrNotFound
	}

	return nil
}

func (r *mongoWorkspaceRepository) Count(ctx context.Context) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, classify(err, "count workspaces")
	}

	return count, nil
}
