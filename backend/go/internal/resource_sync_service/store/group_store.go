package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"Cirkle/backend/go/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrGroupNotFound is returned when no group document matches the given id.
var ErrGroupNotFound = errors.New("group not found")

// GroupStore defines group persistence used by the sync service.
type GroupStore interface {
	GetGroup(ctx context.Context, groupID string) (*models.Group, error)
	UpdateResourceName(ctx context.Context, groupID, resourceID string, kind models.ResourceKind, newName string) error
	MarkResourceRenamed(ctx context.Context, groupID, resourceID string, kind models.ResourceKind, newName string, at time.Time) error
	RemoveResource(ctx context.Context, groupID, resourceID string, kind models.ResourceKind) error
}

// MongoGroupStore is an implementation of GroupStore using MongoDB.
type MongoGroupStore struct {
	collection *mongo.Collection
	now        func() time.Time
}

// NewMongoGroupStore creates a new MongoGroupStore.
func NewMongoGroupStore(db *mongo.Database, collectionName string) *MongoGroupStore {
	return &MongoGroupStore{
		collection: db.Collection(collectionName),
		now:        time.Now,
	}
}

// EnsureIndexes creates the multikey indexes used to look groups up by resource id.
func (s *MongoGroupStore) EnsureIndexes(ctx context.Context) error {
	indexes := make([]mongo.IndexModel, 0, len(models.ResourceKinds))
	for _, kind := range models.ResourceKinds {
		indexes = append(indexes, mongo.IndexModel{
			Keys:    bson.D{{Key: resourcePath(kind) + ".id", Value: 1}},
			Options: options.Index().SetName(string(kind) + "_resource_id"),
		})
	}
	_, err := s.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// GetGroup retrieves a group by its id.
func (s *MongoGroupStore) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	var group models.Group
	err := s.collection.FindOne(ctx, bson.M{"_id": groupID}).Decode(&group)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrGroupNotFound
		}
		return nil, err
	}
	return &group, nil
}

// UpdateResourceName sets the cached name of a single resource entry.
// Updating an id that is not present in the list is a no-op.
func (s *MongoGroupStore) UpdateResourceName(ctx context.Context, groupID, resourceID string, kind models.ResourceKind, newName string) error {
	return s.setOnResource(ctx, groupID, resourceID, kind, bson.M{"name": newName})
}

// MarkResourceRenamed records a rename the user performed through the app.
// last_updated is what makes the next reconcile pass skip this entry for a while.
func (s *MongoGroupStore) MarkResourceRenamed(ctx context.Context, groupID, resourceID string, kind models.ResourceKind, newName string, at time.Time) error {
	return s.setOnResource(ctx, groupID, resourceID, kind, bson.M{"name": newName, "last_updated": at})
}

// RemoveResource pulls a resource entry out of the group.
func (s *MongoGroupStore) RemoveResource(ctx context.Context, groupID, resourceID string, kind models.ResourceKind) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown resource kind %q", kind)
	}
	update := bson.M{
		"$pull": bson.M{resourcePath(kind): bson.M{"id": resourceID}},
		"$set":  bson.M{"updated_at": s.now()},
	}
	res, err := s.collection.UpdateOne(ctx, bson.M{"_id": groupID}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrGroupNotFound
	}
	return nil
}

func (s *MongoGroupStore) setOnResource(ctx context.Context, groupID, resourceID string, kind models.ResourceKind, fields bson.M) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown resource kind %q", kind)
	}
	set := bson.M{"updated_at": s.now()}
	for field, value := range fields {
		set[resourcePath(kind)+".$[r]."+field] = value
	}
	opts := options.Update().SetArrayFilters(options.ArrayFilters{
		Filters: []interface{}{bson.M{"r.id": resourceID}},
	})

	res, err := s.collection.UpdateOne(ctx, bson.M{"_id": groupID}, bson.M{"$set": set}, opts)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrGroupNotFound
	}
	return nil
}

func resourcePath(kind models.ResourceKind) string {
	return "resources." + string(kind)
}
