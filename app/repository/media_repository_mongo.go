package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ManuelReschke/mediabridge/app/models"
	"github.com/ManuelReschke/mediabridge/internal/pkg/apperror"
)

// DefaultMediaCollection is the collection holding media documents
const DefaultMediaCollection = "media"

// mongoMediaRepository implements the MediaRepository interface on a MongoDB collection
type mongoMediaRepository struct {
	coll *mongo.Collection
}

// NewMongoMediaRepository creates a new media repository on the given collection
func NewMongoMediaRepository(coll *mongo.Collection) MediaRepository {
	return &mongoMediaRepository{coll: coll}
}

// FindOne retrieves a media document by id
func (r *mongoMediaRepository) FindOne(ctx context.Context, id string) (*models.MediaItem, error) {
	var item models.MediaItem
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&item)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", apperror.ErrNotFound, id)
		}
		return nil, err
	}
	return &item, nil
}

// Upsert updates a media document, creating it when missing
func (r *mongoMediaRepository) Upsert(ctx context.Context, id string, set, setOnInsert map[string]interface{}) error {
	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = bson.M(set)
	}
	if len(setOnInsert) > 0 {
		update["$setOnInsert"] = bson.M(setOnInsert)
	}
	if len(update) == 0 {
		return nil
	}
	_, err := r.coll.UpdateByID(ctx, id, update, options.Update().SetUpsert(true))
	return err
}

// Delete removes a media document
func (r *mongoMediaRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

// Find lists media documents whose id starts with prefix
func (r *mongoMediaRepository) Find(ctx context.Context, prefix string) ([]models.MediaItem, error) {
	filter := bson.M{}
	if prefix != "" {
		filter["_id"] = bson.M{"$regex": "^" + regexp.QuoteMeta(prefix)}
	}
	cursor, err := r.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	items := make([]models.MediaItem, 0)
	if err := cursor.All(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// AddVariant adds a spec to the variant registry of a document
func (r *mongoMediaRepository) AddVariant(ctx context.Context, id, spec string) error {
	res, err := r.coll.UpdateByID(ctx, id, bson.M{"$addToSet": bson.M{models.FieldVariants: spec}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", apperror.ErrNotFound, id)
	}
	return nil
}

// Ping checks the connection to the server
func (r *mongoMediaRepository) Ping(ctx context.Context) error {
	return r.coll.Database().Client().Ping(ctx, nil)
}
