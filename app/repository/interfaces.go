package repository

import (
	"context"

	"github.com/ManuelReschke/mediabridge/app/models"
)

// MediaRepository defines the metadata store operations on media records.
// Lookups of unknown ids return apperror.ErrNotFound.
type MediaRepository interface {
	FindOne(ctx context.Context, id string) (*models.MediaItem, error)
	// Upsert applies set to the record with id, creating it when missing.
	// setOnInsert is only applied when the record is created.
	Upsert(ctx context.Context, id string, set, setOnInsert map[string]interface{}) error
	Delete(ctx context.Context, id string) (bool, error)
	// Find returns the records whose id starts with prefix, ordered by id.
	Find(ctx context.Context, prefix string) ([]models.MediaItem, error)
	// AddVariant adds spec to the variant registry without duplicating it.
	AddVariant(ctx context.Context, id, spec string) error
	Ping(ctx context.Context) error
}

// BlobRepository defines the blob table operations of the database storage backend.
type BlobRepository interface {
	Put(ctx context.Context, blob *models.MediaBlob) error
	Get(ctx context.Context, key string) (*models.MediaBlob, error)
	ListKeys(ctx context.Context, prefix string) ([]string, error)
	DeleteKeys(ctx context.Context, keys []string) error
	Ping(ctx context.Context) error
}

// Repositories struct holds all repository instances
type Repositories struct {
	Media MediaRepository
	Blob  BlobRepository
}
