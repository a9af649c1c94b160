package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/mediabridge/app/models"
	"github.com/ManuelReschke/mediabridge/internal/pkg/apperror"
)

// blobRepository implements the BlobRepository interface
type blobRepository struct {
	db *gorm.DB
}

// NewBlobRepository creates a new blob repository instance
func NewBlobRepository(db *gorm.DB) BlobRepository {
	return &blobRepository{db: db}
}

// Put inserts or replaces a blob
func (r *blobRepository) Put(ctx context.Context, blob *models.MediaBlob) error {
	blob.Size = int64(len(blob.Data))
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "object_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"media_id", "content_type", "size", "data", "updated_at"}),
	}).Create(blob).Error
}

// Get retrieves a blob by key
func (r *blobRepository) Get(ctx context.Context, key string) (*models.MediaBlob, error) {
	var blob models.MediaBlob
	err := r.db.WithContext(ctx).Where("object_key = ?", key).First(&blob).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", apperror.ErrNotFound, key)
		}
		return nil, err
	}
	return &blob, nil
}

// ListKeys returns the keys beginning with prefix without loading blob data
func (r *blobRepository) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := r.db.WithContext(ctx).Model(&models.MediaBlob{}).
		Where("object_key LIKE ?", escapeLike(prefix)+"%").
		Order("object_key ASC").
		Pluck("object_key", &keys).Error
	return keys, err
}

// DeleteKeys removes blobs by key
func (r *blobRepository) DeleteKeys(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Where("object_key IN ?", keys).Delete(&models.MediaBlob{}).Error
}

// Ping checks the database connection
func (r *blobRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
