package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/mediabridge/app/models"
	"github.com/ManuelReschke/mediabridge/internal/pkg/apperror"
)

// mediaRepository implements the MediaRepository interface on a SQL table
type mediaRepository struct {
	db *gorm.DB
}

// NewMediaRepository creates a new SQL backed media repository instance
func NewMediaRepository(db *gorm.DB) MediaRepository {
	return &mediaRepository{db: db}
}

// FindOne retrieves a media record by id
func (r *mediaRepository) FindOne(ctx context.Context, id string) (*models.MediaItem, error) {
	var item models.MediaItem
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", apperror.ErrNotFound, id)
		}
		return nil, err
	}
	return &item, nil
}

// Upsert updates a media record, creating it when missing. The row is locked for the
// duration of the read-modify-write.
func (r *mediaRepository) Upsert(ctx context.Context, id string, set, setOnInsert map[string]interface{}) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item models.MediaItem
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&item).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			item = models.MediaItem{ID: id}
			item.Apply(setOnInsert)
			item.Apply(set)
			return tx.Create(&item).Error
		case err != nil:
			return err
		}
		item.Apply(set)
		return tx.Save(&item).Error
	})
}

// Delete removes a media record
func (r *mediaRepository) Delete(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.MediaItem{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Find lists media records whose id starts with prefix
func (r *mediaRepository) Find(ctx context.Context, prefix string) ([]models.MediaItem, error) {
	var items []models.MediaItem
	query := r.db.WithContext(ctx).Order("id ASC")
	if prefix != "" {
		query = query.Where("id LIKE ?", escapeLike(prefix)+"%")
	}
	err := query.Find(&items).Error
	return items, err
}

// AddVariant adds a spec to the variant registry of a record
func (r *mediaRepository) AddVariant(ctx context.Context, id, spec string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item models.MediaItem
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&item).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", apperror.ErrNotFound, id)
			}
			return err
		}
		if item.HasVariant(spec) {
			return nil
		}
		item.Variants = append(item.Variants, spec)
		return tx.Model(&item).Update("variants", item.Variants).Error
	})
}

// Ping checks the database connection
func (r *mediaRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
