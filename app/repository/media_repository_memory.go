package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ManuelReschke/mediabridge/app/models"
	"github.com/ManuelReschke/mediabridge/internal/pkg/apperror"
)

// memoryMediaRepository keeps media records in process memory (development and tests)
type memoryMediaRepository struct {
	mu    sync.RWMutex
	items map[string]models.MediaItem
}

// NewMemoryMediaRepository creates an empty in-memory media repository
func NewMemoryMediaRepository() MediaRepository {
	return &memoryMediaRepository{items: map[string]models.MediaItem{}}
}

func (r *memoryMediaRepository) FindOne(ctx context.Context, id string) (*models.MediaItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperror.ErrNotFound, id)
	}
	return cloneItem(item), nil
}

func (r *memoryMediaRepository) Upsert(ctx context.Context, id string, set, setOnInsert map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		item = models.MediaItem{ID: id}
		item.Apply(setOnInsert)
	}
	item.Apply(set)
	r.items[id] = item
	return nil
}

func (r *memoryMediaRepository) Delete(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.items[id]
	delete(r.items, id)
	return ok, nil
}

func (r *memoryMediaRepository) Find(ctx context.Context, prefix string) ([]models.MediaItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := make([]models.MediaItem, 0)
	for id, item := range r.items {
		if strings.HasPrefix(id, prefix) {
			items = append(items, *cloneItem(item))
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (r *memoryMediaRepository) AddVariant(ctx context.Context, id, spec string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return fmt.Errorf("%w: %s", apperror.ErrNotFound, id)
	}
	if !item.HasVariant(spec) {
		item.Variants = append(append(models.StringList{}, item.Variants...), spec)
		r.items[id] = item
	}
	return nil
}

func (r *memoryMediaRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

func cloneItem(item models.MediaItem) *models.MediaItem {
	item.Variants = append(models.StringList{}, item.Variants...)
	if item.Props != nil {
		props := make(models.Props, len(item.Props))
		for k, v := range item.Props {
			props[k] = v
		}
		item.Props = props
	}
	return &item
}
