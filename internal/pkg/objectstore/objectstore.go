package objectstore

import (
	"context"
)

// Client is the minimal blob interface the storage engine runs on.
// Get returns apperror.ErrNotFound when the key does not exist.
type Client interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, string, error)
	ListByPrefix(ctx context.Context, prefix string) ([]string, error)
	DeleteMany(ctx context.Context, keys []string) error
	URL(key string) string
	Ping(ctx context.Context) error
}
