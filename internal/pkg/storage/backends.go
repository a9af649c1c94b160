package storage

import (
	"context"
	"sort"
	"strings"

	"github.com/ManuelReschke/mediabridge/app/models"
	"github.com/ManuelReschke/mediabridge/app/repository"
	"github.com/ManuelReschke/mediabridge/internal/pkg/config"
	"github.com/ManuelReschke/mediabridge/internal/pkg/objectstore"
	"github.com/ManuelReschke/mediabridge/internal/pkg/variant"
)

// ObjectStoreBackend keeps media in an S3 bucket
type ObjectStoreBackend struct {
	*manager
}

// NewObjectStoreBackend creates a backend on top of an object store client
func NewObjectStoreBackend(store objectstore.Client, deps Deps, opts Options) *ObjectStoreBackend {
	if opts.Name == "" {
		opts.Name = config.BackendAWS
	}
	return &ObjectStoreBackend{manager: newManager(store, deps, opts)}
}

// DecentralizedBackend keeps media on Storj through its S3 compatible gateway.
// Object semantics are identical to the S3 backend.
type DecentralizedBackend struct {
	*manager
}

func NewDecentralizedBackend(store objectstore.Client, deps Deps, opts Options) *DecentralizedBackend {
	opts.Name = config.BackendStorj
	return &DecentralizedBackend{manager: newManager(store, deps, opts)}
}

// DatabaseBackend keeps media bytes in the media_blobs table. Listing queries the
// metadata store instead of scanning blob keys.
type DatabaseBackend struct {
	*manager
}

func NewDatabaseBackend(blobs repository.BlobRepository, publicBaseURL string, deps Deps, opts Options) *DatabaseBackend {
	opts.Name = config.BackendDatabase
	store := &blobClient{
		blobs:   blobs,
		prefix:  opts.KeyPrefix,
		baseURL: strings.TrimSuffix(publicBaseURL, "/") + "/media/file/",
	}
	return &DatabaseBackend{manager: newManager(store, deps, opts)}
}

func (b *DatabaseBackend) List(ctx context.Context, prefix string) ([]string, error) {
	items, err := b.repo.Find(ctx, prefix)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if item.Status == models.STATUS_LIVE && item.System == b.name {
			ids = append(ids, item.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// blobClient adapts the blob table to the object store interface
type blobClient struct {
	blobs   repository.BlobRepository
	prefix  string
	baseURL string
}

func (c *blobClient) Put(ctx context.Context, key string, data []byte, contentType string) error {
	return c.blobs.Put(ctx, &models.MediaBlob{
		Key:         key,
		MediaID:     variant.RootID(strings.TrimPrefix(key, c.prefix)),
		ContentType: contentType,
		Data:        data,
	})
}

func (c *blobClient) Get(ctx context.Context, key string) ([]byte, string, error) {
	blob, err := c.blobs.Get(ctx, key)
	if err != nil {
		return nil, "", err
	}
	return blob.Data, blob.ContentType, nil
}

func (c *blobClient) ListByPrefix(ctx context.Context, prefix string) ([]string, error) {
	return c.blobs.ListKeys(ctx, prefix)
}

func (c *blobClient) DeleteMany(ctx context.Context, keys []string) error {
	return c.blobs.DeleteKeys(ctx, keys)
}

// URL points at the file route of this service, which serves blobs
func (c *blobClient) URL(key string) string {
	return c.baseURL + strings.TrimPrefix(key, c.prefix)
}

func (c *blobClient) Ping(ctx context.Context) error {
	return c.blobs.Ping(ctx)
}
