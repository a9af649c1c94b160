package storage

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/mediabridge/app/repository"
	"github.com/ManuelReschke/mediabridge/internal/pkg/apperror"
	"github.com/ManuelReschke/mediabridge/internal/pkg/config"
	"github.com/ManuelReschke/mediabridge/internal/pkg/lock"
	"github.com/ManuelReschke/mediabridge/internal/pkg/objectstore"
	"github.com/ManuelReschke/mediabridge/internal/pkg/variant"
)

// Backend is the storage abstraction the lifecycle service and the HTTP layer use.
// Implementations share the variant engine and differ in where bytes live.
type Backend interface {
	// Name is the system name recorded on media items ("aws", "storj", "database").
	Name() string
	// List returns the distinct root ids under prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
	// Get returns the PNG bytes of the requested variant, deriving and caching it when
	// missing. Unknown roots return apperror.ErrNotFound.
	Get(ctx context.Context, id string, options map[string]string) ([]byte, error)
	// PutImage writes data at path. With commit the item's previous variants are purged
	// and its record becomes live once the write succeeded.
	PutImage(ctx context.Context, id, path, contentType string, data []byte, commit bool) (string, error)
	// Remove deletes root, variants and the metadata record.
	Remove(ctx context.Context, id string) (bool, error)
	// Rotate turns the root clockwise and regenerates every known variant.
	Rotate(ctx context.Context, id string, degrees float64) (bool, error)
	// Open returns a stored object by its path as written with PutImage.
	Open(ctx context.Context, path string) ([]byte, string, error)
	Ping(ctx context.Context) error
}

// Options tune the variant engine
type Options struct {
	Name                  string
	KeyPrefix             string
	RegenerateConcurrency int
}

// Deps are the collaborators a backend is built from
type Deps struct {
	Media  repository.MediaRepository
	Blobs  repository.BlobRepository
	Parser *variant.Parser
	Locker lock.Locker
}

// New builds the backend selected by media.backend
func New(ctx context.Context, cfg *config.Config, deps Deps) (Backend, error) {
	if deps.Media == nil || deps.Parser == nil {
		return nil, fmt.Errorf("storage: media repository and parser are required")
	}
	if deps.Locker == nil {
		deps.Locker = lock.NewLocalLocker()
	}
	opts := Options{
		Name:                  cfg.Media.Backend,
		KeyPrefix:             cfg.Media.KeyPrefix,
		RegenerateConcurrency: cfg.Media.RegenerateJobs,
	}

	switch cfg.Media.Backend {
	case config.BackendAWS:
		client, err := objectstore.NewS3Client(ctx, "aws", cfg.AWS)
		if err != nil {
			return nil, err
		}
		return NewObjectStoreBackend(withBreaker("aws", client, cfg.Breaker), deps, opts), nil
	case config.BackendStorj:
		client, err := objectstore.NewS3Client(ctx, "storj", cfg.Storj)
		if err != nil {
			return nil, err
		}
		return NewDecentralizedBackend(withBreaker("storj", client, cfg.Breaker), deps, opts), nil
	case config.BackendDatabase:
		if deps.Blobs == nil {
			return nil, fmt.Errorf("storage: database backend requires a blob repository")
		}
		return NewDatabaseBackend(deps.Blobs, cfg.Media.PublicBaseURL, deps, opts), nil
	case config.BackendMemory:
		log.Warn("[Storage] Using in-memory object store, data is lost on restart")
		// memory keys are served as-is by the file route
		opts.KeyPrefix = ""
		return NewObjectStoreBackend(objectstore.NewMemoryClient(cfg.Media.PublicBaseURL+"/media/file"), deps, opts), nil
	}
	return nil, fmt.Errorf("%w: %s", apperror.ErrUnsupportedBackend, cfg.Media.Backend)
}

func withBreaker(name string, client objectstore.Client, cfg objectstore.BreakerConfig) objectstore.Client {
	if !cfg.Enabled {
		return client
	}
	return objectstore.NewBreakerClient(name, client, cfg)
}
