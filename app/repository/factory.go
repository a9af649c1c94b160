package repository

import (
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// Metadata store drivers
const (
	DriverMongo  = "mongo"
	DriverMySQL  = "mysql"
	DriverMemory = "memory"
)

// Factory manages repository instances and ensures they are singletons
type Factory struct {
	driver     string
	db         *gorm.DB
	mongoDB    *mongo.Database
	collection string
	repos      *Repositories
	once       sync.Once
}

// NewFactory creates a new repository factory. db may be nil unless the metadata driver
// is mysql or the database storage backend is used; mongoDB may be nil unless the
// driver is mongo.
func NewFactory(driver string, db *gorm.DB, mongoDB *mongo.Database, collection string) (*Factory, error) {
	switch driver {
	case DriverMongo:
		if mongoDB == nil {
			return nil, fmt.Errorf("metadata driver %q requires a mongo connection", driver)
		}
	case DriverMySQL:
		if db == nil {
			return nil, fmt.Errorf("metadata driver %q requires a database connection", driver)
		}
	case DriverMemory:
	default:
		return nil, fmt.Errorf("unknown metadata driver %q", driver)
	}
	if collection == "" {
		collection = DefaultMediaCollection
	}
	return &Factory{driver: driver, db: db, mongoDB: mongoDB, collection: collection}, nil
}

// GetRepositories returns a singleton instance of all repositories
func (f *Factory) GetRepositories() *Repositories {
	f.once.Do(func() {
		repos := &Repositories{}
		switch f.driver {
		case DriverMongo:
			repos.Media = NewMongoMediaRepository(f.mongoDB.Collection(f.collection))
		case DriverMySQL:
			repos.Media = NewMediaRepository(f.db)
		default:
			repos.Media = NewMemoryMediaRepository()
		}
		if f.db != nil {
			repos.Blob = NewBlobRepository(f.db)
		}
		f.repos = repos
	})
	return f.repos
}

// GetMediaRepository returns the media repository instance
func (f *Factory) GetMediaRepository() MediaRepository {
	return f.GetRepositories().Media
}

// GetBlobRepository returns the blob repository instance, nil without a database
func (f *Factory) GetBlobRepository() BlobRepository {
	return f.GetRepositories().Blob
}
