package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"

	"github.com/ManuelReschke/mediabridge/app/controllers"
	"github.com/ManuelReschke/mediabridge/app/repository"
	"github.com/ManuelReschke/mediabridge/internal/pkg/cache"
	"github.com/ManuelReschke/mediabridge/internal/pkg/config"
	"github.com/ManuelReschke/mediabridge/internal/pkg/database"
	"github.com/ManuelReschke/mediabridge/internal/pkg/events"
	"github.com/ManuelReschke/mediabridge/internal/pkg/jobqueue"
	"github.com/ManuelReschke/mediabridge/internal/pkg/lock"
	"github.com/ManuelReschke/mediabridge/internal/pkg/media"
	"github.com/ManuelReschke/mediabridge/internal/pkg/router"
	"github.com/ManuelReschke/mediabridge/internal/pkg/security"
	"github.com/ManuelReschke/mediabridge/internal/pkg/storage"
	"github.com/ManuelReschke/mediabridge/internal/pkg/variant"
)

const (
	lockTTL     = 30 * time.Second
	lockMaxWait = 10 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Starts the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApplication(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.close()

		addr := fmt.Sprintf("%s:%d", cfg.App.Host, cfg.App.Port)
		errCh := make(chan error, 1)
		go func() {
			log.Infof("[Server] Listening on %s (backend: %s, metadata: %s)", addr, cfg.Media.Backend, cfg.Metadata.Driver)
			errCh <- a.app.Listen(addr)
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}
		log.Info("[Server] Shutting down")
		return a.app.ShutdownWithTimeout(cfg.ShutdownTimeout)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// application holds the running server and everything that must be released on exit
type application struct {
	app     *fiber.App
	closers []func()
}

func (a *application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newApplication(ctx context.Context, cfg *config.Config) (_ *application, err error) {
	a := &application{}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	redisClient := cache.SetupCache(cfg.Redis)
	if redisClient != nil {
		a.closers = append(a.closers, func() { _ = redisClient.Close() })
	}

	var db *gorm.DB
	if cfg.NeedsSQL() {
		db, err = database.SetupDatabase(cfg.Database, cfg.IsDev())
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { database.Close(db) })
	}

	var mongoDB *mongo.Database
	if cfg.Metadata.Driver == repository.DriverMongo {
		client, err := database.NewMongoClient(ctx, cfg.Mongo)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() {
			if err := client.Disconnect(context.Background()); err != nil {
				log.Errorf("[MongoDB] Disconnect failed: %v", err)
			}
		})
		mongoDB = client.Database(cfg.Mongo.Database)
		if err := database.EnsureMediaIndexes(ctx, mongoDB.Collection(cfg.Mongo.Collection)); err != nil {
			log.Warnf("[MongoDB] Failed to ensure indexes: %v", err)
		}
	}

	factory, err := repository.NewFactory(cfg.Metadata.Driver, db, mongoDB, cfg.Mongo.Collection)
	if err != nil {
		return nil, err
	}
	repos := factory.GetRepositories()

	presets, err := cfg.Presets()
	if err != nil {
		return nil, err
	}
	parser := variant.NewParser(presets)

	var locker lock.Locker = lock.NewLocalLocker()
	if redisClient != nil {
		locker = lock.NewRedisLocker(redisClient, lockTTL, lockMaxWait)
	}

	backend, err := storage.New(ctx, cfg, storage.Deps{
		Media:  repos.Media,
		Blobs:  repos.Blob,
		Parser: parser,
		Locker: locker,
	})
	if err != nil {
		return nil, err
	}

	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.Kafka.Enabled() {
		publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		log.Infof("[Events] Publishing lifecycle events to %s", cfg.Kafka.Topic)
	}
	a.closers = append(a.closers, func() {
		if err := publisher.Close(); err != nil {
			log.Errorf("[Events] Close failed: %v", err)
		}
	})

	jobs := jobqueue.NewManager(jobqueue.NewQueue(redisClient, cfg.Queue.Workers))
	svc := media.NewService(backend, repos.Media, parser, publisher, jobs, media.Options{
		MaxImageWidth: cfg.Media.MaxImageWidth,
		WarmPresets:   cfg.Media.WarmPresets,
		PublicBaseURL: cfg.Media.PublicBaseURL,
		FetchTimeout:  time.Duration(cfg.Media.FetchTimeout) * time.Second,
		FetchMaxBytes: int64(cfg.Media.FetchMaxMB) * 1024 * 1024,
	})
	jobs.SetWarmer(svc)
	jobs.Start()
	a.closers = append(a.closers, jobs.Stop)

	health := storage.NewHealthMonitor(backend, repos.Media)
	health.Start()
	a.closers = append(a.closers, health.Stop)

	verifier, err := security.NewVerifier(cfg.JWT)
	if err != nil {
		return nil, err
	}

	app := fiber.New(fiber.Config{
		AppName:   "mediabridge",
		BodyLimit: cfg.App.BodyLimitMB * 1024 * 1024,
		Immutable: true,
	})
	app.Use(recover.New(), logger.New())

	router.InstallRouter(app,
		router.NewMediaRouter(controllers.NewMediaController(svc, health, presets), verifier, router.RateLimit{
			Max:        cfg.App.RateLimit,
			Expiration: time.Minute,
			Storage:    cache.NewLimiterStorage(cfg.Redis),
		}),
		router.NewDocsRouter(cfg.App.OpenAPIFile),
	)
	a.app = app
	return a, nil
}
