package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/mediabridge/app/controllers"
	"github.com/ManuelReschke/mediabridge/internal/pkg/middleware"
)

// RateLimit configures the limiter in front of mutating routes. Max <= 0 disables it.
type RateLimit struct {
	Max        int
	Expiration time.Duration
	// Storage shares counters between instances, nil counts in memory
	Storage fiber.Storage
}

type MediaRouter struct {
	media    *controllers.MediaController
	verifier middleware.TokenVerifier
	limit    RateLimit
}

func NewMediaRouter(media *controllers.MediaController, verifier middleware.TokenVerifier, limit RateLimit) *MediaRouter {
	return &MediaRouter{media: media, verifier: verifier, limit: limit}
}

func (r MediaRouter) InstallRouter(app *fiber.App) {
	// identity first, every route below reads it
	app.Use(middleware.UserContextMiddleware(r.verifier))

	app.Get("/healthz", r.media.HandleHealth)

	m := app.Group("/media")

	// public reads
	m.Get("/image/id/*", r.media.HandleGetImage)
	m.Get("/image/list/*", r.media.HandleListImages)
	m.Get("/props/*", r.media.HandleGetProps)
	m.Get("/file/*", r.media.HandleGetFile)
	m.Get("/noimage", r.media.HandleNoImage)
	m.Get("/presets", r.media.HandlePresets)
	// public but fetches remote hosts, so it shares the limiter
	m.Get("/image/url/*", r.limiter(), r.media.HandleImageFromURL)

	// mutations
	write := []fiber.Handler{middleware.RequireAccount, r.limiter()}
	m.Get("/image/rotate/*", append(write, r.media.HandleRotateImage)...)
	m.Delete("/image/*", append(write, r.media.HandleDeleteImage)...)
	m.Put("/stage/:system?", append(write, r.media.HandleStage)...)
	m.Put("/upload/*", append(write, r.media.HandleUpload)...)
	m.Put("/props", append(write, r.media.HandlePutProps)...)
}

func (r MediaRouter) limiter() fiber.Handler {
	if r.limit.Max <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	expiration := r.limit.Expiration
	if expiration <= 0 {
		expiration = time.Minute
	}
	return limiter.New(limiter.Config{
		Max:          r.limit.Max,
		Expiration:   expiration,
		KeyGenerator: controllers.ClientKey,
		Storage:      r.limit.Storage,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "rate_limited",
				"message": "too many requests",
			})
		},
	})
}
