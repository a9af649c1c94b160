package router

import (
	"github.com/gofiber/fiber/v2"
)

// InstallRouter installs the given routers in order. Routers that add global middleware
// (the media router sets the user context) must come before routers depending on it.
func InstallRouter(app *fiber.App, routers ...Router) {
	setup(app, routers...)
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
