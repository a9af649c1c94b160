package router

import (
	"os"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// DocsRouter serves the OpenAPI document and its UI under /docs/api/v1
type DocsRouter struct {
	file string
}

func NewDocsRouter(file string) *DocsRouter {
	return &DocsRouter{file: file}
}

func (d DocsRouter) InstallRouter(app *fiber.App) {
	if d.file == "" {
		return
	}
	if _, err := os.Stat(d.file); err != nil {
		log.Warnf("[Router] OpenAPI document %s not available, docs disabled: %v", d.file, err)
		return
	}
	app.Use(swagger.New(swagger.Config{
		BasePath: "/docs/api/",
		FilePath: d.file,
		Path:     "v1",
		Title:    "mediabridge API",
	}))
}
