package controllers

import (
	"encoding/base64"
	"fmt"
	"io"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/ManuelReschke/mediabridge/internal/pkg/apperror"
	"github.com/ManuelReschke/mediabridge/internal/pkg/media"
	"github.com/ManuelReschke/mediabridge/internal/pkg/storage"
	"github.com/ManuelReschke/mediabridge/internal/pkg/usercontext"
	"github.com/ManuelReschke/mediabridge/internal/pkg/variant"
)

// transparent 1x1 GIF served by /media/noimage and for failed safe requests
var placeholderGIF, _ = base64.StdEncoding.DecodeString("R0lGODlhAQABAJAAAP8AAAAAACH5BAUQAAAALAAAAAABAAEAAAICBAEAOw==")

// MediaController handles the media HTTP routes
type MediaController struct {
	svc     *media.Service
	health  *storage.HealthMonitor
	presets *variant.Table
}

// NewMediaController creates a new media controller. health may be nil.
func NewMediaController(svc *media.Service, health *storage.HealthMonitor, presets *variant.Table) *MediaController {
	return &MediaController{svc: svc, health: health, presets: presets}
}

// HandleGetImage serves a PNG variant: GET /media/image/id/*
func (mc *MediaController) HandleGetImage(c *fiber.Ctx) error {
	data, err := mc.svc.Image(c.UserContext(), routeID(c), queryOptions(c))
	if err != nil {
		// safe only masks missing or unusable images, outages still surface
		if status, _ := statusFor(err); status < fiber.StatusInternalServerError && queryFlag(c, "safe") {
			return sendPlaceholder(c)
		}
		return respondError(c, err)
	}
	c.Set(fiber.HeaderContentType, "image/png")
	c.Set(fiber.HeaderCacheControl, "public, max-age=86400")
	return c.Send(data)
}

// HandleImageFromURL renders a remote image without storing it: GET /media/image/url/*
func (mc *MediaController) HandleImageFromURL(c *fiber.Ctx) error {
	data, err := mc.svc.FromURL(c.UserContext(), routeID(c), queryOptions(c))
	if err != nil {
		return respondError(c, err)
	}
	c.Set(fiber.HeaderContentType, "image/png")
	c.Set(fiber.HeaderCacheControl, "public, max-age=3600")
	return c.Send(data)
}

// HandleListImages lists root ids under a prefix: GET /media/image/list/*
func (mc *MediaController) HandleListImages(c *fiber.Ctx) error {
	ids, err := mc.svc.List(c.UserContext(), routeID(c))
	if err != nil {
		return respondError(c, err)
	}
	if ids == nil {
		ids = []string{}
	}
	return c.JSON(ids)
}

// HandleRotateImage rotates the original: GET /media/image/rotate/*?rotateDegree=N
func (mc *MediaController) HandleRotateImage(c *fiber.Ctx) error {
	raw := c.Query("rotateDegree")
	degrees, err := strconv.ParseFloat(raw, 64)
	if raw == "" || err != nil || degrees == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "bad_request",
			"message": "Set the query param rotateDegree!",
		})
	}
	if err := mc.svc.Rotate(c.UserContext(), usercontext.GetAccountID(c), routeID(c), degrees); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{})
}

// HandleDeleteImage removes an item with all variants: DELETE /media/image/*
func (mc *MediaController) HandleDeleteImage(c *fiber.Ctx) error {
	if err := mc.svc.Remove(c.UserContext(), usercontext.GetAccountID(c), routeID(c)); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{})
}

// HandleStage registers a pending upload: PUT /media/stage/:system?
func (mc *MediaController) HandleStage(c *fiber.Ctx) error {
	var req media.StageRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return respondError(c, fmt.Errorf("%w: %v", apperror.ErrInvalidInput, err))
		}
		// form bodies decode to strings that alias the request buffer
		req.ID = utils.CopyString(req.ID)
		req.Origin = utils.CopyString(req.Origin)
		req.Type = utils.CopyString(req.Type)
		req.URL = utils.CopyString(req.URL)
		req.Classification = utils.CopyString(req.Classification)
	}
	res, err := mc.svc.Stage(c.UserContext(), usercontext.GetAccountID(c), routeParam(c, "system"), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}

// HandleUpload stores the bytes of a staged item: PUT /media/upload/*. Without a file
// the item is fetched from the url it was staged with.
func (mc *MediaController) HandleUpload(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		res, err := mc.svc.Ingest(c.UserContext(), usercontext.GetAccountID(c), routeID(c), queryOptions(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(res)
	}
	f, err := fh.Open()
	if err != nil {
		return respondError(c, fmt.Errorf("open upload: %w", err))
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return respondError(c, fmt.Errorf("read upload: %w", err))
	}

	file := media.UploadFile{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get(fiber.HeaderContentType),
		Data:        data,
	}
	res, err := mc.svc.Upload(c.UserContext(), usercontext.GetAccountID(c), routeID(c), file, queryOptions(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}

// HandleGetProps returns the metadata record: GET /media/props/*
func (mc *MediaController) HandleGetProps(c *fiber.Ctx) error {
	item, err := mc.svc.Props(c.UserContext(), routeID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(item)
}

// HandlePutProps upserts metadata: PUT /media/props
func (mc *MediaController) HandlePutProps(c *fiber.Ctx) error {
	body := map[string]interface{}{}
	if err := c.BodyParser(&body); err != nil {
		return respondError(c, fmt.Errorf("%w: %v", apperror.ErrInvalidInput, err))
	}
	item, err := mc.svc.PutProps(c.UserContext(), usercontext.GetAccountID(c), body)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(item)
}

// HandleGetFile serves a stored object by its path: GET /media/file/*
func (mc *MediaController) HandleGetFile(c *fiber.Ctx) error {
	data, contentType, err := mc.svc.File(c.UserContext(), routeID(c))
	if err != nil {
		return respondError(c, err)
	}
	c.Set(fiber.HeaderContentType, contentType)
	return c.Send(data)
}

// HandleNoImage serves the placeholder: GET /media/noimage
func (mc *MediaController) HandleNoImage(c *fiber.Ctx) error {
	return sendPlaceholder(c)
}

// HandlePresets lists the preset table: GET /media/presets
func (mc *MediaController) HandlePresets(c *fiber.Ctx) error {
	if mc.presets == nil {
		return c.JSON([]variant.Preset{})
	}
	return c.JSON(mc.presets.List())
}

// HandleHealth reports backend and metadata store health: GET /healthz
func (mc *MediaController) HandleHealth(c *fiber.Ctx) error {
	if mc.health == nil {
		return c.JSON(fiber.Map{"status": "ok", "backend": mc.svc.Backend().Name()})
	}
	h := mc.health.Current(c.UserContext())
	status := fiber.StatusOK
	if !h.Healthy() {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(h)
}

func sendPlaceholder(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, "image/gif")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	return c.Status(fiber.StatusOK).Send(placeholderGIF)
}
