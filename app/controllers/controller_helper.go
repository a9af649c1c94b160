package controllers

import (
	"errors"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/ManuelReschke/mediabridge/internal/pkg/apperror"
	"github.com/ManuelReschke/mediabridge/internal/pkg/usercontext"
)

// respondError maps service errors to JSON responses. Client errors keep their message,
// everything else is logged and answered generically.
func respondError(c *fiber.Ctx, err error) error {
	status, code := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		log.Errorf("[Media] %s %s failed: %v", c.Method(), c.Path(), err)
		msg := "internal error"
		switch status {
		case fiber.StatusServiceUnavailable:
			msg = "storage backend unavailable"
		case fiber.StatusBadGateway:
			msg = "remote image could not be fetched"
		}
		return c.Status(status).JSON(fiber.Map{"error": code, "message": msg})
	}
	return c.Status(status).JSON(fiber.Map{"error": code, "message": err.Error()})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrNotFound):
		return fiber.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrUnauthorized):
		return fiber.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrImageDecode):
		return fiber.StatusUnprocessableEntity, "unprocessable_entity"
	case errors.Is(err, apperror.ErrBackendUnavailable):
		return fiber.StatusServiceUnavailable, "service_unavailable"
	case errors.Is(err, apperror.ErrRemoteFetch):
		return fiber.StatusBadGateway, "bad_gateway"
	case apperror.IsClientError(err):
		return fiber.StatusBadRequest, "bad_request"
	}
	return fiber.StatusInternalServerError, "internal_server_error"
}

// routeID returns the unescaped wildcard part of the route. Fiber reuses the request
// buffer once the handler returns, so the id is copied before it reaches storage keys,
// repository maps or background jobs.
func routeID(c *fiber.Ctx) string {
	raw := strings.TrimPrefix(c.Params("*"), "/")
	if id, err := url.PathUnescape(raw); err == nil && id != raw {
		return id
	}
	return utils.CopyString(raw)
}

// routeParam returns a copy of the named route parameter
func routeParam(c *fiber.Ctx, name string) string {
	return utils.CopyString(c.Params(name))
}

// queryOptions returns the query parameters that describe a variant
func queryOptions(c *fiber.Ctx) map[string]string {
	opts := map[string]string{}
	for k, v := range c.Queries() {
		switch k {
		case "safe", "rotateDegree":
			continue
		}
		opts[utils.CopyString(k)] = utils.CopyString(v)
	}
	return opts
}

func queryFlag(c *fiber.Ctx, key string) bool {
	v, ok := c.Queries()[key]
	if !ok {
		return false
	}
	switch strings.ToLower(v) {
	case "0", "false", "no":
		return false
	}
	return true
}

// ClientKey identifies the caller for rate limiting: the account when authenticated,
// otherwise the first forwarded client address.
func ClientKey(c *fiber.Ctx) string {
	if account := usercontext.GetAccountID(c); account != "" {
		return "account:" + account
	}
	if ip := strings.TrimSpace(c.Get("CF-Connecting-IP")); ip != "" {
		return "ip:" + ip
	}
	if xff := c.Get(fiber.HeaderXForwardedFor); xff != "" {
		if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
			return "ip:" + first
		}
	}
	return "ip:" + strings.TrimPrefix(c.IP(), "::ffff:")
}
