package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/mediabridge/internal/pkg/usercontext"
)

// TokenVerifier resolves a bearer token to an account id
type TokenVerifier interface {
	VerifyToken(token string) (string, error)
}

// UserContextMiddleware sets the user context for every request. Requests without a
// valid bearer token continue as anonymous.
func UserContextMiddleware(verifier TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		anonymous := usercontext.UserContext{IsLoggedIn: false}

		token := extractBearerToken(c)
		if token == "" || verifier == nil {
			c.Locals(usercontext.KeyUserContext, anonymous)
			return c.Next()
		}

		account, err := verifier.VerifyToken(token)
		if err != nil {
			log.Debugf("[Auth] Rejected token on %s: %v", c.Path(), err)
			c.Locals(usercontext.KeyUserContext, anonymous)
			return c.Next()
		}

		c.Locals(usercontext.KeyUserContext, usercontext.UserContext{AccountID: account, IsLoggedIn: true})
		c.Locals(usercontext.KeyAccountID, account)
		return c.Next()
	}
}

func extractBearerToken(c *fiber.Ctx) string {
	auth := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
