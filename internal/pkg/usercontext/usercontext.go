package usercontext

import "github.com/gofiber/fiber/v2"

// UserContext represents the caller identity of a request
type UserContext struct {
	AccountID  string `json:"account_id"`
	IsLoggedIn bool   `json:"is_logged_in"`
}

// GetUserContext retrieves the user context from fiber context
// Returns a default anonymous context if none is set
func GetUserContext(c *fiber.Ctx) UserContext {
	if ctx, ok := c.Locals(KeyUserContext).(UserContext); ok {
		return ctx
	}
	return UserContext{IsLoggedIn: false}
}

// IsLoggedIn checks if the request carries a verified account
func IsLoggedIn(c *fiber.Ctx) bool {
	return GetUserContext(c).IsLoggedIn
}

// GetAccountID returns the caller's account id, or empty string if anonymous
func GetAccountID(c *fiber.Ctx) string {
	return GetUserContext(c).AccountID
}
