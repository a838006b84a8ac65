// middleware/auth.go
package middleware

import (
	"slices"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
)

const (
	LocalUserID    = "user_id"
	LocalUserRoles = "user_roles"
)

// UserContextMiddleware reads the identity the gateway forwards in
// X-User-ID / X-User-Roles. Requests without a user id are rejected.
// Header values are copied: fiber reuses their buffers after the request.
func UserContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := utils.CopyString(strings.TrimSpace(c.Get("X-User-ID")))
		if userID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID, request must come through gateway with auth context",
			})
		}

		var roles []string
		for _, r := range strings.Split(c.Get("X-User-Roles"), ",") {
			if r = strings.TrimSpace(r); r != "" {
				roles = append(roles, utils.CopyString(r))
			}
		}

		c.Locals(LocalUserID, userID)
		c.Locals(LocalUserRoles, roles)
		return c.Next()
	}
}

// AdminOnly lets through users whose roles include admin. It must run after
// UserContextMiddleware.
func AdminOnly() fiber.Handler {
	return func(c *fiber.Ctx) error {
		roles, _ := c.Locals(LocalUserRoles).([]string)
		if !slices.Contains(roles, "admin") {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "admin role required",
			})
		}
		return c.Next()
	}
}

// UserID returns the caller set by UserContextMiddleware.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalUserID).(string)
	return id
}
