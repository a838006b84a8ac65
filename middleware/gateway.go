// middleware/gateway.go
package middleware

import (
	"crypto/subtle"
	"strings"

	"artpriyo-settlement/utils"

	"github.com/gofiber/fiber/v2"
)

var gatewayLog = utils.NewLogger("gateway_auth")

// GatewayAuthMiddleware accepts only requests carrying the gateway's bearer
// token. Paths in open skip the check (health probes, metrics scrapes).
func GatewayAuthMiddleware(expectedToken string, open ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		for _, p := range open {
			if c.Path() == p {
				return c.Next()
			}
		}

		authHeader := c.Get("Authorization")
		if authHeader == "" {
			gatewayLog.Warn().Str("path", c.Path()).Msg("🚫 missing Authorization header")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "gateway authentication token missing",
			})
		}

		// "Bearer <token>" or the raw token
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
			gatewayLog.Warn().Str("path", c.Path()).Msg("❌ invalid gateway token")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid gateway authentication token",
			})
		}
		return c.Next()
	}
}
