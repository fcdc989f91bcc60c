package middleware

import (
	"strings"

	"boneboard-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

const (
	AdminKeyHeader   = "X-Admin-Key"
	AdminActorHeader = "X-Admin-Actor"
)

const adminLocal = "admin_actor"

// RequireAdmin checks X-Admin-Key against the configured bcrypt hash. The
// optional X-Admin-Actor header names the operator in events and audit rows.
// An empty hash disables every admin route.
func RequireAdmin(keyHash string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if keyHash == "" {
			return response.Forbidden(c, "Admin access disabled")
		}
		key := c.Get(AdminKeyHeader)
		if key == "" {
			return response.Unauthorized(c, "Unauthorized")
		}
		if err := bcrypt.CompareHashAndPassword([]byte(keyHash), []byte(key)); err != nil {
			return response.Forbidden(c, "Forbidden")
		}
		actor := strings.TrimSpace(c.Get(AdminActorHeader))
		if actor == "" {
			actor = "admin"
		}
		c.Locals(adminLocal, actor)
		return c.Next()
	}
}

// GetAdminActor returns the operator name set by RequireAdmin.
func GetAdminActor(c *fiber.Ctx) string {
	if actor, ok := c.Locals(adminLocal).(string); ok {
		return actor
	}
	return ""
}
