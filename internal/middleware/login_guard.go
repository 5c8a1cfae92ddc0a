package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/atlas-pay/atlas_pay/internal/fraud"
)

// LoginGuard blocks login attempts from locked-out emails or IPs before the
// credentials are even checked.
func LoginGuard(guard *fraud.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req struct {
			Email string `json:"email"`
		}
		_ = c.BodyParser(&req)
		email := strings.ToLower(strings.TrimSpace(req.Email))

		decision, err := guard.CheckLoginAttempt(c.UserContext(), email, c.IP())
		if err != nil {
			return err
		}
		if !decision.Allowed {
			return fiber.NewError(http.StatusTooManyRequests, decision.Reason)
		}
		return c.Next()
	}
}
