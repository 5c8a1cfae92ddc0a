package middleware

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/atlas-pay/atlas_pay/internal/fraud"
	"github.com/atlas-pay/atlas_pay/internal/gateway"
	"github.com/atlas-pay/atlas_pay/internal/merchant"
)

const apiKeyHeader = "X-API-Key"

// APIKeyAuth authenticates merchants by API key, enforces their request
// quota, and stores the merchant for downstream handlers.
func APIKeyAuth(merchants *merchant.Service, guard *fraud.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get(apiKeyHeader)
		if key == "" {
			return fiber.NewError(http.StatusUnauthorized, "missing "+apiKeyHeader+" header")
		}

		m, err := merchants.Authenticate(c.UserContext(), key)
		if err != nil {
			if errors.Is(err, merchant.ErrNotFound) || errors.Is(err, merchant.ErrSuspended) {
				return fiber.NewError(http.StatusUnauthorized, "invalid api key")
			}
			return err
		}

		decision, remaining, err := guard.CheckAPIRateLimit(c.UserContext(), key)
		if err != nil {
			return err
		}
		c.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !decision.Allowed {
			return fiber.NewError(http.StatusTooManyRequests, decision.Reason)
		}

		c.Locals(gateway.MerchantLocal, m)
		return c.Next()
	}
}
