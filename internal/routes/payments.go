package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/atlas-pay/atlas_pay/internal/gateway"
)

// registerPaymentRoutes wires the checkout surface. Initiation and refunds
// require merchant API-key auth; the payer-facing endpoints are keyed by the
// unguessable session token instead.
func registerPaymentRoutes(r fiber.Router, h *gateway.Handler, apiKeyAuth fiber.Handler) {
	group := r.Group("/payments")
	group.Post("/initiate", apiKeyAuth, h.Initiate)
	group.Post("/refund", apiKeyAuth, h.Refund)

	group.Get("/status/:token", h.Status)
	group.Post("/process-card", h.ProcessCard)
	group.Post("/verify-3d", h.Verify3D)
}
