package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/atlas-pay/atlas_pay/internal/engine"
)

// registerTransactionRoutes wires money movements. Unsafe endpoints sit
// behind the Redis idempotency middleware when a cache is configured.
func registerTransactionRoutes(r fiber.Router, h *engine.Handler, idem fiber.Handler) {
	group := r.Group("")
	if idem != nil {
		group = r.Group("", idem)
	}
	group.Post("/transfers", h.Transfer)
	group.Post("/exchanges", h.Exchange)
	group.Post("/deposits", h.Deposit)
	group.Post("/withdrawals", h.Withdraw)

	r.Get("/transactions/:transactionId", h.Get)
	r.Get("/users/:userId/transactions", h.History)
}
