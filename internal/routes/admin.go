package routes

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/atlas-pay/atlas_pay/internal/engine"
	"github.com/atlas-pay/atlas_pay/internal/fraud"
	"github.com/atlas-pay/atlas_pay/internal/identity"
)

func registerAdminRoutes(r fiber.Router, h *engine.Handler, guard *fraud.Service, users identity.Repository) {
	group := r.Group("/admin")
	group.Get("/approvals", h.PendingApprovals)
	group.Post("/approvals/:transactionId/approve", h.Approve)
	group.Post("/approvals/:transactionId/reject", h.Reject)

	group.Get("/users/:userId/risk", func(c *fiber.Ctx) error {
		user, err := users.FindByID(c.UserContext(), c.Params("userId"))
		if err != nil {
			return fiber.NewError(http.StatusNotFound, "user not found")
		}
		score, level, err := guard.RiskScore(c.UserContext(), user.ID, user.Email)
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"user_id":    user.ID,
			"risk_score": score,
			"risk_level": level,
		})
	})
}
