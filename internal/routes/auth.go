package routes

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/atlas-pay/atlas_pay/internal/fraud"
	"github.com/atlas-pay/atlas_pay/internal/identity"
	"github.com/atlas-pay/atlas_pay/internal/middleware"
	"github.com/atlas-pay/atlas_pay/internal/wallet"
)

func registerAuthRoutes(r fiber.Router, users *identity.Service, wallets *wallet.Service, guard *fraud.Service) {
	group := r.Group("/auth")

	group.Post("/register", func(c *fiber.Ctx) error {
		var req struct {
			Email    string `json:"email"`
			Name     string `json:"name"`
			Password string `json:"password"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		user, err := users.Register(c.UserContext(), identity.RegisterInput{
			Email:    req.Email,
			Name:     req.Name,
			Password: req.Password,
		})
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		created, err := wallets.CreateDefaultWallets(c.UserContext(), user.ID)
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
		currencies := make([]string, 0, len(created))
		for _, w := range created {
			currencies = append(currencies, w.Currency)
		}
		return c.Status(http.StatusCreated).JSON(fiber.Map{
			"user_id": user.ID,
			"email":   user.Email,
			"wallets": currencies,
		})
	})

	group.Post("/login", middleware.LoginGuard(guard), func(c *fiber.Ctx) error {
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		email := strings.ToLower(strings.TrimSpace(req.Email))

		user, err := users.VerifyPassword(c.UserContext(), email, req.Password)
		if err != nil {
			_ = guard.RecordLoginAttempt(c.UserContext(), email, c.IP(), false, "invalid credentials")
			return fiber.NewError(http.StatusUnauthorized, "invalid credentials")
		}
		if !user.IsActive() {
			_ = guard.RecordLoginAttempt(c.UserContext(), email, c.IP(), false, "account suspended")
			return fiber.NewError(http.StatusForbidden, "account suspended")
		}
		_ = guard.RecordLoginAttempt(c.UserContext(), email, c.IP(), true, "")

		return c.Status(http.StatusOK).JSON(fiber.Map{
			"user_id": user.ID,
			"email":   user.Email,
			"role":    user.Role,
		})
	})
}
