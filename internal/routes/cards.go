package routes

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/atlas-pay/atlas_pay/internal/card"
)

func registerCardRoutes(r fiber.Router, cards *card.Service) {
	r.Post("/cards", func(c *fiber.Ctx) error {
		var req struct {
			UserID        string `json:"user_id"`
			WalletID      string `json:"wallet_id"`
			HolderName    string `json:"holder_name"`
			CVV           string `json:"cvv"`
			SpendingLimit string `json:"spending_limit"`
			OnlineEnabled bool   `json:"online_enabled"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		limit := decimal.Zero
		if req.SpendingLimit != "" {
			var err error
			if limit, err = decimal.NewFromString(req.SpendingLimit); err != nil {
				return fiber.NewError(http.StatusBadRequest, "invalid spending limit")
			}
		}
		issued, err := cards.Issue(c.UserContext(), card.IssueInput{
			UserID:        req.UserID,
			WalletID:      req.WalletID,
			HolderName:    req.HolderName,
			CVV:           req.CVV,
			SpendingLimit: limit,
			OnlineEnabled: req.OnlineEnabled,
		})
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		// The full number is shown once, at issuance.
		return c.Status(http.StatusCreated).JSON(fiber.Map{
			"id":           issued.ID,
			"number":       issued.Number,
			"brand":        issued.Brand,
			"holder_name":  issued.HolderName,
			"expiry_month": issued.ExpiryMonth,
			"expiry_year":  issued.ExpiryYear,
		})
	})

	r.Get("/users/:userId/cards", func(c *fiber.Ctx) error {
		list, err := cards.ListByUser(c.UserContext(), c.Params("userId"))
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
		out := make([]fiber.Map, 0, len(list))
		for _, issued := range list {
			out = append(out, fiber.Map{
				"id":           issued.ID,
				"number":       issued.Masked(),
				"brand":        issued.Brand,
				"status":       issued.Status,
				"expiry_month": issued.ExpiryMonth,
				"expiry_year":  issued.ExpiryYear,
			})
		}
		return c.Status(http.StatusOK).JSON(fiber.Map{"cards": out})
	})

	r.Post("/cards/:cardId/block", func(c *fiber.Ctx) error {
		if err := cards.Block(c.UserContext(), c.Params("cardId")); err != nil {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		return c.SendStatus(http.StatusNoContent)
	})
}
