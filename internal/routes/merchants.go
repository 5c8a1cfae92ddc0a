package routes

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/atlas-pay/atlas_pay/internal/merchant"
)

func registerMerchantRoutes(r fiber.Router, merchants *merchant.Service) {
	r.Post("/merchants", func(c *fiber.Ctx) error {
		var req struct {
			UserID         string `json:"user_id"`
			BusinessName   string `json:"business_name"`
			WebhookURL     string `json:"webhook_url"`
			DailyLimit     string `json:"daily_limit"`
			MonthlyLimit   string `json:"monthly_limit"`
			CommissionRate string `json:"commission_rate"`
			IsSandbox      bool   `json:"is_sandbox"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		parse := func(s string) (decimal.Decimal, error) {
			if s == "" {
				return decimal.Zero, nil
			}
			return decimal.NewFromString(s)
		}
		daily, err := parse(req.DailyLimit)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid daily limit")
		}
		monthly, err := parse(req.MonthlyLimit)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid monthly limit")
		}
		rate, err := parse(req.CommissionRate)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid commission rate")
		}

		m, err := merchants.Register(c.UserContext(), merchant.RegisterInput{
			UserID:         req.UserID,
			BusinessName:   req.BusinessName,
			WebhookURL:     req.WebhookURL,
			DailyLimit:     daily,
			MonthlyLimit:   monthly,
			CommissionRate: rate,
			IsSandbox:      req.IsSandbox,
		})
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		// Credentials are returned once, at onboarding.
		return c.Status(http.StatusCreated).JSON(fiber.Map{
			"id":             m.ID,
			"business_name":  m.BusinessName,
			"api_key":        m.APIKey,
			"api_secret":     m.APISecret,
			"webhook_secret": m.WebhookSecret,
		})
	})

	r.Get("/merchants/:merchantId", func(c *fiber.Ctx) error {
		m, err := merchants.Get(c.UserContext(), c.Params("merchantId"))
		if err != nil {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"id":              m.ID,
			"business_name":   m.BusinessName,
			"status":          m.Status,
			"daily_limit":     m.DailyLimit.StringFixed(2),
			"monthly_limit":   m.MonthlyLimit.StringFixed(2),
			"commission_rate": m.CommissionRate.String(),
			"is_sandbox":      m.IsSandbox,
		})
	})
}
