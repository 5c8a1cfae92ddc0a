package routes

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/atlas-pay/atlas_pay/internal/rates"
)

func registerRateRoutes(r fiber.Router, svc *rates.Service) {
	r.Get("/rates", func(c *fiber.Ctx) error {
		list, err := svc.AllRates(c.UserContext())
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
		out := make([]fiber.Map, 0, len(list))
		for _, rate := range list {
			out = append(out, fiber.Map{
				"from":       rate.FromCurrency,
				"to":         rate.ToCurrency,
				"rate":       rate.Rate.String(),
				"updated_at": rate.UpdatedAt,
			})
		}
		return c.Status(http.StatusOK).JSON(fiber.Map{"rates": out})
	})

	r.Put("/rates", func(c *fiber.Ctx) error {
		var req struct {
			From string `json:"from"`
			To   string `json:"to"`
			Rate string `json:"rate"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		rate, err := decimal.NewFromString(req.Rate)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid rate")
		}
		if err := svc.UpdateRate(c.UserContext(), req.From, req.To, rate); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		return c.SendStatus(http.StatusNoContent)
	})
}
