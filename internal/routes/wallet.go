package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/atlas-pay/atlas_pay/internal/wallet"
)

func registerWalletRoutes(r fiber.Router, h *wallet.Handler) {
	r.Get("/wallets/:walletId", h.Get)
	r.Post("/wallets/:walletId/freeze", h.Freeze)
	r.Post("/wallets/:walletId/unfreeze", h.Unfreeze)
	r.Get("/users/:userId/wallets", h.List)
}
