package wallet

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type walletResponse struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Currency  string `json:"currency"`
	Balance   string `json:"balance"`
	Available string `json:"available_balance"`
	Pending   string `json:"pending_balance"`
	IsDefault bool   `json:"is_default"`
	Status    string `json:"status"`
}

func toResponse(w Wallet) walletResponse {
	return walletResponse{
		ID:        w.ID,
		UserID:    w.UserID,
		Currency:  w.Currency,
		Balance:   w.Balance.StringFixed(2),
		Available: w.Available.StringFixed(2),
		Pending:   w.Pending.StringFixed(2),
		IsDefault: w.IsDefault,
		Status:    w.Status,
	}
}

// Get returns a single wallet.
func (h *Handler) Get(c *fiber.Ctx) error {
	w, err := h.service.Get(c.UserContext(), c.Params("walletId"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(toResponse(w))
}

// List returns all wallets owned by a user.
func (h *Handler) List(c *fiber.Ctx) error {
	wallets, err := h.service.ListByUser(c.UserContext(), c.Params("userId"))
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	out := make([]walletResponse, 0, len(wallets))
	for _, w := range wallets {
		out = append(out, toResponse(w))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"wallets": out})
}

// Freeze stops all mutations on a wallet.
func (h *Handler) Freeze(c *fiber.Ctx) error {
	if err := h.service.Freeze(c.UserContext(), c.Params("walletId")); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.SendStatus(http.StatusNoContent)
}

// Unfreeze reactivates a frozen wallet.
func (h *Handler) Unfreeze(c *fiber.Ctx) error {
	if err := h.service.Unfreeze(c.UserContext(), c.Params("walletId")); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.SendStatus(http.StatusNoContent)
}
