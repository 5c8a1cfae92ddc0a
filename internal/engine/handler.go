package engine

import (
	"context"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/atlas-pay/atlas_pay/internal/wallet"
)

// Handler exposes transaction HTTP endpoints.
type Handler struct {
	engine *Engine
}

// NewHandler builds a transaction HTTP handler.
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

type transferRequest struct {
	UserID       string `json:"user_id"`
	FromWalletID string `json:"from_wallet_id"`
	ToWalletID   string `json:"to_wallet_id"`
	Amount       string `json:"amount"`
	Description  string `json:"description"`
}

type vaultMovementRequest struct {
	UserID      string `json:"user_id"`
	WalletID    string `json:"wallet_id"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

type transactionResponse struct {
	ID                string  `json:"id"`
	ReferenceID       string  `json:"reference_id"`
	Type              string  `json:"type"`
	Status            string  `json:"status"`
	Amount            string  `json:"amount"`
	Currency          string  `json:"currency"`
	Fee               string  `json:"fee"`
	ExchangeRate      *string `json:"exchange_rate,omitempty"`
	ConvertedAmount   *string `json:"converted_amount,omitempty"`
	ConvertedCurrency *string `json:"converted_currency,omitempty"`
	Description       string  `json:"description,omitempty"`
	FailureReason     *string `json:"failure_reason,omitempty"`
	CreatedAt         string  `json:"created_at"`
}

func toResponse(t Transaction) transactionResponse {
	resp := transactionResponse{
		ID:                t.ID,
		ReferenceID:       t.ReferenceID,
		Type:              t.Type,
		Status:            t.Status,
		Amount:            t.Amount.StringFixed(2),
		Currency:          t.Currency,
		Fee:               t.Fee.StringFixed(2),
		ConvertedCurrency: t.ConvertedCurrency,
		Description:       t.Description,
		FailureReason:     t.FailureReason,
		CreatedAt:         t.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	if t.ExchangeRate != nil {
		s := t.ExchangeRate.String()
		resp.ExchangeRate = &s
	}
	if t.ConvertedAmount != nil {
		s := t.ConvertedAmount.StringFixed(2)
		resp.ConvertedAmount = &s
	}
	return resp
}

// Transfer moves funds between wallets.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	return h.submit(c, h.engine.Transfer)
}

// Exchange converts funds between a user's own wallets.
func (h *Handler) Exchange(c *fiber.Ctx) error {
	return h.submit(c, h.engine.Exchange)
}

func (h *Handler) submit(c *fiber.Ctx, run func(ctx context.Context, input TransferInput) (Transaction, bool, error)) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid amount")
	}

	tx, duplicate, err := run(c.UserContext(), TransferInput{
		UserID:         req.UserID,
		FromWalletID:   req.FromWalletID,
		ToWalletID:     req.ToWalletID,
		Amount:         amount,
		Description:    req.Description,
		IdempotencyKey: c.Get("Idempotency-Key"),
	})
	if err != nil {
		return transferError(err)
	}
	status := http.StatusCreated
	if duplicate {
		status = http.StatusOK
	}
	return c.Status(status).JSON(toResponse(tx))
}

// Deposit credits a wallet from the platform vault.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	return h.vaultMovement(c, h.engine.Deposit)
}

// Withdraw debits a wallet into the platform vault.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	return h.vaultMovement(c, h.engine.Withdraw)
}

func (h *Handler) vaultMovement(c *fiber.Ctx, run func(ctx context.Context, input DepositInput) (Transaction, error)) error {
	var req vaultMovementRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid amount")
	}
	tx, err := run(c.UserContext(), DepositInput{
		UserID:      req.UserID,
		WalletID:    req.WalletID,
		Amount:      amount,
		Description: req.Description,
	})
	if err != nil {
		return transferError(err)
	}
	return c.Status(http.StatusCreated).JSON(toResponse(tx))
}

// Get returns a single transaction.
func (h *Handler) Get(c *fiber.Ctx) error {
	tx, err := h.engine.Get(c.UserContext(), c.Params("transactionId"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(toResponse(tx))
}

// History lists a user's recent transactions.
func (h *Handler) History(c *fiber.Ctx) error {
	txs, err := h.engine.History(c.UserContext(), c.Params("userId"), c.QueryInt("limit", 50))
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	out := make([]transactionResponse, 0, len(txs))
	for _, t := range txs {
		out = append(out, toResponse(t))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"transactions": out})
}

// PendingApprovals lists transactions awaiting an admin.
func (h *Handler) PendingApprovals(c *fiber.Ctx) error {
	txs, err := h.engine.PendingApprovals(c.UserContext())
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	out := make([]transactionResponse, 0, len(txs))
	for _, t := range txs {
		out = append(out, toResponse(t))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"transactions": out})
}

type approvalRequest struct {
	AdminID string `json:"admin_id"`
	Reason  string `json:"reason"`
}

// Approve releases a held transaction.
func (h *Handler) Approve(c *fiber.Ctx) error {
	var req approvalRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	tx, err := h.engine.Approve(c.UserContext(), c.Params("transactionId"), req.AdminID)
	if err != nil {
		return transferError(err)
	}
	return c.Status(http.StatusOK).JSON(toResponse(tx))
}

// Reject cancels a held transaction.
func (h *Handler) Reject(c *fiber.Ctx) error {
	var req approvalRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	tx, err := h.engine.Reject(c.UserContext(), c.Params("transactionId"), req.AdminID, req.Reason)
	if err != nil {
		return transferError(err)
	}
	return c.Status(http.StatusOK).JSON(toResponse(tx))
}

func transferError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, wallet.ErrNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrDenied):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrUserInactive):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrNotAdmin):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrNotOwner):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, wallet.ErrInsufficientBalance),
		errors.Is(err, wallet.ErrInvalidAmount),
		errors.Is(err, wallet.ErrWalletInactive),
		errors.Is(err, ErrSameWallet),
		errors.Is(err, ErrAmountTooLarge),
		errors.Is(err, ErrNotApprovable),
		errors.Is(err, ErrVaultInsufficient):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
