package gateway

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/atlas-pay/atlas_pay/internal/merchant"
	"github.com/atlas-pay/atlas_pay/internal/wallet"
)

// MerchantLocal is the fiber locals key the API-key middleware stores the
// authenticated merchant under.
const MerchantLocal = "merchant"

// Handler exposes the payment gateway HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a gateway HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func authedMerchant(c *fiber.Ctx) (merchant.Merchant, error) {
	m, ok := c.Locals(MerchantLocal).(merchant.Merchant)
	if !ok {
		return merchant.Merchant{}, fiber.NewError(http.StatusUnauthorized, "merchant authentication required")
	}
	return m, nil
}

type initiateRequest struct {
	OrderID       string `json:"order_id"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	Description   string `json:"description"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	SuccessURL    string `json:"success_url"`
	CancelURL     string `json:"cancel_url"`
	CallbackURL   string `json:"callback_url"`
}

type sessionResponse struct {
	Token        string `json:"token"`
	CheckoutURL  string `json:"checkout_url,omitempty"`
	OrderID      string `json:"order_id,omitempty"`
	Status       string `json:"status"`
	Amount       string `json:"amount"`
	Currency     string `json:"currency"`
	CardLastFour string `json:"card_last_four,omitempty"`
	CardBrand    string `json:"card_brand,omitempty"`
	ExpiresAt    string `json:"expires_at"`
}

func (h *Handler) toResponse(s Session, withURL bool) sessionResponse {
	resp := sessionResponse{
		Token:        s.Token,
		OrderID:      s.OrderID,
		Status:       s.Status,
		Amount:       s.Amount.StringFixed(2),
		Currency:     s.Currency,
		CardLastFour: s.CardLastFour,
		CardBrand:    s.CardBrand,
		ExpiresAt:    s.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	if withURL {
		resp.CheckoutURL = h.service.CheckoutURL(s)
	}
	return resp
}

// Initiate opens a checkout session for the authenticated merchant.
func (h *Handler) Initiate(c *fiber.Ctx) error {
	m, err := authedMerchant(c)
	if err != nil {
		return err
	}
	var req initiateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid amount")
	}

	session, err := h.service.Initiate(c.UserContext(), m, InitiateInput{
		OrderID:       req.OrderID,
		Amount:        amount,
		Currency:      req.Currency,
		Description:   req.Description,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		SuccessURL:    req.SuccessURL,
		CancelURL:     req.CancelURL,
		CallbackURL:   req.CallbackURL,
	})
	if err != nil {
		return gatewayError(err)
	}
	return c.Status(http.StatusCreated).JSON(h.toResponse(session, true))
}

type processCardRequest struct {
	Token       string `json:"token"`
	CardNumber  string `json:"card_number"`
	CVV         string `json:"cvv"`
	ExpiryMonth int    `json:"expiry_month"`
	ExpiryYear  int    `json:"expiry_year"`
	HolderName  string `json:"holder_name"`
}

// ProcessCard validates the payer's card and starts the 3-D Secure challenge.
// The verification code goes out through the notification channel, never in
// the response body.
func (h *Handler) ProcessCard(c *fiber.Ctx) error {
	var req processCardRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	session, err := h.service.ProcessCardPayment(c.UserContext(), CardInput{
		Token:       req.Token,
		CardNumber:  req.CardNumber,
		CVV:         req.CVV,
		ExpiryMonth: req.ExpiryMonth,
		ExpiryYear:  req.ExpiryYear,
		HolderName:  req.HolderName,
	})
	if err != nil {
		return gatewayError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"session": h.toResponse(session, false),
		"message": "verification code sent",
	})
}

type verifyRequest struct {
	Token string `json:"token"`
	OTP   string `json:"otp"`
}

// Verify3D checks the payer's code and settles on success.
func (h *Handler) Verify3D(c *fiber.Ctx) error {
	var req verifyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	session, err := h.service.Verify3DSecure(c.UserContext(), req.Token, req.OTP)
	if err != nil {
		if errors.Is(err, ErrInvalidOTP) || errors.Is(err, ErrOTPAttempts) || errors.Is(err, ErrOTPExpired) {
			return c.Status(http.StatusUnprocessableEntity).JSON(fiber.Map{
				"session": h.toResponse(session, false),
				"error":   err.Error(),
			})
		}
		return gatewayError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"session":      h.toResponse(session, false),
		"redirect_url": session.SuccessURL,
	})
}

// Status returns the public projection of a session.
func (h *Handler) Status(c *fiber.Ctx) error {
	session, err := h.service.Session(c.UserContext(), c.Params("token"))
	if err != nil {
		return gatewayError(err)
	}
	return c.Status(http.StatusOK).JSON(h.toResponse(session, false))
}

type refundRequest struct {
	TransactionID string `json:"transaction_id"`
	Amount        string `json:"amount"`
	Reason        string `json:"reason"`
}

// Refund returns captured funds to the payer side. Amount is optional and
// defaults to the full original payment.
func (h *Handler) Refund(c *fiber.Ctx) error {
	m, err := authedMerchant(c)
	if err != nil {
		return err
	}
	var req refundRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount := decimal.Zero
	if req.Amount != "" {
		if amount, err = decimal.NewFromString(req.Amount); err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid amount")
		}
	}
	tx, err := h.service.Refund(c.UserContext(), m, req.TransactionID, amount, req.Reason)
	if err != nil {
		return gatewayError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"refund_id":    tx.ID,
		"reference_id": tx.ReferenceID,
		"status":       tx.Status,
		"amount":       tx.Amount.StringFixed(2),
		"currency":     tx.Currency,
	})
}

func gatewayError(err error) error {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, merchant.ErrDailyLimitExceeded),
		errors.Is(err, merchant.ErrMonthlyLimitExceeded),
		errors.Is(err, merchant.ErrSuspended):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrSessionExpired),
		errors.Is(err, ErrWrongState),
		errors.Is(err, ErrInvalidCard),
		errors.Is(err, ErrCurrencyMismatch),
		errors.Is(err, ErrRefundTooLarge),
		errors.Is(err, wallet.ErrInvalidAmount),
		errors.Is(err, wallet.ErrInsufficientBalance):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
