// Package gateway is the merchant-facing payment surface: hosted checkout
// sessions, a simulated 3-D Secure challenge, settlement into merchant
// wallets and refunds. Internal cards settle against the payer's wallet;
// external cards settle against the platform's main vault.
package gateway

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atlas-pay/atlas_pay/internal/audit"
	"github.com/atlas-pay/atlas_pay/internal/card"
	"github.com/atlas-pay/atlas_pay/internal/engine"
	"github.com/atlas-pay/atlas_pay/internal/jobs"
	"github.com/atlas-pay/atlas_pay/internal/ledger"
	"github.com/atlas-pay/atlas_pay/internal/merchant"
	"github.com/atlas-pay/atlas_pay/internal/money"
	"github.com/atlas-pay/atlas_pay/internal/storage"
	"github.com/atlas-pay/atlas_pay/internal/wallet"
)

var (
	// ErrSessionExpired is returned when the checkout window has closed.
	ErrSessionExpired = errors.New("checkout session expired")
	// ErrWrongState is returned when an operation does not fit the
	// session's current status.
	ErrWrongState = errors.New("session is not in the required state")
	// ErrInvalidCard is returned for card numbers or credentials that fail
	// validation.
	ErrInvalidCard = errors.New("invalid card")
	// ErrInvalidOTP is returned for a wrong verification code with attempts
	// remaining.
	ErrInvalidOTP = errors.New("invalid verification code")
	// ErrOTPExpired is returned when the code's five-minute window passed.
	ErrOTPExpired = errors.New("verification code expired")
	// ErrOTPAttempts is returned once the payer burns every attempt; the
	// session is failed for good.
	ErrOTPAttempts = errors.New("verification attempts exhausted")
	// ErrRefundTooLarge is returned when a refund exceeds the captured amount.
	ErrRefundTooLarge = errors.New("refund exceeds original payment")
	// ErrCurrencyMismatch is returned when an internal card's wallet is in a
	// different currency than the session.
	ErrCurrencyMismatch = errors.New("card wallet currency does not match payment")
)

// Config carries the gateway's deployment settings.
type Config struct {
	BaseURL    string
	SessionTTL time.Duration
	OTPTTL     time.Duration
}

// Deps collects the gateway's collaborators.
type Deps struct {
	Runner    storage.Runner
	Sessions  Repository
	Merchants *merchant.Service
	Cards     *card.Service
	Wallets   *wallet.Service
	Txs       engine.Repository
	Vault     engine.Vault
	Ledger    *ledger.Recorder
	Audit     *audit.Sink
	Queue     jobs.Queue
	Logger    *slog.Logger
	Config    Config
}

// Service runs the checkout lifecycle.
type Service struct {
	Deps
	nowFn func() time.Time
}

// NewService creates a gateway service.
func NewService(deps Deps) *Service {
	return &Service{Deps: deps, nowFn: func() time.Time { return time.Now().UTC() }}
}

// InitiateInput describes a new checkout request from a merchant. OrderID
// ties the session to the merchant's own order; CallbackURL overrides the
// merchant's default webhook destination for this session.
type InitiateInput struct {
	OrderID       string
	Amount        decimal.Decimal
	Currency      string
	Description   string
	CustomerName  string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	CallbackURL   string
}

// Initiate opens a checkout session after the merchant's volume limits pass.
// A denied limit check creates nothing.
func (s *Service) Initiate(ctx context.Context, m merchant.Merchant, input InitiateInput) (Session, error) {
	if !money.IsPositive(input.Amount) {
		return Session{}, wallet.ErrInvalidAmount
	}
	if !money.SupportedCurrency(input.Currency) {
		return Session{}, fmt.Errorf("unsupported currency %q", input.Currency)
	}
	amount := money.Round2(input.Amount)

	if err := s.Merchants.CheckLimits(ctx, m, amount); err != nil {
		return Session{}, err
	}

	now := s.nowFn()
	session := Session{
		ID:            uuid.NewString(),
		Token:         newSessionToken(),
		MerchantID:    m.ID,
		OrderID:       input.OrderID,
		Amount:        amount,
		Currency:      input.Currency,
		Description:   input.Description,
		Status:        StatusPending,
		CustomerName:  input.CustomerName,
		CustomerEmail: input.CustomerEmail,
		SuccessURL:    input.SuccessURL,
		CancelURL:     input.CancelURL,
		CallbackURL:   input.CallbackURL,
		ExpiresAt:     now.Add(s.Config.SessionTTL),
		CreatedAt:     now,
	}
	if err := s.Sessions.Create(ctx, session); err != nil {
		return Session{}, err
	}
	s.Audit.Log(ctx, "checkout.initiated", m.ID, audit.RiskLow, map[string]any{
		"session_id": session.ID,
		"amount":     amount.StringFixed(2),
		"currency":   input.Currency,
	})
	return session, nil
}

// CheckoutURL is the hosted page the merchant redirects the payer to.
func (s *Service) CheckoutURL(session Session) string {
	return s.Config.BaseURL + "/checkout/" + session.Token
}

// Session fetches a session by token, lazily expiring overdue ones.
func (s *Service) Session(ctx context.Context, token string) (Session, error) {
	session, err := s.Sessions.FindByToken(ctx, token)
	if err != nil {
		return Session{}, err
	}
	if session.Open() && session.Expired(s.nowFn()) {
		session.Status = StatusExpired
		if err := s.Sessions.Update(ctx, session); err != nil {
			return Session{}, err
		}
	}
	return session, nil
}

// CardInput is the payer's card submission.
type CardInput struct {
	Token       string
	CardNumber  string
	CVV         string
	ExpiryMonth int
	ExpiryYear  int
	HolderName  string
}

// ProcessCardPayment validates the payer's card and arms the OTP challenge.
// Card validation failures leave the session pending so the payer can retry
// with another card. The code itself is delivered out of band, never in the
// response: internal card holders get a notification job, external cards get
// the issuer leg simulated in the log.
func (s *Service) ProcessCardPayment(ctx context.Context, input CardInput) (Session, error) {
	session, err := s.Session(ctx, input.Token)
	if err != nil {
		return Session{}, err
	}
	if session.Status == StatusExpired {
		return Session{}, ErrSessionExpired
	}
	if session.Status != StatusPending {
		return Session{}, ErrWrongState
	}
	number := strings.ReplaceAll(input.CardNumber, " ", "")
	if !card.ValidNumber(number) {
		return Session{}, fmt.Errorf("%w: number fails validation", ErrInvalidCard)
	}

	platformCard, err := s.Cards.FindByNumber(ctx, number)
	switch {
	case err == nil:
		if err := s.Cards.VerifyCVV(platformCard, input.CVV); err != nil {
			return Session{}, fmt.Errorf("%w: %v", ErrInvalidCard, err)
		}
		payerWallet, err := s.Wallets.Get(ctx, platformCard.WalletID)
		if err != nil {
			return Session{}, err
		}
		if payerWallet.Currency != session.Currency {
			return Session{}, ErrCurrencyMismatch
		}
		if err := s.Cards.CanPay(platformCard, session.Amount, payerWallet.Available); err != nil {
			return Session{}, fmt.Errorf("%w: %v", ErrInvalidCard, err)
		}
		session.CardInternal = true
		cardID := platformCard.ID
		session.CardID = &cardID
	case errors.Is(err, card.ErrNotFound):
		session.CardInternal = false
		session.CardID = nil
	default:
		return Session{}, err
	}

	otp, err := newOTP()
	if err != nil {
		return Session{}, err
	}
	otpExpires := s.nowFn().Add(s.Config.OTPTTL)
	session.CardLastFour = number[len(number)-4:]
	session.CardBrand = card.Brand(number)
	session.OTP = otp
	session.OTPExpiresAt = &otpExpires
	session.OTPAttempts = 0
	session.Status = StatusPending3D
	if err := s.Sessions.Update(ctx, session); err != nil {
		return Session{}, err
	}

	if session.CardInternal {
		c, err := s.Cards.Get(ctx, *session.CardID)
		if err == nil {
			err = jobs.DispatchNotification(ctx, s.Queue, jobs.NotificationPayload{
				UserID:  c.UserID,
				Subject: "Payment verification code",
				Message: fmt.Sprintf("Your verification code is %s", otp),
			})
		}
		if err != nil {
			s.Logger.Error("dispatch otp notification failed", "session_id", session.ID, "error", err)
		}
	} else {
		s.Logger.Debug("issuer verification code generated", "session_id", session.ID, "otp", otp)
	}

	return session, nil
}

// Verify3DSecure checks the payer's code and settles the payment on success.
func (s *Service) Verify3DSecure(ctx context.Context, token, otp string) (Session, error) {
	session, err := s.Session(ctx, token)
	if err != nil {
		return Session{}, err
	}
	if session.Status == StatusExpired {
		return Session{}, ErrSessionExpired
	}
	if session.Status != StatusPending3D {
		return Session{}, ErrWrongState
	}

	// An expired code is not terminal: the session stays pending_3d until
	// its own checkout window closes.
	now := s.nowFn()
	if session.OTPExpiresAt == nil || now.After(*session.OTPExpiresAt) {
		return session, ErrOTPExpired
	}

	if otp != session.OTP {
		session.OTPAttempts++
		if session.OTPAttempts >= maxOTPAttempts {
			session.Status = StatusFailed
			reason := "verification attempts exhausted"
			session.FailureReason = &reason
			if err := s.Sessions.Update(ctx, session); err != nil {
				return Session{}, err
			}
			s.Audit.Log(ctx, "checkout.otp_exhausted", session.MerchantID, audit.RiskMedium, map[string]any{
				"session_id": session.ID,
			})
			return session, ErrOTPAttempts
		}
		if err := s.Sessions.Update(ctx, session); err != nil {
			return Session{}, err
		}
		return session, ErrInvalidOTP
	}

	return s.settle(ctx, session)
}

// settle captures the payment: the payer side is debited, the merchant
// wallet credited net of commission, and the commission lands in the fee
// vault, all in one atomic unit with a balanced ledger pair.
func (s *Service) settle(ctx context.Context, session Session) (Session, error) {
	m, err := s.Merchants.Get(ctx, session.MerchantID)
	if err != nil {
		return Session{}, err
	}
	merchantWallet, err := s.Wallets.FindByUserAndCurrency(ctx, m.UserID, session.Currency)
	if err != nil {
		return Session{}, fmt.Errorf("merchant wallet: %w", err)
	}

	commission := s.Merchants.Commission(m, session.Amount)
	net := session.Amount.Sub(commission)
	now := s.nowFn()
	merchantID := m.ID
	tx := engine.Transaction{
		ID:          uuid.NewString(),
		ReferenceID: engine.NewReferenceID(now),
		UserID:      m.UserID,
		Type:        engine.TypePayment,
		Status:      engine.StatusProcessing,
		Amount:      session.Amount,
		Currency:    session.Currency,
		Fee:         commission,
		MerchantID:  &merchantID,
		Description: session.Description,
		CreatedAt:   now,
	}

	err = s.Runner.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.Txs.Create(ctx, tx); err != nil {
			return err
		}

		var debit ledger.Posting
		if session.CardInternal {
			c, err := s.Cards.Get(ctx, *session.CardID)
			if err != nil {
				return err
			}
			mut, err := s.Wallets.Debit(ctx, c.WalletID, session.Amount)
			if err != nil {
				return err
			}
			debit = ledger.Posting{
				WalletID: c.WalletID, Amount: session.Amount,
				BalanceBefore: mut.BalanceBefore, BalanceAfter: mut.BalanceAfter,
				Description: "card payment " + session.Token,
			}
		} else {
			if err := s.Vault.Debit(ctx, engine.VaultMain, session.Currency, session.Amount); err != nil {
				return err
			}
			debit = ledger.Posting{
				WalletID: engine.VaultWalletID(engine.VaultMain, session.Currency),
				Amount:   session.Amount, Description: "external card payment " + session.Token,
			}
		}

		creditMut, err := s.Wallets.Credit(ctx, merchantWallet.ID, net)
		if err != nil {
			return err
		}
		if commission.GreaterThan(decimal.Zero) {
			if err := s.Vault.Credit(ctx, engine.VaultFee, session.Currency, commission); err != nil {
				return err
			}
		}

		credit := ledger.Posting{
			WalletID: merchantWallet.ID, Amount: net,
			BalanceBefore: creditMut.BalanceBefore, BalanceAfter: creditMut.BalanceAfter,
			Description: "payment settlement " + session.Token,
		}
		if err := s.Ledger.Record(ctx, tx.ID, debit, credit); err != nil {
			return err
		}

		completedAt := s.nowFn()
		if err := s.Txs.Complete(ctx, tx.ID, completedAt); err != nil {
			return err
		}

		txID := tx.ID
		session.TransactionID = &txID
		session.Status = StatusCompleted
		return s.Sessions.Update(ctx, session)
	})
	if err != nil {
		return Session{}, err
	}

	s.Audit.Transaction(ctx, m.UserID, tx.ID, engine.TypePayment, session.Amount)
	s.sendWebhook(ctx, m, session, EventPaymentCompleted, map[string]any{
		"event":          EventPaymentCompleted,
		"session_id":     session.ID,
		"transaction_id": tx.ID,
		"reference_id":   tx.ReferenceID,
		"order_id":       session.OrderID,
		"amount":         session.Amount.StringFixed(2),
		"currency":       session.Currency,
		"status":         session.Status,
		"fee":            commission.StringFixed(2),
	})
	return session, nil
}

// Refund returns up to the captured amount from the merchant back to the
// payer side, keyed by the settled payment transaction. A zero amount refunds
// the full original. The platform keeps its commission.
func (s *Service) Refund(ctx context.Context, m merchant.Merchant, transactionID string, amount decimal.Decimal, reason string) (engine.Transaction, error) {
	session, err := s.Sessions.FindByTransaction(ctx, transactionID)
	if err != nil {
		return engine.Transaction{}, err
	}
	if session.MerchantID != m.ID {
		return engine.Transaction{}, ErrSessionNotFound
	}
	if session.Status != StatusCompleted {
		return engine.Transaction{}, ErrWrongState
	}
	if amount.IsZero() {
		amount = session.Amount
	}
	if !money.IsPositive(amount) {
		return engine.Transaction{}, wallet.ErrInvalidAmount
	}
	amount = money.Round2(amount)
	if amount.GreaterThan(session.Amount) {
		return engine.Transaction{}, ErrRefundTooLarge
	}
	if reason == "" {
		reason = "merchant refund"
	}

	merchantWallet, err := s.Wallets.FindByUserAndCurrency(ctx, m.UserID, session.Currency)
	if err != nil {
		return engine.Transaction{}, fmt.Errorf("merchant wallet: %w", err)
	}

	now := s.nowFn()
	merchantID := m.ID
	tx := engine.Transaction{
		ID:          uuid.NewString(),
		ReferenceID: engine.NewReferenceID(now),
		UserID:      m.UserID,
		Type:        engine.TypeRefund,
		Status:      engine.StatusProcessing,
		Amount:      amount,
		Currency:    session.Currency,
		Fee:         decimal.Zero,
		MerchantID:  &merchantID,
		Description: reason,
		CreatedAt:   now,
	}

	err = s.Runner.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.Txs.Create(ctx, tx); err != nil {
			return err
		}

		debitMut, err := s.Wallets.Debit(ctx, merchantWallet.ID, amount)
		if err != nil {
			return err
		}
		debit := ledger.Posting{
			WalletID: merchantWallet.ID, Amount: amount,
			BalanceBefore: debitMut.BalanceBefore, BalanceAfter: debitMut.BalanceAfter,
			Description: "refund " + session.Token,
		}

		var credit ledger.Posting
		if session.CardInternal {
			c, err := s.Cards.Get(ctx, *session.CardID)
			if err != nil {
				return err
			}
			mut, err := s.Wallets.Credit(ctx, c.WalletID, amount)
			if err != nil {
				return err
			}
			credit = ledger.Posting{
				WalletID: c.WalletID, Amount: amount,
				BalanceBefore: mut.BalanceBefore, BalanceAfter: mut.BalanceAfter,
				Description: "refund " + session.Token,
			}
		} else {
			if err := s.Vault.Credit(ctx, engine.VaultMain, session.Currency, amount); err != nil {
				return err
			}
			credit = ledger.Posting{
				WalletID: engine.VaultWalletID(engine.VaultMain, session.Currency),
				Amount:   amount, Description: "refund " + session.Token,
			}
		}

		if err := s.Ledger.Record(ctx, tx.ID, debit, credit); err != nil {
			return err
		}
		completedAt := s.nowFn()
		if err := s.Txs.Complete(ctx, tx.ID, completedAt); err != nil {
			return err
		}

		txID := tx.ID
		session.RefundedTxID = &txID
		session.Status = StatusRefunded
		return s.Sessions.Update(ctx, session)
	})
	if err != nil {
		return engine.Transaction{}, err
	}
	tx.Status = engine.StatusCompleted

	s.Audit.Transaction(ctx, m.UserID, tx.ID, engine.TypeRefund, amount)
	s.sendWebhook(ctx, m, session, EventPaymentRefunded, map[string]any{
		"event":          EventPaymentRefunded,
		"session_id":     session.ID,
		"transaction_id": tx.ID,
		"reference_id":   tx.ReferenceID,
		"order_id":       session.OrderID,
		"amount":         amount.StringFixed(2),
		"currency":       session.Currency,
		"status":         session.Status,
		"reason":         reason,
	})
	return tx, nil
}

// sendWebhook signs and queues a merchant webhook. A per-session callback URL
// wins over the merchant's default; with neither set nothing is sent.
func (s *Service) sendWebhook(ctx context.Context, m merchant.Merchant, session Session, event string, body map[string]any) {
	url := session.CallbackURL
	if url == "" {
		url = m.WebhookURL
	}
	if url == "" {
		return
	}
	payload, err := json.Marshal(body)
	if err != nil {
		s.Logger.Error("encode webhook body failed", "event", event, "error", err)
		return
	}
	err = jobs.DispatchWebhook(ctx, s.Queue, jobs.WebhookPayload{
		URL:       url,
		Event:     event,
		Body:      payload,
		Signature: SignPayload(payload, m.WebhookSecret),
	})
	if err != nil {
		s.Logger.Error("dispatch webhook failed", "event", event, "error", err)
	}
}

func newSessionToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("gateway: read random: %v", err))
	}
	return hex.EncodeToString(buf)
}

// newOTP produces a six-digit verification code.
func newOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
