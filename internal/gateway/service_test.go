package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlas-pay/atlas_pay/internal/audit"
	"github.com/atlas-pay/atlas_pay/internal/card"
	"github.com/atlas-pay/atlas_pay/internal/engine"
	"github.com/atlas-pay/atlas_pay/internal/jobs"
	"github.com/atlas-pay/atlas_pay/internal/ledger"
	"github.com/atlas-pay/atlas_pay/internal/logging"
	"github.com/atlas-pay/atlas_pay/internal/merchant"
	"github.com/atlas-pay/atlas_pay/internal/storage"
	"github.com/atlas-pay/atlas_pay/internal/wallet"
)

type testRig struct {
	svc       *Service
	merchants *merchant.Service
	wallets   *wallet.Service
	cards     *card.Service
	vault     *engine.MemoryVault
	recorder  *ledger.Recorder
	jobs      interface{ Snapshot() []jobs.Job }
}

func newRig(t *testing.T) *testRig {
	t.Helper()
	runner := storage.NewMemoryRunner()
	logger := logging.Discard()

	walletSvc := wallet.NewService(wallet.NewMemoryRepository(), runner)
	txRepo := engine.NewMemoryRepository()
	merchantSvc := merchant.NewService(merchant.NewMemoryRepository(), txRepo)
	cardSvc := card.NewService(card.NewMemoryRepository())
	recorder := ledger.NewRecorder(ledger.NewMemoryRepository())
	vault := engine.NewMemoryVault()
	sink := audit.NewSink(audit.NewMemoryRepository(), logger)
	jobRepo := jobs.NewMemoryRepository()

	svc := NewService(Deps{
		Runner:    runner,
		Sessions:  NewMemoryRepository(),
		Merchants: merchantSvc,
		Cards:     cardSvc,
		Wallets:   walletSvc,
		Txs:       txRepo,
		Vault:     vault,
		Ledger:    recorder,
		Audit:     sink,
		Queue:     jobs.NewService(jobRepo, logger),
		Logger:    logger,
		Config: Config{
			BaseURL:    "https://pay.example.com",
			SessionTTL: 30 * time.Minute,
			OTPTTL:     5 * time.Minute,
		},
	})

	return &testRig{
		svc:       svc,
		merchants: merchantSvc,
		wallets:   walletSvc,
		cards:     cardSvc,
		vault:     vault,
		recorder:  recorder,
		jobs:      jobRepo,
	}
}

// seedMerchant onboards a merchant with a 2.5% commission and a funded TRY
// wallet for settlements.
func (r *testRig) seedMerchant(t *testing.T, daily string) merchant.Merchant {
	t.Helper()
	ctx := context.Background()
	m, err := r.merchants.Register(ctx, merchant.RegisterInput{
		UserID:         "merchant-user",
		BusinessName:   "Acme Store",
		WebhookURL:     "https://acme.example.com/hooks",
		DailyLimit:     decimal.RequireFromString(daily),
		CommissionRate: decimal.RequireFromString("0.025"),
	})
	if err != nil {
		t.Fatalf("register merchant: %v", err)
	}
	if _, err := r.wallets.CreateDefaultWallets(ctx, m.UserID); err != nil {
		t.Fatalf("merchant wallets: %v", err)
	}
	return m
}

// seedPayerCard creates a payer with a funded TRY wallet and an issued card.
func (r *testRig) seedPayerCard(t *testing.T, balance string) (card.Card, wallet.Wallet) {
	t.Helper()
	ctx := context.Background()
	wallets, err := r.wallets.CreateDefaultWallets(ctx, "payer")
	if err != nil {
		t.Fatalf("payer wallets: %v", err)
	}
	var payerTRY wallet.Wallet
	for _, w := range wallets {
		if w.Currency == "TRY" {
			payerTRY = w
		}
	}
	if _, err := r.wallets.Credit(ctx, payerTRY.ID, decimal.RequireFromString(balance)); err != nil {
		t.Fatalf("fund payer: %v", err)
	}
	c, err := r.cards.Issue(ctx, card.IssueInput{
		UserID:        "payer",
		WalletID:      payerTRY.ID,
		HolderName:    "Pat Payer",
		CVV:           "123",
		OnlineEnabled: true,
	})
	if err != nil {
		t.Fatalf("issue card: %v", err)
	}
	return c, payerTRY
}

func (r *testRig) merchantTRY(t *testing.T, m merchant.Merchant) wallet.Wallet {
	t.Helper()
	w, err := r.wallets.FindByUserAndCurrency(context.Background(), m.UserID, "TRY")
	if err != nil {
		t.Fatalf("merchant wallet: %v", err)
	}
	return w
}

func (r *testRig) checkout(t *testing.T, m merchant.Merchant, amount string) Session {
	t.Helper()
	session, err := r.svc.Initiate(context.Background(), m, InitiateInput{
		OrderID:    "ord-1001",
		Amount:     decimal.RequireFromString(amount),
		Currency:   "TRY",
		SuccessURL: "https://acme.example.com/ok",
	})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	return session
}

// payWithCard walks a session through card submission and 3-D Secure.
func (r *testRig) payWithCard(t *testing.T, token string, c card.Card) Session {
	t.Helper()
	ctx := context.Background()
	armed, err := r.svc.ProcessCardPayment(ctx, CardInput{
		Token: token, CardNumber: c.Number, CVV: "123",
		ExpiryMonth: c.ExpiryMonth, ExpiryYear: c.ExpiryYear,
	})
	if err != nil {
		t.Fatalf("process card: %v", err)
	}
	session, err := r.svc.Verify3DSecure(ctx, token, armed.OTP)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	return session
}

func TestCheckoutInternalCard(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()
	m := rig.seedMerchant(t, "0")
	payerCard, payerWallet := rig.seedPayerCard(t, "1000")

	session := rig.checkout(t, m, "150")
	if session.Status != StatusPending {
		t.Fatalf("status = %s, want pending", session.Status)
	}
	if len(session.Token) != 64 {
		t.Fatalf("token length = %d, want 64", len(session.Token))
	}
	if got := rig.svc.CheckoutURL(session); got != "https://pay.example.com/checkout/"+session.Token {
		t.Errorf("checkout url = %s", got)
	}

	armed, err := rig.svc.ProcessCardPayment(ctx, CardInput{
		Token: session.Token, CardNumber: payerCard.Number, CVV: "123",
		ExpiryMonth: payerCard.ExpiryMonth, ExpiryYear: payerCard.ExpiryYear,
	})
	if err != nil {
		t.Fatalf("process card: %v", err)
	}
	if armed.Status != StatusPending3D {
		t.Fatalf("status = %s, want pending_3d", armed.Status)
	}
	if len(armed.OTP) != 6 {
		t.Fatalf("otp = %q, want six digits", armed.OTP)
	}
	if !armed.CardInternal || armed.CardLastFour != payerCard.LastFour {
		t.Errorf("card context = %+v", armed)
	}

	done, err := rig.svc.Verify3DSecure(ctx, session.Token, armed.OTP)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if done.Status != StatusCompleted || done.TransactionID == nil {
		t.Fatalf("settled session = %+v", done)
	}

	// 150 at 2.5% commission: payer -150, merchant +146.25, fee vault +3.75.
	if got, _ := rig.wallets.Get(ctx, payerWallet.ID); got.Balance.StringFixed(2) != "850.00" {
		t.Errorf("payer balance = %s, want 850.00", got.Balance.StringFixed(2))
	}
	mw := rig.merchantTRY(t, m)
	if mw.Balance.StringFixed(2) != "146.25" {
		t.Errorf("merchant balance = %s, want 146.25", mw.Balance.StringFixed(2))
	}
	fee, _ := rig.vault.Balance(ctx, engine.VaultFee, "TRY")
	if fee.StringFixed(2) != "3.75" {
		t.Errorf("fee vault = %s, want 3.75", fee.StringFixed(2))
	}

	entries, err := rig.recorder.ForTransaction(ctx, *done.TransactionID)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("ledger entries = %d, want 2", len(entries))
	}
}

func TestCheckoutSignsWebhook(t *testing.T) {
	rig := newRig(t)
	m := rig.seedMerchant(t, "0")
	payerCard, _ := rig.seedPayerCard(t, "1000")

	session := rig.checkout(t, m, "150")
	settled := rig.payWithCard(t, session.Token, payerCard)

	var hooks []jobs.Job
	for _, j := range rig.jobs.Snapshot() {
		if j.Type == jobs.TypeWebhook {
			hooks = append(hooks, j)
		}
	}
	if len(hooks) != 1 {
		t.Fatalf("webhook jobs = %d, want 1", len(hooks))
	}
	var p jobs.WebhookPayload
	if err := jobs.DecodePayload(hooks[0], &p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if p.Event != EventPaymentCompleted || p.URL != m.WebhookURL {
		t.Errorf("webhook = %+v", p)
	}
	if !VerifySignature(p.Body, m.WebhookSecret, p.Signature) {
		t.Error("webhook signature does not verify")
	}

	var body map[string]string
	if err := json.Unmarshal(p.Body, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	want := map[string]string{
		"event":          EventPaymentCompleted,
		"session_id":     session.ID,
		"transaction_id": *settled.TransactionID,
		"order_id":       "ord-1001",
		"amount":         "150.00",
		"currency":       "TRY",
		"status":         StatusCompleted,
	}
	for k, v := range want {
		if body[k] != v {
			t.Errorf("body[%s] = %q, want %q", k, body[k], v)
		}
	}
}

func TestCallbackURLOverridesMerchantWebhook(t *testing.T) {
	rig := newRig(t)
	m := rig.seedMerchant(t, "0")
	payerCard, _ := rig.seedPayerCard(t, "1000")

	session, err := rig.svc.Initiate(context.Background(), m, InitiateInput{
		OrderID:     "ord-2002",
		Amount:      decimal.RequireFromString("100"),
		Currency:    "TRY",
		CallbackURL: "https://acme.example.com/orders/2002/hook",
	})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	rig.payWithCard(t, session.Token, payerCard)

	for _, j := range rig.jobs.Snapshot() {
		if j.Type != jobs.TypeWebhook {
			continue
		}
		var p jobs.WebhookPayload
		if err := jobs.DecodePayload(j, &p); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if p.URL != "https://acme.example.com/orders/2002/hook" {
			t.Errorf("webhook url = %s, want the per-session callback", p.URL)
		}
		return
	}
	t.Fatal("no webhook job queued")
}

func TestCheckoutExternalCardDrawsFromVault(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()
	m := rig.seedMerchant(t, "0")
	if err := rig.vault.Credit(ctx, engine.VaultMain, "TRY", decimal.RequireFromString("10000")); err != nil {
		t.Fatalf("seed vault: %v", err)
	}

	external, err := card.GenerateNumber("5")
	if err != nil {
		t.Fatalf("external number: %v", err)
	}

	session := rig.checkout(t, m, "200")
	armed, err := rig.svc.ProcessCardPayment(ctx, CardInput{
		Token: session.Token, CardNumber: external, CVV: "999",
		ExpiryMonth: 12, ExpiryYear: time.Now().Year() + 2,
	})
	if err != nil {
		t.Fatalf("process card: %v", err)
	}
	if armed.CardInternal {
		t.Fatal("external card flagged internal")
	}
	if _, err := rig.svc.Verify3DSecure(ctx, session.Token, armed.OTP); err != nil {
		t.Fatalf("verify: %v", err)
	}

	main, _ := rig.vault.Balance(ctx, engine.VaultMain, "TRY")
	if main.StringFixed(2) != "9800.00" {
		t.Errorf("main vault = %s, want 9800.00", main.StringFixed(2))
	}
	if got := rig.merchantTRY(t, m).Balance.StringFixed(2); got != "195.00" {
		t.Errorf("merchant balance = %s, want 195.00", got)
	}
}

func TestWrongOTPExhaustsAttempts(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()
	m := rig.seedMerchant(t, "0")
	payerCard, payerWallet := rig.seedPayerCard(t, "1000")

	session := rig.checkout(t, m, "100")
	armed, err := rig.svc.ProcessCardPayment(ctx, CardInput{
		Token: session.Token, CardNumber: payerCard.Number, CVV: "123",
		ExpiryMonth: payerCard.ExpiryMonth, ExpiryYear: payerCard.ExpiryYear,
	})
	if err != nil {
		t.Fatalf("process card: %v", err)
	}
	wrong := "000000"
	if wrong == armed.OTP {
		wrong = "000001"
	}

	for i := 0; i < 2; i++ {
		if _, err := rig.svc.Verify3DSecure(ctx, session.Token, wrong); !errors.Is(err, ErrInvalidOTP) {
			t.Fatalf("attempt %d: err = %v, want ErrInvalidOTP", i+1, err)
		}
	}
	failed, err := rig.svc.Verify3DSecure(ctx, session.Token, wrong)
	if !errors.Is(err, ErrOTPAttempts) {
		t.Fatalf("third attempt: err = %v, want ErrOTPAttempts", err)
	}
	if failed.Status != StatusFailed {
		t.Errorf("status = %s, want failed", failed.Status)
	}

	// The session is terminal even with the right code.
	if _, err := rig.svc.Verify3DSecure(ctx, session.Token, armed.OTP); !errors.Is(err, ErrWrongState) {
		t.Errorf("post-failure verify: err = %v, want ErrWrongState", err)
	}
	if got, _ := rig.wallets.Get(ctx, payerWallet.ID); got.Balance.StringFixed(2) != "1000.00" {
		t.Errorf("payer balance = %s, want untouched 1000.00", got.Balance.StringFixed(2))
	}
}

func TestOTPExpires(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()
	m := rig.seedMerchant(t, "0")
	payerCard, _ := rig.seedPayerCard(t, "1000")

	now := time.Now().UTC()
	rig.svc.nowFn = func() time.Time { return now }

	session := rig.checkout(t, m, "100")
	armed, err := rig.svc.ProcessCardPayment(ctx, CardInput{
		Token: session.Token, CardNumber: payerCard.Number, CVV: "123",
		ExpiryMonth: payerCard.ExpiryMonth, ExpiryYear: payerCard.ExpiryYear,
	})
	if err != nil {
		t.Fatalf("process card: %v", err)
	}

	now = now.Add(6 * time.Minute)
	stale, err := rig.svc.Verify3DSecure(ctx, session.Token, armed.OTP)
	if !errors.Is(err, ErrOTPExpired) {
		t.Fatalf("err = %v, want ErrOTPExpired", err)
	}
	// A stale code is not terminal: the session keeps waiting until its own
	// checkout window closes.
	if stale.Status != StatusPending3D {
		t.Errorf("status = %s, want pending_3d", stale.Status)
	}
}

func TestSessionExpiresLazily(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()
	m := rig.seedMerchant(t, "0")
	payerCard, _ := rig.seedPayerCard(t, "1000")

	now := time.Now().UTC()
	rig.svc.nowFn = func() time.Time { return now }

	session := rig.checkout(t, m, "100")
	now = now.Add(31 * time.Minute)

	got, err := rig.svc.Session(ctx, session.Token)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if got.Status != StatusExpired {
		t.Fatalf("status = %s, want expired", got.Status)
	}

	_, err = rig.svc.ProcessCardPayment(ctx, CardInput{
		Token: session.Token, CardNumber: payerCard.Number, CVV: "123",
	})
	if !errors.Is(err, ErrSessionExpired) {
		t.Errorf("err = %v, want ErrSessionExpired", err)
	}
}

func TestInitiateHonorsMerchantDailyLimit(t *testing.T) {
	rig := newRig(t)
	m := rig.seedMerchant(t, "1000")
	payerCard, _ := rig.seedPayerCard(t, "2000")

	// Settle 900 of volume first.
	session := rig.checkout(t, m, "900")
	rig.payWithCard(t, session.Token, payerCard)

	_, err := rig.svc.Initiate(context.Background(), m, InitiateInput{
		Amount:   decimal.RequireFromString("200"),
		Currency: "TRY",
	})
	if !errors.Is(err, merchant.ErrDailyLimitExceeded) {
		t.Fatalf("err = %v, want ErrDailyLimitExceeded", err)
	}
}

func TestRefundInternalCard(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()
	m := rig.seedMerchant(t, "0")
	payerCard, payerWallet := rig.seedPayerCard(t, "1000")

	session := rig.checkout(t, m, "150")
	settled := rig.payWithCard(t, session.Token, payerCard)

	tx, err := rig.svc.Refund(ctx, m, *settled.TransactionID, decimal.RequireFromString("50"), "customer request")
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if tx.Type != engine.TypeRefund || tx.Status != engine.StatusCompleted {
		t.Fatalf("refund tx = %+v", tx)
	}
	if tx.Description != "customer request" {
		t.Errorf("reason = %q, want customer request", tx.Description)
	}

	// Merchant returns the gross 50; the platform keeps its commission.
	if got := rig.merchantTRY(t, m).Balance.StringFixed(2); got != "96.25" {
		t.Errorf("merchant balance = %s, want 96.25", got)
	}
	if got, _ := rig.wallets.Get(ctx, payerWallet.ID); got.Balance.StringFixed(2) != "900.00" {
		t.Errorf("payer balance = %s, want 900.00", got.Balance.StringFixed(2))
	}

	refunded, err := rig.svc.Session(ctx, session.Token)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if refunded.Status != StatusRefunded || refunded.RefundedTxID == nil {
		t.Errorf("session = %+v, want refunded with tx id", refunded)
	}

	// Only completed sessions can refund.
	if _, err := rig.svc.Refund(ctx, m, *settled.TransactionID, decimal.RequireFromString("10"), ""); !errors.Is(err, ErrWrongState) {
		t.Errorf("second refund: err = %v, want ErrWrongState", err)
	}
}

func TestRefundExternalCardReturnsToVault(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()
	m := rig.seedMerchant(t, "0")
	if err := rig.vault.Credit(ctx, engine.VaultMain, "TRY", decimal.RequireFromString("10000")); err != nil {
		t.Fatalf("seed vault: %v", err)
	}

	external, err := card.GenerateNumber("5")
	if err != nil {
		t.Fatalf("external number: %v", err)
	}
	session := rig.checkout(t, m, "200")
	armed, err := rig.svc.ProcessCardPayment(ctx, CardInput{
		Token: session.Token, CardNumber: external, CVV: "999",
		ExpiryMonth: 12, ExpiryYear: time.Now().Year() + 2,
	})
	if err != nil {
		t.Fatalf("process card: %v", err)
	}
	done, err := rig.svc.Verify3DSecure(ctx, session.Token, armed.OTP)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}

	// A zero amount refunds the full original payment.
	refund, err := rig.svc.Refund(ctx, m, *done.TransactionID, decimal.Zero, "order cancelled")
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if refund.Amount.StringFixed(2) != "200.00" {
		t.Errorf("refund amount = %s, want full 200.00", refund.Amount.StringFixed(2))
	}
	main, _ := rig.vault.Balance(ctx, engine.VaultMain, "TRY")
	if main.StringFixed(2) != "10000.00" {
		t.Errorf("main vault = %s, want restored 10000.00", main.StringFixed(2))
	}
}

func TestRefundOverOriginalAmount(t *testing.T) {
	rig := newRig(t)
	m := rig.seedMerchant(t, "0")
	payerCard, _ := rig.seedPayerCard(t, "1000")

	session := rig.checkout(t, m, "150")
	settled := rig.payWithCard(t, session.Token, payerCard)

	_, err := rig.svc.Refund(context.Background(), m, *settled.TransactionID, decimal.RequireFromString("150.01"), "")
	if !errors.Is(err, ErrRefundTooLarge) {
		t.Fatalf("err = %v, want ErrRefundTooLarge", err)
	}
}

func TestInternalCardCurrencyMustMatch(t *testing.T) {
	rig := newRig(t)
	m := rig.seedMerchant(t, "0")
	payerCard, _ := rig.seedPayerCard(t, "1000") // TRY wallet card

	session, err := rig.svc.Initiate(context.Background(), m, InitiateInput{
		Amount:   decimal.RequireFromString("100"),
		Currency: "USD",
	})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}

	_, err = rig.svc.ProcessCardPayment(context.Background(), CardInput{
		Token: session.Token, CardNumber: payerCard.Number, CVV: "123",
		ExpiryMonth: payerCard.ExpiryMonth, ExpiryYear: payerCard.ExpiryYear,
	})
	if !errors.Is(err, ErrCurrencyMismatch) {
		t.Fatalf("err = %v, want ErrCurrencyMismatch", err)
	}
}
