// Package engine moves money. Every transfer, deposit, withdrawal and
// exchange runs through one pipeline: idempotency check, fraud gate,
// approval gate, then an atomic balance mutation with a balanced ledger
// posting pair.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atlas-pay/atlas_pay/internal/audit"
	"github.com/atlas-pay/atlas_pay/internal/fraud"
	"github.com/atlas-pay/atlas_pay/internal/identity"
	"github.com/atlas-pay/atlas_pay/internal/jobs"
	"github.com/atlas-pay/atlas_pay/internal/ledger"
	"github.com/atlas-pay/atlas_pay/internal/money"
	"github.com/atlas-pay/atlas_pay/internal/rates"
	"github.com/atlas-pay/atlas_pay/internal/storage"
	"github.com/atlas-pay/atlas_pay/internal/wallet"
)

var (
	// ErrDenied is returned when the fraud gate blocks a movement.
	ErrDenied = errors.New("transaction denied")
	// ErrNotOwner is returned when a wallet does not belong to the caller.
	ErrNotOwner = errors.New("wallet does not belong to user")
	// ErrSameWallet is returned for transfers from a wallet to itself.
	ErrSameWallet = errors.New("source and destination wallets are the same")
	// ErrAmountTooLarge is returned when a single movement exceeds the
	// platform maximum.
	ErrAmountTooLarge = errors.New("amount exceeds single transaction maximum")
	// ErrNotApprovable is returned when approving a transaction that is not
	// waiting on an admin.
	ErrNotApprovable = errors.New("transaction is not awaiting approval")
	// ErrNotAdmin is returned when a non-admin acts on the approval queue.
	ErrNotAdmin = errors.New("approver must be a super admin")
	// ErrUserInactive is returned when a suspended account tries to move money.
	ErrUserInactive = errors.New("sender account is not active")
)

// Limits are the engine's value thresholds.
type Limits struct {
	ApprovalThreshold decimal.Decimal
	MaxSingleTransfer decimal.Decimal
}

// Deps collects the engine's collaborators.
type Deps struct {
	Runner  storage.Runner
	Txs     Repository
	Wallets wallet.Repository
	Balance *wallet.Service
	Rates   *rates.Service
	Fraud   *fraud.Service
	Ledger  *ledger.Recorder
	Vault   Vault
	Audit   *audit.Sink
	Queue   jobs.Queue
	Users   identity.Repository
	Logger  *slog.Logger
	Limits  Limits
}

// Engine executes money movements.
type Engine struct {
	Deps
	nowFn func() time.Time
}

// New creates the transaction engine.
func New(deps Deps) *Engine {
	return &Engine{Deps: deps, nowFn: func() time.Time { return time.Now().UTC() }}
}

// TransferInput describes a wallet-to-wallet transfer.
type TransferInput struct {
	UserID         string
	FromWalletID   string
	ToWalletID     string
	Amount         decimal.Decimal
	Description    string
	IdempotencyKey string
}

// Transfer moves funds between two wallets, converting across currencies.
// The bool result reports a replayed idempotent request: the returned
// transaction is the original and nothing moved again.
func (e *Engine) Transfer(ctx context.Context, input TransferInput) (Transaction, bool, error) {
	return e.submit(ctx, TypeTransfer, input)
}

// ExchangeInput describes a currency exchange between one user's wallets.
type ExchangeInput = TransferInput

// Exchange converts funds between two wallets of the same user. It rides the
// transfer pipeline, including the fraud and approval gates.
func (e *Engine) Exchange(ctx context.Context, input ExchangeInput) (Transaction, bool, error) {
	fromW, err := e.Wallets.Get(ctx, input.FromWalletID)
	if err != nil {
		return Transaction{}, false, err
	}
	toW, err := e.Wallets.Get(ctx, input.ToWalletID)
	if err != nil {
		return Transaction{}, false, err
	}
	if fromW.UserID != toW.UserID {
		return Transaction{}, false, errors.New("exchange wallets must share an owner")
	}
	if fromW.Currency == toW.Currency {
		return Transaction{}, false, errors.New("exchange requires two different currencies")
	}
	return e.submit(ctx, TypeExchange, input)
}

func (e *Engine) submit(ctx context.Context, txType string, input TransferInput) (Transaction, bool, error) {
	if !money.IsPositive(input.Amount) {
		return Transaction{}, false, wallet.ErrInvalidAmount
	}
	amount := money.Round2(input.Amount)
	if input.FromWalletID == input.ToWalletID {
		return Transaction{}, false, ErrSameWallet
	}

	if input.IdempotencyKey != "" {
		existing, err := e.Txs.FindByIdempotencyKey(ctx, input.IdempotencyKey)
		if err == nil {
			return existing, true, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Transaction{}, false, err
		}
	}

	fromW, err := e.Wallets.Get(ctx, input.FromWalletID)
	if err != nil {
		return Transaction{}, false, fmt.Errorf("source wallet: %w", err)
	}
	if fromW.UserID != input.UserID {
		return Transaction{}, false, ErrNotOwner
	}
	toW, err := e.Wallets.Get(ctx, input.ToWalletID)
	if err != nil {
		return Transaction{}, false, fmt.Errorf("destination wallet: %w", err)
	}

	sender, err := e.Users.FindByID(ctx, input.UserID)
	if err != nil {
		return Transaction{}, false, fmt.Errorf("source user: %w", err)
	}
	if !sender.IsActive() {
		return Transaction{}, false, ErrUserInactive
	}

	tx := e.newTransaction(txType, input, amount, fromW, toW)

	var recipientID string
	if toW.UserID != fromW.UserID {
		recipientID = toW.UserID
	}
	decision, err := e.Fraud.CheckTransfer(ctx, fraud.TransferInput{
		UserID:      input.UserID,
		RecipientID: recipientID,
		Amount:      amount,
	})
	if err != nil {
		return Transaction{}, false, fmt.Errorf("fraud check: %w", err)
	}
	if !decision.Allowed {
		tx.Status = StatusFailed
		tx.FailureReason = &decision.Reason
		if err := e.Txs.Create(ctx, tx); err != nil {
			if existing, ok := e.replayOnConflict(ctx, input.IdempotencyKey, err); ok {
				return existing, true, nil
			}
			return Transaction{}, false, err
		}
		return tx, false, fmt.Errorf("%w: %s", ErrDenied, decision.Reason)
	}

	if e.Limits.ApprovalThreshold.GreaterThan(decimal.Zero) && amount.GreaterThanOrEqual(e.Limits.ApprovalThreshold) {
		tx.Status = StatusRequiresApproval
		if err := e.Txs.Create(ctx, tx); err != nil {
			if existing, ok := e.replayOnConflict(ctx, input.IdempotencyKey, err); ok {
				return existing, true, nil
			}
			return Transaction{}, false, err
		}
		e.notifyAdmins(ctx, tx)
		e.Audit.Log(ctx, "transaction.requires_approval", tx.UserID, audit.RiskMedium, map[string]any{
			"transaction_id": tx.ID,
			"amount":         amount.StringFixed(2),
		})
		return tx, false, nil
	}

	if err := e.execute(ctx, &tx, true); err != nil {
		if existing, ok := e.replayOnConflict(ctx, input.IdempotencyKey, err); ok {
			return existing, true, nil
		}
		return Transaction{}, false, err
	}
	e.afterCompletion(ctx, tx, toW.UserID)
	return tx, false, nil
}

// replayOnConflict resolves a lost race on the idempotency key: when two
// requests with the same key pass the duplicate check together, the slower
// insert hits the unique constraint and the winner's row is returned instead.
func (e *Engine) replayOnConflict(ctx context.Context, key string, err error) (Transaction, bool) {
	if key == "" || !errors.Is(err, ErrDuplicateKey) {
		return Transaction{}, false
	}
	existing, findErr := e.Txs.FindByIdempotencyKey(ctx, key)
	if findErr != nil {
		return Transaction{}, false
	}
	return existing, true
}

func (e *Engine) newTransaction(txType string, input TransferInput, amount decimal.Decimal, fromW, toW wallet.Wallet) Transaction {
	now := e.nowFn()
	tx := Transaction{
		ID:           uuid.NewString(),
		ReferenceID:  NewReferenceID(now),
		UserID:       input.UserID,
		Type:         txType,
		Status:       StatusProcessing,
		Amount:       amount,
		Currency:     fromW.Currency,
		Fee:          decimal.Zero,
		FromWalletID: &input.FromWalletID,
		ToWalletID:   &input.ToWalletID,
		Description:  input.Description,
		CreatedAt:    now,
	}
	if toW.UserID != fromW.UserID {
		recipient := toW.UserID
		tx.RecipientID = &recipient
	}
	if input.IdempotencyKey != "" {
		key := input.IdempotencyKey
		tx.IdempotencyKey = &key
	}
	return tx
}

// execute runs the locked balance mutation for a two-wallet transaction.
// When create is true the transaction row is inserted inside the same unit,
// so a failed execution leaves no row; otherwise the existing row is
// completed in place.
func (e *Engine) execute(ctx context.Context, tx *Transaction, create bool) error {
	return e.Runner.WithinTx(ctx, func(ctx context.Context) error {
		if create {
			if err := e.Txs.Create(ctx, *tx); err != nil {
				return err
			}
		}

		// Lock in ascending wallet id order so concurrent transfers between
		// the same pair cannot deadlock.
		ids := []string{*tx.FromWalletID, *tx.ToWalletID}
		sort.Strings(ids)
		locked := make(map[string]wallet.Wallet, 2)
		for _, id := range ids {
			w, err := e.Wallets.GetForUpdate(ctx, id)
			if err != nil {
				return err
			}
			locked[id] = w
		}
		fromW := locked[*tx.FromWalletID]
		toW := locked[*tx.ToWalletID]

		if !fromW.IsActive() || !toW.IsActive() {
			return wallet.ErrWalletInactive
		}
		if fromW.Available.LessThan(tx.Amount) {
			return wallet.ErrInsufficientBalance
		}

		converted := tx.Amount
		rate := decimal.NewFromInt(1)
		if fromW.Currency != toW.Currency {
			var err error
			converted, rate, err = e.Rates.Convert(ctx, tx.Amount, fromW.Currency, toW.Currency)
			if err != nil {
				return fmt.Errorf("convert: %w", err)
			}
			if err := e.Txs.SetConversion(ctx, tx.ID, rate, converted, toW.Currency); err != nil {
				return err
			}
			tx.ExchangeRate = &rate
			tx.ConvertedAmount = &converted
			currency := toW.Currency
			tx.ConvertedCurrency = &currency
		}

		if err := e.Wallets.UpdateBalances(ctx, fromW.ID,
			fromW.Balance.Sub(tx.Amount), fromW.Available.Sub(tx.Amount), fromW.Pending); err != nil {
			return err
		}
		if err := e.Wallets.UpdateBalances(ctx, toW.ID,
			toW.Balance.Add(converted), toW.Available.Add(converted), toW.Pending); err != nil {
			return err
		}

		err := e.Ledger.Record(ctx, tx.ID,
			ledger.Posting{
				WalletID:      fromW.ID,
				Amount:        tx.Amount,
				BalanceBefore: fromW.Balance,
				BalanceAfter:  fromW.Balance.Sub(tx.Amount),
				Description:   tx.Description,
			},
			ledger.Posting{
				WalletID:      toW.ID,
				Amount:        converted,
				BalanceBefore: toW.Balance,
				BalanceAfter:  toW.Balance.Add(converted),
				Description:   tx.Description,
			})
		if err != nil {
			return err
		}

		completedAt := e.nowFn()
		if err := e.Txs.Complete(ctx, tx.ID, completedAt); err != nil {
			return err
		}
		tx.Status = StatusCompleted
		tx.CompletedAt = &completedAt
		return nil
	})
}

// afterCompletion records the audit trail and queues notifications. These
// are post-commit and never fail the movement itself.
func (e *Engine) afterCompletion(ctx context.Context, tx Transaction, recipientUserID string) {
	e.Audit.Transaction(ctx, tx.UserID, tx.ID, tx.Type, tx.Amount)
	if recipientUserID != "" && recipientUserID != tx.UserID {
		err := jobs.DispatchNotification(ctx, e.Queue, jobs.NotificationPayload{
			UserID:  recipientUserID,
			Subject: "Funds received",
			Message: fmt.Sprintf("You received a %s of %s %s (%s)", tx.Type, tx.Amount.StringFixed(2), tx.Currency, tx.ReferenceID),
		})
		if err != nil {
			e.Logger.Error("dispatch notification failed", "transaction_id", tx.ID, "error", err)
		}
	}
}

// notifyAdmins queues an approval-request notification for the admin.
func (e *Engine) notifyAdmins(ctx context.Context, tx Transaction) {
	admin, err := e.Users.FindAdmin(ctx)
	if err != nil {
		e.Logger.Warn("no admin to notify for approval", "transaction_id", tx.ID, "error", err)
		return
	}
	err = jobs.DispatchNotification(ctx, e.Queue, jobs.NotificationPayload{
		UserID:  admin.ID,
		Subject: "Transaction approval required",
		Message: fmt.Sprintf("Transaction %s for %s %s requires approval", tx.ReferenceID, tx.Amount.StringFixed(2), tx.Currency),
	})
	if err != nil {
		e.Logger.Error("dispatch approval notification failed", "transaction_id", tx.ID, "error", err)
	}
}

// Approve lets a super admin release a held transaction. The transfer
// re-runs live: fraud rules and balances are evaluated at approval time, not
// at submission time.
func (e *Engine) Approve(ctx context.Context, txID, adminID string) (Transaction, error) {
	admin, err := e.Users.FindByID(ctx, adminID)
	if err != nil {
		return Transaction{}, err
	}
	if admin.Role != identity.RoleSuperAdmin {
		return Transaction{}, ErrNotAdmin
	}

	tx, err := e.Txs.Get(ctx, txID)
	if err != nil {
		return Transaction{}, err
	}
	if tx.Status != StatusRequiresApproval {
		return Transaction{}, ErrNotApprovable
	}

	var recipientID string
	if tx.RecipientID != nil {
		recipientID = *tx.RecipientID
	}
	decision, err := e.Fraud.CheckTransfer(ctx, fraud.TransferInput{
		UserID:      tx.UserID,
		RecipientID: recipientID,
		Amount:      tx.Amount,
	})
	if err != nil {
		return Transaction{}, fmt.Errorf("fraud check: %w", err)
	}
	if !decision.Allowed {
		if err := e.Txs.Fail(ctx, tx.ID, decision.Reason); err != nil {
			return Transaction{}, err
		}
		return Transaction{}, fmt.Errorf("%w: %s", ErrDenied, decision.Reason)
	}

	if err := e.Txs.Approve(ctx, tx.ID, adminID); err != nil {
		return Transaction{}, err
	}
	tx.ApprovedBy = &adminID
	if err := e.execute(ctx, &tx, false); err != nil {
		if failErr := e.Txs.Fail(ctx, tx.ID, err.Error()); failErr != nil {
			e.Logger.Error("mark failed after approval error", "transaction_id", tx.ID, "error", failErr)
		}
		return Transaction{}, err
	}

	e.Audit.Log(ctx, "transaction.approved", adminID, audit.RiskMedium, map[string]any{
		"transaction_id": tx.ID,
		"amount":         tx.Amount.StringFixed(2),
	})
	e.afterCompletion(ctx, tx, recipientID)
	return tx, nil
}

// Reject cancels a held transaction without moving funds.
func (e *Engine) Reject(ctx context.Context, txID, adminID, reason string) (Transaction, error) {
	admin, err := e.Users.FindByID(ctx, adminID)
	if err != nil {
		return Transaction{}, err
	}
	if admin.Role != identity.RoleSuperAdmin {
		return Transaction{}, ErrNotAdmin
	}

	tx, err := e.Txs.Get(ctx, txID)
	if err != nil {
		return Transaction{}, err
	}
	if tx.Status != StatusRequiresApproval {
		return Transaction{}, ErrNotApprovable
	}
	if reason == "" {
		reason = "rejected by admin"
	}
	if err := e.Txs.Fail(ctx, tx.ID, reason); err != nil {
		return Transaction{}, err
	}
	tx.Status = StatusFailed
	tx.FailureReason = &reason

	e.Audit.Log(ctx, "transaction.rejected", adminID, audit.RiskMedium, map[string]any{
		"transaction_id": tx.ID,
		"reason":         reason,
	})
	err = jobs.DispatchNotification(ctx, e.Queue, jobs.NotificationPayload{
		UserID:  tx.UserID,
		Subject: "Transaction rejected",
		Message: fmt.Sprintf("Transaction %s was rejected: %s", tx.ReferenceID, reason),
	})
	if err != nil {
		e.Logger.Error("dispatch rejection notification failed", "transaction_id", tx.ID, "error", err)
	}
	return tx, nil
}

// DepositInput describes external funds entering a wallet.
type DepositInput struct {
	UserID      string
	WalletID    string
	Amount      decimal.Decimal
	Description string
}

// Deposit credits a wallet from the platform's main vault.
func (e *Engine) Deposit(ctx context.Context, input DepositInput) (Transaction, error) {
	return e.vaultMovement(ctx, TypeDeposit, input)
}

// Withdraw debits a wallet back into the platform's main vault.
func (e *Engine) Withdraw(ctx context.Context, input DepositInput) (Transaction, error) {
	return e.vaultMovement(ctx, TypeWithdrawal, input)
}

func (e *Engine) vaultMovement(ctx context.Context, txType string, input DepositInput) (Transaction, error) {
	if !money.IsPositive(input.Amount) {
		return Transaction{}, wallet.ErrInvalidAmount
	}
	amount := money.Round2(input.Amount)
	if e.Limits.MaxSingleTransfer.GreaterThan(decimal.Zero) && amount.GreaterThan(e.Limits.MaxSingleTransfer) {
		return Transaction{}, ErrAmountTooLarge
	}

	w, err := e.Wallets.Get(ctx, input.WalletID)
	if err != nil {
		return Transaction{}, err
	}
	if w.UserID != input.UserID {
		return Transaction{}, ErrNotOwner
	}

	now := e.nowFn()
	tx := Transaction{
		ID:          uuid.NewString(),
		ReferenceID: NewReferenceID(now),
		UserID:      input.UserID,
		Type:        txType,
		Status:      StatusProcessing,
		Amount:      amount,
		Currency:    w.Currency,
		Fee:         decimal.Zero,
		Description: input.Description,
		CreatedAt:   now,
	}
	walletID := input.WalletID
	vaultID := VaultWalletID(VaultMain, w.Currency)
	if txType == TypeDeposit {
		tx.ToWalletID = &walletID
	} else {
		tx.FromWalletID = &walletID
	}

	err = e.Runner.WithinTx(ctx, func(ctx context.Context) error {
		if err := e.Txs.Create(ctx, tx); err != nil {
			return err
		}

		var mut wallet.Mutation
		var debit, credit ledger.Posting
		switch txType {
		case TypeDeposit:
			if err := e.Vault.Debit(ctx, VaultMain, w.Currency, amount); err != nil {
				return err
			}
			mut, err = e.Balance.Credit(ctx, walletID, amount)
			if err != nil {
				return err
			}
			debit = ledger.Posting{WalletID: vaultID, Amount: amount, Description: input.Description}
			credit = ledger.Posting{
				WalletID: walletID, Amount: amount,
				BalanceBefore: mut.BalanceBefore, BalanceAfter: mut.BalanceAfter,
				Description: input.Description,
			}
		case TypeWithdrawal:
			mut, err = e.Balance.Debit(ctx, walletID, amount)
			if err != nil {
				return err
			}
			if err := e.Vault.Credit(ctx, VaultMain, w.Currency, amount); err != nil {
				return err
			}
			debit = ledger.Posting{
				WalletID: walletID, Amount: amount,
				BalanceBefore: mut.BalanceBefore, BalanceAfter: mut.BalanceAfter,
				Description: input.Description,
			}
			credit = ledger.Posting{WalletID: vaultID, Amount: amount, Description: input.Description}
		}

		if err := e.Ledger.Record(ctx, tx.ID, debit, credit); err != nil {
			return err
		}
		completedAt := e.nowFn()
		if err := e.Txs.Complete(ctx, tx.ID, completedAt); err != nil {
			return err
		}
		tx.Status = StatusCompleted
		tx.CompletedAt = &completedAt
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}

	e.Audit.Transaction(ctx, tx.UserID, tx.ID, tx.Type, tx.Amount)
	return tx, nil
}

// Get fetches a transaction.
func (e *Engine) Get(ctx context.Context, id string) (Transaction, error) {
	return e.Txs.Get(ctx, id)
}

// History returns a user's recent transactions.
func (e *Engine) History(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return e.Txs.ListByUser(ctx, userID, limit)
}

// PendingApprovals returns the approval queue, oldest first.
func (e *Engine) PendingApprovals(ctx context.Context) ([]Transaction, error) {
	return e.Txs.PendingApprovals(ctx)
}
