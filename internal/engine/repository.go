package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atlas-pay/atlas_pay/internal/storage"
)

var (
	// ErrNotFound indicates no transaction exists for the identifier.
	ErrNotFound = errors.New("transaction not found")
	// ErrDuplicateKey indicates another transaction already holds the
	// idempotency key.
	ErrDuplicateKey = errors.New("idempotency key already used")
)

// Repository persists transactions. It also answers the activity queries the
// fraud rules and merchant limits run on.
type Repository interface {
	Create(ctx context.Context, tx Transaction) error
	Get(ctx context.Context, id string) (Transaction, error)
	FindByIdempotencyKey(ctx context.Context, key string) (Transaction, error)
	Complete(ctx context.Context, id string, completedAt time.Time) error
	Fail(ctx context.Context, id, reason string) error
	Approve(ctx context.Context, id, adminID string) error
	UpdateStatus(ctx context.Context, id, status string) error
	SetConversion(ctx context.Context, id string, rate, converted decimal.Decimal, convertedCurrency string) error
	ListByUser(ctx context.Context, userID string, limit int) ([]Transaction, error)
	PendingApprovals(ctx context.Context) ([]Transaction, error)

	// fraud.TransactionStats
	DailyOutgoingSum(ctx context.Context, userID string, day time.Time) (decimal.Decimal, error)
	CountSince(ctx context.Context, userID string, since time.Time) (int, error)
	CountToRecipientSince(ctx context.Context, userID, recipientID string, since time.Time) (int, error)
	HighValueCountSince(ctx context.Context, userID string, threshold decimal.Decimal, since time.Time) (int, error)

	// merchant.SettledVolume
	MerchantDailyTotal(ctx context.Context, merchantID string, day time.Time) (decimal.Decimal, error)
	MerchantMonthlyTotal(ctx context.Context, merchantID string, month time.Time) (decimal.Decimal, error)
}

// PostgresRepository stores transactions in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const txColumns = `id, reference_id, user_id, tx_type, status, amount, currency, fee,
    from_wallet_id, to_wallet_id, recipient_id, merchant_id, idempotency_key,
    exchange_rate, converted_amount, converted_currency, description,
    approved_by, failure_reason, created_at, completed_at`

// Create inserts a transaction record. A unique violation on the idempotency
// key maps to ErrDuplicateKey so callers can replay the winning row.
func (r *PostgresRepository) Create(ctx context.Context, t Transaction) error {
	_, err := storage.Q(ctx, r.db).Exec(ctx, `INSERT INTO transactions (`+txColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		t.ID, t.ReferenceID, t.UserID, t.Type, t.Status, t.Amount, t.Currency, t.Fee,
		t.FromWalletID, t.ToWalletID, t.RecipientID, t.MerchantID, t.IdempotencyKey,
		t.ExchangeRate, t.ConvertedAmount, t.ConvertedCurrency, t.Description,
		t.ApprovedBy, t.FailureReason, t.CreatedAt, t.CompletedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" &&
		strings.Contains(pgErr.ConstraintName, "idempotency") {
		return ErrDuplicateKey
	}
	return err
}

// Get fetches a transaction by id.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Transaction, error) {
	return scanTransaction(storage.Q(ctx, r.db).QueryRow(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE id = $1`, id))
}

// FindByIdempotencyKey fetches the transaction created under key. Keys are
// globally unique, not per user.
func (r *PostgresRepository) FindByIdempotencyKey(ctx context.Context, key string) (Transaction, error) {
	return scanTransaction(storage.Q(ctx, r.db).QueryRow(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE idempotency_key = $1`, key))
}

// Complete marks a transaction completed.
func (r *PostgresRepository) Complete(ctx context.Context, id string, completedAt time.Time) error {
	return r.exec(ctx, `UPDATE transactions SET status = $1, completed_at = $2 WHERE id = $3`,
		StatusCompleted, completedAt, id)
}

// Fail marks a transaction failed with a reason.
func (r *PostgresRepository) Fail(ctx context.Context, id, reason string) error {
	return r.exec(ctx, `UPDATE transactions SET status = $1, failure_reason = $2 WHERE id = $3`,
		StatusFailed, reason, id)
}

// Approve records the approving admin and moves the transaction to processing.
func (r *PostgresRepository) Approve(ctx context.Context, id, adminID string) error {
	return r.exec(ctx, `UPDATE transactions SET status = $1, approved_by = $2 WHERE id = $3 AND status = $4`,
		StatusProcessing, adminID, id, StatusRequiresApproval)
}

// UpdateStatus sets the status column.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id, status string) error {
	return r.exec(ctx, `UPDATE transactions SET status = $1 WHERE id = $2`, status, id)
}

// SetConversion records the exchange rate applied at execution time.
func (r *PostgresRepository) SetConversion(ctx context.Context, id string, rate, converted decimal.Decimal, convertedCurrency string) error {
	return r.exec(ctx,
		`UPDATE transactions SET exchange_rate = $1, converted_amount = $2, converted_currency = $3 WHERE id = $4`,
		rate, converted, convertedCurrency, id)
}

// ListByUser returns the user's most recent transactions.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	rows, err := storage.Q(ctx, r.db).Query(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// PendingApprovals returns transactions waiting on an admin, oldest first.
func (r *PostgresRepository) PendingApprovals(ctx context.Context) ([]Transaction, error) {
	rows, err := storage.Q(ctx, r.db).Query(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE status = $1 ORDER BY created_at`, StatusRequiresApproval)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// DailyOutgoingSum totals the user's outgoing volume for the calendar day.
// Only movements that did or will move money count; held and failed rows do
// not, so an approval re-check does not double-count the row being approved.
func (r *PostgresRepository) DailyOutgoingSum(ctx context.Context, userID string, day time.Time) (decimal.Decimal, error) {
	start := day.Truncate(24 * time.Hour)
	var sum decimal.Decimal
	err := storage.Q(ctx, r.db).QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM transactions
         WHERE user_id = $1 AND tx_type IN ($2, $3, $4)
           AND status IN ($5, $6, $7) AND created_at >= $8`,
		userID, TypeTransfer, TypeWithdrawal, TypeExchange,
		StatusCompleted, StatusProcessing, StatusPending, start).Scan(&sum)
	return sum, err
}

// CountSince counts the user's transactions created since the cutoff.
func (r *PostgresRepository) CountSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var n int
	err := storage.Q(ctx, r.db).QueryRow(ctx,
		`SELECT COUNT(*) FROM transactions WHERE user_id = $1 AND created_at >= $2`,
		userID, since).Scan(&n)
	return n, err
}

// CountToRecipientSince counts transfers from a user to one recipient.
func (r *PostgresRepository) CountToRecipientSince(ctx context.Context, userID, recipientID string, since time.Time) (int, error) {
	var n int
	err := storage.Q(ctx, r.db).QueryRow(ctx,
		`SELECT COUNT(*) FROM transactions
         WHERE user_id = $1 AND recipient_id = $2 AND created_at >= $3`,
		userID, recipientID, since).Scan(&n)
	return n, err
}

// HighValueCountSince counts the user's transactions above a threshold.
func (r *PostgresRepository) HighValueCountSince(ctx context.Context, userID string, threshold decimal.Decimal, since time.Time) (int, error) {
	var n int
	err := storage.Q(ctx, r.db).QueryRow(ctx,
		`SELECT COUNT(*) FROM transactions WHERE user_id = $1 AND amount > $2 AND created_at >= $3`,
		userID, threshold, since).Scan(&n)
	return n, err
}

// MerchantDailyTotal sums the merchant's completed payments for the day.
func (r *PostgresRepository) MerchantDailyTotal(ctx context.Context, merchantID string, day time.Time) (decimal.Decimal, error) {
	start := day.Truncate(24 * time.Hour)
	return r.merchantTotalSince(ctx, merchantID, start)
}

// MerchantMonthlyTotal sums the merchant's completed payments for the month.
func (r *PostgresRepository) MerchantMonthlyTotal(ctx context.Context, merchantID string, month time.Time) (decimal.Decimal, error) {
	start := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	return r.merchantTotalSince(ctx, merchantID, start)
}

func (r *PostgresRepository) merchantTotalSince(ctx context.Context, merchantID string, since time.Time) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := storage.Q(ctx, r.db).QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM transactions
         WHERE merchant_id = $1 AND tx_type = $2 AND status = $3 AND created_at >= $4`,
		merchantID, TypePayment, StatusCompleted, since).Scan(&sum)
	return sum, err
}

func (r *PostgresRepository) exec(ctx context.Context, sql string, args ...any) error {
	tag, err := storage.Q(ctx, r.db).Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var t Transaction
	err := row.Scan(&t.ID, &t.ReferenceID, &t.UserID, &t.Type, &t.Status, &t.Amount, &t.Currency, &t.Fee,
		&t.FromWalletID, &t.ToWalletID, &t.RecipientID, &t.MerchantID, &t.IdempotencyKey,
		&t.ExchangeRate, &t.ConvertedAmount, &t.ConvertedCurrency, &t.Description,
		&t.ApprovedBy, &t.FailureReason, &t.CreatedAt, &t.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrNotFound
		}
		return Transaction{}, err
	}
	t.CreatedAt = t.CreatedAt.UTC()
	return t, nil
}

func collectTransactions(rows pgx.Rows) ([]Transaction, error) {
	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
