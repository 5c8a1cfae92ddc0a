package gateway

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlas-pay/atlas_pay/internal/storage"
)

// ErrSessionNotFound indicates no session exists for the token.
var ErrSessionNotFound = errors.New("checkout session not found")

// Repository persists checkout sessions.
type Repository interface {
	Create(ctx context.Context, s Session) error
	FindByToken(ctx context.Context, token string) (Session, error)
	FindByTransaction(ctx context.Context, transactionID string) (Session, error)
	Update(ctx context.Context, s Session) error
}

// PostgresRepository stores sessions in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const sessionColumns = `id, token, merchant_id, order_id, amount, currency, description, status,
    customer_name, customer_email, success_url, cancel_url, callback_url,
    card_last_four, card_brand, card_internal, card_id,
    otp, otp_expires_at, otp_attempts, transaction_id, refunded_tx_id, failure_reason,
    expires_at, created_at`

// Create inserts a session record.
func (r *PostgresRepository) Create(ctx context.Context, s Session) error {
	_, err := storage.Q(ctx, r.db).Exec(ctx, `INSERT INTO checkout_sessions (`+sessionColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18,
                $19, $20, $21, $22, $23, $24, $25)`,
		s.ID, s.Token, s.MerchantID, s.OrderID, s.Amount, s.Currency, s.Description, s.Status,
		s.CustomerName, s.CustomerEmail, s.SuccessURL, s.CancelURL, s.CallbackURL,
		s.CardLastFour, s.CardBrand, s.CardInternal, s.CardID,
		s.OTP, s.OTPExpiresAt, s.OTPAttempts, s.TransactionID, s.RefundedTxID, s.FailureReason,
		s.ExpiresAt, s.CreatedAt)
	return err
}

// FindByToken fetches a session by its public token.
func (r *PostgresRepository) FindByToken(ctx context.Context, token string) (Session, error) {
	return r.findOne(ctx, `SELECT `+sessionColumns+` FROM checkout_sessions WHERE token = $1`, token)
}

// FindByTransaction fetches the session settled by a payment transaction.
func (r *PostgresRepository) FindByTransaction(ctx context.Context, transactionID string) (Session, error) {
	return r.findOne(ctx, `SELECT `+sessionColumns+` FROM checkout_sessions WHERE transaction_id = $1`, transactionID)
}

func (r *PostgresRepository) findOne(ctx context.Context, sql string, arg any) (Session, error) {
	var s Session
	err := storage.Q(ctx, r.db).QueryRow(ctx, sql, arg).
		Scan(&s.ID, &s.Token, &s.MerchantID, &s.OrderID, &s.Amount, &s.Currency, &s.Description, &s.Status,
			&s.CustomerName, &s.CustomerEmail, &s.SuccessURL, &s.CancelURL, &s.CallbackURL,
			&s.CardLastFour, &s.CardBrand, &s.CardInternal, &s.CardID,
			&s.OTP, &s.OTPExpiresAt, &s.OTPAttempts, &s.TransactionID, &s.RefundedTxID, &s.FailureReason,
			&s.ExpiresAt, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, err
	}
	s.ExpiresAt = s.ExpiresAt.UTC()
	s.CreatedAt = s.CreatedAt.UTC()
	return s, nil
}

// Update rewrites a session's mutable state.
func (r *PostgresRepository) Update(ctx context.Context, s Session) error {
	tag, err := storage.Q(ctx, r.db).Exec(ctx, `UPDATE checkout_sessions SET
        status = $1, card_last_four = $2, card_brand = $3, card_internal = $4, card_id = $5,
        otp = $6, otp_expires_at = $7, otp_attempts = $8, transaction_id = $9,
        refunded_tx_id = $10, failure_reason = $11
        WHERE id = $12`,
		s.Status, s.CardLastFour, s.CardBrand, s.CardInternal, s.CardID,
		s.OTP, s.OTPExpiresAt, s.OTPAttempts, s.TransactionID,
		s.RefundedTxID, s.FailureReason, s.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}
