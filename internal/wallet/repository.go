package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atlas-pay/atlas_pay/internal/storage"
)

// ErrNotFound indicates no wallet exists for the identifier.
var ErrNotFound = errors.New("wallet not found")

// Repository persists wallets. GetForUpdate must be called inside an atomic
// unit; the returned row stays locked until that unit finishes.
type Repository interface {
	Create(ctx context.Context, wallet Wallet) error
	Get(ctx context.Context, id string) (Wallet, error)
	GetForUpdate(ctx context.Context, id string) (Wallet, error)
	UpdateBalances(ctx context.Context, id string, balance, available, pending decimal.Decimal) error
	FindByUserAndCurrency(ctx context.Context, userID, currency string) (Wallet, error)
	ListByUser(ctx context.Context, userID string) ([]Wallet, error)
	SetStatus(ctx context.Context, id, status string) error
}

// PostgresRepository stores wallets in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const walletColumns = `id, user_id, currency, balance, available_balance, pending_balance, is_default, status, created_at, updated_at`

// Create inserts a wallet record.
func (r *PostgresRepository) Create(ctx context.Context, w Wallet) error {
	_, err := storage.Q(ctx, r.db).Exec(ctx, `INSERT INTO wallets (`+walletColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		w.ID, w.UserID, w.Currency, w.Balance, w.Available, w.Pending, w.IsDefault, w.Status, w.CreatedAt, w.UpdatedAt)
	return err
}

// Get fetches a wallet without locking it.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Wallet, error) {
	return scanWallet(storage.Q(ctx, r.db).QueryRow(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE id = $1`, id))
}

// GetForUpdate locks the wallet row and returns its current state. Callers
// must never trust a pre-lock snapshot; this re-read is the authoritative one.
func (r *PostgresRepository) GetForUpdate(ctx context.Context, id string) (Wallet, error) {
	return scanWallet(storage.Q(ctx, r.db).QueryRow(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE id = $1 FOR UPDATE`, id))
}

// UpdateBalances writes the three balance columns for a locked wallet row.
func (r *PostgresRepository) UpdateBalances(ctx context.Context, id string, balance, available, pending decimal.Decimal) error {
	tag, err := storage.Q(ctx, r.db).Exec(ctx, `UPDATE wallets
        SET balance = $1, available_balance = $2, pending_balance = $3, updated_at = $4
        WHERE id = $5`,
		balance, available, pending, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FindByUserAndCurrency fetches the user's wallet in the given currency.
func (r *PostgresRepository) FindByUserAndCurrency(ctx context.Context, userID, currency string) (Wallet, error) {
	return scanWallet(storage.Q(ctx, r.db).QueryRow(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE user_id = $1 AND currency = $2`, userID, currency))
}

// ListByUser returns all wallets owned by a user.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]Wallet, error) {
	rows, err := storage.Q(ctx, r.db).Query(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE user_id = $1 ORDER BY is_default DESC, currency`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var wallets []Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

// SetStatus freezes or reactivates a wallet. Wallets are never deleted.
func (r *PostgresRepository) SetStatus(ctx context.Context, id, status string) error {
	tag, err := storage.Q(ctx, r.db).Exec(ctx,
		`UPDATE wallets SET status = $1, updated_at = $2 WHERE id = $3`, status, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanWallet(row pgx.Row) (Wallet, error) {
	var w Wallet
	err := row.Scan(&w.ID, &w.UserID, &w.Currency, &w.Balance, &w.Available, &w.Pending,
		&w.IsDefault, &w.Status, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrNotFound
		}
		return Wallet{}, err
	}
	w.CreatedAt = w.CreatedAt.UTC()
	w.UpdatedAt = w.UpdatedAt.UTC()
	return w, nil
}
