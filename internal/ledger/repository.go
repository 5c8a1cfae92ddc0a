package ledger

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlas-pay/atlas_pay/internal/storage"
)

// Repository persists ledger entries. There is deliberately no update or
// delete: the ledger is the immutable audit trail of every balance change.
type Repository interface {
	Append(ctx context.Context, entries ...Entry) error
	ListByTransaction(ctx context.Context, transactionID string) ([]Entry, error)
	ListByWallet(ctx context.Context, walletID string, limit int) ([]Entry, error)
}

// PostgresRepository stores ledger entries in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const entryColumns = `id, transaction_id, wallet_id, entry_type, amount, balance_before, balance_after, description, created_at`

// Append inserts entries within the caller's atomic unit.
func (r *PostgresRepository) Append(ctx context.Context, entries ...Entry) error {
	q := storage.Q(ctx, r.db)
	for _, e := range entries {
		_, err := q.Exec(ctx, `INSERT INTO ledger_entries (`+entryColumns+`)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			e.ID, e.TransactionID, e.WalletID, e.Type, e.Amount, e.BalanceBefore, e.BalanceAfter, e.Description, e.CreatedAt)
		if err != nil {
			return err
		}
	}
	return nil
}

// ListByTransaction returns the entries for one transaction, debit first.
func (r *PostgresRepository) ListByTransaction(ctx context.Context, transactionID string) ([]Entry, error) {
	rows, err := storage.Q(ctx, r.db).Query(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries WHERE transaction_id = $1 ORDER BY entry_type ASC, created_at ASC`,
		transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

// ListByWallet returns the most recent entries touching a wallet.
func (r *PostgresRepository) ListByWallet(ctx context.Context, walletID string, limit int) ([]Entry, error) {
	rows, err := storage.Q(ctx, r.db).Query(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries WHERE wallet_id = $1 ORDER BY created_at DESC LIMIT $2`,
		walletID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

func collectEntries(rows pgx.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.WalletID, &e.Type, &e.Amount,
			&e.BalanceBefore, &e.BalanceAfter, &e.Description, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.CreatedAt = e.CreatedAt.UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
