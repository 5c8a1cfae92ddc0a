package rates

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atlas-pay/atlas_pay/internal/storage"
)

// ErrRateNotFound indicates no stored rate for a currency pair.
var ErrRateNotFound = errors.New("exchange rate not found")

// Rate is a stored conversion rate for one ordered currency pair.
type Rate struct {
	FromCurrency string
	ToCurrency   string
	Rate         decimal.Decimal
	UpdatedAt    time.Time
}

// Repository persists exchange rates.
type Repository interface {
	Find(ctx context.Context, from, to string) (Rate, error)
	Upsert(ctx context.Context, rate Rate) error
	List(ctx context.Context) ([]Rate, error)
}

// PostgresRepository stores rates in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Find fetches the rate for an ordered pair.
func (r *PostgresRepository) Find(ctx context.Context, from, to string) (Rate, error) {
	var rate Rate
	err := storage.Q(ctx, r.db).QueryRow(ctx,
		`SELECT from_currency, to_currency, rate, updated_at FROM exchange_rates
         WHERE from_currency = $1 AND to_currency = $2`, from, to).
		Scan(&rate.FromCurrency, &rate.ToCurrency, &rate.Rate, &rate.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rate{}, ErrRateNotFound
		}
		return Rate{}, err
	}
	return rate, nil
}

// Upsert writes or replaces the rate for an ordered pair.
func (r *PostgresRepository) Upsert(ctx context.Context, rate Rate) error {
	_, err := storage.Q(ctx, r.db).Exec(ctx,
		`INSERT INTO exchange_rates (from_currency, to_currency, rate, updated_at)
         VALUES ($1, $2, $3, $4)
         ON CONFLICT (from_currency, to_currency) DO UPDATE SET rate = $3, updated_at = $4`,
		rate.FromCurrency, rate.ToCurrency, rate.Rate, rate.UpdatedAt)
	return err
}

// List returns all stored rates.
func (r *PostgresRepository) List(ctx context.Context) ([]Rate, error) {
	rows, err := storage.Q(ctx, r.db).Query(ctx,
		`SELECT from_currency, to_currency, rate, updated_at FROM exchange_rates ORDER BY from_currency, to_currency`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Rate
	for rows.Next() {
		var rate Rate
		if err := rows.Scan(&rate.FromCurrency, &rate.ToCurrency, &rate.Rate, &rate.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, rate)
	}
	return out, rows.Err()
}
