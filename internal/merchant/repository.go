package merchant

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlas-pay/atlas_pay/internal/storage"
)

// ErrNotFound indicates no merchant exists for the identifier or key.
var ErrNotFound = errors.New("merchant not found")

// Repository persists merchants.
type Repository interface {
	Create(ctx context.Context, m Merchant) error
	FindByID(ctx context.Context, id string) (Merchant, error)
	FindByAPIKey(ctx context.Context, apiKey string) (Merchant, error)
	SetStatus(ctx context.Context, id, status string) error
}

// PostgresRepository stores merchants in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const merchantColumns = `id, user_id, business_name, api_key, api_secret, webhook_url, webhook_secret,
    daily_limit, monthly_limit, commission_rate, status, is_sandbox, created_at`

// Create inserts a merchant record.
func (r *PostgresRepository) Create(ctx context.Context, m Merchant) error {
	_, err := storage.Q(ctx, r.db).Exec(ctx, `INSERT INTO merchants (`+merchantColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		m.ID, m.UserID, m.BusinessName, m.APIKey, m.APISecret, m.WebhookURL, m.WebhookSecret,
		m.DailyLimit, m.MonthlyLimit, m.CommissionRate, m.Status, m.IsSandbox, m.CreatedAt)
	return err
}

// FindByID fetches a merchant by id.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (Merchant, error) {
	return scanMerchant(storage.Q(ctx, r.db).QueryRow(ctx,
		`SELECT `+merchantColumns+` FROM merchants WHERE id = $1`, id))
}

// FindByAPIKey fetches a merchant by its public API key.
func (r *PostgresRepository) FindByAPIKey(ctx context.Context, apiKey string) (Merchant, error) {
	return scanMerchant(storage.Q(ctx, r.db).QueryRow(ctx,
		`SELECT `+merchantColumns+` FROM merchants WHERE api_key = $1`, apiKey))
}

// SetStatus activates or suspends a merchant.
func (r *PostgresRepository) SetStatus(ctx context.Context, id, status string) error {
	tag, err := storage.Q(ctx, r.db).Exec(ctx,
		`UPDATE merchants SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanMerchant(row pgx.Row) (Merchant, error) {
	var m Merchant
	err := row.Scan(&m.ID, &m.UserID, &m.BusinessName, &m.APIKey, &m.APISecret, &m.WebhookURL, &m.WebhookSecret,
		&m.DailyLimit, &m.MonthlyLimit, &m.CommissionRate, &m.Status, &m.IsSandbox, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Merchant{}, ErrNotFound
		}
		return Merchant{}, err
	}
	m.CreatedAt = m.CreatedAt.UTC()
	return m, nil
}
