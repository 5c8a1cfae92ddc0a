package card

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlas-pay/atlas_pay/internal/storage"
)

// ErrNotFound indicates no card exists for the identifier or number.
var ErrNotFound = errors.New("card not found")

// Repository persists issued cards.
type Repository interface {
	Create(ctx context.Context, c Card) error
	FindByID(ctx context.Context, id string) (Card, error)
	FindByNumber(ctx context.Context, number string) (Card, error)
	ListByUser(ctx context.Context, userID string) ([]Card, error)
	SetStatus(ctx context.Context, id, status string) error
}

// PostgresRepository stores cards in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const cardColumns = `id, user_id, wallet_id, card_number, last_four, brand, holder_name,
    expiry_month, expiry_year, cvv_hash, spending_limit, online_enabled, status, created_at`

// Create inserts a card record.
func (r *PostgresRepository) Create(ctx context.Context, c Card) error {
	_, err := storage.Q(ctx, r.db).Exec(ctx, `INSERT INTO cards (`+cardColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		c.ID, c.UserID, c.WalletID, c.Number, c.LastFour, c.Brand, c.HolderName,
		c.ExpiryMonth, c.ExpiryYear, c.CVVHash, c.SpendingLimit, c.OnlineEnabled, c.Status, c.CreatedAt)
	return err
}

// FindByID fetches a card by id.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (Card, error) {
	return scanCard(storage.Q(ctx, r.db).QueryRow(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE id = $1`, id))
}

// FindByNumber fetches a card by its full number.
func (r *PostgresRepository) FindByNumber(ctx context.Context, number string) (Card, error) {
	return scanCard(storage.Q(ctx, r.db).QueryRow(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE card_number = $1`, number))
}

// ListByUser returns all cards issued to a user.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]Card, error) {
	rows, err := storage.Q(ctx, r.db).Query(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cards []Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

// SetStatus blocks or reactivates a card.
func (r *PostgresRepository) SetStatus(ctx context.Context, id, status string) error {
	tag, err := storage.Q(ctx, r.db).Exec(ctx,
		`UPDATE cards SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanCard(row pgx.Row) (Card, error) {
	var c Card
	err := row.Scan(&c.ID, &c.UserID, &c.WalletID, &c.Number, &c.LastFour, &c.Brand, &c.HolderName,
		&c.ExpiryMonth, &c.ExpiryYear, &c.CVVHash, &c.SpendingLimit, &c.OnlineEnabled, &c.Status, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Card{}, ErrNotFound
		}
		return Card{}, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return c, nil
}
