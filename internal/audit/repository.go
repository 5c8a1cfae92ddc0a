package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlas-pay/atlas_pay/internal/storage"
)

// PostgresRepository stores audit entries in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds an audit repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Append inserts an audit entry. Entries are never updated or deleted.
func (r *PostgresRepository) Append(ctx context.Context, entry Entry) error {
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return err
	}
	var userID any
	if entry.UserID != "" {
		userID = entry.UserID
	}
	_, err = storage.Q(ctx, r.db).Exec(ctx, `INSERT INTO audit_logs (id, user_id, action, risk_level, metadata, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, userID, entry.Action, entry.RiskLevel, metadata, entry.CreatedAt)
	return err
}

// CountHighRiskSince counts high and critical entries for a user after the cutoff.
func (r *PostgresRepository) CountHighRiskSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int
	err := storage.Q(ctx, r.db).QueryRow(ctx, `SELECT COUNT(*) FROM audit_logs
        WHERE user_id = $1 AND risk_level IN ('high', 'critical') AND created_at >= $2`,
		userID, since).Scan(&count)
	return count, err
}
