package identity

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlas-pay/atlas_pay/internal/storage"
)

// ErrUserNotFound indicates no user exists for the given identifier.
var ErrUserNotFound = errors.New("user not found")

// Repository persists users and their login attempts.
type Repository interface {
	Create(ctx context.Context, user User) error
	FindByID(ctx context.Context, id string) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	FindAdmin(ctx context.Context) (User, error)
	SetStatus(ctx context.Context, id, status string) error

	RecordLoginAttempt(ctx context.Context, attempt LoginAttempt) error
	FailedLoginCountSince(ctx context.Context, email string, since time.Time) (int, error)
}

// PostgresRepository stores users in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a user record.
func (r *PostgresRepository) Create(ctx context.Context, user User) error {
	_, err := storage.Q(ctx, r.db).Exec(ctx, `INSERT INTO users (id, email, name, role, status, password_hash, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		user.ID, user.Email, user.Name, user.Role, user.Status, user.PasswordHash, user.CreatedAt)
	return err
}

// FindByID fetches a user by identifier.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (User, error) {
	return r.scanUser(storage.Q(ctx, r.db).QueryRow(ctx, `SELECT id, email, name, role, status, password_hash, created_at
        FROM users WHERE id = $1`, id))
}

// FindByEmail fetches a user by email.
func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (User, error) {
	return r.scanUser(storage.Q(ctx, r.db).QueryRow(ctx, `SELECT id, email, name, role, status, password_hash, created_at
        FROM users WHERE email = $1`, email))
}

// FindAdmin returns the platform admin notified about pending approvals.
func (r *PostgresRepository) FindAdmin(ctx context.Context) (User, error) {
	return r.scanUser(storage.Q(ctx, r.db).QueryRow(ctx, `SELECT id, email, name, role, status, password_hash, created_at
        FROM users WHERE role = $1 LIMIT 1`, RoleSuperAdmin))
}

// SetStatus updates the user lifecycle status.
func (r *PostgresRepository) SetStatus(ctx context.Context, id, status string) error {
	_, err := storage.Q(ctx, r.db).Exec(ctx, `UPDATE users SET status = $1 WHERE id = $2`, status, id)
	return err
}

// RecordLoginAttempt appends one login attempt row.
func (r *PostgresRepository) RecordLoginAttempt(ctx context.Context, attempt LoginAttempt) error {
	_, err := storage.Q(ctx, r.db).Exec(ctx, `INSERT INTO login_attempts (id, email, ip_address, is_successful, failure_reason, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)`,
		attempt.ID, attempt.Email, attempt.IP, attempt.Success, attempt.Reason, attempt.CreatedAt)
	return err
}

// FailedLoginCountSince counts failed attempts for an email after the cutoff.
func (r *PostgresRepository) FailedLoginCountSince(ctx context.Context, email string, since time.Time) (int, error) {
	var count int
	err := storage.Q(ctx, r.db).QueryRow(ctx, `SELECT COUNT(*) FROM login_attempts
        WHERE email = $1 AND is_successful = FALSE AND created_at >= $2`, email, since).Scan(&count)
	return count, err
}

func (r *PostgresRepository) scanUser(row pgx.Row) (User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.Status, &u.PasswordHash, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}
