package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlas-pay/atlas_pay/internal/storage"
)

// ErrNoJob indicates the queue has nothing ready to run.
var ErrNoJob = errors.New("no pending job")

// Repository persists queued jobs.
type Repository interface {
	Enqueue(ctx context.Context, job Job) error
	NextPending(ctx context.Context, now time.Time) (Job, error)
	MarkCompleted(ctx context.Context, id string) error
	RetryOrFail(ctx context.Context, job Job, runErr error, retryAt time.Time) error
}

// PostgresRepository stores jobs in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const jobColumns = `id, job_type, payload, priority, attempts, max_attempts, status, last_error, scheduled_at, created_at`

// Enqueue inserts a job row.
func (r *PostgresRepository) Enqueue(ctx context.Context, j Job) error {
	_, err := storage.Q(ctx, r.db).Exec(ctx, `INSERT INTO jobs (`+jobColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		j.ID, j.Type, j.Payload, j.Priority, j.Attempts, j.MaxAttempts, j.Status, j.LastError, j.ScheduledAt, j.CreatedAt)
	return err
}

// NextPending claims the highest-priority runnable job, skipping rows other
// workers already hold.
func (r *PostgresRepository) NextPending(ctx context.Context, now time.Time) (Job, error) {
	var j Job
	err := storage.Q(ctx, r.db).QueryRow(ctx, `UPDATE jobs SET status = $1, attempts = attempts + 1
        WHERE id = (
            SELECT id FROM jobs
            WHERE status = $2 AND scheduled_at <= $3
            ORDER BY priority DESC, scheduled_at ASC
            LIMIT 1
            FOR UPDATE SKIP LOCKED
        )
        RETURNING `+jobColumns,
		StatusProcessing, StatusPending, now).
		Scan(&j.ID, &j.Type, &j.Payload, &j.Priority, &j.Attempts, &j.MaxAttempts,
			&j.Status, &j.LastError, &j.ScheduledAt, &j.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Job{}, ErrNoJob
		}
		return Job{}, err
	}
	return j, nil
}

// MarkCompleted finishes a job.
func (r *PostgresRepository) MarkCompleted(ctx context.Context, id string) error {
	_, err := storage.Q(ctx, r.db).Exec(ctx,
		`UPDATE jobs SET status = $1 WHERE id = $2`, StatusCompleted, id)
	return err
}

// RetryOrFail reschedules a failed run, or parks the job once attempts are
// exhausted.
func (r *PostgresRepository) RetryOrFail(ctx context.Context, j Job, runErr error, retryAt time.Time) error {
	status := StatusPending
	if j.Attempts >= j.MaxAttempts {
		status = StatusFailed
	}
	_, err := storage.Q(ctx, r.db).Exec(ctx,
		`UPDATE jobs SET status = $1, last_error = $2, scheduled_at = $3 WHERE id = $4`,
		status, runErr.Error(), retryAt, j.ID)
	return err
}
