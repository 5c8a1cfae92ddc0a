package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Handler runs one job. Returning an error reschedules the job until its
// attempt budget is exhausted.
type Handler func(ctx context.Context, job Job) error

// Worker drains the queue in priority order.
type Worker struct {
	repo       Repository
	logger     *slog.Logger
	handlers   map[string]Handler
	pollEvery  time.Duration
	retryDelay time.Duration
	nowFn      func() time.Time
}

// NewWorker creates a queue worker.
func NewWorker(repo Repository, logger *slog.Logger) *Worker {
	return &Worker{
		repo:       repo,
		logger:     logger,
		handlers:   make(map[string]Handler),
		pollEvery:  time.Second,
		retryDelay: 30 * time.Second,
		nowFn:      func() time.Time { return time.Now().UTC() },
	}
}

// Register binds a handler to a job type.
func (w *Worker) Register(jobType string, h Handler) {
	w.handlers[jobType] = h
}

// Run polls until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.pollEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

// drain runs jobs until the queue is empty.
func (w *Worker) drain(ctx context.Context) {
	for {
		if err := w.RunOnce(ctx); err != nil {
			if !errors.Is(err, ErrNoJob) {
				w.logger.Error("job run failed", "error", err)
			}
			return
		}
	}
}

// RunOnce claims and executes a single job.
func (w *Worker) RunOnce(ctx context.Context) error {
	job, err := w.repo.NextPending(ctx, w.nowFn())
	if err != nil {
		return err
	}

	handler, ok := w.handlers[job.Type]
	if !ok {
		err := fmt.Errorf("no handler for job type %s", job.Type)
		return w.repo.RetryOrFail(ctx, job, err, w.nowFn().Add(w.retryDelay))
	}

	if runErr := handler(ctx, job); runErr != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "type", job.Type,
			"attempt", job.Attempts, "max_attempts", job.MaxAttempts, "error", runErr)
		return w.repo.RetryOrFail(ctx, job, runErr, w.nowFn().Add(w.retryDelay))
	}
	return w.repo.MarkCompleted(ctx, job.ID)
}
