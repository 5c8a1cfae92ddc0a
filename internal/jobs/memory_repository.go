package jobs

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryRepository struct {
	mu   sync.Mutex
	jobs map[string]Job
}

// NewMemoryRepository constructs an in-memory repository for tests.
func NewMemoryRepository() *memoryRepository {
	return &memoryRepository{jobs: make(map[string]Job)}
}

func (r *memoryRepository) Enqueue(_ context.Context, j Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[j.ID] = j
	return nil
}

func (r *memoryRepository) NextPending(_ context.Context, now time.Time) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var candidates []Job
	for _, j := range r.jobs {
		if j.Status == StatusPending && !j.ScheduledAt.After(now) {
			candidates = append(candidates, j)
		}
	}
	if len(candidates) == 0 {
		return Job{}, ErrNoJob
	}
	sort.Slice(candidates, func(i, k int) bool {
		if candidates[i].Priority != candidates[k].Priority {
			return candidates[i].Priority > candidates[k].Priority
		}
		return candidates[i].ScheduledAt.Before(candidates[k].ScheduledAt)
	})
	j := candidates[0]
	j.Status = StatusProcessing
	j.Attempts++
	r.jobs[j.ID] = j
	return j, nil
}

func (r *memoryRepository) MarkCompleted(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return ErrNoJob
	}
	j.Status = StatusCompleted
	r.jobs[id] = j
	return nil
}

func (r *memoryRepository) RetryOrFail(_ context.Context, j Job, runErr error, retryAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.jobs[j.ID]
	if !ok {
		return ErrNoJob
	}
	msg := runErr.Error()
	stored.LastError = &msg
	stored.ScheduledAt = retryAt
	if j.Attempts >= j.MaxAttempts {
		stored.Status = StatusFailed
	} else {
		stored.Status = StatusPending
	}
	r.jobs[j.ID] = stored
	return nil
}

// Snapshot returns all jobs for assertions, newest creation last.
func (r *memoryRepository) Snapshot() []Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out
}
