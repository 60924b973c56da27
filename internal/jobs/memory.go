package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrQueueFull is returned by MemoryQueue when its buffer is exhausted.
var ErrQueueFull = errors.New("job queue full")

// MemoryQueue is an in-process queue for dev mode and tests.
// Jobs are lost on restart. Retries wait in a delayed set until their
// NotBefore time passes.
type MemoryQueue struct {
	jobs        chan *Job
	maxAttempts int
	// Backoff spaces out retries. Nil means DefaultBackoff.
	Backoff     Backoff

	mu      sync.Mutex
	dead    []*Job
	delayed []*Job
}

// NewMemoryQueue creates a queue holding up to size pending jobs.
func NewMemoryQueue(size, maxAttempts int) *MemoryQueue {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &MemoryQueue{
		jobs:        make(chan *Job, size),
		maxAttempts: maxAttempts,
	}
}

// Enqueue adds a job without blocking.
func (q *MemoryQueue) Enqueue(_ context.Context, kind string, payload interface{}) error {
	job, err := NewJob(kind, payload)
	if err != nil {
		return err
	}
	return q.push(job)
}

func (q *MemoryQueue) push(job *Job) error {
	select {
	case q.jobs <- job:
		return nil
	default:
		return fmt.Errorf("enqueueing %s: %w", job.Kind, ErrQueueFull)
	}
}

// Len returns the number of pending jobs, not counting delayed retries.
func (q *MemoryQueue) Len() int {
	return len(q.jobs)
}

// Delayed returns the number of retries waiting for their NotBefore time.
func (q *MemoryQueue) Delayed() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.delayed)
}

func (q *MemoryQueue) delay(job *Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.delayed = append(q.delayed, job)
}

// promote moves due retries onto the pending channel and returns the earliest
// NotBefore still waiting, or the zero time when none are.
func (q *MemoryQueue) promote(now time.Time) time.Time {
	q.mu.Lock()
	defer q.mu.Unlock()

	var next time.Time
	waiting := q.delayed[:0]
	for _, job := range q.delayed {
		if job.Ready(now) && q.push(job) == nil {
			continue
		}
		waiting = append(waiting, job)
		if next.IsZero() || job.NotBefore.Before(next) {
			next = job.NotBefore
		}
	}
	clear(q.delayed[len(waiting):])
	q.delayed = waiting
	return next
}

// timerFor returns a channel that fires at t, or nil when t is zero.
func timerFor(t time.Time) <-chan time.Time {
	if t.IsZero() {
		return nil
	}
	return time.After(time.Until(t))
}

// Pending drains and returns the pending jobs without running them.
func (q *MemoryQueue) Pending() []*Job {
	var out []*Job
	for {
		select {
		case job := <-q.jobs:
			out = append(out, job)
		default:
			return out
		}
	}
}

// Dead returns jobs that exhausted their attempts.
func (q *MemoryQueue) Dead() []*Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*Job(nil), q.dead...)
}

// Run processes jobs until ctx is cancelled.
func (q *MemoryQueue) Run(ctx context.Context, h Handler) error {
	for {
		wake := timerFor(q.promote(time.Now()))
		select {
		case <-ctx.Done():
			return nil
		case job := <-q.jobs:
			q.process(ctx, h, job)
		case <-wake:
		}
	}
}

// Drain processes pending jobs until the queue is empty, waiting out the
// backoff of any retries. It returns early if ctx is cancelled.
func (q *MemoryQueue) Drain(ctx context.Context, h Handler) {
	for {
		next := q.promote(time.Now())
		select {
		case job := <-q.jobs:
			q.process(ctx, h, job)
			continue
		default:
		}
		if next.IsZero() {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-timerFor(next):
		}
	}
}

func (q *MemoryQueue) process(ctx context.Context, h Handler, job *Job) {
	err := h.Handle(ctx, job)
	if err == nil {
		return
	}

	if retryDecision(job, err, q.maxAttempts) {
		slog.Error("job failed permanently", "job_id", job.ID, "kind", job.Kind, "attempts", job.Attempts+1, "err", err)
		q.mu.Lock()
		q.dead = append(q.dead, job)
		q.mu.Unlock()
		return
	}

	retry := nextAttempt(job, q.Backoff, time.Now())
	slog.Warn("job failed, retrying", "job_id", job.ID, "kind", job.Kind,
		"attempts", retry.Attempts, "not_before", retry.NotBefore, "err", err)
	q.delay(retry)
}

// Close is a no-op.
func (q *MemoryQueue) Close() error {
	return nil
}
