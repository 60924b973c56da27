// Package jobs provides the background job envelope, queue backends and a
// kind-based dispatcher. Delivery is at-least-once, so handlers must tolerate
// seeing the same job twice.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Job kinds.
const (
	KindCommentApproved  = "comment.approved"
	KindCommentDenied    = "comment.denied"
	KindCommentPublished = "comment.published"
	KindAccountReconcile = "account.reconcile"
)

// DefaultMaxAttempts is used when a queue is created with a non-positive limit.
const DefaultMaxAttempts = 5

// ErrUnknownKind is returned by Mux for a job kind with no handler.
var ErrUnknownKind = errors.New("unknown job kind")

// Job is the envelope stored on a queue. NotBefore is set when a failed job
// is scheduled for another attempt; backends hold it until then.
type Job struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	NotBefore  time.Time       `json:"not_before,omitzero"`
}

// CommentPayload identifies the comment a notification job is about.
type CommentPayload struct {
	CommentID int64 `json:"comment_id"`
}

// AccountPayload identifies the account to reconcile.
type AccountPayload struct {
	AccountID int64 `json:"account_id"`
}

// NewJob builds a job with a fresh ID, encoding payload as JSON.
func NewJob(kind string, payload interface{}) (*Job, error) {
	if kind == "" {
		return nil, fmt.Errorf("job kind is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", kind, err)
	}
	return &Job{
		ID:         uuid.NewString(),
		Kind:       kind,
		Payload:    data,
		EnqueuedAt: time.Now().UTC(),
	}, nil
}

// Decode unmarshals the job payload into v.
func (j *Job) Decode(v interface{}) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return Permanent(fmt.Errorf("decoding %s payload: %w", j.Kind, err))
	}
	return nil
}

// Enqueuer submits jobs for background processing.
type Enqueuer interface {
	Enqueue(ctx context.Context, kind string, payload interface{}) error
}

// Handler processes a single job. A returned error causes a retry unless it
// is marked Permanent.
type Handler interface {
	Handle(ctx context.Context, job *Job) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, job *Job) error

// Handle calls f(ctx, job).
func (f HandlerFunc) Handle(ctx context.Context, job *Job) error {
	return f(ctx, job)
}

// Queue is a job backend that can both accept and process jobs.
type Queue interface {
	Enqueuer
	// Run processes jobs until ctx is cancelled.
	Run(ctx context.Context, h Handler) error
	Close() error
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. The job goes straight to the dead list.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Mux dispatches jobs to handlers by kind.
type Mux struct {
	handlers map[string]Handler
}

// NewMux creates an empty dispatcher.
func NewMux() *Mux {
	return &Mux{handlers: make(map[string]Handler)}
}

// Handle registers h for kind, replacing any previous handler.
func (m *Mux) Handle(kind string, h Handler) {
	m.handlers[kind] = h
}

// HandleFunc registers a function for kind.
func (m *Mux) HandleFunc(kind string, f func(ctx context.Context, job *Job) error) {
	m.Handle(kind, HandlerFunc(f))
}

// Kinds returns the registered kinds.
func (m *Mux) Kinds() []string {
	kinds := make([]string, 0, len(m.handlers))
	for k := range m.handlers {
		kinds = append(kinds, k)
	}
	return kinds
}

// Dispatch runs the handler registered for job.Kind.
func (m *Mux) Dispatch(ctx context.Context, job *Job) error {
	h, ok := m.handlers[job.Kind]
	if !ok {
		return Permanent(fmt.Errorf("%w: %s", ErrUnknownKind, job.Kind))
	}
	return h.Handle(ctx, job)
}

// Backoff returns the delay before a job's next attempt given how many
// attempts it has already failed.
type Backoff func(failed int) time.Duration

// ExponentialBackoff waits base after the first failure and doubles the wait
// for each further failure, up to limit.
func ExponentialBackoff(base, limit time.Duration) Backoff {
	return func(failed int) time.Duration {
		d := base
		for i := 1; i < failed && d < limit; i++ {
			d *= 2
		}
		return min(d, limit)
	}
}

// DefaultBackoff waits 5s, 10s, 20s and so on, capped at five minutes.
var DefaultBackoff = ExponentialBackoff(5*time.Second, 5*time.Minute)

// Ready reports whether the job may run at now.
func (j *Job) Ready(now time.Time) bool {
	return !now.Before(j.NotBefore)
}

// nextAttempt returns a copy of job with the attempt counted and NotBefore
// pushed out by backoff.
func nextAttempt(job *Job, backoff Backoff, now time.Time) *Job {
	if backoff == nil {
		backoff = DefaultBackoff
	}
	next := *job
	next.Payload = append(json.RawMessage(nil), job.Payload...)
	next.Attempts++
	next.NotBefore = now.Add(backoff(next.Attempts)).UTC()
	return &next
}

// retryDecision says what to do with a job whose handler failed.
func retryDecision(job *Job, err error, maxAttempts int) (dead bool) {
	if IsPermanent(err) {
		return true
	}
	return job.Attempts+1 >= maxAttempts
}
