package jobs

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryQueueRun(t *testing.T) {
	q := NewMemoryQueue(10, 3)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := q.Enqueue(ctx, KindCommentApproved, CommentPayload{CommentID: 1}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	handled := make(chan *Job, 1)
	done := make(chan error, 1)
	go func() {
		done <- q.Run(ctx, HandlerFunc(func(_ context.Context, job *Job) error {
			handled <- job
			return nil
		}))
	}()

	select {
	case job := <-handled:
		if job.Kind != KindCommentApproved {
			t.Errorf("kind = %q", job.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("job was not handled")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop")
	}
}

func TestMemoryQueueRetryThenDead(t *testing.T) {
	q := NewMemoryQueue(10, 3)
	q.Backoff = ExponentialBackoff(5*time.Millisecond, 20*time.Millisecond)
	ctx := context.Background()

	if err := q.Enqueue(ctx, KindCommentDenied, CommentPayload{CommentID: 2}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	calls := 0
	q.Drain(ctx, HandlerFunc(func(context.Context, *Job) error {
		calls++
		return errors.New("smtp down")
	}))

	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	dead := q.Dead()
	if len(dead) != 1 {
		t.Fatalf("dead = %d, want 1", len(dead))
	}
	if dead[0].Attempts != 2 {
		t.Errorf("attempts = %d, want 2", dead[0].Attempts)
	}
}

func TestMemoryQueueRetrySucceeds(t *testing.T) {
	q := NewMemoryQueue(10, 5)
	q.Backoff = ExponentialBackoff(5*time.Millisecond, 20*time.Millisecond)
	ctx := context.Background()

	if err := q.Enqueue(ctx, KindAccountReconcile, AccountPayload{AccountID: 1}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	calls := 0
	q.Drain(ctx, HandlerFunc(func(context.Context, *Job) error {
		calls++
		if calls < 2 {
			return errors.New("timeout")
		}
		return nil
	}))

	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if len(q.Dead()) != 0 {
		t.Error("expected no dead jobs")
	}
}

func TestMemoryQueueRetryWaitsForBackoff(t *testing.T) {
	q := NewMemoryQueue(10, 3)
	q.Backoff = ExponentialBackoff(30*time.Millisecond, time.Second)
	ctx := context.Background()

	if err := q.Enqueue(ctx, KindCommentApproved, CommentPayload{CommentID: 1}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	var calls []time.Time
	q.Drain(ctx, HandlerFunc(func(context.Context, *Job) error {
		calls = append(calls, time.Now())
		if len(calls) < 3 {
			return errors.New("timeout")
		}
		return nil
	}))

	if len(calls) != 3 {
		t.Fatalf("calls = %d, want 3", len(calls))
	}
	if gap := calls[1].Sub(calls[0]); gap < 30*time.Millisecond {
		t.Errorf("first retry after %v, want at least 30ms", gap)
	}
	if gap := calls[2].Sub(calls[1]); gap < 60*time.Millisecond {
		t.Errorf("second retry after %v, want at least 60ms", gap)
	}
}

func TestMemoryQueueRetryIsDelayed(t *testing.T) {
	q := NewMemoryQueue(10, 3)
	q.Backoff = ExponentialBackoff(time.Hour, time.Hour)
	ctx := context.Background()

	if err := q.Enqueue(ctx, KindCommentApproved, CommentPayload{CommentID: 1}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	job := <-q.jobs
	q.process(ctx, HandlerFunc(func(context.Context, *Job) error { return errors.New("timeout") }), job)

	if q.Len() != 0 || q.Delayed() != 1 {
		t.Fatalf("len = %d, delayed = %d; want 0 and 1", q.Len(), q.Delayed())
	}
	if next := q.promote(time.Now()); next.IsZero() || q.Len() != 0 {
		t.Errorf("retry promoted before its backoff elapsed")
	}
	q.promote(time.Now().Add(2 * time.Hour))
	if q.Len() != 1 || q.Delayed() != 0 {
		t.Errorf("len = %d, delayed = %d after backoff; want 1 and 0", q.Len(), q.Delayed())
	}
}

func TestMemoryQueueFull(t *testing.T) {
	q := NewMemoryQueue(1, 3)
	ctx := context.Background()

	if err := q.Enqueue(ctx, KindCommentApproved, CommentPayload{CommentID: 1}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	err := q.Enqueue(ctx, KindCommentApproved, CommentPayload{CommentID: 2})
	if !errors.Is(err, ErrQueueFull) {
		t.Errorf("err = %v, want ErrQueueFull", err)
	}
}

func TestMemoryQueuePending(t *testing.T) {
	q := NewMemoryQueue(5, 3)
	ctx := context.Background()

	for i := int64(1); i <= 2; i++ {
		if err := q.Enqueue(ctx, KindCommentApproved, CommentPayload{CommentID: i}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	if q.Len() != 2 {
		t.Errorf("len = %d, want 2", q.Len())
	}
	if got := q.Pending(); len(got) != 2 {
		t.Errorf("pending = %d, want 2", len(got))
	}
	if q.Len() != 0 {
		t.Errorf("len after drain = %d, want 0", q.Len())
	}
}
