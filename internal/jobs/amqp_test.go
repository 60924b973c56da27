package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type fakeAcker struct {
	acks, nacks []uint64
	requeued    []bool
	err         error
}

func (a *fakeAcker) Ack(tag uint64, _ bool) error {
	a.acks = append(a.acks, tag)
	return a.err
}

func (a *fakeAcker) Nack(tag uint64, _ bool, requeue bool) error {
	a.nacks = append(a.nacks, tag)
	a.requeued = append(a.requeued, requeue)
	return a.err
}

func (a *fakeAcker) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

type published struct {
	key string
	msg amqp.Publishing
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (p *fakePublisher) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, published{key: key, msg: msg})
	return nil
}

func testAMQPQueue(maxAttempts int) (*AMQPQueue, *fakePublisher) {
	pub := &fakePublisher{}
	return &AMQPQueue{
		queue:       "jobs",
		retry:       "jobs.retry",
		dead:        "jobs.dead",
		maxAttempts: maxAttempts,
		Backoff:     ExponentialBackoff(2*time.Second, time.Minute),
		pub:         pub,
	}, pub
}

func delivery(t *testing.T, acker amqp.Acknowledger, job *Job) amqp.Delivery {
	t.Helper()
	body, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("marshal job: %v", err)
	}
	return amqp.Delivery{Acknowledger: acker, DeliveryTag: 7, Body: body}
}

func TestAMQPProcess(t *testing.T) {
	failing := HandlerFunc(func(context.Context, *Job) error { return errors.New("smtp down") })

	tests := []struct {
		name       string
		attempts   int
		handler    Handler
		publishErr error
		wantKey    string
		wantTTL    string
		wantAcks   int
		wantNacks  []bool
	}{
		{
			name:     "success acks",
			handler:  HandlerFunc(func(context.Context, *Job) error { return nil }),
			wantAcks: 1,
		},
		{
			name:     "failure goes to retry queue with backoff",
			handler:  failing,
			wantKey:  "jobs.retry",
			wantTTL:  "2000",
			wantAcks: 1,
		},
		{
			name:     "second failure doubles the backoff",
			attempts: 1,
			handler:  failing,
			wantKey:  "jobs.retry",
			wantTTL:  "4000",
			wantAcks: 1,
		},
		{
			name:     "last attempt goes to dead queue",
			attempts: 2,
			handler:  failing,
			wantKey:  "jobs.dead",
			wantAcks: 1,
		},
		{
			name:     "permanent error goes to dead queue",
			handler:  HandlerFunc(func(context.Context, *Job) error { return Permanent(errors.New("bad payload")) }),
			wantKey:  "jobs.dead",
			wantAcks: 1,
		},
		{
			name:       "publish failure requeues the delivery",
			handler:    failing,
			publishErr: errors.New("channel closed"),
			wantNacks:  []bool{true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, pub := testAMQPQueue(3)
			pub.err = tt.publishErr
			acker := &fakeAcker{}

			job, err := NewJob(KindCommentApproved, CommentPayload{CommentID: 1})
			if err != nil {
				t.Fatalf("new job: %v", err)
			}
			job.Attempts = tt.attempts

			q.process(context.Background(), tt.handler, delivery(t, acker, job))

			if len(acker.acks) != tt.wantAcks {
				t.Errorf("acks = %v, want %d", acker.acks, tt.wantAcks)
			}
			if len(acker.requeued) != len(tt.wantNacks) {
				t.Fatalf("nacks = %v, want %v", acker.requeued, tt.wantNacks)
			}
			for i, want := range tt.wantNacks {
				if acker.requeued[i] != want {
					t.Errorf("nack %d requeue = %v, want %v", i, acker.requeued[i], want)
				}
			}

			if tt.wantKey == "" {
				if len(pub.sent) != 0 {
					t.Errorf("published %d messages, want none", len(pub.sent))
				}
				return
			}
			if len(pub.sent) != 1 {
				t.Fatalf("published %d messages, want 1", len(pub.sent))
			}
			sent := pub.sent[0]
			if sent.key != tt.wantKey {
				t.Errorf("routing key = %q, want %q", sent.key, tt.wantKey)
			}
			if sent.msg.Expiration != tt.wantTTL {
				t.Errorf("expiration = %q, want %q", sent.msg.Expiration, tt.wantTTL)
			}

			var got Job
			if err := json.Unmarshal(sent.msg.Body, &got); err != nil {
				t.Fatalf("unmarshal republished job: %v", err)
			}
			if got.ID != job.ID || got.Attempts != tt.attempts+1 {
				t.Errorf("republished job = %+v", got)
			}
			if (tt.wantKey == "jobs.retry") == got.NotBefore.IsZero() {
				t.Errorf("not_before = %v for %s", got.NotBefore, tt.wantKey)
			}
		})
	}
}

func TestAMQPProcessMalformed(t *testing.T) {
	q, pub := testAMQPQueue(3)
	acker := &fakeAcker{}

	called := false
	q.process(context.Background(), HandlerFunc(func(context.Context, *Job) error {
		called = true
		return nil
	}), amqp.Delivery{Acknowledger: acker, DeliveryTag: 3, Body: []byte("{not json")})

	if called {
		t.Error("handler called for malformed body")
	}
	if len(acker.requeued) != 1 || acker.requeued[0] {
		t.Errorf("nacks = %v, want one without requeue", acker.requeued)
	}
	if len(pub.sent) != 0 {
		t.Errorf("published %d messages, want none", len(pub.sent))
	}
}

func TestAMQPProcessAckError(t *testing.T) {
	q, _ := testAMQPQueue(3)
	acker := &fakeAcker{err: amqp.ErrClosed}
	job, err := NewJob(KindCommentApproved, CommentPayload{CommentID: 1})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}

	// The ack error is logged, not returned; processing must not panic.
	q.process(context.Background(), HandlerFunc(func(context.Context, *Job) error { return nil }), delivery(t, acker, job))
	if len(acker.acks) != 1 {
		t.Errorf("acks = %v, want 1 attempt", acker.acks)
	}
}
