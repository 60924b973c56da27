package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// publisher is the publishing half of *amqp.Channel.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPQueue publishes jobs to a durable RabbitMQ queue and consumes them with
// manual acknowledgement. A failed job is published to "<queue>.retry" with a
// message TTL equal to its backoff; the broker dead-letters it back onto the
// work queue when the TTL expires. Jobs out of attempts go to "<queue>.dead".
type AMQPQueue struct {
	conn        *amqp.Connection
	queue       string
	retry       string
	dead        string
	maxAttempts int
	// Backoff spaces out retries. Nil means DefaultBackoff.
	Backoff     Backoff

	mu  sync.Mutex
	pub publisher
}

// DialAMQP connects to the broker and declares the work, retry and dead queues.
func DialAMQP(url, queue string, maxAttempts int) (*AMQPQueue, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dialing broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}

	q := &AMQPQueue{
		conn:        conn,
		queue:       queue,
		retry:       queue + ".retry",
		dead:        queue + ".dead",
		maxAttempts: maxAttempts,
		pub:         ch,
	}

	declare := []struct {
		name string
		args amqp.Table
	}{
		{q.queue, nil},
		{q.dead, nil},
		{q.retry, amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": q.queue,
		}},
	}
	for _, d := range declare {
		if _, err := ch.QueueDeclare(d.name, true, false, false, false, d.args); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("declaring queue %s: %w", d.name, err)
		}
	}

	return q, nil
}

// Enqueue publishes a persistent job message.
func (q *AMQPQueue) Enqueue(ctx context.Context, kind string, payload interface{}) error {
	job, err := NewJob(kind, payload)
	if err != nil {
		return err
	}
	return q.publish(ctx, q.queue, job, 0)
}

// publish sends job to routingKey. A positive ttl sets the message expiration.
func (q *AMQPQueue) publish(ctx context.Context, routingKey string, job *Job, ttl time.Duration) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encoding job: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID,
		Type:         job.Kind,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if ttl > 0 {
		msg.Expiration = strconv.FormatInt(ttl.Milliseconds(), 10)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	err = q.pub.PublishWithContext(ctx, "", routingKey, false, false, msg)
	if err != nil {
		return fmt.Errorf("publishing %s: %w", job.Kind, err)
	}
	return nil
}

// Run consumes jobs until ctx is cancelled or the delivery channel closes.
func (q *AMQPQueue) Run(ctx context.Context, h Handler) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("opening consumer channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("setting qos: %w", err)
	}

	deliveries, err := ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consuming %s: %w", q.queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			q.process(ctx, h, d)
		}
	}
}

func (q *AMQPQueue) process(ctx context.Context, h Handler, d amqp.Delivery) {
	var job Job
	if err := json.Unmarshal(d.Body, &job); err != nil {
		slog.Error("discarding malformed job", "err", err)
		nack(d, false)
		return
	}

	err := h.Handle(ctx, &job)
	if err == nil {
		ack(d, job.ID)
		return
	}

	now := time.Now()
	next := nextAttempt(&job, q.Backoff, now)
	target, ttl := q.retry, next.NotBefore.Sub(now)
	if retryDecision(&job, err, q.maxAttempts) {
		slog.Error("job failed permanently", "job_id", job.ID, "kind", job.Kind, "attempts", next.Attempts, "err", err)
		next.NotBefore = time.Time{}
		target, ttl = q.dead, 0
	} else {
		slog.Warn("job failed, retrying", "job_id", job.ID, "kind", job.Kind,
			"attempts", next.Attempts, "not_before", next.NotBefore, "err", err)
	}

	if err := q.publish(ctx, target, next, ttl); err != nil {
		slog.Error("republishing job", "job_id", job.ID, "err", err)
		nack(d, true)
		return
	}
	ack(d, job.ID)
}

func ack(d amqp.Delivery, jobID string) {
	if err := d.Ack(false); err != nil {
		slog.Error("acknowledging job", "job_id", jobID, "delivery_tag", d.DeliveryTag, "err", err)
	}
}

func nack(d amqp.Delivery, requeue bool) {
	if err := d.Nack(false, requeue); err != nil {
		slog.Error("rejecting job", "delivery_tag", d.DeliveryTag, "requeue", requeue, "err", err)
	}
}

// Close closes the broker connection.
func (q *AMQPQueue) Close() error {
	return q.conn.Close()
}
