package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue stores jobs in Redis lists. A job moves atomically from the
// pending list to the processing list while it runs and is removed on
// success. Failed jobs wait in a sorted set scored by their NotBefore time
// and are moved back to pending once due. Entries left in processing by a
// crashed worker are requeued on the next start, so one worker per prefix is
// assumed.
type RedisQueue struct {
	client      *redis.Client
	pending     string
	processing  string
	delayed     string
	dead        string
	maxAttempts int
	// PollTimeout bounds each blocking pop so cancellation and due retries
	// are noticed.
	PollTimeout time.Duration
	// Backoff spaces out retries. Nil means DefaultBackoff.
	Backoff     Backoff
}

// NewRedisQueue creates a queue using keys under prefix.
func NewRedisQueue(client *redis.Client, prefix string, maxAttempts int) *RedisQueue {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &RedisQueue{
		client:      client,
		pending:     prefix + ":pending",
		processing:  prefix + ":processing",
		delayed:     prefix + ":delayed",
		dead:        prefix + ":dead",
		maxAttempts: maxAttempts,
		PollTimeout: 5 * time.Second,
	}
}

// DialRedis parses a redis:// URL and verifies the server is reachable.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return client, nil
}

// Enqueue pushes a new job onto the pending list.
func (q *RedisQueue) Enqueue(ctx context.Context, kind string, payload interface{}) error {
	job, err := NewJob(kind, payload)
	if err != nil {
		return err
	}
	return q.push(ctx, q.pending, job)
}

func (q *RedisQueue) push(ctx context.Context, key string, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encoding job: %w", err)
	}
	if err := q.client.LPush(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("pushing job to %s: %w", key, err)
	}
	return nil
}

// Requeue moves every entry in the processing list back to pending.
// It returns the number of jobs moved.
func (q *RedisQueue) Requeue(ctx context.Context) (int, error) {
	n := 0
	for {
		err := q.client.RPopLPush(ctx, q.processing, q.pending).Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("requeueing stale jobs: %w", err)
		}
		n++
	}
}

// Len returns the number of pending jobs.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.pending).Result()
}

// DelayedLen returns the number of retries waiting for their NotBefore time.
func (q *RedisQueue) DelayedLen(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, q.delayed).Result()
}

// promote moves retries whose NotBefore has passed onto the pending list.
func (q *RedisQueue) promote(ctx context.Context, now time.Time) (int, error) {
	due, err := q.client.ZRangeByScore(ctx, q.delayed, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("reading delayed jobs: %w", err)
	}

	for _, raw := range due {
		pipe := q.client.TxPipeline()
		pipe.ZRem(ctx, q.delayed, raw)
		pipe.LPush(ctx, q.pending, raw)
		if _, err := pipe.Exec(ctx); err != nil {
			return 0, fmt.Errorf("promoting delayed job: %w", err)
		}
	}
	return len(due), nil
}

// DeadLen returns the number of dead-lettered jobs.
func (q *RedisQueue) DeadLen(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.dead).Result()
}

// Run processes jobs until ctx is cancelled.
func (q *RedisQueue) Run(ctx context.Context, h Handler) error {
	if n, err := q.Requeue(ctx); err != nil {
		return err
	} else if n > 0 {
		slog.Info("requeued stale jobs", "count", n)
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		if _, err := q.promote(ctx, time.Now()); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		raw, err := q.client.BRPopLPush(ctx, q.pending, q.processing, q.PollTimeout).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("popping job: %w", err)
		}

		q.process(ctx, h, raw)
	}
}

func (q *RedisQueue) process(ctx context.Context, h Handler, raw string) {
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		slog.Error("discarding malformed job", "err", err)
		q.moveToDead(ctx, raw)
		return
	}

	err := h.Handle(ctx, &job)
	if err == nil {
		q.ack(ctx, raw)
		return
	}

	if retryDecision(&job, err, q.maxAttempts) {
		slog.Error("job failed permanently", "job_id", job.ID, "kind", job.Kind, "attempts", job.Attempts+1, "err", err)
		q.moveToDead(ctx, raw)
		return
	}

	retry := nextAttempt(&job, q.Backoff, time.Now())
	slog.Warn("job failed, retrying", "job_id", job.ID, "kind", job.Kind,
		"attempts", retry.Attempts, "not_before", retry.NotBefore, "err", err)
	if err := q.delay(ctx, raw, retry); err != nil {
		// Left in processing; the next start requeues it.
		slog.Error("scheduling retry", "job_id", job.ID, "err", err)
	}
}

// delay swaps the processing entry raw for retry in the delayed set.
func (q *RedisQueue) delay(ctx context.Context, raw string, retry *Job) error {
	data, err := json.Marshal(retry)
	if err != nil {
		return fmt.Errorf("encoding job: %w", err)
	}
	pipe := q.client.TxPipeline()
	pipe.ZAdd(ctx, q.delayed, redis.Z{Score: float64(retry.NotBefore.UnixMilli()), Member: string(data)})
	pipe.LRem(ctx, q.processing, 1, raw)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delaying job: %w", err)
	}
	return nil
}

func (q *RedisQueue) ack(ctx context.Context, raw string) {
	if err := q.client.LRem(ctx, q.processing, 1, raw).Err(); err != nil {
		slog.Error("removing job from processing", "err", err)
	}
}

func (q *RedisQueue) moveToDead(ctx context.Context, raw string) {
	pipe := q.client.TxPipeline()
	pipe.LPush(ctx, q.dead, raw)
	pipe.LRem(ctx, q.processing, 1, raw)
	if _, err := pipe.Exec(ctx); err != nil {
		slog.Error("dead-lettering job", "err", err)
	}
}

// Close closes the Redis client.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}
