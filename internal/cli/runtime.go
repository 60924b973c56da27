package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/evcraddock/advocate/internal/account"
	"github.com/evcraddock/advocate/internal/comment"
	"github.com/evcraddock/advocate/internal/config"
	"github.com/evcraddock/advocate/internal/email"
	"github.com/evcraddock/advocate/internal/geocode"
	"github.com/evcraddock/advocate/internal/issue"
	"github.com/evcraddock/advocate/internal/jobs"
	"github.com/evcraddock/advocate/internal/logging"
	"github.com/evcraddock/advocate/internal/notify"
	"github.com/evcraddock/advocate/internal/reconcile"
	"github.com/evcraddock/advocate/internal/zone"
)

// memoryQueueSize bounds the in-process queue used with ADV_QUEUE=memory.
const memoryQueueSize = 1024

// loadRuntime reads configuration, sets up logging and opens the database.
// ADV_DB may come from .env, so the path is resolved after config.Load.
func loadRuntime() (config.Config, *sql.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	logging.Setup(cfg.DevMode)

	database, err := openDB()
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, database, nil
}

// openQueue connects to the job backend selected by ADV_QUEUE.
func openQueue(ctx context.Context, cfg config.Config) (jobs.Queue, error) {
	switch cfg.Queue {
	case config.QueueRedis:
		client, err := jobs.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return jobs.NewRedisQueue(client, cfg.QueueName, cfg.JobMaxAttempt), nil
	case config.QueueAMQP:
		return jobs.DialAMQP(cfg.AMQPURL, cfg.QueueName, cfg.JobMaxAttempt)
	case config.QueueMemory:
		return jobs.NewMemoryQueue(memoryQueueSize, cfg.JobMaxAttempt), nil
	}
	return nil, fmt.Errorf("unknown queue backend %q", cfg.Queue)
}

// newSender returns the SMTP sender, or a logging sender in dev mode or
// when SMTP is not configured.
func newSender(cfg config.Config) email.Sender {
	smtpCfg := email.SMTPConfig{
		Host: cfg.SMTPHost,
		Port: cfg.SMTPPort,
		User: cfg.SMTPUser,
		Pass: cfg.SMTPPass,
		From: cfg.SMTPFrom,
	}
	if cfg.DevMode || !smtpCfg.IsConfigured() {
		if !cfg.DevMode {
			slog.Warn("SMTP not configured; emails will be logged, not sent")
		}
		return email.LogSender{}
	}
	return email.NewSMTPSender(smtpCfg)
}

// newGeocoder builds the geocoding client from ADV_GEOCODER_* settings.
func newGeocoder(cfg config.Config) (*geocode.Client, error) {
	return geocode.NewClient(geocode.Options{
		Key:     cfg.GeocoderKey,
		URL:     cfg.GeocoderURL,
		Rate:    cfg.GeocoderRate,
		Timeout: cfg.GeocoderTimeout,
	})
}

// newJobMux registers every background job handler. Reconciliation is only
// registered when a geocoder is available; its jobs are otherwise retried
// and dead-lettered as unknown kinds.
func newJobMux(cfg config.Config, database *sql.DB) *jobs.Mux {
	mux := jobs.NewMux()

	accounts := account.NewRepository(database)
	from := cfg.SMTPFrom
	if from == "" {
		from = "noreply@localhost"
	}
	notify.New(comment.NewRepository(database), accounts, issue.NewRepository(database),
		newSender(cfg), from, cfg.BaseURL).Register(mux)

	geocoder, err := newGeocoder(cfg)
	if err != nil {
		slog.Warn("account reconciliation disabled", "err", err)
		return mux
	}
	mux.Handle(jobs.KindAccountReconcile, reconcile.New(accounts, zone.NewRepository(database), geocoder).Handler())

	return mux
}

// runWorker processes jobs from q until ctx is cancelled.
func runWorker(ctx context.Context, q jobs.Queue, mux *jobs.Mux) error {
	slog.Info("worker started", "kinds", mux.Kinds())
	if err := q.Run(ctx, jobs.HandlerFunc(mux.Dispatch)); err != nil && ctx.Err() == nil {
		return fmt.Errorf("running worker: %w", err)
	}
	slog.Info("worker stopped")
	return nil
}

// closeQueue closes the queue, logging any error.
func closeQueue(q jobs.Queue) {
	if err := q.Close(); err != nil {
		slog.Warn("closing job queue", "err", err)
	}
}
