package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/mastermarket/mastermarket/internal/jobs"
)

// DefaultIdempotencyRetention is how long submission keys are honoured.
const DefaultIdempotencyRetention = 72 * time.Hour

// KeyPurger deletes idempotency keys older than a retention window.
type KeyPurger interface {
	Purge(ctx context.Context, retention time.Duration) (int64, error)
}

// IdempotencyPurgeJob removes expired idempotency keys.
type IdempotencyPurgeJob struct {
	Store   KeyPurger
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewIdempotencyPurgeJob wires dependencies for the purge handler.
func NewIdempotencyPurgeJob(store KeyPurger, logger *slog.Logger, metrics *jobmetrics.Metrics) *IdempotencyPurgeJob {
	return &IdempotencyPurgeJob{Store: store, Logger: logger, Metrics: metrics}
}

// Handle processes purge tasks.
func (j *IdempotencyPurgeJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("idempotency purge: handler not configured")
	}
	var payload IdempotencyPurgePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.Retention <= 0 {
		payload.Retention = DefaultIdempotencyRetention
	}
	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("job", TaskIdempotencyPurge))

	tracker := metrics.Track(TaskIdempotencyPurge)
	removed, err := j.Store.Purge(ctx, payload.Retention)
	if err = tracker.End(err); err != nil {
		logger.Error("purge idempotency keys", slog.Any("error", err))
		return err
	}
	metrics.AddItems(TaskIdempotencyPurge, removed)
	logger.Info("purged idempotency keys", slog.Int64("removed", removed), slog.Duration("retention", payload.Retention))
	return nil
}
