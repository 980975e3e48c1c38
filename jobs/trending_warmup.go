package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"

	"github.com/mastermarket/mastermarket/internal/community"
	jobmetrics "github.com/mastermarket/mastermarket/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

const (
	trendingWarmupLockKey = "lock:community:trending_warmup"
	defaultWarmupLockTTL  = 2 * time.Minute
)

// TrendingWarmer pre-computes trending views.
type TrendingWarmer interface {
	WarmTrending(ctx context.Context, filters []community.TrendingFilter) (int, error)
}

// TrendingWarmupJob refreshes the trending cache. Replicas coordinate through
// a Redis lock so only one warmup runs at a time.
type TrendingWarmupJob struct {
	Warmer  TrendingWarmer
	Locker  *redislock.Client
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	LockTTL time.Duration
}

// NewTrendingWarmupJob wires dependencies for the warmup handler.
func NewTrendingWarmupJob(warmer TrendingWarmer, locker *redislock.Client, logger *slog.Logger, metrics *jobmetrics.Metrics) *TrendingWarmupJob {
	return &TrendingWarmupJob{
		Warmer:  warmer,
		Locker:  locker,
		Logger:  logger,
		Metrics: metrics,
		LockTTL: defaultWarmupLockTTL,
	}
}

// Handle processes trending warmup tasks.
func (j *TrendingWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Warmer == nil {
		return errors.New("trending warmup: handler not configured")
	}
	var payload TrendingWarmupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	logger := j.logger()
	if j.Locker != nil {
		ttl := j.LockTTL
		if ttl <= 0 {
			ttl = defaultWarmupLockTTL
		}
		lock, err := j.Locker.Obtain(ctx, trendingWarmupLockKey, ttl, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			logger.Info("trending warmup already running elsewhere, skipping")
			return nil
		}
		if err != nil {
			logger.Error("obtain warmup lock", slog.Any("error", err))
			return err
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				logger.Warn("release warmup lock", slog.Any("error", err))
			}
		}()
	}

	tracker := j.metrics().Track(TaskTrendingWarmup)
	start := time.Now()
	warmed, err := j.Warmer.WarmTrending(ctx, payload.filters())
	j.metrics().AddItems(TaskTrendingWarmup, int64(warmed))
	if err = tracker.End(err); err != nil {
		logger.Error("warm trending", slog.Int("warmed", warmed), slog.Any("error", err))
		return err
	}
	logger.Info("completed trending warmup", slog.Int("views", warmed), slog.Duration("duration", time.Since(start)))
	return nil
}

func (p TrendingWarmupPayload) filters() []community.TrendingFilter {
	out := []community.TrendingFilter{{Limit: p.Limit}}
	for _, loc := range p.Locations {
		if loc == "" {
			continue
		}
		out = append(out, community.TrendingFilter{Location: loc, Limit: p.Limit})
	}
	return out
}

func (j *TrendingWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskTrendingWarmup))
	}
	return slog.Default().With(slog.String("job", TaskTrendingWarmup))
}

func (j *TrendingWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
