package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTrendingWarmup refreshes cached trending views.
	TaskTrendingWarmup = "community:trending_warmup"
	// TaskIdempotencyPurge deletes expired idempotency keys.
	TaskIdempotencyPurge = "maintenance:idempotency_purge"
)

// TrendingWarmupPayload lists the trending views to pre-compute. An empty
// Locations list warms the unfiltered view only.
type TrendingWarmupPayload struct {
	Locations []string `json:"locations,omitempty"`
	Limit     int      `json:"limit,omitempty"`
}

// IdempotencyPurgePayload controls how long idempotency keys are kept.
type IdempotencyPurgePayload struct {
	Retention time.Duration `json:"retention"`
}

// NewTrendingWarmupTask constructs an Asynq task.
func NewTrendingWarmupTask(payload TrendingWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTrendingWarmup, data), nil
}

// NewIdempotencyPurgeTask constructs an Asynq task.
func NewIdempotencyPurgeTask(retention time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyPurgePayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyPurge, data), nil
}
