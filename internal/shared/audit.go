package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ActivityEntry is one row of the community activity trail.
type ActivityEntry struct {
	ActorID   int64
	Action    string
	Subject   string
	SubjectID int64
	Detail    map[string]any
	At        time.Time
}

// ActivityRecorder appends entries to community_activity.
type ActivityRecorder struct {
	pool *pgxpool.Pool
}

// NewActivityRecorder returns a recorder backed by pool.
func NewActivityRecorder(pool *pgxpool.Pool) *ActivityRecorder {
	return &ActivityRecorder{pool: pool}
}

// Record persists the entry.
func (r *ActivityRecorder) Record(ctx context.Context, entry ActivityEntry) error {
	if r == nil || r.pool == nil {
		return errors.New("activity recorder not initialised")
	}
	if entry.Action == "" || entry.Subject == "" {
		return errors.New("activity entry requires action and subject")
	}
	detail, err := json.Marshal(entry.Detail)
	if err != nil {
		return err
	}
	at := entry.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO community_activity (actor_id, action, subject, subject_id, detail, occurred_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ActorID, entry.Action, entry.Subject, entry.SubjectID, detail, at)
	return err
}
