package shared

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// IsUniqueViolation reports whether err is a postgres unique constraint failure.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// IdempotencyStore remembers client supplied request keys per scope and actor so
// a resubmitted request is rejected instead of applied twice.
type IdempotencyStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool, now: time.Now}
}

// Claim records key for (scope, actor). A key seen before yields ErrConflict.
func (s *IdempotencyStore) Claim(ctx context.Context, scope string, actorID int64, key string) error {
	if s == nil || s.pool == nil {
		return nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	if scope == "" {
		return fmt.Errorf("idempotency: scope required: %w", ErrInvalidArgument)
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO idempotency_keys (scope, actor_id, key, created_at) VALUES ($1, $2, $3, $4)`,
		scope, actorID, key, s.now().UTC())
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("idempotency: key %q already used: %w", key, ErrConflict)
		}
		return err
	}
	return nil
}

// Release forgets a claimed key, used when the guarded operation failed.
func (s *IdempotencyStore) Release(ctx context.Context, scope string, actorID int64, key string) error {
	if s == nil || s.pool == nil || strings.TrimSpace(key) == "" {
		return nil
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE scope=$1 AND actor_id=$2 AND key=$3`, scope, actorID, strings.TrimSpace(key))
	return err
}

// Purge removes keys older than retention.
func (s *IdempotencyStore) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, s.now().UTC().Add(-retention))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
