package community

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mastermarket/mastermarket/internal/shared"
)

// Repository provides persistence for observations and votes.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the vote ledger writes executed within a transaction.
type TxRepository interface {
	GetObservationForUpdate(ctx context.Context, id int64) (Observation, error)
	FindVote(ctx context.Context, observationID, voterID int64) (Vote, error)
	InsertVote(ctx context.Context, vote Vote) (Vote, error)
	UpdateVoteType(ctx context.Context, voteID int64, voteType VoteType) error
	DeleteVote(ctx context.Context, voteID int64) error
	SaveTally(ctx context.Context, observationID int64, tally Tally, at time.Time) error
}

type txRepository struct {
	tx pgx.Tx
}

const observationColumns = `o.id, o.product_id, o.submitter_id, o.store_name, COALESCE(o.store_location, ''), o.price, o.currency, COALESCE(o.photo_url, ''), o.upvote_count, o.downvote_count, o.verification_status, o.created_at, o.updated_at`

// WithTx runs fn inside a read-committed transaction. Lost updates are
// prevented by the observation row lock taken in GetObservationForUpdate.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	if err := fn(ctx, &txRepository{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func scanObservation(row pgx.Row, extra ...any) (Observation, error) {
	var o Observation
	var status string
	dest := []any{&o.ID, &o.ProductID, &o.SubmitterID, &o.StoreName, &o.StoreLocation, &o.Price, &o.Currency, &o.PhotoURL,
		&o.Upvotes, &o.Downvotes, &status, &o.CreatedAt, &o.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return Observation{}, err
	}
	o.Status = Status(status)
	return o, nil
}

// ProductExists reports whether the catalog contains productID.
func (r *Repository) ProductExists(ctx context.Context, productID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists)
	return exists, err
}

// InsertObservation stores a new observation with zero counts.
func (r *Repository) InsertObservation(ctx context.Context, obs Observation) (Observation, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO price_observations
    (product_id, submitter_id, store_name, store_location, price, currency, photo_url, upvote_count, downvote_count, verification_status, created_at, updated_at)
VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, NULLIF($7, ''), 0, 0, $8, $9, $9)
RETURNING id, price`,
		obs.ProductID, obs.SubmitterID, obs.StoreName, obs.StoreLocation, obs.Price, obs.Currency, obs.PhotoURL, string(obs.Status), obs.CreatedAt).
		Scan(&obs.ID, &obs.Price)
	if err != nil {
		return Observation{}, err
	}
	obs.UpdatedAt = obs.CreatedAt
	return obs, nil
}

// ListTrending returns observations created since the cutoff, most engaged first.
func (r *Repository) ListTrending(ctx context.Context, since time.Time, location string, limit int) ([]TrendingItem, error) {
	args := []any{since}
	where := `o.created_at >= $1`
	if location != "" {
		args = append(args, "%"+escapeLike(location)+"%")
		where += fmt.Sprintf(` AND o.store_location ILIKE $%d`, len(args))
	}
	args = append(args, limit)
	query := fmt.Sprintf(`SELECT %s, p.name, COALESCE(p.image_url, '')
FROM price_observations o
JOIN products p ON p.id = o.product_id
WHERE %s
ORDER BY (o.upvote_count + o.downvote_count) DESC, o.created_at DESC, o.id DESC
LIMIT $%d`, observationColumns, where, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []TrendingItem{}
	for rows.Next() {
		var item TrendingItem
		obs, err := scanObservation(rows, &item.ProductName, &item.ProductImage)
		if err != nil {
			return nil, err
		}
		item.Observation = obs
		items = append(items, item)
	}
	return items, rows.Err()
}

// ListRecentForProduct returns up to n observations of a product, newest first.
func (r *Repository) ListRecentForProduct(ctx context.Context, productID int64, n int) ([]Observation, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+observationColumns+`
FROM price_observations o
WHERE o.product_id = $1
ORDER BY o.created_at DESC, o.id DESC
LIMIT $2`, productID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectObservations(rows)
}

// ListForProductSince returns observations of a product created since the cutoff.
func (r *Repository) ListForProductSince(ctx context.Context, productID int64, since time.Time, location string) ([]Observation, error) {
	args := []any{productID, since}
	where := `o.product_id = $1 AND o.created_at >= $2`
	if location != "" {
		args = append(args, "%"+escapeLike(location)+"%")
		where += ` AND o.store_location ILIKE $3`
	}
	rows, err := r.pool.Query(ctx, `SELECT `+observationColumns+`
FROM price_observations o
WHERE `+where+`
ORDER BY (o.upvote_count - o.downvote_count) DESC, o.created_at DESC, o.id DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectObservations(rows)
}

// VotesByVoter maps observation id to the voter's vote for the given ids.
func (r *Repository) VotesByVoter(ctx context.Context, voterID int64, observationIDs []int64) (map[int64]VoteType, error) {
	votes := make(map[int64]VoteType)
	if voterID <= 0 || len(observationIDs) == 0 {
		return votes, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT observation_id, vote_type FROM price_votes WHERE voter_id = $1 AND observation_id = ANY($2)`, voterID, observationIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var vt string
		if err := rows.Scan(&id, &vt); err != nil {
			return nil, err
		}
		votes[id] = VoteType(vt)
	}
	return votes, rows.Err()
}

// PopularStores counts submissions per (store name, location).
func (r *Repository) PopularStores(ctx context.Context, limit int) ([]PopularStore, error) {
	rows, err := r.pool.Query(ctx, `SELECT store_name, COALESCE(store_location, ''), COUNT(*)
FROM price_observations
GROUP BY store_name, COALESCE(store_location, '')
ORDER BY COUNT(*) DESC, store_name ASC
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	stores := []PopularStore{}
	for rows.Next() {
		var s PopularStore
		if err := rows.Scan(&s.StoreName, &s.StoreLocation, &s.Submissions); err != nil {
			return nil, err
		}
		stores = append(stores, s)
	}
	return stores, rows.Err()
}

func collectObservations(rows pgx.Rows) ([]Observation, error) {
	list := []Observation{}
	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, obs)
	}
	return list, rows.Err()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (t *txRepository) GetObservationForUpdate(ctx context.Context, id int64) (Observation, error) {
	obs, err := scanObservation(t.tx.QueryRow(ctx, `SELECT `+observationColumns+` FROM price_observations o WHERE o.id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Observation{}, ErrObservationNotFound
	}
	return obs, err
}

func (t *txRepository) FindVote(ctx context.Context, observationID, voterID int64) (Vote, error) {
	var v Vote
	var vt string
	err := t.tx.QueryRow(ctx, `SELECT id, observation_id, voter_id, vote_type, created_at FROM price_votes WHERE observation_id = $1 AND voter_id = $2`,
		observationID, voterID).Scan(&v.ID, &v.ObservationID, &v.VoterID, &vt, &v.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Vote{}, ErrVoteNotFound
	}
	v.Type = VoteType(vt)
	return v, err
}

func (t *txRepository) InsertVote(ctx context.Context, vote Vote) (Vote, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO price_votes (observation_id, voter_id, vote_type, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		vote.ObservationID, vote.VoterID, string(vote.Type), vote.CreatedAt).Scan(&vote.ID)
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return Vote{}, ErrVoteConflict
		}
		return Vote{}, err
	}
	return vote, nil
}

func (t *txRepository) UpdateVoteType(ctx context.Context, voteID int64, voteType VoteType) error {
	_, err := t.tx.Exec(ctx, `UPDATE price_votes SET vote_type = $1 WHERE id = $2`, string(voteType), voteID)
	return err
}

func (t *txRepository) DeleteVote(ctx context.Context, voteID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM price_votes WHERE id = $1`, voteID)
	return err
}

func (t *txRepository) SaveTally(ctx context.Context, observationID int64, tally Tally, at time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE price_observations SET upvote_count = $1, downvote_count = $2, verification_status = $3, updated_at = $4 WHERE id = $5`,
		tally.Upvotes, tally.Downvotes, string(tally.Status), at, observationID)
	return err
}
