package community

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mastermarket/mastermarket/internal/shared"
)

const (
	// TrendingWindow bounds how old a trending observation may be.
	TrendingWindow = 7 * 24 * time.Hour

	defaultTrendingLimit = 10
	defaultRecentLimit   = 3
	defaultLookbackDays  = 7
	defaultPopularLimit  = 10
	maxListLimit         = 100

	submitScope = "community.submit"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ProductExists(ctx context.Context, productID int64) (bool, error)
	InsertObservation(ctx context.Context, obs Observation) (Observation, error)
	ListTrending(ctx context.Context, since time.Time, location string, limit int) ([]TrendingItem, error)
	ListRecentForProduct(ctx context.Context, productID int64, n int) ([]Observation, error)
	ListForProductSince(ctx context.Context, productID int64, since time.Time, location string) ([]Observation, error)
	VotesByVoter(ctx context.Context, voterID int64, observationIDs []int64) (map[int64]VoteType, error)
	PopularStores(ctx context.Context, limit int) ([]PopularStore, error)
}

// ActivityPort records community actions.
type ActivityPort interface {
	Record(ctx context.Context, entry shared.ActivityEntry) error
}

// IdempotencyPort guards resubmitted requests.
type IdempotencyPort interface {
	Claim(ctx context.Context, scope string, actorID int64, key string) error
	Release(ctx context.Context, scope string, actorID int64, key string) error
}

// Service coordinates the price ledger, vote tallies and ranked views.
type Service struct {
	repo        RepositoryPort
	activity    ActivityPort
	idempotency IdempotencyPort
	cache       *Cache
	metrics     *Metrics
	logger      *slog.Logger
	now         func() time.Time
}

// NewService builds Service. activity, idempotency, cache and metrics are optional.
func NewService(repo RepositoryPort, activity ActivityPort, idempotency IdempotencyPort, cache *Cache, metrics *Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		activity:    activity,
		idempotency: idempotency,
		cache:       cache,
		metrics:     metrics,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Submit records a new price observation as pending with no votes.
func (s *Service) Submit(ctx context.Context, input SubmitInput) (Observation, error) {
	if input.SubmitterID <= 0 {
		return Observation{}, fmt.Errorf("community: submitter required: %w", shared.ErrUnauthenticated)
	}
	storeName := strings.TrimSpace(input.StoreName)
	if input.ProductID <= 0 || storeName == "" {
		return Observation{}, fmt.Errorf("community: product and store name required: %w", shared.ErrInvalidArgument)
	}
	if !shared.ValidPrice(input.Price) {
		return Observation{}, ErrInvalidPrice
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = DefaultCurrency
	}
	if len(currency) != 3 {
		return Observation{}, fmt.Errorf("community: currency %q: %w", input.Currency, shared.ErrInvalidArgument)
	}
	exists, err := s.repo.ProductExists(ctx, input.ProductID)
	if err != nil {
		return Observation{}, err
	}
	if !exists {
		return Observation{}, ErrProductNotFound
	}
	if s.idempotency != nil {
		if err := s.idempotency.Claim(ctx, submitScope, input.SubmitterID, input.IdempotencyKey); err != nil {
			return Observation{}, err
		}
	}
	obs, err := s.repo.InsertObservation(ctx, Observation{
		ProductID:     input.ProductID,
		SubmitterID:   input.SubmitterID,
		StoreName:     storeName,
		StoreLocation: strings.TrimSpace(input.StoreLocation),
		Price:         input.Price,
		Currency:      currency,
		PhotoURL:      strings.TrimSpace(input.PhotoURL),
		Status:        StatusPending,
		CreatedAt:     s.now(),
	})
	if err != nil {
		if s.idempotency != nil {
			if relErr := s.idempotency.Release(ctx, submitScope, input.SubmitterID, input.IdempotencyKey); relErr != nil {
				s.logger.Warn("release idempotency key", slog.Any("error", relErr))
			}
		}
		return Observation{}, err
	}
	s.metrics.submitted()
	s.afterMutation(ctx, shared.ActivityEntry{
		ActorID:   input.SubmitterID,
		Action:    "price.submitted",
		Subject:   "price_observation",
		SubjectID: obs.ID,
		Detail:    map[string]any{"product_id": obs.ProductID, "store_name": obs.StoreName, "price": obs.Price.String()},
	})
	return obs, nil
}

// CastVote records voterID's vote on an observation. Repeating the same vote
// changes nothing; voting the other way flips the existing vote.
func (s *Service) CastVote(ctx context.Context, observationID, voterID int64, rawType string) (VoteResult, error) {
	if voterID <= 0 {
		return VoteResult{}, fmt.Errorf("community: voter required: %w", shared.ErrUnauthenticated)
	}
	voteType, err := ParseVoteType(rawType)
	if err != nil {
		return VoteResult{}, err
	}
	result, outcome, err := s.castVote(ctx, observationID, voterID, voteType)
	if errors.Is(err, ErrVoteConflict) {
		// A concurrent request inserted the same vote first. The rerun takes the
		// update path against the committed row.
		s.metrics.retried()
		result, outcome, err = s.castVote(ctx, observationID, voterID, voteType)
	}
	if err != nil {
		return VoteResult{}, err
	}
	s.metrics.vote(outcome)
	if outcome != "unchanged" {
		s.afterMutation(ctx, shared.ActivityEntry{
			ActorID:   voterID,
			Action:    "vote." + outcome,
			Subject:   "price_observation",
			SubjectID: observationID,
			Detail:    map[string]any{"vote_type": string(voteType), "status": string(result.Status)},
		})
	}
	return result, nil
}

func (s *Service) castVote(ctx context.Context, observationID, voterID int64, voteType VoteType) (VoteResult, string, error) {
	var result VoteResult
	outcome := "unchanged"
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		obs, err := tx.GetObservationForUpdate(ctx, observationID)
		if err != nil {
			return err
		}
		var prev *VoteType
		existing, err := tx.FindVote(ctx, observationID, voterID)
		switch {
		case err == nil:
			prev = &existing.Type
		case !errors.Is(err, ErrVoteNotFound):
			return err
		}
		tally, changed := obs.Tally().Cast(prev, voteType)
		result = newVoteResult(observationID, tally, &voteType)
		if !changed {
			return nil
		}
		now := s.now()
		if prev == nil {
			if _, err := tx.InsertVote(ctx, Vote{ObservationID: observationID, VoterID: voterID, Type: voteType, CreatedAt: now}); err != nil {
				return err
			}
			outcome = "cast"
		} else {
			if err := tx.UpdateVoteType(ctx, existing.ID, voteType); err != nil {
				return err
			}
			outcome = "flipped"
		}
		return tx.SaveTally(ctx, observationID, tally, now)
	})
	if err != nil {
		return VoteResult{}, "", err
	}
	return result, outcome, nil
}

// RemoveVote withdraws voterID's vote from an observation.
func (s *Service) RemoveVote(ctx context.Context, observationID, voterID int64) (VoteResult, error) {
	if voterID <= 0 {
		return VoteResult{}, fmt.Errorf("community: voter required: %w", shared.ErrUnauthenticated)
	}
	var result VoteResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		obs, err := tx.GetObservationForUpdate(ctx, observationID)
		if err != nil {
			return err
		}
		existing, err := tx.FindVote(ctx, observationID, voterID)
		if err != nil {
			return err
		}
		if err := tx.DeleteVote(ctx, existing.ID); err != nil {
			return err
		}
		tally := obs.Tally().Remove(existing.Type)
		result = newVoteResult(observationID, tally, nil)
		return tx.SaveTally(ctx, observationID, tally, s.now())
	})
	if err != nil {
		return VoteResult{}, err
	}
	s.metrics.vote("removed")
	s.afterMutation(ctx, shared.ActivityEntry{
		ActorID:   voterID,
		Action:    "vote.removed",
		Subject:   "price_observation",
		SubjectID: observationID,
		Detail:    map[string]any{"status": string(result.Status)},
	})
	return result, nil
}

func newVoteResult(observationID int64, tally Tally, userVote *VoteType) VoteResult {
	return VoteResult{
		ObservationID: observationID,
		Upvotes:       tally.Upvotes,
		Downvotes:     tally.Downvotes,
		Status:        tally.Status,
		UserVote:      userVote,
	}
}

// afterMutation invalidates cached views and appends to the activity trail.
// Neither failure undoes the committed write.
func (s *Service) afterMutation(ctx context.Context, entry shared.ActivityEntry) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("bump trending cache", slog.Any("error", err))
	}
	if s.activity == nil {
		return
	}
	entry.At = s.now()
	if err := s.activity.Record(ctx, entry); err != nil {
		s.logger.Warn("record community activity", slog.String("action", entry.Action), slog.Any("error", err))
	}
}

// Trending lists the most engaged observations of the last seven days.
func (s *Service) Trending(ctx context.Context, filter TrendingFilter) ([]TrendingItem, error) {
	filter.Location = strings.TrimSpace(filter.Location)
	filter.Limit = clampLimit(filter.Limit, defaultTrendingLimit)
	load := func(ctx context.Context) (any, error) {
		items, err := s.repo.ListTrending(ctx, s.now().Add(-TrendingWindow), filter.Location, filter.Limit)
		if err != nil {
			return nil, err
		}
		return RankTrending(items, filter.Location, filter.Limit), nil
	}
	key, err := s.cache.TrendingKey(ctx, filter)
	if err != nil {
		s.logger.Warn("trending cache key", slog.Any("error", err))
		items, err := load(ctx)
		if err != nil {
			return nil, err
		}
		return items.([]TrendingItem), nil
	}
	var (
		items   []TrendingItem
		loaded  any
		loadErr error
	)
	err = s.cache.FetchJSON(ctx, key, &items, func(ctx context.Context) (any, error) {
		loaded, loadErr = load(ctx)
		return loaded, loadErr
	})
	switch {
	case loadErr != nil:
		return nil, loadErr
	case err != nil:
		s.logger.Warn("trending cache", slog.String("key", key), slog.Any("error", err))
		if loaded == nil {
			if loaded, err = load(ctx); err != nil {
				return nil, err
			}
		}
		items = loaded.([]TrendingItem)
	}
	if items == nil {
		items = []TrendingItem{}
	}
	return items, nil
}

// WarmTrending precomputes trending views for the given filters.
func (s *Service) WarmTrending(ctx context.Context, filters []TrendingFilter) (int, error) {
	warmed := 0
	for _, f := range filters {
		if _, err := s.Trending(ctx, f); err != nil {
			return warmed, err
		}
		warmed++
	}
	return warmed, nil
}

// RecentWithChange lists the newest observation per store for a product with
// the change from that store's previous observation.
func (s *Service) RecentWithChange(ctx context.Context, productID, voterID int64, limit int) ([]RecentItem, error) {
	limit = clampLimit(limit, defaultRecentLimit)
	observations, err := s.repo.ListRecentForProduct(ctx, productID, limit*3)
	if err != nil {
		return nil, err
	}
	items := GroupRecent(observations, limit)
	ids := make([]int64, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	votes, err := s.repo.VotesByVoter(ctx, voterID, ids)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].UserVote = lookupVote(votes, items[i].ID)
	}
	return items, nil
}

// ProductVotes lists observations of a product within the lookback window,
// best supported first, annotated with the voter's own votes.
func (s *Service) ProductVotes(ctx context.Context, filter ProductVoteFilter) ([]ProductVoteItem, error) {
	days := filter.Days
	if days <= 0 {
		days = defaultLookbackDays
	}
	location := strings.TrimSpace(filter.Location)
	since := s.now().AddDate(0, 0, -days)
	observations, err := s.repo.ListForProductSince(ctx, filter.ProductID, since, location)
	if err != nil {
		return nil, err
	}
	ranked := RankProductVotes(observations, location)
	ids := make([]int64, len(ranked))
	for i, obs := range ranked {
		ids[i] = obs.ID
	}
	votes, err := s.repo.VotesByVoter(ctx, filter.VoterID, ids)
	if err != nil {
		return nil, err
	}
	items := make([]ProductVoteItem, len(ranked))
	for i, obs := range ranked {
		items[i] = ProductVoteItem{Observation: obs, UserVote: lookupVote(votes, obs.ID)}
	}
	return items, nil
}

// PopularStores lists stores with the most submissions.
func (s *Service) PopularStores(ctx context.Context, limit int) ([]PopularStore, error) {
	return s.repo.PopularStores(ctx, clampLimit(limit, defaultPopularLimit))
}

func lookupVote(votes map[int64]VoteType, id int64) *VoteType {
	v, ok := votes[id]
	if !ok {
		return nil
	}
	return &v
}

func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return min(limit, maxListLimit)
}
