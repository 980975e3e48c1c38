package community

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute)
}

type countingRepo struct {
	*memoryRepo
	trendingCalls int
}

func (r *countingRepo) ListTrending(ctx context.Context, since time.Time, location string, limit int) ([]TrendingItem, error) {
	r.trendingCalls++
	return r.memoryRepo.ListTrending(ctx, since, location, limit)
}

func TestTrendingServedFromCacheUntilVote(t *testing.T) {
	repo := &countingRepo{memoryRepo: newMemoryRepo()}
	svc := NewService(repo, nil, nil, newTestCache(t), nil, nil)
	svc.now = func() time.Time { return baseTime }
	obs := seedObservation(t, repo.memoryRepo, Observation{StoreName: "Tesco", Price: decimal.NewFromInt(1)})

	ctx := context.Background()
	_, err := svc.Trending(ctx, TrendingFilter{})
	require.NoError(t, err)
	items, err := svc.Trending(ctx, TrendingFilter{})
	require.NoError(t, err)
	require.Equal(t, 1, repo.trendingCalls)
	require.Zero(t, items[0].Upvotes)

	_, err = svc.CastVote(ctx, obs.ID, 3, "up")
	require.NoError(t, err)

	items, err = svc.Trending(ctx, TrendingFilter{})
	require.NoError(t, err)
	require.Equal(t, 2, repo.trendingCalls)
	require.Equal(t, 1, items[0].Upvotes)
}

func TestCacheKeyFoldsLocation(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	a, err := cache.TrendingKey(ctx, TrendingFilter{Location: "London", Limit: 10})
	require.NoError(t, err)
	b, err := cache.TrendingKey(ctx, TrendingFilter{Location: " LONDON ", Limit: 10})
	require.NoError(t, err)
	require.Equal(t, a, b)

	require.NoError(t, cache.Bump(ctx))
	c, err := cache.TrendingKey(ctx, TrendingFilter{Location: "London", Limit: 10})
	require.NoError(t, err)
	require.NotEqual(t, a, c)
}

func TestNilCacheLoadsDirectly(t *testing.T) {
	var cache *Cache
	var out []int
	err := cache.FetchJSON(context.Background(), "k", &out, func(context.Context) (any, error) { return []int{1, 2}, nil })
	require.NoError(t, err)
	require.Equal(t, []int{1, 2}, out)
	require.NoError(t, cache.Bump(context.Background()))
}

func TestTrendingFallsBackToStoreOnCacheReadError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	repo := &countingRepo{memoryRepo: newMemoryRepo()}
	svc := NewService(repo, nil, nil, NewCache(client, time.Minute), nil, nil)
	svc.now = func() time.Time { return baseTime }
	obs := seedObservation(t, repo.memoryRepo, Observation{StoreName: "Tesco", Price: decimal.NewFromInt(1)})

	ctx := context.Background()
	key, err := svc.cache.TrendingKey(ctx, TrendingFilter{Limit: defaultTrendingLimit})
	require.NoError(t, err)
	// A list under the view key makes GET fail with WRONGTYPE.
	_, err = mr.Lpush(key, "stale")
	require.NoError(t, err)

	items, err := svc.Trending(ctx, TrendingFilter{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, obs.ID, items[0].ID)
	require.Equal(t, 1, repo.trendingCalls)
}

func TestBumpAdvancesVersion(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	before, err := cache.Version(ctx)
	require.NoError(t, err)
	require.NoError(t, cache.Bump(ctx))
	after, err := cache.Version(ctx)
	require.NoError(t, err)
	require.Equal(t, before+1, after)
}
