package community

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func obsAt(id int64, store string, price string, minutesAgo int) Observation {
	return Observation{
		ID:        id,
		StoreName: store,
		Price:     decimal.RequireFromString(price),
		CreatedAt: baseTime.Add(-time.Duration(minutesAgo) * time.Minute),
	}
}

func TestGroupRecentStopsAtLimit(t *testing.T) {
	observations := []Observation{
		obsAt(1, "Tesco", "1.00", 10),
		obsAt(2, "Aldi", "2.00", 20),
		obsAt(3, "Lidl", "3.00", 30),
		obsAt(4, "tesco", "0.80", 40),
	}
	items := GroupRecent(observations, 2)
	require.Len(t, items, 2)
	require.Equal(t, int64(1), items[0].ID)
	require.Equal(t, int64(2), items[1].ID)
	// Tesco's previous observation lies beyond the limit but is still within
	// the fetched window, so its change is reported.
	require.True(t, items[0].PercentChange.Equal(decimal.NewFromInt(25)))
}

func TestGroupRecentSortsUnorderedInput(t *testing.T) {
	observations := []Observation{
		obsAt(1, "Tesco", "1.00", 60),
		obsAt(2, "Tesco", "1.50", 5),
	}
	items := GroupRecent(observations, 3)
	require.Len(t, items, 1)
	require.Equal(t, int64(2), items[0].ID)
	require.True(t, items[0].PercentChange.Equal(decimal.NewFromInt(50)))
}

func TestGroupRecentFoldsStoreNames(t *testing.T) {
	items := GroupRecent([]Observation{
		obsAt(1, "SAINSBURY'S", "2.00", 1),
		obsAt(2, "Sainsbury's", "2.50", 2),
	}, 5)
	require.Len(t, items, 1)
	require.True(t, items[0].PercentChange.Equal(decimal.NewFromInt(-20)))
}

func TestPercentChange(t *testing.T) {
	require.Nil(t, PercentChange(decimal.NewFromInt(1), decimal.Zero))
	require.Nil(t, PercentChange(decimal.NewFromInt(1), decimal.NewFromInt(-1)))
	got := PercentChange(decimal.RequireFromString("1.20"), decimal.RequireFromString("1.00"))
	require.NotNil(t, got)
	require.Equal(t, "20", got.String())
	got = PercentChange(decimal.NewFromInt(2), decimal.NewFromInt(3))
	require.Equal(t, "-33.3333", got.String())
}

func TestRankTrendingTieBreaksOnRecency(t *testing.T) {
	older := TrendingItem{Observation: Observation{ID: 1, Upvotes: 3, CreatedAt: baseTime.Add(-2 * time.Hour)}}
	newer := TrendingItem{Observation: Observation{ID: 2, Downvotes: 3, CreatedAt: baseTime.Add(-time.Hour)}}
	top := TrendingItem{Observation: Observation{ID: 3, Upvotes: 2, Downvotes: 2, CreatedAt: baseTime.Add(-5 * time.Hour)}}
	ranked := RankTrending([]TrendingItem{older, newer, top}, "", 10)
	require.Equal(t, []int64{3, 2, 1}, trendingIDs(ranked))
}

func TestRankProductVotes(t *testing.T) {
	a := Observation{ID: 1, StoreLocation: "Leeds", Upvotes: 2, CreatedAt: baseTime.Add(-time.Hour)}
	b := Observation{ID: 2, StoreLocation: "London", Upvotes: 5, Downvotes: 3, CreatedAt: baseTime}
	c := Observation{ID: 3, StoreLocation: "london", Upvotes: 1, Downvotes: 4, CreatedAt: baseTime}
	ranked := RankProductVotes([]Observation{c, a, b}, "")
	require.Equal(t, int64(2), ranked[0].ID)
	require.Equal(t, int64(1), ranked[1].ID)
	require.Equal(t, int64(3), ranked[2].ID)

	london := RankProductVotes([]Observation{c, a, b}, "LONDON")
	require.Len(t, london, 2)
	require.Equal(t, int64(2), london[0].ID)
}
