package community

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
)

var hundred = decimal.NewFromInt(100)

// containsFold reports whether needle occurs in s ignoring case. An empty
// needle matches everything.
func containsFold(s, needle string) bool {
	if needle == "" {
		return true
	}
	fold := cases.Fold()
	return strings.Contains(fold.String(s), fold.String(needle))
}

// RankTrending filters by location, orders by engagement then recency and
// truncates to limit.
func RankTrending(items []TrendingItem, location string, limit int) []TrendingItem {
	out := make([]TrendingItem, 0, len(items))
	for _, item := range items {
		if containsFold(item.StoreLocation, location) {
			out = append(out, item)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ei, ej := out[i].Tally().Total(), out[j].Tally().Total()
		if ei != ej {
			return ei > ej
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// GroupRecent keeps the newest observation per store, compares it with the
// store's previous observation and stops after limit stores. Stores appear in
// the order their newest observation was found.
func GroupRecent(observations []Observation, limit int) []RecentItem {
	sorted := make([]Observation, len(observations))
	copy(sorted, observations)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	fold := cases.Fold()
	var order []string
	groups := make(map[string][]Observation)
	for _, obs := range sorted {
		key := fold.String(obs.StoreName)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], obs)
	}

	items := make([]RecentItem, 0, min(len(order), max(limit, 0)))
	for _, key := range order {
		if len(items) >= limit {
			break
		}
		group := groups[key]
		item := RecentItem{Observation: group[0]}
		if len(group) > 1 {
			prev := group[1].Price
			item.PreviousPrice = &prev
			item.PercentChange = PercentChange(group[0].Price, prev)
		}
		items = append(items, item)
	}
	return items
}

// PercentChange returns (current-previous)/previous*100, or nil when previous
// is not positive.
func PercentChange(current, previous decimal.Decimal) *decimal.Decimal {
	if !previous.IsPositive() {
		return nil
	}
	change := current.Sub(previous).Div(previous).Mul(hundred).Round(4)
	return &change
}

// RankProductVotes filters by location and orders by net score then recency.
func RankProductVotes(observations []Observation, location string) []Observation {
	out := make([]Observation, 0, len(observations))
	for _, obs := range observations {
		if containsFold(obs.StoreLocation, location) {
			out = append(out, obs)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		si, sj := out[i].Upvotes-out[i].Downvotes, out[j].Upvotes-out[j].Downvotes
		if si != sj {
			return si > sj
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
