package community

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNextStatus(t *testing.T) {
	cases := []struct {
		name    string
		up      int
		down    int
		current Status
		want    Status
	}{
		{"below minimum stays pending", 9, 0, StatusPending, StatusPending},
		{"below minimum keeps verified", 5, 4, StatusVerified, StatusVerified},
		{"exactly eighty percent verifies", 8, 2, StatusPending, StatusVerified},
		{"sixty percent down disputes", 4, 6, StatusPending, StatusDisputed},
		{"two of ten up disputes", 2, 8, StatusPending, StatusDisputed},
		{"band keeps pending", 7, 3, StatusPending, StatusPending},
		{"band keeps verified", 7, 3, StatusVerified, StatusVerified},
		{"band keeps disputed", 6, 5, StatusDisputed, StatusDisputed},
		{"verified can become disputed", 4, 6, StatusVerified, StatusDisputed},
		{"large tally verifies", 80, 20, StatusDisputed, StatusVerified},
		{"just under eighty percent", 79, 21, StatusPending, StatusPending},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, NextStatus(tc.up, tc.down, tc.current))
		})
	}
}

func TestTallyCast(t *testing.T) {
	up, down := VoteUp, VoteDown
	base := Tally{Upvotes: 3, Downvotes: 2, Status: StatusPending}

	next, changed := base.Cast(nil, VoteUp)
	require.True(t, changed)
	require.Equal(t, 4, next.Upvotes)
	require.Equal(t, 2, next.Downvotes)

	same, changed := base.Cast(&up, VoteUp)
	require.False(t, changed)
	require.Equal(t, base, same)

	flipped, changed := base.Cast(&up, VoteDown)
	require.True(t, changed)
	require.Equal(t, 2, flipped.Upvotes)
	require.Equal(t, 3, flipped.Downvotes)
	// margin moves by two
	require.Equal(t, (base.Upvotes-base.Downvotes)-2, flipped.Upvotes-flipped.Downvotes)
	require.Equal(t, base.Total(), flipped.Total())

	back, _ := flipped.Cast(&down, VoteUp)
	require.Equal(t, base.Upvotes, back.Upvotes)
	require.Equal(t, base.Downvotes, back.Downvotes)
}

func TestTallyFlipRecomputesOnce(t *testing.T) {
	// 9 up 2 down flipped to 8 up 3 down lands in the band. Recomputing after
	// the intermediate 8/2 would wrongly verify a pending observation.
	up := VoteUp
	pending := Tally{Upvotes: 9, Downvotes: 2, Status: StatusPending}
	next, changed := pending.Cast(&up, VoteDown)
	require.True(t, changed)
	require.Equal(t, 8, next.Upvotes)
	require.Equal(t, 3, next.Downvotes)
	require.Equal(t, StatusPending, next.Status)

	verified := Tally{Upvotes: 9, Downvotes: 2, Status: StatusVerified}
	next, _ = verified.Cast(&up, VoteDown)
	require.Equal(t, StatusVerified, next.Status)
}

func TestTallyRemoveNeverNegative(t *testing.T) {
	t0 := Tally{Status: StatusPending}
	require.Equal(t, 0, t0.Remove(VoteUp).Upvotes)
	require.Equal(t, 0, t0.Remove(VoteDown).Downvotes)

	t1 := Tally{Upvotes: 8, Downvotes: 2, Status: StatusVerified}.Remove(VoteUp)
	require.Equal(t, 7, t1.Upvotes)
	require.Equal(t, StatusVerified, t1.Status)
}

func TestParseVoteType(t *testing.T) {
	for raw, want := range map[string]VoteType{"up": VoteUp, "UPVOTE": VoteUp, " down ": VoteDown, "downvote": VoteDown} {
		got, err := ParseVoteType(raw)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := ParseVoteType("sideways")
	require.ErrorIs(t, err, ErrInvalidVoteType)
}
