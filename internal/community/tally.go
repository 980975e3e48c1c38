package community

// MinVotesForStatus is the vote count below which status is left alone.
const MinVotesForStatus = 10

// Tally holds vote counters and the status derived from them.
type Tally struct {
	Upvotes   int
	Downvotes int
	Status    Status
}

// Total is the number of votes counted.
func (t Tally) Total() int {
	return t.Upvotes + t.Downvotes
}

// NextStatus derives the verification status from counters. Below
// MinVotesForStatus, and in the band between the two thresholds, the current
// status is kept.
func NextStatus(up, down int, current Status) Status {
	total := up + down
	if total < MinVotesForStatus {
		return current
	}
	// up/total >= 0.8 and down/total >= 0.6 without float rounding.
	if up*10 >= total*8 {
		return StatusVerified
	}
	if down*10 >= total*6 {
		return StatusDisputed
	}
	return current
}

// Cast applies a vote by a voter whose previous vote was prev (nil when none).
// It reports false when the vote repeats prev and nothing changes.
func (t Tally) Cast(prev *VoteType, next VoteType) (Tally, bool) {
	if prev != nil && *prev == next {
		return t, false
	}
	if prev != nil {
		t = t.adjust(*prev, -1)
	}
	t = t.adjust(next, 1)
	t.Status = NextStatus(t.Upvotes, t.Downvotes, t.Status)
	return t, true
}

// Remove withdraws a vote of type prev.
func (t Tally) Remove(prev VoteType) Tally {
	t = t.adjust(prev, -1)
	t.Status = NextStatus(t.Upvotes, t.Downvotes, t.Status)
	return t
}

func (t Tally) adjust(v VoteType, delta int) Tally {
	switch v {
	case VoteUp:
		t.Upvotes = max(t.Upvotes+delta, 0)
	case VoteDown:
		t.Downvotes = max(t.Downvotes+delta, 0)
	}
	return t
}
