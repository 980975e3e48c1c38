package community

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mastermarket/mastermarket/internal/shared"
)

// VoteType is the direction of a community vote.
type VoteType string

const (
	// VoteUp confirms an observed price.
	VoteUp VoteType = "up"
	// VoteDown disputes an observed price.
	VoteDown VoteType = "down"
)

// ParseVoteType accepts up/down and the long upvote/downvote spellings.
func ParseVoteType(raw string) (VoteType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "up", "upvote":
		return VoteUp, nil
	case "down", "downvote":
		return VoteDown, nil
	}
	return "", fmt.Errorf("community: vote type %q: %w", raw, ErrInvalidVoteType)
}

// Status is the verification state derived from vote tallies.
type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusDisputed Status = "disputed"
)

// DefaultCurrency applies when a submission omits currency.
const DefaultCurrency = "GBP"

// Observation is a crowd-submitted price seen at a store.
type Observation struct {
	ID            int64           `json:"id"`
	ProductID     int64           `json:"product_id"`
	SubmitterID   int64           `json:"submitter_id"`
	StoreName     string          `json:"store_name"`
	StoreLocation string          `json:"store_location"`
	Price         decimal.Decimal `json:"price"`
	Currency      string          `json:"currency"`
	PhotoURL      string          `json:"photo_url,omitempty"`
	Upvotes       int             `json:"upvotes"`
	Downvotes     int             `json:"downvotes"`
	Status        Status          `json:"verification_status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Tally returns the observation's counters and status.
func (o Observation) Tally() Tally {
	return Tally{Upvotes: o.Upvotes, Downvotes: o.Downvotes, Status: o.Status}
}

// Vote is one voter's stance on one observation.
type Vote struct {
	ID            int64     `json:"id"`
	ObservationID int64     `json:"observation_id"`
	VoterID       int64     `json:"voter_id"`
	Type          VoteType  `json:"vote_type"`
	CreatedAt     time.Time `json:"created_at"`
}

// SubmitInput carries a new observation.
type SubmitInput struct {
	ProductID      int64
	SubmitterID    int64
	StoreName      string
	StoreLocation  string
	Price          decimal.Decimal
	Currency       string
	PhotoURL       string
	IdempotencyKey string
}

// VoteResult reports the tally after a vote mutation.
type VoteResult struct {
	ObservationID int64     `json:"observation_id"`
	Upvotes       int       `json:"upvotes"`
	Downvotes     int       `json:"downvotes"`
	Status        Status    `json:"verification_status"`
	UserVote      *VoteType `json:"user_vote"`
}

// TrendingItem is an observation joined with product display fields.
type TrendingItem struct {
	Observation
	ProductName  string `json:"product_name"`
	ProductImage string `json:"product_image_url"`
}

// TrendingFilter narrows the trending view.
type TrendingFilter struct {
	Location string
	Limit    int
}

// RecentItem is the newest observation for one store with its change from the
// previous one.
type RecentItem struct {
	Observation
	PreviousPrice *decimal.Decimal `json:"previous_price"`
	PercentChange *decimal.Decimal `json:"percent_change"`
	UserVote      *VoteType        `json:"user_vote"`
}

// ProductVoteItem annotates an observation with the requesting voter's vote.
type ProductVoteItem struct {
	Observation
	UserVote *VoteType `json:"user_vote"`
}

// ProductVoteFilter narrows the per-product vote view.
type ProductVoteFilter struct {
	ProductID int64
	VoterID   int64
	Location  string
	Days      int
}

// PopularStore counts submissions per store.
type PopularStore struct {
	StoreName     string `json:"store_name"`
	StoreLocation string `json:"store_location"`
	Submissions   int    `json:"submission_count"`
}

var (
	// ErrObservationNotFound is returned when the price observation does not exist.
	ErrObservationNotFound = fmt.Errorf("community: price observation %w", shared.ErrNotFound)
	// ErrVoteNotFound is returned when the voter has no vote to remove.
	ErrVoteNotFound = fmt.Errorf("community: vote %w", shared.ErrNotFound)
	// ErrProductNotFound is returned when a submission names an unknown product.
	ErrProductNotFound = fmt.Errorf("community: product %w", shared.ErrNotFound)
	// ErrInvalidVoteType rejects anything but up or down.
	ErrInvalidVoteType = fmt.Errorf("community: invalid vote type: %w", shared.ErrInvalidArgument)
	// ErrInvalidPrice rejects prices outside (0, 10^10) or with more than two
	// decimal places.
	ErrInvalidPrice = fmt.Errorf("community: price must be positive with at most two decimal places: %w", shared.ErrInvalidArgument)
	// ErrVoteConflict signals a concurrent insert of the same (observation, voter).
	ErrVoteConflict = fmt.Errorf("community: vote %w", shared.ErrConflict)
)
