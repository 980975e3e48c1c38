// Package summary merges catalog prices of a product, or of every variant in
// its generic family, into one comparable listing.
package summary

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mastermarket/mastermarket/internal/shared"
)

// Kind distinguishes the two identifier spaces a summary can be built from.
type Kind string

const (
	KindSpecific Kind = "specific"
	KindGeneric  Kind = "generic"
)

// Ref names the product or generic product a summary is requested for.
type Ref struct {
	Kind Kind
	ID   int64
}

// Specific refers to a branded product.
func Specific(id int64) Ref { return Ref{Kind: KindSpecific, ID: id} }

// Generic refers to a generic product grouping.
func Generic(id int64) Ref { return Ref{Kind: KindGeneric, ID: id} }

func (r Ref) key() string { return fmt.Sprintf("%s:%d", r.Kind, r.ID) }

// Header carries the display fields the summary is titled with.
type Header struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	ImageURL string `json:"image_url"`
}

// Line is one product/store entry. Price and Supermarket are empty for a
// sibling variant that has no catalog price yet.
type Line struct {
	ProductID   int64            `json:"product_id"`
	ProductName string           `json:"product_name"`
	Brand       string           `json:"brand"`
	Quantity    string           `json:"quantity"`
	ImageURL    string           `json:"image_url"`
	Supermarket string           `json:"supermarket,omitempty"`
	Price       *decimal.Decimal `json:"price"`
	UpdatedAt   *time.Time       `json:"updated_at,omitempty"`
}

// Summary is the merged price listing.
type Summary struct {
	Kind   Kind   `json:"kind"`
	Header Header `json:"header"`
	Lines  []Line `json:"lines"`
}

// ErrNotFound is returned when neither a product nor a generic product matches.
var ErrNotFound = fmt.Errorf("summary: product %w", shared.ErrNotFound)
