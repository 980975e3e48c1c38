package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mastermarket/mastermarket/internal/shared"
)

// Product is a specific, branded item with its own barcode.
type Product struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category"`
	Brand       string `json:"brand"`
	Quantity    string `json:"quantity"`
	Barcode     string `json:"barcode,omitempty"`
	ImageURL    string `json:"image_url"`
	GenericID   *int64 `json:"generic_id,omitempty"`
}

// GenericProduct groups equivalent products sold under different brands.
type GenericProduct struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	ImageURL string `json:"image_url"`
}

// Price is the current store-authoritative price of a product at a supermarket.
type Price struct {
	ID          int64           `json:"id"`
	ProductID   int64           `json:"product_id"`
	Supermarket string          `json:"supermarket"`
	Price       decimal.Decimal `json:"price"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// HistoryEntry is an immutable record of a price that has since been replaced.
type HistoryEntry struct {
	ID          int64           `json:"id"`
	ProductID   int64           `json:"product_id"`
	Supermarket string          `json:"supermarket"`
	Price       decimal.Decimal `json:"price"`
	RecordedAt  time.Time       `json:"recorded_at"`
}

// PriceInput carries a catalog price write from the ingestion path.
type PriceInput struct {
	ProductID   int64
	Supermarket string
	Price       decimal.Decimal
	At          time.Time
}

// Optional distinguishes an absent JSON key from an explicit null.
type Optional[T any] struct {
	Set   bool
	Valid bool
	Value T
}

// UnmarshalJSON marks the field as present; null leaves Valid false.
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Valid = false
		return nil
	}
	if err := json.Unmarshal(data, &o.Value); err != nil {
		return err
	}
	o.Valid = true
	return nil
}

// ProductPatch is a sparse update: only keys present in the request are applied.
type ProductPatch struct {
	Name        Optional[string] `json:"name"`
	Description Optional[string] `json:"description"`
	Category    Optional[string] `json:"category"`
	Brand       Optional[string] `json:"brand"`
	Quantity    Optional[string] `json:"quantity"`
	Barcode     Optional[string] `json:"barcode"`
	ImageURL    Optional[string] `json:"image_url"`
	GenericID   Optional[int64]  `json:"generic_id"`
}

// Empty reports whether the patch would change nothing.
func (p ProductPatch) Empty() bool {
	return !p.Name.Set && !p.Description.Set && !p.Category.Set && !p.Brand.Set &&
		!p.Quantity.Set && !p.Barcode.Set && !p.ImageURL.Set && !p.GenericID.Set
}

// Apply overwrites the fields present in the patch and returns the result.
// Null is only meaningful for generic_id, where it detaches the product.
func (p ProductPatch) Apply(product Product) (Product, error) {
	textFields := []struct {
		field string
		opt   Optional[string]
		dst   *string
	}{
		{"name", p.Name, &product.Name},
		{"description", p.Description, &product.Description},
		{"category", p.Category, &product.Category},
		{"brand", p.Brand, &product.Brand},
		{"quantity", p.Quantity, &product.Quantity},
		{"barcode", p.Barcode, &product.Barcode},
		{"image_url", p.ImageURL, &product.ImageURL},
	}
	for _, f := range textFields {
		if !f.opt.Set {
			continue
		}
		if !f.opt.Valid {
			return Product{}, fmt.Errorf("catalog: %s cannot be null: %w", f.field, shared.ErrInvalidArgument)
		}
		*f.dst = f.opt.Value
	}
	if p.GenericID.Set {
		if p.GenericID.Valid {
			id := p.GenericID.Value
			product.GenericID = &id
		} else {
			product.GenericID = nil
		}
	}
	return product, nil
}

var (
	// ErrProductNotFound is returned when no product has the requested id.
	ErrProductNotFound = fmt.Errorf("catalog: product %w", shared.ErrNotFound)
	// ErrGenericNotFound is returned when no generic product has the requested id.
	ErrGenericNotFound = fmt.Errorf("catalog: generic product %w", shared.ErrNotFound)
	// ErrInvalidPrice rejects prices outside (0, 10^10) or with more than two
	// decimal places.
	ErrInvalidPrice = fmt.Errorf("catalog: price must be positive with at most two decimal places: %w", shared.ErrInvalidArgument)
)
