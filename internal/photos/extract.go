package photos

import (
	"bytes"
	"context"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/shopspring/decimal"

	"github.com/mastermarket/mastermarket/internal/shared"
)

// ManualEntryMessage is returned when no price could be read.
const ManualEntryMessage = "Could not extract price. Please enter manually."

// Extraction is the outcome of reading a price off a photo.
type Extraction struct {
	Success bool             `json:"success"`
	Price   *decimal.Decimal `json:"extracted_price"`
	Message string           `json:"message"`
}

// Extractor returns a placeholder price for any decodable image. It does not
// perform OCR.
type Extractor struct {
	randCents func() int64
}

// NewExtractor constructs Extractor.
func NewExtractor() *Extractor {
	return &Extractor{randCents: func() int64 { return 50 + rand.Int64N(4951) }}
}

// Extract validates contentType and returns a placeholder price between 0.50
// and 50.00. Undecodable images ask for manual entry instead of failing.
func (e *Extractor) Extract(_ context.Context, contentType string, data []byte) (Extraction, error) {
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "image/") {
		return Extraction{}, ErrUnsupportedType
	}
	if len(data) > MaxUploadBytes {
		return Extraction{}, fmt.Errorf("photos: file exceeds %d bytes: %w", MaxUploadBytes, shared.ErrInvalidArgument)
	}
	if _, err := imaging.Decode(bytes.NewReader(data)); err != nil {
		return Extraction{Success: true, Message: ManualEntryMessage}, nil
	}
	price := decimal.New(e.randCents(), -2)
	return Extraction{
		Success: true,
		Price:   &price,
		Message: "Price detected: £" + price.StringFixed(2),
	}, nil
}
