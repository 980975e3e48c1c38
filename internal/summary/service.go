package summary

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mastermarket/mastermarket/internal/catalog"
	"github.com/mastermarket/mastermarket/internal/shared"
)

// Catalog is the read side of the catalog the resolver depends on.
type Catalog interface {
	GetProduct(ctx context.Context, id int64) (catalog.Product, error)
	GetGeneric(ctx context.Context, id int64) (catalog.GenericProduct, error)
	ListProductsByGeneric(ctx context.Context, genericID int64) ([]catalog.Product, error)
	ListPrices(ctx context.Context, productID int64) ([]catalog.Price, error)
	LatestPrices(ctx context.Context, productIDs []int64) (map[int64]catalog.Price, error)
}

// Service resolves summaries.
type Service struct {
	catalog Catalog
	group   singleflight.Group
}

// NewService constructs Service.
func NewService(c Catalog) *Service {
	return &Service{catalog: c}
}

// ResolveID builds the summary for an identifier that may name either a
// product or a generic product. Products take precedence when both exist.
func (s *Service) ResolveID(ctx context.Context, id int64) (Summary, error) {
	out, err := s.Resolve(ctx, Specific(id))
	if errors.Is(err, shared.ErrNotFound) {
		return s.Resolve(ctx, Generic(id))
	}
	return out, err
}

// resolveTimeout bounds a shared resolution once it no longer follows the
// context of the caller that started it.
const resolveTimeout = 15 * time.Second

// Resolve builds the summary for ref. Concurrent calls for the same ref share
// one resolution, which outlives the cancellation of whichever caller started it.
func (s *Service) Resolve(ctx context.Context, ref Ref) (Summary, error) {
	ch := s.group.DoChan(ref.key(), func() (any, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), resolveTimeout)
		defer cancel()
		return s.resolve(flightCtx, ref)
	})
	select {
	case <-ctx.Done():
		return Summary{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Summary{}, res.Err
		}
		return res.Val.(Summary), nil
	}
}

func (s *Service) resolve(ctx context.Context, ref Ref) (Summary, error) {
	switch ref.Kind {
	case KindSpecific:
		product, err := s.catalog.GetProduct(ctx, ref.ID)
		if err != nil {
			return Summary{}, notFound(err)
		}
		if product.GenericID == nil {
			return s.single(ctx, product)
		}
		return s.family(ctx, *product.GenericID)
	case KindGeneric:
		return s.family(ctx, ref.ID)
	default:
		return Summary{}, fmt.Errorf("summary: unknown ref kind %q: %w", ref.Kind, shared.ErrInvalidArgument)
	}
}

// single lists every store price of a product without a generic family.
func (s *Service) single(ctx context.Context, product catalog.Product) (Summary, error) {
	prices, err := s.catalog.ListPrices(ctx, product.ID)
	if err != nil {
		return Summary{}, fmt.Errorf("summary: list prices: %w", err)
	}
	out := Summary{
		Kind: KindSpecific,
		Header: Header{
			ID:       product.ID,
			Name:     product.Name,
			Category: product.Category,
			ImageURL: product.ImageURL,
		},
		Lines: make([]Line, 0, len(prices)),
	}
	for _, p := range prices {
		line := lineFor(product)
		withPrice(&line, p)
		out.Lines = append(out.Lines, line)
	}
	return out, nil
}

// family lists each sibling of a generic product with its latest price.
func (s *Service) family(ctx context.Context, genericID int64) (Summary, error) {
	generic, err := s.catalog.GetGeneric(ctx, genericID)
	if err != nil {
		return Summary{}, notFound(err)
	}
	siblings, err := s.catalog.ListProductsByGeneric(ctx, genericID)
	if err != nil {
		return Summary{}, fmt.Errorf("summary: list siblings: %w", err)
	}
	ids := make([]int64, 0, len(siblings))
	for _, p := range siblings {
		ids = append(ids, p.ID)
	}
	latest, err := s.catalog.LatestPrices(ctx, ids)
	if err != nil {
		return Summary{}, fmt.Errorf("summary: latest prices: %w", err)
	}
	out := Summary{
		Kind: KindGeneric,
		Header: Header{
			ID:       generic.ID,
			Name:     generic.Name,
			Category: generic.Category,
			ImageURL: generic.ImageURL,
		},
		Lines: make([]Line, 0, len(siblings)),
	}
	for _, p := range siblings {
		line := lineFor(p)
		if price, ok := latest[p.ID]; ok {
			withPrice(&line, price)
		}
		out.Lines = append(out.Lines, line)
	}
	return out, nil
}

func lineFor(p catalog.Product) Line {
	return Line{
		ProductID:   p.ID,
		ProductName: p.Name,
		Brand:       p.Brand,
		Quantity:    p.Quantity,
		ImageURL:    p.ImageURL,
	}
}

func withPrice(line *Line, p catalog.Price) {
	price := p.Price
	at := p.UpdatedAt
	line.Supermarket = p.Supermarket
	line.Price = &price
	line.UpdatedAt = &at
}

func notFound(err error) error {
	if errors.Is(err, shared.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return fmt.Errorf("summary: %w", err)
}
