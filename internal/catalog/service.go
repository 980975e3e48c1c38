package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mastermarket/mastermarket/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetProduct(ctx context.Context, id int64) (Product, error)
	FindByBarcode(ctx context.Context, barcode string) (Product, error)
	GetGeneric(ctx context.Context, id int64) (GenericProduct, error)
	ListProductsByGeneric(ctx context.Context, genericID int64) ([]Product, error)
	UpdateProduct(ctx context.Context, p Product) error
	ListPrices(ctx context.Context, productID int64) ([]Price, error)
	LatestPrices(ctx context.Context, productIDs []int64) (map[int64]Price, error)
	ListHistory(ctx context.Context, productID int64, limit int) ([]HistoryEntry, error)
}

// Service exposes catalog reads and the two catalog writes.
type Service struct {
	repo RepositoryPort
	now  func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// GetProduct loads a product.
func (s *Service) GetProduct(ctx context.Context, id int64) (Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// ProductExists reports whether id names a product.
func (s *Service) ProductExists(ctx context.Context, id int64) (bool, error) {
	_, err := s.repo.GetProduct(ctx, id)
	if errors.Is(err, ErrProductNotFound) {
		return false, nil
	}
	return err == nil, err
}

// FindByBarcode looks a product up by barcode.
func (s *Service) FindByBarcode(ctx context.Context, barcode string) (Product, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return Product{}, fmt.Errorf("catalog: barcode required: %w", shared.ErrInvalidArgument)
	}
	return s.repo.FindByBarcode(ctx, barcode)
}

// GetGeneric loads a generic product.
func (s *Service) GetGeneric(ctx context.Context, id int64) (GenericProduct, error) {
	return s.repo.GetGeneric(ctx, id)
}

// ListProductsByGeneric lists the members of a generic group.
func (s *Service) ListProductsByGeneric(ctx context.Context, genericID int64) ([]Product, error) {
	return s.repo.ListProductsByGeneric(ctx, genericID)
}

// ListPrices lists current prices of a product.
func (s *Service) ListPrices(ctx context.Context, productID int64) ([]Price, error) {
	return s.repo.ListPrices(ctx, productID)
}

// LatestPrices returns the latest price per product id.
func (s *Service) LatestPrices(ctx context.Context, productIDs []int64) (map[int64]Price, error) {
	return s.repo.LatestPrices(ctx, productIDs)
}

// PatchProduct applies a sparse update. Absent fields are left untouched.
func (s *Service) PatchProduct(ctx context.Context, id int64, patch ProductPatch) (Product, error) {
	current, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return Product{}, err
	}
	if patch.Empty() {
		return current, nil
	}
	updated, err := patch.Apply(current)
	if err != nil {
		return Product{}, err
	}
	if strings.TrimSpace(updated.Name) == "" {
		return Product{}, fmt.Errorf("catalog: name required: %w", shared.ErrInvalidArgument)
	}
	if updated.GenericID != nil {
		if _, err := s.repo.GetGeneric(ctx, *updated.GenericID); err != nil {
			return Product{}, err
		}
	}
	if err := s.repo.UpdateProduct(ctx, updated); err != nil {
		return Product{}, err
	}
	return updated, nil
}

// RecordPrice sets the current price of a product at a supermarket. The value
// it replaces is appended to the history first.
func (s *Service) RecordPrice(ctx context.Context, input PriceInput) (Price, error) {
	supermarket := strings.TrimSpace(input.Supermarket)
	if input.ProductID <= 0 || supermarket == "" {
		return Price{}, fmt.Errorf("catalog: product and supermarket required: %w", shared.ErrInvalidArgument)
	}
	if !shared.ValidPrice(input.Price) {
		return Price{}, ErrInvalidPrice
	}
	if _, err := s.repo.GetProduct(ctx, input.ProductID); err != nil {
		return Price{}, err
	}
	at := input.At
	if at.IsZero() {
		at = s.now()
	}
	var result Price
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.GetPriceForUpdate(ctx, input.ProductID, supermarket)
		switch {
		case errors.Is(err, ErrPriceNotFound):
			result, err = tx.InsertPrice(ctx, Price{ProductID: input.ProductID, Supermarket: supermarket, Price: input.Price, UpdatedAt: at})
			return err
		case err != nil:
			return err
		}
		if existing.Price.Equal(input.Price) {
			existing.UpdatedAt = at
			result = existing
			return tx.UpdatePrice(ctx, existing)
		}
		if err := tx.InsertHistory(ctx, HistoryEntry{
			ProductID:   existing.ProductID,
			Supermarket: existing.Supermarket,
			Price:       existing.Price,
			RecordedAt:  existing.UpdatedAt,
		}); err != nil {
			return err
		}
		existing.Price = input.Price
		existing.UpdatedAt = at
		result = existing
		return tx.UpdatePrice(ctx, existing)
	})
	if err != nil {
		return Price{}, err
	}
	return result, nil
}

// History lists replaced prices for a product, newest first.
func (s *Service) History(ctx context.Context, productID int64, limit int) ([]HistoryEntry, error) {
	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	return s.repo.ListHistory(ctx, productID, limit)
}
