package catalog

import (
	"context"
	"encoding/json"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/mastermarket/mastermarket/internal/shared"
)

type memoryRepo struct {
	products map[int64]Product
	generics map[int64]GenericProduct
	prices   []Price
	history  []HistoryEntry
	nextID   int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{products: map[int64]Product{}, generics: map[int64]GenericProduct{}}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) GetProduct(_ context.Context, id int64) (Product, error) {
	p, ok := r.products[id]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

func (r *memoryRepo) FindByBarcode(_ context.Context, barcode string) (Product, error) {
	for _, p := range r.products {
		if p.Barcode == barcode {
			return p, nil
		}
	}
	return Product{}, ErrProductNotFound
}

func (r *memoryRepo) GetGeneric(_ context.Context, id int64) (GenericProduct, error) {
	g, ok := r.generics[id]
	if !ok {
		return GenericProduct{}, ErrGenericNotFound
	}
	return g, nil
}

func (r *memoryRepo) ListProductsByGeneric(_ context.Context, genericID int64) ([]Product, error) {
	var out []Product
	for _, p := range r.products {
		if p.GenericID != nil && *p.GenericID == genericID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryRepo) UpdateProduct(_ context.Context, p Product) error {
	if _, ok := r.products[p.ID]; !ok {
		return ErrProductNotFound
	}
	r.products[p.ID] = p
	return nil
}

func (r *memoryRepo) ListPrices(_ context.Context, productID int64) ([]Price, error) {
	var out []Price
	for _, p := range r.prices {
		if p.ProductID == productID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memoryRepo) LatestPrices(_ context.Context, ids []int64) (map[int64]Price, error) {
	out := map[int64]Price{}
	for _, id := range ids {
		for _, p := range r.prices {
			if p.ProductID != id {
				continue
			}
			if cur, ok := out[id]; !ok || p.UpdatedAt.After(cur.UpdatedAt) {
				out[id] = p
			}
		}
	}
	return out, nil
}

func (r *memoryRepo) ListHistory(_ context.Context, productID int64, _ int) ([]HistoryEntry, error) {
	var out []HistoryEntry
	for i := len(r.history) - 1; i >= 0; i-- {
		if r.history[i].ProductID == productID {
			out = append(out, r.history[i])
		}
	}
	return out, nil
}

func (tx *memoryTx) GetPriceForUpdate(_ context.Context, productID int64, supermarket string) (Price, error) {
	for _, p := range tx.repo.prices {
		if p.ProductID == productID && p.Supermarket == supermarket {
			return p, nil
		}
	}
	return Price{}, ErrPriceNotFound
}

func (tx *memoryTx) InsertPrice(_ context.Context, price Price) (Price, error) {
	tx.repo.nextID++
	price.ID = tx.repo.nextID
	tx.repo.prices = append(tx.repo.prices, price)
	return price, nil
}

func (tx *memoryTx) UpdatePrice(_ context.Context, price Price) error {
	for i, p := range tx.repo.prices {
		if p.ID == price.ID {
			tx.repo.prices[i] = price
		}
	}
	return nil
}

func (tx *memoryTx) InsertHistory(_ context.Context, entry HistoryEntry) error {
	tx.repo.nextID++
	entry.ID = tx.repo.nextID
	tx.repo.history = append(tx.repo.history, entry)
	return nil
}

func int64Ptr(v int64) *int64 { return &v }

func TestRecordPriceWritesHistoryOnOverwrite(t *testing.T) {
	repo := newMemoryRepo()
	repo.products[1] = Product{ID: 1, Name: "Milk 1L"}
	svc := NewService(repo)
	ctx := context.Background()
	t0 := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	_, err := svc.RecordPrice(ctx, PriceInput{ProductID: 1, Supermarket: "Tesco", Price: decimal.RequireFromString("1.00"), At: t0})
	require.NoError(t, err)
	require.Empty(t, repo.history)

	price, err := svc.RecordPrice(ctx, PriceInput{ProductID: 1, Supermarket: "Tesco", Price: decimal.RequireFromString("1.20"), At: t0.Add(time.Hour)})
	require.NoError(t, err)
	require.True(t, price.Price.Equal(decimal.RequireFromString("1.20")))
	require.Len(t, repo.prices, 1)

	history, err := svc.History(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.True(t, history[0].Price.Equal(decimal.RequireFromString("1.00")))
	require.Equal(t, t0, history[0].RecordedAt)
}

func TestRecordPriceSameValueSkipsHistory(t *testing.T) {
	repo := newMemoryRepo()
	repo.products[1] = Product{ID: 1, Name: "Milk 1L"}
	svc := NewService(repo)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := svc.RecordPrice(ctx, PriceInput{ProductID: 1, Supermarket: "Aldi", Price: decimal.NewFromInt(2)})
		require.NoError(t, err)
	}
	require.Len(t, repo.prices, 1)
	require.Empty(t, repo.history)
}

func TestRecordPriceValidation(t *testing.T) {
	repo := newMemoryRepo()
	repo.products[1] = Product{ID: 1, Name: "Milk 1L"}
	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.RecordPrice(ctx, PriceInput{ProductID: 1, Supermarket: "Tesco", Price: decimal.Zero})
	require.ErrorIs(t, err, ErrInvalidPrice)
	require.ErrorIs(t, err, shared.ErrInvalidArgument)

	_, err = svc.RecordPrice(ctx, PriceInput{ProductID: 9, Supermarket: "Tesco", Price: decimal.NewFromInt(1)})
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.RecordPrice(ctx, PriceInput{ProductID: 1, Supermarket: "  ", Price: decimal.NewFromInt(1)})
	require.ErrorIs(t, err, shared.ErrInvalidArgument)
}

func TestPatchProductOnlyOverwritesPresentKeys(t *testing.T) {
	repo := newMemoryRepo()
	repo.generics[5] = GenericProduct{ID: 5, Name: "Milk"}
	repo.products[1] = Product{ID: 1, Name: "Milk 1L", Brand: "Arla", Category: "Dairy", GenericID: int64Ptr(5)}
	svc := NewService(repo)

	var patch ProductPatch
	require.NoError(t, json.Unmarshal([]byte(`{"brand":"Cravendale"}`), &patch))
	updated, err := svc.PatchProduct(context.Background(), 1, patch)
	require.NoError(t, err)
	require.Equal(t, "Cravendale", updated.Brand)
	require.Equal(t, "Milk 1L", updated.Name)
	require.Equal(t, "Dairy", updated.Category)
	require.NotNil(t, updated.GenericID)
	require.Equal(t, int64(5), *updated.GenericID)
}

func TestPatchProductGenericID(t *testing.T) {
	repo := newMemoryRepo()
	repo.generics[5] = GenericProduct{ID: 5, Name: "Milk"}
	repo.products[1] = Product{ID: 1, Name: "Milk 1L", GenericID: int64Ptr(5)}
	svc := NewService(repo)
	ctx := context.Background()

	var missing ProductPatch
	require.NoError(t, json.Unmarshal([]byte(`{"generic_id":99}`), &missing))
	_, err := svc.PatchProduct(ctx, 1, missing)
	require.ErrorIs(t, err, ErrGenericNotFound)
	require.Equal(t, int64(5), *repo.products[1].GenericID)

	var detach ProductPatch
	require.NoError(t, json.Unmarshal([]byte(`{"generic_id":null}`), &detach))
	updated, err := svc.PatchProduct(ctx, 1, detach)
	require.NoError(t, err)
	require.Nil(t, updated.GenericID)

	var nullName ProductPatch
	require.NoError(t, json.Unmarshal([]byte(`{"name":null}`), &nullName))
	_, err = svc.PatchProduct(ctx, 1, nullName)
	require.ErrorIs(t, err, shared.ErrInvalidArgument)
}

func TestFindByBarcode(t *testing.T) {
	repo := newMemoryRepo()
	repo.products[1] = Product{ID: 1, Name: "Beans", Barcode: "5000157024671"}
	svc := NewService(repo)

	p, err := svc.FindByBarcode(context.Background(), " 5000157024671 ")
	require.NoError(t, err)
	require.Equal(t, int64(1), p.ID)

	_, err = svc.FindByBarcode(context.Background(), "123")
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.FindByBarcode(context.Background(), "")
	require.ErrorIs(t, err, shared.ErrInvalidArgument)
}

func TestRecordPriceRejectsUnstorablePrecision(t *testing.T) {
	repo := newMemoryRepo()
	repo.products[1] = Product{ID: 1, Name: "Milk 1L"}
	svc := NewService(repo)
	for _, raw := range []string{"0.004", "1.005", "123456789012.5"} {
		_, err := svc.RecordPrice(context.Background(), PriceInput{ProductID: 1, Supermarket: "Tesco", Price: decimal.RequireFromString(raw)})
		require.ErrorIs(t, err, ErrInvalidPrice, raw)
	}
	prices, err := svc.ListPrices(context.Background(), 1)
	require.NoError(t, err)
	require.Empty(t, prices)
}
