package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrPriceNotFound indicates no current price exists for (product, supermarket).
var ErrPriceNotFound = errors.New("catalog price not found")

// Repository reads and writes catalog tables in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the price write path used inside a transaction.
type TxRepository interface {
	GetPriceForUpdate(ctx context.Context, productID int64, supermarket string) (Price, error)
	InsertPrice(ctx context.Context, price Price) (Price, error)
	UpdatePrice(ctx context.Context, price Price) error
	InsertHistory(ctx context.Context, entry HistoryEntry) error
}

type txRepository struct {
	tx pgx.Tx
}

const productColumns = `id, name, COALESCE(description, ''), COALESCE(category, ''), COALESCE(brand, ''), COALESCE(quantity, ''), COALESCE(barcode, ''), COALESCE(image_url, ''), generic_id`

// WithTx executes fn inside a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	if err := fn(ctx, &txRepository{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.Brand, &p.Quantity, &p.Barcode, &p.ImageURL, &p.GenericID)
	return p, err
}

// GetProduct loads a product by id.
func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	return p, err
}

// FindByBarcode loads a product by its barcode.
func (r *Repository) FindByBarcode(ctx context.Context, barcode string) (Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE barcode = $1 ORDER BY id LIMIT 1`, barcode))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	return p, err
}

// GetGeneric loads a generic product by id.
func (r *Repository) GetGeneric(ctx context.Context, id int64) (GenericProduct, error) {
	var g GenericProduct
	err := r.pool.QueryRow(ctx, `SELECT id, name, COALESCE(category, ''), COALESCE(image_url, '') FROM generic_products WHERE id = $1`, id).
		Scan(&g.ID, &g.Name, &g.Category, &g.ImageURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return GenericProduct{}, ErrGenericNotFound
	}
	return g, err
}

// ListProductsByGeneric returns every product sharing genericID.
func (r *Repository) ListProductsByGeneric(ctx context.Context, genericID int64) ([]Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products WHERE generic_id = $1 ORDER BY id`, genericID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	products := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// UpdateProduct overwrites every mutable column of p.
func (r *Repository) UpdateProduct(ctx context.Context, p Product) error {
	tag, err := r.pool.Exec(ctx, `UPDATE products SET name=$1, description=$2, category=$3, brand=$4, quantity=$5, barcode=NULLIF($6, ''), image_url=$7, generic_id=$8 WHERE id=$9`,
		p.Name, p.Description, p.Category, p.Brand, p.Quantity, p.Barcode, p.ImageURL, p.GenericID, p.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

// ListPrices returns all current prices of a product in storage order.
func (r *Repository) ListPrices(ctx context.Context, productID int64) ([]Price, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, supermarket, price, updated_at FROM prices WHERE product_id = $1 ORDER BY id`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPrices(rows)
}

// LatestPrices returns the most recently updated price per product. Ties on
// updated_at fall back to storage order.
func (r *Repository) LatestPrices(ctx context.Context, productIDs []int64) (map[int64]Price, error) {
	latest := make(map[int64]Price, len(productIDs))
	if len(productIDs) == 0 {
		return latest, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT ON (product_id) id, product_id, supermarket, price, updated_at
FROM prices
WHERE product_id = ANY($1)
ORDER BY product_id, updated_at DESC, id ASC`, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	prices, err := collectPrices(rows)
	if err != nil {
		return nil, err
	}
	for _, p := range prices {
		latest[p.ProductID] = p
	}
	return latest, nil
}

// ListHistory returns replaced prices for a product, newest first.
func (r *Repository) ListHistory(ctx context.Context, productID int64, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, supermarket, price, recorded_at FROM price_history WHERE product_id = $1 ORDER BY recorded_at DESC, id DESC LIMIT $2`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := []HistoryEntry{}
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.ID, &e.ProductID, &e.Supermarket, &e.Price, &e.RecordedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func collectPrices(rows pgx.Rows) ([]Price, error) {
	prices := []Price{}
	for rows.Next() {
		var p Price
		if err := rows.Scan(&p.ID, &p.ProductID, &p.Supermarket, &p.Price, &p.UpdatedAt); err != nil {
			return nil, err
		}
		prices = append(prices, p)
	}
	return prices, rows.Err()
}

func (t *txRepository) GetPriceForUpdate(ctx context.Context, productID int64, supermarket string) (Price, error) {
	var p Price
	err := t.tx.QueryRow(ctx, `SELECT id, product_id, supermarket, price, updated_at FROM prices WHERE product_id = $1 AND supermarket = $2 FOR UPDATE`, productID, supermarket).
		Scan(&p.ID, &p.ProductID, &p.Supermarket, &p.Price, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Price{}, ErrPriceNotFound
	}
	return p, err
}

func (t *txRepository) InsertPrice(ctx context.Context, price Price) (Price, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO prices (product_id, supermarket, price, updated_at) VALUES ($1, $2, $3, $4) RETURNING id, price`,
		price.ProductID, price.Supermarket, price.Price, price.UpdatedAt).Scan(&price.ID, &price.Price)
	return price, err
}

func (t *txRepository) UpdatePrice(ctx context.Context, price Price) error {
	_, err := t.tx.Exec(ctx, `UPDATE prices SET price = $1, updated_at = $2 WHERE id = $3`, price.Price, price.UpdatedAt, price.ID)
	return err
}

func (t *txRepository) InsertHistory(ctx context.Context, entry HistoryEntry) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO price_history (product_id, supermarket, price, recorded_at) VALUES ($1, $2, $3, $4)`,
		entry.ProductID, entry.Supermarket, entry.Price, entry.RecordedAt)
	return err
}
