package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/catalog"
)

const (
	optionColumns = `id, product_id, name, description, price, stock`

	getOptionSQL   = `SELECT ` + optionColumns + ` FROM options WHERE id = $1`
	getOptionsSQL  = `SELECT ` + optionColumns + ` FROM options WHERE id = ANY($1)`
	getProductsSQL = `SELECT id, name, description, category, images, sales_count
		FROM products WHERE id = ANY($1)`

	decrementStockSQL = `UPDATE options SET stock = stock - $2
		WHERE id = $1 AND stock >= $2
		RETURNING ` + optionColumns

	incrementStockSQL = `UPDATE options SET stock = stock + $2
		WHERE id = $1
		RETURNING ` + optionColumns

	addSalesSQL = `UPDATE products SET sales_count = GREATEST(sales_count + $2, 0) WHERE id = $1`

	upsertProductSQL = `INSERT INTO products (id, name, description, category, images, sales_count)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description,
			category = EXCLUDED.category, images = EXCLUDED.images`

	upsertOptionSQL = `INSERT INTO options (id, product_id, name, description, price, stock)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET product_id = EXCLUDED.product_id, name = EXCLUDED.name,
			description = EXCLUDED.description, price = EXCLUDED.price, stock = EXCLUDED.stock`
)

var _ catalog.Repository = (*CatalogRepository)(nil)

// CatalogRepository implements catalog.Repository backed by PostgreSQL.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository returns a CatalogRepository that uses the given pool.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// GetOption returns a single option by its identifier.
func (r *CatalogRepository) GetOption(ctx context.Context, id string) (*catalog.Option, error) {
	rows, err := r.pool.Query(ctx, getOptionSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting option %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOption)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &catalog.OptionNotFoundError{OptionID: id}
		}
		return nil, fmt.Errorf("getting option %q: %w", id, err)
	}
	return &o, nil
}

// GetOptions returns the options matching any of the given IDs.
func (r *CatalogRepository) GetOptions(ctx context.Context, ids []string) ([]catalog.Option, error) {
	rows, err := r.pool.Query(ctx, getOptionsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting options by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanOption)
}

// GetProducts returns the products matching any of the given IDs.
func (r *CatalogRepository) GetProducts(ctx context.Context, ids []string) ([]catalog.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.Product, error) {
		var p catalog.Product
		err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.Images, &p.SalesCount)
		return p, err
	})
}

// DecrementStock reserves qty units in a single conditional update.
func (r *CatalogRepository) DecrementStock(ctx context.Context, optionID string, qty int) (*catalog.Option, error) {
	rows, err := r.pool.Query(ctx, decrementStockSQL, optionID, qty)
	if err != nil {
		return nil, fmt.Errorf("decrementing stock of %q: %w", optionID, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOption)
	if err == nil {
		return &o, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("decrementing stock of %q: %w", optionID, err)
	}

	// Nothing updated: either the option is gone or stock is short.
	cur, err := r.GetOption(ctx, optionID)
	if err != nil {
		return nil, err
	}
	return nil, &catalog.InsufficientStockError{OptionID: optionID, Requested: qty, Available: cur.Stock}
}

// IncrementStock returns qty units to the option.
func (r *CatalogRepository) IncrementStock(ctx context.Context, optionID string, qty int) (*catalog.Option, error) {
	rows, err := r.pool.Query(ctx, incrementStockSQL, optionID, qty)
	if err != nil {
		return nil, fmt.Errorf("incrementing stock of %q: %w", optionID, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOption)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &catalog.OptionNotFoundError{OptionID: optionID}
		}
		return nil, fmt.Errorf("incrementing stock of %q: %w", optionID, err)
	}
	return &o, nil
}

// AddSales adjusts the sales counter, never going below zero.
func (r *CatalogRepository) AddSales(ctx context.Context, productID string, delta int) error {
	tag, err := r.pool.Exec(ctx, addSalesSQL, productID, delta)
	if err != nil {
		return fmt.Errorf("adding sales to %q: %w", productID, err)
	}
	if tag.RowsAffected() == 0 {
		return &catalog.ProductNotFoundError{ProductID: productID}
	}
	return nil
}

// UpsertProduct inserts or updates a product, keeping its sales counter.
func (r *CatalogRepository) UpsertProduct(ctx context.Context, p catalog.Product) error {
	images := p.Images
	if images == nil {
		images = []string{}
	}
	if _, err := r.pool.Exec(ctx, upsertProductSQL, p.ID, p.Name, p.Description, p.Category, images, p.SalesCount); err != nil {
		return fmt.Errorf("upserting product %q: %w", p.ID, err)
	}
	return nil
}

// UpsertOption inserts or updates an option.
func (r *CatalogRepository) UpsertOption(ctx context.Context, o catalog.Option) error {
	if _, err := r.pool.Exec(ctx, upsertOptionSQL, o.ID, o.ProductID, o.Name, o.Description, o.Price, o.Stock); err != nil {
		return fmt.Errorf("upserting option %q: %w", o.ID, err)
	}
	return nil
}

func scanOption(row pgx.CollectableRow) (catalog.Option, error) {
	var o catalog.Option
	err := row.Scan(&o.ID, &o.ProductID, &o.Name, &o.Description, &o.Price, &o.Stock)
	return o, err
}
