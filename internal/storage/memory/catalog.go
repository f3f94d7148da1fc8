// Package memory implements the stores in process memory. Each repository
// guards its state with a mutex, so conditional updates are atomic.
package memory

import (
	"context"
	"sync"

	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/catalog"
)

var _ catalog.Repository = (*CatalogRepository)(nil)

// CatalogRepository is an in-memory catalog.
type CatalogRepository struct {
	mu       sync.Mutex
	products map[string]catalog.Product
	options  map[string]catalog.Option
}

// NewCatalogRepository returns an empty CatalogRepository.
func NewCatalogRepository() *CatalogRepository {
	return &CatalogRepository{
		products: make(map[string]catalog.Product),
		options:  make(map[string]catalog.Option),
	}
}

// PutProduct inserts or replaces a product.
func (r *CatalogRepository) PutProduct(p catalog.Product) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.Images = append([]string(nil), p.Images...)
	r.products[p.ID] = p
}

// PutOption inserts or replaces an option.
func (r *CatalogRepository) PutOption(o catalog.Option) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.options[o.ID] = o
}

func (r *CatalogRepository) GetOption(_ context.Context, id string) (*catalog.Option, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.options[id]
	if !ok {
		return nil, &catalog.OptionNotFoundError{OptionID: id}
	}
	return &o, nil
}

func (r *CatalogRepository) GetOptions(_ context.Context, ids []string) ([]catalog.Option, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]catalog.Option, 0, len(ids))
	for _, id := range ids {
		if o, ok := r.options[id]; ok {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r *CatalogRepository) GetProduct(_ context.Context, id string) (*catalog.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return nil, &catalog.ProductNotFoundError{ProductID: id}
	}
	return &p, nil
}

func (r *CatalogRepository) GetProducts(_ context.Context, ids []string) ([]catalog.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]catalog.Product, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if p, ok := r.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *CatalogRepository) DecrementStock(_ context.Context, optionID string, qty int) (*catalog.Option, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.options[optionID]
	if !ok {
		return nil, &catalog.OptionNotFoundError{OptionID: optionID}
	}
	if o.Stock < qty {
		return nil, &catalog.InsufficientStockError{OptionID: optionID, Requested: qty, Available: o.Stock}
	}
	o.Stock -= qty
	r.options[optionID] = o
	return &o, nil
}

func (r *CatalogRepository) IncrementStock(_ context.Context, optionID string, qty int) (*catalog.Option, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.options[optionID]
	if !ok {
		return nil, &catalog.OptionNotFoundError{OptionID: optionID}
	}
	o.Stock += qty
	r.options[optionID] = o
	return &o, nil
}

func (r *CatalogRepository) AddSales(_ context.Context, productID string, delta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[productID]
	if !ok {
		return &catalog.ProductNotFoundError{ProductID: productID}
	}
	p.SalesCount = max(0, p.SalesCount+delta)
	r.products[productID] = p
	return nil
}
