package catalog

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is matched by every catalog not-found error.
var ErrNotFound = errors.New("catalog entry not found")

// OptionNotFoundError indicates a referenced option does not exist.
type OptionNotFoundError struct {
	OptionID string
}

func (e *OptionNotFoundError) Error() string {
	return fmt.Sprintf("option %s not found", e.OptionID)
}

// Is reports ErrNotFound equivalence.
func (e *OptionNotFoundError) Is(target error) bool { return target == ErrNotFound }

// ProductNotFoundError indicates a referenced product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// Is reports ErrNotFound equivalence.
func (e *ProductNotFoundError) Is(target error) bool { return target == ErrNotFound }

// InsufficientStockError is returned by a conditional stock decrement that
// would leave the option with negative stock.
type InsufficientStockError struct {
	OptionID  string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for option %s: requested %d, available %d",
		e.OptionID, e.Requested, e.Available)
}

// Product is a catalog entry grouping one or more sellable options.
type Product struct {
	ID          string
	Name        string
	Description string
	Category    string
	Images      []string
	SalesCount  int
}

// Option is a sellable variant of a product with its own price and stock.
type Option struct {
	ID          string
	ProductID   string
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
}

// Reader is the read-only view of the catalog used by pricing.
type Reader interface {
	GetOption(ctx context.Context, id string) (*Option, error)
	// GetOptions returns the options that exist among ids, in no particular order.
	GetOptions(ctx context.Context, ids []string) ([]Option, error)
	GetProducts(ctx context.Context, ids []string) ([]Product, error)
}

// Repository is the catalog store. Stock and sales mutations are atomic
// single-row updates; callers never read-then-write counters.
type Repository interface {
	Reader
	// DecrementStock subtracts qty only when the current stock covers it,
	// otherwise it returns *InsufficientStockError.
	DecrementStock(ctx context.Context, optionID string, qty int) (*Option, error)
	IncrementStock(ctx context.Context, optionID string, qty int) (*Option, error)
	// AddSales adjusts the product sales counter by delta, flooring at zero.
	AddSales(ctx context.Context, productID string, delta int) error
}
