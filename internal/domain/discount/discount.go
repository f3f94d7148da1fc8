package discount

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a rule does not exist.
	ErrNotFound = errors.New("discount rule not found")
	// ErrEmptyOptions is returned when a rule has no applicable options.
	ErrEmptyOptions = errors.New("discount rule requires at least one option")
	// ErrInvalidThreshold is returned when the initial quantity is not positive.
	ErrInvalidThreshold = errors.New("initial quantity must be greater than 0")
	// ErrNegativeAmount is returned when a discount amount is negative.
	ErrNegativeAmount = errors.New("discount amounts must not be negative")
)

// UnknownOptionsError lists referenced options missing from the catalog.
type UnknownOptionsError struct {
	OptionIDs []string
}

func (e *UnknownOptionsError) Error() string {
	return fmt.Sprintf("unknown options: %s", strings.Join(e.OptionIDs, ", "))
}

// Rule is a quantity-tier discount. Once the summed quantity of its options
// in a cart reaches InitialQuantity it grants InitialAmount, plus
// AdditionalAmount for every unit beyond the threshold.
type Rule struct {
	ID               string
	Name             string
	Description      string
	OptionIDs        []string
	InitialQuantity  int
	InitialAmount    decimal.Decimal
	AdditionalAmount decimal.Decimal
	Active           bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// AppliesTo reports whether optionID belongs to the rule's option set.
func (r *Rule) AppliesTo(optionID string) bool {
	for _, id := range r.OptionIDs {
		if id == optionID {
			return true
		}
	}
	return false
}

// Contribution returns the absolute discount for qty applicable units.
func (r *Rule) Contribution(qty int) decimal.Decimal {
	if qty < r.InitialQuantity {
		return decimal.Zero
	}
	extra := decimal.NewFromInt(int64(qty - r.InitialQuantity))
	return r.InitialAmount.Add(extra.Mul(r.AdditionalAmount))
}

// Lister exposes the active rules to pricing.
type Lister interface {
	ListActive(ctx context.Context) ([]Rule, error)
}

// Repository is the discount rule store.
type Repository interface {
	Lister
	List(ctx context.Context) ([]Rule, error)
	Get(ctx context.Context, id string) (*Rule, error)
	Create(ctx context.Context, r *Rule) error
	Update(ctx context.Context, r *Rule) error
	Delete(ctx context.Context, id string) error
}
