package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/customer"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/payment"
)

// Status is the order lifecycle state. Values match the wire codes.
type Status int

const (
	StatusPending   Status = 1
	StatusConfirmed Status = 2
	StatusShipped   Status = 3
	StatusDelivered Status = 4
	StatusCanceled  Status = 5
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s >= StatusPending && s <= StatusCanceled
}

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusConfirmed:
		return "confirmed"
	case StatusShipped:
		return "shipped"
	case StatusDelivered:
		return "delivered"
	case StatusCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

var (
	// ErrNotFound is returned when an order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrStatusConflict is returned by Repository.TransitionStatus when the
	// stored status no longer matches the expected one.
	ErrStatusConflict = errors.New("order status changed concurrently")
	// ErrCacheMiss is returned by Cache.Get when the order is not cached.
	ErrCacheMiss = errors.New("order cache miss")
)

// Item is a snapshot of a purchased option, copied at creation time.
type Item struct {
	ProductID          string          `json:"product_id"`
	ProductName        string          `json:"product_name"`
	ProductDescription string          `json:"product_description,omitempty"`
	Category           string          `json:"category,omitempty"`
	Images             []string        `json:"images,omitempty"`
	OptionID           string          `json:"option_id"`
	OptionName         string          `json:"option_name"`
	UnitPrice          decimal.Decimal `json:"unit_price"`
	Quantity           int             `json:"quantity"`
	Total              decimal.Decimal `json:"total"`
	Discount           decimal.Decimal `json:"discount"`
}

// Order is the persisted aggregate.
type Order struct {
	ID             string                `json:"id"`
	Status         Status                `json:"status"`
	Items          []Item                `json:"items"`
	Subtotal       decimal.Decimal       `json:"subtotal"`
	ShippingPrice  decimal.Decimal       `json:"shipping_price"`
	Discount       decimal.Decimal       `json:"discount"`
	Total          decimal.Decimal       `json:"total"`
	CouponID       string                `json:"coupon_id,omitempty"`
	CouponCode     string                `json:"coupon_code,omitempty"`
	CouponDiscount decimal.Decimal       `json:"coupon_discount"`
	CashDiscount   decimal.Decimal       `json:"cash_discount"`
	PaymentMethod  payment.Method        `json:"payment_method"`
	Notes          string                `json:"notes,omitempty"`
	User           customer.User         `json:"user"`
	Address        customer.Address      `json:"address"`
	DeliveryArea   customer.DeliveryArea `json:"delivery_area"`
	DeliveryDate   string                `json:"delivery_date,omitempty"`
	DeliveryDay    *time.Time            `json:"delivery_day,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// Repository is the order store.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	// TransitionStatus moves the order from one status to another only if
	// it is still in from, returning ErrStatusConflict otherwise.
	TransitionStatus(ctx context.Context, id string, from, to Status) (*Order, error)
}

// Cache is a read-through cache for orders.
type Cache interface {
	Get(ctx context.Context, id string) (*Order, error)
	Set(ctx context.Context, o *Order) error
	Delete(ctx context.Context, id string) error
}

// WebhookDeduper suppresses duplicate webhook deliveries.
type WebhookDeduper interface {
	// Claim returns false when key was already claimed.
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}
