package pricing

import (
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/catalog"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/coupon"
)

// CashDiscountRate is the share of the discounted subtotal granted to cash payments.
var CashDiscountRate = decimal.New(10, -2)

// ErrEmptyCart is returned for carts without lines.
var ErrEmptyCart = errors.New("cart has no lines")

// InvalidQuantityError indicates a cart line with a non-positive quantity.
type InvalidQuantityError struct {
	OptionID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for option %s", e.OptionID)
}

// DuplicateOptionError indicates an option referenced by more than one line.
type DuplicateOptionError struct {
	OptionID string
}

func (e *DuplicateOptionError) Error() string {
	return fmt.Sprintf("option %s appears in more than one line", e.OptionID)
}

// Line is one (option, quantity) pair of a cart.
type Line struct {
	ProductID string
	OptionID  string
	Quantity  int
}

// Cart is the input of a price calculation.
type Cart struct {
	UserID     string
	CouponCode string
	Lines      []Line
}

// ValidateLines checks that lines are non-empty, positive and unique per option.
func ValidateLines(lines []Line) error {
	if len(lines) == 0 {
		return ErrEmptyCart
	}
	seen := make(map[string]struct{}, len(lines))
	for _, l := range lines {
		if l.Quantity <= 0 {
			return &InvalidQuantityError{OptionID: l.OptionID}
		}
		if _, ok := seen[l.OptionID]; ok {
			return &DuplicateOptionError{OptionID: l.OptionID}
		}
		seen[l.OptionID] = struct{}{}
	}
	return nil
}

// DiscountType tags the layer a discount comes from.
type DiscountType string

const (
	TypeProductDiscount DiscountType = "PRODUCT_DISCOUNT"
	TypeCashPayment     DiscountType = "CASH_PAYMENT"
	TypeCoupon          DiscountType = "COUPON"
)

// DiscountResult is one discount of a calculation.
type DiscountResult struct {
	Amount      decimal.Decimal
	Type        DiscountType
	Description string
	// OptionID is set for product discounts.
	OptionID string
}

// PricedLine is a cart line with the option as read for the calculation.
type PricedLine struct {
	Line
	Option catalog.Option
	Total  decimal.Decimal
}

// OrderDiscounts is the full breakdown of a calculation.
type OrderDiscounts struct {
	Lines    []PricedLine
	Products []DiscountResult
	Coupon   *DiscountResult
	Cash     *DiscountResult
	// CouponResult is the raw coupon evaluation, set whenever a code was given.
	CouponResult *coupon.Result
	Subtotal     decimal.Decimal
	// AfterDiscounts is the cash discount base.
	AfterDiscounts decimal.Decimal
	Total          decimal.Decimal
}

// ProductTotal sums the product discounts.
func (o *OrderDiscounts) ProductTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, p := range o.Products {
		sum = sum.Add(p.Amount)
	}
	return sum
}

// CouponAmount returns the coupon discount or zero.
func (o *OrderDiscounts) CouponAmount() decimal.Decimal {
	if o.Coupon == nil {
		return decimal.Zero
	}
	return o.Coupon.Amount
}

// CashAmount returns the cash discount or zero.
func (o *OrderDiscounts) CashAmount() decimal.Decimal {
	if o.Cash == nil {
		return decimal.Zero
	}
	return o.Cash.Amount
}

// AppliedCoupon returns the coupon that produced a discount, if any.
func (o *OrderDiscounts) AppliedCoupon() *coupon.Coupon {
	if o.Coupon == nil || o.CouponResult == nil {
		return nil
	}
	return o.CouponResult.Coupon
}

func productDescription(rules []string) string {
	return "Quantity discount: " + strings.Join(rules, ", ")
}
