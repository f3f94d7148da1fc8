package pricing

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/catalog"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/coupon"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/discount"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/payment"
)

// Calculator composes product tier, coupon and cash discounts. It holds no
// mutable state and never writes to the stores it reads.
type Calculator struct {
	options catalog.Reader
	rules   discount.Lister
	coupons coupon.Validator
}

// NewCalculator creates a Calculator.
func NewCalculator(options catalog.Reader, rules discount.Lister, coupons coupon.Validator) *Calculator {
	return &Calculator{
		options: options,
		rules:   rules,
		coupons: coupons,
	}
}

// PriceLines reads every option once and returns the priced lines with
// their subtotal. A missing option fails the whole call.
func (c *Calculator) PriceLines(ctx context.Context, lines []Line) ([]PricedLine, decimal.Decimal, error) {
	if err := ValidateLines(lines); err != nil {
		return nil, decimal.Zero, err
	}

	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = l.OptionID
	}
	fetched, err := c.options.GetOptions(ctx, ids)
	if err != nil {
		return nil, decimal.Zero, errors.Wrap(err, "get options")
	}
	byID := make(map[string]catalog.Option, len(fetched))
	for _, o := range fetched {
		byID[o.ID] = o
	}

	priced := make([]PricedLine, len(lines))
	subtotal := decimal.Zero
	for i, l := range lines {
		opt, ok := byID[l.OptionID]
		if !ok {
			return nil, decimal.Zero, &catalog.OptionNotFoundError{OptionID: l.OptionID}
		}
		if l.ProductID == "" {
			l.ProductID = opt.ProductID
		}
		total := opt.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
		priced[i] = PricedLine{Line: l, Option: opt, Total: total}
		subtotal = subtotal.Add(total)
	}
	return priced, subtotal, nil
}

// CalculateOrderDiscounts prices the cart and computes its discounts in
// order: product tiers, coupon, then the cash discount on what is left.
func (c *Calculator) CalculateOrderDiscounts(ctx context.Context, cart Cart, method payment.Method) (*OrderDiscounts, error) {
	priced, subtotal, err := c.PriceLines(ctx, cart.Lines)
	if err != nil {
		return nil, err
	}

	rules, err := c.rules.ListActive(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list discount rules")
	}

	res := &OrderDiscounts{
		Lines:    priced,
		Subtotal: subtotal,
	}

	tierLines := make([]discount.Line, len(priced))
	for i, p := range priced {
		tierLines[i] = discount.Line{OptionID: p.OptionID, Quantity: p.Quantity}
	}
	for _, ld := range discount.Allocate(rules, tierLines) {
		if !ld.Amount.IsPositive() {
			continue
		}
		res.Products = append(res.Products, DiscountResult{
			Amount:      ld.Amount.Round(2),
			Type:        TypeProductDiscount,
			Description: productDescription(ld.Rules),
			OptionID:    ld.OptionID,
		})
	}
	productTotal := res.ProductTotal()

	if cart.CouponCode != "" {
		cr, err := c.coupons.Validate(ctx, cart.CouponCode, cart.UserID, couponItems(priced))
		if err != nil {
			return nil, errors.Wrap(err, "validate coupon")
		}
		res.CouponResult = cr
		if cr.Valid && cr.Discount.IsPositive() {
			res.Coupon = &DiscountResult{
				Amount:      cr.Discount.Round(2),
				Type:        TypeCoupon,
				Description: "Coupon " + cr.Coupon.Code,
			}
		}
	}

	after := subtotal.Sub(productTotal).Sub(res.CouponAmount()).Round(2)
	if after.IsNegative() {
		zctx.From(ctx).Warn("Discounts exceed subtotal, clamping cash base",
			zap.String("subtotal", subtotal.String()),
			zap.String("product_discount", productTotal.String()),
			zap.String("coupon_discount", res.CouponAmount().String()),
		)
		after = decimal.Zero
	}
	res.AfterDiscounts = after

	if method.IsCash() {
		res.Cash = &DiscountResult{
			Amount:      after.Mul(CashDiscountRate).Round(2),
			Type:        TypeCashPayment,
			Description: "Cash payment discount",
		}
	}

	res.Total = productTotal.Add(res.CouponAmount()).Add(res.CashAmount()).Round(2)
	return res, nil
}

// ValidateCoupon evaluates code for userID against the given lines using the
// same pricing path as CalculateOrderDiscounts.
func (c *Calculator) ValidateCoupon(ctx context.Context, code, userID string, lines []Line) (*coupon.Result, error) {
	priced, _, err := c.PriceLines(ctx, lines)
	if err != nil {
		return nil, err
	}
	return c.coupons.Validate(ctx, code, userID, couponItems(priced))
}

func couponItems(priced []PricedLine) []coupon.Item {
	items := make([]coupon.Item, len(priced))
	for i, p := range priced {
		items[i] = coupon.Item{
			OptionID: p.OptionID,
			Price:    p.Option.Price,
			Quantity: p.Quantity,
		}
	}
	return items
}
