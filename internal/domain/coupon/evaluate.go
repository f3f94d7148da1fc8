package coupon

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Evaluate applies the coupon to the cart on behalf of userID. Checks run in
// order and the first failing one decides the reason: usage limit, previous
// use by the same user, then the option restriction.
func Evaluate(c *Coupon, userID string, items []Item) Result {
	if c.Count >= c.Limit {
		return Result{Reason: ReasonLimitReached, Discount: decimal.Zero, Coupon: c}
	}
	if userID != "" && c.UsedByUser(userID) {
		return Result{Reason: ReasonAlreadyUsed, Discount: decimal.Zero, Coupon: c}
	}

	var amount decimal.Decimal
	if c.OptionID != "" {
		var (
			matched bool
			qty     int
			price   decimal.Decimal
		)
		for _, it := range items {
			if it.OptionID == c.OptionID {
				matched = true
				qty += it.Quantity
				price = it.Price
			}
		}
		if !matched {
			return Result{Reason: ReasonNotApplicable, Discount: decimal.Zero, Coupon: c}
		}

		units := qty
		if c.MaxUnits > 0 && c.MaxUnits < units {
			units = c.MaxUnits
		}
		n := decimal.NewFromInt(int64(units))
		switch c.Type {
		case TypePercentage:
			amount = price.Mul(c.Value).Div(hundred).Mul(n)
		default:
			amount = c.Value.Mul(n)
		}
	} else {
		switch c.Type {
		case TypePercentage:
			subtotal := decimal.Zero
			for _, it := range items {
				subtotal = subtotal.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
			}
			amount = subtotal.Mul(c.Value).Div(hundred)
		default:
			amount = c.Value
		}
	}

	return Result{Valid: true, Discount: amount.Round(2), Coupon: c}
}
