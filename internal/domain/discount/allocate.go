package discount

import "github.com/shopspring/decimal"

// Line is a cart line as seen by tier allocation.
type Line struct {
	OptionID string
	Quantity int
}

// LineDiscount is the tier discount attributed to one cart line.
type LineDiscount struct {
	OptionID string
	Amount   decimal.Decimal
	Rules    []string
}

// Allocate computes every active rule's contribution for the cart and splits
// it across the lines in the rule's option set proportionally to quantity.
// Shares are rounded to cents and capped by what remains of the contribution;
// the last matching line takes the remainder, so the shares of one rule always
// sum to its contribution. The result is aligned with lines.
func Allocate(rules []Rule, lines []Line) []LineDiscount {
	out := make([]LineDiscount, len(lines))
	for i, l := range lines {
		out[i] = LineDiscount{OptionID: l.OptionID, Amount: decimal.Zero}
	}

	for ri := range rules {
		r := &rules[ri]
		if !r.Active {
			continue
		}

		var (
			matched []int
			sum     int
		)
		for i, l := range lines {
			if r.AppliesTo(l.OptionID) {
				matched = append(matched, i)
				sum += l.Quantity
			}
		}
		if sum == 0 {
			continue
		}

		contribution := r.Contribution(sum)
		if !contribution.IsPositive() {
			continue
		}

		total := decimal.NewFromInt(int64(sum))
		remaining := contribution
		for k, i := range matched {
			share := remaining
			if k < len(matched)-1 {
				qty := decimal.NewFromInt(int64(lines[i].Quantity))
				share = decimal.Min(remaining, contribution.Mul(qty).Div(total).Round(2))
			}
			remaining = remaining.Sub(share)
			if share.IsZero() {
				continue
			}
			out[i].Amount = out[i].Amount.Add(share)
			out[i].Rules = append(out[i].Rules, r.Name)
		}
	}
	return out
}
