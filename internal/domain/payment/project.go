package payment

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNoQuantity is returned when projecting lines whose quantities sum to zero.
var ErrNoQuantity = errors.New("total quantity is zero")

// Line is an order line to be charged through the provider.
type Line struct {
	ID          string
	Title       string
	Description string
	PictureURL  string
	// Total is the line price, unit price times quantity.
	Total    decimal.Decimal
	Quantity int
}

// LineItem is a provider line item. The order discount is already folded into
// UnitPrice, so Quantity is always 1.
type LineItem struct {
	ID          string
	Title       string
	Description string
	PictureURL  string
	Quantity    int
	UnitPrice   decimal.Decimal
	// Discount is the share of the order discount taken by this line.
	Discount decimal.Decimal
}

// ProjectLineItems spreads totalDiscount over lines in proportion to their
// quantities. Each share is round(qty/totalQty × totalDiscount) to whole
// currency units, capped by the discount still unallocated; the last line
// takes whatever remains, so the shares always sum to totalDiscount.
func ProjectLineItems(lines []Line, totalDiscount decimal.Decimal) ([]LineItem, error) {
	totalQty := 0
	for _, l := range lines {
		totalQty += l.Quantity
	}
	if totalQty == 0 {
		return nil, ErrNoQuantity
	}

	qtyTotal := decimal.NewFromInt(int64(totalQty))
	remaining := totalDiscount
	items := make([]LineItem, len(lines))
	for i, l := range lines {
		share := remaining
		if i < len(lines)-1 {
			share = decimal.NewFromInt(int64(l.Quantity)).
				Div(qtyTotal).
				Mul(totalDiscount).
				Round(0)
			share = decimal.Min(share, remaining)
		}
		remaining = remaining.Sub(share)

		items[i] = LineItem{
			ID:          l.ID,
			Title:       l.Title,
			Description: l.Description,
			PictureURL:  l.PictureURL,
			Quantity:    1,
			UnitPrice:   l.Total.Sub(share),
			Discount:    share,
		}
	}
	return items, nil
}
