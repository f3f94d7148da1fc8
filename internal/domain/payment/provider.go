package payment

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// StatusApproved is the provider payment status that confirms an order.
const StatusApproved = "approved"

// ErrProvider wraps every failure of the remote payment provider.
var ErrProvider = errors.New("payment provider failure")

// Payer identifies the buyer towards the provider.
type Payer struct {
	Name    string
	Surname string
	Email   string
	Phone   string
}

// CallbackURLs are handed to the provider for redirects and notifications.
type CallbackURLs struct {
	Success      string
	Pending      string
	Failure      string
	Notification string
}

// CheckoutRequest is an itemized payment request. ExternalReference carries
// the order id back in payment notifications.
type CheckoutRequest struct {
	ExternalReference string
	Items             []LineItem
	Payer             Payer
	Callbacks         CallbackURLs
}

// Checkout is the provider's reference for a created payment.
type Checkout struct {
	ID        string
	InitPoint string
}

// Status is the provider's view of a payment.
type Status struct {
	PaymentID         string
	Status            string
	ExternalReference string
}

// Approved reports whether the payment was approved.
func (s *Status) Approved() bool { return s.Status == StatusApproved }

// Provider is the remote payment provider. CreatePayment is never retried by
// callers since a retry could charge twice.
type Provider interface {
	CreatePayment(ctx context.Context, req CheckoutRequest) (*Checkout, error)
	GetPaymentStatus(ctx context.Context, paymentID string) (*Status, error)
}

// Total returns the sum of unit prices times quantities.
func Total(items []LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return sum
}
