package payment

import (
	"fmt"

	"github.com/go-faster/errors"
)

// ErrUnknownMethod is returned for payment codes outside the known set.
var ErrUnknownMethod = errors.New("unknown payment method")

// Method is a payment method. On the wire it travels as its numeric code;
// inside the service only the named constants are used.
type Method int

const (
	MethodCreditCard   Method = 1
	MethodCash         Method = 2
	MethodPayPal       Method = 3
	MethodStripe       Method = 4
	MethodApplePay     Method = 5
	MethodGooglePay    Method = 6
	MethodAmazonPay    Method = 7
	MethodOther        Method = 8
	MethodBankTransfer Method = 9
	MethodCrypto       Method = 10
	MethodMercadoPago  Method = 11
	MethodPayway       Method = 12
)

var methodNames = map[Method]string{
	MethodCreditCard:   "credit-card",
	MethodCash:         "cash",
	MethodPayPal:       "paypal",
	MethodStripe:       "stripe",
	MethodApplePay:     "apple-pay",
	MethodGooglePay:    "google-pay",
	MethodAmazonPay:    "amazon-pay",
	MethodOther:        "other",
	MethodBankTransfer: "bank-transfer",
	MethodCrypto:       "crypto",
	MethodMercadoPago:  "mercado-pago",
	MethodPayway:       "payway",
}

// Category groups methods by the side effects they trigger on order creation.
type Category int

const (
	CategoryOther Category = iota
	// CategoryCash earns the cash discount and a confirmation email.
	CategoryCash
	// CategoryProviderCheckout is charged through an itemized provider checkout.
	CategoryProviderCheckout
	// CategoryBankTransfer may be routed to a same-day delivery ledger.
	CategoryBankTransfer
)

// ParseMethod converts a wire code into a Method.
func ParseMethod(code int) (Method, error) {
	m := Method(code)
	if _, ok := methodNames[m]; !ok {
		return 0, errors.Wrapf(ErrUnknownMethod, "code %d", code)
	}
	return m, nil
}

// Code returns the wire code.
func (m Method) Code() int { return int(m) }

func (m Method) String() string {
	if name, ok := methodNames[m]; ok {
		return name
	}
	return fmt.Sprintf("method(%d)", int(m))
}

// Category returns the side-effect category of m.
func (m Method) Category() Category {
	switch m {
	case MethodCash:
		return CategoryCash
	case MethodCreditCard, MethodMercadoPago:
		return CategoryProviderCheckout
	case MethodBankTransfer:
		return CategoryBankTransfer
	default:
		return CategoryOther
	}
}

// IsCash reports whether m earns the cash-payment discount.
func (m Method) IsCash() bool { return m.Category() == CategoryCash }
