package handler

import (
	"fmt"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/catalog"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/coupon"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/customer"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/discount"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/order"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/payment"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/pricing"
)

// Reasons attached to errors that have no domain reason of their own.
const (
	ReasonInsufficientStock = "INSUFFICIENT_STOCK"
	ReasonPaymentProvider   = "PAYMENT_PROVIDER_ERROR"
)

// requestError is a malformed request.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

type apiError struct {
	status  int
	message string
	reason  string
}

func classify(err error) apiError {
	var (
		reqErr     *requestError
		stockErr   *catalog.InsufficientStockError
		reasonErr  *coupon.ReasonError
		qtyErr     *pricing.InvalidQuantityError
		dupErr     *pricing.DuplicateOptionError
		unknownErr *discount.UnknownOptionsError
	)
	switch {
	case errors.Is(err, errUnauthorized):
		return apiError{status: http.StatusUnauthorized, message: "invalid or missing API key"}
	case errors.Is(err, errForbidden):
		return apiError{status: http.StatusForbidden, message: "API key lacks the required scope"}
	case errors.As(err, &reqErr),
		errors.As(err, &qtyErr),
		errors.As(err, &dupErr),
		errors.Is(err, pricing.ErrEmptyCart),
		errors.Is(err, payment.ErrUnknownMethod),
		errors.Is(err, order.ErrInvalidStatus),
		errors.Is(err, order.ErrInvalidNotification):
		return apiError{status: http.StatusBadRequest, message: err.Error()}
	case errors.As(err, &stockErr):
		return apiError{status: http.StatusConflict, message: stockErr.Error(), reason: ReasonInsufficientStock}
	case errors.As(err, &reasonErr):
		status := http.StatusUnprocessableEntity
		if reasonErr.Reason == coupon.ReasonAlreadyExists {
			status = http.StatusConflict
		}
		return apiError{status: status, message: reasonErr.Error(), reason: string(reasonErr.Reason)}
	case errors.As(err, &unknownErr),
		errors.Is(err, discount.ErrEmptyOptions),
		errors.Is(err, discount.ErrInvalidThreshold),
		errors.Is(err, discount.ErrNegativeAmount):
		return apiError{status: http.StatusUnprocessableEntity, message: err.Error()}
	case errors.Is(err, order.ErrStatusAlreadySet),
		errors.Is(err, order.ErrInvalidTransition),
		errors.Is(err, order.ErrStatusConflict):
		return apiError{status: http.StatusConflict, message: err.Error()}
	case errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, customer.ErrUserNotFound),
		errors.Is(err, customer.ErrAddressNotFound),
		errors.Is(err, customer.ErrDeliveryAreaNotFound),
		errors.Is(err, order.ErrNotFound),
		errors.Is(err, coupon.ErrNotFound),
		errors.Is(err, discount.ErrNotFound):
		return apiError{status: http.StatusNotFound, message: err.Error()}
	case errors.Is(err, payment.ErrProvider):
		return apiError{status: http.StatusBadGateway, message: "payment provider unavailable", reason: ReasonPaymentProvider}
	default:
		return apiError{status: http.StatusInternalServerError, message: "internal server error"}
	}
}

// writeError writes {"code","message","reason"} for err. Server-side
// failures are logged; their details never reach the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	ae := classify(err)
	if ae.status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed",
			zap.Int("status", ae.status),
			zap.Error(err),
		)
	}

	writeJSON(w, ae.status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Int(ae.status)
		e.FieldStart("message")
		e.Str(ae.message)
		if ae.reason != "" {
			e.FieldStart("reason")
			e.Str(ae.reason)
		}
		e.ObjEnd()
	})
}

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	var e jx.Encoder
	encode(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
