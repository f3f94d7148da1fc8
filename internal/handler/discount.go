package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/discount"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/payment"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/pricing"
)

// cartRequest is the body of the pricing endpoints.
type cartRequest struct {
	cart   pricing.Cart
	method payment.Method
}

// decodeCart reads {"userId","coupon","paymentMethod","products":[…]}.
// paymentMethod is optional and defaults to no cash discount.
func decodeCart(w http.ResponseWriter, r *http.Request) (cartRequest, error) {
	var (
		req    cartRequest
		method int
	)
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "userId":
			req.cart.UserID, err = decodeString(d)
		case "coupon":
			req.cart.CouponCode, err = decodeString(d)
		case "paymentMethod":
			method, err = d.Int()
		case "products":
			err = d.Arr(func(d *jx.Decoder) error {
				l, err := decodeCartLine(d)
				req.cart.Lines = append(req.cart.Lines, l)
				return err
			})
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return req, err
	}
	if method != 0 {
		if req.method, err = payment.ParseMethod(method); err != nil {
			return req, err
		}
	}
	return req, nil
}

// CalculateDiscounts handles POST /discounts/calculate-cart.
func (h *Handler) CalculateDiscounts(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCart(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.orders.CalculateDiscounts(r.Context(), req.cart, req.method)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeDiscounts(e, res) })
}

// ValidateCoupon handles POST /orders/validate-coupon.
func (h *Handler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCart(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if req.cart.CouponCode == "" {
		writeError(w, r, badRequest("coupon is required"))
		return
	}
	res, err := h.orders.ValidateCoupon(r.Context(), req.cart.CouponCode, req.cart.UserID, req.cart.Lines)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCouponResult(e, res) })
}

func decodeRule(w http.ResponseWriter, r *http.Request) (discount.Params, error) {
	p := discount.Params{Active: true}
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			p.Name, err = d.Str()
		case "description":
			p.Description, err = decodeString(d)
		case "optionIds":
			p.OptionIDs, err = decodeStrings(d)
		case "initialQuantity":
			p.InitialQuantity, err = d.Int()
		case "initialAmount":
			p.InitialAmount, err = decodeDecimal(d)
		case "additionalAmount":
			p.AdditionalAmount, err = decodeDecimal(d)
		case "active":
			p.Active, err = d.Bool()
		default:
			err = d.Skip()
		}
		return err
	})
	return p, err
}

// ListDiscounts handles GET /discounts.
func (h *Handler) ListDiscounts(w http.ResponseWriter, r *http.Request) {
	rules, err := h.discounts.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range rules {
			encodeRule(e, &rules[i])
		}
		e.ArrEnd()
	})
}

// GetDiscount handles GET /discounts/{id}.
func (h *Handler) GetDiscount(w http.ResponseWriter, r *http.Request) {
	rule, err := h.discounts.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeRule(e, rule) })
}

// CreateDiscount handles POST /discounts.
func (h *Handler) CreateDiscount(w http.ResponseWriter, r *http.Request) {
	p, err := decodeRule(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rule, err := h.discounts.Create(r.Context(), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeRule(e, rule) })
}

// UpdateDiscount handles PUT /discounts/{id}.
func (h *Handler) UpdateDiscount(w http.ResponseWriter, r *http.Request) {
	p, err := decodeRule(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rule, err := h.discounts.Update(r.Context(), chi.URLParam(r, "id"), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeRule(e, rule) })
}

// DeleteDiscount handles DELETE /discounts/{id}.
func (h *Handler) DeleteDiscount(w http.ResponseWriter, r *http.Request) {
	if err := h.discounts.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
