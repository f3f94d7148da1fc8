package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/coupon"
)

func decodeCoupon(w http.ResponseWriter, r *http.Request) (coupon.Params, error) {
	var p coupon.Params
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			p.Code, err = d.Str()
		case "description":
			p.Description, err = decodeString(d)
		case "limit":
			p.Limit, err = d.Int()
		case "type":
			var t string
			t, err = d.Str()
			p.Type = coupon.Type(t)
		case "value":
			p.Value, err = decodeDecimal(d)
		case "optionId":
			p.OptionID, err = decodeString(d)
		case "maxUnits":
			p.MaxUnits, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
	return p, err
}

// CreateCoupon handles POST /coupons.
func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	p, err := decodeCoupon(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.coupons.Create(r.Context(), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeCoupon(e, c) })
}

// GetCoupon handles GET /coupons/{id}.
func (h *Handler) GetCoupon(w http.ResponseWriter, r *http.Request) {
	c, err := h.coupons.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCoupon(e, c) })
}

// UpdateCoupon handles PUT /coupons/{id}.
func (h *Handler) UpdateCoupon(w http.ResponseWriter, r *http.Request) {
	p, err := decodeCoupon(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.coupons.Update(r.Context(), chi.URLParam(r, "id"), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCoupon(e, c) })
}
