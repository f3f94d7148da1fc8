package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/order"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/payment"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/pricing"
)

// decodePlaceOrder reads the storefront order body. Client-computed totals
// and status are ignored; the server prices every order itself.
func decodePlaceOrder(w http.ResponseWriter, r *http.Request) (order.PlaceOrderRequest, error) {
	var (
		req    order.PlaceOrderRequest
		method int
	)
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "userId":
			req.UserID, err = d.Str()
		case "addressId":
			req.AddressID, err = d.Str()
		case "deliveryAreaId":
			req.DeliveryAreaID, err = decodeString(d)
		case "paymentMethod":
			method, err = d.Int()
		case "coupon":
			req.CouponCode, err = decodeString(d)
		case "shippingPrice":
			req.ShippingPrice, err = decodeDecimal(d)
		case "notes":
			req.Notes, err = decodeString(d)
		case "deliveryDate":
			req.DeliveryDate, err = decodeString(d)
		case "items":
			err = d.Arr(func(d *jx.Decoder) error {
				lines, err := decodeOrderItem(d)
				req.Lines = append(req.Lines, lines...)
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

	switch {
	case req.UserID == "":
		return req, badRequest("userId is required")
	case req.AddressID == "":
		return req, badRequest("addressId is required")
	case req.DeliveryAreaID == "":
		return req, badRequest("deliveryAreaId is required")
	}
	m, err := payment.ParseMethod(method)
	if err != nil {
		return req, err
	}
	req.PaymentMethod = m
	return req, nil
}

// decodeOrderItem flattens {"productId","options":[{"id","quantity"}]}.
func decodeOrderItem(d *jx.Decoder) ([]pricing.Line, error) {
	var (
		productID string
		lines     []pricing.Line
	)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "productId":
			productID, err = d.Str()
		case "options":
			err = d.Arr(func(d *jx.Decoder) error {
				lines = append(lines, pricing.Line{})
				return d.Obj(func(d *jx.Decoder, key string) error {
					var err error
					last := &lines[len(lines)-1]
					switch key {
					case "id":
						last.OptionID, err = d.Str()
					case "quantity":
						last.Quantity, err = d.Int()
					default:
						err = d.Skip()
					}
					return err
				})
			})
		default:
			err = d.Skip()
		}
		return err
	})
	for i := range lines {
		lines[i].ProductID = productID
	}
	return lines, err
}

// CreateOrder handles POST /orders.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	req, err := decodePlaceOrder(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.orders.CreateOrder(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("order")
		encodeOrder(e, res.Order)
		e.FieldStart("discounts")
		encodeDiscounts(e, res.Discounts)
		if res.Checkout != nil {
			e.FieldStart("payment")
			e.ObjStart()
			str(e, "id", res.Checkout.ID)
			str(e, "initPoint", res.Checkout.InitPoint)
			e.ObjEnd()
		}
		if res.Redirect != nil {
			e.FieldStart("redirect")
			e.ObjStart()
			str(e, "whatsapp", res.Redirect.Contact)
			e.ObjEnd()
		}
		e.ObjEnd()
	})
}

// GetOrder handles GET /orders/{id}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// UpdateStatus handles PATCH /orders/status/{id}.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	status := 0
	if err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		if key != "status" {
			return d.Skip()
		}
		var err error
		status, err = d.Int()
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), chi.URLParam(r, "id"), order.Status(status))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// PaymentWebhook handles POST /orders/mercadopago/webhook. The provider
// sends topic and id either as query parameters or in a JSON body of the
// form {"type":"payment","data":{"id":"…"}}.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	n := order.Notification{
		Topic:     firstNonEmpty(q.Get("topic"), q.Get("type")),
		PaymentID: firstNonEmpty(q.Get("id"), q.Get("data.id")),
	}
	if n.Topic == "" && r.ContentLength != 0 {
		if err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "type", "topic":
				n.Topic, err = d.Str()
			case "data":
				err = d.Obj(func(d *jx.Decoder, key string) error {
					if key != "id" {
						return d.Skip()
					}
					var err error
					n.PaymentID, err = decodeID(d)
					return err
				})
			default:
				err = d.Skip()
			}
			return err
		}); err != nil {
			writeError(w, r, err)
			return
		}
	}

	if err := h.orders.HandlePaymentWebhook(r.Context(), n); err != nil {
		zctx.From(r.Context()).Warn("Payment webhook failed",
			zap.String("payment_id", n.PaymentID),
			zap.Error(err),
		)
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("received")
		e.Bool(true)
		e.ObjEnd()
	})
}

// decodeID reads an id sent as either a string or a number.
func decodeID(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Number {
		n, err := d.Num()
		return n.String(), err
	}
	return d.Str()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
