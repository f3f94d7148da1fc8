package mercadopago

import (
	"github.com/go-faster/jx"

	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/payment"
)

// Currency of every checkout item.
const Currency = "ARS"

// EncodePreference writes the checkout preference body.
func EncodePreference(e *jx.Encoder, req payment.CheckoutRequest) {
	e.ObjStart()
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range req.Items {
		e.ObjStart()
		if it.ID != "" {
			e.FieldStart("id")
			e.Str(it.ID)
		}
		e.FieldStart("title")
		e.Str(it.Title)
		if it.Description != "" {
			e.FieldStart("description")
			e.Str(it.Description)
		}
		if it.PictureURL != "" {
			e.FieldStart("picture_url")
			e.Str(it.PictureURL)
		}
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.FieldStart("currency_id")
		e.Str(Currency)
		e.FieldStart("unit_price")
		e.Num(jx.Num(it.UnitPrice.StringFixed(2)))
		e.ObjEnd()
	}
	e.ArrEnd()

	e.FieldStart("payer")
	e.ObjStart()
	e.FieldStart("name")
	e.Str(req.Payer.Name)
	e.FieldStart("surname")
	e.Str(req.Payer.Surname)
	e.FieldStart("email")
	e.Str(req.Payer.Email)
	if req.Payer.Phone != "" {
		e.FieldStart("phone")
		e.ObjStart()
		e.FieldStart("number")
		e.Str(req.Payer.Phone)
		e.ObjEnd()
	}
	e.ObjEnd()

	e.FieldStart("back_urls")
	e.ObjStart()
	e.FieldStart("success")
	e.Str(req.Callbacks.Success)
	e.FieldStart("pending")
	e.Str(req.Callbacks.Pending)
	e.FieldStart("failure")
	e.Str(req.Callbacks.Failure)
	e.ObjEnd()
	e.FieldStart("auto_return")
	e.Str("approved")
	e.FieldStart("notification_url")
	e.Str(req.Callbacks.Notification)
	e.FieldStart("external_reference")
	e.Str(req.ExternalReference)
	e.ObjEnd()
}
