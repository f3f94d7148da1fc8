package handler

import (
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/coupon"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/discount"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/order"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/pricing"
)

const maxBodySize = 1 << 20

// decodeObject reads the body as one JSON object, handing every field to fn.
func decodeObject(w http.ResponseWriter, r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		return badRequest("read body: %v", err)
	}
	if err := jx.DecodeBytes(data).Obj(fn); err != nil {
		return badRequest("invalid body: %v", err)
	}
	return nil
}

// decodeDecimal accepts a JSON number, a numeric string or null.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.Null:
		return decimal.Zero, d.Null()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	default:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(n.String())
	}
}

// decodeString treats null as "".
func decodeString(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

func decodeStrings(d *jx.Decoder) ([]string, error) {
	var out []string
	err := d.Arr(func(d *jx.Decoder) error {
		s, err := d.Str()
		out = append(out, s)
		return err
	})
	return out, err
}

// decodeCartLine decodes {"productId","optionId","quantity"}.
func decodeCartLine(d *jx.Decoder) (pricing.Line, error) {
	var l pricing.Line
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "productId":
			l.ProductID, err = d.Str()
		case "optionId":
			l.OptionID, err = d.Str()
		case "quantity":
			l.Quantity, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
	return l, err
}

func money(e *jx.Encoder, field string, v decimal.Decimal) {
	e.FieldStart(field)
	e.Num(jx.Num(v.StringFixed(2)))
}

func str(e *jx.Encoder, field, v string) {
	e.FieldStart(field)
	e.Str(v)
}

func optStr(e *jx.Encoder, field, v string) {
	if v != "" {
		str(e, field, v)
	}
}

func timestamp(e *jx.Encoder, field string, t time.Time) {
	str(e, field, t.UTC().Format(time.RFC3339))
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	str(e, "id", o.ID)
	e.FieldStart("status")
	e.Int(int(o.Status))
	str(e, "statusName", o.Status.String())

	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		str(e, "productId", it.ProductID)
		str(e, "productName", it.ProductName)
		optStr(e, "category", it.Category)
		str(e, "optionId", it.OptionID)
		str(e, "optionName", it.OptionName)
		money(e, "unitPrice", it.UnitPrice)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		money(e, "total", it.Total)
		money(e, "discount", it.Discount)
		e.ObjEnd()
	}
	e.ArrEnd()

	money(e, "subTotal", o.Subtotal)
	money(e, "shippingPrice", o.ShippingPrice)
	money(e, "discount", o.Discount)
	optStr(e, "coupon", o.CouponCode)
	money(e, "couponDiscount", o.CouponDiscount)
	money(e, "cashDiscount", o.CashDiscount)
	money(e, "total", o.Total)
	e.FieldStart("paymentMethod")
	e.Int(o.PaymentMethod.Code())
	optStr(e, "notes", o.Notes)

	e.FieldStart("user")
	e.ObjStart()
	str(e, "id", o.User.ID)
	str(e, "name", o.User.Name)
	optStr(e, "surname", o.User.Surname)
	str(e, "email", o.User.Email)
	optStr(e, "phone", o.User.Phone)
	e.ObjEnd()

	e.FieldStart("address")
	e.ObjStart()
	str(e, "id", o.Address.ID)
	str(e, "street", o.Address.Street)
	optStr(e, "city", o.Address.City)
	optStr(e, "floorNumber", o.Address.FloorNumber)
	optStr(e, "reference", o.Address.Reference)
	optStr(e, "phone", o.Address.Phone)
	e.ObjEnd()

	e.FieldStart("deliveryArea")
	e.ObjStart()
	str(e, "id", o.DeliveryArea.ID)
	str(e, "description", o.DeliveryArea.Description)
	e.FieldStart("sameDayDelivery")
	e.Bool(o.DeliveryArea.SameDayDelivery)
	e.ObjEnd()

	optStr(e, "deliveryDate", o.DeliveryDate)
	if o.DeliveryDay != nil {
		str(e, "deliveryDay", o.DeliveryDay.Format(time.DateOnly))
	}
	timestamp(e, "createdAt", o.CreatedAt)
	timestamp(e, "updatedAt", o.UpdatedAt)
	e.ObjEnd()
}

func encodeDiscountResult(e *jx.Encoder, r *pricing.DiscountResult) {
	e.ObjStart()
	money(e, "amount", r.Amount)
	str(e, "type", string(r.Type))
	str(e, "description", r.Description)
	optStr(e, "optionId", r.OptionID)
	e.ObjEnd()
}

func encodeDiscounts(e *jx.Encoder, d *pricing.OrderDiscounts) {
	e.ObjStart()
	money(e, "subTotal", d.Subtotal)

	e.FieldStart("productDiscounts")
	e.ArrStart()
	for i := range d.Products {
		encodeDiscountResult(e, &d.Products[i])
	}
	e.ArrEnd()

	e.FieldStart("couponDiscount")
	if d.Coupon == nil {
		e.Null()
	} else {
		encodeDiscountResult(e, d.Coupon)
	}
	if d.CouponResult != nil && !d.CouponResult.Valid {
		str(e, "couponReason", string(d.CouponResult.Reason))
	}
	e.FieldStart("cashPaymentDiscount")
	if d.Cash == nil {
		e.Null()
	} else {
		encodeDiscountResult(e, d.Cash)
	}

	money(e, "totalDiscount", d.Total)
	money(e, "total", decimal.Max(decimal.Zero, d.Subtotal.Sub(d.Total)))
	e.ObjEnd()
}

func encodeCouponResult(e *jx.Encoder, res *coupon.Result) {
	e.ObjStart()
	e.FieldStart("valid")
	e.Bool(res.Valid)
	money(e, "discount", res.Discount)
	optStr(e, "reason", string(res.Reason))
	if res.Valid && res.Coupon != nil {
		str(e, "code", res.Coupon.Code)
		str(e, "type", string(res.Coupon.Type))
		money(e, "value", res.Coupon.Value)
	}
	e.ObjEnd()
}

func encodeCoupon(e *jx.Encoder, c *coupon.Coupon) {
	e.ObjStart()
	str(e, "id", c.ID)
	str(e, "code", c.Code)
	optStr(e, "description", c.Description)
	e.FieldStart("limit")
	e.Int(c.Limit)
	e.FieldStart("count")
	e.Int(c.Count)
	str(e, "type", string(c.Type))
	money(e, "value", c.Value)
	optStr(e, "optionId", c.OptionID)
	e.FieldStart("maxUnits")
	e.Int(c.MaxUnits)

	users := make([]string, 0, len(c.UsedBy))
	for id, used := range c.UsedBy {
		if used {
			users = append(users, id)
		}
	}
	slices.Sort(users)
	e.FieldStart("usedBy")
	e.ArrStart()
	for _, id := range users {
		e.Str(id)
	}
	e.ArrEnd()

	if !c.CreatedAt.IsZero() {
		timestamp(e, "createdAt", c.CreatedAt)
	}
	if !c.UpdatedAt.IsZero() {
		timestamp(e, "updatedAt", c.UpdatedAt)
	}
	e.ObjEnd()
}

func encodeRule(e *jx.Encoder, r *discount.Rule) {
	e.ObjStart()
	str(e, "id", r.ID)
	str(e, "name", r.Name)
	optStr(e, "description", r.Description)
	e.FieldStart("optionIds")
	e.ArrStart()
	for _, id := range r.OptionIDs {
		e.Str(id)
	}
	e.ArrEnd()
	e.FieldStart("initialQuantity")
	e.Int(r.InitialQuantity)
	money(e, "initialAmount", r.InitialAmount)
	money(e, "additionalAmount", r.AdditionalAmount)
	e.FieldStart("active")
	e.Bool(r.Active)
	if !r.CreatedAt.IsZero() {
		timestamp(e, "createdAt", r.CreatedAt)
	}
	if !r.UpdatedAt.IsZero() {
		timestamp(e, "updatedAt", r.UpdatedAt)
	}
	e.ObjEnd()
}
