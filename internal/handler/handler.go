// Package handler is the HTTP boundary of the order service.
package handler

import (
	"github.com/go-chi/chi/v5"

	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/auth"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/coupon"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/discount"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/order"
)

// Handler serves the order, pricing and admin endpoints.
type Handler struct {
	orders    *order.Service
	coupons   *coupon.Service
	discounts *discount.Service
	security  *Security
}

// New creates a Handler.
func New(orders *order.Service, coupons *coupon.Service, discounts *discount.Service, security *Security) *Handler {
	return &Handler{
		orders:    orders,
		coupons:   coupons,
		discounts: discounts,
		security:  security,
	}
}

// Routes registers every endpoint on r. Admin endpoints require an API key
// with the admin scope.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.CreateOrder)
		r.Post("/validate-coupon", h.ValidateCoupon)
		r.Post("/mercadopago/webhook", h.PaymentWebhook)
		r.Get("/{id}", h.GetOrder)
		r.With(h.security.Require(auth.ScopeAdmin)).Patch("/status/{id}", h.UpdateStatus)
	})

	r.Post("/discounts/calculate-cart", h.CalculateDiscounts)
	r.Group(func(r chi.Router) {
		r.Use(h.security.Require(auth.ScopeAdmin))

		r.Get("/discounts", h.ListDiscounts)
		r.Post("/discounts", h.CreateDiscount)
		r.Get("/discounts/{id}", h.GetDiscount)
		r.Put("/discounts/{id}", h.UpdateDiscount)
		r.Delete("/discounts/{id}", h.DeleteDiscount)

		r.Post("/coupons", h.CreateCoupon)
		r.Get("/coupons/{id}", h.GetCoupon)
		r.Put("/coupons/{id}", h.UpdateCoupon)
	})
}
