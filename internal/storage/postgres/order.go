package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/order"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/payment"
)

const (
	orderColumns = `id, status, items, subtotal, shipping_price, discount, total,
		COALESCE(coupon_id, ''), COALESCE(coupon_code, ''), coupon_discount, cash_discount,
		payment_method, notes, customer, address, delivery_area, delivery_date, delivery_day,
		created_at, updated_at`

	createOrderSQL = `INSERT INTO orders (id, status, items, subtotal, shipping_price, discount, total,
		coupon_id, coupon_code, coupon_discount, cash_discount, payment_method, notes,
		customer, address, delivery_area, delivery_date, delivery_day, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19, $20)`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	transitionOrderSQL = `UPDATE orders SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING ` + orderColumns

	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Items
// and the customer snapshots are stored as JSONB.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}
	userJSON, err := json.Marshal(o.User)
	if err != nil {
		return fmt.Errorf("marshaling order customer: %w", err)
	}
	addressJSON, err := json.Marshal(o.Address)
	if err != nil {
		return fmt.Errorf("marshaling order address: %w", err)
	}
	areaJSON, err := json.Marshal(o.DeliveryArea)
	if err != nil {
		return fmt.Errorf("marshaling order delivery area: %w", err)
	}

	_, err = r.pool.Exec(ctx, createOrderSQL,
		o.ID, int16(o.Status), itemsJSON, o.Subtotal, o.ShippingPrice, o.Discount, o.Total,
		o.CouponID, o.CouponCode, o.CouponDiscount, o.CashDiscount, int16(o.PaymentMethod), o.Notes,
		userJSON, addressJSON, areaJSON, o.DeliveryDate, o.DeliveryDay, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// Get returns a single order by its identifier.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return &o, nil
}

// TransitionStatus updates the status only while it still equals from.
func (r *OrderRepository) TransitionStatus(ctx context.Context, id string, from, to order.Status) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, transitionOrderSQL, id, int16(from), int16(to))
	if err != nil {
		return nil, fmt.Errorf("transitioning order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err == nil {
		return &o, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("transitioning order %q: %w", id, err)
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, orderExistsSQL, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("checking order %q: %w", id, err)
	}
	if !exists {
		return nil, order.ErrNotFound
	}
	return nil, order.ErrStatusConflict
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o                                     order.Order
		status, method                        int16
		itemsJSON, userJSON, addrJSON, areaJS []byte
		deliveryDay                           *time.Time
	)
	err := row.Scan(
		&o.ID, &status, &itemsJSON, &o.Subtotal, &o.ShippingPrice, &o.Discount, &o.Total,
		&o.CouponID, &o.CouponCode, &o.CouponDiscount, &o.CashDiscount,
		&method, &o.Notes, &userJSON, &addrJSON, &areaJS, &o.DeliveryDate, &deliveryDay,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}
	o.Status = order.Status(status)
	o.PaymentMethod = payment.Method(method)
	o.DeliveryDay = deliveryDay

	for _, f := range []struct {
		name string
		data []byte
		dst  any
	}{
		{"items", itemsJSON, &o.Items},
		{"customer", userJSON, &o.User},
		{"address", addrJSON, &o.Address},
		{"delivery_area", areaJS, &o.DeliveryArea},
	} {
		if err := json.Unmarshal(f.data, f.dst); err != nil {
			return o, fmt.Errorf("unmarshaling order %s: %w", f.name, err)
		}
	}
	return o, nil
}
