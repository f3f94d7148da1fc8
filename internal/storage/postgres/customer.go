package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/customer"
)

const (
	getUserSQL = `SELECT id, name, surname, email, phone FROM users WHERE id = $1`

	getAddressSQL = `SELECT id, user_id, street, city, reference, phone, floor_number
		FROM addresses WHERE id = $1`

	getDeliveryAreaSQL = `SELECT id, description, same_day_delivery, sheet_name, whatsapp_number,
		order_cut_off_hour, same_day_days
		FROM delivery_areas WHERE id = $1`

	upsertUserSQL = `INSERT INTO users (id, name, surname, email, phone) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, surname = EXCLUDED.surname,
			email = EXCLUDED.email, phone = EXCLUDED.phone`

	upsertAddressSQL = `INSERT INTO addresses (id, user_id, street, city, reference, phone, floor_number)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET user_id = EXCLUDED.user_id, street = EXCLUDED.street,
			city = EXCLUDED.city, reference = EXCLUDED.reference, phone = EXCLUDED.phone,
			floor_number = EXCLUDED.floor_number`

	upsertDeliveryAreaSQL = `INSERT INTO delivery_areas (id, description, same_day_delivery, sheet_name,
		whatsapp_number, order_cut_off_hour, same_day_days)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET description = EXCLUDED.description,
			same_day_delivery = EXCLUDED.same_day_delivery, sheet_name = EXCLUDED.sheet_name,
			whatsapp_number = EXCLUDED.whatsapp_number, order_cut_off_hour = EXCLUDED.order_cut_off_hour,
			same_day_days = EXCLUDED.same_day_days`
)

var _ customer.Repository = (*CustomerRepository)(nil)

// CustomerRepository implements customer.Repository backed by PostgreSQL.
type CustomerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository returns a CustomerRepository that uses the given pool.
func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

func (r *CustomerRepository) GetUser(ctx context.Context, id string) (*customer.User, error) {
	var u customer.User
	err := r.pool.QueryRow(ctx, getUserSQL, id).Scan(&u.ID, &u.Name, &u.Surname, &u.Email, &u.Phone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrUserNotFound
		}
		return nil, fmt.Errorf("getting user %q: %w", id, err)
	}
	return &u, nil
}

func (r *CustomerRepository) GetAddress(ctx context.Context, id string) (*customer.Address, error) {
	var a customer.Address
	err := r.pool.QueryRow(ctx, getAddressSQL, id).Scan(
		&a.ID, &a.UserID, &a.Street, &a.City, &a.Reference, &a.Phone, &a.FloorNumber,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrAddressNotFound
		}
		return nil, fmt.Errorf("getting address %q: %w", id, err)
	}
	return &a, nil
}

func (r *CustomerRepository) GetDeliveryArea(ctx context.Context, id string) (*customer.DeliveryArea, error) {
	var (
		a    customer.DeliveryArea
		days []int32
	)
	err := r.pool.QueryRow(ctx, getDeliveryAreaSQL, id).Scan(
		&a.ID, &a.Description, &a.SameDayDelivery, &a.SheetName, &a.WhatsappNumber,
		&a.OrderCutOffHour, &days,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrDeliveryAreaNotFound
		}
		return nil, fmt.Errorf("getting delivery area %q: %w", id, err)
	}
	for _, d := range days {
		a.SameDayDays = append(a.SameDayDays, time.Weekday(d))
	}
	return &a, nil
}

// UpsertUser inserts or updates a user.
func (r *CustomerRepository) UpsertUser(ctx context.Context, u customer.User) error {
	if _, err := r.pool.Exec(ctx, upsertUserSQL, u.ID, u.Name, u.Surname, u.Email, u.Phone); err != nil {
		return fmt.Errorf("upserting user %q: %w", u.ID, err)
	}
	return nil
}

// UpsertAddress inserts or updates an address.
func (r *CustomerRepository) UpsertAddress(ctx context.Context, a customer.Address) error {
	_, err := r.pool.Exec(ctx, upsertAddressSQL,
		a.ID, a.UserID, a.Street, a.City, a.Reference, a.Phone, a.FloorNumber,
	)
	if err != nil {
		return fmt.Errorf("upserting address %q: %w", a.ID, err)
	}
	return nil
}

// UpsertDeliveryArea inserts or updates a delivery area.
func (r *CustomerRepository) UpsertDeliveryArea(ctx context.Context, a customer.DeliveryArea) error {
	days := make([]int32, len(a.SameDayDays))
	for i, d := range a.SameDayDays {
		days[i] = int32(d)
	}
	_, err := r.pool.Exec(ctx, upsertDeliveryAreaSQL,
		a.ID, a.Description, a.SameDayDelivery, a.SheetName, a.WhatsappNumber, a.OrderCutOffHour, days,
	)
	if err != nil {
		return fmt.Errorf("upserting delivery area %q: %w", a.ID, err)
	}
	return nil
}
