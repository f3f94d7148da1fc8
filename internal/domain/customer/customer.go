package customer

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrAddressNotFound      = errors.New("address not found")
	ErrDeliveryAreaNotFound = errors.New("delivery area not found")
)

// User is the buyer placing an order.
type User struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Surname string `json:"surname,omitempty"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
}

// Address is a delivery address owned by a user.
type Address struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Street      string `json:"street"`
	City        string `json:"city,omitempty"`
	Reference   string `json:"reference,omitempty"`
	Phone       string `json:"phone,omitempty"`
	FloorNumber string `json:"floor_number,omitempty"`
}

// DeliveryArea is a delivery zone. Same-day areas route bank-transfer orders
// to a per-zone ledger identified by SheetName.
type DeliveryArea struct {
	ID              string         `json:"id"`
	Description     string         `json:"description"`
	SameDayDelivery bool           `json:"same_day_delivery"`
	SheetName       string         `json:"sheet_name,omitempty"`
	WhatsappNumber  string         `json:"whatsapp_number,omitempty"`
	OrderCutOffHour int            `json:"order_cut_off_hour"`
	SameDayDays     []time.Weekday `json:"same_day_days,omitempty"`
}

// Repository resolves the references of an order request.
type Repository interface {
	GetUser(ctx context.Context, id string) (*User, error)
	GetAddress(ctx context.Context, id string) (*Address, error)
	GetDeliveryArea(ctx context.Context, id string) (*DeliveryArea, error)
}
