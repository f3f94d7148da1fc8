// Package ledger keeps the same-day delivery ledger in MongoDB, one
// collection per delivery zone.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/order"
)

// Shipping and payment states shown to the delivery team.
const (
	ShippingPending   = "Pendiente"
	ShippingInTransit = "En viaje"
	ShippingDone      = "Listo"
	ShippingCanceled  = "Cancelado"

	PaymentPending   = "Pendiente"
	PaymentConfirmed = "Confirmado"
)

// ErrNoZone is returned when the order's delivery area has no ledger name.
var ErrNoZone = errors.New("delivery area has no ledger zone")

// Entry is one ledger row.
type Entry struct {
	OrderID        string    `bson:"order_id"`
	OrderedAt      time.Time `bson:"ordered_at"`
	DeliveryDate   string    `bson:"delivery_date"`
	Notes          string    `bson:"notes"`
	ShippingPrice  string    `bson:"shipping_price"`
	ShippingStatus string    `bson:"shipping_status"`
	Customer       string    `bson:"customer"`
	Address        string    `bson:"address"`
	Floor          string    `bson:"floor,omitempty"`
	Reference      string    `bson:"reference,omitempty"`
	Phone          string    `bson:"phone"`
	Email          string    `bson:"email"`
	Products       string    `bson:"products"`
	Total          string    `bson:"total"`
	PaymentMethod  string    `bson:"payment_method"`
	PaymentStatus  string    `bson:"payment_status"`
	UpdatedAt      time.Time `bson:"updated_at"`
}

// NewEntry builds the ledger row of an order.
func NewEntry(o *order.Order) Entry {
	products := make([]string, len(o.Items))
	for i, it := range o.Items {
		products[i] = fmt.Sprintf("%s - %s x%d", it.ProductName, it.OptionName, it.Quantity)
	}
	phone := o.Address.Phone
	if phone == "" {
		phone = o.User.Phone
	}
	return Entry{
		OrderID:        o.ID,
		OrderedAt:      o.CreatedAt,
		DeliveryDate:   o.DeliveryDate,
		Notes:          o.Notes,
		ShippingPrice:  o.ShippingPrice.StringFixed(2),
		ShippingStatus: ShippingPending,
		Customer:       strings.TrimSpace(o.User.Name + " " + o.User.Surname),
		Address:        strings.TrimSpace(o.Address.Street + ", " + o.Address.City),
		Floor:          o.Address.FloorNumber,
		Reference:      o.Address.Reference,
		Phone:          phone,
		Email:          o.User.Email,
		Products:       strings.Join(products, "; "),
		Total:          o.Total.StringFixed(2),
		PaymentMethod:  o.PaymentMethod.String(),
		PaymentStatus:  paymentStatus(o.Status),
		UpdatedAt:      o.UpdatedAt,
	}
}

func paymentStatus(s order.Status) string {
	switch s {
	case order.StatusConfirmed, order.StatusShipped, order.StatusDelivered:
		return PaymentConfirmed
	default:
		return PaymentPending
	}
}

func shippingStatus(s order.Status) string {
	switch s {
	case order.StatusShipped:
		return ShippingInTransit
	case order.StatusDelivered:
		return ShippingDone
	case order.StatusCanceled:
		return ShippingCanceled
	default:
		return ShippingPending
	}
}

var _ order.ZoneLedger = (*Mongo)(nil)

// Mongo is the MongoDB-backed zone ledger.
type Mongo struct {
	db  *mongo.Database
	now func() time.Time
}

// Connect opens a MongoDB connection and returns the named database.
func Connect(ctx context.Context, uri, database string) (*mongo.Database, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	return client.Database(database), nil
}

// NewMongo creates a ledger on db.
func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{db: db, now: time.Now}
}

func (m *Mongo) collection(zone string) (*mongo.Collection, error) {
	zone = strings.TrimSpace(zone)
	if zone == "" {
		return nil, ErrNoZone
	}
	return m.db.Collection("zone_" + strings.ReplaceAll(zone, "$", "_")), nil
}

// Append records the order in the zone ledger. Appending the same order
// twice keeps a single row.
func (m *Mongo) Append(ctx context.Context, zone string, o *order.Order) error {
	coll, err := m.collection(zone)
	if err != nil {
		return err
	}
	entry := NewEntry(o)
	entry.UpdatedAt = m.now()

	_, err = coll.UpdateOne(ctx,
		bson.M{"order_id": o.ID},
		bson.M{"$setOnInsert": entry},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("append order %q to zone %q: %w", o.ID, zone, err)
	}
	return nil
}

// UpdateStatus reflects an order status change in the ledger row.
func (m *Mongo) UpdateStatus(ctx context.Context, zone, orderID string, status order.Status) error {
	coll, err := m.collection(zone)
	if err != nil {
		return err
	}
	res, err := coll.UpdateOne(ctx,
		bson.M{"order_id": orderID},
		bson.M{"$set": bson.M{
			"payment_status":  paymentStatus(status),
			"shipping_status": shippingStatus(status),
			"updated_at":      m.now(),
		}},
	)
	if err != nil {
		return fmt.Errorf("update order %q in zone %q: %w", orderID, zone, err)
	}
	if res.MatchedCount == 0 {
		return errors.Wrapf(order.ErrNotFound, "zone %q", zone)
	}
	return nil
}

// Entries returns the rows of a zone ordered by order time.
func (m *Mongo) Entries(ctx context.Context, zone string) ([]Entry, error) {
	coll, err := m.collection(zone)
	if err != nil {
		return nil, err
	}
	cur, err := coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "ordered_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list zone %q: %w", zone, err)
	}
	var entries []Entry
	if err := cur.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("decode zone %q: %w", zone, err)
	}
	return entries, nil
}
