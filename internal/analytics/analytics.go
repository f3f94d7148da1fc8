// Package analytics publishes order logs and marketing events to Kafka.
package analytics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/order"
)

// Default topic names.
const (
	TopicOrderLog     = "barfer.orders.log"
	TopicPurchase     = "barfer.orders.purchase"
	TopicStatusChange = "barfer.orders.status"
)

// Currency of every order amount.
const Currency = "ARS"

// Topics names the destination of each event kind.
type Topics struct {
	OrderLog     string `json:"order_log" yaml:"order_log"`
	Purchase     string `json:"purchase" yaml:"purchase"`
	StatusChange string `json:"status_change" yaml:"status_change"`
}

// All returns the configured topics, defaults applied.
func (t Topics) All() []string {
	t = t.withDefaults()
	return []string{t.OrderLog, t.Purchase, t.StatusChange}
}

func (t Topics) withDefaults() Topics {
	if t.OrderLog == "" {
		t.OrderLog = TopicOrderLog
	}
	if t.Purchase == "" {
		t.Purchase = TopicPurchase
	}
	if t.StatusChange == "" {
		t.StatusChange = TopicStatusChange
	}
	return t
}

// Producer is the subset of *kgo.Client used for publishing.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

var _ order.Analytics = (*Kafka)(nil)

// Kafka publishes order events keyed by order id, so events of one order
// stay in one partition.
type Kafka struct {
	producer Producer
	topics   Topics
	now      func() time.Time
}

// NewKafka creates a Kafka sink.
func NewKafka(producer Producer, topics Topics) *Kafka {
	return &Kafka{producer: producer, topics: topics.withDefaults(), now: time.Now}
}

// LogOrder publishes the full order record.
func (k *Kafka) LogOrder(ctx context.Context, o *order.Order) error {
	var e jx.Encoder
	EncodeOrderLog(&e, o)
	return k.publish(ctx, k.topics.OrderLog, o.ID, e.Bytes())
}

// TrackPurchase publishes a purchase conversion event.
func (k *Kafka) TrackPurchase(ctx context.Context, o *order.Order) error {
	var e jx.Encoder
	EncodePurchase(&e, o, k.now())
	return k.publish(ctx, k.topics.Purchase, o.ID, e.Bytes())
}

// LogStatusChange publishes a status transition.
func (k *Kafka) LogStatusChange(ctx context.Context, o *order.Order, from order.Status) error {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("order_id")
	e.Str(o.ID)
	e.FieldStart("from")
	e.Str(from.String())
	e.FieldStart("to")
	e.Str(o.Status.String())
	e.FieldStart("changed_at")
	e.Str(k.now().UTC().Format(time.RFC3339))
	e.ObjEnd()
	return k.publish(ctx, k.topics.StatusChange, o.ID, e.Bytes())
}

func (k *Kafka) publish(ctx context.Context, topic, key string, value []byte) error {
	rec := &kgo.Record{Topic: topic, Key: []byte(key), Value: value}
	if err := k.producer.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return errors.Wrapf(err, "produce to %s", topic)
	}
	return nil
}

// EncodeOrderLog writes the order log record.
func EncodeOrderLog(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("order_id")
	e.Str(o.ID)
	e.FieldStart("status")
	e.Str(o.Status.String())
	e.FieldStart("created_at")
	e.Str(o.CreatedAt.UTC().Format(time.RFC3339))
	e.FieldStart("customer")
	e.Str(strings.TrimSpace(o.User.Name + " " + o.User.Surname))
	e.FieldStart("email")
	e.Str(o.User.Email)
	e.FieldStart("address")
	e.Str(o.Address.Street)
	e.FieldStart("delivery_area")
	e.Str(o.DeliveryArea.Description)
	e.FieldStart("delivery_date")
	e.Str(o.DeliveryDate)
	e.FieldStart("payment_method")
	e.Str(o.PaymentMethod.String())
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		e.FieldStart("product")
		e.Str(it.ProductName)
		e.FieldStart("option")
		e.Str(it.OptionName)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.FieldStart("total")
		e.Str(it.Total.StringFixed(2))
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("subtotal")
	e.Str(o.Subtotal.StringFixed(2))
	e.FieldStart("shipping_price")
	e.Str(o.ShippingPrice.StringFixed(2))
	e.FieldStart("discount")
	e.Str(o.Discount.StringFixed(2))
	e.FieldStart("total")
	e.Str(o.Total.StringFixed(2))
	if o.CouponCode != "" {
		e.FieldStart("coupon_code")
		e.Str(o.CouponCode)
	}
	if o.Notes != "" {
		e.FieldStart("notes")
		e.Str(o.Notes)
	}
	e.ObjEnd()
}

// EncodePurchase writes a conversions-API purchase event. The email is only
// sent as a SHA-256 hash of its normalized form.
func EncodePurchase(e *jx.Encoder, o *order.Order, now time.Time) {
	total, _ := o.Total.Float64()

	e.ObjStart()
	e.FieldStart("event_name")
	e.Str("Purchase")
	e.FieldStart("event_time")
	e.Int64(now.Unix())
	e.FieldStart("action_source")
	e.Str("website")
	e.FieldStart("event_id")
	e.Str(o.ID)
	e.FieldStart("custom_data")
	e.ObjStart()
	e.FieldStart("currency")
	e.Str(Currency)
	e.FieldStart("value")
	e.Float64(total)
	e.FieldStart("content_type")
	e.Str("product")
	e.ObjEnd()
	e.FieldStart("user_data")
	e.ObjStart()
	if o.User.Email != "" {
		e.FieldStart("em")
		e.Str(HashEmail(o.User.Email))
	}
	e.ObjEnd()
	e.ObjEnd()
}

// HashEmail returns the hex SHA-256 of the trimmed, lower-cased email.
func HashEmail(email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:])
}
