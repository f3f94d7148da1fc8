// Package mailer renders transactional emails and queues them on RabbitMQ
// for the mail worker.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"sync"
	"time"

	"github.com/go-faster/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"

	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/order"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/payment"
)

// SubjectOrderConfirmation is the subject of order confirmation emails.
const SubjectOrderConfirmation = "Confirmación de Pedido"

// ErrNoRecipient is returned for orders without a customer email.
var ErrNoRecipient = errors.New("order has no recipient email")

// Message is the queued email job.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	OrderID string `json:"order_id,omitempty"`
}

// Publisher is the subset of *amqp.Channel used to queue messages.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

var _ order.Mailer = (*AMQP)(nil)

// AMQP queues emails on a durable queue.
type AMQP struct {
	mu    sync.Mutex
	pub   Publisher
	queue string
}

// Dial connects to RabbitMQ and declares the mail queue.
func Dial(url, queue string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("declare queue %q: %w", queue, err)
	}
	return conn, ch, nil
}

// NewAMQP creates a mailer publishing to queue through the default exchange.
func NewAMQP(pub Publisher, queue string) *AMQP {
	return &AMQP{pub: pub, queue: queue}
}

// SendOrderConfirmation queues the order confirmation email.
func (m *AMQP) SendOrderConfirmation(ctx context.Context, o *order.Order) error {
	if o.User.Email == "" {
		return ErrNoRecipient
	}
	html, err := RenderOrderConfirmation(o)
	if err != nil {
		return err
	}
	return m.publish(ctx, Message{
		To:      o.User.Email,
		Subject: SubjectOrderConfirmation,
		HTML:    html,
		OrderID: o.ID,
	})
}

func (m *AMQP) publish(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal message")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	err = m.pub.PublishWithContext(ctx, "", m.queue, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		ContentType:  "application/json",
		MessageId:    msg.OrderID,
		Body:         body,
	})
	if err != nil {
		return errors.Wrapf(err, "publish to %s", m.queue)
	}
	return nil
}

type confirmationLine struct {
	Image      string
	Title      string
	Quantity   int
	Subtotal   string
	Discounted string
}

type confirmationView struct {
	Units        int
	Total        string
	Lines        []confirmationLine
	DeliveryDate string
	Address      string
	Phone        string
	Payment      string
}

var confirmationTemplate = template.Must(template.New("confirmation").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: auto; padding: 20px;">
<h1 style="text-align: center;">¡Gracias por tu compra!</h1>
<div style="background-color: #fff; padding: 20px; border-radius: 10px; margin-bottom: 20px;">
<h2>{{.Units}} productos en tu compra ({{.Total}})</h2>
{{range .Lines}}<div style="display: flex; align-items: center; border-bottom: 1px solid #ddd; padding-bottom: 10px;">
{{if .Image}}<img src="{{.Image}}" alt="" style="width: 50px; height: 50px; border-radius: 50%;" />{{end}}
<p style="flex: 1; font-weight: bold;">{{.Quantity}} {{.Title}}</p>
{{if .Discounted}}<p><s>{{.Subtotal}}</s> {{.Discounted}}</p>{{else}}<p>{{.Subtotal}}</p>{{end}}
</div>
{{end}}</div>
<div style="background-color: #fff; padding: 20px; border-radius: 10px;">
<h2>Detalles de envío</h2>
<p><strong>Fecha de entrega:</strong> {{.DeliveryDate}}</p>
<p><strong>Dirección:</strong> {{.Address}}</p>
<p><strong>Teléfono:</strong> {{.Phone}}</p>
<p><strong>Método de pago:</strong> {{.Payment}}</p>
</div>
</div>`))

// RenderOrderConfirmation renders the confirmation email body.
func RenderOrderConfirmation(o *order.Order) (string, error) {
	view := confirmationView{
		Total:        formatPrice(o.Total),
		DeliveryDate: o.DeliveryDate,
		Address:      o.Address.Street,
		Phone:        o.Address.Phone,
		Payment:      "Pago con Mercado Pago",
	}
	if view.DeliveryDate == "" {
		view.DeliveryDate = "Fecha no especificada"
	}
	if view.Phone == "" {
		view.Phone = o.User.Phone
	}
	switch o.PaymentMethod.Category() {
	case payment.CategoryCash:
		view.Payment = "A pagar en efectivo"
	case payment.CategoryBankTransfer:
		view.Payment = "Transferencia bancaria"
	}

	for _, it := range o.Items {
		view.Units += it.Quantity
		line := confirmationLine{
			Title:    it.ProductName + " - " + it.OptionName,
			Quantity: it.Quantity,
			Subtotal: formatPrice(it.Total),
		}
		if len(it.Images) > 0 {
			line.Image = it.Images[0]
		}
		if it.Discount.IsPositive() {
			line.Discounted = formatPrice(it.Total.Sub(it.Discount))
		}
		view.Lines = append(view.Lines, line)
	}

	var buf bytes.Buffer
	if err := confirmationTemplate.Execute(&buf, view); err != nil {
		return "", errors.Wrap(err, "render confirmation")
	}
	return buf.String(), nil
}

func formatPrice(v decimal.Decimal) string {
	return "$" + v.StringFixed(2)
}
