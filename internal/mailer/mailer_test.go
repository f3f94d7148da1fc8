package mailer

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/go-faster/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/customer"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/order"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/payment"
)

type fakePublisher struct {
	key  string
	msgs []amqp.Publishing
	err  error
}

func (f *fakePublisher) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	f.key = key
	f.msgs = append(f.msgs, msg)
	return f.err
}

func cashOrder() *order.Order {
	return &order.Order{
		ID:            "o1",
		Total:         decimal.NewFromInt(2070),
		PaymentMethod: payment.MethodCash,
		User:          customer.User{Email: "ana@example.com", Phone: "111"},
		Address:       customer.Address{Street: "Calle 1"},
		Items: []order.Item{{
			ProductName: "Pollo",
			OptionName:  "5kg",
			Quantity:    3,
			Total:       decimal.NewFromInt(3000),
			Discount:    decimal.NewFromInt(700),
			Images:      []string{"https://img.example/pollo.png"},
		}},
	}
}

func TestAMQP_SendOrderConfirmation(t *testing.T) {
	pub := &fakePublisher{}
	m := NewAMQP(pub, "barfer.mail")

	require.NoError(t, m.SendOrderConfirmation(context.Background(), cashOrder()))
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "barfer.mail", pub.key)
	assert.Equal(t, amqp.Persistent, pub.msgs[0].DeliveryMode)

	var msg Message
	require.NoError(t, json.Unmarshal(pub.msgs[0].Body, &msg))
	assert.Equal(t, "ana@example.com", msg.To)
	assert.Equal(t, SubjectOrderConfirmation, msg.Subject)
	assert.Contains(t, msg.HTML, "3 productos en tu compra ($2070.00)")
	assert.Contains(t, msg.HTML, "$2300.00")
	assert.Contains(t, msg.HTML, "A pagar en efectivo")
	assert.Contains(t, msg.HTML, "Fecha no especificada")
	assert.Contains(t, msg.HTML, "111")
}

func TestAMQP_Errors(t *testing.T) {
	pub := &fakePublisher{err: errors.New("channel closed")}
	m := NewAMQP(pub, "barfer.mail")

	require.Error(t, m.SendOrderConfirmation(context.Background(), cashOrder()))

	o := cashOrder()
	o.User.Email = ""
	require.ErrorIs(t, m.SendOrderConfirmation(context.Background(), o), ErrNoRecipient)
}

func TestRenderOrderConfirmation_Escapes(t *testing.T) {
	o := cashOrder()
	o.Items[0].ProductName = "<script>"
	html, err := RenderOrderConfirmation(o)
	require.NoError(t, err)
	assert.NotContains(t, html, "<script>")
}
