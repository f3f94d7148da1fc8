package order

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
)

type countingMailer struct {
	calls atomic.Int32
	err   error
}

func (m *countingMailer) SendOrderConfirmation(context.Context, *Order) error {
	m.calls.Add(1)
	return m.err
}

type panickingAnalytics struct{}

func (panickingAnalytics) LogOrder(context.Context, *Order) error { panic("boom") }

func (panickingAnalytics) TrackPurchase(context.Context, *Order) error {
	return errors.New("tracking down")
}

func (panickingAnalytics) LogStatusChange(context.Context, *Order, Status) error { return nil }

func TestDispatcher_IsolatesFailures(t *testing.T) {
	mailer := &countingMailer{}
	d := NewDispatcher(mailer, nil, panickingAnalytics{})

	ctx, cancel := context.WithCancel(context.Background())
	o := Order{ID: "o1"}
	d.Dispatch(ctx,
		Event{Kind: EventOrderLogged, Order: o},
		Event{Kind: EventPurchaseTracked, Order: o},
		Event{Kind: EventZoneLedger, Order: o},
		Event{Kind: EventConfirmationEmail, Order: o},
	)
	cancel()
	d.Wait()

	assert.Equal(t, int32(1), mailer.calls.Load())
}

func TestDispatcher_Handle(t *testing.T) {
	d := NewDispatcher(nil, nil, nil)
	err := d.handle(context.Background(), Event{Kind: EventZoneLedgerStatus})
	assert.ErrorIs(t, err, errNoSink)

	err = d.handle(context.Background(), Event{Kind: "unknown"})
	assert.Error(t, err)

	mailer := &countingMailer{err: errors.New("smtp down")}
	d = NewDispatcher(mailer, nil, nil)
	err = d.handle(context.Background(), Event{Kind: EventConfirmationEmail})
	assert.EqualError(t, err, "smtp down")
}
