package order

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// EventKind names a post-commit side effect.
type EventKind string

const (
	EventConfirmationEmail EventKind = "confirmation_email"
	EventZoneLedger        EventKind = "zone_ledger"
	EventZoneLedgerStatus  EventKind = "zone_ledger_status"
	EventOrderLogged       EventKind = "order_logged"
	EventPurchaseTracked   EventKind = "purchase_tracked"
	EventStatusChanged     EventKind = "status_changed"
)

// Event is a side effect queued after an order change is durable. Order is
// a copy taken when the event was queued.
type Event struct {
	Kind  EventKind
	Order Order
	From  Status
}

// Mailer sends transactional emails.
type Mailer interface {
	SendOrderConfirmation(ctx context.Context, o *Order) error
}

// ZoneLedger records same-day orders per delivery zone.
type ZoneLedger interface {
	Append(ctx context.Context, zone string, o *Order) error
	UpdateStatus(ctx context.Context, zone, orderID string, status Status) error
}

// Analytics receives order logs and marketing events.
type Analytics interface {
	LogOrder(ctx context.Context, o *Order) error
	TrackPurchase(ctx context.Context, o *Order) error
	LogStatusChange(ctx context.Context, o *Order, from Status) error
}

var errNoSink = errors.New("no sink configured")

// Dispatcher runs post-commit events in the background. Every event runs in
// its own goroutine; failures and panics are logged and never reach the
// caller of Dispatch.
type Dispatcher struct {
	mailer    Mailer
	ledger    ZoneLedger
	analytics Analytics
	timeout   time.Duration

	wg sync.WaitGroup
}

// NewDispatcher creates a Dispatcher. Nil sinks are skipped.
func NewDispatcher(mailer Mailer, ledger ZoneLedger, analytics Analytics) *Dispatcher {
	return &Dispatcher{
		mailer:    mailer,
		ledger:    ledger,
		analytics: analytics,
		timeout:   10 * time.Second,
	}
}

// Dispatch schedules events. The request context only contributes its values.
func (d *Dispatcher) Dispatch(ctx context.Context, events ...Event) {
	base := context.WithoutCancel(ctx)
	for _, ev := range events {
		d.wg.Add(1)
		go func(ev Event) {
			defer d.wg.Done()
			d.run(base, ev)
		}(ev)
	}
}

// Wait blocks until all scheduled events finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) run(ctx context.Context, ev Event) {
	lg := zctx.From(ctx).With(
		zap.String("event", string(ev.Kind)),
		zap.String("order_id", ev.Order.ID),
	)
	defer func() {
		if rec := recover(); rec != nil {
			lg.Error("Event handler panicked", zap.Any("panic", rec), zap.Stack("stack"))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	err := d.handle(ctx, ev)
	switch {
	case errors.Is(err, errNoSink):
		lg.Debug("Event skipped, no sink")
	case err != nil:
		lg.Error("Event handler failed", zap.Error(err))
	}
}

func (d *Dispatcher) handle(ctx context.Context, ev Event) error {
	o := &ev.Order
	switch ev.Kind {
	case EventConfirmationEmail:
		if d.mailer == nil {
			return errNoSink
		}
		return d.mailer.SendOrderConfirmation(ctx, o)
	case EventZoneLedger:
		if d.ledger == nil {
			return errNoSink
		}
		return d.ledger.Append(ctx, o.DeliveryArea.SheetName, o)
	case EventZoneLedgerStatus:
		if d.ledger == nil {
			return errNoSink
		}
		return d.ledger.UpdateStatus(ctx, o.DeliveryArea.SheetName, o.ID, o.Status)
	case EventOrderLogged:
		if d.analytics == nil {
			return errNoSink
		}
		return d.analytics.LogOrder(ctx, o)
	case EventPurchaseTracked:
		if d.analytics == nil {
			return errNoSink
		}
		return d.analytics.TrackPurchase(ctx, o)
	case EventStatusChanged:
		if d.analytics == nil {
			return errNoSink
		}
		return d.analytics.LogStatusChange(ctx, o, ev.From)
	default:
		return errors.Errorf("unknown event kind %q", ev.Kind)
	}
}
