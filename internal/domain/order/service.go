package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/catalog"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/coupon"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/customer"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/payment"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/pricing"
)

// TopicPayment is the webhook topic carrying payment updates.
const TopicPayment = "payment"

var (
	// ErrInvalidStatus is returned for status codes outside the lifecycle.
	ErrInvalidStatus = errors.New("invalid order status")
	// ErrStatusAlreadySet is returned when moving an order to its current status.
	ErrStatusAlreadySet = errors.New("order status already set")
	// ErrInvalidTransition is returned when leaving the canceled state.
	ErrInvalidTransition = errors.New("invalid order status transition")
	// ErrInvalidNotification is returned for malformed payment notifications.
	ErrInvalidNotification = errors.New("invalid payment notification")
)

// Pricer computes discounts and coupon validity for carts.
type Pricer interface {
	CalculateOrderDiscounts(ctx context.Context, cart pricing.Cart, method payment.Method) (*pricing.OrderDiscounts, error)
	ValidateCoupon(ctx context.Context, code, userID string, lines []pricing.Line) (*coupon.Result, error)
}

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	UserID         string
	AddressID      string
	DeliveryAreaID string
	Lines          []pricing.Line
	CouponCode     string
	PaymentMethod  payment.Method
	ShippingPrice  decimal.Decimal
	Notes          string
	DeliveryDate   string
}

// Redirect tells the client to continue on a contact channel instead of
// waiting for payment confirmation.
type Redirect struct {
	Contact string
}

// PlaceOrderResult holds the output of a successfully placed order.
type PlaceOrderResult struct {
	Order     *Order
	Discounts *pricing.OrderDiscounts
	Checkout  *payment.Checkout
	Redirect  *Redirect
}

// Notification is a payment provider webhook delivery.
type Notification struct {
	Topic     string
	PaymentID string
}

// Deps lists the collaborators of Service. Cache, Deduper, Meter and Tracer
// are optional.
type Deps struct {
	Customers customer.Repository
	Catalog   catalog.Repository
	Coupons   coupon.Repository
	Pricer    Pricer
	Orders    Repository
	Payments  payment.Provider
	Events    *Dispatcher
	Cache     Cache
	Deduper   WebhookDeduper
	Callbacks payment.CallbackURLs
	Meter     metric.Meter
	Tracer    trace.Tracer
}

// Service assembles orders and drives their lifecycle.
type Service struct {
	customers customer.Repository
	catalog   catalog.Repository
	coupons   coupon.Repository
	pricer    Pricer
	orders    Repository
	payments  payment.Provider
	events    *Dispatcher
	cache     Cache
	deduper   WebhookDeduper
	callbacks payment.CallbackURLs
	tracer    trace.Tracer
	now       func() time.Time

	created       metric.Int64Counter
	statusChanges metric.Int64Counter
}

// NewService creates an order Service.
func NewService(d Deps) (*Service, error) {
	if d.Meter == nil {
		d.Meter = metricnoop.NewMeterProvider().Meter("order")
	}
	if d.Tracer == nil {
		d.Tracer = tracenoop.NewTracerProvider().Tracer("order")
	}
	if d.Events == nil {
		d.Events = NewDispatcher(nil, nil, nil)
	}

	created, err := d.Meter.Int64Counter("orders.created",
		metric.WithDescription("Orders persisted, by payment method"))
	if err != nil {
		return nil, errors.Wrap(err, "orders.created counter")
	}
	statusChanges, err := d.Meter.Int64Counter("orders.status_changes",
		metric.WithDescription("Order status transitions, by target status"))
	if err != nil {
		return nil, errors.Wrap(err, "orders.status_changes counter")
	}

	return &Service{
		customers:     d.Customers,
		catalog:       d.Catalog,
		coupons:       d.Coupons,
		pricer:        d.Pricer,
		orders:        d.Orders,
		payments:      d.Payments,
		events:        d.Events,
		cache:         d.Cache,
		deduper:       d.Deduper,
		callbacks:     d.Callbacks,
		tracer:        d.Tracer,
		now:           time.Now,
		created:       created,
		statusChanges: statusChanges,
	}, nil
}

// CalculateDiscounts prices a cart without side effects.
func (s *Service) CalculateDiscounts(ctx context.Context, cart pricing.Cart, method payment.Method) (*pricing.OrderDiscounts, error) {
	return s.pricer.CalculateOrderDiscounts(ctx, cart, method)
}

// ValidateCoupon evaluates a coupon for a user and cart without consuming it.
func (s *Service) ValidateCoupon(ctx context.Context, code, userID string, lines []pricing.Line) (*coupon.Result, error) {
	return s.pricer.ValidateCoupon(ctx, code, userID, lines)
}

// GetOrder returns an order, served from the cache when possible.
func (s *Service) GetOrder(ctx context.Context, id string) (*Order, error) {
	lg := zctx.From(ctx)
	if s.cache != nil {
		o, err := s.cache.Get(ctx, id)
		switch {
		case err == nil:
			return o, nil
		case !errors.Is(err, ErrCacheMiss):
			lg.Warn("Order cache read failed", zap.String("order_id", id), zap.Error(err))
		}
	}

	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, o); err != nil {
			lg.Warn("Order cache write failed", zap.String("order_id", id), zap.Error(err))
		}
	}
	return o, nil
}

type references struct {
	user    *customer.User
	address *customer.Address
	area    *customer.DeliveryArea
}

// CreateOrder resolves references, reserves stock, prices the cart, persists
// the order, consumes the coupon and runs payment side effects. Nothing is
// left behind when a step before persistence fails.
func (s *Service) CreateOrder(ctx context.Context, req PlaceOrderRequest) (_ *PlaceOrderResult, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.CreateOrder",
		trace.WithAttributes(attribute.String("payment_method", req.PaymentMethod.String())))
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()
	lg := zctx.From(ctx)

	if err := pricing.ValidateLines(req.Lines); err != nil {
		return nil, err
	}
	if _, err := payment.ParseMethod(req.PaymentMethod.Code()); err != nil {
		return nil, err
	}

	refs, err := s.resolve(ctx, req)
	if err != nil {
		return nil, err
	}

	reserved, err := s.reserveStock(ctx, req.Lines)
	if err != nil {
		return nil, err
	}
	persisted := false
	defer func() {
		if !persisted {
			s.restoreStock(ctx, reserved)
		}
	}()

	disc, err := s.pricer.CalculateOrderDiscounts(ctx, pricing.Cart{
		UserID:     req.UserID,
		CouponCode: req.CouponCode,
		Lines:      req.Lines,
	}, req.PaymentMethod)
	if err != nil {
		return nil, errors.Wrap(err, "calculate discounts")
	}
	if req.CouponCode != "" && disc.Coupon == nil && disc.CouponResult != nil {
		lg.Info("Coupon not applied",
			zap.String("coupon", req.CouponCode),
			zap.String("reason", string(disc.CouponResult.Reason)),
		)
	}

	o, err := s.assemble(ctx, req, refs, disc)
	if err != nil {
		return nil, err
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	persisted = true
	lg = lg.With(zap.String("order_id", o.ID))

	if o.CouponID != "" {
		if _, err := s.coupons.IncrementUsage(ctx, o.CouponID, req.UserID); err != nil {
			lg.Warn("Coupon consumption failed, canceling order", zap.Error(err))
			s.abort(ctx, o)
			if reason, ok := coupon.ReasonFor(err); ok {
				return nil, &coupon.ReasonError{Reason: reason, Message: o.CouponCode}
			}
			return nil, errors.Wrap(err, "consume coupon")
		}
	}

	res := &PlaceOrderResult{Order: o, Discounts: disc}
	events := []Event{
		{Kind: EventOrderLogged, Order: *o},
		{Kind: EventPurchaseTracked, Order: *o},
	}
	switch req.PaymentMethod.Category() {
	case payment.CategoryCash:
		events = append(events, Event{Kind: EventConfirmationEmail, Order: *o})
	case payment.CategoryProviderCheckout:
		checkout, err := s.checkout(ctx, o)
		if err != nil {
			s.events.Dispatch(ctx, events...)
			return nil, errors.Wrapf(err, "create payment for order %s", o.ID)
		}
		res.Checkout = checkout
	case payment.CategoryBankTransfer:
		if refs.area.SameDayDelivery {
			events = append(events, Event{Kind: EventZoneLedger, Order: *o})
			res.Redirect = &Redirect{Contact: refs.area.WhatsappNumber}
		}
	}
	s.events.Dispatch(ctx, events...)

	s.created.Add(ctx, 1, metric.WithAttributes(attribute.String("payment_method", req.PaymentMethod.String())))
	lg.Info("Order created",
		zap.String("total", o.Total.String()),
		zap.String("discount", o.Discount.String()),
		zap.Stringer("payment_method", req.PaymentMethod),
	)
	return res, nil
}

func (s *Service) resolve(ctx context.Context, req PlaceOrderRequest) (*references, error) {
	var refs references
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u, err := s.customers.GetUser(gctx, req.UserID)
		if err != nil {
			return errors.Wrap(err, "get user")
		}
		refs.user = u
		return nil
	})
	g.Go(func() error {
		a, err := s.customers.GetAddress(gctx, req.AddressID)
		if err != nil {
			return errors.Wrap(err, "get address")
		}
		if a.UserID != "" && a.UserID != req.UserID {
			return errors.Wrap(customer.ErrAddressNotFound, "address belongs to another user")
		}
		refs.address = a
		return nil
	})
	g.Go(func() error {
		area, err := s.customers.GetDeliveryArea(gctx, req.DeliveryAreaID)
		if err != nil {
			return errors.Wrap(err, "get delivery area")
		}
		refs.area = area
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &refs, nil
}

// reserveStock decrements stock line by line with the store's conditional
// decrement. On failure the lines already reserved are put back.
func (s *Service) reserveStock(ctx context.Context, lines []pricing.Line) ([]pricing.Line, error) {
	reserved := make([]pricing.Line, 0, len(lines))
	for _, l := range lines {
		if _, err := s.catalog.DecrementStock(ctx, l.OptionID, l.Quantity); err != nil {
			s.restoreStock(ctx, reserved)
			return nil, errors.Wrap(err, "reserve stock")
		}
		reserved = append(reserved, l)
	}
	return reserved, nil
}

func (s *Service) restoreStock(ctx context.Context, lines []pricing.Line) {
	ctx = context.WithoutCancel(ctx)
	for _, l := range lines {
		if _, err := s.catalog.IncrementStock(ctx, l.OptionID, l.Quantity); err != nil {
			zctx.From(ctx).Error("Stock restore failed",
				zap.String("option_id", l.OptionID),
				zap.Int("quantity", l.Quantity),
				zap.Error(err),
			)
		}
	}
}

// abort cancels a persisted order whose coupon could not be consumed.
func (s *Service) abort(ctx context.Context, o *Order) {
	ctx = context.WithoutCancel(ctx)
	if _, err := s.orders.TransitionStatus(ctx, o.ID, StatusPending, StatusCanceled); err != nil {
		zctx.From(ctx).Error("Cancel order failed", zap.String("order_id", o.ID), zap.Error(err))
		return
	}
	o.Status = StatusCanceled
	lines := make([]pricing.Line, len(o.Items))
	for i, it := range o.Items {
		lines[i] = pricing.Line{ProductID: it.ProductID, OptionID: it.OptionID, Quantity: it.Quantity}
	}
	s.restoreStock(ctx, lines)
}

func (s *Service) assemble(ctx context.Context, req PlaceOrderRequest, refs *references, disc *pricing.OrderDiscounts) (*Order, error) {
	productIDs := make([]string, 0, len(disc.Lines))
	for _, pl := range disc.Lines {
		productIDs = append(productIDs, pl.Option.ProductID)
	}
	products, err := s.catalog.GetProducts(ctx, productIDs)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]catalog.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	lineDiscount := make(map[string]decimal.Decimal, len(disc.Products))
	for _, pd := range disc.Products {
		lineDiscount[pd.OptionID] = lineDiscount[pd.OptionID].Add(pd.Amount)
	}

	items := make([]Item, len(disc.Lines))
	for i, pl := range disc.Lines {
		p, ok := byID[pl.Option.ProductID]
		if !ok {
			return nil, &catalog.ProductNotFoundError{ProductID: pl.Option.ProductID}
		}
		items[i] = Item{
			ProductID:          p.ID,
			ProductName:        p.Name,
			ProductDescription: p.Description,
			Category:           p.Category,
			Images:             append([]string(nil), p.Images...),
			OptionID:           pl.Option.ID,
			OptionName:         pl.Option.Name,
			UnitPrice:          pl.Option.Price,
			Quantity:           pl.Quantity,
			Total:              pl.Total,
			Discount:           lineDiscount[pl.Option.ID],
		}
	}

	shipping := req.ShippingPrice
	if shipping.IsNegative() {
		shipping = decimal.Zero
	}
	total := disc.Subtotal.Add(shipping).Sub(disc.Total).Round(2)
	if total.IsNegative() {
		zctx.From(ctx).Warn("Order total negative, clamping to zero",
			zap.String("subtotal", disc.Subtotal.String()),
			zap.String("shipping", shipping.String()),
			zap.String("discount", disc.Total.String()),
		)
		total = decimal.Zero
	}

	now := s.now()
	o := &Order{
		ID:             uuid.New().String(),
		Status:         StatusPending,
		Items:          items,
		Subtotal:       disc.Subtotal.Round(2),
		ShippingPrice:  shipping.Round(2),
		Discount:       disc.Total,
		Total:          total,
		CouponDiscount: disc.CouponAmount(),
		CashDiscount:   disc.CashAmount(),
		PaymentMethod:  req.PaymentMethod,
		Notes:          req.Notes,
		User:           *refs.user,
		Address:        *refs.address,
		DeliveryArea:   *refs.area,
		DeliveryDate:   req.DeliveryDate,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if c := disc.AppliedCoupon(); c != nil {
		o.CouponID = c.ID
		o.CouponCode = c.Code
	}
	if day, ok := ParseDeliveryDay(req.DeliveryDate, now); ok {
		o.DeliveryDay = &day
	}
	return o, nil
}

func (s *Service) checkout(ctx context.Context, o *Order) (*payment.Checkout, error) {
	lines := make([]payment.Line, len(o.Items))
	for i, it := range o.Items {
		var picture string
		if len(it.Images) > 0 {
			picture = it.Images[0]
		}
		lines[i] = payment.Line{
			ID:          it.OptionID,
			Title:       it.ProductName + " - " + it.OptionName,
			Description: it.ProductDescription,
			PictureURL:  picture,
			Total:       it.Total,
			Quantity:    it.Quantity,
		}
	}
	items, err := payment.ProjectLineItems(lines, o.Discount)
	if err != nil {
		return nil, errors.Wrap(err, "project line items")
	}
	if o.ShippingPrice.IsPositive() {
		items = append(items, payment.LineItem{
			ID:        "shipping",
			Title:     "Shipping",
			Quantity:  1,
			UnitPrice: o.ShippingPrice,
		})
	}

	return s.payments.CreatePayment(ctx, payment.CheckoutRequest{
		ExternalReference: o.ID,
		Items:             items,
		Payer: payment.Payer{
			Name:    o.User.Name,
			Surname: o.User.Surname,
			Email:   o.User.Email,
			Phone:   o.User.Phone,
		},
		Callbacks: payment.CallbackURLs{
			Success:      withOrderID(s.callbacks.Success, o.ID),
			Pending:      withOrderID(s.callbacks.Pending, o.ID),
			Failure:      withOrderID(s.callbacks.Failure, o.ID),
			Notification: s.callbacks.Notification,
		},
	})
}

func withOrderID(u, id string) string {
	return strings.ReplaceAll(u, "{order_id}", id)
}

// UpdateStatus moves an order to status and applies the transition's side
// effects: entering Confirmed counts a sale per line; entering Canceled
// releases one coupon use, restores stock and rolls the sales back. The
// coupon's per-user flag is kept on cancellation.
func (s *Service) UpdateStatus(ctx context.Context, id string, status Status) (*Order, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}

	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Status == status {
		return nil, ErrStatusAlreadySet
	}
	if o.Status == StatusCanceled {
		return nil, errors.Wrapf(ErrInvalidTransition, "%s to %s", o.Status, status)
	}

	updated, err := s.orders.TransitionStatus(ctx, id, o.Status, status)
	if err != nil {
		return nil, errors.Wrap(err, "transition status")
	}
	s.afterTransition(ctx, updated, o.Status)
	return updated, nil
}

// afterTransition runs the side effects of a committed transition. Failures
// are logged with the order id for reconciliation; the transition stands.
func (s *Service) afterTransition(ctx context.Context, o *Order, from Status) {
	ctx = context.WithoutCancel(ctx)
	lg := zctx.From(ctx).With(
		zap.String("order_id", o.ID),
		zap.Stringer("from", from),
		zap.Stringer("to", o.Status),
	)

	var err error
	switch o.Status {
	case StatusConfirmed:
		for _, it := range o.Items {
			err = multierr.Append(err, s.catalog.AddSales(ctx, it.ProductID, 1))
		}
	case StatusCanceled:
		if o.CouponID != "" {
			_, cerr := s.coupons.DecrementUsage(ctx, o.CouponID)
			err = multierr.Append(err, cerr)
		}
		for _, it := range o.Items {
			_, serr := s.catalog.IncrementStock(ctx, it.OptionID, it.Quantity)
			err = multierr.Append(err, serr)
			err = multierr.Append(err, s.catalog.AddSales(ctx, it.ProductID, -1))
		}
	}
	if err != nil {
		lg.Error("Status side effects failed", zap.Error(err))
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, o.ID); err != nil {
			lg.Warn("Order cache invalidation failed", zap.Error(err))
		}
	}

	events := []Event{{Kind: EventStatusChanged, Order: *o, From: from}}
	if o.PaymentMethod.Category() == payment.CategoryBankTransfer && o.DeliveryArea.SameDayDelivery {
		events = append(events, Event{Kind: EventZoneLedgerStatus, Order: *o, From: from})
	}
	s.events.Dispatch(ctx, events...)

	s.statusChanges.Add(ctx, 1, metric.WithAttributes(attribute.String("status", o.Status.String())))
	lg.Info("Order status changed")
}

// HandlePaymentWebhook confirms the order of an approved payment. Redelivered
// notifications are acknowledged without repeating any side effect.
func (s *Service) HandlePaymentWebhook(ctx context.Context, n Notification) error {
	lg := zctx.From(ctx).With(zap.String("topic", n.Topic), zap.String("payment_id", n.PaymentID))
	if n.Topic != TopicPayment {
		lg.Debug("Ignoring webhook topic")
		return nil
	}
	if n.PaymentID == "" {
		return ErrInvalidNotification
	}

	st, err := s.payments.GetPaymentStatus(ctx, n.PaymentID)
	if err != nil {
		return errors.Wrap(err, "get payment status")
	}
	if !st.Approved() {
		lg.Info("Payment not approved", zap.String("status", st.Status))
		return nil
	}
	if st.ExternalReference == "" {
		return errors.Wrap(ErrInvalidNotification, "payment has no external reference")
	}

	key := "payment:" + n.PaymentID + ":" + st.Status
	claimed := false
	if s.deduper != nil {
		ok, err := s.deduper.Claim(ctx, key)
		switch {
		case err != nil:
			lg.Warn("Webhook dedup unavailable", zap.Error(err))
		case !ok:
			lg.Info("Duplicate webhook delivery")
			return nil
		default:
			claimed = true
		}
	}

	if err := s.confirmPayment(ctx, st.ExternalReference); err != nil {
		if claimed {
			if rerr := s.deduper.Release(context.WithoutCancel(ctx), key); rerr != nil {
				lg.Warn("Webhook dedup release failed", zap.Error(rerr))
			}
		}
		return err
	}
	return nil
}

func (s *Service) confirmPayment(ctx context.Context, orderID string) error {
	lg := zctx.From(ctx).With(zap.String("order_id", orderID))

	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return errors.Wrap(err, "get order")
	}
	if o.Status != StatusPending {
		lg.Info("Order already processed", zap.Stringer("status", o.Status))
		return nil
	}

	updated, err := s.orders.TransitionStatus(ctx, orderID, StatusPending, StatusConfirmed)
	if errors.Is(err, ErrStatusConflict) {
		lg.Info("Order confirmed concurrently")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "confirm order")
	}

	s.afterTransition(ctx, updated, StatusPending)
	s.events.Dispatch(ctx, Event{Kind: EventConfirmationEmail, Order: *updated})
	return nil
}
