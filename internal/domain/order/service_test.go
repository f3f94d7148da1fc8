package order_test

import (
	"context"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/catalog"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/coupon"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/customer"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/discount"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/order"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/payment"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/pricing"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/storage/memory"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

// --- Fakes ---

type fakeProvider struct {
	mu        sync.Mutex
	requests  []payment.CheckoutRequest
	createErr error
	status    *payment.Status
	statusErr error
}

func (f *fakeProvider) CreatePayment(_ context.Context, req payment.CheckoutRequest) (*payment.Checkout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.requests = append(f.requests, req)
	return &payment.Checkout{ID: "pref-1", InitPoint: "https://checkout.example/pref-1"}, nil
}

func (f *fakeProvider) GetPaymentStatus(context.Context, string) (*payment.Status, error) {
	return f.status, f.statusErr
}

type recordingSinks struct {
	mu       sync.Mutex
	emails   []string
	ledger   []string
	statuses []order.Status
	logged   int
	tracked  int
	changes  int
}

func (r *recordingSinks) SendOrderConfirmation(_ context.Context, o *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emails = append(r.emails, o.ID)
	return nil
}

func (r *recordingSinks) Append(_ context.Context, zone string, _ *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ledger = append(r.ledger, zone)
	return nil
}

func (r *recordingSinks) UpdateStatus(_ context.Context, _, _ string, status order.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
	return nil
}

func (r *recordingSinks) LogOrder(context.Context, *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logged++
	return nil
}

func (r *recordingSinks) TrackPurchase(context.Context, *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tracked++
	return nil
}

func (r *recordingSinks) LogStatusChange(context.Context, *order.Order, order.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes++
	return nil
}

type mapDeduper struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (m *mapDeduper) Claim(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys == nil {
		m.keys = map[string]bool{}
	}
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *mapDeduper) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

// failingUsage loses every coupon consumption race.
type failingUsage struct {
	*memory.CouponRepository
	err error
}

func (f *failingUsage) IncrementUsage(context.Context, string, string) (*coupon.Coupon, error) {
	return nil, f.err
}

// --- Fixture ---

type fixture struct {
	svc       *order.Service
	catalog   *memory.CatalogRepository
	coupons   *memory.CouponRepository
	orders    *memory.OrderRepository
	customers *memory.CustomerRepository
	provider  *fakeProvider
	sinks     *recordingSinks
	events    *order.Dispatcher
}

type option func(f *fixture, deps *order.Deps)

func newFixture(t *testing.T, opts ...option) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		catalog:   memory.NewCatalogRepository(),
		coupons:   memory.NewCouponRepository(),
		orders:    memory.NewOrderRepository(),
		customers: memory.NewCustomerRepository(),
		provider:  &fakeProvider{},
		sinks:     &recordingSinks{},
	}
	f.events = order.NewDispatcher(f.sinks, f.sinks, f.sinks)

	f.catalog.PutProduct(catalog.Product{ID: "prod-1", Name: "Pollo", Description: "Barf pollo", Images: []string{"pollo.png"}})
	f.catalog.PutProduct(catalog.Product{ID: "prod-2", Name: "Vaca", Description: "Barf vaca"})
	f.catalog.PutOption(catalog.Option{ID: "opt-a", ProductID: "prod-1", Name: "5kg", Price: d("1000"), Stock: 10})
	f.catalog.PutOption(catalog.Option{ID: "opt-b", ProductID: "prod-2", Name: "10kg", Price: d("2500"), Stock: 10})

	f.customers.PutUser(customer.User{ID: "user-1", Name: "Ana", Surname: "Paz", Email: "ana@example.com"})
	f.customers.PutUser(customer.User{ID: "user-2", Name: "Luz", Email: "luz@example.com"})
	f.customers.PutAddress(customer.Address{ID: "addr-1", Street: "Calle 1"})
	f.customers.PutDeliveryArea(customer.DeliveryArea{ID: "area-1", Description: "Centro"})
	f.customers.PutDeliveryArea(customer.DeliveryArea{
		ID:              "area-express",
		SameDayDelivery: true,
		SheetName:       "Express",
		WhatsappNumber:  "+5491100000000",
	})

	rules := memory.NewDiscountRepository()
	require.NoError(t, rules.Create(ctx, &discount.Rule{
		ID:               "tier-a",
		Name:             "Llevando 2",
		OptionIDs:        []string{"opt-a"},
		InitialQuantity:  2,
		InitialAmount:    d("500"),
		AdditionalAmount: d("200"),
		Active:           true,
	}))
	require.NoError(t, f.coupons.Create(ctx, &coupon.Coupon{
		ID:    "c-welcome",
		Code:  "WELCOME",
		Limit: 10,
		Type:  coupon.TypeFixed,
		Value: d("1000"),
	}))

	deps := order.Deps{
		Customers: f.customers,
		Catalog:   f.catalog,
		Coupons:   f.coupons,
		Pricer:    pricing.NewCalculator(f.catalog, rules, coupon.NewRepoValidator(f.coupons)),
		Orders:    f.orders,
		Payments:  f.provider,
		Events:    f.events,
		Callbacks: payment.CallbackURLs{
			Success:      "https://barfer.example/orders/{order_id}/success",
			Pending:      "https://barfer.example/orders/{order_id}/pending",
			Failure:      "https://barfer.example/orders/{order_id}/failure",
			Notification: "https://api.barfer.example/webhooks/mercadopago",
		},
	}
	for _, o := range opts {
		o(f, &deps)
	}
	svc, err := order.NewService(deps)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) stock(t *testing.T, optionID string) int {
	t.Helper()
	o, err := f.catalog.GetOption(context.Background(), optionID)
	require.NoError(t, err)
	return o.Stock
}

func (f *fixture) sales(t *testing.T, productID string) int {
	t.Helper()
	p, err := f.catalog.GetProduct(context.Background(), productID)
	require.NoError(t, err)
	return p.SalesCount
}

func request(method payment.Method, lines ...pricing.Line) order.PlaceOrderRequest {
	return order.PlaceOrderRequest{
		UserID:         "user-1",
		AddressID:      "addr-1",
		DeliveryAreaID: "area-1",
		Lines:          lines,
		PaymentMethod:  method,
		DeliveryDate:   "18/09 de 13.30hs a 17hs",
	}
}

// --- Tests ---

func TestCreateOrder_CashWithTierDiscount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.svc.CreateOrder(ctx, request(payment.MethodCash, pricing.Line{OptionID: "opt-a", Quantity: 3}))
	require.NoError(t, err)
	f.events.Wait()

	o := res.Order
	assert.Equal(t, order.StatusPending, o.Status)
	assert.True(t, d("3000").Equal(o.Subtotal))
	assert.True(t, d("930").Equal(o.Discount))
	assert.True(t, d("230").Equal(o.CashDiscount))
	assert.True(t, d("2070").Equal(o.Total))
	require.Len(t, o.Items, 1)
	assert.Equal(t, "Pollo", o.Items[0].ProductName)
	assert.True(t, d("700").Equal(o.Items[0].Discount))
	require.NotNil(t, o.DeliveryDay)
	assert.Equal(t, 18, o.DeliveryDay.Day())
	assert.Nil(t, res.Checkout)

	assert.Equal(t, 7, f.stock(t, "opt-a"))
	assert.Equal(t, []string{o.ID}, f.sinks.emails)
	assert.Equal(t, 1, f.sinks.logged)
	assert.Equal(t, 1, f.sinks.tracked)

	stored, err := f.svc.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, d("2070").Equal(stored.Total))
}

func TestCreateOrder_FixedCouponCard(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	req := request(payment.MethodCreditCard, pricing.Line{OptionID: "opt-b", Quantity: 2})
	req.CouponCode = "welcome"
	req.ShippingPrice = d("300")
	res, err := f.svc.CreateOrder(ctx, req)
	require.NoError(t, err)
	f.events.Wait()

	o := res.Order
	assert.True(t, d("1000").Equal(o.CouponDiscount))
	assert.True(t, o.CashDiscount.IsZero())
	assert.True(t, d("1000").Equal(o.Discount))
	assert.True(t, d("4300").Equal(o.Total))
	assert.Equal(t, "c-welcome", o.CouponID)

	require.NotNil(t, res.Checkout)
	require.Len(t, f.provider.requests, 1)
	cr := f.provider.requests[0]
	assert.Equal(t, o.ID, cr.ExternalReference)
	assert.Equal(t, "https://barfer.example/orders/"+o.ID+"/success", cr.Callbacks.Success)
	require.Len(t, cr.Items, 2)
	assert.Equal(t, "shipping", cr.Items[1].ID)
	assert.True(t, o.Total.Equal(payment.Total(cr.Items)))

	c, err := f.coupons.Get(ctx, "c-welcome")
	require.NoError(t, err)
	assert.Equal(t, 1, c.Count)
	assert.True(t, c.UsedByUser("user-1"))
	assert.Empty(t, f.sinks.emails)
}

func TestValidateCoupon_AlreadyUsed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	lines := []pricing.Line{{OptionID: "opt-b", Quantity: 2}}

	res, err := f.svc.ValidateCoupon(ctx, "WELCOME", "user-1", lines)
	require.NoError(t, err)
	assert.True(t, res.Valid)

	req := request(payment.MethodCash, lines...)
	req.CouponCode = "WELCOME"
	_, err = f.svc.CreateOrder(ctx, req)
	require.NoError(t, err)

	res, err = f.svc.ValidateCoupon(ctx, "WELCOME", "user-1", lines)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, coupon.ReasonAlreadyUsed, res.Reason)

	// A reused coupon is dropped and the order proceeds without it.
	res2, err := f.svc.CreateOrder(ctx, req)
	require.NoError(t, err)
	assert.Empty(t, res2.Order.CouponID)
	assert.True(t, res2.Order.CouponDiscount.IsZero())
}

func TestCreateOrder_ConcurrentOversell(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.CreateOrder(ctx, request(payment.MethodCash, pricing.Line{OptionID: "opt-b", Quantity: 10}))
		}()
	}
	wg.Wait()
	f.events.Wait()

	var ok, short int
	for _, err := range errs {
		var stockErr *catalog.InsufficientStockError
		switch {
		case err == nil:
			ok++
		case errors.As(err, &stockErr):
			short++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, short)
	assert.Equal(t, 0, f.stock(t, "opt-b"))
}

func TestCreateOrder_RestoresStockOnFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.CreateOrder(ctx, request(payment.MethodCash,
		pricing.Line{OptionID: "opt-a", Quantity: 4},
		pricing.Line{OptionID: "opt-b", Quantity: 11},
	))
	var stockErr *catalog.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "opt-b", stockErr.OptionID)
	assert.Equal(t, 10, f.stock(t, "opt-a"))
	assert.Equal(t, 10, f.stock(t, "opt-b"))
}

func TestCreateOrder_Validation(t *testing.T) {
	for _, tt := range []struct {
		name  string
		req   func() order.PlaceOrderRequest
		check func(t *testing.T, err error)
	}{
		{
			name: "EmptyCart",
			req:  func() order.PlaceOrderRequest { return request(payment.MethodCash) },
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, pricing.ErrEmptyCart)
			},
		},
		{
			name: "UnknownMethod",
			req: func() order.PlaceOrderRequest {
				return request(payment.Method(99), pricing.Line{OptionID: "opt-a", Quantity: 1})
			},
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, payment.ErrUnknownMethod)
			},
		},
		{
			name: "UnknownUser",
			req: func() order.PlaceOrderRequest {
				r := request(payment.MethodCash, pricing.Line{OptionID: "opt-a", Quantity: 1})
				r.UserID = "ghost"
				return r
			},
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, customer.ErrUserNotFound)
			},
		},
		{
			name: "UnknownOption",
			req: func() order.PlaceOrderRequest {
				return request(payment.MethodCash, pricing.Line{OptionID: "opt-x", Quantity: 1})
			},
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, catalog.ErrNotFound)
			},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.CreateOrder(context.Background(), tt.req())
			tt.check(t, err)
			assert.Equal(t, 10, f.stock(t, "opt-a"))
		})
	}
}

func TestCreateOrder_ProviderFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.provider.createErr = errors.Wrap(payment.ErrProvider, "status 502")

	_, err := f.svc.CreateOrder(ctx, request(payment.MethodMercadoPago, pricing.Line{OptionID: "opt-a", Quantity: 1}))
	f.events.Wait()
	require.ErrorIs(t, err, payment.ErrProvider)
	assert.Equal(t, 1, f.sinks.logged)
}

func TestCreateOrder_CouponRaceCancelsOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(f *fixture, deps *order.Deps) {
		deps.Coupons = &failingUsage{CouponRepository: f.coupons, err: coupon.ErrLimitReached}
	})

	req := request(payment.MethodCash, pricing.Line{OptionID: "opt-a", Quantity: 2})
	req.CouponCode = "WELCOME"
	_, err := f.svc.CreateOrder(ctx, req)

	var reasonErr *coupon.ReasonError
	require.ErrorAs(t, err, &reasonErr)
	assert.Equal(t, coupon.ReasonLimitReached, reasonErr.Reason)
	assert.Equal(t, 10, f.stock(t, "opt-a"))
}

func TestCreateOrder_BankTransferSameDay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	req := request(payment.MethodBankTransfer, pricing.Line{OptionID: "opt-a", Quantity: 1})
	req.DeliveryAreaID = "area-express"
	res, err := f.svc.CreateOrder(ctx, req)
	require.NoError(t, err)
	f.events.Wait()

	require.NotNil(t, res.Redirect)
	assert.Equal(t, "+5491100000000", res.Redirect.Contact)
	assert.Equal(t, []string{"Express"}, f.sinks.ledger)
	assert.Nil(t, res.Checkout)
}

func TestCreateOrder_ClampsTotal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.coupons.Create(ctx, &coupon.Coupon{
		ID:    "c-big",
		Code:  "BIG",
		Limit: 1,
		Type:  coupon.TypeFixed,
		Value: d("1500"),
	}))

	req := request(payment.MethodOther, pricing.Line{OptionID: "opt-a", Quantity: 1})
	req.CouponCode = "BIG"
	req.ShippingPrice = d("-50")
	res, err := f.svc.CreateOrder(ctx, req)
	require.NoError(t, err)

	assert.True(t, res.Order.Total.IsZero())
	assert.True(t, res.Order.ShippingPrice.IsZero())
	assert.True(t, d("1500").Equal(res.Order.Discount))
}

func TestUpdateStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	req := request(payment.MethodCash,
		pricing.Line{OptionID: "opt-a", Quantity: 2},
		pricing.Line{OptionID: "opt-b", Quantity: 1},
	)
	req.CouponCode = "WELCOME"
	res, err := f.svc.CreateOrder(ctx, req)
	require.NoError(t, err)
	id := res.Order.ID

	_, err = f.svc.UpdateStatus(ctx, id, order.StatusPending)
	require.ErrorIs(t, err, order.ErrStatusAlreadySet)
	_, err = f.svc.UpdateStatus(ctx, id, order.Status(42))
	require.ErrorIs(t, err, order.ErrInvalidStatus)
	_, err = f.svc.UpdateStatus(ctx, "missing", order.StatusConfirmed)
	require.ErrorIs(t, err, order.ErrNotFound)

	o, err := f.svc.UpdateStatus(ctx, id, order.StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, order.StatusConfirmed, o.Status)
	assert.Equal(t, 1, f.sales(t, "prod-1"))
	assert.Equal(t, 1, f.sales(t, "prod-2"))

	o, err = f.svc.UpdateStatus(ctx, id, order.StatusCanceled)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCanceled, o.Status)
	assert.Equal(t, 0, f.sales(t, "prod-1"))
	assert.Equal(t, 10, f.stock(t, "opt-a"))
	assert.Equal(t, 10, f.stock(t, "opt-b"))

	c, err := f.coupons.Get(ctx, "c-welcome")
	require.NoError(t, err)
	assert.Equal(t, 0, c.Count)
	assert.True(t, c.UsedByUser("user-1"))

	_, err = f.svc.UpdateStatus(ctx, id, order.StatusConfirmed)
	require.ErrorIs(t, err, order.ErrInvalidTransition)

	f.events.Wait()
	assert.Equal(t, 2, f.sinks.changes)
}

func TestHandlePaymentWebhook(t *testing.T) {
	ctx := context.Background()
	deduper := &mapDeduper{}
	f := newFixture(t, func(_ *fixture, deps *order.Deps) { deps.Deduper = deduper })

	res, err := f.svc.CreateOrder(ctx, request(payment.MethodMercadoPago, pricing.Line{OptionID: "opt-a", Quantity: 1}))
	require.NoError(t, err)
	id := res.Order.ID

	f.provider.status = &payment.Status{PaymentID: "pay-1", Status: "pending", ExternalReference: id}
	require.NoError(t, f.svc.HandlePaymentWebhook(ctx, order.Notification{Topic: order.TopicPayment, PaymentID: "pay-1"}))
	o, err := f.svc.GetOrder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, o.Status)

	f.provider.status = &payment.Status{PaymentID: "pay-1", Status: payment.StatusApproved, ExternalReference: id}
	for range 3 {
		require.NoError(t, f.svc.HandlePaymentWebhook(ctx, order.Notification{Topic: order.TopicPayment, PaymentID: "pay-1"}))
	}
	f.events.Wait()

	o, err = f.svc.GetOrder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, order.StatusConfirmed, o.Status)
	assert.Equal(t, 1, f.sales(t, "prod-1"))
	assert.Equal(t, []string{id}, f.sinks.emails)

	require.NoError(t, f.svc.HandlePaymentWebhook(ctx, order.Notification{Topic: "merchant_order", PaymentID: "x"}))
	require.ErrorIs(t, f.svc.HandlePaymentWebhook(ctx, order.Notification{Topic: order.TopicPayment}), order.ErrInvalidNotification)
}

func TestHandlePaymentWebhook_ReleasesClaimOnFailure(t *testing.T) {
	ctx := context.Background()
	deduper := &mapDeduper{}
	f := newFixture(t, func(_ *fixture, deps *order.Deps) { deps.Deduper = deduper })
	f.provider.status = &payment.Status{PaymentID: "pay-9", Status: payment.StatusApproved, ExternalReference: "missing"}

	err := f.svc.HandlePaymentWebhook(ctx, order.Notification{Topic: order.TopicPayment, PaymentID: "pay-9"})
	require.ErrorIs(t, err, order.ErrNotFound)
	assert.Empty(t, deduper.keys)
}

type mapCache struct {
	mu      sync.Mutex
	orders  map[string]order.Order
	hits    int
	deletes int
}

func (m *mapCache) Get(_ context.Context, id string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrCacheMiss
	}
	m.hits++
	return &o, nil
}

func (m *mapCache) Set(_ context.Context, o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.orders == nil {
		m.orders = map[string]order.Order{}
	}
	m.orders[o.ID] = *o
	return nil
}

func (m *mapCache) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.orders, id)
	m.deletes++
	return nil
}

func TestGetOrder_ReadThroughCache(t *testing.T) {
	ctx := context.Background()
	cache := &mapCache{}
	f := newFixture(t, func(_ *fixture, deps *order.Deps) { deps.Cache = cache })

	res, err := f.svc.CreateOrder(ctx, request(payment.MethodCash, pricing.Line{OptionID: "opt-a", Quantity: 1}))
	require.NoError(t, err)
	id := res.Order.ID

	_, err = f.svc.GetOrder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, cache.hits, "first read fills the cache")

	o, err := f.svc.GetOrder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)
	assert.Equal(t, order.StatusPending, o.Status)

	_, err = f.svc.UpdateStatus(ctx, id, order.StatusShipped)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.deletes, "status change invalidates")

	o, err = f.svc.GetOrder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, order.StatusShipped, o.Status)

	_, err = f.svc.GetOrder(ctx, "missing")
	require.ErrorIs(t, err, order.ErrNotFound)
	f.events.Wait()
}
