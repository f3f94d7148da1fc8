//go:build integration

package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/catalog"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/coupon"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/customer"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/discount"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/order"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/payment"
)

func setupPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("barfer"),
		tcpostgres.WithUsername("barfer"),
		tcpostgres.WithPassword("barfer"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, RunMigrations(dsn))
	// A second run is a no-op.
	require.NoError(t, RunMigrations(dsn))

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func seedCatalog(t *testing.T, repo *CatalogRepository) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, repo.UpsertProduct(ctx, catalog.Product{ID: "prod-1", Name: "Pollo", Images: []string{"a.png"}}))
	require.NoError(t, repo.UpsertOption(ctx, catalog.Option{
		ID: "opt-a", ProductID: "prod-1", Name: "5kg", Price: decimal.RequireFromString("1000.50"), Stock: 5,
	}))
}

func TestIntegration_Catalog(t *testing.T) {
	ctx := context.Background()
	repo := NewCatalogRepository(setupPool(t))
	seedCatalog(t, repo)

	o, err := repo.GetOption(ctx, "opt-a")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("1000.50").Equal(o.Price))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.DecrementStock(ctx, "opt-a", 1); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 5, success)

	_, err = repo.DecrementStock(ctx, "opt-a", 1)
	var stockErr *catalog.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 0, stockErr.Available)

	_, err = repo.DecrementStock(ctx, "missing", 1)
	require.ErrorIs(t, err, catalog.ErrNotFound)

	o, err = repo.IncrementStock(ctx, "opt-a", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, o.Stock)

	require.NoError(t, repo.AddSales(ctx, "prod-1", -1))
	require.NoError(t, repo.AddSales(ctx, "prod-1", 2))
	products, err := repo.GetProducts(ctx, []string{"prod-1"})
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, 2, products[0].SalesCount)
}

func TestIntegration_Coupons(t *testing.T) {
	ctx := context.Background()
	pool := setupPool(t)
	seedCatalog(t, NewCatalogRepository(pool))
	repo := NewCouponRepository(pool)

	c := &coupon.Coupon{
		ID:       "c1",
		Code:     "Welcome",
		Limit:    2,
		Type:     coupon.TypePercentage,
		Value:    decimal.NewFromInt(10),
		OptionID: "opt-a",
	}
	require.NoError(t, repo.Create(ctx, c))
	require.ErrorIs(t, repo.Create(ctx, &coupon.Coupon{
		ID: "c2", Code: "WELCOME", Limit: 1, Type: coupon.TypeFixed, Value: decimal.NewFromInt(1),
	}), coupon.ErrCodeTaken)

	found, err := repo.FindByCode(ctx, " welcome ")
	require.NoError(t, err)
	assert.Equal(t, "opt-a", found.OptionID)

	_, err = repo.IncrementUsage(ctx, "c1", "user-1")
	require.NoError(t, err)
	_, err = repo.IncrementUsage(ctx, "c1", "user-1")
	require.ErrorIs(t, err, coupon.ErrAlreadyUsed)
	_, err = repo.IncrementUsage(ctx, "c1", "user-2")
	require.NoError(t, err)
	_, err = repo.IncrementUsage(ctx, "c1", "user-3")
	require.ErrorIs(t, err, coupon.ErrLimitReached)

	found, err = repo.DecrementUsage(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, found.Count)
	assert.True(t, found.UsedByUser("user-1"))

	found.OptionID = ""
	found.Limit = 5
	require.NoError(t, repo.Update(ctx, found))
	found, err = repo.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, found.OptionID)
	assert.Equal(t, 1, found.Count)
}

func TestIntegration_Discounts(t *testing.T) {
	ctx := context.Background()
	repo := NewDiscountRepository(setupPool(t))

	rule := &discount.Rule{
		ID:               "d1",
		Name:             "Llevando 2",
		OptionIDs:        []string{"opt-a"},
		InitialQuantity:  2,
		InitialAmount:    decimal.NewFromInt(500),
		AdditionalAmount: decimal.NewFromInt(200),
		Active:           true,
	}
	require.NoError(t, repo.Create(ctx, rule))
	require.NoError(t, repo.Create(ctx, &discount.Rule{
		ID: "d2", Name: "off", OptionIDs: []string{"opt-b"}, InitialQuantity: 1,
		InitialAmount: decimal.Zero, AdditionalAmount: decimal.Zero,
	}))

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, []string{"opt-a"}, active[0].OptionIDs)

	rule.Active = false
	require.NoError(t, repo.Update(ctx, rule))
	active, err = repo.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	require.NoError(t, repo.Delete(ctx, "d1"))
	require.ErrorIs(t, repo.Delete(ctx, "d1"), discount.ErrNotFound)
}

func TestIntegration_Orders(t *testing.T) {
	ctx := context.Background()
	pool := setupPool(t)
	customers := NewCustomerRepository(pool)
	repo := NewOrderRepository(pool)

	area := customer.DeliveryArea{
		ID:              "area-1",
		Description:     "Centro",
		SameDayDelivery: true,
		SheetName:       "Centro",
		SameDayDays:     []time.Weekday{time.Monday, time.Thursday},
	}
	require.NoError(t, customers.UpsertUser(ctx, customer.User{ID: "user-1", Name: "Ana", Email: "ana@example.com"}))
	require.NoError(t, customers.UpsertAddress(ctx, customer.Address{ID: "addr-1", UserID: "user-1", Street: "Calle 1"}))
	require.NoError(t, customers.UpsertDeliveryArea(ctx, area))

	got, err := customers.GetDeliveryArea(ctx, "area-1")
	require.NoError(t, err)
	assert.Equal(t, area.SameDayDays, got.SameDayDays)
	_, err = customers.GetUser(ctx, "ghost")
	require.ErrorIs(t, err, customer.ErrUserNotFound)

	day := time.Date(2025, time.September, 18, 0, 0, 0, 0, time.UTC)
	now := time.Now().UTC().Truncate(time.Millisecond)
	o := &order.Order{
		ID:     "o1",
		Status: order.StatusPending,
		Items: []order.Item{{
			ProductID: "prod-1", OptionID: "opt-a", OptionName: "5kg",
			UnitPrice: decimal.NewFromInt(1000), Quantity: 3, Total: decimal.NewFromInt(3000),
			Discount: decimal.NewFromInt(700),
		}},
		Subtotal:       decimal.NewFromInt(3000),
		ShippingPrice:  decimal.Zero,
		Discount:       decimal.NewFromInt(930),
		Total:          decimal.NewFromInt(2070),
		CouponDiscount: decimal.Zero,
		CashDiscount:   decimal.NewFromInt(230),
		PaymentMethod:  payment.MethodCash,
		User:           customer.User{ID: "user-1", Name: "Ana"},
		Address:        customer.Address{ID: "addr-1", Street: "Calle 1"},
		DeliveryArea:   area,
		DeliveryDate:   "18/09",
		DeliveryDay:    &day,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, repo.Create(ctx, o))

	stored, err := repo.Get(ctx, "o1")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(2070).Equal(stored.Total))
	assert.Equal(t, payment.MethodCash, stored.PaymentMethod)
	require.Len(t, stored.Items, 1)
	assert.True(t, decimal.NewFromInt(700).Equal(stored.Items[0].Discount))
	assert.Equal(t, "Centro", stored.DeliveryArea.SheetName)
	require.NotNil(t, stored.DeliveryDay)
	assert.Equal(t, 18, stored.DeliveryDay.Day())

	updated, err := repo.TransitionStatus(ctx, "o1", order.StatusPending, order.StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, order.StatusConfirmed, updated.Status)

	_, err = repo.TransitionStatus(ctx, "o1", order.StatusPending, order.StatusConfirmed)
	require.ErrorIs(t, err, order.ErrStatusConflict)
	_, err = repo.TransitionStatus(ctx, "missing", order.StatusPending, order.StatusConfirmed)
	require.ErrorIs(t, err, order.ErrNotFound)
}
