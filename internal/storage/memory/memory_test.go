package memory

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
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/discount"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/order"
)

func TestCatalogRepository_DecrementStockConcurrent(t *testing.T) {
	ctx := context.Background()
	repo := NewCatalogRepository()
	repo.PutOption(catalog.Option{ID: "opt-1", ProductID: "prod-1", Price: decimal.NewFromInt(100), Stock: 10})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for range 25 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.DecrementStock(ctx, "opt-1", 1); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, success)
	o, err := repo.GetOption(ctx, "opt-1")
	require.NoError(t, err)
	assert.Equal(t, 0, o.Stock)
}

func TestCatalogRepository_DecrementStockInsufficient(t *testing.T) {
	ctx := context.Background()
	repo := NewCatalogRepository()
	repo.PutOption(catalog.Option{ID: "opt-1", Stock: 2})

	_, err := repo.DecrementStock(ctx, "opt-1", 3)
	var stockErr *catalog.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 2, stockErr.Available)
	assert.Equal(t, 3, stockErr.Requested)

	_, err = repo.DecrementStock(ctx, "missing", 1)
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestCatalogRepository_AddSalesFloorsAtZero(t *testing.T) {
	ctx := context.Background()
	repo := NewCatalogRepository()
	repo.PutProduct(catalog.Product{ID: "prod-1", SalesCount: 1})

	require.NoError(t, repo.AddSales(ctx, "prod-1", -1))
	require.NoError(t, repo.AddSales(ctx, "prod-1", -1))
	p, err := repo.GetProduct(ctx, "prod-1")
	require.NoError(t, err)
	assert.Equal(t, 0, p.SalesCount)
}

func TestCouponRepository_CodeIsCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	repo := NewCouponRepository()
	require.NoError(t, repo.Create(ctx, &coupon.Coupon{ID: "c1", Code: "Welcome", Limit: 1}))

	c, err := repo.FindByCode(ctx, "  welcome ")
	require.NoError(t, err)
	assert.Equal(t, "c1", c.ID)

	err = repo.Create(ctx, &coupon.Coupon{ID: "c2", Code: "WELCOME"})
	require.ErrorIs(t, err, coupon.ErrCodeTaken)
}

func TestCouponRepository_Usage(t *testing.T) {
	ctx := context.Background()
	repo := NewCouponRepository()
	require.NoError(t, repo.Create(ctx, &coupon.Coupon{ID: "c1", Code: "ONCE", Limit: 2}))

	c, err := repo.IncrementUsage(ctx, "c1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, c.Count)
	assert.True(t, c.UsedByUser("user-1"))

	_, err = repo.IncrementUsage(ctx, "c1", "user-1")
	require.ErrorIs(t, err, coupon.ErrAlreadyUsed)

	_, err = repo.IncrementUsage(ctx, "c1", "user-2")
	require.NoError(t, err)
	_, err = repo.IncrementUsage(ctx, "c1", "user-3")
	require.ErrorIs(t, err, coupon.ErrLimitReached)

	c, err = repo.DecrementUsage(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, c.Count)
	assert.True(t, c.UsedByUser("user-1"), "usage flag survives release")

	_, err = repo.DecrementUsage(ctx, "c1")
	require.NoError(t, err)
	c, err = repo.DecrementUsage(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, c.Count)
}

func TestCouponRepository_UpdateKeepsUsage(t *testing.T) {
	ctx := context.Background()
	repo := NewCouponRepository()
	require.NoError(t, repo.Create(ctx, &coupon.Coupon{ID: "c1", Code: "OLD", Limit: 5}))
	_, err := repo.IncrementUsage(ctx, "c1", "user-1")
	require.NoError(t, err)

	require.NoError(t, repo.Update(ctx, &coupon.Coupon{ID: "c1", Code: "NEW", Limit: 10}))

	_, err = repo.FindByCode(ctx, "OLD")
	require.ErrorIs(t, err, coupon.ErrNotFound)
	c, err := repo.FindByCode(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, 10, c.Limit)
	assert.Equal(t, 1, c.Count)
	assert.True(t, c.UsedByUser("user-1"))
}

func TestCouponRepository_ConcurrentIncrementRespectsLimit(t *testing.T) {
	ctx := context.Background()
	repo := NewCouponRepository()
	require.NoError(t, repo.Create(ctx, &coupon.Coupon{ID: "c1", Code: "FEW", Limit: 3}))

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		errs   []error
		usable int
	)
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.IncrementUsage(ctx, "c1", string(rune('a'+i)))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				usable++
				return
			}
			errs = append(errs, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, usable)
	for _, err := range errs {
		assert.True(t, errors.Is(err, coupon.ErrLimitReached))
	}
}

func TestDiscountRepository_ListActive(t *testing.T) {
	ctx := context.Background()
	repo := NewDiscountRepository()
	require.NoError(t, repo.Create(ctx, &discount.Rule{ID: "b", Active: true, OptionIDs: []string{"opt-1"}}))
	require.NoError(t, repo.Create(ctx, &discount.Rule{ID: "a", Active: false}))

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "b", active[0].ID)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].ID)

	require.NoError(t, repo.Delete(ctx, "a"))
	require.ErrorIs(t, repo.Delete(ctx, "a"), discount.ErrNotFound)
}

func TestOrderRepository_TransitionStatus(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository()
	require.NoError(t, repo.Create(ctx, &order.Order{ID: "o1", Status: order.StatusPending}))

	o, err := repo.TransitionStatus(ctx, "o1", order.StatusPending, order.StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, order.StatusConfirmed, o.Status)

	_, err = repo.TransitionStatus(ctx, "o1", order.StatusPending, order.StatusConfirmed)
	require.ErrorIs(t, err, order.ErrStatusConflict)

	_, err = repo.TransitionStatus(ctx, "missing", order.StatusPending, order.StatusConfirmed)
	require.ErrorIs(t, err, order.ErrNotFound)
}
