package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/coupon"
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository is an in-memory coupon store.
type CouponRepository struct {
	mu     sync.Mutex
	byID   map[string]*coupon.Coupon
	byCode map[string]string
	now    func() time.Time
}

// NewCouponRepository returns an empty CouponRepository.
func NewCouponRepository() *CouponRepository {
	return &CouponRepository{
		byID:   make(map[string]*coupon.Coupon),
		byCode: make(map[string]string),
		now:    time.Now,
	}
}

func cloneCoupon(c *coupon.Coupon) *coupon.Coupon {
	cp := *c
	cp.UsedBy = maps.Clone(c.UsedBy)
	if cp.UsedBy == nil {
		cp.UsedBy = map[string]bool{}
	}
	return &cp
}

func (r *CouponRepository) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byCode[coupon.NormalizeCode(code)]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	return cloneCoupon(r.byID[id]), nil
}

func (r *CouponRepository) Get(_ context.Context, id string) (*coupon.Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	return cloneCoupon(c), nil
}

func (r *CouponRepository) Create(_ context.Context, c *coupon.Coupon) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	code := coupon.NormalizeCode(c.Code)
	if _, taken := r.byCode[code]; taken {
		return coupon.ErrCodeTaken
	}
	now := r.now()
	c.CreatedAt, c.UpdatedAt = now, now
	r.byID[c.ID] = cloneCoupon(c)
	r.byCode[code] = c.ID
	return nil
}

func (r *CouponRepository) Update(_ context.Context, c *coupon.Coupon) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.byID[c.ID]
	if !ok {
		return coupon.ErrNotFound
	}
	code := coupon.NormalizeCode(c.Code)
	if owner, taken := r.byCode[code]; taken && owner != c.ID {
		return coupon.ErrCodeTaken
	}
	delete(r.byCode, coupon.NormalizeCode(cur.Code))

	next := cloneCoupon(c)
	next.Count = cur.Count
	next.UsedBy = maps.Clone(cur.UsedBy)
	next.CreatedAt = cur.CreatedAt
	next.UpdatedAt = r.now()
	r.byID[c.ID] = next
	r.byCode[code] = c.ID
	return nil
}

func (r *CouponRepository) IncrementUsage(_ context.Context, id, userID string) (*coupon.Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	if c.Count >= c.Limit {
		return nil, coupon.ErrLimitReached
	}
	if c.UsedBy[userID] {
		return nil, coupon.ErrAlreadyUsed
	}
	c.Count++
	if c.UsedBy == nil {
		c.UsedBy = map[string]bool{}
	}
	c.UsedBy[userID] = true
	c.UpdatedAt = r.now()
	return cloneCoupon(c), nil
}

func (r *CouponRepository) DecrementUsage(_ context.Context, id string) (*coupon.Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	c.Count = max(0, c.Count-1)
	c.UpdatedAt = r.now()
	return cloneCoupon(c), nil
}
