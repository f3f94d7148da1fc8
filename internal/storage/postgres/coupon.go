package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/coupon"
)

const (
	couponColumns = `c.id, c.code, c.description, c.usage_limit, c.usage_count, c.type, c.value,
		COALESCE(c.option_id, ''), c.max_units, c.created_at, c.updated_at,
		ARRAY(SELECT u.user_id FROM coupon_usages u WHERE u.coupon_id = c.id)`

	getCouponByCodeSQL = `SELECT ` + couponColumns + ` FROM coupons c WHERE UPPER(c.code) = UPPER(TRIM($1))`
	getCouponSQL       = `SELECT ` + couponColumns + ` FROM coupons c WHERE c.id = $1`

	createCouponSQL = `INSERT INTO coupons (id, code, description, usage_limit, type, value, option_id, max_units)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)
		RETURNING created_at, updated_at`

	updateCouponSQL = `UPDATE coupons SET code = $2, description = $3, usage_limit = $4, type = $5,
		value = $6, option_id = NULLIF($7, ''), max_units = $8, updated_at = now()
		WHERE id = $1`

	lockCouponSQL     = `SELECT usage_limit, usage_count FROM coupons WHERE id = $1 FOR UPDATE`
	insertUsageSQL    = `INSERT INTO coupon_usages (coupon_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	incrementUsageSQL = `UPDATE coupons SET usage_count = usage_count + 1, updated_at = now() WHERE id = $1`
	decrementUsageSQL = `UPDATE coupons SET usage_count = GREATEST(usage_count - 1, 0), updated_at = now() WHERE id = $1`

	uniqueViolation = "23505"
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
// Per-user redemptions live in coupon_usages.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its code (case-insensitive).
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	return r.queryOne(ctx, getCouponByCodeSQL, code)
}

// Get looks up a coupon by id.
func (r *CouponRepository) Get(ctx context.Context, id string) (*coupon.Coupon, error) {
	return r.queryOne(ctx, getCouponSQL, id)
}

func (r *CouponRepository) queryOne(ctx context.Context, sql, arg string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("finding coupon %q: %w", arg, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon %q: %w", arg, err)
	}
	return &c, nil
}

// Create inserts a coupon. A code clash, case-insensitively, yields
// coupon.ErrCodeTaken.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	err := r.pool.QueryRow(ctx, createCouponSQL,
		c.ID, c.Code, c.Description, c.Limit, string(c.Type), c.Value, c.OptionID, c.MaxUnits,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return coupon.ErrCodeTaken
		}
		return fmt.Errorf("creating coupon %q: %w", c.Code, err)
	}
	return nil
}

// Update replaces the editable fields of a coupon. Usage counters are kept.
func (r *CouponRepository) Update(ctx context.Context, c *coupon.Coupon) error {
	tag, err := r.pool.Exec(ctx, updateCouponSQL,
		c.ID, c.Code, c.Description, c.Limit, string(c.Type), c.Value, c.OptionID, c.MaxUnits,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return coupon.ErrCodeTaken
		}
		return fmt.Errorf("updating coupon %q: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// IncrementUsage consumes one use on behalf of userID. The coupon row is
// locked for the duration of the check so the limit holds under concurrency.
func (r *CouponRepository) IncrementUsage(ctx context.Context, id, userID string) (*coupon.Coupon, error) {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var limit, count int
		if err := tx.QueryRow(ctx, lockCouponSQL, id).Scan(&limit, &count); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return coupon.ErrNotFound
			}
			return fmt.Errorf("locking coupon %q: %w", id, err)
		}
		if count >= limit {
			return coupon.ErrLimitReached
		}

		tag, err := tx.Exec(ctx, insertUsageSQL, id, userID)
		if err != nil {
			return fmt.Errorf("recording usage of coupon %q: %w", id, err)
		}
		if tag.RowsAffected() == 0 {
			return coupon.ErrAlreadyUsed
		}

		if _, err := tx.Exec(ctx, incrementUsageSQL, id); err != nil {
			return fmt.Errorf("incrementing usage of coupon %q: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

// DecrementUsage releases one use. The per-user redemption is kept.
func (r *CouponRepository) DecrementUsage(ctx context.Context, id string) (*coupon.Coupon, error) {
	tag, err := r.pool.Exec(ctx, decrementUsageSQL, id)
	if err != nil {
		return nil, fmt.Errorf("decrementing usage of coupon %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, coupon.ErrNotFound
	}
	return r.Get(ctx, id)
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c      coupon.Coupon
		typ    string
		usedBy []string
	)
	err := row.Scan(
		&c.ID, &c.Code, &c.Description, &c.Limit, &c.Count, &typ, &c.Value,
		&c.OptionID, &c.MaxUnits, &c.CreatedAt, &c.UpdatedAt, &usedBy,
	)
	c.Type = coupon.Type(typ)
	c.UsedBy = make(map[string]bool, len(usedBy))
	for _, u := range usedBy {
		c.UsedBy[u] = true
	}
	return c, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
