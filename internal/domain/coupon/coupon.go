package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Type enumerates the supported coupon discount strategies.
type Type string

const (
	// TypeFixed grants a fixed currency amount.
	TypeFixed Type = "FIXED"
	// TypePercentage grants a percentage of the applicable amount.
	TypePercentage Type = "PERCENTAGE"
)

// Valid reports whether t is a known coupon type.
func (t Type) Valid() bool {
	return t == TypeFixed || t == TypePercentage
}

// Reason is a machine-readable code explaining why a coupon was rejected.
type Reason string

const (
	ReasonNotFound       Reason = "COUPON_NOT_FOUND"
	ReasonLimitReached   Reason = "COUPON_LIMIT_REACHED"
	ReasonAlreadyUsed    Reason = "COUPON_ALREADY_USED"
	ReasonNotApplicable  Reason = "COUPON_NOT_APPLICABLE_TO_PRODUCT_OPTION"
	ReasonAlreadyExists  Reason = "COUPON_ALREADY_EXISTS"
	ReasonInvalidValue   Reason = "INVALID_COUPON_VALUE"
	ReasonInvalidLimit   Reason = "INVALID_COUPON_LIMIT"
	ReasonOptionNotFound Reason = "COUPON_OPTION_NOT_FOUND"
)

var (
	// ErrNotFound is returned when no coupon matches a code or id.
	ErrNotFound = errors.New("coupon not found")
	// ErrLimitReached is returned by IncrementUsage when count already equals limit.
	ErrLimitReached = errors.New("coupon usage limit reached")
	// ErrAlreadyUsed is returned by IncrementUsage when the user already redeemed the coupon.
	ErrAlreadyUsed = errors.New("coupon already used by user")
	// ErrCodeTaken is returned by Create and Update on a case-insensitive code clash.
	ErrCodeTaken = errors.New("coupon code already exists")
)

// ReasonError carries a rejection reason through error returns.
type ReasonError struct {
	Reason  Reason
	Message string
}

func (e *ReasonError) Error() string {
	if e.Message == "" {
		return string(e.Reason)
	}
	return string(e.Reason) + ": " + e.Message
}

// ReasonFor maps usage errors returned by Repository.IncrementUsage to reasons.
func ReasonFor(err error) (Reason, bool) {
	switch {
	case errors.Is(err, ErrLimitReached):
		return ReasonLimitReached, true
	case errors.Is(err, ErrAlreadyUsed):
		return ReasonAlreadyUsed, true
	case errors.Is(err, ErrNotFound):
		return ReasonNotFound, true
	default:
		var re *ReasonError
		if errors.As(err, &re) {
			return re.Reason, true
		}
		return "", false
	}
}

// Coupon is a user-redeemable discount code with a global usage limit and
// one use per user.
type Coupon struct {
	ID          string
	Code        string
	Description string
	Limit       int
	Count       int
	Type        Type
	Value       decimal.Decimal
	// OptionID restricts the coupon to a single option when set.
	OptionID string
	// MaxUnits caps the discounted units of the restricted option. Zero means no cap.
	MaxUnits  int
	UsedBy    map[string]bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UsedByUser reports whether userID has already redeemed the coupon.
func (c *Coupon) UsedByUser(userID string) bool {
	return c.UsedBy[userID]
}

// NormalizeCode returns the canonical form used for case-insensitive lookups.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Item is a priced cart line as seen by coupon evaluation.
type Item struct {
	OptionID string
	Price    decimal.Decimal
	Quantity int
}

// Result is the outcome of evaluating a coupon against a cart.
type Result struct {
	Valid    bool
	Discount decimal.Decimal
	Reason   Reason
	Coupon   *Coupon
}

// Repository is the coupon store.
type Repository interface {
	// FindByCode matches the code case-insensitively.
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	Get(ctx context.Context, id string) (*Coupon, error)
	Create(ctx context.Context, c *Coupon) error
	Update(ctx context.Context, c *Coupon) error
	// IncrementUsage increments the count and flags userID in one atomic
	// step, failing with ErrLimitReached or ErrAlreadyUsed.
	IncrementUsage(ctx context.Context, id, userID string) (*Coupon, error)
	// DecrementUsage lowers the count, flooring at zero. The user flag is kept.
	DecrementUsage(ctx context.Context, id string) (*Coupon, error)
}
