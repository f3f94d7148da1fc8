package coupon

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Validator resolves a coupon code for a user and cart into a Result.
// Rejections are reported through Result.Reason, not errors; errors are
// reserved for store failures.
type Validator interface {
	Validate(ctx context.Context, code, userID string, items []Item) (*Result, error)
}

var _ Validator = (*RepoValidator)(nil)

// RepoValidator implements Validator on top of a Repository.
type RepoValidator struct {
	repo Repository
}

// NewRepoValidator creates a RepoValidator backed by the given Repository.
func NewRepoValidator(repo Repository) *RepoValidator {
	return &RepoValidator{repo: repo}
}

// Validate looks up the coupon and evaluates it. It never mutates usage.
func (v *RepoValidator) Validate(ctx context.Context, code, userID string, items []Item) (*Result, error) {
	c, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return &Result{Reason: ReasonNotFound, Discount: decimal.Zero}, nil
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	res := Evaluate(c, userID, items)
	return &res, nil
}
