package coupon

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/catalog"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

type mockCouponRepo struct {
	byCode  map[string]*Coupon
	findErr error
	created []*Coupon
	updated []*Coupon
}

func newMockRepo(coupons ...*Coupon) *mockCouponRepo {
	m := &mockCouponRepo{byCode: map[string]*Coupon{}}
	for _, c := range coupons {
		m.byCode[NormalizeCode(c.Code)] = c
	}
	return m
}

func (m *mockCouponRepo) FindByCode(_ context.Context, code string) (*Coupon, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	c, ok := m.byCode[NormalizeCode(code)]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func (m *mockCouponRepo) Get(_ context.Context, id string) (*Coupon, error) {
	for _, c := range m.byCode {
		if c.ID == id {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockCouponRepo) Create(_ context.Context, c *Coupon) error {
	m.created = append(m.created, c)
	return nil
}

func (m *mockCouponRepo) Update(_ context.Context, c *Coupon) error {
	m.updated = append(m.updated, c)
	return nil
}

func (m *mockCouponRepo) IncrementUsage(context.Context, string, string) (*Coupon, error) {
	return nil, errors.New("not implemented")
}

func (m *mockCouponRepo) DecrementUsage(context.Context, string) (*Coupon, error) {
	return nil, errors.New("not implemented")
}

type mockOptions struct {
	options map[string]catalog.Option
}

func (m *mockOptions) GetOption(_ context.Context, id string) (*catalog.Option, error) {
	o, ok := m.options[id]
	if !ok {
		return nil, &catalog.OptionNotFoundError{OptionID: id}
	}
	return &o, nil
}

func (m *mockOptions) GetOptions(context.Context, []string) ([]catalog.Option, error) {
	return nil, nil
}

func (m *mockOptions) GetProducts(context.Context, []string) ([]catalog.Product, error) {
	return nil, nil
}

func TestEvaluate(t *testing.T) {
	cart := []Item{
		{OptionID: "opt-a", Price: d("1000"), Quantity: 3},
		{OptionID: "opt-b", Price: d("500"), Quantity: 2},
	}

	tests := []struct {
		name       string
		coupon     Coupon
		userID     string
		items      []Item
		wantValid  bool
		wantReason Reason
		wantAmount decimal.Decimal
	}{
		{
			name:       "fixed unrestricted applies once",
			coupon:     Coupon{Limit: 10, Type: TypeFixed, Value: d("1000")},
			items:      cart,
			wantValid:  true,
			wantAmount: d("1000"),
		},
		{
			name:       "percentage unrestricted uses full subtotal",
			coupon:     Coupon{Limit: 10, Type: TypePercentage, Value: d("10")},
			items:      cart,
			wantValid:  true,
			wantAmount: d("400"),
		},
		{
			name:       "fixed restricted multiplies by matching units",
			coupon:     Coupon{Limit: 10, Type: TypeFixed, Value: d("100"), OptionID: "opt-a"},
			items:      cart,
			wantValid:  true,
			wantAmount: d("300"),
		},
		{
			name:       "fixed restricted capped by max units",
			coupon:     Coupon{Limit: 10, Type: TypeFixed, Value: d("100"), OptionID: "opt-a", MaxUnits: 1},
			items:      cart,
			wantValid:  true,
			wantAmount: d("100"),
		},
		{
			name:       "percentage restricted uses option price",
			coupon:     Coupon{Limit: 10, Type: TypePercentage, Value: d("15"), OptionID: "opt-b", MaxUnits: 5},
			items:      cart,
			wantValid:  true,
			wantAmount: d("150"),
		},
		{
			name:       "percentage rounds to cents",
			coupon:     Coupon{Limit: 10, Type: TypePercentage, Value: d("33.333")},
			items:      []Item{{OptionID: "opt-a", Price: d("10"), Quantity: 1}},
			wantValid:  true,
			wantAmount: d("3.33"),
		},
		{
			name:       "limit reached regardless of cart",
			coupon:     Coupon{Limit: 5, Count: 5, Type: TypeFixed, Value: d("100")},
			items:      cart,
			wantReason: ReasonLimitReached,
		},
		{
			name: "limit checked before user usage",
			coupon: Coupon{
				Limit: 1, Count: 1, Type: TypeFixed, Value: d("100"),
				UsedBy: map[string]bool{"user-1": true},
			},
			userID:     "user-1",
			items:      cart,
			wantReason: ReasonLimitReached,
		},
		{
			name: "already used by same user",
			coupon: Coupon{
				Limit: 10, Count: 1, Type: TypeFixed, Value: d("100"),
				UsedBy: map[string]bool{"user-1": true},
			},
			userID:     "user-1",
			items:      cart,
			wantReason: ReasonAlreadyUsed,
		},
		{
			name: "still valid for a different user",
			coupon: Coupon{
				Limit: 10, Count: 1, Type: TypeFixed, Value: d("100"),
				UsedBy: map[string]bool{"user-1": true},
			},
			userID:     "user-2",
			items:      cart,
			wantValid:  true,
			wantAmount: d("100"),
		},
		{
			name:       "restricted option absent from cart",
			coupon:     Coupon{Limit: 10, Type: TypeFixed, Value: d("100"), OptionID: "opt-z"},
			items:      cart,
			wantReason: ReasonNotApplicable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.coupon
			res := Evaluate(&c, tt.userID, tt.items)

			assert.Equal(t, tt.wantValid, res.Valid)
			assert.Equal(t, tt.wantReason, res.Reason)
			if tt.wantValid {
				assert.True(t, tt.wantAmount.Equal(res.Discount),
					"discount: want %s, got %s", tt.wantAmount, res.Discount)
			} else {
				assert.True(t, res.Discount.IsZero())
			}
		})
	}
}

func TestRepoValidator_Validate(t *testing.T) {
	items := []Item{{OptionID: "opt-a", Price: d("5000"), Quantity: 1}}

	t.Run("case insensitive code", func(t *testing.T) {
		v := NewRepoValidator(newMockRepo(&Coupon{
			ID: "c1", Code: "WELCOME", Limit: 3, Type: TypeFixed, Value: d("1000"),
		}))

		res, err := v.Validate(context.Background(), "welcome", "user-1", items)
		require.NoError(t, err)
		assert.True(t, res.Valid)
		assert.True(t, d("1000").Equal(res.Discount))
		assert.Equal(t, "c1", res.Coupon.ID)
	})

	t.Run("unknown code is an invalid result", func(t *testing.T) {
		v := NewRepoValidator(newMockRepo())

		res, err := v.Validate(context.Background(), "NOPE", "user-1", items)
		require.NoError(t, err)
		assert.False(t, res.Valid)
		assert.Equal(t, ReasonNotFound, res.Reason)
	})

	t.Run("store failure propagates", func(t *testing.T) {
		repo := newMockRepo()
		repo.findErr = errors.New("connection refused")
		v := NewRepoValidator(repo)

		_, err := v.Validate(context.Background(), "ANY", "user-1", items)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection refused")
	})
}

func TestReasonFor(t *testing.T) {
	r, ok := ReasonFor(errors.Wrap(ErrAlreadyUsed, "increment"))
	require.True(t, ok)
	assert.Equal(t, ReasonAlreadyUsed, r)

	r, ok = ReasonFor(ErrLimitReached)
	require.True(t, ok)
	assert.Equal(t, ReasonLimitReached, r)

	_, ok = ReasonFor(errors.New("boom"))
	assert.False(t, ok)
}
