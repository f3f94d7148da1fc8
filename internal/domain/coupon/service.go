package coupon

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/catalog"
)

// Params holds the admin-editable coupon fields.
type Params struct {
	Code        string
	Description string
	Limit       int
	Type        Type
	Value       decimal.Decimal
	OptionID    string
	MaxUnits    int
}

// Service implements coupon administration.
type Service struct {
	repo    Repository
	options catalog.Reader
}

// NewService creates a coupon Service.
func NewService(repo Repository, options catalog.Reader) *Service {
	return &Service{repo: repo, options: options}
}

// Get returns coupon id with its usage state.
func (s *Service) Get(ctx context.Context, id string) (*Coupon, error) {
	return s.repo.Get(ctx, id)
}

// Create validates p and stores a new coupon with a zero usage count.
func (s *Service) Create(ctx context.Context, p Params) (*Coupon, error) {
	if err := s.validate(ctx, p, ""); err != nil {
		return nil, err
	}

	c := &Coupon{
		ID:          uuid.New().String(),
		Code:        NormalizeCode(p.Code),
		Description: p.Description,
		Limit:       p.Limit,
		Type:        p.Type,
		Value:       p.Value,
		OptionID:    p.OptionID,
		MaxUnits:    p.MaxUnits,
		UsedBy:      map[string]bool{},
	}
	if err := s.repo.Create(ctx, c); err != nil {
		if errors.Is(err, ErrCodeTaken) {
			return nil, &ReasonError{Reason: ReasonAlreadyExists, Message: c.Code}
		}
		return nil, errors.Wrap(err, "create coupon")
	}
	return c, nil
}

// Update replaces the editable fields of coupon id. Usage state is untouched.
func (s *Service) Update(ctx context.Context, id string, p Params) (*Coupon, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.validate(ctx, p, id); err != nil {
		return nil, err
	}

	c.Code = NormalizeCode(p.Code)
	c.Description = p.Description
	c.Limit = p.Limit
	c.Type = p.Type
	c.Value = p.Value
	c.OptionID = p.OptionID
	c.MaxUnits = p.MaxUnits
	if err := s.repo.Update(ctx, c); err != nil {
		if errors.Is(err, ErrCodeTaken) {
			return nil, &ReasonError{Reason: ReasonAlreadyExists, Message: c.Code}
		}
		return nil, errors.Wrap(err, "update coupon")
	}
	return c, nil
}

func (s *Service) validate(ctx context.Context, p Params, selfID string) error {
	code := NormalizeCode(p.Code)
	if code == "" {
		return &ReasonError{Reason: ReasonInvalidValue, Message: "code is required"}
	}
	if !p.Type.Valid() {
		return &ReasonError{Reason: ReasonInvalidValue, Message: "unknown coupon type " + string(p.Type)}
	}
	switch p.Type {
	case TypeFixed:
		if !p.Value.IsPositive() {
			return &ReasonError{Reason: ReasonInvalidValue, Message: "fixed value must be greater than 0"}
		}
	case TypePercentage:
		if !p.Value.IsPositive() || p.Value.GreaterThan(hundred) {
			return &ReasonError{Reason: ReasonInvalidValue, Message: "percentage must be in (0, 100]"}
		}
	}
	if p.Limit <= 0 {
		return &ReasonError{Reason: ReasonInvalidLimit, Message: "limit must be greater than 0"}
	}
	if p.MaxUnits < 0 {
		return &ReasonError{Reason: ReasonInvalidValue, Message: "max units must not be negative"}
	}

	existing, err := s.repo.FindByCode(ctx, code)
	switch {
	case err == nil:
		if existing.ID != selfID {
			return &ReasonError{Reason: ReasonAlreadyExists, Message: code}
		}
	case !errors.Is(err, ErrNotFound):
		return errors.Wrap(err, "lookup coupon")
	}

	if p.OptionID != "" {
		if _, err := s.options.GetOption(ctx, p.OptionID); err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				return &ReasonError{Reason: ReasonOptionNotFound, Message: p.OptionID}
			}
			return errors.Wrap(err, "lookup option")
		}
	}
	return nil
}
