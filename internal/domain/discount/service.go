package discount

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/catalog"
)

// Params holds the admin-editable rule fields.
type Params struct {
	Name             string
	Description      string
	OptionIDs        []string
	InitialQuantity  int
	InitialAmount    decimal.Decimal
	AdditionalAmount decimal.Decimal
	Active           bool
}

// Service implements discount rule administration. Order processing only
// reads rules through Lister.
type Service struct {
	repo    Repository
	options catalog.Reader
}

// NewService creates a discount Service.
func NewService(repo Repository, options catalog.Reader) *Service {
	return &Service{repo: repo, options: options}
}

// List returns all rules, active or not.
func (s *Service) List(ctx context.Context) ([]Rule, error) {
	return s.repo.List(ctx)
}

// Get returns rule id.
func (s *Service) Get(ctx context.Context, id string) (*Rule, error) {
	return s.repo.Get(ctx, id)
}

// Create validates p and stores a new rule.
func (s *Service) Create(ctx context.Context, p Params) (*Rule, error) {
	if err := s.validate(ctx, &p); err != nil {
		return nil, err
	}
	r := &Rule{
		ID:               uuid.New().String(),
		Name:             p.Name,
		Description:      p.Description,
		OptionIDs:        p.OptionIDs,
		InitialQuantity:  p.InitialQuantity,
		InitialAmount:    p.InitialAmount,
		AdditionalAmount: p.AdditionalAmount,
		Active:           p.Active,
	}
	if err := s.repo.Create(ctx, r); err != nil {
		return nil, errors.Wrap(err, "create discount rule")
	}
	return r, nil
}

// Update replaces the fields of rule id.
func (s *Service) Update(ctx context.Context, id string, p Params) (*Rule, error) {
	r, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.validate(ctx, &p); err != nil {
		return nil, err
	}
	r.Name = p.Name
	r.Description = p.Description
	r.OptionIDs = p.OptionIDs
	r.InitialQuantity = p.InitialQuantity
	r.InitialAmount = p.InitialAmount
	r.AdditionalAmount = p.AdditionalAmount
	r.Active = p.Active
	if err := s.repo.Update(ctx, r); err != nil {
		return nil, errors.Wrap(err, "update discount rule")
	}
	return r, nil
}

// Delete removes rule id.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) validate(ctx context.Context, p *Params) error {
	p.OptionIDs = dedupe(p.OptionIDs)
	if len(p.OptionIDs) == 0 {
		return ErrEmptyOptions
	}
	if p.InitialQuantity <= 0 {
		return ErrInvalidThreshold
	}
	if p.InitialAmount.IsNegative() || p.AdditionalAmount.IsNegative() {
		return ErrNegativeAmount
	}

	found, err := s.options.GetOptions(ctx, p.OptionIDs)
	if err != nil {
		return errors.Wrap(err, "lookup options")
	}
	known := make(map[string]struct{}, len(found))
	for _, o := range found {
		known[o.ID] = struct{}{}
	}
	var missing []string
	for _, id := range p.OptionIDs {
		if _, ok := known[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return &UnknownOptionsError{OptionIDs: missing}
	}
	return nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
