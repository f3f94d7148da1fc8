package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/discount"
)

var _ discount.Repository = (*DiscountRepository)(nil)

// DiscountRepository is an in-memory discount rule store.
type DiscountRepository struct {
	mu    sync.Mutex
	rules map[string]discount.Rule
}

// NewDiscountRepository returns an empty DiscountRepository.
func NewDiscountRepository() *DiscountRepository {
	return &DiscountRepository{rules: make(map[string]discount.Rule)}
}

func (r *DiscountRepository) list(activeOnly bool) []discount.Rule {
	out := make([]discount.Rule, 0, len(r.rules))
	for _, rule := range r.rules {
		if activeOnly && !rule.Active {
			continue
		}
		rule.OptionIDs = slices.Clone(rule.OptionIDs)
		out = append(out, rule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *DiscountRepository) ListActive(context.Context) ([]discount.Rule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.list(true), nil
}

func (r *DiscountRepository) List(context.Context) ([]discount.Rule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.list(false), nil
}

func (r *DiscountRepository) Get(_ context.Context, id string) (*discount.Rule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rule, ok := r.rules[id]
	if !ok {
		return nil, discount.ErrNotFound
	}
	rule.OptionIDs = slices.Clone(rule.OptionIDs)
	return &rule, nil
}

func (r *DiscountRepository) Create(_ context.Context, rule *discount.Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	rule.CreatedAt, rule.UpdatedAt = now, now
	stored := *rule
	stored.OptionIDs = slices.Clone(rule.OptionIDs)
	r.rules[rule.ID] = stored
	return nil
}

func (r *DiscountRepository) Update(_ context.Context, rule *discount.Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rules[rule.ID]; !ok {
		return discount.ErrNotFound
	}
	rule.UpdatedAt = time.Now()
	stored := *rule
	stored.OptionIDs = slices.Clone(rule.OptionIDs)
	r.rules[rule.ID] = stored
	return nil
}

func (r *DiscountRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rules[id]; !ok {
		return discount.ErrNotFound
	}
	delete(r.rules, id)
	return nil
}
