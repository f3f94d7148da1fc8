package discount

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/catalog"
)

type mockRuleRepo struct {
	rules map[string]*Rule
}

func (m *mockRuleRepo) ListActive(context.Context) ([]Rule, error) {
	var out []Rule
	for _, r := range m.rules {
		if r.Active {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *mockRuleRepo) List(context.Context) ([]Rule, error) {
	var out []Rule
	for _, r := range m.rules {
		out = append(out, *r)
	}
	return out, nil
}

func (m *mockRuleRepo) Get(_ context.Context, id string) (*Rule, error) {
	r, ok := m.rules[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *mockRuleRepo) Create(_ context.Context, r *Rule) error {
	m.rules[r.ID] = r
	return nil
}

func (m *mockRuleRepo) Update(_ context.Context, r *Rule) error {
	if _, ok := m.rules[r.ID]; !ok {
		return ErrNotFound
	}
	m.rules[r.ID] = r
	return nil
}

func (m *mockRuleRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.rules[id]; !ok {
		return ErrNotFound
	}
	delete(m.rules, id)
	return nil
}

type mockOptions map[string]catalog.Option

func (m mockOptions) GetOption(_ context.Context, id string) (*catalog.Option, error) {
	o, ok := m[id]
	if !ok {
		return nil, &catalog.OptionNotFoundError{OptionID: id}
	}
	return &o, nil
}

func (m mockOptions) GetOptions(_ context.Context, ids []string) ([]catalog.Option, error) {
	var out []catalog.Option
	for _, id := range ids {
		if o, ok := m[id]; ok {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m mockOptions) GetProducts(context.Context, []string) ([]catalog.Product, error) {
	return nil, nil
}

func TestService_Create(t *testing.T) {
	options := mockOptions{"a": {ID: "a"}, "b": {ID: "b"}}

	tests := []struct {
		name    string
		params  Params
		wantErr error
		missing []string
	}{
		{
			name:   "valid rule",
			params: Params{Name: "2x", OptionIDs: []string{"a", "b", "a"}, InitialQuantity: 2, InitialAmount: d("500"), AdditionalAmount: d("200"), Active: true},
		},
		{
			name:    "empty option set",
			params:  Params{Name: "none", InitialQuantity: 2},
			wantErr: ErrEmptyOptions,
		},
		{
			name:    "zero threshold",
			params:  Params{Name: "zero", OptionIDs: []string{"a"}},
			wantErr: ErrInvalidThreshold,
		},
		{
			name:    "negative amount",
			params:  Params{Name: "neg", OptionIDs: []string{"a"}, InitialQuantity: 1, InitialAmount: d("-1")},
			wantErr: ErrNegativeAmount,
		},
		{
			name:    "unknown options",
			params:  Params{Name: "ghost", OptionIDs: []string{"a", "x", "y"}, InitialQuantity: 1},
			missing: []string{"x", "y"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockRuleRepo{rules: map[string]*Rule{}}
			svc := NewService(repo, options)

			r, err := svc.Create(context.Background(), tt.params)
			switch {
			case tt.wantErr != nil:
				require.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, repo.rules)
			case tt.missing != nil:
				var uoErr *UnknownOptionsError
				require.ErrorAs(t, err, &uoErr)
				assert.Equal(t, tt.missing, uoErr.OptionIDs)
			default:
				require.NoError(t, err)
				assert.Equal(t, []string{"a", "b"}, r.OptionIDs)
				assert.Contains(t, repo.rules, r.ID)
			}
		})
	}
}

func TestService_UpdateAndDelete(t *testing.T) {
	repo := &mockRuleRepo{rules: map[string]*Rule{
		"r1": {ID: "r1", Name: "old", OptionIDs: []string{"a"}, InitialQuantity: 1, Active: true},
	}}
	svc := NewService(repo, mockOptions{"a": {ID: "a"}})
	ctx := context.Background()

	r, err := svc.Update(ctx, "r1", Params{Name: "new", OptionIDs: []string{"a"}, InitialQuantity: 3, InitialAmount: d("10"), Active: false})
	require.NoError(t, err)
	assert.Equal(t, "new", r.Name)
	assert.False(t, repo.rules["r1"].Active)

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	_, err = svc.Update(ctx, "missing", Params{Name: "x", OptionIDs: []string{"a"}, InitialQuantity: 1})
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, svc.Delete(ctx, "r1"))
	require.ErrorIs(t, svc.Delete(ctx, "r1"), ErrNotFound)
}
