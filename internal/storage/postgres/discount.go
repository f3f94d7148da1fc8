package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/discount"
)

const (
	discountColumns = `id, name, description, option_ids, initial_quantity, initial_amount,
		additional_amount, active, created_at, updated_at`

	listDiscountsSQL       = `SELECT ` + discountColumns + ` FROM discounts ORDER BY id`
	listActiveDiscountsSQL = `SELECT ` + discountColumns + ` FROM discounts WHERE active ORDER BY id`
	getDiscountSQL         = `SELECT ` + discountColumns + ` FROM discounts WHERE id = $1`

	createDiscountSQL = `INSERT INTO discounts (id, name, description, option_ids, initial_quantity,
		initial_amount, additional_amount, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	updateDiscountSQL = `UPDATE discounts SET name = $2, description = $3, option_ids = $4,
		initial_quantity = $5, initial_amount = $6, additional_amount = $7, active = $8, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`

	deleteDiscountSQL = `DELETE FROM discounts WHERE id = $1`
)

var _ discount.Repository = (*DiscountRepository)(nil)

// DiscountRepository implements discount.Repository backed by PostgreSQL.
type DiscountRepository struct {
	pool *pgxpool.Pool
}

// NewDiscountRepository returns a DiscountRepository that uses the given pool.
func NewDiscountRepository(pool *pgxpool.Pool) *DiscountRepository {
	return &DiscountRepository{pool: pool}
}

// ListActive returns the active rules ordered by ID.
func (r *DiscountRepository) ListActive(ctx context.Context) ([]discount.Rule, error) {
	rows, err := r.pool.Query(ctx, listActiveDiscountsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing active discounts: %w", err)
	}
	return pgx.CollectRows(rows, scanRule)
}

// List returns every rule ordered by ID.
func (r *DiscountRepository) List(ctx context.Context) ([]discount.Rule, error) {
	rows, err := r.pool.Query(ctx, listDiscountsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing discounts: %w", err)
	}
	return pgx.CollectRows(rows, scanRule)
}

func (r *DiscountRepository) Get(ctx context.Context, id string) (*discount.Rule, error) {
	rows, err := r.pool.Query(ctx, getDiscountSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting discount %q: %w", id, err)
	}
	rule, err := pgx.CollectExactlyOneRow(rows, scanRule)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, discount.ErrNotFound
		}
		return nil, fmt.Errorf("getting discount %q: %w", id, err)
	}
	return &rule, nil
}

func (r *DiscountRepository) Create(ctx context.Context, rule *discount.Rule) error {
	err := r.pool.QueryRow(ctx, createDiscountSQL,
		rule.ID, rule.Name, rule.Description, rule.OptionIDs, rule.InitialQuantity,
		rule.InitialAmount, rule.AdditionalAmount, rule.Active,
	).Scan(&rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating discount %q: %w", rule.ID, err)
	}
	return nil
}

func (r *DiscountRepository) Update(ctx context.Context, rule *discount.Rule) error {
	err := r.pool.QueryRow(ctx, updateDiscountSQL,
		rule.ID, rule.Name, rule.Description, rule.OptionIDs, rule.InitialQuantity,
		rule.InitialAmount, rule.AdditionalAmount, rule.Active,
	).Scan(&rule.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return discount.ErrNotFound
		}
		return fmt.Errorf("updating discount %q: %w", rule.ID, err)
	}
	return nil
}

func (r *DiscountRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deleteDiscountSQL, id)
	if err != nil {
		return fmt.Errorf("deleting discount %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return discount.ErrNotFound
	}
	return nil
}

func scanRule(row pgx.CollectableRow) (discount.Rule, error) {
	var rule discount.Rule
	err := row.Scan(
		&rule.ID, &rule.Name, &rule.Description, &rule.OptionIDs, &rule.InitialQuantity,
		&rule.InitialAmount, &rule.AdditionalAmount, &rule.Active, &rule.CreatedAt, &rule.UpdatedAt,
	)
	return rule, err
}
