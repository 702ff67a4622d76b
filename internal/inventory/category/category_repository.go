package category

import (
	"context"
	"fmt"

	"sitewarehouse/internal/repository"
	custom_error "sitewarehouse/pkg/errors"
	"sitewarehouse/pkg/models"

	"github.com/doug-martin/goqu/v9"
)

// Reader is the read side used by the asset and procurement managers.
type Reader interface {
	GetCategory(ctx context.Context, tx *goqu.TxDatabase, id int) (*models.Category, error)
}

type Repository interface {
	Reader
	ListCategories(ctx context.Context) ([]models.Category, error)
	PersistCategory(ctx context.Context, c models.Category) (*models.Category, error)
	HasAssets(ctx context.Context, id int) (bool, error)
	DeleteCategory(ctx context.Context, id int) error
}

type CategoryRepository struct {
	repository *repository.Repository
}

func NewRepository(r *repository.Repository) *CategoryRepository {
	return &CategoryRepository{repository: r}
}

var categoryColumns = []interface{}{
	"id",
	"name",
	"code",
	"asset_type",
	"is_consumable",
	"generates_assets",
	"capitalization_threshold",
	"auto_expense_below_threshold",
}

// GetCategory returns nil without an error when the category does not exist.
func (r *CategoryRepository) GetCategory(ctx context.Context, tx *goqu.TxDatabase, id int) (*models.Category, error) {
	var c models.Category
	found, err := r.repository.Conn(tx).
		From("categories").
		Select(categoryColumns...).
		Where(goqu.Ex{"id": id}).
		Executor().
		ScanStructContext(ctx, &c)
	if err != nil {
		return nil, fmt.Errorf("failed to load category %d: %w", id, err)
	}
	if !found {
		return nil, nil
	}

	return &c, nil
}

func (r *CategoryRepository) ListCategories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	err := r.repository.GoquDBWrapper.
		From("categories").
		Select(categoryColumns...).
		Order(goqu.I("name").Asc()).
		Executor().
		ScanStructsContext(ctx, &categories)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}

	return categories, nil
}

func (r *CategoryRepository) PersistCategory(ctx context.Context, c models.Category) (*models.Category, error) {
	query := r.repository.GoquDBWrapper.
		Insert("categories").
		Rows(goqu.Record{
			"name":                         c.Name,
			"code":                         c.Code,
			"asset_type":                   c.AssetType,
			"is_consumable":                c.IsConsumable,
			"generates_assets":             c.GeneratesAssets,
			"capitalization_threshold":     c.CapitalizationThreshold,
			"auto_expense_below_threshold": c.AutoExpenseBelowThreshold,
		}).
		Returning("id")

	if _, err := query.Executor().ScanValContext(ctx, &c.ID); err != nil {
		return nil, custom_error.FromPQ(fmt.Sprintf("category code %s already exists", c.Code), err)
	}

	return &c, nil
}

func (r *CategoryRepository) HasAssets(ctx context.Context, id int) (bool, error) {
	var count int
	_, err := r.repository.GoquDBWrapper.
		From("assets").
		Select(goqu.COUNT("*")).
		Where(goqu.Ex{"category_id": id}).
		Executor().
		ScanValContext(ctx, &count)
	if err != nil {
		return false, fmt.Errorf("failed to count assets of category %d: %w", id, err)
	}

	return count > 0, nil
}

func (r *CategoryRepository) DeleteCategory(ctx context.Context, id int) error {
	result, err := r.repository.GoquDBWrapper.
		Delete("categories").
		Where(goqu.Ex{"id": id}).
		Executor().
		ExecContext(ctx)
	if err != nil {
		return custom_error.FromPQ(fmt.Sprintf("category %d", id), err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete category %d: %w", id, err)
	}
	if affected == 0 {
		return custom_error.NewNotFoundError("category", id)
	}

	return nil
}
