package category

import (
	"context"
	"strings"

	custom_error "sitewarehouse/pkg/errors"
	"sitewarehouse/pkg/models"
	"sitewarehouse/pkg/roles"
	"sitewarehouse/pkg/validation"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type CategoryService struct {
	r      Repository
	logger *zap.Logger
}

func NewCategoryService(r Repository, logger *zap.Logger) *CategoryService {
	return &CategoryService{r: r, logger: logger.Named("category")}
}

type CreateCategoryInput struct {
	Name                      string          `json:"name" validate:"required"`
	Code                      string          `json:"code" validate:"required,alphanum,min=2,max=5"`
	AssetType                 string          `json:"asset_type" validate:"required,oneof=capital inventory consumable"`
	IsConsumable              bool            `json:"is_consumable"`
	GeneratesAssets           bool            `json:"generates_assets"`
	CapitalizationThreshold   decimal.Decimal `json:"capitalization_threshold"`
	AutoExpenseBelowThreshold bool            `json:"auto_expense_below_threshold"`
}

func (s *CategoryService) CreateCategory(ctx context.Context, actor models.Actor, input CreateCategoryInput) (*models.Category, error) {
	if !actor.Role.Can(roles.ManageCategories) {
		return nil, custom_error.NewForbiddenError("role %s cannot manage categories", actor.Role)
	}

	input.Code = strings.ToUpper(strings.TrimSpace(input.Code))
	if err := validation.Struct(input); err != nil {
		return nil, err
	}
	if input.CapitalizationThreshold.IsNegative() {
		return nil, custom_error.NewFieldError("capitalization_threshold", "must not be negative")
	}

	category, err := s.r.PersistCategory(ctx, models.Category{
		Name:                      strings.TrimSpace(input.Name),
		Code:                      input.Code,
		AssetType:                 models.AssetType(input.AssetType),
		IsConsumable:              input.IsConsumable,
		GeneratesAssets:           input.GeneratesAssets,
		CapitalizationThreshold:   input.CapitalizationThreshold,
		AutoExpenseBelowThreshold: input.AutoExpenseBelowThreshold,
	})
	if err != nil {
		switch err.(type) {
		case *custom_error.UniqueViolationError:
			return nil, err
		default:
			s.logger.Error("Unable to create category", zap.String("code", input.Code), zap.Error(err))
			return nil, custom_error.NewPersistenceError("create category", err)
		}
	}

	s.logger.Info("Category created", zap.Int("category_id", category.ID), zap.String("code", category.Code))

	return category, nil
}

func (s *CategoryService) ListCategories(ctx context.Context) ([]models.Category, error) {
	categories, err := s.r.ListCategories(ctx)
	if err != nil {
		s.logger.Error("Unable to list categories", zap.Error(err))
		return nil, custom_error.NewPersistenceError("list categories", err)
	}

	return categories, nil
}

func (s *CategoryService) DeleteCategory(ctx context.Context, actor models.Actor, id int) error {
	if !actor.Role.Can(roles.ManageCategories) {
		return custom_error.NewForbiddenError("role %s cannot manage categories", actor.Role)
	}

	used, err := s.r.HasAssets(ctx, id)
	if err != nil {
		s.logger.Error("Unable to check category usage", zap.Int("category_id", id), zap.Error(err))
		return custom_error.NewPersistenceError("delete category", err)
	}
	if used {
		return &custom_error.ReferentialBlockError{Entity: "category", ID: id, Blocking: []string{"assets"}}
	}

	if err := s.r.DeleteCategory(ctx, id); err != nil {
		if custom_error.IsDomainError(err) {
			return err
		}
		s.logger.Error("Unable to delete category", zap.Int("category_id", id), zap.Error(err))
		return custom_error.NewPersistenceError("delete category", err)
	}

	return nil
}
