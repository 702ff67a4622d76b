package assets

import (
	"context"
	"strings"
	"time"

	"sitewarehouse/internal/inventory/category"
	"sitewarehouse/internal/repository"
	"sitewarehouse/internal/workflow"
	"sitewarehouse/pkg/auditlog"
	"sitewarehouse/pkg/capitalization"
	custom_error "sitewarehouse/pkg/errors"
	"sitewarehouse/pkg/metadata"
	"sitewarehouse/pkg/models"
	"sitewarehouse/pkg/roles"
	"sitewarehouse/pkg/validation"

	"github.com/doug-martin/goqu/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const aggregate = "asset"

// ProcurementSource is the procurement side read during asset generation.
type ProcurementSource interface {
	GetOrder(ctx context.Context, tx *goqu.TxDatabase, orderID int) (*models.ProcurementOrder, error)
	LockItem(ctx context.Context, tx *goqu.TxDatabase, orderID, itemID int) (*models.ProcurementItem, error)
}

type AssetService struct {
	r           Repository
	categories  category.Reader
	procurement ProcurementSource
	rt          workflow.Runtime
	refPrefix   string
	now         func() time.Time
}

func NewAssetService(r Repository, categories category.Reader, procurement ProcurementSource, rt workflow.Runtime, refPrefix string) *AssetService {
	rt.Logger = rt.Logger.Named("assets")
	return &AssetService{
		r:           r,
		categories:  categories,
		procurement: procurement,
		rt:          rt,
		refPrefix:   refPrefix,
		now:         time.Now,
	}
}

type CreateAssetInput struct {
	Ref                    string          `json:"ref"`
	Name                   string          `json:"name" validate:"required"`
	Description            *string         `json:"description"`
	CategoryID             int             `json:"category_id" validate:"required"`
	ProjectID              int             `json:"project_id" validate:"required"`
	AcquiredDate           time.Time       `json:"acquired_date" validate:"required"`
	UnitCost               decimal.Decimal `json:"unit_cost"`
	Quantity               int             `json:"quantity" validate:"gte=0"`
	Unit                   string          `json:"unit"`
	Disciplines            []string        `json:"disciplines"`
	OverrideCapitalization bool            `json:"override_capitalization"`
}

// CreateAsset registers an asset that is usable immediately.
func (s *AssetService) CreateAsset(ctx context.Context, actor models.Actor, input CreateAssetInput) (*models.Asset, error) {
	return s.create(ctx, actor, input, false)
}

// CreateLegacyAsset registers an asset acquired before the system existed.
// It starts as a draft and only becomes usable after the approval chain.
func (s *AssetService) CreateLegacyAsset(ctx context.Context, actor models.Actor, input CreateAssetInput) (*models.Asset, error) {
	return s.create(ctx, actor, input, true)
}

func (s *AssetService) create(ctx context.Context, actor models.Actor, input CreateAssetInput, legacy bool) (*models.Asset, error) {
	if !actor.Role.Can(roles.CreateAsset) {
		return nil, custom_error.NewForbiddenError("role %s cannot create assets", actor.Role)
	}

	input.Name = strings.TrimSpace(input.Name)
	if err := validation.Struct(input); err != nil {
		return nil, err
	}
	if input.UnitCost.IsNegative() {
		return nil, custom_error.NewFieldError("unit_cost", "must not be negative")
	}

	disciplines, err := metadata.JoinDisciplines(input.Disciplines)
	if err != nil {
		return nil, custom_error.NewFieldError("disciplines", err.Error())
	}

	if err := s.rt.EnsureAccess(ctx, actor, input.ProjectID); err != nil {
		return nil, s.rt.Hide("check project access", err)
	}

	cat, err := s.categories.GetCategory(ctx, nil, input.CategoryID)
	if err != nil {
		return nil, s.rt.Hide("load category", err)
	}
	if cat == nil {
		return nil, custom_error.NewFieldError("category_id", "does not exist")
	}

	if err := checkCapitalization(*cat, input.UnitCost, input.OverrideCapitalization); err != nil {
		return nil, err
	}

	asset := models.Asset{
		Ref:          strings.TrimSpace(input.Ref),
		Name:         input.Name,
		Description:  input.Description,
		Category:     *cat,
		ProjectID:    input.ProjectID,
		AcquiredDate: input.AcquiredDate,
		UnitCost:     input.UnitCost,
		Unit:         models.UnitOrDefault(input.Unit),
		Disciplines:  metadata.SplitDisciplines(disciplines),
		IsLegacy:     legacy,
		CreatedBy:    actor.UserID,
	}
	asset.ApplyQuantity(input.Quantity)
	asset.AcquisitionCost = input.UnitCost.Mul(decimal.NewFromInt(int64(asset.Quantity)))

	if legacy {
		asset.Status = metadata.StatusUnavailable
		asset.WorkflowStatus = metadata.WorkflowDraft
	} else {
		now := s.now()
		asset.Status = metadata.StatusAvailable
		asset.WorkflowStatus = metadata.WorkflowApproved
		asset.AuthorizedBy = &actor.UserID
		asset.AuthorizationDate = &now
	}

	var created *models.Asset
	transition := "create"
	if legacy {
		transition = "create_legacy"
	}
	err = s.rt.Run(ctx, workflow.Step{Aggregate: aggregate, Transition: transition}, func(tx *goqu.TxDatabase) error {
		var err error
		created, err = s.persist(ctx, tx, asset)
		if err != nil {
			return err
		}

		return s.rt.Record(ctx, tx, actor, transition, created, auditlog.Change{
			After: created.Snapshot(),
			Data:  map[string]interface{}{"override_capitalization": input.OverrideCapitalization},
		})
	})
	if err != nil {
		return nil, err
	}

	s.rt.Logger.Info("Asset created",
		zap.Int("asset_id", created.ID),
		zap.String("ref", created.Ref),
		zap.Bool("legacy", legacy),
	)

	return created, nil
}

// checkCapitalization rejects ineligible categories always and below
// threshold costs unless the caller explicitly overrides.
func checkCapitalization(cat models.Category, unitCost decimal.Decimal, override bool) error {
	result := capitalization.Evaluate(cat, unitCost)
	switch result.Decision {
	case capitalization.Ineligible:
		return custom_error.NewBusinessRuleError("capitalization_ineligible", "%s", result.Reason)
	case capitalization.BelowThreshold:
		if !override {
			return custom_error.NewBusinessRuleError("below_capitalization_threshold", "%s", result.Reason)
		}
	}
	return nil
}

// persist assigns a reference when none was given, inserts the asset and
// returns the stored record.
func (s *AssetService) persist(ctx context.Context, tx *goqu.TxDatabase, asset models.Asset) (*models.Asset, error) {
	if asset.Ref == "" {
		seq, err := s.r.NextRefSequence(ctx, tx, s.refPrefix, asset.Category.Code)
		if err != nil {
			return nil, err
		}
		asset.Ref = metadata.NewAssetRef(s.refPrefix, asset.Category.Code, seq).String()
	}

	if err := s.r.PersistAsset(ctx, tx, &asset); err != nil {
		return nil, err
	}

	stored, err := s.r.GetAsset(ctx, tx, asset.ID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, custom_error.NewNotFoundError("asset", asset.ID)
	}

	return stored, nil
}

func (s *AssetService) GetAsset(ctx context.Context, actor models.Actor, id int) (*models.Asset, error) {
	asset, err := s.r.GetAsset(ctx, nil, id)
	if err != nil {
		return nil, s.rt.Hide("load asset", err)
	}
	if asset == nil {
		return nil, custom_error.NewNotFoundError("asset", id)
	}

	if err := s.rt.EnsureAccess(ctx, actor, asset.ProjectID); err != nil {
		return nil, s.rt.Hide("check project access", err)
	}

	return asset, nil
}

type AssetFilter struct {
	ProjectID      *int    `form:"project_id"`
	CategoryID     *int    `form:"category_id"`
	Status         *string `form:"status"`
	WorkflowStatus *string `form:"workflow_status"`
	Legacy         *bool   `form:"legacy"`
}

// ListAssets scopes users without global access to a project they belong to.
func (s *AssetService) ListAssets(ctx context.Context, actor models.Actor, filter AssetFilter) ([]models.Asset, error) {
	if filter.ProjectID == nil && !actor.Role.HasGlobalProjectAccess() {
		if actor.CurrentProjectID == nil {
			return nil, custom_error.NewFieldError("project_id", "is required")
		}
		filter.ProjectID = actor.CurrentProjectID
	}
	if filter.ProjectID != nil {
		if err := s.rt.EnsureAccess(ctx, actor, *filter.ProjectID); err != nil {
			return nil, s.rt.Hide("check project access", err)
		}
	}

	conditions := repository.NewQueryBuilder()
	if filter.ProjectID != nil {
		conditions.AddCondition("project_id", *filter.ProjectID)
	}
	if filter.CategoryID != nil {
		conditions.AddCondition("category_id", *filter.CategoryID)
	}
	if filter.Status != nil {
		conditions.AddCondition("status", *filter.Status)
	}
	if filter.WorkflowStatus != nil {
		conditions.AddCondition("workflow_status", *filter.WorkflowStatus)
	}
	if filter.Legacy != nil {
		conditions.AddCondition("is_legacy", *filter.Legacy)
	}

	assets, err := s.r.GetAssetsBy(ctx, conditions)
	if err != nil {
		return nil, s.rt.Hide("list assets", err)
	}

	return assets, nil
}

type QuantityResult struct {
	Asset    *models.Asset `json:"asset"`
	Adjusted int           `json:"adjusted"`
}

// ConsumeQuantity takes n units out of a pooled asset.
func (s *AssetService) ConsumeQuantity(ctx context.Context, actor models.Actor, id, n int) (*QuantityResult, error) {
	return s.adjustQuantity(ctx, actor, id, "consume", func(a *models.Asset) (int, error) {
		return n, a.Consume(n)
	})
}

// RestoreQuantity returns units to a pooled asset. The reported amount is
// clamped so the available quantity never exceeds the total.
func (s *AssetService) RestoreQuantity(ctx context.Context, actor models.Actor, id, n int) (*QuantityResult, error) {
	return s.adjustQuantity(ctx, actor, id, "restore", func(a *models.Asset) (int, error) {
		return a.Restore(n)
	})
}

func (s *AssetService) adjustQuantity(ctx context.Context, actor models.Actor, id int, action string, apply func(a *models.Asset) (int, error)) (*QuantityResult, error) {
	if !actor.Role.Can(roles.AdjustQuantity) {
		return nil, custom_error.NewForbiddenError("role %s cannot adjust asset quantities", actor.Role)
	}

	result := &QuantityResult{}
	err := s.rt.Run(ctx, workflow.Step{Aggregate: aggregate, ID: id, Transition: action}, func(tx *goqu.TxDatabase) error {
		asset, err := s.r.LockAsset(ctx, tx, id)
		if err != nil {
			return err
		}
		if asset == nil {
			return custom_error.NewNotFoundError("asset", id)
		}
		if err := s.rt.EnsureAccess(ctx, actor, asset.ProjectID); err != nil {
			return err
		}

		before := asset.Snapshot()
		adjusted, err := apply(asset)
		if err != nil {
			return err
		}

		if err := s.r.UpdateQuantity(ctx, tx, asset); err != nil {
			return err
		}

		result.Asset = asset
		result.Adjusted = adjusted
		return s.rt.Record(ctx, tx, actor, action, asset, auditlog.Change{
			Before: before,
			After:  asset.Snapshot(),
			Data:   map[string]interface{}{"adjusted": adjusted},
		})
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// DeleteAsset removes an asset that no open record depends on.
func (s *AssetService) DeleteAsset(ctx context.Context, actor models.Actor, id int) error {
	if !actor.Role.Can(roles.DeleteAsset) {
		return custom_error.NewForbiddenError("role %s cannot delete assets", actor.Role)
	}

	return s.rt.Run(ctx, workflow.Step{Aggregate: aggregate, ID: id, Transition: "delete"}, func(tx *goqu.TxDatabase) error {
		asset, err := s.r.LockAsset(ctx, tx, id)
		if err != nil {
			return err
		}
		if asset == nil {
			return custom_error.NewNotFoundError("asset", id)
		}
		if err := s.rt.EnsureAccess(ctx, actor, asset.ProjectID); err != nil {
			return err
		}

		blocking, err := s.r.OpenReferences(ctx, tx, id)
		if err != nil {
			return err
		}
		if len(blocking) > 0 {
			return &custom_error.ReferentialBlockError{Entity: aggregate, ID: id, Blocking: blocking}
		}

		if err := s.r.RemoveAsset(ctx, tx, id); err != nil {
			return err
		}

		return s.rt.Record(ctx, tx, actor, "delete", asset, auditlog.Change{Before: asset.Snapshot()})
	})
}
