package assets

import (
	"context"

	"sitewarehouse/internal/notifications"
	"sitewarehouse/internal/workflow"
	"sitewarehouse/pkg/auditlog"
	"sitewarehouse/pkg/capitalization"
	custom_error "sitewarehouse/pkg/errors"
	"sitewarehouse/pkg/metadata"
	"sitewarehouse/pkg/models"
	"sitewarehouse/pkg/roles"

	"github.com/doug-martin/goqu/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const generateTransition = "generate_assets"

type GenerationResult struct {
	ProcurementItemID int            `json:"procurement_item_id"`
	Generated         int            `json:"generated"`
	Assets            []models.Asset `json:"assets"`
}

type OrderGenerationResult struct {
	ProcurementOrderID int                `json:"procurement_order_id"`
	Items              []GenerationResult `json:"items"`
	Skipped            map[int]string     `json:"skipped,omitempty"`
}

// GenerateAssetsFromProcurementItem converts the received but not yet
// converted units of one item into assets. Pooled categories get a single
// asset per item that is topped up on later calls; discrete categories get
// one asset per unit. Calling it again with nothing left fails without
// creating anything.
func (s *AssetService) GenerateAssetsFromProcurementItem(ctx context.Context, actor models.Actor, orderID, itemID int) (*GenerationResult, error) {
	if !actor.Role.Can(roles.GenerateAssets) {
		return nil, custom_error.NewForbiddenError("role %s cannot generate assets", actor.Role)
	}

	order, err := s.loadOrder(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}

	return s.generateForItem(ctx, actor, order, itemID)
}

// GenerateAssetsFromProcurementOrder runs item generation for every item that
// is currently eligible. Items that are not are reported with the reason.
func (s *AssetService) GenerateAssetsFromProcurementOrder(ctx context.Context, actor models.Actor, orderID int) (*OrderGenerationResult, error) {
	if !actor.Role.Can(roles.GenerateAssets) {
		return nil, custom_error.NewForbiddenError("role %s cannot generate assets", actor.Role)
	}

	order, err := s.loadOrder(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}

	result := &OrderGenerationResult{ProcurementOrderID: orderID, Skipped: map[int]string{}}
	for _, item := range order.Items {
		cat, err := s.categories.GetCategory(ctx, nil, item.CategoryID)
		if err != nil {
			return result, s.rt.Hide("load category", err)
		}
		if cat == nil {
			result.Skipped[item.ID] = "category does not exist"
			continue
		}

		if eligibility := capitalization.ItemEligibility(*cat, item); !eligibility.IsEligible() {
			result.Skipped[item.ID] = eligibility.Reason
			continue
		}

		generated, err := s.generateForItem(ctx, actor, order, item.ID)
		if err != nil {
			return result, err
		}
		result.Items = append(result.Items, *generated)
	}

	if len(result.Items) == 0 {
		return result, custom_error.NewBusinessRuleError(
			"nothing_to_generate",
			"procurement order %s has no items eligible for asset generation", order.PONumber,
		)
	}

	return result, nil
}

func (s *AssetService) loadOrder(ctx context.Context, actor models.Actor, orderID int) (*models.ProcurementOrder, error) {
	order, err := s.procurement.GetOrder(ctx, nil, orderID)
	if err != nil {
		return nil, s.rt.Hide("load procurement order", err)
	}
	if order == nil {
		return nil, custom_error.NewNotFoundError("procurement order", orderID)
	}

	if err := s.rt.EnsureAccess(ctx, actor, order.ProjectID); err != nil {
		return nil, s.rt.Hide("check project access", err)
	}

	if order.Status == metadata.OrderRejected || order.Status == metadata.OrderCanceled {
		return nil, custom_error.NewBusinessRuleError(
			"order_not_fulfilled",
			"procurement order %s is %s, assets can only be generated from received goods", order.PONumber, order.Status,
		)
	}

	return order, nil
}

func (s *AssetService) generateForItem(ctx context.Context, actor models.Actor, order *models.ProcurementOrder, itemID int) (*GenerationResult, error) {
	result := &GenerationResult{ProcurementItemID: itemID}

	step := workflow.Step{Aggregate: "procurement_item", ID: itemID, Transition: generateTransition}
	err := s.rt.Run(ctx, step, func(tx *goqu.TxDatabase) error {
		item, err := s.procurement.LockItem(ctx, tx, order.ID, itemID)
		if err != nil {
			return err
		}
		if item == nil {
			return custom_error.NewNotFoundError("procurement item", itemID)
		}

		cat, err := s.categories.GetCategory(ctx, tx, item.CategoryID)
		if err != nil {
			return err
		}
		if cat == nil {
			return custom_error.NewNotFoundError("category", item.CategoryID)
		}

		if eligibility := capitalization.ItemEligibility(*cat, *item); !eligibility.IsEligible() {
			return custom_error.NewBusinessRuleError("not_eligible_for_generation", "%s", eligibility.Reason)
		}

		remaining := item.RemainingToGenerate()
		if cat.TracksQuantity() {
			asset, err := s.generatePooled(ctx, tx, actor, order, item, *cat, remaining)
			if err != nil {
				return err
			}
			result.Assets = append(result.Assets, *asset)
		} else {
			for i := 0; i < remaining; i++ {
				asset, err := s.generateUnit(ctx, tx, actor, order, item, *cat, 1)
				if err != nil {
					return err
				}
				result.Assets = append(result.Assets, *asset)
			}
		}

		result.Generated = remaining
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.rt.Logger.Info("Assets generated from procurement item",
		zap.Int("procurement_order_id", order.ID),
		zap.Int("procurement_item_id", itemID),
		zap.Int("generated", result.Generated),
	)

	s.rt.Notify(ctx, notifications.NewEvent(notifications.AssetsGenerated, "procurement_item", itemID, order.ProjectID, actor.UserID,
		map[string]interface{}{
			"po_number": order.PONumber,
			"generated": result.Generated,
		}))

	return result, nil
}

// generatePooled tops up the asset already minted for the item, or creates
// it with the whole remaining quantity.
func (s *AssetService) generatePooled(
	ctx context.Context,
	tx *goqu.TxDatabase,
	actor models.Actor,
	order *models.ProcurementOrder,
	item *models.ProcurementItem,
	cat models.Category,
	remaining int,
) (*models.Asset, error) {
	existing, err := s.r.FindGeneratedAsset(ctx, tx, item.ID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return s.generateUnit(ctx, tx, actor, order, item, cat, remaining)
	}

	before := existing.Snapshot()
	if err := existing.TopUp(remaining); err != nil {
		return nil, err
	}
	existing.AcquisitionCost = existing.AcquisitionCost.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(remaining))))

	if err := s.r.UpdateQuantity(ctx, tx, existing); err != nil {
		return nil, err
	}
	if err := s.r.LinkProcurementItem(ctx, tx, item.ID, existing.ID, remaining); err != nil {
		return nil, err
	}

	return existing, s.rt.Record(ctx, tx, actor, "top_up_from_procurement", existing, auditlog.Change{
		Before: before,
		After:  existing.Snapshot(),
		Data:   generationData(order, item, remaining),
	})
}

func (s *AssetService) generateUnit(
	ctx context.Context,
	tx *goqu.TxDatabase,
	actor models.Actor,
	order *models.ProcurementOrder,
	item *models.ProcurementItem,
	cat models.Category,
	quantity int,
) (*models.Asset, error) {
	now := s.now()
	acquired := now
	if order.ReceivedAt != nil {
		acquired = *order.ReceivedAt
	}

	asset := models.Asset{
		Name:               item.ItemName,
		Description:        item.Description,
		Category:           cat,
		ProjectID:          order.ProjectID,
		AcquiredDate:       acquired,
		UnitCost:           item.UnitPrice,
		Unit:               models.UnitOrDefault(item.Unit),
		Status:             metadata.StatusAvailable,
		WorkflowStatus:     metadata.WorkflowApproved,
		ProcurementOrderID: &order.ID,
		ProcurementItemID:  &item.ID,
		CreatedBy:          actor.UserID,
		AuthorizedBy:       &actor.UserID,
		AuthorizationDate:  &now,
	}
	asset.ApplyQuantity(quantity)
	asset.AcquisitionCost = item.UnitPrice.Mul(decimal.NewFromInt(int64(asset.Quantity)))

	created, err := s.persist(ctx, tx, asset)
	if err != nil {
		return nil, err
	}
	if err := s.r.LinkProcurementItem(ctx, tx, item.ID, created.ID, created.Quantity); err != nil {
		return nil, err
	}

	return created, s.rt.Record(ctx, tx, actor, "generate_from_procurement", created, auditlog.Change{
		After: created.Snapshot(),
		Data:  generationData(order, item, created.Quantity),
	})
}

func generationData(order *models.ProcurementOrder, item *models.ProcurementItem, quantity int) map[string]interface{} {
	return map[string]interface{}{
		"procurement_order_id": order.ID,
		"po_number":            order.PONumber,
		"procurement_item_id":  item.ID,
		"quantity":             quantity,
	}
}
