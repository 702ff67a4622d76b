package procurement

import (
	"context"
	"strings"
	"time"

	"sitewarehouse/internal/notifications"
	"sitewarehouse/internal/repository"
	"sitewarehouse/pkg/capitalization"
	custom_error "sitewarehouse/pkg/errors"
	"sitewarehouse/pkg/metadata"
	"sitewarehouse/pkg/models"
	"sitewarehouse/pkg/roles"
	"sitewarehouse/pkg/validation"

	"github.com/doug-martin/goqu/v9"
)

type ResolveInput struct {
	Notes  string `json:"resolution_notes" validate:"required"`
	Action string `json:"action" validate:"required,oneof=reschedule_delivery mark_complete document_only"`
}

func (in *ResolveInput) parse() (metadata.ResolutionAction, error) {
	in.Notes = strings.TrimSpace(in.Notes)
	if err := validation.Struct(in); err != nil {
		return "", err
	}
	action, err := metadata.NewResolutionAction(in.Action)
	if err != nil {
		return "", custom_error.NewFieldError("action", err.Error())
	}
	return action, nil
}

// ResolveItemDiscrepancy settles the open discrepancy of one item.
// document_only keeps the item unresolved and only records the notes.
func (s *ProcurementService) ResolveItemDiscrepancy(ctx context.Context, actor models.Actor, orderID, itemID int, input ResolveInput) (*models.ProcurementOrder, error) {
	if !actor.Role.Can(roles.ResolveDiscrepancy) {
		return nil, custom_error.NewForbiddenError("role %s cannot resolve discrepancies", actor.Role)
	}
	action, err := input.parse()
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, actor, orderID, "resolve_item_discrepancy", func(tx *goqu.TxDatabase, o *models.ProcurementOrder, now time.Time, c *orderChange) error {
		index := itemIndex(o, itemID)
		if index < 0 {
			return custom_error.NewNotFoundError("procurement_item", itemID)
		}
		if !o.Items[index].HasOpenDiscrepancy() {
			return custom_error.NewBusinessRuleError("no_open_discrepancy",
				"item %q has no open discrepancy", o.Items[index].ItemName)
		}

		if err := s.resolveItem(ctx, tx, o, index, actor, now, input.Notes, action, c); err != nil {
			return err
		}
		return s.finishResolution(ctx, tx, o, actor, now, input.Notes, action, false, c)
	})
}

// ResolveDiscrepancy settles the order-level discrepancy. Resolving actions
// also resolve every item that is still open.
func (s *ProcurementService) ResolveDiscrepancy(ctx context.Context, actor models.Actor, orderID int, input ResolveInput) (*models.ProcurementOrder, error) {
	if !actor.Role.Can(roles.ResolveDiscrepancy) {
		return nil, custom_error.NewForbiddenError("role %s cannot resolve discrepancies", actor.Role)
	}
	action, err := input.parse()
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, actor, orderID, "resolve_discrepancy", func(tx *goqu.TxDatabase, o *models.ProcurementOrder, now time.Time, c *orderChange) error {
		if !o.HasDiscrepancy {
			return custom_error.NewBusinessRuleError("no_open_discrepancy", "procurement order %s has no open discrepancy", o.PONumber)
		}

		if action != metadata.ResolutionDocumentOnly {
			for i := range o.Items {
				if !o.Items[i].HasOpenDiscrepancy() {
					continue
				}
				if err := s.resolveItem(ctx, tx, o, i, actor, now, input.Notes, action, c); err != nil {
					return err
				}
			}
			if !o.AllItemsSettled() {
				return custom_error.NewBusinessRuleError("items_unsettled",
					"procurement order %s has items that are neither received nor resolved", o.PONumber)
			}
		}

		return s.finishResolution(ctx, tx, o, actor, now, input.Notes, action, true, c)
	})
}

func (s *ProcurementService) resolveItem(ctx context.Context, tx *goqu.TxDatabase, o *models.ProcurementOrder, index int, actor models.Actor, now time.Time, notes string, action metadata.ResolutionAction, c *orderChange) error {
	item := &o.Items[index]
	actionName := string(action)
	item.ResolutionNotes = &notes
	item.ResolutionAction = &actionName
	if action != metadata.ResolutionDocumentOnly {
		item.DiscrepancyResolvedAt = timePtr(now)
		item.DiscrepancyResolvedBy = &actor.UserID
	}
	c.touch(index)

	itemID := item.ID
	if err := s.resolveLatest(ctx, tx, o.ID, &itemID, actor, now, notes, action); err != nil {
		return err
	}
	c.track(models.DeliveryTracking{
		ProcurementItemID: &itemID,
		EventType:         metadata.TrackingResolution,
		Notes:             &notes,
		ResolutionNotes:   &notes,
	})
	return nil
}

// resolveLatest writes the resolution onto the newest open discrepancy
// record. document_only leaves the record open.
func (s *ProcurementService) resolveLatest(ctx context.Context, tx *goqu.TxDatabase, orderID int, itemID *int, actor models.Actor, now time.Time, notes string, action metadata.ResolutionAction) error {
	entry, err := s.r.LatestOpenDiscrepancy(ctx, tx, orderID, itemID)
	if err != nil || entry == nil {
		return err
	}

	entry.ResolutionNotes = &notes
	if action != metadata.ResolutionDocumentOnly {
		entry.ResolvedBy = &actor.UserID
		entry.ResolvedAt = timePtr(now)
	}
	return s.r.ResolveTracking(ctx, tx, entry)
}

// finishResolution applies the order-level effect of a resolution. The
// order flag is cleared only once every item is settled.
func (s *ProcurementService) finishResolution(ctx context.Context, tx *goqu.TxDatabase, o *models.ProcurementOrder, actor models.Actor, now time.Time, notes string, action metadata.ResolutionAction, orderLevel bool, c *orderChange) error {
	actionName := string(action)
	c.data = map[string]interface{}{"action": actionName, "resolution_notes": notes}

	if action == metadata.ResolutionDocumentOnly {
		if !orderLevel {
			return nil
		}
		o.DiscrepancyResolutionNotes = &notes
		o.DiscrepancyResolutionAction = &actionName
		if err := s.resolveLatest(ctx, tx, o.ID, nil, actor, now, notes, action); err != nil {
			return err
		}
		c.track(models.DeliveryTracking{EventType: metadata.TrackingResolution, Notes: &notes, ResolutionNotes: &notes})
		return nil
	}

	// An earlier item-level reschedule may already have reopened the order.
	// Once a new delivery is under way its status is left alone.
	if action == metadata.ResolutionRescheduleDelivery {
		switch o.Status {
		case metadata.OrderReceived:
			if err := guard(o, metadata.OrderReopen); err != nil {
				return err
			}
			o.DeliveryStatus = metadata.DeliveryPending
		case metadata.OrderApproved:
			o.DeliveryStatus = metadata.DeliveryPending
		}
	}

	if o.HasDiscrepancy && o.AllItemsSettled() {
		o.HasDiscrepancy = false
		o.DiscrepancyResolvedBy = &actor.UserID
		o.DiscrepancyResolvedAt = timePtr(now)
		o.DiscrepancyResolutionNotes = &notes
		o.DiscrepancyResolutionAction = &actionName
		if o.Status == metadata.OrderReceived {
			o.DeliveryStatus = metadata.DeliveryReceived
		}
		if err := s.resolveLatest(ctx, tx, o.ID, nil, actor, now, notes, action); err != nil {
			return err
		}
		c.track(models.DeliveryTracking{EventType: metadata.TrackingResolution, Notes: &notes, ResolutionNotes: &notes})
	}

	c.emit(notifications.DiscrepancyResolved)
	return nil
}

// GenerationCandidate is a received item that can be turned into assets now.
type GenerationCandidate struct {
	Item         models.ProcurementItem `json:"item"`
	CategoryName string                 `json:"category_name"`
	Remaining    int                    `json:"remaining"`
}

// GetItemsAvailableForAssetGeneration evaluates every item afresh. The
// result depends on receipts, resolutions and earlier generation runs.
func (s *ProcurementService) GetItemsAvailableForAssetGeneration(ctx context.Context, actor models.Actor, orderID int) ([]GenerationCandidate, error) {
	order, err := s.GetProcurementOrder(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}

	candidates := []GenerationCandidate{}
	if order.Status == metadata.OrderRejected || order.Status == metadata.OrderCanceled {
		return candidates, nil
	}

	for _, item := range order.Items {
		cat, err := s.categories.GetCategory(ctx, nil, item.CategoryID)
		if err != nil {
			return nil, s.rt.Hide("load category", err)
		}
		if cat == nil {
			continue
		}
		if !capitalization.ItemEligibility(*cat, item).IsEligible() {
			continue
		}
		candidates = append(candidates, GenerationCandidate{
			Item:         item,
			CategoryName: cat.Name,
			Remaining:    item.RemainingToGenerate(),
		})
	}

	return candidates, nil
}

type DiscrepancyFilter struct {
	ProjectID *int `form:"project_id"`
	OrderID   *int `form:"procurement_order_id"`
}

// ListUnresolvedDiscrepancies scopes users without global access to a
// project they belong to.
func (s *ProcurementService) ListUnresolvedDiscrepancies(ctx context.Context, actor models.Actor, filter DiscrepancyFilter) ([]UnresolvedDiscrepancy, error) {
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
	if filter.OrderID != nil {
		conditions.AddCondition("procurement_order_id", *filter.OrderID)
	}

	rows, err := s.r.GetUnresolvedDiscrepancies(ctx, conditions)
	if err != nil {
		return nil, s.rt.Hide("list unresolved discrepancies", err)
	}

	return rows, nil
}
