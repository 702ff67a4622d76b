package procurement

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sitewarehouse/internal/notifications"
	custom_error "sitewarehouse/pkg/errors"
	"sitewarehouse/pkg/metadata"
	"sitewarehouse/pkg/models"
	"sitewarehouse/pkg/roles"
	"sitewarehouse/pkg/validation"

	"github.com/doug-martin/goqu/v9"
	"go.uber.org/zap"
)

const shortfallType = "quantity_shortfall"

type ScheduleDeliveryInput struct {
	Date     time.Time `json:"scheduled_delivery_date" validate:"required"`
	Method   string    `json:"delivery_method" validate:"required"`
	Location string    `json:"delivery_location" validate:"required"`
	Notes    *string   `json:"notes"`
}

func (s *ProcurementService) ScheduleDelivery(ctx context.Context, actor models.Actor, id int, input ScheduleDeliveryInput) (*models.ProcurementOrder, error) {
	if !actor.Role.Can(roles.ManageDelivery) {
		return nil, custom_error.NewForbiddenError("role %s cannot manage deliveries", actor.Role)
	}
	input.Method = strings.TrimSpace(input.Method)
	input.Location = strings.TrimSpace(input.Location)
	if err := validation.Struct(input); err != nil {
		return nil, err
	}

	return s.mutate(ctx, actor, id, metadata.OrderSchedule, func(_ *goqu.TxDatabase, o *models.ProcurementOrder, _ time.Time, c *orderChange) error {
		if err := guard(o, metadata.OrderSchedule); err != nil {
			return err
		}
		o.DeliveryStatus = metadata.DeliveryScheduled
		o.ScheduledDeliveryDate = timePtr(input.Date)
		o.DeliveryMethod = &input.Method
		o.DeliveryLocation = &input.Location
		c.track(statusChange(input.Notes))
		c.emit(notifications.DeliveryScheduled)
		return nil
	})
}

type InTransitInput struct {
	TrackingNumber *string `json:"tracking_number"`
	Notes          *string `json:"notes"`
}

func (s *ProcurementService) MarkInTransit(ctx context.Context, actor models.Actor, id int, input InTransitInput) (*models.ProcurementOrder, error) {
	if !actor.Role.Can(roles.ManageDelivery) {
		return nil, custom_error.NewForbiddenError("role %s cannot manage deliveries", actor.Role)
	}

	return s.mutate(ctx, actor, id, metadata.OrderMarkInTransit, func(_ *goqu.TxDatabase, o *models.ProcurementOrder, _ time.Time, c *orderChange) error {
		if err := guard(o, metadata.OrderMarkInTransit); err != nil {
			return err
		}
		o.DeliveryStatus = metadata.DeliveryInTransit
		if input.TrackingNumber != nil && strings.TrimSpace(*input.TrackingNumber) != "" {
			number := strings.TrimSpace(*input.TrackingNumber)
			o.TrackingNumber = &number
		}
		c.track(statusChange(input.Notes))
		c.emit(notifications.DeliveryInTransit)
		return nil
	})
}

type DeliveredInput struct {
	ActualDeliveryDate *time.Time `json:"actual_delivery_date"`
	Notes              *string    `json:"notes"`
}

func (s *ProcurementService) MarkDelivered(ctx context.Context, actor models.Actor, id int, input DeliveredInput) (*models.ProcurementOrder, error) {
	if !actor.Role.Can(roles.ManageDelivery) && !actor.Role.Can(roles.ReceiveProcurement) {
		return nil, custom_error.NewForbiddenError("role %s cannot manage deliveries", actor.Role)
	}

	return s.mutate(ctx, actor, id, metadata.OrderMarkDelivered, func(_ *goqu.TxDatabase, o *models.ProcurementOrder, now time.Time, c *orderChange) error {
		if err := guard(o, metadata.OrderMarkDelivered); err != nil {
			return err
		}
		o.DeliveryStatus = metadata.DeliveryDelivered
		if input.ActualDeliveryDate != nil {
			o.ActualDeliveryDate = timePtr(*input.ActualDeliveryDate)
		} else {
			o.ActualDeliveryDate = timePtr(now)
		}
		c.track(statusChange(input.Notes))
		c.emit(notifications.DeliveryDelivered)
		return nil
	})
}

type ReceiptLine struct {
	ItemID           int `json:"item_id" validate:"required"`
	QuantityReceived int `json:"quantity_received" validate:"gte=0"`
}

type ReceiptInput struct {
	Items            []ReceiptLine `json:"items" validate:"dive"`
	HasDiscrepancy   bool          `json:"has_discrepancy"`
	DiscrepancyType  string        `json:"discrepancy_type"`
	DiscrepancyNotes string        `json:"discrepancy_notes"`
	Notes            *string       `json:"notes"`
}

func (in ReceiptInput) validate() error {
	if err := validation.Struct(in); err != nil {
		return err
	}

	fields := map[string]string{}
	seen := make(map[int]struct{}, len(in.Items))
	for i, line := range in.Items {
		if _, ok := seen[line.ItemID]; ok {
			fields[fmt.Sprintf("items[%d].item_id", i)] = "is listed more than once"
		}
		seen[line.ItemID] = struct{}{}
	}
	if in.HasDiscrepancy {
		if strings.TrimSpace(in.DiscrepancyType) == "" {
			fields["discrepancy_type"] = "is required when a discrepancy is reported"
		}
		if strings.TrimSpace(in.DiscrepancyNotes) == "" {
			fields["discrepancy_notes"] = "is required when a discrepancy is reported"
		}
	}

	if len(fields) > 0 {
		return custom_error.NewValidationError(fields)
	}
	return nil
}

// ConfirmReceipt records what arrived. Line quantities add to what was
// already received; without lines every item counts as fully received.
// Items still short afterwards get a shortfall note and the order moves to
// Received regardless.
func (s *ProcurementService) ConfirmReceipt(ctx context.Context, actor models.Actor, id int, input ReceiptInput) (*models.ProcurementOrder, error) {
	if !actor.Role.Can(roles.ReceiveProcurement) {
		return nil, custom_error.NewForbiddenError("role %s cannot receive procurement orders", actor.Role)
	}
	if err := input.validate(); err != nil {
		return nil, err
	}

	order, err := s.mutate(ctx, actor, id, metadata.OrderConfirmReceipt, func(_ *goqu.TxDatabase, o *models.ProcurementOrder, now time.Time, c *orderChange) error {
		if err := guard(o, metadata.OrderConfirmReceipt); err != nil {
			return err
		}

		if err := receive(o, input.Items, c); err != nil {
			return err
		}

		var shortfalls []string
		for i := range o.Items {
			item := &o.Items[i]
			if item.FullyReceived() {
				continue
			}
			note := models.ShortfallNote(item.Quantity, item.QuantityReceived)
			item.DiscrepancyNotes = &note
			item.DiscrepancyResolvedAt = nil
			item.DiscrepancyResolvedBy = nil
			item.ResolutionNotes = nil
			item.ResolutionAction = nil
			c.touch(i)

			itemID := item.ID
			kind := shortfallType
			c.track(models.DeliveryTracking{
				ProcurementItemID: &itemID,
				EventType:         metadata.TrackingDiscrepancy,
				DeliveryStatus:    metadata.DeliveryPartial,
				Notes:             &note,
				DiscrepancyType:   &kind,
			})
			shortfalls = append(shortfalls, fmt.Sprintf("%s: %s", item.ItemName, note))
		}

		o.ReceivedBy = &actor.UserID
		o.ReceivedAt = timePtr(now)
		if o.ActualDeliveryDate == nil {
			o.ActualDeliveryDate = timePtr(now)
		}

		switch {
		case input.HasDiscrepancy:
			kind := strings.TrimSpace(input.DiscrepancyType)
			notes := strings.TrimSpace(input.DiscrepancyNotes)
			openDiscrepancy(o, actor, now, kind, notes)
			o.DeliveryStatus = metadata.DeliveryDiscrepancyReported
			c.track(models.DeliveryTracking{EventType: metadata.TrackingDiscrepancy, Notes: &notes, DiscrepancyType: &kind})
		case len(shortfalls) > 0:
			openDiscrepancy(o, actor, now, shortfallType, strings.Join(shortfalls, "; "))
			o.DeliveryStatus = metadata.DeliveryPartial
		default:
			o.HasDiscrepancy = false
			o.DeliveryStatus = metadata.DeliveryReceived
		}

		c.track(statusChange(input.Notes))
		c.emit(notifications.ProcurementReceived)
		if o.HasDiscrepancy {
			c.emit(notifications.DiscrepancyReported)
		}
		c.data = map[string]interface{}{"lines": input.Items, "shortfalls": len(shortfalls)}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.rt.Logger.Info("Procurement order received",
		zap.Int("order_id", order.ID),
		zap.String("delivery_status", string(order.DeliveryStatus)),
		zap.Bool("has_discrepancy", order.HasDiscrepancy),
	)

	return order, nil
}

func receive(o *models.ProcurementOrder, lines []ReceiptLine, c *orderChange) error {
	if len(lines) == 0 {
		for i := range o.Items {
			if o.Items[i].QuantityReceived < o.Items[i].Quantity {
				o.Items[i].QuantityReceived = o.Items[i].Quantity
				c.touch(i)
			}
		}
		return nil
	}

	for n, line := range lines {
		index := itemIndex(o, line.ItemID)
		if index < 0 {
			return custom_error.NewFieldError(fmt.Sprintf("items[%d].item_id", n), "is not part of this order")
		}

		item := &o.Items[index]
		outstanding := item.Quantity - item.QuantityReceived
		if line.QuantityReceived > outstanding {
			return custom_error.NewBusinessRuleError("over_receipt",
				"item %q has %d outstanding units, %d were reported received", item.ItemName, outstanding, line.QuantityReceived)
		}
		item.QuantityReceived += line.QuantityReceived
		c.touch(index)
	}

	return nil
}

// openDiscrepancy flags the order and drops any earlier resolution.
func openDiscrepancy(o *models.ProcurementOrder, actor models.Actor, now time.Time, kind, notes string) {
	o.HasDiscrepancy = true
	o.DiscrepancyType = &kind
	o.DiscrepancyNotes = &notes
	o.DiscrepancyReportedBy = &actor.UserID
	o.DiscrepancyReportedAt = timePtr(now)
	o.DiscrepancyResolvedBy = nil
	o.DiscrepancyResolvedAt = nil
	o.DiscrepancyResolutionNotes = nil
	o.DiscrepancyResolutionAction = nil
}

const reportDiscrepancy = "report_discrepancy"

type ReportDiscrepancyInput struct {
	Type   string `json:"discrepancy_type" validate:"required"`
	Notes  string `json:"notes" validate:"required"`
	ItemID *int   `json:"item_id"`
}

// ReportDiscrepancy records a problem found after delivery, such as damaged
// or wrong goods.
func (s *ProcurementService) ReportDiscrepancy(ctx context.Context, actor models.Actor, id int, input ReportDiscrepancyInput) (*models.ProcurementOrder, error) {
	if !actor.Role.Can(roles.ReceiveProcurement) {
		return nil, custom_error.NewForbiddenError("role %s cannot report discrepancies", actor.Role)
	}
	input.Type = strings.TrimSpace(input.Type)
	input.Notes = strings.TrimSpace(input.Notes)
	if err := validation.Struct(input); err != nil {
		return nil, err
	}

	return s.mutate(ctx, actor, id, reportDiscrepancy, func(_ *goqu.TxDatabase, o *models.ProcurementOrder, now time.Time, c *orderChange) error {
		if o.Status != metadata.OrderDelivered && o.Status != metadata.OrderReceived {
			return &custom_error.StateGuardError{
				Entity:     "procurement order",
				ID:         o.ID,
				Transition: reportDiscrepancy,
				Current:    string(o.Status),
				Required:   []string{string(metadata.OrderDelivered), string(metadata.OrderReceived)},
			}
		}

		entry := models.DeliveryTracking{EventType: metadata.TrackingDiscrepancy, Notes: &input.Notes, DiscrepancyType: &input.Type}
		if input.ItemID != nil {
			index := itemIndex(o, *input.ItemID)
			if index < 0 {
				return custom_error.NewNotFoundError("procurement_item", *input.ItemID)
			}
			item := &o.Items[index]
			item.DiscrepancyNotes = &input.Notes
			item.DiscrepancyResolvedAt = nil
			item.DiscrepancyResolvedBy = nil
			item.ResolutionNotes = nil
			item.ResolutionAction = nil
			c.touch(index)
			entry.ProcurementItemID = input.ItemID
		}

		openDiscrepancy(o, actor, now, input.Type, input.Notes)
		o.DeliveryStatus = metadata.DeliveryDiscrepancyReported
		c.track(entry)
		c.emit(notifications.DiscrepancyReported)
		return nil
	})
}
