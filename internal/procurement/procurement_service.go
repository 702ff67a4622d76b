package procurement

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sitewarehouse/internal/inventory/category"
	"sitewarehouse/internal/notifications"
	"sitewarehouse/internal/requests"
	"sitewarehouse/internal/workflow"
	"sitewarehouse/pkg/auditlog"
	custom_error "sitewarehouse/pkg/errors"
	"sitewarehouse/pkg/metadata"
	"sitewarehouse/pkg/models"
	"sitewarehouse/pkg/roles"
	"sitewarehouse/pkg/validation"

	"github.com/doug-martin/goqu/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const aggregate = "procurement_order"

// Defaults are applied when an order does not carry its own tax rates.
type Defaults struct {
	VATRate decimal.Decimal
	EWTRate decimal.Decimal
}

type ProcurementService struct {
	r          Repository
	categories category.Reader
	requests   requests.Linker
	rt         workflow.Runtime
	defaults   Defaults
	now        func() time.Time
}

func NewProcurementService(r Repository, categories category.Reader, linker requests.Linker, rt workflow.Runtime, defaults Defaults) *ProcurementService {
	rt.Logger = rt.Logger.Named("procurement")
	return &ProcurementService{
		r:          r,
		categories: categories,
		requests:   linker,
		rt:         rt,
		defaults:   defaults,
		now:        time.Now,
	}
}

type CreateItemInput struct {
	CategoryID  int             `json:"category_id" validate:"required"`
	ItemName    string          `json:"item_name" validate:"required"`
	Description *string         `json:"description"`
	Unit        string          `json:"unit"`
	Quantity    int             `json:"quantity" validate:"gt=0"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

type CreateOrderInput struct {
	VendorID          int               `json:"vendor_id" validate:"required"`
	ProjectID         int               `json:"project_id" validate:"required"`
	RequestID         *int              `json:"request_id"`
	Title             string            `json:"title" validate:"required"`
	VATRate           *decimal.Decimal  `json:"vat_rate"`
	EWTRate           *decimal.Decimal  `json:"ewt_rate"`
	HandlingFee       decimal.Decimal   `json:"handling_fee"`
	DiscountAmount    decimal.Decimal   `json:"discount_amount"`
	Submit            bool              `json:"submit"`
	IsRetroactive     bool              `json:"is_retroactive"`
	RetroactiveReason string            `json:"retroactive_reason"`
	RetroactiveStatus string            `json:"retroactive_status"`
	Items             []CreateItemInput `json:"items" validate:"required,min=1,dive"`
}

func (in CreateOrderInput) validate() error {
	if err := validation.Struct(in); err != nil {
		return err
	}

	fields := map[string]string{}
	for i, item := range in.Items {
		if item.UnitPrice.IsNegative() {
			fields[fmt.Sprintf("items[%d].unit_price", i)] = "must not be negative"
		}
	}
	if in.VATRate != nil && in.VATRate.IsNegative() {
		fields["vat_rate"] = "must not be negative"
	}
	if in.EWTRate != nil && in.EWTRate.IsNegative() {
		fields["ewt_rate"] = "must not be negative"
	}
	if in.HandlingFee.IsNegative() {
		fields["handling_fee"] = "must not be negative"
	}
	if in.DiscountAmount.IsNegative() {
		fields["discount_amount"] = "must not be negative"
	}
	if in.IsRetroactive && strings.TrimSpace(in.RetroactiveReason) == "" {
		fields["retroactive_reason"] = "is required for retroactive orders"
	}

	if len(fields) > 0 {
		return custom_error.NewValidationError(fields)
	}
	return nil
}

// initialStatus is Draft or Pending for regular orders. Retroactive orders
// record a purchase that already happened and may start further along.
func (in CreateOrderInput) initialStatus() (metadata.OrderStatus, error) {
	if !in.IsRetroactive {
		if in.Submit {
			return metadata.OrderPending, nil
		}
		return metadata.OrderDraft, nil
	}
	if in.RetroactiveStatus == "" {
		return metadata.OrderDraft, nil
	}

	status, err := metadata.NewRetroactiveTarget(in.RetroactiveStatus)
	if err != nil {
		return "", custom_error.NewFieldError("retroactive_status", err.Error())
	}
	return status, nil
}

func (s *ProcurementService) CreateProcurementOrder(ctx context.Context, actor models.Actor, input CreateOrderInput) (*models.ProcurementOrder, error) {
	if !actor.Role.Can(roles.CreateProcurement) {
		return nil, custom_error.NewForbiddenError("role %s cannot create procurement orders", actor.Role)
	}

	input.Title = strings.TrimSpace(input.Title)
	if err := input.validate(); err != nil {
		return nil, err
	}

	status, err := input.initialStatus()
	if err != nil {
		return nil, err
	}
	if status != metadata.OrderDraft && status != metadata.OrderPending && !actor.Role.Can(roles.ApproveProcurement) {
		return nil, custom_error.NewForbiddenError("role %s cannot record orders as %s", actor.Role, status)
	}

	if err := s.rt.EnsureAccess(ctx, actor, input.ProjectID); err != nil {
		return nil, s.rt.Hide("check project access", err)
	}

	for i, item := range input.Items {
		cat, err := s.categories.GetCategory(ctx, nil, item.CategoryID)
		if err != nil {
			return nil, s.rt.Hide("load category", err)
		}
		if cat == nil {
			return nil, custom_error.NewFieldError(fmt.Sprintf("items[%d].category_id", i), "does not exist")
		}
	}

	now := s.now()
	order := s.newOrder(actor, input, status, now)

	var created *models.ProcurementOrder
	err = s.rt.Run(ctx, workflow.Step{Aggregate: aggregate, Transition: "create"}, func(tx *goqu.TxDatabase) error {
		if input.RequestID != nil {
			eligibility, err := s.requests.CanBeProcured(ctx, tx, *input.RequestID)
			if err != nil {
				return err
			}
			if !eligibility.CanBeProcured {
				return custom_error.NewBusinessRuleError("request_not_procurable", "%s", eligibility.Reason)
			}
			if eligibility.ProjectID != input.ProjectID {
				return custom_error.NewBusinessRuleError("request_project_mismatch",
					"request %d belongs to project %d, not %d", *input.RequestID, eligibility.ProjectID, input.ProjectID)
			}
		}

		seq, err := s.r.NextPOSequence(ctx, tx, now.Year())
		if err != nil {
			return err
		}
		order.PONumber = metadata.NewPONumber(now, seq).String()

		if err := s.r.PersistOrder(ctx, tx, order); err != nil {
			return err
		}

		if input.RequestID != nil {
			if err := s.requests.LinkToProcurementOrder(ctx, tx, *input.RequestID, order.ID); err != nil {
				return err
			}
		}

		if order.DeliveryStatus != metadata.DeliveryPending {
			notes := "recorded retroactively"
			if err := s.r.AppendTracking(ctx, tx, &models.DeliveryTracking{
				ProcurementOrderID: order.ID,
				EventType:          metadata.TrackingStatusChange,
				DeliveryStatus:     order.DeliveryStatus,
				Notes:              &notes,
				CreatedBy:          actor.UserID,
			}); err != nil {
				return err
			}
		}

		created, err = s.r.GetOrder(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		if created == nil {
			return custom_error.NewNotFoundError(aggregate, order.ID)
		}

		return s.rt.Record(ctx, tx, actor, "create", created, auditlog.Change{
			After: created.Snapshot(),
			Data:  map[string]interface{}{"request_id": input.RequestID, "is_retroactive": input.IsRetroactive},
		})
	})
	if err != nil {
		return nil, err
	}

	s.rt.Logger.Info("Procurement order created",
		zap.Int("order_id", created.ID),
		zap.String("po_number", created.PONumber),
		zap.String("status", string(created.Status)),
	)

	if created.Status == metadata.OrderPending {
		s.rt.Notify(ctx, s.event(notifications.ProcurementCreated, created, actor))
	}

	return created, nil
}

func (s *ProcurementService) newOrder(actor models.Actor, input CreateOrderInput, status metadata.OrderStatus, now time.Time) *models.ProcurementOrder {
	order := &models.ProcurementOrder{
		VendorID:       input.VendorID,
		ProjectID:      input.ProjectID,
		RequestID:      input.RequestID,
		Title:          input.Title,
		VATRate:        s.defaults.VATRate,
		EWTRate:        s.defaults.EWTRate,
		HandlingFee:    input.HandlingFee,
		DiscountAmount: input.DiscountAmount,
		Status:         status,
		DeliveryStatus: metadata.DeliveryPending,
		IsRetroactive:  input.IsRetroactive,
		CreatedBy:      actor.UserID,
	}
	if input.VATRate != nil {
		order.VATRate = *input.VATRate
	}
	if input.EWTRate != nil {
		order.EWTRate = *input.EWTRate
	}
	if input.IsRetroactive {
		reason := strings.TrimSpace(input.RetroactiveReason)
		order.RetroactiveReason = &reason
	}

	for _, item := range input.Items {
		order.Items = append(order.Items, models.ProcurementItem{
			CategoryID:  item.CategoryID,
			ItemName:    strings.TrimSpace(item.ItemName),
			Description: item.Description,
			Unit:        models.UnitOrDefault(item.Unit),
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}
	applyTotals(order)

	switch status {
	case metadata.OrderApproved, metadata.OrderDelivered, metadata.OrderReceived:
		order.ApprovedBy = &actor.UserID
		order.ApprovedAt = timePtr(now)
	}
	switch status {
	case metadata.OrderDelivered:
		order.DeliveryStatus = metadata.DeliveryDelivered
		order.ActualDeliveryDate = timePtr(now)
	case metadata.OrderReceived:
		order.DeliveryStatus = metadata.DeliveryReceived
		order.ActualDeliveryDate = timePtr(now)
		order.ReceivedBy = &actor.UserID
		order.ReceivedAt = timePtr(now)
		for i := range order.Items {
			order.Items[i].QuantityReceived = order.Items[i].Quantity
		}
	}

	return order
}

func (s *ProcurementService) event(eventType notifications.EventType, order *models.ProcurementOrder, actor models.Actor) notifications.Event {
	return notifications.NewEvent(eventType, aggregate, order.ID, order.ProjectID, actor.UserID, map[string]interface{}{
		"po_number":       order.PONumber,
		"status":          order.Status,
		"delivery_status": order.DeliveryStatus,
	})
}

// orderChange collects what a transition touched besides the order row.
type orderChange struct {
	items    map[int]struct{}
	tracking []models.DeliveryTracking
	events   []notifications.EventType
	data     map[string]interface{}
}

func (c *orderChange) touch(index int) {
	c.items[index] = struct{}{}
}

func (c *orderChange) track(entry models.DeliveryTracking) {
	c.tracking = append(c.tracking, entry)
}

func (c *orderChange) emit(events ...notifications.EventType) {
	c.events = append(c.events, events...)
}

type applyFunc func(tx *goqu.TxDatabase, order *models.ProcurementOrder, now time.Time, c *orderChange) error

// mutate runs one transition on the locked order. apply guards and mutates
// the order, the touched items and tracking rows are then written and the
// change is audited in the same transaction.
func (s *ProcurementService) mutate(ctx context.Context, actor models.Actor, id int, transition string, apply applyFunc) (*models.ProcurementOrder, error) {
	var (
		order  *models.ProcurementOrder
		events []notifications.EventType
	)

	err := s.rt.Run(ctx, workflow.Step{Aggregate: aggregate, ID: id, Transition: transition}, func(tx *goqu.TxDatabase) error {
		var err error
		order, err = s.r.LockOrder(ctx, tx, id)
		if err != nil {
			return err
		}
		if order == nil {
			return custom_error.NewNotFoundError(aggregate, id)
		}
		if err := s.rt.EnsureAccess(ctx, actor, order.ProjectID); err != nil {
			return err
		}

		before := order.Snapshot()
		c := &orderChange{items: map[int]struct{}{}}
		if err := apply(tx, order, s.now(), c); err != nil {
			return err
		}

		for i := range order.Items {
			if _, ok := c.items[i]; !ok {
				continue
			}
			if err := s.r.UpdateItem(ctx, tx, &order.Items[i]); err != nil {
				return err
			}
		}
		if err := s.r.UpdateOrder(ctx, tx, order); err != nil {
			return err
		}
		for i := range c.tracking {
			entry := c.tracking[i]
			entry.ProcurementOrderID = order.ID
			entry.CreatedBy = actor.UserID
			if entry.DeliveryStatus == "" {
				entry.DeliveryStatus = order.DeliveryStatus
			}
			if err := s.r.AppendTracking(ctx, tx, &entry); err != nil {
				return err
			}
		}

		events = c.events
		return s.rt.Record(ctx, tx, actor, transition, order, auditlog.Change{
			Before: before,
			After:  order.Snapshot(),
			Data:   c.data,
		})
	})
	if err != nil {
		return nil, err
	}

	notices := make([]notifications.Event, 0, len(events))
	for _, e := range events {
		notices = append(notices, s.event(e, order, actor))
	}
	s.rt.Notify(ctx, notices...)

	return order, nil
}

func guard(order *models.ProcurementOrder, transition string) error {
	next, err := metadata.OrderLifecycle.Guard(transition, order.ID, order.Status)
	if err != nil {
		return err
	}
	order.Status = next
	return nil
}

func statusChange(notes *string) models.DeliveryTracking {
	return models.DeliveryTracking{EventType: metadata.TrackingStatusChange, Notes: notes}
}

func (s *ProcurementService) SubmitProcurementOrder(ctx context.Context, actor models.Actor, id int) (*models.ProcurementOrder, error) {
	if !actor.Role.Can(roles.CreateProcurement) {
		return nil, custom_error.NewForbiddenError("role %s cannot submit procurement orders", actor.Role)
	}

	return s.mutate(ctx, actor, id, metadata.OrderSubmit, func(_ *goqu.TxDatabase, o *models.ProcurementOrder, _ time.Time, c *orderChange) error {
		if err := guard(o, metadata.OrderSubmit); err != nil {
			return err
		}
		c.emit(notifications.ProcurementCreated)
		return nil
	})
}

func (s *ProcurementService) ApproveProcurementOrder(ctx context.Context, actor models.Actor, id int) (*models.ProcurementOrder, error) {
	if !actor.Role.Can(roles.ApproveProcurement) {
		return nil, custom_error.NewForbiddenError("role %s cannot approve procurement orders", actor.Role)
	}

	return s.mutate(ctx, actor, id, metadata.OrderApprove, func(_ *goqu.TxDatabase, o *models.ProcurementOrder, now time.Time, c *orderChange) error {
		if err := guard(o, metadata.OrderApprove); err != nil {
			return err
		}
		o.ApprovedBy = &actor.UserID
		o.ApprovedAt = timePtr(now)
		c.emit(notifications.ProcurementApproved)
		return nil
	})
}

func (s *ProcurementService) RejectProcurementOrder(ctx context.Context, actor models.Actor, id int, reason string) (*models.ProcurementOrder, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, custom_error.NewFieldError("reason", "is required")
	}
	if !actor.Role.Can(roles.ApproveProcurement) {
		return nil, custom_error.NewForbiddenError("role %s cannot reject procurement orders", actor.Role)
	}

	return s.mutate(ctx, actor, id, metadata.OrderReject, func(_ *goqu.TxDatabase, o *models.ProcurementOrder, _ time.Time, c *orderChange) error {
		if err := guard(o, metadata.OrderReject); err != nil {
			return err
		}
		o.RejectionReason = &reason
		c.data = map[string]interface{}{"reason": reason}
		c.emit(notifications.ProcurementRejected)
		return nil
	})
}

// CancelProcurementOrder is allowed until the goods are received.
func (s *ProcurementService) CancelProcurementOrder(ctx context.Context, actor models.Actor, id int, reason string) (*models.ProcurementOrder, error) {
	if !actor.Role.Can(roles.CreateProcurement) && !actor.Role.Can(roles.ApproveProcurement) {
		return nil, custom_error.NewForbiddenError("role %s cannot cancel procurement orders", actor.Role)
	}

	return s.mutate(ctx, actor, id, metadata.OrderCancel, func(_ *goqu.TxDatabase, o *models.ProcurementOrder, _ time.Time, c *orderChange) error {
		if err := guard(o, metadata.OrderCancel); err != nil {
			return err
		}
		if reason = strings.TrimSpace(reason); reason != "" {
			c.data = map[string]interface{}{"reason": reason}
		}
		c.emit(notifications.ProcurementCanceled)
		return nil
	})
}

const updateItems = "update_items"

var editable = []metadata.OrderStatus{metadata.OrderDraft, metadata.OrderPending}

type UpdateItemInput struct {
	Quantity  *int             `json:"quantity" validate:"omitempty,gt=0"`
	UnitPrice *decimal.Decimal `json:"unit_price"`
}

// UpdateProcurementItem changes quantity or price while the order is still
// editable and recalculates the totals.
func (s *ProcurementService) UpdateProcurementItem(ctx context.Context, actor models.Actor, orderID, itemID int, input UpdateItemInput) (*models.ProcurementOrder, error) {
	if !actor.Role.Can(roles.CreateProcurement) {
		return nil, custom_error.NewForbiddenError("role %s cannot edit procurement orders", actor.Role)
	}
	if err := validation.Struct(input); err != nil {
		return nil, err
	}
	if input.UnitPrice != nil && input.UnitPrice.IsNegative() {
		return nil, custom_error.NewFieldError("unit_price", "must not be negative")
	}

	return s.mutate(ctx, actor, orderID, updateItems, func(_ *goqu.TxDatabase, o *models.ProcurementOrder, _ time.Time, c *orderChange) error {
		if o.Status != metadata.OrderDraft && o.Status != metadata.OrderPending {
			required := make([]string, 0, len(editable))
			for _, st := range editable {
				required = append(required, string(st))
			}
			return &custom_error.StateGuardError{
				Entity:     "procurement order",
				ID:         o.ID,
				Transition: updateItems,
				Current:    string(o.Status),
				Required:   required,
			}
		}

		index := itemIndex(o, itemID)
		if index < 0 {
			return custom_error.NewNotFoundError("procurement_item", itemID)
		}

		item := &o.Items[index]
		if input.Quantity != nil {
			item.Quantity = *input.Quantity
		}
		if input.UnitPrice != nil {
			item.UnitPrice = *input.UnitPrice
		}
		applyTotals(o)
		c.touch(index)
		c.data = map[string]interface{}{"item_id": itemID, "quantity": item.Quantity, "unit_price": item.UnitPrice.StringFixed(2)}
		return nil
	})
}

// RecalculateOrderTotals rewrites every derived money column from the items.
func (s *ProcurementService) RecalculateOrderTotals(ctx context.Context, actor models.Actor, orderID int) (*models.ProcurementOrder, error) {
	if !actor.Role.Can(roles.CreateProcurement) {
		return nil, custom_error.NewForbiddenError("role %s cannot edit procurement orders", actor.Role)
	}

	return s.mutate(ctx, actor, orderID, "recalculate_totals", func(_ *goqu.TxDatabase, o *models.ProcurementOrder, _ time.Time, c *orderChange) error {
		applyTotals(o)
		for i := range o.Items {
			c.touch(i)
		}
		return nil
	})
}

func itemIndex(order *models.ProcurementOrder, itemID int) int {
	for i := range order.Items {
		if order.Items[i].ID == itemID {
			return i
		}
	}
	return -1
}

func (s *ProcurementService) GetProcurementOrder(ctx context.Context, actor models.Actor, id int) (*models.ProcurementOrder, error) {
	order, err := s.r.GetOrder(ctx, nil, id)
	if err != nil {
		return nil, s.rt.Hide("load procurement order", err)
	}
	if order == nil {
		return nil, custom_error.NewNotFoundError(aggregate, id)
	}
	if err := s.rt.EnsureAccess(ctx, actor, order.ProjectID); err != nil {
		return nil, s.rt.Hide("check project access", err)
	}

	return order, nil
}

func (s *ProcurementService) GetDeliveryTracking(ctx context.Context, actor models.Actor, id int) ([]models.DeliveryTracking, error) {
	if _, err := s.GetProcurementOrder(ctx, actor, id); err != nil {
		return nil, err
	}

	entries, err := s.r.GetTracking(ctx, id)
	if err != nil {
		return nil, s.rt.Hide("load delivery tracking", err)
	}

	return entries, nil
}
