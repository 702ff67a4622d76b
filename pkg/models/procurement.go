package models

import (
	"fmt"
	"time"

	"sitewarehouse/pkg/metadata"

	"github.com/shopspring/decimal"
)

type ProcurementOrder struct {
	ID                          int                     `json:"id" db:"id"`
	PONumber                    string                  `json:"po_number" db:"po_number"`
	VendorID                    int                     `json:"vendor_id" db:"vendor_id"`
	ProjectID                   int                     `json:"project_id" db:"project_id"`
	RequestID                   *int                    `json:"request_id,omitempty" db:"request_id"`
	Title                       string                  `json:"title" db:"title"`
	Subtotal                    decimal.Decimal         `json:"subtotal" db:"subtotal"`
	VATRate                     decimal.Decimal         `json:"vat_rate" db:"vat_rate"`
	VATAmount                   decimal.Decimal         `json:"vat_amount" db:"vat_amount"`
	EWTRate                     decimal.Decimal         `json:"ewt_rate" db:"ewt_rate"`
	EWTAmount                   decimal.Decimal         `json:"ewt_amount" db:"ewt_amount"`
	HandlingFee                 decimal.Decimal         `json:"handling_fee" db:"handling_fee"`
	DiscountAmount              decimal.Decimal         `json:"discount_amount" db:"discount_amount"`
	NetTotal                    decimal.Decimal         `json:"net_total" db:"net_total"`
	Status                      metadata.OrderStatus    `json:"status" db:"status"`
	DeliveryStatus              metadata.DeliveryStatus `json:"delivery_status" db:"delivery_status"`
	ScheduledDeliveryDate       *time.Time              `json:"scheduled_delivery_date,omitempty" db:"scheduled_delivery_date"`
	DeliveryMethod              *string                 `json:"delivery_method,omitempty" db:"delivery_method"`
	DeliveryLocation            *string                 `json:"delivery_location,omitempty" db:"delivery_location"`
	TrackingNumber              *string                 `json:"tracking_number,omitempty" db:"tracking_number"`
	ActualDeliveryDate          *time.Time              `json:"actual_delivery_date,omitempty" db:"actual_delivery_date"`
	ReceivedBy                  *int                    `json:"received_by,omitempty" db:"received_by"`
	ReceivedAt                  *time.Time              `json:"received_at,omitempty" db:"received_at"`
	HasDiscrepancy              bool                    `json:"has_discrepancy" db:"has_discrepancy"`
	DiscrepancyType             *string                 `json:"discrepancy_type,omitempty" db:"discrepancy_type"`
	DiscrepancyNotes            *string                 `json:"discrepancy_notes,omitempty" db:"discrepancy_notes"`
	DiscrepancyReportedBy       *int                    `json:"discrepancy_reported_by,omitempty" db:"discrepancy_reported_by"`
	DiscrepancyReportedAt       *time.Time              `json:"discrepancy_reported_at,omitempty" db:"discrepancy_reported_at"`
	DiscrepancyResolvedBy       *int                    `json:"discrepancy_resolved_by,omitempty" db:"discrepancy_resolved_by"`
	DiscrepancyResolvedAt       *time.Time              `json:"discrepancy_resolved_at,omitempty" db:"discrepancy_resolved_at"`
	DiscrepancyResolutionNotes  *string                 `json:"discrepancy_resolution_notes,omitempty" db:"discrepancy_resolution_notes"`
	DiscrepancyResolutionAction *string                 `json:"discrepancy_resolution_action,omitempty" db:"discrepancy_resolution_action"`
	IsRetroactive               bool                    `json:"is_retroactive" db:"is_retroactive"`
	RetroactiveReason           *string                 `json:"retroactive_reason,omitempty" db:"retroactive_reason"`
	CreatedBy                   int                     `json:"created_by" db:"created_by"`
	ApprovedBy                  *int                    `json:"approved_by,omitempty" db:"approved_by"`
	ApprovedAt                  *time.Time              `json:"approved_at,omitempty" db:"approved_at"`
	RejectionReason             *string                 `json:"rejection_reason,omitempty" db:"rejection_reason"`
	CreatedAt                   time.Time               `json:"created_at" db:"created_at"`
	UpdatedAt                   time.Time               `json:"updated_at" db:"updated_at"`
	Items                       []ProcurementItem       `json:"items" db:"-"`
}

// AllItemsSettled reports whether every item is fully received or has a
// resolved discrepancy. Only then may the order-level discrepancy be cleared.
func (o *ProcurementOrder) AllItemsSettled() bool {
	for _, item := range o.Items {
		if !item.IsSettled() {
			return false
		}
	}
	return true
}

func (o *ProcurementOrder) Snapshot() map[string]interface{} {
	return map[string]interface{}{
		"po_number":       o.PONumber,
		"status":          o.Status,
		"delivery_status": o.DeliveryStatus,
		"has_discrepancy": o.HasDiscrepancy,
		"net_total":       o.NetTotal.StringFixed(2),
	}
}

func (o *ProcurementOrder) CreateLogView() AuditLog {
	return AuditLog{
		ResourceID:   o.ID,
		ResourceType: "procurement_orders",
	}
}

type ProcurementItem struct {
	ID                    int             `json:"id" db:"id"`
	ProcurementOrderID    int             `json:"procurement_order_id" db:"procurement_order_id"`
	CategoryID            int             `json:"category_id" db:"category_id"`
	ItemName              string          `json:"item_name" db:"item_name"`
	Description           *string         `json:"description,omitempty" db:"description"`
	Unit                  string          `json:"unit" db:"unit"`
	Quantity              int             `json:"quantity" db:"quantity"`
	QuantityReceived      int             `json:"quantity_received" db:"quantity_received"`
	UnitPrice             decimal.Decimal `json:"unit_price" db:"unit_price"`
	Subtotal              decimal.Decimal `json:"subtotal" db:"subtotal"`
	DiscrepancyNotes      *string         `json:"discrepancy_notes,omitempty" db:"discrepancy_notes"`
	DiscrepancyResolvedAt *time.Time      `json:"discrepancy_resolved_at,omitempty" db:"discrepancy_resolved_at"`
	DiscrepancyResolvedBy *int            `json:"discrepancy_resolved_by,omitempty" db:"discrepancy_resolved_by"`
	ResolutionNotes       *string         `json:"resolution_notes,omitempty" db:"resolution_notes"`
	ResolutionAction      *string         `json:"resolution_action,omitempty" db:"resolution_action"`
	GeneratedQuantity     int             `json:"generated_quantity" db:"generated_quantity"`
}

func (i *ProcurementItem) Shortfall() int {
	if i.QuantityReceived >= i.Quantity {
		return 0
	}
	return i.Quantity - i.QuantityReceived
}

func (i *ProcurementItem) FullyReceived() bool {
	return i.QuantityReceived >= i.Quantity
}

func (i *ProcurementItem) DiscrepancyResolved() bool {
	return i.DiscrepancyResolvedAt != nil
}

func (i *ProcurementItem) HasOpenDiscrepancy() bool {
	return i.DiscrepancyNotes != nil && i.DiscrepancyResolvedAt == nil
}

func (i *ProcurementItem) IsSettled() bool {
	return i.FullyReceived() || i.DiscrepancyResolved()
}

// RemainingToGenerate is the received quantity not yet converted into assets.
func (i *ProcurementItem) RemainingToGenerate() int {
	remaining := i.QuantityReceived - i.GeneratedQuantity
	if remaining < 0 {
		return 0
	}
	return remaining
}

func ShortfallNote(ordered, received int) string {
	return fmt.Sprintf("Ordered %d, received %d (shortfall: %d)", ordered, received, ordered-received)
}

// DeliveryTracking is an append-only record of a delivery event.
type DeliveryTracking struct {
	ID                 int                     `json:"id" db:"id"`
	ProcurementOrderID int                     `json:"procurement_order_id" db:"procurement_order_id"`
	ProcurementItemID  *int                    `json:"procurement_item_id,omitempty" db:"procurement_item_id"`
	EventType          metadata.TrackingEvent  `json:"event_type" db:"event_type"`
	DeliveryStatus     metadata.DeliveryStatus `json:"delivery_status" db:"delivery_status"`
	Notes              *string                 `json:"notes,omitempty" db:"notes"`
	DiscrepancyType    *string                 `json:"discrepancy_type,omitempty" db:"discrepancy_type"`
	ResolutionNotes    *string                 `json:"resolution_notes,omitempty" db:"resolution_notes"`
	ResolvedBy         *int                    `json:"resolved_by,omitempty" db:"resolved_by"`
	ResolvedAt         *time.Time              `json:"resolved_at,omitempty" db:"resolved_at"`
	CreatedBy          int                     `json:"created_by" db:"created_by"`
	CreatedAt          time.Time               `json:"created_at" db:"created_at"`
}
