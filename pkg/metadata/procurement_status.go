package metadata

import "fmt"

type OrderStatus string

const (
	OrderDraft                OrderStatus = "Draft"
	OrderPending              OrderStatus = "Pending"
	OrderApproved             OrderStatus = "Approved"
	OrderScheduledForDelivery OrderStatus = "Scheduled for Delivery"
	OrderInTransit            OrderStatus = "In Transit"
	OrderDelivered            OrderStatus = "Delivered"
	OrderReceived             OrderStatus = "Received"
	OrderRejected             OrderStatus = "Rejected"
	OrderCanceled             OrderStatus = "Canceled"
)

// DeliveryStatus runs in parallel with OrderStatus at a finer granularity.
type DeliveryStatus string

const (
	DeliveryPending             DeliveryStatus = "Pending"
	DeliveryScheduled           DeliveryStatus = "Scheduled"
	DeliveryInTransit           DeliveryStatus = "In Transit"
	DeliveryDelivered           DeliveryStatus = "Delivered"
	DeliveryPartial             DeliveryStatus = "Partial"
	DeliveryReceived            DeliveryStatus = "Received"
	DeliveryDiscrepancyReported DeliveryStatus = "Discrepancy Reported"
)

const (
	OrderSubmit         = "submit"
	OrderApprove        = "approve"
	OrderReject         = "reject"
	OrderCancel         = "cancel"
	OrderSchedule       = "schedule_delivery"
	OrderMarkInTransit  = "mark_in_transit"
	OrderMarkDelivered  = "mark_delivered"
	OrderConfirmReceipt = "confirm_receipt"
	OrderReopen         = "reschedule_delivery"
)

var preReceipt = []OrderStatus{
	OrderDraft, OrderPending, OrderApproved, OrderScheduledForDelivery, OrderInTransit, OrderDelivered,
}

var OrderLifecycle = NewStateMachine("procurement order",
	Transition[OrderStatus]{Name: OrderSubmit, From: []OrderStatus{OrderDraft}, To: OrderPending},
	Transition[OrderStatus]{Name: OrderApprove, From: []OrderStatus{OrderPending}, To: OrderApproved},
	Transition[OrderStatus]{Name: OrderReject, From: preReceipt, To: OrderRejected},
	Transition[OrderStatus]{Name: OrderCancel, From: preReceipt, To: OrderCanceled},
	Transition[OrderStatus]{Name: OrderSchedule, From: []OrderStatus{OrderApproved}, To: OrderScheduledForDelivery},
	Transition[OrderStatus]{Name: OrderMarkInTransit, From: []OrderStatus{OrderScheduledForDelivery}, To: OrderInTransit},
	Transition[OrderStatus]{Name: OrderMarkDelivered, From: []OrderStatus{OrderScheduledForDelivery, OrderInTransit}, To: OrderDelivered},
	Transition[OrderStatus]{
		Name: OrderConfirmReceipt,
		From: []OrderStatus{OrderApproved, OrderScheduledForDelivery, OrderInTransit, OrderDelivered},
		To:   OrderReceived,
	},
	Transition[OrderStatus]{Name: OrderReopen, From: []OrderStatus{OrderReceived}, To: OrderApproved},
)

// RetroactiveTargets are the statuses a retroactive order may be recorded in.
var RetroactiveTargets = []OrderStatus{OrderDraft, OrderPending, OrderApproved, OrderDelivered, OrderReceived}

func NewRetroactiveTarget(value string) (OrderStatus, error) {
	for _, s := range RetroactiveTargets {
		if string(s) == value {
			return s, nil
		}
	}
	return "", fmt.Errorf("invalid retroactive status: %s", value)
}

// ResolutionAction decides what happens to an order after a discrepancy is resolved.
type ResolutionAction string

const (
	ResolutionRescheduleDelivery ResolutionAction = "reschedule_delivery"
	ResolutionMarkComplete       ResolutionAction = "mark_complete"
	ResolutionDocumentOnly       ResolutionAction = "document_only"
)

func NewResolutionAction(value string) (ResolutionAction, error) {
	action := ResolutionAction(value)
	switch action {
	case ResolutionRescheduleDelivery, ResolutionMarkComplete, ResolutionDocumentOnly:
		return action, nil
	default:
		return "", fmt.Errorf("invalid resolution action: %s", value)
	}
}

// TrackingEvent classifies a delivery tracking record.
type TrackingEvent string

const (
	TrackingStatusChange TrackingEvent = "status_change"
	TrackingDiscrepancy  TrackingEvent = "discrepancy"
	TrackingResolution   TrackingEvent = "resolution"
)
