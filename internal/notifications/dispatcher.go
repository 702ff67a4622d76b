package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type EventType string

const (
	ProcurementCreated      EventType = "procurement.created"
	ProcurementApproved     EventType = "procurement.approved"
	ProcurementRejected     EventType = "procurement.rejected"
	ProcurementCanceled     EventType = "procurement.canceled"
	DeliveryScheduled       EventType = "procurement.delivery_scheduled"
	DeliveryInTransit       EventType = "procurement.in_transit"
	DeliveryDelivered       EventType = "procurement.delivered"
	ProcurementReceived     EventType = "procurement.received"
	DiscrepancyReported     EventType = "procurement.discrepancy_reported"
	DiscrepancyResolved     EventType = "procurement.discrepancy_resolved"
	AssetSubmitted          EventType = "asset.submitted"
	AssetVerified           EventType = "asset.verified"
	AssetAuthorized         EventType = "asset.authorized"
	AssetRejected           EventType = "asset.rejected"
	AssetsGenerated         EventType = "asset.generated"
	TransferInitiated       EventType = "transfer.initiated"
	TransferVerified        EventType = "transfer.verified"
	TransferApproved        EventType = "transfer.approved"
	TransferDispatched      EventType = "transfer.dispatched"
	TransferCompleted       EventType = "transfer.completed"
	TransferCanceled        EventType = "transfer.canceled"
	TransferReturnInitiated EventType = "transfer.return_initiated"
	TransferReturned        EventType = "transfer.returned"
	TransferReturnOverdue   EventType = "transfer.return_overdue"
)

type Event struct {
	ID          string                 `json:"id"`
	Type        EventType              `json:"type"`
	Aggregate   string                 `json:"aggregate"`
	AggregateID int                    `json:"aggregate_id"`
	ProjectID   int                    `json:"project_id,omitempty"`
	ActorID     int                    `json:"actor_id,omitempty"`
	OccurredAt  time.Time              `json:"occurred_at"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
}

func NewEvent(eventType EventType, aggregate string, aggregateID, projectID, actorID int, payload map[string]interface{}) Event {
	return Event{
		ID:          uuid.NewString(),
		Type:        eventType,
		Aggregate:   aggregate,
		AggregateID: aggregateID,
		ProjectID:   projectID,
		ActorID:     actorID,
		OccurredAt:  time.Now().UTC(),
		Payload:     payload,
	}
}

// Dispatcher resolves recipients and delivers workflow events.
type Dispatcher interface {
	Notify(ctx context.Context, event Event) error
}

// NotifyAfterCommit delivers events once the workflow transaction has
// committed. Failures are logged and never returned to the caller.
func NotifyAfterCommit(ctx context.Context, d Dispatcher, logger *zap.Logger, events ...Event) {
	for _, event := range events {
		if err := d.Notify(ctx, event); err != nil {
			logger.Warn("Failed to dispatch notification",
				zap.String("event_id", event.ID),
				zap.String("type", string(event.Type)),
				zap.String("aggregate", event.Aggregate),
				zap.Int("aggregate_id", event.AggregateID),
				zap.Error(err),
			)
		}
	}
}

// LogDispatcher only logs events. Used when no webhook is configured.
type LogDispatcher struct {
	logger *zap.Logger
}

func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger.Named("notifications")}
}

func (d *LogDispatcher) Notify(_ context.Context, event Event) error {
	d.logger.Info("Workflow event",
		zap.String("event_id", event.ID),
		zap.String("type", string(event.Type)),
		zap.String("aggregate", event.Aggregate),
		zap.Int("aggregate_id", event.AggregateID),
	)
	return nil
}
