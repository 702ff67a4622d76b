package procurement

import (
	"context"
	"testing"
	"time"

	custom_error "sitewarehouse/pkg/errors"
	"sitewarehouse/pkg/metadata"
	"sitewarehouse/pkg/models"
	"sitewarehouse/pkg/roles"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var warehouse = models.Actor{UserID: 14, Role: roles.Warehouseman}

func receiveLine(order *models.ProcurementOrder, quantity int) ReceiptInput {
	return ReceiptInput{Items: []ReceiptLine{{ItemID: order.Items[0].ID, QuantityReceived: quantity}}}
}

func TestDeliveryStateMachine(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	order := f.approvedOrder(4)

	_, err := f.service.MarkDelivered(ctx, officer, order.ID, DeliveredInput{})
	var guardErr *custom_error.StateGuardError
	require.ErrorAs(t, err, &guardErr)
	assert.Equal(t, string(metadata.OrderApproved), guardErr.Current)

	scheduled, err := f.service.ScheduleDelivery(ctx, officer, order.ID, ScheduleDeliveryInput{
		Date:     fixedNow.Add(72 * time.Hour),
		Method:   "Vendor truck",
		Location: "Gate 2, Tower B",
	})
	require.NoError(t, err)
	assert.Equal(t, metadata.OrderScheduledForDelivery, scheduled.Status)
	assert.Equal(t, metadata.DeliveryScheduled, scheduled.DeliveryStatus)

	tracking := "LBC-99812"
	inTransit, err := f.service.MarkInTransit(ctx, officer, order.ID, InTransitInput{TrackingNumber: &tracking})
	require.NoError(t, err)
	assert.Equal(t, metadata.DeliveryInTransit, inTransit.DeliveryStatus)
	assert.Equal(t, &tracking, inTransit.TrackingNumber)

	delivered, err := f.service.MarkDelivered(ctx, warehouse, order.ID, DeliveredInput{})
	require.NoError(t, err)
	assert.Equal(t, metadata.OrderDelivered, delivered.Status)
	assert.Equal(t, &fixedNow, delivered.ActualDeliveryDate)

	entries, err := f.service.GetDeliveryTracking(ctx, officer, order.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, metadata.DeliveryScheduled, entries[0].DeliveryStatus)
	assert.Equal(t, metadata.DeliveryInTransit, entries[1].DeliveryStatus)
	assert.Equal(t, metadata.DeliveryDelivered, entries[2].DeliveryStatus)
	for _, entry := range entries {
		assert.Equal(t, metadata.TrackingStatusChange, entry.EventType)
	}
}

func TestScheduleDeliveryValidation(t *testing.T) {
	f := newFixture()
	order := f.approvedOrder(4)

	_, err := f.service.ScheduleDelivery(context.Background(), officer, order.ID, ScheduleDeliveryInput{Method: "Pickup"})

	var validationErr *custom_error.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Contains(t, validationErr.Fields, "scheduled_delivery_date")
	assert.Contains(t, validationErr.Fields, "delivery_location")
	assert.Equal(t, metadata.OrderApproved, f.repo.stored(order.ID).Status)
}

func TestConfirmReceiptWithoutLinesReceivesEverything(t *testing.T) {
	f := newFixture()
	order := f.approvedOrder(4)

	received, err := f.service.ConfirmReceipt(context.Background(), warehouse, order.ID, ReceiptInput{})

	require.NoError(t, err)
	assert.Equal(t, metadata.OrderReceived, received.Status)
	assert.Equal(t, metadata.DeliveryReceived, received.DeliveryStatus)
	assert.False(t, received.HasDiscrepancy)
	assert.Equal(t, 4, f.repo.stored(order.ID).Items[0].QuantityReceived)
	assert.Equal(t, &warehouse.UserID, received.ReceivedBy)

	_, err = f.service.ConfirmReceipt(context.Background(), warehouse, order.ID, ReceiptInput{})
	var guardErr *custom_error.StateGuardError
	require.ErrorAs(t, err, &guardErr)
	assert.Equal(t, string(metadata.OrderReceived), guardErr.Current)
}

func TestConfirmReceiptRejectsInvalidStates(t *testing.T) {
	for _, status := range []metadata.OrderStatus{metadata.OrderDraft, metadata.OrderPending, metadata.OrderRejected, metadata.OrderCanceled} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture()
			order := f.approvedOrder(4)
			f.repo.stored(order.ID).Status = status

			_, err := f.service.ConfirmReceipt(context.Background(), warehouse, order.ID, ReceiptInput{})

			var guardErr *custom_error.StateGuardError
			require.ErrorAs(t, err, &guardErr)
			assert.Equal(t, 0, f.repo.stored(order.ID).Items[0].QuantityReceived)
		})
	}
}

func TestPartialDeliveryBlocksGenerationUntilResolved(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	order := f.approvedOrder(10)

	received, err := f.service.ConfirmReceipt(ctx, warehouse, order.ID, receiveLine(order, 7))
	require.NoError(t, err)

	item := f.repo.stored(order.ID).Items[0]
	assert.Equal(t, metadata.OrderReceived, received.Status)
	assert.Equal(t, metadata.DeliveryPartial, received.DeliveryStatus)
	assert.True(t, received.HasDiscrepancy)
	assert.Equal(t, 7, item.QuantityReceived)
	require.NotNil(t, item.DiscrepancyNotes)
	assert.Equal(t, "Ordered 10, received 7 (shortfall: 3)", *item.DiscrepancyNotes)

	candidates, err := f.service.GetItemsAvailableForAssetGeneration(ctx, officer, order.ID)
	require.NoError(t, err)
	assert.Empty(t, candidates)

	unresolved, err := f.service.ListUnresolvedDiscrepancies(ctx, director, DiscrepancyFilter{})
	require.NoError(t, err)
	require.Len(t, unresolved, 1)
	assert.Equal(t, item.ID, unresolved[0].ProcurementItemID)

	resolved, err := f.service.ResolveItemDiscrepancy(ctx, officer, order.ID, item.ID, ResolveInput{
		Notes:  "Vendor credited the missing units",
		Action: string(metadata.ResolutionMarkComplete),
	})
	require.NoError(t, err)
	assert.False(t, resolved.HasDiscrepancy)
	assert.Equal(t, metadata.DeliveryReceived, resolved.DeliveryStatus)
	assert.Equal(t, metadata.OrderReceived, resolved.Status)
	assert.Equal(t, &officer.UserID, resolved.DiscrepancyResolvedBy)

	item = f.repo.stored(order.ID).Items[0]
	assert.Equal(t, &fixedNow, item.DiscrepancyResolvedAt)
	assert.Equal(t, "mark_complete", *item.ResolutionAction)

	for _, entry := range f.repo.tracking {
		if entry.EventType == metadata.TrackingDiscrepancy {
			assert.NotNil(t, entry.ResolvedAt, "discrepancy record %d left open", entry.ID)
		}
	}

	candidates, err = f.service.GetItemsAvailableForAssetGeneration(ctx, officer, order.ID)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, 7, candidates[0].Remaining)
	assert.Equal(t, capitalCategory.Name, candidates[0].CategoryName)

	f.repo.generated[item.ID] = 7
	candidates, err = f.service.GetItemsAvailableForAssetGeneration(ctx, officer, order.ID)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestRescheduleReopensOrderForRemainder(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	order := f.approvedOrder(10)

	_, err := f.service.ConfirmReceipt(ctx, warehouse, order.ID, receiveLine(order, 7))
	require.NoError(t, err)

	reopened, err := f.service.ResolveItemDiscrepancy(ctx, officer, order.ID, order.Items[0].ID, ResolveInput{
		Notes:  "Vendor ships the rest next week",
		Action: string(metadata.ResolutionRescheduleDelivery),
	})
	require.NoError(t, err)
	assert.Equal(t, metadata.OrderApproved, reopened.Status)
	assert.Equal(t, metadata.DeliveryPending, reopened.DeliveryStatus)
	assert.False(t, reopened.HasDiscrepancy)
	assert.Equal(t, 7, f.repo.stored(order.ID).Items[0].QuantityReceived)

	_, err = f.service.ConfirmReceipt(ctx, warehouse, order.ID, receiveLine(order, 4))
	var ruleErr *custom_error.BusinessRuleError
	require.ErrorAs(t, err, &ruleErr)
	assert.Equal(t, "over_receipt", ruleErr.Rule)

	received, err := f.service.ConfirmReceipt(ctx, warehouse, order.ID, receiveLine(order, 3))
	require.NoError(t, err)
	assert.Equal(t, metadata.OrderReceived, received.Status)
	assert.Equal(t, metadata.DeliveryReceived, received.DeliveryStatus)
	assert.False(t, received.HasDiscrepancy)
	assert.Equal(t, 10, f.repo.stored(order.ID).Items[0].QuantityReceived)
}

func TestShortRedeliveryReopensDiscrepancy(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	order := f.approvedOrder(10)
	itemID := order.Items[0].ID

	_, err := f.service.ConfirmReceipt(ctx, warehouse, order.ID, receiveLine(order, 5))
	require.NoError(t, err)
	_, err = f.service.ResolveItemDiscrepancy(ctx, officer, order.ID, itemID, ResolveInput{
		Notes:  "Second truck scheduled",
		Action: string(metadata.ResolutionRescheduleDelivery),
	})
	require.NoError(t, err)

	received, err := f.service.ConfirmReceipt(ctx, warehouse, order.ID, receiveLine(order, 3))
	require.NoError(t, err)

	item := f.repo.stored(order.ID).Items[0]
	assert.True(t, received.HasDiscrepancy)
	assert.Equal(t, metadata.DeliveryPartial, received.DeliveryStatus)
	assert.Equal(t, "Ordered 10, received 8 (shortfall: 2)", *item.DiscrepancyNotes)
	assert.Nil(t, item.DiscrepancyResolvedAt)
	assert.Nil(t, item.ResolutionAction)
}

func TestDocumentOnlyKeepsDiscrepancyOpen(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	order := f.approvedOrder(10)
	itemID := order.Items[0].ID

	_, err := f.service.ConfirmReceipt(ctx, warehouse, order.ID, receiveLine(order, 6))
	require.NoError(t, err)

	documented, err := f.service.ResolveItemDiscrepancy(ctx, officer, order.ID, itemID, ResolveInput{
		Notes:  "Called vendor, awaiting reply",
		Action: string(metadata.ResolutionDocumentOnly),
	})
	require.NoError(t, err)

	item := f.repo.stored(order.ID).Items[0]
	assert.True(t, documented.HasDiscrepancy)
	assert.Equal(t, metadata.DeliveryPartial, documented.DeliveryStatus)
	assert.Nil(t, item.DiscrepancyResolvedAt)
	assert.Equal(t, "Called vendor, awaiting reply", *item.ResolutionNotes)
	assert.True(t, item.HasOpenDiscrepancy())

	unresolved, err := f.service.ListUnresolvedDiscrepancies(ctx, director, DiscrepancyFilter{})
	require.NoError(t, err)
	require.Len(t, unresolved, 1)
	assert.Equal(t, "Called vendor, awaiting reply", *unresolved[0].ResolutionNotes)

	last := f.repo.tracking[len(f.repo.tracking)-1]
	assert.Equal(t, metadata.TrackingResolution, last.EventType)
}

func TestResolveWithoutOpenDiscrepancy(t *testing.T) {
	f := newFixture()
	order := f.approvedOrder(2)

	_, err := f.service.ConfirmReceipt(context.Background(), warehouse, order.ID, ReceiptInput{})
	require.NoError(t, err)

	_, err = f.service.ResolveItemDiscrepancy(context.Background(), officer, order.ID, order.Items[0].ID, ResolveInput{
		Notes:  "Nothing to do",
		Action: string(metadata.ResolutionMarkComplete),
	})

	var ruleErr *custom_error.BusinessRuleError
	require.ErrorAs(t, err, &ruleErr)
	assert.Equal(t, "no_open_discrepancy", ruleErr.Rule)
}

func TestManualDiscrepancyResolvedAtOrderLevel(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	order := f.approvedOrder(2)

	received, err := f.service.ConfirmReceipt(ctx, warehouse, order.ID, ReceiptInput{
		HasDiscrepancy:   true,
		DiscrepancyType:  "damaged",
		DiscrepancyNotes: "One crate dented",
	})
	require.NoError(t, err)
	assert.Equal(t, metadata.DeliveryDiscrepancyReported, received.DeliveryStatus)
	assert.True(t, received.HasDiscrepancy)
	assert.Equal(t, "damaged", *received.DiscrepancyType)

	resolved, err := f.service.ResolveDiscrepancy(ctx, officer, order.ID, ResolveInput{
		Notes:  "Units tested and working",
		Action: string(metadata.ResolutionMarkComplete),
	})
	require.NoError(t, err)
	assert.False(t, resolved.HasDiscrepancy)
	assert.Equal(t, metadata.DeliveryReceived, resolved.DeliveryStatus)
	assert.Equal(t, "mark_complete", *resolved.DiscrepancyResolutionAction)
}

func TestOrderLevelMarkCompleteResolvesEveryItem(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	order := f.repo.seed(models.ProcurementOrder{
		PONumber:       "PO-2026-0009",
		ProjectID:      7,
		Status:         metadata.OrderDelivered,
		DeliveryStatus: metadata.DeliveryDelivered,
		Items: []models.ProcurementItem{
			{CategoryID: capitalCategory.ID, ItemName: "Generator", Quantity: 4},
			{CategoryID: capitalCategory.ID, ItemName: "Compactor", Quantity: 2},
		},
	})

	_, err := f.service.ConfirmReceipt(ctx, warehouse, order.ID, ReceiptInput{Items: []ReceiptLine{
		{ItemID: order.Items[0].ID, QuantityReceived: 3},
		{ItemID: order.Items[1].ID, QuantityReceived: 1},
	}})
	require.NoError(t, err)

	resolved, err := f.service.ResolveDiscrepancy(ctx, officer, order.ID, ResolveInput{
		Notes:  "Accepting partial delivery",
		Action: string(metadata.ResolutionMarkComplete),
	})
	require.NoError(t, err)
	assert.False(t, resolved.HasDiscrepancy)
	for _, item := range f.repo.stored(order.ID).Items {
		assert.NotNil(t, item.DiscrepancyResolvedAt, item.ItemName)
	}
}

func TestReportDiscrepancyAfterReceipt(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	order := f.approvedOrder(2)
	itemID := order.Items[0].ID

	_, err := f.service.ReportDiscrepancy(ctx, warehouse, order.ID, ReportDiscrepancyInput{Type: "damaged", Notes: "Cracked housing"})
	var guardErr *custom_error.StateGuardError
	require.ErrorAs(t, err, &guardErr)

	_, err = f.service.ConfirmReceipt(ctx, warehouse, order.ID, ReceiptInput{})
	require.NoError(t, err)

	reported, err := f.service.ReportDiscrepancy(ctx, warehouse, order.ID, ReportDiscrepancyInput{
		Type:   "damaged",
		Notes:  "Cracked housing",
		ItemID: &itemID,
	})
	require.NoError(t, err)
	assert.True(t, reported.HasDiscrepancy)
	assert.Equal(t, metadata.DeliveryDiscrepancyReported, reported.DeliveryStatus)
	assert.True(t, f.repo.stored(order.ID).Items[0].HasOpenDiscrepancy())
}

func TestConfirmReceiptValidation(t *testing.T) {
	tests := []struct {
		name  string
		input ReceiptInput
		field string
	}{
		{"manual discrepancy without notes", ReceiptInput{HasDiscrepancy: true, DiscrepancyType: "damaged"}, "discrepancy_notes"},
		{"negative quantity", ReceiptInput{Items: []ReceiptLine{{ItemID: 1, QuantityReceived: -1}}}, "items[0].quantity_received"},
		{"duplicate line", ReceiptInput{Items: []ReceiptLine{{ItemID: 1, QuantityReceived: 1}, {ItemID: 1, QuantityReceived: 1}}}, "items[1].item_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			order := f.approvedOrder(2)

			_, err := f.service.ConfirmReceipt(context.Background(), warehouse, order.ID, tt.input)

			var validationErr *custom_error.ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Contains(t, validationErr.Fields, tt.field)
		})
	}
}

func TestMarkInTransitRequiresScheduledDelivery(t *testing.T) {
	f := newFixture()
	order := f.approvedOrder(4)

	_, err := f.service.MarkInTransit(context.Background(), officer, order.ID, InTransitInput{})

	var guardErr *custom_error.StateGuardError
	require.ErrorAs(t, err, &guardErr)
	assert.Equal(t, string(metadata.OrderApproved), guardErr.Current)
	assert.Equal(t, []string{string(metadata.OrderScheduledForDelivery)}, guardErr.Required)
	assert.Equal(t, metadata.OrderApproved, f.repo.stored(order.ID).Status)
}

// shortTwoLines receives 7 of 10 anchor bolts and 5 of 10 rebar bundles.
func (f *serviceFixture) shortTwoLines(t *testing.T) *models.ProcurementOrder {
	order := f.repo.seed(models.ProcurementOrder{
		PONumber:       "PO-2026-0012",
		ProjectID:      7,
		Status:         metadata.OrderApproved,
		DeliveryStatus: metadata.DeliveryPending,
		Items: []models.ProcurementItem{
			{CategoryID: capitalCategory.ID, ItemName: "Anchor bolts", Quantity: 10},
			{CategoryID: capitalCategory.ID, ItemName: "Rebar bundle", Quantity: 10},
		},
	})

	received, err := f.service.ConfirmReceipt(context.Background(), warehouse, order.ID, ReceiptInput{Items: []ReceiptLine{
		{ItemID: order.Items[0].ID, QuantityReceived: 7},
		{ItemID: order.Items[1].ID, QuantityReceived: 5},
	}})
	require.NoError(t, err)
	require.Equal(t, metadata.DeliveryPartial, received.DeliveryStatus)
	return order
}

func TestRescheduleEachShortItem(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	order := f.shortTwoLines(t)

	first, err := f.service.ResolveItemDiscrepancy(ctx, officer, order.ID, order.Items[0].ID, ResolveInput{
		Notes:  "Bolts follow on the next truck",
		Action: string(metadata.ResolutionRescheduleDelivery),
	})
	require.NoError(t, err)
	assert.Equal(t, metadata.OrderApproved, first.Status)
	assert.Equal(t, metadata.DeliveryPending, first.DeliveryStatus)
	assert.True(t, first.HasDiscrepancy)

	second, err := f.service.ResolveItemDiscrepancy(ctx, officer, order.ID, order.Items[1].ID, ResolveInput{
		Notes:  "Rebar follows on the next truck",
		Action: string(metadata.ResolutionRescheduleDelivery),
	})
	require.NoError(t, err)
	assert.Equal(t, metadata.OrderApproved, second.Status)
	assert.Equal(t, metadata.DeliveryPending, second.DeliveryStatus)
	assert.False(t, second.HasDiscrepancy)

	for _, item := range f.repo.stored(order.ID).Items {
		assert.NotNil(t, item.DiscrepancyResolvedAt, item.ItemName)
		assert.Equal(t, "reschedule_delivery", *item.ResolutionAction, item.ItemName)
	}

	received, err := f.service.ConfirmReceipt(ctx, warehouse, order.ID, ReceiptInput{Items: []ReceiptLine{
		{ItemID: order.Items[0].ID, QuantityReceived: 3},
		{ItemID: order.Items[1].ID, QuantityReceived: 5},
	}})
	require.NoError(t, err)
	assert.Equal(t, metadata.OrderReceived, received.Status)
	assert.Equal(t, metadata.DeliveryReceived, received.DeliveryStatus)
	assert.False(t, received.HasDiscrepancy)
}

func TestPartialResolutionKeepsOrderFlag(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	order := f.shortTwoLines(t)

	resolved, err := f.service.ResolveItemDiscrepancy(ctx, officer, order.ID, order.Items[0].ID, ResolveInput{
		Notes:  "Vendor credited the missing bolts",
		Action: string(metadata.ResolutionMarkComplete),
	})
	require.NoError(t, err)

	assert.True(t, resolved.HasDiscrepancy)
	assert.Equal(t, metadata.DeliveryPartial, resolved.DeliveryStatus)
	assert.Equal(t, metadata.OrderReceived, resolved.Status)
	assert.Nil(t, resolved.DiscrepancyResolvedAt)
	assert.Nil(t, resolved.DiscrepancyResolutionAction)

	unresolved, err := f.service.ListUnresolvedDiscrepancies(ctx, director, DiscrepancyFilter{})
	require.NoError(t, err)
	require.Len(t, unresolved, 1)
	assert.Equal(t, order.Items[1].ID, unresolved[0].ProcurementItemID)
	assert.Equal(t, "Rebar bundle", unresolved[0].ItemName)
}
