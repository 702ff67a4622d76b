package procurement

import (
	"context"
	"testing"

	"sitewarehouse/internal/requests"
	custom_error "sitewarehouse/pkg/errors"
	"sitewarehouse/pkg/metadata"
	"sitewarehouse/pkg/models"
	"sitewarehouse/pkg/roles"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	officer  = models.Actor{UserID: 11, Role: roles.ProcurementOfficer}
	director = models.Actor{UserID: 12, Role: roles.FinanceDirector}
	engineer = models.Actor{UserID: 13, Role: roles.SiteEngineer}
)

func orderInput() CreateOrderInput {
	return CreateOrderInput{
		VendorID:  4,
		ProjectID: 7,
		Title:     "Cement for level 3",
		Items: []CreateItemInput{
			{CategoryID: capitalCategory.ID, ItemName: "Generator 45kVA", Unit: "unit", Quantity: 2, UnitPrice: decimal.NewFromInt(11000)},
			{CategoryID: expenseCategory.ID, ItemName: "Bond paper", Unit: "ream", Quantity: 10, UnitPrice: decimal.RequireFromString("250.50")},
		},
	}
}

func TestCreateProcurementOrder(t *testing.T) {
	f := newFixture()

	input := orderInput()
	input.Submit = true
	order, err := f.service.CreateProcurementOrder(context.Background(), officer, input)

	require.NoError(t, err)
	assert.Equal(t, "PO-2026-0001", order.PONumber)
	assert.Equal(t, metadata.OrderPending, order.Status)
	assert.Equal(t, metadata.DeliveryPending, order.DeliveryStatus)
	assert.Equal(t, "24505", order.Subtotal.String())
	assert.Equal(t, "2940.6", order.VATAmount.String())
	assert.Equal(t, "27445.6", order.NetTotal.String())
	require.Len(t, order.Items, 2)
	assert.Equal(t, "2505", order.Items[1].Subtotal.String())
	assert.Equal(t, officer.UserID, order.CreatedBy)

	second, err := f.service.CreateProcurementOrder(context.Background(), officer, orderInput())
	require.NoError(t, err)
	assert.Equal(t, "PO-2026-0002", second.PONumber)
	assert.Equal(t, metadata.OrderDraft, second.Status)
}

func TestCreateProcurementOrderDefaultsItemUnit(t *testing.T) {
	f := newFixture()
	input := orderInput()
	input.Items[1].Unit = ""

	order, err := f.service.CreateProcurementOrder(context.Background(), officer, input)

	require.NoError(t, err)
	assert.Equal(t, "unit", order.Items[0].Unit)
	assert.Equal(t, models.DefaultUnit, order.Items[1].Unit)
	assert.Equal(t, models.DefaultUnit, f.repo.stored(order.ID).Items[1].Unit)
}

func TestCreateProcurementOrderValidation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(in *CreateOrderInput)
		field  string
	}{
		{"no items", func(in *CreateOrderInput) { in.Items = nil }, "items"},
		{"zero quantity", func(in *CreateOrderInput) { in.Items[0].Quantity = 0 }, "items[0].quantity"},
		{"negative price", func(in *CreateOrderInput) { in.Items[1].UnitPrice = decimal.NewFromInt(-1) }, "items[1].unit_price"},
		{"missing vendor", func(in *CreateOrderInput) { in.VendorID = 0 }, "vendor_id"},
		{"unknown category", func(in *CreateOrderInput) { in.Items[1].CategoryID = 99 }, "items[1].category_id"},
		{"retroactive without reason", func(in *CreateOrderInput) { in.IsRetroactive = true }, "retroactive_reason"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			input := orderInput()
			tt.modify(&input)

			_, err := f.service.CreateProcurementOrder(context.Background(), officer, input)

			var validationErr *custom_error.ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Contains(t, validationErr.Fields, tt.field)
			assert.Empty(t, f.repo.orders)
		})
	}
}

func TestCreateProcurementOrderPermissions(t *testing.T) {
	f := newFixture()

	_, err := f.service.CreateProcurementOrder(context.Background(), engineer, orderInput())

	var forbidden *custom_error.ForbiddenError
	assert.ErrorAs(t, err, &forbidden)
}

func TestCreateProcurementOrderLinksRequest(t *testing.T) {
	f := newFixture()
	requestID := 31
	f.linker.On("CanBeProcured", mock.Anything, mock.Anything, requestID).
		Return(requests.Eligibility{CanBeProcured: true, RequestID: requestID, ProjectID: 7}, nil).Once()
	f.linker.On("LinkToProcurementOrder", mock.Anything, mock.Anything, requestID, 1).Return(nil).Once()

	input := orderInput()
	input.RequestID = &requestID
	order, err := f.service.CreateProcurementOrder(context.Background(), officer, input)

	require.NoError(t, err)
	assert.Equal(t, &requestID, order.RequestID)
	f.linker.AssertExpectations(t)
}

func TestCreateProcurementOrderRejectsUnprocurableRequest(t *testing.T) {
	tests := []struct {
		name        string
		eligibility requests.Eligibility
		rule        string
	}{
		{"already linked", requests.Eligibility{Reason: "request 31 is already linked to procurement order 2", ProjectID: 7}, "request_not_procurable"},
		{"other project", requests.Eligibility{CanBeProcured: true, ProjectID: 8}, "request_project_mismatch"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			requestID := 31
			f.linker.On("CanBeProcured", mock.Anything, mock.Anything, requestID).Return(tt.eligibility, nil).Once()

			input := orderInput()
			input.RequestID = &requestID
			_, err := f.service.CreateProcurementOrder(context.Background(), officer, input)

			var ruleErr *custom_error.BusinessRuleError
			require.ErrorAs(t, err, &ruleErr)
			assert.Equal(t, tt.rule, ruleErr.Rule)
			assert.Empty(t, f.repo.orders)
			f.linker.AssertNotCalled(t, "LinkToProcurementOrder", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestCreateRetroactiveReceivedOrder(t *testing.T) {
	f := newFixture()

	input := orderInput()
	input.IsRetroactive = true
	input.RetroactiveReason = "Bought during the typhoon shutdown"
	input.RetroactiveStatus = string(metadata.OrderReceived)
	order, err := f.service.CreateProcurementOrder(context.Background(), director, input)

	require.NoError(t, err)
	assert.Equal(t, metadata.OrderReceived, order.Status)
	assert.Equal(t, metadata.DeliveryReceived, order.DeliveryStatus)
	assert.Equal(t, &director.UserID, order.ApprovedBy)
	assert.Equal(t, &director.UserID, order.ReceivedBy)
	for _, item := range order.Items {
		assert.Equal(t, item.Quantity, item.QuantityReceived)
	}
	require.Len(t, f.repo.tracking, 1)
	assert.Equal(t, metadata.DeliveryReceived, f.repo.tracking[0].DeliveryStatus)
}

func TestCreateRetroactiveOrderBeyondPendingNeedsApprover(t *testing.T) {
	f := newFixture()

	input := orderInput()
	input.IsRetroactive = true
	input.RetroactiveReason = "Emergency purchase"
	input.RetroactiveStatus = string(metadata.OrderApproved)
	_, err := f.service.CreateProcurementOrder(context.Background(), officer, input)

	var forbidden *custom_error.ForbiddenError
	assert.ErrorAs(t, err, &forbidden)

	input.RetroactiveStatus = "Shipped"
	_, err = f.service.CreateProcurementOrder(context.Background(), director, input)

	var validationErr *custom_error.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Contains(t, validationErr.Fields, "retroactive_status")
}

func TestOrderApprovalLifecycle(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	order, err := f.service.CreateProcurementOrder(ctx, officer, orderInput())
	require.NoError(t, err)

	_, err = f.service.ApproveProcurementOrder(ctx, director, order.ID)
	var guardErr *custom_error.StateGuardError
	require.ErrorAs(t, err, &guardErr)
	assert.Equal(t, string(metadata.OrderDraft), guardErr.Current)

	order, err = f.service.SubmitProcurementOrder(ctx, officer, order.ID)
	require.NoError(t, err)
	assert.Equal(t, metadata.OrderPending, order.Status)

	_, err = f.service.ApproveProcurementOrder(ctx, officer, order.ID)
	var forbidden *custom_error.ForbiddenError
	assert.ErrorAs(t, err, &forbidden)

	order, err = f.service.ApproveProcurementOrder(ctx, director, order.ID)
	require.NoError(t, err)
	assert.Equal(t, metadata.OrderApproved, order.Status)
	assert.Equal(t, &director.UserID, order.ApprovedBy)
	assert.Equal(t, &fixedNow, order.ApprovedAt)
}

func TestRejectRequiresReason(t *testing.T) {
	f := newFixture()
	order := f.approvedOrder(3)

	_, err := f.service.RejectProcurementOrder(context.Background(), director, order.ID, "  ")
	var validationErr *custom_error.ValidationError
	require.ErrorAs(t, err, &validationErr)

	rejected, err := f.service.RejectProcurementOrder(context.Background(), director, order.ID, "Vendor blacklisted")
	require.NoError(t, err)
	assert.Equal(t, metadata.OrderRejected, rejected.Status)
	assert.Equal(t, "Vendor blacklisted", *rejected.RejectionReason)
}

func TestCancelAfterReceiptIsRejected(t *testing.T) {
	f := newFixture()
	order := f.approvedOrder(3)

	_, err := f.service.ConfirmReceipt(context.Background(), officer, order.ID, ReceiptInput{})
	require.NoError(t, err)

	_, err = f.service.CancelProcurementOrder(context.Background(), officer, order.ID, "")

	var guardErr *custom_error.StateGuardError
	require.ErrorAs(t, err, &guardErr)
	assert.Equal(t, metadata.OrderCancel, guardErr.Transition)
	assert.Equal(t, metadata.OrderReceived, f.repo.stored(order.ID).Status)
}

func TestUpdateProcurementItemRecalculatesTotals(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	order, err := f.service.CreateProcurementOrder(ctx, officer, orderInput())
	require.NoError(t, err)

	quantity := 5
	price := decimal.NewFromInt(12000)
	updated, err := f.service.UpdateProcurementItem(ctx, officer, order.ID, order.Items[0].ID, UpdateItemInput{Quantity: &quantity, UnitPrice: &price})

	require.NoError(t, err)
	stored := f.repo.stored(order.ID)
	assert.Equal(t, 5, stored.Items[0].Quantity)
	assert.Equal(t, "60000", stored.Items[0].Subtotal.String())
	assert.Equal(t, "62505", updated.Subtotal.String())
	assert.True(t, updated.NetTotal.Equal(updated.Subtotal.Add(updated.VATAmount)))
	assert.True(t, stored.NetTotal.Equal(updated.NetTotal))

	_, err = f.service.SubmitProcurementOrder(ctx, officer, order.ID)
	require.NoError(t, err)
	_, err = f.service.ApproveProcurementOrder(ctx, director, order.ID)
	require.NoError(t, err)

	_, err = f.service.UpdateProcurementItem(ctx, officer, order.ID, order.Items[0].ID, UpdateItemInput{Quantity: &quantity})
	var guardErr *custom_error.StateGuardError
	require.ErrorAs(t, err, &guardErr)
	assert.Equal(t, []string{"Draft", "Pending"}, guardErr.Required)
}

func TestGetProcurementOrderNotFound(t *testing.T) {
	f := newFixture()

	_, err := f.service.GetProcurementOrder(context.Background(), officer, 404)

	var notFound *custom_error.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}
