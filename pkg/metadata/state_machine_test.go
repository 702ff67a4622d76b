package metadata

import (
	"testing"

	custom_error "sitewarehouse/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssetWorkflow(t *testing.T) {
	all := []WorkflowStatus{
		WorkflowDraft, WorkflowPendingVerification, WorkflowPendingAuthorization, WorkflowApproved, WorkflowRejected,
	}

	allowed := map[string]map[WorkflowStatus]WorkflowStatus{
		AssetSubmit:    {WorkflowDraft: WorkflowPendingVerification},
		AssetVerify:    {WorkflowPendingVerification: WorkflowPendingAuthorization},
		AssetAuthorize: {WorkflowPendingAuthorization: WorkflowApproved},
		AssetReject: {
			WorkflowPendingVerification:  WorkflowRejected,
			WorkflowPendingAuthorization: WorkflowRejected,
		},
	}

	for transition, edges := range allowed {
		for _, current := range all {
			t.Run(transition+" from "+string(current), func(t *testing.T) {
				target, err := AssetWorkflow.Guard(transition, 5, current)

				expected, ok := edges[current]
				if ok {
					require.NoError(t, err)
					assert.Equal(t, expected, target)
					return
				}

				var guardErr *custom_error.StateGuardError
				require.ErrorAs(t, err, &guardErr)
				assert.Equal(t, current, target)
				assert.Equal(t, string(current), guardErr.Current)
				assert.Equal(t, 5, guardErr.ID)
			})
		}
	}
}

func TestTransferCancelSources(t *testing.T) {
	tests := []struct {
		status   TransferStatus
		expected bool
	}{
		{TransferPendingVerification, true},
		{TransferPendingApproval, true},
		{TransferApproved, true},
		{TransferInTransit, true},
		{TransferCompleted, false},
		{TransferCanceled, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.expected, TransferWorkflow.Can(TransferCancel, tt.status))
			assert.Equal(t, !tt.expected, tt.status.IsTerminal())
		})
	}
}

func TestTransferWorkflowOrdering(t *testing.T) {
	assert.False(t, TransferWorkflow.Can(TransferDispatch, TransferPendingApproval))
	assert.False(t, TransferWorkflow.Can(TransferReceive, TransferApproved))
	assert.True(t, TransferWorkflow.Can(TransferReceive, TransferInTransit))
}

func TestOrderLifecycleReceipt(t *testing.T) {
	tests := []struct {
		status   OrderStatus
		expected bool
	}{
		{OrderDraft, false},
		{OrderPending, false},
		{OrderApproved, true},
		{OrderScheduledForDelivery, true},
		{OrderInTransit, true},
		{OrderDelivered, true},
		{OrderReceived, false},
		{OrderRejected, false},
		{OrderCanceled, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.expected, OrderLifecycle.Can(OrderConfirmReceipt, tt.status))
		})
	}

	assert.False(t, OrderLifecycle.Can(OrderCancel, OrderReceived))
}

func TestOrderLifecycleInTransitRequiresSchedule(t *testing.T) {
	assert.False(t, OrderLifecycle.Can(OrderMarkInTransit, OrderApproved))
	assert.True(t, OrderLifecycle.Can(OrderMarkInTransit, OrderScheduledForDelivery))

	_, err := OrderLifecycle.Guard(OrderMarkInTransit, 3, OrderApproved)
	assert.Error(t, err)
}

func TestGuardUnknownTransition(t *testing.T) {
	_, err := AssetWorkflow.Guard("teleport", 1, WorkflowDraft)

	assert.EqualError(t, err, `asset: unknown transition "teleport"`)
}

func TestAssetStatusFor(t *testing.T) {
	assert.Equal(t, StatusInUse, AssetStatusFor(TransferPendingVerification))
	assert.Equal(t, StatusInTransit, AssetStatusFor(TransferApproved))
	assert.Equal(t, StatusInTransit, AssetStatusFor(TransferInTransit))
	assert.Equal(t, StatusAvailable, AssetStatusFor(TransferCompleted))
	assert.Equal(t, StatusAvailable, AssetStatusFor(TransferCanceled))
}
