package metadata

import "fmt"

type TransferStatus string

const (
	TransferPendingVerification TransferStatus = "Pending Verification"
	TransferPendingApproval     TransferStatus = "Pending Approval"
	TransferApproved            TransferStatus = "Approved"
	TransferInTransit           TransferStatus = "In Transit"
	TransferCompleted           TransferStatus = "Completed"
	TransferCanceled            TransferStatus = "Canceled"
)

// IsTerminal reports whether no further outbound transition is possible.
func (s TransferStatus) IsTerminal() bool {
	return s == TransferCompleted || s == TransferCanceled
}

type TransferType string

const (
	TransferTemporary TransferType = "temporary"
	TransferPermanent TransferType = "permanent"
)

func NewTransferType(value string) (TransferType, error) {
	t := TransferType(value)
	if t != TransferTemporary && t != TransferPermanent {
		return "", fmt.Errorf("invalid transfer type: %s", value)
	}
	return t, nil
}

type ReturnStatus string

const (
	ReturnNotReturned     ReturnStatus = "not_returned"
	ReturnInReturnTransit ReturnStatus = "in_return_transit"
	ReturnReturned        ReturnStatus = "returned"
)

const (
	TransferVerify         = "verify"
	TransferApprove        = "approve"
	TransferDispatch       = "dispatch"
	TransferReceive        = "receive"
	TransferCancel         = "cancel"
	TransferInitiateReturn = "initiate_return"
	TransferReceiveReturn  = "receive_return"
)

var TransferWorkflow = NewStateMachine("transfer",
	Transition[TransferStatus]{Name: TransferVerify, From: []TransferStatus{TransferPendingVerification}, To: TransferPendingApproval},
	Transition[TransferStatus]{Name: TransferApprove, From: []TransferStatus{TransferPendingApproval}, To: TransferApproved},
	Transition[TransferStatus]{Name: TransferDispatch, From: []TransferStatus{TransferApproved}, To: TransferInTransit},
	Transition[TransferStatus]{Name: TransferReceive, From: []TransferStatus{TransferInTransit}, To: TransferCompleted},
	Transition[TransferStatus]{
		Name: TransferCancel,
		From: []TransferStatus{TransferPendingVerification, TransferPendingApproval, TransferApproved, TransferInTransit},
		To:   TransferCanceled,
	},
)

var ReturnWorkflow = NewStateMachine("transfer return",
	Transition[ReturnStatus]{Name: TransferInitiateReturn, From: []ReturnStatus{ReturnNotReturned}, To: ReturnInReturnTransit},
	Transition[ReturnStatus]{Name: TransferReceiveReturn, From: []ReturnStatus{ReturnInReturnTransit}, To: ReturnReturned},
)

// AssetStatusFor is the asset status that mirrors a transfer stage.
func AssetStatusFor(s TransferStatus) Status {
	switch s {
	case TransferPendingVerification, TransferPendingApproval:
		return StatusInUse
	case TransferApproved, TransferInTransit:
		return StatusInTransit
	default:
		return StatusAvailable
	}
}
