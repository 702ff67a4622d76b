package models

import (
	"time"

	"sitewarehouse/pkg/metadata"
)

type Transfer struct {
	ID                int                     `json:"id" db:"id"`
	AssetID           int                     `json:"asset_id" db:"asset_id"`
	AssetRef          string                  `json:"asset_ref,omitempty" db:"asset_ref"`
	FromProjectID     int                     `json:"from_project_id" db:"from_project_id"`
	ToProjectID       int                     `json:"to_project_id" db:"to_project_id"`
	TransferType      metadata.TransferType   `json:"transfer_type" db:"transfer_type"`
	Reason            *string                 `json:"reason,omitempty" db:"reason"`
	Notes             *string                 `json:"notes,omitempty" db:"notes"`
	TransferDate      time.Time               `json:"transfer_date" db:"transfer_date"`
	ExpectedReturn    *time.Time              `json:"expected_return,omitempty" db:"expected_return"`
	ActualReturn      *time.Time              `json:"actual_return,omitempty" db:"actual_return"`
	Status            metadata.TransferStatus `json:"status" db:"status"`
	ReturnStatus      metadata.ReturnStatus   `json:"return_status" db:"return_status"`
	InitiatedBy       int                     `json:"initiated_by" db:"initiated_by"`
	VerifiedBy        *int                    `json:"verified_by,omitempty" db:"verified_by"`
	VerificationDate  *time.Time              `json:"verification_date,omitempty" db:"verification_date"`
	ApprovedBy        *int                    `json:"approved_by,omitempty" db:"approved_by"`
	ApprovalDate      *time.Time              `json:"approval_date,omitempty" db:"approval_date"`
	DispatchedBy      *int                    `json:"dispatched_by,omitempty" db:"dispatched_by"`
	DispatchDate      *time.Time              `json:"dispatch_date,omitempty" db:"dispatch_date"`
	ReceivedBy        *int                    `json:"received_by,omitempty" db:"received_by"`
	ReceiptDate       *time.Time              `json:"receipt_date,omitempty" db:"receipt_date"`
	CanceledBy        *int                    `json:"canceled_by,omitempty" db:"canceled_by"`
	CanceledAt        *time.Time              `json:"canceled_at,omitempty" db:"canceled_at"`
	CancelReason      *string                 `json:"cancel_reason,omitempty" db:"cancel_reason"`
	ReturnInitiatedBy *int                    `json:"return_initiated_by,omitempty" db:"return_initiated_by"`
	ReturnInitiatedAt *time.Time              `json:"return_initiated_at,omitempty" db:"return_initiated_at"`
	ReturnReceivedBy  *int                    `json:"return_received_by,omitempty" db:"return_received_by"`
	CreatedAt         time.Time               `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time               `json:"updated_at" db:"updated_at"`
}

func (t *Transfer) IsTemporary() bool {
	return t.TransferType == metadata.TransferTemporary
}

func (t *Transfer) Snapshot() map[string]interface{} {
	return map[string]interface{}{
		"asset_id":        t.AssetID,
		"from_project_id": t.FromProjectID,
		"to_project_id":   t.ToProjectID,
		"status":          t.Status,
		"return_status":   t.ReturnStatus,
	}
}

func (t *Transfer) CreateLogView() AuditLog {
	return AuditLog{
		ResourceID:   t.ID,
		ResourceType: "transfers",
	}
}
