package models

import (
	"strings"
	"time"

	custom_error "sitewarehouse/pkg/errors"
	"sitewarehouse/pkg/metadata"

	"github.com/shopspring/decimal"
)

// DefaultUnit is the unit of measure used when none is given.
const DefaultUnit = "pcs"

func UnitOrDefault(unit string) string {
	unit = strings.TrimSpace(unit)
	if unit == "" {
		return DefaultUnit
	}
	return unit
}

type Asset struct {
	ID                 int                     `json:"id"`
	Ref                string                  `json:"ref"`
	Name               string                  `json:"name"`
	Description        *string                 `json:"description,omitempty"`
	Category           Category                `json:"category"`
	ProjectID          int                     `json:"project_id"`
	AcquiredDate       time.Time               `json:"acquired_date"`
	AcquisitionCost    decimal.Decimal         `json:"acquisition_cost"`
	UnitCost           decimal.Decimal         `json:"unit_cost"`
	Quantity           int                     `json:"quantity"`
	AvailableQuantity  int                     `json:"available_quantity"`
	Unit               string                  `json:"unit"`
	Status             metadata.Status         `json:"status"`
	WorkflowStatus     metadata.WorkflowStatus `json:"workflow_status"`
	ProcurementOrderID *int                    `json:"procurement_order_id,omitempty"`
	ProcurementItemID  *int                    `json:"procurement_item_id,omitempty"`
	Disciplines        []string                `json:"disciplines"`
	IsLegacy           bool                    `json:"is_legacy"`
	CreatedBy          int                     `json:"created_by"`
	MadeBy             *int                    `json:"made_by,omitempty"`
	MadeAt             *time.Time              `json:"made_at,omitempty"`
	VerifiedBy         *int                    `json:"verified_by,omitempty"`
	VerificationDate   *time.Time              `json:"verification_date,omitempty"`
	AuthorizedBy       *int                    `json:"authorized_by,omitempty"`
	AuthorizationDate  *time.Time              `json:"authorization_date,omitempty"`
	RejectedBy         *int                    `json:"rejected_by,omitempty"`
	RejectedAt         *time.Time              `json:"rejected_at,omitempty"`
	RejectionReason    *string                 `json:"rejection_reason,omitempty"`
	CreatedAt          time.Time               `json:"created_at"`
	UpdatedAt          time.Time               `json:"updated_at"`
}

type FlatAssetRecord struct {
	ID                      int             `db:"asset_id"`
	Ref                     string          `db:"ref"`
	Name                    string          `db:"name"`
	Description             *string         `db:"description"`
	ProjectID               int             `db:"project_id"`
	AcquiredDate            time.Time       `db:"acquired_date"`
	AcquisitionCost         decimal.Decimal `db:"acquisition_cost"`
	UnitCost                decimal.Decimal `db:"unit_cost"`
	Quantity                int             `db:"quantity"`
	AvailableQuantity       int             `db:"available_quantity"`
	Unit                    string          `db:"unit"`
	Status                  string          `db:"status"`
	WorkflowStatus          string          `db:"workflow_status"`
	ProcurementOrderID      *int            `db:"procurement_order_id"`
	ProcurementItemID       *int            `db:"procurement_item_id"`
	Disciplines             string          `db:"disciplines"`
	IsLegacy                bool            `db:"is_legacy"`
	CreatedBy               int             `db:"created_by"`
	MadeBy                  *int            `db:"made_by"`
	MadeAt                  *time.Time      `db:"made_at"`
	VerifiedBy              *int            `db:"verified_by"`
	VerificationDate        *time.Time      `db:"verification_date"`
	AuthorizedBy            *int            `db:"authorized_by"`
	AuthorizationDate       *time.Time      `db:"authorization_date"`
	RejectedBy              *int            `db:"rejected_by"`
	RejectedAt              *time.Time      `db:"rejected_at"`
	RejectionReason         *string         `db:"rejection_reason"`
	CreatedAt               time.Time       `db:"created_at"`
	UpdatedAt               time.Time       `db:"updated_at"`
	CategoryID              int             `db:"category_id"`
	CategoryName            string          `db:"category_name"`
	CategoryCode            string          `db:"category_code"`
	CategoryAssetType       string          `db:"category_asset_type"`
	CategoryIsConsumable    bool            `db:"category_is_consumable"`
	CategoryGeneratesAssets bool            `db:"category_generates_assets"`
	CategoryThreshold       decimal.Decimal `db:"category_capitalization_threshold"`
	CategoryAutoExpense     bool            `db:"category_auto_expense_below_threshold"`
}

func (fa *FlatAssetRecord) TransformToAsset() Asset {
	return Asset{
		ID:                 fa.ID,
		Ref:                fa.Ref,
		Name:               fa.Name,
		Description:        fa.Description,
		ProjectID:          fa.ProjectID,
		AcquiredDate:       fa.AcquiredDate,
		AcquisitionCost:    fa.AcquisitionCost,
		UnitCost:           fa.UnitCost,
		Quantity:           fa.Quantity,
		AvailableQuantity:  fa.AvailableQuantity,
		Unit:               fa.Unit,
		Status:             metadata.Status(fa.Status),
		WorkflowStatus:     metadata.WorkflowStatus(fa.WorkflowStatus),
		ProcurementOrderID: fa.ProcurementOrderID,
		ProcurementItemID:  fa.ProcurementItemID,
		Disciplines:        metadata.SplitDisciplines(fa.Disciplines),
		IsLegacy:           fa.IsLegacy,
		CreatedBy:          fa.CreatedBy,
		MadeBy:             fa.MadeBy,
		MadeAt:             fa.MadeAt,
		VerifiedBy:         fa.VerifiedBy,
		VerificationDate:   fa.VerificationDate,
		AuthorizedBy:       fa.AuthorizedBy,
		AuthorizationDate:  fa.AuthorizationDate,
		RejectedBy:         fa.RejectedBy,
		RejectedAt:         fa.RejectedAt,
		RejectionReason:    fa.RejectionReason,
		CreatedAt:          fa.CreatedAt,
		UpdatedAt:          fa.UpdatedAt,
		Category: Category{
			ID:                        fa.CategoryID,
			Name:                      fa.CategoryName,
			Code:                      fa.CategoryCode,
			AssetType:                 AssetType(fa.CategoryAssetType),
			IsConsumable:              fa.CategoryIsConsumable,
			GeneratesAssets:           fa.CategoryGeneratesAssets,
			CapitalizationThreshold:   fa.CategoryThreshold,
			AutoExpenseBelowThreshold: fa.CategoryAutoExpense,
		},
	}
}

func (a *Asset) TracksQuantity() bool {
	return a.Category.TracksQuantity()
}

// ApplyQuantity sets quantity and available quantity for a new record.
// Discrete assets are always a single unit whatever was requested.
func (a *Asset) ApplyQuantity(requested int) {
	if !a.TracksQuantity() {
		a.Quantity = 1
		a.AvailableQuantity = 1
		return
	}

	if requested < 1 {
		requested = 1
	}
	a.Quantity = requested
	a.AvailableQuantity = requested
}

// Consume takes n units out of the available pool.
func (a *Asset) Consume(n int) error {
	if err := a.checkLedger(n); err != nil {
		return err
	}

	if n > a.AvailableQuantity {
		return custom_error.NewBusinessRuleError(
			"insufficient_quantity",
			"cannot consume %d of asset %s, only %d of %d available",
			n, a.Ref, a.AvailableQuantity, a.Quantity,
		)
	}

	a.AvailableQuantity -= n
	return nil
}

// Restore returns up to n units to the pool, clamped at the original total,
// and reports how many were actually restored.
func (a *Asset) Restore(n int) (int, error) {
	if err := a.checkLedger(n); err != nil {
		return 0, err
	}

	restored := n
	if a.AvailableQuantity+n > a.Quantity {
		restored = a.Quantity - a.AvailableQuantity
	}

	a.AvailableQuantity += restored
	return restored, nil
}

// TopUp grows a pooled asset by n units, all of them available.
func (a *Asset) TopUp(n int) error {
	if err := a.checkLedger(n); err != nil {
		return err
	}

	a.Quantity += n
	a.AvailableQuantity += n
	return nil
}

func (a *Asset) checkLedger(n int) error {
	if !a.TracksQuantity() {
		return custom_error.NewBusinessRuleError(
			"quantity_not_tracked",
			"asset %s belongs to category %s which is not quantity tracked",
			a.Ref, a.Category.Name,
		)
	}
	if n < 1 {
		return custom_error.NewFieldError("quantity", "must be at least 1")
	}
	return nil
}

// Snapshot is the audit view of the mutable parts of an asset.
func (a *Asset) Snapshot() map[string]interface{} {
	return map[string]interface{}{
		"ref":                a.Ref,
		"project_id":         a.ProjectID,
		"status":             a.Status,
		"workflow_status":    a.WorkflowStatus,
		"quantity":           a.Quantity,
		"available_quantity": a.AvailableQuantity,
	}
}

func (a *Asset) CreateLogView() AuditLog {
	return AuditLog{
		ResourceID:   a.ID,
		ResourceType: "assets",
	}
}
