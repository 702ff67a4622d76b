package models

import (
	"github.com/shopspring/decimal"
)

type AssetType string

const (
	AssetTypeCapital    AssetType = "capital"
	AssetTypeInventory  AssetType = "inventory"
	AssetTypeConsumable AssetType = "consumable"
)

func (t AssetType) IsValid() bool {
	switch t {
	case AssetTypeCapital, AssetTypeInventory, AssetTypeConsumable:
		return true
	default:
		return false
	}
}

type Category struct {
	ID                        int             `json:"id" db:"id"`
	Name                      string          `json:"name" db:"name" validate:"required"`
	Code                      string          `json:"code" db:"code" validate:"required,uppercase,alphanum,min=2,max=5"`
	AssetType                 AssetType       `json:"asset_type" db:"asset_type" validate:"required,oneof=capital inventory consumable"`
	IsConsumable              bool            `json:"is_consumable" db:"is_consumable"`
	GeneratesAssets           bool            `json:"generates_assets" db:"generates_assets"`
	CapitalizationThreshold   decimal.Decimal `json:"capitalization_threshold" db:"capitalization_threshold"`
	AutoExpenseBelowThreshold bool            `json:"auto_expense_below_threshold" db:"auto_expense_below_threshold"`
}

// TracksQuantity reports whether assets of this category are pooled stock
// with a depletable quantity rather than discrete units.
func (c Category) TracksQuantity() bool {
	return c.IsConsumable || c.AssetType == AssetTypeInventory || c.AssetType == AssetTypeConsumable
}
