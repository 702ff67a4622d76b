// Package capitalization decides whether a purchase is tracked as an asset
// or expensed. Every asset-creation path goes through Evaluate.
package capitalization

import (
	"fmt"

	"sitewarehouse/pkg/models"

	"github.com/shopspring/decimal"
)

type Decision int

const (
	Eligible Decision = iota
	BelowThreshold
	Ineligible
)

func (d Decision) String() string {
	switch d {
	case Eligible:
		return "eligible"
	case BelowThreshold:
		return "below_threshold"
	case Ineligible:
		return "ineligible"
	default:
		return "unknown"
	}
}

type Result struct {
	Decision Decision `json:"decision"`
	Reason   string   `json:"reason,omitempty"`
}

func (r Result) IsEligible() bool {
	return r.Decision == Eligible
}

func Evaluate(category models.Category, unitCost decimal.Decimal) Result {
	if !category.GeneratesAssets {
		return Result{
			Decision: Ineligible,
			Reason:   fmt.Sprintf("category %q is expense-only and does not generate assets", category.Name),
		}
	}

	threshold := category.CapitalizationThreshold
	if threshold.IsPositive() && unitCost.LessThan(threshold) && category.AutoExpenseBelowThreshold {
		return Result{
			Decision: BelowThreshold,
			Reason: fmt.Sprintf(
				"unit cost %s is below the capitalization threshold %s of category %q and is expensed automatically",
				unitCost.StringFixed(2), threshold.StringFixed(2), category.Name,
			),
		}
	}

	return Result{Decision: Eligible}
}

// ItemEligibility decides whether a received procurement item can be turned
// into assets right now. It must be re-derived on every call because receipt,
// resolution and re-delivery change the outcome.
func ItemEligibility(category models.Category, item models.ProcurementItem) Result {
	if result := Evaluate(category, item.UnitPrice); !result.IsEligible() {
		return result
	}

	if item.HasOpenDiscrepancy() || !item.IsSettled() {
		return Result{
			Decision: Ineligible,
			Reason:   fmt.Sprintf("item %q has an unresolved delivery discrepancy", item.ItemName),
		}
	}

	if item.RemainingToGenerate() <= 0 {
		return Result{
			Decision: Ineligible,
			Reason: fmt.Sprintf(
				"all %d received units of item %q already have assets",
				item.QuantityReceived, item.ItemName,
			),
		}
	}

	return Result{Decision: Eligible}
}
