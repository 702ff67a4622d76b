package procurement

import (
	"sitewarehouse/pkg/models"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Totals are the derived money columns of an order. Every amount is rounded
// half up to two places.
type Totals struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	VATAmount      decimal.Decimal `json:"vat_amount"`
	EWTAmount      decimal.Decimal `json:"ewt_amount"`
	HandlingFee    decimal.Decimal `json:"handling_fee"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	NetTotal       decimal.Decimal `json:"net_total"`
}

func lineSubtotal(item models.ProcurementItem) decimal.Decimal {
	return item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))).Round(2)
}

// CalculateTotals derives the order totals from its items. Rates are
// percentages applied to the subtotal.
func CalculateTotals(items []models.ProcurementItem, vatRate, ewtRate, handlingFee, discount decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(lineSubtotal(item))
	}

	t := Totals{
		Subtotal:       subtotal,
		VATAmount:      subtotal.Mul(vatRate).Div(hundred).Round(2),
		EWTAmount:      subtotal.Mul(ewtRate).Div(hundred).Round(2),
		HandlingFee:    handlingFee.Round(2),
		DiscountAmount: discount.Round(2),
	}
	t.NetTotal = t.Subtotal.Add(t.VATAmount).Sub(t.EWTAmount).Add(t.HandlingFee).Sub(t.DiscountAmount)

	return t
}

// applyTotals recomputes item subtotals and the order totals in place.
func applyTotals(order *models.ProcurementOrder) {
	for i := range order.Items {
		order.Items[i].Subtotal = lineSubtotal(order.Items[i])
	}

	t := CalculateTotals(order.Items, order.VATRate, order.EWTRate, order.HandlingFee, order.DiscountAmount)
	order.Subtotal = t.Subtotal
	order.VATAmount = t.VATAmount
	order.EWTAmount = t.EWTAmount
	order.HandlingFee = t.HandlingFee
	order.DiscountAmount = t.DiscountAmount
	order.NetTotal = t.NetTotal
}
