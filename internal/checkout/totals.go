package checkout

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/domain"
)

// Fees are the fixed charges applied on top of the item total.
type Fees struct {
	Delivery decimal.Decimal
	Platform decimal.Decimal
	// TaxRate is a fraction of the item total, e.g. 0.05 for five percent.
	TaxRate  decimal.Decimal
	Currency string
}

// ComputeTotals prices items deterministically. Tax is rounded half away from zero to two places.
func ComputeTotals(items []domain.CartLineItem, fees Fees) domain.Totals {
	itemTotal := decimal.Zero
	for _, item := range items {
		itemTotal = itemTotal.Add(item.LineTotal())
	}
	tax := itemTotal.Mul(fees.TaxRate).Round(2)
	return domain.Totals{
		ItemTotal:   itemTotal,
		DeliveryFee: fees.Delivery,
		PlatformFee: fees.Platform,
		Tax:         tax,
		GrandTotal:  itemTotal.Add(fees.Delivery).Add(fees.Platform).Add(tax),
		Currency:    strings.ToUpper(strings.TrimSpace(fees.Currency)),
	}
}
