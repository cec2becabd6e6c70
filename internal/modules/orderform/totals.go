package orderform

import (
	"fmt"

	"github.com/aristath/atelier/internal/domain"
)

// MaxQuantity bounds the quantity of one selection.
const MaxQuantity int64 = 9999

// OrderItemSelection is one selected product. UnitPrice is copied from the
// catalog when the product is selected and never re-read afterwards.
type OrderItemSelection struct {
	CategoryID  int64  `json:"category_id"`
	ProductID   int64  `json:"product_id"`
	AttributeID *int64 `json:"attributes_id"`
	Quantity    int64  `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
}

// LinePrice is what the order store persists for the item.
func (s OrderItemSelection) LinePrice() int64 {
	return s.UnitPrice * s.Quantity
}

// Totals are the derived amounts of a draft. Outstanding is negative when
// the customer overpaid.
type Totals struct {
	Subtotal    int64 `json:"merchandise_subtotal"`
	AdvancePaid int64 `json:"advance_paid"`
	BalancePaid int64 `json:"balance_paid"`
	Outstanding int64 `json:"outstanding_balance"`
}

// checkSubtotal rejects selections whose line prices or subtotal exceed
// domain.MaxAmount. Every selection a controller holds has passed it.
func checkSubtotal(items map[int64]OrderItemSelection) error {
	var total int64
	for _, item := range items {
		if item.Quantity < 0 || item.Quantity > MaxQuantity {
			return errQuantityTooLarge()
		}
		if item.UnitPrice < 0 || (item.Quantity > 0 && item.UnitPrice > domain.MaxAmount/item.Quantity) {
			return domain.NewValidationError("quantity",
				fmt.Sprintf("product %d: %d × %d exceeds the order limit", item.ProductID, item.UnitPrice, item.Quantity))
		}
		total += item.LinePrice()
		if total > domain.MaxAmount {
			return domain.NewValidationError("quantity", "merchandise subtotal exceeds the order limit")
		}
	}
	return nil
}

// MerchandiseSubtotal sums unit price × quantity over items.
func MerchandiseSubtotal(items []OrderItemSelection) int64 {
	var total int64
	for _, item := range items {
		total += item.LinePrice()
	}
	return total
}

// ComputeTotals derives every total from the selection and both legs.
func ComputeTotals(items []OrderItemSelection, advance, balance LegView) Totals {
	t := Totals{
		Subtotal:    MerchandiseSubtotal(items),
		AdvancePaid: advance.Total,
		BalancePaid: balance.Total,
	}
	t.Outstanding = t.Subtotal - t.AdvancePaid - t.BalancePaid
	return t
}
