package stock

import (
	"fmt"

	"github.com/kipuventas/kipu/internal/alerts"
)

// DefaultLowStockThreshold is the lot quantity below which a low-stock alert
// fires.
const DefaultLowStockThreshold = 5

// LotChange records a quantity mutation applied to one lot within a
// transaction. Lot holds the state after the change.
type LotChange struct {
	Lot      Lot
	Previous int
}

// AlertsForChanges derives the operational alerts a batch of lot mutations
// should raise. lotsAfter is the product's full lot set after the changes;
// before and after are the product statuses around them. Both the manual
// adjustment path and the sale debit path feed through here so the rules stay
// in one place.
func AlertsForChanges(threshold int, productID int64, changes []LotChange, lotsAfter []Lot, before, after ProductStatus) []alerts.Alert {
	if threshold <= 0 {
		threshold = DefaultLowStockThreshold
	}
	var out []alerts.Alert

	activeAfter := 0
	for _, lot := range lotsAfter {
		if lot.Status == LotStatusActive {
			activeAfter++
		}
	}

	for _, ch := range changes {
		lotID := ch.Lot.ID
		switch {
		case ch.Previous > 0 && ch.Lot.Quantity == 0:
			out = append(out, alerts.Alert{
				Type:      alerts.TypeProduct,
				Severity:  alerts.SeverityMedium,
				Title:     "Lot exhausted",
				Message:   fmt.Sprintf("Lot %s ran out of stock", ch.Lot.Label),
				ProductID: &productID,
				LotID:     &lotID,
			})
			if activeAfter == 1 {
				out = append(out, alerts.Alert{
					Type:      alerts.TypeProduct,
					Severity:  alerts.SeverityHigh,
					Title:     "Last active lot",
					Message:   fmt.Sprintf("Only one active lot remains for product %d", productID),
					ProductID: &productID,
				})
			}
		case ch.Previous >= threshold && ch.Lot.Quantity < threshold && ch.Lot.Status == LotStatusActive:
			out = append(out, alerts.Alert{
				Type:      alerts.TypeProduct,
				Severity:  alerts.SeverityLow,
				Title:     "Low stock",
				Message:   fmt.Sprintf("Lot %s dropped to %d units", ch.Lot.Label, ch.Lot.Quantity),
				ProductID: &productID,
				LotID:     &lotID,
			})
		}
	}

	if before != after && (after == ProductStatusInactive || after == ProductStatusOutOfStock) {
		out = append(out, alerts.Alert{
			Type:      alerts.TypeProduct,
			Severity:  alerts.SeverityCritical,
			Title:     "Product out of stock",
			Message:   fmt.Sprintf("Product %d has no sellable stock left", productID),
			ProductID: &productID,
		})
	}
	return out
}
