package stock

// LotStatusFor returns the status a lot must carry for the given quantity.
// A lot is Inactive exactly when its quantity is zero.
func LotStatusFor(quantity int) LotStatus {
	if quantity == 0 {
		return LotStatusInactive
	}
	return LotStatusActive
}

// ProductStatusFor derives a product's status from the full set of its lots:
// Inactive when total quantity is zero, OutOfStock when stock remains but none
// of it sits in an active lot, Supplied otherwise. The OutOfStock case only
// arises from inconsistent data (inactive lots holding quantity) and is kept
// so such rows surface instead of masquerading as sellable stock.
func ProductStatusFor(lots []Lot) ProductStatus {
	total := 0
	active := 0
	for _, lot := range lots {
		total += lot.Quantity
		if lot.Status == LotStatusActive {
			active += lot.Quantity
		}
	}
	switch {
	case total == 0:
		return ProductStatusInactive
	case active == 0:
		return ProductStatusOutOfStock
	default:
		return ProductStatusSupplied
	}
}
