package stock

import "sort"

// Allocation is a single lot debit inside a plan.
type Allocation struct {
	LotID    int64 `json:"lot_id"`
	Quantity int   `json:"quantity"`
}

// Plan is the ordered list of lot debits that covers one requested quantity.
type Plan []Allocation

// Total returns the quantity covered by the plan.
func (p Plan) Total() int {
	total := 0
	for _, a := range p {
		total += a.Quantity
	}
	return total
}

// Allocate selects lots to debit for the requested quantity, consuming the
// oldest registered lots first. Ties on registration date fall back to lot id
// ascending so the plan is deterministic. Only Active lots are candidates.
//
// The returned shortfall is the unmet quantity when the candidates run out;
// callers must treat shortfall > 0 as failure and discard the partial plan.
// Allocate never mutates its input and performs no I/O.
func Allocate(lots []Lot, requested int) (Plan, int) {
	if requested <= 0 {
		return nil, 0
	}

	candidates := make([]Lot, 0, len(lots))
	for _, lot := range lots {
		if lot.Status == LotStatusActive && lot.Quantity > 0 {
			candidates = append(candidates, lot)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].RegisteredAt.Equal(candidates[j].RegisteredAt) {
			return candidates[i].ID < candidates[j].ID
		}
		return candidates[i].RegisteredAt.Before(candidates[j].RegisteredAt)
	})

	remaining := requested
	var plan Plan
	for _, lot := range candidates {
		if remaining == 0 {
			break
		}
		take := min(remaining, lot.Quantity)
		plan = append(plan, Allocation{LotID: lot.ID, Quantity: take})
		remaining -= take
	}
	return plan, remaining
}
