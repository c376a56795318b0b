package stock

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLotStatusFor(t *testing.T) {
	require.Equal(t, LotStatusInactive, LotStatusFor(0))
	require.Equal(t, LotStatusActive, LotStatusFor(1))
	require.Equal(t, LotStatusActive, LotStatusFor(500))
}

func TestProductStatusForSupplied(t *testing.T) {
	lots := []Lot{lotAt(1, 1, 0), lotAt(2, 2, 3)}
	require.Equal(t, ProductStatusSupplied, ProductStatusFor(lots))
}

func TestProductStatusForInactiveWhenEmpty(t *testing.T) {
	require.Equal(t, ProductStatusInactive, ProductStatusFor(nil))
	require.Equal(t, ProductStatusInactive, ProductStatusFor([]Lot{lotAt(1, 1, 0), lotAt(2, 2, 0)}))
}

func TestProductStatusForOutOfStockWhenOnlyInactiveLotsHoldStock(t *testing.T) {
	frozen := lotAt(1, 1, 4)
	frozen.Status = LotStatusInactive
	require.Equal(t, ProductStatusOutOfStock, ProductStatusFor([]Lot{frozen, lotAt(2, 2, 0)}))
}
