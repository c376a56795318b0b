package stock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kipuventas/kipu/internal/alerts"
	"github.com/kipuventas/kipu/internal/shared"
)

type memoryRepo struct {
	lots          map[int64]Lot
	nextID        int64
	productStatus map[int64]ProductStatus
	consumptions  map[int64]int64
	failed        bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		lots:          map[int64]Lot{},
		nextID:        1,
		productStatus: map[int64]ProductStatus{1: ProductStatusInactive},
		consumptions:  map[int64]int64{},
	}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := make(map[int64]Lot, len(m.lots))
	for id, lot := range m.lots {
		snapshot[id] = lot
	}
	if err := fn(ctx, m); err != nil {
		m.lots = snapshot
		m.failed = true
		return err
	}
	return nil
}

func (m *memoryRepo) GetLot(ctx context.Context, id int64) (*Lot, error) {
	lot, ok := m.lots[id]
	if !ok {
		return nil, ErrLotNotFound
	}
	return &lot, nil
}

func (m *memoryRepo) ListLots(ctx context.Context, filter LotFilter) ([]Lot, error) {
	var out []Lot
	for _, lot := range m.lots {
		if filter.ProductID != 0 && lot.ProductID != filter.ProductID {
			continue
		}
		out = append(out, lot)
	}
	return out, nil
}

func (m *memoryRepo) ListProductLots(ctx context.Context, productID int64) ([]Lot, error) {
	return m.ListProductLotsForUpdate(ctx, productID)
}

func (m *memoryRepo) ProductExists(ctx context.Context, productID int64) (bool, error) {
	_, ok := m.productStatus[productID]
	return ok, nil
}

func (m *memoryRepo) GetProductStatus(ctx context.Context, productID int64) (ProductStatus, error) {
	status, ok := m.productStatus[productID]
	if !ok {
		return "", ErrProductNotFound
	}
	return status, nil
}

func (m *memoryRepo) ListProductLotsForUpdate(ctx context.Context, productID int64) ([]Lot, error) {
	var out []Lot
	for _, lot := range m.lots {
		if lot.ProductID == productID {
			out = append(out, lot)
		}
	}
	return out, nil
}

func (m *memoryRepo) GetLotForUpdate(ctx context.Context, id int64) (Lot, error) {
	lot, ok := m.lots[id]
	if !ok {
		return Lot{}, ErrLotNotFound
	}
	return lot, nil
}

func (m *memoryRepo) InsertLot(ctx context.Context, lot Lot) (int64, error) {
	lot.ID = m.nextID
	m.nextID++
	m.lots[lot.ID] = lot
	return lot.ID, nil
}

func (m *memoryRepo) UpdateLot(ctx context.Context, id int64, quantity int, status LotStatus) error {
	lot, ok := m.lots[id]
	if !ok {
		return ErrLotNotFound
	}
	lot.Quantity = quantity
	lot.Status = status
	m.lots[id] = lot
	return nil
}

func (m *memoryRepo) UpdateProductStatus(ctx context.Context, productID int64, status ProductStatus) error {
	if _, ok := m.productStatus[productID]; !ok {
		return ErrProductNotFound
	}
	m.productStatus[productID] = status
	return nil
}

func (m *memoryRepo) CountLotConsumptions(ctx context.Context, lotID int64) (int64, error) {
	return m.consumptions[lotID], nil
}

func (m *memoryRepo) DeleteLot(ctx context.Context, id int64) error {
	if _, ok := m.lots[id]; !ok {
		return ErrLotNotFound
	}
	delete(m.lots, id)
	return nil
}

type alertRecorder struct {
	recorded []alerts.Alert
}

func (a *alertRecorder) Record(ctx context.Context, alert alerts.Alert) {
	a.recorded = append(a.recorded, alert)
}

type auditRecorder struct {
	logs []shared.AuditLog
}

func (a *auditRecorder) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func newTestService(repo *memoryRepo) (*Service, *alertRecorder, *auditRecorder) {
	sink := &alertRecorder{}
	audit := &auditRecorder{}
	return NewService(repo, audit, sink, ServiceConfig{}), sink, audit
}

func TestCreateLotActivatesProduct(t *testing.T) {
	repo := newMemoryRepo()
	svc, _, audit := newTestService(repo)

	lot, err := svc.CreateLot(context.Background(), CreateLotInput{
		ProductID:    1,
		Label:        "2026-001",
		RegisteredAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Quantity:     20,
	})
	require.NoError(t, err)
	require.Equal(t, LotStatusActive, lot.Status)
	require.Equal(t, ProductStatusSupplied, repo.productStatus[1])
	require.Len(t, audit.logs, 1)
	require.Equal(t, "stock:lot_create", audit.logs[0].Action)
}

func TestCreateLotZeroQuantityStaysInactive(t *testing.T) {
	repo := newMemoryRepo()
	svc, _, _ := newTestService(repo)

	lot, err := svc.CreateLot(context.Background(), CreateLotInput{ProductID: 1, Label: "empty", Quantity: 0})
	require.NoError(t, err)
	require.Equal(t, LotStatusInactive, lot.Status)
	require.Equal(t, ProductStatusInactive, repo.productStatus[1])
}

func TestCreateLotUnknownProduct(t *testing.T) {
	repo := newMemoryRepo()
	svc, _, _ := newTestService(repo)

	_, err := svc.CreateLot(context.Background(), CreateLotInput{ProductID: 99, Label: "x", Quantity: 5})
	require.ErrorIs(t, err, ErrProductNotFound)
	require.True(t, repo.failed)
}

func TestAdjustLotToZeroDeactivatesLotAndProduct(t *testing.T) {
	repo := newMemoryRepo()
	svc, sink, _ := newTestService(repo)
	lot, err := svc.CreateLot(context.Background(), CreateLotInput{ProductID: 1, Label: "only", Quantity: 10})
	require.NoError(t, err)

	updated, err := svc.AdjustLot(context.Background(), AdjustLotInput{LotID: lot.ID, Quantity: 0})
	require.NoError(t, err)
	require.Equal(t, LotStatusInactive, updated.Status)
	require.Equal(t, ProductStatusInactive, repo.productStatus[1])

	titles := make([]string, 0, len(sink.recorded))
	for _, a := range sink.recorded {
		titles = append(titles, a.Title)
	}
	require.Contains(t, titles, "Lot exhausted")
	require.Contains(t, titles, "Product out of stock")
}

func TestAdjustLotBelowThresholdRaisesLowStock(t *testing.T) {
	repo := newMemoryRepo()
	svc, sink, _ := newTestService(repo)
	lot, err := svc.CreateLot(context.Background(), CreateLotInput{ProductID: 1, Label: "only", Quantity: 10})
	require.NoError(t, err)

	_, err = svc.AdjustLot(context.Background(), AdjustLotInput{LotID: lot.ID, Quantity: 3})
	require.NoError(t, err)
	require.Len(t, sink.recorded, 1)
	require.Equal(t, "Low stock", sink.recorded[0].Title)
	require.Equal(t, alerts.SeverityLow, sink.recorded[0].Severity)
}

func TestAdjustLotRestockReactivates(t *testing.T) {
	repo := newMemoryRepo()
	svc, _, _ := newTestService(repo)
	lot, err := svc.CreateLot(context.Background(), CreateLotInput{ProductID: 1, Label: "only", Quantity: 0})
	require.NoError(t, err)

	updated, err := svc.AdjustLot(context.Background(), AdjustLotInput{LotID: lot.ID, Quantity: 15})
	require.NoError(t, err)
	require.Equal(t, LotStatusActive, updated.Status)
	require.Equal(t, ProductStatusSupplied, repo.productStatus[1])
}

func TestAdjustLotRejectsNegativeQuantity(t *testing.T) {
	repo := newMemoryRepo()
	svc, _, _ := newTestService(repo)

	_, err := svc.AdjustLot(context.Background(), AdjustLotInput{LotID: 1, Quantity: -4})
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestDeleteLotGuardedByConsumptions(t *testing.T) {
	repo := newMemoryRepo()
	svc, _, _ := newTestService(repo)
	lot, err := svc.CreateLot(context.Background(), CreateLotInput{ProductID: 1, Label: "sold", Quantity: 5})
	require.NoError(t, err)
	repo.consumptions[lot.ID] = 2

	err = svc.DeleteLot(context.Background(), lot.ID, 7)
	require.ErrorIs(t, err, ErrLotReferenced)
	_, ok := repo.lots[lot.ID]
	require.True(t, ok)
}

func TestDeleteLotRecomputesProductStatus(t *testing.T) {
	repo := newMemoryRepo()
	svc, _, _ := newTestService(repo)
	keep, err := svc.CreateLot(context.Background(), CreateLotInput{ProductID: 1, Label: "keep", Quantity: 0})
	require.NoError(t, err)
	drop, err := svc.CreateLot(context.Background(), CreateLotInput{ProductID: 1, Label: "drop", Quantity: 9})
	require.NoError(t, err)
	require.Equal(t, ProductStatusSupplied, repo.productStatus[1])

	require.NoError(t, svc.DeleteLot(context.Background(), drop.ID, 7))
	require.Equal(t, ProductStatusInactive, repo.productStatus[1])
	_, ok := repo.lots[keep.ID]
	require.True(t, ok)
}

func TestProductAvailabilityCountsActiveLotsOnly(t *testing.T) {
	repo := newMemoryRepo()
	svc, _, _ := newTestService(repo)
	_, err := svc.CreateLot(context.Background(), CreateLotInput{ProductID: 1, Label: "a", Quantity: 6})
	require.NoError(t, err)
	frozen, err := svc.CreateLot(context.Background(), CreateLotInput{ProductID: 1, Label: "b", Quantity: 4})
	require.NoError(t, err)
	repo.lots[frozen.ID] = Lot{ID: frozen.ID, ProductID: 1, Label: "b", Quantity: 4, Status: LotStatusInactive}

	available, status, err := svc.ProductAvailability(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, 6, available)
	require.Equal(t, ProductStatusSupplied, status)
}
