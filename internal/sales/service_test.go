package sales

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kipuventas/kipu/internal/alerts"
	"github.com/kipuventas/kipu/internal/shared"
	"github.com/kipuventas/kipu/internal/stock"
)

type memoryRepo struct {
	mu sync.Mutex

	lots          map[int64]stock.Lot
	productStatus map[int64]stock.ProductStatus
	sales         map[int64]Sale
	items         map[int64]LineItem
	consumptions  map[int64]LotConsumption
	nextID        int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		lots:          map[int64]stock.Lot{},
		productStatus: map[int64]stock.ProductStatus{},
		sales:         map[int64]Sale{},
		items:         map[int64]LineItem{},
		consumptions:  map[int64]LotConsumption{},
		nextID:        1,
	}
}

func (m *memoryRepo) id() int64 {
	id := m.nextID
	m.nextID++
	return id
}

func (m *memoryRepo) addLot(productID int64, day, qty int) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.id()
	m.lots[id] = stock.Lot{
		ID:           id,
		ProductID:    productID,
		Label:        "L",
		RegisteredAt: time.Date(2026, 1, day, 0, 0, 0, 0, time.UTC),
		Quantity:     qty,
		Status:       stock.LotStatusFor(qty),
	}
	m.productStatus[productID] = stock.ProductStatusFor(m.productLots(productID))
	return id
}

func (m *memoryRepo) productLots(productID int64) []stock.Lot {
	var lots []stock.Lot
	for _, lot := range m.lots {
		if lot.ProductID == productID {
			lots = append(lots, lot)
		}
	}
	sort.Slice(lots, func(i, j int) bool {
		if lots[i].RegisteredAt.Equal(lots[j].RegisteredAt) {
			return lots[i].ID < lots[j].ID
		}
		return lots[i].RegisteredAt.Before(lots[j].RegisteredAt)
	})
	return lots
}

func (m *memoryRepo) totalStock() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, lot := range m.lots {
		total += lot.Quantity
	}
	return total
}

func (m *memoryRepo) consumedUnits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, c := range m.consumptions {
		total += c.Quantity
	}
	return total
}

// WithTx serializes transactions with a mutex and restores a snapshot when
// the callback fails, mimicking rollback.
func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapLots := cloneMap(m.lots)
	snapStatus := cloneMap(m.productStatus)
	snapSales := cloneMap(m.sales)
	snapItems := cloneMap(m.items)
	snapCons := cloneMap(m.consumptions)
	snapID := m.nextID
	if err := fn(ctx, (*memoryTx)(m)); err != nil {
		m.lots = snapLots
		m.productStatus = snapStatus
		m.sales = snapSales
		m.items = snapItems
		m.consumptions = snapCons
		m.nextID = snapID
		return err
	}
	return nil
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (m *memoryRepo) GetSale(ctx context.Context, id int64) (*Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sale, ok := m.sales[id]
	if !ok {
		return nil, ErrSaleNotFound
	}
	sale.Items = m.saleItems(id)
	return &sale, nil
}

func (m *memoryRepo) GetSaleByToken(ctx context.Context, token string) (*Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sale := range m.sales {
		if sale.QRToken == token {
			sale.Items = m.saleItems(sale.ID)
			return &sale, nil
		}
	}
	return nil, ErrTokenNotFound
}

func (m *memoryRepo) ListSales(ctx context.Context, filter Filter) ([]Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Sale
	for _, sale := range m.sales {
		if filter.Status != "" && sale.Status != filter.Status {
			continue
		}
		if filter.PurchaserID != 0 && sale.PurchaserID != filter.PurchaserID {
			continue
		}
		out = append(out, sale)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memoryRepo) ListReceipts(ctx context.Context, limit int) ([]Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Sale
	for _, sale := range m.sales {
		if sale.Receipt == nil {
			continue
		}
		out = append(out, sale)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryRepo) GetByReceiptCode(ctx context.Context, code string) (*Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sale := range m.sales {
		if sale.Receipt != nil && sale.Receipt.Code == code {
			sale.Items = m.saleItems(sale.ID)
			return &sale, nil
		}
	}
	return nil, ErrReceiptNotFound
}

func (m *memoryRepo) saleItems(saleID int64) []LineItem {
	var items []LineItem
	for _, item := range m.items {
		if item.SaleID != saleID {
			continue
		}
		for _, c := range m.consumptions {
			if c.LineItemID == item.ID {
				item.Consumptions = append(item.Consumptions, c)
			}
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items
}

type memoryTx memoryRepo

func (m *memoryTx) ListProductLotsForUpdate(ctx context.Context, productID int64) ([]stock.Lot, error) {
	return (*memoryRepo)(m).productLots(productID), nil
}

func (m *memoryTx) UpdateLot(ctx context.Context, id int64, quantity int, status stock.LotStatus) error {
	lot, ok := m.lots[id]
	if !ok {
		return stock.ErrLotNotFound
	}
	lot.Quantity = quantity
	lot.Status = status
	m.lots[id] = lot
	return nil
}

func (m *memoryTx) GetProductStatus(ctx context.Context, productID int64) (stock.ProductStatus, error) {
	status, ok := m.productStatus[productID]
	if !ok {
		return "", stock.ErrProductNotFound
	}
	return status, nil
}

func (m *memoryTx) UpdateProductStatus(ctx context.Context, productID int64, status stock.ProductStatus) error {
	m.productStatus[productID] = status
	return nil
}

func (m *memoryTx) InsertSale(ctx context.Context, sale Sale) (int64, error) {
	sale.ID = (*memoryRepo)(m).id()
	sale.Items = nil
	m.sales[sale.ID] = sale
	return sale.ID, nil
}

func (m *memoryTx) InsertLineItem(ctx context.Context, item LineItem) (int64, error) {
	item.ID = (*memoryRepo)(m).id()
	m.items[item.ID] = item
	return item.ID, nil
}

func (m *memoryTx) InsertConsumption(ctx context.Context, c LotConsumption) (int64, error) {
	c.ID = (*memoryRepo)(m).id()
	m.consumptions[c.ID] = c
	return c.ID, nil
}

func (m *memoryTx) GetSaleForUpdate(ctx context.Context, id int64) (Sale, error) {
	sale, ok := m.sales[id]
	if !ok {
		return Sale{}, ErrSaleNotFound
	}
	return sale, nil
}

func (m *memoryTx) GetSaleByTokenForUpdate(ctx context.Context, token string) (Sale, error) {
	for _, sale := range m.sales {
		if sale.QRToken == token {
			return sale, nil
		}
	}
	return Sale{}, ErrTokenNotFound
}

func (m *memoryTx) ListConsumptionsForUpdate(ctx context.Context, saleID int64) ([]ConsumptionLot, error) {
	var rows []ConsumptionLot
	for _, c := range m.consumptions {
		item, ok := m.items[c.LineItemID]
		if !ok || item.SaleID != saleID {
			continue
		}
		rows = append(rows, ConsumptionLot{Consumption: c, Lot: m.lots[c.LotID]})
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i].Lot, rows[j].Lot
		if a.RegisteredAt.Equal(b.RegisteredAt) {
			return a.ID < b.ID
		}
		return a.RegisteredAt.Before(b.RegisteredAt)
	})
	return rows, nil
}

func (m *memoryTx) UpdateSaleStatus(ctx context.Context, id int64, status Status) error {
	sale, ok := m.sales[id]
	if !ok {
		return ErrSaleNotFound
	}
	sale.Status = status
	m.sales[id] = sale
	return nil
}

func (m *memoryTx) AttachReceipt(ctx context.Context, id int64, receipt Receipt) error {
	sale, ok := m.sales[id]
	if !ok {
		return ErrSaleNotFound
	}
	sale.Receipt = &receipt
	m.sales[id] = sale
	return nil
}

func (m *memoryTx) DeleteConsumptions(ctx context.Context, saleID int64) error {
	for id, c := range m.consumptions {
		if item, ok := m.items[c.LineItemID]; ok && item.SaleID == saleID {
			delete(m.consumptions, id)
		}
	}
	return nil
}

func (m *memoryTx) DeleteLineItems(ctx context.Context, saleID int64) error {
	for id, item := range m.items {
		if item.SaleID == saleID {
			delete(m.items, id)
		}
	}
	return nil
}

func (m *memoryTx) DeleteSale(ctx context.Context, id int64) error {
	if _, ok := m.sales[id]; !ok {
		return ErrSaleNotFound
	}
	delete(m.sales, id)
	return nil
}

type alertRecorder struct {
	mu       sync.Mutex
	recorded []alerts.Alert
}

func (a *alertRecorder) Record(ctx context.Context, alert alerts.Alert) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recorded = append(a.recorded, alert)
}

func (a *alertRecorder) titles() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.recorded))
	for _, al := range a.recorded {
		out = append(out, al.Title)
	}
	return out
}

type auditRecorder struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (a *auditRecorder) Record(ctx context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

func newTestService(repo *memoryRepo) (*Service, *alertRecorder) {
	sink := &alertRecorder{}
	return NewService(repo, &auditRecorder{}, sink, nil, nil, ServiceConfig{}), sink
}

func storeRequest(items ...CreateSaleItem) CreateSaleRequest {
	return CreateSaleRequest{
		PurchaserID:   1,
		Channel:       ChannelInStore,
		DeliveryMode:  DeliveryPickup,
		PaymentMethod: PaymentCash,
		ReceiptType:   ReceiptBoleta,
		Items:         items,
	}
}

func TestCreateAllocatesOldestLotsFirst(t *testing.T) {
	repo := newMemoryRepo()
	oldest := repo.addLot(1, 1, 4)
	middle := repo.addLot(1, 5, 10)
	repo.addLot(1, 9, 10)
	svc, _ := newTestService(repo)

	sale, err := svc.Create(context.Background(), storeRequest(CreateSaleItem{ProductID: 1, Quantity: 7, UnitPrice: 2}))
	require.NoError(t, err)
	require.Equal(t, StatusPending, sale.Status)
	require.Equal(t, 14.0, sale.Total)
	require.NotEmpty(t, sale.QRToken)

	require.Len(t, sale.Items, 1)
	cons := sale.Items[0].Consumptions
	require.Len(t, cons, 2)
	require.Equal(t, oldest, cons[0].LotID)
	require.Equal(t, 4, cons[0].Quantity)
	require.Equal(t, middle, cons[1].LotID)
	require.Equal(t, 3, cons[1].Quantity)

	require.Equal(t, 0, repo.lots[oldest].Quantity)
	require.Equal(t, stock.LotStatusInactive, repo.lots[oldest].Status)
	require.Equal(t, 7, repo.lots[middle].Quantity)
}

func TestCreateConservesStock(t *testing.T) {
	repo := newMemoryRepo()
	repo.addLot(1, 1, 6)
	repo.addLot(1, 2, 9)
	initial := repo.totalStock()
	svc, _ := newTestService(repo)

	_, err := svc.Create(context.Background(), storeRequest(CreateSaleItem{ProductID: 1, Quantity: 11, UnitPrice: 1}))
	require.NoError(t, err)
	require.Equal(t, initial, repo.totalStock()+repo.consumedUnits())
}

func TestCreateInsufficientStockAbortsWholeSale(t *testing.T) {
	repo := newMemoryRepo()
	repo.addLot(1, 1, 10)
	repo.addLot(2, 1, 3)
	svc, _ := newTestService(repo)

	_, err := svc.Create(context.Background(), storeRequest(
		CreateSaleItem{ProductID: 1, Quantity: 5, UnitPrice: 1},
		CreateSaleItem{ProductID: 2, Quantity: 4, UnitPrice: 1},
	))
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, int64(2), insufficient.ProductID)
	require.Equal(t, 4, insufficient.Requested)
	require.Equal(t, 3, insufficient.Available)

	// Nothing was persisted, not even the first line's debit.
	for _, lot := range repo.lots {
		if lot.ProductID == 1 {
			require.Equal(t, 10, lot.Quantity)
		}
	}
	require.Empty(t, repo.sales)
	require.Empty(t, repo.consumptions)
}

func TestCreateSkipsInactiveLots(t *testing.T) {
	repo := newMemoryRepo()
	frozen := repo.addLot(1, 1, 5)
	lot := repo.lots[frozen]
	lot.Status = stock.LotStatusInactive
	repo.lots[frozen] = lot
	repo.addLot(1, 2, 5)
	svc, _ := newTestService(repo)

	_, err := svc.Create(context.Background(), storeRequest(CreateSaleItem{ProductID: 1, Quantity: 6, UnitPrice: 1}))
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, 5, insufficient.Available)
}

func TestCreateRemoteStartsUnderReview(t *testing.T) {
	repo := newMemoryRepo()
	repo.addLot(1, 1, 10)
	addr := int64(3)
	svc, sink := newTestService(repo)

	sale, err := svc.Create(context.Background(), CreateSaleRequest{
		PurchaserID:   1,
		Channel:       ChannelRemote,
		DeliveryMode:  DeliveryShip,
		AddressID:     &addr,
		PaymentMethod: PaymentYape,
		ReceiptType:   ReceiptBoleta,
		Items:         []CreateSaleItem{{ProductID: 1, Quantity: 1, UnitPrice: 5}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusUnderReview, sale.Status)
	require.NotEmpty(t, sale.QRToken)
	require.Contains(t, sink.titles(), "Sale created")
}

func TestCreateShipRequiresAddress(t *testing.T) {
	repo := newMemoryRepo()
	repo.addLot(1, 1, 10)
	svc, _ := newTestService(repo)

	req := storeRequest(CreateSaleItem{ProductID: 1, Quantity: 1, UnitPrice: 1})
	req.DeliveryMode = DeliveryShip
	_, err := svc.Create(context.Background(), req)
	require.ErrorIs(t, err, ErrAddressRequired)
}

func TestCreateFacturaRequiresRUC(t *testing.T) {
	repo := newMemoryRepo()
	repo.addLot(1, 1, 10)
	svc, _ := newTestService(repo)

	req := storeRequest(CreateSaleItem{ProductID: 1, Quantity: 1, UnitPrice: 1})
	req.ReceiptType = ReceiptFactura
	_, err := svc.Create(context.Background(), req)
	require.ErrorIs(t, err, ErrRUCRequired)
}

func TestCreateRejectsEmptyItems(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)

	_, err := svc.Create(context.Background(), storeRequest())
	require.ErrorIs(t, err, ErrEmptyItems)
}

func TestCreateDebitsProductStatusToInactive(t *testing.T) {
	repo := newMemoryRepo()
	repo.addLot(1, 1, 3)
	svc, sink := newTestService(repo)

	_, err := svc.Create(context.Background(), storeRequest(CreateSaleItem{ProductID: 1, Quantity: 3, UnitPrice: 1}))
	require.NoError(t, err)
	require.Equal(t, stock.ProductStatusInactive, repo.productStatus[1])
	require.Contains(t, sink.titles(), "Product out of stock")
}

func TestCancelRestoresExactQuantities(t *testing.T) {
	repo := newMemoryRepo()
	a := repo.addLot(1, 1, 4)
	b := repo.addLot(1, 2, 10)
	svc, sink := newTestService(repo)

	sale, err := svc.Create(context.Background(), storeRequest(CreateSaleItem{ProductID: 1, Quantity: 7, UnitPrice: 1}))
	require.NoError(t, err)
	require.Equal(t, 0, repo.lots[a].Quantity)
	require.Equal(t, 7, repo.lots[b].Quantity)

	cancelled, err := svc.Cancel(context.Background(), sale.ID, 1, "")
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.Equal(t, 4, repo.lots[a].Quantity)
	require.Equal(t, stock.LotStatusActive, repo.lots[a].Status)
	require.Equal(t, 10, repo.lots[b].Quantity)
	require.Equal(t, stock.ProductStatusSupplied, repo.productStatus[1])
	require.Contains(t, sink.titles(), "Sale cancelled")
}

func TestCancelKeepsReasonOnAlertAndAudit(t *testing.T) {
	repo := newMemoryRepo()
	repo.addLot(1, 1, 10)
	sink := &alertRecorder{}
	audit := &auditRecorder{}
	svc := NewService(repo, audit, sink, nil, nil, ServiceConfig{})

	sale, err := svc.Create(context.Background(), storeRequest(CreateSaleItem{ProductID: 1, Quantity: 2, UnitPrice: 1}))
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), sale.ID, 1, "customer changed their mind")
	require.NoError(t, err)

	var cancelAlert *alerts.Alert
	for i := range sink.recorded {
		if sink.recorded[i].Title == "Sale cancelled" {
			cancelAlert = &sink.recorded[i]
		}
	}
	require.NotNil(t, cancelAlert)
	require.Contains(t, cancelAlert.Message, "customer changed their mind")

	var cancelLog *shared.AuditLog
	for i := range audit.logs {
		if audit.logs[i].Action == "sales:cancel" {
			cancelLog = &audit.logs[i]
		}
	}
	require.NotNil(t, cancelLog)
	require.Equal(t, "customer changed their mind", cancelLog.Meta["reason"])
}

func TestCancelTwiceIsStateError(t *testing.T) {
	repo := newMemoryRepo()
	repo.addLot(1, 1, 10)
	svc, _ := newTestService(repo)

	sale, err := svc.Create(context.Background(), storeRequest(CreateSaleItem{ProductID: 1, Quantity: 2, UnitPrice: 1}))
	require.NoError(t, err)
	_, err = svc.Cancel(context.Background(), sale.ID, 1, "")
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), sale.ID, 1, "")
	var state *StateError
	require.ErrorAs(t, err, &state)
	require.Equal(t, StatusCancelled, state.From)

	// The double cancel must not credit stock twice.
	require.Equal(t, 10, repo.totalStock())
}

func TestCancelDeliveredRejected(t *testing.T) {
	repo := newMemoryRepo()
	repo.addLot(1, 1, 10)
	svc, _ := newTestService(repo)

	sale, err := svc.Create(context.Background(), storeRequest(CreateSaleItem{ProductID: 1, Quantity: 2, UnitPrice: 1}))
	require.NoError(t, err)
	_, err = svc.ValidateDelivery(context.Background(), sale.QRToken)
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), sale.ID, 1, "")
	var state *StateError
	require.ErrorAs(t, err, &state)
}

func TestApproveOnlyFromUnderReview(t *testing.T) {
	repo := newMemoryRepo()
	repo.addLot(1, 1, 10)
	svc, _ := newTestService(repo)

	req := storeRequest(CreateSaleItem{ProductID: 1, Quantity: 1, UnitPrice: 1})
	req.Channel = ChannelRemote
	sale, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, StatusUnderReview, sale.Status)

	approved, err := svc.Approve(context.Background(), sale.ID, 1)
	require.NoError(t, err)
	require.Equal(t, StatusPending, approved.Status)

	_, err = svc.Approve(context.Background(), sale.ID, 1)
	var state *StateError
	require.ErrorAs(t, err, &state)
}

func TestApproveRejectedWhenReceiptIssued(t *testing.T) {
	repo := newMemoryRepo()
	repo.addLot(1, 1, 10)
	svc, _ := newTestService(repo)

	req := storeRequest(CreateSaleItem{ProductID: 1, Quantity: 1, UnitPrice: 1})
	req.Channel = ChannelRemote
	sale, err := svc.Create(context.Background(), req)
	require.NoError(t, err)

	stored := repo.sales[sale.ID]
	stored.Receipt = &Receipt{Code: "abc"}
	repo.sales[sale.ID] = stored

	_, err = svc.Approve(context.Background(), sale.ID, 1)
	require.ErrorIs(t, err, ErrReceiptIssued)
}

func TestValidateDeliveryTransitions(t *testing.T) {
	repo := newMemoryRepo()
	repo.addLot(1, 1, 10)
	svc, _ := newTestService(repo)

	sale, err := svc.Create(context.Background(), storeRequest(CreateSaleItem{ProductID: 1, Quantity: 1, UnitPrice: 1}))
	require.NoError(t, err)

	delivered, err := svc.ValidateDelivery(context.Background(), sale.QRToken)
	require.NoError(t, err)
	require.Equal(t, StatusDelivered, delivered.Status)

	_, err = svc.ValidateDelivery(context.Background(), sale.QRToken)
	require.ErrorIs(t, err, ErrAlreadyDelivered)

	_, err = svc.ValidateDelivery(context.Background(), "missing-token")
	require.ErrorIs(t, err, ErrTokenNotFound)
}

func TestValidateDeliveryCancelledSale(t *testing.T) {
	repo := newMemoryRepo()
	repo.addLot(1, 1, 10)
	svc, _ := newTestService(repo)

	sale, err := svc.Create(context.Background(), storeRequest(CreateSaleItem{ProductID: 1, Quantity: 1, UnitPrice: 1}))
	require.NoError(t, err)
	_, err = svc.Cancel(context.Background(), sale.ID, 1, "")
	require.NoError(t, err)

	_, err = svc.ValidateDelivery(context.Background(), sale.QRToken)
	require.ErrorIs(t, err, ErrSaleCancelled)
}

func TestValidateDeliveryUnderReviewRejected(t *testing.T) {
	repo := newMemoryRepo()
	repo.addLot(1, 1, 10)
	svc, _ := newTestService(repo)

	req := storeRequest(CreateSaleItem{ProductID: 1, Quantity: 1, UnitPrice: 1})
	req.Channel = ChannelRemote
	sale, err := svc.Create(context.Background(), req)
	require.NoError(t, err)

	_, err = svc.ValidateDelivery(context.Background(), sale.QRToken)
	var state *StateError
	require.ErrorAs(t, err, &state)
	require.Equal(t, StatusUnderReview, state.From)
}

func TestDeleteCreditsThenRemovesRows(t *testing.T) {
	repo := newMemoryRepo()
	lot := repo.addLot(1, 1, 10)
	svc, _ := newTestService(repo)

	sale, err := svc.Create(context.Background(), storeRequest(CreateSaleItem{ProductID: 1, Quantity: 6, UnitPrice: 1}))
	require.NoError(t, err)
	require.Equal(t, 4, repo.lots[lot].Quantity)

	require.NoError(t, svc.Delete(context.Background(), sale.ID, 1))
	require.Equal(t, 10, repo.lots[lot].Quantity)
	require.Empty(t, repo.sales)
	require.Empty(t, repo.items)
	require.Empty(t, repo.consumptions)
}

func TestDeleteCancelledSaleDoesNotCreditTwice(t *testing.T) {
	repo := newMemoryRepo()
	lot := repo.addLot(1, 1, 10)
	svc, _ := newTestService(repo)

	sale, err := svc.Create(context.Background(), storeRequest(CreateSaleItem{ProductID: 1, Quantity: 6, UnitPrice: 1}))
	require.NoError(t, err)
	_, err = svc.Cancel(context.Background(), sale.ID, 1, "")
	require.NoError(t, err)
	require.Equal(t, 10, repo.lots[lot].Quantity)

	require.NoError(t, svc.Delete(context.Background(), sale.ID, 1))
	require.Equal(t, 10, repo.lots[lot].Quantity)
	require.Empty(t, repo.sales)
}

func TestAttachReceiptOncePendingOnly(t *testing.T) {
	repo := newMemoryRepo()
	repo.addLot(1, 1, 10)
	svc, _ := newTestService(repo)

	sale, err := svc.Create(context.Background(), storeRequest(CreateSaleItem{ProductID: 1, Quantity: 1, UnitPrice: 1}))
	require.NoError(t, err)

	receipt := Receipt{Code: "uniq-1", Series: "B001", Number: "42", PDFURL: "https://receipts/1.pdf", ProviderKey: "k"}
	require.NoError(t, svc.AttachReceipt(context.Background(), sale.ID, receipt))

	err = svc.AttachReceipt(context.Background(), sale.ID, receipt)
	require.ErrorIs(t, err, ErrReceiptIssued)
}

func TestConcurrentSalesForLastUnitOneWins(t *testing.T) {
	repo := newMemoryRepo()
	repo.addLot(1, 1, 1)
	svc, _ := newTestService(repo)

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(context.Background(), storeRequest(CreateSaleItem{ProductID: 1, Quantity: 1, UnitPrice: 1}))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok, insufficient int
	for err := range results {
		if err == nil {
			ok++
			continue
		}
		var stockErr *InsufficientStockError
		require.ErrorAs(t, err, &stockErr)
		insufficient++
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 1, insufficient)
	require.Equal(t, 0, repo.totalStock())
	require.Equal(t, 1, repo.consumedUnits())
}

func TestMultiItemSaleSameProductSharesLots(t *testing.T) {
	repo := newMemoryRepo()
	a := repo.addLot(1, 1, 5)
	b := repo.addLot(1, 2, 5)
	svc, _ := newTestService(repo)

	sale, err := svc.Create(context.Background(), storeRequest(
		CreateSaleItem{ProductID: 1, Quantity: 4, UnitPrice: 1},
		CreateSaleItem{ProductID: 1, Quantity: 4, UnitPrice: 1},
	))
	require.NoError(t, err)
	require.Equal(t, 0, repo.lots[a].Quantity)
	require.Equal(t, 2, repo.lots[b].Quantity)

	// Cancellation puts every unit back on its source lot.
	_, err = svc.Cancel(context.Background(), sale.ID, 1, "")
	require.NoError(t, err)
	require.Equal(t, 5, repo.lots[a].Quantity)
	require.Equal(t, 5, repo.lots[b].Quantity)
}
