package sales

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kipuventas/kipu/internal/alerts"
	"github.com/kipuventas/kipu/internal/shared"
	"github.com/kipuventas/kipu/internal/stock"
)

// ConsumptionLot pairs a consumption row with its lot, locked for update.
type ConsumptionLot struct {
	Consumption LotConsumption
	Lot         stock.Lot
}

// TxRepository exposes the transactional operations the orchestrator needs.
// Lot listings lock rows FOR UPDATE in (registered_at, id) order so the
// debit and credit paths acquire locks in the same sequence.
type TxRepository interface {
	ListProductLotsForUpdate(ctx context.Context, productID int64) ([]stock.Lot, error)
	UpdateLot(ctx context.Context, id int64, quantity int, status stock.LotStatus) error
	GetProductStatus(ctx context.Context, productID int64) (stock.ProductStatus, error)
	UpdateProductStatus(ctx context.Context, productID int64, status stock.ProductStatus) error

	InsertSale(ctx context.Context, sale Sale) (int64, error)
	InsertLineItem(ctx context.Context, item LineItem) (int64, error)
	InsertConsumption(ctx context.Context, c LotConsumption) (int64, error)
	GetSaleForUpdate(ctx context.Context, id int64) (Sale, error)
	GetSaleByTokenForUpdate(ctx context.Context, token string) (Sale, error)
	ListConsumptionsForUpdate(ctx context.Context, saleID int64) ([]ConsumptionLot, error)
	UpdateSaleStatus(ctx context.Context, id int64, status Status) error
	AttachReceipt(ctx context.Context, id int64, receipt Receipt) error
	DeleteConsumptions(ctx context.Context, saleID int64) error
	DeleteLineItems(ctx context.Context, saleID int64) error
	DeleteSale(ctx context.Context, id int64) error
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSale(ctx context.Context, id int64) (*Sale, error)
	GetSaleByToken(ctx context.Context, token string) (*Sale, error)
	ListSales(ctx context.Context, filter Filter) ([]Sale, error)
	ListReceipts(ctx context.Context, limit int) ([]Sale, error)
	GetByReceiptCode(ctx context.Context, code string) (*Sale, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// AlertPort records operational alerts without failing the caller.
type AlertPort interface {
	Record(ctx context.Context, a alerts.Alert)
}

// InvoicePort enqueues receipt issuance for an approved sale.
type InvoicePort interface {
	EnqueueIssue(ctx context.Context, saleID int64) error
}

// Service orchestrates the sale lifecycle: allocation and debit on create,
// exact reversal on cancel and delete, delivery validation by QR token.
type Service struct {
	repo      RepositoryPort
	audit     AuditPort
	alerts    AlertPort
	invoices  InvoicePort
	logger    *slog.Logger
	threshold int
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	LowStockThreshold int
}

// NewService builds Service. Invoice enqueueing and alerting are optional.
func NewService(repo RepositoryPort, audit AuditPort, alertSink AlertPort, invoices InvoicePort, logger *slog.Logger, cfg ServiceConfig) *Service {
	threshold := cfg.LowStockThreshold
	if threshold <= 0 {
		threshold = stock.DefaultLowStockThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, alerts: alertSink, invoices: invoices, logger: logger, threshold: threshold}
}

// Create registers a sale: every line item is allocated against the product's
// active lots oldest first, the lots are debited and consumption rows written,
// all inside one transaction. Any shortfall aborts the whole sale.
func (s *Service) Create(ctx context.Context, req CreateSaleRequest) (Sale, error) {
	if len(req.Items) == 0 {
		return Sale{}, ErrEmptyItems
	}
	if req.DeliveryMode == DeliveryShip && req.AddressID == nil {
		return Sale{}, ErrAddressRequired
	}
	if req.ReceiptType == ReceiptFactura && req.RUC == "" {
		return Sale{}, ErrRUCRequired
	}
	total := 0.0
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return Sale{}, fmt.Errorf("sales: quantity must be positive for product %d", item.ProductID)
		}
		total += float64(item.Quantity) * item.UnitPrice
	}

	status := StatusPending
	if req.Channel == ChannelRemote {
		status = StatusUnderReview
	}
	sale := Sale{
		PurchaserID:   req.PurchaserID,
		AddressID:     req.AddressID,
		PaymentMethod: req.PaymentMethod,
		ReceiptType:   req.ReceiptType,
		RUC:           req.RUC,
		Total:         total,
		Status:        status,
		DeliveryMode:  req.DeliveryMode,
		Channel:       req.Channel,
		QRToken:       uuid.NewString(),
		SoldAt:        time.Now().UTC(),
	}

	var raised []alerts.Alert
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		saleID, err := tx.InsertSale(ctx, sale)
		if err != nil {
			return fmt.Errorf("insert sale: %w", err)
		}
		sale.ID = saleID

		productBefore := map[int64]stock.ProductStatus{}
		productChanges := map[int64][]stock.LotChange{}
		for _, item := range req.Items {
			lots, err := tx.ListProductLotsForUpdate(ctx, item.ProductID)
			if err != nil {
				return fmt.Errorf("lock lots for product %d: %w", item.ProductID, err)
			}
			if _, seen := productBefore[item.ProductID]; !seen {
				before, err := tx.GetProductStatus(ctx, item.ProductID)
				if err != nil {
					return err
				}
				productBefore[item.ProductID] = before
			}
			plan, shortfall := stock.Allocate(lots, item.Quantity)
			if shortfall > 0 {
				available := 0
				for _, lot := range lots {
					if lot.Status == stock.LotStatusActive {
						available += lot.Quantity
					}
				}
				return &InsufficientStockError{ProductID: item.ProductID, Requested: item.Quantity, Available: available}
			}
			line := LineItem{SaleID: saleID, ProductID: item.ProductID, Quantity: item.Quantity, UnitPrice: item.UnitPrice}
			lineID, err := tx.InsertLineItem(ctx, line)
			if err != nil {
				return fmt.Errorf("insert line item: %w", err)
			}
			line.ID = lineID

			byID := make(map[int64]stock.Lot, len(lots))
			for _, lot := range lots {
				byID[lot.ID] = lot
			}
			for _, alloc := range plan {
				lot := byID[alloc.LotID]
				previous := lot.Quantity
				lot.Quantity -= alloc.Quantity
				lot.Status = stock.LotStatusFor(lot.Quantity)
				if err := tx.UpdateLot(ctx, lot.ID, lot.Quantity, lot.Status); err != nil {
					return fmt.Errorf("debit lot %d: %w", lot.ID, err)
				}
				if _, err := tx.InsertConsumption(ctx, LotConsumption{LineItemID: lineID, LotID: lot.ID, Quantity: alloc.Quantity}); err != nil {
					return fmt.Errorf("insert consumption: %w", err)
				}
				line.Consumptions = append(line.Consumptions, LotConsumption{LineItemID: lineID, LotID: lot.ID, Quantity: alloc.Quantity})
				productChanges[item.ProductID] = append(productChanges[item.ProductID], stock.LotChange{Lot: lot, Previous: previous})
			}
			sale.Items = append(sale.Items, line)
		}

		for productID, before := range productBefore {
			lotsAfter, err := tx.ListProductLotsForUpdate(ctx, productID)
			if err != nil {
				return err
			}
			after := stock.ProductStatusFor(lotsAfter)
			if err := tx.UpdateProductStatus(ctx, productID, after); err != nil {
				return err
			}
			raised = append(raised, stock.AlertsForChanges(s.threshold, productID, productChanges[productID], lotsAfter, before, after)...)
		}
		return nil
	})
	if err != nil {
		return Sale{}, err
	}

	saleID := sale.ID
	severity := alerts.SeverityLow
	if sale.Status == StatusUnderReview {
		severity = alerts.SeverityMedium
	}
	raised = append(raised, alerts.Alert{
		Type:     alerts.TypeSale,
		Severity: severity,
		Title:    "Sale created",
		Message:  fmt.Sprintf("Sale %d created with status %s", saleID, sale.Status),
		SaleID:   &saleID,
	})
	s.record(ctx, raised)
	s.recordAudit(ctx, req.ActorID, "sales:create", saleID, map[string]any{
		"purchaser_id": req.PurchaserID,
		"total":        sale.Total,
		"status":       sale.Status,
	})
	return sale, nil
}

// Approve moves an UnderReview sale to Pending and enqueues receipt issuance.
func (s *Service) Approve(ctx context.Context, saleID, actorID int64) (Sale, error) {
	var sale Sale
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetSaleForUpdate(ctx, saleID)
		if err != nil {
			return err
		}
		if current.Receipt != nil {
			return ErrReceiptIssued
		}
		if current.Status != StatusUnderReview {
			return &StateError{SaleID: saleID, From: current.Status, Op: "approve"}
		}
		if err := tx.UpdateSaleStatus(ctx, saleID, StatusPending); err != nil {
			return err
		}
		current.Status = StatusPending
		sale = current
		return nil
	})
	if err != nil {
		return Sale{}, err
	}
	if s.invoices != nil {
		if err := s.invoices.EnqueueIssue(ctx, saleID); err != nil {
			s.logger.Warn("enqueue receipt issuance", slog.Int64("sale_id", saleID), slog.Any("error", err))
		}
	}
	s.recordAudit(ctx, actorID, "sales:approve", saleID, nil)
	return sale, nil
}

// Cancel moves an UnderReview or Pending sale to Cancelled and credits every
// consumption back to its lot. Cancelling twice is a state error, never a
// silent no-op. The reason, when given, is kept on the audit log and the
// raised alert.
func (s *Service) Cancel(ctx context.Context, saleID, actorID int64, reason string) (Sale, error) {
	var sale Sale
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetSaleForUpdate(ctx, saleID)
		if err != nil {
			return err
		}
		if current.Status != StatusUnderReview && current.Status != StatusPending {
			return &StateError{SaleID: saleID, From: current.Status, Op: "cancel"}
		}
		if err := s.creditSale(ctx, tx, saleID); err != nil {
			return err
		}
		if err := tx.UpdateSaleStatus(ctx, saleID, StatusCancelled); err != nil {
			return err
		}
		current.Status = StatusCancelled
		sale = current
		return nil
	})
	if err != nil {
		return Sale{}, err
	}
	message := fmt.Sprintf("Sale %d was cancelled and its stock credited back", saleID)
	var meta map[string]any
	if reason != "" {
		message = fmt.Sprintf("Sale %d was cancelled (%s) and its stock credited back", saleID, reason)
		meta = map[string]any{"reason": reason}
	}
	s.record(ctx, []alerts.Alert{{
		Type:     alerts.TypeSale,
		Severity: alerts.SeverityHigh,
		Title:    "Sale cancelled",
		Message:  message,
		SaleID:   &saleID,
	}})
	s.recordAudit(ctx, actorID, "sales:cancel", saleID, meta)
	return sale, nil
}

// Delete removes a sale and its rows. A sale that still holds stock is
// credited back first; a Cancelled sale was already credited and is not
// credited again.
func (s *Service) Delete(ctx context.Context, saleID, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetSaleForUpdate(ctx, saleID)
		if err != nil {
			return err
		}
		if current.Status != StatusCancelled {
			if err := s.creditSale(ctx, tx, saleID); err != nil {
				return err
			}
		}
		if err := tx.DeleteConsumptions(ctx, saleID); err != nil {
			return err
		}
		if err := tx.DeleteLineItems(ctx, saleID); err != nil {
			return err
		}
		return tx.DeleteSale(ctx, saleID)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "sales:delete", saleID, nil)
	return nil
}

// ValidateDelivery marks the sale behind the QR token as Delivered. Only a
// Pending sale can be delivered; Delivered and Cancelled report distinct
// errors so scanners can show why the code is void.
func (s *Service) ValidateDelivery(ctx context.Context, token string) (Sale, error) {
	var sale Sale
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetSaleByTokenForUpdate(ctx, token)
		if err != nil {
			return err
		}
		switch current.Status {
		case StatusDelivered:
			return ErrAlreadyDelivered
		case StatusCancelled:
			return ErrSaleCancelled
		case StatusPending:
		default:
			return &StateError{SaleID: current.ID, From: current.Status, Op: "deliver"}
		}
		if err := tx.UpdateSaleStatus(ctx, current.ID, StatusDelivered); err != nil {
			return err
		}
		current.Status = StatusDelivered
		sale = current
		return nil
	})
	if err != nil {
		return Sale{}, err
	}
	s.recordAudit(ctx, 0, "sales:deliver", sale.ID, map[string]any{"token": token})
	return sale, nil
}

// AttachReceipt stores the provider's receipt on a Pending sale.
func (s *Service) AttachReceipt(ctx context.Context, saleID int64, receipt Receipt) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetSaleForUpdate(ctx, saleID)
		if err != nil {
			return err
		}
		if current.Receipt != nil {
			return ErrReceiptIssued
		}
		if current.Status != StatusPending {
			return &StateError{SaleID: saleID, From: current.Status, Op: "attach receipt"}
		}
		return tx.AttachReceipt(ctx, saleID, receipt)
	})
}

// Get returns one sale with its line items and consumptions.
func (s *Service) Get(ctx context.Context, id int64) (*Sale, error) {
	return s.repo.GetSale(ctx, id)
}

// GetByToken returns the sale carrying the QR token, without mutating it.
func (s *Service) GetByToken(ctx context.Context, token string) (*Sale, error) {
	return s.repo.GetSaleByToken(ctx, token)
}

// List returns sales matching the filter, newest first.
func (s *Service) List(ctx context.Context, filter Filter) ([]Sale, error) {
	return s.repo.ListSales(ctx, filter)
}

// ListReceipts returns sales with an issued receipt, newest issuance first.
func (s *Service) ListReceipts(ctx context.Context, limit int) ([]Sale, error) {
	return s.repo.ListReceipts(ctx, limit)
}

// GetByReceiptCode returns the sale behind a receipt's unique code.
func (s *Service) GetByReceiptCode(ctx context.Context, code string) (*Sale, error) {
	return s.repo.GetByReceiptCode(ctx, code)
}

// creditSale puts every consumed unit back on its source lot and recomputes
// lot and product statuses. Lots arrive locked in (registered_at, id) order,
// matching the allocation path.
func (s *Service) creditSale(ctx context.Context, tx TxRepository, saleID int64) error {
	rows, err := tx.ListConsumptionsForUpdate(ctx, saleID)
	if err != nil {
		return fmt.Errorf("lock consumptions: %w", err)
	}
	products := map[int64]struct{}{}
	current := map[int64]stock.Lot{}
	for _, row := range rows {
		lot, ok := current[row.Lot.ID]
		if !ok {
			lot = row.Lot
		}
		lot.Quantity += row.Consumption.Quantity
		lot.Status = stock.LotStatusFor(lot.Quantity)
		if err := tx.UpdateLot(ctx, lot.ID, lot.Quantity, lot.Status); err != nil {
			return fmt.Errorf("credit lot %d: %w", lot.ID, err)
		}
		current[lot.ID] = lot
		products[lot.ProductID] = struct{}{}
	}
	for productID := range products {
		lots, err := tx.ListProductLotsForUpdate(ctx, productID)
		if err != nil {
			return err
		}
		if err := tx.UpdateProductStatus(ctx, productID, stock.ProductStatusFor(lots)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) record(ctx context.Context, raised []alerts.Alert) {
	if s.alerts == nil {
		return
	}
	for _, a := range raised {
		s.alerts.Record(ctx, a)
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, saleID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "sale",
		EntityID: fmt.Sprintf("%d", saleID),
		Meta:     meta,
	})
}
