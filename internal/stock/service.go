package stock

import (
	"context"
	"fmt"
	"time"

	"github.com/kipuventas/kipu/internal/alerts"
	"github.com/kipuventas/kipu/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetLot(ctx context.Context, id int64) (*Lot, error)
	ListLots(ctx context.Context, filter LotFilter) ([]Lot, error)
	ListProductLots(ctx context.Context, productID int64) ([]Lot, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// AlertPort records operational alerts without failing the caller.
type AlertPort interface {
	Record(ctx context.Context, a alerts.Alert)
}

// Service coordinates lot registrations, manual adjustments and the status
// propagation that keeps lot and product states consistent with quantities.
type Service struct {
	repo      RepositoryPort
	audit     AuditPort
	alerts    AlertPort
	threshold int
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	LowStockThreshold int
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, alertSink AlertPort, cfg ServiceConfig) *Service {
	threshold := cfg.LowStockThreshold
	if threshold <= 0 {
		threshold = DefaultLowStockThreshold
	}
	return &Service{repo: repo, audit: audit, alerts: alertSink, threshold: threshold}
}

// CreateLot registers a new lot and recomputes the product status.
func (s *Service) CreateLot(ctx context.Context, input CreateLotInput) (Lot, error) {
	if input.ProductID == 0 {
		return Lot{}, ErrProductNotFound
	}
	if input.Quantity < 0 {
		return Lot{}, ErrInvalidQuantity
	}
	registeredAt := input.RegisteredAt
	if registeredAt.IsZero() {
		registeredAt = time.Now().UTC()
	}
	lot := Lot{
		ProductID:    input.ProductID,
		Label:        input.Label,
		RegisteredAt: registeredAt,
		Quantity:     input.Quantity,
		Status:       LotStatusFor(input.Quantity),
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		exists, err := tx.ProductExists(ctx, input.ProductID)
		if err != nil {
			return err
		}
		if !exists {
			return ErrProductNotFound
		}
		id, err := tx.InsertLot(ctx, lot)
		if err != nil {
			return err
		}
		lot.ID = id
		lots, err := tx.ListProductLotsForUpdate(ctx, input.ProductID)
		if err != nil {
			return err
		}
		return tx.UpdateProductStatus(ctx, input.ProductID, ProductStatusFor(lots))
	})
	if err != nil {
		return Lot{}, err
	}
	s.recordAudit(ctx, 0, "stock:lot_create", lot.ID, map[string]any{
		"product_id": lot.ProductID,
		"label":      lot.Label,
		"quantity":   lot.Quantity,
	})
	return lot, nil
}

// AdjustLot sets a lot's quantity, propagates lot and product status and
// raises the stock alerts the change implies.
func (s *Service) AdjustLot(ctx context.Context, input AdjustLotInput) (Lot, error) {
	if input.Quantity < 0 {
		return Lot{}, ErrInvalidQuantity
	}
	var (
		updated Lot
		raised  []alerts.Alert
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		lot, err := tx.GetLotForUpdate(ctx, input.LotID)
		if err != nil {
			return err
		}
		before, err := tx.GetProductStatus(ctx, lot.ProductID)
		if err != nil {
			return err
		}
		previous := lot.Quantity
		lot.Quantity = input.Quantity
		lot.Status = LotStatusFor(input.Quantity)
		if err := tx.UpdateLot(ctx, lot.ID, lot.Quantity, lot.Status); err != nil {
			return err
		}
		lots, err := tx.ListProductLotsForUpdate(ctx, lot.ProductID)
		if err != nil {
			return err
		}
		after := ProductStatusFor(lots)
		if err := tx.UpdateProductStatus(ctx, lot.ProductID, after); err != nil {
			return err
		}
		updated = lot
		raised = AlertsForChanges(s.threshold, lot.ProductID, []LotChange{{Lot: lot, Previous: previous}}, lots, before, after)
		return nil
	})
	if err != nil {
		return Lot{}, err
	}
	if s.alerts != nil {
		for _, a := range raised {
			s.alerts.Record(ctx, a)
		}
	}
	s.recordAudit(ctx, input.ActorID, "stock:lot_adjust", updated.ID, map[string]any{
		"product_id": updated.ProductID,
		"quantity":   updated.Quantity,
		"note":       input.Note,
	})
	return updated, nil
}

// DeleteLot removes a lot that no sale consumption references, then
// recomputes the product status from the remaining lots.
func (s *Service) DeleteLot(ctx context.Context, id int64, actorID int64) error {
	var productID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		lot, err := tx.GetLotForUpdate(ctx, id)
		if err != nil {
			return err
		}
		refs, err := tx.CountLotConsumptions(ctx, id)
		if err != nil {
			return err
		}
		if refs > 0 {
			return fmt.Errorf("%w: %d consumption rows", ErrLotReferenced, refs)
		}
		if err := tx.DeleteLot(ctx, id); err != nil {
			return err
		}
		productID = lot.ProductID
		lots, err := tx.ListProductLotsForUpdate(ctx, lot.ProductID)
		if err != nil {
			return err
		}
		return tx.UpdateProductStatus(ctx, lot.ProductID, ProductStatusFor(lots))
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "stock:lot_delete", id, map[string]any{"product_id": productID})
	return nil
}

// GetLot returns one lot.
func (s *Service) GetLot(ctx context.Context, id int64) (*Lot, error) {
	return s.repo.GetLot(ctx, id)
}

// ListLots lists lots matching the filter.
func (s *Service) ListLots(ctx context.Context, filter LotFilter) ([]Lot, error) {
	return s.repo.ListLots(ctx, filter)
}

// ProductAvailability reports a product's sellable quantity and derived
// status from an unlocked snapshot of its lots.
func (s *Service) ProductAvailability(ctx context.Context, productID int64) (int, ProductStatus, error) {
	lots, err := s.repo.ListProductLots(ctx, productID)
	if err != nil {
		return 0, "", err
	}
	available := 0
	for _, lot := range lots {
		if lot.Status == LotStatusActive {
			available += lot.Quantity
		}
	}
	return available, ProductStatusFor(lots), nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, lotID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "lot",
		EntityID: fmt.Sprintf("%d", lotID),
		Meta:     meta,
	})
}
