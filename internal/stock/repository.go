package stock

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kipuventas/kipu/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for the stock ledger.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by the service. Lot rows
// are always locked and listed in (registered_at, id) order so concurrent
// transactions acquire them in the same sequence.
type TxRepository interface {
	ProductExists(ctx context.Context, productID int64) (bool, error)
	GetProductStatus(ctx context.Context, productID int64) (ProductStatus, error)
	ListProductLotsForUpdate(ctx context.Context, productID int64) ([]Lot, error)
	GetLotForUpdate(ctx context.Context, id int64) (Lot, error)
	InsertLot(ctx context.Context, lot Lot) (int64, error)
	UpdateLot(ctx context.Context, id int64, quantity int, status LotStatus) error
	UpdateProductStatus(ctx context.Context, productID int64, status ProductStatus) error
	CountLotConsumptions(ctx context.Context, lotID int64) (int64, error)
	DeleteLot(ctx context.Context, id int64) error
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps the callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const lotColumns = `id, product_id, label, registered_at, quantity, status`

func scanLot(row pgx.Row) (Lot, error) {
	var lot Lot
	err := row.Scan(&lot.ID, &lot.ProductID, &lot.Label, &lot.RegisteredAt, &lot.Quantity, &lot.Status)
	return lot, err
}

// GetLot returns one lot without locking it.
func (r *Repository) GetLot(ctx context.Context, id int64) (*Lot, error) {
	lot, err := scanLot(r.pool.QueryRow(ctx, `SELECT `+lotColumns+` FROM lots WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLotNotFound
		}
		return nil, err
	}
	return &lot, nil
}

// ListLots returns lots honouring the filter, newest label first.
func (r *Repository) ListLots(ctx context.Context, filter LotFilter) ([]Lot, error) {
	query := `SELECT ` + lotColumns + ` FROM lots WHERE 1=1`
	args := []any{}
	if filter.ProductID != 0 {
		args = append(args, filter.ProductID)
		query += ` AND product_id = $` + strconv.Itoa(len(args))
	}
	if filter.Label != "" {
		args = append(args, "%"+filter.Label+"%")
		query += ` AND label ILIKE $` + strconv.Itoa(len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += ` AND status = $` + strconv.Itoa(len(args))
	}
	if filter.MinQuantity != nil {
		args = append(args, *filter.MinQuantity)
		query += ` AND quantity >= $` + strconv.Itoa(len(args))
	}
	if filter.MaxQuantity != nil {
		args = append(args, *filter.MaxQuantity)
		query += ` AND quantity <= $` + strconv.Itoa(len(args))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	args = append(args, limit)
	query += ` ORDER BY label DESC, id DESC LIMIT $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lots []Lot
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}

// ListProductLots returns an unlocked snapshot of a product's lots.
func (r *Repository) ListProductLots(ctx context.Context, productID int64) ([]Lot, error) {
	return listProductLots(ctx, r.pool, productID, false)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listProductLots(ctx context.Context, q querier, productID int64, lock bool) ([]Lot, error) {
	query := `SELECT ` + lotColumns + ` FROM lots WHERE product_id = $1 ORDER BY registered_at, id`
	if lock {
		query += ` FOR UPDATE`
	}
	rows, err := q.Query(ctx, query, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lots []Lot
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}

func (t *txRepo) ProductExists(ctx context.Context, productID int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists)
	return exists, err
}

func (t *txRepo) GetProductStatus(ctx context.Context, productID int64) (ProductStatus, error) {
	var status ProductStatus
	err := t.tx.QueryRow(ctx, `SELECT status FROM products WHERE id = $1`, productID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrProductNotFound
		}
		return "", err
	}
	return status, nil
}

func (t *txRepo) ListProductLotsForUpdate(ctx context.Context, productID int64) ([]Lot, error) {
	return listProductLots(ctx, t.tx, productID, true)
}

func (t *txRepo) GetLotForUpdate(ctx context.Context, id int64) (Lot, error) {
	lot, err := scanLot(t.tx.QueryRow(ctx, `SELECT `+lotColumns+` FROM lots WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lot{}, ErrLotNotFound
		}
		return Lot{}, err
	}
	return lot, nil
}

func (t *txRepo) InsertLot(ctx context.Context, lot Lot) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO lots (product_id, label, registered_at, quantity, status)
VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		lot.ProductID, lot.Label, lot.RegisteredAt, lot.Quantity, lot.Status).Scan(&id)
	return id, err
}

func (t *txRepo) UpdateLot(ctx context.Context, id int64, quantity int, status LotStatus) error {
	tag, err := t.tx.Exec(ctx, `UPDATE lots SET quantity = $2, status = $3 WHERE id = $1`, id, quantity, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrLotNotFound
	}
	return nil
}

func (t *txRepo) UpdateProductStatus(ctx context.Context, productID int64, status ProductStatus) error {
	tag, err := t.tx.Exec(ctx, `UPDATE products SET status = $2 WHERE id = $1`, productID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (t *txRepo) CountLotConsumptions(ctx context.Context, lotID int64) (int64, error) {
	var n int64
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM lot_consumptions WHERE lot_id = $1`, lotID).Scan(&n)
	return n, err
}

func (t *txRepo) DeleteLot(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM lots WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrLotNotFound
	}
	return nil
}
