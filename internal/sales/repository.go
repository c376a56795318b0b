package sales

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kipuventas/kipu/internal/platform/db"
	"github.com/kipuventas/kipu/internal/stock"
)

// Repository provides PostgreSQL backed persistence for sales.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
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

const saleColumns = `id, purchaser_id, address_id, payment_method, receipt_type, ruc, total, status,
delivery_mode, channel, qr_token, sold_at,
receipt_code, receipt_series, receipt_number, receipt_pdf_url, receipt_provider_key, receipt_issued_at`

func scanSale(row pgx.Row) (Sale, error) {
	var (
		sale                                   Sale
		code, series, number, pdfURL, provider *string
		issuedAt                               *time.Time
	)
	err := row.Scan(&sale.ID, &sale.PurchaserID, &sale.AddressID, &sale.PaymentMethod, &sale.ReceiptType,
		&sale.RUC, &sale.Total, &sale.Status, &sale.DeliveryMode, &sale.Channel, &sale.QRToken, &sale.SoldAt,
		&code, &series, &number, &pdfURL, &provider, &issuedAt)
	if err != nil {
		return Sale{}, err
	}
	if code != nil {
		receipt := Receipt{Code: *code}
		if series != nil {
			receipt.Series = *series
		}
		if number != nil {
			receipt.Number = *number
		}
		if pdfURL != nil {
			receipt.PDFURL = *pdfURL
		}
		if provider != nil {
			receipt.ProviderKey = *provider
		}
		if issuedAt != nil {
			receipt.IssuedAt = *issuedAt
		}
		sale.Receipt = &receipt
	}
	return sale, nil
}

// GetSale returns one sale with its line items and consumptions.
func (r *Repository) GetSale(ctx context.Context, id int64) (*Sale, error) {
	sale, err := scanSale(r.pool.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSaleNotFound
		}
		return nil, err
	}
	if err := r.loadItems(ctx, &sale); err != nil {
		return nil, err
	}
	return &sale, nil
}

// GetSaleByToken returns the sale carrying the QR token.
func (r *Repository) GetSaleByToken(ctx context.Context, token string) (*Sale, error) {
	sale, err := scanSale(r.pool.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE qr_token = $1`, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	if err := r.loadItems(ctx, &sale); err != nil {
		return nil, err
	}
	return &sale, nil
}

// ListSales returns sale headers newest first, honouring the filter.
func (r *Repository) ListSales(ctx context.Context, filter Filter) ([]Sale, error) {
	query := `SELECT ` + saleColumns + ` FROM sales WHERE 1=1`
	args := []any{}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += ` AND status = $` + strconv.Itoa(len(args))
	}
	if filter.PurchaserID != 0 {
		args = append(args, filter.PurchaserID)
		query += ` AND purchaser_id = $` + strconv.Itoa(len(args))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		query += ` AND sold_at >= $` + strconv.Itoa(len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		query += ` AND sold_at < $` + strconv.Itoa(len(args))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	args = append(args, limit)
	query += ` ORDER BY sold_at DESC, id DESC LIMIT $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sales []Sale
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	return sales, rows.Err()
}

// ListReceipts returns sales with an issued receipt, newest issuance first.
func (r *Repository) ListReceipts(ctx context.Context, limit int) ([]Sale, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT `+saleColumns+` FROM sales
WHERE receipt_code IS NOT NULL ORDER BY receipt_issued_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sales []Sale
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	return sales, rows.Err()
}

// GetByReceiptCode returns the sale carrying the receipt's unique code.
func (r *Repository) GetByReceiptCode(ctx context.Context, code string) (*Sale, error) {
	sale, err := scanSale(r.pool.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE receipt_code = $1`, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReceiptNotFound
		}
		return nil, err
	}
	if err := r.loadItems(ctx, &sale); err != nil {
		return nil, err
	}
	return &sale, nil
}

func (r *Repository) loadItems(ctx context.Context, sale *Sale) error {
	rows, err := r.pool.Query(ctx, `SELECT i.id, i.sale_id, i.product_id, i.quantity, i.unit_price
FROM sale_items i WHERE i.sale_id = $1 ORDER BY i.id`, sale.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	byID := map[int64]int{}
	for rows.Next() {
		var item LineItem
		if err := rows.Scan(&item.ID, &item.SaleID, &item.ProductID, &item.Quantity, &item.UnitPrice); err != nil {
			return err
		}
		sale.Items = append(sale.Items, item)
		byID[item.ID] = len(sale.Items) - 1
	}
	if err := rows.Err(); err != nil {
		return err
	}

	crows, err := r.pool.Query(ctx, `SELECT c.id, c.sale_item_id, c.lot_id, c.quantity
FROM lot_consumptions c
JOIN sale_items i ON i.id = c.sale_item_id
WHERE i.sale_id = $1 ORDER BY c.id`, sale.ID)
	if err != nil {
		return err
	}
	defer crows.Close()
	for crows.Next() {
		var c LotConsumption
		if err := crows.Scan(&c.ID, &c.LineItemID, &c.LotID, &c.Quantity); err != nil {
			return err
		}
		if idx, ok := byID[c.LineItemID]; ok {
			sale.Items[idx].Consumptions = append(sale.Items[idx].Consumptions, c)
		}
	}
	return crows.Err()
}

const lotColumns = `id, product_id, label, registered_at, quantity, status`

func (t *txRepo) ListProductLotsForUpdate(ctx context.Context, productID int64) ([]stock.Lot, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+lotColumns+` FROM lots WHERE product_id = $1 ORDER BY registered_at, id FOR UPDATE`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lots []stock.Lot
	for rows.Next() {
		var lot stock.Lot
		if err := rows.Scan(&lot.ID, &lot.ProductID, &lot.Label, &lot.RegisteredAt, &lot.Quantity, &lot.Status); err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}

func (t *txRepo) UpdateLot(ctx context.Context, id int64, quantity int, status stock.LotStatus) error {
	tag, err := t.tx.Exec(ctx, `UPDATE lots SET quantity = $2, status = $3 WHERE id = $1`, id, quantity, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return stock.ErrLotNotFound
	}
	return nil
}

func (t *txRepo) GetProductStatus(ctx context.Context, productID int64) (stock.ProductStatus, error) {
	var status stock.ProductStatus
	err := t.tx.QueryRow(ctx, `SELECT status FROM products WHERE id = $1`, productID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", stock.ErrProductNotFound
		}
		return "", err
	}
	return status, nil
}

func (t *txRepo) UpdateProductStatus(ctx context.Context, productID int64, status stock.ProductStatus) error {
	tag, err := t.tx.Exec(ctx, `UPDATE products SET status = $2 WHERE id = $1`, productID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return stock.ErrProductNotFound
	}
	return nil
}

func (t *txRepo) InsertSale(ctx context.Context, sale Sale) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO sales (purchaser_id, address_id, payment_method, receipt_type, ruc, total, status, delivery_mode, channel, qr_token, sold_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`,
		sale.PurchaserID, sale.AddressID, sale.PaymentMethod, sale.ReceiptType, sale.RUC, sale.Total,
		sale.Status, sale.DeliveryMode, sale.Channel, sale.QRToken, sale.SoldAt).Scan(&id)
	return id, err
}

func (t *txRepo) InsertLineItem(ctx context.Context, item LineItem) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO sale_items (sale_id, product_id, quantity, unit_price)
VALUES ($1, $2, $3, $4) RETURNING id`,
		item.SaleID, item.ProductID, item.Quantity, item.UnitPrice).Scan(&id)
	return id, err
}

func (t *txRepo) InsertConsumption(ctx context.Context, c LotConsumption) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO lot_consumptions (sale_item_id, lot_id, quantity)
VALUES ($1, $2, $3) RETURNING id`,
		c.LineItemID, c.LotID, c.Quantity).Scan(&id)
	return id, err
}

func (t *txRepo) GetSaleForUpdate(ctx context.Context, id int64) (Sale, error) {
	sale, err := scanSale(t.tx.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sale{}, ErrSaleNotFound
		}
		return Sale{}, err
	}
	return sale, nil
}

func (t *txRepo) GetSaleByTokenForUpdate(ctx context.Context, token string) (Sale, error) {
	sale, err := scanSale(t.tx.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE qr_token = $1 FOR UPDATE`, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sale{}, ErrTokenNotFound
		}
		return Sale{}, err
	}
	return sale, nil
}

// ListConsumptionsForUpdate returns the sale's consumption rows joined with
// their lots, locking the lot rows in (registered_at, id) order so reversal
// takes locks in the same sequence as allocation.
func (t *txRepo) ListConsumptionsForUpdate(ctx context.Context, saleID int64) ([]ConsumptionLot, error) {
	rows, err := t.tx.Query(ctx, `SELECT c.id, c.sale_item_id, c.lot_id, c.quantity,
l.id, l.product_id, l.label, l.registered_at, l.quantity, l.status
FROM lot_consumptions c
JOIN sale_items i ON i.id = c.sale_item_id
JOIN lots l ON l.id = c.lot_id
WHERE i.sale_id = $1
ORDER BY l.registered_at, l.id, c.id
FOR UPDATE OF l`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ConsumptionLot
	for rows.Next() {
		var row ConsumptionLot
		if err := rows.Scan(&row.Consumption.ID, &row.Consumption.LineItemID, &row.Consumption.LotID, &row.Consumption.Quantity,
			&row.Lot.ID, &row.Lot.ProductID, &row.Lot.Label, &row.Lot.RegisteredAt, &row.Lot.Quantity, &row.Lot.Status); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func (t *txRepo) UpdateSaleStatus(ctx context.Context, id int64, status Status) error {
	tag, err := t.tx.Exec(ctx, `UPDATE sales SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSaleNotFound
	}
	return nil
}

func (t *txRepo) AttachReceipt(ctx context.Context, id int64, receipt Receipt) error {
	issuedAt := receipt.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = time.Now().UTC()
	}
	tag, err := t.tx.Exec(ctx, `UPDATE sales SET receipt_code = $2, receipt_series = $3, receipt_number = $4,
receipt_pdf_url = $5, receipt_provider_key = $6, receipt_issued_at = $7 WHERE id = $1`,
		id, receipt.Code, receipt.Series, receipt.Number, receipt.PDFURL, receipt.ProviderKey, issuedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSaleNotFound
	}
	return nil
}

func (t *txRepo) DeleteConsumptions(ctx context.Context, saleID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM lot_consumptions c USING sale_items i
WHERE c.sale_item_id = i.id AND i.sale_id = $1`, saleID)
	return err
}

func (t *txRepo) DeleteLineItems(ctx context.Context, saleID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM sale_items WHERE sale_id = $1`, saleID)
	return err
}

func (t *txRepo) DeleteSale(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM sales WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSaleNotFound
	}
	return nil
}
