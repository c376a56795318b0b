package alerts

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates the alert does not exist.
var ErrNotFound = errors.New("alerts: not found")

// Repository provides PostgreSQL backed persistence for alerts.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stores one alert and returns its id.
func (r *Repository) Insert(ctx context.Context, a Alert) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO alerts (type, severity, title, message, read, user_id, sale_id, product_id, lot_id, created_at)
VALUES ($1, $2, $3, $4, false, $5, $6, $7, $8, NOW()) RETURNING id`,
		a.Type, a.Severity, a.Title, a.Message, a.UserID, a.SaleID, a.ProductID, a.LotID).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// List returns alerts newest first, honouring the filter.
func (r *Repository) List(ctx context.Context, filter Filter) ([]Alert, error) {
	query := `SELECT id, type, severity, title, message, read, user_id, sale_id, product_id, lot_id, created_at
FROM alerts WHERE 1=1`
	args := []any{}
	if filter.Type != "" {
		args = append(args, filter.Type)
		query += ` AND type = $` + itoa(len(args))
	}
	if filter.Severity != "" {
		args = append(args, filter.Severity)
		query += ` AND severity = $` + itoa(len(args))
	}
	if filter.Read != nil {
		args = append(args, *filter.Read)
		query += ` AND read = $` + itoa(len(args))
	}
	if filter.UserID != 0 {
		args = append(args, filter.UserID)
		query += ` AND user_id = $` + itoa(len(args))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	args = append(args, limit)
	query += ` ORDER BY created_at DESC, id DESC LIMIT $` + itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Alert
	for rows.Next() {
		var a Alert
		if err := rows.Scan(&a.ID, &a.Type, &a.Severity, &a.Title, &a.Message, &a.Read, &a.UserID, &a.SaleID, &a.ProductID, &a.LotID, &a.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

// MarkRead flags an alert as read.
func (r *Repository) MarkRead(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE alerts SET read = true WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes an alert.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM alerts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Get returns one alert by id.
func (r *Repository) Get(ctx context.Context, id int64) (*Alert, error) {
	var a Alert
	err := r.pool.QueryRow(ctx, `SELECT id, type, severity, title, message, read, user_id, sale_id, product_id, lot_id, created_at
FROM alerts WHERE id = $1`, id).Scan(&a.ID, &a.Type, &a.Severity, &a.Title, &a.Message, &a.Read, &a.UserID, &a.SaleID, &a.ProductID, &a.LotID, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
