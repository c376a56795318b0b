package catalog

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kipuventas/kipu/internal/stock"
)

// Repository provides PostgreSQL backed persistence for the catalog.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const productColumns = `id, name, description, brand, category_id, unit_price, image_path, status, registered_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Brand, &p.CategoryID, &p.UnitPrice, &p.ImagePath, &p.Status, &p.RegisteredAt)
	return p, err
}

// InsertProduct stores a product. New products start Inactive until a lot
// supplies them.
func (r *Repository) InsertProduct(ctx context.Context, p Product) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO products (name, description, brand, category_id, unit_price, image_path, status, registered_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NOW()) RETURNING id`,
		p.Name, p.Description, p.Brand, p.CategoryID, p.UnitPrice, p.ImagePath, stock.ProductStatusInactive).Scan(&id)
	return id, err
}

// UpdateProduct updates the editable columns. Status is owned by stock.
func (r *Repository) UpdateProduct(ctx context.Context, id int64, p Product) error {
	tag, err := r.pool.Exec(ctx, `UPDATE products SET name = $2, description = $3, brand = $4, category_id = $5, unit_price = $6, image_path = $7 WHERE id = $1`,
		id, p.Name, p.Description, p.Brand, p.CategoryID, p.UnitPrice, p.ImagePath)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

// GetProduct returns one product.
func (r *Repository) GetProduct(ctx context.Context, id int64) (*Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return &p, nil
}

// ListProducts returns products honouring the SQL-expressible filters.
// Folded name/brand matching happens in the service.
func (r *Repository) ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE 1=1`
	args := []any{}
	if filter.CategoryID != 0 {
		args = append(args, filter.CategoryID)
		query += ` AND category_id = $` + strconv.Itoa(len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += ` AND status = $` + strconv.Itoa(len(args))
	}
	if filter.MinPrice != nil {
		args = append(args, *filter.MinPrice)
		query += ` AND unit_price >= $` + strconv.Itoa(len(args))
	}
	if filter.MaxPrice != nil {
		args = append(args, *filter.MaxPrice)
		query += ` AND unit_price <= $` + strconv.Itoa(len(args))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	args = append(args, limit)
	query += ` ORDER BY name, id LIMIT $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// CountProductReferences counts lots and sale line items pointing at the
// product.
func (r *Repository) CountProductReferences(ctx context.Context, id int64) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT
(SELECT COUNT(*) FROM lots WHERE product_id = $1) +
(SELECT COUNT(*) FROM sale_items WHERE product_id = $1)`, id).Scan(&n)
	return n, err
}

// DeleteProduct removes a product.
func (r *Repository) DeleteProduct(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

// Storefront returns every product with its sellable quantity (sum over
// active lots) and the registration date of its newest lot.
func (r *Repository) Storefront(ctx context.Context) ([]StorefrontEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT p.id, p.name, p.description, p.brand, p.category_id, p.unit_price, p.image_path, p.status, p.registered_at,
COALESCE(SUM(l.quantity) FILTER (WHERE l.status = 'Active'), 0),
MAX(l.registered_at)
FROM products p
LEFT JOIN lots l ON l.product_id = p.id
GROUP BY p.id
ORDER BY p.name, p.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []StorefrontEntry
	for rows.Next() {
		var e StorefrontEntry
		if err := rows.Scan(&e.ID, &e.Name, &e.Description, &e.Brand, &e.CategoryID, &e.UnitPrice, &e.ImagePath, &e.Status, &e.RegisteredAt,
			&e.Available, &e.LatestLotAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// InsertCategory stores a category.
func (r *Repository) InsertCategory(ctx context.Context, name string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO categories (name) VALUES ($1) RETURNING id`, name).Scan(&id)
	return id, err
}

// UpdateCategory renames a category.
func (r *Repository) UpdateCategory(ctx context.Context, id int64, name string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE categories SET name = $2 WHERE id = $1`, id, name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCategoryNotFound
	}
	return nil
}

// ListCategories returns all categories by name.
func (r *Repository) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name FROM categories ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// CountCategoryProducts counts products in a category.
func (r *Repository) CountCategoryProducts(ctx context.Context, id int64) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products WHERE category_id = $1`, id).Scan(&n)
	return n, err
}

// DeleteCategory removes a category.
func (r *Repository) DeleteCategory(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCategoryNotFound
	}
	return nil
}
