// Package addresses keeps the delivery address book sales reference.
package addresses

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Address is a delivery destination owned by a purchaser.
type Address struct {
	ID        int64  `json:"id"`
	UserID    int64  `json:"user_id"`
	City      string `json:"city"`
	Street    string `json:"street"`
	Reference string `json:"reference,omitempty"`
}

// CreateAddressInput describes an address registration.
type CreateAddressInput struct {
	UserID    int64  `json:"user_id" validate:"required,gt=0"`
	City      string `json:"city" validate:"required,max=80"`
	Street    string `json:"street" validate:"required,max=160"`
	Reference string `json:"reference,omitempty" validate:"max=255"`
}

// ErrNotFound indicates the address does not exist.
var ErrNotFound = errors.New("addresses: not found")

// Repository provides PostgreSQL backed persistence for addresses.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stores an address and returns its id.
func (r *Repository) Insert(ctx context.Context, a Address) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO addresses (user_id, city, street, reference)
VALUES ($1, $2, $3, $4) RETURNING id`, a.UserID, a.City, a.Street, a.Reference).Scan(&id)
	return id, err
}

// Get returns one address.
func (r *Repository) Get(ctx context.Context, id int64) (*Address, error) {
	var a Address
	err := r.pool.QueryRow(ctx, `SELECT id, user_id, city, street, reference FROM addresses WHERE id = $1`, id).
		Scan(&a.ID, &a.UserID, &a.City, &a.Street, &a.Reference)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// ListByUser returns a purchaser's addresses.
func (r *Repository) ListByUser(ctx context.Context, userID int64) ([]Address, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, user_id, city, street, reference FROM addresses WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Address
	for rows.Next() {
		var a Address
		if err := rows.Scan(&a.ID, &a.UserID, &a.City, &a.Street, &a.Reference); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Delete removes an address.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM addresses WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
