package stock

import (
	"errors"
	"time"
)

// LotStatus enumerates lot availability states.
type LotStatus string

const (
	// LotStatusActive marks a lot with remaining stock.
	LotStatusActive LotStatus = "Active"
	// LotStatusInactive marks an exhausted lot.
	LotStatusInactive LotStatus = "Inactive"
)

// ProductStatus enumerates derived product availability states. It is
// recomputed from the product's lots and never set by callers directly.
type ProductStatus string

const (
	// ProductStatusSupplied indicates sellable stock in at least one active lot.
	ProductStatusSupplied ProductStatus = "Supplied"
	// ProductStatusOutOfStock indicates remaining stock sits only in inactive lots.
	ProductStatusOutOfStock ProductStatus = "OutOfStock"
	// ProductStatusInactive indicates zero stock across all lots.
	ProductStatusInactive ProductStatus = "Inactive"
)

// Lot models a batch of a product with its own registration date and
// remaining quantity.
type Lot struct {
	ID           int64     `json:"id"`
	ProductID    int64     `json:"product_id"`
	Label        string    `json:"label"`
	RegisteredAt time.Time `json:"registered_at"`
	Quantity     int       `json:"quantity"`
	Status       LotStatus `json:"status"`
}

// CreateLotInput describes a lot registration request.
type CreateLotInput struct {
	ProductID    int64     `json:"product_id" validate:"required,gt=0"`
	Label        string    `json:"label" validate:"required,max=80"`
	RegisteredAt time.Time `json:"registered_at"`
	Quantity     int       `json:"quantity" validate:"gte=0"`
}

// AdjustLotInput describes a manual stock adjustment on one lot.
type AdjustLotInput struct {
	LotID    int64  `json:"lot_id" validate:"required,gt=0"`
	Quantity int    `json:"quantity" validate:"gte=0"`
	Note     string `json:"note,omitempty" validate:"max=255"`
	ActorID  int64  `json:"actor_id,omitempty"`
}

// LotFilter narrows lot listings.
type LotFilter struct {
	ProductID   int64
	Label       string
	Status      LotStatus
	MinQuantity *int
	MaxQuantity *int
	Limit       int
}

// ErrLotNotFound indicates the referenced lot does not exist.
var ErrLotNotFound = errors.New("stock: lot not found")

// ErrProductNotFound indicates the referenced product does not exist.
var ErrProductNotFound = errors.New("stock: product not found")

// ErrLotReferenced rejects deleting a lot that consumption records point at.
var ErrLotReferenced = errors.New("stock: lot referenced by sale consumptions")

// ErrInvalidQuantity indicates a negative quantity was supplied.
var ErrInvalidQuantity = errors.New("stock: quantity must be >= 0")
