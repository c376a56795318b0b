package catalog

import (
	"errors"
	"time"

	"github.com/kipuventas/kipu/internal/stock"
)

// Category groups products.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Product is a catalog entry. Status is derived from the product's lots and
// cannot be set through this package.
type Product struct {
	ID           int64               `json:"id"`
	Name         string              `json:"name"`
	Description  string              `json:"description,omitempty"`
	Brand        string              `json:"brand,omitempty"`
	CategoryID   int64               `json:"category_id"`
	UnitPrice    float64             `json:"unit_price"`
	ImagePath    string              `json:"image_path,omitempty"`
	Status       stock.ProductStatus `json:"status"`
	RegisteredAt time.Time           `json:"registered_at"`
}

// StorefrontEntry is a product with its sellable stock, as shown to buyers.
type StorefrontEntry struct {
	Product
	Available   int        `json:"available"`
	LatestLotAt *time.Time `json:"latest_lot_at,omitempty"`
}

// CreateProductInput describes a product registration request.
type CreateProductInput struct {
	Name        string  `json:"name" validate:"required,max=120"`
	Description string  `json:"description,omitempty" validate:"max=500"`
	Brand       string  `json:"brand,omitempty" validate:"max=80"`
	CategoryID  int64   `json:"category_id" validate:"required,gt=0"`
	UnitPrice   float64 `json:"unit_price" validate:"gte=0"`
	ImagePath   string  `json:"image_path,omitempty" validate:"max=255"`
}

// UpdateProductInput describes a product update. Status is absent on purpose.
type UpdateProductInput struct {
	Name        string  `json:"name" validate:"required,max=120"`
	Description string  `json:"description,omitempty" validate:"max=500"`
	Brand       string  `json:"brand,omitempty" validate:"max=80"`
	CategoryID  int64   `json:"category_id" validate:"required,gt=0"`
	UnitPrice   float64 `json:"unit_price" validate:"gte=0"`
	ImagePath   string  `json:"image_path,omitempty" validate:"max=255"`
}

// ProductFilter narrows product listings. Name and Brand match substrings
// ignoring case and diacritics.
type ProductFilter struct {
	CategoryID int64
	Name       string
	Brand      string
	MinPrice   *float64
	MaxPrice   *float64
	Status     stock.ProductStatus
	Limit      int
}

var (
	// ErrProductNotFound indicates the product does not exist.
	ErrProductNotFound = errors.New("catalog: product not found")
	// ErrCategoryNotFound indicates the category does not exist.
	ErrCategoryNotFound = errors.New("catalog: category not found")
	// ErrProductReferenced rejects deleting a product that lots or sales reference.
	ErrProductReferenced = errors.New("catalog: product referenced by lots or sales")
	// ErrCategoryReferenced rejects deleting a category that products reference.
	ErrCategoryReferenced = errors.New("catalog: category referenced by products")
)
