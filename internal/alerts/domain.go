package alerts

import "time"

// Type classifies what an alert refers to.
type Type string

const (
	// TypeProduct covers stock conditions (low stock, exhausted lots).
	TypeProduct Type = "PRODUCT"
	// TypeSale covers sale lifecycle events.
	TypeSale Type = "SALE"
)

// Severity grades how urgently an alert should be handled.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Alert is a persisted operational notification.
type Alert struct {
	ID        int64     `json:"id"`
	Type      Type      `json:"type"`
	Severity  Severity  `json:"severity"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	UserID    *int64    `json:"user_id,omitempty"`
	SaleID    *int64    `json:"sale_id,omitempty"`
	ProductID *int64    `json:"product_id,omitempty"`
	LotID     *int64    `json:"lot_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Filter narrows alert listings.
type Filter struct {
	Type     Type
	Severity Severity
	Read     *bool
	UserID   int64
	Limit    int
}
