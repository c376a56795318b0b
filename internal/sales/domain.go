package sales

import (
	"errors"
	"fmt"
	"time"
)

// Status enumerates the sale lifecycle states.
type Status string

const (
	// StatusUnderReview holds remote or voucher-paid sales until staff approve them.
	StatusUnderReview Status = "UnderReview"
	// StatusPending marks an approved sale awaiting delivery or pickup.
	StatusPending Status = "Pending"
	// StatusDelivered is terminal.
	StatusDelivered Status = "Delivered"
	// StatusCancelled is terminal; stock was credited back.
	StatusCancelled Status = "Cancelled"
)

// PaymentMethod enumerates accepted payment methods.
type PaymentMethod string

const (
	PaymentCash    PaymentMethod = "Cash"
	PaymentCard    PaymentMethod = "Card"
	PaymentDeposit PaymentMethod = "Deposit"
	PaymentYape    PaymentMethod = "Yape"
)

// ReceiptType enumerates fiscal receipt kinds.
type ReceiptType string

const (
	ReceiptBoleta  ReceiptType = "Boleta"
	ReceiptFactura ReceiptType = "Factura"
)

// DeliveryMode enumerates how the purchaser receives the goods.
type DeliveryMode string

const (
	DeliveryShip   DeliveryMode = "Ship"
	DeliveryPickup DeliveryMode = "Pickup"
)

// Channel records where the sale originated. It decides the initial status:
// in-store sales start Pending, remote ones start UnderReview.
type Channel string

const (
	ChannelInStore Channel = "InStore"
	ChannelRemote  Channel = "Remote"
)

// Receipt holds the fields returned by the external receipt provider.
type Receipt struct {
	Code        string    `json:"code"`
	Series      string    `json:"series"`
	Number      string    `json:"number"`
	PDFURL      string    `json:"pdf_url"`
	ProviderKey string    `json:"provider_key"`
	IssuedAt    time.Time `json:"issued_at"`
}

// Sale aggregates a sale header with its line items.
type Sale struct {
	ID            int64         `json:"id"`
	PurchaserID   int64         `json:"purchaser_id"`
	AddressID     *int64        `json:"address_id,omitempty"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	ReceiptType   ReceiptType   `json:"receipt_type"`
	RUC           string        `json:"ruc,omitempty"`
	Total         float64       `json:"total"`
	Status        Status        `json:"status"`
	DeliveryMode  DeliveryMode  `json:"delivery_mode"`
	Channel       Channel       `json:"channel"`
	QRToken       string        `json:"qr_token"`
	SoldAt        time.Time     `json:"sold_at"`
	Receipt       *Receipt      `json:"receipt,omitempty"`
	Items         []LineItem    `json:"items,omitempty"`
}

// LineItem is one product position of a sale.
type LineItem struct {
	ID           int64            `json:"id"`
	SaleID       int64            `json:"sale_id"`
	ProductID    int64            `json:"product_id"`
	Quantity     int              `json:"quantity"`
	UnitPrice    float64          `json:"unit_price"`
	Consumptions []LotConsumption `json:"consumptions,omitempty"`
}

// LotConsumption records how many units a line item took from one lot. These
// rows are the audit trail that makes cancellation an exact reversal.
type LotConsumption struct {
	ID         int64 `json:"id"`
	LineItemID int64 `json:"line_item_id"`
	LotID      int64 `json:"lot_id"`
	Quantity   int   `json:"quantity"`
}

// CreateSaleItem is one requested position.
type CreateSaleItem struct {
	ProductID int64   `json:"product_id" validate:"required,gt=0"`
	Quantity  int     `json:"quantity" validate:"required,gt=0"`
	UnitPrice float64 `json:"unit_price" validate:"gte=0"`
}

// CreateSaleRequest describes a sale creation request.
type CreateSaleRequest struct {
	PurchaserID   int64            `json:"purchaser_id" validate:"required,gt=0"`
	Channel       Channel          `json:"channel" validate:"required,oneof=InStore Remote"`
	DeliveryMode  DeliveryMode     `json:"delivery_mode" validate:"required,oneof=Ship Pickup"`
	AddressID     *int64           `json:"address_id,omitempty"`
	PaymentMethod PaymentMethod    `json:"payment_method" validate:"required,oneof=Cash Card Deposit Yape"`
	ReceiptType   ReceiptType      `json:"receipt_type" validate:"required,oneof=Boleta Factura"`
	RUC           string           `json:"ruc,omitempty" validate:"omitempty,len=11"`
	Items         []CreateSaleItem `json:"items" validate:"required,min=1,dive"`
	ActorID       int64            `json:"-"`
}

// CancelSaleRequest carries the optional cancellation reason.
type CancelSaleRequest struct {
	Reason string `json:"reason,omitempty" validate:"omitempty,max=500"`
}

// Filter narrows sale listings.
type Filter struct {
	Status      Status
	PurchaserID int64
	From        time.Time
	To          time.Time
	Limit       int
}

var (
	// ErrSaleNotFound indicates the sale does not exist.
	ErrSaleNotFound = errors.New("sales: sale not found")
	// ErrTokenNotFound indicates no sale carries the delivery token.
	ErrTokenNotFound = errors.New("sales: delivery token not found")
	// ErrEmptyItems rejects sales without line items.
	ErrEmptyItems = errors.New("sales: at least one item required")
	// ErrAddressRequired rejects shipping sales without a delivery address.
	ErrAddressRequired = errors.New("sales: shipping sales require a delivery address")
	// ErrRUCRequired rejects factura receipts without a RUC.
	ErrRUCRequired = errors.New("sales: factura receipts require a RUC")
	// ErrAlreadyDelivered rejects delivering a sale twice.
	ErrAlreadyDelivered = errors.New("sales: sale already delivered")
	// ErrSaleCancelled rejects delivering a cancelled sale.
	ErrSaleCancelled = errors.New("sales: sale was cancelled")
	// ErrReceiptIssued rejects mutations on a sale with an issued receipt.
	ErrReceiptIssued = errors.New("sales: receipt already issued")
	// ErrReceiptNotFound indicates no sale carries the receipt code.
	ErrReceiptNotFound = errors.New("sales: receipt not found")
)

// InsufficientStockError reports a line item the active lots cannot cover.
// The whole sale aborts; no partial fulfilment.
type InsufficientStockError struct {
	ProductID int64
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("sales: insufficient stock for product %d: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

// StateError reports an operation applied to a sale in the wrong state.
type StateError struct {
	SaleID int64
	From   Status
	Op     string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("sales: cannot %s sale %d in status %s", e.Op, e.SaleID, e.From)
}
