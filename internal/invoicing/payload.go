// Package invoicing builds and submits fiscal receipts to the external
// provider. Tax is split out of the inclusive unit prices here, at the
// provider boundary, never inside the sale orchestrator.
package invoicing

import (
	"errors"
	"fmt"
	"math"

	"github.com/kipuventas/kipu/internal/sales"
)

// DefaultIGVRate is Peru's general sales tax rate.
const DefaultIGVRate = 0.18

// Document types the provider expects.
const (
	documentBoleta  = 2
	documentFactura = 1
)

// Line is one receipt position with tax split out.
type Line struct {
	Description     string  `json:"description"`
	Quantity        int     `json:"quantity"`
	UnitValue       float64 `json:"unit_value"`
	UnitPrice       float64 `json:"unit_price"`
	Subtotal        float64 `json:"subtotal"`
	IGV             float64 `json:"igv"`
	Total           float64 `json:"total"`
	TaxedIGVCode    int     `json:"taxed_igv_code"`
	MeasurementUnit string  `json:"measurement_unit"`
}

// Payload is the document submitted to the provider.
type Payload struct {
	Operation    string  `json:"operation"`
	DocumentType int     `json:"document_type"`
	Series       string  `json:"series"`
	Number       int64   `json:"number"`
	ClientRUC    string  `json:"client_ruc,omitempty"`
	Currency     string  `json:"currency"`
	TotalTaxed   float64 `json:"total_taxed"`
	TotalIGV     float64 `json:"total_igv"`
	Total        float64 `json:"total"`
	Items        []Line  `json:"items"`
}

// ErrNotPending rejects issuing a receipt for a sale that is not Pending.
var ErrNotPending = errors.New("invoicing: sale is not pending")

// ErrNoItems rejects a sale without line items.
var ErrNoItems = errors.New("invoicing: sale has no line items")

// DescriptionFunc resolves a product id to the line description.
type DescriptionFunc func(productID int64) string

// BuildPayload converts a Pending sale into a provider document. Line unit
// prices are tax inclusive; the unit value and IGV are derived from them at
// the given rate.
func BuildPayload(sale sales.Sale, igvRate float64, series string, number int64, describe DescriptionFunc) (Payload, error) {
	if sale.Status != sales.StatusPending {
		return Payload{}, fmt.Errorf("%w: sale %d is %s", ErrNotPending, sale.ID, sale.Status)
	}
	if len(sale.Items) == 0 {
		return Payload{}, ErrNoItems
	}
	if igvRate <= 0 {
		igvRate = DefaultIGVRate
	}

	payload := Payload{
		Operation:    "generar_comprobante",
		DocumentType: documentBoleta,
		Series:       series,
		Number:       number,
		Currency:     "PEN",
	}
	if sale.ReceiptType == sales.ReceiptFactura {
		payload.DocumentType = documentFactura
		payload.ClientRUC = sale.RUC
	}

	for _, item := range sale.Items {
		description := fmt.Sprintf("Product %d", item.ProductID)
		if describe != nil {
			if d := describe(item.ProductID); d != "" {
				description = d
			}
		}
		total := round2(float64(item.Quantity) * item.UnitPrice)
		subtotal := round2(total / (1 + igvRate))
		line := Line{
			Description:     description,
			Quantity:        item.Quantity,
			UnitValue:       round2(item.UnitPrice / (1 + igvRate)),
			UnitPrice:       item.UnitPrice,
			Subtotal:        subtotal,
			IGV:             round2(total - subtotal),
			Total:           total,
			TaxedIGVCode:    1,
			MeasurementUnit: "NIU",
		}
		payload.Items = append(payload.Items, line)
		payload.TotalTaxed = round2(payload.TotalTaxed + line.Subtotal)
		payload.TotalIGV = round2(payload.TotalIGV + line.IGV)
		payload.Total = round2(payload.Total + line.Total)
	}
	return payload, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
