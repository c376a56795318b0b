package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/kipuventas/kipu/internal/catalog"
	"github.com/kipuventas/kipu/internal/invoicing"
	jobmetrics "github.com/kipuventas/kipu/internal/jobs"
	"github.com/kipuventas/kipu/internal/sales"
)

// SaleSource is the slice of the sales service the job needs.
type SaleSource interface {
	Get(ctx context.Context, id int64) (*sales.Sale, error)
	AttachReceipt(ctx context.Context, saleID int64, receipt sales.Receipt) error
}

// ReceiptSubmitter sends a document to the external provider.
type ReceiptSubmitter interface {
	Submit(ctx context.Context, payload invoicing.Payload) (invoicing.ProviderResponse, error)
}

// ProductNamer resolves product names for receipt lines.
type ProductNamer interface {
	GetProduct(ctx context.Context, id int64) (*catalog.Product, error)
}

// InvoiceIssueJob submits an approved sale to the receipt provider and
// attaches the returned receipt to the sale.
type InvoiceIssueJob struct {
	Sales    SaleSource
	Provider ReceiptSubmitter
	Products ProductNamer
	Series   string
	IGVRate  float64
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// Handle executes the issuance. Sales that already carry a receipt are
// skipped so redelivered tasks stay harmless.
func (j *InvoiceIssueJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Sales == nil || j.Provider == nil {
		return errors.New("invoice issue: handler not configured")
	}
	var payload InvoiceIssuePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.Metrics.Track(TaskInvoiceIssue)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int64("sale_id", payload.SaleID))
	sale, err := j.Sales.Get(ctx, payload.SaleID)
	if err != nil {
		if errors.Is(err, sales.ErrSaleNotFound) {
			logger.Warn("sale disappeared before invoicing")
			return asynq.SkipRetry
		}
		resultErr = err
		return resultErr
	}
	if sale.Receipt != nil {
		logger.Info("receipt already attached, skipping")
		return nil
	}

	doc, err := invoicing.BuildPayload(*sale, j.IGVRate, j.Series, sale.ID, j.describe(ctx))
	if err != nil {
		if errors.Is(err, invoicing.ErrNotPending) || errors.Is(err, invoicing.ErrNoItems) {
			logger.Warn("sale not invoiceable", slog.Any("error", err))
			return asynq.SkipRetry
		}
		resultErr = err
		return resultErr
	}
	resp, err := j.Provider.Submit(ctx, doc)
	if err != nil {
		resultErr = fmt.Errorf("submit receipt: %w", err)
		return resultErr
	}
	receipt := sales.Receipt{
		Code:        resp.Code,
		Series:      resp.Series,
		Number:      resp.Number,
		PDFURL:      resp.PDFURL,
		ProviderKey: resp.ProviderKey,
	}
	if err := j.Sales.AttachReceipt(ctx, sale.ID, receipt); err != nil {
		if errors.Is(err, sales.ErrReceiptIssued) {
			logger.Info("receipt attached concurrently")
			return nil
		}
		resultErr = fmt.Errorf("attach receipt: %w", err)
		return resultErr
	}
	logger.Info("receipt issued", slog.String("code", receipt.Code))
	return nil
}

func (j *InvoiceIssueJob) describe(ctx context.Context) invoicing.DescriptionFunc {
	if j.Products == nil {
		return nil
	}
	return func(productID int64) string {
		product, err := j.Products.GetProduct(ctx, productID)
		if err != nil {
			return ""
		}
		return product.Name
	}
}

func (j *InvoiceIssueJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskInvoiceIssue))
	}
	return slog.Default().With(slog.String("job", TaskInvoiceIssue))
}
