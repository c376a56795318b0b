package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskInvoiceIssue submits an approved sale to the receipt provider.
	TaskInvoiceIssue = "invoice:issue"
	// TaskLowStockScan sweeps active lots under the low-stock threshold.
	TaskLowStockScan = "alerts:lowstock_scan"
)

// InvoiceIssuePayload identifies the sale to invoice.
type InvoiceIssuePayload struct {
	SaleID int64 `json:"sale_id"`
}

// NewInvoiceIssueTask constructs an Asynq task.
func NewInvoiceIssueTask(payload InvoiceIssuePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInvoiceIssue, data), nil
}

// LowStockScanPayload configures one scan run. A zero threshold falls back
// to the configured default.
type LowStockScanPayload struct {
	Threshold int `json:"threshold"`
}

// NewLowStockScanTask constructs an Asynq task.
func NewLowStockScanTask(payload LowStockScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockScan, data), nil
}
