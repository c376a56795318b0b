package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kipuventas/kipu/internal/alerts"
	jobmetrics "github.com/kipuventas/kipu/internal/jobs"
	"github.com/kipuventas/kipu/internal/stock"
)

// AlertSink records scan findings.
type AlertSink interface {
	Record(ctx context.Context, a alerts.Alert)
}

// LowStockScanJob sweeps active lots sitting under the low-stock threshold
// and records an alert per lot. Lots that already carry an unread low-stock
// alert are skipped, so repeated runs do not pile up duplicates.
type LowStockScanJob struct {
	Pool      *pgxpool.Pool
	Alerts    AlertSink
	Threshold int
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// Handle executes the scan.
func (j *LowStockScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pool == nil || j.Alerts == nil {
		return errors.New("lowstock scan: handler not configured")
	}
	var payload LowStockScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	threshold := payload.Threshold
	if threshold <= 0 {
		threshold = j.Threshold
	}
	if threshold <= 0 {
		threshold = stock.DefaultLowStockThreshold
	}

	tracker := j.Metrics.Track(TaskLowStockScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := time.Now()
	logger := j.logger().With(slog.Int("threshold", threshold))
	logger.Info("starting low-stock scan")

	rows, err := j.Pool.Query(ctx, `SELECT l.id, l.product_id, l.label, l.quantity
FROM lots l
WHERE l.status = 'Active' AND l.quantity < $1
AND NOT EXISTS (
	SELECT 1 FROM alerts a
	WHERE a.lot_id = l.id AND a.type = 'PRODUCT' AND a.read = false AND a.title = 'Low stock'
)
ORDER BY l.quantity, l.id`, threshold)
	if err != nil {
		resultErr = err
		return resultErr
	}
	defer rows.Close()

	type finding struct {
		lotID     int64
		productID int64
		label     string
		quantity  int
	}
	var findings []finding
	for rows.Next() {
		var f finding
		if err := rows.Scan(&f.lotID, &f.productID, &f.label, &f.quantity); err != nil {
			resultErr = err
			return resultErr
		}
		findings = append(findings, f)
	}
	if err := rows.Err(); err != nil {
		resultErr = err
		return resultErr
	}

	for _, f := range findings {
		severity := alerts.SeverityLow
		if f.quantity <= 2 {
			severity = alerts.SeverityMedium
		}
		lotID := f.lotID
		productID := f.productID
		j.Alerts.Record(ctx, alerts.Alert{
			Type:      alerts.TypeProduct,
			Severity:  severity,
			Title:     "Low stock",
			Message:   fmt.Sprintf("Lot %s is down to %d units", f.label, f.quantity),
			ProductID: &productID,
			LotID:     &lotID,
		})
		j.Metrics.AddLowStock(string(severity), 1)
	}

	logger.Info("completed low-stock scan",
		slog.Int("flagged", len(findings)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *LowStockScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLowStockScan))
	}
	return slog.Default().With(slog.String("job", TaskLowStockScan))
}
