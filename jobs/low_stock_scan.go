package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LowStockScanJob reports active items whose available quantity fell below
// the threshold.
type LowStockScanJob struct {
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Default float64
}

// NewLowStockScanJob initialises the low stock scan handler.
func NewLowStockScanJob(pool *pgxpool.Pool, logger *slog.Logger, defaultThreshold float64) *LowStockScanJob {
	return &LowStockScanJob{Pool: pool, Logger: logger, Default: defaultThreshold}
}

// Handle executes the scan.
func (j *LowStockScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pool == nil {
		return errors.New("low stock scan: handler not configured")
	}
	var payload LowStockScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	threshold := payload.Threshold
	if threshold <= 0 {
		threshold = j.Default
	}

	const query = `SELECT id, name, unit, quantity_total - quantity_processed AS available
                     FROM stock_items
                    WHERE active AND quantity_total - quantity_processed < $1
                    ORDER BY available ASC`
	rows, err := j.Pool.Query(ctx, query, threshold)
	if err != nil {
		return err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var (
			id        int64
			name      string
			unit      string
			available float64
		)
		if err := rows.Scan(&id, &name, &unit, &available); err != nil {
			return err
		}
		count++
		j.logger().Warn("low stock",
			slog.Int64("item_id", id),
			slog.String("name", name),
			slog.Float64("available", available),
			slog.String("unit", unit),
			slog.Float64("threshold", threshold),
		)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	j.logger().Info("low stock scan complete", slog.Int("items_below_threshold", count))
	return nil
}

func (j *LowStockScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
