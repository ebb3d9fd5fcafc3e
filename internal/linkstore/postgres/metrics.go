package postgres

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	metricsOnce  sync.Once
	storeRetries metric.Int64Counter
)

// InitStoreMetrics registers the store's counters on the application meter.
func InitStoreMetrics(meter metric.Meter) {
	metricsOnce.Do(func() {
		storeRetries, _ = meter.Int64Counter("linkstore_retries_total",
			metric.WithDescription("Number of retried link store operations"))
	})
}

func countStoreRetry(op string) {
	if storeRetries == nil {
		return
	}
	storeRetries.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("op", op)))
}
