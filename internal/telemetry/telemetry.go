package telemetry

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"
)

// Telemetry bundles the OpenTelemetry meter backed by the Prometheus
// exporter. Metrics are scraped from the /metrics endpoint.
type Telemetry struct {
	Meter    metric.Meter
	provider *sdkmetric.MeterProvider
}

// NewTelemetry initializes the meter provider and registers it globally.
func NewTelemetry(logger *zap.Logger) (*Telemetry, error) {
	exporter, err := otelprom.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	logger.Info("telemetry initialized")
	return &Telemetry{
		Meter:    provider.Meter("linkwatch"),
		provider: provider,
	}, nil
}

// MetricsHandler returns the HTTP handler serving Prometheus metrics.
func (t *Telemetry) MetricsHandler() http.Handler {
	return promhttp.Handler()
}
