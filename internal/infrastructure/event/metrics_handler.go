package event

import (
	"context"

	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/marketplace/backend/internal/infrastructure/telemetry"
)

// MetricsHandler counts every event published on the bus
type MetricsHandler struct {
	metrics *telemetry.CheckoutMetrics
}

// NewMetricsHandler creates a wildcard metrics handler
func NewMetricsHandler(metrics *telemetry.CheckoutMetrics) *MetricsHandler {
	return &MetricsHandler{metrics: metrics}
}

func (h *MetricsHandler) Handle(_ context.Context, event shared.DomainEvent) error {
	h.metrics.ObserveDomainEvent(event.EventType())
	return nil
}

func (h *MetricsHandler) EventTypes() []string { return nil }

var _ shared.EventHandler = (*MetricsHandler)(nil)
