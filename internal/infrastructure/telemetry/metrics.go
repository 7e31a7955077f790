package telemetry

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "marketplace"

// CheckoutMetrics holds the Prometheus collectors for checkout and payment processing.
// A nil *CheckoutMetrics is valid and records nothing.
type CheckoutMetrics struct {
	registry *prometheus.Registry

	checkouts          *prometheus.CounterVec
	checkoutDuration   *prometheus.HistogramVec
	checkoutVendors    prometheus.Histogram
	providerEvents     *prometheus.CounterVec
	paymentTransitions *prometheus.CounterVec
	ordersMaterialized prometheus.Counter
	shippingQuotes     *prometheus.CounterVec
	quotaRejections    *prometheus.CounterVec
	publishFailures    *prometheus.CounterVec
	domainEvents       *prometheus.CounterVec
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
	httpInflight       prometheus.Gauge
}

// NewCheckoutMetrics creates the collectors on a dedicated registry, plus Go runtime and process collectors
func NewCheckoutMetrics() *CheckoutMetrics {
	reg := prometheus.NewRegistry()
	m := &CheckoutMetrics{
		registry: reg,
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "checkout", Name: "attempts_total",
			Help: "Checkout initiations by result.",
		}, []string{"result"}),
		checkoutDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace, Subsystem: "checkout", Name: "duration_seconds",
			Help:    "Time to split a cart and create its payment intents.",
			Buckets: prometheus.DefBuckets,
		}, []string{"result"}),
		checkoutVendors: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace, Subsystem: "checkout", Name: "vendors",
			Help:    "Number of vendors per successful checkout.",
			Buckets: []float64{1, 2, 3, 5, 8, 13},
		}),
		providerEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "payment", Name: "provider_events_total",
			Help: "Payment provider events by processing outcome.",
		}, []string{"outcome"}),
		paymentTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "payment", Name: "status_transitions_total",
			Help: "Applied payment status transitions.",
		}, []string{"to"}),
		ordersMaterialized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "order", Name: "materialized_total",
			Help: "Orders created from succeeded payments.",
		}),
		shippingQuotes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "shipping", Name: "quotes_total",
			Help: "Shipping rate lookups by source (cache, provider, fallback).",
		}, []string{"source"}),
		quotaRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "quota", Name: "rejections_total",
			Help: "Creation attempts rejected by plan limits.",
		}, []string{"resource"}),
		publishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "events", Name: "publish_failures_total",
			Help: "Domain events that could not be forwarded to the broker.",
		}, []string{"event_type"}),
		domainEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "events", Name: "published_total",
			Help: "Domain events published on the in-process bus.",
		}, []string{"event_type"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status_code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		httpInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Subsystem: "http", Name: "active_requests",
			Help: "Requests currently being served.",
		}),
	}
	reg.MustRegister(
		m.checkouts, m.checkoutDuration, m.checkoutVendors,
		m.providerEvents, m.paymentTransitions, m.ordersMaterialized,
		m.shippingQuotes, m.quotaRejections, m.publishFailures, m.domainEvents,
		m.httpRequests, m.httpDuration, m.httpInflight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// RegisterDBStats exports connection pool statistics for the database
func (m *CheckoutMetrics) RegisterDBStats(db *sql.DB, dbName string) {
	m.registry.MustRegister(collectors.NewDBStatsCollector(db, dbName))
}

// Registry returns the underlying registry
func (m *CheckoutMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the /metrics HTTP handler
func (m *CheckoutMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveCheckout records a checkout attempt
func (m *CheckoutMetrics) ObserveCheckout(result string, vendors int, d time.Duration) {
	if m == nil {
		return
	}
	m.checkouts.WithLabelValues(result).Inc()
	m.checkoutDuration.WithLabelValues(result).Observe(d.Seconds())
	if result == "success" {
		m.checkoutVendors.Observe(float64(vendors))
	}
}

// ObserveProviderEvent records the outcome of a provider event
func (m *CheckoutMetrics) ObserveProviderEvent(outcome string) {
	if m == nil {
		return
	}
	m.providerEvents.WithLabelValues(outcome).Inc()
}

// ObservePaymentTransition records an applied status transition
func (m *CheckoutMetrics) ObservePaymentTransition(to string) {
	if m == nil {
		return
	}
	m.paymentTransitions.WithLabelValues(to).Inc()
}

// ObserveOrderMaterialized records a created order
func (m *CheckoutMetrics) ObserveOrderMaterialized() {
	if m == nil {
		return
	}
	m.ordersMaterialized.Inc()
}

// ObserveShippingQuote records where a shipping quote came from
func (m *CheckoutMetrics) ObserveShippingQuote(source string) {
	if m == nil {
		return
	}
	m.shippingQuotes.WithLabelValues(source).Inc()
}

// ObserveQuotaRejection records a plan-limit rejection
func (m *CheckoutMetrics) ObserveQuotaRejection(resource string) {
	if m == nil {
		return
	}
	m.quotaRejections.WithLabelValues(resource).Inc()
}

// ObservePublishFailure records a failed broker publish
func (m *CheckoutMetrics) ObservePublishFailure(eventType string) {
	if m == nil {
		return
	}
	m.publishFailures.WithLabelValues(eventType).Inc()
}

// ObserveDomainEvent counts an event seen on the bus
func (m *CheckoutMetrics) ObserveDomainEvent(eventType string) {
	if m == nil {
		return
	}
	m.domainEvents.WithLabelValues(eventType).Inc()
}

// HTTPRequestStarted marks a request as in flight
func (m *CheckoutMetrics) HTTPRequestStarted() {
	if m == nil {
		return
	}
	m.httpInflight.Inc()
}

// ObserveHTTPRequest records a finished request. Route is the matched pattern, not the raw path.
func (m *CheckoutMetrics) ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpInflight.Dec()
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
