package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// setupTestTracer sets up a test tracer provider and returns the span recorder.
func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	original := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	t.Cleanup(func() {
		otel.SetTracerProvider(original)
		_ = tp.Shutdown(t.Context())
	})

	return sr
}

func findSpan(t *testing.T, sr *tracetest.SpanRecorder, name string) sdktrace.ReadOnlySpan {
	t.Helper()
	for _, span := range sr.Ended() {
		if span.Name() == name {
			return span
		}
	}
	require.Failf(t, "span not found", "no span named %q", name)
	return nil
}

func spanAttr(span sdktrace.ReadOnlySpan, key string) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTracingWithConfig_Disabled(t *testing.T) {
	sr := setupTestTracer(t)

	router := gin.New()
	router.Use(TracingWithConfig(TracingConfig{Enabled: false, ServiceName: "test-service"}))
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, sr.Ended())
}

func TestTracing_EnrichesSpan(t *testing.T) {
	sr := setupTestTracer(t)
	userID := uuid.New()

	router := gin.New()
	router.Use(
		RequestID(),
		TracingWithConfig(TracingConfig{Enabled: true, ServiceName: "test-service"}),
		OptionalJWTAuth(stubVerifier{}, nil),
		CartIdentity(),
		SpanEnricher(),
	)
	router.GET("/api/v1/carts/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/api/v1/carts/123", nil)
	req.Header.Set(RequestIDHeader, "req-trace-1")
	req.Header.Set(AuthHeaderKey, "Bearer good-"+userID.String())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	span := findSpan(t, sr, "GET /api/v1/carts/:id")
	v, ok := spanAttr(span, "request_id")
	require.True(t, ok)
	assert.Equal(t, "req-trace-1", v.AsString())
	v, ok = spanAttr(span, "user_id")
	require.True(t, ok)
	assert.Equal(t, userID.String(), v.AsString())
	v, ok = spanAttr(span, "guest")
	require.True(t, ok)
	assert.False(t, v.AsBool())
}

func TestSpanEnricher_MarksServerErrors(t *testing.T) {
	sr := setupTestTracer(t)

	router := gin.New()
	router.Use(TracingWithConfig(TracingConfig{Enabled: true, ServiceName: "test-service"}), SpanEnricher())
	router.GET("/fail", func(c *gin.Context) { c.Status(http.StatusBadGateway) })
	router.GET("/conflict", func(c *gin.Context) { c.Status(http.StatusConflict) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/fail", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/conflict", nil))

	assert.Equal(t, codes.Error, findSpan(t, sr, "GET /fail").Status().Code)
	assert.NotEqual(t, codes.Error, findSpan(t, sr, "GET /conflict").Status().Code)
}

func TestSpanEnricher_WithNoSpan(t *testing.T) {
	router := gin.New()
	router.Use(SpanEnricher())
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
