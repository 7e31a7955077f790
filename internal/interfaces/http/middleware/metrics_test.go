package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketplace/backend/internal/infrastructure/telemetry"
)

type recordedRequest struct {
	method, route string
	status        int
}

type fakeRecorder struct {
	started  int
	observed []recordedRequest
}

func (f *fakeRecorder) HTTPRequestStarted() { f.started++ }

func (f *fakeRecorder) ObserveHTTPRequest(method, route string, status int, _ time.Duration) {
	f.observed = append(f.observed, recordedRequest{method, route, status})
}

func TestHTTPMetrics_UsesRoutePattern(t *testing.T) {
	rec := &fakeRecorder{}
	router := gin.New()
	router.Use(HTTPMetrics(rec))
	router.GET("/api/v1/carts/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/api/v1/carts/a", "/api/v1/carts/b", "/nowhere"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 3, rec.started)
	require.Len(t, rec.observed, 3)
	assert.Equal(t, recordedRequest{http.MethodGet, "/api/v1/carts/:id", http.StatusOK}, rec.observed[0])
	assert.Equal(t, "/api/v1/carts/:id", rec.observed[1].route)
	assert.Equal(t, recordedRequest{http.MethodGet, unmatchedRoute, http.StatusNotFound}, rec.observed[2])
}

func TestHTTPMetrics_Prometheus(t *testing.T) {
	m := telemetry.NewCheckoutMetrics()
	router := gin.New()
	router.Use(HTTPMetrics(m))
	router.POST("/api/v1/carts/:id/checkout", func(c *gin.Context) { c.Status(http.StatusConflict) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/carts/x/checkout", nil))

	count, err := testutil.GatherAndCount(m.Registry(), "marketplace_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
