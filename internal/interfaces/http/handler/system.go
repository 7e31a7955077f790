package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/marketplace/backend/internal/infrastructure/logger"
	"github.com/marketplace/backend/internal/interfaces/http/dto"
)

const healthCheckTimeout = 2 * time.Second

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger
type PingFunc func(ctx context.Context) error

// Ping calls f
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// SystemHandler serves health and process information
type SystemHandler struct {
	BaseHandler
	startTime time.Time
	version   string
	checks    map[string]Pinger
}

// NewSystemHandler creates a new SystemHandler. Each check is pinged on /health.
func NewSystemHandler(version string, checks map[string]Pinger) *SystemHandler {
	return &SystemHandler{
		startTime: time.Now(),
		version:   version,
		checks:    checks,
	}
}

// HealthResponse is the /health body
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	GoVersion string            `json:"go_version"`
	Uptime    string            `json:"uptime"`
	Checks    map[string]string `json:"checks"`
}

// Health pings every dependency and returns 503 when any is down
// GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:    "healthy",
		Version:   h.version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Checks:    make(map[string]string, len(h.checks)),
	}
	status := http.StatusOK
	for name, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			logger.L(c.Request.Context()).Warn("Health check failed", zap.String("check", name), zap.Error(err))
			resp.Checks[name] = "down"
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "up"
	}

	c.JSON(status, dto.Response{Success: status == http.StatusOK, Data: resp})
}

// Ping is a liveness probe that touches no dependencies
// GET /ping
func (h *SystemHandler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(gin.H{
		"message":   "pong",
		"timestamp": time.Now().Format(time.RFC3339),
	}))
}

// Metrics exposes the Prometheus registry
// GET /metrics
func Metrics(handler http.Handler) gin.HandlerFunc {
	return gin.WrapH(handler)
}
