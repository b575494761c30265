package handler

import (
	"context"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
)

const healthCheckTimeout = 3 * time.Second

// SystemHandler serves service identity and liveness.
type SystemHandler struct {
	logger   *slog.Logger
	app      AppInfo
	database HealthChecker
}

func NewSystemHandler(deps *Dependencies) *SystemHandler {
	return &SystemHandler{logger: deps.Logger, app: deps.App, database: deps.Database}
}

// Root handles GET /
func (h *SystemHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":         h.app.Name,
		"App version":  h.app.Version,
		"environment":  h.app.Environment,
		"go_version":   runtime.Version(),
		"health_check": "/health",
	})
}

// Health handles GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	if h.database != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		defer cancel()

		if err := h.database.HealthCheck(ctx); err != nil {
			h.logger.Error("Health check failed", slog.String("error", err.Error()))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"service":  h.app.Name,
				"database": "unreachable",
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"service":  h.app.Name,
		"database": "ok",
	})
}
