package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"catreg/internal/infrastructure/storage/postgres"
)

// Pinger is the readiness dependency. *postgres.Pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
	Stats() postgres.PoolStats
}

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	pool        Pinger
	version     string
	entityTypes int
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(pool Pinger, version string, entityTypes int) *HealthHandler {
	return &HealthHandler{pool: pool, version: version, entityTypes: entityTypes}
}

// Live handles liveness probe (is the process alive?).
// GET /health/live
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Ready handles readiness probe (is the service ready to accept traffic?).
// GET /health/ready
func (h *HealthHandler) Ready(c *gin.Context) {
	if err := h.pool.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "error",
			"checks": map[string]string{
				"database": "unhealthy: " + err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"checks": map[string]string{
			"database": "healthy",
		},
	})
}

// Info returns application information.
// GET /health/info
func (h *HealthHandler) Info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"app":          "catreg",
		"version":      h.version,
		"entity_types": h.entityTypes,
		"database":     h.pool.Stats(),
	})
}
