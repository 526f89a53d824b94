package handlers

import (
	"context"
	"net/http"
	"time"

	"privatesend-backend/internal/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const serviceName = "privatesend-backend"

// HealthHandler liveness plus dependency status
type HealthHandler struct {
	db  *gorm.DB
	rpc services.RPCHealthChecker
}

// NewHealthHandler db and rpc may be nil
func NewHealthHandler(db *gorm.DB, rpc services.RPCHealthChecker) *HealthHandler {
	return &HealthHandler{db: db, rpc: rpc}
}

// HealthCheckHandler GET /health
// Dependencies are reported but never fail the check; the relay path can
// still run without the RPC node in fixed settlement mode.
func (h *HealthHandler) HealthCheckHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := gin.H{}
	if h.db != nil {
		checks["database"] = "ok"
		if sqlDB, err := h.db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
			checks["database"] = "unreachable"
		}
	}
	if h.rpc != nil {
		health, err := h.rpc.Health(ctx)
		if err != nil {
			health = "unreachable"
		}
		checks["solana_rpc"] = health
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": serviceName,
		"checks":  checks,
	})
}

// PingHandler GET /ping
func PingHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
	})
}
