// Package admin implements AdminAPI: thin read-only Gin routes
// projecting ConnectionRegistry and UsageAggregator state for operator
// tooling, plus the process health/liveness/readiness endpoints.
package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/tesseract-nexus/pubsub-gateway/internal/bus"
	"github.com/tesseract-nexus/pubsub-gateway/internal/registry"
	"github.com/tesseract-nexus/pubsub-gateway/internal/usage"
)

// API exposes read-only projections over the registry and usage
// aggregator, and the health endpoints the process's probes hit.
type API struct {
	db       *gorm.DB
	rdb      *redis.Client
	busConn  *bus.Client
	registry *registry.Registry
	usage    *usage.Aggregator
}

// New builds an admin API over its collaborators.
func New(db *gorm.DB, rdb *redis.Client, busConn *bus.Client, reg *registry.Registry, agg *usage.Aggregator) *API {
	return &API{db: db, rdb: rdb, busConn: busConn, registry: reg, usage: agg}
}

// RegisterRoutes attaches the admin and health endpoints to a Gin
// engine.
func (a *API) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", a.health)
	r.GET("/livez", a.livez)
	r.GET("/readyz", a.readyz)

	admin := r.Group("/admin")
	admin.GET("/tenants/:tenantID/connections", a.listConnections)
	admin.GET("/tenants/:tenantID/usage", a.getUsage)
}

func (a *API) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "pubsub-gateway"})
}

func (a *API) livez(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

// readyz checks Postgres and Redis, the durable stores this instance
// cannot function without. NATS is reported but never fails readiness:
// BusClient degrades to silent retry and resubscribes on reconnect.
func (a *API) readyz(c *gin.Context) {
	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]string)

	if sqlDB, err := a.db.DB(); err != nil {
		checks["database"] = "error: " + err.Error()
		status, httpStatus = "not ready", http.StatusServiceUnavailable
	} else if err := sqlDB.Ping(); err != nil {
		checks["database"] = "error: " + err.Error()
		status, httpStatus = "not ready", http.StatusServiceUnavailable
	} else {
		checks["database"] = "connected"
	}

	if err := a.rdb.Ping(c.Request.Context()).Err(); err != nil {
		checks["redis"] = "error: " + err.Error()
		status, httpStatus = "not ready", http.StatusServiceUnavailable
	} else {
		checks["redis"] = "connected"
	}

	if a.busConn.IsConnected() {
		checks["bus"] = "connected"
	} else {
		checks["bus"] = "disconnected (degrades to retry, not fatal)"
	}

	c.JSON(httpStatus, gin.H{"status": status, "checks": checks})
}

func (a *API) listConnections(c *gin.Context) {
	tenantID := c.Param("tenantID")
	records, err := a.registry.ListByTenant(c.Request.Context(), tenantID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list connections"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tenant_id": tenantID, "connections": records})
}

func (a *API) getUsage(c *gin.Context) {
	tenantID := c.Param("tenantID")
	from := c.Query("from")
	to := c.Query("to")
	if from == "" || to == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from and to query params are required"})
		return
	}

	rows, err := a.usage.GetUsage(c.Request.Context(), tenantID, from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute usage"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tenant_id": tenantID, "usage": rows})
}
