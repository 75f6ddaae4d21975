// Package gateway implements the Gateway component: the two WebSocket
// upgrade endpoints, authentication hand-off, and the inbound frame
// dispatch tables of spec.md §4.6.
package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/tesseract-nexus/pubsub-gateway/internal/apperr"
	"github.com/tesseract-nexus/pubsub-gateway/internal/auth"
	"github.com/tesseract-nexus/pubsub-gateway/internal/config"
	"github.com/tesseract-nexus/pubsub-gateway/internal/model"
	"github.com/tesseract-nexus/pubsub-gateway/internal/repository"
	"github.com/tesseract-nexus/pubsub-gateway/internal/session"
)

// Gateway owns the upgrade endpoints and wires authenticated
// connections into the SessionManager.
type Gateway struct {
	cfg      config.WebSocketConfig
	verifier *auth.Verifier
	manager  *session.Manager
	tenants  repository.TenantRepository
	logger   *logrus.Logger
	upgrader websocket.Upgrader
}

// New builds a Gateway over its collaborators.
func New(cfg config.WebSocketConfig, verifier *auth.Verifier, manager *session.Manager, tenants repository.TenantRepository, logger *logrus.Logger) *Gateway {
	return &Gateway{
		cfg:      cfg,
		verifier: verifier,
		manager:  manager,
		tenants:  tenants,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				// Origin policy lives in front of this service (§1:
				// TLS termination and deployment glue are out of scope).
				return true
			},
		},
	}
}

// RegisterRoutes attaches the gateway's endpoints to a Gin engine.
func (g *Gateway) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws/agent/:agentID/challenge", g.handleIssueChallenge)
	r.GET("/ws/agent/:agentID", g.handleAgentUpgrade)
	r.GET("/ws/dashboard", g.handleDashboardUpgrade)
}

// handleIssueChallenge hands an agent a fresh challenge to sign before
// it attempts the upgrade. Not itself part of the WebSocket surface,
// but the only way an agent obtains a value for VerifyChallenge.
func (g *Gateway) handleIssueChallenge(c *gin.Context) {
	agentID := c.Param("agentID")
	tenantID := c.Query("tenant-id")

	value, err := g.verifier.IssueChallenge(c.Request.Context(), agentID, tenantID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue challenge"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"challenge": value})
}

func (g *Gateway) handleAgentUpgrade(c *gin.Context) {
	agentID := c.Param("agentID")
	challengeValue := c.Query("challenge")
	signatureHex := c.Query("signature")

	signature, err := decodeSignature(signatureHex)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature encoding"})
		return
	}

	principal, err := g.verifier.VerifyChallenge(c.Request.Context(), agentID, challengeValue, signature)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "auth rejected"})
		return
	}

	if requested := c.Query("tenant-id"); requested != "" && requested != principal.TenantID {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "auth rejected"})
		return
	}

	g.upgradeAndRun(c, principal, dispatchAgentFrame)
}

func (g *Gateway) handleDashboardUpgrade(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return
	}

	principal, err := g.verifier.VerifyDashboardToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "auth rejected"})
		return
	}

	g.upgradeAndRun(c, principal, dispatchDashboardFrame)
}

func (g *Gateway) upgradeAndRun(c *gin.Context, principal model.Principal, dispatch session.Dispatch) {
	if !g.checkConnectionQuota(c.Request.Context(), principal.TenantID) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": apperr.ErrTenantQuotaExceeded.Error()})
		return
	}

	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.logger.WithError(err).Warn("gateway: upgrade failed")
		return
	}

	s, err := g.manager.Open(c.Request.Context(), conn, principal, dispatch)
	if err != nil {
		g.logger.WithError(err).Error("gateway: failed to open session")
		conn.Close()
		return
	}

	s.Run()
}

// checkConnectionQuota enforces the tenant's max-connections limit.
// A missing or inactive tenant record fails closed; a tenant lookup
// error fails open, logged, since RegistryUnavailable-style failures
// must not take the whole fleet down per §7.
func (g *Gateway) checkConnectionQuota(ctx context.Context, tenantID string) bool {
	tenant, err := g.tenants.GetTenant(ctx, tenantID)
	if errors.Is(err, apperr.ErrNotFound) {
		return false
	}
	if err != nil {
		g.logger.WithError(err).WithField("tenant_id", tenantID).Warn("gateway: tenant lookup failed, allowing connection")
		return true
	}
	if !tenant.Active() {
		return false
	}
	if tenant.Limits.MaxConnections <= 0 {
		return true
	}
	return g.manager.Count(tenantID) < tenant.Limits.MaxConnections
}

func bearerToken(c *gin.Context) string {
	const prefix = "Bearer "
	h := c.GetHeader("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return c.Query("token")
}
