package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cpd-events/backoffice/pkg/metrics"
	"github.com/cpd-events/backoffice/pkg/response"
)

// Authorizer answers RBAC checks. *rbac.Service implements it.
type Authorizer interface {
	HasPermission(ctx context.Context, userID uuid.UUID, slug string) (bool, error)
	HasRole(ctx context.Context, userID uuid.UUID, slug string) (bool, error)
}

// Gate builds per-route RBAC middleware. Requests without an authenticated user get 401
// before any permission is evaluated.
type Gate struct {
	authz   Authorizer
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewGate creates a gate.
func NewGate(authz Authorizer, logger *zap.Logger) *Gate {
	return &Gate{authz: authz, logger: logger}
}

// SetMetrics records every decision the gate makes.
func (g *Gate) SetMetrics(m *metrics.Metrics) {
	g.metrics = m
}

// RequirePermission allows the request only when one of the user's roles grants slug.
func (g *Gate) RequirePermission(slug string) gin.HandlerFunc {
	return g.require("permission", slug, g.authz.HasPermission)
}

// RequireRole allows the request only when the user holds the role with slug.
func (g *Gate) RequireRole(slug string) gin.HandlerFunc {
	return g.require("role", slug, g.authz.HasRole)
}

func (g *Gate) require(kind, slug string, check func(context.Context, uuid.UUID, string) (bool, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := UserID(c)
		if !ok {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		allowed, err := check(c.Request.Context(), userID, slug)
		if err != nil {
			g.metrics.ObserveAuthorization(kind, slug, "error")
			g.logger.Error("authorization check failed",
				zap.String(kind, slug), zap.String("user_id", userID.String()), zap.Error(err))
			response.Internal(c, "authorization check failed")
			c.Abort()
			return
		}
		if !allowed {
			g.metrics.ObserveAuthorization(kind, slug, "denied")
			g.logger.Debug("access denied", zap.String(kind, slug), zap.String("user_id", userID.String()))
			response.Forbidden(c, "insufficient permissions")
			c.Abort()
			return
		}
		g.metrics.ObserveAuthorization(kind, slug, "allowed")
		c.Next()
	}
}
