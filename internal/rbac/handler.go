package rbac

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cpd-events/backoffice/pkg/response"
)

// writeError maps service errors onto HTTP responses.
func writeError(c *gin.Context, logger *zap.Logger, err error, what string) {
	switch {
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, what+" not found")
	case errors.Is(err, ErrSlugTaken), errors.Is(err, ErrNameTaken), errors.Is(err, ErrConflict):
		response.Conflict(c, err.Error())
	case errors.Is(err, ErrInvalidInput):
		response.BadRequest(c, err.Error())
	default:
		logger.Error("rbac request failed", zap.String("path", c.FullPath()), zap.Error(err))
		response.Internal(c, "internal error")
	}
}

func parseID(c *gin.Context, param, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		response.BadRequest(c, "invalid "+what+" id")
		return uuid.Nil, false
	}
	return id, true
}

func derefOr(p *string, fallback string) string {
	if p == nil {
		return fallback
	}
	return *p
}
