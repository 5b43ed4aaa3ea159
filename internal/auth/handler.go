package auth

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cpd-events/backoffice/internal/models"
	"github.com/cpd-events/backoffice/internal/users"
	"github.com/cpd-events/backoffice/pkg/response"
	"github.com/cpd-events/backoffice/pkg/utils"
)

// ContextUserID is the gin context key holding the authenticated user's ID.
const ContextUserID = "user_id"

// UserFinder looks up accounts. *users.Repository implements it.
type UserFinder interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// PermissionResolver loads roles and effective permissions. *rbac.Service implements it.
type PermissionResolver interface {
	UserRoles(ctx context.Context, userID uuid.UUID) ([]models.Role, error)
	PermissionSet(ctx context.Context, userID uuid.UUID) (map[string]struct{}, error)
}

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse is the auth response with JWT.
type TokenResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// MeResponse describes the authenticated user and what they may do.
type MeResponse struct {
	User        *models.User `json:"user"`
	Permissions []string     `json:"permissions"`
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	users  UserFinder
	perms  PermissionResolver
	jwt    *JWTService
	logger *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(users UserFinder, perms PermissionResolver, jwt *JWTService, logger *zap.Logger) *Handler {
	return &Handler{users: users, perms: perms, jwt: jwt, logger: logger}
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	user, err := h.users.GetByEmail(c.Request.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if !errors.Is(err, users.ErrNotFound) {
			h.logger.Error("login lookup failed", zap.Error(err))
			response.Internal(c, "login failed")
			return
		}
		response.Unauthorized(c, "invalid email or password")
		return
	}

	if !utils.CheckPassword(req.Password, user.PasswordHash) {
		response.Unauthorized(c, "invalid email or password")
		return
	}

	token, err := h.jwt.Generate(user.ID, user.Email)
	if err != nil {
		h.logger.Error("token generation failed", zap.Error(err))
		response.Internal(c, "failed to generate token")
		return
	}

	h.logger.Info("user logged in", zap.String("user_id", user.ID.String()))
	response.OK(c, TokenResponse{Token: token, User: user})
}

// Me handles GET /auth/me: the user with roles and the sorted union of permission slugs.
func (h *Handler) Me(c *gin.Context) {
	id, ok := c.Get(ContextUserID)
	userID, _ := id.(uuid.UUID)
	if !ok || userID == uuid.Nil {
		response.Unauthorized(c, "missing user context")
		return
	}
	ctx := c.Request.Context()

	user, err := h.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			response.Unauthorized(c, "account no longer exists")
			return
		}
		h.logger.Error("load current user failed", zap.Error(err))
		response.Internal(c, "failed to load user")
		return
	}
	roles, err := h.perms.UserRoles(ctx, userID)
	if err != nil {
		h.logger.Error("load current user roles failed", zap.Error(err))
		response.Internal(c, "failed to load roles")
		return
	}
	user.Roles = roles

	set, err := h.perms.PermissionSet(ctx, userID)
	if err != nil {
		h.logger.Error("load current user permissions failed", zap.Error(err))
		response.Internal(c, "failed to load permissions")
		return
	}
	slugs := make([]string, 0, len(set))
	for s := range set {
		slugs = append(slugs, s)
	}
	sort.Strings(slugs)

	response.OK(c, MeResponse{User: user, Permissions: slugs})
}
