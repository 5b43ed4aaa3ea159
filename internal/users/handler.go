package users

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cpd-events/backoffice/internal/models"
	"github.com/cpd-events/backoffice/internal/rbac"
	"github.com/cpd-events/backoffice/pkg/response"
	"github.com/cpd-events/backoffice/pkg/utils"
)

// Store is the user persistence the handler needs. *Repository implements it.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	List(ctx context.Context) ([]models.User, error)
	Create(ctx context.Context, u *models.User, roleIDs []uuid.UUID) error
	Update(ctx context.Context, u *models.User, roleIDs *[]uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// RoleAssigner manages a user's roles. *rbac.Service implements it.
type RoleAssigner interface {
	UserRoles(ctx context.Context, userID uuid.UUID) ([]models.Role, error)
	SyncUserRoles(ctx context.Context, userID uuid.UUID, roleIDs []uuid.UUID) error
	AssignRole(ctx context.Context, userID, roleID uuid.UUID) error
	RemoveRole(ctx context.Context, userID, roleID uuid.UUID) error
	InvalidateUsers(ctx context.Context, userIDs ...uuid.UUID)
}

// CreateRequest is the body for POST /users. Without a password the account gets a random one.
type CreateRequest struct {
	Name     string      `json:"name" binding:"required,max=255"`
	Email    string      `json:"email" binding:"required,email,max=255"`
	Password string      `json:"password" binding:"omitempty,min=8,max=72"`
	RoleIDs  []uuid.UUID `json:"role_ids"`
}

// UpdateRequest is the body for PATCH /users/:id.
type UpdateRequest struct {
	Name     *string      `json:"name" binding:"omitempty,min=1,max=255"`
	Email    *string      `json:"email" binding:"omitempty,email,max=255"`
	Password *string      `json:"password" binding:"omitempty,min=8,max=72"`
	RoleIDs  *[]uuid.UUID `json:"role_ids"`
}

// SyncRolesRequest is the body for PUT /users/:id/roles.
type SyncRolesRequest struct {
	RoleIDs []uuid.UUID `json:"role_ids"`
}

// Handler handles user administration endpoints.
type Handler struct {
	repo   Store
	roles  RoleAssigner
	logger *zap.Logger
}

// NewHandler creates a users handler.
func NewHandler(repo Store, roles RoleAssigner, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, roles: roles, logger: logger}
}

func (h *Handler) fail(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, "user not found")
	case errors.Is(err, rbac.ErrNotFound):
		response.NotFound(c, "role not found")
	case errors.Is(err, ErrEmailTaken):
		response.Conflict(c, err.Error())
	case errors.Is(err, ErrUnknownRole):
		response.BadRequest(c, err.Error())
	default:
		h.logger.Error(msg, zap.Error(err))
		response.Internal(c, msg)
	}
}

func userID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return uuid.Nil, false
	}
	return id, true
}

// withRoles loads the user's roles and their permissions.
func (h *Handler) withRoles(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := h.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	roles, err := h.roles.UserRoles(ctx, id)
	if err != nil {
		return nil, err
	}
	u.Roles = roles
	return u, nil
}

// List handles GET /users.
func (h *Handler) List(c *gin.Context) {
	list, err := h.repo.List(c.Request.Context())
	if err != nil {
		h.fail(c, err, "failed to list users")
		return
	}
	response.List(c, list)
}

// Get handles GET /users/:id.
func (h *Handler) Get(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}
	u, err := h.withRoles(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, "failed to load user")
		return
	}
	response.OK(c, u)
}

// Create handles POST /users.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ctx := c.Request.Context()

	var hash string
	var err error
	if req.Password != "" {
		hash, err = utils.HashPassword(req.Password)
	} else {
		hash, err = utils.HashRandomPassword()
	}
	if err != nil {
		h.fail(c, err, "failed to hash password")
		return
	}

	u := &models.User{
		Name:         strings.TrimSpace(req.Name),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: hash,
	}
	if err := h.repo.Create(ctx, u, req.RoleIDs); err != nil {
		h.fail(c, err, "failed to create user")
		return
	}
	h.logger.Info("user created", zap.String("user_id", u.ID.String()))

	created, err := h.withRoles(ctx, u.ID)
	if err != nil {
		h.fail(c, err, "failed to load user")
		return
	}
	response.Created(c, created)
}

// Update handles PATCH /users/:id.
func (h *Handler) Update(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ctx := c.Request.Context()

	u, err := h.repo.GetByID(ctx, id)
	if err != nil {
		h.fail(c, err, "failed to load user")
		return
	}
	if req.Name != nil {
		u.Name = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		u.Email = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if req.Password != nil {
		hash, err := utils.HashPassword(*req.Password)
		if err != nil {
			h.fail(c, err, "failed to hash password")
			return
		}
		u.PasswordHash = hash
	}
	if err := h.repo.Update(ctx, u, req.RoleIDs); err != nil {
		h.fail(c, err, "failed to update user")
		return
	}
	if req.RoleIDs != nil {
		h.roles.InvalidateUsers(ctx, id)
	}

	updated, err := h.withRoles(ctx, id)
	if err != nil {
		h.fail(c, err, "failed to load user")
		return
	}
	response.OK(c, updated)
}

// Delete handles DELETE /users/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}
	if err := h.repo.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, err, "failed to delete user")
		return
	}
	h.roles.InvalidateUsers(c.Request.Context(), id)
	h.logger.Info("user deleted", zap.String("user_id", id.String()))
	response.NoContent(c)
}

// SyncRoles handles PUT /users/:id/roles.
func (h *Handler) SyncRoles(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}
	var req SyncRolesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ctx := c.Request.Context()
	if _, err := h.repo.GetByID(ctx, id); err != nil {
		h.fail(c, err, "failed to load user")
		return
	}
	if err := h.roles.SyncUserRoles(ctx, id, req.RoleIDs); err != nil {
		h.fail(c, err, "failed to assign roles")
		return
	}
	u, err := h.withRoles(ctx, id)
	if err != nil {
		h.fail(c, err, "failed to load user")
		return
	}
	response.OK(c, u)
}

// AssignRole handles POST /users/:id/roles/:roleId.
func (h *Handler) AssignRole(c *gin.Context) {
	h.changeRole(c, h.roles.AssignRole)
}

// RemoveRole handles DELETE /users/:id/roles/:roleId.
func (h *Handler) RemoveRole(c *gin.Context) {
	h.changeRole(c, h.roles.RemoveRole)
}

func (h *Handler) changeRole(c *gin.Context, apply func(ctx context.Context, userID, roleID uuid.UUID) error) {
	id, ok := userID(c)
	if !ok {
		return
	}
	roleID, err := uuid.Parse(c.Param("roleId"))
	if err != nil {
		response.BadRequest(c, "invalid role id")
		return
	}
	ctx := c.Request.Context()
	if _, err := h.repo.GetByID(ctx, id); err != nil {
		h.fail(c, err, "failed to load user")
		return
	}
	if err := apply(ctx, id, roleID); err != nil {
		h.fail(c, err, "failed to change roles")
		return
	}
	response.NoContent(c)
}
