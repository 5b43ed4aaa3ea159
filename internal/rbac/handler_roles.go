package rbac

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cpd-events/backoffice/pkg/response"
)

// RoleRequest is the body for POST /roles.
type RoleRequest struct {
	Name          string       `json:"name" binding:"required,max=255"`
	Slug          string       `json:"slug" binding:"max=255"`
	Description   string       `json:"description" binding:"max=1000"`
	PermissionIDs *[]uuid.UUID `json:"permission_ids"`
}

// UpdateRoleRequest is the body for PATCH /roles/:id.
type UpdateRoleRequest struct {
	Name          *string      `json:"name" binding:"omitempty,max=255"`
	Slug          *string      `json:"slug" binding:"omitempty,max=255"`
	Description   *string      `json:"description" binding:"omitempty,max=1000"`
	PermissionIDs *[]uuid.UUID `json:"permission_ids"`
}

// SyncPermissionsRequest is the body for PUT /roles/:id/permissions.
type SyncPermissionsRequest struct {
	PermissionIDs []uuid.UUID `json:"permission_ids"`
}

// RoleHandler serves /roles.
type RoleHandler struct {
	svc    *Service
	logger *zap.Logger
}

// NewRoleHandler creates a role handler.
func NewRoleHandler(svc *Service, logger *zap.Logger) *RoleHandler {
	return &RoleHandler{svc: svc, logger: logger}
}

// List handles GET /roles.
func (h *RoleHandler) List(c *gin.Context) {
	list, err := h.svc.ListRoles(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err, "role")
		return
	}
	response.List(c, list)
}

// Get handles GET /roles/:id, with permissions.
func (h *RoleHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id", "role")
	if !ok {
		return
	}
	role, err := h.svc.GetRole(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err, "role")
		return
	}
	response.OK(c, role)
}

// Create handles POST /roles.
func (h *RoleHandler) Create(c *gin.Context) {
	var req RoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	role, err := h.svc.CreateRole(c.Request.Context(), RoleInput(req))
	if err != nil {
		writeError(c, h.logger, err, "role")
		return
	}
	response.Created(c, role)
}

// Update handles PATCH /roles/:id.
func (h *RoleHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "id", "role")
	if !ok {
		return
	}
	var req UpdateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	current, err := h.svc.GetRole(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err, "role")
		return
	}
	role, err := h.svc.UpdateRole(c.Request.Context(), id, RoleInput{
		Name:          derefOr(req.Name, current.Name),
		Slug:          derefOr(req.Slug, current.Slug),
		Description:   derefOr(req.Description, current.Description),
		PermissionIDs: req.PermissionIDs,
	})
	if err != nil {
		writeError(c, h.logger, err, "role")
		return
	}
	response.OK(c, role)
}

// Delete handles DELETE /roles/:id.
func (h *RoleHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id", "role")
	if !ok {
		return
	}
	if err := h.svc.DeleteRole(c.Request.Context(), id); err != nil {
		writeError(c, h.logger, err, "role")
		return
	}
	response.NoContent(c)
}

// Users handles GET /roles/:id/users.
func (h *RoleHandler) Users(c *gin.Context) {
	id, ok := parseID(c, "id", "role")
	if !ok {
		return
	}
	users, err := h.svc.RoleUsers(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err, "role")
		return
	}
	response.List(c, users)
}

// Permissions handles GET /roles/:id/permissions.
func (h *RoleHandler) Permissions(c *gin.Context) {
	id, ok := parseID(c, "id", "role")
	if !ok {
		return
	}
	perms, err := h.svc.RolePermissions(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err, "role")
		return
	}
	response.List(c, perms)
}

// SyncPermissions handles PUT /roles/:id/permissions.
func (h *RoleHandler) SyncPermissions(c *gin.Context) {
	id, ok := parseID(c, "id", "role")
	if !ok {
		return
	}
	var req SyncPermissionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if _, err := h.svc.GetRole(c.Request.Context(), id); err != nil {
		writeError(c, h.logger, err, "role")
		return
	}
	if err := h.svc.SyncRolePermissions(c.Request.Context(), id, req.PermissionIDs); err != nil {
		writeError(c, h.logger, err, "permission")
		return
	}
	role, err := h.svc.GetRole(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err, "role")
		return
	}
	response.OK(c, role)
}

// GivePermission handles POST /roles/:id/permissions/:permissionId.
func (h *RoleHandler) GivePermission(c *gin.Context) {
	roleID, ok := parseID(c, "id", "role")
	if !ok {
		return
	}
	permissionID, ok := parseID(c, "permissionId", "permission")
	if !ok {
		return
	}
	if err := h.svc.GivePermission(c.Request.Context(), roleID, permissionID); err != nil {
		writeError(c, h.logger, err, "role or permission")
		return
	}
	response.NoContent(c)
}

// RevokePermission handles DELETE /roles/:id/permissions/:permissionId.
func (h *RoleHandler) RevokePermission(c *gin.Context) {
	roleID, ok := parseID(c, "id", "role")
	if !ok {
		return
	}
	permissionID, ok := parseID(c, "permissionId", "permission")
	if !ok {
		return
	}
	if err := h.svc.RevokePermission(c.Request.Context(), roleID, permissionID); err != nil {
		writeError(c, h.logger, err, "role or permission")
		return
	}
	response.NoContent(c)
}
