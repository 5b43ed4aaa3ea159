package rbac

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cpd-events/backoffice/pkg/response"
)

// PermissionRequest is the body for POST /permissions and POST /permissions/:id/duplicate.
type PermissionRequest struct {
	Name        string `json:"name" binding:"max=255"`
	Slug        string `json:"slug" binding:"max=255"`
	Description string `json:"description" binding:"max=1000"`
}

// UpdatePermissionRequest is the body for PATCH /permissions/:id.
type UpdatePermissionRequest struct {
	Name        *string `json:"name" binding:"omitempty,max=255"`
	Slug        *string `json:"slug" binding:"omitempty,max=255"`
	Description *string `json:"description" binding:"omitempty,max=1000"`
}

// GenerateRequest is the body for POST /permissions/generate.
type GenerateRequest struct {
	Resource string `json:"resource" binding:"required,max=100"`
}

// AssignToRolesRequest is the body for POST /permissions/assign-to-roles.
type AssignToRolesRequest struct {
	PermissionIDs []uuid.UUID `json:"permission_ids" binding:"required,min=1"`
	RoleIDs       []uuid.UUID `json:"role_ids" binding:"required,min=1"`
}

// BulkIDsRequest carries a list of record IDs for bulk actions.
type BulkIDsRequest struct {
	IDs []uuid.UUID `json:"ids" binding:"required,min=1"`
}

// PermissionHandler serves /permissions.
type PermissionHandler struct {
	svc    *Service
	logger *zap.Logger
}

// NewPermissionHandler creates a permission handler.
func NewPermissionHandler(svc *Service, logger *zap.Logger) *PermissionHandler {
	return &PermissionHandler{svc: svc, logger: logger}
}

// List handles GET /permissions.
func (h *PermissionHandler) List(c *gin.Context) {
	list, err := h.svc.ListPermissions(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err, "permission")
		return
	}
	response.List(c, list)
}

// Get handles GET /permissions/:id.
func (h *PermissionHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id", "permission")
	if !ok {
		return
	}
	p, err := h.svc.GetPermission(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err, "permission")
		return
	}
	response.OK(c, p)
}

// Create handles POST /permissions. A blank slug is derived from the name.
func (h *PermissionHandler) Create(c *gin.Context) {
	var req PermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	p, err := h.svc.CreatePermission(c.Request.Context(), PermissionInput(req))
	if err != nil {
		writeError(c, h.logger, err, "permission")
		return
	}
	response.Created(c, p)
}

// Update handles PATCH /permissions/:id.
func (h *PermissionHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "id", "permission")
	if !ok {
		return
	}
	var req UpdatePermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	current, err := h.svc.GetPermission(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err, "permission")
		return
	}
	p, err := h.svc.UpdatePermission(c.Request.Context(), id, PermissionInput{
		Name:        derefOr(req.Name, current.Name),
		Slug:        derefOr(req.Slug, current.Slug),
		Description: derefOr(req.Description, current.Description),
	})
	if err != nil {
		writeError(c, h.logger, err, "permission")
		return
	}
	response.OK(c, p)
}

// Delete handles DELETE /permissions/:id.
func (h *PermissionHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id", "permission")
	if !ok {
		return
	}
	n, err := h.svc.DeletePermissions(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err, "permission")
		return
	}
	if n == 0 {
		response.NotFound(c, "permission not found")
		return
	}
	response.NoContent(c)
}

// BulkDelete handles POST /permissions/bulk-delete.
func (h *PermissionHandler) BulkDelete(c *gin.Context) {
	var req BulkIDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	n, err := h.svc.DeletePermissions(c.Request.Context(), req.IDs...)
	if err != nil {
		writeError(c, h.logger, err, "permission")
		return
	}
	response.OK(c, gin.H{"deleted": n})
}

// Duplicate handles POST /permissions/:id/duplicate. Body fields are optional overrides.
func (h *PermissionHandler) Duplicate(c *gin.Context) {
	id, ok := parseID(c, "id", "permission")
	if !ok {
		return
	}
	var req PermissionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid request: "+err.Error())
			return
		}
	}
	p, err := h.svc.DuplicatePermission(c.Request.Context(), id, PermissionInput(req))
	if err != nil {
		writeError(c, h.logger, err, "permission")
		return
	}
	response.Created(c, p)
}

// Generate handles POST /permissions/generate.
func (h *PermissionHandler) Generate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	result, err := h.svc.GenerateCRUDPermissions(c.Request.Context(), req.Resource)
	if err != nil {
		writeError(c, h.logger, err, "permission")
		return
	}
	response.Created(c, result)
}

// AssignToRoles handles POST /permissions/assign-to-roles.
func (h *PermissionHandler) AssignToRoles(c *gin.Context) {
	var req AssignToRolesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := h.svc.AssignPermissionsToRoles(c.Request.Context(), req.PermissionIDs, req.RoleIDs); err != nil {
		writeError(c, h.logger, err, "role or permission")
		return
	}
	response.OK(c, gin.H{"permissions": len(req.PermissionIDs), "roles": len(req.RoleIDs)})
}

// Roles handles GET /permissions/:id/roles.
func (h *PermissionHandler) Roles(c *gin.Context) {
	id, ok := parseID(c, "id", "permission")
	if !ok {
		return
	}
	roles, err := h.svc.PermissionRoles(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err, "permission")
		return
	}
	response.List(c, roles)
}
