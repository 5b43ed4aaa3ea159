package rbac

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/cpd-events/backoffice/internal/models"
	"github.com/cpd-events/backoffice/pkg/metrics"
	"github.com/cpd-events/backoffice/pkg/utils"
)

// Store is the persistence the service needs. *Repository implements it.
type Store interface {
	CreatePermission(ctx context.Context, p *models.Permission) error
	GetPermission(ctx context.Context, id uuid.UUID) (*models.Permission, error)
	ListPermissions(ctx context.Context) ([]models.Permission, error)
	ExistingPermissionSlugs(ctx context.Context, slugs []string) (map[string]bool, error)
	UpdatePermission(ctx context.Context, p *models.Permission) error
	DeletePermissions(ctx context.Context, ids []uuid.UUID) (int64, error)
	PermissionRoles(ctx context.Context, permissionID uuid.UUID) ([]models.Role, error)

	CreateRole(ctx context.Context, role *models.Role, permissionIDs []uuid.UUID) error
	GetRole(ctx context.Context, id uuid.UUID) (*models.Role, error)
	GetRoleBySlug(ctx context.Context, slug string) (*models.Role, error)
	ListRoles(ctx context.Context) ([]models.Role, error)
	UpdateRole(ctx context.Context, role *models.Role, permissionIDs *[]uuid.UUID) error
	DeleteRole(ctx context.Context, id uuid.UUID) error
	RolePermissions(ctx context.Context, roleID uuid.UUID) ([]models.Permission, error)
	RoleHasPermission(ctx context.Context, roleID uuid.UUID, slug string) (bool, error)
	SyncRolePermissions(ctx context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID) error
	AttachPermissions(ctx context.Context, roleIDs, permissionIDs []uuid.UUID) error
	DetachPermission(ctx context.Context, roleID, permissionID uuid.UUID) error
	RoleUsers(ctx context.Context, roleID uuid.UUID) ([]models.User, error)

	UserRoles(ctx context.Context, userID uuid.UUID) ([]models.Role, error)
	UserHasRole(ctx context.Context, userID uuid.UUID, slug string) (bool, error)
	UserPermissionSlugs(ctx context.Context, userID uuid.UUID) ([]string, error)
	SyncUserRoles(ctx context.Context, userID uuid.UUID, roleIDs []uuid.UUID) error
	AttachRole(ctx context.Context, userID, roleID uuid.UUID) error
	DetachRole(ctx context.Context, userID, roleID uuid.UUID) error
	UserIDsForRoles(ctx context.Context, roleIDs []uuid.UUID) ([]uuid.UUID, error)
	UserIDsForPermissions(ctx context.Context, permissionIDs []uuid.UUID) ([]uuid.UUID, error)
}

// Service resolves permissions and administers roles, permissions and assignments.
type Service struct {
	store   Store
	cache   PermissionCache
	loads   singleflight.Group
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewService creates an RBAC service. A nil cache disables caching.
func NewService(store Store, cache PermissionCache, logger *zap.Logger) *Service {
	if cache == nil {
		cache = NopCache{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, cache: cache, logger: logger}
}

// SetMetrics records permission cache hits and misses.
func (s *Service) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// --- resolution ---

// PermissionSet returns the user's effective permission slugs: the union over all assigned roles.
func (s *Service) PermissionSet(ctx context.Context, userID uuid.UUID) (map[string]struct{}, error) {
	slugs, ok, err := s.cache.Get(ctx, userID)
	if err != nil {
		s.logger.Warn("permission cache read failed", zap.String("user_id", userID.String()), zap.Error(err))
	}
	s.metrics.ObserveCacheLookup(ok)
	if !ok {
		slugs, err = s.loadPermissionSlugs(ctx, userID)
		if err != nil {
			return nil, err
		}
	}
	set := make(map[string]struct{}, len(slugs))
	for _, slug := range slugs {
		set[slug] = struct{}{}
	}
	return set, nil
}

// permissionLoadTimeout bounds a shared store load, which outlives the request that started it.
const permissionLoadTimeout = 10 * time.Second

// loadPermissionSlugs reads the set from the store and caches it. Concurrent misses for the
// same user and generation share one query. The cache generation is read first, so a load that
// overlaps an invalidation neither caches its result nor serves it to requests arriving later.
func (s *Service) loadPermissionSlugs(ctx context.Context, userID uuid.UUID) ([]string, error) {
	gen, err := s.cache.Generation(ctx, userID)
	if err != nil {
		s.logger.Warn("permission cache generation read failed", zap.String("user_id", userID.String()), zap.Error(err))
		slugs, err := s.store.UserPermissionSlugs(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("load permissions: %w", err)
		}
		return slugs, nil
	}

	key := userID.String() + ":" + strconv.FormatUint(gen, 10)
	ch := s.loads.DoChan(key, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), permissionLoadTimeout)
		defer cancel()
		slugs, err := s.store.UserPermissionSlugs(loadCtx, userID)
		if err != nil {
			return nil, fmt.Errorf("load permissions: %w", err)
		}
		if err := s.cache.Set(loadCtx, userID, gen, slugs); err != nil {
			s.logger.Warn("permission cache write failed", zap.String("user_id", userID.String()), zap.Error(err))
		}
		return slugs, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]string), nil
	}
}

// HasPermission reports whether any of the user's roles grants slug.
// A user with no roles has no permissions; there are no deny rules.
func (s *Service) HasPermission(ctx context.Context, userID uuid.UUID, slug string) (bool, error) {
	set, err := s.PermissionSet(ctx, userID)
	if err != nil {
		return false, err
	}
	_, ok := set[slug]
	return ok, nil
}

// HasRole reports whether the user is assigned the role with slug.
func (s *Service) HasRole(ctx context.Context, userID uuid.UUID, slug string) (bool, error) {
	return s.store.UserHasRole(ctx, userID, slug)
}

// RoleHasPermission reports whether the role holds the permission with slug.
func (s *Service) RoleHasPermission(ctx context.Context, roleID uuid.UUID, slug string) (bool, error) {
	return s.store.RoleHasPermission(ctx, roleID, slug)
}

// UserRoles returns the user's roles with their permissions loaded.
func (s *Service) UserRoles(ctx context.Context, userID uuid.UUID) ([]models.Role, error) {
	roles, err := s.store.UserRoles(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range roles {
		perms, err := s.store.RolePermissions(ctx, roles[i].ID)
		if err != nil {
			return nil, err
		}
		roles[i].Permissions = perms
	}
	return roles, nil
}

// InvalidateUsers drops cached permission sets. Cache failures are logged, not returned:
// entries still expire after the TTL.
func (s *Service) InvalidateUsers(ctx context.Context, userIDs ...uuid.UUID) {
	if err := s.cache.Invalidate(ctx, userIDs...); err != nil {
		s.logger.Error("permission cache invalidation failed", zap.Int("users", len(userIDs)), zap.Error(err))
	}
}

func (s *Service) invalidateRoles(ctx context.Context, roleIDs ...uuid.UUID) error {
	ids, err := s.store.UserIDsForRoles(ctx, roleIDs)
	if err != nil {
		return fmt.Errorf("find role users: %w", err)
	}
	s.InvalidateUsers(ctx, ids...)
	return nil
}

// --- permissions ---

// PermissionInput holds writable permission fields. Blank Slug is derived from Name.
type PermissionInput struct {
	Name        string
	Slug        string
	Description string
}

func (in PermissionInput) normalize() (PermissionInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Slug = strings.TrimSpace(in.Slug)
	in.Description = strings.TrimSpace(in.Description)
	if in.Name == "" {
		return in, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if in.Slug == "" {
		in.Slug = utils.Slugify(in.Name)
	}
	if in.Slug == "" {
		return in, fmt.Errorf("%w: slug cannot be derived from name %q", ErrInvalidInput, in.Name)
	}
	return in, nil
}

// CreatePermission creates a permission, deriving the slug from the name when blank.
func (s *Service) CreatePermission(ctx context.Context, in PermissionInput) (*models.Permission, error) {
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}
	p := &models.Permission{Name: in.Name, Slug: in.Slug, Description: in.Description}
	if err := s.store.CreatePermission(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("permission created", zap.String("slug", p.Slug))
	return p, nil
}

// GetPermission returns a permission.
func (s *Service) GetPermission(ctx context.Context, id uuid.UUID) (*models.Permission, error) {
	return s.store.GetPermission(ctx, id)
}

// ListPermissions returns every permission.
func (s *Service) ListPermissions(ctx context.Context) ([]models.Permission, error) {
	return s.store.ListPermissions(ctx)
}

// PermissionRoles returns the roles holding a permission.
func (s *Service) PermissionRoles(ctx context.Context, id uuid.UUID) ([]models.Role, error) {
	if _, err := s.store.GetPermission(ctx, id); err != nil {
		return nil, err
	}
	return s.store.PermissionRoles(ctx, id)
}

// UpdatePermission rewrites a permission. A blank slug keeps the current one.
func (s *Service) UpdatePermission(ctx context.Context, id uuid.UUID, in PermissionInput) (*models.Permission, error) {
	p, err := s.store.GetPermission(ctx, id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Slug) == "" {
		in.Slug = p.Slug
	}
	in, err = in.normalize()
	if err != nil {
		return nil, err
	}
	slugChanged := in.Slug != p.Slug
	p.Name, p.Slug, p.Description = in.Name, in.Slug, in.Description
	if err := s.store.UpdatePermission(ctx, p); err != nil {
		return nil, err
	}
	if slugChanged {
		ids, err := s.store.UserIDsForPermissions(ctx, []uuid.UUID{id})
		if err != nil {
			return nil, fmt.Errorf("find permission users: %w", err)
		}
		s.InvalidateUsers(ctx, ids...)
	}
	return p, nil
}

// DeletePermissions hard-deletes permissions and invalidates every affected user.
func (s *Service) DeletePermissions(ctx context.Context, ids ...uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	affected, err := s.store.UserIDsForPermissions(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("find permission users: %w", err)
	}
	n, err := s.store.DeletePermissions(ctx, ids)
	if err != nil {
		return 0, err
	}
	s.InvalidateUsers(ctx, affected...)
	s.logger.Info("permissions deleted", zap.Int64("count", n))
	return n, nil
}

// DuplicatePermission creates a copy of a permission. Blank fields in overrides default to
// "Copy of <name>", "<slug>_copy" and the original description.
func (s *Service) DuplicatePermission(ctx context.Context, id uuid.UUID, overrides PermissionInput) (*models.Permission, error) {
	src, err := s.store.GetPermission(ctx, id)
	if err != nil {
		return nil, err
	}
	in := overrides
	if strings.TrimSpace(in.Name) == "" {
		in.Name = "Copy of " + src.Name
	}
	if strings.TrimSpace(in.Slug) == "" {
		in.Slug = src.Slug + "_copy"
	}
	if strings.TrimSpace(in.Description) == "" {
		in.Description = src.Description
	}
	return s.CreatePermission(ctx, in)
}

// CRUDActions are the actions generated for a resource, in creation order.
var CRUDActions = []string{"list", "view", "create", "edit", "delete"}

// GenerateResult reports what GenerateCRUDPermissions created and skipped.
type GenerateResult struct {
	Created []models.Permission `json:"created"`
	Skipped []string            `json:"skipped"`
}

// GenerateCRUDPermissions creates <resource>.list|view|create|edit|delete, skipping slugs that exist.
// resource is expected in plural form (e.g. "events"); it is slugified for the permission slugs.
func (s *Service) GenerateCRUDPermissions(ctx context.Context, resource string) (*GenerateResult, error) {
	resource = strings.ToLower(strings.TrimSpace(resource))
	if resource == "" {
		return nil, fmt.Errorf("%w: resource is required", ErrInvalidInput)
	}
	if utils.Slugify(resource) == "" {
		return nil, fmt.Errorf("%w: slug cannot be derived from resource %q", ErrInvalidInput, resource)
	}
	inputs := crudPermissionInputs(resource)
	slugs := make([]string, len(inputs))
	for i, in := range inputs {
		slugs[i] = in.Slug
	}
	existing, err := s.store.ExistingPermissionSlugs(ctx, slugs)
	if err != nil {
		return nil, fmt.Errorf("check existing permissions: %w", err)
	}

	result := &GenerateResult{Created: []models.Permission{}, Skipped: []string{}}
	for _, in := range inputs {
		if existing[in.Slug] {
			result.Skipped = append(result.Skipped, in.Slug)
			continue
		}
		p, err := s.CreatePermission(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", in.Slug, err)
		}
		result.Created = append(result.Created, *p)
	}
	return result, nil
}

func crudPermissionInputs(resource string) []PermissionInput {
	key := utils.Slugify(resource)
	title := upperFirst(resource)
	one := singular(resource)
	descriptions := map[string]string{
		"list":   "Ability to view list of " + resource,
		"view":   "Ability to view " + one + " details",
		"create": "Ability to create new " + one,
		"edit":   "Ability to edit " + one,
		"delete": "Ability to delete " + one,
	}
	out := make([]PermissionInput, 0, len(CRUDActions))
	for _, action := range CRUDActions {
		out = append(out, PermissionInput{
			Name:        title + " " + upperFirst(action),
			Slug:        key + "." + action,
			Description: descriptions[action],
		})
	}
	return out
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// singular drops the plural ending of an English noun: "events", "categories", but not "address".
func singular(s string) string {
	switch {
	case strings.HasSuffix(s, "ies"):
		return strings.TrimSuffix(s, "ies") + "y"
	case strings.HasSuffix(s, "ss"):
		return s
	default:
		return strings.TrimSuffix(s, "s")
	}
}

// AssignPermissionsToRoles grants every permission to every role without removing existing grants.
func (s *Service) AssignPermissionsToRoles(ctx context.Context, permissionIDs, roleIDs []uuid.UUID) error {
	if len(permissionIDs) == 0 || len(roleIDs) == 0 {
		return fmt.Errorf("%w: permissions and roles are required", ErrInvalidInput)
	}
	if err := s.store.AttachPermissions(ctx, roleIDs, permissionIDs); err != nil {
		return err
	}
	s.logger.Info("permissions assigned to roles", zap.Int("permissions", len(permissionIDs)), zap.Int("roles", len(roleIDs)))
	return s.invalidateRoles(ctx, roleIDs...)
}

// --- roles ---

// RoleInput holds writable role fields. Blank Slug is derived from Name.
// A nil PermissionIDs leaves permissions untouched; an empty one clears them.
type RoleInput struct {
	Name          string
	Slug          string
	Description   string
	PermissionIDs *[]uuid.UUID
}

// CreateRole creates a role and its permission grants atomically.
func (s *Service) CreateRole(ctx context.Context, in RoleInput) (*models.Role, error) {
	norm, err := PermissionInput{Name: in.Name, Slug: in.Slug, Description: in.Description}.normalize()
	if err != nil {
		return nil, err
	}
	var permissionIDs []uuid.UUID
	if in.PermissionIDs != nil {
		permissionIDs = *in.PermissionIDs
	}
	role := &models.Role{Name: norm.Name, Slug: norm.Slug, Description: norm.Description}
	if err := s.store.CreateRole(ctx, role, permissionIDs); err != nil {
		return nil, err
	}
	s.logger.Info("role created", zap.String("slug", role.Slug))
	return s.GetRole(ctx, role.ID)
}

// GetRole returns a role with its permissions loaded.
func (s *Service) GetRole(ctx context.Context, id uuid.UUID) (*models.Role, error) {
	role, err := s.store.GetRole(ctx, id)
	if err != nil {
		return nil, err
	}
	perms, err := s.store.RolePermissions(ctx, id)
	if err != nil {
		return nil, err
	}
	role.Permissions = perms
	return role, nil
}

// ListRoles returns every role.
func (s *Service) ListRoles(ctx context.Context) ([]models.Role, error) {
	return s.store.ListRoles(ctx)
}

// UpdateRole rewrites a role and, when PermissionIDs is set, replaces its permissions in the
// same transaction.
func (s *Service) UpdateRole(ctx context.Context, id uuid.UUID, in RoleInput) (*models.Role, error) {
	role, err := s.store.GetRole(ctx, id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Slug) == "" {
		in.Slug = role.Slug
	}
	norm, err := PermissionInput{Name: in.Name, Slug: in.Slug, Description: in.Description}.normalize()
	if err != nil {
		return nil, err
	}
	role.Name, role.Slug, role.Description = norm.Name, norm.Slug, norm.Description
	if err := s.store.UpdateRole(ctx, role, in.PermissionIDs); err != nil {
		return nil, err
	}
	if in.PermissionIDs != nil {
		if err := s.invalidateRoles(ctx, id); err != nil {
			return nil, err
		}
	}
	return s.GetRole(ctx, id)
}

// DeleteRole hard-deletes a role and invalidates its former holders.
func (s *Service) DeleteRole(ctx context.Context, id uuid.UUID) error {
	affected, err := s.store.UserIDsForRoles(ctx, []uuid.UUID{id})
	if err != nil {
		return fmt.Errorf("find role users: %w", err)
	}
	if err := s.store.DeleteRole(ctx, id); err != nil {
		return err
	}
	s.InvalidateUsers(ctx, affected...)
	s.logger.Info("role deleted", zap.String("role_id", id.String()))
	return nil
}

// SyncRolePermissions replaces the role's permission set.
func (s *Service) SyncRolePermissions(ctx context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID) error {
	if err := s.store.SyncRolePermissions(ctx, roleID, permissionIDs); err != nil {
		return err
	}
	return s.invalidateRoles(ctx, roleID)
}

// GivePermission attaches one permission to a role, keeping existing grants.
func (s *Service) GivePermission(ctx context.Context, roleID, permissionID uuid.UUID) error {
	if err := s.store.AttachPermissions(ctx, []uuid.UUID{roleID}, []uuid.UUID{permissionID}); err != nil {
		return err
	}
	return s.invalidateRoles(ctx, roleID)
}

// RevokePermission detaches one permission from a role.
func (s *Service) RevokePermission(ctx context.Context, roleID, permissionID uuid.UUID) error {
	if err := s.store.DetachPermission(ctx, roleID, permissionID); err != nil {
		return err
	}
	return s.invalidateRoles(ctx, roleID)
}

// RoleUsers returns the users holding a role.
func (s *Service) RoleUsers(ctx context.Context, roleID uuid.UUID) ([]models.User, error) {
	if _, err := s.store.GetRole(ctx, roleID); err != nil {
		return nil, err
	}
	return s.store.RoleUsers(ctx, roleID)
}

// RolePermissions returns the permissions attached to a role.
func (s *Service) RolePermissions(ctx context.Context, roleID uuid.UUID) ([]models.Permission, error) {
	if _, err := s.store.GetRole(ctx, roleID); err != nil {
		return nil, err
	}
	return s.store.RolePermissions(ctx, roleID)
}

// --- user assignments ---

// SyncUserRoles replaces the user's roles.
func (s *Service) SyncUserRoles(ctx context.Context, userID uuid.UUID, roleIDs []uuid.UUID) error {
	if err := s.store.SyncUserRoles(ctx, userID, roleIDs); err != nil {
		return err
	}
	s.InvalidateUsers(ctx, userID)
	return nil
}

// AssignRole gives the user a role; assigning an already-held role is a no-op.
func (s *Service) AssignRole(ctx context.Context, userID, roleID uuid.UUID) error {
	if err := s.store.AttachRole(ctx, userID, roleID); err != nil {
		return err
	}
	s.InvalidateUsers(ctx, userID)
	return nil
}

// AssignRoleBySlug gives the user the role with slug.
func (s *Service) AssignRoleBySlug(ctx context.Context, userID uuid.UUID, slug string) error {
	role, err := s.store.GetRoleBySlug(ctx, slug)
	if err != nil {
		return err
	}
	return s.AssignRole(ctx, userID, role.ID)
}

// RemoveRole takes a role away from the user.
func (s *Service) RemoveRole(ctx context.Context, userID, roleID uuid.UUID) error {
	if err := s.store.DetachRole(ctx, userID, roleID); err != nil {
		return err
	}
	s.InvalidateUsers(ctx, userID)
	return nil
}
