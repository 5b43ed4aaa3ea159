package rbac

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/cpd-events/backoffice/internal/models"
	"github.com/cpd-events/backoffice/pkg/database"
)

// Repository persists roles, permissions and the role_user / permission_role pivots.
type Repository struct {
	db database.DB
}

// NewRepository creates an RBAC repository.
func NewRepository(db database.DB) *Repository {
	return &Repository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

const permissionColumns = `id, name, slug, description, created_at, updated_at`
const roleColumns = `id, name, slug, description, created_at, updated_at`

func scanPermission(row scanner) (*models.Permission, error) {
	var p models.Permission
	if err := row.Scan(&p.ID, &p.Name, &p.Slug, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func scanRole(row scanner) (*models.Role, error) {
	var r models.Role
	if err := row.Scan(&r.ID, &r.Name, &r.Slug, &r.Description, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

func collectPermissions(rows pgx.Rows) ([]models.Permission, error) {
	defer rows.Close()
	var list []models.Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *p)
	}
	return list, rows.Err()
}

func collectRoles(rows pgx.Rows) ([]models.Role, error) {
	defer rows.Close()
	var list []models.Role
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *r)
	}
	return list, rows.Err()
}

func collectIDs(rows pgx.Rows) ([]uuid.UUID, error) {
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// translate maps driver errors onto package sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if database.IsNoRows(err) {
		return ErrNotFound
	}
	if constraint, ok := database.UniqueViolation(err); ok {
		switch constraint {
		case "roles_slug_key", "permissions_slug_key":
			return ErrSlugTaken
		case "roles_name_key", "permissions_name_key":
			return ErrNameTaken
		}
		return fmt.Errorf("%w: %s", ErrConflict, constraint)
	}
	if database.IsForeignKeyViolation(err) {
		return ErrNotFound
	}
	return err
}

// --- permissions ---

// CreatePermission inserts p and fills its ID and timestamps.
func (r *Repository) CreatePermission(ctx context.Context, p *models.Permission) error {
	const q = `INSERT INTO permissions (name, slug, description) VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`
	err := r.db.QueryRow(ctx, q, p.Name, p.Slug, p.Description).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	return translate(err)
}

// GetPermission returns a permission by ID.
func (r *Repository) GetPermission(ctx context.Context, id uuid.UUID) (*models.Permission, error) {
	p, err := scanPermission(r.db.QueryRow(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err)
	}
	return p, nil
}

// ListPermissions returns all permissions ordered by slug.
func (r *Repository) ListPermissions(ctx context.Context) ([]models.Permission, error) {
	rows, err := r.db.Query(ctx, `SELECT `+permissionColumns+` FROM permissions ORDER BY slug`)
	if err != nil {
		return nil, err
	}
	return collectPermissions(rows)
}

// ExistingPermissionSlugs returns which of slugs already exist.
func (r *Repository) ExistingPermissionSlugs(ctx context.Context, slugs []string) (map[string]bool, error) {
	rows, err := r.db.Query(ctx, `SELECT slug FROM permissions WHERE slug = ANY($1)`, slugs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	found := make(map[string]bool, len(slugs))
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		found[s] = true
	}
	return found, rows.Err()
}

// UpdatePermission writes name, slug and description.
func (r *Repository) UpdatePermission(ctx context.Context, p *models.Permission) error {
	const q = `UPDATE permissions SET name = $1, slug = $2, description = $3, updated_at = NOW()
		WHERE id = $4 RETURNING updated_at`
	return translate(r.db.QueryRow(ctx, q, p.Name, p.Slug, p.Description, p.ID).Scan(&p.UpdatedAt))
}

// DeletePermissions hard-deletes permissions; pivot rows cascade. Returns the number removed.
func (r *Repository) DeletePermissions(ctx context.Context, ids []uuid.UUID) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM permissions WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// PermissionRoles returns the roles holding a permission.
func (r *Repository) PermissionRoles(ctx context.Context, permissionID uuid.UUID) ([]models.Role, error) {
	const q = `SELECT r.id, r.name, r.slug, r.description, r.created_at, r.updated_at
		FROM roles r
		INNER JOIN permission_role pr ON pr.role_id = r.id
		WHERE pr.permission_id = $1
		ORDER BY r.name`
	rows, err := r.db.Query(ctx, q, permissionID)
	if err != nil {
		return nil, err
	}
	return collectRoles(rows)
}

// --- roles ---

// CreateRole inserts role together with its permission grants and fills its ID and timestamps.
// An unknown permission ID rolls the whole insert back.
func (r *Repository) CreateRole(ctx context.Context, role *models.Role, permissionIDs []uuid.UUID) error {
	return translate(database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		const q = `INSERT INTO roles (name, slug, description) VALUES ($1, $2, $3)
			RETURNING id, created_at, updated_at`
		if err := tx.QueryRow(ctx, q, role.Name, role.Slug, role.Description).Scan(&role.ID, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return err
		}
		return grantPermissions(ctx, tx, role.ID, permissionIDs)
	}))
}

// GetRole returns a role by ID, without permissions.
func (r *Repository) GetRole(ctx context.Context, id uuid.UUID) (*models.Role, error) {
	role, err := scanRole(r.db.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err)
	}
	return role, nil
}

// GetRoleBySlug returns a role by slug.
func (r *Repository) GetRoleBySlug(ctx context.Context, slug string) (*models.Role, error) {
	role, err := scanRole(r.db.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE slug = $1`, slug))
	if err != nil {
		return nil, translate(err)
	}
	return role, nil
}

// ListRoles returns all roles ordered by name.
func (r *Repository) ListRoles(ctx context.Context) ([]models.Role, error) {
	rows, err := r.db.Query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return collectRoles(rows)
}

// UpdateRole writes name, slug and description. A non-nil permissionIDs replaces the role's
// grants in the same transaction.
func (r *Repository) UpdateRole(ctx context.Context, role *models.Role, permissionIDs *[]uuid.UUID) error {
	return translate(database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		const q = `UPDATE roles SET name = $1, slug = $2, description = $3, updated_at = NOW()
			WHERE id = $4 RETURNING updated_at`
		if err := tx.QueryRow(ctx, q, role.Name, role.Slug, role.Description, role.ID).Scan(&role.UpdatedAt); err != nil {
			return err
		}
		if permissionIDs == nil {
			return nil
		}
		if _, err := tx.Exec(ctx, `DELETE FROM permission_role WHERE role_id = $1`, role.ID); err != nil {
			return fmt.Errorf("detach permissions: %w", err)
		}
		return grantPermissions(ctx, tx, role.ID, *permissionIDs)
	}))
}

// grantPermissions inserts pivot rows for a role written earlier in tx.
func grantPermissions(ctx context.Context, tx pgx.Tx, roleID uuid.UUID, permissionIDs []uuid.UUID) error {
	if len(permissionIDs) == 0 {
		return nil
	}
	const q = `INSERT INTO permission_role (permission_id, role_id)
		SELECT unnest($1::uuid[]), $2 ON CONFLICT DO NOTHING`
	if _, err := tx.Exec(ctx, q, permissionIDs, roleID); err != nil {
		if database.IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: unknown permission id", ErrInvalidInput)
		}
		return fmt.Errorf("attach permissions: %w", err)
	}
	return nil
}

// DeleteRole hard-deletes a role; pivot rows cascade.
func (r *Repository) DeleteRole(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RolePermissions returns the permissions attached to a role.
func (r *Repository) RolePermissions(ctx context.Context, roleID uuid.UUID) ([]models.Permission, error) {
	const q = `SELECT p.id, p.name, p.slug, p.description, p.created_at, p.updated_at
		FROM permissions p
		INNER JOIN permission_role pr ON pr.permission_id = p.id
		WHERE pr.role_id = $1
		ORDER BY p.slug`
	rows, err := r.db.Query(ctx, q, roleID)
	if err != nil {
		return nil, err
	}
	return collectPermissions(rows)
}

// RoleHasPermission reports whether the role holds a permission with the slug.
func (r *Repository) RoleHasPermission(ctx context.Context, roleID uuid.UUID, slug string) (bool, error) {
	const q = `SELECT EXISTS (
		SELECT 1 FROM permission_role pr
		INNER JOIN permissions p ON p.id = pr.permission_id
		WHERE pr.role_id = $1 AND p.slug = $2)`
	var ok bool
	err := r.db.QueryRow(ctx, q, roleID, slug).Scan(&ok)
	return ok, err
}

// SyncRolePermissions replaces a role's permission set with permissionIDs.
func (r *Repository) SyncRolePermissions(ctx context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID) error {
	return translate(database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM permission_role WHERE role_id = $1`, roleID); err != nil {
			return fmt.Errorf("detach permissions: %w", err)
		}
		if len(permissionIDs) == 0 {
			return nil
		}
		const q = `INSERT INTO permission_role (permission_id, role_id)
			SELECT unnest($1::uuid[]), $2 ON CONFLICT DO NOTHING`
		if _, err := tx.Exec(ctx, q, permissionIDs, roleID); err != nil {
			return fmt.Errorf("attach permissions: %w", err)
		}
		return nil
	}))
}

// AttachPermissions grants every permission to every role, keeping existing grants.
func (r *Repository) AttachPermissions(ctx context.Context, roleIDs, permissionIDs []uuid.UUID) error {
	const q = `INSERT INTO permission_role (permission_id, role_id)
		SELECT p, r FROM unnest($1::uuid[]) AS p CROSS JOIN unnest($2::uuid[]) AS r
		ON CONFLICT DO NOTHING`
	_, err := r.db.Exec(ctx, q, permissionIDs, roleIDs)
	return translate(err)
}

// DetachPermission removes one permission from a role.
func (r *Repository) DetachPermission(ctx context.Context, roleID, permissionID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM permission_role WHERE role_id = $1 AND permission_id = $2`, roleID, permissionID)
	return err
}

// RoleUsers returns the users holding a role. Roles are not loaded on the returned users.
func (r *Repository) RoleUsers(ctx context.Context, roleID uuid.UUID) ([]models.User, error) {
	const q = `SELECT u.id, u.name, u.email, u.created_at, u.updated_at
		FROM users u
		INNER JOIN role_user ru ON ru.user_id = u.id
		WHERE ru.role_id = $1
		ORDER BY u.name, u.email`
	rows, err := r.db.Query(ctx, q, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, u)
	}
	return list, rows.Err()
}

// --- user assignments ---

// UserRoles returns the roles assigned to a user.
func (r *Repository) UserRoles(ctx context.Context, userID uuid.UUID) ([]models.Role, error) {
	const q = `SELECT r.id, r.name, r.slug, r.description, r.created_at, r.updated_at
		FROM roles r
		INNER JOIN role_user ru ON ru.role_id = r.id
		WHERE ru.user_id = $1
		ORDER BY r.name`
	rows, err := r.db.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	return collectRoles(rows)
}

// UserHasRole reports whether the user holds a role with the slug.
func (r *Repository) UserHasRole(ctx context.Context, userID uuid.UUID, slug string) (bool, error) {
	const q = `SELECT EXISTS (
		SELECT 1 FROM role_user ru
		INNER JOIN roles r ON r.id = ru.role_id
		WHERE ru.user_id = $1 AND r.slug = $2)`
	var ok bool
	err := r.db.QueryRow(ctx, q, userID, slug).Scan(&ok)
	return ok, err
}

// UserPermissionSlugs returns the union of permission slugs across the user's roles.
func (r *Repository) UserPermissionSlugs(ctx context.Context, userID uuid.UUID) ([]string, error) {
	const q = `SELECT DISTINCT p.slug
		FROM permissions p
		INNER JOIN permission_role pr ON pr.permission_id = p.id
		INNER JOIN role_user ru ON ru.role_id = pr.role_id
		WHERE ru.user_id = $1
		ORDER BY p.slug`
	rows, err := r.db.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var slugs []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		slugs = append(slugs, s)
	}
	return slugs, rows.Err()
}

// SyncUserRoles replaces a user's role set with roleIDs.
func (r *Repository) SyncUserRoles(ctx context.Context, userID uuid.UUID, roleIDs []uuid.UUID) error {
	return translate(database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_user WHERE user_id = $1`, userID); err != nil {
			return fmt.Errorf("detach roles: %w", err)
		}
		if len(roleIDs) == 0 {
			return nil
		}
		const q = `INSERT INTO role_user (role_id, user_id)
			SELECT unnest($1::uuid[]), $2 ON CONFLICT DO NOTHING`
		if _, err := tx.Exec(ctx, q, roleIDs, userID); err != nil {
			return fmt.Errorf("attach roles: %w", err)
		}
		return nil
	}))
}

// AttachRole assigns a role to a user; assigning twice is a no-op.
func (r *Repository) AttachRole(ctx context.Context, userID, roleID uuid.UUID) error {
	const q = `INSERT INTO role_user (role_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	_, err := r.db.Exec(ctx, q, roleID, userID)
	return translate(err)
}

// DetachRole removes a role from a user.
func (r *Repository) DetachRole(ctx context.Context, userID, roleID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM role_user WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	return err
}

// UserIDsForRoles returns the distinct users holding any of the roles.
func (r *Repository) UserIDsForRoles(ctx context.Context, roleIDs []uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT user_id FROM role_user WHERE role_id = ANY($1)`, roleIDs)
	if err != nil {
		return nil, err
	}
	return collectIDs(rows)
}

// UserIDsForPermissions returns the distinct users whose roles hold any of the permissions.
func (r *Repository) UserIDsForPermissions(ctx context.Context, permissionIDs []uuid.UUID) ([]uuid.UUID, error) {
	const q = `SELECT DISTINCT ru.user_id
		FROM role_user ru
		INNER JOIN permission_role pr ON pr.role_id = ru.role_id
		WHERE pr.permission_id = ANY($1)`
	rows, err := r.db.Query(ctx, q, permissionIDs)
	if err != nil {
		return nil, err
	}
	return collectIDs(rows)
}
