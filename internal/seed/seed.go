// Package seed installs the default permissions, roles and accounts. Running it twice is safe:
// existing rows are kept as they are and only missing rows and grants are added.
package seed

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/cpd-events/backoffice/config"
	"github.com/cpd-events/backoffice/pkg/database"
	"github.com/cpd-events/backoffice/pkg/utils"
)

// PermissionSpec describes a default permission.
type PermissionSpec struct {
	Name        string
	Slug        string
	Description string
}

// RoleSpec describes a default role. All grants every default permission.
type RoleSpec struct {
	Name        string
	Slug        string
	Description string
	All         bool
	Permissions []string
}

// Account is a default login and the role slug it receives.
type Account struct {
	Name     string
	Email    string
	Password string
	Role     string
}

// Accounts returns the configured super admin and regular user. Emails are stored lowercased,
// matching what login looks up.
func Accounts(cfg config.SeedConfig) []Account {
	return []Account{
		{Name: cfg.AdminName, Email: normalizeEmail(cfg.AdminEmail), Password: cfg.AdminPassword, Role: "super-admin"},
		{Name: cfg.UserName, Email: normalizeEmail(cfg.UserEmail), Password: cfg.UserPassword, Role: "user"},
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// DefaultPermissions are CRUD permissions for every managed resource plus panel access.
var DefaultPermissions = defaultPermissions()

func defaultPermissions() []PermissionSpec {
	var perms []PermissionSpec
	for _, r := range [][2]string{{"users", "user"}, {"roles", "role"}, {"permissions", "permission"}, {"events", "event"}} {
		perms = append(perms, crud(r[0], r[1])...)
	}
	return append(perms,
		PermissionSpec{Name: "Access Dashboard", Slug: "panel_access.dashboard", Description: "Can access the admin dashboard"},
		PermissionSpec{Name: "Switch Panels", Slug: "panels.switch", Description: "Can switch between admin and application panels"},
	)
}

// DefaultRoles are the built-in roles.
var DefaultRoles = []RoleSpec{
	{Name: "Super Admin", Slug: "super-admin", Description: "Has access to everything", All: true},
	{
		Name: "Admin", Slug: "admin", Description: "Has access to most features",
		Permissions: []string{"users.list", "users.view", "users.create", "users.edit", "roles.list", "roles.view"},
	},
	{
		Name: "Editor", Slug: "editor", Description: "Can edit content but not admin features",
		Permissions: []string{"events.list", "events.view", "events.create", "events.edit"},
	},
	{Name: "User", Slug: "user", Description: "Regular user with limited permissions"},
}

func crud(plural, singular string) []PermissionSpec {
	return []PermissionSpec{
		{Name: "List " + plural, Slug: plural + ".list", Description: "Can view list of " + plural},
		{Name: "View " + plural, Slug: plural + ".view", Description: "Can view " + singular + " details"},
		{Name: "Create " + plural, Slug: plural + ".create", Description: "Can create new " + plural},
		{Name: "Edit " + plural, Slug: plural + ".edit", Description: "Can edit existing " + plural},
		{Name: "Delete " + plural, Slug: plural + ".delete", Description: "Can delete " + plural},
	}
}

// Invalidator drops cached permission sets. *rbac.Service implements it.
type Invalidator interface {
	InvalidateUsers(ctx context.Context, userIDs ...uuid.UUID)
}

// Result reports the IDs the seeder resolved.
type Result struct {
	Permissions map[string]uuid.UUID
	Roles       map[string]uuid.UUID
	Users       map[string]uuid.UUID
}

// Seeder writes the defaults in one transaction.
type Seeder struct {
	db          database.DB
	invalidator Invalidator
	logger      *zap.Logger
}

// New creates a seeder. invalidator may be nil.
func New(db database.DB, invalidator Invalidator, logger *zap.Logger) *Seeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Seeder{db: db, invalidator: invalidator, logger: logger}
}

// Run seeds permissions, roles, role grants and accounts.
func (s *Seeder) Run(ctx context.Context, accounts []Account) (*Result, error) {
	hashes := make([]string, len(accounts))
	for i, a := range accounts {
		hash, err := utils.HashPassword(a.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password for %s: %w", normalizeEmail(a.Email), err)
		}
		hashes[i] = hash
	}

	var holders []uuid.UUID
	res := &Result{
		Permissions: make(map[string]uuid.UUID, len(DefaultPermissions)),
		Roles:       make(map[string]uuid.UUID, len(DefaultRoles)),
		Users:       make(map[string]uuid.UUID, len(accounts)),
	}
	err := database.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		for _, p := range DefaultPermissions {
			id, err := upsertPermission(ctx, tx, p)
			if err != nil {
				return fmt.Errorf("seed permission %s: %w", p.Slug, err)
			}
			res.Permissions[p.Slug] = id
		}
		for _, r := range DefaultRoles {
			id, err := upsertRole(ctx, tx, r)
			if err != nil {
				return fmt.Errorf("seed role %s: %w", r.Slug, err)
			}
			res.Roles[r.Slug] = id
			grants, err := res.grantsFor(r)
			if err != nil {
				return err
			}
			if len(grants) == 0 {
				continue
			}
			const q = `INSERT INTO permission_role (permission_id, role_id)
				SELECT unnest($1::uuid[]), $2 ON CONFLICT DO NOTHING`
			if _, err := tx.Exec(ctx, q, grants, id); err != nil {
				return fmt.Errorf("grant permissions to %s: %w", r.Slug, err)
			}
		}
		for i, a := range accounts {
			email := normalizeEmail(a.Email)
			roleID, ok := res.Roles[a.Role]
			if !ok {
				return fmt.Errorf("account %s: unknown role %q", email, a.Role)
			}
			const q = `INSERT INTO users (name, email, password_hash) VALUES ($1, $2, $3)
				ON CONFLICT (email) DO UPDATE SET email = EXCLUDED.email
				RETURNING id`
			var userID uuid.UUID
			if err := tx.QueryRow(ctx, q, a.Name, email, hashes[i]).Scan(&userID); err != nil {
				return fmt.Errorf("seed user %s: %w", email, err)
			}
			res.Users[email] = userID
			if _, err := tx.Exec(ctx, `INSERT INTO role_user (role_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, roleID, userID); err != nil {
				return fmt.Errorf("assign %s to %s: %w", a.Role, email, err)
			}
		}

		// Grants on the default roles may have changed for anyone holding them.
		roleIDs := make([]uuid.UUID, 0, len(res.Roles))
		for _, id := range res.Roles {
			roleIDs = append(roleIDs, id)
		}
		rows, err := tx.Query(ctx, `SELECT DISTINCT user_id FROM role_user WHERE role_id = ANY($1)`, roleIDs)
		if err != nil {
			return fmt.Errorf("find role holders: %w", err)
		}
		holders, err = pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
		if err != nil {
			return fmt.Errorf("find role holders: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.invalidator != nil {
		s.invalidator.InvalidateUsers(ctx, holders...)
	}
	s.logger.Info("seed complete",
		zap.Int("permissions", len(res.Permissions)),
		zap.Int("roles", len(res.Roles)),
		zap.Int("users", len(res.Users)))
	return res, nil
}

func (res *Result) grantsFor(r RoleSpec) ([]uuid.UUID, error) {
	if r.All {
		ids := make([]uuid.UUID, 0, len(DefaultPermissions))
		for _, p := range DefaultPermissions {
			ids = append(ids, res.Permissions[p.Slug])
		}
		return ids, nil
	}
	ids := make([]uuid.UUID, 0, len(r.Permissions))
	for _, slug := range r.Permissions {
		id, ok := res.Permissions[slug]
		if !ok {
			return nil, fmt.Errorf("role %s: unknown permission %q", r.Slug, slug)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// upsertPermission returns the ID of the permission with p.Slug, creating it when missing.
func upsertPermission(ctx context.Context, tx pgx.Tx, p PermissionSpec) (uuid.UUID, error) {
	const q = `INSERT INTO permissions (name, slug, description) VALUES ($1, $2, $3)
		ON CONFLICT (slug) DO UPDATE SET slug = EXCLUDED.slug
		RETURNING id`
	var id uuid.UUID
	err := tx.QueryRow(ctx, q, p.Name, p.Slug, p.Description).Scan(&id)
	return id, err
}

func upsertRole(ctx context.Context, tx pgx.Tx, r RoleSpec) (uuid.UUID, error) {
	const q = `INSERT INTO roles (name, slug, description) VALUES ($1, $2, $3)
		ON CONFLICT (slug) DO UPDATE SET slug = EXCLUDED.slug
		RETURNING id`
	var id uuid.UUID
	err := tx.QueryRow(ctx, q, r.Name, r.Slug, r.Description).Scan(&id)
	return id, err
}
