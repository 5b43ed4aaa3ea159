package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cpd-events/backoffice/internal/models"
)

func newMockRepo(t *testing.T) (*Repository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewRepository(mock), mock
}

func TestRepository_CreatePermission(t *testing.T) {
	ctx := context.Background()
	repo, mock := newMockRepo(t)
	id := uuid.New()
	now := time.Now()

	mock.ExpectQuery("INSERT INTO permissions").
		WithArgs("Events View", "events.view", "").
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(id, now, now))

	p := &models.Permission{Name: "Events View", Slug: "events.view"}
	require.NoError(t, repo.CreatePermission(ctx, p))
	assert.Equal(t, id, p.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_CreatePermission_SlugTaken(t *testing.T) {
	ctx := context.Background()
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("INSERT INTO permissions").
		WithArgs("Events View", "events.view", "").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "permissions_slug_key"})

	err := repo.CreatePermission(ctx, &models.Permission{Name: "Events View", Slug: "events.view"})
	assert.ErrorIs(t, err, ErrSlugTaken)
}

func TestRepository_CreateRole_NameTaken(t *testing.T) {
	ctx := context.Background()
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO roles").
		WithArgs("Admin", "admin", "").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "roles_name_key"})
	mock.ExpectRollback()

	err := repo.CreateRole(ctx, &models.Role{Name: "Admin", Slug: "admin"}, nil)
	assert.ErrorIs(t, err, ErrNameTaken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_CreateRole(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()
	now := time.Now()
	perms := []uuid.UUID{uuid.New(), uuid.New()}

	t.Run("inserts role and grants together", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO roles").
			WithArgs("Auditor", "auditor", "").
			WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(id, now, now))
		mock.ExpectExec("INSERT INTO permission_role").WithArgs(perms, id).WillReturnResult(pgxmock.NewResult("INSERT", 2))
		mock.ExpectCommit()

		role := &models.Role{Name: "Auditor", Slug: "auditor"}
		require.NoError(t, repo.CreateRole(ctx, role, perms))
		assert.Equal(t, id, role.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown permission rolls the role back", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO roles").
			WithArgs("Auditor", "auditor", "").
			WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(id, now, now))
		mock.ExpectExec("INSERT INTO permission_role").WithArgs(perms, id).
			WillReturnError(&pgconn.PgError{Code: "23503", ConstraintName: "permission_role_permission_id_fkey"})
		mock.ExpectRollback()

		err := repo.CreateRole(ctx, &models.Role{Name: "Auditor", Slug: "auditor"}, perms)
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.NotErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepository_UpdateRole(t *testing.T) {
	ctx := context.Background()
	role := &models.Role{ID: uuid.New(), Name: "Editor", Slug: "editor"}
	perms := []uuid.UUID{uuid.New()}

	t.Run("fields only", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE roles").
			WithArgs("Editor", "editor", "", role.ID).
			WillReturnRows(pgxmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))
		mock.ExpectCommit()

		require.NoError(t, repo.UpdateRole(ctx, role, nil))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("replaces grants in the same transaction", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE roles").
			WithArgs("Editor", "editor", "", role.ID).
			WillReturnRows(pgxmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))
		mock.ExpectExec("DELETE FROM permission_role").WithArgs(role.ID).WillReturnResult(pgxmock.NewResult("DELETE", 1))
		mock.ExpectExec("INSERT INTO permission_role").WithArgs(perms, role.ID).
			WillReturnError(&pgconn.PgError{Code: "23503"})
		mock.ExpectRollback()

		assert.ErrorIs(t, repo.UpdateRole(ctx, role, &perms), ErrInvalidInput)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing role", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE roles").WithArgs("Editor", "editor", "", role.ID).WillReturnError(pgx.ErrNoRows)
		mock.ExpectRollback()

		assert.ErrorIs(t, repo.UpdateRole(ctx, role, &perms), ErrNotFound)
	})
}

func TestRepository_GetRole_NotFound(t *testing.T) {
	ctx := context.Background()
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM roles WHERE id").WithArgs(id).WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetRole(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepository_DeleteRole(t *testing.T) {
	ctx := context.Background()
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectExec("DELETE FROM roles").WithArgs(id).WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("DELETE FROM roles").WithArgs(id).WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.NoError(t, repo.DeleteRole(ctx, id))
	assert.ErrorIs(t, repo.DeleteRole(ctx, id), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_UserPermissionSlugs(t *testing.T) {
	ctx := context.Background()
	repo, mock := newMockRepo(t)
	user := uuid.New()

	mock.ExpectQuery("SELECT DISTINCT p.slug").
		WithArgs(user).
		WillReturnRows(pgxmock.NewRows([]string{"slug"}).AddRow("events.edit").AddRow("events.view"))

	slugs, err := repo.UserPermissionSlugs(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, []string{"events.edit", "events.view"}, slugs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_ExistingPermissionSlugs(t *testing.T) {
	ctx := context.Background()
	repo, mock := newMockRepo(t)
	slugs := []string{"users.list", "users.view"}

	mock.ExpectQuery("SELECT slug FROM permissions").
		WithArgs(slugs).
		WillReturnRows(pgxmock.NewRows([]string{"slug"}).AddRow("users.view"))

	found, err := repo.ExistingPermissionSlugs(ctx, slugs)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"users.view": true}, found)
}

func TestRepository_SyncRolePermissions(t *testing.T) {
	ctx := context.Background()
	role := uuid.New()
	perms := []uuid.UUID{uuid.New(), uuid.New()}

	t.Run("replaces in a transaction", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM permission_role").WithArgs(role).WillReturnResult(pgxmock.NewResult("DELETE", 3))
		mock.ExpectExec("INSERT INTO permission_role").WithArgs(perms, role).WillReturnResult(pgxmock.NewResult("INSERT", 2))
		mock.ExpectCommit()

		require.NoError(t, repo.SyncRolePermissions(ctx, role, perms))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty set only detaches", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM permission_role").WithArgs(role).WillReturnResult(pgxmock.NewResult("DELETE", 3))
		mock.ExpectCommit()

		require.NoError(t, repo.SyncRolePermissions(ctx, role, nil))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown permission rolls back", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM permission_role").WithArgs(role).WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mock.ExpectExec("INSERT INTO permission_role").WithArgs(perms, role).
			WillReturnError(&pgconn.PgError{Code: "23503"})
		mock.ExpectRollback()

		assert.ErrorIs(t, repo.SyncRolePermissions(ctx, role, perms), ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepository_AttachRole(t *testing.T) {
	ctx := context.Background()
	repo, mock := newMockRepo(t)
	user, role := uuid.New(), uuid.New()

	mock.ExpectExec("INSERT INTO role_user").WithArgs(role, user).WillReturnResult(pgxmock.NewResult("INSERT", 0))

	require.NoError(t, repo.AttachRole(ctx, user, role))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_UserIDsForPermissions(t *testing.T) {
	ctx := context.Background()
	repo, mock := newMockRepo(t)
	perm := uuid.New()
	u1, u2 := uuid.New(), uuid.New()

	mock.ExpectQuery("SELECT DISTINCT ru.user_id").
		WithArgs([]uuid.UUID{perm}).
		WillReturnRows(pgxmock.NewRows([]string{"user_id"}).AddRow(u1).AddRow(u2))

	ids, err := repo.UserIDsForPermissions(ctx, []uuid.UUID{perm})
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{u1, u2}, ids)
}
