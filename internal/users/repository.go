package users

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/cpd-events/backoffice/internal/models"
	"github.com/cpd-events/backoffice/pkg/database"
)

// Repository handles user persistence.
type Repository struct {
	db database.DB
}

// NewRepository creates a user repository.
func NewRepository(db database.DB) *Repository {
	return &Repository{db: db}
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	if database.IsNoRows(err) {
		return ErrNotFound
	}
	if constraint, ok := database.UniqueViolation(err); ok && constraint == "users_email_key" {
		return ErrEmailTaken
	}
	return err
}

// GetByID returns a user by ID, including the password hash.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	const q = `SELECT id, name, email, password_hash, created_at, updated_at FROM users WHERE id = $1`
	var u models.User
	err := r.db.QueryRow(ctx, q, id).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

// GetByEmail returns a user by email, including the password hash.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	const q = `SELECT id, name, email, password_hash, created_at, updated_at FROM users WHERE email = $1`
	var u models.User
	err := r.db.QueryRow(ctx, q, email).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

// List returns all users ordered by name, each with its roles (permissions not loaded).
func (r *Repository) List(ctx context.Context) ([]models.User, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, email, created_at, updated_at FROM users ORDER BY name, email`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.User
	index := make(map[uuid.UUID]int)
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		index[u.ID] = len(list)
		list = append(list, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()
	if len(list) == 0 {
		return list, nil
	}

	const q = `SELECT ru.user_id, r.id, r.name, r.slug, r.description, r.created_at, r.updated_at
		FROM role_user ru
		INNER JOIN roles r ON r.id = ru.role_id
		ORDER BY r.name`
	roleRows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("load user roles: %w", err)
	}
	defer roleRows.Close()
	for roleRows.Next() {
		var userID uuid.UUID
		var role models.Role
		if err := roleRows.Scan(&userID, &role.ID, &role.Name, &role.Slug, &role.Description, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		if i, ok := index[userID]; ok {
			list[i].Roles = append(list[i].Roles, role)
		}
	}
	return list, roleRows.Err()
}

// Create inserts u together with its role assignments and fills its ID and timestamps.
func (r *Repository) Create(ctx context.Context, u *models.User, roleIDs []uuid.UUID) error {
	return translate(database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		const q = `INSERT INTO users (name, email, password_hash) VALUES ($1, $2, $3)
			RETURNING id, created_at, updated_at`
		if err := tx.QueryRow(ctx, q, u.Name, u.Email, u.PasswordHash).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return err
		}
		return assignRoles(ctx, tx, u.ID, roleIDs)
	}))
}

// Update writes name, email and password hash. A non-nil roleIDs replaces the user's roles in
// the same transaction.
func (r *Repository) Update(ctx context.Context, u *models.User, roleIDs *[]uuid.UUID) error {
	return translate(database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		const q = `UPDATE users SET name = $1, email = $2, password_hash = $3, updated_at = NOW()
			WHERE id = $4 RETURNING updated_at`
		if err := tx.QueryRow(ctx, q, u.Name, u.Email, u.PasswordHash, u.ID).Scan(&u.UpdatedAt); err != nil {
			return err
		}
		if roleIDs == nil {
			return nil
		}
		if _, err := tx.Exec(ctx, `DELETE FROM role_user WHERE user_id = $1`, u.ID); err != nil {
			return fmt.Errorf("detach roles: %w", err)
		}
		return assignRoles(ctx, tx, u.ID, *roleIDs)
	}))
}

func assignRoles(ctx context.Context, tx pgx.Tx, userID uuid.UUID, roleIDs []uuid.UUID) error {
	if len(roleIDs) == 0 {
		return nil
	}
	const q = `INSERT INTO role_user (role_id, user_id)
		SELECT unnest($1::uuid[]), $2 ON CONFLICT DO NOTHING`
	if _, err := tx.Exec(ctx, q, roleIDs, userID); err != nil {
		if database.IsForeignKeyViolation(err) {
			return ErrUnknownRole
		}
		return fmt.Errorf("attach roles: %w", err)
	}
	return nil
}

// Delete hard-deletes a user; role assignments cascade.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
