package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents a back-office account.
type User struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Roles        []Role    `json:"roles,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasRole reports whether one of the loaded roles has the given slug.
func (u *User) HasRole(slug string) bool {
	for i := range u.Roles {
		if u.Roles[i].Slug == slug {
			return true
		}
	}
	return false
}

// HasPermission reports whether any loaded role grants the permission slug.
// Roles must be loaded with their permissions; a user without roles has no permissions.
func (u *User) HasPermission(slug string) bool {
	for i := range u.Roles {
		if u.Roles[i].HasPermission(slug) {
			return true
		}
	}
	return false
}

// PermissionSlugs returns the union of the loaded roles' permission slugs.
func (u *User) PermissionSlugs() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range u.Roles {
		for _, p := range r.Permissions {
			if _, ok := seen[p.Slug]; ok {
				continue
			}
			seen[p.Slug] = struct{}{}
			out = append(out, p.Slug)
		}
	}
	return out
}
