package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is a named set of permissions assigned to users.
type Role struct {
	ID          uuid.UUID    `json:"id"`
	Name        string       `json:"name"`
	Slug        string       `json:"slug"`
	Description string       `json:"description"`
	Permissions []Permission `json:"permissions,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// HasPermission reports whether the loaded permissions include slug.
func (r *Role) HasPermission(slug string) bool {
	for i := range r.Permissions {
		if r.Permissions[i].Slug == slug {
			return true
		}
	}
	return false
}
