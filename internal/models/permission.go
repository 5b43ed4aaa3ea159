package models

import (
	"time"

	"github.com/google/uuid"
)

// Permission is a single grantable ability, identified by slug (e.g. "events.edit").
type Permission struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
