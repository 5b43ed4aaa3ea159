package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventPrivacy controls who can view and register for an event.
type EventPrivacy string

const (
	PrivacyPublic     EventPrivacy = "public"
	PrivacyPrivate    EventPrivacy = "private"
	PrivacyRestricted EventPrivacy = "restricted"
)

// Valid reports whether p is one of the known privacy settings.
func (p EventPrivacy) Valid() bool {
	switch p {
	case PrivacyPublic, PrivacyPrivate, PrivacyRestricted:
		return true
	}
	return false
}

// EventTypes lists the accepted event_type values.
var EventTypes = []string{"workshop", "seminar", "conference", "webinar", "training", "other"}

// ValidEventType reports whether t is an accepted event type.
func ValidEventType(t string) bool {
	for _, v := range EventTypes {
		if v == t {
			return true
		}
	}
	return false
}

// Event is a CPD programme. Identifiers and keys are assigned once, at creation.
type Event struct {
	ID                 uuid.UUID         `json:"id"`
	PublicWorkshopID   uuid.UUID         `json:"public_workshop_id"`
	PublicNumericalKey int64             `json:"public_numerical_key"`
	PublicKey          string            `json:"public_key"`
	PrivateKey         string            `json:"-"`
	OnlineLink         string            `json:"online_link"`
	Name               string            `json:"event_name"`
	StartAt            time.Time         `json:"event_start_dT"`
	EndAt              *time.Time        `json:"event_end_dT,omitempty"`
	CPDPoints          decimal.Decimal   `json:"cpd_points_earned"`
	Type               *string           `json:"event_type,omitempty"`
	Privacy            EventPrivacy      `json:"event_privacy"`
	MiscData           map[string]string `json:"misc_data,omitempty"`
	Archived           bool              `json:"archived"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
	DeletedAt          *time.Time        `json:"deleted_at,omitempty"`
}

// DurationInMinutes is the whole minutes between start and end, or nil without an end.
func (e *Event) DurationInMinutes() *int64 {
	if e.EndAt == nil || e.StartAt.IsZero() {
		return nil
	}
	m := int64(e.EndAt.Sub(e.StartAt) / time.Minute)
	return &m
}

// IsOngoing reports whether now falls within [start, end]. Events without an end are never ongoing.
func (e *Event) IsOngoing(now time.Time) bool {
	if e.EndAt == nil || e.StartAt.IsZero() {
		return false
	}
	return !now.Before(e.StartAt) && !now.After(*e.EndAt)
}

// Trashed reports whether the event has been soft deleted.
func (e *Event) Trashed() bool {
	return e.DeletedAt != nil
}

// MarshalJSON adds the computed duration_in_minutes and is_ongoing fields.
func (e Event) MarshalJSON() ([]byte, error) {
	type plain Event
	return json.Marshal(struct {
		plain
		DurationInMinutes *int64 `json:"duration_in_minutes"`
		IsOngoing         bool   `json:"is_ongoing"`
	}{
		plain:             plain(e),
		DurationInMinutes: e.DurationInMinutes(),
		IsOngoing:         e.IsOngoing(time.Now()),
	})
}
