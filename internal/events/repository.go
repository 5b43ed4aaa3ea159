package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cpd-events/backoffice/internal/models"
	"github.com/cpd-events/backoffice/pkg/database"
)

// Repository handles event persistence. Events are addressed by public_workshop_id.
type Repository struct {
	db     database.DB
	logger *zap.Logger
}

// NewRepository creates an event repository.
func NewRepository(db database.DB, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{db: db, logger: logger}
}

const eventColumns = `id, public_workshop_id, public_numerical_key, public_key, private_key, online_link,
	COALESCE(event_name, ''), event_start_dt, event_end_dt, cpd_points_earned::text, event_type,
	event_privacy, misc_data, archived, created_at, updated_at, deleted_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*models.Event, error) {
	var (
		e       models.Event
		points  string
		privacy string
		misc    []byte
	)
	err := row.Scan(&e.ID, &e.PublicWorkshopID, &e.PublicNumericalKey, &e.PublicKey, &e.PrivateKey, &e.OnlineLink,
		&e.Name, &e.StartAt, &e.EndAt, &points, &e.Type,
		&privacy, &misc, &e.Archived, &e.CreatedAt, &e.UpdatedAt, &e.DeletedAt)
	if err != nil {
		return nil, err
	}
	e.Privacy = models.EventPrivacy(privacy)
	if e.CPDPoints, err = decimal.NewFromString(points); err != nil {
		return nil, fmt.Errorf("parse cpd_points_earned %q: %w", points, err)
	}
	if len(misc) > 0 {
		if err := json.Unmarshal(misc, &e.MiscData); err != nil {
			return nil, fmt.Errorf("decode misc_data: %w", err)
		}
	}
	return &e, nil
}

// miscValue encodes misc_data for a JSONB parameter; empty maps are stored as NULL.
func miscValue(m map[string]string) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode misc_data: %w", err)
	}
	return string(raw), nil
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	if database.IsNoRows(err) {
		return ErrNotFound
	}
	if constraint, ok := database.UniqueViolation(err); ok {
		return fmt.Errorf("%w: %s", ErrConflict, constraint)
	}
	if constraint, ok := database.IsCheckViolation(err); ok {
		return fmt.Errorf("%w: %s", ErrInvalid, constraint)
	}
	return err
}

// Create inserts e, retrying with a fresh public key when the generated one collides.
// e must have been through PrepareForCreate.
func (r *Repository) Create(ctx context.Context, e *models.Event) error {
	const q = `INSERT INTO events (id, public_workshop_id, public_key, private_key, online_link, event_name,
		event_start_dt, event_end_dt, cpd_points_earned, event_type, event_privacy, misc_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::text::numeric, $10, $11, $12::jsonb)
		RETURNING public_numerical_key, archived, created_at, updated_at`
	misc, err := miscValue(e.MiscData)
	if err != nil {
		return err
	}
	for attempt := 1; ; attempt++ {
		err = r.db.QueryRow(ctx, q, e.ID, e.PublicWorkshopID, e.PublicKey, e.PrivateKey, e.OnlineLink, e.Name,
			e.StartAt, e.EndAt, e.CPDPoints.StringFixed(2), e.Type, string(e.Privacy), misc).
			Scan(&e.PublicNumericalKey, &e.Archived, &e.CreatedAt, &e.UpdatedAt)
		constraint, unique := database.UniqueViolation(err)
		if !unique || constraint != "events_public_key_key" || attempt >= maxInsertAttempts {
			return translate(err)
		}
		r.logger.Warn("public key collision, regenerating", zap.Int("attempt", attempt))
		if err := regeneratePublicKey(e); err != nil {
			return err
		}
	}
}

// Get returns an event by public workshop ID, including soft-deleted ones.
func (r *Repository) Get(ctx context.Context, workshopID uuid.UUID) (*models.Event, error) {
	e, err := scanEvent(r.db.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE public_workshop_id = $1`, workshopID))
	if err != nil {
		return nil, translate(err)
	}
	return e, nil
}

// List returns events matching f, newest first.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]models.Event, error) {
	where, args := f.where()
	rows, err := r.db.Query(ctx, `SELECT `+eventColumns+` FROM events`+where+` ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *e)
	}
	return list, rows.Err()
}

// Update writes the editable fields of a live event. Identifiers and keys are never changed.
func (r *Repository) Update(ctx context.Context, e *models.Event) error {
	const q = `UPDATE events SET online_link = $1, event_name = $2, event_start_dt = $3, event_end_dt = $4,
		cpd_points_earned = $5::text::numeric, event_type = $6, event_privacy = $7, misc_data = $8::jsonb, updated_at = NOW()
		WHERE public_workshop_id = $9 AND deleted_at IS NULL
		RETURNING updated_at`
	misc, err := miscValue(e.MiscData)
	if err != nil {
		return err
	}
	err = r.db.QueryRow(ctx, q, e.OnlineLink, e.Name, e.StartAt, e.EndAt, e.CPDPoints.StringFixed(2),
		e.Type, string(e.Privacy), misc, e.PublicWorkshopID).Scan(&e.UpdatedAt)
	return translate(err)
}

// SoftDelete marks live events as deleted. Returns how many changed.
func (r *Repository) SoftDelete(ctx context.Context, workshopIDs []uuid.UUID) (int64, error) {
	return r.exec(ctx, `UPDATE events SET deleted_at = NOW(), updated_at = NOW()
		WHERE public_workshop_id = ANY($1) AND deleted_at IS NULL`, workshopIDs)
}

// Restore clears deleted_at on trashed events. Returns how many changed.
func (r *Repository) Restore(ctx context.Context, workshopIDs []uuid.UUID) (int64, error) {
	return r.exec(ctx, `UPDATE events SET deleted_at = NULL, updated_at = NOW()
		WHERE public_workshop_id = ANY($1) AND deleted_at IS NOT NULL`, workshopIDs)
}

// ForceDelete permanently removes events, trashed or not. Returns how many were removed.
func (r *Repository) ForceDelete(ctx context.Context, workshopIDs []uuid.UUID) (int64, error) {
	return r.exec(ctx, `DELETE FROM events WHERE public_workshop_id = ANY($1)`, workshopIDs)
}

// SetArchived archives or unarchives live events. Returns how many matched.
func (r *Repository) SetArchived(ctx context.Context, workshopIDs []uuid.UUID, archived bool) (int64, error) {
	return r.exec(ctx, `UPDATE events SET archived = $2, updated_at = NOW()
		WHERE public_workshop_id = ANY($1) AND deleted_at IS NULL`, workshopIDs, archived)
}

func (r *Repository) exec(ctx context.Context, q string, args ...any) (int64, error) {
	tag, err := r.db.Exec(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
