package events

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cpd-events/backoffice/internal/models"
	"github.com/cpd-events/backoffice/pkg/response"
)

// Store is the event persistence the handler needs. *Repository implements it.
type Store interface {
	Create(ctx context.Context, e *models.Event) error
	Get(ctx context.Context, workshopID uuid.UUID) (*models.Event, error)
	List(ctx context.Context, f ListFilter) ([]models.Event, error)
	Update(ctx context.Context, e *models.Event) error
	SoftDelete(ctx context.Context, workshopIDs []uuid.UUID) (int64, error)
	Restore(ctx context.Context, workshopIDs []uuid.UUID) (int64, error)
	ForceDelete(ctx context.Context, workshopIDs []uuid.UUID) (int64, error)
	SetArchived(ctx context.Context, workshopIDs []uuid.UUID, archived bool) (int64, error)
}

// EventRequest is the body for POST /events and PUT /events/:id.
// Omitted cpd_points_earned defaults to 1 and omitted event_privacy to public.
type EventRequest struct {
	Name       string            `json:"event_name" binding:"required,max=255"`
	OnlineLink string            `json:"online_link" binding:"max=45"`
	StartAt    time.Time         `json:"event_start_dT"`
	EndAt      *time.Time        `json:"event_end_dT"`
	CPDPoints  *decimal.Decimal  `json:"cpd_points_earned"`
	Type       *string           `json:"event_type"`
	Privacy    string            `json:"event_privacy"`
	MiscData   map[string]string `json:"misc_data"`
}

// apply copies the request onto e. Keys and identifiers are left alone.
func (req EventRequest) apply(e *models.Event) {
	e.Name = strings.TrimSpace(req.Name)
	e.OnlineLink = strings.TrimSpace(req.OnlineLink)
	e.StartAt = req.StartAt
	e.EndAt = req.EndAt
	e.CPDPoints = decimal.NewFromInt(1)
	if req.CPDPoints != nil {
		e.CPDPoints = req.CPDPoints.Round(2)
	}
	e.Type = nil
	if req.Type != nil && strings.TrimSpace(*req.Type) != "" {
		t := strings.ToLower(strings.TrimSpace(*req.Type))
		e.Type = &t
	}
	e.Privacy = models.PrivacyPublic
	if req.Privacy != "" {
		e.Privacy = models.EventPrivacy(strings.ToLower(req.Privacy))
	}
	e.MiscData = req.MiscData
}

// BulkRequest carries public workshop IDs for bulk actions.
type BulkRequest struct {
	IDs []uuid.UUID `json:"ids" binding:"required,min=1"`
}

// Handler handles event HTTP endpoints.
type Handler struct {
	repo   Store
	logger *zap.Logger
	now    func() time.Time
}

// NewHandler creates an event handler.
func NewHandler(repo Store, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, logger: logger, now: time.Now}
}

func (h *Handler) fail(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, "event not found")
	case errors.Is(err, ErrInvalid):
		response.BadRequest(c, err.Error())
	case errors.Is(err, ErrConflict):
		response.Conflict(c, err.Error())
	default:
		h.logger.Error(msg, zap.Error(err))
		response.Internal(c, msg)
	}
}

func workshopID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return uuid.Nil, false
	}
	return id, true
}

func boolQuery(c *gin.Context, key string) (bool, error) {
	v := c.Query(key)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, errors.New("invalid " + key + " parameter")
	}
	return b, nil
}

// parseFilter reads ListFilter from the query string.
func (h *Handler) parseFilter(c *gin.Context) (ListFilter, error) {
	f := ListFilter{Now: h.now(), Search: c.Query("search")}
	var err error
	if f.Trashed, err = ParseTrashedMode(c.Query("trashed")); err != nil {
		return f, err
	}
	if t := c.Query("event_type"); t != "" {
		if !models.ValidEventType(t) {
			return f, errors.New("invalid event_type parameter")
		}
		f.Type = &t
	}
	if p := c.Query("event_privacy"); p != "" {
		privacy := models.EventPrivacy(p)
		if !privacy.Valid() {
			return f, errors.New("invalid event_privacy parameter")
		}
		f.Privacy = &privacy
	}
	if f.Upcoming, err = boolQuery(c, "upcoming"); err != nil {
		return f, err
	}
	if f.Past, err = boolQuery(c, "past"); err != nil {
		return f, err
	}
	if f.Public, err = boolQuery(c, "public"); err != nil {
		return f, err
	}
	if v := c.Query("archived"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, errors.New("invalid archived parameter")
		}
		f.Archived = &b
	}
	active, err := boolQuery(c, "active")
	if err != nil {
		return f, err
	}
	if active {
		if f.Archived != nil && *f.Archived {
			return f, errors.New("active and archived filters are mutually exclusive")
		}
		notArchived := false
		f.Archived = &notArchived
	}
	return f, nil
}

// List handles GET /events.
func (h *Handler) List(c *gin.Context) {
	f, err := h.parseFilter(c)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	list, err := h.repo.List(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err, "failed to list events")
		return
	}
	response.List(c, list)
}

// Get handles GET /events/:id, where id is the public workshop ID.
func (h *Handler) Get(c *gin.Context) {
	id, ok := workshopID(c)
	if !ok {
		return
	}
	e, err := h.repo.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, "failed to load event")
		return
	}
	response.OK(c, e)
}

// Create handles POST /events.
func (h *Handler) Create(c *gin.Context) {
	var req EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	e := &models.Event{}
	req.apply(e)
	if err := PrepareForCreate(e); err != nil {
		h.fail(c, err, "failed to generate event keys")
		return
	}
	if err := Validate(e); err != nil {
		h.fail(c, err, "invalid event")
		return
	}
	if err := h.repo.Create(c.Request.Context(), e); err != nil {
		h.fail(c, err, "failed to create event")
		return
	}
	h.logger.Info("event created",
		zap.String("public_workshop_id", e.PublicWorkshopID.String()),
		zap.Int64("public_numerical_key", e.PublicNumericalKey))
	response.Created(c, e)
}

// Update handles PUT /events/:id. Trashed events cannot be edited.
func (h *Handler) Update(c *gin.Context) {
	id, ok := workshopID(c)
	if !ok {
		return
	}
	var req EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ctx := c.Request.Context()
	e, err := h.repo.Get(ctx, id)
	if err != nil {
		h.fail(c, err, "failed to load event")
		return
	}
	if e.Trashed() {
		response.NotFound(c, "event not found")
		return
	}
	req.apply(e)
	if e.OnlineLink == "" {
		e.OnlineLink = defaultOnlineLink(e.Name)
	}
	if err := Validate(e); err != nil {
		h.fail(c, err, "invalid event")
		return
	}
	if err := h.repo.Update(ctx, e); err != nil {
		h.fail(c, err, "failed to update event")
		return
	}
	response.OK(c, e)
}

// Delete handles DELETE /events/:id (soft delete).
func (h *Handler) Delete(c *gin.Context) {
	h.single(c, h.repo.SoftDelete, "event deleted", false)
}

// Restore handles POST /events/:id/restore.
func (h *Handler) Restore(c *gin.Context) {
	h.single(c, h.repo.Restore, "event restored", true)
}

// ForceDelete handles DELETE /events/:id/force.
func (h *Handler) ForceDelete(c *gin.Context) {
	h.single(c, h.repo.ForceDelete, "event permanently deleted", false)
}

// Archive handles POST /events/:id/archive.
func (h *Handler) Archive(c *gin.Context) {
	h.single(c, h.archiver(true), "event archived", true)
}

// Unarchive handles POST /events/:id/unarchive.
func (h *Handler) Unarchive(c *gin.Context) {
	h.single(c, h.archiver(false), "event unarchived", true)
}

// BulkDelete handles POST /events/bulk/delete.
func (h *Handler) BulkDelete(c *gin.Context) { h.bulk(c, h.repo.SoftDelete, "events deleted") }

// BulkRestore handles POST /events/bulk/restore.
func (h *Handler) BulkRestore(c *gin.Context) { h.bulk(c, h.repo.Restore, "events restored") }

// BulkForceDelete handles POST /events/bulk/force-delete.
func (h *Handler) BulkForceDelete(c *gin.Context) {
	h.bulk(c, h.repo.ForceDelete, "events permanently deleted")
}

// BulkArchive handles POST /events/bulk/archive.
func (h *Handler) BulkArchive(c *gin.Context) { h.bulk(c, h.archiver(true), "events archived") }

// BulkUnarchive handles POST /events/bulk/unarchive.
func (h *Handler) BulkUnarchive(c *gin.Context) { h.bulk(c, h.archiver(false), "events unarchived") }

type bulkAction func(ctx context.Context, workshopIDs []uuid.UUID) (int64, error)

func (h *Handler) archiver(archived bool) bulkAction {
	return func(ctx context.Context, ids []uuid.UUID) (int64, error) {
		return h.repo.SetArchived(ctx, ids, archived)
	}
}

// single applies action to one event. When respond is set the updated event is returned,
// otherwise 204.
func (h *Handler) single(c *gin.Context, action bulkAction, logMsg string, respond bool) {
	id, ok := workshopID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	n, err := action(ctx, []uuid.UUID{id})
	if err != nil {
		h.fail(c, err, "failed to update event")
		return
	}
	if n == 0 {
		response.NotFound(c, "event not found")
		return
	}
	h.logger.Info(logMsg, zap.String("public_workshop_id", id.String()))
	if !respond {
		response.NoContent(c)
		return
	}
	e, err := h.repo.Get(ctx, id)
	if err != nil {
		h.fail(c, err, "failed to load event")
		return
	}
	response.OK(c, e)
}

func (h *Handler) bulk(c *gin.Context, action bulkAction, logMsg string) {
	var req BulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	n, err := action(c.Request.Context(), req.IDs)
	if err != nil {
		h.fail(c, err, "failed to update events")
		return
	}
	h.logger.Info(logMsg, zap.Int("requested", len(req.IDs)), zap.Int64("affected", n))
	response.OK(c, gin.H{"affected": n})
}
