package events

import (
	"fmt"
	"strings"
	"time"

	"github.com/cpd-events/backoffice/internal/models"
)

// TrashedMode selects how soft-deleted events appear in a listing.
type TrashedMode string

const (
	TrashedWith    TrashedMode = "with"
	TrashedOnly    TrashedMode = "only"
	TrashedWithout TrashedMode = "without"
)

// ListFilter narrows an event listing. Zero values do not filter, except Trashed which
// defaults to TrashedWith.
type ListFilter struct {
	Type     *string
	Privacy  *models.EventPrivacy
	Upcoming bool
	Past     bool
	// Archived: true lists only archived events, false only active ones.
	Archived *bool
	Public   bool
	Trashed  TrashedMode
	Search   string
	Now      time.Time
}

// where renders the filter as a SQL condition with positional args.
func (f ListFilter) where() (string, []any) {
	var conds []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	switch f.Trashed {
	case TrashedOnly:
		conds = append(conds, "deleted_at IS NOT NULL")
	case TrashedWithout:
		conds = append(conds, "deleted_at IS NULL")
	}
	if f.Type != nil {
		conds = append(conds, "event_type = "+arg(*f.Type))
	}
	if f.Privacy != nil {
		conds = append(conds, "event_privacy = "+arg(string(*f.Privacy)))
	}
	if f.Public {
		conds = append(conds, "event_privacy = "+arg(string(models.PrivacyPublic)))
	}
	now := f.Now
	if now.IsZero() {
		now = time.Now()
	}
	if f.Upcoming {
		conds = append(conds, "event_start_dt >= "+arg(now))
	}
	if f.Past {
		conds = append(conds, "event_start_dt < "+arg(now))
	}
	if f.Archived != nil {
		conds = append(conds, "archived = "+arg(*f.Archived))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		conds = append(conds, "event_name ILIKE "+arg("%"+escapeLike(s)+"%"))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// ParseTrashedMode accepts with, only or without; empty means with.
func ParseTrashedMode(s string) (TrashedMode, error) {
	switch TrashedMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", TrashedWith:
		return TrashedWith, nil
	case TrashedOnly:
		return TrashedOnly, nil
	case TrashedWithout:
		return TrashedWithout, nil
	}
	return "", fmt.Errorf("%w: trashed must be with, only or without", ErrInvalid)
}
