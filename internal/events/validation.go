package events

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/cpd-events/backoffice/internal/models"
)

var (
	minCPDPoints = decimal.Zero
	maxCPDPoints = decimal.NewFromInt(10000)
)

// Validate checks the writable fields of e.
func Validate(e *models.Event) error {
	var problems []string
	name := strings.TrimSpace(e.Name)
	switch {
	case name == "":
		problems = append(problems, "event_name is required")
	case utf8.RuneCountInString(name) > 255:
		problems = append(problems, "event_name must be at most 255 characters")
	}
	if utf8.RuneCountInString(e.OnlineLink) > OnlineLinkMax {
		problems = append(problems, fmt.Sprintf("online_link must be at most %d characters", OnlineLinkMax))
	}
	if e.StartAt.IsZero() {
		problems = append(problems, "event_start_dT is required")
	} else if e.EndAt != nil && !e.EndAt.After(e.StartAt) {
		problems = append(problems, "event_end_dT must be after event_start_dT")
	}
	if e.CPDPoints.LessThan(minCPDPoints) || e.CPDPoints.GreaterThan(maxCPDPoints) {
		problems = append(problems, "cpd_points_earned must be between 0 and 10000")
	}
	if e.Type != nil && !models.ValidEventType(*e.Type) {
		problems = append(problems, "event_type must be one of "+strings.Join(models.EventTypes, ", "))
	}
	if e.Privacy != "" && !e.Privacy.Valid() {
		problems = append(problems, "event_privacy must be public, private or restricted")
	}
	for k := range e.MiscData {
		if strings.TrimSpace(k) == "" {
			problems = append(problems, "misc_data keys must not be blank")
			break
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}
