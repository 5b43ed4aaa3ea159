package events

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/cpd-events/backoffice/internal/models"
)

func validEvent() *models.Event {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(3 * time.Hour)
	typ := "workshop"
	return &models.Event{
		Name:      "Suturing Basics",
		StartAt:   start,
		EndAt:     &end,
		CPDPoints: decimal.NewFromInt(3),
		Type:      &typ,
		Privacy:   models.PrivacyPublic,
	}
}

func TestValidate(t *testing.T) {
	str := func(s string) *string { return &s }
	cases := []struct {
		name   string
		mutate func(e *models.Event)
		ok     bool
	}{
		{"valid", func(e *models.Event) {}, true},
		{"no end", func(e *models.Event) { e.EndAt = nil }, true},
		{"no type", func(e *models.Event) { e.Type = nil }, true},
		{"zero points", func(e *models.Event) { e.CPDPoints = decimal.Zero }, true},
		{"max points", func(e *models.Event) { e.CPDPoints = decimal.NewFromInt(10000) }, true},
		{"blank name", func(e *models.Event) { e.Name = "  " }, false},
		{"end before start", func(e *models.Event) { end := e.StartAt.Add(-time.Minute); e.EndAt = &end }, false},
		{"end equals start", func(e *models.Event) { end := e.StartAt; e.EndAt = &end }, false},
		{"missing start", func(e *models.Event) { e.StartAt = time.Time{} }, false},
		{"negative points", func(e *models.Event) { e.CPDPoints = decimal.NewFromFloat(-0.5) }, false},
		{"too many points", func(e *models.Event) { e.CPDPoints = decimal.NewFromFloat(10000.01) }, false},
		{"unknown type", func(e *models.Event) { e.Type = str("party") }, false},
		{"unknown privacy", func(e *models.Event) { e.Privacy = "secret" }, false},
		{"long link", func(e *models.Event) { e.OnlineLink = string(make([]byte, 46)) }, false},
		{"255 multi-byte name", func(e *models.Event) { e.Name = strings.Repeat("研", 255) }, true},
		{"256 character name", func(e *models.Event) { e.Name = strings.Repeat("é", 256) }, false},
		{"45 multi-byte link", func(e *models.Event) { e.OnlineLink = strings.Repeat("ü", 45) }, true},
		{"blank misc key", func(e *models.Event) { e.MiscData = map[string]string{" ": "x"} }, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := validEvent()
			tc.mutate(e)
			err := Validate(e)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalid)
			}
		})
	}
}
