package events

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/cpd-events/backoffice/internal/models"
	"github.com/cpd-events/backoffice/pkg/utils"
)

const (
	PublicKeyLength  = 9
	PrivateKeyLength = 72
	OnlineLinkMax    = 45

	// maxInsertAttempts bounds retries when a generated public key collides.
	maxInsertAttempts = 3
)

// PrepareForCreate assigns identifiers and keys that are still unset. Values already
// present are kept, so callers may supply their own.
func PrepareForCreate(e *models.Event) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.PublicWorkshopID == uuid.Nil {
		e.PublicWorkshopID = uuid.New()
	}
	if e.PublicKey == "" {
		if err := regeneratePublicKey(e); err != nil {
			return err
		}
	}
	if e.PrivateKey == "" {
		key, err := utils.RandomString(PrivateKeyLength)
		if err != nil {
			return fmt.Errorf("generate private key: %w", err)
		}
		e.PrivateKey = key
	}
	if e.OnlineLink == "" {
		e.OnlineLink = defaultOnlineLink(e.Name)
	}
	if e.Privacy == "" {
		e.Privacy = models.PrivacyPublic
	}
	return nil
}

func regeneratePublicKey(e *models.Event) error {
	key, err := utils.RandomUpper(PublicKeyLength)
	if err != nil {
		return fmt.Errorf("generate public key: %w", err)
	}
	e.PublicKey = key
	return nil
}

// defaultOnlineLink is the event name as a slug, cut to the column width.
func defaultOnlineLink(name string) string {
	return utils.SlugifyMax(name, OnlineLinkMax)
}
