package reconciler

import (
	"strings"

	"github.com/google/uuid"

	"bank-reconciliation-engine/internal/matcher"
	"bank-reconciliation-engine/internal/models"
	"bank-reconciliation-engine/pkg/errors"
)

// Session is one reconciliation run: a batch of statement lines and book
// entries for a single organization. Sessions share nothing, so any number
// may run concurrently.
type Session struct {
	ID             string                  `json:"id"`
	OrganizationID string                  `json:"organizationId,omitempty"`
	Statements     []models.RawTransaction `json:"statements"`
	Books          []models.RawTransaction `json:"books"`

	// Config overrides the service's matching configuration when set
	Config *matcher.MatchingConfig `json:"-"`
}

// NewSession creates a session with a fresh id
func NewSession(organizationID string, statements, books []models.RawTransaction) *Session {
	return &Session{
		ID:             uuid.NewString(),
		OrganizationID: organizationID,
		Statements:     statements,
		Books:          books,
	}
}

// Validate checks that the session can be recorded
func (s *Session) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return errors.InputError(errors.CodeMissingField, "session_id", s.ID, nil).
			WithSuggestion("Create sessions with NewSession or pass --session-id")
	}
	return nil
}
