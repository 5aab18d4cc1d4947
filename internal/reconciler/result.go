package reconciler

import (
	"fmt"
	"time"

	"bank-reconciliation-engine/internal/matcher"
	"bank-reconciliation-engine/internal/models"
)

// Result is the payload of one reconciliation session
type Result struct {
	SessionID      string `json:"sessionId"`
	OrganizationID string `json:"organizationId,omitempty"`

	Matches             []*models.Match                `json:"matches"`
	UnmatchedStatements []*models.StatementTransaction `json:"unmatchedStatements"`
	UnmatchedBooks      []*models.BookTransaction      `json:"unmatchedBooks"`
	Skipped             []models.SkippedRecord         `json:"skipped"`

	// Confidence is the mean score of accepted matches, 0 when there are none
	Confidence float64 `json:"confidence"`
	Insights   string  `json:"insights"`

	Duplicates []matcher.DuplicateGroup `json:"duplicates,omitempty"`
	Stats      matcher.Stats            `json:"stats"`

	TotalStatements int       `json:"totalStatements"`
	TotalBooks      int       `json:"totalBooks"`
	ProcessedAt     time.Time `json:"processedAt"`

	// Persisted is set once the matches have been committed to the store
	Persisted bool `json:"persisted"`
}

// TierCounts returns the number of matches per confidence tier
func (r *Result) TierCounts() map[models.ConfidenceTier]int {
	counts := make(map[models.ConfidenceTier]int)
	for _, m := range r.Matches {
		counts[m.Confidence]++
	}
	return counts
}

// MatchRate returns matched statements as a percentage of all statements
func (r *Result) MatchRate() float64 {
	if r.TotalStatements == 0 {
		return 0
	}
	return float64(len(r.Matches)) / float64(r.TotalStatements) * 100
}

// CheckConservation verifies that every input record is accounted for
// exactly once
func (r *Result) CheckConservation() error {
	accounted := 2*len(r.Matches) + len(r.UnmatchedStatements) + len(r.UnmatchedBooks) + len(r.Skipped)
	if total := r.TotalStatements + r.TotalBooks; accounted != total {
		return fmt.Errorf("session %s accounts for %d records but received %d", r.SessionID, accounted, total)
	}

	statements := make(map[string]bool, len(r.Matches))
	books := make(map[string]bool, len(r.Matches))
	for _, m := range r.Matches {
		if statements[m.Statement.ID] {
			return fmt.Errorf("statement %s appears in more than one match", m.Statement.ID)
		}
		if books[m.Book.ID] {
			return fmt.Errorf("book %s appears in more than one match", m.Book.ID)
		}
		statements[m.Statement.ID] = true
		books[m.Book.ID] = true
	}
	return nil
}
