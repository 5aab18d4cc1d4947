// Package models holds the data types shared by the matching engine, the
// recorder and the persistence layer.
package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar-date layout used for every date the engine emits.
const DateLayout = "2006-01-02"

// Side identifies which input list a transaction came from
type Side string

const (
	SideStatement Side = "statement"
	SideBook      Side = "book"
)

// RawTransaction is an un-normalized input record. Amount and date stay as text
// until the normalizer has validated them.
type RawTransaction struct {
	ID          string `json:"id" csv:"id"`
	Amount      string `json:"amount" csv:"amount"`
	Date        string `json:"date" csv:"date"`
	Description string `json:"description" csv:"description"`
	Reference   string `json:"reference,omitempty" csv:"reference"`

	// SourceID links a book record back to its invoice, expense or transfer.
	SourceID string `json:"sourceId,omitempty" csv:"source_id"`
}

// StatementTransaction is one normalized line from an external bank statement
type StatementTransaction struct {
	ID          string          `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
	Reference   string          `json:"reference,omitempty"`

	// DescriptionKey is the case-folded comparison form of Description.
	DescriptionKey string `json:"-"`
}

// HasReference reports whether the transaction carries a reference code
func (s *StatementTransaction) HasReference() bool {
	return s.Reference != ""
}

// String returns a string representation of the StatementTransaction
func (s *StatementTransaction) String() string {
	return fmt.Sprintf("StatementTransaction{ID: %s, Amount: %s, Date: %s}",
		s.ID, s.Amount.String(), s.Date.Format(DateLayout))
}

// MarshalJSON emits the amount as a string and the date without a time component
func (s *StatementTransaction) MarshalJSON() ([]byte, error) {
	type Alias StatementTransaction
	return json.Marshal(&struct {
		Amount string `json:"amount"`
		Date   string `json:"date"`
		*Alias
	}{
		Amount: s.Amount.StringFixed(s.Amount.Exponent() * -1),
		Date:   s.Date.Format(DateLayout),
		Alias:  (*Alias)(s),
	})
}

// BookTransaction is one normalized, internally recorded transaction
type BookTransaction struct {
	ID          string          `json:"id"`
	SourceID    string          `json:"sourceId,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
	Reference   string          `json:"reference,omitempty"`

	DescriptionKey string `json:"-"`
}

// HasReference reports whether the transaction carries a reference code
func (b *BookTransaction) HasReference() bool {
	return b.Reference != ""
}

// String returns a string representation of the BookTransaction
func (b *BookTransaction) String() string {
	return fmt.Sprintf("BookTransaction{ID: %s, Amount: %s, Date: %s}",
		b.ID, b.Amount.String(), b.Date.Format(DateLayout))
}

// MarshalJSON emits the amount as a string and the date without a time component
func (b *BookTransaction) MarshalJSON() ([]byte, error) {
	type Alias BookTransaction
	return json.Marshal(&struct {
		Amount string `json:"amount"`
		Date   string `json:"date"`
		*Alias
	}{
		Amount: b.Amount.StringFixed(b.Amount.Exponent() * -1),
		Date:   b.Date.Format(DateLayout),
		Alias:  (*Alias)(b),
	})
}

// ConfidenceTier is an ordered classification of a match score
type ConfidenceTier int

const (
	TierLow ConfidenceTier = iota
	TierMedium
	TierHigh
	TierExact
)

// String returns the string representation of ConfidenceTier
func (c ConfidenceTier) String() string {
	switch c {
	case TierExact:
		return "exact"
	case TierHigh:
		return "high"
	case TierMedium:
		return "medium"
	case TierLow:
		return "low"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler
func (c ConfidenceTier) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (c *ConfidenceTier) UnmarshalText(text []byte) error {
	tier, err := ParseConfidenceTier(string(text))
	if err != nil {
		return err
	}
	*c = tier
	return nil
}

// ParseConfidenceTier parses a tier name
func ParseConfidenceTier(s string) (ConfidenceTier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "exact":
		return TierExact, nil
	case "high":
		return TierHigh, nil
	case "medium":
		return TierMedium, nil
	case "low":
		return TierLow, nil
	default:
		return TierLow, fmt.Errorf("invalid confidence tier '%s'", s)
	}
}

// Dimension names one axis of pairwise comparison
type Dimension string

const (
	DimensionAmount      Dimension = "amount"
	DimensionDate        Dimension = "date"
	DimensionReference   Dimension = "reference"
	DimensionDescription Dimension = "description"
)

// AllDimensions lists dimensions in priority order
var AllDimensions = []Dimension{DimensionAmount, DimensionDate, DimensionReference, DimensionDescription}

// ReferenceOutcome describes how the references of a pair compared
type ReferenceOutcome int

const (
	// ReferenceAbsent means at least one side has no reference
	ReferenceAbsent ReferenceOutcome = iota
	ReferenceMatch
	ReferenceMismatch
)

// CandidatePair is one scored statement/book pairing under consideration
type CandidatePair struct {
	Statement *StatementTransaction `json:"statement"`
	Book      *BookTransaction      `json:"book"`

	Score    float64        `json:"score"`
	Tier     ConfidenceTier `json:"confidenceTier"`
	Criteria []Dimension    `json:"criteria"`
	Reason   string         `json:"reason"`

	// Component scores, each in [0,1], before weighting
	AmountScore      float64 `json:"-"`
	DateScore        float64 `json:"-"`
	ReferenceScore   float64 `json:"-"`
	DescriptionScore float64 `json:"-"`

	AmountDifference   decimal.Decimal  `json:"-"`
	DateDifferenceDays int              `json:"-"`
	Reference          ReferenceOutcome `json:"-"`

	// Input positions used as the final deterministic tie-break
	StatementOrder int `json:"-"`
	BookOrder      int `json:"-"`
}

// HasCriterion reports whether dimension d contributed positively
func (p *CandidatePair) HasCriterion(d Dimension) bool {
	for _, c := range p.Criteria {
		if c == d {
			return true
		}
	}
	return false
}

// MatchStatus is the review state of a recorded match
type MatchStatus string

const (
	StatusMatched         MatchStatus = "matched"
	StatusManuallyMatched MatchStatus = "manually_matched"
	StatusDisputed        MatchStatus = "disputed"
	StatusRejected        MatchStatus = "rejected"
)

// IsValid checks if the match status is known
func (s MatchStatus) IsValid() bool {
	switch s {
	case StatusMatched, StatusManuallyMatched, StatusDisputed, StatusRejected:
		return true
	default:
		return false
	}
}

// TransactionSnapshot duplicates the compared fields of a transaction at match
// time, so the audit trail survives later edits of the source records.
type TransactionSnapshot struct {
	ID          string          `json:"id"`
	SourceID    string          `json:"sourceId,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
	Reference   string          `json:"reference,omitempty"`
}

// Match is an accepted, persistable pairing
type Match struct {
	ID              string              `json:"id"`
	SessionID       string              `json:"sessionId"`
	Statement       TransactionSnapshot `json:"statement"`
	Book            TransactionSnapshot `json:"book"`
	Status          MatchStatus         `json:"status"`
	Confidence      ConfidenceTier      `json:"confidence"`
	ConfidenceScore int                 `json:"confidenceScore"`
	MatchCriteria   []Dimension         `json:"matchCriteria"`
	MatchReason     string              `json:"matchReason"`
	CreatedAt       time.Time           `json:"createdAt"`
}

// SnapshotStatement copies a statement transaction into a snapshot
func SnapshotStatement(s *StatementTransaction) TransactionSnapshot {
	return TransactionSnapshot{
		ID:          s.ID,
		Amount:      s.Amount,
		Date:        s.Date,
		Description: s.Description,
		Reference:   s.Reference,
	}
}

// SnapshotBook copies a book transaction into a snapshot
func SnapshotBook(b *BookTransaction) TransactionSnapshot {
	return TransactionSnapshot{
		ID:          b.ID,
		SourceID:    b.SourceID,
		Amount:      b.Amount,
		Date:        b.Date,
		Description: b.Description,
		Reference:   b.Reference,
	}
}

// SkippedRecord is an input record excluded from matching because it could not
// be normalized
type SkippedRecord struct {
	Side   Side           `json:"side"`
	ID     string         `json:"id"`
	Reason string         `json:"reason"`
	Record RawTransaction `json:"record"`
}

// DaysBetween returns the absolute number of whole calendar days between a and b
func DaysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)

	diff := da.Sub(db)
	if diff < 0 {
		diff = -diff
	}
	return int(diff.Hours() / 24)
}
