package matcher

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"bank-reconciliation-engine/internal/models"
	"bank-reconciliation-engine/pkg/errors"
)

// dateFormats are tried in order; the time of day is discarded afterwards
var dateFormats = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006",
	"02-01-2006",
	"2006/01/02",
	"Jan 2, 2006",
	"January 2, 2006",
}

// Normalizer converts raw records into canonical, comparable transactions
type Normalizer struct {
	precision int32
}

// NewNormalizer creates a normalizer rounding amounts to the configured minor-unit scale
func NewNormalizer(config *MatchingConfig) *Normalizer {
	return &Normalizer{precision: int32(config.AmountPrecision)}
}

// NormalizedBatch is the outcome of normalizing both sides of a session.
// Every input record ends up either in one of the two lists or in Skipped.
type NormalizedBatch struct {
	Statements []*models.StatementTransaction
	Books      []*models.BookTransaction
	Skipped    []models.SkippedRecord
}

// NormalizeStatement converts one raw statement record
func (n *Normalizer) NormalizeStatement(raw models.RawTransaction) (*models.StatementTransaction, error) {
	id, amount, date, err := n.normalizeCommon(raw)
	if err != nil {
		return nil, err
	}

	return &models.StatementTransaction{
		ID:             id,
		Amount:         amount,
		Date:           date,
		Description:    strings.TrimSpace(raw.Description),
		Reference:      strings.TrimSpace(raw.Reference),
		DescriptionKey: ComparisonKey(raw.Description),
	}, nil
}

// NormalizeBook converts one raw book record
func (n *Normalizer) NormalizeBook(raw models.RawTransaction) (*models.BookTransaction, error) {
	id, amount, date, err := n.normalizeCommon(raw)
	if err != nil {
		return nil, err
	}

	return &models.BookTransaction{
		ID:             id,
		SourceID:       strings.TrimSpace(raw.SourceID),
		Amount:         amount,
		Date:           date,
		Description:    strings.TrimSpace(raw.Description),
		Reference:      strings.TrimSpace(raw.Reference),
		DescriptionKey: ComparisonKey(raw.Description),
	}, nil
}

// NormalizeBatch normalizes both sides of a session. Malformed records and
// duplicate ids become skipped entries; input order is preserved otherwise.
func (n *Normalizer) NormalizeBatch(statements, books []models.RawTransaction) *NormalizedBatch {
	batch := &NormalizedBatch{
		Statements: make([]*models.StatementTransaction, 0, len(statements)),
		Books:      make([]*models.BookTransaction, 0, len(books)),
	}

	seen := make(map[string]bool, len(statements))
	for _, raw := range statements {
		stmt, err := n.NormalizeStatement(raw)
		if err == nil && seen[stmt.ID] {
			err = errors.InputError(errors.CodeDuplicateID, "id", stmt.ID, nil)
		}
		if err != nil {
			batch.Skipped = append(batch.Skipped, skippedFrom(models.SideStatement, raw, err))
			continue
		}
		seen[stmt.ID] = true
		batch.Statements = append(batch.Statements, stmt)
	}

	seen = make(map[string]bool, len(books))
	for _, raw := range books {
		book, err := n.NormalizeBook(raw)
		if err == nil && seen[book.ID] {
			err = errors.InputError(errors.CodeDuplicateID, "id", book.ID, nil)
		}
		if err != nil {
			batch.Skipped = append(batch.Skipped, skippedFrom(models.SideBook, raw, err))
			continue
		}
		seen[book.ID] = true
		batch.Books = append(batch.Books, book)
	}

	return batch
}

func (n *Normalizer) normalizeCommon(raw models.RawTransaction) (string, decimal.Decimal, time.Time, error) {
	id := strings.TrimSpace(raw.ID)
	if id == "" {
		return "", decimal.Zero, time.Time{}, errors.InputError(errors.CodeMissingField, "id", raw.ID, nil)
	}

	amount, err := ParseAmount(raw.Amount)
	if err != nil {
		return "", decimal.Zero, time.Time{}, errors.InputError(errors.CodeInvalidAmount, "amount", raw.Amount, err)
	}

	date, err := ParseDate(raw.Date)
	if err != nil {
		return "", decimal.Zero, time.Time{}, errors.InputError(errors.CodeInvalidDate, "date", raw.Date, err)
	}

	return id, amount.Round(n.precision), date, nil
}

func skippedFrom(side models.Side, raw models.RawTransaction, err error) models.SkippedRecord {
	reason := err.Error()
	if reconcilerErr, ok := errors.AsReconcilerError(err); ok {
		reason = reconcilerErr.Message
	}
	return models.SkippedRecord{
		Side:   side,
		ID:     strings.TrimSpace(raw.ID),
		Reason: reason,
		Record: raw,
	}
}

// ParseAmount parses a decimal amount, tolerating currency symbols,
// thousand separators and accounting-style parentheses for negatives
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount cannot be empty")
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}

	if negative {
		d = d.Neg()
	}
	return d, nil
}

// ParseDate parses a calendar date using the supported layouts and truncates
// it to midnight UTC
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("date cannot be empty")
	}

	var lastErr error
	for _, format := range dateFormats {
		t, err := time.Parse(format, s)
		if err == nil {
			year, month, day := t.Date()
			return time.Date(year, month, day, 0, 0, 0, 0, time.UTC), nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("unable to parse date '%s': %w", s, lastErr)
}

// ComparisonKey folds case, drops punctuation and collapses whitespace. The
// result is only used for similarity, never shown to users.
func ComparisonKey(s string) string {
	folded := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			return unicode.ToLower(r)
		case unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r):
			return ' '
		default:
			return -1
		}
	}, s)
	return strings.Join(strings.Fields(folded), " ")
}
