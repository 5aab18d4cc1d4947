package matcher

import (
	"fmt"
	"math"
	"strings"

	"bank-reconciliation-engine/internal/models"
)

// descriptionCriterionThreshold is the similarity at which the description
// counts as an agreeing dimension
const descriptionCriterionThreshold = 0.5

// referenceNeutral is the component score when a reference is missing on either side
const referenceNeutral = 0.5

// Scorer computes a score and tier for one candidate pair. Implementations
// must be pure: the same candidate and config always yield the same result.
type Scorer interface {
	Score(candidate Candidate, config *MatchingConfig) *models.CandidatePair
}

// WeightedScorer is the default scoring strategy: a weighted sum of four
// per-dimension scores, each in [0,1].
type WeightedScorer struct{}

// NewWeightedScorer creates the default scorer
func NewWeightedScorer() *WeightedScorer {
	return &WeightedScorer{}
}

// Score implements Scorer
func (ws *WeightedScorer) Score(candidate Candidate, config *MatchingConfig) *models.CandidatePair {
	stmt, book := candidate.Statement, candidate.Book

	pair := &models.CandidatePair{
		Statement:          stmt,
		Book:               book,
		StatementOrder:     candidate.StatementOrder,
		BookOrder:          candidate.BookOrder,
		AmountDifference:   stmt.Amount.Sub(book.Amount).Abs(),
		DateDifferenceDays: models.DaysBetween(stmt.Date, book.Date),
	}

	pair.AmountScore = amountScore(pair, config)
	pair.DateScore = dateScore(pair.DateDifferenceDays, config.DateWindowDays)
	pair.Reference, pair.ReferenceScore = compareReferences(stmt.Reference, book.Reference)
	pair.DescriptionScore = DescriptionSimilarity(stmt.DescriptionKey, book.DescriptionKey)

	w := config.Weights
	score := w.Amount*pair.AmountScore +
		w.Date*pair.DateScore +
		w.Reference*pair.ReferenceScore +
		w.Description*pair.DescriptionScore
	pair.Score = clamp01(roundScore(score))

	pair.Tier = config.TierFor(pair.Score)
	if pair.Reference == models.ReferenceMismatch && pair.Tier > models.TierMedium {
		pair.Tier = models.TierMedium
	}

	pair.Criteria = criteriaFor(pair)
	pair.Reason = describe(pair, config)

	return pair
}

func amountScore(pair *models.CandidatePair, config *MatchingConfig) float64 {
	if pair.AmountDifference.IsZero() {
		return 1.0
	}

	tolerance := config.ToleranceFor(pair.Statement.Amount)
	if !tolerance.IsPositive() || pair.AmountDifference.GreaterThan(tolerance) {
		return 0.0
	}

	ratio, _ := pair.AmountDifference.Div(tolerance).Float64()
	return clamp01(1.0 - ratio)
}

func dateScore(days, window int) float64 {
	if days == 0 {
		return 1.0
	}
	if window <= 0 || days > window {
		return 0.0
	}
	return clamp01(1.0 - float64(days)/float64(window))
}

func compareReferences(stmtRef, bookRef string) (models.ReferenceOutcome, float64) {
	stmtRef = strings.TrimSpace(stmtRef)
	bookRef = strings.TrimSpace(bookRef)

	switch {
	case stmtRef == "" || bookRef == "":
		return models.ReferenceAbsent, referenceNeutral
	case strings.EqualFold(stmtRef, bookRef):
		return models.ReferenceMatch, 1.0
	default:
		return models.ReferenceMismatch, 0.0
	}
}

func criteriaFor(pair *models.CandidatePair) []models.Dimension {
	criteria := make([]models.Dimension, 0, len(models.AllDimensions))
	if pair.AmountScore > 0 {
		criteria = append(criteria, models.DimensionAmount)
	}
	if pair.DateScore > 0 {
		criteria = append(criteria, models.DimensionDate)
	}
	if pair.Reference == models.ReferenceMatch {
		criteria = append(criteria, models.DimensionReference)
	}
	if pair.DescriptionScore >= descriptionCriterionThreshold {
		criteria = append(criteria, models.DimensionDescription)
	}
	return criteria
}

// describe names which dimensions agreed and which did not
func describe(pair *models.CandidatePair, config *MatchingConfig) string {
	var parts []string

	amountExact := pair.AmountDifference.IsZero()
	dateExact := pair.DateDifferenceDays == 0

	switch {
	case amountExact && dateExact:
		parts = append(parts, "amount and date match exactly")
	case amountExact:
		parts = append(parts, "amount matches exactly", dateText(pair.DateDifferenceDays))
	case dateExact:
		parts = append(parts, amountText(pair, config), "date matches exactly")
	default:
		parts = append(parts, amountText(pair, config), dateText(pair.DateDifferenceDays))
	}

	switch pair.Reference {
	case models.ReferenceMatch:
		parts = append(parts, fmt.Sprintf("reference %s matches", pair.Statement.Reference))
	case models.ReferenceMismatch:
		parts = append(parts, fmt.Sprintf("references differ (%s vs %s)", pair.Statement.Reference, pair.Book.Reference))
	default:
		parts = append(parts, referenceAbsentText(pair))
	}

	if pair.Statement.DescriptionKey == "" || pair.Book.DescriptionKey == "" {
		parts = append(parts, "no description to compare")
	} else {
		parts = append(parts, fmt.Sprintf("description similarity %d%%", int(math.Round(pair.DescriptionScore*100))))
	}

	return strings.Join(parts, "; ")
}

func amountText(pair *models.CandidatePair, config *MatchingConfig) string {
	return fmt.Sprintf("amount differs by %s (tolerance %s)",
		pair.AmountDifference.StringFixed(int32(config.AmountPrecision)),
		config.ToleranceFor(pair.Statement.Amount).StringFixed(int32(config.AmountPrecision)))
}

func dateText(days int) string {
	if days == 1 {
		return "date 1 day apart"
	}
	return fmt.Sprintf("date %d days apart", days)
}

func referenceAbsentText(pair *models.CandidatePair) string {
	switch {
	case !pair.Statement.HasReference() && !pair.Book.HasReference():
		return "no reference on either side"
	case !pair.Statement.HasReference():
		return "no reference on statement"
	default:
		return "no reference on book"
	}
}

// roundScore drops floating point noise below 1e-12 so equal evidence
// yields bit-identical scores
func roundScore(v float64) float64 {
	return math.Round(v*1e12) / 1e12
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
