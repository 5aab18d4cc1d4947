package matcher

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"bank-reconciliation-engine/internal/models"
)

func scoredPair(t *testing.T, config *MatchingConfig, stmt models.RawTransaction, bk models.RawTransaction) *models.CandidatePair {
	t.Helper()
	n := NewNormalizer(config)
	s, err := n.NormalizeStatement(stmt)
	if err != nil {
		t.Fatalf("normalize statement: %v", err)
	}
	b, err := n.NormalizeBook(bk)
	if err != nil {
		t.Fatalf("normalize book: %v", err)
	}
	return NewWeightedScorer().Score(Candidate{Statement: s, Book: b}, config)
}

func TestScoreExactScenario(t *testing.T) {
	pair := scoredPair(t, DefaultMatchingConfig(),
		models.RawTransaction{ID: "S1", Amount: "100.00", Date: "2025-01-10", Description: "ACME INV 42", Reference: "INV-42"},
		models.RawTransaction{ID: "B1", Amount: "100.00", Date: "2025-01-10", Description: "Acme Invoice 42", Reference: "INV-42"},
	)

	assert.Contains(t, []models.ConfidenceTier{models.TierExact, models.TierHigh}, pair.Tier)
	assert.True(t, pair.HasCriterion(models.DimensionReference))
	assert.True(t, pair.HasCriterion(models.DimensionAmount))
	assert.True(t, pair.HasCriterion(models.DimensionDate))
	assert.InDelta(t, 0.4+0.3+0.2+0.1*11.0/15.0, pair.Score, 1e-9)
	assert.Equal(t, models.ReferenceMatch, pair.Reference)
	assert.Contains(t, pair.Reason, "amount and date match exactly")
	assert.Contains(t, pair.Reason, "reference INV-42 matches")
	assert.Contains(t, pair.Reason, "description similarity 73%")
}

func TestScorePerfectPairIsExact(t *testing.T) {
	pair := scoredPair(t, DefaultMatchingConfig(),
		models.RawTransaction{ID: "S1", Amount: "42.00", Date: "2025-03-01", Description: "Office Rent", Reference: "r-9"},
		models.RawTransaction{ID: "B1", Amount: "42.00", Date: "2025-03-01", Description: "office rent", Reference: "R-9"},
	)

	assert.Equal(t, models.TierExact, pair.Tier)
	assert.Equal(t, 1.0, pair.Score)
	assert.Len(t, pair.Criteria, 4)
}

func TestScoreAbsentReferenceIsNeutral(t *testing.T) {
	pair := scoredPair(t, DefaultMatchingConfig(),
		models.RawTransaction{ID: "S1", Amount: "10.00", Date: "2025-03-01", Description: "Coffee"},
		models.RawTransaction{ID: "B1", Amount: "10.00", Date: "2025-03-01", Description: "Coffee", Reference: "PO-1"},
	)

	assert.Equal(t, models.ReferenceAbsent, pair.Reference)
	assert.Equal(t, 0.5, pair.ReferenceScore)
	assert.False(t, pair.HasCriterion(models.DimensionReference))
	assert.InDelta(t, 0.4+0.3+0.1+0.1, pair.Score, 1e-9)
	assert.Equal(t, models.TierHigh, pair.Tier)
	assert.Contains(t, pair.Reason, "no reference on statement")
}

func TestScoreReferenceMismatchCapsTier(t *testing.T) {
	config := DefaultMatchingConfig()
	config.Weights = MatchingWeights{Amount: 0.5, Date: 0.3, Reference: 0.1, Description: 0.1}

	pair := scoredPair(t, config,
		models.RawTransaction{ID: "S1", Amount: "10.00", Date: "2025-03-01", Description: "Coffee", Reference: "A-1"},
		models.RawTransaction{ID: "B1", Amount: "10.00", Date: "2025-03-01", Description: "Coffee", Reference: "B-2"},
	)

	assert.InDelta(t, 0.9, pair.Score, 1e-9)
	assert.Equal(t, models.ReferenceMismatch, pair.Reference)
	assert.Equal(t, models.TierMedium, pair.Tier, "a conflicting reference must not be high confidence")
	assert.Contains(t, pair.Reason, "references differ (A-1 vs B-2)")
}

func TestScorePartialAmountAndDate(t *testing.T) {
	config := DefaultMatchingConfig()
	config.AmountTolerance = decimal.RequireFromString("0.05")

	pair := scoredPair(t, config,
		models.RawTransaction{ID: "S1", Amount: "100.00", Date: "2025-03-01", Description: "Supplies"},
		models.RawTransaction{ID: "B1", Amount: "100.02", Date: "2025-03-03", Description: "Supplies"},
	)

	assert.InDelta(t, 0.6, pair.AmountScore, 1e-9)
	assert.InDelta(t, 0.6, pair.DateScore, 1e-9)
	assert.Equal(t, 2, pair.DateDifferenceDays)
	assert.True(t, pair.AmountDifference.Equal(decimal.RequireFromString("0.02")))
	assert.InDelta(t, 0.4*0.6+0.3*0.6+0.2*0.5+0.1, pair.Score, 1e-9)
	assert.Contains(t, pair.Reason, "amount differs by 0.02 (tolerance 0.05)")
	assert.Contains(t, pair.Reason, "date 2 days apart")
}

func TestScoreEdgeOfWindow(t *testing.T) {
	pair := scoredPair(t, DefaultMatchingConfig(),
		models.RawTransaction{ID: "S1", Amount: "5.00", Date: "2025-03-01"},
		models.RawTransaction{ID: "B1", Amount: "5.00", Date: "2025-03-06"},
	)

	assert.Equal(t, 0.0, pair.DateScore)
	assert.False(t, pair.HasCriterion(models.DimensionDate))
	assert.Contains(t, pair.Reason, "no description to compare")
}

func TestDescriptionSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"acme inv 42", "acme invoice 42", 11.0 / 15.0},
		{"office rent", "office rent", 1.0},
		{"rent office", "office rent", 1.0},
		{"", "office rent", 0.0},
		{"abc", "xyz", 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.a+"|"+tt.b, func(t *testing.T) {
			assert.InDelta(t, tt.want, DescriptionSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}
