package matcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bank-reconciliation-engine/internal/models"
)

func TestExplainMatch(t *testing.T) {
	pair := &models.CandidatePair{
		Score:  0.9733,
		Tier:   models.TierHigh,
		Reason: "amount and date match exactly",
	}

	text, err := NewTemplateExplainer().ExplainMatch(context.Background(), pair)
	require.NoError(t, err)
	assert.Equal(t, "high confidence (97%): amount and date match exactly", text)
}

func TestSummarize(t *testing.T) {
	summary := &Summary{
		Statements:          4,
		Books:               5,
		Matched:             3,
		UnmatchedStatements: 1,
		UnmatchedBooks:      2,
		Skipped:             1,
		Confidence:          0.8123,
		TierCounts: map[models.ConfidenceTier]int{
			models.TierExact:  1,
			models.TierHigh:   1,
			models.TierMedium: 1,
		},
		AmbiguousStatements: 2,
		Duplicates: []DuplicateGroup{
			{IDs: []string{"B1", "B4"}, Reason: "2 book records with amount 10 on 2025-02-01 and similar descriptions"},
		},
	}

	text, err := NewTemplateExplainer().Summarize(context.Background(), summary)
	require.NoError(t, err)

	assert.Contains(t, text, "Matched 3 of 4 statement transactions (75.0%) with mean confidence 0.81.")
	assert.Contains(t, text, "Tiers: 1 exact, 1 high, 1 medium.")
	assert.Contains(t, text, "1 matches are below high confidence and should be reviewed.")
	assert.Contains(t, text, "1 statement and 2 book transactions remain unmatched.")
	assert.Contains(t, text, "1 records were skipped")
	assert.Contains(t, text, "2 statement transactions had more than one plausible candidate.")
	assert.Contains(t, text, "Possible duplicates: B1, B4")
}

func TestSummarizeEmptyRun(t *testing.T) {
	text, err := NewTemplateExplainer().Summarize(context.Background(), &Summary{})
	require.NoError(t, err)
	assert.Equal(t, "No statement transactions to reconcile.", text)
}
