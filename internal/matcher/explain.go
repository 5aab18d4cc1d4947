package matcher

import (
	"context"
	"fmt"
	"math"
	"strings"

	"bank-reconciliation-engine/internal/models"
)

// Summary is the aggregate view of one run handed to an Explainer
type Summary struct {
	Statements          int
	Books               int
	Matched             int
	UnmatchedStatements int
	UnmatchedBooks      int
	Skipped             int
	Confidence          float64
	TierCounts          map[models.ConfidenceTier]int
	Duplicates          []DuplicateGroup
	AmbiguousStatements int
}

// Explainer decorates accepted pairs and whole runs with natural-language
// rationale. Implementations may call out to an external text generator;
// callers fall back to the scorer's reason when an Explainer fails, so match
// correctness never depends on one.
type Explainer interface {
	ExplainMatch(ctx context.Context, pair *models.CandidatePair) (string, error)
	Summarize(ctx context.Context, summary *Summary) (string, error)
}

// TemplateExplainer is the deterministic, offline Explainer
type TemplateExplainer struct{}

// NewTemplateExplainer creates the default explainer
func NewTemplateExplainer() *TemplateExplainer {
	return &TemplateExplainer{}
}

// ExplainMatch prefixes the scorer's reason with the tier and score
func (te *TemplateExplainer) ExplainMatch(_ context.Context, pair *models.CandidatePair) (string, error) {
	return fmt.Sprintf("%s confidence (%d%%): %s",
		pair.Tier, int(math.Round(pair.Score*100)), pair.Reason), nil
}

// Summarize produces a short insight paragraph for the run
func (te *TemplateExplainer) Summarize(_ context.Context, summary *Summary) (string, error) {
	var sentences []string

	if summary.Statements == 0 {
		sentences = append(sentences, "No statement transactions to reconcile.")
	} else {
		rate := float64(summary.Matched) / float64(summary.Statements) * 100
		sentences = append(sentences, fmt.Sprintf("Matched %d of %d statement transactions (%.1f%%) with mean confidence %.2f.",
			summary.Matched, summary.Statements, rate, summary.Confidence))
	}

	if summary.Matched > 0 {
		var tiers []string
		for _, tier := range []models.ConfidenceTier{models.TierExact, models.TierHigh, models.TierMedium, models.TierLow} {
			if n := summary.TierCounts[tier]; n > 0 {
				tiers = append(tiers, fmt.Sprintf("%d %s", n, tier))
			}
		}
		sentences = append(sentences, fmt.Sprintf("Tiers: %s.", strings.Join(tiers, ", ")))

		if low := summary.TierCounts[models.TierLow] + summary.TierCounts[models.TierMedium]; low > 0 {
			sentences = append(sentences, fmt.Sprintf("%d matches are below high confidence and should be reviewed.", low))
		}
	}

	if summary.UnmatchedStatements > 0 || summary.UnmatchedBooks > 0 {
		sentences = append(sentences, fmt.Sprintf("%d statement and %d book transactions remain unmatched.",
			summary.UnmatchedStatements, summary.UnmatchedBooks))
	}

	if summary.Skipped > 0 {
		sentences = append(sentences, fmt.Sprintf("%d records were skipped because they could not be normalized.", summary.Skipped))
	}

	if summary.AmbiguousStatements > 0 {
		sentences = append(sentences, fmt.Sprintf("%d statement transactions had more than one plausible candidate.", summary.AmbiguousStatements))
	}

	for _, group := range summary.Duplicates {
		sentences = append(sentences, fmt.Sprintf("Possible duplicates: %s (%s).", strings.Join(group.IDs, ", "), group.Reason))
	}

	return strings.Join(sentences, " "), nil
}
