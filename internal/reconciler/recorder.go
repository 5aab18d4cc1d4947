package reconciler

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"bank-reconciliation-engine/internal/matcher"
	"bank-reconciliation-engine/internal/models"
	"bank-reconciliation-engine/pkg/errors"
	"bank-reconciliation-engine/pkg/logger"
)

// MatchStore persists the matches of a session. SaveMatches must be atomic:
// either every match of the call is committed or none is.
type MatchStore interface {
	SaveMatches(ctx context.Context, sessionID string, matches []*models.Match) error
	ListMatches(ctx context.Context, sessionID string) ([]*models.Match, error)
}

// Recorder turns an engine outcome into match records and persists them
type Recorder struct {
	store     MatchStore
	explainer matcher.Explainer
	fallback  matcher.Explainer
	timeout   time.Duration
	logger    logger.Logger
	now       func() time.Time
}

// NewRecorder creates a recorder. A nil explainer means the template explainer;
// a zero timeout leaves persistence unbounded.
func NewRecorder(store MatchStore, explainer matcher.Explainer, timeout time.Duration, log logger.Logger) *Recorder {
	fallback := matcher.NewTemplateExplainer()
	if explainer == nil {
		explainer = fallback
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Recorder{
		store:     store,
		explainer: explainer,
		fallback:  fallback,
		timeout:   timeout,
		logger:    log.WithComponent("recorder"),
		now:       time.Now,
	}
}

// Build creates the session result. It performs no I/O apart from calls to
// the explainer, whose failures fall back to the scorer's reason text.
func (r *Recorder) Build(ctx context.Context, session *Session, outcome *matcher.Outcome) *Result {
	createdAt := r.now().UTC()

	matches := make([]*models.Match, 0, len(outcome.Accepted))
	for _, pair := range outcome.Accepted {
		reason, err := r.explainer.ExplainMatch(ctx, pair)
		if err != nil || reason == "" {
			if err != nil {
				r.logger.WithError(err).WithField("statement_id", pair.Statement.ID).Debug("Explainer failed, using scorer reason")
			}
			reason = pair.Reason
		}

		criteria := make([]models.Dimension, len(pair.Criteria))
		copy(criteria, pair.Criteria)

		matches = append(matches, &models.Match{
			ID:              uuid.NewString(),
			SessionID:       session.ID,
			Statement:       models.SnapshotStatement(pair.Statement),
			Book:            models.SnapshotBook(pair.Book),
			Status:          models.StatusMatched,
			Confidence:      pair.Tier,
			ConfidenceScore: int(math.Round(pair.Score * 100)),
			MatchCriteria:   criteria,
			MatchReason:     reason,
			CreatedAt:       createdAt,
		})
	}

	skipped := outcome.Skipped
	if skipped == nil {
		skipped = make([]models.SkippedRecord, 0)
	}

	result := &Result{
		SessionID:           session.ID,
		OrganizationID:      session.OrganizationID,
		Matches:             matches,
		UnmatchedStatements: outcome.UnmatchedStatements,
		UnmatchedBooks:      outcome.UnmatchedBooks,
		Skipped:             skipped,
		Confidence:          outcome.MeanScore(),
		Duplicates:          outcome.Duplicates,
		Stats:               outcome.Stats,
		TotalStatements:     outcome.InputStatements,
		TotalBooks:          outcome.InputBooks,
		ProcessedAt:         createdAt,
	}

	summary := outcome.Summary()
	insights, err := r.explainer.Summarize(ctx, summary)
	if err != nil {
		r.logger.WithError(err).Warn("Explainer could not summarize session, using template")
		insights, _ = r.fallback.Summarize(ctx, summary)
	}
	result.Insights = insights

	return result
}

// Record persists the matches of result with a single store call. Once
// started, persistence ignores cancellation of ctx and is bounded only by the
// recorder timeout. On failure the result is left untouched and may be passed
// to Record again.
func (r *Recorder) Record(ctx context.Context, result *Result) error {
	persistCtx := context.WithoutCancel(ctx)
	if r.timeout > 0 {
		var cancel context.CancelFunc
		persistCtx, cancel = context.WithTimeout(persistCtx, r.timeout)
		defer cancel()
	}

	log := r.logger.WithFields(logger.Fields{
		"session_id": result.SessionID,
		"matches":    len(result.Matches),
	})

	if err := r.store.SaveMatches(persistCtx, result.SessionID, result.Matches); err != nil {
		log.WithError(err).Error("Failed to record matches")
		return errors.PersistenceError(errors.CodeWriteFailed, result.SessionID, err).
			WithContext("matches", len(result.Matches))
	}

	result.Persisted = true
	log.Info("Recorded matches")
	return nil
}
