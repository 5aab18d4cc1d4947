package reconciler

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bank-reconciliation-engine/internal/generator"
	"bank-reconciliation-engine/internal/matcher"
	"bank-reconciliation-engine/internal/models"
	"bank-reconciliation-engine/internal/store"
	"bank-reconciliation-engine/pkg/errors"
	"bank-reconciliation-engine/pkg/logger"
)

func exactSession() *Session {
	return NewSession("org-1",
		[]models.RawTransaction{
			{ID: "S1", Amount: "100.00", Date: "2025-01-10", Description: "ACME INV 42", Reference: "INV-42"},
			{ID: "S2", Amount: "250.00", Date: "2025-01-11", Description: "Payroll"},
			{ID: "S3", Amount: "oops", Date: "2025-01-11"},
		},
		[]models.RawTransaction{
			{ID: "B1", Amount: "100.00", Date: "2025-01-10", Description: "Acme Invoice 42", Reference: "INV-42", SourceID: "invoice-42"},
			{ID: "B2", Amount: "75.00", Date: "2025-01-12", Description: "Office rent"},
		},
	)
}

func newTestService(t *testing.T, matchStore MatchStore, config *Config, opts ...ServiceOption) *Service {
	t.Helper()
	opts = append([]ServiceOption{WithLogger(logger.Discard())}, opts...)
	service, err := NewService(matchStore, config, opts...)
	require.NoError(t, err)
	return service
}

func TestReconcileRecordsMatches(t *testing.T) {
	matchStore := store.NewMemoryStore()
	service := newTestService(t, matchStore, nil)
	session := exactSession()

	result, err := service.Reconcile(context.Background(), session)
	require.NoError(t, err)

	require.Len(t, result.Matches, 1)
	m := result.Matches[0]
	_, parseErr := uuid.Parse(m.ID)
	assert.NoError(t, parseErr)
	assert.Equal(t, session.ID, m.SessionID)
	assert.Equal(t, "S1", m.Statement.ID)
	assert.Equal(t, "B1", m.Book.ID)
	assert.Equal(t, "invoice-42", m.Book.SourceID)
	assert.Equal(t, models.StatusMatched, m.Status)
	assert.Equal(t, models.TierHigh, m.Confidence)
	assert.Equal(t, 97, m.ConfidenceScore)
	assert.Contains(t, m.MatchReason, "high confidence (97%)")
	assert.Contains(t, m.MatchReason, "reference INV-42 matches")

	assert.Len(t, result.UnmatchedStatements, 1)
	assert.Len(t, result.UnmatchedBooks, 1)
	assert.Len(t, result.Skipped, 1)
	assert.InDelta(t, 0.9733, result.Confidence, 1e-3)
	assert.Contains(t, result.Insights, "Matched 1 of 3 statement transactions")
	assert.True(t, result.Persisted)
	assert.NoError(t, result.CheckConservation())

	assert.Equal(t, 1, matchStore.Saves())
	stored, err := service.ListMatches(context.Background(), session.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, m.ID, stored[0].ID)
}

func TestReconcileCallsStoreOnceWithoutMatches(t *testing.T) {
	matchStore := store.NewMemoryStore()
	service := newTestService(t, matchStore, nil)

	result, err := service.Reconcile(context.Background(), NewSession("org-1",
		[]models.RawTransaction{{ID: "S1", Amount: "100.00", Date: "2025-01-10"}},
		[]models.RawTransaction{{ID: "B1", Amount: "105.00", Date: "2025-01-10"}},
	))
	require.NoError(t, err)

	assert.Empty(t, result.Matches)
	assert.Equal(t, 0.0, result.Confidence)
	assert.Equal(t, 1, matchStore.Saves())
}

func TestReconcilePersistenceFailureReturnsResult(t *testing.T) {
	matchStore := store.NewMemoryStore()
	matchStore.FailNext = 1
	service := newTestService(t, matchStore, nil)
	session := exactSession()

	result, err := service.Reconcile(context.Background(), session)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryPersistence))
	require.NotNil(t, result)
	assert.False(t, result.Persisted)
	require.Len(t, result.Matches, 1)

	stored, err := service.ListMatches(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Empty(t, stored, "a failed write must not leave matches behind")

	require.NoError(t, service.Retry(context.Background(), result))
	assert.True(t, result.Persisted)

	stored, err = service.ListMatches(context.Background(), session.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, result.Matches[0].ID, stored[0].ID)

	// already persisted: no second write
	require.NoError(t, service.Retry(context.Background(), result))
	assert.Equal(t, 2, matchStore.Saves())
}

func TestReconcileCancelledWritesNothing(t *testing.T) {
	matchStore := store.NewMemoryStore()
	service := newTestService(t, matchStore, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := service.Reconcile(ctx, exactSession())
	assert.Nil(t, result)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, matchStore.Saves())
}

func TestReconcileInvalidConfigWritesNothing(t *testing.T) {
	matchStore := store.NewMemoryStore()
	service := newTestService(t, matchStore, nil)

	session := exactSession()
	session.Config = matcher.DefaultMatchingConfig()
	session.Config.Weights.Amount = 0.9

	result, err := service.Reconcile(context.Background(), session)
	assert.Nil(t, result)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
	assert.Equal(t, 0, matchStore.Saves())
}

func TestReconcileRequiresSessionID(t *testing.T) {
	service := newTestService(t, store.NewMemoryStore(), nil)

	session := exactSession()
	session.ID = " "

	_, err := service.Reconcile(context.Background(), session)
	assert.True(t, errors.IsCategory(err, errors.CategoryInput))
}

func TestReconcileDryRun(t *testing.T) {
	config := DefaultConfig()
	config.DryRun = true
	service := newTestService(t, nil, config)

	result, err := service.Reconcile(context.Background(), exactSession())
	require.NoError(t, err)
	assert.Len(t, result.Matches, 1)
	assert.False(t, result.Persisted)
}

func TestNewServiceRequiresStore(t *testing.T) {
	_, err := NewService(nil, DefaultConfig())
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))

	config := DefaultConfig()
	config.PersistTimeout = -time.Second
	_, err = NewService(store.NewMemoryStore(), config)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

type failingExplainer struct{}

func (failingExplainer) ExplainMatch(context.Context, *models.CandidatePair) (string, error) {
	return "", fmt.Errorf("text generator unavailable")
}

func (failingExplainer) Summarize(context.Context, *matcher.Summary) (string, error) {
	return "", fmt.Errorf("text generator unavailable")
}

func TestReconcileExplainerFailureFallsBack(t *testing.T) {
	service := newTestService(t, store.NewMemoryStore(), nil, WithExplainer(failingExplainer{}))

	result, err := service.Reconcile(context.Background(), exactSession())
	require.NoError(t, err)

	require.Len(t, result.Matches, 1)
	assert.Equal(t, "amount and date match exactly; reference INV-42 matches; description similarity 73%",
		result.Matches[0].MatchReason)
	assert.Contains(t, result.Insights, "Matched 1 of 3")
}

func TestReconcileProgressCallbacks(t *testing.T) {
	service := newTestService(t, store.NewMemoryStore(), nil)

	var steps []string
	var last *Progress
	service.AddProgressCallback(func(p *Progress) {
		steps = append(steps, p.CurrentStep)
		last = p
	})

	_, err := service.Reconcile(context.Background(), exactSession())
	require.NoError(t, err)

	assert.Equal(t, []string{"Preparing matching engine", "Matching transactions", "Building match records", "Completed"}, steps)
	require.NotNil(t, last)
	assert.Equal(t, 100.0, last.PercentComplete)
	assert.Equal(t, 1, last.MatchesFound)
}

func TestReconcileGeneratedSessions(t *testing.T) {
	matchStore := store.NewMemoryStore()
	service := newTestService(t, matchStore, nil)

	for seed := int64(1); seed <= 3; seed++ {
		config := generator.DefaultConfig()
		config.Seed = seed
		dataset, err := generator.Generate(config)
		require.NoError(t, err)

		session := NewSession("org-1", dataset.Statements, dataset.Books)
		result, err := service.Reconcile(context.Background(), session)
		require.NoError(t, err)
		assert.NoError(t, result.CheckConservation())

		for _, m := range result.Matches {
			assert.GreaterOrEqual(t, m.ConfidenceScore, 40)
			assert.LessOrEqual(t, m.ConfidenceScore, 100)
		}

		stored, err := service.ListMatches(context.Background(), session.ID)
		require.NoError(t, err)
		assert.Len(t, stored, len(result.Matches))
	}
}

func TestResultJSONFieldNames(t *testing.T) {
	service := newTestService(t, store.NewMemoryStore(), nil)

	result, err := service.Reconcile(context.Background(), exactSession())
	require.NoError(t, err)

	data, err := json.Marshal(result)
	require.NoError(t, err)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &fields))
	for _, key := range []string{"matches", "unmatchedStatements", "unmatchedBooks", "skipped", "confidence", "insights"} {
		assert.Contains(t, fields, key)
	}
}

func TestResultCheckConservation(t *testing.T) {
	result := &Result{
		SessionID:       "s",
		TotalStatements: 1,
		TotalBooks:      1,
		Matches: []*models.Match{
			{Statement: models.TransactionSnapshot{ID: "S1"}, Book: models.TransactionSnapshot{ID: "B1"}},
		},
	}
	assert.NoError(t, result.CheckConservation())

	result.TotalBooks = 2
	assert.Error(t, result.CheckConservation())
}
