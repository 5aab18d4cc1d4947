// Package reconciler runs reconciliation sessions end to end: it hands the
// session's records to the matching engine, builds the match records and
// insight summary, and persists the matches in one atomic store call.
//
// Example usage:
//
//	service, err := reconciler.NewService(store, reconciler.DefaultConfig())
//	session := reconciler.NewSession(orgID, statements, books)
//	result, err := service.Reconcile(ctx, session)
//	if errors.IsCategory(err, errors.CategoryPersistence) {
//		err = service.Retry(ctx, result)
//	}
package reconciler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bank-reconciliation-engine/internal/matcher"
	"bank-reconciliation-engine/internal/models"
	"bank-reconciliation-engine/pkg/errors"
	"bank-reconciliation-engine/pkg/logger"
)

// Config holds configuration options for the reconciliation service
type Config struct {
	// Matching is used for sessions that carry no configuration of their own
	Matching *matcher.MatchingConfig

	// PersistTimeout bounds the single store call of a session (0 = no limit)
	PersistTimeout time.Duration

	// DryRun builds results without calling the store
	DryRun bool
}

// DefaultConfig returns a default configuration for the reconciliation service
func DefaultConfig() *Config {
	return &Config{
		Matching:       matcher.DefaultMatchingConfig(),
		PersistTimeout: 30 * time.Second,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.PersistTimeout < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "persist_timeout", c.PersistTimeout.String(),
			fmt.Errorf("timeout cannot be negative"))
	}
	if c.Matching != nil {
		return c.Matching.Validate()
	}
	return nil
}

// Progress describes how far a session has got
type Progress struct {
	SessionID       string        `json:"session_id"`
	TotalSteps      int           `json:"total_steps"`
	CompletedSteps  int           `json:"completed_steps"`
	CurrentStep     string        `json:"current_step"`
	PercentComplete float64       `json:"percent_complete"`
	StartTime       time.Time     `json:"start_time"`
	ElapsedTime     time.Duration `json:"elapsed_time"`
	MatchesFound    int           `json:"matches_found"`
}

// ProgressCallback is called after each step of a session
type ProgressCallback func(*Progress)

const totalSteps = 4

// Service reconciles sessions against a match store
type Service struct {
	store     MatchStore
	explainer matcher.Explainer
	scorer    matcher.Scorer
	config    *Config
	logger    logger.Logger

	callbackMu sync.RWMutex
	callbacks  []ProgressCallback
}

// ServiceOption customizes a Service
type ServiceOption func(*Service)

// WithExplainer replaces the template explainer
func WithExplainer(explainer matcher.Explainer) ServiceOption {
	return func(s *Service) { s.explainer = explainer }
}

// WithScorer replaces the engine's weighted scorer
func WithScorer(scorer matcher.Scorer) ServiceOption {
	return func(s *Service) { s.scorer = scorer }
}

// WithLogger sets the service logger
func WithLogger(log logger.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.logger = log
		}
	}
}

// NewService creates a reconciliation service
func NewService(store MatchStore, config *Config, opts ...ServiceOption) (*Service, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if store == nil && !config.DryRun {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "match_store", nil,
			fmt.Errorf("a match store is required unless running dry")).
			WithSuggestion("Configure a database URL or use --dry-run")
	}

	s := &Service{
		store:  store,
		config: config,
		logger: logger.GetGlobalLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("reconciler")

	return s, nil
}

// AddProgressCallback registers a callback invoked after each session step
func (s *Service) AddProgressCallback(callback ProgressCallback) {
	s.callbackMu.Lock()
	defer s.callbackMu.Unlock()
	s.callbacks = append(s.callbacks, callback)
}

// Reconcile matches the session's records and persists the accepted matches.
//
// Cancelling ctx before persistence starts returns a cancelled error and
// writes nothing. On a persistence failure both the computed result and the
// error are returned so the caller can Retry without recomputation.
func (s *Service) Reconcile(ctx context.Context, session *Session) (*Result, error) {
	if session == nil {
		return nil, errors.InputError(errors.CodeMissingField, "session", nil, nil)
	}
	if err := session.Validate(); err != nil {
		return nil, err
	}

	progress := s.startProgress(session.ID)
	log := s.logger.WithFields(logger.Fields{
		"session_id":      session.ID,
		"organization_id": session.OrganizationID,
	})
	opLog := logger.NewOperationLogger("reconcile", log)

	config := session.Config
	if config == nil {
		config = s.config.Matching
	}

	opLog.Step("Preparing matching engine", nil)
	engine, err := matcher.NewEngine(config, matcher.WithScorer(s.scorer), matcher.WithLogger(log))
	if err != nil {
		opLog.Error(err, "Invalid matching configuration")
		return nil, err
	}
	s.advance(progress, "Preparing matching engine", 0)

	opLog.Step("Matching transactions", logger.Fields{
		"statements": len(session.Statements),
		"books":      len(session.Books),
	})
	outcome, err := engine.Match(ctx, session.Statements, session.Books)
	if err != nil {
		opLog.Error(err, "Matching failed")
		return nil, err
	}
	s.advance(progress, "Matching transactions", len(outcome.Accepted))

	recorder := NewRecorder(s.store, s.explainer, s.config.PersistTimeout, log)
	result := recorder.Build(ctx, session, outcome)
	s.advance(progress, "Building match records", len(result.Matches))

	if err := ctx.Err(); err != nil {
		err = errors.ReconciliationError(errors.CodeCancelled, "recording", err)
		opLog.Error(err, "Session cancelled before recording")
		return nil, err
	}

	if s.config.DryRun {
		log.Info("Dry run, matches not recorded")
	} else if err := recorder.Record(ctx, result); err != nil {
		opLog.Error(err, "Recording failed")
		return result, err
	}
	s.advance(progress, "Completed", len(result.Matches))

	opLog.Success(fmt.Sprintf("Matched %d of %d statement transactions", len(result.Matches), result.TotalStatements))
	return result, nil
}

// Retry persists a result whose earlier Reconcile call failed in the store
func (s *Service) Retry(ctx context.Context, result *Result) error {
	if result == nil {
		return errors.InputError(errors.CodeMissingField, "result", nil, nil)
	}
	if result.Persisted {
		return nil
	}
	if s.config.DryRun {
		return nil
	}
	log := s.logger.WithField("session_id", result.SessionID)
	return NewRecorder(s.store, s.explainer, s.config.PersistTimeout, log).Record(ctx, result)
}

// ListMatches returns the recorded matches of a session
func (s *Service) ListMatches(ctx context.Context, sessionID string) ([]*models.Match, error) {
	if s.store == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "match_store", nil,
			fmt.Errorf("no match store configured"))
	}
	matches, err := s.store.ListMatches(ctx, sessionID)
	if err != nil {
		return nil, errors.PersistenceError(errors.CodeReadFailed, sessionID, err)
	}
	return matches, nil
}

func (s *Service) startProgress(sessionID string) *Progress {
	return &Progress{
		SessionID:  sessionID,
		TotalSteps: totalSteps,
		StartTime:  time.Now(),
	}
}

func (s *Service) advance(progress *Progress, step string, matches int) {
	progress.CompletedSteps++
	progress.CurrentStep = step
	progress.MatchesFound = matches
	progress.ElapsedTime = time.Since(progress.StartTime)
	progress.PercentComplete = float64(progress.CompletedSteps) / float64(progress.TotalSteps) * 100

	s.callbackMu.RLock()
	defer s.callbackMu.RUnlock()
	for _, callback := range s.callbacks {
		snapshot := *progress
		callback(&snapshot)
	}
}
