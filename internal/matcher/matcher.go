package matcher

import (
	"context"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/iter"

	"bank-reconciliation-engine/internal/models"
	"bank-reconciliation-engine/pkg/errors"
	"bank-reconciliation-engine/pkg/logger"
)

// Engine runs the pure matching pipeline for one session at a time. An Engine
// holds no per-session state and may be shared between goroutines.
type Engine struct {
	config *MatchingConfig
	scorer Scorer
	solver Solver
	logger logger.Logger
}

// Option customizes an Engine
type Option func(*Engine)

// WithScorer replaces the default weighted scorer
func WithScorer(scorer Scorer) Option {
	return func(e *Engine) {
		if scorer != nil {
			e.scorer = scorer
		}
	}
}

// WithSolver replaces the solver selected by the configuration
func WithSolver(solver Solver) Option {
	return func(e *Engine) {
		if solver != nil {
			e.solver = solver
		}
	}
}

// WithLogger sets the logger used for pipeline diagnostics
func WithLogger(log logger.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.logger = log
		}
	}
}

// NewEngine validates the configuration and creates an engine. A nil config
// means DefaultMatchingConfig.
func NewEngine(config *MatchingConfig, opts ...Option) (*Engine, error) {
	if config == nil {
		config = DefaultMatchingConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	config = config.Clone()
	e := &Engine{
		config: config,
		scorer: NewWeightedScorer(),
		solver: NewSolver(config.Solver),
		logger: logger.GetGlobalLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.WithComponent("matcher")

	return e, nil
}

// Config returns a copy of the engine configuration
func (e *Engine) Config() *MatchingConfig {
	return e.config.Clone()
}

// Stats counts the work done in each pipeline stage
type Stats struct {
	CandidatesGenerated   int           `json:"candidatesGenerated"`
	PairsScored           int           `json:"pairsScored"`
	PairsAboveFloor       int           `json:"pairsAboveFloor"`
	NoCandidateStatements int           `json:"noCandidateStatements"`
	AmbiguousStatements   int           `json:"ambiguousStatements"`
	ProcessingTime        time.Duration `json:"processingTime"`
}

// Outcome is the result of matching before anything is recorded. Every input
// record appears exactly once across Accepted, the unmatched lists and Skipped.
type Outcome struct {
	Accepted            []*models.CandidatePair
	UnmatchedStatements []*models.StatementTransaction
	UnmatchedBooks      []*models.BookTransaction
	Skipped             []models.SkippedRecord
	Duplicates          []DuplicateGroup

	InputStatements int
	InputBooks      int
	Stats           Stats
}

// MeanScore returns the mean score of accepted pairs, or 0 when there are none
func (o *Outcome) MeanScore() float64 {
	if len(o.Accepted) == 0 {
		return 0
	}
	total := 0.0
	for _, pair := range o.Accepted {
		total += pair.Score
	}
	return total / float64(len(o.Accepted))
}

// Summary builds the aggregate view used by explainers
func (o *Outcome) Summary() *Summary {
	tiers := make(map[models.ConfidenceTier]int)
	for _, pair := range o.Accepted {
		tiers[pair.Tier]++
	}
	return &Summary{
		Statements:          o.InputStatements,
		Books:               o.InputBooks,
		Matched:             len(o.Accepted),
		UnmatchedStatements: len(o.UnmatchedStatements),
		UnmatchedBooks:      len(o.UnmatchedBooks),
		Skipped:             len(o.Skipped),
		Confidence:          o.MeanScore(),
		TierCounts:          tiers,
		Duplicates:          o.Duplicates,
		AmbiguousStatements: o.Stats.AmbiguousStatements,
	}
}

// CheckConservation verifies that no input record was lost or duplicated
func (o *Outcome) CheckConservation() error {
	accounted := 2*len(o.Accepted) + len(o.UnmatchedStatements) + len(o.UnmatchedBooks) + len(o.Skipped)
	if total := o.InputStatements + o.InputBooks; accounted != total {
		return fmt.Errorf("accounted for %d records but received %d", accounted, total)
	}

	statements := make(map[string]bool)
	books := make(map[string]bool)
	for _, pair := range o.Accepted {
		if statements[pair.Statement.ID] {
			return fmt.Errorf("statement %s matched more than once", pair.Statement.ID)
		}
		if books[pair.Book.ID] {
			return fmt.Errorf("book %s matched more than once", pair.Book.ID)
		}
		statements[pair.Statement.ID] = true
		books[pair.Book.ID] = true
	}
	return nil
}

// Match runs normalization, candidate generation, scoring and assignment.
// It performs no I/O. Cancellation is honored between stages and returns the
// context error wrapped as a cancelled reconciliation error.
func (e *Engine) Match(ctx context.Context, statements, books []models.RawTransaction) (*Outcome, error) {
	startTime := time.Now()
	log := e.logger.WithFields(logger.Fields{
		"statements": len(statements),
		"books":      len(books),
	})

	if err := stageCheck(ctx, "normalization"); err != nil {
		return nil, err
	}

	batch := NewNormalizer(e.config).NormalizeBatch(statements, books)
	outcome := &Outcome{
		Skipped:         batch.Skipped,
		InputStatements: len(statements),
		InputBooks:      len(books),
	}
	if len(batch.Skipped) > 0 {
		log.WithField("skipped", len(batch.Skipped)).Warn("Some records could not be normalized and were skipped")
	}

	if err := stageCheck(ctx, "candidate generation"); err != nil {
		return nil, err
	}

	index := NewBookIndex(batch.Books)
	var candidates []Candidate
	for i, stmt := range batch.Statements {
		found := index.Candidates(stmt, i, e.config)
		if len(found) == 0 {
			outcome.Stats.NoCandidateStatements++
			continue
		}
		candidates = append(candidates, found...)
	}
	outcome.Stats.CandidatesGenerated = len(candidates)

	log.WithFields(logger.Fields{
		"candidates":    len(candidates),
		"no_candidates": outcome.Stats.NoCandidateStatements,
	}).Debug("Generated candidates")

	if err := stageCheck(ctx, "scoring"); err != nil {
		return nil, err
	}

	scored := e.score(ctx, candidates)
	if err := stageCheck(ctx, "scoring"); err != nil {
		return nil, err
	}
	outcome.Stats.PairsScored = len(scored)

	accepted := make([]*models.CandidatePair, 0, len(scored))
	perStatement := make(map[int]int)
	for _, pair := range scored {
		if pair == nil || pair.Score < e.config.MinAcceptScore {
			continue
		}
		accepted = append(accepted, pair)
		perStatement[pair.StatementOrder]++
	}
	outcome.Stats.PairsAboveFloor = len(accepted)
	for _, n := range perStatement {
		if n > 1 {
			outcome.Stats.AmbiguousStatements++
		}
	}

	if err := stageCheck(ctx, "assignment"); err != nil {
		return nil, err
	}

	outcome.Accepted = e.solver.Solve(accepted)
	e.collectUnmatched(outcome, batch)
	outcome.Duplicates = append(DetectStatementDuplicates(batch.Statements), DetectBookDuplicates(batch.Books)...)
	outcome.Stats.ProcessingTime = time.Since(startTime)

	if err := outcome.CheckConservation(); err != nil {
		return nil, errors.InternalError(errors.CodeDataInconsistent, "matching", err)
	}

	log.WithFields(logger.Fields{
		"matched":              len(outcome.Accepted),
		"unmatched_statements": len(outcome.UnmatchedStatements),
		"unmatched_books":      len(outcome.UnmatchedBooks),
		"duration":             outcome.Stats.ProcessingTime.String(),
	}).Info("Matching completed")

	return outcome, nil
}

// score runs the scorer over all candidates concurrently. The result keeps
// candidate order, so the solver input is independent of scheduling.
func (e *Engine) score(ctx context.Context, candidates []Candidate) []*models.CandidatePair {
	if len(candidates) == 0 {
		return nil
	}

	tracker := logger.NewProgressTracker(logger.ProgressConfig{
		Operation: "scoring",
		Total:     int64(len(candidates)),
		Logger:    e.logger,
	})
	defer tracker.Complete()

	mapper := iter.Mapper[Candidate, *models.CandidatePair]{
		MaxGoroutines: e.config.EffectiveWorkers(),
	}
	return mapper.Map(candidates, func(c *Candidate) *models.CandidatePair {
		if ctx.Err() != nil {
			return nil
		}
		pair := e.scorer.Score(*c, e.config)
		tracker.Increment()
		return pair
	})
}

// collectUnmatched lists every normalized record not claimed by an accepted
// pair, in input order
func (e *Engine) collectUnmatched(outcome *Outcome, batch *NormalizedBatch) {
	matchedStatements := make(map[string]bool, len(outcome.Accepted))
	matchedBooks := make(map[string]bool, len(outcome.Accepted))
	for _, pair := range outcome.Accepted {
		matchedStatements[pair.Statement.ID] = true
		matchedBooks[pair.Book.ID] = true
	}

	outcome.UnmatchedStatements = make([]*models.StatementTransaction, 0)
	for _, stmt := range batch.Statements {
		if !matchedStatements[stmt.ID] {
			outcome.UnmatchedStatements = append(outcome.UnmatchedStatements, stmt)
		}
	}

	outcome.UnmatchedBooks = make([]*models.BookTransaction, 0)
	for _, book := range batch.Books {
		if !matchedBooks[book.ID] {
			outcome.UnmatchedBooks = append(outcome.UnmatchedBooks, book)
		}
	}
}

func stageCheck(ctx context.Context, stage string) error {
	if err := ctx.Err(); err != nil {
		return errors.ReconciliationError(errors.CodeCancelled, stage, err)
	}
	return nil
}
