// Package matcher implements the reconciliation matching engine.
//
// The engine is a pure, deterministic pipeline over one reconciliation session:
//
//  1. Normalization of raw statement and book records into comparable values
//  2. Candidate generation using an amount-sorted index and a date window
//  3. Pairwise scoring across amount, date, reference and description
//  4. One-to-one assignment of the scored pairs
//
// Nothing in this package performs I/O. Persisting the outcome is the job of
// the reconciler package.
//
// Example usage:
//
//	config := matcher.DefaultMatchingConfig()
//	config.DateWindowDays = 3
//	config.AmountTolerance = decimal.RequireFromString("0.05")
//
//	engine, err := matcher.NewEngine(config, matcher.WithLogger(log))
//	outcome, err := engine.Match(ctx, statements, books)
package matcher

import (
	"fmt"
	"math"
	"runtime"

	"github.com/shopspring/decimal"

	"bank-reconciliation-engine/internal/models"
	"bank-reconciliation-engine/pkg/errors"
)

// weightSumTolerance is how far the four weights may drift from 1.0
const weightSumTolerance = 1e-6

// exactScoreEpsilon absorbs floating point error when detecting a perfect score
const exactScoreEpsilon = 1e-9

// SolverKind selects the assignment algorithm
type SolverKind string

const (
	// SolverGreedy ranks all pairs and claims them in order.
	SolverGreedy SolverKind = "greedy"

	// SolverOptimal computes the assignment with the largest total score.
	SolverOptimal SolverKind = "optimal"

	// SolverMaximal claims greedily, then reassigns along augmenting paths
	// until no further statement can be paired. It maximizes the number of
	// matches, possibly at the cost of total score.
	SolverMaximal SolverKind = "maximal"
)

// MaxAmountPrecision is the largest AmountPrecision the match store can hold
const MaxAmountPrecision = 4

// String returns the string representation of SolverKind
func (s SolverKind) String() string {
	return string(s)
}

// IsValid reports whether the solver kind is known
func (s SolverKind) IsValid() bool {
	return s == SolverGreedy || s == SolverOptimal || s == SolverMaximal
}

// MatchingConfig holds every tunable of the matching engine.
//
// All numeric thresholds are defaults, not business law; they can be
// overridden through the CLI config file, environment or flags.
type MatchingConfig struct {
	// AmountTolerance is the absolute amount difference still considered a candidate
	AmountTolerance decimal.Decimal `json:"amount_tolerance" mapstructure:"-"`

	// AmountTolerancePercent widens the tolerance to a percentage of the statement amount (0.0 to 100.0)
	AmountTolerancePercent float64 `json:"amount_tolerance_percent" mapstructure:"amount_tolerance_percent"`

	// DateWindowDays is the maximum number of calendar days between statement and book dates
	DateWindowDays int `json:"date_window_days" mapstructure:"date_window_days"`

	// MinAcceptScore discards pairs scoring below it before assignment
	MinAcceptScore float64 `json:"min_accept_score" mapstructure:"min_accept_score"`

	// HighThreshold and MediumThreshold map composite scores onto tiers
	HighThreshold   float64 `json:"high_threshold" mapstructure:"high_threshold"`
	MediumThreshold float64 `json:"medium_threshold" mapstructure:"medium_threshold"`

	// AmountPrecision is the number of minor-unit decimal places amounts are rounded to
	AmountPrecision int `json:"amount_precision" mapstructure:"amount_precision"`

	// MaxCandidatesPerStatement keeps only the closest candidates per statement (0 = unlimited)
	MaxCandidatesPerStatement int `json:"max_candidates_per_statement" mapstructure:"max_candidates_per_statement"`

	// Workers bounds the goroutines used for scoring (0 = one per CPU)
	Workers int `json:"workers" mapstructure:"workers"`

	// Solver selects the assignment algorithm
	Solver SolverKind `json:"solver" mapstructure:"solver"`

	Weights MatchingWeights `json:"weights" mapstructure:"weights"`
}

// MatchingWeights defines the relative contribution of each dimension.
// The ordinal priority amount >= date >= reference >= description must hold.
type MatchingWeights struct {
	Amount      float64 `json:"amount" mapstructure:"amount"`
	Date        float64 `json:"date" mapstructure:"date"`
	Reference   float64 `json:"reference" mapstructure:"reference"`
	Description float64 `json:"description" mapstructure:"description"`
}

// DefaultMatchingWeights returns the default dimension weights
func DefaultMatchingWeights() MatchingWeights {
	return MatchingWeights{
		Amount:      0.40,
		Date:        0.30,
		Reference:   0.20,
		Description: 0.10,
	}
}

// DefaultMatchingConfig returns a configuration with sensible defaults:
// exact amounts only, a five day clearing window and a 0.4 acceptance floor.
func DefaultMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		AmountTolerance:           decimal.Zero,
		AmountTolerancePercent:    0,
		DateWindowDays:            5,
		MinAcceptScore:            0.4,
		HighThreshold:             0.85,
		MediumThreshold:           0.6,
		AmountPrecision:           2,
		MaxCandidatesPerStatement: 0,
		Workers:                   0,
		Solver:                    SolverGreedy,
		Weights:                   DefaultMatchingWeights(),
	}
}

// StrictMatchingConfig returns a configuration for same-day, exact-amount matching
func StrictMatchingConfig() *MatchingConfig {
	config := DefaultMatchingConfig()
	config.DateWindowDays = 1
	config.MinAcceptScore = 0.7
	config.MaxCandidatesPerStatement = 5
	config.Weights = MatchingWeights{
		Amount:      0.45,
		Date:        0.30,
		Reference:   0.15,
		Description: 0.10,
	}
	return config
}

// RelaxedMatchingConfig returns a configuration for exploratory matching with
// rounding and currency-conversion tolerance
func RelaxedMatchingConfig() *MatchingConfig {
	config := DefaultMatchingConfig()
	config.AmountTolerance = decimal.RequireFromString("1.00")
	config.AmountTolerancePercent = 1.0
	config.DateWindowDays = 7
	config.MinAcceptScore = 0.3
	config.MaxCandidatesPerStatement = 20
	return config
}

// Validate checks the configuration. Every failure is a configuration error
// and is fatal to the run before any scoring begins.
func (mc *MatchingConfig) Validate() error {
	if mc.AmountTolerance.IsNegative() {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "amount_tolerance", mc.AmountTolerance.String(),
			fmt.Errorf("tolerance cannot be negative"))
	}

	if mc.AmountTolerancePercent < 0.0 || mc.AmountTolerancePercent > 100.0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "amount_tolerance_percent", mc.AmountTolerancePercent,
			fmt.Errorf("must be between 0.0 and 100.0"))
	}

	if mc.DateWindowDays < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "date_window_days", mc.DateWindowDays,
			fmt.Errorf("date window cannot be negative"))
	}

	if mc.MinAcceptScore < 0.0 || mc.MinAcceptScore > 1.0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "min_accept_score", mc.MinAcceptScore,
			fmt.Errorf("must be between 0.0 and 1.0"))
	}

	if mc.MediumThreshold <= 0.0 || mc.HighThreshold > 1.0 || mc.MediumThreshold > mc.HighThreshold {
		return errors.ConfigurationError(errors.CodeConfigConflict, "high_threshold/medium_threshold",
			fmt.Sprintf("%.2f/%.2f", mc.HighThreshold, mc.MediumThreshold),
			fmt.Errorf("thresholds must satisfy 0 < medium <= high <= 1"))
	}

	if mc.AmountPrecision < 0 || mc.AmountPrecision > MaxAmountPrecision {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "amount_precision", mc.AmountPrecision,
			fmt.Errorf("must be between 0 and %d", MaxAmountPrecision))
	}

	if mc.MaxCandidatesPerStatement < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "max_candidates_per_statement", mc.MaxCandidatesPerStatement,
			fmt.Errorf("cannot be negative"))
	}

	if mc.Workers < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "workers", mc.Workers,
			fmt.Errorf("cannot be negative"))
	}

	if !mc.Solver.IsValid() {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "solver", mc.Solver,
			fmt.Errorf("must be %q, %q or %q", SolverGreedy, SolverOptimal, SolverMaximal))
	}

	return mc.Weights.Validate()
}

// Validate checks that each weight is in [0,1], that they sum to 1.0 and that
// the ordinal priority between dimensions holds
func (mw *MatchingWeights) Validate() error {
	weights := []struct {
		name  string
		value float64
	}{
		{"weights.amount", mw.Amount},
		{"weights.date", mw.Date},
		{"weights.reference", mw.Reference},
		{"weights.description", mw.Description},
	}

	for _, w := range weights {
		if w.value < 0.0 || w.value > 1.0 || math.IsNaN(w.value) {
			return errors.ConfigurationError(errors.CodeInvalidConfig, w.name, w.value,
				fmt.Errorf("weight must be between 0.0 and 1.0"))
		}
	}

	total := mw.Sum()
	if math.Abs(total-1.0) > weightSumTolerance {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "weights", total,
			fmt.Errorf("weights must sum to 1.0, got %f", total))
	}

	if mw.Amount < mw.Date || mw.Date < mw.Reference || mw.Reference < mw.Description {
		return errors.ConfigurationError(errors.CodeConfigConflict, "weights", mw.String(),
			fmt.Errorf("weights must satisfy amount >= date >= reference >= description"))
	}

	return nil
}

// Sum returns the total of all four weights
func (mw *MatchingWeights) Sum() float64 {
	return mw.Amount + mw.Date + mw.Reference + mw.Description
}

// String returns a compact representation of the weights
func (mw *MatchingWeights) String() string {
	return fmt.Sprintf("amount=%.2f date=%.2f reference=%.2f description=%.2f",
		mw.Amount, mw.Date, mw.Reference, mw.Description)
}

// Clone creates a deep copy of the matching configuration
func (mc *MatchingConfig) Clone() *MatchingConfig {
	if mc == nil {
		return nil
	}

	clone := *mc
	clone.AmountTolerance = mc.AmountTolerance.Copy()
	return &clone
}

// ToleranceFor returns the absolute amount tolerance that applies to a
// statement amount: the larger of the absolute and percentage bands.
func (mc *MatchingConfig) ToleranceFor(amount decimal.Decimal) decimal.Decimal {
	tolerance := mc.AmountTolerance
	if mc.AmountTolerancePercent > 0 {
		percentage := decimal.NewFromFloat(mc.AmountTolerancePercent / 100.0)
		band := amount.Abs().Mul(percentage).Round(int32(mc.AmountPrecision))
		if band.GreaterThan(tolerance) {
			tolerance = band
		}
	}
	return tolerance
}

// EffectiveWorkers returns the scoring concurrency to use
func (mc *MatchingConfig) EffectiveWorkers() int {
	if mc.Workers > 0 {
		return mc.Workers
	}
	return runtime.NumCPU()
}

// TierFor maps a composite score onto a confidence tier
func (mc *MatchingConfig) TierFor(score float64) models.ConfidenceTier {
	switch {
	case score >= 1.0-exactScoreEpsilon:
		return models.TierExact
	case score >= mc.HighThreshold:
		return models.TierHigh
	case score >= mc.MediumThreshold:
		return models.TierMedium
	default:
		return models.TierLow
	}
}

// String returns a human-readable description of the configuration
func (mc *MatchingConfig) String() string {
	return fmt.Sprintf("MatchingConfig{AmountTolerance: %s, TolerancePercent: %.2f%%, DateWindow: %d days, MinAccept: %.2f, Solver: %s}",
		mc.AmountTolerance.String(), mc.AmountTolerancePercent, mc.DateWindowDays, mc.MinAcceptScore, mc.Solver)
}
