// Package generator produces synthetic, reproducible statement and book
// datasets for demos, load tests and property tests.
package generator

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"bank-reconciliation-engine/internal/models"
)

// Config controls dataset generation
type Config struct {
	// Count is the number of statement lines to generate
	Count int `json:"count"`

	// Seed makes generation reproducible
	Seed int64 `json:"seed"`

	StartDate time.Time       `json:"start_date"`
	Days      int             `json:"days"`
	MinAmount decimal.Decimal `json:"min_amount"`
	MaxAmount decimal.Decimal `json:"max_amount"`

	// MatchRatio is the fraction of statements that get a book counterpart (0.0 to 1.0)
	MatchRatio float64 `json:"match_ratio"`

	// DateShiftRatio is the fraction of counterparts booked a few days off the statement date
	DateShiftRatio float64 `json:"date_shift_ratio"`

	// AmountNoiseRatio is the fraction of counterparts whose amount is off by a few cents
	AmountNoiseRatio float64 `json:"amount_noise_ratio"`

	// InvalidRatio is the fraction of statements with an unparseable amount
	InvalidRatio float64 `json:"invalid_ratio"`

	// ExtraBooks adds book entries with no statement counterpart
	ExtraBooks int `json:"extra_books"`
}

// DefaultConfig returns a small, mostly matching dataset configuration
func DefaultConfig() *Config {
	return &Config{
		Count:            100,
		Seed:             1,
		StartDate:        time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Days:             60,
		MinAmount:        decimal.RequireFromString("1.00"),
		MaxAmount:        decimal.RequireFromString("5000.00"),
		MatchRatio:       0.8,
		DateShiftRatio:   0.2,
		AmountNoiseRatio: 0.05,
		InvalidRatio:     0.02,
		ExtraBooks:       10,
	}
}

// Validate checks the generator configuration
func (c *Config) Validate() error {
	if c.Count < 0 || c.ExtraBooks < 0 {
		return fmt.Errorf("count and extra books cannot be negative")
	}
	if c.Days <= 0 {
		return fmt.Errorf("days must be positive: %d", c.Days)
	}
	if c.MaxAmount.LessThan(c.MinAmount) {
		return fmt.Errorf("max amount %s is below min amount %s", c.MaxAmount, c.MinAmount)
	}
	for name, ratio := range map[string]float64{
		"match_ratio":        c.MatchRatio,
		"date_shift_ratio":   c.DateShiftRatio,
		"amount_noise_ratio": c.AmountNoiseRatio,
		"invalid_ratio":      c.InvalidRatio,
	} {
		if ratio < 0 || ratio > 1 {
			return fmt.Errorf("%s must be between 0.0 and 1.0: %f", name, ratio)
		}
	}
	return nil
}

// Dataset is a generated pair of input lists
type Dataset struct {
	Statements []models.RawTransaction
	Books      []models.RawTransaction

	// Counterparts maps statement ids to the book id generated for them
	Counterparts map[string]string
}

var descriptions = []string{
	"ACME Corp Invoice", "Globex Payment", "Initech Services", "Umbrella Supplies",
	"Stark Industries", "Wayne Enterprises", "Payroll Transfer", "Office Rent",
	"Cloud Hosting", "Card Settlement", "Utility Bill", "Consulting Fee",
}

// Generate builds a dataset. The same config always yields the same dataset.
func Generate(config *Config) (*Dataset, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(config.Seed))
	dataset := &Dataset{Counterparts: make(map[string]string)}
	bookSeq := 0

	for i := 0; i < config.Count; i++ {
		amount := randomAmount(rng, config)
		date := config.StartDate.AddDate(0, 0, rng.Intn(config.Days))
		desc := descriptions[rng.Intn(len(descriptions))]
		ref := ""
		if rng.Float64() < 0.6 {
			ref = fmt.Sprintf("INV-%05d", rng.Intn(100000))
		}

		stmtID := fmt.Sprintf("STMT%06d", i+1)
		stmt := models.RawTransaction{
			ID:          stmtID,
			Amount:      amount.StringFixed(2),
			Date:        date.Format(models.DateLayout),
			Description: fmt.Sprintf("%s %d", desc, i+1),
			Reference:   ref,
		}
		if rng.Float64() < config.InvalidRatio {
			stmt.Amount = "N/A"
		}
		dataset.Statements = append(dataset.Statements, stmt)

		if rng.Float64() >= config.MatchRatio {
			continue
		}

		bookDate := date
		if rng.Float64() < config.DateShiftRatio {
			bookDate = date.AddDate(0, 0, rng.Intn(3)+1)
		}
		bookAmount := amount
		if rng.Float64() < config.AmountNoiseRatio {
			bookAmount = amount.Add(decimal.New(int64(rng.Intn(9)+1), -2))
		}

		bookSeq++
		bookID := fmt.Sprintf("BOOK%06d", bookSeq)
		dataset.Books = append(dataset.Books, models.RawTransaction{
			ID:          bookID,
			SourceID:    fmt.Sprintf("invoice-%d", bookSeq),
			Amount:      bookAmount.StringFixed(2),
			Date:        bookDate.Format(models.DateLayout),
			Description: fmt.Sprintf("%s #%d", desc, i+1),
			Reference:   ref,
		})
		dataset.Counterparts[stmtID] = bookID
	}

	for i := 0; i < config.ExtraBooks; i++ {
		bookSeq++
		dataset.Books = append(dataset.Books, models.RawTransaction{
			ID:          fmt.Sprintf("BOOK%06d", bookSeq),
			SourceID:    fmt.Sprintf("expense-%d", bookSeq),
			Amount:      randomAmount(rng, config).StringFixed(2),
			Date:        config.StartDate.AddDate(0, 0, rng.Intn(config.Days)).Format(models.DateLayout),
			Description: descriptions[rng.Intn(len(descriptions))],
		})
	}

	// books arrive in ledger order, not statement order
	rng.Shuffle(len(dataset.Books), func(i, j int) {
		dataset.Books[i], dataset.Books[j] = dataset.Books[j], dataset.Books[i]
	})

	return dataset, nil
}

func randomAmount(rng *rand.Rand, config *Config) decimal.Decimal {
	span := config.MaxAmount.Sub(config.MinAmount)
	amount := decimal.NewFromFloat(rng.Float64()).Mul(span).Add(config.MinAmount).Round(2)
	if rng.Float64() < 0.4 {
		amount = amount.Neg()
	}
	return amount
}
