package cmd

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"bank-reconciliation-engine/internal/generator"
	"bank-reconciliation-engine/internal/models"
	"bank-reconciliation-engine/internal/parsers"
	"bank-reconciliation-engine/pkg/errors"
)

type generateOptions struct {
	outputDir string
	maxAmount string
	config    *generator.Config
}

func newGenerateCommand() *cobra.Command {
	opts := &generateOptions{config: generator.DefaultConfig()}

	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a synthetic statement and book CSV pair",
		Long: `Generate writes statements.csv and books.csv with a known share of
counterparts, date shifts, amount noise, malformed rows and unmatched book
entries. The same seed always produces the same files.

Examples:
  reconciler generate --output-dir ./data
  reconciler generate --output-dir ./large --count 10000 --extra-books 500 --seed 7`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(opts, cmd.OutOrStdout())
		},
	}

	c := opts.config
	flags := generateCmd.Flags()
	flags.StringVar(&opts.outputDir, "output-dir", ".", "directory for the generated files")
	flags.IntVar(&c.Count, "count", c.Count, "number of statement transactions")
	flags.Int64Var(&c.Seed, "seed", c.Seed, "random seed")
	flags.IntVar(&c.Days, "days", c.Days, "number of days the statements span")
	flags.IntVar(&c.ExtraBooks, "extra-books", c.ExtraBooks, "book transactions with no statement counterpart")
	flags.Float64Var(&c.MatchRatio, "match-ratio", c.MatchRatio, "fraction of statements with a book counterpart")
	flags.Float64Var(&c.DateShiftRatio, "date-shift-ratio", c.DateShiftRatio, "fraction of counterparts booked on a different day")
	flags.Float64Var(&c.AmountNoiseRatio, "amount-noise-ratio", c.AmountNoiseRatio, "fraction of counterparts with a few cents of difference")
	flags.Float64Var(&c.InvalidRatio, "invalid-ratio", c.InvalidRatio, "fraction of statements with a malformed amount")
	flags.StringVar(&opts.maxAmount, "max-amount", c.MaxAmount.String(), "largest generated amount")

	return generateCmd
}

func runGenerate(opts *generateOptions, out io.Writer) error {
	maxAmount, err := decimal.NewFromString(opts.maxAmount)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "max-amount", opts.maxAmount, err)
	}
	opts.config.MaxAmount = maxAmount

	if err := opts.config.Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "generate", opts.config.Count, err)
	}

	dataset, err := generator.Generate(opts.config)
	if err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "dataset generation", err)
	}

	statementsPath := filepath.Join(opts.outputDir, "statements.csv")
	booksPath := filepath.Join(opts.outputDir, "books.csv")

	if err := parsers.WriteFile(statementsPath, models.SideStatement, dataset.Statements); err != nil {
		return err
	}
	if err := parsers.WriteFile(booksPath, models.SideBook, dataset.Books); err != nil {
		return err
	}

	fmt.Fprintf(out, "Wrote %d statement transactions to %s\n", len(dataset.Statements), statementsPath)
	fmt.Fprintf(out, "Wrote %d book transactions to %s\n", len(dataset.Books), booksPath)
	fmt.Fprintf(out, "%d statements have a generated counterpart (seed %d)\n", len(dataset.Counterparts), opts.config.Seed)
	return nil
}
