// Package reporter renders reconciliation results for people and for other
// programs.
//
// Supported output formats:
//   - Console: tabular output for terminal display
//   - JSON: the full result payload for programmatic consumption
//   - CSV: one row per matched, unmatched or skipped record
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(&reporter.ReportConfig{Format: reporter.FormatJSON})
//	err = generator.GenerateReport(result, os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"bank-reconciliation-engine/internal/models"
	"bank-reconciliation-engine/internal/reconciler"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	// Detail level options
	IncludeMatches    bool `json:"include_matches"`
	IncludeUnmatched  bool `json:"include_unmatched"`
	IncludeSkipped    bool `json:"include_skipped"`
	IncludeDuplicates bool `json:"include_duplicates"`
	IncludeStats      bool `json:"include_stats"`

	// MaxListItems limits console lists; 0 prints everything
	MaxListItems int `json:"max_list_items"`

	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`

	SortByAmount bool `json:"sort_by_amount"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:            FormatConsole,
		IncludeMatches:    true,
		IncludeUnmatched:  true,
		IncludeSkipped:    true,
		IncludeDuplicates: true,
		IncludeStats:      true,
		MaxListItems:      20,
		CSVDelimiter:      ',',
		CSVHeaders:        true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	if c.MaxListItems < 0 {
		return fmt.Errorf("max list items cannot be negative, got %d", c.MaxListItems)
	}
	if c.Format == FormatCSV && (c.CSVDelimiter == 0 || c.CSVDelimiter == '"' || c.CSVDelimiter == '\n') {
		return fmt.Errorf("invalid CSV delimiter %q", c.CSVDelimiter)
	}
	return nil
}

// ReportGenerator generates reconciliation reports in various formats
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}
	return &ReportGenerator{config: config}, nil
}

// GenerateReport writes a report of result to writer
func (rg *ReportGenerator) GenerateReport(result *reconciler.Result, writer io.Writer) error {
	if result == nil {
		return fmt.Errorf("reconciliation result cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(result, writer)
	case FormatJSON:
		return rg.generateJSONReport(result, writer)
	case FormatCSV:
		return rg.generateCSVReport(result, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// GetConfiguration returns the current configuration
func (rg *ReportGenerator) GetConfiguration() *ReportConfig {
	return rg.config
}

func (rg *ReportGenerator) generateConsoleReport(result *reconciler.Result, writer io.Writer) error {
	ew := &errWriter{w: writer}

	ew.printf("RECONCILIATION REPORT\n")
	ew.printf("Session:   %s\n", result.SessionID)
	if result.OrganizationID != "" {
		ew.printf("Org:       %s\n", result.OrganizationID)
	}
	ew.printf("Generated: %s\n", result.ProcessedAt.Format(time.RFC3339))
	if !result.Persisted {
		ew.printf("Persisted: no\n")
	}
	ew.printf("\n")

	ew.printf("=== SUMMARY ===\n")
	rg.printSummaryTable(result, ew)
	ew.printf("\n%s\n\n", result.Insights)

	ew.printf("=== CONFIDENCE BREAKDOWN ===\n")
	rg.printTierTable(result, ew)
	ew.printf("\n")

	if rg.config.IncludeMatches && len(result.Matches) > 0 {
		ew.printf("=== MATCHES ===\n")
		rg.printMatches(result.Matches, ew)
		ew.printf("\n")
	}

	if rg.config.IncludeUnmatched && len(result.UnmatchedStatements) > 0 {
		ew.printf("=== UNMATCHED STATEMENT TRANSACTIONS ===\n")
		rg.printUnmatchedStatements(result.UnmatchedStatements, ew)
		ew.printf("\n")
	}

	if rg.config.IncludeUnmatched && len(result.UnmatchedBooks) > 0 {
		ew.printf("=== UNMATCHED BOOK TRANSACTIONS ===\n")
		rg.printUnmatchedBooks(result.UnmatchedBooks, ew)
		ew.printf("\n")
	}

	if rg.config.IncludeSkipped && len(result.Skipped) > 0 {
		ew.printf("=== SKIPPED RECORDS ===\n")
		rg.printSkipped(result.Skipped, ew)
		ew.printf("\n")
	}

	if rg.config.IncludeDuplicates && len(result.Duplicates) > 0 {
		ew.printf("=== POSSIBLE DUPLICATES ===\n")
		for _, group := range result.Duplicates {
			ew.printf("  %s (%s): %s - %s\n", group.GroupID, group.Side, strings.Join(group.IDs, ", "), group.Reason)
		}
		ew.printf("\n")
	}

	if rg.config.IncludeStats {
		ew.printf("=== PROCESSING STATISTICS ===\n")
		ew.printf("Candidates Generated:  %d\n", result.Stats.CandidatesGenerated)
		ew.printf("Pairs Scored:          %d\n", result.Stats.PairsScored)
		ew.printf("Pairs Above Floor:     %d\n", result.Stats.PairsAboveFloor)
		ew.printf("Ambiguous Statements:  %d\n", result.Stats.AmbiguousStatements)
		ew.printf("Processing Time:       %v\n", result.Stats.ProcessingTime)
	}

	return ew.err
}

func (rg *ReportGenerator) generateJSONReport(result *reconciler.Result, writer io.Writer) error {
	output := *result
	if !rg.config.IncludeDuplicates {
		output.Duplicates = nil
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(&output)
}

// csvHeaders lists the columns of the CSV report
var csvHeaders = []string{
	"Type",
	"Statement_ID",
	"Book_ID",
	"Book_Source_ID",
	"Amount",
	"Date",
	"Confidence",
	"Confidence_Score",
	"Criteria",
	"Notes",
}

func (rg *ReportGenerator) generateCSVReport(result *reconciler.Result, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		if err := csvWriter.Write(csvHeaders); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	if rg.config.IncludeMatches {
		for _, m := range result.Matches {
			criteria := make([]string, len(m.MatchCriteria))
			for i, c := range m.MatchCriteria {
				criteria[i] = string(c)
			}
			record := []string{
				"Match",
				m.Statement.ID,
				m.Book.ID,
				m.Book.SourceID,
				m.Statement.Amount.StringFixed(2),
				m.Statement.Date.Format(models.DateLayout),
				m.Confidence.String(),
				strconv.Itoa(m.ConfidenceScore),
				strings.Join(criteria, "|"),
				m.MatchReason,
			}
			if err := csvWriter.Write(record); err != nil {
				return fmt.Errorf("failed to write match record: %w", err)
			}
		}
	}

	if rg.config.IncludeUnmatched {
		for _, s := range result.UnmatchedStatements {
			record := []string{"Unmatched Statement", s.ID, "", "", s.Amount.StringFixed(2),
				s.Date.Format(models.DateLayout), "", "", "", "No book transaction accepted"}
			if err := csvWriter.Write(record); err != nil {
				return fmt.Errorf("failed to write unmatched statement record: %w", err)
			}
		}
		for _, b := range result.UnmatchedBooks {
			record := []string{"Unmatched Book", "", b.ID, b.SourceID, b.Amount.StringFixed(2),
				b.Date.Format(models.DateLayout), "", "", "", "No statement transaction accepted"}
			if err := csvWriter.Write(record); err != nil {
				return fmt.Errorf("failed to write unmatched book record: %w", err)
			}
		}
	}

	if rg.config.IncludeSkipped {
		for _, s := range result.Skipped {
			statementID, bookID := s.ID, ""
			if s.Side == models.SideBook {
				statementID, bookID = "", s.ID
			}
			record := []string{"Skipped", statementID, bookID, s.Record.SourceID, s.Record.Amount,
				s.Record.Date, "", "", "", s.Reason}
			if err := csvWriter.Write(record); err != nil {
				return fmt.Errorf("failed to write skipped record: %w", err)
			}
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// Helper methods for console output formatting

func (rg *ReportGenerator) printSummaryTable(result *reconciler.Result, ew *errWriter) {
	matched := len(result.Matches)

	tw := tabwriter.NewWriter(ew, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "\tTotal\tMatched\tUnmatched\tSkipped\n")
	fmt.Fprintf(tw, "Statements\t%d\t%d (%.1f%%)\t%d\t%d\n",
		result.TotalStatements, matched, calculatePercentage(matched, result.TotalStatements),
		len(result.UnmatchedStatements), countSkipped(result.Skipped, models.SideStatement))
	fmt.Fprintf(tw, "Books\t%d\t%d (%.1f%%)\t%d\t%d\n",
		result.TotalBooks, matched, calculatePercentage(matched, result.TotalBooks),
		len(result.UnmatchedBooks), countSkipped(result.Skipped, models.SideBook))
	tw.Flush()

	ew.printf("\nMean Confidence:    %.1f%%\n", result.Confidence*100)
	ew.printf("Matched Amount:     %s\n", matchedAmount(result.Matches).StringFixed(2))
}

func (rg *ReportGenerator) printTierTable(result *reconciler.Result, ew *errWriter) {
	counts := result.TierCounts()
	total := len(result.Matches)

	tw := tabwriter.NewWriter(ew, 0, 0, 2, ' ', 0)
	for _, tier := range []models.ConfidenceTier{models.TierExact, models.TierHigh, models.TierMedium, models.TierLow} {
		fmt.Fprintf(tw, "%s\t%d\t(%.1f%%)\n", tierLabel(tier), counts[tier], calculatePercentage(counts[tier], total))
	}
	tw.Flush()
}

func (rg *ReportGenerator) printMatches(matches []*models.Match, ew *errWriter) {
	tw := tabwriter.NewWriter(ew, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "#\tStatement\tBook\tAmount\tDate\tConfidence\n")
	for i, m := range matches {
		if rg.truncated(i, len(matches), tw) {
			break
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s (%d%%)\n", i+1, m.Statement.ID, m.Book.ID,
			m.Statement.Amount.StringFixed(2), m.Statement.Date.Format(models.DateLayout),
			m.Confidence, m.ConfidenceScore)
	}
	tw.Flush()
}

func (rg *ReportGenerator) printUnmatchedStatements(statements []*models.StatementTransaction, ew *errWriter) {
	if rg.config.SortByAmount {
		statements = append([]*models.StatementTransaction(nil), statements...)
		sort.SliceStable(statements, func(i, j int) bool {
			return statements[i].Amount.Abs().GreaterThan(statements[j].Amount.Abs())
		})
	}

	tw := tabwriter.NewWriter(ew, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "#\tID\tAmount\tDate\tDescription\n")
	for i, s := range statements {
		if rg.truncated(i, len(statements), tw) {
			break
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i+1, s.ID, s.Amount.StringFixed(2), s.Date.Format(models.DateLayout), s.Description)
	}
	tw.Flush()
}

func (rg *ReportGenerator) printUnmatchedBooks(books []*models.BookTransaction, ew *errWriter) {
	if rg.config.SortByAmount {
		books = append([]*models.BookTransaction(nil), books...)
		sort.SliceStable(books, func(i, j int) bool {
			return books[i].Amount.Abs().GreaterThan(books[j].Amount.Abs())
		})
	}

	tw := tabwriter.NewWriter(ew, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "#\tID\tSource\tAmount\tDate\tDescription\n")
	for i, b := range books {
		if rg.truncated(i, len(books), tw) {
			break
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", i+1, b.ID, b.SourceID, b.Amount.StringFixed(2), b.Date.Format(models.DateLayout), b.Description)
	}
	tw.Flush()
}

func (rg *ReportGenerator) printSkipped(skipped []models.SkippedRecord, ew *errWriter) {
	for i, s := range skipped {
		if rg.truncated(i, len(skipped), ew) {
			break
		}
		ew.printf("  %d. %s %s: %s\n", i+1, s.Side, s.ID, s.Reason)
	}
}

// truncated reports whether the list should stop at index i and prints the
// remainder notice when it does
func (rg *ReportGenerator) truncated(i, total int, w io.Writer) bool {
	if rg.config.MaxListItems == 0 || i < rg.config.MaxListItems {
		return false
	}
	fmt.Fprintf(w, "...\tand %d more\n", total-i)
	return true
}

// Helper functions

func calculatePercentage(part, total int) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(part) / float64(total) * 100.0
}

func tierLabel(tier models.ConfidenceTier) string {
	name := tier.String()
	return strings.ToUpper(name[:1]) + name[1:]
}

func countSkipped(skipped []models.SkippedRecord, side models.Side) int {
	n := 0
	for _, s := range skipped {
		if s.Side == side {
			n++
		}
	}
	return n
}

func matchedAmount(matches []*models.Match) decimal.Decimal {
	total := decimal.Zero
	for _, m := range matches {
		total = total.Add(m.Statement.Amount)
	}
	return total
}

// errWriter remembers the first write error so report sections can be
// printed without checking every call
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) Write(p []byte) (int, error) {
	if ew.err != nil {
		return 0, ew.err
	}
	n, err := ew.w.Write(p)
	ew.err = err
	return n, err
}

func (ew *errWriter) printf(format string, args ...interface{}) {
	fmt.Fprintf(ew, format, args...)
}
