// Package parsers reads and writes the CSV files that feed a reconciliation
// session.
//
// Rows are returned as models.RawTransaction values with every field kept as
// text. A row whose amount or date cannot be understood is still returned;
// the matcher's normalizer reports it as skipped, so no input row is lost
// between the file and the result.
//
// Example usage:
//
//	reader, err := parsers.NewReader(parsers.DefaultConfig())
//	statements, stats, err := reader.ReadFile(ctx, "statements.csv")
//
// Headers are matched case-insensitively against a set of aliases per field,
// so exports such as "unique_identifier,amount,date" or
// "trxID,amount,transactionTime" are accepted without configuration.
package parsers

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"bank-reconciliation-engine/pkg/errors"
	"bank-reconciliation-engine/pkg/logger"
)

// Field names of a transaction row
const (
	FieldID          = "id"
	FieldAmount      = "amount"
	FieldDate        = "date"
	FieldDescription = "description"
	FieldReference   = "reference"
	FieldSourceID    = "source_id"
)

// positionalFields is the column order assumed for files without a header row
var positionalFields = []string{FieldID, FieldAmount, FieldDate, FieldDescription, FieldReference, FieldSourceID}

var requiredFields = []string{FieldID, FieldAmount, FieldDate}

// defaultAliases lists accepted header names per field, lower case
var defaultAliases = map[string][]string{
	FieldID:          {"id", "unique_identifier", "trxid", "trx_id", "transaction_id", "statement_id", "entry_id"},
	FieldAmount:      {"amount", "amt", "value", "transaction_amount"},
	FieldDate:        {"date", "transaction_date", "transactiontime", "transaction_time", "posted_date", "booking_date", "value_date"},
	FieldDescription: {"description", "desc", "memo", "narrative", "details", "payee"},
	FieldReference:   {"reference", "ref", "reference_number", "invoice_number", "check_number"},
	FieldSourceID:    {"source_id", "sourceid", "invoice_id", "expense_id", "source"},
}

// Config holds configuration for CSV parsing
type Config struct {
	HasHeader        bool
	Delimiter        rune
	Comment          rune
	TrimLeadingSpace bool
	SkipEmptyRows    bool
	MaxFieldSize     int
	ValidateEncoding bool

	// ColumnAliases maps a field name to an extra accepted header name
	ColumnAliases map[string]string
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		HasHeader:        true,
		Delimiter:        ',',
		TrimLeadingSpace: true,
		SkipEmptyRows:    true,
		MaxFieldSize:     1 << 20,
		ValidateEncoding: true,
	}
}

// Validate checks the parser configuration
func (c *Config) Validate() error {
	if c.Delimiter == 0 || c.Delimiter == '\n' || c.Delimiter == '\r' || c.Delimiter == '"' || !utf8.ValidRune(c.Delimiter) {
		return fmt.Errorf("invalid delimiter %q", c.Delimiter)
	}
	if c.Comment != 0 && c.Comment == c.Delimiter {
		return fmt.Errorf("comment character cannot equal the delimiter")
	}
	if c.MaxFieldSize < 0 {
		return fmt.Errorf("max field size cannot be negative")
	}
	for field := range c.ColumnAliases {
		if _, ok := defaultAliases[field]; !ok {
			return fmt.Errorf("unknown field %q in column aliases", field)
		}
	}
	return nil
}

// parseContext holds state while one file is read
type parseContext struct {
	ctx        context.Context
	name       string
	lineNumber int
	headers    []string
	columns    map[string]int
}

func newParseContext(ctx context.Context, name string) *parseContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &parseContext{ctx: ctx, name: name, columns: make(map[string]int)}
}

// field returns the trimmed value of a field, or "" when the row has no such column
func (pc *parseContext) field(record []string, name string) string {
	index, ok := pc.columns[name]
	if !ok || index >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[index])
}

// Stats holds statistics about one parsed file
type Stats struct {
	TotalLines int
	Records    int
	EmptyRows  int
}

// String returns a human-readable summary of parsing statistics
func (s *Stats) String() string {
	return fmt.Sprintf("Parsed %d lines, %d records, %d empty rows skipped", s.TotalLines, s.Records, s.EmptyRows)
}

// baseParser provides common CSV parsing functionality
type baseParser struct {
	config  *Config
	aliases map[string]string
	logger  logger.Logger
}

func newBaseParser(config *Config, component string) *baseParser {
	aliases := make(map[string]string)
	for field, names := range defaultAliases {
		for _, name := range names {
			aliases[name] = field
		}
	}
	for field, name := range config.ColumnAliases {
		aliases[strings.ToLower(strings.TrimSpace(name))] = field
	}

	return &baseParser{
		config:  config,
		aliases: aliases,
		logger:  logger.GetGlobalLogger().WithComponent(component),
	}
}

// openFile opens path, optionally checking that it is UTF-8
func (bp *baseParser) openFile(path string) (*os.File, error) {
	file, err := os.Open(path)
	if err != nil {
		bp.logger.WithError(err).WithField("file_path", path).Error("Failed to open CSV file")
		switch {
		case os.IsNotExist(err):
			return nil, errors.FileError(errors.CodeFileNotFound, path, err)
		case os.IsPermission(err):
			return nil, errors.FileError(errors.CodeFilePermission, path, err)
		default:
			return nil, errors.FileError(errors.CodeDirectoryError, path, err)
		}
	}

	if bp.config.ValidateEncoding {
		if err := bp.validateEncoding(file, path); err != nil {
			file.Close()
			return nil, err
		}
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			file.Close()
			return nil, errors.FileError(errors.CodeDirectoryError, path, err)
		}
	}

	return file, nil
}

// validateEncoding checks the first lines of the file for invalid UTF-8
func (bp *baseParser) validateEncoding(file *os.File, path string) error {
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), bp.config.MaxFieldSize+64*1024)

	for line := 1; scanner.Scan() && line <= 100; line++ {
		if !utf8.Valid(scanner.Bytes()) {
			return errors.ParseError(errors.CodeInvalidFormat, path, line, "encoding",
				fmt.Errorf("invalid UTF-8 encoding detected")).
				WithSuggestion("Save the file in UTF-8 encoding and try again")
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.ParseError(errors.CodeInvalidFormat, path, 0, "encoding", err)
	}
	return nil
}

func (bp *baseParser) newCSVReader(src io.Reader) *csv.Reader {
	reader := csv.NewReader(src)
	reader.Comma = bp.config.Delimiter
	reader.Comment = bp.config.Comment
	reader.TrimLeadingSpace = bp.config.TrimLeadingSpace
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = false
	return reader
}

// readHeaders resolves column positions, either from the header row or positionally
func (bp *baseParser) readHeaders(reader *csv.Reader, pc *parseContext) error {
	if !bp.config.HasHeader {
		for i, field := range positionalFields {
			pc.columns[field] = i
		}
		pc.headers = positionalFields
		return nil
	}

	headers, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return errors.ParseError(errors.CodeMissingColumn, pc.name, 1, strings.Join(requiredFields, ", "),
				fmt.Errorf("file is empty")).
				WithSuggestion("Ensure the file contains a header row and data rows")
		}
		return errors.ParseError(errors.CodeInvalidFormat, pc.name, 1, "headers", err)
	}
	pc.lineNumber++

	pc.headers = make([]string, len(headers))
	for i, header := range headers {
		header = strings.TrimSpace(strings.TrimPrefix(header, "\ufeff"))
		pc.headers[i] = header
		field, ok := bp.aliases[strings.ToLower(header)]
		if !ok {
			continue
		}
		if _, seen := pc.columns[field]; !seen {
			pc.columns[field] = i
		}
	}

	var missing []string
	for _, field := range requiredFields {
		if _, ok := pc.columns[field]; !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		bp.logger.WithFields(logger.Fields{
			"missing_columns":   missing,
			"available_headers": pc.headers,
		}).Error("Required columns are missing")
		return errors.ParseError(errors.CodeMissingColumn, pc.name, pc.lineNumber, strings.Join(missing, ", "), nil).
			WithSuggestion(fmt.Sprintf("Ensure the CSV file has headers for: %s", strings.Join(requiredFields, ", ")))
	}

	bp.logger.WithField("headers", pc.headers).Debug("Resolved CSV headers")
	return nil
}

// readRecord returns the next non-empty record, or io.EOF
func (bp *baseParser) readRecord(reader *csv.Reader, pc *parseContext, stats *Stats) ([]string, error) {
	for {
		if err := pc.ctx.Err(); err != nil {
			return nil, errors.ReconciliationError(errors.CodeCancelled, "csv parsing", err)
		}

		record, err := reader.Read()
		if err == io.EOF {
			return nil, err
		}
		if err != nil {
			line := pc.lineNumber + 1
			if csvErr, ok := err.(*csv.ParseError); ok {
				line = csvErr.StartLine
			}
			return nil, errors.ParseError(errors.CodeInvalidFormat, pc.name, line, "record", err)
		}
		pc.lineNumber, _ = reader.FieldPos(0)

		if bp.config.SkipEmptyRows && isEmptyRecord(record) {
			stats.EmptyRows++
			continue
		}

		if bp.config.MaxFieldSize > 0 {
			for i, value := range record {
				if len(value) > bp.config.MaxFieldSize {
					column := fmt.Sprintf("field_%d", i)
					if i < len(pc.headers) {
						column = pc.headers[i]
					}
					return nil, errors.ParseError(errors.CodeInvalidFormat, pc.name, pc.lineNumber, column,
						fmt.Errorf("field exceeds maximum size of %d bytes", bp.config.MaxFieldSize))
				}
			}
		}

		return record, nil
	}
}

func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
