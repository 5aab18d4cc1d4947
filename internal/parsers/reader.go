package parsers

import (
	"context"
	"io"

	"bank-reconciliation-engine/internal/models"
	"bank-reconciliation-engine/pkg/errors"
	"bank-reconciliation-engine/pkg/logger"
)

// Reader parses statement or book CSV files into raw transactions
type Reader struct {
	*baseParser
}

// NewReader creates a Reader with the given configuration
func NewReader(config *Config) (*Reader, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "csv_parser", config.Delimiter, err).
			WithSuggestion("Check the CSV delimiter and column alias settings")
	}
	return &Reader{baseParser: newBaseParser(config, "csv_reader")}, nil
}

// ReadFile parses the CSV file at path
func (r *Reader) ReadFile(ctx context.Context, path string) ([]models.RawTransaction, *Stats, error) {
	r.logger.WithField("file_path", path).Info("Reading transactions")

	file, err := r.openFile(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	return r.Read(ctx, file, path)
}

// Read parses CSV data from src. name identifies the source in errors.
func (r *Reader) Read(ctx context.Context, src io.Reader, name string) ([]models.RawTransaction, *Stats, error) {
	pc := newParseContext(ctx, name)
	stats := &Stats{}
	reader := r.newCSVReader(src)

	if err := r.readHeaders(reader, pc); err != nil {
		return nil, stats, err
	}

	var records []models.RawTransaction
	for {
		record, err := r.readRecord(reader, pc, stats)
		if err == io.EOF {
			break
		}
		if err != nil {
			r.logger.WithError(err).WithFields(logger.Fields{
				"file":        name,
				"line_number": pc.lineNumber,
			}).Error("Failed to read CSV record")
			return nil, stats, err
		}

		records = append(records, models.RawTransaction{
			ID:          pc.field(record, FieldID),
			Amount:      pc.field(record, FieldAmount),
			Date:        pc.field(record, FieldDate),
			Description: pc.field(record, FieldDescription),
			Reference:   pc.field(record, FieldReference),
			SourceID:    pc.field(record, FieldSourceID),
		})
		stats.Records++
	}
	stats.TotalLines = pc.lineNumber

	r.logger.WithFields(logger.Fields{
		"file":       name,
		"records":    stats.Records,
		"empty_rows": stats.EmptyRows,
	}).Debug("Finished reading transactions")

	return records, stats, nil
}
