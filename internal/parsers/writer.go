package parsers

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"bank-reconciliation-engine/internal/models"
	"bank-reconciliation-engine/pkg/errors"
)

// Write encodes transactions as CSV with a header row. Book files carry an
// extra source_id column.
func Write(w io.Writer, side models.Side, records []models.RawTransaction) error {
	header := []string{FieldID, FieldAmount, FieldDate, FieldDescription, FieldReference}
	if side == models.SideBook {
		header = append(header, FieldSourceID)
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, r := range records {
		row := []string{r.ID, r.Amount, r.Date, r.Description, r.Reference}
		if side == models.SideBook {
			row = append(row, r.SourceID)
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write record %s: %w", r.ID, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteFile writes transactions to path, creating parent directories
func WriteFile(path string, side models.Side, records []models.RawTransaction) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.FileError(errors.CodeDirectoryError, filepath.Dir(path), err)
	}

	file, err := os.Create(path)
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, path, err)
	}

	if err := Write(file, side, records); err != nil {
		file.Close()
		return errors.FileError(errors.CodeDirectoryError, path, err)
	}
	if err := file.Close(); err != nil {
		return errors.FileError(errors.CodeDirectoryError, path, err)
	}
	return nil
}
