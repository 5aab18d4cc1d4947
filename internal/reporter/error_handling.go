package reporter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"bank-reconciliation-engine/internal/reconciler"
	"bank-reconciliation-engine/pkg/errors"
	"bank-reconciliation-engine/pkg/logger"
)

// SafeReportGenerator wraps ReportGenerator with logging and fallbacks
type SafeReportGenerator struct {
	*ReportGenerator
	logger logger.Logger
}

// NewSafeReportGenerator creates a new safe report generator
func NewSafeReportGenerator(config *ReportConfig, log logger.Logger) (*SafeReportGenerator, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	generator, err := NewReportGenerator(config)
	if err != nil {
		format := OutputFormat("")
		if config != nil {
			format = config.Format
		}
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "output_format", format, err).
			WithSuggestion("Use one of: console, json, csv")
	}

	return &SafeReportGenerator{
		ReportGenerator: generator,
		logger:          log.WithComponent("reporter"),
	}, nil
}

// GenerateReportSafely writes the report to writer. When a JSON or CSV report
// fails, the console format is attempted before giving up.
func (srg *SafeReportGenerator) GenerateReportSafely(result *reconciler.Result, writer io.Writer) error {
	if result == nil {
		return errors.InputError(errors.CodeMissingField, "result", nil, nil)
	}
	if writer == nil {
		return errors.InputError(errors.CodeMissingField, "writer", nil, nil)
	}

	srg.logger.WithFields(logger.Fields{
		"format":     srg.config.Format,
		"output":     getWriterDescription(writer),
		"session_id": result.SessionID,
	}).Debug("Starting report generation")

	err := srg.GenerateReport(result, writer)
	if err == nil {
		return nil
	}
	srg.logger.WithError(err).Warn("Report generation failed")

	if srg.config.Format == FormatConsole {
		return srg.wrapGenerationError(err)
	}
	return srg.generateWithFormatFallback(result, writer, err)
}

// WriteReportFile writes the report to path. If path cannot be created the
// report goes to a backup file next to it and the backup path is returned.
func (srg *SafeReportGenerator) WriteReportFile(result *reconciler.Result, path string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", errors.FileError(errors.CodeDirectoryError, filepath.Dir(path), err)
	}

	written := path
	file, err := os.Create(path)
	if err != nil {
		if !os.IsPermission(err) && !os.IsExist(err) {
			return "", errors.FileError(errors.CodeDirectoryError, path, err)
		}

		written = generateBackupPath(path)
		srg.logger.WithError(err).WithFields(logger.Fields{
			"original_file": path,
			"backup_file":   written,
		}).Warn("Could not create report file, writing backup")

		file, err = os.Create(written)
		if err != nil {
			return "", errors.FileError(errors.CodeFilePermission, path, err)
		}
	}

	if err := srg.GenerateReportSafely(result, file); err != nil {
		file.Close()
		return "", err
	}
	if err := file.Close(); err != nil {
		return "", errors.FileError(errors.CodeDirectoryError, written, err)
	}

	srg.logger.WithField("file", written).Info("Report written")
	return written, nil
}

func (srg *SafeReportGenerator) generateWithFormatFallback(result *reconciler.Result, writer io.Writer, originalErr error) error {
	fallbackConfig := *srg.config
	fallbackConfig.Format = FormatConsole

	srg.logger.WithField("fallback_format", FormatConsole).Info("Attempting format fallback")

	fallback := &ReportGenerator{config: &fallbackConfig}
	fmt.Fprintf(writer, "NOTE: Report generated in fallback format due to error with requested format\n")
	fmt.Fprintf(writer, "Original error: %v\n\n", originalErr)

	if err := fallback.GenerateReport(result, writer); err != nil {
		return errors.InternalError(
			errors.CodeUnexpectedError,
			"report_fallback",
			fmt.Errorf("both primary and fallback generation failed: primary=%v, fallback=%w", originalErr, err),
		)
	}

	srg.logger.Info("Report generated using format fallback")
	return nil
}

func (srg *SafeReportGenerator) wrapGenerationError(err error) error {
	if reconcilerErr, ok := errors.AsReconcilerError(err); ok {
		return reconcilerErr
	}
	return errors.InternalError(errors.CodeUnexpectedError, "report_generation", err).
		WithSuggestion("Check the output destination and report format settings")
}

// generateBackupPath inserts _backup before the file extension
func generateBackupPath(originalPath string) string {
	dir := filepath.Dir(originalPath)
	base := filepath.Base(originalPath)
	ext := filepath.Ext(base)
	name := base[:len(base)-len(ext)]

	return filepath.Join(dir, fmt.Sprintf("%s_backup%s", name, ext))
}

func getWriterDescription(writer io.Writer) string {
	switch w := writer.(type) {
	case *os.File:
		if w.Name() != "" {
			return fmt.Sprintf("file:%s", w.Name())
		}
		return "file:unnamed"
	default:
		return fmt.Sprintf("writer:%T", writer)
	}
}
