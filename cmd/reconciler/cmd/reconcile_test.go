package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"bank-reconciliation-engine/pkg/errors"
)

func TestValidateFileExists(t *testing.T) {
	tmpDir := t.TempDir()
	validFile := filepath.Join(tmpDir, "valid.csv")
	if err := os.WriteFile(validFile, []byte("id,amount,date\n"), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	tests := []struct {
		name         string
		filePath     string
		expectError  bool
		expectedCode errors.ErrorCode
	}{
		{
			name:     "valid file",
			filePath: validFile,
		},
		{
			name:         "empty path",
			filePath:     "",
			expectError:  true,
			expectedCode: errors.CodeMissingConfig,
		},
		{
			name:         "non-existent file",
			filePath:     filepath.Join(tmpDir, "missing.csv"),
			expectError:  true,
			expectedCode: errors.CodeFileNotFound,
		},
		{
			name:         "directory instead of file",
			filePath:     tmpDir,
			expectError:  true,
			expectedCode: errors.CodeDirectoryError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateFileExists(tt.filePath, "statements")

			if !tt.expectError {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error but got none")
			}
			reconcilerErr, ok := errors.AsReconcilerError(err)
			if !ok {
				t.Fatalf("expected ReconcilerError, got %T", err)
			}
			if reconcilerErr.Code != tt.expectedCode {
				t.Errorf("expected code %s, got %s", tt.expectedCode, reconcilerErr.Code)
			}
		})
	}
}

func TestValidateReconcileFlags_OutputDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	statements := filepath.Join(tmpDir, "statements.csv")
	books := filepath.Join(tmpDir, "books.csv")
	for _, path := range []string{statements, books} {
		if err := os.WriteFile(path, []byte("id,amount,date\n"), 0644); err != nil {
			t.Fatalf("failed to create test file: %v", err)
		}
	}

	opts := &reconcileOptions{statementsFile: statements, booksFile: books, outputFile: tmpDir}
	err := validateReconcileFlags(opts)
	if !errors.IsCategory(err, errors.CategoryConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}

	opts.outputFile = filepath.Join(tmpDir, "report.json")
	if err := validateReconcileFlags(opts); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

// runCLI runs the command tree with quiet logging and captures its output
func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	args = append(args, "--log-level", "error")
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

// generateFixtures writes a small deterministic dataset and returns its paths
func generateFixtures(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	code, stdout, stderr := runCLI(t, "generate", "--output-dir", dir, "--count", "40", "--seed", "3", "--invalid-ratio", "0.05")
	if code != 0 {
		t.Fatalf("generate exited with %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "statements.csv") {
		t.Errorf("generate output should name the statements file, got %q", stdout)
	}
	return filepath.Join(dir, "statements.csv"), filepath.Join(dir, "books.csv")
}

type reportDocument struct {
	SessionID       string            `json:"sessionId"`
	Matches         []json.RawMessage `json:"matches"`
	Skipped         []json.RawMessage `json:"skipped"`
	TotalStatements int               `json:"totalStatements"`
	Persisted       bool              `json:"persisted"`
}

func TestRun_ReconcileDryRunJSON(t *testing.T) {
	statements, books := generateFixtures(t)

	code, stdout, stderr := runCLI(t, "reconcile",
		"--statements", statements,
		"--books", books,
		"--session-id", "cli-session",
		"--output-format", "json",
		"--dry-run",
	)
	if code != 0 {
		t.Fatalf("reconcile exited with %d: %s", code, stderr)
	}

	var doc reportDocument
	if err := json.Unmarshal([]byte(stdout), &doc); err != nil {
		t.Fatalf("report is not valid JSON: %v\n%s", err, stdout)
	}
	if doc.SessionID != "cli-session" {
		t.Errorf("expected session id cli-session, got %s", doc.SessionID)
	}
	if len(doc.Matches) == 0 {
		t.Error("expected generated counterparts to be matched")
	}
	if doc.Persisted {
		t.Error("dry run should not record matches")
	}
}

func TestRun_ReconcileRecordsInMemoryWithoutDatabase(t *testing.T) {
	statements, books := generateFixtures(t)
	reportPath := filepath.Join(t.TempDir(), "out", "report.json")

	code, _, stderr := runCLI(t, "reconcile",
		"-s", statements,
		"-b", books,
		"-f", "json",
		"-o", reportPath,
		"--solver", "optimal",
	)
	if code != 0 {
		t.Fatalf("reconcile exited with %d: %s", code, stderr)
	}

	data, err := os.ReadFile(reportPath)
	if err != nil {
		t.Fatalf("report file not written: %v", err)
	}
	var doc reportDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}
	if !doc.Persisted {
		t.Error("matches should be recorded in the in-memory store")
	}
}

func TestRun_ReconcileConsoleWithProgress(t *testing.T) {
	statements, books := generateFixtures(t)

	code, stdout, stderr := runCLI(t, "reconcile", "-s", statements, "-b", books, "--dry-run", "--progress")
	if code != 0 {
		t.Fatalf("reconcile exited with %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "RECONCILIATION REPORT") {
		t.Errorf("console report missing header:\n%s", stdout)
	}
	if !strings.Contains(stderr, "complete)") {
		t.Errorf("expected progress lines on stderr, got %q", stderr)
	}
}

func TestRun_ExitCodes(t *testing.T) {
	statements, books := generateFixtures(t)
	missing := filepath.Join(t.TempDir(), "missing.csv")

	tests := []struct {
		name         string
		args         []string
		expectedCode int
		stderrHas    string
	}{
		{
			name:         "missing statements file",
			args:         []string{"reconcile", "-s", missing, "-b", books},
			expectedCode: 2,
			stderrHas:    "File error help",
		},
		{
			name:         "invalid output format",
			args:         []string{"reconcile", "-s", statements, "-b", books, "-f", "xml", "--dry-run"},
			expectedCode: 4,
			stderrHas:    "Configuration error help",
		},
		{
			name:         "invalid solver",
			args:         []string{"reconcile", "-s", statements, "-b", books, "--solver", "random", "--dry-run"},
			expectedCode: 4,
		},
		{
			name:         "missing required flags",
			args:         []string{"reconcile"},
			expectedCode: 1,
			stderrHas:    "required flag",
		},
		{
			name:         "unknown command",
			args:         []string{"explode"},
			expectedCode: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := runCLI(t, tt.args...)
			if code != tt.expectedCode {
				t.Errorf("expected exit code %d, got %d\n%s", tt.expectedCode, code, stderr)
			}
			if tt.stderrHas != "" && !strings.Contains(stderr, tt.stderrHas) {
				t.Errorf("expected stderr to contain %q, got:\n%s", tt.stderrHas, stderr)
			}
		})
	}
}

func TestReconcileCommandHelp(t *testing.T) {
	code, stdout, _ := runCLI(t, "reconcile", "--help")
	if code != 0 {
		t.Fatalf("help exited with %d", code)
	}

	expectedSections := []string{
		"Usage:",
		"Examples:",
		"Flags:",
		"--statements",
		"--books",
		"--output-format",
		"--amount-tolerance",
		"--date-window",
		"--database-url",
		"--dry-run",
	}
	for _, section := range expectedSections {
		if !strings.Contains(stdout, section) {
			t.Errorf("help text should contain '%s'", section)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	SetVersionInfo("1.2.3", "abc123", "2025-01-01")
	defer SetVersionInfo("dev", "unknown", "unknown")

	code, stdout, _ := runCLI(t, "version")
	if code != 0 {
		t.Fatalf("version exited with %d", code)
	}
	for _, want := range []string{"reconciler 1.2.3", "abc123", "2025-01-01"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("version output should contain %q, got %q", want, stdout)
		}
	}
}

func TestCLIErrorHandler(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		verbose      bool
		expectedCode int
		outputHas    []string
	}{
		{
			name:         "nil error",
			err:          nil,
			expectedCode: 0,
		},
		{
			name:         "parse error",
			err:          errors.ParseError(errors.CodeMissingColumn, "books.csv", 1, "amount", nil),
			expectedCode: 3,
			outputHas:    []string{"Parse error help", "books.csv"},
		},
		{
			name:         "persistence error",
			err:          errors.PersistenceError(errors.CodeWriteFailed, "s-1", fmt.Errorf("connection refused")),
			verbose:      true,
			expectedCode: 6,
			outputHas:    []string{"Persistence error help", "Underlying error: connection refused"},
		},
		{
			name:         "wrapped reconciler error",
			err:          fmt.Errorf("outer: %w", errors.ConfigurationError(errors.CodeInvalidConfig, "solver", "random", nil)),
			expectedCode: 4,
			outputHas:    []string{"Configuration error help"},
		},
		{
			name:         "plain not found",
			err:          fmt.Errorf("open x.csv: %w", os.ErrNotExist),
			expectedCode: 2,
			outputHas:    []string{"File not found"},
		},
		{
			name:         "plain error",
			err:          fmt.Errorf("unknown flag: --nope"),
			expectedCode: 1,
			outputHas:    []string{"unknown flag", "--help"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			code := NewCLIErrorHandler(&out, tt.verbose).HandleError(tt.err)
			if code != tt.expectedCode {
				t.Errorf("expected exit code %d, got %d", tt.expectedCode, code)
			}
			for _, want := range tt.outputHas {
				if !strings.Contains(out.String(), want) {
					t.Errorf("expected output to contain %q, got:\n%s", want, out.String())
				}
			}
			if tt.err == nil && out.Len() != 0 {
				t.Errorf("nil error should print nothing, got %q", out.String())
			}
		})
	}
}
