package parsers

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"bank-reconciliation-engine/internal/models"
	"bank-reconciliation-engine/pkg/errors"
)

// Helper function to create temporary CSV file
func createTempCSVFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}
	return path
}

func newTestReader(t *testing.T, config *Config) *Reader {
	t.Helper()
	reader, err := NewReader(config)
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}
	return reader
}

func assertErrorCode(t *testing.T, err error, category errors.ErrorCategory, code errors.ErrorCode) {
	t.Helper()
	if err == nil {
		t.Fatalf("Expected %s error, got nil", code)
	}
	recErr, ok := errors.AsReconcilerError(err)
	if !ok {
		t.Fatalf("Expected ReconcilerError, got %T: %v", err, err)
	}
	if recErr.Category != category || recErr.Code != code {
		t.Errorf("Expected %s/%s, got %s/%s", category, code, recErr.Category, recErr.Code)
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if !config.HasHeader {
		t.Error("Expected HasHeader to be true")
	}
	if config.Delimiter != ',' {
		t.Errorf("Expected delimiter to be ',', got %q", config.Delimiter)
	}
	if !config.SkipEmptyRows {
		t.Error("Expected SkipEmptyRows to be true")
	}
	if err := config.Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"default", func(c *Config) {}, false},
		{"semicolon delimiter", func(c *Config) { c.Delimiter = ';' }, false},
		{"zero delimiter", func(c *Config) { c.Delimiter = 0 }, true},
		{"quote delimiter", func(c *Config) { c.Delimiter = '"' }, true},
		{"comment equals delimiter", func(c *Config) { c.Comment = ',' }, true},
		{"negative field size", func(c *Config) { c.MaxFieldSize = -1 }, true},
		{"known alias", func(c *Config) { c.ColumnAliases = map[string]string{FieldID: "Txn Ref"} }, false},
		{"unknown alias field", func(c *Config) { c.ColumnAliases = map[string]string{"currency": "ccy"} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.modify(config)
			err := config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewReaderRejectsInvalidConfig(t *testing.T) {
	config := DefaultConfig()
	config.Delimiter = '\n'

	_, err := NewReader(config)
	assertErrorCode(t, err, errors.CategoryConfiguration, errors.CodeInvalidConfig)
}

func TestReadFile(t *testing.T) {
	content := `id,amount,date,description,reference
S1,100.00,2025-01-10,ACME INV 42,INV-42
S2, 250.00 ,2025-01-11,Payroll,
S3,oops,2025-01-11,Broken amount,
`
	reader := newTestReader(t, nil)

	records, stats, err := reader.ReadFile(context.Background(), createTempCSVFile(t, content))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(records))
	}

	want := models.RawTransaction{ID: "S1", Amount: "100.00", Date: "2025-01-10", Description: "ACME INV 42", Reference: "INV-42"}
	if !reflect.DeepEqual(records[0], want) {
		t.Errorf("Expected %+v, got %+v", want, records[0])
	}
	if records[1].Amount != "250.00" {
		t.Errorf("Expected trimmed amount, got %q", records[1].Amount)
	}
	// malformed values are passed through for the normalizer to report
	if records[2].Amount != "oops" {
		t.Errorf("Expected raw amount to be kept, got %q", records[2].Amount)
	}
	if stats.Records != 3 {
		t.Errorf("Expected 3 records in stats, got %d", stats.Records)
	}
	if stats.TotalLines != 4 {
		t.Errorf("Expected 4 lines in stats, got %d", stats.TotalLines)
	}
}

func TestReadHeaderAliases(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    models.RawTransaction
	}{
		{
			name:    "bank export",
			content: "unique_identifier,amount,date,memo\nBANK1,-50.25,2025-02-01,Coffee\n",
			want:    models.RawTransaction{ID: "BANK1", Amount: "-50.25", Date: "2025-02-01", Description: "Coffee"},
		},
		{
			name:    "system export",
			content: "trxID,Amount,transactionTime,Description,invoice_id\nTX1,10,2025-02-01,Fee,inv-9\n",
			want:    models.RawTransaction{ID: "TX1", Amount: "10", Date: "2025-02-01", Description: "Fee", SourceID: "inv-9"},
		},
		{
			name:    "byte order mark and reordered columns",
			content: "\ufeffDate,Reference,ID,Amount\n2025-02-03,REF-1,X9,12.00\n",
			want:    models.RawTransaction{ID: "X9", Amount: "12.00", Date: "2025-02-03", Reference: "REF-1"},
		},
	}

	reader := newTestReader(t, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, _, err := reader.Read(context.Background(), strings.NewReader(tt.content), tt.name)
			if err != nil {
				t.Fatalf("Read() error = %v", err)
			}
			if len(records) != 1 {
				t.Fatalf("Expected 1 record, got %d", len(records))
			}
			if !reflect.DeepEqual(records[0], tt.want) {
				t.Errorf("Expected %+v, got %+v", tt.want, records[0])
			}
		})
	}
}

func TestReadCustomColumnAlias(t *testing.T) {
	config := DefaultConfig()
	config.ColumnAliases = map[string]string{FieldID: "Txn Ref"}
	reader := newTestReader(t, config)

	records, _, err := reader.Read(context.Background(),
		strings.NewReader("Txn Ref,amount,date\nR1,1.00,2025-01-01\n"), "custom.csv")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(records) != 1 || records[0].ID != "R1" {
		t.Errorf("Expected record R1, got %+v", records)
	}
}

func TestReadWithoutHeader(t *testing.T) {
	config := DefaultConfig()
	config.HasHeader = false
	config.Delimiter = ';'
	reader := newTestReader(t, config)

	records, _, err := reader.Read(context.Background(),
		strings.NewReader("B1;100.00;2025-01-10;Acme;INV-42;invoice-42\nB2;75.00;2025-01-12\n"), "books.csv")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if records[0].SourceID != "invoice-42" {
		t.Errorf("Expected source id invoice-42, got %q", records[0].SourceID)
	}
	if records[1].Description != "" || records[1].Reference != "" {
		t.Errorf("Expected short row to leave optional fields empty, got %+v", records[1])
	}
}

func TestReadSkipsEmptyRows(t *testing.T) {
	reader := newTestReader(t, nil)

	records, stats, err := reader.Read(context.Background(),
		strings.NewReader("id,amount,date\nS1,1,2025-01-01\n,,\n  , ,\nS2,2,2025-01-02\n"), "rows.csv")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(records) != 2 {
		t.Errorf("Expected 2 records, got %d", len(records))
	}
	if stats.EmptyRows != 2 {
		t.Errorf("Expected 2 empty rows, got %d", stats.EmptyRows)
	}
}

func TestReadMissingColumn(t *testing.T) {
	reader := newTestReader(t, nil)

	_, _, err := reader.Read(context.Background(),
		strings.NewReader("id,description\nS1,Coffee\n"), "partial.csv")
	assertErrorCode(t, err, errors.CategoryParse, errors.CodeMissingColumn)
	if !strings.Contains(err.Error(), "amount, date") {
		t.Errorf("Expected missing columns in message, got %q", err.Error())
	}
}

func TestReadEmptyFile(t *testing.T) {
	reader := newTestReader(t, nil)

	_, _, err := reader.ReadFile(context.Background(), createTempCSVFile(t, ""))
	assertErrorCode(t, err, errors.CategoryParse, errors.CodeMissingColumn)
}

func TestReadHeaderOnly(t *testing.T) {
	reader := newTestReader(t, nil)

	records, stats, err := reader.Read(context.Background(), strings.NewReader("id,amount,date\n"), "header.csv")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(records) != 0 || stats.Records != 0 {
		t.Errorf("Expected no records, got %d", len(records))
	}
}

func TestReadMalformedQuotes(t *testing.T) {
	reader := newTestReader(t, nil)

	_, _, err := reader.Read(context.Background(),
		strings.NewReader("id,amount,date\nS1,\"100.00,2025-01-10\n"), "quotes.csv")
	assertErrorCode(t, err, errors.CategoryParse, errors.CodeInvalidFormat)
}

func TestReadFieldTooLarge(t *testing.T) {
	config := DefaultConfig()
	config.MaxFieldSize = 8
	reader := newTestReader(t, config)

	_, _, err := reader.Read(context.Background(),
		strings.NewReader("id,amount,date,description\nS1,1,2025-01-01,far too long\n"), "large.csv")
	assertErrorCode(t, err, errors.CategoryParse, errors.CodeInvalidFormat)
}

func TestReadFileNotFound(t *testing.T) {
	reader := newTestReader(t, nil)

	_, _, err := reader.ReadFile(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	assertErrorCode(t, err, errors.CategoryFile, errors.CodeFileNotFound)
}

func TestReadFileInvalidEncoding(t *testing.T) {
	reader := newTestReader(t, nil)

	path := createTempCSVFile(t, "id,amount,date\nS1,1,\xff\xfe\n")
	_, _, err := reader.ReadFile(context.Background(), path)
	assertErrorCode(t, err, errors.CategoryParse, errors.CodeInvalidFormat)
}

func TestReadCancelled(t *testing.T) {
	reader := newTestReader(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := reader.Read(ctx, strings.NewReader("id,amount,date\nS1,1,2025-01-01\n"), "cancel.csv")
	assertErrorCode(t, err, errors.CategoryReconciliation, errors.CodeCancelled)
}

func TestWriteRoundTrip(t *testing.T) {
	books := []models.RawTransaction{
		{ID: "B1", Amount: "100.00", Date: "2025-01-10", Description: "Acme, Invoice 42", Reference: "INV-42", SourceID: "invoice-42"},
		{ID: "B2", Amount: "-75.50", Date: "2025-01-12", Description: `Office "rent"`},
	}

	var buf bytes.Buffer
	if err := Write(&buf, models.SideBook, books); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if !strings.HasPrefix(buf.String(), "id,amount,date,description,reference,source_id\n") {
		t.Errorf("Unexpected header: %q", strings.SplitN(buf.String(), "\n", 2)[0])
	}

	records, _, err := newTestReader(t, nil).Read(context.Background(), &buf, "books.csv")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !reflect.DeepEqual(records, books) {
		t.Errorf("Round trip mismatch:\nwant %+v\ngot  %+v", books, records)
	}
}

func TestWriteStatementsOmitsSourceID(t *testing.T) {
	var buf bytes.Buffer
	err := Write(&buf, models.SideStatement, []models.RawTransaction{
		{ID: "S1", Amount: "1.00", Date: "2025-01-01", SourceID: "ignored"},
	})
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	want := "id,amount,date,description,reference\nS1,1.00,2025-01-01,,\n"
	if buf.String() != want {
		t.Errorf("Expected %q, got %q", want, buf.String())
	}
}

func TestWriteFileCreatesDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "statements.csv")
	records := []models.RawTransaction{{ID: "S1", Amount: "1.00", Date: "2025-01-01"}}

	if err := WriteFile(path, models.SideStatement, records); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	got, _, err := newTestReader(t, nil).ReadFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !reflect.DeepEqual(got, records) {
		t.Errorf("Expected %+v, got %+v", records, got)
	}
}
