// Package config turns flags, environment variables, an optional config
// file and an optional .env file into the settings of one CLI run.
//
// Precedence, highest first: command-line flags, RECONCILER_* environment
// variables (including those loaded from .env), the config file, defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"bank-reconciliation-engine/internal/matcher"
	"bank-reconciliation-engine/internal/parsers"
	"bank-reconciliation-engine/internal/reconciler"
	"bank-reconciliation-engine/internal/reporter"
	"bank-reconciliation-engine/pkg/errors"
	"bank-reconciliation-engine/pkg/logger"
)

// EnvPrefix is prepended to every environment variable the CLI reads
const EnvPrefix = "RECONCILER"

// Configuration keys. Flags use the same names.
const (
	KeyAmountTolerance        = "amount-tolerance"
	KeyAmountTolerancePercent = "amount-tolerance-percent"
	KeyDateWindow             = "date-window"
	KeyMinScore               = "min-score"
	KeyHighThreshold          = "high-threshold"
	KeyMediumThreshold        = "medium-threshold"
	KeyMaxCandidates          = "max-candidates"
	KeyWorkers                = "workers"
	KeySolver                 = "solver"
	KeyWeightAmount           = "weights.amount"
	KeyWeightDate             = "weights.date"
	KeyWeightReference        = "weights.reference"
	KeyWeightDescription      = "weights.description"

	KeyDatabaseURL    = "database-url"
	KeyPersistTimeout = "persist-timeout"
	KeyMigrate        = "migrate"
	KeyDryRun         = "dry-run"

	KeyOutputFormat = "output-format"
	KeyDelimiter    = "delimiter"
	KeyNoHeader     = "no-header"

	KeyLogLevel  = "log-level"
	KeyLogFormat = "log-format"
	KeyLogFile   = "log-file"
	KeyVerbose   = "verbose"
)

// DatabaseConfig holds match store settings
type DatabaseConfig struct {
	URL            string
	PersistTimeout time.Duration
	Migrate        bool
}

// Settings is the fully resolved configuration of one run
type Settings struct {
	Matching *matcher.MatchingConfig
	Logging  *logger.Config
	Parser   *parsers.Config
	Report   *reporter.ReportConfig
	Database DatabaseConfig
	DryRun   bool
}

// ReconcilerConfig returns the reconciliation service configuration
func (s *Settings) ReconcilerConfig() *reconciler.Config {
	return &reconciler.Config{
		Matching:       s.Matching,
		PersistTimeout: s.Database.PersistTimeout,
		DryRun:         s.DryRun,
	}
}

// LoadEnvFile loads variables from a .env file into the process environment.
// A missing default file is not an error; a missing explicit file is.
func LoadEnvFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = ".env"
	}

	if err := godotenv.Load(path); err != nil {
		if !explicit && os.IsNotExist(err) {
			return nil
		}
		return errors.ConfigurationError(errors.CodeInvalidConfig, "env_file", path, err).
			WithSuggestion("Check that the .env file exists and uses KEY=value lines")
	}
	return nil
}

// NewViper returns a viper instance wired to the RECONCILER_ environment
func NewViper() *viper.Viper {
	v := viper.New()
	ConfigureEnv(v)
	SetDefaults(v)
	return v
}

// ConfigureEnv makes v read RECONCILER_* variables, with dashes and dots
// mapped to underscores
func ConfigureEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
}

// SetDefaults registers the default value of every key
func SetDefaults(v *viper.Viper) {
	m := matcher.DefaultMatchingConfig()
	v.SetDefault(KeyAmountTolerance, m.AmountTolerance.String())
	v.SetDefault(KeyAmountTolerancePercent, m.AmountTolerancePercent)
	v.SetDefault(KeyDateWindow, m.DateWindowDays)
	v.SetDefault(KeyMinScore, m.MinAcceptScore)
	v.SetDefault(KeyHighThreshold, m.HighThreshold)
	v.SetDefault(KeyMediumThreshold, m.MediumThreshold)
	v.SetDefault(KeyMaxCandidates, m.MaxCandidatesPerStatement)
	v.SetDefault(KeyWorkers, m.Workers)
	v.SetDefault(KeySolver, string(m.Solver))
	v.SetDefault(KeyWeightAmount, m.Weights.Amount)
	v.SetDefault(KeyWeightDate, m.Weights.Date)
	v.SetDefault(KeyWeightReference, m.Weights.Reference)
	v.SetDefault(KeyWeightDescription, m.Weights.Description)

	v.SetDefault(KeyPersistTimeout, reconciler.DefaultConfig().PersistTimeout)
	v.SetDefault(KeyMigrate, true)
	v.SetDefault(KeyDryRun, false)

	v.SetDefault(KeyOutputFormat, string(reporter.FormatConsole))
	v.SetDefault(KeyDelimiter, ",")
	v.SetDefault(KeyNoHeader, false)

	v.SetDefault(KeyLogLevel, string(logger.InfoLevel))
	v.SetDefault(KeyLogFormat, string(logger.TextFormat))
}

// ReadConfigFile reads a YAML, JSON or TOML config file into v
func ReadConfigFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "config", path, err).
			WithSuggestion("Check the config file path and syntax")
	}
	return nil
}

// Load resolves all settings from v and validates them
func Load(v *viper.Viper) (*Settings, error) {
	SetDefaults(v)

	matching, err := loadMatching(v)
	if err != nil {
		return nil, err
	}

	logging, err := loadLogging(v)
	if err != nil {
		return nil, err
	}

	parser, err := CreateParserConfig(v.GetString(KeyDelimiter), !v.GetBool(KeyNoHeader))
	if err != nil {
		return nil, err
	}

	report, err := CreateReportConfig(v.GetString(KeyOutputFormat))
	if err != nil {
		return nil, err
	}

	settings := &Settings{
		Matching: matching,
		Logging:  logging,
		Parser:   parser,
		Report:   report,
		Database: DatabaseConfig{
			URL:            strings.TrimSpace(v.GetString(KeyDatabaseURL)),
			PersistTimeout: v.GetDuration(KeyPersistTimeout),
			Migrate:        v.GetBool(KeyMigrate),
		},
		DryRun: v.GetBool(KeyDryRun),
	}

	if settings.Database.PersistTimeout < 0 {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, KeyPersistTimeout, settings.Database.PersistTimeout,
			fmt.Errorf("timeout cannot be negative"))
	}
	return settings, nil
}

func loadMatching(v *viper.Viper) (*matcher.MatchingConfig, error) {
	config := matcher.DefaultMatchingConfig()

	if raw := strings.TrimSpace(v.GetString(KeyAmountTolerance)); raw != "" {
		tolerance, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, errors.ConfigurationError(errors.CodeInvalidConfig, KeyAmountTolerance, raw, err).
				WithSuggestion("Use a decimal amount such as 0.05")
		}
		config.AmountTolerance = tolerance
	}

	config.AmountTolerancePercent = v.GetFloat64(KeyAmountTolerancePercent)
	config.DateWindowDays = v.GetInt(KeyDateWindow)
	config.MinAcceptScore = v.GetFloat64(KeyMinScore)
	config.HighThreshold = v.GetFloat64(KeyHighThreshold)
	config.MediumThreshold = v.GetFloat64(KeyMediumThreshold)
	config.MaxCandidatesPerStatement = v.GetInt(KeyMaxCandidates)
	config.Workers = v.GetInt(KeyWorkers)
	config.Solver = matcher.SolverKind(strings.ToLower(strings.TrimSpace(v.GetString(KeySolver))))
	config.Weights = matcher.MatchingWeights{
		Amount:      v.GetFloat64(KeyWeightAmount),
		Date:        v.GetFloat64(KeyWeightDate),
		Reference:   v.GetFloat64(KeyWeightReference),
		Description: v.GetFloat64(KeyWeightDescription),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func loadLogging(v *viper.Viper) (*logger.Config, error) {
	config := logger.DefaultConfig()
	config.Level = logger.Level(strings.ToLower(v.GetString(KeyLogLevel)))
	config.Format = logger.Format(strings.ToLower(v.GetString(KeyLogFormat)))

	if v.GetBool(KeyVerbose) {
		config.Level = logger.DebugLevel
	}
	if file := v.GetString(KeyLogFile); file != "" {
		config.Output = logger.FileOutput
		config.File = file
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "logging", config.Level, err).
			WithSuggestion("Use log level debug, info, warn or error and format text or json")
	}
	return config, nil
}

// CreateParserConfig creates the CSV reader configuration
func CreateParserConfig(delimiter string, hasHeader bool) (*parsers.Config, error) {
	config := parsers.DefaultConfig()
	config.HasHeader = hasHeader

	if delimiter == `\t` || delimiter == "tab" {
		delimiter = "\t"
	}
	if utf8.RuneCountInString(delimiter) != 1 {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, KeyDelimiter, delimiter,
			fmt.Errorf("delimiter must be a single character"))
	}
	config.Delimiter, _ = utf8.DecodeRuneInString(delimiter)

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, KeyDelimiter, delimiter, err)
	}
	return config, nil
}

// CreateReportConfig creates a report configuration for the specified output format
func CreateReportConfig(format string) (*reporter.ReportConfig, error) {
	config := reporter.DefaultReportConfig()

	switch reporter.OutputFormat(strings.ToLower(strings.TrimSpace(format))) {
	case reporter.FormatConsole:
		config.Format = reporter.FormatConsole
	case reporter.FormatJSON:
		config.Format = reporter.FormatJSON
	case reporter.FormatCSV:
		config.Format = reporter.FormatCSV
		// CSV is for transaction rows
		config.IncludeDuplicates = false
		config.IncludeStats = false
	default:
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, KeyOutputFormat, format,
			fmt.Errorf("unsupported output format")).
			WithSuggestion("Use one of: console, json, csv")
	}
	return config, nil
}
