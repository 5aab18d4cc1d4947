package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"bank-reconciliation-engine/cmd/reconciler/config"
	"bank-reconciliation-engine/pkg/logger"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// NewRootCommand builds the command tree. Each call gets its own viper
// instance, so commands can be constructed repeatedly in tests.
func NewRootCommand() *cobra.Command {
	v := config.NewViper()
	var cfgFile, envFile string

	rootCmd := &cobra.Command{
		Use:   "reconciler",
		Short: "Bank reconciliation engine",
		Long: `Reconciler pairs bank statement transactions with internally recorded
book transactions one-to-one, explains every match, and records the accepted
matches for audit.

Examples:
  reconciler reconcile --statements statements.csv --books books.csv --dry-run
  reconciler reconcile -s statements.csv -b books.csv --output-format json --database-url postgres://localhost/recon
  reconciler generate --output-dir ./data --count 500 --seed 42
  reconciler version`,
		Version:       getVersionString(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadEnvFile(envFile); err != nil {
				return err
			}
			if err := config.ReadConfigFile(v, cfgFile); err != nil {
				return err
			}
			if v.GetBool(config.KeyVerbose) && cfgFile != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Using config file: %s\n", v.ConfigFileUsed())
			}
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file, YAML, JSON or TOML (optional)")
	flags.StringVar(&envFile, "env-file", "", "file of KEY=value environment variables (default: .env if present)")
	flags.BoolP(config.KeyVerbose, "v", false, "verbose output")
	flags.String(config.KeyLogLevel, string(logger.InfoLevel), "log level: debug, info, warn, error")
	flags.String(config.KeyLogFormat, string(logger.TextFormat), "log format: text, json")
	flags.String(config.KeyLogFile, "", "write logs to this file instead of stderr")
	bindFlags(v, flags.Lookup, config.KeyVerbose, config.KeyLogLevel, config.KeyLogFormat, config.KeyLogFile)

	rootCmd.AddCommand(newReconcileCommand(v))
	rootCmd.AddCommand(newGenerateCommand())
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

// Execute runs the CLI and returns the process exit code
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return run(ctx, os.Args[1:], os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	rootCmd := NewRootCommand()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.ExecuteContext(ctx)
	verbose, _ := rootCmd.PersistentFlags().GetBool(config.KeyVerbose)
	return NewCLIErrorHandler(stderr, verbose).HandleError(err)
}

// bindFlags binds each named flag to the viper key of the same name
func bindFlags(v *viper.Viper, lookup func(string) *pflag.Flag, names ...string) {
	for _, name := range names {
		if err := v.BindPFlag(name, lookup(name)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", name, err))
		}
	}
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
