package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/dpmcheck/internal/config"
	"github.com/roach88/dpmcheck/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string

	// Config and Logger are set by the root command before any subcommand
	// runs. Commands built on their own fall back to defaults.
	Config *config.Config
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the dpmcheck CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "dpmcheck",
		Short: "dpmcheck - DPM validation rule checker",
		Long: `Validate regulatory report tables against a catalog of DPM validation rules.

Rules are written in the DPM expression language and kept in a CUE catalog.
Report tables are imported into a SQLite store, validated, and every run is
persisted for later inspection.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate format flag
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return opts.setup(cmd)
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (default: dpmcheck.yaml in the current or a parent directory)")

	// Add subcommands
	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewReportCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// setup loads the layered configuration and installs the logger. Logs go
// to stderr so JSON output stays parseable.
func (o *RootOptions) setup(cmd *cobra.Command) error {
	bootstrap := logging.New(o.logLevel("warn"), "text", cmd.ErrOrStderr())

	cfg, err := config.NewLoader(bootstrap).Load(o.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	o.Config = cfg
	o.Logger = logging.Setup(o.logLevel(cfg.Logging.Level), cfg.Logging.Format, cmd.ErrOrStderr())
	return nil
}

func (o *RootOptions) logLevel(configured string) string {
	if o.Verbose {
		return "debug"
	}
	return configured
}

// settings returns the loaded config and logger, or defaults when the root
// command did not run.
func (o *RootOptions) settings() (*config.Config, *slog.Logger) {
	cfg := o.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	logger := o.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return cfg, logger
}

// formatter builds the output formatter for cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   o.Verbose,
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
