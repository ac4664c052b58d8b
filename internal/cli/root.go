package cli

import (
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/roach88/flushsafety/internal/config"
	"github.com/roach88/flushsafety/internal/fault"
	"github.com/roach88/flushsafety/internal/journal"
)

// RootOptions holds every flag of the command.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string

	// Config receives the flag values. Flags the user set explicitly
	// override values from ConfigPath.
	Config *config.Config

	// Terminator overrides how injected crashes end the process (for
	// testing). If nil, the process kills itself or, with a kill pattern,
	// everything matching it.
	Terminator fault.Terminator

	// Clock overrides the scheduler and journal clock (for testing).
	Clock clockwork.Clock

	// RunIDs overrides journal run ID generation (for testing).
	RunIDs journal.IDGenerator
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the flushsafety command.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{Config: config.Default()})
}

// Execute runs the command against os.Args and returns the process exit code.
func Execute() int {
	return execute(NewRootCommand())
}

func execute(cmd *cobra.Command) int {
	err := cmd.Execute()
	if err == nil {
		return ExitSuccess
	}

	// An ExitError was already reported, or is a crash that must stay silent.
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		// Usage errors from cobra: unknown flags, unexpected arguments.
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		err = WrapExitError(ExitCommandError, "usage", err)
	}
	return GetExitCode(err)
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flushsafety",
		Short: "Crash-test flush ordering of a key-value store",
		Long: `Crash-test that flushing one partition before another keeps their durable
contents ordered.

On start, the state left by the previous (possibly killed) process is
verified: every record durable in the secondary partition must also be
durable in the primary partition. Both partitions are then reset and the
write loop begins, writing paired records and periodically flushing primary
before secondary, while randomly killing the process with SIGKILL.

Run it repeatedly under a supervisor; each restart checks the last crash.

Exit codes:
  0  iteration budget exhausted, no violation
  1  invariant violated
  2  store, journal or configuration error

Example:
  flushsafety --storage-dir ./storage --flush-interval-ms 500
  while flushsafety --crash-probability 0.0001; do :; done`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				msg := fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
				fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", msg)
				return NewExitError(ExitCommandError, msg)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHarness(cmd, opts)
		},
	}

	cfg := opts.Config
	flags := cmd.Flags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output (debug logging)")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVar(&opts.ConfigPath, "config", "", "YAML configuration file")

	flags.StringVar(&cfg.StorageDir, "storage-dir", cfg.StorageDir, "directory holding the store")
	flags.IntVar(&cfg.FlushIntervalMS, "flush-interval-ms", cfg.FlushIntervalMS, "minimum milliseconds between flush pairs")
	flags.BoolVar(&cfg.WALEnabled, "wal-enabled", cfg.WALEnabled, "write through the store's write-ahead log")
	flags.IntVar(&cfg.Iterations, "iterations", cfg.Iterations, "number of record pairs to write")
	flags.Float64Var(&cfg.CrashProbability, "crash-probability", cfg.CrashProbability, "chance of a crash at each injection point")
	flags.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "crash trial seed (0 = random)")
	flags.StringVar(&cfg.KeyPrefix, "key-prefix", cfg.KeyPrefix, "record key prefix")
	flags.IntVar(&cfg.VerifyLimit, "verify-limit", cfg.VerifyLimit, "maximum index scanned by verification")
	flags.StringVar(&cfg.Journal, "journal", cfg.Journal, `run journal path (default <storage-dir>/journal.db, "none" disables)`)
	flags.StringVar(&cfg.KillPattern, "kill-pattern", cfg.KillPattern, "kill every process whose command line matches (pkill -9 -f) on a crash")

	return cmd
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
