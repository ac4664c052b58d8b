package cli

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/roach88/flushsafety/internal/config"
	"github.com/roach88/flushsafety/internal/fault"
	"github.com/roach88/flushsafety/internal/harness"
	"github.com/roach88/flushsafety/internal/journal"
	"github.com/roach88/flushsafety/internal/sequence"
	"github.com/roach88/flushsafety/internal/store"
)

func runHarness(cmd *cobra.Command, opts *RootOptions) error {
	// Configure logging based on verbose flag
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	})
	logger := slog.New(handler)
	slog.SetDefault(logger)

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := resolveConfig(cmd, opts)
	if err != nil {
		_ = formatter.Error(CodeConfigError, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	// Record the seed actually used so a run can be replayed.
	if cfg.Seed == 0 {
		cfg.Seed = rand.Uint64()
	}
	formatter.VerboseLog("seed %d", cfg.Seed)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	slog.Info("opening store", "dir", cfg.StorageDir, "wal_enabled", cfg.WALEnabled)
	st, err := store.Open(cfg.StorageDir, store.Options{
		Partitions:   []string{harness.PrimaryPartition, harness.SecondaryPartition},
		CacheSize:    cfg.Store.CacheSize,
		MemTableSize: uint64(cfg.Store.MemTableSize),
		MaxOpenFiles: cfg.Store.MaxOpenFiles,
		WALEnabled:   cfg.WALEnabled,
		Logger:       logger,
	})
	if err != nil {
		_ = formatter.Error(CodeStoreError, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open store", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing store", "error", closeErr)
		}
	}()

	var j *journal.Journal
	if path := cfg.JournalPath(); path != "" {
		j, err = journal.Open(path, journal.Options{Clock: opts.Clock, IDs: opts.RunIDs})
		if err != nil {
			_ = formatter.Error(CodeJournalError, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer func() {
			if closeErr := j.Close(); closeErr != nil {
				slog.Error("error closing journal", "error", closeErr)
			}
		}()
	}

	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	slog.Info("starting run",
		"iterations", cfg.Iterations,
		"flush_interval_ms", cfg.FlushIntervalMS,
		"crash_probability", cfg.CrashProbability,
		"seed", cfg.Seed,
	)
	result, err := harness.Run(ctx, harness.Deps{
		Store:         st,
		Journal:       j,
		Sequencer:     sequence.New(cfg.KeyPrefix),
		Injector:      fault.NewInjector(fault.NewBernoulli(cfg.CrashProbability, cfg.Seed), newTerminator(opts, cfg)),
		Clock:         clock,
		FlushInterval: cfg.FlushInterval(),
		Iterations:    cfg.Iterations,
		VerifyLimit:   cfg.VerifyLimit,
		Settings: journal.Settings{
			StorageDir:       cfg.StorageDir,
			WALEnabled:       cfg.WALEnabled,
			FlushIntervalMS:  int64(cfg.FlushIntervalMS),
			CrashProbability: cfg.CrashProbability,
			Seed:             cfg.Seed,
		},
		Logger: logger,
	})

	if err != nil {
		return reportRunError(formatter, result, err)
	}
	return formatter.Success(result)
}

// reportRunError prints a failed run and maps it to an exit error.
func reportRunError(formatter *OutputFormatter, result *harness.Result, err error) error {
	// A nil *Result must not become a non-nil interface in the details.
	var details interface{}
	if result != nil {
		details = result
	}

	switch {
	case errors.Is(err, fault.ErrTerminated):
		// Only reachable when Terminator returns. A crash prints nothing.
		return WrapExitError(fault.KilledExitCode, "terminated", err)
	case errors.Is(err, harness.ErrInvariantViolated):
		_ = formatter.Error(CodeInvariantViolated, err.Error(), details)
		return WrapExitError(ExitFailure, "invariant violated", err)
	case errors.Is(err, harness.ErrJournal):
		_ = formatter.Error(CodeJournalError, err.Error(), details)
		return WrapExitError(ExitCommandError, "journal failed", err)
	default:
		_ = formatter.Error(CodeStoreError, err.Error(), details)
		return WrapExitError(ExitCommandError, "run failed", err)
	}
}

// resolveConfig merges the optional config file with the flags. A flag the
// user set explicitly wins over the file; otherwise the file wins over the
// flag default.
func resolveConfig(cmd *cobra.Command, opts *RootOptions) (*config.Config, error) {
	cfg := opts.Config
	if opts.ConfigPath != "" {
		fileCfg, err := config.Load(opts.ConfigPath)
		if err != nil {
			return nil, err
		}
		applyFlagOverrides(cmd.Flags().Changed, fileCfg, opts.Config)
		cfg = fileCfg
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFlagOverrides copies into dst every field of src whose flag changed.
func applyFlagOverrides(changed func(name string) bool, dst, src *config.Config) {
	if changed("storage-dir") {
		dst.StorageDir = src.StorageDir
	}
	if changed("flush-interval-ms") {
		dst.FlushIntervalMS = src.FlushIntervalMS
	}
	if changed("wal-enabled") {
		dst.WALEnabled = src.WALEnabled
	}
	if changed("iterations") {
		dst.Iterations = src.Iterations
	}
	if changed("crash-probability") {
		dst.CrashProbability = src.CrashProbability
	}
	if changed("seed") {
		dst.Seed = src.Seed
	}
	if changed("key-prefix") {
		dst.KeyPrefix = src.KeyPrefix
	}
	if changed("verify-limit") {
		dst.VerifyLimit = src.VerifyLimit
	}
	if changed("journal") {
		dst.Journal = src.Journal
	}
	if changed("kill-pattern") {
		dst.KillPattern = src.KillPattern
	}
}

func newTerminator(opts *RootOptions, cfg *config.Config) fault.Terminator {
	if opts.Terminator != nil {
		return opts.Terminator
	}
	if cfg.KillPattern != "" {
		return fault.PatternKiller{Pattern: cfg.KillPattern}
	}
	return fault.SelfKiller{}
}
