package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/roach88/flushsafety/internal/fault"
	"github.com/roach88/flushsafety/internal/journal"
	"github.com/roach88/flushsafety/internal/sequence"
	"github.com/roach88/flushsafety/internal/store"
)

// HistoryLimit is the number of earlier journal runs included in a Result.
const HistoryLimit = 5

// Deps holds everything one harness process needs.
type Deps struct {
	Store *store.Store

	// Journal records the run. Nil disables journaling.
	Journal *journal.Journal

	Sequencer     sequence.Sequencer
	Injector      *fault.Injector
	Clock         clockwork.Clock
	FlushInterval time.Duration
	Iterations    int
	VerifyLimit   int

	// Settings are recorded in the journal with the run.
	Settings journal.Settings

	Logger *slog.Logger
}

// Run performs one harness process: verify the state left by the previous
// process, reset both partitions, then run the scheduler.
//
// The returned Result is non-nil whenever the run got far enough to produce
// a report. On a violation Run returns the Result together with the
// *InvariantViolationError. A *fault.TerminatedError (only seen with test
// terminators) leaves the journal entry running, as a killed process would.
func Run(ctx context.Context, d Deps) (*Result, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	result := &Result{
		StorageDir: d.Store.Dir(),
		WALEnabled: d.Store.WALEnabled(),
		Stats:      RunStats{LastFlushedIndex: -1},
		Outcome:    journal.OutcomeRunning,
	}

	if d.Journal != nil {
		recovered, err := d.Journal.MarkInterrupted(ctx)
		if err != nil {
			return nil, journalError(err)
		}
		streak, err := d.Journal.CrashStreak(ctx)
		if err != nil {
			return nil, journalError(err)
		}
		history, err := d.Journal.Recent(ctx, HistoryLimit)
		if err != nil {
			return nil, journalError(err)
		}
		id, err := d.Journal.Begin(ctx, d.Settings)
		if err != nil {
			return nil, journalError(err)
		}
		result.RunID = id
		result.RecoveredCrashes = recovered
		result.CrashStreak = streak
		result.History = history
		if recovered > 0 {
			logger.Info("previous runs were interrupted", "count", recovered, "streak", streak)
		}
	}

	primary := d.Store.Partition(PrimaryPartition)
	secondary := d.Store.Partition(SecondaryPartition)

	err := runPhases(ctx, d, logger, result, primary, secondary)
	switch {
	case err == nil:
		result.Outcome = journal.OutcomeCompleted
	case errors.Is(err, fault.ErrTerminated):
		return result, err
	case errors.Is(err, ErrInvariantViolated):
		result.Outcome = journal.OutcomeViolated
	default:
		result.Outcome = journal.OutcomeFailed
	}

	if d.Journal != nil {
		if ferr := d.Journal.Finish(ctx, result.RunID, result.Outcome, summarize(result, err)); ferr != nil {
			return result, errors.Join(err, journalError(ferr))
		}
	}

	if err == nil {
		logger.Info("run completed",
			"iterations", result.Stats.Iterations,
			"flush_pairs", result.Stats.FlushPairs,
		)
	}
	return result, err
}

func runPhases(ctx context.Context, d Deps, logger *slog.Logger, result *Result, primary, secondary *store.Partition) error {
	for _, p := range []*store.Partition{primary, secondary} {
		if err := p.CreateIfAbsent(); err != nil {
			return fmt.Errorf("create partition %s: %w", p.Name(), err)
		}
	}

	verifier := &Verifier{
		Primary:   primary,
		Secondary: secondary,
		Sequencer: d.Sequencer,
		Limit:     d.VerifyLimit,
		Logger:    logger,
	}
	verification, err := verifier.Verify()
	if err != nil {
		var violation *InvariantViolationError
		if errors.As(err, &violation) {
			index := violation.Index
			result.ViolationIndex = &index
		}
		return err
	}
	result.Verification = &verification

	if d.Journal != nil {
		if err := d.Journal.RecordVerification(ctx, result.RunID, int64(verification.Gap)); err != nil {
			return journalError(err)
		}
	}

	if err := Reset(secondary, primary); err != nil {
		return err
	}
	logger.Info("partitions reset", "partitions", []string{secondary.Name(), primary.Name()})

	scheduler := &Scheduler{
		Primary:       primary,
		Secondary:     secondary,
		Sequencer:     d.Sequencer,
		Injector:      d.Injector,
		Clock:         d.Clock,
		FlushInterval: d.FlushInterval,
		Iterations:    d.Iterations,
		Logger:        logger,
	}
	stats, err := scheduler.Run()
	result.Stats = stats
	return err
}

func summarize(r *Result, err error) journal.Summary {
	sum := journal.Summary{
		Iterations: int64(r.Stats.Iterations),
		FlushPairs: int64(r.Stats.FlushPairs),
	}
	if r.ViolationIndex != nil {
		index := int64(*r.ViolationIndex)
		sum.ViolationIndex = &index
	}
	if err != nil {
		sum.Err = err.Error()
	}
	return sum
}
