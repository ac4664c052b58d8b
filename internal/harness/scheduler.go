package harness

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/roach88/flushsafety/internal/fault"
	"github.com/roach88/flushsafety/internal/sequence"
)

// Scheduler is the write/flush loop.
//
// Each iteration writes the secondary then the primary record of one index
// without flushing, then gives the injector a chance to crash. Whenever more
// than FlushInterval has passed since the last flush pair began, it flushes
// primary, gives the injector a second chance, and flushes secondary.
//
// Only the flush order carries the invariant: unflushed writes are lost in a
// crash and never count.
type Scheduler struct {
	Primary   Partition
	Secondary Partition
	Sequencer sequence.Sequencer

	// Injector decides where to crash. Nil never crashes.
	Injector *fault.Injector

	// Clock measures the flush interval. Nil means the real clock.
	Clock         clockwork.Clock
	FlushInterval time.Duration

	// Iterations is the number of indices to write, starting at 0.
	Iterations int

	Logger *slog.Logger
}

// Run executes the loop until Iterations indices are written.
//
// Store errors end the run immediately. If the injector's terminator returns
// instead of killing the process, Run stops at that point and returns the
// *fault.TerminatedError together with the stats gathered so far.
func (s *Scheduler) Run() (RunStats, error) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := s.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	injector := s.Injector
	if injector == nil {
		injector = fault.NewInjector(fault.Never{}, nil)
	}

	stats := RunStats{LastFlushedIndex: -1}
	lastFlush := clock.Now()

	for i := 0; i < s.Iterations; i++ {
		key, value := s.Sequencer.Key(i), s.Sequencer.Value(i)

		if err := s.Secondary.Put(key, value); err != nil {
			return stats, fmt.Errorf("write %s index %d: %w", s.Secondary.Name(), i, err)
		}
		if err := s.Primary.Put(key, value); err != nil {
			return stats, fmt.Errorf("write %s index %d: %w", s.Primary.Name(), i, err)
		}
		stats.Iterations++

		if err := injector.Check(fault.AfterWrite); err != nil {
			return stats, err
		}

		if clock.Since(lastFlush) <= s.FlushInterval {
			continue
		}

		// The interval is measured from the start of a flush pair.
		lastFlush = clock.Now()

		if err := s.Primary.Flush(); err != nil {
			return stats, fmt.Errorf("flush %s at index %d: %w", s.Primary.Name(), i, err)
		}
		if err := injector.Check(fault.BetweenFlushes); err != nil {
			return stats, err
		}
		if err := s.Secondary.Flush(); err != nil {
			return stats, fmt.Errorf("flush %s at index %d: %w", s.Secondary.Name(), i, err)
		}

		stats.FlushPairs++
		stats.LastFlushedIndex = i
		logger.Debug("flush pair", "index", i, "pairs", stats.FlushPairs)
	}

	return stats, nil
}
