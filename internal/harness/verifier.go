package harness

import (
	"fmt"
	"log/slog"

	"github.com/roach88/flushsafety/internal/sequence"
)

// DefaultVerifyLimit is the scan ceiling used when Verifier.Limit is zero.
const DefaultVerifyLimit = 1_000_000

// Verifier scans the state left by a previous process.
type Verifier struct {
	Primary   Partition
	Secondary Partition
	Sequencer sequence.Sequencer

	// Limit bounds the scan. Zero means DefaultVerifyLimit.
	Limit int

	Logger *slog.Logger
}

// Verify walks indices from 0 and stops at the first index missing from
// secondary. Indices past the gap are never read: records are written
// contiguously from 0, so the gap is the end of the durable data.
//
// For every index below the gap the primary record must exist. The first one
// that does not is returned as an *InvariantViolationError. Store errors are
// returned wrapped.
//
// Verify only reads, so repeated calls on unchanged state agree.
func (v *Verifier) Verify() (Verification, error) {
	logger := v.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := v.Limit
	if limit <= 0 {
		limit = DefaultVerifyLimit
	}

	for i := 0; i < limit; i++ {
		key := v.Sequencer.Key(i)

		ok, err := v.Secondary.Exists(key)
		if err != nil {
			return Verification{}, fmt.Errorf("verify %s index %d: %w", v.Secondary.Name(), i, err)
		}
		if !ok {
			logger.Info("verification passed", "gap", i)
			return Verification{Gap: i}, nil
		}

		ok, err = v.Primary.Exists(key)
		if err != nil {
			return Verification{}, fmt.Errorf("verify %s index %d: %w", v.Primary.Name(), i, err)
		}
		if !ok {
			logger.Error("invariant violated",
				"index", i,
				"key", string(key),
			)
			return Verification{}, &InvariantViolationError{Index: i, Key: string(key)}
		}
	}

	logger.Info("verification passed", "gap", limit, "limit_reached", true)
	return Verification{Gap: limit, LimitReached: true}, nil
}
