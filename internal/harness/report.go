package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/flushsafety/internal/journal"
)

// String renders the result as the human-readable run report.
func (r *Result) String() string {
	var b strings.Builder

	line := func(label, format string, args ...any) {
		fmt.Fprintf(&b, "%-14s %s\n", label+":", fmt.Sprintf(format, args...))
	}

	runID := r.RunID
	if runID == "" {
		runID = "-"
	}
	line("run", "%s", runID)

	wal := "off"
	if r.WALEnabled {
		wal = "on"
	}
	line("storage", "%s (wal %s)", r.StorageDir, wal)

	if r.RecoveredCrashes > 0 || r.CrashStreak > 0 {
		line("recovered", "%d interrupted (crash streak %d)", r.RecoveredCrashes, r.CrashStreak)
	}

	for i, run := range r.History {
		label := ""
		if i == 0 {
			label = "history:"
		}
		fmt.Fprintf(&b, "%-14s %s\n", label, describeRun(run))
	}

	switch {
	case r.ViolationIndex != nil:
		line("verification", "FAILED at index %d", *r.ViolationIndex)
	case r.Verification == nil:
		line("verification", "not run")
	case r.Verification.LimitReached:
		line("verification", "passed, no gap below limit %d", r.Verification.Gap)
	default:
		line("verification", "passed, gap at %d", r.Verification.Gap)
	}

	line("iterations", "%d", r.Stats.Iterations)
	if r.Stats.FlushPairs > 0 {
		line("flush pairs", "%d (last flushed index %d)", r.Stats.FlushPairs, r.Stats.LastFlushedIndex)
	} else {
		line("flush pairs", "0")
	}
	line("outcome", "%s", r.Outcome)

	return strings.TrimSuffix(b.String(), "\n")
}

// describeRun renders one journal run on a single line.
func describeRun(run journal.Run) string {
	s := fmt.Sprintf("#%d %s", run.Seq, run.Outcome)
	switch {
	case run.ViolationIndex != nil:
		s += fmt.Sprintf(" at index %d", *run.ViolationIndex)
	case run.VerifiedGap != nil:
		s += fmt.Sprintf(", gap %d", *run.VerifiedGap)
	}
	if run.Outcome == journal.OutcomeCompleted || run.Outcome == journal.OutcomeFailed {
		s += fmt.Sprintf(", %d iterations", run.Iterations)
	}
	return s
}
