package harness

import (
	"github.com/roach88/flushsafety/internal/journal"
)

// Partition names used in the storage directory.
const (
	PrimaryPartition   = "primary"
	SecondaryPartition = "secondary"
)

// Partition is the per-partition store surface the harness drives.
// *store.Partition implements it.
type Partition interface {
	Name() string
	Put(key, value []byte) error
	Exists(key []byte) (bool, error)
	Flush() error
	Recreate() error
}

// Verification is the outcome of a scan that found no violation.
type Verification struct {
	// Gap is the first index absent from secondary. Every index below it was
	// present in both partitions.
	Gap int `json:"gap"`

	// LimitReached is set when the scan stopped at its ceiling instead of at
	// a real gap. Gap then equals the ceiling.
	LimitReached bool `json:"limit_reached,omitempty"`
}

// RunStats summarises one scheduler run.
type RunStats struct {
	// Iterations is the number of write pairs issued.
	Iterations int `json:"iterations"`

	// FlushPairs is the number of completed primary+secondary flushes.
	FlushPairs int `json:"flush_pairs"`

	// LastFlushedIndex is the highest index covered by a completed flush
	// pair, or -1 if none completed.
	LastFlushedIndex int `json:"last_flushed_index"`
}

// Result is the report of one harness process.
type Result struct {
	// RunID identifies the run in the journal. Empty without a journal.
	RunID string `json:"run_id,omitempty"`

	StorageDir string `json:"storage_dir"`
	WALEnabled bool   `json:"wal_enabled"`

	// Verification is nil when the scan found a violation.
	Verification *Verification `json:"verification,omitempty"`

	// ViolationIndex is set when the scan found a violation.
	ViolationIndex *int `json:"violation_index,omitempty"`

	Stats RunStats `json:"stats"`

	// RecoveredCrashes is the number of earlier runs found unfinished in the
	// journal at startup, that is, runs whose process was killed.
	RecoveredCrashes int64 `json:"recovered_crashes"`

	// CrashStreak is the number of consecutive crashed runs before this one.
	CrashStreak int64 `json:"crash_streak"`

	// History holds up to HistoryLimit earlier runs from the journal,
	// newest first.
	History []journal.Run `json:"history,omitempty"`

	Outcome journal.Outcome `json:"outcome"`
}
