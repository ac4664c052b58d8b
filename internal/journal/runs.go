package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Outcome is the recorded result of a run.
type Outcome string

const (
	// OutcomeRunning marks a run that has started and not yet finished.
	OutcomeRunning Outcome = "running"
	// OutcomeCrashed marks a run whose process died before finishing,
	// normally through an induced kill.
	OutcomeCrashed Outcome = "crashed"
	// OutcomeViolated marks a run whose startup verification failed.
	OutcomeViolated Outcome = "violated"
	// OutcomeCompleted marks a run that reached its iteration limit.
	OutcomeCompleted Outcome = "completed"
	// OutcomeFailed marks a run that stopped on a store or setup error.
	OutcomeFailed Outcome = "failed"
)

// ErrRunNotFound is returned when a run ID is not in the journal.
var ErrRunNotFound = errors.New("run not found")

// Settings are the run parameters recorded when a run begins.
type Settings struct {
	StorageDir       string
	WALEnabled       bool
	FlushIntervalMS  int64
	CrashProbability float64
	Seed             uint64
}

// Summary carries the counters recorded when a run finishes.
type Summary struct {
	Iterations     int64
	FlushPairs     int64
	ViolationIndex *int64
	Err            string
}

// Run is one row of the journal.
type Run struct {
	ID             string     `json:"id"`
	Seq            int64      `json:"seq"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	Settings       Settings   `json:"-"`
	VerifiedGap    *int64     `json:"verified_gap,omitempty"`
	ViolationIndex *int64     `json:"violation_index,omitempty"`
	Iterations     int64      `json:"iterations"`
	FlushPairs     int64      `json:"flush_pairs"`
	Outcome        Outcome    `json:"outcome"`
	Error          string     `json:"error,omitempty"`
}

// MarkInterrupted marks every run still recorded as running as crashed and
// returns how many were updated. Call it once at startup, before Begin: a
// process holding the storage directory is the only writer, so any running
// row left over belongs to a process that was killed.
func (j *Journal) MarkInterrupted(ctx context.Context) (int64, error) {
	res, err := j.db.ExecContext(ctx, `
		UPDATE runs SET outcome = ?, finished_at = ?
		WHERE outcome = ?
	`, OutcomeCrashed, j.now(), OutcomeRunning)
	if err != nil {
		return 0, fmt.Errorf("mark interrupted runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark interrupted runs: %w", err)
	}
	return n, nil
}

// Begin records a new running run and returns its ID.
func (j *Journal) Begin(ctx context.Context, s Settings) (string, error) {
	id := j.ids.Generate()

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(seq), 0) + 1 FROM runs").Scan(&seq); err != nil {
		return "", fmt.Errorf("next run seq: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (
			id, seq, started_at, storage_dir, wal_enabled,
			flush_interval_ms, crash_probability, seed, outcome
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, seq, j.now(), s.StorageDir, s.WALEnabled,
		s.FlushIntervalMS, s.CrashProbability, strconv.FormatUint(s.Seed, 10), OutcomeRunning)
	if err != nil {
		return "", fmt.Errorf("insert run %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit run %s: %w", id, err)
	}
	return id, nil
}

// RecordVerification stores the gap index found by startup verification.
func (j *Journal) RecordVerification(ctx context.Context, id string, gap int64) error {
	return j.update(ctx, id, "UPDATE runs SET verified_gap = ? WHERE id = ?", gap, id)
}

// Finish records the final outcome and counters of a run.
func (j *Journal) Finish(ctx context.Context, id string, outcome Outcome, sum Summary) error {
	var violation sql.NullInt64
	if sum.ViolationIndex != nil {
		violation = sql.NullInt64{Int64: *sum.ViolationIndex, Valid: true}
	}
	return j.update(ctx, id, `
		UPDATE runs
		SET outcome = ?, finished_at = ?, iterations = ?, flush_pairs = ?,
		    violation_index = ?, error = ?
		WHERE id = ?
	`, outcome, j.now(), sum.Iterations, sum.FlushPairs, violation, sum.Err, id)
}

func (j *Journal) update(ctx context.Context, id, query string, args ...any) error {
	res, err := j.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update run %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update run %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

const selectRun = `
	SELECT id, seq, started_at, finished_at, storage_dir, wal_enabled,
	       flush_interval_ms, crash_probability, seed, verified_gap,
	       violation_index, iterations, flush_pairs, outcome, error
	FROM runs
`

// Get returns the run with the given ID.
func (j *Journal) Get(ctx context.Context, id string) (Run, error) {
	row := j.db.QueryRowContext(ctx, selectRun+"WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", id, err)
	}
	return run, nil
}

// Recent returns up to limit runs, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Run, error) {
	rows, err := j.db.QueryContext(ctx, selectRun+"ORDER BY seq DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("query recent runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// CrashStreak returns the number of crashed runs recorded after the last run
// that finished with any other outcome.
func (j *Journal) CrashStreak(ctx context.Context) (int64, error) {
	var n int64
	err := j.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM runs
		WHERE outcome = ?
		  AND seq > COALESCE((
		      SELECT MAX(seq) FROM runs WHERE outcome NOT IN (?, ?)
		  ), 0)
	`, OutcomeCrashed, OutcomeCrashed, OutcomeRunning).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count crash streak: %w", err)
	}
	return n, nil
}

// now returns the journal clock's time as UTC RFC 3339 text.
func (j *Journal) now() string {
	return j.clock.Now().UTC().Format(time.RFC3339Nano)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var (
		run        Run
		startedAt  string
		finishedAt sql.NullString
		seed       string
		gap        sql.NullInt64
		violation  sql.NullInt64
	)
	err := s.Scan(
		&run.ID, &run.Seq, &startedAt, &finishedAt,
		&run.Settings.StorageDir, &run.Settings.WALEnabled,
		&run.Settings.FlushIntervalMS, &run.Settings.CrashProbability, &seed,
		&gap, &violation, &run.Iterations, &run.FlushPairs, &run.Outcome, &run.Error,
	)
	if err != nil {
		return Run{}, err
	}

	if run.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return Run{}, fmt.Errorf("parse started_at %q: %w", startedAt, err)
	}
	if finishedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, finishedAt.String)
		if err != nil {
			return Run{}, fmt.Errorf("parse finished_at %q: %w", finishedAt.String, err)
		}
		run.FinishedAt = &t
	}
	if run.Settings.Seed, err = strconv.ParseUint(seed, 10, 64); err != nil {
		return Run{}, fmt.Errorf("parse seed %q: %w", seed, err)
	}
	if gap.Valid {
		run.VerifiedGap = &gap.Int64
	}
	if violation.Valid {
		run.ViolationIndex = &violation.Int64
	}
	return run, nil
}
