package journal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testEpoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// createTestJournal opens a journal in a temp dir with a fake clock and
// predetermined run IDs.
func createTestJournal(t *testing.T, ids ...string) (*Journal, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(testEpoch)
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"), Options{
		Clock: clock,
		IDs:   NewFixedGenerator(ids...),
	})
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j, clock
}

func testSettings() Settings {
	return Settings{
		StorageDir:       "storage",
		WALEnabled:       false,
		FlushIntervalMS:  1000,
		CrashProbability: 0.00001,
		Seed:             42,
	}
}

func TestOpen_CreatesDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := Open(path, Options{})
	require.NoError(t, err)
	defer j.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestOpen_Pragmas(t *testing.T) {
	j, _ := createTestJournal(t)
	ctx := context.Background()

	assert.NoError(t, j.verifyPragma(ctx, "journal_mode", "wal"))
	assert.NoError(t, j.verifyPragma(ctx, "synchronous", "1"))
	assert.NoError(t, j.verifyPragma(ctx, "busy_timeout", "5000"))
	assert.NoError(t, j.verifyPragma(ctx, "user_version", "1"))
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	j, err := Open(path, Options{IDs: NewFixedGenerator("run-1")})
	require.NoError(t, err)
	_, err = j.Begin(ctx, testSettings())
	require.NoError(t, err)
	require.NoError(t, j.Close())

	for i := 0; i < 3; i++ {
		j, err = Open(path, Options{})
		require.NoError(t, err, "open %d", i)
		require.NoError(t, j.Close())
	}

	j, err = Open(path, Options{})
	require.NoError(t, err)
	defer j.Close()

	run, err := j.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeRunning, run.Outcome)
}

func TestOpen_RejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := Open(path, Options{})
	require.NoError(t, err)
	_, err = j.db.Exec("PRAGMA user_version = 99")
	require.NoError(t, err)
	require.NoError(t, j.Close())

	_, err = Open(path, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newer than supported")
}

func TestBegin_RecordsSettings(t *testing.T) {
	j, _ := createTestJournal(t, "run-1")
	ctx := context.Background()

	settings := testSettings()
	settings.Seed = ^uint64(0)

	id, err := j.Begin(ctx, settings)
	require.NoError(t, err)
	assert.Equal(t, "run-1", id)

	run, err := j.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), run.Seq)
	assert.Equal(t, testEpoch, run.StartedAt)
	assert.Nil(t, run.FinishedAt)
	assert.Equal(t, settings, run.Settings)
	assert.Nil(t, run.VerifiedGap)
	assert.Nil(t, run.ViolationIndex)
	assert.Equal(t, OutcomeRunning, run.Outcome)
}

func TestBegin_AssignsIncreasingSeq(t *testing.T) {
	j, _ := createTestJournal(t, "c", "a", "b")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := j.Begin(ctx, testSettings())
		require.NoError(t, err)
	}

	runs, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 3)

	// Newest first, ordered by seq rather than by ID.
	assert.Equal(t, []string{"b", "a", "c"}, []string{runs[0].ID, runs[1].ID, runs[2].ID})
	assert.Equal(t, []int64{3, 2, 1}, []int64{runs[0].Seq, runs[1].Seq, runs[2].Seq})
}

func TestBegin_DefaultIDsAreUUIDv7(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"), Options{})
	require.NoError(t, err)
	defer j.Close()

	id, err := j.Begin(context.Background(), testSettings())
	require.NoError(t, err)
	require.Len(t, id, 36)
	assert.Equal(t, byte('7'), id[14], "version nibble")
}

func TestFinish(t *testing.T) {
	j, clock := createTestJournal(t, "run-1")
	ctx := context.Background()

	id, err := j.Begin(ctx, testSettings())
	require.NoError(t, err)
	require.NoError(t, j.RecordVerification(ctx, id, 1234))

	clock.Advance(90 * time.Second)
	require.NoError(t, j.Finish(ctx, id, OutcomeCompleted, Summary{Iterations: 1000, FlushPairs: 12}))

	run, err := j.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, run.Outcome)
	require.NotNil(t, run.VerifiedGap)
	assert.Equal(t, int64(1234), *run.VerifiedGap)
	require.NotNil(t, run.FinishedAt)
	assert.Equal(t, testEpoch.Add(90*time.Second), *run.FinishedAt)
	assert.Equal(t, int64(1000), run.Iterations)
	assert.Equal(t, int64(12), run.FlushPairs)
	assert.Nil(t, run.ViolationIndex)
	assert.Empty(t, run.Error)
}

func TestFinish_Violation(t *testing.T) {
	j, _ := createTestJournal(t, "run-1")
	ctx := context.Background()

	id, err := j.Begin(ctx, testSettings())
	require.NoError(t, err)

	index := int64(57)
	require.NoError(t, j.Finish(ctx, id, OutcomeViolated, Summary{
		ViolationIndex: &index,
		Err:            "invariant violated at index 57",
	}))

	run, err := j.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, OutcomeViolated, run.Outcome)
	require.NotNil(t, run.ViolationIndex)
	assert.Equal(t, int64(57), *run.ViolationIndex)
	assert.Equal(t, "invariant violated at index 57", run.Error)
}

func TestUnknownRun(t *testing.T) {
	j, _ := createTestJournal(t)
	ctx := context.Background()

	_, err := j.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.ErrorIs(t, j.RecordVerification(ctx, "missing", 1), ErrRunNotFound)
	assert.ErrorIs(t, j.Finish(ctx, "missing", OutcomeCompleted, Summary{}), ErrRunNotFound)
}

func TestMarkInterrupted(t *testing.T) {
	j, clock := createTestJournal(t, "run-1", "run-2", "run-3")
	ctx := context.Background()

	first, err := j.Begin(ctx, testSettings())
	require.NoError(t, err)
	require.NoError(t, j.Finish(ctx, first, OutcomeCompleted, Summary{}))

	// Two runs that never finished, as after two kills.
	_, err = j.Begin(ctx, testSettings())
	require.NoError(t, err)
	_, err = j.Begin(ctx, testSettings())
	require.NoError(t, err)

	clock.Advance(time.Minute)
	n, err := j.MarkInterrupted(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	for _, id := range []string{"run-2", "run-3"} {
		run, err := j.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, OutcomeCrashed, run.Outcome)
		require.NotNil(t, run.FinishedAt)
		assert.Equal(t, testEpoch.Add(time.Minute), *run.FinishedAt)
	}

	run, err := j.Get(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, run.Outcome)

	n, err = j.MarkInterrupted(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "second call finds nothing to mark")
}

func TestCrashStreak(t *testing.T) {
	j, _ := createTestJournal(t, "r1", "r2", "r3", "r4", "r5")
	ctx := context.Background()

	streak, err := j.CrashStreak(ctx)
	require.NoError(t, err)
	assert.Zero(t, streak)

	crash := func() {
		t.Helper()
		_, err := j.Begin(ctx, testSettings())
		require.NoError(t, err)
		_, err = j.MarkInterrupted(ctx)
		require.NoError(t, err)
	}

	crash()
	crash()

	id, err := j.Begin(ctx, testSettings())
	require.NoError(t, err)
	require.NoError(t, j.Finish(ctx, id, OutcomeCompleted, Summary{}))

	crash()
	crash()

	streak, err = j.CrashStreak(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), streak)
}

func TestFixedGenerator_PanicsWhenExhausted(t *testing.T) {
	g := NewFixedGenerator("only")
	assert.Equal(t, "only", g.Generate())
	assert.Panics(t, func() { g.Generate() })
}
