package harness

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/jonboulle/clockwork"
	"gopkg.in/yaml.v3"

	"github.com/roach88/flushsafety/internal/fault"
	"github.com/roach88/flushsafety/internal/sequence"
	"github.com/roach88/flushsafety/internal/store"
	"github.com/roach88/flushsafety/internal/testutil"
)

// Scenario describes one deterministic crash: how many records to write,
// when flush pairs happen, where the process dies, and what the next process
// must find.
//
//	name: crash_between_flushes
//	description: "Killed after primary's second flush, before secondary's"
//	iterations: 10
//	flush_every: 4
//	crash:
//	  point: between-flushes
//	  hit: 2
//	expect:
//	  gap: 4
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Iterations is the scheduler's index budget.
	Iterations int `yaml:"iterations"`

	// FlushEvery makes the flush interval elapse after every n-th write
	// pair. Zero means no flush pair ever happens.
	FlushEvery int `yaml:"flush_every"`

	// KeyPrefix overrides the default key prefix.
	KeyPrefix string `yaml:"key_prefix,omitempty"`

	// Crash is where the process dies. Nil runs to completion and then
	// crashes, discarding whatever was never flushed.
	Crash *CrashPoint `yaml:"crash,omitempty"`

	// Expect is what verification on the restarted store must report.
	Expect ScenarioExpect `yaml:"expect"`
}

// CrashPoint selects the n-th arrival at a fault point.
type CrashPoint struct {
	Point string `yaml:"point"`
	Hit   int64  `yaml:"hit"`
}

// ScenarioExpect is the expected post-crash verification.
type ScenarioExpect struct {
	Gap int `yaml:"gap"`
}

// ScenarioResult is what RunScenario observed. It is the golden snapshot of
// a scenario.
type ScenarioResult struct {
	Name string `json:"name"`

	// CrashedAt is the fault point the process died at, empty if the
	// scheduler finished first.
	CrashedAt fault.Point `json:"crashed_at,omitempty"`

	// Stats are the scheduler stats at the moment of the crash.
	Stats RunStats `json:"stats"`

	// Verification is the scan of the restarted store. Nil on violation.
	Verification *Verification `json:"verification,omitempty"`

	// ViolationIndex is set when the restarted store violated the invariant.
	ViolationIndex *int `json:"violation_index,omitempty"`
}

// Pass reports whether the result matches the scenario's expectation.
func (r *ScenarioResult) Pass(sc *Scenario) bool {
	return r.ViolationIndex == nil && r.Verification != nil && r.Verification.Gap == sc.Expect.Gap
}

const (
	scenarioDir      = "/flushsafety"
	scenarioInterval = time.Second
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Iterations <= 0 {
		return fmt.Errorf("iterations must be positive")
	}
	if s.FlushEvery < 0 {
		return fmt.Errorf("flush_every must not be negative")
	}
	if s.Expect.Gap < 0 {
		return fmt.Errorf("expect.gap must not be negative")
	}
	if s.Crash != nil {
		if _, err := fault.ParsePoint(s.Crash.Point); err != nil {
			return fmt.Errorf("crash.point: %w", err)
		}
		if s.Crash.Hit <= 0 {
			return fmt.Errorf("crash.hit must be positive")
		}
	}
	return nil
}

// RunScenario executes a scenario on a fresh strict in-memory filesystem:
// it resets the partitions, runs the scheduler under a scripted injector and
// a paced fake clock, crashes, reopens the store, and verifies it.
func RunScenario(sc *Scenario) (*ScenarioResult, error) {
	if err := validateScenario(sc); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	fs := vfs.NewStrictMem()
	logger := testutil.DiscardLogger()
	opts := store.Options{
		Partitions:   []string{PrimaryPartition, SecondaryPartition},
		CacheSize:    1 << 20,
		MemTableSize: 4 << 20,
		MaxOpenFiles: 64,
		FS:           fs,
		Logger:       logger,
	}

	st, err := store.Open(scenarioDir, opts)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	primary := st.Partition(PrimaryPartition)
	secondary := st.Partition(SecondaryPartition)
	if err := Reset(secondary, primary); err != nil {
		st.Close()
		return nil, err
	}

	var script fault.Decider = fault.Never{}
	if sc.Crash != nil {
		point, _ := fault.ParsePoint(sc.Crash.Point)
		script = fault.NewScript(fault.At(point, sc.Crash.Hit))
	}
	clock := clockwork.NewFakeClock()
	pacer := testutil.NewFlushPacer(script, clock, sc.FlushEvery, scenarioInterval+time.Millisecond)

	seq := sequence.New(sc.KeyPrefix)
	scheduler := &Scheduler{
		Primary:       primary,
		Secondary:     secondary,
		Sequencer:     seq,
		Injector:      fault.NewInjector(pacer, &testutil.RecordingTerminator{}),
		Clock:         clock,
		FlushInterval: scenarioInterval,
		Iterations:    sc.Iterations,
		Logger:        logger,
	}

	result := &ScenarioResult{Name: sc.Name}
	stats, err := scheduler.Run()
	result.Stats = stats

	var terminated *fault.TerminatedError
	switch {
	case errors.As(err, &terminated):
		result.CrashedAt = terminated.Point
	case err != nil:
		st.Close()
		return nil, err
	}

	if err := crashStore(fs, st); err != nil {
		return nil, err
	}

	st, err = store.Open(scenarioDir, opts)
	if err != nil {
		return nil, fmt.Errorf("reopen store after crash: %w", err)
	}
	defer st.Close()

	verifier := &Verifier{
		Primary:   st.Partition(PrimaryPartition),
		Secondary: st.Partition(SecondaryPartition),
		Sequencer: seq,
		Limit:     sc.Iterations + 1,
		Logger:    logger,
	}
	verification, err := verifier.Verify()
	var violation *InvariantViolationError
	switch {
	case errors.As(err, &violation):
		index := violation.Index
		result.ViolationIndex = &index
	case err != nil:
		return nil, err
	default:
		result.Verification = &verification
	}

	return result, nil
}

// crashStore drops everything st did not sync. A close error means the store
// was not shut down cleanly even before the simulated crash.
func crashStore(fs *vfs.MemFS, st io.Closer) error {
	if err := testutil.SimulateCrash(fs, st); err != nil {
		return fmt.Errorf("close store at crash: %w", err)
	}
	return nil
}
