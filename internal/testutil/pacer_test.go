package testutil

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"

	"github.com/roach88/flushsafety/internal/fault"
)

func TestFlushPacer_AdvancesEveryNthWrite(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(start)
	p := NewFlushPacer(nil, clock, 3, time.Second)

	for i := 1; i <= 7; i++ {
		assert.False(t, p.ShouldCrash(fault.AfterWrite))
		assert.Equal(t, start.Add(time.Duration(i/3)*time.Second), clock.Now(), "after write %d", i)
	}
	assert.Equal(t, 7, p.Writes())
}

func TestFlushPacer_IgnoresOtherPoints(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(start)
	p := NewFlushPacer(nil, clock, 1, time.Second)

	p.ShouldCrash(fault.BetweenFlushes)
	assert.Equal(t, start, clock.Now())
	assert.Zero(t, p.Writes())
}

func TestFlushPacer_ZeroEveryNeverAdvances(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(start)
	p := NewFlushPacer(nil, clock, 0, time.Second)

	for i := 0; i < 5; i++ {
		p.ShouldCrash(fault.AfterWrite)
	}
	assert.Equal(t, start, clock.Now())
}

func TestFlushPacer_DelegatesCrashDecision(t *testing.T) {
	clock := clockwork.NewFakeClock()
	p := NewFlushPacer(fault.NewScript(fault.At(fault.AfterWrite, 2)), clock, 1, time.Second)

	assert.False(t, p.ShouldCrash(fault.AfterWrite))
	assert.True(t, p.ShouldCrash(fault.AfterWrite))
	assert.False(t, p.ShouldCrash(fault.AfterWrite))
}

func TestRecordingTerminator(t *testing.T) {
	term := &RecordingTerminator{}
	in := fault.NewInjector(fault.NewScript(fault.At(fault.BetweenFlushes, 1)), term)

	assert.NoError(t, in.Check(fault.AfterWrite))
	err := in.Check(fault.BetweenFlushes)
	assert.ErrorIs(t, err, fault.ErrTerminated)
	assert.Equal(t, []fault.Point{fault.BetweenFlushes}, term.Points())
}
