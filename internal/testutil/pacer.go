package testutil

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/roach88/flushsafety/internal/fault"
)

// FlushPacer is a fault.Decider that drives a fake clock from the write loop.
//
// On every Every-th arrival at fault.AfterWrite it advances the clock by
// Step, so a scheduler reading the same clock with a flush interval shorter
// than Step performs a flush pair on exactly those iterations. Crash
// decisions are delegated to the wrapped Decider.
//
// Thread-safety: FlushPacer is safe for concurrent use via internal mutex.
type FlushPacer struct {
	mu      sync.Mutex
	decider fault.Decider
	clock   *clockwork.FakeClock
	every   int
	step    time.Duration
	writes  int
}

// NewFlushPacer creates a FlushPacer. A nil decider never crashes; every <= 0
// never advances the clock.
func NewFlushPacer(d fault.Decider, clock *clockwork.FakeClock, every int, step time.Duration) *FlushPacer {
	if d == nil {
		d = fault.Never{}
	}
	return &FlushPacer{decider: d, clock: clock, every: every, step: step}
}

// ShouldCrash advances the clock on paced write arrivals, then asks the
// wrapped decider.
func (p *FlushPacer) ShouldCrash(pt fault.Point) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if pt == fault.AfterWrite {
		p.writes++
		if p.every > 0 && p.writes%p.every == 0 {
			p.clock.Advance(p.step)
		}
	}
	return p.decider.ShouldCrash(pt)
}

// Writes returns the number of after-write arrivals seen.
func (p *FlushPacer) Writes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writes
}
