package testutil

import (
	"sync"

	"github.com/roach88/flushsafety/internal/fault"
)

// RecordingTerminator is a fault.Terminator that records each requested kill
// and returns, so the injector reports a *fault.TerminatedError instead of
// ending the test binary.
//
// Thread-safety: RecordingTerminator is safe for concurrent use via internal mutex.
type RecordingTerminator struct {
	mu     sync.Mutex
	points []fault.Point
}

// Terminate records p.
func (r *RecordingTerminator) Terminate(p fault.Point) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.points = append(r.points, p)
}

// Points returns the recorded kill points in order.
func (r *RecordingTerminator) Points() []fault.Point {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]fault.Point(nil), r.points...)
}
