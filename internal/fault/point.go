package fault

import (
	"errors"
	"fmt"
)

// Point names a place in the write/flush cycle where a crash may be injected.
type Point string

const (
	// AfterWrite is reached after every paired write, while the writes since
	// the last flush are still volatile.
	AfterWrite Point = "after-write"

	// BetweenFlushes is reached after the primary partition has been flushed
	// and before the secondary partition is.
	BetweenFlushes Point = "between-flushes"
)

// Points lists every injection point in cycle order.
var Points = []Point{AfterWrite, BetweenFlushes}

// ParsePoint converts a point name back to a Point.
func ParsePoint(s string) (Point, error) {
	for _, p := range Points {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown fault point %q", s)
}

// ErrTerminated is matched by the error Injector.Check returns when the
// terminator did not end the process.
var ErrTerminated = errors.New("terminated by fault injection")

// TerminatedError records where an injected crash happened.
type TerminatedError struct {
	Point Point
	// Hit is the 1-based number of times Point had been reached, including
	// the crashing one.
	Hit int64
}

func (e *TerminatedError) Error() string {
	return fmt.Sprintf("%v at %s (hit %d)", ErrTerminated, e.Point, e.Hit)
}

// Is makes errors.Is(err, ErrTerminated) true.
func (e *TerminatedError) Is(target error) bool {
	return target == ErrTerminated
}
