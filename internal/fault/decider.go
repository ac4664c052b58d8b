package fault

import (
	"math/rand/v2"
)

// Decider decides whether to crash at a point.
type Decider interface {
	ShouldCrash(p Point) bool
}

// Never is a Decider that never crashes.
type Never struct{}

// ShouldCrash always returns false.
func (Never) ShouldCrash(Point) bool { return false }

// Bernoulli crashes independently at every point with a fixed probability.
//
// Not safe for concurrent use; the harness has a single thread of control.
type Bernoulli struct {
	probability float64
	rng         *rand.Rand
}

// NewBernoulli creates a Bernoulli decider. A zero seed draws a random one.
// Probabilities outside [0, 1] are clamped.
func NewBernoulli(probability float64, seed uint64) *Bernoulli {
	if seed == 0 {
		seed = rand.Uint64()
	}
	switch {
	case probability < 0:
		probability = 0
	case probability > 1:
		probability = 1
	}
	return &Bernoulli{
		probability: probability,
		rng:         rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Probability returns the per-trial crash probability.
func (b *Bernoulli) Probability() float64 {
	return b.probability
}

// ShouldCrash runs one trial.
func (b *Bernoulli) ShouldCrash(Point) bool {
	return b.rng.Float64() < b.probability
}

// Trigger schedules a crash on the Hit-th time Point is reached (1-based).
type Trigger struct {
	Point Point
	Hit   int64
}

// At returns a Trigger for the n-th arrival at p.
func At(p Point, n int64) Trigger {
	return Trigger{Point: p, Hit: n}
}

// Script crashes at an exact, predetermined sequence of points.
//
// Each call to ShouldCrash counts as one arrival at its point.
type Script struct {
	triggers map[Trigger]bool
	arrivals map[Point]int64
}

// NewScript creates a Script that fires on each of the given triggers.
func NewScript(triggers ...Trigger) *Script {
	s := &Script{
		triggers: make(map[Trigger]bool, len(triggers)),
		arrivals: make(map[Point]int64),
	}
	for _, t := range triggers {
		s.triggers[t] = true
	}
	return s
}

// ShouldCrash counts the arrival and reports whether a trigger matches it.
func (s *Script) ShouldCrash(p Point) bool {
	s.arrivals[p]++
	return s.triggers[Trigger{Point: p, Hit: s.arrivals[p]}]
}

// Arrivals returns how many times p has been reached.
func (s *Script) Arrivals(p Point) int64 {
	return s.arrivals[p]
}
