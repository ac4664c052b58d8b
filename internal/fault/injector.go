package fault

// Injector runs a crash trial each time the harness reaches a Point.
//
// Not safe for concurrent use.
type Injector struct {
	decider    Decider
	terminator Terminator
	hits       map[Point]int64
}

// NewInjector creates an Injector. A nil decider never crashes; a nil
// terminator kills the current process.
func NewInjector(d Decider, t Terminator) *Injector {
	if d == nil {
		d = Never{}
	}
	if t == nil {
		t = SelfKiller{}
	}
	return &Injector{
		decider:    d,
		terminator: t,
		hits:       make(map[Point]int64),
	}
}

// Check records an arrival at p and, if the decider says so, terminates.
//
// With a production terminator Check does not return on a crash. With a
// terminator that returns, Check reports a *TerminatedError so the caller
// stops exactly where the process would have died.
func (in *Injector) Check(p Point) error {
	in.hits[p]++
	if !in.decider.ShouldCrash(p) {
		return nil
	}
	in.terminator.Terminate(p)
	return &TerminatedError{Point: p, Hit: in.hits[p]}
}

// Hits returns how many times p has been reached.
func (in *Injector) Hits(p Point) int64 {
	return in.hits[p]
}
