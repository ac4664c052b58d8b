// Package fault injects abrupt process termination at named points of the
// harness write/flush cycle.
//
// An Injector pairs a Decider, which answers "crash here?" for each point the
// harness reaches, with a Terminator, which carries the crash out. In
// production the decider is a Bernoulli trial and the terminator sends
// SIGKILL to the current process: no deferred calls run, nothing is flushed,
// and the store is left exactly as a power loss or OOM kill would leave it.
// Tests swap in a Script decider and a terminator that returns, so a crash can
// be forced at an exact point and observed as an ErrTerminated error.
package fault
