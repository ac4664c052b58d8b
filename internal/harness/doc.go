// Package harness checks that flushing one partition before another keeps
// their durable contents ordered across process crashes.
//
// Every index i produces a pair of records with the same key: one in the
// primary partition and one in the secondary partition. The Scheduler writes
// pairs without flushing and, on a timer, flushes primary strictly before
// secondary. A fault.Injector may kill the process after any write pair or
// between the two flushes of a pair. On the next start the Verifier scans the
// surviving state and requires
//
//	exists(secondary, i) implies exists(primary, i)
//
// for every index below the first gap in secondary. Reset then empties both
// partitions durably before the next write phase.
//
// # Control Flow
//
// Run ties the pieces together for one process:
//
//	verify (state left by the previous process)
//	  -> reset
//	  -> schedule writes and flush pairs until the iteration budget is spent
//
// The loop has no cancellation. It ends when the budget is exhausted, when a
// store error or violation aborts it, or when the injector kills the process.
//
// # Deterministic Testing
//
// Crash scenarios (see LoadScenario and RunScenario) replace the random
// injector with a fault.Script, the wall clock with a fake clock that the
// write loop advances, and the disk with Pebble's strict in-memory
// filesystem, so a crash discards exactly the unsynced state.
package harness
