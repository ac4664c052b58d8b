// Package journal records every harness invocation in a SQLite database.
//
// The harness process is killed on purpose, so a run cannot report its own
// crash. Instead each run is inserted as "running" when it starts and
// finished with its outcome when it ends. A row still "running" when the next
// process opens the journal belonged to a process that died, and is marked
// "crashed". This turns a long sequence of crash/restart cycles into a
// queryable history: how many crashes the store survived, at what gap each
// verification stopped, and which run (if any) caught a violation.
//
// # Database Configuration
//
//   - WAL mode: the journal itself must survive SIGKILL
//   - synchronous=NORMAL: a process kill never loses committed rows
//   - busy_timeout=5000: wait for locks up to 5 seconds
//
// Ordering uses the seq column (a logical counter), never wall-clock time.
package journal
