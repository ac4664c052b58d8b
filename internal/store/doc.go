// Package store provides the partitioned key-value store the harness writes to.
//
// A Store hosts a set of named partitions. Each partition is an independent
// Pebble instance living in its own sub-directory of the storage directory, so
// every partition can be flushed on its own schedule. A "default" partition is
// always present, mirroring the default column family of LSM stores that
// support them.
//
// # Durability
//
// Writes never fsync. With the write-ahead log disabled (the default), a write
// only becomes durable once its partition is flushed; anything still sitting in
// a memtable is lost when the process dies. With the WAL enabled, Pebble replays
// the log on open and treats a torn tail as the end of the log.
//
// # Partition lifecycle
//
// Creating a partition syncs the storage directory so the empty partition
// survives a crash. Dropping a partition renames its directory to a tombstone,
// syncs the storage directory, then removes the tombstone. Open garbage
// collects tombstones left behind by a crash in the middle of a drop.
//
// # Concurrency
//
// A Store is safe for concurrent use. Data operations (put, exists, flush)
// share a read lock; lifecycle operations (create, drop, close) take the write
// lock. Callers never see the lock.
package store
