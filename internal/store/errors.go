package store

import "errors"

var (
	// ErrPartitionNotFound is returned when an operation names a partition
	// the store does not currently host.
	ErrPartitionNotFound = errors.New("partition not found")

	// ErrInvalidPartitionName is returned for names that cannot be used as a
	// partition directory.
	ErrInvalidPartitionName = errors.New("invalid partition name")

	// ErrClosed is returned by every operation on a closed store.
	ErrClosed = errors.New("store closed")
)
