package store

import (
	"errors"
	"fmt"
	"log/slog"
)

// Partition is a client scoped to one named partition of a shared Store.
//
// Flush tolerates a missing partition: a partition dropped concurrently by a
// lifecycle operation is an expected race, so the flush is logged and skipped.
// Put and Exists do not; they report ErrPartitionNotFound.
type Partition struct {
	store  *Store
	name   string
	logger *slog.Logger
}

// Name returns the partition name.
func (p *Partition) Name() string {
	return p.name
}

// Put writes key=value without flushing.
func (p *Partition) Put(key, value []byte) error {
	return p.store.Put(p.name, key, value)
}

// Exists reports whether key is present.
func (p *Partition) Exists(key []byte) (bool, error) {
	return p.store.Exists(p.name, key)
}

// Flush makes every prior write to the partition durable.
func (p *Partition) Flush() error {
	err := p.store.Flush(p.name)
	if errors.Is(err, ErrPartitionNotFound) {
		p.logger.Warn("flush: partition not found, ignoring")
		return nil
	}
	return err
}

// CreateIfAbsent creates the partition if it does not exist.
func (p *Partition) CreateIfAbsent() error {
	return p.store.CreatePartition(p.name)
}

// Drop removes the partition and its data if it exists.
func (p *Partition) Drop() error {
	return p.store.DropPartition(p.name)
}

// Recreate drops the partition and creates it again, empty. It is idempotent.
func (p *Partition) Recreate() error {
	if err := p.Drop(); err != nil {
		return fmt.Errorf("recreate %s: %w", p.name, err)
	}
	if err := p.CreateIfAbsent(); err != nil {
		return fmt.Errorf("recreate %s: %w", p.name, err)
	}
	return nil
}
