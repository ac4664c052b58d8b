package store

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

// DefaultPartition is the partition every store hosts.
const DefaultPartition = "default"

// tombstoneMarker separates a dropped partition's name from its drop sequence
// number in the tombstone directory name.
const tombstoneMarker = ".dropped-"

const (
	defaultCacheSize    = 10 << 20 // 10 MiB, shared by all partitions
	defaultMemTableSize = 10 << 20 // 10 MiB per partition
	defaultMaxOpenFiles = 256
)

// Options configures a Store.
type Options struct {
	// Partitions lists the partitions to create if they are missing.
	// Partitions already present on disk are opened regardless.
	Partitions []string

	// CacheSize is the block cache size in bytes, shared by all partitions.
	CacheSize int64

	// MemTableSize is the per-partition memtable size in bytes. Once a
	// memtable fills up Pebble flushes it in the background.
	MemTableSize uint64

	// MaxOpenFiles bounds the table cache of each partition.
	MaxOpenFiles int

	// WALEnabled turns the write-ahead log on for every partition.
	// When false, writes are durable only after a flush.
	WALEnabled bool

	// FS is the filesystem the store lives on. Defaults to vfs.Default.
	FS vfs.FS

	// Logger receives store diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.CacheSize <= 0 {
		o.CacheSize = defaultCacheSize
	}
	if o.MemTableSize == 0 {
		o.MemTableSize = defaultMemTableSize
	}
	if o.MaxOpenFiles <= 0 {
		o.MaxOpenFiles = defaultMaxOpenFiles
	}
	if o.FS == nil {
		o.FS = vfs.Default
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Store is a set of independently flushable partitions under one directory.
type Store struct {
	mu         sync.RWMutex
	dir        string
	opts       Options
	fs         vfs.FS
	cache      *pebble.Cache
	partitions map[string]*pebble.DB
	drops      int
	closed     bool
	logger     *slog.Logger
}

// Open opens or creates a store rooted at dir.
//
// Every partition directory found under dir is opened, then the default
// partition and any partition named in opts.Partitions are created if absent.
// Tombstones left by an interrupted drop are removed first.
func Open(dir string, opts Options) (*Store, error) {
	opts = opts.withDefaults()

	s := &Store{
		dir:        dir,
		opts:       opts,
		fs:         opts.FS,
		partitions: make(map[string]*pebble.DB),
		logger:     opts.Logger.With("store", dir),
	}

	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	if err := syncDir(s.fs, s.fs.PathDir(dir)); err != nil {
		return nil, fmt.Errorf("sync storage parent directory: %w", err)
	}

	existing, err := s.scan()
	if err != nil {
		return nil, err
	}

	s.cache = pebble.NewCache(opts.CacheSize)

	wanted := append([]string{DefaultPartition}, opts.Partitions...)
	wanted = append(wanted, existing...)
	for _, name := range wanted {
		if err := s.createLocked(name); err != nil {
			s.Close()
			return nil, err
		}
	}

	s.logger.Debug("store opened",
		"partitions", s.partitionNamesLocked(),
		"wal_enabled", opts.WALEnabled,
	)
	return s, nil
}

// scan removes drop tombstones and returns the names of the partition
// directories already present.
func (s *Store) scan() ([]string, error) {
	entries, err := s.fs.List(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list storage directory: %w", err)
	}
	sort.Strings(entries)

	var names []string
	removed := false
	for _, entry := range entries {
		path := s.fs.PathJoin(s.dir, entry)
		if strings.Contains(entry, tombstoneMarker) {
			if err := s.fs.RemoveAll(path); err != nil {
				return nil, fmt.Errorf("remove tombstone %s: %w", entry, err)
			}
			s.logger.Info("removed leftover partition tombstone", "tombstone", entry)
			removed = true
			continue
		}
		info, err := s.fs.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", entry, err)
		}
		if info.IsDir() {
			names = append(names, entry)
		}
	}
	if removed {
		if err := syncDir(s.fs, s.dir); err != nil {
			return nil, fmt.Errorf("sync storage directory: %w", err)
		}
	}
	return names, nil
}

// Dir returns the storage directory.
func (s *Store) Dir() string {
	return s.dir
}

// WALEnabled reports whether writes go through the write-ahead log.
func (s *Store) WALEnabled() bool {
	return s.opts.WALEnabled
}

// Partition returns a handle scoped to the named partition. The partition
// does not have to exist yet.
func (s *Store) Partition(name string) *Partition {
	return &Partition{
		store:  s,
		name:   name,
		logger: s.logger.With("partition", name),
	}
}

// Partitions returns the names of the hosted partitions in sorted order.
func (s *Store) Partitions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.partitionNamesLocked()
}

func (s *Store) partitionNamesLocked() []string {
	names := make([]string, 0, len(s.partitions))
	for name := range s.partitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether the named partition exists.
func (s *Store) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.partitions[name]
	return ok
}

// Put writes key=value to the named partition without syncing.
func (s *Store) Put(name string, key, value []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	db, err := s.lookupLocked(name)
	if err != nil {
		return fmt.Errorf("put: %w", err)
	}
	if err := db.Set(key, value, pebble.NoSync); err != nil {
		return fmt.Errorf("put %s: %w", name, err)
	}
	return nil
}

// Exists reports whether key is present in the named partition.
func (s *Store) Exists(name string, key []byte) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	db, err := s.lookupLocked(name)
	if err != nil {
		return false, fmt.Errorf("exists: %w", err)
	}
	_, closer, err := db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", name, err)
	}
	if err := closer.Close(); err != nil {
		return false, fmt.Errorf("get %s: release value: %w", name, err)
	}
	return true, nil
}

// Flush persists the named partition's memtable and waits for it to be durable.
func (s *Store) Flush(name string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	db, err := s.lookupLocked(name)
	if err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	if err := db.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", name, err)
	}
	return nil
}

func (s *Store) lookupLocked(name string) (*pebble.DB, error) {
	if s.closed {
		return nil, ErrClosed
	}
	db, ok := s.partitions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPartitionNotFound, name)
	}
	return db, nil
}

// CreatePartition creates the named partition if it does not exist.
func (s *Store) CreatePartition(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	return s.createLocked(name)
}

func (s *Store) createLocked(name string) error {
	if err := validatePartitionName(name); err != nil {
		return err
	}
	if _, ok := s.partitions[name]; ok {
		return nil
	}

	path := s.fs.PathJoin(s.dir, name)
	_, statErr := s.fs.Stat(path)
	created := errors.Is(statErr, os.ErrNotExist)
	if statErr != nil && !created {
		return fmt.Errorf("create partition %s: %w", name, statErr)
	}
	if err := s.fs.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create partition %s: %w", name, err)
	}

	db, err := pebble.Open(path, s.pebbleOptions(name))
	if err != nil {
		return fmt.Errorf("open partition %s: %w", name, err)
	}
	if created {
		if err := syncDir(s.fs, s.dir); err != nil {
			db.Close()
			return fmt.Errorf("create partition %s: sync storage directory: %w", name, err)
		}
		s.logger.Debug("partition created", "partition", name)
	}

	s.partitions[name] = db
	return nil
}

// DropPartition removes the named partition and all its data. Dropping a
// partition that does not exist is a no-op. The default partition cannot be
// dropped.
func (s *Store) DropPartition(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if name == DefaultPartition {
		return fmt.Errorf("%w: cannot drop %s", ErrInvalidPartitionName, name)
	}
	db, ok := s.partitions[name]
	if !ok {
		return nil
	}

	delete(s.partitions, name)
	if err := db.Close(); err != nil {
		return fmt.Errorf("drop partition %s: close: %w", name, err)
	}

	path := s.fs.PathJoin(s.dir, name)
	s.drops++
	tombstone := s.fs.PathJoin(s.dir, fmt.Sprintf("%s%s%d", name, tombstoneMarker, s.drops))
	if err := s.fs.Rename(path, tombstone); err != nil {
		return fmt.Errorf("drop partition %s: %w", name, err)
	}
	if err := syncDir(s.fs, s.dir); err != nil {
		return fmt.Errorf("drop partition %s: sync storage directory: %w", name, err)
	}
	if err := s.fs.RemoveAll(tombstone); err != nil {
		return fmt.Errorf("drop partition %s: remove tombstone: %w", name, err)
	}

	s.logger.Debug("partition dropped", "partition", name)
	return nil
}

// Close closes every partition. Unflushed writes are lost unless the WAL is
// enabled. Close is idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	for _, name := range s.partitionNamesLocked() {
		if err := s.partitions[name].Close(); err != nil {
			errs = append(errs, fmt.Errorf("close partition %s: %w", name, err))
		}
	}
	s.partitions = nil
	if s.cache != nil {
		s.cache.Unref()
		s.cache = nil
	}
	return errors.Join(errs...)
}

func (s *Store) pebbleOptions(partition string) *pebble.Options {
	return &pebble.Options{
		Cache:        s.cache,
		DisableWAL:   !s.opts.WALEnabled,
		FS:           s.fs,
		Logger:       pebbleLogger{logger: s.logger, partition: partition},
		MaxOpenFiles: s.opts.MaxOpenFiles,
		MemTableSize: s.opts.MemTableSize,
	}
}

func validatePartitionName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidPartitionName, name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidPartitionName, name)
	case strings.Contains(name, tombstoneMarker):
		return fmt.Errorf("%w: %q contains %q", ErrInvalidPartitionName, name, tombstoneMarker)
	}
	return nil
}

func syncDir(fs vfs.FS, dir string) error {
	d, err := fs.OpenDir(dir)
	if err != nil {
		return err
	}
	return closeAfter(d, d.Sync())
}

func closeAfter(c io.Closer, err error) error {
	if cerr := c.Close(); err == nil {
		err = cerr
	}
	return err
}
