// Package config holds the harness configuration: defaults, YAML loading and
// schema validation.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// JournalDisabled turns the run journal off when used as the journal path.
const JournalDisabled = "none"

// journalFile is the default journal file name inside the storage directory.
const journalFile = "journal.db"

// Config is the complete harness configuration.
type Config struct {
	// StorageDir is the directory holding the store's partitions.
	StorageDir string `yaml:"storage_dir" json:"storage_dir"`

	// FlushIntervalMS is the minimum wall-clock time between flush pairs.
	FlushIntervalMS int `yaml:"flush_interval_ms" json:"flush_interval_ms"`

	// WALEnabled routes harness writes through the store's write-ahead log.
	WALEnabled bool `yaml:"wal_enabled" json:"wal_enabled"`

	// Iterations bounds the write loop.
	Iterations int `yaml:"iterations" json:"iterations"`

	// VerifyLimit bounds the startup verification scan.
	VerifyLimit int `yaml:"verify_limit" json:"verify_limit"`

	// CrashProbability is the chance of an injected crash at each point.
	CrashProbability float64 `yaml:"crash_probability" json:"crash_probability"`

	// Seed seeds the crash trials. Zero picks a random seed.
	Seed uint64 `yaml:"seed" json:"seed"`

	// KeyPrefix prefixes every record key.
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`

	// Journal is the run journal path. Empty means journal.db inside
	// StorageDir; JournalDisabled turns the journal off.
	Journal string `yaml:"journal" json:"journal"`

	// KillPattern, when set, makes injected crashes run pkill -9 -f with it
	// instead of signalling only the current process.
	KillPattern string `yaml:"kill_pattern" json:"kill_pattern"`

	Store StoreConfig `yaml:"store" json:"store"`
}

// StoreConfig tunes the underlying store.
type StoreConfig struct {
	CacheSize    int64 `yaml:"cache_size" json:"cache_size"`
	MemTableSize int64 `yaml:"memtable_size" json:"memtable_size"`
	MaxOpenFiles int   `yaml:"max_open_files" json:"max_open_files"`
}

// Default returns the reference configuration.
func Default() *Config {
	return &Config{
		StorageDir:       "storage",
		FlushIntervalMS:  1000,
		WALEnabled:       false,
		Iterations:       1_000_000,
		VerifyLimit:      1_000_000,
		CrashProbability: 0.00001,
		KeyPrefix:        "test_key",
		Store: StoreConfig{
			CacheSize:    10 << 20,
			MemTableSize: 10 << 20,
			MaxOpenFiles: 256,
		},
	}
}

// Load reads a YAML file over the defaults and validates the result.
// Unknown fields are rejected so typos do not silently fall back to defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration against the embedded CUE schema.
func (c *Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	value := schema.LookupPath(cue.ParsePath("#Config")).Unify(ctx.Encode(c))
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %s", strings.TrimSpace(cueerrors.Details(err, nil)))
	}
	return nil
}

// FlushInterval returns FlushIntervalMS as a duration.
func (c *Config) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalMS) * time.Millisecond
}

// JournalPath resolves the journal location. It returns "" when the journal
// is disabled.
func (c *Config) JournalPath() string {
	switch c.Journal {
	case JournalDisabled:
		return ""
	case "":
		return filepath.Join(c.StorageDir, journalFile)
	default:
		return c.Journal
	}
}
