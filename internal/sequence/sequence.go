// Package sequence derives the deterministic record identities the harness
// writes and later verifies.
//
// Record i always maps to the same key and value bytes, across runs and
// across processes, so a fresh process can recompute the keys a crashed one
// was writing.
package sequence

import (
	"strconv"

	"golang.org/x/text/unicode/norm"
)

// DefaultPrefix is the key prefix used when none is configured.
const DefaultPrefix = "test_key"

// Sequencer maps an index to its key and value.
//
// Thread-safety: Sequencer is immutable and safe for concurrent use.
type Sequencer struct {
	prefix string
}

// New creates a Sequencer for the given key prefix.
//
// The prefix is NFC-normalized so visually identical prefixes (for example one
// typed into a YAML file with combining characters) produce identical keys.
// An empty prefix falls back to DefaultPrefix.
func New(prefix string) Sequencer {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Sequencer{prefix: norm.NFC.String(prefix)}
}

// Prefix returns the normalized key prefix.
func (s Sequencer) Prefix() string {
	return s.prefix
}

// Key returns the key of record i: "<prefix>-<i>".
func (s Sequencer) Key(i int) []byte {
	b := make([]byte, 0, len(s.prefix)+1+20)
	b = append(b, s.prefix...)
	b = append(b, '-')
	return strconv.AppendInt(b, int64(i), 10)
}

// Value returns the value of record i: its decimal representation.
func (s Sequencer) Value(i int) []byte {
	return strconv.AppendInt(nil, int64(i), 10)
}
