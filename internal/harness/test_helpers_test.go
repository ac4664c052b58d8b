package harness

import (
	"fmt"
	"testing"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flushsafety/internal/sequence"
	"github.com/roach88/flushsafety/internal/store"
	"github.com/roach88/flushsafety/internal/testutil"
)

const testDir = "/flushsafety"

func testStoreOptions(fs vfs.FS) store.Options {
	return store.Options{
		Partitions:   []string{PrimaryPartition, SecondaryPartition},
		CacheSize:    1 << 20,
		MemTableSize: 4 << 20,
		MaxOpenFiles: 64,
		FS:           fs,
		Logger:       testutil.DiscardLogger(),
	}
}

// openTestStore opens a store with both partitions on a strict in-memory
// filesystem, with the partition directories made durable.
func openTestStore(t *testing.T) (*store.Store, *vfs.MemFS) {
	t.Helper()
	fs := vfs.NewStrictMem()
	st, err := store.Open(testDir, testStoreOptions(fs))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st, fs
}

// crashAndReopen discards all unsynced state and opens the store again.
func crashAndReopen(t *testing.T, st *store.Store, fs *vfs.MemFS) *store.Store {
	t.Helper()
	_ = testutil.SimulateCrash(fs, st)
	reopened, err := store.Open(testDir, testStoreOptions(fs))
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })
	return reopened
}

// writeDurable writes indices to a partition and flushes it.
func writeDurable(t *testing.T, p *store.Partition, seq sequence.Sequencer, indices ...int) {
	t.Helper()
	for _, i := range indices {
		require.NoError(t, p.Put(seq.Key(i), seq.Value(i)))
	}
	require.NoError(t, p.Flush())
}

func indexRange(from, to int) []int {
	out := make([]int, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, i)
	}
	return out
}

// opLog records partition operations across fakes in call order.
type opLog struct {
	ops []string
}

func (l *opLog) add(format string, args ...any) {
	l.ops = append(l.ops, fmt.Sprintf(format, args...))
}

// fakePartition is an in-memory Partition that logs every call.
type fakePartition struct {
	name string
	log  *opLog
	keys map[string]bool

	existsCalls []string

	putErr    error
	existsErr error
	flushErr  error
}

func newFakePartition(name string, log *opLog) *fakePartition {
	return &fakePartition{name: name, log: log, keys: make(map[string]bool)}
}

func (p *fakePartition) Name() string { return p.name }

func (p *fakePartition) Put(key, value []byte) error {
	p.log.add("put %s %s", p.name, key)
	if p.putErr != nil {
		return p.putErr
	}
	p.keys[string(key)] = true
	return nil
}

func (p *fakePartition) Exists(key []byte) (bool, error) {
	p.existsCalls = append(p.existsCalls, string(key))
	if p.existsErr != nil {
		return false, p.existsErr
	}
	return p.keys[string(key)], nil
}

func (p *fakePartition) Flush() error {
	p.log.add("flush %s", p.name)
	return p.flushErr
}

func (p *fakePartition) Recreate() error {
	p.log.add("recreate %s", p.name)
	p.keys = make(map[string]bool)
	return nil
}
