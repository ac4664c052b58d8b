package store

import (
	"io"
	"sort"
	"strings"
	"testing"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flushsafety/internal/testutil"
)

const testDir = "/flushsafety"

// testOptions returns small-footprint options on the given filesystem.
func testOptions(fs vfs.FS, partitions ...string) Options {
	return Options{
		Partitions:   partitions,
		CacheSize:    1 << 20,
		MemTableSize: 4 << 20,
		MaxOpenFiles: 64,
		FS:           fs,
		Logger:       testutil.DiscardLogger(),
	}
}

// openTestStore opens a store on a strict in-memory filesystem.
func openTestStore(t *testing.T, partitions ...string) (*Store, *vfs.MemFS) {
	t.Helper()
	fs := vfs.NewStrictMem()
	s, err := Open(testDir, testOptions(fs, partitions...))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, fs
}

// crashAndReopen discards everything that was not synced, as a power loss
// would, and opens the store again.
func crashAndReopen(t *testing.T, s *Store, fs *vfs.MemFS, opts Options) *Store {
	t.Helper()
	_ = testutil.SimulateCrash(fs, s)

	reopened, err := Open(testDir, opts)
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })
	return reopened
}

// newestLog returns the path of the highest-numbered WAL file in dir.
func newestLog(t *testing.T, fs vfs.FS, dir string) string {
	t.Helper()
	entries, err := fs.List(dir)
	require.NoError(t, err)

	var logs []string
	for _, e := range entries {
		if strings.HasSuffix(e, ".log") {
			logs = append(logs, e)
		}
	}
	require.NotEmpty(t, logs, "no WAL in %s", dir)
	sort.Strings(logs)
	return fs.PathJoin(dir, logs[len(logs)-1])
}

func readFile(t *testing.T, fs vfs.FS, path string) []byte {
	t.Helper()
	f, err := fs.Open(path)
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	return data
}

// rewriteFile replaces the contents of path durably.
func rewriteFile(t *testing.T, fs vfs.FS, path string, data []byte) {
	t.Helper()
	f, err := fs.Create(path)
	require.NoError(t, err)
	_, err = f.Write(data)
	require.NoError(t, err)
	require.NoError(t, f.Sync())
	require.NoError(t, f.Close())
	require.NoError(t, syncDir(fs, fs.PathDir(path)))
}
