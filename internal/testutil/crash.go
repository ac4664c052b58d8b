package testutil

import (
	"io"
	"log/slog"

	"github.com/cockroachdb/pebble/vfs"
)

// SimulateCrash closes c as if its process had been killed: everything
// written to fs but never synced is thrown away. The caller reopens whatever
// c was on the same fs to observe the post-crash state.
//
// fs must be a strict MemFS (vfs.NewStrictMem).
func SimulateCrash(fs *vfs.MemFS, c io.Closer) error {
	fs.SetIgnoreSyncs(true)
	err := c.Close()
	fs.ResetToSyncedState()
	fs.SetIgnoreSyncs(false)
	return err
}

// DiscardLogger returns a logger that drops every record.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
