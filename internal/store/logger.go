package store

import (
	"fmt"
	"log/slog"
	"os"
)

// pebbleLogger routes Pebble's internal logging into slog.
//
// Pebble reports every flush and compaction through Infof, so those land at
// debug level to keep the harness output readable.
type pebbleLogger struct {
	logger    *slog.Logger
	partition string
}

func (l pebbleLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...), "component", "pebble", "partition", l.partition)
}

func (l pebbleLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...), "component", "pebble", "partition", l.partition)
}

// Fatalf must not return.
func (l pebbleLogger) Fatalf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...), "component", "pebble", "partition", l.partition, "fatal", true)
	os.Exit(1)
}
