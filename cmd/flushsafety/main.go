// Command flushsafety crash-tests the flush ordering of a key-value store.
//
// Run it repeatedly; each start verifies what the previous, possibly killed,
// process left durable before writing again.
package main

import (
	"os"

	"github.com/roach88/flushsafety/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
