package harness

import (
	"fmt"
)

// Reset empties secondary and then primary. Each partition is recreated and
// flushed before the next one is touched, so a crash at any point leaves
// every partition it already reset durably empty.
func Reset(secondary, primary Partition) error {
	for _, p := range []Partition{secondary, primary} {
		if err := p.Recreate(); err != nil {
			return fmt.Errorf("reset %s: %w", p.Name(), err)
		}
		if err := p.Flush(); err != nil {
			return fmt.Errorf("reset %s: flush: %w", p.Name(), err)
		}
	}
	return nil
}
