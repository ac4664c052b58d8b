package harness

import (
	"errors"
	"fmt"
)

// ErrInvariantViolated is matched by every *InvariantViolationError.
var ErrInvariantViolated = errors.New("invariant violated")

// ErrJournal is matched by every error that came from the run journal.
var ErrJournal = errors.New("journal")

func journalError(err error) error {
	return fmt.Errorf("%w: %w", ErrJournal, err)
}

// InvariantViolationError reports a secondary record that is durable while
// its primary record is not.
type InvariantViolationError struct {
	Index int
	Key   string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("invariant violated at index %d: key %q exists in %s but not in %s",
		e.Index, e.Key, SecondaryPartition, PrimaryPartition)
}

// Is reports whether target is ErrInvariantViolated.
func (e *InvariantViolationError) Is(target error) bool {
	return target == ErrInvariantViolated
}
