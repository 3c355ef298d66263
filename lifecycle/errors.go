package lifecycle

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the engine and its stores. Callers
// classify with errors.Is; the HTTP layer maps each to a status code.
var (
	// ErrNotFound covers absent, removed and time-expired reports
	// alike: an expired report is treated as gone even before the
	// background sweep deletes it.
	ErrNotFound = errors.New("report not found")

	// ErrInvalidKind means the incident type is not in the lookup table.
	ErrInvalidKind = errors.New("unknown incident type")

	// ErrForbidden means the caller is not authorized for the operation.
	ErrForbidden = errors.New("forbidden")

	// ErrConflict means a concurrent transition won the race. Retrying
	// is safe: the loser re-reads fresh state.
	ErrConflict = errors.New("conflicting concurrent update")

	// ErrStoreUnavailable means the persistence layer could not be
	// reached. Never masked as an empty result.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// ValidationError reports caller-correctable bad input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
