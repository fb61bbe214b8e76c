// Package sequencer defines the error taxonomy shared across the
// engine's components. Each kind is a sentinel value rather than a
// custom type, in the style this codebase already uses for its closed
// error sets (see internal/cache's ErrNotFound): callers
// compare with errors.Is, and wrapping with fmt.Errorf("...: %w", ...)
// preserves the comparison.
package sequencer

import "errors"

var (
	// ErrOperationFailedIntentionally is returned by a Handle that
	// deliberately signals failure rather than panicking or returning
	// a transport-level error.
	ErrOperationFailedIntentionally = errors.New("sequencer: operation failed intentionally")

	// ErrSkipOperation is returned by a Condition (or by a Handle
	// before doing any work) to move an operation directly to
	// Skipped without consuming a retry attempt.
	ErrSkipOperation = errors.New("sequencer: operation skipped")

	// ErrTimeout is returned when an operation's context deadline
	// elapses before Handle returns.
	ErrTimeout = errors.New("sequencer: operation timed out")

	// ErrTransientIO classifies a failure as retriable infrastructure
	// noise (a dropped connection, a 5xx from a downstream service).
	ErrTransientIO = errors.New("sequencer: transient I/O error")

	// ErrCancelled is returned when the orchestrator's context is
	// cancelled mid-run.
	ErrCancelled = errors.New("sequencer: operation cancelled")

	// ErrGuardDenied is returned when a guard chain denies an
	// operation before Handle is ever invoked.
	ErrGuardDenied = errors.New("sequencer: operation denied by guard")

	// ErrCircularDependency is returned by the dependency resolver
	// when depends_on edges form a cycle.
	ErrCircularDependency = errors.New("sequencer: circular dependency")

	// ErrUnresolvedDependency is returned by the dependency resolver
	// when depends_on names an operation not present in the plan.
	ErrUnresolvedDependency = errors.New("sequencer: unresolved dependency")

	// ErrInvalidPrimaryKeyValue classifies an id that the configured
	// primary_key_type rejects. PostgresStore does not return it: it
	// generates every id itself and does not validate them.
	ErrInvalidPrimaryKeyValue = errors.New("sequencer: invalid primary key value")

	// ErrStoreUnavailable classifies a store-level connectivity
	// failure (pool exhaustion, connection refused).
	ErrStoreUnavailable = errors.New("sequencer: store unavailable")

	// ErrDuplicateRun is returned when a completed, non-idempotent
	// operation is attempted again under the same name.
	ErrDuplicateRun = errors.New("sequencer: duplicate run")

	// ErrBusy is returned by begin_exclusive when another runner
	// already holds the advisory lock for this operation name.
	ErrBusy = errors.New("sequencer: operation busy")
)

// Retriable reports whether err represents a failure the Retry
// controller should retry rather than fail outright. Guard denials,
// cycles, unresolved dependencies, and duplicate-run detection are
// never retriable: retrying would reproduce the same outcome.
func Retriable(err error) bool {
	switch {
	case errors.Is(err, ErrTransientIO), errors.Is(err, ErrTimeout), errors.Is(err, ErrStoreUnavailable):
		return true
	default:
		return false
	}
}
