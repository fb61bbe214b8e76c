// Package store defines the OperationStore port (§4.1) and its
// Postgres implementation: the durable record of every operation
// attempt, and the distributed mutex (via Postgres advisory locks)
// that keeps two runners in the same fleet from executing the same
// named operation concurrently.
package store

import (
	"context"
	"time"

	"github.com/faustbrian/sequencer/internal/domain"
)

// OperationStore is the persistence port the engine's components
// depend on. It never appears in component signatures directly except
// through this interface, so a hand-written fake can stand in for
// tests. internal/runner's Recording mode does not use a store at all:
// it records dispatches into a Recorder instead.
type OperationStore interface {
	// BeginExclusive acquires the named operation's advisory lock for
	// the lifetime of fn's transaction, returning sequencer.ErrBusy
	// immediately (not blocking) if another runner already holds it.
	BeginExclusive(ctx context.Context, name string, fn func(ctx context.Context, tx Tx) error) error

	// InsertPending creates a new Pending record for name, assigning
	// it a primary key per the configured identifier kind.
	InsertPending(ctx context.Context, tx Tx, op *domain.Descriptor) (*domain.Record, error)

	// Transition moves a record to a new terminal or intermediate
	// state, setting the matching timestamp field and, for Skipped,
	// the skip reason.
	Transition(ctx context.Context, tx Tx, id any, state domain.State, reason string) error

	// RecordError attaches an error record to a failed attempt.
	RecordError(ctx context.Context, tx Tx, operationID any, errRec *domain.ErrorRecord) error

	// LastCompletion returns the most recent Completed record for
	// name, or nil if it has never completed.
	LastCompletion(ctx context.Context, name string) (*domain.Record, error)

	// PendingNames returns the names of records currently in Pending
	// or Running state whose executed_at is not after now, ordered
	// ascending by name (lexicographic, which for the canonical
	// YYYY_MM_DD_HHMMSS_* naming is chronological) — used by the
	// CLI's `status` command. Operations that have no record at all
	// (never dispatched) are not listed.
	PendingNames(ctx context.Context, now time.Time) ([]string, error)

	// StateCounts reports how many records currently sit in each of
	// Pending, Completed, and Failed state, for the CLI's `status`
	// command (§6).
	StateCounts(ctx context.Context) (StateCounts, error)

	// RunInTransaction runs fn inside a single database transaction,
	// committing on success and rolling back on error or panic.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	Ping(ctx context.Context) error
	Close() error
}

// Tx is the subset of a database transaction the engine needs,
// abstracted so BeginExclusive/RunInTransaction callers never import
// pgx directly.
type Tx interface {
	Exec(ctx context.Context, sql string, args ...any) error
	QueryRow(ctx context.Context, sql string, args ...any) Row
}

// Row is the subset of pgx.Row the engine needs.
type Row interface {
	Scan(dest ...any) error
}

// StateCounts is the per-state record tally the CLI's `status` command
// reports (§6). Running is folded into Pending for display purposes —
// both represent work not yet settled.
type StateCounts struct {
	Pending   int64
	Completed int64
	Failed    int64
}

// TableNames configures the two persisted table names (§6), so a
// deployment can run multiple sequencer instances against distinct
// table sets in one database.
type TableNames struct {
	Operations      string
	OperationErrors string
}

// DefaultTableNames returns the §6 default table names.
func DefaultTableNames() TableNames {
	return TableNames{Operations: "operations", OperationErrors: "operation_errors"}
}

// Config configures a PostgresStore.
type Config struct {
	DSN             string
	Tables          TableNames
	PrimaryKeyType  string // "id" | "uuid" | "ulid"
	ConnectTimeout  time.Duration
}
