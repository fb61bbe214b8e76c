package store

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/faustbrian/sequencer/internal/clock"
	"github.com/faustbrian/sequencer/internal/domain"
	"github.com/faustbrian/sequencer/internal/sequencer"
)

// PostgresStore is the production OperationStore implementation.
type PostgresStore struct {
	pool   *pgxpool.Pool
	tables TableNames
	idgen  clock.IDGenerator
}

// NewPostgresStore opens a connection pool, verifies connectivity, and
// ensures the operations/operation_errors schema exists.
func NewPostgresStore(ctx context.Context, cfg Config) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}
	tables := cfg.Tables
	if tables.Operations == "" || tables.OperationErrors == "" {
		tables = DefaultTableNames()
	}

	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: create postgres pool: %v", sequencer.ErrStoreUnavailable, err)
	}

	keyKind := clock.IDKind(cfg.PrimaryKeyType)
	if keyKind == "" || keyKind == clock.IDKindAuto {
		// Identifier values are stored as TEXT primary keys, so a
		// bare sequential "auto" integer has no natural home here;
		// fall back to ULID, which still sorts the way an
		// auto-increment id would.
		keyKind = clock.IDKindULID
	}
	s := &PostgresStore{pool: pool, tables: tables, idgen: clock.NewGenerator(keyKind, clock.System{})}

	if err := s.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if s.pool == nil {
		return fmt.Errorf("%w: postgres not initialized", sequencer.ErrStoreUnavailable)
	}
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", sequencer.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			state TEXT NOT NULL,
			executed_at TIMESTAMPTZ,
			completed_at TIMESTAMPTZ,
			failed_at TIMESTAMPTZ,
			skipped_at TIMESTAMPTZ,
			rolled_back_at TIMESTAMPTZ,
			skip_reason TEXT,
			actor_type TEXT,
			actor_id TEXT,
			attempt INTEGER NOT NULL DEFAULT 1,
			data JSONB NOT NULL DEFAULT '{}'::jsonb
		)`, s.tables.Operations),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_name ON %s (name)`, s.tables.Operations, s.tables.Operations),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS idx_%s_name_completed
			ON %s (name) WHERE state = 'completed'`, s.tables.Operations, s.tables.Operations),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			operation_id TEXT NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
			exception TEXT NOT NULL,
			message TEXT NOT NULL,
			trace TEXT,
			context JSONB,
			created_at TIMESTAMPTZ NOT NULL
		)`, s.tables.OperationErrors, s.tables.Operations),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_operation_id ON %s (operation_id)`,
			s.tables.OperationErrors, s.tables.OperationErrors),
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// lockKey hashes name into the int64 key space pg_advisory_xact_lock
// expects. FNV-1a keeps the same name always mapping to the same key
// across process restarts, which is the only property begin_exclusive
// needs — collisions merely over-serialize two unrelated names, they
// never under-serialize the same one.
func lockKey(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64())
}

// BeginExclusive attempts the advisory lock for name and, if acquired,
// runs fn inside the transaction holding it. pg_try_advisory_xact_lock
// never blocks: it reports immediately whether the lock was free, so a
// name already owned by another runner yields sequencer.ErrBusy rather
// than queuing behind it. The lock releases automatically at
// transaction end, so this cannot deadlock across names as long as
// callers never nest two BeginExclusive calls on different names in
// the same goroutine.
func (s *PostgresStore) BeginExclusive(ctx context.Context, name string, fn func(ctx context.Context, tx Tx) error) error {
	return s.RunInTransaction(ctx, func(ctx context.Context, tx Tx) error {
		pgTx := tx.(*pgxTx).tx
		var acquired bool
		row := pgTx.QueryRow(ctx, `SELECT pg_try_advisory_xact_lock($1)`, lockKey(name))
		if err := row.Scan(&acquired); err != nil {
			return fmt.Errorf("%w: acquire lock for %s: %v", sequencer.ErrStoreUnavailable, name, err)
		}
		if !acquired {
			return fmt.Errorf("%w: %s", sequencer.ErrBusy, name)
		}
		return fn(ctx, tx)
	})
}

// RunInTransaction wraps fn in a single pgx transaction, committing on
// success and rolling back on error or panic.
func (s *PostgresStore) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %v", sequencer.ErrStoreUnavailable, err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &pgxTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit transaction: %v", sequencer.ErrStoreUnavailable, err)
	}
	return nil
}

type pgxTx struct {
	tx pgx.Tx
}

func (t *pgxTx) Exec(ctx context.Context, sql string, args ...any) error {
	_, err := t.tx.Exec(ctx, sql, args...)
	return err
}

func (t *pgxTx) QueryRow(ctx context.Context, sql string, args ...any) Row {
	return t.tx.QueryRow(ctx, sql, args...)
}

func (s *PostgresStore) InsertPending(ctx context.Context, tx Tx, op *domain.Descriptor) (*domain.Record, error) {
	id := s.idgen.Next()
	now := time.Now()
	rec := &domain.Record{
		ID:         id,
		Name:       op.Name,
		Type:       op.Type,
		State:      domain.StatePending,
		ExecutedAt: &now,
		ActorType:  op.ActorType,
		ActorID:    op.ActorID,
		Attempt:    1,
	}
	err := tx.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, name, type, state, executed_at, actor_type, actor_id, attempt)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, s.tables.Operations), id, rec.Name, string(rec.Type), string(rec.State), rec.ExecutedAt, rec.ActorType, rec.ActorID, rec.Attempt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", sequencer.ErrDuplicateRun, op.Name)
		}
		return nil, fmt.Errorf("insert pending operation %s: %w", op.Name, err)
	}
	return rec, nil
}

func (s *PostgresStore) Transition(ctx context.Context, tx Tx, id any, state domain.State, reason string) error {
	now := time.Now()
	column := stateTimestampColumn(state)
	if column == "" {
		return tx.Exec(ctx, fmt.Sprintf(`UPDATE %s SET state = $1 WHERE id = $2`, s.tables.Operations), string(state), id)
	}
	return tx.Exec(ctx, fmt.Sprintf(`
		UPDATE %s SET state = $1, %s = $2, skip_reason = $3 WHERE id = $4
	`, s.tables.Operations, column), string(state), now, nullableReason(reason), id)
}

func stateTimestampColumn(state domain.State) string {
	switch state {
	case domain.StateCompleted:
		return "completed_at"
	case domain.StateFailed:
		return "failed_at"
	case domain.StateSkipped:
		return "skipped_at"
	case domain.StateRolledBack:
		return "rolled_back_at"
	default:
		return ""
	}
}

func nullableReason(reason string) any {
	if reason == "" {
		return nil
	}
	return reason
}

func (s *PostgresStore) RecordError(ctx context.Context, tx Tx, operationID any, errRec *domain.ErrorRecord) error {
	errRec.ID = s.idgen.Next()
	errRec.OperationID = operationID
	errRec.CreatedAt = time.Now()
	return tx.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, operation_id, exception, message, trace, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, s.tables.OperationErrors), errRec.ID, errRec.OperationID, errRec.Exception, errRec.Message, errRec.Trace, errRec.CreatedAt)
}

func (s *PostgresStore) LastCompletion(ctx context.Context, name string) (*domain.Record, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT id, name, type, state, executed_at, completed_at, actor_type, actor_id, attempt
		FROM %s WHERE name = $1 AND state = 'completed'
		ORDER BY completed_at DESC LIMIT 1
	`, s.tables.Operations), name)

	var rec domain.Record
	var opType, state string
	err := row.Scan(&rec.ID, &rec.Name, &opType, &state, &rec.ExecutedAt, &rec.CompletedAt, &rec.ActorType, &rec.ActorID, &rec.Attempt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last completion for %s: %w", name, err)
	}
	rec.Type = domain.Type(opType)
	rec.State = domain.State(state)
	return &rec, nil
}

// PendingNames lists the names of rows in Pending or Running state
// whose executed_at is not after now; a name with no row at all is
// not listed. A name only ever gets a row once
// the Runner inserts one (after any not_before wait has already
// elapsed, per Scheduled), so every Pending/Running row already
// satisfies not_before ≤ now by construction; the parameter exists to
// match §4.1's port signature and to exclude rows that are not yet
// due in a future schema revision that persists not_before directly.
func (s *PostgresStore) PendingNames(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT name FROM %s
		WHERE state IN ('pending', 'running') AND executed_at <= $1
		ORDER BY name ASC
	`, s.tables.Operations), now)
	if err != nil {
		return nil, fmt.Errorf("pending names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan pending name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// StateCounts tallies records by terminal/non-terminal state for the
// CLI's `status` command (§6).
func (s *PostgresStore) StateCounts(ctx context.Context) (StateCounts, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT
			COUNT(*) FILTER (WHERE state IN ('pending', 'running')),
			COUNT(*) FILTER (WHERE state = 'completed'),
			COUNT(*) FILTER (WHERE state = 'failed')
		FROM %s
	`, s.tables.Operations))

	var counts StateCounts
	if err := row.Scan(&counts.Pending, &counts.Completed, &counts.Failed); err != nil {
		return StateCounts{}, fmt.Errorf("state counts: %w", err)
	}
	return counts, nil
}

func isUniqueViolation(err error) bool {
	var pgErr interface{ SQLState() string }
	if ok := asPgError(err, &pgErr); ok {
		return pgErr.SQLState() == "23505"
	}
	return false
}

func asPgError(err error, target *interface{ SQLState() string }) bool {
	type sqlStater interface{ SQLState() string }
	for err != nil {
		if s, ok := err.(sqlStater); ok {
			*target = s
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
