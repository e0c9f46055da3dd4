package lock

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// txExecutor is satisfied by pgx.Tx. Kept narrow so this package does not
// need to import pgxpool, only what Obtain actually calls.
type txExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// defaultSelectWithLockSQL locks one row of the LOCKS table for the
// duration of the caller's transaction. spec.md §6 lets a dialect override
// this via select_with_lock_sql: NewRowLockManager runs a non-empty override
// in place of this default.
const defaultSelectWithLockSQL = `SELECT lock_name FROM locks WHERE lock_name = $1 FOR UPDATE`

// RowLockManager realizes the Lock Manager as a `SELECT ... FOR UPDATE` on
// a row in the LOCKS table (spec.md §4.1, realization 1). The lock is held
// until the caller's transaction commits or rolls back — there is nothing
// for Release to actually unlock, since the database does that for us, but
// Release is still safe to call unconditionally.
type RowLockManager struct {
	selectWithLockSQL string
}

// NewRowLockManager returns a row-lock manager. An empty override falls
// back to the Postgres default query.
func NewRowLockManager(selectWithLockSQLOverride string) *RowLockManager {
	sql := selectWithLockSQLOverride
	if sql == "" {
		sql = defaultSelectWithLockSQL
	}
	return &RowLockManager{selectWithLockSQL: sql}
}

// Obtain runs the row-lock query against conn, which must be the pgx.Tx the
// caller's unit of work is running in — locks bind to a transaction, not a
// bare connection (spec.md §9 "Connection-bound locks").
func (m *RowLockManager) Obtain(ctx context.Context, conn Conn, name string) error {
	tx, ok := conn.(txExecutor)
	if !ok {
		return fmt.Errorf("lock: row lock manager requires a transaction handle, got %T", conn)
	}
	if _, err := tx.Exec(ctx, m.selectWithLockSQL, name); err != nil {
		return fmt.Errorf("lock: obtain %q: %w", name, err)
	}
	return nil
}

// Release is a no-op: the row lock is released automatically when the
// enclosing transaction ends. It ignores its arguments, wasOwner included,
// and shares InProcessManager's signature so callers can treat both
// realizations identically.
func (m *RowLockManager) Release(_ context.Context, _ Conn, _ string, _ bool) error {
	return nil
}
