// Package lock implements the Lock Manager (spec.md §4.1): named,
// database-backed mutual-exclusion locks that serialize cluster-wide access
// to the trigger, state, and calendar tables. Two realizations are
// interchangeable behind the same Manager interface — a Postgres row lock
// scoped to the caller's transaction, and an in-process mutex for
// single-instance deployments without row-lock support.
package lock

import "context"

// Names of the three locks spec.md §4.1 defines.
const (
	TriggerAccess  = "TRIGGER_ACCESS"
	StateAccess    = "STATE_ACCESS"
	CalendarAccess = "CALENDAR_ACCESS"
)

// Manager hands out named mutual-exclusion locks. Obtain blocks until the
// lock is held; Release is a no-op when wasOwner is false, matching
// spec.md §4.1's contract so callers can unconditionally defer a release
// after a possibly-failed obtain.
type Manager interface {
	Obtain(ctx context.Context, conn Conn, name string) error
	Release(ctx context.Context, conn Conn, name string, wasOwner bool) error
}

// Conn is the lock handle spec.md §4.1/§9 calls out explicitly: because a
// database-row lock is scoped to a transaction, the connection (transaction)
// is the lock handle and must be threaded through every lock call. The
// in-process realization ignores it.
type Conn interface{}
