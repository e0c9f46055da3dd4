package store

import (
	"context"
	"fmt"
	"time"

	"github.com/relaycron/jobstore/internal/metrics"
	"github.com/relaycron/jobstore/internal/opid"
	"github.com/relaycron/jobstore/internal/store/gateway"
	"github.com/relaycron/jobstore/internal/store/lock"
)

// envelope is the transaction envelope (spec.md §4.2): borrow a connection,
// obtain the requested locks in order, run the inner operation, commit or
// roll back, and always release owned locks before returning. Grounded on
// the teacher's ClaimAndFire transaction skeleton
// (internal/infrastructure/postgres/schedule_repo.go) generalized from a
// single hardcoded query to an arbitrary inner operation.
type envelope struct {
	gw    gateway.Gateway
	locks lock.Manager
}

func newEnvelope(gw gateway.Gateway, locks lock.Manager) *envelope {
	return &envelope{gw: gw, locks: locks}
}

// run executes fn inside a transaction holding lockNames (acquired in the
// order given). A pure read passes no lock names, matching spec.md §4.2's
// "pure reads skip step 2".
func (e *envelope) run(ctx context.Context, lockNames []string, fn func(ctx context.Context, tx gateway.Tx) error) error {
	ctx = ensureOperationID(ctx)
	tx, err := e.gw.Begin(ctx)
	if err != nil {
		return fmt.Errorf("envelope: begin: %w", err)
	}

	held := make([]string, 0, len(lockNames))
	defer func() {
		for i := len(held) - 1; i >= 0; i-- {
			_ = e.locks.Release(ctx, tx, held[i], true)
		}
	}()

	for _, name := range lockNames {
		start := time.Now()
		err := e.locks.Obtain(ctx, tx, name)
		metrics.LockWaitDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.LockTimeoutsTotal.WithLabelValues(name).Inc()
			_ = e.gw.Rollback(ctx, tx)
			return fmt.Errorf("envelope: obtain %s: %w", name, err)
		}
		held = append(held, name)
	}

	if err := fn(ctx, tx); err != nil {
		_ = e.gw.Rollback(ctx, tx)
		return err
	}

	if err := e.gw.Commit(ctx, tx); err != nil {
		return fmt.Errorf("envelope: commit: %w", err)
	}
	return nil
}

// runPartial is run's variant for spec.md §7.3/§9's partial-success pattern:
// fn may return a captured error that does not abort the transaction — the
// transaction still commits, and captured is returned to the caller
// afterward. A fatal error still rolls back exactly like run. triggered_fired
// is the one caller of this (a missing job must not lose the fired-trigger
// bookkeeping already written in the same transaction).
func (e *envelope) runPartial(ctx context.Context, lockNames []string, fn func(ctx context.Context, tx gateway.Tx) (captured, fatal error)) error {
	ctx = ensureOperationID(ctx)
	tx, err := e.gw.Begin(ctx)
	if err != nil {
		return fmt.Errorf("envelope: begin: %w", err)
	}

	held := make([]string, 0, len(lockNames))
	defer func() {
		for i := len(held) - 1; i >= 0; i-- {
			_ = e.locks.Release(ctx, tx, held[i], true)
		}
	}()

	for _, name := range lockNames {
		start := time.Now()
		err := e.locks.Obtain(ctx, tx, name)
		metrics.LockWaitDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.LockTimeoutsTotal.WithLabelValues(name).Inc()
			_ = e.gw.Rollback(ctx, tx)
			return fmt.Errorf("envelope: obtain %s: %w", name, err)
		}
		held = append(held, name)
	}

	captured, fatal := fn(ctx, tx)
	if fatal != nil {
		_ = e.gw.Rollback(ctx, tx)
		return fatal
	}

	if err := e.gw.Commit(ctx, tx); err != nil {
		return fmt.Errorf("envelope: commit: %w", err)
	}
	return captured
}

// ensureOperationID stamps ctx with a fresh operation id for every store
// operation that doesn't already carry one, so every log line emitted while
// this envelope is open can be traced together (internal/log.ContextHandler
// reads it back out). A caller-supplied id (e.g. propagated from an
// upstream request) is left untouched.
func ensureOperationID(ctx context.Context) context.Context {
	if opid.FromContext(ctx) != "" {
		return ctx
	}
	return opid.WithOperationID(ctx, opid.New())
}
