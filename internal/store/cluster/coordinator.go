// Package cluster implements the Cluster Coordinator (spec.md §4.5):
// periodic check-in heartbeats and stale-peer recovery. Grounded on the
// teacher's internal/scheduler/worker.go heartbeat ticker and
// internal/scheduler/reaper.go stale-cutoff recovery pass, generalized from
// webhook-job bookkeeping to trigger/fired-trigger recovery.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/relaycron/jobstore/internal/domain"
	"github.com/relaycron/jobstore/internal/metrics"
	"github.com/relaycron/jobstore/internal/store/gateway"
	"github.com/relaycron/jobstore/internal/store/lock"
)

// ConnProvider+lock.Manager+gateway.Gateway together are everything the
// Coordinator needs — it runs its own envelope rather than sharing the
// store package's unexported one, since spec.md §4.5 describes check-in as
// an independent periodic process, not a capability the upstream scheduler
// calls synchronously like §6's Store interface.
type txRunner struct {
	gw    gateway.Gateway
	locks lock.Manager
}

func (r *txRunner) run(ctx context.Context, lockNames []string, fn func(ctx context.Context, tx gateway.Tx) error) error {
	tx, err := r.gw.Begin(ctx)
	if err != nil {
		return fmt.Errorf("cluster: begin: %w", err)
	}
	held := make([]string, 0, len(lockNames))
	defer func() {
		for i := len(held) - 1; i >= 0; i-- {
			_ = r.locks.Release(ctx, tx, held[i], true)
		}
	}()
	for _, name := range lockNames {
		if err := r.locks.Obtain(ctx, tx, name); err != nil {
			_ = r.gw.Rollback(ctx, tx)
			return fmt.Errorf("cluster: obtain %s: %w", name, err)
		}
		held = append(held, name)
	}
	if err := fn(ctx, tx); err != nil {
		_ = r.gw.Rollback(ctx, tx)
		return err
	}
	if err := r.gw.Commit(ctx, tx); err != nil {
		return fmt.Errorf("cluster: commit: %w", err)
	}
	return nil
}

// Coordinator runs the periodic check-in / failover-recovery protocol.
type Coordinator struct {
	tx         txRunner
	instanceID string
	interval   time.Duration
	// factor is the stale-peer multiplier: a peer is failed once
	// now-last_checkin exceeds its own checkin_interval * factor (spec.md
	// §4.5 step 2).
	factor float64

	logger       *slog.Logger
	firstCheckin bool
}

// New returns a Coordinator for one scheduler instance.
func New(gw gateway.Gateway, locks lock.Manager, instanceID string, interval time.Duration, failureFactor float64, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		tx:           txRunner{gw: gw, locks: locks},
		instanceID:   instanceID,
		interval:     interval,
		factor:       failureFactor,
		logger:       logger.With("component", "cluster_coordinator", "instance_id", instanceID),
		firstCheckin: true,
	}
}

// Run blocks, calling DoCheckin every interval, until ctx is cancelled. This
// mirrors the teacher's worker.go heartbeat ticker goroutine.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	if err := c.DoCheckin(ctx, time.Now().UTC()); err != nil {
		c.logger.Error("checkin failed", "error", err)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.DoCheckin(ctx, time.Now().UTC()); err != nil {
				c.logger.Error("checkin failed", "error", err)
			}
		}
	}
}

// DoCheckin implements do_checkin (spec.md §4.5). It runs under STATE_ACCESS
// to read/write scheduler-state rows, and additionally acquires
// TRIGGER_ACCESS — only when recovery is actually needed — to run
// cluster_recover.
func (c *Coordinator) DoCheckin(ctx context.Context, now time.Time) error {
	var failed []domain.SchedulerState

	err := c.tx.run(ctx, []string{lock.StateAccess}, func(ctx context.Context, tx gateway.Tx) error {
		states, err := c.tx.gw.SelectSchedulerStates(ctx, tx)
		if err != nil {
			return err
		}

		for _, st := range states {
			if st.InstanceID == c.instanceID {
				// First-check-in self-recovery (spec.md §9): a stale row
				// under our own instance id means we crashed and
				// restarted — treat our prior self as a failed peer.
				if c.firstCheckin && st.IsStale(now, c.factor) {
					failed = append(failed, st)
				}
				continue
			}
			if st.IsStale(now, c.factor) {
				failed = append(failed, st)
			}
		}

		heartbeat := domain.SchedulerState{
			InstanceID:      c.instanceID,
			LastCheckinTime: now,
			CheckinInterval: c.interval,
		}
		updated, err := c.tx.gw.UpdateSchedulerStateCheckin(ctx, tx, c.instanceID, now)
		if err != nil {
			return err
		}
		if !updated {
			if err := c.tx.gw.InsertSchedulerState(ctx, tx, heartbeat); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		metrics.CheckinsTotal.WithLabelValues("error").Inc()
		return err
	}
	c.firstCheckin = false
	metrics.CheckinsTotal.WithLabelValues("ok").Inc()

	if len(failed) == 0 {
		return nil
	}

	err = c.tx.run(ctx, []string{lock.TriggerAccess}, func(ctx context.Context, tx gateway.Tx) error {
		for _, peer := range failed {
			if err := c.recoverPeerLocked(ctx, tx, peer.InstanceID); err != nil {
				return err
			}
			metrics.PeersRecoveredTotal.Inc()
			c.logger.Info("recovered failed peer", "failed_instance_id", peer.InstanceID)
		}
		return nil
	})
	return err
}

// recoverPeerLocked implements cluster_recover's per-instance body
// (spec.md §4.5 step 4): synthesize recovery triggers for recoverable work,
// reset the original triggers, and delete the failed peer's bookkeeping.
func (c *Coordinator) recoverPeerLocked(ctx context.Context, tx gateway.Tx, failedInstanceID string) error {
	fired, err := c.tx.gw.SelectFiredTriggersByInstance(ctx, tx, failedInstanceID)
	if err != nil {
		return err
	}

	for _, ft := range fired {
		if ft.RequestsRecovery {
			if err := c.synthesizeRecoveryTrigger(ctx, tx, ft); err != nil {
				return err
			}
		}
		if err := c.resetOriginalTrigger(ctx, tx, ft.TriggerKey); err != nil {
			return err
		}
	}

	if err := c.tx.gw.DeleteFiredTriggersByInstance(ctx, tx, failedInstanceID); err != nil {
		return err
	}
	return c.tx.gw.DeleteSchedulerState(ctx, tx, failedInstanceID)
}

func (c *Coordinator) synthesizeRecoveryTrigger(ctx context.Context, tx gateway.Tx, ft *domain.FiredTrigger) error {
	return c.tx.gw.InsertTrigger(ctx, tx, RecoveryTrigger(ft))
}

// RecoveryTrigger builds the one-shot trigger cluster_recover synthesizes
// for a recoverable fired-trigger record (spec.md §4.5 step 4, §8 scenario
// 6): name `RECOVER_<instance>_<entry_id>`, firing exactly once at the
// original recorded fire time. Exported so recovery.go's startup recovery
// pass (spec.md §4.6), which performs the same synthesis for this
// instance's own fired-trigger rows, builds an identical shape.
func RecoveryTrigger(ft *domain.FiredTrigger) *domain.Trigger {
	name := fmt.Sprintf("RECOVER_%s_%s", ft.InstanceID, ft.EntryID)
	fireTime := ft.FireTime
	return &domain.Trigger{
		Key:          domain.TriggerKey{Group: "RECOVERY", Name: name},
		JobKey:       ft.JobKey,
		State:        domain.StateWaiting,
		Priority:     ft.Priority,
		StartTime:    fireTime,
		NextFireTime: &fireTime,
		Simple:       &domain.SimpleTrigger{RepeatCount: 0},
	}
}

func (c *Coordinator) resetOriginalTrigger(ctx context.Context, tx gateway.Tx, key domain.TriggerKey) error {
	t, err := c.tx.gw.SelectTrigger(ctx, tx, key)
	if err != nil {
		if errors.Is(err, domain.ErrTriggerNotFound) {
			return nil
		}
		return err
	}
	var target domain.TriggerState
	switch t.State {
	case domain.StateAcquired, domain.StateExecuting, domain.StateBlocked:
		target = domain.StateWaiting
	case domain.StatePausedBlocked:
		target = domain.StatePaused
	default:
		return nil
	}
	from := t.State
	_, err = c.tx.gw.UpdateTriggerState(ctx, tx, key, target, &from)
	return err
}
