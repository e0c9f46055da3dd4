package store

import (
	"context"
	"errors"
	"time"

	"github.com/relaycron/jobstore/internal/domain"
	"github.com/relaycron/jobstore/internal/store/cluster"
	"github.com/relaycron/jobstore/internal/store/gateway"
	"github.com/relaycron/jobstore/internal/store/lock"
)

// recoverJobs implements recover_jobs (spec.md §4.6), run once from
// Initialize: any trigger this instance left ACQUIRED/BLOCKED is reset,
// recoverable in-flight work gets a synthesized recovery trigger (the same
// shape cluster_recover produces — see internal/store/cluster.RecoveryTrigger),
// this instance's fired-trigger records and any volatile rows are deleted,
// and one misfire pass runs.
func (s *JobStore) recoverJobs(ctx context.Context) error {
	err := s.env.run(ctx, []string{lock.TriggerAccess}, func(ctx context.Context, tx gateway.Tx) error {
		fired, err := s.gw.SelectFiredTriggersByInstance(ctx, tx, s.instanceID)
		if err != nil {
			return err
		}

		for _, ft := range fired {
			if ft.RequestsRecovery {
				if err := s.gw.InsertTrigger(ctx, tx, cluster.RecoveryTrigger(ft)); err != nil {
					return err
				}
			}
			if err := s.resetRecoveredTriggerLocked(ctx, tx, ft.TriggerKey); err != nil {
				return err
			}
		}

		if err := s.gw.DeleteFiredTriggersByInstance(ctx, tx, s.instanceID); err != nil {
			return err
		}
		if err := s.gw.DeleteVolatileTriggers(ctx, tx); err != nil {
			return err
		}
		if err := s.gw.DeleteVolatileJobs(ctx, tx); err != nil {
			return err
		}
		return s.gw.DeleteVolatileCalendars(ctx, tx)
	})
	if err != nil {
		return err
	}

	_, err = s.RecoverMisfiredJobs(ctx, time.Now().UTC())
	return err
}

func (s *JobStore) resetRecoveredTriggerLocked(ctx context.Context, tx gateway.Tx, key domain.TriggerKey) error {
	t, err := s.gw.SelectTrigger(ctx, tx, key)
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
	_, err = s.gw.UpdateTriggerState(ctx, tx, key, target, &from)
	return err
}
