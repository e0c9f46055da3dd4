package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/relaycron/jobstore/internal/domain"
	"github.com/relaycron/jobstore/internal/metrics"
	"github.com/relaycron/jobstore/internal/store/gateway"
	"github.com/relaycron/jobstore/internal/store/lock"
	trig "github.com/relaycron/jobstore/internal/store/trigger"
)

// resolveInitialTriggerState implements spec.md §4.4's store_trigger
// transition: WAITING, or PAUSED if the trigger's group is paused, or
// BLOCKED/PAUSED_BLOCKED if the trigger's job is stateful and currently has
// another trigger EXECUTING.
func (s *JobStore) resolveInitialTriggerState(ctx context.Context, tx gateway.Tx, t *domain.Trigger) (domain.TriggerState, error) {
	paused, err := s.gw.IsGroupPaused(ctx, tx, t.Key.Group)
	if err != nil {
		return "", err
	}

	job, err := s.gw.SelectJob(ctx, tx, t.JobKey)
	if err != nil {
		return "", err
	}

	blocked := false
	if job.Stateful {
		siblings, err := s.gw.SelectTriggersForJob(ctx, tx, t.JobKey)
		if err != nil {
			return "", err
		}
		for _, sib := range siblings {
			if sib.State == domain.StateExecuting {
				blocked = true
				break
			}
		}
	}

	switch {
	case blocked && paused:
		return domain.StatePausedBlocked, nil
	case blocked:
		return domain.StateBlocked, nil
	case paused:
		return domain.StatePaused, nil
	default:
		return domain.StateWaiting, nil
	}
}

// deleteTriggerAndFired removes a trigger and this instance's own
// fired-trigger record for it, if any (spec.md §3 invariant: at most one
// fired-trigger record per (trigger, instance)).
func (s *JobStore) deleteTriggerAndFired(ctx context.Context, tx gateway.Tx, key domain.TriggerKey) error {
	ft, err := s.gw.SelectFiredTriggerByTriggerAndInstance(ctx, tx, key, s.instanceID)
	if err != nil {
		return err
	}
	if ft != nil {
		if err := s.gw.DeleteFiredTrigger(ctx, tx, ft.EntryID); err != nil {
			return err
		}
	}
	return s.gw.DeleteTrigger(ctx, tx, key)
}

// cascadeDeleteIfOrphaned deletes job when it is non-durable and has no
// remaining triggers (spec.md §3).
func (s *JobStore) cascadeDeleteIfOrphaned(ctx context.Context, tx gateway.Tx, job *domain.Job) error {
	if job.Durable {
		return nil
	}
	n, err := s.gw.CountTriggersForJob(ctx, tx, job.Key)
	if err != nil {
		return err
	}
	if n == 0 {
		return s.gw.DeleteJob(ctx, tx, job.Key)
	}
	return nil
}

func (s *JobStore) blockSiblingsLocked(ctx context.Context, tx gateway.Tx, jobKey domain.JobKey, exclude domain.TriggerKey) error {
	siblings, err := s.gw.SelectTriggersForJob(ctx, tx, jobKey)
	if err != nil {
		return err
	}
	for _, sib := range siblings {
		if sib.Key == exclude {
			continue
		}
		from := sib.State
		switch sib.State {
		case domain.StateWaiting:
			if _, err := s.gw.UpdateTriggerState(ctx, tx, sib.Key, domain.StateBlocked, &from); err != nil {
				return err
			}
		case domain.StatePaused:
			if _, err := s.gw.UpdateTriggerState(ctx, tx, sib.Key, domain.StatePausedBlocked, &from); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *JobStore) unblockSiblingsLocked(ctx context.Context, tx gateway.Tx, jobKey domain.JobKey) error {
	siblings, err := s.gw.SelectTriggersForJob(ctx, tx, jobKey)
	if err != nil {
		return err
	}
	for _, sib := range siblings {
		from := sib.State
		switch sib.State {
		case domain.StateBlocked:
			if _, err := s.gw.UpdateTriggerState(ctx, tx, sib.Key, domain.StateWaiting, &from); err != nil {
				return err
			}
		case domain.StatePausedBlocked:
			if _, err := s.gw.UpdateTriggerState(ctx, tx, sib.Key, domain.StatePaused, &from); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *JobStore) setAllJobTriggers(ctx context.Context, tx gateway.Tx, jobKey domain.JobKey, state domain.TriggerState) error {
	siblings, err := s.gw.SelectTriggersForJob(ctx, tx, jobKey)
	if err != nil {
		return err
	}
	for _, sib := range siblings {
		if _, err := s.gw.UpdateTriggerState(ctx, tx, sib.Key, state, nil); err != nil {
			return err
		}
	}
	return nil
}

// PauseTrigger: WAITING→PAUSED, BLOCKED→PAUSED_BLOCKED, others unchanged
// (spec.md §4.4).
func (s *JobStore) PauseTrigger(ctx context.Context, key domain.TriggerKey) error {
	return s.env.run(ctx, []string{lock.TriggerAccess}, func(ctx context.Context, tx gateway.Tx) error {
		return s.pauseTriggerLocked(ctx, tx, key)
	})
}

// ResumeTrigger is PauseTrigger's inverse, then applies misfire policy if
// the trigger's next fire time has already fallen behind (spec.md §4.4).
func (s *JobStore) ResumeTrigger(ctx context.Context, key domain.TriggerKey, now time.Time) error {
	return s.env.run(ctx, []string{lock.TriggerAccess}, func(ctx context.Context, tx gateway.Tx) error {
		return s.resumeTriggerLocked(ctx, tx, key, now)
	})
}

func (s *JobStore) applyMisfireLocked(ctx context.Context, tx gateway.Tx, t *domain.Trigger, now time.Time) error {
	var cal *domain.Calendar
	if t.CalendarName != "" {
		c, err := s.gw.SelectCalendar(ctx, tx, t.CalendarName)
		if err != nil {
			return err
		}
		cal = c
	}
	if err := trig.ApplyMisfirePolicy(t, cal, now); err != nil {
		return err
	}
	return s.gw.UpdateTrigger(ctx, tx, t)
}

// AcquireNextTrigger implements acquire_next_trigger (spec.md §4.4): selects
// the earliest-due WAITING trigger within the acquire window, CASes it to
// ACQUIRED, and writes a fired-trigger record. A lost CAS (a racing peer won
// first) excludes that trigger and retries against the next candidate.
func (s *JobStore) AcquireNextTrigger(ctx context.Context, now time.Time) (*domain.Trigger, error) {
	var acquired *domain.Trigger
	err := s.env.run(ctx, []string{lock.TriggerAccess}, func(ctx context.Context, tx gateway.Tx) error {
		maxNext := now
		if s.opts.AcquireTriggersWindow > 0 {
			maxNext = now.Add(s.opts.AcquireTriggersWindow)
		}
		excluding := map[domain.TriggerKey]bool{}

		for {
			cand, err := s.gw.SelectNextTriggerToAcquire(ctx, tx, now, maxNext, excluding)
			if err != nil {
				return err
			}
			if cand == nil {
				return nil
			}

			from := domain.StateWaiting
			won, err := s.gw.UpdateTriggerState(ctx, tx, cand.Key, domain.StateAcquired, &from)
			if err != nil {
				return err
			}
			if !won {
				metrics.TriggerCASLossesTotal.WithLabelValues("waiting_to_acquired").Inc()
				excluding[cand.Key] = true
				continue
			}

			job, err := s.gw.SelectJob(ctx, tx, cand.JobKey)
			if err != nil {
				return err
			}

			ft := &domain.FiredTrigger{
				EntryID:          uuid.NewString(),
				InstanceID:       s.instanceID,
				TriggerKey:       cand.Key,
				JobKey:           cand.JobKey,
				State:            domain.StateAcquired,
				IsStateful:       job.Stateful,
				RequestsRecovery: job.RequestsRecovery,
				Priority:         cand.Priority,
			}
			if cand.NextFireTime != nil {
				ft.FireTime = *cand.NextFireTime
			}
			if err := s.gw.InsertFiredTrigger(ctx, tx, ft); err != nil {
				return err
			}

			cand.State = domain.StateAcquired
			acquired = cand
			return nil
		}
	})
	if err == nil && acquired != nil {
		metrics.TriggerAcquisitionsTotal.WithLabelValues(s.instanceID).Inc()
		metrics.FiredTriggersInFlight.Inc()
	}
	return acquired, err
}

// ReleaseAcquiredTrigger implements release_acquired_trigger (spec.md §4.4):
// CAS ACQUIRED→WAITING and delete the fired-trigger record.
func (s *JobStore) ReleaseAcquiredTrigger(ctx context.Context, key domain.TriggerKey) error {
	err := s.env.run(ctx, []string{lock.TriggerAccess}, func(ctx context.Context, tx gateway.Tx) error {
		from := domain.StateAcquired
		if _, err := s.gw.UpdateTriggerState(ctx, tx, key, domain.StateWaiting, &from); err != nil {
			return err
		}
		ft, err := s.gw.SelectFiredTriggerByTriggerAndInstance(ctx, tx, key, s.instanceID)
		if err != nil {
			return err
		}
		if ft == nil {
			return nil
		}
		return s.gw.DeleteFiredTrigger(ctx, tx, ft.EntryID)
	})
	if err == nil {
		metrics.FiredTriggersInFlight.Dec()
	}
	return err
}

// TriggerFired implements triggered_fired (spec.md §4.4, §7.3, §9): the
// scheduler is about to run the job. A missing job is the one error this
// operation does not let abort its transaction — the stale trigger/fired
// bookkeeping is still deleted and committed, and ErrJobDoesNotExist is
// rethrown to the caller afterward.
func (s *JobStore) TriggerFired(ctx context.Context, key domain.TriggerKey) (*domain.FiredBundle, error) {
	var bundle *domain.FiredBundle
	err := s.env.runPartial(ctx, []string{lock.TriggerAccess}, func(ctx context.Context, tx gateway.Tx) (captured, fatal error) {
		t, err := s.gw.SelectTrigger(ctx, tx, key)
		if err != nil {
			if errors.Is(err, domain.ErrTriggerNotFound) {
				return nil, nil
			}
			return nil, err
		}
		if t.State != domain.StateAcquired {
			return nil, nil
		}

		job, err := s.gw.SelectJob(ctx, tx, t.JobKey)
		if err != nil {
			if errors.Is(err, domain.ErrJobNotFound) {
				if delErr := s.deleteTriggerAndFired(ctx, tx, key); delErr != nil {
					return nil, delErr
				}
				return domain.ErrJobDoesNotExist, nil
			}
			return nil, err
		}

		var cal *domain.Calendar
		if t.CalendarName != "" {
			cal, err = s.gw.SelectCalendar(ctx, tx, t.CalendarName)
			if err != nil {
				return nil, err
			}
		}

		scheduledFireTime := time.Time{}
		if t.NextFireTime != nil {
			scheduledFireTime = *t.NextFireTime
		}
		prevFireTime := t.PrevFireTime

		nextFire, err := trig.ComputeNext(t, cal, scheduledFireTime)
		if err != nil {
			return nil, err
		}

		t.PrevFireTime = &scheduledFireTime
		t.NextFireTime = nextFire
		t.State = domain.StateExecuting
		if err := s.gw.UpdateTrigger(ctx, tx, t); err != nil {
			return nil, err
		}

		if job.Stateful {
			if err := s.blockSiblingsLocked(ctx, tx, t.JobKey, t.Key); err != nil {
				return nil, err
			}
		}

		bundle = &domain.FiredBundle{
			Job:               job,
			Trigger:           t,
			ScheduledFireTime: scheduledFireTime,
			FireTime:          time.Now().UTC(),
			PrevFireTime:      prevFireTime,
			NextFireTime:      nextFire,
		}
		return nil, nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrJobDoesNotExist) {
			metrics.TriggersFiredTotal.WithLabelValues("job_missing").Inc()
		}
		return nil, err
	}
	if bundle != nil {
		metrics.TriggersFiredTotal.WithLabelValues("executing").Inc()
	}
	return bundle, nil
}

// TriggeredJobComplete implements triggered_job_complete (spec.md §4.4).
// statefulJobData, when non-nil, replaces the job's persisted payload —
// only meaningful when the job is stateful.
func (s *JobStore) TriggeredJobComplete(ctx context.Context, key domain.TriggerKey, code domain.JobCompletionCode, statefulJobData map[string]string) error {
	err := s.env.run(ctx, []string{lock.TriggerAccess}, func(ctx context.Context, tx gateway.Tx) error {
		t, err := s.gw.SelectTrigger(ctx, tx, key)
		if err != nil {
			return err
		}
		job, err := s.gw.SelectJob(ctx, tx, t.JobKey)
		if err != nil {
			return err
		}

		deleted := false
		switch code {
		case domain.JobCompleteDeleteTrigger:
			if err := s.deleteTriggerAndFired(ctx, tx, key); err != nil {
				return err
			}
			deleted = true
			if err := s.cascadeDeleteIfOrphaned(ctx, tx, job); err != nil {
				return err
			}
		case domain.JobCompleteSetComplete:
			if _, err := s.gw.UpdateTriggerState(ctx, tx, key, domain.StateComplete, nil); err != nil {
				return err
			}
		case domain.JobCompleteSetError:
			if _, err := s.gw.UpdateTriggerState(ctx, tx, key, domain.StateError, nil); err != nil {
				return err
			}
		case domain.JobCompleteSetAllJobTriggersError:
			if err := s.setAllJobTriggers(ctx, tx, t.JobKey, domain.StateError); err != nil {
				return err
			}
		case domain.JobCompleteSetAllJobTriggersComplete:
			if err := s.setAllJobTriggers(ctx, tx, t.JobKey, domain.StateComplete); err != nil {
				return err
			}
		default: // JobCompleteNoop: re-enter WAITING (PAUSED if the group is
			// paused), or, when the trigger's own schedule is exhausted, delete
			// the trigger and then a non-durable job left without triggers.
			if t.NextFireTime == nil {
				if err := s.deleteTriggerAndFired(ctx, tx, key); err != nil {
					return err
				}
				deleted = true
				if err := s.cascadeDeleteIfOrphaned(ctx, tx, job); err != nil {
					return err
				}
				break
			}
			paused, err := s.gw.IsGroupPaused(ctx, tx, key.Group)
			if err != nil {
				return err
			}
			target := domain.StateWaiting
			if paused {
				target = domain.StatePaused
			}
			if _, err := s.gw.UpdateTriggerState(ctx, tx, key, target, nil); err != nil {
				return err
			}
		}

		if job.Stateful {
			if statefulJobData != nil {
				job.JobDataMap = statefulJobData
				if err := s.gw.UpdateJob(ctx, tx, job); err != nil {
					return err
				}
			}
			if err := s.unblockSiblingsLocked(ctx, tx, t.JobKey); err != nil {
				return err
			}
		}

		if !deleted {
			ft, err := s.gw.SelectFiredTriggerByTriggerAndInstance(ctx, tx, key, s.instanceID)
			if err != nil {
				return err
			}
			if ft != nil {
				if err := s.gw.DeleteFiredTrigger(ctx, tx, ft.EntryID); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err == nil {
		metrics.FiredTriggersInFlight.Dec()
	}
	return err
}

// RecoverMisfiredJobs implements recover_misfired_jobs (spec.md §4.4): up to
// MaxMisfiresPerPass WAITING triggers whose next fire time fell behind by
// more than MisfireThreshold get their variant's misfire policy applied.
// more reports whether the batch was full, so the caller should run another
// pass promptly.
func (s *JobStore) RecoverMisfiredJobs(ctx context.Context, now time.Time) (more bool, err error) {
	start := time.Now()
	err = s.env.run(ctx, []string{lock.TriggerAccess}, func(ctx context.Context, tx gateway.Tx) error {
		cutoff := now.Add(-s.opts.MisfireThreshold)
		misfired, err := s.gw.SelectMisfiredTriggers(ctx, tx, cutoff, s.opts.MaxMisfiresPerPass)
		if err != nil {
			return err
		}
		more = len(misfired) >= s.opts.MaxMisfiresPerPass && s.opts.MaxMisfiresPerPass > 0
		for _, t := range misfired {
			if err := s.applyMisfireLocked(ctx, tx, t, now); err != nil {
				return err
			}
			metrics.MisfiresRecoveredTotal.Inc()
		}
		return nil
	})
	metrics.MisfirePassDuration.Observe(time.Since(start).Seconds())
	return more, err
}
