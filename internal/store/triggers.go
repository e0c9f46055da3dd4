package store

import (
	"context"
	"errors"

	"github.com/relaycron/jobstore/internal/domain"
	"github.com/relaycron/jobstore/internal/store/gateway"
	"github.com/relaycron/jobstore/internal/store/lock"
)

// StoreTrigger implements store_trigger (spec.md §6/§4.4): inserts, or with
// replace=true upserts, a trigger whose initial state is resolved by
// resolveInitialTriggerState.
func (s *JobStore) StoreTrigger(ctx context.Context, t *domain.Trigger, replace bool) error {
	t = t.Clone()
	lockNames := s.mutatorLocks()
	if replace {
		lockNames = []string{lock.TriggerAccess}
	}
	return s.env.run(ctx, lockNames, func(ctx context.Context, tx gateway.Tx) error {
		return s.storeTriggerLocked(ctx, tx, t, replace)
	})
}

func (s *JobStore) storeTriggerLocked(ctx context.Context, tx gateway.Tx, t *domain.Trigger, replace bool) error {
	jobExists, err := s.gw.JobExists(ctx, tx, t.JobKey)
	if err != nil {
		return err
	}
	if !jobExists {
		return domain.ErrNoSuchJobForTrig
	}
	if t.CalendarName != "" {
		calExists, err := s.gw.CalendarExists(ctx, tx, t.CalendarName)
		if err != nil {
			return err
		}
		if !calExists {
			return domain.ErrUnknownCalendar
		}
	}

	state, err := s.resolveInitialTriggerState(ctx, tx, t)
	if err != nil {
		return err
	}
	t.State = state

	exists, err := s.gw.TriggerExists(ctx, tx, t.Key)
	if err != nil {
		return err
	}
	if exists {
		if !replace {
			return domain.ErrTriggerExists
		}
		return s.gw.UpdateTrigger(ctx, tx, t)
	}
	return s.gw.InsertTrigger(ctx, tx, t)
}

// StoreJobAndTrigger implements store_job_and_trigger (spec.md §6): a job
// and its first trigger in one transaction. A volatile job may only have
// volatile triggers (spec.md §3, §8).
func (s *JobStore) StoreJobAndTrigger(ctx context.Context, job *domain.Job, t *domain.Trigger, replace bool) error {
	if job.Volatile && !t.Volatile {
		return domain.ErrVolatileMismatch
	}
	job = job.Clone()
	t = t.Clone()
	return s.env.run(ctx, []string{lock.TriggerAccess}, func(ctx context.Context, tx gateway.Tx) error {
		exists, err := s.gw.JobExists(ctx, tx, job.Key)
		if err != nil {
			return err
		}
		if exists {
			if !replace {
				return domain.ErrJobAlreadyExists
			}
			if err := s.gw.UpdateJob(ctx, tx, job); err != nil {
				return err
			}
		} else if err := s.gw.InsertJob(ctx, tx, job); err != nil {
			return err
		}
		return s.storeTriggerLocked(ctx, tx, t, replace)
	})
}

// RemoveTrigger implements remove_trigger (spec.md §6): deletes the trigger
// and, if its job is non-durable and now orphaned, cascades to the job.
func (s *JobStore) RemoveTrigger(ctx context.Context, key domain.TriggerKey) error {
	return s.env.run(ctx, []string{lock.TriggerAccess}, func(ctx context.Context, tx gateway.Tx) error {
		t, err := s.gw.SelectTrigger(ctx, tx, key)
		if err != nil {
			return err
		}
		if err := s.deleteTriggerAndFired(ctx, tx, key); err != nil {
			return err
		}
		job, err := s.gw.SelectJob(ctx, tx, t.JobKey)
		if err != nil {
			if errors.Is(err, domain.ErrJobNotFound) {
				return nil
			}
			return err
		}
		return s.cascadeDeleteIfOrphaned(ctx, tx, job)
	})
}

// ReplaceTrigger implements replace_trigger (spec.md §6): atomically swaps
// oldKey out for newTrigger, preserving the single-row semantics spec.md §8
// scenario 2 tests.
func (s *JobStore) ReplaceTrigger(ctx context.Context, oldKey domain.TriggerKey, newTrigger *domain.Trigger) error {
	newTrigger = newTrigger.Clone()
	return s.env.run(ctx, []string{lock.TriggerAccess}, func(ctx context.Context, tx gateway.Tx) error {
		if oldKey != newTrigger.Key {
			if err := s.deleteTriggerAndFired(ctx, tx, oldKey); err != nil {
				return err
			}
			return s.storeTriggerLocked(ctx, tx, newTrigger, false)
		}
		return s.storeTriggerLocked(ctx, tx, newTrigger, true)
	})
}

// RetrieveTrigger is a pure read.
func (s *JobStore) RetrieveTrigger(ctx context.Context, key domain.TriggerKey) (*domain.Trigger, error) {
	var t *domain.Trigger
	err := s.env.run(ctx, nil, func(ctx context.Context, tx gateway.Tx) error {
		v, err := s.gw.SelectTrigger(ctx, tx, key)
		t = v
		return err
	})
	return t, err
}

// TriggerState returns the current state of a trigger, for introspection
// (spec.md §6).
func (s *JobStore) TriggerState(ctx context.Context, key domain.TriggerKey) (domain.TriggerState, error) {
	t, err := s.RetrieveTrigger(ctx, key)
	if err != nil {
		return "", err
	}
	return t.State, nil
}

func (s *JobStore) TriggersForJob(ctx context.Context, jobKey domain.JobKey) ([]*domain.Trigger, error) {
	var out []*domain.Trigger
	err := s.env.run(ctx, nil, func(ctx context.Context, tx gateway.Tx) error {
		v, err := s.gw.SelectTriggersForJob(ctx, tx, jobKey)
		out = v
		return err
	})
	return out, err
}

func (s *JobStore) TriggerGroupNames(ctx context.Context) ([]string, error) {
	var out []string
	err := s.env.run(ctx, nil, func(ctx context.Context, tx gateway.Tx) error {
		v, err := s.gw.SelectTriggerGroupNames(ctx, tx)
		out = v
		return err
	})
	return out, err
}

func (s *JobStore) TriggerNamesInGroup(ctx context.Context, group string) ([]string, error) {
	var out []string
	err := s.env.run(ctx, nil, func(ctx context.Context, tx gateway.Tx) error {
		v, err := s.gw.SelectTriggerNamesInGroup(ctx, tx, group)
		out = v
		return err
	})
	return out, err
}

func (s *JobStore) CountTriggersForJob(ctx context.Context, jobKey domain.JobKey) (int, error) {
	var n int
	err := s.env.run(ctx, nil, func(ctx context.Context, tx gateway.Tx) error {
		v, err := s.gw.CountTriggersForJob(ctx, tx, jobKey)
		n = v
		return err
	})
	return n, err
}
