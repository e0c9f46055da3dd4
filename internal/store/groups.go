package store

import (
	"context"
	"time"

	"github.com/relaycron/jobstore/internal/domain"
	"github.com/relaycron/jobstore/internal/store/gateway"
	"github.com/relaycron/jobstore/internal/store/lock"
)

// PauseTriggerGroup implements pause-by-trigger-group (spec.md §6): marks
// the group paused so future store_trigger calls land in PAUSED, and pauses
// every trigger currently in the group.
func (s *JobStore) PauseTriggerGroup(ctx context.Context, group string) error {
	return s.env.run(ctx, []string{lock.TriggerAccess}, func(ctx context.Context, tx gateway.Tx) error {
		if err := s.gw.MarkGroupPaused(ctx, tx, group); err != nil {
			return err
		}
		names, err := s.gw.SelectTriggerNamesInGroup(ctx, tx, group)
		if err != nil {
			return err
		}
		for _, name := range names {
			if err := s.pauseTriggerLocked(ctx, tx, domain.TriggerKey{Group: group, Name: name}); err != nil {
				return err
			}
		}
		return nil
	})
}

// ResumeTriggerGroup is PauseTriggerGroup's inverse.
func (s *JobStore) ResumeTriggerGroup(ctx context.Context, group string, now time.Time) error {
	return s.env.run(ctx, []string{lock.TriggerAccess}, func(ctx context.Context, tx gateway.Tx) error {
		if err := s.gw.MarkGroupResumed(ctx, tx, group); err != nil {
			return err
		}
		names, err := s.gw.SelectTriggerNamesInGroup(ctx, tx, group)
		if err != nil {
			return err
		}
		for _, name := range names {
			if err := s.resumeTriggerLocked(ctx, tx, domain.TriggerKey{Group: group, Name: name}, now); err != nil {
				return err
			}
		}
		return nil
	})
}

// PauseJob pauses every trigger attached to a single job.
func (s *JobStore) PauseJob(ctx context.Context, jobKey domain.JobKey) error {
	return s.env.run(ctx, []string{lock.TriggerAccess}, func(ctx context.Context, tx gateway.Tx) error {
		trigs, err := s.gw.SelectTriggersForJob(ctx, tx, jobKey)
		if err != nil {
			return err
		}
		for _, t := range trigs {
			if err := s.pauseTriggerLocked(ctx, tx, t.Key); err != nil {
				return err
			}
		}
		return nil
	})
}

// ResumeJob is PauseJob's inverse.
func (s *JobStore) ResumeJob(ctx context.Context, jobKey domain.JobKey, now time.Time) error {
	return s.env.run(ctx, []string{lock.TriggerAccess}, func(ctx context.Context, tx gateway.Tx) error {
		trigs, err := s.gw.SelectTriggersForJob(ctx, tx, jobKey)
		if err != nil {
			return err
		}
		for _, t := range trigs {
			if err := s.resumeTriggerLocked(ctx, tx, t.Key, now); err != nil {
				return err
			}
		}
		return nil
	})
}

// PauseJobGroup pauses every trigger belonging to any job in a job group.
func (s *JobStore) PauseJobGroup(ctx context.Context, jobGroup string) error {
	return s.env.run(ctx, []string{lock.TriggerAccess}, func(ctx context.Context, tx gateway.Tx) error {
		names, err := s.gw.SelectJobNamesInGroup(ctx, tx, jobGroup)
		if err != nil {
			return err
		}
		for _, name := range names {
			trigs, err := s.gw.SelectTriggersForJob(ctx, tx, domain.JobKey{Group: jobGroup, Name: name})
			if err != nil {
				return err
			}
			for _, t := range trigs {
				if err := s.pauseTriggerLocked(ctx, tx, t.Key); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// ResumeJobGroup is PauseJobGroup's inverse.
func (s *JobStore) ResumeJobGroup(ctx context.Context, jobGroup string, now time.Time) error {
	return s.env.run(ctx, []string{lock.TriggerAccess}, func(ctx context.Context, tx gateway.Tx) error {
		names, err := s.gw.SelectJobNamesInGroup(ctx, tx, jobGroup)
		if err != nil {
			return err
		}
		for _, name := range names {
			trigs, err := s.gw.SelectTriggersForJob(ctx, tx, domain.JobKey{Group: jobGroup, Name: name})
			if err != nil {
				return err
			}
			for _, t := range trigs {
				if err := s.resumeTriggerLocked(ctx, tx, t.Key, now); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// PauseAll pauses every trigger group.
func (s *JobStore) PauseAll(ctx context.Context) error {
	return s.env.run(ctx, []string{lock.TriggerAccess}, func(ctx context.Context, tx gateway.Tx) error {
		groups, err := s.gw.SelectTriggerGroupNames(ctx, tx)
		if err != nil {
			return err
		}
		for _, group := range groups {
			if err := s.gw.MarkGroupPaused(ctx, tx, group); err != nil {
				return err
			}
			names, err := s.gw.SelectTriggerNamesInGroup(ctx, tx, group)
			if err != nil {
				return err
			}
			for _, name := range names {
				if err := s.pauseTriggerLocked(ctx, tx, domain.TriggerKey{Group: group, Name: name}); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// ResumeAll resumes every paused trigger group.
func (s *JobStore) ResumeAll(ctx context.Context, now time.Time) error {
	return s.env.run(ctx, []string{lock.TriggerAccess}, func(ctx context.Context, tx gateway.Tx) error {
		groups, err := s.gw.SelectPausedGroups(ctx, tx)
		if err != nil {
			return err
		}
		for _, group := range groups {
			if err := s.gw.MarkGroupResumed(ctx, tx, group); err != nil {
				return err
			}
			names, err := s.gw.SelectTriggerNamesInGroup(ctx, tx, group)
			if err != nil {
				return err
			}
			for _, name := range names {
				if err := s.resumeTriggerLocked(ctx, tx, domain.TriggerKey{Group: group, Name: name}, now); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (s *JobStore) PausedTriggerGroups(ctx context.Context) ([]string, error) {
	var out []string
	err := s.env.run(ctx, nil, func(ctx context.Context, tx gateway.Tx) error {
		v, err := s.gw.SelectPausedGroups(ctx, tx)
		out = v
		return err
	})
	return out, err
}

// pauseTriggerLocked/resumeTriggerLocked are PauseTrigger/ResumeTrigger's
// inner bodies, reusable from within an already-held TRIGGER_ACCESS lock so
// group/job/all variants don't re-enter the envelope per trigger.
func (s *JobStore) pauseTriggerLocked(ctx context.Context, tx gateway.Tx, key domain.TriggerKey) error {
	t, err := s.gw.SelectTrigger(ctx, tx, key)
	if err != nil {
		return err
	}
	var target domain.TriggerState
	switch t.State {
	case domain.StateWaiting:
		target = domain.StatePaused
	case domain.StateBlocked:
		target = domain.StatePausedBlocked
	default:
		return nil
	}
	from := t.State
	_, err = s.gw.UpdateTriggerState(ctx, tx, key, target, &from)
	return err
}

func (s *JobStore) resumeTriggerLocked(ctx context.Context, tx gateway.Tx, key domain.TriggerKey, now time.Time) error {
	t, err := s.gw.SelectTrigger(ctx, tx, key)
	if err != nil {
		return err
	}
	var target domain.TriggerState
	switch t.State {
	case domain.StatePaused:
		target = domain.StateWaiting
	case domain.StatePausedBlocked:
		target = domain.StateBlocked
	default:
		return nil
	}
	from := t.State
	if _, err := s.gw.UpdateTriggerState(ctx, tx, key, target, &from); err != nil {
		return err
	}
	if target != domain.StateWaiting || t.NextFireTime == nil {
		return nil
	}
	if !t.NextFireTime.Before(now.Add(-s.opts.MisfireThreshold)) {
		return nil
	}
	t.State = target
	return s.applyMisfireLocked(ctx, tx, t, now)
}
