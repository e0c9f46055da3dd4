package store

import (
	"context"

	"github.com/relaycron/jobstore/internal/domain"
	"github.com/relaycron/jobstore/internal/store/gateway"
	"github.com/relaycron/jobstore/internal/store/lock"
)

// StoreCalendar implements store_calendar (spec.md §6). When updateTriggers
// is set and the calendar already exists, every WAITING trigger referencing
// it has its next fire time nudged forward past any newly excluded window —
// the calendar changed shape, so a trigger that would now fire inside an
// excluded range needs to move.
func (s *JobStore) StoreCalendar(ctx context.Context, cal *domain.Calendar, replace, updateTriggers bool) error {
	cal = cal.Clone()
	return s.env.run(ctx, []string{lock.CalendarAccess}, func(ctx context.Context, tx gateway.Tx) error {
		exists, err := s.gw.CalendarExists(ctx, tx, cal.Name)
		if err != nil {
			return err
		}
		if exists {
			if !replace {
				return domain.ErrCalendarExists
			}
			if err := s.gw.UpdateCalendar(ctx, tx, cal); err != nil {
				return err
			}
		} else if err := s.gw.InsertCalendar(ctx, tx, cal); err != nil {
			return err
		}

		if !updateTriggers {
			return nil
		}
		return s.realignTriggersToCalendar(ctx, tx, cal)
	})
}

func (s *JobStore) realignTriggersToCalendar(ctx context.Context, tx gateway.Tx, cal *domain.Calendar) error {
	keys, err := s.gw.SelectTriggerKeysByState(ctx, tx, domain.StateWaiting)
	if err != nil {
		return err
	}
	for _, key := range keys {
		t, err := s.gw.SelectTrigger(ctx, tx, key)
		if err != nil {
			return err
		}
		if t.CalendarName != cal.Name || t.NextFireTime == nil {
			continue
		}
		if cal.IsTimeIncluded(*t.NextFireTime) {
			continue
		}
		next := cal.NextIncludedTime(*t.NextFireTime)
		t.NextFireTime = &next
		if err := s.gw.UpdateTrigger(ctx, tx, t); err != nil {
			return err
		}
	}
	return nil
}

// RemoveCalendar implements remove_calendar (spec.md §3): fails if any
// trigger still references it. Obtains both TRIGGER_ACCESS and
// CALENDAR_ACCESS (spec.md §4.2: calendar delete obtains TRIGGER_ACCESS in
// addition to CALENDAR_ACCESS) so a concurrent store_trigger on a peer that
// would attach this calendar to a new trigger is serialized against this
// delete rather than merely caught after the fact by the gateway's in-use
// foreign-key check.
func (s *JobStore) RemoveCalendar(ctx context.Context, name string) error {
	return s.env.run(ctx, []string{lock.TriggerAccess, lock.CalendarAccess}, func(ctx context.Context, tx gateway.Tx) error {
		return s.gw.DeleteCalendar(ctx, tx, name)
	})
}

// RetrieveCalendar is a pure read.
func (s *JobStore) RetrieveCalendar(ctx context.Context, name string) (*domain.Calendar, error) {
	var cal *domain.Calendar
	err := s.env.run(ctx, nil, func(ctx context.Context, tx gateway.Tx) error {
		v, err := s.gw.SelectCalendar(ctx, tx, name)
		cal = v
		return err
	})
	return cal, err
}
