package trigger

import (
	"time"

	"github.com/relaycron/jobstore/internal/domain"
)

// computeNextSimple is called once per firing with afterTime set to the
// fire time that just occurred. It records that fire in TimesTriggered and
// returns the following fire time, or nil once RepeatCount fires have all
// happened (RepeatIndefinitely never exhausts).
func computeNextSimple(s *domain.SimpleTrigger, cal *domain.Calendar, afterTime time.Time) (*time.Time, error) {
	s.TimesTriggered++

	if s.RepeatCount != domain.RepeatIndefinitely && s.TimesTriggered > s.RepeatCount {
		return nil, nil
	}

	next := cal.NextIncludedTime(afterTime.Add(s.RepeatInterval))
	return &next, nil
}
