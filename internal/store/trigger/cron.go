package trigger

import (
	"fmt"
	"time"

	"github.com/relaycron/jobstore/internal/domain"
	"github.com/robfig/cron/v3"
)

// cronParser matches the standard five-field cron semantics.
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// computeNextCron parses the expression in its configured time zone and
// returns the first slot strictly after afterTime that the calendar does
// not exclude, skipping past excluded slots one at a time.
func computeNextCron(c *domain.CronTrigger, cal *domain.Calendar, afterTime time.Time) (*time.Time, error) {
	loc := time.UTC
	if c.TimeZone != "" {
		l, err := time.LoadLocation(c.TimeZone)
		if err != nil {
			return nil, fmt.Errorf("cron trigger: load time zone %q: %w", c.TimeZone, err)
		}
		loc = l
	}

	schedule, err := cronParser.Parse(c.Expression)
	if err != nil {
		return nil, fmt.Errorf("cron trigger: parse expression %q: %w", c.Expression, err)
	}

	next := schedule.Next(afterTime.In(loc))
	for !cal.IsTimeIncluded(next) {
		next = schedule.Next(next)
	}
	return &next, nil
}
