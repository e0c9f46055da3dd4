// Package trigger implements the variant-specific logic spec.md §9 calls
// "dynamic dispatch over trigger payloads": each trigger kind (simple,
// cron, blob) knows how to compute its own next fire time and how to
// behave when it has misfired. The firing engine (internal/store) dispatches
// into this package on Trigger.Kind() rather than type-switching inline.
package trigger

import (
	"fmt"
	"time"

	"github.com/relaycron/jobstore/internal/domain"
)

// ComputeNext advances t's variant-specific state (e.g. a SimpleTrigger's
// TimesTriggered) and returns the next fire time strictly after afterTime,
// skipping any instant the calendar excludes. A nil return means the
// trigger has no further fires (spec.md §4.4 "triggered_fired").
func ComputeNext(t *domain.Trigger, cal *domain.Calendar, afterTime time.Time) (*time.Time, error) {
	switch t.Kind() {
	case domain.KindSimple:
		return computeNextSimple(t.Simple, cal, afterTime)
	case domain.KindCron:
		return computeNextCron(t.Cron, cal, afterTime)
	case domain.KindBlob:
		return computeNextBlob(t.Blob, cal, afterTime)
	default:
		return nil, fmt.Errorf("trigger %s: unknown kind", t.Key)
	}
}

// ApplyMisfirePolicy mutates t.NextFireTime according to the effective
// misfire instruction (spec.md §4.4 "Misfire policy"). now is the instant
// the misfire was detected at.
func ApplyMisfirePolicy(t *domain.Trigger, cal *domain.Calendar, now time.Time) error {
	instruction := effectiveInstruction(t)

	switch instruction {
	case domain.MisfireDoNothing:
		return nil
	case domain.MisfireFireNow:
		fireAt := now
		t.NextFireTime = &fireAt
		return nil
	case domain.MisfireRescheduleNextSlot:
		next, err := ComputeNext(t, cal, now)
		if err != nil {
			return err
		}
		t.NextFireTime = next
		return nil
	default:
		return fmt.Errorf("trigger %s: unrecognized misfire instruction %d", t.Key, instruction)
	}
}

// effectiveInstruction resolves MisfireSmartPolicy to each variant's
// documented default (spec.md §4.4: "fire-now, reschedule-to-next-slot,
// or do-nothing").
func effectiveInstruction(t *domain.Trigger) domain.MisfireInstruction {
	if t.MisfireInstruction != domain.MisfireSmartPolicy {
		return t.MisfireInstruction
	}
	switch t.Kind() {
	case domain.KindSimple:
		return domain.MisfireFireNow
	case domain.KindCron:
		return domain.MisfireRescheduleNextSlot
	default:
		return domain.MisfireDoNothing
	}
}
