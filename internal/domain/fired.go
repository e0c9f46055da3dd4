package domain

import "time"

// FiredTrigger is the authoritative record of work in flight (spec.md §3):
// created when a trigger is acquired, deleted on completion, release, or
// cluster recovery.
type FiredTrigger struct {
	EntryID    string
	InstanceID string

	TriggerKey TriggerKey
	JobKey     JobKey

	State TriggerState

	IsStateful       bool
	RequestsRecovery bool

	FireTime time.Time
	Priority int
}

// SchedulerState is one scheduler instance's heartbeat row (spec.md §3).
type SchedulerState struct {
	InstanceID      string
	LastCheckinTime time.Time
	CheckinInterval time.Duration
}

// IsStale reports whether this scheduler state's heartbeat predates the
// cutoff a peer would use to declare it failed (spec.md §4.5 step 2).
func (s SchedulerState) IsStale(now time.Time, failureFactor float64) bool {
	threshold := time.Duration(float64(s.CheckinInterval) * failureFactor)
	return now.Sub(s.LastCheckinTime) > threshold
}

// FiredBundle is returned by triggered_fired (spec.md §4.4): everything the
// upstream scheduler needs to actually run the job.
type FiredBundle struct {
	Job     *Job
	Trigger *Trigger

	ScheduledFireTime time.Time
	FireTime          time.Time
	PrevFireTime      *time.Time
	NextFireTime      *time.Time

	Recovering      bool
	RecoveringEntry string
}
