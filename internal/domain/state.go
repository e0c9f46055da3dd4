package domain

// TriggerState is one point in the walk described by spec.md §4.4.
type TriggerState string

const (
	StateWaiting       TriggerState = "WAITING"
	StatePaused        TriggerState = "PAUSED"
	StateAcquired      TriggerState = "ACQUIRED"
	StateExecuting     TriggerState = "EXECUTING"
	StateComplete      TriggerState = "COMPLETE"
	StateError         TriggerState = "ERROR"
	StateBlocked       TriggerState = "BLOCKED"
	StatePausedBlocked TriggerState = "PAUSED_BLOCKED"
)

// MisfireInstruction selects the policy a trigger variant applies when its
// next fire time has fallen behind now by more than the configured
// threshold (spec.md §4.4 "Misfire policy").
type MisfireInstruction int

const (
	// MisfireSmartPolicy lets the trigger variant pick its own default —
	// simple triggers fire-now, cron triggers reschedule-to-next-slot.
	MisfireSmartPolicy MisfireInstruction = iota
	MisfireFireNow
	MisfireRescheduleNextSlot
	MisfireDoNothing
)

// JobCompletionCode is the argument to triggered_job_complete (spec.md §4.4).
type JobCompletionCode int

const (
	JobCompleteNoop JobCompletionCode = iota
	JobCompleteDeleteTrigger
	JobCompleteSetComplete
	JobCompleteSetError
	JobCompleteSetAllJobTriggersError
	JobCompleteSetAllJobTriggersComplete
)
