package domain

import "errors"

// Client errors — invalid combinations, surfaced with no retry (spec §7.1).
var (
	ErrJobNotFound       = errors.New("job not found")
	ErrTriggerNotFound   = errors.New("trigger not found")
	ErrCalendarNotFound  = errors.New("calendar not found")
	ErrCalendarInUse     = errors.New("calendar still referenced by a trigger")
	ErrJobAlreadyExists  = errors.New("job with this group/name already exists")
	ErrTriggerExists     = errors.New("trigger with this group/name already exists")
	ErrCalendarExists    = errors.New("calendar with this name already exists")
	ErrVolatileMismatch  = errors.New("a volatile job may only have volatile triggers")
	ErrUnknownCalendar   = errors.New("trigger references an unknown calendar")
	ErrNoSuchJobForTrig  = errors.New("trigger references a job that does not exist")
)

// ErrJobDoesNotExist is the §7.3 "missing-row" error. It is captured rather
// than aborting the surrounding transaction when encountered inside
// triggered_fired — the transaction still commits its bookkeeping and this
// error is rethrown to the caller afterward.
var ErrJobDoesNotExist = errors.New("job referenced by trigger does not exist")

// ErrLockTimeout and ErrConnLost are transient persistence errors (§7.2):
// the caller may retry the whole operation.
var (
	ErrLockTimeout = errors.New("timed out waiting to obtain lock")
	ErrConnLost    = errors.New("database connection lost")
)
