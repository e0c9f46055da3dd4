// Package gateway defines the Persistence Gateway contract (spec.md §4.3):
// a set of CRUD-level primitives over the relational tables, plus the
// conditional-update (CAS) primitive the Trigger State Machine relies on to
// resolve racing peers in the database rather than in memory.
//
// The interface here is core; a concrete SQL dialect behind it (see
// internal/store/postgres) is not — spec.md §1 explicitly excludes "Defining
// the SQL schema dialects" from scope.
package gateway

import (
	"context"
	"time"

	"github.com/relaycron/jobstore/internal/domain"
)

// Tx is an opaque transaction handle. The Postgres gateway's Tx is a
// pgx.Tx; it also satisfies lock.Conn so the same handle threads through
// both lock acquisition and every gateway call within one envelope.
//
// This is a type alias, not a defined type: every concrete Gateway
// implementation spells its parameter/return types as plain `any` (matching
// the teacher's repository-interface style), and an alias makes that
// identical to Tx for interface satisfaction — a defined type would not.
type Tx = any

// ConnProvider borrows a connection and starts a transaction on it — step 1
// of the transaction envelope (spec.md §4.2).
type ConnProvider interface {
	Begin(ctx context.Context) (Tx, error)
	Commit(ctx context.Context, tx Tx) error
	Rollback(ctx context.Context, tx Tx) error
}

// JobGateway is the CRUD surface over JOB_DETAILS.
type JobGateway interface {
	InsertJob(ctx context.Context, tx Tx, job *domain.Job) error
	UpdateJob(ctx context.Context, tx Tx, job *domain.Job) error
	SelectJob(ctx context.Context, tx Tx, key domain.JobKey) (*domain.Job, error)
	DeleteJob(ctx context.Context, tx Tx, key domain.JobKey) error
	JobExists(ctx context.Context, tx Tx, key domain.JobKey) (bool, error)
	SelectJobGroupNames(ctx context.Context, tx Tx) ([]string, error)
	SelectJobNamesInGroup(ctx context.Context, tx Tx, group string) ([]string, error)
	CountJobs(ctx context.Context, tx Tx) (int, error)
	DeleteVolatileJobs(ctx context.Context, tx Tx) error
}

// TriggerGateway is the CRUD + CAS surface over TRIGGERS (and, implicitly,
// SIMPLE_TRIGGERS/CRON_TRIGGERS/BLOB_TRIGGERS — the variant payload rides
// along on the same domain.Trigger value).
type TriggerGateway interface {
	InsertTrigger(ctx context.Context, tx Tx, trig *domain.Trigger) error
	UpdateTrigger(ctx context.Context, tx Tx, trig *domain.Trigger) error

	// UpdateTriggerState is the single-row CAS spec.md §4.3 calls out by
	// name: "UPDATE ... WHERE state = old_state". fromState == nil means
	// "unconditional" (still a single UPDATE, just without the WHERE
	// clause on state). It reports whether a row was actually updated so
	// the caller can detect a lost race.
	UpdateTriggerState(ctx context.Context, tx Tx, key domain.TriggerKey, newState domain.TriggerState, fromState *domain.TriggerState) (bool, error)

	SelectTrigger(ctx context.Context, tx Tx, key domain.TriggerKey) (*domain.Trigger, error)
	DeleteTrigger(ctx context.Context, tx Tx, key domain.TriggerKey) error
	TriggerExists(ctx context.Context, tx Tx, key domain.TriggerKey) (bool, error)

	SelectTriggersForJob(ctx context.Context, tx Tx, jobKey domain.JobKey) ([]*domain.Trigger, error)
	SelectTriggerGroupNames(ctx context.Context, tx Tx) ([]string, error)
	SelectTriggerNamesInGroup(ctx context.Context, tx Tx, group string) ([]string, error)
	CountTriggersForJob(ctx context.Context, tx Tx, jobKey domain.JobKey) (int, error)

	// SelectNextTriggerToAcquire returns the WAITING trigger with the
	// earliest next fire time <= now+window (ties go to higher priority,
	// then to trigger key), or nil if none qualifies (spec.md §4.4
	// acquire_next_trigger).
	SelectNextTriggerToAcquire(ctx context.Context, tx Tx, now, maxNextFireTime time.Time, excluding map[domain.TriggerKey]bool) (*domain.Trigger, error)

	// SelectMisfiredTriggers returns up to limit WAITING triggers whose
	// next fire time is before the cutoff (spec.md §4.3/§4.4).
	SelectMisfiredTriggers(ctx context.Context, tx Tx, before time.Time, limit int) ([]*domain.Trigger, error)

	// SelectTriggerKeysByState returns the keys of every trigger, whichever
	// instance holds it, whose state is any of the given states.
	SelectTriggerKeysByState(ctx context.Context, tx Tx, states ...domain.TriggerState) ([]domain.TriggerKey, error)

	DeleteVolatileTriggers(ctx context.Context, tx Tx) error
}

// CalendarGateway is the CRUD surface over CALENDARS.
type CalendarGateway interface {
	InsertCalendar(ctx context.Context, tx Tx, cal *domain.Calendar) error
	UpdateCalendar(ctx context.Context, tx Tx, cal *domain.Calendar) error
	SelectCalendar(ctx context.Context, tx Tx, name string) (*domain.Calendar, error)
	DeleteCalendar(ctx context.Context, tx Tx, name string) error
	CalendarExists(ctx context.Context, tx Tx, name string) (bool, error)
	DeleteVolatileCalendars(ctx context.Context, tx Tx) error
}

// PausedGroupGateway is the CRUD surface over PAUSED_TRIGGER_GRPS.
type PausedGroupGateway interface {
	MarkGroupPaused(ctx context.Context, tx Tx, group string) error
	MarkGroupResumed(ctx context.Context, tx Tx, group string) error
	IsGroupPaused(ctx context.Context, tx Tx, group string) (bool, error)
	SelectPausedGroups(ctx context.Context, tx Tx) ([]string, error)
}

// FiredTriggerGateway is the CRUD surface over FIRED_TRIGGERS — the
// authoritative record of in-flight work (spec.md §3).
type FiredTriggerGateway interface {
	InsertFiredTrigger(ctx context.Context, tx Tx, ft *domain.FiredTrigger) error
	DeleteFiredTrigger(ctx context.Context, tx Tx, entryID string) error
	SelectFiredTriggersByInstance(ctx context.Context, tx Tx, instanceID string) ([]*domain.FiredTrigger, error)
	SelectFiredTriggerByTriggerAndInstance(ctx context.Context, tx Tx, triggerKey domain.TriggerKey, instanceID string) (*domain.FiredTrigger, error)
	DeleteFiredTriggersByInstance(ctx context.Context, tx Tx, instanceID string) error
}

// SchedulerStateGateway is the CRUD surface over SCHEDULER_STATE.
type SchedulerStateGateway interface {
	InsertSchedulerState(ctx context.Context, tx Tx, s domain.SchedulerState) error
	// UpdateSchedulerStateCheckin reports false if no row for instanceID
	// exists yet — the caller should fall back to InsertSchedulerState.
	UpdateSchedulerStateCheckin(ctx context.Context, tx Tx, instanceID string, checkinTime time.Time) (bool, error)
	DeleteSchedulerState(ctx context.Context, tx Tx, instanceID string) error
	SelectSchedulerStates(ctx context.Context, tx Tx) ([]domain.SchedulerState, error)
	SelectSchedulerState(ctx context.Context, tx Tx, instanceID string) (*domain.SchedulerState, error)
}

// Gateway is the complete Persistence Gateway: every primitive the Trigger
// State Machine, Firing Engine, and Cluster Coordinator need.
type Gateway interface {
	ConnProvider
	JobGateway
	TriggerGateway
	CalendarGateway
	PausedGroupGateway
	FiredTriggerGateway
	SchedulerStateGateway
}
