package store_test

import (
	"context"
	"sync"
	"time"

	"github.com/relaycron/jobstore/internal/domain"
	"github.com/relaycron/jobstore/internal/store/lock"
)

// fakeGateway is an in-memory gateway.Gateway double. Unlike the teacher's
// function-field fakes (internal/usecase/auth_test.go), the Persistence
// Gateway's surface is wide and table-shaped, so it is faked as in-memory
// maps rather than per-method closures — the same spirit (a hand-written
// test double satisfying a production interface), adapted to a CRUD-heavy
// contract instead of a handful of auth calls.
type fakeGateway struct {
	mu sync.Mutex

	jobs      map[domain.JobKey]*domain.Job
	triggers  map[domain.TriggerKey]*domain.Trigger
	calendars map[string]*domain.Calendar
	paused    map[string]bool
	fired     map[string]*domain.FiredTrigger
	states    map[string]domain.SchedulerState

	txOpen int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		jobs:      map[domain.JobKey]*domain.Job{},
		triggers:  map[domain.TriggerKey]*domain.Trigger{},
		calendars: map[string]*domain.Calendar{},
		paused:    map[string]bool{},
		fired:     map[string]*domain.FiredTrigger{},
		states:    map[string]domain.SchedulerState{},
	}
}

type fakeTx struct{}

func (g *fakeGateway) Begin(ctx context.Context) (any, error) {
	g.mu.Lock()
	g.txOpen++
	g.mu.Unlock()
	return &fakeTx{}, nil
}

func (g *fakeGateway) Commit(ctx context.Context, tx any) error {
	g.mu.Lock()
	g.txOpen--
	g.mu.Unlock()
	return nil
}

func (g *fakeGateway) Rollback(ctx context.Context, tx any) error {
	g.mu.Lock()
	g.txOpen--
	g.mu.Unlock()
	return nil
}

func (g *fakeGateway) InsertJob(ctx context.Context, tx any, job *domain.Job) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.jobs[job.Key]; ok {
		return domain.ErrJobAlreadyExists
	}
	g.jobs[job.Key] = job.Clone()
	return nil
}

func (g *fakeGateway) UpdateJob(ctx context.Context, tx any, job *domain.Job) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.jobs[job.Key]; !ok {
		return domain.ErrJobNotFound
	}
	g.jobs[job.Key] = job.Clone()
	return nil
}

func (g *fakeGateway) SelectJob(ctx context.Context, tx any, key domain.JobKey) (*domain.Job, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	j, ok := g.jobs[key]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return j.Clone(), nil
}

func (g *fakeGateway) DeleteJob(ctx context.Context, tx any, key domain.JobKey) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.jobs[key]; !ok {
		return domain.ErrJobNotFound
	}
	delete(g.jobs, key)
	return nil
}

func (g *fakeGateway) JobExists(ctx context.Context, tx any, key domain.JobKey) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.jobs[key]
	return ok, nil
}

func (g *fakeGateway) SelectJobGroupNames(ctx context.Context, tx any) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for k := range g.jobs {
		if !seen[k.Group] {
			seen[k.Group] = true
			out = append(out, k.Group)
		}
	}
	return out, nil
}

func (g *fakeGateway) SelectJobNamesInGroup(ctx context.Context, tx any, group string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []string
	for k := range g.jobs {
		if k.Group == group {
			out = append(out, k.Name)
		}
	}
	return out, nil
}

func (g *fakeGateway) CountJobs(ctx context.Context, tx any) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.jobs), nil
}

func (g *fakeGateway) DeleteVolatileJobs(ctx context.Context, tx any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for k, j := range g.jobs {
		if j.Volatile {
			delete(g.jobs, k)
		}
	}
	return nil
}

func (g *fakeGateway) InsertTrigger(ctx context.Context, tx any, trig *domain.Trigger) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.triggers[trig.Key]; ok {
		return domain.ErrTriggerExists
	}
	if _, ok := g.jobs[trig.JobKey]; !ok {
		return domain.ErrNoSuchJobForTrig
	}
	g.triggers[trig.Key] = trig.Clone()
	return nil
}

func (g *fakeGateway) UpdateTrigger(ctx context.Context, tx any, trig *domain.Trigger) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.triggers[trig.Key]; !ok {
		return domain.ErrTriggerNotFound
	}
	g.triggers[trig.Key] = trig.Clone()
	return nil
}

func (g *fakeGateway) UpdateTriggerState(ctx context.Context, tx any, key domain.TriggerKey, newState domain.TriggerState, fromState *domain.TriggerState) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.triggers[key]
	if !ok {
		return false, nil
	}
	if fromState != nil && t.State != *fromState {
		return false, nil
	}
	t.State = newState
	return true, nil
}

func (g *fakeGateway) SelectTrigger(ctx context.Context, tx any, key domain.TriggerKey) (*domain.Trigger, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.triggers[key]
	if !ok {
		return nil, domain.ErrTriggerNotFound
	}
	return t.Clone(), nil
}

func (g *fakeGateway) DeleteTrigger(ctx context.Context, tx any, key domain.TriggerKey) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.triggers[key]; !ok {
		return domain.ErrTriggerNotFound
	}
	delete(g.triggers, key)
	return nil
}

func (g *fakeGateway) TriggerExists(ctx context.Context, tx any, key domain.TriggerKey) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.triggers[key]
	return ok, nil
}

func (g *fakeGateway) SelectTriggersForJob(ctx context.Context, tx any, jobKey domain.JobKey) ([]*domain.Trigger, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []*domain.Trigger
	for _, t := range g.triggers {
		if t.JobKey == jobKey {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

func (g *fakeGateway) SelectTriggerGroupNames(ctx context.Context, tx any) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for k := range g.triggers {
		if !seen[k.Group] {
			seen[k.Group] = true
			out = append(out, k.Group)
		}
	}
	return out, nil
}

func (g *fakeGateway) SelectTriggerNamesInGroup(ctx context.Context, tx any, group string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []string
	for k := range g.triggers {
		if k.Group == group {
			out = append(out, k.Name)
		}
	}
	return out, nil
}

func (g *fakeGateway) CountTriggersForJob(ctx context.Context, tx any, jobKey domain.JobKey) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, t := range g.triggers {
		if t.JobKey == jobKey {
			n++
		}
	}
	return n, nil
}

func (g *fakeGateway) SelectNextTriggerToAcquire(ctx context.Context, tx any, now, maxNextFireTime time.Time, excluding map[domain.TriggerKey]bool) (*domain.Trigger, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var best *domain.Trigger
	for _, t := range g.triggers {
		if t.State != domain.StateWaiting || t.NextFireTime == nil {
			continue
		}
		if t.NextFireTime.After(maxNextFireTime) {
			continue
		}
		if excluding[t.Key] {
			continue
		}
		if best == nil || isBetterCandidate(t, best) {
			best = t
		}
	}
	if best == nil {
		return nil, nil
	}
	return best.Clone(), nil
}

func isBetterCandidate(a, b *domain.Trigger) bool {
	if !a.NextFireTime.Equal(*b.NextFireTime) {
		return a.NextFireTime.Before(*b.NextFireTime)
	}
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if a.Key.Group != b.Key.Group {
		return a.Key.Group < b.Key.Group
	}
	return a.Key.Name < b.Key.Name
}

func (g *fakeGateway) SelectMisfiredTriggers(ctx context.Context, tx any, before time.Time, limit int) ([]*domain.Trigger, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []*domain.Trigger
	for _, t := range g.triggers {
		if t.State != domain.StateWaiting || t.NextFireTime == nil {
			continue
		}
		if t.NextFireTime.Before(before) {
			out = append(out, t.Clone())
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (g *fakeGateway) SelectTriggerKeysByState(ctx context.Context, tx any, states ...domain.TriggerState) ([]domain.TriggerKey, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	want := map[domain.TriggerState]bool{}
	for _, s := range states {
		want[s] = true
	}
	var out []domain.TriggerKey
	for k, t := range g.triggers {
		if want[t.State] {
			out = append(out, k)
		}
	}
	return out, nil
}

func (g *fakeGateway) DeleteVolatileTriggers(ctx context.Context, tx any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for k, t := range g.triggers {
		if t.Volatile {
			delete(g.triggers, k)
		}
	}
	return nil
}

func (g *fakeGateway) InsertCalendar(ctx context.Context, tx any, cal *domain.Calendar) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.calendars[cal.Name]; ok {
		return domain.ErrCalendarExists
	}
	g.calendars[cal.Name] = cal.Clone()
	return nil
}

func (g *fakeGateway) UpdateCalendar(ctx context.Context, tx any, cal *domain.Calendar) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.calendars[cal.Name]; !ok {
		return domain.ErrCalendarNotFound
	}
	g.calendars[cal.Name] = cal.Clone()
	return nil
}

func (g *fakeGateway) SelectCalendar(ctx context.Context, tx any, name string) (*domain.Calendar, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.calendars[name]
	if !ok {
		return nil, domain.ErrCalendarNotFound
	}
	return c.Clone(), nil
}

func (g *fakeGateway) DeleteCalendar(ctx context.Context, tx any, name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.calendars[name]; !ok {
		return domain.ErrCalendarNotFound
	}
	for _, t := range g.triggers {
		if t.CalendarName == name {
			return domain.ErrCalendarInUse
		}
	}
	delete(g.calendars, name)
	return nil
}

func (g *fakeGateway) CalendarExists(ctx context.Context, tx any, name string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.calendars[name]
	return ok, nil
}

func (g *fakeGateway) DeleteVolatileCalendars(ctx context.Context, tx any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	used := map[string]bool{}
	for _, t := range g.triggers {
		if t.CalendarName != "" {
			used[t.CalendarName] = true
		}
	}
	for name := range g.calendars {
		if !used[name] {
			delete(g.calendars, name)
		}
	}
	return nil
}

func (g *fakeGateway) MarkGroupPaused(ctx context.Context, tx any, group string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.paused[group] = true
	return nil
}

func (g *fakeGateway) MarkGroupResumed(ctx context.Context, tx any, group string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.paused, group)
	return nil
}

func (g *fakeGateway) IsGroupPaused(ctx context.Context, tx any, group string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused[group], nil
}

func (g *fakeGateway) SelectPausedGroups(ctx context.Context, tx any) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []string
	for group := range g.paused {
		out = append(out, group)
	}
	return out, nil
}

func (g *fakeGateway) InsertFiredTrigger(ctx context.Context, tx any, ft *domain.FiredTrigger) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	cp := *ft
	g.fired[ft.EntryID] = &cp
	return nil
}

func (g *fakeGateway) DeleteFiredTrigger(ctx context.Context, tx any, entryID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.fired, entryID)
	return nil
}

func (g *fakeGateway) SelectFiredTriggersByInstance(ctx context.Context, tx any, instanceID string) ([]*domain.FiredTrigger, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []*domain.FiredTrigger
	for _, ft := range g.fired {
		if ft.InstanceID == instanceID {
			cp := *ft
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (g *fakeGateway) SelectFiredTriggerByTriggerAndInstance(ctx context.Context, tx any, triggerKey domain.TriggerKey, instanceID string) (*domain.FiredTrigger, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var latest *domain.FiredTrigger
	for _, ft := range g.fired {
		if ft.TriggerKey == triggerKey && ft.InstanceID == instanceID {
			if latest == nil || ft.FireTime.After(latest.FireTime) {
				cp := *ft
				latest = &cp
			}
		}
	}
	return latest, nil
}

func (g *fakeGateway) DeleteFiredTriggersByInstance(ctx context.Context, tx any, instanceID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, ft := range g.fired {
		if ft.InstanceID == instanceID {
			delete(g.fired, id)
		}
	}
	return nil
}

func (g *fakeGateway) InsertSchedulerState(ctx context.Context, tx any, s domain.SchedulerState) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.states[s.InstanceID] = s
	return nil
}

func (g *fakeGateway) UpdateSchedulerStateCheckin(ctx context.Context, tx any, instanceID string, checkinTime time.Time) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.states[instanceID]
	if !ok {
		return false, nil
	}
	s.LastCheckinTime = checkinTime
	g.states[instanceID] = s
	return true, nil
}

func (g *fakeGateway) DeleteSchedulerState(ctx context.Context, tx any, instanceID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.states, instanceID)
	return nil
}

func (g *fakeGateway) SelectSchedulerStates(ctx context.Context, tx any) ([]domain.SchedulerState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []domain.SchedulerState
	for _, s := range g.states {
		out = append(out, s)
	}
	return out, nil
}

func (g *fakeGateway) SelectSchedulerState(ctx context.Context, tx any, instanceID string) (*domain.SchedulerState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.states[instanceID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

// fakeLockManager is a no-op Lock Manager: single-process tests don't need
// real mutual exclusion, matching how lock.InProcessManager would behave
// under one goroutine, but without pulling sync.Mutex bookkeeping into
// every test.
type fakeLockManager struct{}

func (fakeLockManager) Obtain(ctx context.Context, conn lock.Conn, name string) error { return nil }
func (fakeLockManager) Release(ctx context.Context, conn lock.Conn, name string, wasOwner bool) error {
	return nil
}
