package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/relaycron/jobstore/internal/domain"
)

func TestPauseJobThenResumeJob_RoundTrips(t *testing.T) {
	js, _ := newTestStore(t, "inst-1")
	ctx := context.Background()
	jobKey := domain.JobKey{Group: "G", Name: "J"}
	storeDurableJob(t, js, ctx, jobKey)

	next := time.Now().Add(time.Minute)
	trigKey := domain.TriggerKey{Group: "G", Name: "T"}
	trig := &domain.Trigger{Key: trigKey, JobKey: jobKey, NextFireTime: &next, Simple: &domain.SimpleTrigger{}}
	if err := js.StoreTrigger(ctx, trig, false); err != nil {
		t.Fatalf("store trigger: %v", err)
	}

	if err := js.PauseJob(ctx, jobKey); err != nil {
		t.Fatalf("pause job: %v", err)
	}
	if state, _ := js.TriggerState(ctx, trigKey); state != domain.StatePaused {
		t.Fatalf("expected PAUSED, got %v", state)
	}

	if err := js.ResumeJob(ctx, jobKey, time.Now()); err != nil {
		t.Fatalf("resume job: %v", err)
	}
	if state, _ := js.TriggerState(ctx, trigKey); state != domain.StateWaiting {
		t.Fatalf("expected WAITING, got %v", state)
	}
}

func TestPauseJobGroup_PausesEveryTriggerOnGroupJobs(t *testing.T) {
	js, gw := newTestStore(t, "inst-1")
	ctx := context.Background()
	next := time.Now().Add(time.Minute)

	for _, name := range []string{"j1", "j2"} {
		jobKey := domain.JobKey{Group: "JG", Name: name}
		storeDurableJob(t, js, ctx, jobKey)
		trigKey := domain.TriggerKey{Group: "TG", Name: name}
		trig := &domain.Trigger{Key: trigKey, JobKey: jobKey, NextFireTime: &next, Simple: &domain.SimpleTrigger{}}
		if err := js.StoreTrigger(ctx, trig, false); err != nil {
			t.Fatalf("store trigger %s: %v", name, err)
		}
	}

	if err := js.PauseJobGroup(ctx, "JG"); err != nil {
		t.Fatalf("pause job group: %v", err)
	}

	for _, name := range []string{"j1", "j2"} {
		got := gw.triggers[domain.TriggerKey{Group: "TG", Name: name}]
		if got.State != domain.StatePaused {
			t.Fatalf("expected %s PAUSED, got %v", name, got.State)
		}
	}
}

func TestResumeJobGroup_ResumesEveryTriggerOnGroupJobs(t *testing.T) {
	js, gw := newTestStore(t, "inst-1")
	ctx := context.Background()
	next := time.Now().Add(time.Minute)

	for _, name := range []string{"j1", "j2"} {
		jobKey := domain.JobKey{Group: "JG", Name: name}
		storeDurableJob(t, js, ctx, jobKey)
		trigKey := domain.TriggerKey{Group: "TG", Name: name}
		trig := &domain.Trigger{Key: trigKey, JobKey: jobKey, NextFireTime: &next, Simple: &domain.SimpleTrigger{}}
		if err := js.StoreTrigger(ctx, trig, false); err != nil {
			t.Fatalf("store trigger %s: %v", name, err)
		}
	}

	if err := js.PauseJobGroup(ctx, "JG"); err != nil {
		t.Fatalf("pause job group: %v", err)
	}
	if err := js.ResumeJobGroup(ctx, "JG", time.Now()); err != nil {
		t.Fatalf("resume job group: %v", err)
	}

	for _, name := range []string{"j1", "j2"} {
		got := gw.triggers[domain.TriggerKey{Group: "TG", Name: name}]
		if got.State != domain.StateWaiting {
			t.Fatalf("expected %s WAITING, got %v", name, got.State)
		}
	}
}

func TestPauseAllThenResumeAll_RoundTrips(t *testing.T) {
	js, gw := newTestStore(t, "inst-1")
	ctx := context.Background()
	next := time.Now().Add(time.Minute)

	for _, group := range []string{"A", "B"} {
		jobKey := domain.JobKey{Group: group, Name: "J"}
		storeDurableJob(t, js, ctx, jobKey)
		trigKey := domain.TriggerKey{Group: group, Name: "T"}
		trig := &domain.Trigger{Key: trigKey, JobKey: jobKey, NextFireTime: &next, Simple: &domain.SimpleTrigger{}}
		if err := js.StoreTrigger(ctx, trig, false); err != nil {
			t.Fatalf("store trigger in %s: %v", group, err)
		}
	}

	if err := js.PauseAll(ctx); err != nil {
		t.Fatalf("pause all: %v", err)
	}
	groups, err := js.PausedTriggerGroups(ctx)
	if err != nil {
		t.Fatalf("paused trigger groups: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("expected 2 paused groups, got %d: %v", len(groups), groups)
	}
	for _, group := range []string{"A", "B"} {
		if gw.triggers[domain.TriggerKey{Group: group, Name: "T"}].State != domain.StatePaused {
			t.Fatalf("expected trigger in group %s PAUSED", group)
		}
	}

	if err := js.ResumeAll(ctx, time.Now()); err != nil {
		t.Fatalf("resume all: %v", err)
	}
	groups, err = js.PausedTriggerGroups(ctx)
	if err != nil {
		t.Fatalf("paused trigger groups after resume: %v", err)
	}
	if len(groups) != 0 {
		t.Fatalf("expected no paused groups after resume all, got %v", groups)
	}
	for _, group := range []string{"A", "B"} {
		if gw.triggers[domain.TriggerKey{Group: group, Name: "T"}].State != domain.StateWaiting {
			t.Fatalf("expected trigger in group %s WAITING after resume", group)
		}
	}
}

func TestResumeTrigger_ReappliesMisfirePolicyWhenStale(t *testing.T) {
	js, gw := newTestStore(t, "inst-1")
	ctx := context.Background()
	jobKey := domain.JobKey{Group: "G", Name: "J"}
	storeDurableJob(t, js, ctx, jobKey)

	soon := time.Now().Add(time.Minute)
	trigKey := domain.TriggerKey{Group: "G", Name: "T"}
	trig := &domain.Trigger{
		Key: trigKey, JobKey: jobKey, NextFireTime: &soon,
		Simple: &domain.SimpleTrigger{RepeatCount: domain.RepeatIndefinitely, RepeatInterval: time.Minute},
	}
	if err := js.StoreTrigger(ctx, trig, false); err != nil {
		t.Fatalf("store trigger: %v", err)
	}
	if err := js.PauseTrigger(ctx, trigKey); err != nil {
		t.Fatalf("pause trigger: %v", err)
	}

	// While paused, the trigger's schedule falls far enough behind that
	// resuming it must trip the default store's misfire-reapplication
	// branch (MisfireThreshold is 60s) rather than just flipping state.
	stale := time.Now().Add(-2 * time.Hour)
	gw.triggers[trigKey].NextFireTime = &stale

	now := time.Now()
	if err := js.ResumeTrigger(ctx, trigKey, now); err != nil {
		t.Fatalf("resume trigger: %v", err)
	}

	got := gw.triggers[trigKey]
	if got.State != domain.StateWaiting {
		t.Fatalf("expected WAITING, got %v", got.State)
	}
	if got.NextFireTime == nil || !got.NextFireTime.After(stale) {
		t.Fatalf("expected misfire policy to advance next fire time past %v, got %v", stale, got.NextFireTime)
	}
}

func TestResumeTrigger_FreshScheduleSkipsMisfirePolicy(t *testing.T) {
	js, gw := newTestStore(t, "inst-1")
	ctx := context.Background()
	jobKey := domain.JobKey{Group: "G", Name: "J"}
	storeDurableJob(t, js, ctx, jobKey)

	next := time.Now().Add(time.Minute)
	trigKey := domain.TriggerKey{Group: "G", Name: "T"}
	trig := &domain.Trigger{Key: trigKey, JobKey: jobKey, NextFireTime: &next, Simple: &domain.SimpleTrigger{}}
	if err := js.StoreTrigger(ctx, trig, false); err != nil {
		t.Fatalf("store trigger: %v", err)
	}
	if err := js.PauseTrigger(ctx, trigKey); err != nil {
		t.Fatalf("pause trigger: %v", err)
	}

	if err := js.ResumeTrigger(ctx, trigKey, time.Now()); err != nil {
		t.Fatalf("resume trigger: %v", err)
	}

	got := gw.triggers[trigKey]
	if got.NextFireTime == nil || !got.NextFireTime.Equal(next) {
		t.Fatalf("expected next fire time untouched at %v, got %v", next, got.NextFireTime)
	}
}
