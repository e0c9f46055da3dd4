package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/relaycron/jobstore/internal/domain"
)

func TestStoreCalendar_DuplicateWithoutReplaceFails(t *testing.T) {
	js, _ := newTestStore(t, "inst-1")
	ctx := context.Background()
	cal := &domain.Calendar{Name: "cal"}
	if err := js.StoreCalendar(ctx, cal, false, false); err != nil {
		t.Fatalf("first store: %v", err)
	}
	err := js.StoreCalendar(ctx, cal, false, false)
	if !errors.Is(err, domain.ErrCalendarExists) {
		t.Fatalf("expected ErrCalendarExists, got %v", err)
	}
}

func TestRemoveCalendar_InUseFails(t *testing.T) {
	js, _ := newTestStore(t, "inst-1")
	ctx := context.Background()
	cal := &domain.Calendar{Name: "cal"}
	if err := js.StoreCalendar(ctx, cal, false, false); err != nil {
		t.Fatalf("store calendar: %v", err)
	}
	jobKey := domain.JobKey{Group: "G", Name: "J"}
	storeDurableJob(t, js, ctx, jobKey)
	next := time.Now().Add(time.Minute)
	trig := &domain.Trigger{
		Key: domain.TriggerKey{Group: "G", Name: "T"}, JobKey: jobKey,
		NextFireTime: &next, CalendarName: "cal", Simple: &domain.SimpleTrigger{},
	}
	if err := js.StoreTrigger(ctx, trig, false); err != nil {
		t.Fatalf("store trigger: %v", err)
	}

	err := js.RemoveCalendar(ctx, "cal")
	if !errors.Is(err, domain.ErrCalendarInUse) {
		t.Fatalf("expected ErrCalendarInUse, got %v", err)
	}
}

func TestRemoveCalendar_UnusedSucceeds(t *testing.T) {
	js, _ := newTestStore(t, "inst-1")
	ctx := context.Background()
	cal := &domain.Calendar{Name: "cal"}
	if err := js.StoreCalendar(ctx, cal, false, false); err != nil {
		t.Fatalf("store calendar: %v", err)
	}
	if err := js.RemoveCalendar(ctx, "cal"); err != nil {
		t.Fatalf("remove calendar: %v", err)
	}
	if _, err := js.RetrieveCalendar(ctx, "cal"); !errors.Is(err, domain.ErrCalendarNotFound) {
		t.Fatalf("expected ErrCalendarNotFound, got %v", err)
	}
}

func TestStoreCalendar_UpdateTriggersRealignsExcludedTriggers(t *testing.T) {
	js, gw := newTestStore(t, "inst-1")
	ctx := context.Background()
	jobKey := domain.JobKey{Group: "G", Name: "J"}
	storeDurableJob(t, js, ctx, jobKey)

	fireAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	trigKey := domain.TriggerKey{Group: "G", Name: "T"}
	trig := &domain.Trigger{
		Key: trigKey, JobKey: jobKey, NextFireTime: &fireAt,
		CalendarName: "cal", Simple: &domain.SimpleTrigger{},
	}
	if err := js.StoreCalendar(ctx, &domain.Calendar{Name: "cal"}, false, false); err != nil {
		t.Fatalf("store calendar: %v", err)
	}
	if err := js.StoreTrigger(ctx, trig, false); err != nil {
		t.Fatalf("store trigger: %v", err)
	}

	// Replace the calendar so it now excludes exactly the trigger's
	// scheduled fire time; updateTriggers should nudge it forward.
	excluded := &domain.Calendar{
		Name: "cal",
		ExcludedRanges: []domain.TimeRange{
			{Start: fireAt.Add(-time.Minute), End: fireAt.Add(time.Hour)},
		},
	}
	if err := js.StoreCalendar(ctx, excluded, true, true); err != nil {
		t.Fatalf("store updated calendar: %v", err)
	}

	got := gw.triggers[trigKey]
	if got.NextFireTime == nil || !got.NextFireTime.After(fireAt) {
		t.Fatalf("expected trigger's fire time nudged past the excluded range, got %v", got.NextFireTime)
	}
	if got.NextFireTime.Before(fireAt.Add(time.Hour)) {
		t.Fatalf("expected trigger's fire time at/after the excluded range end, got %v", got.NextFireTime)
	}
}

func TestStoreCalendar_WithoutUpdateTriggersLeavesTriggersAlone(t *testing.T) {
	js, gw := newTestStore(t, "inst-1")
	ctx := context.Background()
	jobKey := domain.JobKey{Group: "G", Name: "J"}
	storeDurableJob(t, js, ctx, jobKey)

	fireAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	trigKey := domain.TriggerKey{Group: "G", Name: "T"}
	trig := &domain.Trigger{
		Key: trigKey, JobKey: jobKey, NextFireTime: &fireAt,
		CalendarName: "cal", Simple: &domain.SimpleTrigger{},
	}
	if err := js.StoreCalendar(ctx, &domain.Calendar{Name: "cal"}, false, false); err != nil {
		t.Fatalf("store calendar: %v", err)
	}
	if err := js.StoreTrigger(ctx, trig, false); err != nil {
		t.Fatalf("store trigger: %v", err)
	}

	excluded := &domain.Calendar{
		Name: "cal",
		ExcludedRanges: []domain.TimeRange{
			{Start: fireAt.Add(-time.Minute), End: fireAt.Add(time.Hour)},
		},
	}
	if err := js.StoreCalendar(ctx, excluded, true, false); err != nil {
		t.Fatalf("store updated calendar: %v", err)
	}

	got := gw.triggers[trigKey]
	if got.NextFireTime == nil || !got.NextFireTime.Equal(fireAt) {
		t.Fatalf("expected trigger's fire time untouched, got %v", got.NextFireTime)
	}
}
