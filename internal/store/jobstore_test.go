package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/relaycron/jobstore/internal/domain"
	"github.com/relaycron/jobstore/internal/store"
)

func newTestStore(t *testing.T, instanceID string) (*store.JobStore, *fakeGateway) {
	t.Helper()
	gw := newFakeGateway()
	opts := store.DefaultOptions()
	opts.InstanceID = instanceID
	js := store.New(gw, fakeLockManager{}, opts, nil)
	if err := js.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return js, gw
}

func TestStoreJob_InsertThenRetrieve(t *testing.T) {
	js, _ := newTestStore(t, "inst-1")
	ctx := context.Background()
	key := domain.JobKey{Group: "G", Name: "J"}

	if err := js.StoreJob(ctx, &domain.Job{Key: key, Class: "demo", Durable: true}, false); err != nil {
		t.Fatalf("store job: %v", err)
	}

	got, err := js.RetrieveJob(ctx, key)
	if err != nil {
		t.Fatalf("retrieve job: %v", err)
	}
	if got.Class != "demo" {
		t.Fatalf("expected class demo, got %q", got.Class)
	}
}

func TestStoreJob_DuplicateWithoutReplaceFails(t *testing.T) {
	js, _ := newTestStore(t, "inst-1")
	ctx := context.Background()
	key := domain.JobKey{Group: "G", Name: "J"}

	if err := js.StoreJob(ctx, &domain.Job{Key: key}, false); err != nil {
		t.Fatalf("first store: %v", err)
	}
	err := js.StoreJob(ctx, &domain.Job{Key: key}, false)
	if !errors.Is(err, domain.ErrJobAlreadyExists) {
		t.Fatalf("expected ErrJobAlreadyExists, got %v", err)
	}
}

func TestRemoveJob_CascadesTriggers(t *testing.T) {
	js, gw := newTestStore(t, "inst-1")
	ctx := context.Background()
	jobKey := domain.JobKey{Group: "G", Name: "J"}
	trigKey := domain.TriggerKey{Group: "G", Name: "T"}

	if err := js.StoreJob(ctx, &domain.Job{Key: jobKey, Durable: true}, false); err != nil {
		t.Fatalf("store job: %v", err)
	}
	next := time.Now().Add(time.Hour)
	trig := &domain.Trigger{
		Key: trigKey, JobKey: jobKey, StartTime: time.Now(), NextFireTime: &next,
		Simple: &domain.SimpleTrigger{RepeatCount: domain.RepeatIndefinitely},
	}
	if err := js.StoreTrigger(ctx, trig, false); err != nil {
		t.Fatalf("store trigger: %v", err)
	}

	if err := js.RemoveJob(ctx, jobKey); err != nil {
		t.Fatalf("remove job: %v", err)
	}

	if _, ok := gw.triggers[trigKey]; ok {
		t.Fatal("expected trigger to be cascade-deleted")
	}
	if _, ok := gw.jobs[jobKey]; ok {
		t.Fatal("expected job to be deleted")
	}
}

func TestCountJobs_ReflectsStoredJobs(t *testing.T) {
	js, _ := newTestStore(t, "inst-1")
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		if err := js.StoreJob(ctx, &domain.Job{Key: domain.JobKey{Group: "G", Name: name}}, false); err != nil {
			t.Fatalf("store job %s: %v", name, err)
		}
	}

	n, err := js.CountJobs(ctx)
	if err != nil {
		t.Fatalf("count jobs: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 jobs, got %d", n)
	}
}

func TestJobIntrospection_GroupAndNameLookups(t *testing.T) {
	js, _ := newTestStore(t, "inst-1")
	ctx := context.Background()

	for _, group := range []string{"JG1", "JG2"} {
		if err := js.StoreJob(ctx, &domain.Job{Key: domain.JobKey{Group: group, Name: "J"}}, false); err != nil {
			t.Fatalf("store job in %s: %v", group, err)
		}
	}

	groups, err := js.JobGroupNames(ctx)
	if err != nil {
		t.Fatalf("job group names: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("expected 2 job groups, got %v", groups)
	}

	names, err := js.JobNamesInGroup(ctx, "JG1")
	if err != nil {
		t.Fatalf("job names in group: %v", err)
	}
	if len(names) != 1 || names[0] != "J" {
		t.Fatalf("expected [J], got %v", names)
	}
}

func TestInitialize_IsIdempotent(t *testing.T) {
	js, _ := newTestStore(t, "inst-1")
	if err := js.Initialize(context.Background()); err != nil {
		t.Fatalf("second initialize should be a no-op, got error: %v", err)
	}
}
