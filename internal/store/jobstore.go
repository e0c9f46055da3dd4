// Package store is the public Store surface (spec.md §6): it wires the Lock
// Manager, transaction envelope, Persistence Gateway, Trigger State Machine &
// Firing Engine, and Cluster Coordinator together into the capability set an
// upstream scheduler calls into. The SQL dialect behind gateway.Gateway and
// the scheduling thread that decides *when* to call AcquireNextTrigger are
// both external collaborators (spec.md §1) — this package only orchestrates.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relaycron/jobstore/internal/domain"
	"github.com/relaycron/jobstore/internal/metrics"
	"github.com/relaycron/jobstore/internal/store/gateway"
	"github.com/relaycron/jobstore/internal/store/lock"
)

// Options mirrors the configuration surface spec.md §6 names.
type Options struct {
	// InstanceID identifies this peer. "AUTO" (or "") resolves to a
	// generated, stable-for-process-lifetime id (SPEC_FULL.md §5).
	InstanceID string

	IsClustered                 bool
	CheckinInterval              time.Duration
	MisfireThreshold             time.Duration
	MaxMisfiresPerPass           int
	LockOnInsert                 bool
	AcquireTriggersWindow        time.Duration
	FailureFactor                float64
}

// DefaultOptions returns the option values a minimal standalone deployment
// would use.
func DefaultOptions() Options {
	return Options{
		InstanceID:            "AUTO",
		IsClustered:           false,
		CheckinInterval:       15 * time.Second,
		MisfireThreshold:      60 * time.Second,
		MaxMisfiresPerPass:    20,
		LockOnInsert:          false,
		AcquireTriggersWindow: 0,
		FailureFactor:         3.0,
	}
}

func (o Options) resolveInstanceID() string {
	if o.InstanceID != "" && o.InstanceID != "AUTO" {
		return o.InstanceID
	}
	host, err := os.Hostname()
	if err != nil {
		host = "unknown-host"
	}
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.NewString()[:8])
}

// JobStore is the orchestrating implementation of the upstream Store
// contract (spec.md §6).
type JobStore struct {
	gw    gateway.Gateway
	locks lock.Manager
	env   *envelope

	opts       Options
	instanceID string
	logger     *slog.Logger

	mu      sync.Mutex
	started bool
}

// New wires a Persistence Gateway and Lock Manager into a ready JobStore.
// Call Initialize before any other method — it runs startup recovery
// (spec.md §4.6).
func New(gw gateway.Gateway, locks lock.Manager, opts Options, logger *slog.Logger) *JobStore {
	if logger == nil {
		logger = slog.Default()
	}
	instanceID := opts.resolveInstanceID()
	return &JobStore{
		gw:         gw,
		locks:      locks,
		env:        newEnvelope(gw, locks),
		opts:       opts,
		instanceID: instanceID,
		logger:     logger.With("component", "jobstore", "instance_id", instanceID),
	}
}

// InstanceID returns this peer's resolved instance id.
func (s *JobStore) InstanceID() string { return s.instanceID }

// Initialize runs startup recovery (spec.md §4.6). Idempotent: a second call
// is a no-op (SPEC_FULL.md §5).
func (s *JobStore) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := s.recoverJobs(ctx); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	metrics.StoreStartTime.Set(float64(time.Now().Unix()))
	s.logger.Info("store initialized")
	return nil
}

// SchedulerStarted marks the bookend the upstream scheduler calls once its
// own dispatch loop is live. The store has no internal state machine of its
// own to start — Initialize already ran recovery — so this only checks that
// Initialize has run and logs; it records no state.
func (s *JobStore) SchedulerStarted(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return fmt.Errorf("scheduler started: store not initialized")
	}
	s.logger.Info("scheduler started")
	return nil
}

// Shutdown clears the initialized flag, so SchedulerStarted fails and a
// later Initialize runs recovery again; other methods do not check the flag
// and keep working. It does not close the underlying gateway — connection lifecycle belongs to
// whoever constructed it (spec.md §1 excludes connection pooling from core).
func (s *JobStore) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	s.logger.Info("store shut down")
	return nil
}

// StoreJob inserts or, with replace=true, upserts a job (spec.md §6
// store_job).
func (s *JobStore) StoreJob(ctx context.Context, job *domain.Job, replace bool) error {
	job = job.Clone()
	lockNames := s.mutatorLocks()
	if replace {
		lockNames = []string{lock.TriggerAccess}
	}
	return s.env.run(ctx, lockNames, func(ctx context.Context, tx gateway.Tx) error {
		exists, err := s.gw.JobExists(ctx, tx, job.Key)
		if err != nil {
			return err
		}
		if exists {
			if !replace {
				return domain.ErrJobAlreadyExists
			}
			return s.gw.UpdateJob(ctx, tx, job)
		}
		return s.gw.InsertJob(ctx, tx, job)
	})
}

// RemoveJob deletes a job and, per spec.md §3, cascades to its triggers.
func (s *JobStore) RemoveJob(ctx context.Context, key domain.JobKey) error {
	return s.env.run(ctx, []string{lock.TriggerAccess}, func(ctx context.Context, tx gateway.Tx) error {
		return s.removeJobLocked(ctx, tx, key)
	})
}

func (s *JobStore) removeJobLocked(ctx context.Context, tx gateway.Tx, key domain.JobKey) error {
	trigs, err := s.gw.SelectTriggersForJob(ctx, tx, key)
	if err != nil {
		return err
	}
	for _, t := range trigs {
		if err := s.deleteTriggerAndFired(ctx, tx, t.Key); err != nil {
			return err
		}
	}
	return s.gw.DeleteJob(ctx, tx, key)
}

// RetrieveJob is a pure read (spec.md §4.2 "pure reads skip step 2").
func (s *JobStore) RetrieveJob(ctx context.Context, key domain.JobKey) (*domain.Job, error) {
	var job *domain.Job
	err := s.env.run(ctx, nil, func(ctx context.Context, tx gateway.Tx) error {
		j, err := s.gw.SelectJob(ctx, tx, key)
		if err != nil {
			return err
		}
		job = j
		return nil
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (s *JobStore) JobGroupNames(ctx context.Context) ([]string, error) {
	var out []string
	err := s.env.run(ctx, nil, func(ctx context.Context, tx gateway.Tx) error {
		v, err := s.gw.SelectJobGroupNames(ctx, tx)
		out = v
		return err
	})
	return out, err
}

func (s *JobStore) JobNamesInGroup(ctx context.Context, group string) ([]string, error) {
	var out []string
	err := s.env.run(ctx, nil, func(ctx context.Context, tx gateway.Tx) error {
		v, err := s.gw.SelectJobNamesInGroup(ctx, tx, group)
		out = v
		return err
	})
	return out, err
}

func (s *JobStore) CountJobs(ctx context.Context) (int, error) {
	var n int
	err := s.env.run(ctx, nil, func(ctx context.Context, tx gateway.Tx) error {
		v, err := s.gw.CountJobs(ctx, tx)
		n = v
		return err
	})
	return n, err
}

// mutatorLocks returns the lock set a non-replacing store_job/store_trigger
// call acquires: only when lock_on_insert is configured (spec.md §4.2's
// bulk-load optimisation). Callers performing a replace upsert instead
// acquire TRIGGER_ACCESS unconditionally (spec.md §4.2: "... or when
// replacement is requested") — see StoreJob/StoreTrigger.
func (s *JobStore) mutatorLocks() []string {
	if s.opts.LockOnInsert {
		return []string{lock.TriggerAccess}
	}
	return nil
}
