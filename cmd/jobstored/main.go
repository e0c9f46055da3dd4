// Command jobstored is a demonstration host process for the persistence
// layer: it wires configuration, the Postgres gateway, a Lock Manager, the
// Store, a cluster coordinator, and a misfire-recovery loop together, then
// serves metrics and health endpoints. It is not itself a scheduler —
// deciding when to call AcquireNextTrigger and what to do with a fired
// trigger are the upstream collaborator's job (spec.md §1).
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relaycron/jobstore/config"
	"github.com/relaycron/jobstore/internal/health"
	ctxlog "github.com/relaycron/jobstore/internal/log"
	"github.com/relaycron/jobstore/internal/metrics"
	"github.com/relaycron/jobstore/internal/store"
	"github.com/relaycron/jobstore/internal/store/cluster"
	"github.com/relaycron/jobstore/internal/store/lock"
	"github.com/relaycron/jobstore/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()
	logger.Info("db connected")

	metrics.Register()
	checker := health.NewChecker(pool, logger, prometheus.DefaultRegisterer)

	gw := postgres.NewGateway(pool)
	locks := newLockManager(cfg)

	opts := store.Options{
		InstanceID:            cfg.InstanceID,
		IsClustered:           cfg.IsClustered,
		CheckinInterval:       cfg.CheckinInterval(),
		MisfireThreshold:      cfg.MisfireThreshold(),
		MaxMisfiresPerPass:    cfg.MaxMisfiresToHandleAtATime,
		LockOnInsert:          cfg.LockOnInsert,
		AcquireTriggersWindow: cfg.AcquireTriggersWindow(),
		FailureFactor:         cfg.FailureFactor,
	}
	js := store.New(gw, locks, opts, logger)

	if err := js.Initialize(ctx); err != nil {
		stop()
		log.Fatalf("store initialize: %v", err)
	}
	if err := js.SchedulerStarted(ctx); err != nil {
		logger.Warn("scheduler started", "error", err)
	}
	logger.Info("store initialized", "instance_id", js.InstanceID())

	if cfg.IsClustered {
		coordinator := cluster.New(gw, locks, js.InstanceID(), cfg.CheckinInterval(), cfg.FailureFactor, logger)
		go coordinator.Run(ctx)
	}

	go runMisfireLoop(ctx, js, cfg.CheckinInterval(), logger)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if checker.Readiness(r.Context()).Status != "up" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	})
	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		_ = checker.Liveness(r.Context())
	})

	httpSrv := &http.Server{Addr: ":" + cfg.MetricsPort, Handler: mux}
	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()

	if err := js.Shutdown(context.Background()); err != nil {
		logger.Error("store shutdown", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}

	logger.Info("jobstored shut down")
}

// runMisfireLoop calls RecoverMisfiredJobs on a fixed cadence, re-running
// immediately while a pass reports more work pending (spec.md §4.4).
func runMisfireLoop(ctx context.Context, js *store.JobStore, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				more, err := js.RecoverMisfiredJobs(ctx, time.Now().UTC())
				if err != nil {
					logger.Error("recover misfired jobs", "error", err)
					break
				}
				if !more {
					break
				}
			}
		}
	}
}

func newLockManager(cfg *config.Config) lock.Manager {
	if cfg.UseDBLocks {
		return lock.NewRowLockManager(cfg.SelectWithLockSQLOverride)
	}
	return lock.NewInProcessManager()
}

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}
