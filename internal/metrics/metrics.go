package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Lock manager

	LockWaitDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "jobstore",
		Name:      "lock_wait_duration_seconds",
		Help:      "Time spent waiting to obtain a named lock.",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"lock"})

	LockTimeoutsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jobstore",
		Name:      "lock_timeouts_total",
		Help:      "Total times obtaining a named lock timed out.",
	}, []string{"lock"})

	// Trigger state machine / firing engine

	TriggerAcquisitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jobstore",
		Name:      "trigger_acquisitions_total",
		Help:      "Total triggers successfully moved WAITING -> ACQUIRED.",
	}, []string{"instance_id"})

	TriggerCASLossesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jobstore",
		Name:      "trigger_cas_losses_total",
		Help:      "Total conditional updates that lost the race to a peer.",
	}, []string{"transition"})

	TriggersFiredTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jobstore",
		Name:      "triggers_fired_total",
		Help:      "Total triggers that completed triggered_fired, by outcome.",
	}, []string{"outcome"})

	FiredTriggersInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "jobstore",
		Name:      "fired_triggers_in_flight",
		Help:      "Number of fired-trigger records currently owned by this instance.",
	})

	MisfiresRecoveredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "jobstore",
		Name:      "misfires_recovered_total",
		Help:      "Total triggers whose misfire policy was applied.",
	})

	MisfirePassDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "jobstore",
		Name:      "misfire_pass_duration_seconds",
		Help:      "Time taken for one recover_misfired_jobs pass.",
		Buckets:   prometheus.DefBuckets,
	})

	// Cluster coordinator

	CheckinsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jobstore",
		Name:      "checkins_total",
		Help:      "Total check-ins performed, by outcome.",
	}, []string{"outcome"})

	PeersRecoveredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "jobstore",
		Name:      "peers_recovered_total",
		Help:      "Total peer instances recovered after being found stale.",
	})

	// Process lifecycle

	StoreStartTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "jobstore",
		Name:      "store_start_time_seconds",
		Help:      "Unix timestamp when this instance initialized.",
	})
)

func Register() {
	prometheus.MustRegister(
		LockWaitDuration,
		LockTimeoutsTotal,
		TriggerAcquisitionsTotal,
		TriggerCASLossesTotal,
		TriggersFiredTotal,
		FiredTriggersInFlight,
		MisfiresRecoveredTotal,
		MisfirePassDuration,
		CheckinsTotal,
		PeersRecoveredTotal,
		StoreStartTime,
	)
}

func NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{Addr: addr, Handler: mux}
}
