package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	processStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jenky",
			Subsystem: "process",
			Name:      "starts_total",
			Help:      "Number of process starts performed by the supervisor.",
		}, []string{"repo", "process"},
	)
	processStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jenky",
			Subsystem: "process",
			Name:      "stops_total",
			Help:      "Number of processes reaped by the supervisor.",
		}, []string{"repo", "process", "mode"},
	)
	processRunning = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "jenky",
			Subsystem: "process",
			Name:      "running",
			Help:      "1 when the process was alive at the last sync, else 0.",
		}, []string{"repo", "process"},
	)
	actions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jenky",
			Subsystem: "api",
			Name:      "actions_total",
			Help:      "Process actions requested through the API.",
		}, []string{"action"},
	)
	syncDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "jenky",
			Subsystem: "supervisor",
			Name:      "sync_duration_seconds",
			Help:      "Duration of a full sync pass over all repositories.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	gitErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jenky",
			Subsystem: "git",
			Name:      "errors_total",
			Help:      "git client failures while inspecting a repository.",
		}, []string{"repo"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{processStarts, processStops, processRunning, actions, syncDuration, gitErrors}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// HandlerFor serves metrics from g.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncStart(repo, process string) {
	if regOK.Load() {
		processStarts.WithLabelValues(repo, process).Inc()
	}
}

// IncStop counts a reap; killed reports whether SIGKILL was needed.
func IncStop(repo, process string, killed bool) {
	if regOK.Load() {
		mode := "term"
		if killed {
			mode = "kill"
		}
		processStops.WithLabelValues(repo, process, mode).Inc()
	}
}

func SetRunning(repo, process string, running bool) {
	if regOK.Load() {
		v := 0.0
		if running {
			v = 1
		}
		processRunning.WithLabelValues(repo, process).Set(v)
	}
}

func IncAction(action string) {
	if regOK.Load() {
		actions.WithLabelValues(action).Inc()
	}
}

func ObserveSync(seconds float64) {
	if regOK.Load() {
		syncDuration.Observe(seconds)
	}
}

func IncGitError(repo string) {
	if regOK.Load() {
		gitErrors.WithLabelValues(repo).Inc()
	}
}
