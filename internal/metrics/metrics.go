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

	childStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "supervisor",
			Name:      "child_starts_total",
			Help:      "Number of child process starts.",
		}, []string{"name"},
	)
	childCrashes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "supervisor",
			Name:      "child_crashes_total",
			Help:      "Number of abnormal child exits, by exit class.",
		}, []string{"name", "kind"},
	)
	childRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "supervisor",
			Name:      "child_restarts_total",
			Help:      "Number of restarts after abnormal exits.",
		}, []string{"name"},
	)
	cooldowns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "supervisor",
			Name:      "threshold_cooldowns_total",
			Help:      "Times the crash-rate circuit breaker deferred a restart.",
		}, []string{"name"},
	)
	childRunning = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "vigil",
			Subsystem: "supervisor",
			Name:      "child_running",
			Help:      "Whether the supervised child is currently running (1/0).",
		}, []string{"name"},
	)
	deploys = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "deploy",
			Name:      "applies_total",
			Help:      "Number of successfully deployed revisions per target.",
		}, []string{"target"},
	)
	deployFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "deploy",
			Name:      "failures_total",
			Help:      "Number of failed build/deploy attempts per target and stage.",
		}, []string{"target", "stage"},
	)
	runsSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "deploy",
			Name:      "runs_skipped_total",
			Help:      "Orchestration runs skipped because the run lock was held.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	collectors := []prometheus.Collector{
		childStarts, childCrashes, childRestarts, cooldowns, childRunning,
		deploys, deployFailures, runsSkipped,
	}
	for _, c := range collectors {
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

// Handler returns the /metrics HTTP handler for the default registry.
func Handler() http.Handler { return promhttp.Handler() }

func IncStart(name string)              { childStarts.WithLabelValues(name).Inc() }
func IncCrash(name, kind string)        { childCrashes.WithLabelValues(name, kind).Inc() }
func IncRestart(name string)            { childRestarts.WithLabelValues(name).Inc() }
func IncCooldown(name string)           { cooldowns.WithLabelValues(name).Inc() }
func SetRunning(name string, up bool)   { childRunning.WithLabelValues(name).Set(b2f(up)) }
func IncDeploy(target string)           { deploys.WithLabelValues(target).Inc() }
func IncDeployFailure(target, s string) { deployFailures.WithLabelValues(target, s).Inc() }
func IncRunSkipped()                    { runsSkipped.Inc() }

func b2f(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
