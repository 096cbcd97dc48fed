// Package vigil pairs a self-healing process supervisor with a pull-based
// continuous-deployment agent. The supervisor keeps exactly one child process
// alive, restarting it after crashes behind a crash-rate circuit breaker; the
// deploy orchestrator detects new revisions in tracked repositories and
// rebuilds/redeploys them under a single-flight run lock.
package vigil

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vigil-sh/vigil/internal/child"
	cfg "github.com/vigil-sh/vigil/internal/config"
	"github.com/vigil-sh/vigil/internal/deploy"
	"github.com/vigil-sh/vigil/internal/history"
	"github.com/vigil-sh/vigil/internal/history/factory"
	"github.com/vigil-sh/vigil/internal/lock"
	"github.com/vigil-sh/vigil/internal/metrics"
	iapi "github.com/vigil-sh/vigil/internal/server"
	"github.com/vigil-sh/vigil/internal/state"
	"github.com/vigil-sh/vigil/internal/supervisor"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Spec = child.Spec

type ExitStatus = child.ExitStatus

type Options = supervisor.Options

type Snapshot = supervisor.Snapshot

type Supervisor = supervisor.Supervisor

type Target = deploy.Target

type RunResult = deploy.RunResult

type TargetResult = deploy.TargetResult

type HistorySink = history.Sink

type Config = cfg.Config

// New builds a supervisor for spec with the crash ledger at crashLog.
func New(spec Spec, opts Options, crashLog string) *Supervisor {
	return supervisor.New(spec, opts, crashLog)
}

// Delay sets an explicit restart delay on Options; Delay(0) restarts
// immediately, while a nil RestartDelay keeps the default.
func Delay(d time.Duration) *time.Duration { return supervisor.Delay(d) }

// NewOrchestrator builds a deployment orchestrator with a run lock at
// lockPath and the applied-revision store at statePath (sqlite).
func NewOrchestrator(lockPath, statePath string) (*deploy.Orchestrator, error) {
	lk, err := lock.New(lockPath)
	if err != nil {
		return nil, err
	}
	st, err := state.NewSQLite(statePath)
	if err != nil {
		return nil, err
	}
	return deploy.New(lk, st), nil
}

// LoadConfig reads a vigil TOML config file.
func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

// NewHistorySink builds a history sink from a DSN (sqlite path or postgres URL).
func NewHistorySink(dsn string) (HistorySink, error) { return factory.NewSinkFromDSN(dsn) }

// NewHTTPServer starts an HTTP server exposing status/health/metrics for the
// given supervisor.
func NewHTTPServer(addr, basePath string, s *Supervisor) *http.Server {
	return iapi.NewServer(addr, basePath, s)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the
// default registry. It returns any immediate listen error; otherwise it runs
// the server in the caller goroutine.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
