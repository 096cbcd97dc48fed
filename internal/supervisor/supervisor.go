// Package supervisor owns the lifecycle of exactly one child process: it
// keeps the process running, restarts it after crashes with a fixed delay,
// throttles restart attempts through a crash-rate circuit breaker, and stops
// cleanly on operator signal. A clean (code 0) child exit ends supervision.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/vigil-sh/vigil/internal/child"
	"github.com/vigil-sh/vigil/internal/history"
	"github.com/vigil-sh/vigil/internal/ledger"
	"github.com/vigil-sh/vigil/internal/metrics"
)

// Options tune the restart policy. Zero values fall back to the defaults
// below. RestartDelay is a pointer so an explicit zero (restart immediately)
// stays distinguishable from "not configured"; nil selects the default.
type Options struct {
	RestartDelay *time.Duration `mapstructure:"restart_delay"`        // pause after a crash before restarting
	MaxCrashes   int            `mapstructure:"max_crashes_per_hour"` // crash count tripping the breaker
	Window       time.Duration  `mapstructure:"window"`               // trailing window the count applies to
	Cooldown     time.Duration  `mapstructure:"cooldown"`             // pause when the breaker is open
	GracePeriod  time.Duration  `mapstructure:"grace_period"`         // SIGTERM-to-SIGKILL budget on shutdown
	BuildCommand string         `mapstructure:"build_command"`        // optional fallback build when the executable is missing
}

// Delay is a convenience for building Options literals with an explicit
// restart delay, including zero.
func Delay(d time.Duration) *time.Duration { return &d }

const (
	DefaultRestartDelay = 5 * time.Second
	DefaultMaxCrashes   = 10
	DefaultWindow       = time.Hour
	DefaultCooldown     = 60 * time.Second
	DefaultGracePeriod  = 5 * time.Second
)

func (o *Options) applyDefaults() {
	if o.RestartDelay == nil || *o.RestartDelay < 0 {
		o.RestartDelay = Delay(DefaultRestartDelay)
	}
	if o.MaxCrashes <= 0 {
		o.MaxCrashes = DefaultMaxCrashes
	}
	if o.Window <= 0 {
		o.Window = DefaultWindow
	}
	if o.Cooldown <= 0 {
		o.Cooldown = DefaultCooldown
	}
	if o.GracePeriod <= 0 {
		o.GracePeriod = DefaultGracePeriod
	}
}

// Snapshot is a point-in-time view of the supervised process for status
// reporting.
type Snapshot struct {
	Name      string    `json:"name"`
	State     string    `json:"state"`
	Running   bool      `json:"running"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at,omitempty"`
	Restarts  int       `json:"restarts"`
	LastExit  string    `json:"last_exit,omitempty"`
}

// Supervisor drives the run/crash/restart loop for one child.
type Supervisor struct {
	spec child.Spec
	opts Options
	led  *ledger.Ledger

	log  *slog.Logger
	hist history.Sink
	env  []string

	mu        sync.Mutex
	cur       *child.Child
	state     string
	restarts  int
	lastExit  string
	startedAt time.Time

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

// New builds a supervisor for spec with the crash ledger at crashLog.
func New(spec child.Spec, opts Options, crashLog string) *Supervisor {
	opts.applyDefaults()
	return &Supervisor{
		spec:       spec,
		opts:       opts,
		led:        ledger.New(crashLog),
		log:        slog.Default(),
		state:      "idle",
		shutdownCh: make(chan struct{}),
	}
}

// SetLogger replaces the operational logger.
func (s *Supervisor) SetLogger(l *slog.Logger) {
	if l != nil {
		s.log = l
	}
}

// SetHistory attaches an optional history sink for lifecycle events.
func (s *Supervisor) SetHistory(sink history.Sink) { s.hist = sink }

// SetEnv provides extra KEY=VALUE pairs merged into the child environment.
func (s *Supervisor) SetEnv(env []string) { s.env = env }

// Ledger exposes the crash ledger, mainly for status reporting and tests.
func (s *Supervisor) Ledger() *ledger.Ledger { return s.led }

// Shutdown requests a one-way, idempotent stop: the current child (if any)
// is terminated gracefully and no further restart is attempted. Safe to call
// from a signal handler goroutine, any number of times.
func (s *Supervisor) Shutdown() {
	s.shutdownOnce.Do(func() { close(s.shutdownCh) })
}

// Snapshot returns the current status.
func (s *Supervisor) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Name:     s.spec.Name,
		State:    s.state,
		Restarts: s.restarts,
		LastExit: s.lastExit,
	}
	if s.cur != nil {
		snap.Running = true
		snap.PID = s.cur.PID()
		snap.StartedAt = s.startedAt
	}
	return snap
}

// Run supervises the child until a clean exit, a shutdown request, or a fatal
// startup error. It returns nil on clean exit and on shutdown; a non-nil
// error means there was nothing to supervise (unresolvable executable) and is
// never retried.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.spec.Validate(); err != nil {
		return err
	}
	if err := s.resolveExecutable(ctx); err != nil {
		s.setState("terminated")
		return err
	}

	// Fold context cancellation into the one-way shutdown signal so the loop
	// below has a single stop channel to watch. The deferred Shutdown releases
	// the goroutine when Run returns for any other reason.
	defer s.Shutdown()
	go func() {
		select {
		case <-ctx.Done():
			s.Shutdown()
		case <-s.shutdownCh:
		}
	}()

	for {
		if s.stopRequested(ctx) {
			s.setState("terminated")
			return nil
		}

		if wait, n := s.breakerOpen(); wait {
			s.setState("cooldown")
			s.log.Warn("crash threshold exceeded, deferring restart",
				"name", s.spec.Name, "crashes", n, "window", s.opts.Window, "cooldown", s.opts.Cooldown)
			metrics.IncCooldown(s.spec.Name)
			history.Record(ctx, s.hist, s.log, history.Event{
				Type: history.EventCooldown, Name: s.spec.Name,
				Detail: fmt.Sprintf("%d crashes within %s", n, s.opts.Window),
			})
			if !s.sleep(ctx, s.opts.Cooldown) {
				s.setState("terminated")
				return nil
			}
			continue
		}

		s.setState("starting")
		c, err := child.Start(s.spec, s.env)
		if err != nil {
			// Start failed after the executable resolved: nothing to supervise.
			s.setState("terminated")
			return fmt.Errorf("start %s: %w", s.spec.Name, err)
		}
		s.setRunning(c)
		s.log.Info("child started", "name", s.spec.Name, "pid", c.PID(), "restarts", s.restartCount())
		metrics.IncStart(s.spec.Name)
		metrics.SetRunning(s.spec.Name, true)
		history.Record(ctx, s.hist, s.log, history.Event{
			Type: history.EventStart, Name: s.spec.Name, PID: c.PID(),
		})

		exitCh := make(chan child.ExitStatus, 1)
		go func() { exitCh <- c.Wait() }()

		select {
		case st := <-exitCh:
			s.setStopped(st)
			metrics.SetRunning(s.spec.Name, false)
			if !st.Abnormal() {
				s.log.Info("child exited cleanly, supervision complete", "name", s.spec.Name)
				s.setState("terminated")
				return nil
			}
			s.recordCrash(ctx, st)
			if !s.sleep(ctx, *s.opts.RestartDelay) {
				s.setState("terminated")
				return nil
			}

		case <-s.shutdownCh:
			s.terminateChild(c, exitCh)
			s.setState("terminated")
			metrics.SetRunning(s.spec.Name, false)
			history.Record(ctx, s.hist, s.log, history.Event{
				Type: history.EventShutdown, Name: s.spec.Name,
			})
			return nil
		}
	}
}

// resolveExecutable checks the spec's program is runnable, invoking the
// optional build fallback once when it is missing. Failure here is fatal.
func (s *Supervisor) resolveExecutable(ctx context.Context) error {
	exe := s.spec.Executable()
	if _, err := exec.LookPath(exe); err == nil {
		return nil
	}
	if s.opts.BuildCommand == "" {
		return fmt.Errorf("executable %q not found and no build command configured", exe)
	}
	s.log.Info("executable missing, invoking build fallback", "name", s.spec.Name, "build", s.opts.BuildCommand)
	// #nosec G204
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", s.opts.BuildCommand)
	cmd.Dir = s.spec.WorkDir
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("build fallback failed: %w: %s", err, string(out))
	}
	if _, err := exec.LookPath(exe); err != nil {
		return fmt.Errorf("executable %q still not found after build: %w", exe, err)
	}
	return nil
}

// breakerOpen evaluates the crash-rate circuit breaker. An unreadable ledger
// is logged and treated as closed: supervision must not stall on bookkeeping.
func (s *Supervisor) breakerOpen() (bool, int) {
	n, err := s.led.CountSince(time.Now().Add(-s.opts.Window))
	if err != nil {
		s.log.Warn("crash ledger unreadable, skipping threshold check", "error", err)
		return false, 0
	}
	return n >= s.opts.MaxCrashes, n
}

func (s *Supervisor) recordCrash(ctx context.Context, st child.ExitStatus) {
	rec := ledger.Record{At: time.Now(), ExitCode: st.Code}
	if st.Kind == child.Signaled {
		rec.Signal = st.Signal.String()
	}
	if err := s.led.Append(rec); err != nil {
		s.log.Error("failed to append crash record", "name", s.spec.Name, "error", err)
	}
	s.log.Warn("child exited abnormally, scheduling restart",
		"name", s.spec.Name, "exit", st.String(), "delay", *s.opts.RestartDelay)
	metrics.IncCrash(s.spec.Name, st.Kind.String())
	metrics.IncRestart(s.spec.Name)
	history.Record(ctx, s.hist, s.log, history.Event{
		Type: history.EventCrash, Name: s.spec.Name, Detail: st.String(),
	})

	s.mu.Lock()
	s.restarts++
	s.mu.Unlock()
}

// terminateChild sends SIGTERM to the child group, waits up to the grace
// period for the monitor goroutine to reap it, then escalates to SIGKILL.
// The shutdown-induced exit is intentionally not written to the crash ledger.
func (s *Supervisor) terminateChild(c *child.Child, exitCh <-chan child.ExitStatus) {
	s.setState("stopping")
	s.log.Info("shutdown requested, terminating child", "name", s.spec.Name, "pid", c.PID(), "grace", s.opts.GracePeriod)
	_ = c.Terminate()
	select {
	case st := <-exitCh:
		s.setStopped(st)
		s.log.Info("child terminated gracefully", "name", s.spec.Name, "exit", st.String())
	case <-time.After(s.opts.GracePeriod):
		s.log.Warn("grace period elapsed, killing child", "name", s.spec.Name, "pid", c.PID())
		_ = c.Kill()
		select {
		case st := <-exitCh:
			s.setStopped(st)
		case <-time.After(time.Second):
			// best-effort; the kill was issued and init will reap
		}
	}
}

func (s *Supervisor) setRunning(c *child.Child) {
	s.mu.Lock()
	s.cur = c
	s.state = "running"
	s.startedAt = c.StartedAt()
	s.mu.Unlock()
}

func (s *Supervisor) setStopped(st child.ExitStatus) {
	s.mu.Lock()
	s.cur = nil
	s.lastExit = st.String()
	s.mu.Unlock()
}

func (s *Supervisor) setState(state string) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Supervisor) restartCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restarts
}

func (s *Supervisor) stopRequested(ctx context.Context) bool {
	select {
	case <-s.shutdownCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// sleep pauses for d unless a shutdown arrives first; it reports whether the
// full duration elapsed.
func (s *Supervisor) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-s.shutdownCh:
		return false
	case <-ctx.Done():
		return false
	}
}
