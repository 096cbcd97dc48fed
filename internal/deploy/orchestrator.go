// Package deploy implements the pull-based continuous-deployment agent: on
// each run it checks tracked repositories for new revisions and, for each one
// found, pulls, builds and redeploys. A PID-liveness run lock guarantees that
// at most one run is active at a time; concurrent invocations skip instead of
// queueing.
package deploy

import (
	"context"
	"errors"
	"log/slog"

	"github.com/vigil-sh/vigil/internal/history"
	"github.com/vigil-sh/vigil/internal/lock"
	"github.com/vigil-sh/vigil/internal/metrics"
	"github.com/vigil-sh/vigil/internal/state"
)

// Orchestrator drives one check-and-apply cycle over a fixed list of targets.
// It is designed to be invoked by an external scheduler (cron, systemd timer)
// rather than carrying its own timing loop.
type Orchestrator struct {
	lock  *lock.RunLock
	store state.Store
	git   Git
	run   Runner
	log   *slog.Logger
	hist  history.Sink
	force bool
}

// New builds an orchestrator with the exec-based git and shell runner.
func New(lk *lock.RunLock, st state.Store) *Orchestrator {
	return &Orchestrator{
		lock:  lk,
		store: st,
		git:   NewGit(),
		run:   NewRunner(),
		log:   slog.Default(),
	}
}

// SetLogger replaces the operational logger.
func (o *Orchestrator) SetLogger(l *slog.Logger) {
	if l != nil {
		o.log = l
	}
}

// SetHistory attaches an optional history sink for deploy events.
func (o *Orchestrator) SetHistory(sink history.Sink) { o.hist = sink }

// SetForce bypasses the up-to-date check and treats every target as needing
// an apply.
func (o *Orchestrator) SetForce(force bool) { o.force = force }

// SetGit substitutes the version-control layer, used by tests.
func (o *Orchestrator) SetGit(g Git) { o.git = g }

// SetRunner substitutes the command runner, used by tests.
func (o *Orchestrator) SetRunner(r Runner) { o.run = r }

// RunOnce executes one orchestration run: acquire the run lock, evaluate
// every target in order, release the lock. A held lock returns a Skipped
// result with no side effects; per-target failures are recorded in the result
// and never abort the remaining targets.
func (o *Orchestrator) RunOnce(ctx context.Context, targets []Target) (RunResult, error) {
	if err := o.lock.TryAcquire(); err != nil {
		if errors.Is(err, lock.ErrHeld) {
			// Expected under frequent polling; keep it quiet.
			o.log.Debug("orchestration run already in progress, skipping")
			metrics.IncRunSkipped()
			return RunResult{Skipped: true}, nil
		}
		return RunResult{}, err
	}
	defer func() {
		if err := o.lock.Release(); err != nil {
			o.log.Warn("failed to release run lock", "error", err)
		}
	}()

	res := RunResult{}
	for _, t := range targets {
		res.Targets = append(res.Targets, o.apply(ctx, t))
	}
	o.log.Info("orchestration run completed",
		"targets", len(res.Targets), "failed", res.FailedCount())
	return res, nil
}

// apply evaluates one target and, when a new revision is available (or force
// is set), runs pull -> build -> deploy. The applied revision is advanced
// only after the full cycle succeeds.
func (o *Orchestrator) apply(ctx context.Context, t Target) TargetResult {
	if err := t.Validate(); err != nil {
		return o.failed(ctx, t, StageFetch, err)
	}

	if err := o.git.Fetch(ctx, t); err != nil {
		return o.failed(ctx, t, StageFetch, err)
	}
	remote, err := o.git.RemoteRevision(ctx, t)
	if err != nil {
		return o.failed(ctx, t, StageFetch, err)
	}
	local, err := o.git.LocalRevision(ctx, t)
	if err != nil {
		return o.failed(ctx, t, StageFetch, err)
	}
	applied, err := o.store.Applied(ctx, t.Name)
	if err != nil && !errors.Is(err, state.ErrNotFound) {
		return o.failed(ctx, t, StageState, err)
	}

	if !o.force && remote == applied && remote == local {
		o.log.Debug("target up to date", "target", t.Name, "revision", remote)
		return TargetResult{Target: t.Name, Outcome: UpToDate, Revision: remote}
	}

	o.log.Info("applying new revision", "target", t.Name, "revision", remote, "previous", applied)
	defer o.cleanup(ctx, t)

	if remote != local {
		if err := o.git.Pull(ctx, t); err != nil {
			return o.failed(ctx, t, StagePull, err)
		}
	}
	if err := o.run.Run(ctx, t.WorkDir, t.Build); err != nil {
		return o.failed(ctx, t, StageBuild, err)
	}
	if err := o.run.Run(ctx, t.WorkDir, t.Deploy); err != nil {
		return o.failed(ctx, t, StageDeploy, err)
	}

	if err := o.store.SetApplied(ctx, t.Name, remote); err != nil {
		// The deploy itself succeeded; stale bookkeeping only means the next
		// tick re-applies the same revision, which is safe.
		o.log.Warn("deployed but failed to record applied revision", "target", t.Name, "error", err)
	}
	o.log.Info("target deployed", "target", t.Name, "revision", remote)
	metrics.IncDeploy(t.Name)
	history.Record(ctx, o.hist, o.log, history.Event{
		Type: history.EventDeploy, Name: t.Name, Revision: remote,
	})
	return TargetResult{Target: t.Name, Outcome: Deployed, Revision: remote}
}

func (o *Orchestrator) failed(ctx context.Context, t Target, stage Stage, err error) TargetResult {
	o.log.Error("target apply failed", "target", t.Name, "stage", string(stage), "error", err)
	metrics.IncDeployFailure(t.Name, string(stage))
	history.Record(ctx, o.hist, o.log, history.Event{
		Type: history.EventDeployFailed, Name: t.Name, Detail: string(stage) + ": " + err.Error(),
	})
	return TargetResult{Target: t.Name, Outcome: Failed, Stage: stage, Err: err}
}

// cleanup runs the target's housekeeping command. Errors are logged and
// swallowed: housekeeping must never turn a successful deploy into a failure.
func (o *Orchestrator) cleanup(ctx context.Context, t Target) {
	if t.Cleanup == "" {
		return
	}
	if err := o.run.Run(ctx, t.WorkDir, t.Cleanup); err != nil {
		o.log.Warn("cleanup failed", "target", t.Name, "error", err)
	}
}
