package deploy

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Git abstracts the version-control operations the orchestrator needs. The
// production implementation shells out to the git binary; tests substitute a
// fake to drive failure scenarios without repositories.
type Git interface {
	// Fetch updates the remote tracking refs for the target.
	Fetch(ctx context.Context, t Target) error
	// LocalRevision resolves the working copy's current HEAD.
	LocalRevision(ctx context.Context, t Target) (string, error)
	// RemoteRevision resolves the tracking ref after a fetch.
	RemoteRevision(ctx context.Context, t Target) (string, error)
	// Pull fast-forwards the working copy to the tracking ref. Fast-forward
	// only: the working copy is never left in a merge/conflict state.
	Pull(ctx context.Context, t Target) error
}

const fetchRetries = 3

// ExecGit runs git as an external command, the same way the build and deploy
// steps are invoked.
type ExecGit struct{}

// NewGit returns the exec-based Git implementation.
func NewGit() *ExecGit { return &ExecGit{} }

// Fetch retries transient remote failures with a short exponential backoff;
// network blips during a poll should not burn a whole tick.
func (g *ExecGit) Fetch(ctx context.Context, t Target) error {
	op := func() error {
		_, err := g.run(ctx, t.WorkDir, "fetch", "--quiet", t.RemoteName())
		return err
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(shortBackOff(), fetchRetries), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return fmt.Errorf("fetch %s: %w", t.RemoteName(), err)
	}
	return nil
}

func (g *ExecGit) LocalRevision(ctx context.Context, t Target) (string, error) {
	out, err := g.run(ctx, t.WorkDir, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	return out, nil
}

func (g *ExecGit) RemoteRevision(ctx context.Context, t Target) (string, error) {
	out, err := g.run(ctx, t.WorkDir, "rev-parse", t.TrackingRef())
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", t.TrackingRef(), err)
	}
	return out, nil
}

func (g *ExecGit) Pull(ctx context.Context, t Target) error {
	if _, err := g.run(ctx, t.WorkDir, "merge", "--ff-only", t.TrackingRef()); err != nil {
		return fmt.Errorf("fast-forward to %s: %w", t.TrackingRef(), err)
	}
	return nil
}

func (g *ExecGit) run(ctx context.Context, dir string, args ...string) (string, error) {
	full := append([]string{"-C", dir}, args...)
	// #nosec G204
	cmd := exec.CommandContext(ctx, "git", full...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}

func shortBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	return bo
}
