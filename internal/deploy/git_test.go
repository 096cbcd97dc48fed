package deploy

import (
	"context"
	"os/exec"
	"path/filepath"
	"testing"
)

func gitOrSkip(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
}

func mustGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	full := append([]string{"-C", dir}, args...)
	out, err := exec.Command("git", full...).CombinedOutput()
	if err != nil {
		t.Fatalf("git %v: %v: %s", args, err, out)
	}
	return string(out)
}

// setupRepoPair creates an upstream repository with one commit and a clone
// tracking it, returning the clone's path and the target describing it.
func setupRepoPair(t *testing.T) (string, Target) {
	t.Helper()
	root := t.TempDir()
	upstream := filepath.Join(root, "upstream")
	clone := filepath.Join(root, "clone")

	mustGit(t, root, "init", "-b", "main", upstream)
	mustGit(t, upstream, "config", "user.email", "test@example.com")
	mustGit(t, upstream, "config", "user.name", "test")
	mustGit(t, upstream, "commit", "--allow-empty", "-m", "initial")

	mustGit(t, root, "clone", upstream, clone)
	mustGit(t, clone, "config", "user.email", "test@example.com")
	mustGit(t, clone, "config", "user.name", "test")

	return upstream, Target{
		Name:    "app",
		WorkDir: clone,
		Branch:  "main",
		Deploy:  "true",
	}
}

func TestExecGitFetchAndRevisions(t *testing.T) {
	gitOrSkip(t)
	upstream, tgt := setupRepoPair(t)
	g := NewGit()
	ctx := context.Background()

	if err := g.Fetch(ctx, tgt); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	local, err := g.LocalRevision(ctx, tgt)
	if err != nil {
		t.Fatalf("local: %v", err)
	}
	remote, err := g.RemoteRevision(ctx, tgt)
	if err != nil {
		t.Fatalf("remote: %v", err)
	}
	if local == "" || local != remote {
		t.Fatalf("fresh clone revisions differ: local=%q remote=%q", local, remote)
	}

	// A new upstream commit must show up as a remote revision after fetch.
	mustGit(t, upstream, "commit", "--allow-empty", "-m", "update")
	if err := g.Fetch(ctx, tgt); err != nil {
		t.Fatalf("refetch: %v", err)
	}
	remote2, err := g.RemoteRevision(ctx, tgt)
	if err != nil {
		t.Fatalf("remote after update: %v", err)
	}
	if remote2 == remote {
		t.Fatal("remote revision did not advance after upstream commit")
	}
	local2, _ := g.LocalRevision(ctx, tgt)
	if local2 != local {
		t.Fatal("fetch must not move the working copy")
	}
}

func TestExecGitPullFastForwards(t *testing.T) {
	gitOrSkip(t)
	upstream, tgt := setupRepoPair(t)
	g := NewGit()
	ctx := context.Background()

	mustGit(t, upstream, "commit", "--allow-empty", "-m", "update")
	if err := g.Fetch(ctx, tgt); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if err := g.Pull(ctx, tgt); err != nil {
		t.Fatalf("pull: %v", err)
	}

	local, _ := g.LocalRevision(ctx, tgt)
	remote, _ := g.RemoteRevision(ctx, tgt)
	if local != remote {
		t.Fatalf("after pull local=%q remote=%q, want equal", local, remote)
	}
}

func TestExecGitPullRefusesNonFastForward(t *testing.T) {
	gitOrSkip(t)
	upstream, tgt := setupRepoPair(t)
	g := NewGit()
	ctx := context.Background()

	// Diverge: one commit locally, a different one upstream.
	mustGit(t, tgt.WorkDir, "commit", "--allow-empty", "-m", "local work")
	mustGit(t, upstream, "commit", "--allow-empty", "-m", "upstream work")
	if err := g.Fetch(ctx, tgt); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if err := g.Pull(ctx, tgt); err == nil {
		t.Fatal("diverged history must not fast-forward")
	}
}
