package deploy

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes a target's external build/deploy/cleanup command. Commands
// are opaque to the orchestrator: they either succeed or fail.
type Runner interface {
	Run(ctx context.Context, dir, command string) error
}

// ShellRunner invokes commands through /bin/sh -c in the target's working
// directory, capturing combined output into the returned error on failure.
type ShellRunner struct{}

func NewRunner() *ShellRunner { return &ShellRunner{} }

func (r *ShellRunner) Run(ctx context.Context, dir, command string) error {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil
	}
	// #nosec G204
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%q: %w: %s", command, err, strings.TrimSpace(string(out)))
	}
	return nil
}
