package child

import (
	"errors"
	"os/exec"
	"strings"

	"github.com/vigil-sh/vigil/internal/logger"
)

// Spec describes the one process placed under supervision.
type Spec struct {
	Name    string        `json:"name" mapstructure:"name"`
	Command string        `json:"command" mapstructure:"command"` // command line to start the process
	WorkDir string        `json:"work_dir" mapstructure:"work_dir"`
	Env     []string      `json:"env" mapstructure:"env"` // extra KEY=VALUE entries
	Log     logger.Config `json:"log" mapstructure:"log"` // stdout/stderr capture
}

// Validate checks the minimal invariants before the spec is handed to a supervisor.
func (s *Spec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("child spec requires a name")
	}
	if strings.TrimSpace(s.Command) == "" {
		return errors.New("child spec requires a command")
	}
	return nil
}

// Executable returns the program the command line resolves to: either the
// script passed to an explicit shell, or the first field of the command.
// It is what the supervisor resolves via exec.LookPath before the first start.
func (s *Spec) Executable() string {
	cmdStr := strings.TrimSpace(s.Command)
	if cmdStr == "" {
		return ""
	}
	if _, _, ok := parseExplicitShell(cmdStr); ok {
		return "/bin/sh"
	}
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		return "/bin/sh"
	}
	return strings.Fields(cmdStr)[0]
}

// BuildCommand constructs an *exec.Cmd for the spec's command line.
// It avoids invoking a shell when not necessary, and it also respects an
// explicit shell invocation already present in the command string
// (e.g., "sh -c 'echo hi'"), avoiding double-wrapping with another shell.
func (s *Spec) BuildCommand() *exec.Cmd {
	cmdStr := strings.TrimSpace(s.Command)
	if cmdStr == "" {
		// #nosec G204
		return exec.Command("/bin/true")
	}
	// If the command already explicitly uses a shell, honor it without adding another layer.
	if _, afterC, ok := parseExplicitShell(cmdStr); ok {
		// #nosec G204
		return exec.Command("/bin/sh", "-c", afterC)
	}
	// Fallback: when metacharacters are present, use /bin/sh -c
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		// #nosec G204
		return exec.Command("/bin/sh", "-c", cmdStr)
	}
	parts := strings.Fields(cmdStr)
	name := parts[0]
	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}
	// #nosec G204
	return exec.Command(name, args...)
}

// parseExplicitShell detects patterns like "sh -c <ARG>" or "/bin/sh -c <ARG>"
// at the beginning of cmdStr. It returns (shellPath, afterCArg, true) when matched.
func parseExplicitShell(cmdStr string) (string, string, bool) {
	trim := strings.TrimLeft(cmdStr, " \t")
	candidates := []string{"sh -c ", "/bin/sh -c ", "/usr/bin/sh -c "}
	for _, p := range candidates {
		if strings.HasPrefix(trim, p) {
			after := trim[len(p):]
			// Strip one pair of wrapping quotes so the actual script reaches the shell.
			if n := len(after); n >= 2 {
				if (after[0] == '\'' && after[n-1] == '\'') || (after[0] == '"' && after[n-1] == '"') {
					after = after[1 : n-1]
				}
			}
			return strings.Fields(p)[0], after, true
		}
	}
	return "", "", false
}
