package child

import (
	"errors"
	"fmt"
	"os/exec"
	"syscall"
)

// ExitKind tags how a child run ended.
type ExitKind int

const (
	// Clean means exit code 0: an intentional stop, never restarted.
	Clean ExitKind = iota
	// Crashed means a non-zero exit code.
	Crashed
	// Signaled means the process was killed by a signal before exiting.
	Signaled
)

func (k ExitKind) String() string {
	switch k {
	case Clean:
		return "clean"
	case Crashed:
		return "crashed"
	case Signaled:
		return "signaled"
	}
	return "unknown"
}

// ExitStatus is the tagged result of waiting on a child, so the
// restart decision can be exhaustive instead of inspecting raw integers.
type ExitStatus struct {
	Kind   ExitKind
	Code   int            // exit code; meaningful for Clean/Crashed
	Signal syscall.Signal // terminating signal; meaningful for Signaled
}

// Abnormal reports whether the run ended in a way that warrants a restart.
func (e ExitStatus) Abnormal() bool { return e.Kind != Clean }

func (e ExitStatus) String() string {
	switch e.Kind {
	case Signaled:
		return fmt.Sprintf("signaled(%s)", e.Signal)
	case Crashed:
		return fmt.Sprintf("crashed(exit=%d)", e.Code)
	}
	return "clean(exit=0)"
}

// classifyExit converts the error returned by exec.Cmd.Wait into an ExitStatus.
func classifyExit(err error) ExitStatus {
	if err == nil {
		return ExitStatus{Kind: Clean}
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		if ws, ok := ee.Sys().(syscall.WaitStatus); ok {
			if ws.Signaled() {
				return ExitStatus{Kind: Signaled, Code: ee.ExitCode(), Signal: ws.Signal()}
			}
			return ExitStatus{Kind: Crashed, Code: ws.ExitStatus()}
		}
		return ExitStatus{Kind: Crashed, Code: ee.ExitCode()}
	}
	// Wait failed without an exit status (rare); treat as a crash with code -1.
	return ExitStatus{Kind: Crashed, Code: -1}
}
