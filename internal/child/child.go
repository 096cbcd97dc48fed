package child

import (
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Child is one live run of the supervised process. The supervisor owns it
// exclusively: no other component signals or reaps it. A new Child is created
// for every (re)start; at most one is alive at any time.
type Child struct {
	mu        sync.Mutex
	cmd       *exec.Cmd
	startedAt time.Time
	outCloser io.WriteCloser
	errCloser io.WriteCloser
}

// Start launches a new run of the spec's command. The child gets its own
// process group so graceful/forced signals reach the whole tree.
func Start(spec Spec, extraEnv []string) (*Child, error) {
	cmd := spec.BuildCommand()
	if spec.WorkDir != "" {
		cmd.Dir = spec.WorkDir
	}
	if len(extraEnv) > 0 || len(spec.Env) > 0 {
		env := os.Environ()
		env = append(env, extraEnv...)
		env = append(env, spec.Env...)
		cmd.Env = env
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	c := &Child{}
	if spec.Log.Dir != "" || spec.Log.StdoutPath != "" || spec.Log.StderrPath != "" {
		if spec.Log.Dir != "" {
			_ = os.MkdirAll(spec.Log.Dir, 0o750)
		}
		outW, errW, _ := spec.Log.Writers(spec.Name)
		c.outCloser, c.errCloser = outW, errW
		if outW != nil {
			cmd.Stdout = outW
		}
		if errW != nil {
			cmd.Stderr = errW
		}
	} else {
		null, _ := os.OpenFile(os.DevNull, os.O_RDWR, 0)
		cmd.Stdout = null
		cmd.Stderr = null
	}

	if err := cmd.Start(); err != nil {
		c.closeWriters()
		return nil, err
	}
	c.cmd = cmd
	c.startedAt = time.Now()
	return c, nil
}

// PID returns the OS pid of the run.
func (c *Child) PID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cmd == nil || c.cmd.Process == nil {
		return 0
	}
	return c.cmd.Process.Pid
}

// StartedAt returns when this run was started.
func (c *Child) StartedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startedAt
}

// Wait blocks until the run terminates and returns its classified exit
// status. It must be called exactly once, by the owning supervisor; it is the
// sole reaper of the process.
func (c *Child) Wait() ExitStatus {
	err := c.cmd.Wait()
	c.closeWriters()
	return classifyExit(err)
}

// Terminate sends the graceful-termination signal to the child's process group.
func (c *Child) Terminate() error { return c.signal(syscall.SIGTERM) }

// Kill forcibly kills the child's process group.
func (c *Child) Kill() error { return c.signal(syscall.SIGKILL) }

func (c *Child) signal(sig syscall.Signal) error {
	pid := c.PID()
	if pid == 0 {
		return nil
	}
	return syscall.Kill(-pid, sig)
}

// Alive probes whether the run's pid still accepts signals.
func (c *Child) Alive() bool {
	pid := c.PID()
	if pid == 0 {
		return false
	}
	return syscall.Kill(pid, 0) == nil
}

func (c *Child) closeWriters() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outCloser != nil {
		_ = c.outCloser.Close()
		c.outCloser = nil
	}
	if c.errCloser != nil {
		_ = c.errCloser.Close()
		c.errCloser = nil
	}
}
