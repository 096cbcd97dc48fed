package vigil

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestSuperviseCleanExit(t *testing.T) {
	crashLog := filepath.Join(t.TempDir(), "crash.log")
	sup := New(Spec{Name: "once", Command: "/bin/sh -c 'exit 0'"}, Options{}, crashLog)

	done := make(chan error, 1)
	go func() { done <- sup.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("supervision did not complete")
	}
}

func TestNewOrchestratorAndRunOnce(t *testing.T) {
	dir := t.TempDir()
	orc, err := NewOrchestrator(filepath.Join(dir, "run.lock"), filepath.Join(dir, "state.db"))
	if err != nil {
		t.Fatalf("orchestrator: %v", err)
	}

	// No targets: the run acquires and releases the lock and does nothing.
	res, err := orc.RunOnce(context.Background(), nil)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if res.Skipped || len(res.Targets) != 0 {
		t.Fatalf("result = %+v, want empty completed run", res)
	}
	if res.ExitCode() != 0 {
		t.Fatalf("exit code = %d, want 0", res.ExitCode())
	}
}

func TestNewHistorySink(t *testing.T) {
	sink, err := NewHistorySink(":memory:")
	if err != nil {
		t.Fatalf("sink: %v", err)
	}
	defer func() { _ = sink.Close() }()
}

func TestRegisterMetricsDefault(t *testing.T) {
	if err := RegisterMetricsDefault(); err != nil {
		t.Fatalf("register: %v", err)
	}
	// Second call is a no-op.
	if err := RegisterMetricsDefault(); err != nil {
		t.Fatalf("re-register: %v", err)
	}
}
