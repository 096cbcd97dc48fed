package ledger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestAppendAndCountWindow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crash.log")
	l := New(path)

	now := time.Now()
	old := Record{At: now.Add(-2 * time.Hour), ExitCode: 1}
	recent := Record{At: now.Add(-5 * time.Minute), ExitCode: 2}
	signaled := Record{At: now, ExitCode: -1, Signal: "killed"}

	for _, r := range []Record{old, recent, signaled} {
		if err := l.Append(r); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	n, err := l.CountSince(now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 records within the last hour, got %d", n)
	}

	all, err := l.CountSince(now.Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("count all: %v", err)
	}
	if all != 3 {
		t.Fatalf("expected 3 records in total, got %d", all)
	}
}

func TestCountMissingFileIsZero(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "never-created.log"))
	n, err := l.CountSince(time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("count on missing file: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0, got %d", n)
	}
}

func TestAppendIsMonotonic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crash.log")
	l := New(path)

	for i := 0; i < 5; i++ {
		if err := l.Append(Record{At: time.Now(), ExitCode: i + 1}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		b, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read ledger: %v", err)
		}
		lines := strings.Split(strings.TrimSpace(string(b)), "\n")
		if len(lines) != i+1 {
			t.Fatalf("after %d appends expected %d lines, got %d", i+1, i+1, len(lines))
		}
	}
}

func TestMalformedLinesAreSkipped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crash.log")
	l := New(path)

	if err := l.Append(Record{At: time.Now(), ExitCode: 1}); err != nil {
		t.Fatalf("append: %v", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.WriteString("not a timestamp exit=9\n\n"); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	_ = f.Close()

	// Strict trailing-window semantics: the unparseable line never counts.
	n, err := l.CountSince(time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected malformed line to be ignored, got count %d", n)
	}
}

func TestRecordLineFormat(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	r := Record{At: at, ExitCode: 7}
	if got, want := r.line(), "2025-03-01T12:00:00Z exit=7\n"; got != want {
		t.Fatalf("line = %q, want %q", got, want)
	}
	r.Signal = "terminated"
	if got, want := r.line(), "2025-03-01T12:00:00Z exit=7 signal=terminated\n"; got != want {
		t.Fatalf("line = %q, want %q", got, want)
	}
}
