// Package ledger persists one append-only record per abnormal child exit.
// The file is human-readable, one line per crash, and survives supervisor
// restarts; records are only ever consumed in aggregate as a trailing-window
// count for the crash-rate circuit breaker.
package ledger

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Record is one abnormal exit of the supervised child.
type Record struct {
	At       time.Time
	ExitCode int
	Signal   string // terminating signal name, empty when the child exited on its own
}

func (r Record) line() string {
	if r.Signal != "" {
		return fmt.Sprintf("%s exit=%d signal=%s\n", r.At.UTC().Format(time.RFC3339), r.ExitCode, r.Signal)
	}
	return fmt.Sprintf("%s exit=%d\n", r.At.UTC().Format(time.RFC3339), r.ExitCode)
}

// Ledger appends crash records to a single file and counts them within a
// trailing time window. Lines are never mutated or deleted.
type Ledger struct {
	mu   sync.Mutex
	path string
}

// New returns a ledger backed by the given path. The file is created lazily
// on first append.
func New(path string) *Ledger { return &Ledger{path: path} }

// Path returns the backing file location.
func (l *Ledger) Path() string { return l.path }

// Append durably adds one record to the end of the ledger.
func (l *Ledger) Append(r Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create ledger dir: %w", err)
		}
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer func() { _ = f.Close() }()
	if _, err := f.WriteString(r.line()); err != nil {
		return fmt.Errorf("append ledger record: %w", err)
	}
	return nil
}

// CountSince returns the number of records with a timestamp at or after
// cutoff. The file is scanned as a stream so the whole ledger is never held
// in memory. Lines whose timestamp cannot be parsed are skipped: the window
// semantics are strictly trailing-window, never a whole-file count.
func (l *Ledger) CountSince(cutoff time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open ledger: %w", err)
	}
	defer func() { _ = f.Close() }()

	n := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		ts, ok := parseTimestamp(line)
		if !ok {
			continue
		}
		if !ts.Before(cutoff) {
			n++
		}
	}
	if err := sc.Err(); err != nil {
		return n, fmt.Errorf("scan ledger: %w", err)
	}
	return n, nil
}

func parseTimestamp(line string) (time.Time, bool) {
	field := line
	if i := strings.IndexByte(line, ' '); i >= 0 {
		field = line[:i]
	}
	ts, err := time.Parse(time.RFC3339, field)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
