package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/vigil-sh/vigil/internal/history"
)

func TestSQLiteSinkRecordsEvents(t *testing.T) {
	sink, err := New(":memory:")
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}
	defer func() { _ = sink.Close() }()

	ctx := context.Background()
	events := []history.Event{
		{Type: history.EventStart, OccurredAt: time.Now().UTC(), Name: "web", PID: 1234},
		{Type: history.EventCrash, OccurredAt: time.Now().UTC(), Name: "web", Detail: "crashed(exit=1)"},
		{Type: history.EventDeploy, OccurredAt: time.Now().UTC(), Name: "api", Revision: "abc123"},
	}
	for _, e := range events {
		if err := sink.Send(ctx, e); err != nil {
			t.Fatalf("send %s: %v", e.Type, err)
		}
	}

	var count int
	if err := sink.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM vigil_history WHERE name = ?", "web").Scan(&count); err != nil {
		t.Fatalf("query: %v", err)
	}
	if count != 2 {
		t.Fatalf("events for web = %d, want 2", count)
	}

	var revision string
	if err := sink.db.QueryRowContext(ctx,
		"SELECT revision FROM vigil_history WHERE type = ?", "deploy").Scan(&revision); err != nil {
		t.Fatalf("query deploy: %v", err)
	}
	if revision != "abc123" {
		t.Fatalf("revision = %q, want abc123", revision)
	}
}

func TestSQLiteSinkDSNPrefix(t *testing.T) {
	sink, err := New("sqlite://:memory:")
	if err != nil {
		t.Fatalf("create sink with prefix: %v", err)
	}
	defer func() { _ = sink.Close() }()

	if err := sink.Send(context.Background(), history.Event{
		Type: history.EventShutdown, OccurredAt: time.Now().UTC(), Name: "web",
	}); err != nil {
		t.Fatalf("send: %v", err)
	}
}

func TestSQLiteSinkEmptyDSN(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatal("empty DSN must be rejected")
	}
}
