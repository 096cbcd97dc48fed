package history

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type captureSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (s *captureSink) Send(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, e)
	return nil
}

func (s *captureSink) Close() error { return nil }

func TestRecordNilSinkIsNoop(t *testing.T) {
	// Must not panic.
	Record(context.Background(), nil, slog.Default(), Event{Type: EventStart, Name: "web"})
}

func TestRecordStampsMissingTimestamp(t *testing.T) {
	sink := &captureSink{}
	before := time.Now()
	Record(context.Background(), sink, slog.Default(), Event{Type: EventCrash, Name: "web"})

	if len(sink.events) != 1 {
		t.Fatalf("events = %d, want 1", len(sink.events))
	}
	got := sink.events[0].OccurredAt
	if got.Before(before) || got.After(time.Now()) {
		t.Fatalf("OccurredAt = %v, not stamped at send time", got)
	}
}

func TestRecordPreservesExplicitTimestamp(t *testing.T) {
	sink := &captureSink{}
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	Record(context.Background(), sink, slog.Default(), Event{Type: EventDeploy, Name: "api", OccurredAt: at})

	if !sink.events[0].OccurredAt.Equal(at) {
		t.Fatalf("OccurredAt = %v, want %v", sink.events[0].OccurredAt, at)
	}
}

func TestRecordSwallowsSinkErrors(t *testing.T) {
	sink := &captureSink{err: errors.New("export backend down")}
	// Must not panic or propagate; the error is only logged.
	Record(context.Background(), sink, slog.Default(), Event{Type: EventShutdown, Name: "web"})
	Record(context.Background(), sink, nil, Event{Type: EventShutdown, Name: "web"})
}
