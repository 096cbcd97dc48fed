package history

import (
	"context"
	"log/slog"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventStart        EventType = "start"
	EventCrash        EventType = "crash"
	EventRestart      EventType = "restart"
	EventCooldown     EventType = "cooldown"
	EventShutdown     EventType = "shutdown"
	EventDeploy       EventType = "deploy"
	EventDeployFailed EventType = "deploy_failed"
)

// Event is one supervisor or deployment lifecycle event to be exported to
// external systems.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Name       string    `json:"name"`     // child name or deploy target name
	PID        int       `json:"pid"`      // child pid when applicable
	Revision   string    `json:"revision"` // deployed revision when applicable
	Detail     string    `json:"detail"`   // exit status, failed stage, error text
}

// Sink is a destination for history events (audit/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}

// Record sends e to sink when sink is non-nil, logging and swallowing any
// export error: history export must never affect supervision or deploys.
func Record(ctx context.Context, sink Sink, log *slog.Logger, e Event) {
	if sink == nil {
		return
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	if err := sink.Send(ctx, e); err != nil && log != nil {
		log.Warn("history export failed", "type", string(e.Type), "name", e.Name, "error", err)
	}
}
