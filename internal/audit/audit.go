// Package audit records metadata about what each session did: which file was
// loaded, which column order was exported, and when handles were revoked.
// Cell values are never recorded, and nothing here is read back to restore a
// session.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Action names a recorded session transition.
type Action string

const (
	ActionLoad       Action = "load"
	ActionLoadFailed Action = "load_failed"
	ActionReorder    Action = "reorder"
	ActionExport     Action = "export"
	ActionDownload   Action = "download"
	ActionSessionEnd Action = "session_end"
	ActionEvicted    Action = "session_evicted"
)

// Severity ranks actions for filtering the log.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// SeverityFor returns the severity recorded for an action.
func SeverityFor(action Action) Severity {
	switch action {
	case ActionExport, ActionDownload:
		return SeverityHigh
	case ActionLoad, ActionLoadFailed:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Event is one audit log entry.
type Event struct {
	ID        uuid.UUID
	Action    Action
	SessionID string
	Filename  string
	Columns   []string
	Rows      int
	Bytes     int64
	HandleID  string
	ErrorCode string
	IPAddress string
	UserAgent string
	CreatedAt time.Time
}

// Recorder persists audit events. Implementations must be safe for
// concurrent use.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
	Close()
}

// Nop discards every event. It is used when no database is configured.
type Nop struct{}

func (Nop) Record(context.Context, Event) error { return nil }
func (Nop) Close()                              {}

// Memory keeps events in process. Tests use it to observe what was recorded.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

// Record appends ev.
func (m *Memory) Record(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

// Close is a no-op.
func (m *Memory) Close() {}

// Events returns a copy of everything recorded so far.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// Actions returns the recorded actions in order.
func (m *Memory) Actions() []Action {
	events := m.Events()
	out := make([]Action, len(events))
	for i, ev := range events {
		out[i] = ev.Action
	}
	return out
}
