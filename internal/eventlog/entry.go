// Package eventlog delivers application log entries through ordered tiers:
// a document-store collection first, a telemetry event for severe entries
// second, and a bounded durable local queue as the last resort. A
// background loop re-attempts primary delivery for queued entries.
package eventlog

import "time"

// Collection is the document collection holding delivered log entries.
const Collection = "logs"

type Level string

const (
	LevelDebug    Level = "debug"
	LevelInfo     Level = "info"
	LevelWarning  Level = "warning"
	LevelError    Level = "error"
	LevelCritical Level = "critical"
)

// Severe reports whether the level qualifies for the telemetry tier.
func (l Level) Severe() bool {
	return l == LevelError || l == LevelCritical
}

// Entry is one log event. Fields carries free-form structured context;
// Error is the formatted error chain, if any.
type Entry struct {
	ID          string         `json:"id"`
	Timestamp   time.Time      `json:"timestamp"`
	Level       Level          `json:"level"`
	Message     string         `json:"message"`
	Error       string         `json:"error,omitempty"`
	Fields      map[string]any `json:"fields,omitempty"`
	Environment string         `json:"environment"`
	SessionID   string         `json:"session_id,omitempty"`
	UserID      string         `json:"user_id,omitempty"`
}
