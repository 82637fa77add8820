package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Entry is a single audit record for a privileged operation.
type Entry struct {
	Timestamp    time.Time         `json:"timestamp"`
	Action       string            `json:"action"`
	Actor        string            `json:"actor"`
	ResourceType string            `json:"resource_type,omitempty"`
	ResourceID   string            `json:"resource_id,omitempty"`
	Status       string            `json:"status"`
	Details      map[string]string `json:"details,omitempty"`
}

// Logger writes structured audit records for operations that change accounts,
// categories, or events. Records go to the main log stream tagged audit=true
// so they can be filtered downstream.
type Logger struct {
	log zerolog.Logger
}

func NewLogger(log zerolog.Logger) *Logger {
	return &Logger{log: log.With().Bool("audit", true).Logger()}
}

func (l *Logger) write(entry Entry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	ev := l.log.Info().
		Time("timestamp", entry.Timestamp).
		Str("action", entry.Action).
		Str("actor", entry.Actor).
		Str("status", entry.Status)
	if entry.ResourceType != "" {
		ev = ev.Str("resource_type", entry.ResourceType)
	}
	if entry.ResourceID != "" {
		ev = ev.Str("resource_id", entry.ResourceID)
	}
	for k, v := range entry.Details {
		ev = ev.Str("detail_"+k, v)
	}
	ev.Msg("audit")
}

// Success records a privileged operation that completed.
func (l *Logger) Success(_ context.Context, action, actor, resourceType, resourceID string, details map[string]string) {
	l.write(Entry{
		Action:       action,
		Actor:        actor,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Status:       "success",
		Details:      details,
	})
}

// Failure records a privileged operation that was refused or errored.
func (l *Logger) Failure(_ context.Context, action, actor string, details map[string]string) {
	l.write(Entry{
		Action:  action,
		Actor:   actor,
		Status:  "failure",
		Details: details,
	})
}
