package eventlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/tutordesk/corekit/internal/docstore"
)

// ErrNotAccepted is returned by a sink that declines an entry (for example
// the telemetry sink on a non-severe level). The dispatcher moves on to the
// next tier without treating it as a delivery failure.
var ErrNotAccepted = errors.New("entry not accepted by sink")

// Sink is one delivery tier.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, e *Entry) error
}

// DocstoreSink writes entries into a document collection. This is the
// primary tier.
type DocstoreSink struct {
	docs docstore.Store
}

func NewDocstoreSink(docs docstore.Store) *DocstoreSink {
	return &DocstoreSink{docs: docs}
}

func (s *DocstoreSink) Name() string { return "docstore" }

func (s *DocstoreSink) Deliver(ctx context.Context, e *Entry) error {
	doc, err := docstore.Marshal(e)
	if err != nil {
		return err
	}
	if err := s.docs.Set(ctx, Collection, e.ID, doc); err != nil {
		return fmt.Errorf("log entry %s: %w", e.ID, err)
	}
	return nil
}

// maxTelemetryMessageLen bounds the message sent to the telemetry tier;
// full payloads belong to the primary sink.
const maxTelemetryMessageLen = 2048

// SentrySink forwards severe entries as telemetry events. Non-severe
// levels are declined with ErrNotAccepted.
type SentrySink struct {
	hub *sentry.Hub
}

func NewSentrySink(dsn, environment string) (*SentrySink, error) {
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
	})
	if err != nil {
		return nil, fmt.Errorf("sentry client: %w", err)
	}
	return &SentrySink{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

func (s *SentrySink) Name() string { return "sentry" }

func (s *SentrySink) Deliver(ctx context.Context, e *Entry) error {
	if !e.Level.Severe() {
		return ErrNotAccepted
	}

	msg := e.Message
	if e.Error != "" {
		msg = msg + ": " + e.Error
	}
	if len(msg) > maxTelemetryMessageLen {
		msg = msg[:maxTelemetryMessageLen]
	}

	event := sentry.NewEvent()
	event.Timestamp = e.Timestamp
	event.Message = msg
	event.Environment = e.Environment
	event.Level = sentry.LevelError
	if e.Level == LevelCritical {
		event.Level = sentry.LevelFatal
	}
	for k, v := range e.Fields {
		event.Extra[k] = v
	}
	if e.SessionID != "" {
		event.Tags = map[string]string{"session_id": e.SessionID}
	}

	if id := s.hub.CaptureEvent(event); id == nil {
		return fmt.Errorf("telemetry event for entry %s dropped", e.ID)
	}
	return nil
}

// Close flushes buffered telemetry events.
func (s *SentrySink) Close(timeout time.Duration) {
	s.hub.Flush(timeout)
}
