package eventlog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/tutordesk/corekit/internal/config"
	"github.com/tutordesk/corekit/internal/docstore"
	"github.com/tutordesk/corekit/internal/logging"
	"github.com/tutordesk/corekit/internal/session"
)

// Dispatcher pushes entries through the tiers in order and short-circuits
// on the first successful delivery. Entries from an unauthenticated session
// skip the primary sink entirely (it requires an authenticated writer) and
// go straight to the queue.
type Dispatcher struct {
	sinks   []Sink
	queue   *Queue
	session *session.Session
	logger  logging.Logger

	flushInterval time.Duration
	environment   string
}

func NewDispatcher(sinks []Sink, queue *Queue, sess *session.Session, logger logging.Logger, flushInterval time.Duration, environment string) *Dispatcher {
	return &Dispatcher{
		sinks:         sinks,
		queue:         queue,
		session:       sess,
		logger:        logger,
		flushInterval: flushInterval,
		environment:   environment,
	}
}

// NewDispatcherFromConfig assembles the standard tier list: the document
// store first, then the telemetry sink when a DSN is configured, backed by
// the durable queue at the configured path.
func NewDispatcherFromConfig(docs docstore.Store, sess *session.Session, logger logging.Logger, cfg *config.Config) (*Dispatcher, error) {
	queue, err := OpenQueue(cfg.FallbackQueuePath, cfg.FallbackQueueCapacity)
	if err != nil {
		return nil, err
	}

	sinks := []Sink{NewDocstoreSink(docs)}
	if cfg.SentryDSN != "" {
		telemetry, err := NewSentrySink(cfg.SentryDSN, cfg.Environment)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, telemetry)
	}

	return NewDispatcher(sinks, queue, sess, logger, cfg.LogFlushInterval, cfg.Environment), nil
}

// Dispatch stamps and delivers one entry. Delivery never fails from the
// caller's point of view: the queue absorbs whatever the sinks refuse.
func (d *Dispatcher) Dispatch(ctx context.Context, level Level, message string, cause error, fields map[string]any) {
	e := &Entry{
		ID:          uuid.NewString(),
		Timestamp:   time.Now().UTC(),
		Level:       level,
		Message:     message,
		Fields:      fields,
		Environment: d.environment,
	}
	if cause != nil {
		e.Error = cause.Error()
	}
	if d.session != nil {
		e.SessionID = d.session.ID
		e.UserID = d.session.UserID
	}

	if !d.session.Authenticated() {
		d.enqueue(ctx, e)
		return
	}

	for _, sink := range d.sinks {
		err := sink.Deliver(ctx, e)
		if err == nil {
			return
		}
		if !errors.Is(err, ErrNotAccepted) {
			d.logger.Warn(ctx, "log sink delivery failed", "sink", sink.Name(), "entry_id", e.ID, "error", err)
		}
	}

	d.enqueue(ctx, e)
}

// Error dispatches an error-level entry.
func (d *Dispatcher) Error(ctx context.Context, message string, cause error, fields map[string]any) {
	d.Dispatch(ctx, LevelError, message, cause, fields)
}

// Critical dispatches a critical-level entry.
func (d *Dispatcher) Critical(ctx context.Context, message string, cause error, fields map[string]any) {
	d.Dispatch(ctx, LevelCritical, message, cause, fields)
}

func (d *Dispatcher) enqueue(ctx context.Context, e *Entry) {
	if err := d.queue.Append(e); err != nil {
		d.logger.Error(ctx, "log entry lost: fallback queue append failed", "entry_id", e.ID, "error", err)
	}
}

// Flush drains the queue and re-attempts primary delivery for every queued
// entry, with exponential backoff per entry. Entries that still fail are
// put back in their original position. Returns the number delivered.
func (d *Dispatcher) Flush(ctx context.Context) (int, error) {
	entries, err := d.queue.Drain()
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	primary := d.sinks[0]
	delivered := 0
	for i, e := range entries {
		backoff := retry.WithMaxRetries(2, retry.NewExponential(200*time.Millisecond))
		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			if err := primary.Deliver(ctx, e); err != nil {
				return retry.RetryableError(err)
			}
			return nil
		})
		if err != nil {
			if rqErr := d.queue.Requeue(entries[i:]); rqErr != nil {
				d.logger.Error(ctx, "requeue after failed flush failed", "dropped", len(entries)-i, "error", rqErr)
			}
			return delivered, err
		}
		delivered++
	}
	return delivered, nil
}

// RunFlushLoop re-attempts queued entries on a fixed interval until ctx is
// cancelled.
func (d *Dispatcher) RunFlushLoop(ctx context.Context) {
	ticker := time.NewTicker(d.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := d.Flush(ctx)
			if err != nil {
				d.logger.Warn(ctx, "queue flush incomplete", "delivered", n, "error", err)
				continue
			}
			if n > 0 {
				d.logger.Debug(ctx, "queue flushed", "delivered", n)
			}
		}
	}
}
