package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/shiftdeck/shiftdeck/pkg/observability"
)

const (
	// defaultBufferSize bounds the number of in-flight events
	defaultBufferSize = 1024
	// writeTimeout bounds each background insert
	writeTimeout = 5 * time.Second
)

// DBLogger writes audit events to the audit_log table asynchronously.
// Record never blocks on the database: events go into a bounded buffer
// drained by a background writer, and are dropped (with a log line and a
// metric) when the buffer is full. Audit failures never propagate to the
// mutation that produced the event.
type DBLogger struct {
	db      *sql.DB
	log     *observability.Logger
	metrics *observability.Metrics

	events chan *Event
	done   chan struct{}
	wg     sync.WaitGroup

	closeOnce sync.Once
}

// NewDBLogger creates an asynchronous database audit logger and starts its
// background writer. metrics may be nil.
func NewDBLogger(db *sql.DB, log *observability.Logger, metrics *observability.Metrics) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	l := &DBLogger{
		db:      db,
		log:     log,
		metrics: metrics,
		events:  make(chan *Event, defaultBufferSize),
		done:    make(chan struct{}),
	}

	l.wg.Add(1)
	go l.run()

	return l, nil
}

// Record submits an event for asynchronous persistence
func (l *DBLogger) Record(ctx context.Context, event *Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	select {
	case l.events <- event:
		if l.metrics != nil {
			l.metrics.AuditEventsTotal.WithLabelValues(string(event.EventType)).Inc()
		}
		return nil
	default:
		if l.metrics != nil {
			l.metrics.AuditDropped.Inc()
		}
		l.log.WithField("event_type", string(event.EventType)).Warn("audit buffer full, dropping event")
		return nil
	}
}

// Close drains the buffer and stops the background writer
func (l *DBLogger) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
		l.wg.Wait()
	})
	return nil
}

func (l *DBLogger) run() {
	defer l.wg.Done()

	for {
		select {
		case event := <-l.events:
			l.write(event)
		case <-l.done:
			// Drain whatever is left before exiting.
			for {
				select {
				case event := <-l.events:
					l.write(event)
				default:
					return
				}
			}
		}
	}
}

func (l *DBLogger) write(event *Event) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	var changesJSON []byte
	if event.Changes != nil {
		var err error
		changesJSON, err = json.Marshal(event.Changes)
		if err != nil {
			l.log.WithError(err).Warn("failed to marshal audit changes")
			changesJSON = nil
		}
	}

	query := `
		INSERT INTO audit_log (
			timestamp, event_type, status,
			actor_id, username, venue_id,
			resource_type, resource_id,
			request_id, message, error_message, changes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := l.db.ExecContext(ctx, query,
		event.Timestamp,
		event.EventType,
		event.Status,
		event.ActorID,
		nullableString(event.Username),
		event.VenueID,
		nullableString(string(event.ResourceType)),
		nullableString(event.ResourceID),
		nullableString(event.RequestID),
		nullableString(event.Message),
		nullableString(event.ErrorMessage),
		nullableBytes(changesJSON),
	)
	if err != nil {
		l.log.WithError(err).WithField("event_type", string(event.EventType)).Error("failed to write audit event")
	}
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
