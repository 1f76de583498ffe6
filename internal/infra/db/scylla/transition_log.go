package scylla

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gocql/gocql"

	"roomies/internal/app/outbox"
)

// ErrSessionNotInitialized is returned by every call on a log without a session.
var ErrSessionNotInitialized = errors.New("scylla session not initialized")

// Entry is one relayed booking event kept for audit.
type Entry struct {
	BookingID  string
	RecordID   string
	Name       string
	Payload    string
	Trace      string
	OccurredAt time.Time
}

// EntryFromRecord maps an outbox record to a log entry. Records that are not booking events
// or carry no aggregate are skipped.
func EntryFromRecord(rec outbox.EventRecord) (Entry, bool) {
	if !strings.HasPrefix(rec.Name, "booking.") || rec.Aggregate == "" || rec.ID == "" {
		return Entry{}, false
	}
	at := rec.OccurredAt
	if at.IsZero() {
		at = time.Now()
	}
	return Entry{
		BookingID:  rec.Aggregate,
		RecordID:   rec.ID,
		Name:       rec.Name,
		Payload:    string(rec.Payload),
		Trace:      rec.Headers["traceparent"],
		OccurredAt: at.UTC().Truncate(time.Millisecond),
	}, true
}

// TransitionLog is a time-series projection of booking events, partitioned by booking.
// Inserts are keyed by record id, so redelivered events overwrite themselves.
type TransitionLog struct {
	session *gocql.Session
	logger  *slog.Logger
}

func NewTransitionLog(session *gocql.Session, logger *slog.Logger) *TransitionLog {
	return &TransitionLog{session: session, logger: logger}
}

func (l *TransitionLog) Handle(ctx context.Context, rec outbox.EventRecord) error {
	entry, ok := EntryFromRecord(rec)
	if !ok {
		return nil
	}
	if err := l.Append(ctx, entry); err != nil {
		if l.logger != nil {
			l.logger.WarnContext(ctx, "transition log append failed", "booking_id", entry.BookingID, "event", entry.Name, "err", err)
		}
		return err
	}
	return nil
}

func (l *TransitionLog) Append(ctx context.Context, e Entry) error {
	if l.session == nil {
		return ErrSessionNotInitialized
	}
	return l.session.
		Query(`INSERT INTO booking_events (booking_id, occurred_at, record_id, name, payload, trace) VALUES (?, ?, ?, ?, ?, ?)`,
			e.BookingID, e.OccurredAt, e.RecordID, e.Name, e.Payload, e.Trace).
		WithContext(ctx).
		Consistency(gocql.Quorum).
		Exec()
}

// ListByBooking returns a booking's events oldest first.
func (l *TransitionLog) ListByBooking(ctx context.Context, bookingID string) ([]Entry, error) {
	if l.session == nil {
		return nil, ErrSessionNotInitialized
	}
	iter := l.session.
		Query(`SELECT booking_id, occurred_at, record_id, name, payload, trace FROM booking_events WHERE booking_id = ?`, bookingID).
		WithContext(ctx).
		Consistency(gocql.One).
		Iter()

	var (
		entries []Entry
		e       Entry
	)
	for iter.Scan(&e.BookingID, &e.OccurredAt, &e.RecordID, &e.Name, &e.Payload, &e.Trace) {
		entries = append(entries, e)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Ping runs a trivial query against the cluster. Used by the readiness check.
func (l *TransitionLog) Ping(ctx context.Context) error {
	if l.session == nil {
		return ErrSessionNotInitialized
	}
	var id gocql.UUID
	if err := l.session.Query(`SELECT now() FROM system.local`).WithContext(ctx).Scan(&id); err != nil {
		return err
	}
	return nil
}

func (l *TransitionLog) Close() {
	if l.session != nil {
		l.session.Close()
	}
}

var _ outbox.Handler = (*TransitionLog)(nil)
