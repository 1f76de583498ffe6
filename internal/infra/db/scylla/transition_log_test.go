package scylla

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomies/internal/app/outbox"
)

func TestEntryFromRecord(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 123456789, time.FixedZone("IST", 5*3600+1800))
	rec := outbox.EventRecord{
		ID:         "e-1",
		Name:       "booking.fee_paid",
		Payload:    []byte(`{"booking_id":"b-1"}`),
		OccurredAt: at,
		Aggregate:  "b-1",
		Headers:    map[string]string{"traceparent": "00-abc-def-01"},
	}

	entry, ok := EntryFromRecord(rec)
	require.True(t, ok)
	assert.Equal(t, "b-1", entry.BookingID)
	assert.Equal(t, "e-1", entry.RecordID)
	assert.Equal(t, "booking.fee_paid", entry.Name)
	assert.JSONEq(t, `{"booking_id":"b-1"}`, entry.Payload)
	assert.Equal(t, "00-abc-def-01", entry.Trace)
	assert.Equal(t, time.UTC, entry.OccurredAt.Location())
	assert.Equal(t, 123*time.Millisecond, time.Duration(entry.OccurredAt.Nanosecond()))
	assert.True(t, entry.OccurredAt.Equal(at.Truncate(time.Millisecond)))
}

func TestEntryFromRecord_Skips(t *testing.T) {
	for name, rec := range map[string]outbox.EventRecord{
		"foreign event": {ID: "e", Name: "room.updated", Aggregate: "r-1"},
		"no aggregate":  {ID: "e", Name: "booking.created"},
		"no id":         {Name: "booking.created", Aggregate: "b-1"},
	} {
		_, ok := EntryFromRecord(rec)
		assert.False(t, ok, name)
	}
}

func TestTransitionLog_WithoutSession(t *testing.T) {
	log := NewTransitionLog(nil, nil)
	ctx := context.Background()

	assert.NoError(t, log.Handle(ctx, outbox.EventRecord{Name: "room.updated"}))
	assert.ErrorIs(t, log.Handle(ctx, outbox.EventRecord{ID: "e", Name: "booking.created", Aggregate: "b-1"}), ErrSessionNotInitialized)
	_, err := log.ListByBooking(ctx, "b-1")
	assert.ErrorIs(t, err, ErrSessionNotInitialized)
	assert.ErrorIs(t, log.Ping(ctx), ErrSessionNotInitialized)
}

func TestNewSession_RejectsBadOptions(t *testing.T) {
	_, err := NewSession(context.Background(), Options{Hosts: []string{"127.0.0.1"}, Keyspace: "roomies;DROP"}, nil)
	assert.ErrorContains(t, err, "invalid keyspace")

	_, err = NewSession(context.Background(), Options{Keyspace: "roomies"}, nil)
	assert.ErrorContains(t, err, "host")
}

func TestOptionsDefaults(t *testing.T) {
	opts := Options{}.withDefaults()
	assert.Equal(t, 5*time.Second, opts.Timeout)
	assert.Equal(t, 1, opts.ReplicationFactor)
	assert.NotZero(t, opts.Consistency)
}
