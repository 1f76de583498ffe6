package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counter struct {
	calls int
	err   error
}

func (c *counter) Handle(context.Context, EventRecord) error {
	c.calls++
	return c.err
}

func TestFanout_RetriesOnlyFailedRoutes(t *testing.T) {
	notify := &counter{}
	archive := &counter{err: errors.New("s3 down")}
	fanout := NewFanout(nil).Add("notifications", notify).Add("statement-archive", archive)
	rec := EventRecord{ID: "ev-1", Name: "booking.cancelled", Aggregate: "bk-1"}

	for range 3 {
		err := fanout.Handle(context.Background(), rec)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "statement-archive")
	}
	assert.Equal(t, 1, notify.calls)
	assert.Equal(t, 3, archive.calls)

	archive.err = nil
	require.NoError(t, fanout.Handle(context.Background(), rec))
	require.NoError(t, fanout.Handle(context.Background(), rec))
	assert.Equal(t, 1, notify.calls)
	assert.Equal(t, 4, archive.calls)
}

func TestFanout_RecordsWithoutIDAlwaysRun(t *testing.T) {
	notify := &counter{}
	fanout := NewFanout(nil).Add("notifications", notify).Add("skipped", nil)

	require.NoError(t, fanout.Handle(context.Background(), EventRecord{Name: "booking.created"}))
	require.NoError(t, fanout.Handle(context.Background(), EventRecord{Name: "booking.created"}))
	assert.Equal(t, 2, notify.calls)
	assert.Len(t, fanout.Routes, 1)
}

func TestDeliveryLedger_EvictsOldestKeys(t *testing.T) {
	ledger := NewDeliveryLedger(2)
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		seen, err := ledger.Seen(ctx, key)
		require.NoError(t, err)
		assert.False(t, seen)
	}
	seen, _ := ledger.Seen(ctx, "c")
	assert.True(t, seen)
	seen, _ = ledger.Seen(ctx, "a")
	assert.False(t, seen, "oldest key was evicted")

	require.NoError(t, ledger.Forget(ctx, "a"))
	seen, _ = ledger.Seen(ctx, "a")
	assert.False(t, seen)
}

func TestJSONEventEncoder(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rec, err := JSONEventEncoder{IDGenerator: func() string { return "ev-9" }}.Encode(testEvent{ID: "bk-1", At: at})
	require.NoError(t, err)
	assert.Equal(t, "ev-9", rec.ID)
	assert.Equal(t, "booking.created", rec.Name)
	assert.Equal(t, "bk-1", rec.Aggregate)
	assert.Equal(t, at, rec.OccurredAt)
	assert.JSONEq(t, `{"ID":"bk-1","At":"2026-03-01T10:00:00Z"}`, string(rec.Payload))
}

type testEvent struct {
	ID string
	At time.Time
}

func (e testEvent) EventName() string     { return "booking.created" }
func (e testEvent) AggregateID() string   { return e.ID }
func (e testEvent) OccurredAt() time.Time { return e.At }
