package boltstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomies/internal/app/middleware"
)

func openTemp(t *testing.T) *IdempotencyStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "idem.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestIdempotencyStore_SaveGet(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	rec := middleware.IdempotencyRecord{
		Key:         "booking.pay_fee:bk-1:k1",
		Fingerprint: "abc",
		Payload:     []byte(`{"state":"payment_initiated"}`),
		OccurredAt:  now,
		ExpiresAt:   now.Add(time.Hour),
	}
	require.NoError(t, s.Save(ctx, rec))

	got, ok, err := s.Get(ctx, rec.Key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec.Fingerprint, got.Fingerprint)
	assert.Equal(t, rec.Payload, got.Payload)
	assert.True(t, rec.ExpiresAt.Equal(got.ExpiresAt))

	s.now = func() time.Time { return now.Add(2 * time.Hour) }
	_, ok, err = s.Get(ctx, rec.Key)
	require.NoError(t, err)
	assert.False(t, ok, "expired records read as missing")
}

func TestIdempotencyStore_Purge(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.Save(ctx, middleware.IdempotencyRecord{Key: "old", ExpiresAt: now.Add(-time.Minute)}))
	require.NoError(t, s.Save(ctx, middleware.IdempotencyRecord{Key: "fresh", ExpiresAt: now.Add(time.Minute)}))
	require.NoError(t, s.Save(ctx, middleware.IdempotencyRecord{Key: "forever"}))

	n, err := s.Purge(now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	s.now = func() time.Time { return now }
	_, ok, _ := s.Get(ctx, "fresh")
	assert.True(t, ok)
	_, ok, _ = s.Get(ctx, "forever")
	assert.True(t, ok)
}
