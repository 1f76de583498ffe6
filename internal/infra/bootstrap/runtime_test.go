package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomies/internal/app/lifecycle"
	domainbooking "roomies/internal/domain/booking"
	"roomies/internal/domain/shared/actor"
	"roomies/internal/domain/shared/money"
	"roomies/internal/infra/config"
	"roomies/internal/infra/db/sqlstore"
	"roomies/internal/testutil"
)

var now = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

const catalogYAML = `rooms:
  - id: room-1
    owner_id: owner-1
    title: Twin share near campus
    monthly_rent: "8000"
    total_slots: 2
tiers:
  - owner_id: owner-1
    name: premium
    rate: 20
    discount_rate: 10
`

type captured struct {
	mu    sync.Mutex
	sends []string
}

func (c *captured) Send(_ context.Context, to string, template string, _ any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sends = append(c.sends, to+"/"+template)
	return nil
}

func (c *captured) list() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sends...)
}

func baseConfig() config.Config {
	return config.Config{
		Env:                     "test",
		Storage:                 config.StorageMemory,
		IdempotencyStore:        config.StorageMemory,
		IdempotencyTTL:          time.Hour,
		RetryBackoff:            []time.Duration{time.Millisecond, 5 * time.Millisecond},
		OutboxPollInterval:      10 * time.Millisecond,
		CompletionSweepInterval: time.Hour,
		NotifyQueueSize:         16,
		NotifyWorkers:           1,
		BookingFee:              money.MustMajor(999),
		Currency:                money.DefaultCurrency,
	}
}

func writeCatalog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(catalogYAML), 0o600))
	return path
}

func build(t *testing.T, cfg config.Config) (*Runtime, *captured) {
	t.Helper()
	notifier := &captured{}
	rt, err := Builder{Config: cfg, Clock: testutil.NewManualClock(now), Notifier: notifier}.Build(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { rt.Close(context.Background()) })

	_, err = rt.Seed(context.Background(), writeCatalog(t))
	require.NoError(t, err)
	return rt, notifier
}

func requestBooking(t *testing.T, rt *Runtime) string {
	t.Helper()
	ctx := context.Background()
	b, err := rt.Service.CreateBooking(ctx, lifecycle.CreateBookingInput{
		RenterID:               "renter-1",
		RoomID:                 "room-1",
		MoveInDate:             now.AddDate(0, 0, 14),
		ContractDurationMonths: 6,
	})
	require.NoError(t, err)
	_, err = rt.Service.PayBookingFee(ctx, b.ID, actor.NewRenter("renter-1"), "fee-1")
	require.NoError(t, err)
	return b.ID
}

func TestBuild_MemoryRelaysEventsInProcess(t *testing.T) {
	rt, notifier := build(t, baseConfig())

	names := make([]string, 0, len(rt.Runners))
	for _, r := range rt.Runners {
		names = append(names, r.Name)
	}
	assert.ElementsMatch(t, []string{"idempotency-purge", "outbox-relay", "completion-sweeper"}, names)
	assert.Empty(t, rt.Health.Checks)

	requestBooking(t, rt)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, notifier.list(), "commands never deliver events themselves")

	stop := startRunner(t, rt, "outbox-relay")
	defer stop()
	assert.Eventually(t, func() bool { return len(notifier.list()) == 2 }, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []string{"owner-1/booking_request", "renter-1/booking_request_sent"}, notifier.list())
}

func TestBuild_CloseRelaysPendingEvents(t *testing.T) {
	notifier := &captured{}
	rt, err := Builder{Config: baseConfig(), Clock: testutil.NewManualClock(now), Notifier: notifier}.Build(context.Background())
	require.NoError(t, err)
	_, err = rt.Seed(context.Background(), writeCatalog(t))
	require.NoError(t, err)

	requestBooking(t, rt)
	rt.Close(context.Background())
	assert.Len(t, notifier.list(), 2)
}

func startRunner(t *testing.T, rt *Runtime, name string) func() {
	t.Helper()
	var runner Runner
	for _, r := range rt.Runners {
		if r.Name == name {
			runner = r
		}
	}
	require.NotNil(t, runner.Run, name)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()
	return func() {
		cancel()
		require.NoError(t, <-done)
	}
}

func TestBuild_SeededTierDrivesCommission(t *testing.T) {
	rt, _ := build(t, baseConfig())
	ctx := context.Background()

	id := requestBooking(t, rt)
	_, err := rt.Service.OwnerDecide(ctx, id, actor.NewOwner("owner-1"), true, "", "decide-1")
	require.NoError(t, err)
	_, err = rt.Service.PayRemaining(ctx, id, actor.NewRenter("renter-1"), "rest-1", nil)
	require.NoError(t, err)

	view, err := rt.Service.Settlement(ctx, id, actor.NewSystem())
	require.NoError(t, err)
	require.NotNil(t, view.Commission)
	assert.Equal(t, 20.0, view.Commission.Rate)
	assert.Equal(t, money.MustMajor(800), view.Commission.FinalAmount.Money())
}

func TestBuild_SQLDrainsOutboxThroughWorker(t *testing.T) {
	cfg := baseConfig()
	cfg.Storage = config.StorageSQL
	cfg.SQLDriver = sqlstore.DriverSQLite
	cfg.SQLDSN = filepath.Join(t.TempDir(), "roomies.db") + "?_busy_timeout=5000"
	rt, notifier := build(t, cfg)
	assert.Contains(t, rt.Health.Checks, "sql")

	requestBooking(t, rt)
	assert.Empty(t, notifier.list(), "nothing is delivered before the worker runs")

	stop := startRunner(t, rt, "outbox-worker")
	defer stop()
	assert.Eventually(t, func() bool { return len(notifier.list()) == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestBuild_RejectsUnknownStorage(t *testing.T) {
	cfg := baseConfig()
	cfg.Storage = "cassandra"
	_, err := Builder{Config: cfg}.Build(context.Background())
	assert.ErrorContains(t, err, "unsupported storage")
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(domainbooking.ErrConcurrentUpdate))
	assert.False(t, Retryable(domainbooking.ErrInvalidTransition))
}
