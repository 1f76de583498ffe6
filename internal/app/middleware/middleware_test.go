package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomies/internal/app/commands"
	"roomies/internal/app/locks"
	"roomies/internal/app/outbox"
	"roomies/internal/app/uow"
	domainbooking "roomies/internal/domain/booking"
	domaincommissions "roomies/internal/domain/commissions"
	domainrefunds "roomies/internal/domain/refunds"
	domainrooms "roomies/internal/domain/rooms"
)

type payCmd struct {
	BookingID string `json:"booking_id"`
	Amount    int64  `json:"amount"`
	IdemKey   string `json:"-"`
}

func (c payCmd) Key() string              { return "test.pay" }
func (c payCmd) IdempotencyKey() string   { return c.IdemKey }
func (c payCmd) IdempotencyScope() string { return c.BookingID }
func (c payCmd) ResultPrototype() any     { return &payResult{} }
func (c payCmd) LockKeys() []string       { return []string{"booking:" + c.BookingID} }

type payResult struct {
	Total int64 `json:"total"`
}

type memStore struct {
	mu    sync.Mutex
	items map[string]IdempotencyRecord
}

func newMemStore() *memStore { return &memStore{items: map[string]IdempotencyRecord{}} }

func (s *memStore) Get(_ context.Context, key string) (IdempotencyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.items[key]
	return rec, ok, nil
}

func (s *memStore) Save(_ context.Context, rec IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[rec.Key] = rec
	return nil
}

type fakeUnit struct {
	committed  int
	rolledBack int
}

func (u *fakeUnit) Bookings() domainbooking.Repository        { return nil }
func (u *fakeUnit) Rooms() domainrooms.Repository             { return nil }
func (u *fakeUnit) Slots() domainrooms.SlotStore              { return nil }
func (u *fakeUnit) Commissions() domaincommissions.Repository { return nil }
func (u *fakeUnit) Refunds() domainrefunds.Repository         { return nil }
func (u *fakeUnit) Outbox() outbox.Outbox                     { return nil }
func (u *fakeUnit) Commit(context.Context) error              { u.committed++; return nil }
func (u *fakeUnit) Rollback(context.Context) error            { u.rolledBack++; return nil }

type fakeFactory struct {
	mu    sync.Mutex
	units []*fakeUnit
}

func (f *fakeFactory) Begin(context.Context, uow.TxOptions) (uow.UnitOfWork, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := &fakeUnit{}
	f.units = append(f.units, u)
	return u, nil
}

type countingBox struct{ flushes int }

func (b *countingBox) Add(context.Context, outbox.EventRecord) error { return nil }
func (b *countingBox) Flush(context.Context) error                   { b.flushes++; return nil }

func busWith(fn func(ctx context.Context, cmd payCmd) (*payResult, error)) *commands.InMemoryBus {
	bus := commands.NewInMemoryBus()
	commands.RegisterHandler[payCmd, *payResult](bus, "test.pay", commands.HandlerFunc[payCmd, *payResult](fn))
	return bus
}

func TestIdempotency_ReplaysSuccess(t *testing.T) {
	calls := 0
	base := busWith(func(ctx context.Context, cmd payCmd) (*payResult, error) {
		calls++
		return &payResult{Total: cmd.Amount * int64(calls)}, nil
	})
	bus := ChainCommands(base, Idempotency(newMemStore(), nil, time.Hour))

	first, err := commands.Dispatch[payCmd, *payResult](context.Background(), bus, payCmd{BookingID: "b1", Amount: 5, IdemKey: "k"})
	require.NoError(t, err)
	second, err := commands.Dispatch[payCmd, *payResult](context.Background(), bus, payCmd{BookingID: "b1", Amount: 5, IdemKey: "k"})
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)

	_, err = commands.Dispatch[payCmd, *payResult](context.Background(), bus, payCmd{BookingID: "b2", Amount: 5, IdemKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "same key on another booking is a different request")
}

func TestIdempotency_RejectsKeyReuseWithDifferentBody(t *testing.T) {
	base := busWith(func(ctx context.Context, cmd payCmd) (*payResult, error) { return &payResult{}, nil })
	bus := ChainCommands(base, Idempotency(newMemStore(), nil, 0))

	_, err := bus.Dispatch(context.Background(), payCmd{BookingID: "b1", Amount: 5, IdemKey: "k"})
	require.NoError(t, err)
	_, err = bus.Dispatch(context.Background(), payCmd{BookingID: "b1", Amount: 6, IdemKey: "k"})
	assert.ErrorIs(t, err, ErrIdempotencyKeyReused)
}

func TestIdempotency_FailuresAreNotStored(t *testing.T) {
	calls := 0
	boom := errors.New("no slots")
	base := busWith(func(ctx context.Context, cmd payCmd) (*payResult, error) {
		calls++
		if calls == 1 {
			return nil, boom
		}
		return &payResult{Total: 1}, nil
	})
	bus := ChainCommands(base, Idempotency(newMemStore(), nil, 0))

	_, err := bus.Dispatch(context.Background(), payCmd{BookingID: "b1", IdemKey: "k"})
	assert.ErrorIs(t, err, boom)
	res, err := commands.Dispatch[payCmd, *payResult](context.Background(), bus, payCmd{BookingID: "b1", IdemKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Total)
	assert.Equal(t, 2, calls)
}

func TestIdempotency_ExpiredRecordsRunAgain(t *testing.T) {
	store := newMemStore()
	calls := 0
	base := busWith(func(ctx context.Context, cmd payCmd) (*payResult, error) { calls++; return &payResult{}, nil })
	bus := ChainCommands(base, Idempotency(store, nil, time.Nanosecond))

	_, err := bus.Dispatch(context.Background(), payCmd{BookingID: "b1", IdemKey: "k"})
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	_, err = bus.Dispatch(context.Background(), payCmd{BookingID: "b1", IdemKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestTransaction_CommitRules(t *testing.T) {
	plain := errors.New("invalid")
	var next error
	base := busWith(func(ctx context.Context, cmd payCmd) (*payResult, error) {
		_, err := uow.Require(ctx)
		require.NoError(t, err)
		return &payResult{Total: 7}, next
	})
	factory := &fakeFactory{}
	box := &countingBox{}
	bus := ChainCommands(base, OutboxFlush(box, nil), Transaction(factory, nil))

	res, err := bus.Dispatch(context.Background(), payCmd{})
	require.NoError(t, err)
	assert.Equal(t, &payResult{Total: 7}, res)

	next = plain
	_, err = bus.Dispatch(context.Background(), payCmd{})
	assert.ErrorIs(t, err, plain)

	next = uow.CommitAnyway(plain)
	res, err = bus.Dispatch(context.Background(), payCmd{})
	assert.ErrorIs(t, err, plain)
	assert.NotNil(t, res)

	require.Len(t, factory.units, 3)
	assert.Equal(t, 1, factory.units[0].committed)
	assert.Equal(t, 0, factory.units[1].committed)
	assert.Equal(t, 1, factory.units[1].rolledBack)
	assert.Equal(t, 1, factory.units[2].committed)
	assert.Equal(t, 0, factory.units[2].rolledBack)
	assert.Equal(t, 2, box.flushes)
}

func TestRetry_RetriesOnlyRetryableErrors(t *testing.T) {
	conflict := errors.New("conflict")
	calls := 0
	base := busWith(func(ctx context.Context, cmd payCmd) (*payResult, error) {
		calls++
		if calls < 3 {
			return nil, conflict
		}
		return &payResult{}, nil
	})
	isConflict := func(err error) bool { return errors.Is(err, conflict) }
	bus := ChainCommands(base, Retry([]time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}, isConflict))

	_, err := bus.Dispatch(context.Background(), payCmd{})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = -10
	bus = ChainCommands(base, Retry([]time.Duration{time.Millisecond}, isConflict))
	_, err = bus.Dispatch(context.Background(), payCmd{})
	assert.ErrorIs(t, err, conflict)
	assert.Equal(t, -8, calls)
}

func TestSerialize_OneCommandPerKey(t *testing.T) {
	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	base := busWith(func(ctx context.Context, cmd payCmd) (*payResult, error) {
		mu.Lock()
		inside++
		if inside > maxSeen {
			maxSeen = inside
		}
		mu.Unlock()
		time.Sleep(time.Millisecond)
		mu.Lock()
		inside--
		mu.Unlock()
		return &payResult{}, nil
	})
	bus := ChainCommands(base, Serialize(locks.NewKeyed()))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = bus.Dispatch(context.Background(), payCmd{BookingID: "same"})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

type checked struct{ ok bool }

func (c checked) Key() string { return "test.checked" }
func (c checked) Validate() error {
	if !c.ok {
		return errors.New("booking id required")
	}
	return nil
}

func TestSelfValidator(t *testing.T) {
	v := SelfValidator{}
	assert.NoError(t, v.Validate(context.Background(), checked{ok: true}))
	assert.NoError(t, v.Validate(context.Background(), payCmd{}))
	err := v.Validate(context.Background(), checked{})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "booking id required")
}
