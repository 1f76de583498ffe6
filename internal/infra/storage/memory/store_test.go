package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomies/internal/app/middleware"
	appoutbox "roomies/internal/app/outbox"
	"roomies/internal/app/uow"
	domainbooking "roomies/internal/domain/booking"
	domaincommissions "roomies/internal/domain/commissions"
	domainrooms "roomies/internal/domain/rooms"
	"roomies/internal/domain/shared/money"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func seeded(t *testing.T, slots int) *Store {
	t.Helper()
	s := NewStore()
	require.NoError(t, s.SeedRoom(domainrooms.Room{
		ID:          "room-1",
		OwnerID:     "owner-1",
		MonthlyRent: money.MustMajor(8000),
		TotalSlots:  slots,
	}))
	return s
}

func begin(t *testing.T, s *Store) uow.UnitOfWork {
	t.Helper()
	unit, err := Factory{Store: s}.Begin(context.Background(), uow.TxOptions{})
	require.NoError(t, err)
	return unit
}

func pending(t *testing.T, s *Store, id, renter string) *domainbooking.Booking {
	t.Helper()
	room, ok := s.Room("room-1")
	require.True(t, ok)
	b, err := domainbooking.New(domainbooking.CreateParams{
		ID:            domainbooking.BookingID(id),
		RenterID:      renter,
		Room:          room,
		BookingAmount: money.MustMajor(999),
		CreatedAt:     t0,
	})
	require.NoError(t, err)
	return b
}

func TestSlots_ConcurrentReserveNeverOverbooks(t *testing.T) {
	s := seeded(t, 3)
	var granted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			unit := begin(t, s)
			err := unit.Slots().TryReserve(context.Background(), "room-1", string(rune('a'+i)))
			if err == nil {
				granted.Add(1)
				assert.NoError(t, unit.Commit(context.Background()))
				return
			}
			assert.ErrorIs(t, err, domainrooms.ErrNoSlotsAvailable)
			assert.NoError(t, unit.Rollback(context.Background()))
		}(i)
	}
	wg.Wait()

	room, _ := s.Room("room-1")
	assert.Equal(t, int32(3), granted.Load())
	assert.Equal(t, 3, room.OccupiedSlots)
}

func TestSlots_RollbackHandsClaimBack(t *testing.T) {
	s := seeded(t, 1)
	unit := begin(t, s)
	require.NoError(t, unit.Slots().TryReserve(context.Background(), "room-1", "bk-1"))
	require.NoError(t, unit.Slots().TryReserve(context.Background(), "room-1", "bk-1"), "holder reserves again")

	room, _ := s.Room("room-1")
	assert.Equal(t, 1, room.OccupiedSlots)

	require.NoError(t, unit.Rollback(context.Background()))
	room, _ = s.Room("room-1")
	assert.Equal(t, 0, room.OccupiedSlots)
}

func TestSlots_ReleaseAppliesOnCommitOnlyOnce(t *testing.T) {
	s := seeded(t, 1)
	unit := begin(t, s)
	require.NoError(t, unit.Slots().TryReserve(context.Background(), "room-1", "bk-1"))
	require.NoError(t, unit.Commit(context.Background()))

	unit = begin(t, s)
	require.NoError(t, unit.Slots().Release(context.Background(), "room-1", "bk-1"))
	room, _ := s.Room("room-1")
	assert.Equal(t, 1, room.OccupiedSlots, "release waits for commit")
	require.NoError(t, unit.Commit(context.Background()))

	unit = begin(t, s)
	require.NoError(t, unit.Slots().Release(context.Background(), "room-1", "bk-1"))
	require.NoError(t, unit.Commit(context.Background()))
	room, _ = s.Room("room-1")
	assert.Equal(t, 0, room.OccupiedSlots)
}

func TestBookings_OptimisticVersion(t *testing.T) {
	s := seeded(t, 2)
	ctx := context.Background()
	unit := begin(t, s)
	b := pending(t, s, "bk-1", "renter-1")
	require.NoError(t, unit.Bookings().Save(ctx, b))
	require.NoError(t, unit.Commit(ctx))
	assert.Equal(t, int64(1), b.Version)

	first, second := begin(t, s), begin(t, s)
	a, err := first.Bookings().ByID(ctx, "bk-1")
	require.NoError(t, err)
	c, err := second.Bookings().ByID(ctx, "bk-1")
	require.NoError(t, err)

	a.CancellationReason = "first"
	c.CancellationReason = "second"
	require.NoError(t, first.Bookings().Save(ctx, a))
	require.NoError(t, second.Bookings().Save(ctx, c))
	require.NoError(t, first.Commit(ctx))
	assert.ErrorIs(t, second.Commit(ctx), domainbooking.ErrConcurrentUpdate)

	stored, _ := s.Booking("bk-1")
	assert.Equal(t, "first", stored.CancellationReason)
	assert.Equal(t, int64(2), stored.Version)

	stale := begin(t, s)
	c.Version = 1
	assert.ErrorIs(t, stale.Bookings().Save(ctx, c), domainbooking.ErrConcurrentUpdate)
}

func TestBookings_OneOpenBookingPerRenterAndRoom(t *testing.T) {
	s := seeded(t, 2)
	ctx := context.Background()

	first, second := begin(t, s), begin(t, s)
	require.NoError(t, first.Bookings().Save(ctx, pending(t, s, "bk-1", "renter-1")))
	require.NoError(t, second.Bookings().Save(ctx, pending(t, s, "bk-2", "renter-1")))
	require.NoError(t, first.Commit(ctx))
	assert.ErrorIs(t, second.Commit(ctx), domainbooking.ErrDuplicateActiveBooking)

	unit := begin(t, s)
	assert.ErrorIs(t, unit.Bookings().Save(ctx, pending(t, s, "bk-3", "renter-1")), domainbooking.ErrDuplicateActiveBooking)
	assert.NoError(t, unit.Bookings().Save(ctx, pending(t, s, "bk-4", "renter-2")))

	open, err := unit.Bookings().FindOpen(ctx, "renter-1", "room-1")
	require.NoError(t, err)
	assert.Equal(t, domainbooking.BookingID("bk-1"), open.ID)
	_, err = unit.Bookings().FindOpen(ctx, "renter-9", "room-1")
	assert.ErrorIs(t, err, domainbooking.ErrBookingNotFound)
}

func TestBookings_Listings(t *testing.T) {
	s := seeded(t, 5)
	ctx := context.Background()
	unit := begin(t, s)
	for i, renter := range []string{"r-1", "r-2", "r-3"} {
		b := pending(t, s, "bk-"+renter, renter)
		b.CreatedAt = t0.Add(time.Duration(i) * time.Hour)
		require.NoError(t, unit.Bookings().Save(ctx, b))
	}
	active := pending(t, s, "bk-active", "r-4")
	active.State = domainbooking.StateActive
	active.ContractEnd = t0.AddDate(0, 0, 10)
	require.NoError(t, unit.Bookings().Save(ctx, active))
	require.NoError(t, unit.Commit(ctx))

	read := begin(t, s)
	all, err := read.Bookings().ListByOwner(ctx, "owner-1", "")
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, domainbooking.BookingID("bk-r-3"), all[0].ID, "newest first")

	actives, err := read.Bookings().ListByOwner(ctx, "owner-1", domainbooking.StateActive)
	require.NoError(t, err)
	assert.Len(t, actives, 1)

	mine, err := read.Bookings().ListByRenter(ctx, "r-2")
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	due, err := read.Bookings().ListActiveEndingBefore(ctx, t0.AddDate(0, 0, 11), 10)
	require.NoError(t, err)
	assert.Len(t, due, 1)
	due, err = read.Bookings().ListActiveEndingBefore(ctx, t0.AddDate(0, 0, 10), 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestUnit_ReadOnlyAndClosed(t *testing.T) {
	s := seeded(t, 1)
	ro, err := Factory{Store: s}.Begin(context.Background(), uow.TxOptions{ReadOnly: true})
	require.NoError(t, err)
	assert.ErrorIs(t, ro.Slots().TryReserve(context.Background(), "room-1", "bk"), ErrReadOnlyUnit)

	unit := begin(t, s)
	require.NoError(t, unit.Commit(context.Background()))
	assert.ErrorIs(t, unit.Commit(context.Background()), ErrUnitClosed)
	assert.NoError(t, unit.Rollback(context.Background()))

	_, err = Factory{}.Begin(context.Background(), uow.TxOptions{})
	assert.ErrorIs(t, err, ErrFactoryMisconfigured)
}

func TestRelay_DeliversCommittedRecordsAndKeepsFailures(t *testing.T) {
	s := seeded(t, 1)
	var seen []string
	fail := true
	relay := &Relay{Store: s, Handler: appoutbox.HandlerFunc(func(_ context.Context, rec appoutbox.EventRecord) error {
		if rec.Name == "flaky" && fail {
			return errors.New("down")
		}
		seen = append(seen, rec.Name)
		return nil
	})}

	unit := begin(t, s)
	require.NoError(t, unit.Outbox().Add(context.Background(), appoutbox.EventRecord{ID: "1", Name: "booking.fee_paid"}))
	require.NoError(t, unit.Outbox().Add(context.Background(), appoutbox.EventRecord{ID: "2", Name: "flaky"}))
	assert.Equal(t, 0, relay.Pending(), "nothing visible before commit")
	require.NoError(t, unit.Commit(context.Background()))

	require.NoError(t, relay.Flush(context.Background()))
	assert.Empty(t, seen, "flush only wakes the relay")
	assert.Error(t, relay.Drain(context.Background()))
	assert.Equal(t, []string{"booking.fee_paid"}, seen)
	assert.Equal(t, 1, relay.Pending())

	fail = false
	require.NoError(t, relay.Drain(context.Background()))
	assert.Equal(t, []string{"booking.fee_paid", "flaky"}, seen)
	assert.Zero(t, relay.Pending())

	rolled := begin(t, s)
	require.NoError(t, rolled.Outbox().Add(context.Background(), appoutbox.EventRecord{ID: "3", Name: "booking.approved"}))
	require.NoError(t, rolled.Rollback(context.Background()))
	assert.Zero(t, relay.Pending())
}

func TestTiersAndIdempotency(t *testing.T) {
	s := NewStore()
	s.SetTier(domaincommissions.Tier{OwnerID: "owner-p", Name: "premium", Rate: 25, DiscountRate: 10})
	tier, err := Tiers{Store: s}.CommissionRate(context.Background(), "owner-p")
	require.NoError(t, err)
	assert.Equal(t, "premium", tier.Name)
	tier, err = Tiers{Store: s}.CommissionRate(context.Background(), "owner-x")
	require.NoError(t, err)
	assert.Equal(t, domaincommissions.DefaultTier("owner-x"), tier)

	idem := NewIdempotencyStore()
	require.NoError(t, idem.Save(context.Background(), middlewareRecord("old", t0)))
	require.NoError(t, idem.Save(context.Background(), middlewareRecord("fresh", t0.Add(48*time.Hour))))
	assert.Equal(t, 1, idem.Purge(t0.Add(time.Hour)))
	_, ok, _ := idem.Get(context.Background(), "fresh")
	assert.True(t, ok)
}

func middlewareRecord(key string, expires time.Time) middleware.IdempotencyRecord {
	return middleware.IdempotencyRecord{Key: key, ExpiresAt: expires}
}

func TestRelay_FailingRouteDoesNotRepeatOthers(t *testing.T) {
	s := seeded(t, 1)
	var notified, archived int
	archiveDown := true
	fanout := appoutbox.NewFanout(nil).
		Add("notifications", appoutbox.HandlerFunc(func(context.Context, appoutbox.EventRecord) error {
			notified++
			return nil
		})).
		Add("statement-archive", appoutbox.HandlerFunc(func(context.Context, appoutbox.EventRecord) error {
			if archiveDown {
				return errors.New("bucket unreachable")
			}
			archived++
			return nil
		}))
	relay := &Relay{Store: s, Handler: fanout}
	require.NoError(t, relay.Add(context.Background(), appoutbox.EventRecord{ID: "ev-1", Name: "booking.cancelled", Aggregate: "bk-1"}))

	for range 3 {
		assert.Error(t, relay.Drain(context.Background()))
	}
	assert.Equal(t, 1, notified)
	assert.Equal(t, 1, relay.Pending())

	archiveDown = false
	require.NoError(t, relay.Drain(context.Background()))
	assert.Equal(t, 1, notified)
	assert.Equal(t, 1, archived)
	assert.Zero(t, relay.Pending())
}

func TestRelay_RunDeliversOffTheCallerPath(t *testing.T) {
	s := seeded(t, 1)
	release := make(chan struct{})
	delivered := make(chan string, 1)
	relay := &Relay{Store: s, Handler: appoutbox.HandlerFunc(func(_ context.Context, rec appoutbox.EventRecord) error {
		<-release
		delivered <- rec.Name
		return nil
	})}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	unit := begin(t, s)
	require.NoError(t, unit.Outbox().Add(context.Background(), appoutbox.EventRecord{ID: "ev-2", Name: "booking.approved"}))
	require.NoError(t, unit.Commit(context.Background()))

	flushed := make(chan struct{})
	go func() {
		_ = relay.Flush(context.Background())
		close(flushed)
	}()
	select {
	case <-flushed:
	case <-time.After(time.Second):
		t.Fatal("flush waited for the handler")
	}

	close(release)
	select {
	case name := <-delivered:
		assert.Equal(t, "booking.approved", name)
	case <-time.After(2 * time.Second):
		t.Fatal("record was not relayed")
	}
	cancel()
	require.NoError(t, <-done)
}
