package sqlstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"roomies/internal/app/commands"
	"roomies/internal/app/lifecycle"
	"roomies/internal/app/middleware"
	appoutbox "roomies/internal/app/outbox"
	"roomies/internal/app/queries"
	"roomies/internal/app/uow"
	domainbooking "roomies/internal/domain/booking"
	domaincommissions "roomies/internal/domain/commissions"
	domainrooms "roomies/internal/domain/rooms"
	"roomies/internal/domain/shared/actor"
	"roomies/internal/domain/shared/money"
	"roomies/internal/testutil"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func openTest(t *testing.T, slots int) *gorm.DB {
	t.Helper()
	db, err := Open(DriverSQLite, filepath.Join(t.TempDir(), "roomies.db")+"?_busy_timeout=5000", nil)
	require.NoError(t, err)
	require.NoError(t, Migrate(context.Background(), db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	unit := begin(t, db)
	require.NoError(t, unit.Rooms().Save(context.Background(), &domainrooms.Room{
		ID:          "room-1",
		OwnerID:     "owner-1",
		Title:       "Twin share near campus",
		MonthlyRent: money.MustMajor(8000),
		TotalSlots:  slots,
	}))
	require.NoError(t, unit.Commit(context.Background()))
	return db
}

func begin(t *testing.T, db *gorm.DB) uow.UnitOfWork {
	t.Helper()
	unit, err := Factory{DB: db}.Begin(context.Background(), uow.TxOptions{})
	require.NoError(t, err)
	return unit
}

func room(t *testing.T, db *gorm.DB) *domainrooms.Room {
	t.Helper()
	unit, err := Factory{DB: db}.Begin(context.Background(), uow.TxOptions{ReadOnly: true})
	require.NoError(t, err)
	defer unit.Rollback(context.Background())
	r, err := unit.Rooms().ByID(context.Background(), "room-1")
	require.NoError(t, err)
	return r
}

func newBooking(t *testing.T, db *gorm.DB, id, renter string) *domainbooking.Booking {
	t.Helper()
	b, err := domainbooking.New(domainbooking.CreateParams{
		ID:            domainbooking.BookingID(id),
		RenterID:      renter,
		Room:          *room(t, db),
		BookingAmount: money.MustMajor(999),
		CreatedAt:     t0,
	})
	require.NoError(t, err)
	return b
}

func TestSlots_ReserveIsBoundedAndIdempotent(t *testing.T) {
	db := openTest(t, 1)
	ctx := context.Background()

	unit := begin(t, db)
	require.NoError(t, unit.Slots().TryReserve(ctx, "room-1", "bk-a"))
	require.NoError(t, unit.Slots().TryReserve(ctx, "room-1", "bk-a"), "holder reserving again is a no-op")
	require.NoError(t, unit.Commit(ctx))
	assert.Equal(t, 1, room(t, db).OccupiedSlots)

	unit = begin(t, db)
	err := unit.Slots().TryReserve(ctx, "room-1", "bk-b")
	assert.ErrorIs(t, err, domainrooms.ErrNoSlotsAvailable)
	assert.ErrorIs(t, unit.Slots().TryReserve(ctx, "room-9", "bk-b"), domainrooms.ErrRoomNotFound)
	require.NoError(t, unit.Rollback(ctx))

	unit = begin(t, db)
	require.NoError(t, unit.Slots().Release(ctx, "room-1", "bk-a"))
	require.NoError(t, unit.Slots().Release(ctx, "room-1", "bk-a"))
	require.NoError(t, unit.Commit(ctx))
	assert.Equal(t, 0, room(t, db).OccupiedSlots)
}

func TestSlots_RollbackReturnsTheSlot(t *testing.T) {
	db := openTest(t, 1)
	ctx := context.Background()

	unit := begin(t, db)
	require.NoError(t, unit.Slots().TryReserve(ctx, "room-1", "bk-a"))
	require.NoError(t, unit.Rollback(ctx))
	assert.Equal(t, 0, room(t, db).OccupiedSlots)
}

func TestBookings_VersionAndOpenPairGuards(t *testing.T) {
	db := openTest(t, 2)
	ctx := context.Background()

	b := newBooking(t, db, "bk-1", "renter-1")
	unit := begin(t, db)
	require.NoError(t, unit.Bookings().Save(ctx, b))
	require.NoError(t, unit.Commit(ctx))
	assert.Equal(t, int64(1), b.Version)

	stale := b.Clone()
	b.CancellationReason = "first writer"
	unit = begin(t, db)
	require.NoError(t, unit.Bookings().Save(ctx, b))
	require.NoError(t, unit.Commit(ctx))

	unit = begin(t, db)
	err := unit.Bookings().Save(ctx, stale)
	assert.ErrorIs(t, err, domainbooking.ErrConcurrentUpdate)
	require.NoError(t, unit.Rollback(ctx))

	unit = begin(t, db)
	err = unit.Bookings().Save(ctx, newBooking(t, db, "bk-2", "renter-1"))
	assert.ErrorIs(t, err, domainbooking.ErrDuplicateActiveBooking)
	require.NoError(t, unit.Rollback(ctx))

	unit = begin(t, db)
	defer unit.Rollback(ctx)
	got, err := unit.Bookings().FindOpen(ctx, "renter-1", "room-1")
	require.NoError(t, err)
	assert.Equal(t, "first writer", got.CancellationReason)
	assert.Equal(t, b.Transitions, got.Transitions)
	assert.Equal(t, money.MustMajor(16000), got.SecurityDeposit)

	_, err = unit.Bookings().ByID(ctx, "missing")
	assert.ErrorIs(t, err, domainbooking.ErrBookingNotFound)
}

func TestOutboxStore_ClaimLifecycle(t *testing.T) {
	db := openTest(t, 1)
	ctx := context.Background()
	now := t0.Add(time.Hour)
	store := OutboxStore{DB: db, Now: func() time.Time { return now }}

	unit := begin(t, db)
	require.NoError(t, unit.Outbox().Add(ctx, appoutbox.EventRecord{ID: "ev-1", Name: "booking.created", Aggregate: "bk-1", Payload: []byte(`{}`), OccurredAt: t0}))
	require.NoError(t, unit.Rollback(ctx))
	claimed, err := store.Claim(ctx, "w1")
	require.NoError(t, err)
	assert.Nil(t, claimed, "rolled back records are never published")

	unit = begin(t, db)
	require.NoError(t, unit.Outbox().Add(ctx, appoutbox.EventRecord{ID: "ev-2", Name: "booking.created", Aggregate: "bk-1", Payload: []byte(`{}`), OccurredAt: t0}))
	require.NoError(t, unit.Commit(ctx))

	claimed, err = store.Claim(ctx, "w1")
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, "ev-2", claimed.Record.ID)

	again, err := store.Claim(ctx, "w2")
	require.NoError(t, err)
	assert.Nil(t, again, "claimed rows are leased to one worker")

	require.NoError(t, store.MarkFailed(ctx, "ev-2", now.Add(-time.Second), "broker down"))
	claimed, err = store.Claim(ctx, "w2")
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, 1, claimed.Attempts)

	require.NoError(t, store.MarkSent(ctx, "ev-2"))
	claimed, err = store.Claim(ctx, "w1")
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestTierDirectory(t *testing.T) {
	db := openTest(t, 1)
	ctx := context.Background()
	tiers := TierDirectory{DB: db}

	tier, err := tiers.CommissionRate(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, domaincommissions.DefaultRate, tier.Rate)

	require.NoError(t, tiers.SetTier(ctx, domaincommissions.Tier{OwnerID: "owner-1", Name: "premium", Rate: 25, DiscountRate: 10}))
	tier, err = tiers.CommissionRate(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, "premium", tier.Name)
	assert.Equal(t, 10.0, tier.DiscountRate)
}

func TestLifecycle_RunsOnSQL(t *testing.T) {
	db := openTest(t, 1)
	ctx := context.Background()
	factory := Factory{DB: db}

	cmds, qs := commands.NewInMemoryBus(), queries.NewInMemoryBus()
	lifecycle.Register(cmds, qs, lifecycle.Deps{
		UoW:        factory,
		Clock:      testutil.NewManualClock(t0),
		Tiers:      TierDirectory{DB: db},
		BookingFee: money.MustMajor(999),
	})
	bus := middleware.Stack{
		Validator:    middleware.SelfValidator{},
		RetryBackoff: []time.Duration{time.Millisecond},
		Retryable:    func(err error) bool { return errors.Is(err, domainbooking.ErrConcurrentUpdate) },
		UoW:          factory,
	}.Wrap(cmds)
	svc := lifecycle.NewService(bus, qs)

	renter, owner := actor.NewRenter("renter-1"), actor.NewOwner("owner-1")
	created, err := svc.CreateBooking(ctx, lifecycle.CreateBookingInput{RenterID: renter.ID, RoomID: "room-1", MoveInDate: t0.AddDate(0, 0, 7)})
	require.NoError(t, err)
	_, err = svc.PayBookingFee(ctx, created.ID, renter, "fee")
	require.NoError(t, err)
	_, err = svc.OwnerDecide(ctx, created.ID, owner, true, "", "decide")
	require.NoError(t, err)
	active, err := svc.PayRemaining(ctx, created.ID, renter, "pay", nil)
	require.NoError(t, err)
	assert.Equal(t, "active", active.State)
	assert.Equal(t, 1, room(t, db).OccupiedSlots)

	settled, err := svc.Settlement(ctx, created.ID, owner)
	require.NoError(t, err)
	require.NotNil(t, settled.Commission)
	assert.Equal(t, money.MustMajor(2000).Amount, settled.Commission.FinalAmount.Amount)

	cancelled, err := svc.Cancel(ctx, created.ID, renter, "moving", "cancel")
	require.NoError(t, err)
	assert.Equal(t, money.MustMajor(16000).Amount, cancelled.Refund.Amount.Amount)
	assert.Equal(t, 0, room(t, db).OccupiedSlots)

	var outboxed int64
	require.NoError(t, db.Model(&outboxRow{}).Count(&outboxed).Error)
	assert.Positive(t, outboxed)
}
