package booking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomies/internal/domain/rooms"
	"roomies/internal/domain/shared/actor"
	"roomies/internal/domain/shared/money"
)

var (
	t0     = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	renter = actor.NewRenter("renter-1")
	owner  = actor.NewOwner("owner-1")
	system = actor.NewSystem()
)

func testRoom(rent float64) rooms.Room {
	return rooms.Room{
		ID:          "room-1",
		OwnerID:     "owner-1",
		Title:       "Sunny twin share",
		MonthlyRent: money.MustMajor(rent),
		TotalSlots:  2,
	}
}

func newBooking(t *testing.T, rent float64) *Booking {
	t.Helper()
	b, err := New(CreateParams{
		ID:            "bk-1",
		RenterID:      renter.ID,
		Room:          testRoom(rent),
		BookingAmount: money.MustMajor(999),
		MoveInDate:    t0.AddDate(0, 0, 14),
		CreatedAt:     t0,
	})
	require.NoError(t, err)
	return b
}

func activeBooking(t *testing.T, rent float64) *Booking {
	t.Helper()
	b := newBooking(t, rent)
	require.NoError(t, b.PayBookingFee(renter, true, "fee-1", t0.Add(time.Minute)))
	require.NoError(t, b.Approve(owner, t0.Add(time.Hour)))
	require.NoError(t, b.PayRemaining(renter, b.Remaining(), "pay-1", func() error { return nil }, t0.Add(2*time.Hour)))
	b.DrainEvents()
	return b
}

func noop() error { return nil }

func assertWithinDue(t *testing.T, b *Booking) {
	t.Helper()
	cmp, err := b.TotalPaid.Cmp(b.TotalDue())
	require.NoError(t, err)
	assert.LessOrEqual(t, cmp, 0, "total paid %s exceeds due %s", b.TotalPaid, b.TotalDue())
}

func TestNew_DerivesAmounts(t *testing.T) {
	b := newBooking(t, 8000)

	assert.Equal(t, StatePending, b.State)
	assert.Equal(t, PaymentNone, b.PaymentState)
	assert.Equal(t, money.MustMajor(16000), b.SecurityDeposit)
	assert.Equal(t, money.MustMajor(160), b.PlatformFee)
	assert.Equal(t, money.MustMajor(25159), b.TotalDue())
	assert.True(t, b.TotalPaid.IsZero())
	assert.Equal(t, rooms.OwnerID("owner-1"), b.OwnerID)
	assert.Equal(t, DefaultContractMonths, b.ContractDurationMonths)
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), b.ContractStart)
	assert.Equal(t, b.ContractStart.AddDate(0, 0, 330), b.ContractEnd)

	require.Len(t, b.Transitions, 1)
	assert.Equal(t, EventCreate, b.Transitions[0].Event)
	assert.Equal(t, renter, b.Transitions[0].Actor)

	evts := b.PendingEvents()
	require.Len(t, evts, 1)
	assert.Equal(t, EventNameCreated, evts[0].EventName())
	assert.Equal(t, "bk-1", evts[0].AggregateID())
}

func TestNew_RejectsBadInput(t *testing.T) {
	base := CreateParams{ID: "bk", RenterID: "r", Room: testRoom(8000), BookingAmount: money.MustMajor(999), CreatedAt: t0}

	p := base
	p.RenterID = ""
	_, err := New(p)
	assert.ErrorIs(t, err, ErrRenterRequired)

	p = base
	p.ContractDurationMonths = 48
	_, err = New(p)
	assert.ErrorIs(t, err, ErrInvalidDuration)

	p = base
	p.MoveInDate = t0.AddDate(0, 0, -2)
	_, err = New(p)
	assert.ErrorIs(t, err, ErrMoveInInPast)

	p = base
	p.BookingAmount = money.Must(-1, money.DefaultCurrency)
	_, err = New(p)
	assert.ErrorIs(t, err, money.ErrInvalidAmount)

	p = base
	p.Room.OccupiedSlots = 3
	_, err = New(p)
	assert.ErrorIs(t, err, rooms.ErrInvalidCapacity)
}

func TestLifecycle_EndToEnd(t *testing.T) {
	b := newBooking(t, 8000)

	require.NoError(t, b.PayBookingFee(renter, true, "fee-1", t0.Add(time.Minute)))
	assert.Equal(t, StatePaymentInitiated, b.State)
	assert.Equal(t, PaymentPartial, b.PaymentState)
	assert.Equal(t, money.MustMajor(999), b.TotalPaid)
	assertWithinDue(t, b)

	require.NoError(t, b.Approve(owner, t0.Add(time.Hour)))
	assert.Equal(t, StateConfirmed, b.State)
	assert.Equal(t, money.MustMajor(24160), b.Remaining())

	reserved := 0
	require.NoError(t, b.PayRemaining(renter, money.MustMajor(24160), "pay-1", func() error {
		reserved++
		return nil
	}, t0.Add(2*time.Hour)))
	assert.Equal(t, 1, reserved)
	assert.Equal(t, StateActive, b.State)
	assert.Equal(t, PaymentComplete, b.PaymentState)
	assert.Equal(t, money.MustMajor(25159), b.TotalPaid)
	assertWithinDue(t, b)

	released := 0
	refund, err := b.Cancel(renter, "moving out", func() error {
		released++
		return nil
	}, t0.AddDate(0, 1, 0))
	require.NoError(t, err)
	assert.Equal(t, money.MustMajor(16000), refund)
	assert.Equal(t, 1, released)
	assert.Equal(t, StateCancelled, b.State)
	assert.Equal(t, actor.Renter, b.CancelledBy)
	assert.Equal(t, "moving out", b.CancellationReason)

	var names []string
	for _, e := range b.DrainEvents() {
		names = append(names, e.EventName())
	}
	assert.Equal(t, []string{
		EventNameCreated, EventNameFeePaid, EventNameApproved, EventNameActivated, EventNameCancelled,
	}, names)

	var path []State
	for _, tr := range b.Transitions {
		path = append(path, tr.To)
	}
	assert.Equal(t, []State{StatePending, StatePaymentInitiated, StateConfirmed, StateActive, StateCancelled}, path)
}

func TestPayBookingFee_Guards(t *testing.T) {
	b := newBooking(t, 8000)

	assert.ErrorIs(t, b.PayBookingFee(owner, true, "k", t0), ErrUnauthorized)
	assert.ErrorIs(t, b.PayBookingFee(actor.NewRenter("intruder"), true, "k", t0), ErrUnauthorized)

	err := b.PayBookingFee(renter, false, "k", t0)
	assert.ErrorIs(t, err, rooms.ErrNoSlotsAvailable)
	assert.Equal(t, StatePending, b.State)
	assert.True(t, b.TotalPaid.IsZero())

	require.NoError(t, b.PayBookingFee(renter, true, "k", t0))
	assert.ErrorIs(t, b.PayBookingFee(renter, true, "k2", t0), ErrInvalidTransition)
	assert.Equal(t, money.MustMajor(999), b.TotalPaid)

	tr, ok := b.AppliedWith(EventPayBookingFee, "k")
	require.True(t, ok)
	assert.Equal(t, StatePaymentInitiated, tr.To)
	_, ok = b.AppliedWith(EventPayBookingFee, "k2")
	assert.False(t, ok)
}

func TestOwnerDecision(t *testing.T) {
	t.Run("renter cannot approve", func(t *testing.T) {
		b := newBooking(t, 8000)
		require.NoError(t, b.PayBookingFee(renter, true, "k", t0))
		assert.ErrorIs(t, b.Approve(renter, t0), ErrUnauthorized)
		assert.ErrorIs(t, b.Approve(actor.NewOwner("someone-else"), t0), ErrUnauthorized)
		assert.Equal(t, StatePaymentInitiated, b.State)
	})

	t.Run("reject refunds the booking fee", func(t *testing.T) {
		b := newBooking(t, 8000)
		require.NoError(t, b.PayBookingFee(renter, true, "k", t0))
		refund, err := b.Reject(owner, "room under repair", t0.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, money.MustMajor(999), refund)
		assert.Equal(t, StateCancelled, b.State)
		assert.Equal(t, actor.Owner, b.CancelledBy)
		assert.Equal(t, money.MustMajor(999), b.RefundAmount)
	})

	t.Run("loser of approve versus reject sees invalid transition", func(t *testing.T) {
		b := newBooking(t, 8000)
		require.NoError(t, b.PayBookingFee(renter, true, "k", t0))
		require.NoError(t, b.Approve(owner, t0))
		_, err := b.Reject(owner, "changed mind", t0)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Equal(t, StateConfirmed, b.State)
	})

	t.Run("decision before fee is invalid", func(t *testing.T) {
		b := newBooking(t, 8000)
		assert.ErrorIs(t, b.Approve(owner, t0), ErrInvalidTransition)
	})
}

func TestPayRemaining_AmountMustSettleBalance(t *testing.T) {
	b := newBooking(t, 8000)
	require.NoError(t, b.PayBookingFee(renter, true, "k", t0))
	require.NoError(t, b.Approve(owner, t0))

	err := b.PayRemaining(renter, money.MustMajor(100), "p", noop, t0)
	assert.ErrorIs(t, err, ErrPaymentMismatch)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	err = b.PayRemaining(renter, money.MustMajor(30000), "p", noop, t0)
	assert.ErrorIs(t, err, ErrPaymentMismatch)
	assert.Equal(t, money.MustMajor(999), b.TotalPaid)
	assert.Equal(t, StateConfirmed, b.State)
}

func TestPayRemaining_NoSlotLeavesBookingConfirmed(t *testing.T) {
	b := newBooking(t, 8000)
	require.NoError(t, b.PayBookingFee(renter, true, "k", t0))
	require.NoError(t, b.Approve(owner, t0))
	b.DrainEvents()

	full := func() error { return rooms.ErrNoSlotsAvailable }
	err := b.PayRemaining(renter, b.Remaining(), "p", full, t0.Add(time.Hour))
	assert.ErrorIs(t, err, rooms.ErrNoSlotsAvailable)
	assert.Equal(t, StateConfirmed, b.State)
	assert.Equal(t, PaymentPartial, b.PaymentState)
	assert.Equal(t, money.MustMajor(999), b.TotalPaid)
	assert.True(t, b.ActivationBlocked)

	evts := b.DrainEvents()
	require.Len(t, evts, 1)
	assert.Equal(t, EventNameActivationBlocked, evts[0].EventName())

	// a second blocked attempt does not raise a new event
	_ = b.PayRemaining(renter, b.Remaining(), "p2", full, t0.Add(2*time.Hour))
	assert.Empty(t, b.DrainEvents())

	require.NoError(t, b.PayRemaining(renter, b.Remaining(), "p3", noop, t0.Add(3*time.Hour)))
	assert.Equal(t, StateActive, b.State)
	assert.False(t, b.ActivationBlocked)
}

func TestPayRemaining_WithoutMoveInStartsContractOnActivation(t *testing.T) {
	b, err := New(CreateParams{
		ID:                     "bk-2",
		RenterID:               renter.ID,
		Room:                   testRoom(5000),
		BookingAmount:          money.MustMajor(999),
		ContractDurationMonths: 6,
		CreatedAt:              t0,
	})
	require.NoError(t, err)
	assert.True(t, b.ContractEnd.IsZero())

	require.NoError(t, b.PayBookingFee(renter, true, "k", t0))
	require.NoError(t, b.Approve(owner, t0))
	require.NoError(t, b.PayRemaining(renter, b.Remaining(), "p", noop, t0.Add(5*time.Hour)))

	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), b.ContractStart)
	assert.Equal(t, time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC), b.ContractEnd)
}

func TestCancel_RefundByStageAndInitiator(t *testing.T) {
	t.Run("active renter forfeits a month", func(t *testing.T) {
		b := activeBooking(t, 10000)
		refund, err := b.Cancel(renter, "", noop, t0.AddDate(0, 2, 0))
		require.NoError(t, err)
		assert.Equal(t, money.MustMajor(20000), refund)
	})

	t.Run("active owner returns the month", func(t *testing.T) {
		b := activeBooking(t, 10000)
		refund, err := b.Cancel(owner, "property withdrawn", noop, t0.AddDate(0, 2, 0))
		require.NoError(t, err)
		assert.Equal(t, money.MustMajor(30000), refund)
		assert.Equal(t, actor.Owner, b.CancelledBy)
	})

	t.Run("pending cancel refunds nothing paid", func(t *testing.T) {
		b := newBooking(t, 8000)
		released := false
		refund, err := b.Cancel(renter, "", func() error { released = true; return nil }, t0)
		require.NoError(t, err)
		assert.True(t, refund.IsZero())
		assert.False(t, released)
	})

	t.Run("confirmed cancel refunds what was paid", func(t *testing.T) {
		b := newBooking(t, 8000)
		require.NoError(t, b.PayBookingFee(renter, true, "k", t0))
		require.NoError(t, b.Approve(owner, t0))
		refund, err := b.Cancel(owner, "", noop, t0)
		require.NoError(t, err)
		assert.Equal(t, money.MustMajor(999), refund)
	})

	t.Run("failed release keeps tenancy", func(t *testing.T) {
		b := activeBooking(t, 10000)
		_, err := b.Cancel(renter, "", func() error { return assert.AnError }, t0)
		assert.ErrorIs(t, err, assert.AnError)
		assert.Equal(t, StateActive, b.State)
		assert.True(t, b.RefundAmount.IsZero())
	})
}

func TestComplete(t *testing.T) {
	b := activeBooking(t, 8000)
	end := b.ContractEnd

	assert.ErrorIs(t, b.Complete(renter, noop, end.Add(time.Hour)), ErrUnauthorized)
	assert.ErrorIs(t, b.Complete(system, noop, end), ErrContractNotElapsed)
	assert.Equal(t, StateActive, b.State)

	released := 0
	release := func() error { released++; return nil }
	require.NoError(t, b.Complete(system, release, end.Add(time.Hour)))
	assert.Equal(t, StateCompleted, b.State)
	assert.Equal(t, 1, released)

	assert.ErrorIs(t, b.Complete(system, release, end.Add(2*time.Hour)), ErrInvalidTransition)
	assert.Equal(t, 1, released)
}

func TestTerminalStatesRejectEverything(t *testing.T) {
	cancelled := activeBooking(t, 8000)
	_, err := cancelled.Cancel(renter, "", noop, t0)
	require.NoError(t, err)

	completed := activeBooking(t, 8000)
	require.NoError(t, completed.Complete(system, noop, completed.ContractEnd.Add(time.Hour)))

	for name, b := range map[string]*Booking{"cancelled": cancelled, "completed": completed} {
		t.Run(name, func(t *testing.T) {
			b.DrainEvents()
			before := b.Clone()
			calls := 0
			touch := func() error { calls++; return nil }
			later := b.ContractEnd.AddDate(1, 0, 0)

			assert.ErrorIs(t, b.PayBookingFee(renter, true, "k", later), ErrInvalidTransition)
			assert.ErrorIs(t, b.Approve(owner, later), ErrInvalidTransition)
			_, err := b.Reject(owner, "", later)
			assert.ErrorIs(t, err, ErrInvalidTransition)
			assert.ErrorIs(t, b.PayRemaining(renter, b.Remaining(), "p", touch, later), ErrInvalidTransition)
			_, err = b.Cancel(owner, "", touch, later)
			assert.ErrorIs(t, err, ErrInvalidTransition)
			_, err = b.Cancel(renter, "", touch, later)
			assert.ErrorIs(t, err, ErrInvalidTransition)
			assert.ErrorIs(t, b.Complete(system, touch, later), ErrInvalidTransition)
			assert.ErrorIs(t, b.SignContract(renter, later), ErrInvalidTransition)

			assert.Zero(t, calls)
			assert.Empty(t, b.PendingEvents())
			assert.Equal(t, before, b.Clone())
		})
	}
}

func TestSignContract(t *testing.T) {
	b := newBooking(t, 8000)
	assert.ErrorIs(t, b.SignContract(renter, t0), ErrInvalidTransition)

	b = activeBooking(t, 8000)
	assert.ErrorIs(t, b.SignContract(owner, t0), ErrUnauthorized)

	signedAt := t0.Add(3 * time.Hour)
	require.NoError(t, b.SignContract(renter, signedAt))
	require.NoError(t, b.SignContract(renter, signedAt.Add(time.Hour)))
	assert.Equal(t, signedAt, b.ContractSignedAt)
	assert.Len(t, b.DrainEvents(), 1)
}

func TestMarkRefunded(t *testing.T) {
	b := newBooking(t, 8000)
	require.NoError(t, b.PayBookingFee(renter, true, "k", t0))
	assert.ErrorIs(t, b.MarkRefunded(t0), ErrInvalidTransition)

	_, err := b.Cancel(renter, "", noop, t0)
	require.NoError(t, err)
	require.NoError(t, b.MarkRefunded(t0))
	require.NoError(t, b.MarkRefunded(t0))
	assert.Equal(t, PaymentRefunded, b.PaymentState)

	free := newBooking(t, 8000)
	_, err = free.Cancel(renter, "", noop, t0)
	require.NoError(t, err)
	assert.ErrorIs(t, free.MarkRefunded(t0), ErrNothingToRefund)
}

func TestClone_IsDeep(t *testing.T) {
	b := newBooking(t, 8000)
	c := b.Clone()
	c.Transitions[0].IdempotencyKey = "changed"
	assert.Empty(t, b.Transitions[0].IdempotencyKey)
	assert.Empty(t, c.PendingEvents())
	assert.Len(t, b.PendingEvents(), 1)
}

func TestAuthorizeReplay(t *testing.T) {
	b := activeBooking(t, 8000)

	_, done := b.AppliedWith(EventPayBookingFee, "fee-1")
	require.True(t, done)
	assert.NoError(t, b.AuthorizeReplay(EventPayBookingFee, renter), "state no longer matters")
	assert.ErrorIs(t, b.AuthorizeReplay(EventPayBookingFee, actor.NewRenter("renter-2")), ErrUnauthorized)
	assert.ErrorIs(t, b.AuthorizeReplay(EventPayRemaining, owner), ErrUnauthorized)
	assert.ErrorIs(t, b.AuthorizeReplay(Event("teleport"), renter), ErrInvalidTransition)
}
